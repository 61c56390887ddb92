package inmemdb

import (
	"context"
	"strings"

	"github.com/samber/lo"

	"github.com/trezcool/registrar/core"
	"github.com/trezcool/registrar/core/fee"
)

type feeRepository struct {
	db *DB
}

var _ fee.Repository = (*feeRepository)(nil) // interface compliance check

func NewFeeRepository(db *DB) *feeRepository {
	return &feeRepository{db: db}
}

// Templates

func (repo *feeRepository) saveTemplate(t fee.Template) (fee.Template, error) {
	if _, ok := repo.db.t.years[t.AcademicYearID]; !ok {
		return fee.Template{}, fee.ErrTemplateNotFound
	}
	for _, other := range repo.db.t.templates {
		if other.ID != t.ID && other.GradeLevel == t.GradeLevel && other.AcademicYearID == t.AcademicYearID {
			return fee.Template{}, core.NewConflictError("a fee template already exists for %s", t.GradeLevel)
		}
	}
	bds := make([]fee.Breakdown, len(t.Breakdowns))
	for i, b := range t.Breakdowns {
		b.ID = newID(b.ID)
		b.TemplateID = t.ID
		b.SortOrder = i
		bds[i] = b
	}
	t.Breakdowns = bds
	repo.db.t.templates[t.ID] = t
	return t, nil
}

func (repo *feeRepository) CreateTemplate(_ context.Context, t fee.Template) (fee.Template, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	t.ID = newID(t.ID)
	return repo.saveTemplate(t)
}

func (repo *feeRepository) UpdateTemplate(_ context.Context, t fee.Template) (fee.Template, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	orig, ok := repo.db.t.templates[t.ID]
	if !ok {
		return fee.Template{}, fee.ErrTemplateNotFound
	}
	t.AcademicYearID = orig.AcademicYearID
	t.CreatedAt = orig.CreatedAt
	saved, err := repo.saveTemplate(t)
	if err != nil {
		return fee.Template{}, err
	}

	removed := make(map[string]bool)
	for _, b := range orig.Breakdowns {
		if _, kept := saved.Breakdown(b.ID); !kept {
			removed[b.ID] = true
		}
	}
	repo.db.detachBreakdowns(removed)
	return saved, nil
}

func (repo *feeRepository) GetTemplate(_ context.Context, id string) (fee.Template, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if t, ok := repo.db.t.templates[id]; ok {
		return t, nil
	}
	return fee.Template{}, fee.ErrTemplateNotFound
}

func (repo *feeRepository) GetTemplateFor(_ context.Context, gradeLevel, yearID string) (fee.Template, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	for _, t := range repo.db.t.templates {
		if t.GradeLevel == gradeLevel && t.AcademicYearID == yearID {
			return t, nil
		}
	}
	return fee.Template{}, fee.ErrTemplateNotFound
}

func (repo *feeRepository) GetBreakdown(_ context.Context, id string) (fee.Breakdown, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	for _, t := range repo.db.t.templates {
		if bd, ok := t.Breakdown(id); ok {
			return bd, nil
		}
	}
	return fee.Breakdown{}, fee.ErrBreakdownNotFound
}

func (repo *feeRepository) ListTemplates(_ context.Context, filter fee.TemplateFilter) ([]fee.Template, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	templates := lo.Filter(lo.Values(repo.db.t.templates), func(t fee.Template, _ int) bool {
		return (filter.AcademicYearID == "" || t.AcademicYearID == filter.AcademicYearID) &&
			(filter.GradeLevel == "" || t.GradeLevel == filter.GradeLevel)
	})
	sortBy(templates, nil, comparators[fee.Template]{
		"gradeLevel": func(a, b fee.Template) int { return gradeIndex(a.GradeLevel) - gradeIndex(b.GradeLevel) },
	}, core.DBOrdering{Field: "gradeLevel", Ascending: true})
	return templates, nil
}

func (repo *feeRepository) DeleteTemplate(_ context.Context, id string) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	t, ok := repo.db.t.templates[id]
	if !ok {
		return fee.ErrTemplateNotFound
	}
	delete(repo.db.t.templates, id)
	repo.db.detachBreakdowns(lo.Associate(t.Breakdowns, func(b fee.Breakdown) (string, bool) { return b.ID, true }))
	return nil
}

func (repo *feeRepository) BreakdownsInUse(_ context.Context, breakdownIDs ...string) (bool, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	for _, p := range repo.db.t.payments {
		for _, li := range p.LineItems {
			if li.FeeBreakdownID != nil && lo.Contains(breakdownIDs, *li.FeeBreakdownID) {
				return true, nil
			}
		}
	}
	return false, nil
}

// Optional fees

func (repo *feeRepository) saveOptionalFee(of fee.OptionalFee) fee.OptionalFee {
	vars := make([]fee.Variation, len(of.Variations))
	for i, v := range of.Variations {
		v.ID = newID(v.ID)
		v.OptionalFeeID = of.ID
		vars[i] = v
	}
	sortBy(vars, nil, comparators[fee.Variation]{
		"name": func(a, b fee.Variation) int { return strings.Compare(a.Name, b.Name) },
	}, core.DBOrdering{Field: "name", Ascending: true})
	of.Variations = vars
	repo.db.t.optionalFees[of.ID] = of
	return of
}

func (repo *feeRepository) CreateOptionalFee(_ context.Context, of fee.OptionalFee) (fee.OptionalFee, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	of.ID = newID(of.ID)
	return repo.saveOptionalFee(of), nil
}

func (repo *feeRepository) UpdateOptionalFee(_ context.Context, of fee.OptionalFee) (fee.OptionalFee, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	orig, ok := repo.db.t.optionalFees[of.ID]
	if !ok {
		return fee.OptionalFee{}, fee.ErrOptionalFeeNotFound
	}
	of.CreatedAt = orig.CreatedAt
	saved := repo.saveOptionalFee(of)

	// assignments on a removed variation keep their amount but lose the link
	for id, sof := range repo.db.t.studentFees {
		if sof.VariationID == nil || sof.OptionalFeeID != of.ID {
			continue
		}
		if !lo.ContainsBy(saved.Variations, func(v fee.Variation) bool { return v.ID == *sof.VariationID }) {
			sof.VariationID = nil
			repo.db.t.studentFees[id] = sof
		}
	}
	return saved, nil
}

func (repo *feeRepository) GetOptionalFee(_ context.Context, id string) (fee.OptionalFee, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if of, ok := repo.db.t.optionalFees[id]; ok {
		return of, nil
	}
	return fee.OptionalFee{}, fee.ErrOptionalFeeNotFound
}

func (repo *feeRepository) ListOptionalFees(_ context.Context, activeOnly bool) ([]fee.OptionalFee, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	fees := lo.Filter(lo.Values(repo.db.t.optionalFees), func(of fee.OptionalFee, _ int) bool {
		return !activeOnly || of.IsActive
	})
	sortBy(fees, nil, comparators[fee.OptionalFee]{
		"name": func(a, b fee.OptionalFee) int { return strings.Compare(a.Name, b.Name) },
	}, core.DBOrdering{Field: "name", Ascending: true})
	return fees, nil
}

func (repo *feeRepository) optionalFeeAssigned(id string) bool {
	return lo.SomeBy(lo.Values(repo.db.t.studentFees), func(sof fee.StudentOptionalFee) bool {
		return sof.OptionalFeeID == id
	})
}

func (repo *feeRepository) DeleteOptionalFee(_ context.Context, id string) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.t.optionalFees[id]; !ok {
		return fee.ErrOptionalFeeNotFound
	}
	if repo.optionalFeeAssigned(id) {
		return core.NewConflictError("optional fee is assigned to students")
	}
	delete(repo.db.t.optionalFees, id)
	return nil
}

func (repo *feeRepository) OptionalFeeAssigned(_ context.Context, id string) (bool, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()
	return repo.optionalFeeAssigned(id), nil
}

// Student optional fees

func (repo *feeRepository) readAssignment(sof fee.StudentOptionalFee) fee.StudentOptionalFee {
	sof.OptionalFeeName = repo.db.t.optionalFees[sof.OptionalFeeID].Name
	return sof
}

func (repo *feeRepository) ListStudentOptionalFees(_ context.Context, studentID, yearID string) ([]fee.StudentOptionalFee, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	sofs := lo.FilterMap(lo.Values(repo.db.t.studentFees), func(sof fee.StudentOptionalFee, _ int) (fee.StudentOptionalFee, bool) {
		return repo.readAssignment(sof), sof.StudentID == studentID && sof.AcademicYearID == yearID
	})
	sortBy(sofs, nil, comparators[fee.StudentOptionalFee]{
		"name": func(a, b fee.StudentOptionalFee) int { return strings.Compare(a.OptionalFeeName, b.OptionalFeeName) },
	}, core.DBOrdering{Field: "name", Ascending: true})
	return sofs, nil
}

func (repo *feeRepository) findAssignment(studentID, optionalFeeID, yearID string) (fee.StudentOptionalFee, bool) {
	return lo.Find(lo.Values(repo.db.t.studentFees), func(sof fee.StudentOptionalFee) bool {
		return sof.StudentID == studentID && sof.OptionalFeeID == optionalFeeID && sof.AcademicYearID == yearID
	})
}

func (repo *feeRepository) GetStudentOptionalFee(_ context.Context, studentID, optionalFeeID, yearID string) (fee.StudentOptionalFee, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if sof, ok := repo.findAssignment(studentID, optionalFeeID, yearID); ok {
		return repo.readAssignment(sof), nil
	}
	return fee.StudentOptionalFee{}, fee.ErrAssignmentNotFound
}

func (repo *feeRepository) SaveStudentOptionalFee(_ context.Context, sof fee.StudentOptionalFee) (fee.StudentOptionalFee, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.t.students[sof.StudentID]; !ok {
		return fee.StudentOptionalFee{}, fee.ErrAssignmentNotFound
	}
	if _, ok := repo.db.t.optionalFees[sof.OptionalFeeID]; !ok {
		return fee.StudentOptionalFee{}, fee.ErrAssignmentNotFound
	}
	if existing, ok := repo.findAssignment(sof.StudentID, sof.OptionalFeeID, sof.AcademicYearID); ok {
		sof.ID = existing.ID
		sof.CreatedAt = existing.CreatedAt
	}
	sof.ID = newID(sof.ID)
	sof.OptionalFeeName = ""
	repo.db.t.studentFees[sof.ID] = sof
	return repo.readAssignment(sof), nil
}

func (repo *feeRepository) DeleteStudentOptionalFee(_ context.Context, id string) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.t.studentFees[id]; !ok {
		return fee.ErrAssignmentNotFound
	}
	delete(repo.db.t.studentFees, id)
	return nil
}
