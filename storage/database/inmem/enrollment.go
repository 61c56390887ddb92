package inmemdb

import (
	"context"

	"github.com/samber/lo"

	"github.com/trezcool/registrar/core"
	"github.com/trezcool/registrar/core/enrollment"
)

type enrollmentRepository struct {
	db *DB
}

var _ enrollment.Repository = (*enrollmentRepository)(nil) // interface compliance check

func NewEnrollmentRepository(db *DB) *enrollmentRepository {
	return &enrollmentRepository{db: db}
}

// read fills the joined names.
func (repo *enrollmentRepository) read(e enrollment.Enrollment) enrollment.Enrollment {
	e.AcademicYearName = repo.db.t.years[e.AcademicYearID].Name
	e.SectionName = ""
	if e.SectionID != nil {
		e.SectionName = repo.db.t.sections[*e.SectionID].Name
	}
	return e
}

func (repo *enrollmentRepository) save(e enrollment.Enrollment) (enrollment.Enrollment, error) {
	if _, ok := repo.db.t.students[e.StudentID]; !ok {
		return enrollment.Enrollment{}, enrollment.ErrNotFound
	}
	if _, ok := repo.db.t.years[e.AcademicYearID]; !ok {
		return enrollment.Enrollment{}, enrollment.ErrNotFound
	}
	for _, other := range repo.db.t.enrollments {
		if other.ID != e.ID && other.StudentID == e.StudentID && other.AcademicYearID == e.AcademicYearID {
			return enrollment.Enrollment{}, core.NewConflictError("student is already enrolled in this academic year")
		}
	}
	e.AcademicYearName, e.SectionName = "", ""
	repo.db.t.enrollments[e.ID] = e
	return repo.read(e), nil
}

func (repo *enrollmentRepository) CreateEnrollment(_ context.Context, e enrollment.Enrollment) (enrollment.Enrollment, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	e.ID = newID(e.ID)
	return repo.save(e)
}

func (repo *enrollmentRepository) UpdateEnrollment(_ context.Context, e enrollment.Enrollment) (enrollment.Enrollment, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.t.enrollments[e.ID]; !ok {
		return enrollment.Enrollment{}, enrollment.ErrNotFound
	}
	return repo.save(e)
}

func (repo *enrollmentRepository) GetEnrollment(_ context.Context, studentID, yearID string) (enrollment.Enrollment, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	for _, e := range repo.db.t.enrollments {
		if e.StudentID == studentID && e.AcademicYearID == yearID {
			return repo.read(e), nil
		}
	}
	return enrollment.Enrollment{}, enrollment.ErrNotFound
}

func (repo *enrollmentRepository) list(match func(e enrollment.Enrollment) bool) []enrollment.Enrollment {
	return lo.FilterMap(lo.Values(repo.db.t.enrollments), func(e enrollment.Enrollment, _ int) (enrollment.Enrollment, bool) {
		return repo.read(e), match(e)
	})
}

func (repo *enrollmentRepository) ListByStudent(_ context.Context, studentID string) ([]enrollment.Enrollment, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	ens := repo.list(func(e enrollment.Enrollment) bool { return e.StudentID == studentID })
	sortBy(ens, nil, comparators[enrollment.Enrollment]{
		"yearStart": func(a, b enrollment.Enrollment) int {
			return compareTime(repo.db.t.years[a.AcademicYearID].StartDate.Time, repo.db.t.years[b.AcademicYearID].StartDate.Time)
		},
	}, core.DBOrdering{Field: "yearStart"})
	return ens, nil
}

func (repo *enrollmentRepository) ListByYear(_ context.Context, yearID string) ([]enrollment.Enrollment, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	ens := repo.list(func(e enrollment.Enrollment) bool { return e.AcademicYearID == yearID })
	sortBy(ens, nil, comparators[enrollment.Enrollment]{
		"createdAt": func(a, b enrollment.Enrollment) int { return compareTime(a.CreatedAt, b.CreatedAt) },
	}, core.DBOrdering{Field: "createdAt", Ascending: true})
	return ens, nil
}

func (repo *enrollmentRepository) HasClosedYearEnrollment(_ context.Context, studentID string) (bool, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	return lo.SomeBy(lo.Values(repo.db.t.enrollments), func(e enrollment.Enrollment) bool {
		return e.StudentID == studentID && repo.db.t.years[e.AcademicYearID].IsClosed
	}), nil
}

func (repo *enrollmentRepository) References(_ context.Context, e enrollment.Enrollment) (enrollment.References, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	refs := enrollment.References{Section: true}
	_, refs.Student = repo.db.t.students[e.StudentID]
	_, refs.Year = repo.db.t.years[e.AcademicYearID]
	if e.SectionID != nil {
		_, refs.Section = repo.db.t.sections[*e.SectionID]
	}
	return refs, nil
}

func (repo *enrollmentRepository) deleteWhere(match func(e enrollment.Enrollment) bool) int {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	var n int
	for id, e := range repo.db.t.enrollments {
		if match(e) {
			delete(repo.db.t.enrollments, id)
			n++
		}
	}
	return n
}

func (repo *enrollmentRepository) DeleteByYear(_ context.Context, yearID string) (int, error) {
	return repo.deleteWhere(func(e enrollment.Enrollment) bool { return e.AcademicYearID == yearID }), nil
}

func (repo *enrollmentRepository) DeleteByStudent(_ context.Context, studentID string) (int, error) {
	return repo.deleteWhere(func(e enrollment.Enrollment) bool { return e.StudentID == studentID }), nil
}
