package inmemdb

import (
	"context"
	"strings"

	"github.com/samber/lo"

	"github.com/trezcool/registrar/core"
	"github.com/trezcool/registrar/core/enrollment"
	"github.com/trezcool/registrar/core/section"
)

type sectionRepository struct {
	db *DB
}

var _ section.Repository = (*sectionRepository)(nil) // interface compliance check

func NewSectionRepository(db *DB) *sectionRepository {
	return &sectionRepository{db: db}
}

func (repo *sectionRepository) countEnrolled(id string) int {
	var n int
	for _, s := range repo.db.t.students {
		if s.SectionID != nil && *s.SectionID == id && s.EnrollmentStatus == enrollment.StatusEnrolled {
			n++
		}
	}
	return n
}

func (repo *sectionRepository) read(sec section.Section) section.Section {
	sec.EnrolledCount = repo.countEnrolled(sec.ID)
	return sec
}

func (repo *sectionRepository) exists(name, grade, excludedID string) bool {
	return lo.SomeBy(lo.Values(repo.db.t.sections), func(s section.Section) bool {
		return s.ID != excludedID && s.GradeLevel == grade && strings.EqualFold(s.Name, name)
	})
}

func (repo *sectionRepository) save(sec section.Section) (section.Section, error) {
	if lo.SomeBy(lo.Values(repo.db.t.sections), func(s section.Section) bool {
		return s.ID != sec.ID && s.GradeLevel == sec.GradeLevel && s.Name == sec.Name
	}) {
		return section.Section{}, core.NewConflictError("section %q already exists for %s", sec.Name, sec.GradeLevel)
	}
	sec.EnrolledCount = 0
	repo.db.t.sections[sec.ID] = sec
	return repo.read(sec), nil
}

func (repo *sectionRepository) CreateSection(_ context.Context, sec section.Section) (section.Section, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	sec.ID = newID(sec.ID)
	return repo.save(sec)
}

func (repo *sectionRepository) UpdateSection(_ context.Context, sec section.Section) (section.Section, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.t.sections[sec.ID]; !ok {
		return section.Section{}, section.ErrNotFound
	}
	return repo.save(sec)
}

func (repo *sectionRepository) GetSection(_ context.Context, id string) (section.Section, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if sec, ok := repo.db.t.sections[id]; ok {
		return repo.read(sec), nil
	}
	return section.Section{}, section.ErrNotFound
}

func (repo *sectionRepository) GetSectionByName(_ context.Context, name, gradeLevel string) (section.Section, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	for _, sec := range repo.db.t.sections {
		if sec.GradeLevel == gradeLevel && strings.EqualFold(sec.Name, name) {
			return repo.read(sec), nil
		}
	}
	return section.Section{}, section.ErrNotFound
}

var sectionComparators = comparators[section.Section]{
	"gradeLevel": func(a, b section.Section) int { return gradeIndex(a.GradeLevel) - gradeIndex(b.GradeLevel) },
	"name":       func(a, b section.Section) int { return strings.Compare(a.Name, b.Name) },
}

func (repo *sectionRepository) ListSections(_ context.Context, filter section.QueryFilter) ([]section.Section, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	secs := lo.FilterMap(lo.Values(repo.db.t.sections), func(sec section.Section, _ int) (section.Section, bool) {
		if filter.GradeLevel != "" && sec.GradeLevel != filter.GradeLevel {
			return sec, false
		}
		if filter.IsActive != nil && sec.IsActive != *filter.IsActive {
			return sec, false
		}
		return repo.read(sec), true
	})
	sortBy(secs, nil, sectionComparators,
		core.DBOrdering{Field: "gradeLevel", Ascending: true}, core.DBOrdering{Field: "name", Ascending: true})
	return secs, nil
}

func (repo *sectionRepository) Exists(_ context.Context, name, gradeLevel, excludedID string) (bool, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()
	return repo.exists(name, gradeLevel, excludedID), nil
}

func (repo *sectionRepository) CountEnrolled(_ context.Context, id string) (int, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()
	return repo.countEnrolled(id), nil
}

func (repo *sectionRepository) DeleteSection(_ context.Context, id string) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.t.sections[id]; !ok {
		return section.ErrNotFound
	}
	delete(repo.db.t.sections, id)
	repo.db.detachSection(id)
	return nil
}
