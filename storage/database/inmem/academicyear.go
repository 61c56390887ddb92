package inmemdb

import (
	"context"
	"strings"

	"github.com/samber/lo"

	"github.com/trezcool/registrar/core"
	"github.com/trezcool/registrar/core/academicyear"
	"github.com/trezcool/registrar/core/payment"
)

type yearRepository struct {
	db *DB
}

var _ academicyear.Repository = (*yearRepository)(nil) // interface compliance check

func NewAcademicYearRepository(db *DB) *yearRepository {
	return &yearRepository{db: db}
}

func (repo *yearRepository) save(y academicyear.AcademicYear) (academicyear.AcademicYear, error) {
	for _, other := range repo.db.t.years {
		if other.ID == y.ID {
			continue
		}
		if other.Name == y.Name {
			return academicyear.AcademicYear{}, core.NewConflictError("academic year %q already exists", y.Name)
		}
		if y.IsActive && other.IsActive {
			return academicyear.AcademicYear{}, core.NewConflictError("another academic year is already active")
		}
	}
	repo.db.t.years[y.ID] = y
	return y, nil
}

func (repo *yearRepository) CreateYear(_ context.Context, y academicyear.AcademicYear) (academicyear.AcademicYear, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	y.ID = newID(y.ID)
	return repo.save(y)
}

func (repo *yearRepository) UpdateYear(_ context.Context, y academicyear.AcademicYear) (academicyear.AcademicYear, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.t.years[y.ID]; !ok {
		return academicyear.AcademicYear{}, academicyear.ErrNotFound
	}
	return repo.save(y)
}

func (repo *yearRepository) GetYear(_ context.Context, id string) (academicyear.AcademicYear, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if y, ok := repo.db.t.years[id]; ok {
		return y, nil
	}
	return academicyear.AcademicYear{}, academicyear.ErrNotFound
}

func (repo *yearRepository) GetActiveYear(_ context.Context) (academicyear.AcademicYear, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	for _, y := range repo.db.t.years {
		if y.IsActive {
			return y, nil
		}
	}
	return academicyear.AcademicYear{}, academicyear.ErrNoActiveYear
}

func (repo *yearRepository) ListYears(_ context.Context) ([]academicyear.AcademicYear, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	years := lo.Values(repo.db.t.years)
	sortBy(years, nil, comparators[academicyear.AcademicYear]{
		"startDate": func(a, b academicyear.AcademicYear) int { return compareTime(a.StartDate.Time, b.StartDate.Time) },
		"createdAt": func(a, b academicyear.AcademicYear) int { return compareTime(a.CreatedAt, b.CreatedAt) },
	}, core.DBOrdering{Field: "startDate"}, core.DBOrdering{Field: "createdAt"})
	return years, nil
}

func (repo *yearRepository) NameExists(_ context.Context, name, excludedID string) (bool, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	return lo.SomeBy(lo.Values(repo.db.t.years), func(y academicyear.AcademicYear) bool {
		return y.ID != excludedID && strings.EqualFold(y.Name, name)
	}), nil
}

func (repo *yearRepository) DeactivateAll(_ context.Context, exceptID string) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	now := core.NowFunc()
	for id, y := range repo.db.t.years {
		if y.IsActive && id != exceptID {
			y.IsActive = false
			y.UpdatedAt = now
			repo.db.t.years[id] = y
		}
	}
	return nil
}

func (repo *yearRepository) DeleteYear(_ context.Context, id string) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.t.years[id]; !ok {
		return academicyear.ErrNotFound
	}
	if repo.db.countPayments(func(p payment.Payment) bool { return p.AcademicYearID == id }) > 0 {
		return core.NewConflictError("academic year has payments")
	}
	delete(repo.db.t.years, id)
	repo.db.cascadeYear(id)
	return nil
}

func (repo *yearRepository) CountPayments(_ context.Context, yearID string) (int, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()
	return repo.db.countPayments(func(p payment.Payment) bool { return p.AcademicYearID == yearID }), nil
}
