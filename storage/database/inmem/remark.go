package inmemdb

import (
	"context"
	"strings"

	"github.com/samber/lo"

	"github.com/trezcool/registrar/core"
	"github.com/trezcool/registrar/core/remark"
)

type remarkRepository struct {
	db *DB
}

var _ remark.Repository = (*remarkRepository)(nil) // interface compliance check

func NewRemarkRepository(db *DB) *remarkRepository {
	return &remarkRepository{db: db}
}

func (repo *remarkRepository) CreateRemark(_ context.Context, r remark.Remark) (remark.Remark, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if lo.SomeBy(lo.Values(repo.db.t.remarks), func(o remark.Remark) bool { return o.Label == r.Label }) {
		return remark.Remark{}, core.NewConflictError("remark %q already exists", r.Label)
	}
	r.ID = newID(r.ID)
	repo.db.t.remarks[r.ID] = r
	return r, nil
}

func (repo *remarkRepository) GetRemark(_ context.Context, id string) (remark.Remark, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if r, ok := repo.db.t.remarks[id]; ok {
		return r, nil
	}
	return remark.Remark{}, remark.ErrNotFound
}

func (repo *remarkRepository) ListRemarks(_ context.Context, activeOnly bool) ([]remark.Remark, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	rmks := lo.Filter(lo.Values(repo.db.t.remarks), func(r remark.Remark, _ int) bool { return !activeOnly || r.IsActive })
	sortBy(rmks, nil, comparators[remark.Remark]{
		"label": func(a, b remark.Remark) int { return strings.Compare(a.Label, b.Label) },
	}, core.DBOrdering{Field: "label", Ascending: true})
	return rmks, nil
}

func (repo *remarkRepository) LabelExists(_ context.Context, label string) (bool, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	return lo.SomeBy(lo.Values(repo.db.t.remarks), func(r remark.Remark) bool {
		return strings.EqualFold(r.Label, label)
	}), nil
}

func (repo *remarkRepository) DeleteRemark(_ context.Context, id string) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.t.remarks[id]; !ok {
		return remark.ErrNotFound
	}
	delete(repo.db.t.remarks, id)
	return nil
}
