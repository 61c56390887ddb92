package inmemdb

import (
	"context"
	"time"

	"github.com/samber/lo"

	"github.com/trezcool/registrar/core"
	"github.com/trezcool/registrar/core/recyclebin"
)

type recycleBinRepository struct {
	db *DB
}

var _ recyclebin.Repository = (*recycleBinRepository)(nil) // interface compliance check

func NewRecycleBinRepository(db *DB) *recycleBinRepository {
	return &recycleBinRepository{db: db}
}

func (repo *recycleBinRepository) CreateItem(_ context.Context, it recyclebin.Item) (recyclebin.Item, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	it.ID = newID(it.ID)
	it.EntityData = append([]byte(nil), it.EntityData...)
	repo.db.t.bin[it.ID] = it
	return it, nil
}

func (repo *recycleBinRepository) GetItem(_ context.Context, id string) (recyclebin.Item, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if it, ok := repo.db.t.bin[id]; ok {
		return it, nil
	}
	return recyclebin.Item{}, recyclebin.ErrNotFound
}

func (repo *recycleBinRepository) ListItems(_ context.Context, filter recyclebin.ListFilter) ([]recyclebin.Item, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	items := lo.Filter(lo.Values(repo.db.t.bin), func(it recyclebin.Item, _ int) bool {
		return (filter.EntityType == "" || it.EntityType == filter.EntityType) &&
			(filter.Search == "" || containsFold(it.EntityName, filter.Search))
	})
	sortBy(items, nil, comparators[recyclebin.Item]{
		"deletedAt": func(a, b recyclebin.Item) int { return compareTime(a.DeletedAt, b.DeletedAt) },
	}, core.DBOrdering{Field: "deletedAt"})
	return items, nil
}

func (repo *recycleBinRepository) DeleteItem(_ context.Context, id string) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.t.bin[id]; !ok {
		return recyclebin.ErrNotFound
	}
	delete(repo.db.t.bin, id)
	return nil
}

func (repo *recycleBinRepository) DeleteExpired(_ context.Context, now time.Time) (int, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	var n int
	for id, it := range repo.db.t.bin {
		if it.Expired(now) {
			delete(repo.db.t.bin, id)
			n++
		}
	}
	return n, nil
}
