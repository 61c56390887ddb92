package recyclebin

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/registrar/core"
)

type Service struct {
	repo Repository
	tx   core.Transactor

	mu       sync.RWMutex
	handlers map[EntityType]Handler
}

var _ SoftDeleter = (*Service)(nil)

func NewService(repo Repository, tx core.Transactor) *Service {
	return &Service{
		repo:     repo,
		tx:       tx,
		handlers: make(map[EntityType]Handler),
	}
}

// Register binds the Handler for an entity type, replacing any previous one.
func (svc *Service) Register(typ EntityType, h Handler) {
	svc.mu.Lock()
	svc.handlers[typ] = h
	svc.mu.Unlock()
}

func (svc *Service) handler(typ EntityType) (Handler, error) {
	svc.mu.RLock()
	defer svc.mu.RUnlock()
	h, ok := svc.handlers[typ]
	if !ok {
		return nil, core.NewFieldError("entityType", "unknown entity type: "+string(typ))
	}
	return h, nil
}

func (svc *Service) SoftDelete(ctx context.Context, e Entry) (Item, error) {
	data, err := json.Marshal(e.Snapshot)
	if err != nil {
		return Item{}, errors.Wrap(err, "encoding snapshot")
	}
	now := core.NowFunc()
	return svc.repo.CreateItem(ctx, Item{
		EntityType:        e.EntityType,
		EntityID:          e.EntityID,
		EntityData:        data,
		EntityName:        e.EntityName,
		DeletedBy:         e.DeletedBy,
		DeletedAt:         now,
		PermanentDeleteAt: now.Add(Retention),
	})
}

// Trash soft-deletes any registered entity through its handler.
func (svc *Service) Trash(ctx context.Context, typ EntityType, entityID, deletedBy string) error {
	h, err := svc.handler(typ)
	if err != nil {
		return err
	}
	return h.Trash(ctx, entityID, deletedBy)
}

func (svc *Service) List(ctx context.Context, filter ListFilter) ([]Item, error) {
	return svc.repo.ListItems(ctx, filter)
}

func (svc *Service) Get(ctx context.Context, id string) (Item, error) {
	return svc.repo.GetItem(ctx, id)
}

// Restore re-creates the entity from its snapshot, then drops the bin row.
func (svc *Service) Restore(ctx context.Context, id string) (Item, error) {
	var it Item
	err := svc.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		if it, err = svc.repo.GetItem(ctx, id); err != nil {
			return err
		}
		h, err := svc.handler(it.EntityType)
		if err != nil {
			return err
		}
		if err = h.Restore(ctx, it); err != nil {
			return err
		}
		return svc.repo.DeleteItem(ctx, it.ID)
	})
	return it, err
}

// Purge permanently removes one item.
func (svc *Service) Purge(ctx context.Context, id string) error {
	if _, err := svc.repo.GetItem(ctx, id); err != nil {
		return err
	}
	return svc.repo.DeleteItem(ctx, id)
}

// PurgeExpired removes the items whose permanentDeleteAt is at or before now.
func (svc *Service) PurgeExpired(ctx context.Context, now time.Time) (int, error) {
	n, err := svc.repo.DeleteExpired(ctx, now)
	return n, errors.Wrap(err, "purging expired items")
}
