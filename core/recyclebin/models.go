// Package recyclebin keeps JSON snapshots of soft-deleted entities until they expire.
package recyclebin

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/registrar/core"
)

type EntityType string

const (
	EntityStudent      EntityType = "STUDENT"
	EntitySection      EntityType = "SECTION"
	EntityFeeTemplate  EntityType = "FEE_TEMPLATE"
	EntityAcademicYear EntityType = "ACADEMIC_YEAR"
	EntityCustomRemark EntityType = "CUSTOM_REMARK"

	// Retention is how long an item stays restorable.
	Retention = 30 * 24 * time.Hour
)

var (
	EntityTypes = []EntityType{EntityStudent, EntitySection, EntityFeeTemplate, EntityAcademicYear, EntityCustomRemark}

	ErrNotFound = core.NewNotFoundError("recycle bin item", "")
)

type Item struct {
	ID                string          `json:"id" db:"id"`
	EntityType        EntityType      `json:"entityType" db:"entity_type"`
	EntityID          string          `json:"entityId" db:"entity_id"`
	EntityData        json.RawMessage `json:"entityData" db:"entity_data"`
	EntityName        string          `json:"entityName" db:"entity_name"`
	DeletedBy         string          `json:"deletedBy" db:"deleted_by"`
	DeletedAt         time.Time       `json:"deletedAt" db:"deleted_at"`
	PermanentDeleteAt time.Time       `json:"permanentDeleteAt" db:"permanent_delete_at"`
}

// Decode unmarshals the stored snapshot into v.
func (it Item) Decode(v interface{}) error {
	return errors.Wrapf(json.Unmarshal(it.EntityData, v), "decoding %s snapshot", it.EntityType)
}

func (it Item) Expired(now time.Time) bool {
	return !it.PermanentDeleteAt.After(now)
}

// Entry describes an entity about to be soft-deleted.
type Entry struct {
	EntityType EntityType
	EntityID   string
	EntityName string
	DeletedBy  string
	Snapshot   interface{}
}

type ListFilter struct {
	EntityType EntityType `query:"entityType"`
	Search     string     `query:"search"`
}

func (f *ListFilter) Clean() {
	f.Search = core.CleanString(f.Search)
	f.EntityType = EntityType(core.CleanString(string(f.EntityType)))
}

type Repository interface {
	CreateItem(ctx context.Context, it Item) (Item, error)
	GetItem(ctx context.Context, id string) (Item, error)
	// ListItems returns the items newest first.
	ListItems(ctx context.Context, filter ListFilter) ([]Item, error)
	DeleteItem(ctx context.Context, id string) error
	// DeleteExpired removes every item whose permanentDeleteAt is at or before now.
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
}

// SoftDeleter is what domain services need to put an entity in the bin.
type SoftDeleter interface {
	SoftDelete(ctx context.Context, e Entry) (Item, error)
}

// Handler trashes and restores one entity type.
type Handler interface {
	Trash(ctx context.Context, entityID, deletedBy string) error
	Restore(ctx context.Context, it Item) error
}

type HandlerFuncs struct {
	TrashFunc   func(ctx context.Context, entityID, deletedBy string) error
	RestoreFunc func(ctx context.Context, it Item) error
}

func (h HandlerFuncs) Trash(ctx context.Context, entityID, deletedBy string) error {
	return h.TrashFunc(ctx, entityID, deletedBy)
}

func (h HandlerFuncs) Restore(ctx context.Context, it Item) error {
	return h.RestoreFunc(ctx, it)
}
