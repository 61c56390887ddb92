package sqlxrepos

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/registrar/core/recyclebin"
	"github.com/trezcool/registrar/storage/database"
)

const binColumns = `id, entity_type, entity_id, entity_data, entity_name, deleted_by, deleted_at, permanent_delete_at`

type binRepository struct {
	db *sqlx.DB
}

var _ recyclebin.Repository = (*binRepository)(nil)

func NewRecycleBinRepository(db *sqlx.DB) *binRepository {
	return &binRepository{db: db}
}

func (repo binRepository) CreateItem(ctx context.Context, it recyclebin.Item) (recyclebin.Item, error) {
	it.ID = newID(it.ID)
	_, err := database.Executor(ctx, repo.db).ExecContext(ctx,
		`INSERT INTO recycle_bin (`+binColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		it.ID, it.EntityType, []byte(it.EntityData), it.EntityName, it.DeletedBy, it.DeletedAt, it.PermanentDeleteAt)
	if err != nil {
		return recyclebin.Item{}, database.TrapErr(err, recyclebin.ErrNotFound, "inserting recycle bin item")
	}
	return it, nil
}

func (repo binRepository) GetItem(ctx context.Context, id string) (recyclebin.Item, error) {
	var it recyclebin.Item
	if !validID(id) {
		return it, recyclebin.ErrNotFound
	}
	err := database.Executor(ctx, repo.db).GetContext(ctx, &it, `SELECT `+binColumns+` FROM recycle_bin WHERE id = $1`, id)
	return it, database.TrapErr(err, recyclebin.ErrNotFound, "getting recycle bin item")
}

func (repo binRepository) ListItems(ctx context.Context, filter recyclebin.ListFilter) ([]recyclebin.Item, error) {
	var args []interface{}
	q := `SELECT ` + binColumns + ` FROM recycle_bin WHERE TRUE`
	if filter.EntityType != "" {
		args = append(args, filter.EntityType)
		q += fmt.Sprintf(" AND entity_type = $%d", len(args))
	}
	if filter.Search != "" {
		args = append(args, "%"+filter.Search+"%")
		q += fmt.Sprintf(" AND entity_name ILIKE $%d", len(args))
	}
	q += ` ORDER BY deleted_at DESC`

	items := []recyclebin.Item{}
	err := database.Executor(ctx, repo.db).SelectContext(ctx, &items, q, args...)
	return items, errors.Wrap(err, "listing recycle bin")
}

func (repo binRepository) DeleteItem(ctx context.Context, id string) error {
	res, err := database.Executor(ctx, repo.db).ExecContext(ctx, `DELETE FROM recycle_bin WHERE id = $1`, id)
	if err != nil {
		return database.TrapErr(err, recyclebin.ErrNotFound, "deleting recycle bin item")
	}
	return mustAffect(res, recyclebin.ErrNotFound)
}

func (repo binRepository) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	res, err := database.Executor(ctx, repo.db).ExecContext(ctx, `DELETE FROM recycle_bin WHERE permanent_delete_at <= $1`, now)
	if err != nil {
		return 0, errors.Wrap(err, "purging recycle bin")
	}
	return affected(res)
}
