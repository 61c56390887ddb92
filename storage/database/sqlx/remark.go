package sqlxrepos

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/registrar/core/remark"
	"github.com/trezcool/registrar/storage/database"
)

type remarkRepository struct {
	db *sqlx.DB
}

var _ remark.Repository = (*remarkRepository)(nil)

func NewRemarkRepository(db *sqlx.DB) *remarkRepository {
	return &remarkRepository{db: db}
}

func (repo remarkRepository) CreateRemark(ctx context.Context, r remark.Remark) (remark.Remark, error) {
	r.ID = newID(r.ID)
	_, err := database.Executor(ctx, repo.db).ExecContext(ctx,
		`INSERT INTO custom_remarks (id, label, is_active, created_at) VALUES ($1, $2, $3, $4)`,
		r.ID, r.Label, r.IsActive, r.CreatedAt)
	if err != nil {
		return remark.Remark{}, database.TrapErr(err, remark.ErrNotFound, "inserting remark")
	}
	return r, nil
}

func (repo remarkRepository) GetRemark(ctx context.Context, id string) (remark.Remark, error) {
	var r remark.Remark
	if !validID(id) {
		return r, remark.ErrNotFound
	}
	err := database.Executor(ctx, repo.db).GetContext(ctx, &r,
		`SELECT id, label, is_active, created_at FROM custom_remarks WHERE id = $1`, id)
	return r, database.TrapErr(err, remark.ErrNotFound, "getting remark")
}

func (repo remarkRepository) ListRemarks(ctx context.Context, activeOnly bool) ([]remark.Remark, error) {
	q := `SELECT id, label, is_active, created_at FROM custom_remarks`
	if activeOnly {
		q += ` WHERE is_active`
	}
	q += ` ORDER BY label`
	rs := []remark.Remark{}
	err := database.Executor(ctx, repo.db).SelectContext(ctx, &rs, q)
	return rs, errors.Wrap(err, "listing remarks")
}

func (repo remarkRepository) LabelExists(ctx context.Context, label string) (bool, error) {
	var exists bool
	err := database.Executor(ctx, repo.db).GetContext(ctx, &exists,
		`SELECT EXISTS (SELECT 1 FROM custom_remarks WHERE lower(label) = lower($1))`, label)
	return exists, errors.Wrap(err, "checking remark label")
}

func (repo remarkRepository) DeleteRemark(ctx context.Context, id string) error {
	res, err := database.Executor(ctx, repo.db).ExecContext(ctx, `DELETE FROM custom_remarks WHERE id = $1`, id)
	if err != nil {
		return database.TrapErr(err, remark.ErrNotFound, "deleting remark")
	}
	return mustAffect(res, remark.ErrNotFound)
}
