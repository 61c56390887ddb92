package database

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/trezcool/registrar/core"
)

type txKey struct{}

// Transactor runs functions in a transaction carried by the context.
type Transactor struct {
	db *sqlx.DB
}

var _ core.Transactor = (*Transactor)(nil)

func NewTransactor(db *sqlx.DB) *Transactor {
	return &Transactor{db: db}
}

func (t *Transactor) WithinTx(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if _, ok := ctx.Value(txKey{}).(*sqlx.Tx); ok {
		return fn(ctx)
	}

	tx, err := t.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "beginning transaction")
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	txCtx, afterCommit := core.WithAfterCommit(context.WithValue(ctx, txKey{}, tx))
	if err = fn(txCtx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && rbErr != sql.ErrTxDone {
			// the connection state is unknown: stop serving
			return core.NewShutdownError("rolling back transaction: " + rbErr.Error() + " (after: " + err.Error() + ")")
		}
		return err
	}
	if err = tx.Commit(); err != nil {
		return errors.Wrap(err, "committing transaction")
	}
	afterCommit()
	return nil
}

// Executor returns the transaction carried by ctx, or db outside of one.
func Executor(ctx context.Context, db *sqlx.DB) DBExecutor {
	if tx, ok := ctx.Value(txKey{}).(*sqlx.Tx); ok {
		return tx
	}
	return db
}

// TrapErr maps "no rows" to notFound and postgres constraint violations to domain errors.
func TrapErr(err error, notFound error, msg string) error {
	if err == nil {
		return nil
	}
	cause := errors.Cause(err)
	if cause == sql.ErrNoRows {
		return notFound
	}
	if pqErr, ok := cause.(*pq.Error); ok {
		switch pqErr.Code {
		case "23505": // unique_violation
			return core.NewConflictError("%s: %s", msg, pqErr.Detail)
		case "23503": // foreign_key_violation
			if notFound == nil {
				notFound = core.NewNotFoundError("referenced entity", "")
			}
			return notFound
		case "22P02": // invalid_text_representation, e.g. a malformed uuid
			if notFound != nil {
				return notFound
			}
		}
	}
	return errors.Wrap(err, msg)
}
