// Package sqlxrepos implements the domain repositories on PostgreSQL with sqlx.
package sqlxrepos

import (
	"database/sql"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/pkg/errors"
)

func newID(id string) string {
	if id != "" {
		return id
	}
	return uuid.New().String()
}

func affected(res sql.Result) (int, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "reading affected rows")
	}
	return int(n), nil
}

// mustAffect returns notFound when the statement touched no row.
func mustAffect(res sql.Result, notFound error) error {
	n, err := affected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound
	}
	return nil
}

// validID filters out ids postgres would reject as malformed uuids.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// idArray renders ids as a postgres array; an empty list is '{}', never NULL.
func idArray(ids []string) interface{} {
	if ids == nil {
		ids = []string{}
	}
	return pq.Array(ids)
}
