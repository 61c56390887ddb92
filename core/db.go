package core

import (
	"context"
	"strings"
)

// Transactor runs fn inside a single database transaction. Repositories called with the
// ctx handed to fn take part in that transaction.
// Nested calls reuse the outer transaction.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type afterCommitKey struct{}

// WithAfterCommit returns a ctx collecting the hooks given to AfterCommit, and the function
// that runs them. Transactors call it once the transaction has committed.
func WithAfterCommit(ctx context.Context) (context.Context, func()) {
	hooks := new([]func())
	run := func() {
		for _, fn := range *hooks {
			fn()
		}
	}
	return context.WithValue(ctx, afterCommitKey{}, hooks), run
}

// AfterCommit holds fn back until the transaction carried by ctx commits; it is dropped on rollback.
// Outside a transaction fn runs right away.
func AfterCommit(ctx context.Context, fn func()) {
	if hooks, ok := ctx.Value(afterCommitKey{}).(*[]func()); ok {
		*hooks = append(*hooks, fn)
		return
	}
	fn()
}

type DBOrdering struct {
	Field     string
	Ascending bool
}

func (ord DBOrdering) String() string {
	direction := "DESC"
	if ord.Ascending {
		direction = "ASC"
	}
	return ord.Field + " " + direction
}

// OrderBy renders orderings restricted to the allowed columns ({jsonField: column}).
// Unknown fields are dropped; fallback is used when nothing is left.
func OrderBy(orderings []DBOrdering, allowed map[string]string, fallback string) string {
	list := make([]string, 0, len(orderings))
	for _, ord := range orderings {
		col, ok := allowed[ord.Field]
		if !ok {
			continue
		}
		list = append(list, DBOrdering{Field: col, Ascending: ord.Ascending}.String())
	}
	if len(list) == 0 {
		return fallback
	}
	return strings.Join(list, ", ")
}

// Page is a 1-based page request.
type Page struct {
	Page  int `query:"page"`
	Limit int `query:"limit"`
}

const (
	defaultPageLimit = 50
	maxPageLimit     = 500
)

func (p Page) Clean() Page {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.Limit < 1 {
		p.Limit = defaultPageLimit
	}
	if p.Limit > maxPageLimit {
		p.Limit = maxPageLimit
	}
	return p
}

func (p Page) Offset() int {
	p = p.Clean()
	return (p.Page - 1) * p.Limit
}
