// Package inmemdb keeps every repository in process memory. It backs the tests and the
// demo mode of the API.
package inmemdb

import (
	"context"
	"maps"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/trezcool/registrar/core"
	"github.com/trezcool/registrar/core/academicyear"
	"github.com/trezcool/registrar/core/enrollment"
	"github.com/trezcool/registrar/core/fee"
	"github.com/trezcool/registrar/core/ledger"
	"github.com/trezcool/registrar/core/notification"
	"github.com/trezcool/registrar/core/payment"
	"github.com/trezcool/registrar/core/recyclebin"
	"github.com/trezcool/registrar/core/remark"
	"github.com/trezcool/registrar/core/section"
	"github.com/trezcool/registrar/core/student"
	"github.com/trezcool/registrar/core/user"
)

type (
	statusKey struct {
		studentID string
		yearID    string
	}

	// tables hold values, never pointers; slices inside values are replaced, not mutated,
	// so a shallow copy of the maps is a consistent snapshot.
	tables struct {
		users         map[string]user.User
		years         map[string]academicyear.AcademicYear
		sections      map[string]section.Section
		students      map[string]student.Student
		enrollments   map[string]enrollment.Enrollment
		templates     map[string]fee.Template
		optionalFees  map[string]fee.OptionalFee
		studentFees   map[string]fee.StudentOptionalFee
		payments      map[string]payment.Payment
		adjustments   map[string]payment.Adjustment
		feeStatuses   map[statusKey]ledger.FeeStatus
		notifications map[string]notification.Notification
		remarks       map[string]remark.Remark
		bin           map[string]recyclebin.Item
	}

	DB struct {
		mu sync.RWMutex
		t  tables

		// serializes transactions
		txMu sync.Mutex
	}
)

func Open() *DB {
	return &DB{t: tables{
		users:         make(map[string]user.User),
		years:         make(map[string]academicyear.AcademicYear),
		sections:      make(map[string]section.Section),
		students:      make(map[string]student.Student),
		enrollments:   make(map[string]enrollment.Enrollment),
		templates:     make(map[string]fee.Template),
		optionalFees:  make(map[string]fee.OptionalFee),
		studentFees:   make(map[string]fee.StudentOptionalFee),
		payments:      make(map[string]payment.Payment),
		adjustments:   make(map[string]payment.Adjustment),
		feeStatuses:   make(map[statusKey]ledger.FeeStatus),
		notifications: make(map[string]notification.Notification),
		remarks:       make(map[string]remark.Remark),
		bin:           make(map[string]recyclebin.Item),
	}}
}

func (t tables) clone() tables {
	return tables{
		users:         maps.Clone(t.users),
		years:         maps.Clone(t.years),
		sections:      maps.Clone(t.sections),
		students:      maps.Clone(t.students),
		enrollments:   maps.Clone(t.enrollments),
		templates:     maps.Clone(t.templates),
		optionalFees:  maps.Clone(t.optionalFees),
		studentFees:   maps.Clone(t.studentFees),
		payments:      maps.Clone(t.payments),
		adjustments:   maps.Clone(t.adjustments),
		feeStatuses:   maps.Clone(t.feeStatuses),
		notifications: maps.Clone(t.notifications),
		remarks:       maps.Clone(t.remarks),
		bin:           maps.Clone(t.bin),
	}
}

// Reset empties every table.
func (db *DB) Reset() {
	fresh := Open()
	db.mu.Lock()
	db.t = fresh.t
	db.mu.Unlock()
}

type txKey struct{}

// Transactor snapshots the tables and puts them back when fn fails.
type Transactor struct {
	db *DB
}

var _ core.Transactor = (*Transactor)(nil)

func NewTransactor(db *DB) *Transactor {
	return &Transactor{db: db}
}

func (tx *Transactor) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(txKey{}) != nil {
		return fn(ctx)
	}

	txCtx, afterCommit := core.WithAfterCommit(context.WithValue(ctx, txKey{}, true))
	if err := tx.run(txCtx, fn); err != nil {
		return err
	}
	afterCommit()
	return nil
}

func (tx *Transactor) run(ctx context.Context, fn func(ctx context.Context) error) error {
	tx.db.txMu.Lock()
	defer tx.db.txMu.Unlock()

	tx.db.mu.RLock()
	saved := tx.db.t.clone()
	tx.db.mu.RUnlock()
	rollback := func() {
		tx.db.mu.Lock()
		tx.db.t = saved
		tx.db.mu.Unlock()
	}
	defer func() {
		if p := recover(); p != nil {
			rollback()
			panic(p)
		}
	}()

	if err := fn(ctx); err != nil {
		rollback()
		return err
	}
	return nil
}

func newID(id string) string {
	if id != "" {
		return id
	}
	return uuid.New().String()
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

func compareBool(a, b bool) int {
	switch {
	case a == b:
		return 0
	case a:
		return 1
	}
	return -1
}

func compareTime(a, b time.Time) int {
	return a.Compare(b)
}

func gradeIndex(grade string) int {
	return lo.IndexOf(enrollment.GradeLevels, grade)
}

// comparators maps an ordering field to a three-way comparison.
type comparators[T any] map[string]func(a, b T) int

// sortBy orders items by the known orderings, or by fallback when none is known.
func sortBy[T any](items []T, orderings []core.DBOrdering, cmps comparators[T], fallback ...core.DBOrdering) {
	ords := lo.Filter(orderings, func(o core.DBOrdering, _ int) bool {
		_, ok := cmps[o.Field]
		return ok
	})
	if len(ords) == 0 {
		ords = fallback
	}
	sort.SliceStable(items, func(i, j int) bool {
		for _, o := range ords {
			c := cmps[o.Field](items[i], items[j])
			if c == 0 {
				continue
			}
			if o.Ascending {
				return c < 0
			}
			return c > 0
		}
		return false
	})
}
