// Package boiledrepos implements the fee-status read model with sqlboiler raw queries.
package boiledrepos

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/volatiletech/null/v8"
	"github.com/volatiletech/sqlboiler/v4/queries"

	"github.com/trezcool/registrar/core"
	"github.com/trezcool/registrar/core/ledger"
	"github.com/trezcool/registrar/storage/database"
)

const (
	feeStatusColumns = `student_id, academic_year_id, base_fee, total_adjustments, total_due, total_paid, balance,
		payment_status, is_late_payment, last_payment_date, updated_at`

	// the student's grade for the year comes from the enrollment, else from the student
	sourcesQuery = `
		SELECT
			COALESCE((
				SELECT t.total_amount FROM fee_templates t
				WHERE t.academic_year_id = $2 AND t.grade_level = COALESCE(
					(SELECT e.grade_level FROM enrollments e WHERE e.student_id = $1 AND e.academic_year_id = $2),
					(SELECT s.grade_level FROM students s WHERE s.id = $1))
			), 0) AS base_fee,
			COALESCE((
				SELECT SUM(p.amount_paid - p.refund_amount) FROM payments p
				WHERE p.student_id = $1 AND p.academic_year_id = $2
			), 0) AS net_paid,
			COALESCE((
				SELECT SUM(a.amount) FROM payment_adjustments a
				WHERE a.student_id = $1 AND a.academic_year_id = $2 AND a.type = 'ADDITIONAL'
			), 0) AS additional,
			COALESCE((
				SELECT SUM(a.amount) FROM payment_adjustments a
				WHERE a.student_id = $1 AND a.academic_year_id = $2 AND a.type = 'DISCOUNT'
			), 0) AS discount,
			(
				SELECT MAX(p.payment_date) FROM payments p
				WHERE p.student_id = $1 AND p.academic_year_id = $2
			) AS last_payment_date`

	summaryQuery = `
		SELECT payment_status, COUNT(*) AS students,
			COALESCE(SUM(CASE WHEN is_late_payment THEN 1 ELSE 0 END), 0) AS late_payments,
			COALESCE(SUM(total_due), 0) AS total_due,
			COALESCE(SUM(total_paid), 0) AS total_paid,
			COALESCE(SUM(balance), 0) AS total_balance
		FROM student_fee_status
		WHERE academic_year_id = $1
		GROUP BY payment_status`
)

type sourcesRow struct {
	BaseFee         decimal.Decimal `boil:"base_fee"`
	NetPaid         decimal.Decimal `boil:"net_paid"`
	Additional      decimal.Decimal `boil:"additional"`
	Discount        decimal.Decimal `boil:"discount"`
	LastPaymentDate null.Time       `boil:"last_payment_date"`
}

type feeStatusRow struct {
	StudentID        string          `boil:"student_id"`
	AcademicYearID   string          `boil:"academic_year_id"`
	BaseFee          decimal.Decimal `boil:"base_fee"`
	TotalAdjustments decimal.Decimal `boil:"total_adjustments"`
	TotalDue         decimal.Decimal `boil:"total_due"`
	TotalPaid        decimal.Decimal `boil:"total_paid"`
	Balance          decimal.Decimal `boil:"balance"`
	PaymentStatus    string          `boil:"payment_status"`
	IsLatePayment    bool            `boil:"is_late_payment"`
	LastPaymentDate  null.Time       `boil:"last_payment_date"`
	UpdatedAt        time.Time       `boil:"updated_at"`
}

type summaryRow struct {
	PaymentStatus string          `boil:"payment_status"`
	Students      int             `boil:"students"`
	LatePayments  int             `boil:"late_payments"`
	TotalDue      decimal.Decimal `boil:"total_due"`
	TotalPaid     decimal.Decimal `boil:"total_paid"`
	TotalBalance  decimal.Decimal `boil:"total_balance"`
}

func datePtr(t null.Time) *core.Date {
	if !t.Valid {
		return nil
	}
	d := core.NewDate(t.Time)
	return &d
}

func nullDate(d *core.Date) null.Time {
	if d == nil || d.IsZero() {
		return null.Time{}
	}
	return null.TimeFrom(d.Time)
}

func (row feeStatusRow) unboil() ledger.FeeStatus {
	return ledger.FeeStatus{
		StudentID:        row.StudentID,
		AcademicYearID:   row.AcademicYearID,
		BaseFee:          row.BaseFee,
		TotalAdjustments: row.TotalAdjustments,
		TotalDue:         row.TotalDue,
		TotalPaid:        row.TotalPaid,
		Balance:          row.Balance,
		PaymentStatus:    ledger.PaymentStatus(row.PaymentStatus),
		IsLatePayment:    row.IsLatePayment,
		LastPaymentDate:  datePtr(row.LastPaymentDate),
		UpdatedAt:        row.UpdatedAt,
	}
}

type ledgerRepository struct {
	db *sqlx.DB
}

var _ ledger.Repository = (*ledgerRepository)(nil) // interface compliance check

func NewLedgerRepository(db *sqlx.DB) *ledgerRepository {
	return &ledgerRepository{db: db}
}

func (repo ledgerRepository) LoadSources(ctx context.Context, studentID, yearID string) (ledger.Sources, error) {
	var row sourcesRow
	if err := queries.Raw(sourcesQuery, studentID, yearID).Bind(ctx, database.Executor(ctx, repo.db), &row); err != nil {
		return ledger.Sources{}, errors.Wrap(err, "loading ledger sources")
	}
	return ledger.Sources{
		BaseFee:         row.BaseFee,
		NetPaid:         row.NetPaid,
		Additional:      row.Additional,
		Discount:        row.Discount,
		LastPaymentDate: datePtr(row.LastPaymentDate),
	}, nil
}

func (repo ledgerRepository) GetFeeStatus(ctx context.Context, studentID, yearID string) (ledger.FeeStatus, error) {
	var row feeStatusRow
	err := queries.Raw(
		`SELECT `+feeStatusColumns+` FROM student_fee_status WHERE student_id::text = $1 AND academic_year_id::text = $2`,
		studentID, yearID,
	).Bind(ctx, database.Executor(ctx, repo.db), &row)
	if err != nil {
		return ledger.FeeStatus{}, database.TrapErr(err, ledger.ErrNotFound, "getting fee status")
	}
	return row.unboil(), nil
}

func (repo ledgerRepository) UpsertFeeStatus(ctx context.Context, fs ledger.FeeStatus) (ledger.FeeStatus, error) {
	var row feeStatusRow
	err := queries.Raw(`
		INSERT INTO student_fee_status (`+feeStatusColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (student_id, academic_year_id) DO UPDATE SET
			base_fee = EXCLUDED.base_fee, total_adjustments = EXCLUDED.total_adjustments,
			total_due = EXCLUDED.total_due, total_paid = EXCLUDED.total_paid, balance = EXCLUDED.balance,
			payment_status = EXCLUDED.payment_status, is_late_payment = EXCLUDED.is_late_payment,
			last_payment_date = EXCLUDED.last_payment_date, updated_at = EXCLUDED.updated_at
		RETURNING `+feeStatusColumns,
		fs.StudentID, fs.AcademicYearID, fs.BaseFee, fs.TotalAdjustments, fs.TotalDue, fs.TotalPaid, fs.Balance,
		string(fs.PaymentStatus), fs.IsLatePayment, nullDate(fs.LastPaymentDate), fs.UpdatedAt.UTC(),
	).Bind(ctx, database.Executor(ctx, repo.db), &row)
	if err != nil {
		return ledger.FeeStatus{}, database.TrapErr(err, ledger.ErrNotFound, "saving fee status")
	}
	return row.unboil(), nil
}

func (repo ledgerRepository) Summarize(ctx context.Context, yearID string) (ledger.Summary, error) {
	var rows []*summaryRow
	if err := queries.Raw(summaryQuery, yearID).Bind(ctx, database.Executor(ctx, repo.db), &rows); err != nil {
		return ledger.Summary{}, errors.Wrap(err, "summarizing fee statuses")
	}

	sum := ledger.NewSummary(yearID)
	for _, row := range rows {
		sum.Students += row.Students
		sum.Counts[ledger.PaymentStatus(row.PaymentStatus)] += row.Students
		sum.LatePayments += row.LatePayments
		sum.TotalDue = sum.TotalDue.Add(row.TotalDue)
		sum.TotalPaid = sum.TotalPaid.Add(row.TotalPaid)
		sum.TotalBalance = sum.TotalBalance.Add(row.TotalBalance)
	}
	return sum, nil
}
