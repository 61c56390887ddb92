package sqlxrepos

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/samber/lo"

	"github.com/trezcool/registrar/core/payment"
	"github.com/trezcool/registrar/storage/database"
)

const (
	paymentColumns = `id, student_id, academic_year_id, amount_paid, payment_date, payment_method, reference_number,
		receipt_number, remarks, recorded_by, created_at, is_refunded, refund_amount, refund_date, refund_reason, refunded_by`
	lineItemColumns   = `id, payment_id, fee_breakdown_id, description, amount`
	refundColumns     = `id, refund_id, payment_id, amount, reason, refund_method, refunded_by, refund_date`
	adjustmentColumns = `id, student_id, academic_year_id, type, amount, reason, created_by, created_at`
)

type paymentRepository struct {
	db *sqlx.DB
}

var _ payment.Repository = (*paymentRepository)(nil)

func NewPaymentRepository(db *sqlx.DB) *paymentRepository {
	return &paymentRepository{db: db}
}

func (repo paymentRepository) CreatePayment(ctx context.Context, p payment.Payment) (payment.Payment, error) {
	exec := database.Executor(ctx, repo.db)
	p.ID = newID(p.ID)
	_, err := exec.ExecContext(ctx,
		`INSERT INTO payments (`+paymentColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		p.ID, p.StudentID, p.AcademicYearID, p.AmountPaid, p.PaymentDate, p.PaymentMethod, p.ReferenceNumber,
		p.ReceiptNumber, p.Remarks, p.RecordedBy, p.CreatedAt, p.IsRefunded, p.RefundAmount, p.RefundDate,
		p.RefundReason, p.RefundedBy)
	if err != nil {
		return payment.Payment{}, database.TrapErr(err, payment.ErrNotFound, "inserting payment")
	}

	for i := range p.LineItems {
		li := &p.LineItems[i]
		li.ID = newID(li.ID)
		li.PaymentID = p.ID
		if _, err = exec.ExecContext(ctx,
			`INSERT INTO payment_line_items (`+lineItemColumns+`) VALUES ($1, $2, $3, $4, $5)`,
			li.ID, li.PaymentID, li.FeeBreakdownID, li.Description, li.Amount); err != nil {
			return payment.Payment{}, errors.Wrap(err, "inserting payment line item")
		}
	}
	if p.LineItems == nil {
		p.LineItems = []payment.LineItem{}
	}
	if p.Refunds == nil {
		p.Refunds = []payment.Refund{}
	}
	return p, nil
}

// loadChildren fills the line items and refunds of the payments.
func (repo paymentRepository) loadChildren(ctx context.Context, payments []payment.Payment) error {
	if len(payments) == 0 {
		return nil
	}
	exec := database.Executor(ctx, repo.db)
	ids := lo.Map(payments, func(p payment.Payment, _ int) string { return p.ID })

	var items []payment.LineItem
	if err := exec.SelectContext(ctx, &items,
		`SELECT `+lineItemColumns+` FROM payment_line_items WHERE payment_id::text = ANY($1)`, idArray(ids)); err != nil {
		return errors.Wrap(err, "loading payment line items")
	}
	var refunds []payment.Refund
	if err := exec.SelectContext(ctx, &refunds,
		`SELECT `+refundColumns+` FROM refunds WHERE payment_id::text = ANY($1) ORDER BY refund_date`, idArray(ids)); err != nil {
		return errors.Wrap(err, "loading refunds")
	}

	itemsBy := lo.GroupBy(items, func(li payment.LineItem) string { return li.PaymentID })
	refundsBy := lo.GroupBy(refunds, func(r payment.Refund) string { return r.PaymentID })
	for i := range payments {
		payments[i].LineItems = append([]payment.LineItem{}, itemsBy[payments[i].ID]...)
		payments[i].Refunds = append([]payment.Refund{}, refundsBy[payments[i].ID]...)
	}
	return nil
}

func (repo paymentRepository) GetPayment(ctx context.Context, id string) (payment.Payment, error) {
	var p payment.Payment
	if !validID(id) {
		return p, payment.ErrNotFound
	}
	if err := database.Executor(ctx, repo.db).GetContext(ctx, &p,
		`SELECT `+paymentColumns+` FROM payments WHERE id = $1`, id); err != nil {
		return p, database.TrapErr(err, payment.ErrNotFound, "getting payment")
	}
	payments := []payment.Payment{p}
	if err := repo.loadChildren(ctx, payments); err != nil {
		return payment.Payment{}, err
	}
	return payments[0], nil
}

func (repo paymentRepository) ListPayments(ctx context.Context, studentID, yearID string) ([]payment.Payment, error) {
	payments := []payment.Payment{}
	if err := database.Executor(ctx, repo.db).SelectContext(ctx, &payments,
		`SELECT `+paymentColumns+` FROM payments WHERE student_id = $1 AND academic_year_id = $2
		ORDER BY payment_date, created_at`, studentID, yearID); err != nil {
		return nil, errors.Wrap(err, "listing payments")
	}
	return payments, repo.loadChildren(ctx, payments)
}

func (repo paymentRepository) CreateRefund(ctx context.Context, r payment.Refund) (payment.Refund, error) {
	r.ID = newID(r.ID)
	_, err := database.Executor(ctx, repo.db).ExecContext(ctx,
		`INSERT INTO refunds (`+refundColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		r.ID, r.RefundID, r.PaymentID, r.Amount, r.Reason, r.RefundMethod, r.RefundedBy, r.RefundDate)
	if err != nil {
		return payment.Refund{}, database.TrapErr(err, payment.ErrNotFound, "inserting refund")
	}
	return r, nil
}

func (repo paymentRepository) UpdateRefundTotals(ctx context.Context, p payment.Payment) error {
	res, err := database.Executor(ctx, repo.db).ExecContext(ctx,
		`UPDATE payments SET is_refunded = $2, refund_amount = $3, refund_date = $4, refund_reason = $5, refunded_by = $6
		WHERE id = $1`,
		p.ID, p.IsRefunded, p.RefundAmount, p.RefundDate, p.RefundReason, p.RefundedBy)
	if err != nil {
		return errors.Wrap(err, "updating refund totals")
	}
	return mustAffect(res, payment.ErrNotFound)
}

func (repo paymentRepository) CreateAdjustment(ctx context.Context, a payment.Adjustment) (payment.Adjustment, error) {
	a.ID = newID(a.ID)
	_, err := database.Executor(ctx, repo.db).ExecContext(ctx,
		`INSERT INTO payment_adjustments (`+adjustmentColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		a.ID, a.StudentID, a.AcademicYearID, a.Type, a.Amount, a.Reason, a.CreatedBy, a.CreatedAt)
	if err != nil {
		return payment.Adjustment{}, database.TrapErr(err, payment.ErrNotFound, "inserting adjustment")
	}
	return a, nil
}

func (repo paymentRepository) ListAdjustments(ctx context.Context, studentID, yearID string) ([]payment.Adjustment, error) {
	adjs := []payment.Adjustment{}
	err := database.Executor(ctx, repo.db).SelectContext(ctx, &adjs,
		`SELECT `+adjustmentColumns+` FROM payment_adjustments WHERE student_id = $1 AND academic_year_id = $2
		ORDER BY created_at`, studentID, yearID)
	return adjs, errors.Wrap(err, "listing adjustments")
}
