package inmemdb

import (
	"context"

	"github.com/samber/lo"

	"github.com/trezcool/registrar/core"
	"github.com/trezcool/registrar/core/payment"
)

type paymentRepository struct {
	db *DB
}

var _ payment.Repository = (*paymentRepository)(nil) // interface compliance check

func NewPaymentRepository(db *DB) *paymentRepository {
	return &paymentRepository{db: db}
}

func (repo *paymentRepository) CreatePayment(_ context.Context, p payment.Payment) (payment.Payment, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.t.students[p.StudentID]; !ok {
		return payment.Payment{}, payment.ErrNotFound
	}
	if _, ok := repo.db.t.years[p.AcademicYearID]; !ok {
		return payment.Payment{}, payment.ErrNotFound
	}
	p.ID = newID(p.ID)
	p.LineItems = lo.Map(p.LineItems, func(li payment.LineItem, _ int) payment.LineItem {
		li.ID = newID(li.ID)
		li.PaymentID = p.ID
		return li
	})
	p.Refunds = []payment.Refund{}
	repo.db.t.payments[p.ID] = p
	return p, nil
}

func (repo *paymentRepository) GetPayment(_ context.Context, id string) (payment.Payment, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if p, ok := repo.db.t.payments[id]; ok {
		return p, nil
	}
	return payment.Payment{}, payment.ErrNotFound
}

func (repo *paymentRepository) ListPayments(_ context.Context, studentID, yearID string) ([]payment.Payment, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	payments := lo.Filter(lo.Values(repo.db.t.payments), func(p payment.Payment, _ int) bool {
		return p.StudentID == studentID && p.AcademicYearID == yearID
	})
	sortBy(payments, nil, comparators[payment.Payment]{
		"paymentDate": func(a, b payment.Payment) int { return compareTime(a.PaymentDate.Time, b.PaymentDate.Time) },
		"createdAt":   func(a, b payment.Payment) int { return compareTime(a.CreatedAt, b.CreatedAt) },
	}, core.DBOrdering{Field: "paymentDate", Ascending: true}, core.DBOrdering{Field: "createdAt", Ascending: true})
	return payments, nil
}

func (repo *paymentRepository) CreateRefund(_ context.Context, r payment.Refund) (payment.Refund, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	p, ok := repo.db.t.payments[r.PaymentID]
	if !ok {
		return payment.Refund{}, payment.ErrNotFound
	}
	for _, other := range repo.db.t.payments {
		if lo.ContainsBy(other.Refunds, func(o payment.Refund) bool { return o.RefundID == r.RefundID }) {
			return payment.Refund{}, core.NewConflictError("refund %s already exists", r.RefundID)
		}
	}
	r.ID = newID(r.ID)
	p.Refunds = append(append([]payment.Refund(nil), p.Refunds...), r)
	repo.db.t.payments[p.ID] = p
	return r, nil
}

func (repo *paymentRepository) UpdateRefundTotals(_ context.Context, p payment.Payment) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	stored, ok := repo.db.t.payments[p.ID]
	if !ok {
		return payment.ErrNotFound
	}
	stored.IsRefunded = p.IsRefunded
	stored.RefundAmount = p.RefundAmount
	stored.RefundDate = p.RefundDate
	stored.RefundReason = p.RefundReason
	stored.RefundedBy = p.RefundedBy
	repo.db.t.payments[p.ID] = stored
	return nil
}

func (repo *paymentRepository) CreateAdjustment(_ context.Context, a payment.Adjustment) (payment.Adjustment, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.t.students[a.StudentID]; !ok {
		return payment.Adjustment{}, payment.ErrNotFound
	}
	if !a.Amount.IsPositive() {
		return payment.Adjustment{}, core.NewFieldError("amount", "amount must be greater than 0")
	}
	a.ID = newID(a.ID)
	repo.db.t.adjustments[a.ID] = a
	return a, nil
}

func (repo *paymentRepository) ListAdjustments(_ context.Context, studentID, yearID string) ([]payment.Adjustment, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	adjs := lo.Filter(lo.Values(repo.db.t.adjustments), func(a payment.Adjustment, _ int) bool {
		return a.StudentID == studentID && a.AcademicYearID == yearID
	})
	sortBy(adjs, nil, comparators[payment.Adjustment]{
		"createdAt": func(a, b payment.Adjustment) int { return compareTime(a.CreatedAt, b.CreatedAt) },
	}, core.DBOrdering{Field: "createdAt", Ascending: true})
	return adjs, nil
}
