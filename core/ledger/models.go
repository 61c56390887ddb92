// Package ledger derives a student's fee status for a year from payments, refunds and adjustments.
package ledger

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/trezcool/registrar/core"
)

type PaymentStatus string

const (
	StatusUnpaid   PaymentStatus = "UNPAID"
	StatusPartial  PaymentStatus = "PARTIAL"
	StatusPaid     PaymentStatus = "PAID"
	StatusOverpaid PaymentStatus = "OVERPAID"
)

var (
	PaymentStatuses = []PaymentStatus{StatusUnpaid, StatusPartial, StatusPaid, StatusOverpaid}

	ErrNotFound = core.NewNotFoundError("fee status", "")
)

// FeeStatus is the materialized balance of a student for one academic year.
type FeeStatus struct {
	StudentID        string          `json:"studentId" db:"student_id"`
	AcademicYearID   string          `json:"academicYearId" db:"academic_year_id"`
	BaseFee          decimal.Decimal `json:"baseFee" db:"base_fee"`
	TotalAdjustments decimal.Decimal `json:"totalAdjustments" db:"total_adjustments"`
	TotalDue         decimal.Decimal `json:"totalDue" db:"total_due"`
	TotalPaid        decimal.Decimal `json:"totalPaid" db:"total_paid"`
	Balance          decimal.Decimal `json:"balance" db:"balance"`
	PaymentStatus    PaymentStatus   `json:"paymentStatus" db:"payment_status"`
	IsLatePayment    bool            `json:"isLatePayment" db:"is_late_payment"`
	LastPaymentDate  *core.Date      `json:"lastPaymentDate" db:"last_payment_date"`
	UpdatedAt        time.Time       `json:"updatedAt" db:"updated_at"`
}

// Sources are the source-of-truth figures a FeeStatus is computed from.
type Sources struct {
	// BaseFee is the total of the template matching the student's grade for the year, or 0.
	BaseFee decimal.Decimal
	// NetPaid is Σ(amountPaid − refundAmount) over the student's payments for the year.
	NetPaid         decimal.Decimal
	Additional      decimal.Decimal
	Discount        decimal.Decimal
	LastPaymentDate *core.Date
}

type Summary struct {
	AcademicYearID string                `json:"academicYearId"`
	Students       int                   `json:"students"`
	Counts         map[PaymentStatus]int `json:"counts"`
	LatePayments   int                   `json:"latePayments"`
	TotalDue       decimal.Decimal       `json:"totalDue"`
	TotalPaid      decimal.Decimal       `json:"totalPaid"`
	TotalBalance   decimal.Decimal       `json:"totalBalance"`
}

// NewSummary returns an empty summary with every status counted at zero.
func NewSummary(yearID string) Summary {
	counts := make(map[PaymentStatus]int, len(PaymentStatuses))
	for _, st := range PaymentStatuses {
		counts[st] = 0
	}
	return Summary{AcademicYearID: yearID, Counts: counts}
}

// Add folds one fee status into the summary.
func (s *Summary) Add(fs FeeStatus) {
	s.Students++
	s.Counts[fs.PaymentStatus]++
	if fs.IsLatePayment {
		s.LatePayments++
	}
	s.TotalDue = s.TotalDue.Add(fs.TotalDue)
	s.TotalPaid = s.TotalPaid.Add(fs.TotalPaid)
	s.TotalBalance = s.TotalBalance.Add(fs.Balance)
}

type Repository interface {
	LoadSources(ctx context.Context, studentID, yearID string) (Sources, error)
	// GetFeeStatus returns ErrNotFound when no status was computed yet.
	GetFeeStatus(ctx context.Context, studentID, yearID string) (FeeStatus, error)
	UpsertFeeStatus(ctx context.Context, fs FeeStatus) (FeeStatus, error)
	Summarize(ctx context.Context, yearID string) (Summary, error)
}

// StatusFor classifies a payment total against the amount due.
func StatusFor(totalPaid, totalDue decimal.Decimal) PaymentStatus {
	switch {
	case totalPaid.IsZero():
		return StatusUnpaid
	case totalPaid.Equal(totalDue):
		return StatusPaid
	case totalPaid.GreaterThan(totalDue):
		return StatusOverpaid
	default:
		return StatusPartial
	}
}

// Compute derives the money fields of a FeeStatus from its sources.
func Compute(src Sources) FeeStatus {
	adjustments := src.Additional.Sub(src.Discount)
	due := src.BaseFee.Add(adjustments)
	return FeeStatus{
		BaseFee:          src.BaseFee,
		TotalAdjustments: adjustments,
		TotalDue:         due,
		TotalPaid:        src.NetPaid,
		Balance:          due.Sub(src.NetPaid),
		PaymentStatus:    StatusFor(src.NetPaid, due),
		LastPaymentDate:  src.LastPaymentDate,
	}
}
