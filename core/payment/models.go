// Package payment records payments, refunds and fee adjustments.
package payment

import (
	"context"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/trezcool/registrar/core"
)

const (
	MethodCash         = "CASH"
	MethodBankTransfer = "BANK_TRANSFER"
	MethodCheck        = "CHECK"
	MethodEWallet      = "E_WALLET"
	MethodOther        = "OTHER"

	AdjustmentDiscount   = "DISCOUNT"
	AdjustmentAdditional = "ADDITIONAL"
)

var (
	Methods         = []string{MethodCash, MethodBankTransfer, MethodCheck, MethodEWallet, MethodOther}
	AdjustmentTypes = []string{AdjustmentDiscount, AdjustmentAdditional}

	ErrNotFound = core.NewNotFoundError("payment", "")
)

type Payment struct {
	ID              string          `json:"id" db:"id"`
	StudentID       string          `json:"studentId" db:"student_id"`
	AcademicYearID  string          `json:"academicYearId" db:"academic_year_id"`
	AmountPaid      decimal.Decimal `json:"amountPaid" db:"amount_paid"`
	PaymentDate     core.Date       `json:"paymentDate" db:"payment_date"`
	PaymentMethod   string          `json:"paymentMethod" db:"payment_method"`
	ReferenceNumber string          `json:"referenceNumber" db:"reference_number"`
	ReceiptNumber   string          `json:"receiptNumber" db:"receipt_number"`
	Remarks         string          `json:"remarks" db:"remarks"`
	RecordedBy      string          `json:"recordedBy" db:"recorded_by"`
	CreatedAt       time.Time       `json:"createdAt" db:"created_at"`

	// aggregate of Refunds, kept in sync on every refund
	IsRefunded   bool            `json:"isRefunded" db:"is_refunded"`
	RefundAmount decimal.Decimal `json:"refundAmount" db:"refund_amount"`
	RefundDate   *time.Time      `json:"refundDate" db:"refund_date"`
	RefundReason string          `json:"refundReason" db:"refund_reason"`
	RefundedBy   string          `json:"refundedBy" db:"refunded_by"`

	LineItems []LineItem `json:"lineItems" db:"-"`
	Refunds   []Refund   `json:"refunds" db:"-"`
}

// NetAmount is what the payment still counts for after refunds.
func (p Payment) NetAmount() decimal.Decimal {
	return p.AmountPaid.Sub(p.RefundAmount)
}

// LineItem allocates part of a payment to a fee breakdown.
type LineItem struct {
	ID             string          `json:"id" db:"id"`
	PaymentID      string          `json:"paymentId" db:"payment_id"`
	FeeBreakdownID *string         `json:"feeBreakdownId" db:"fee_breakdown_id"`
	Description    string          `json:"description" db:"description"`
	Amount         decimal.Decimal `json:"amount" db:"amount"`
}

type Refund struct {
	ID           string          `json:"id" db:"id"`
	RefundID     string          `json:"refundId" db:"refund_id"`
	PaymentID    string          `json:"paymentId" db:"payment_id"`
	Amount       decimal.Decimal `json:"amount" db:"amount"`
	Reason       string          `json:"reason" db:"reason"`
	RefundMethod string          `json:"refundMethod" db:"refund_method"`
	RefundedBy   string          `json:"refundedBy" db:"refunded_by"`
	RefundDate   time.Time       `json:"refundDate" db:"refund_date"`
}

// SumRefunds is the total of the refund rows.
func SumRefunds(refunds []Refund) decimal.Decimal {
	return lo.Reduce(refunds, func(acc decimal.Decimal, r Refund, _ int) decimal.Decimal {
		return acc.Add(r.Amount)
	}, decimal.Zero)
}

type Adjustment struct {
	ID             string          `json:"id" db:"id"`
	StudentID      string          `json:"studentId" db:"student_id"`
	AcademicYearID string          `json:"academicYearId" db:"academic_year_id"`
	Type           string          `json:"type" db:"type"`
	Amount         decimal.Decimal `json:"amount" db:"amount"`
	Reason         string          `json:"reason" db:"reason"`
	CreatedBy      string          `json:"createdBy" db:"created_by"`
	CreatedAt      time.Time       `json:"createdAt" db:"created_at"`
}

type NewPayment struct {
	AcademicYearID  string          `json:"academicYearId"`
	AmountPaid      decimal.Decimal `json:"amountPaid" validate:"gt=0,money"`
	PaymentDate     core.Date       `json:"paymentDate"`
	PaymentMethod   string          `json:"paymentMethod" validate:"required,paymentmethod"`
	ReferenceNumber string          `json:"referenceNumber" validate:"max=100"`
	ReceiptNumber   string          `json:"receiptNumber" validate:"max=100"`
	Remarks         string          `json:"remarks"`
	LineItems       []NewLineItem   `json:"lineItems" validate:"omitempty,dive"`
}

type NewLineItem struct {
	FeeBreakdownID string          `json:"feeBreakdownId" validate:"required"`
	Description    string          `json:"description"`
	Amount         decimal.Decimal `json:"amount" validate:"gt=0,money"`
}

func (np *NewPayment) Validate(validate *validator.Validate) error {
	np.AcademicYearID = core.CleanString(np.AcademicYearID)
	np.PaymentMethod = core.CleanString(np.PaymentMethod)
	np.ReferenceNumber = core.CleanString(np.ReferenceNumber)
	np.ReceiptNumber = core.CleanString(np.ReceiptNumber)
	np.Remarks = core.CleanString(np.Remarks)
	if np.PaymentDate.IsZero() {
		np.PaymentDate = core.Today()
	}
	for i := range np.LineItems {
		np.LineItems[i].FeeBreakdownID = core.CleanString(np.LineItems[i].FeeBreakdownID)
		np.LineItems[i].Description = core.CleanString(np.LineItems[i].Description)
	}
	return validate.Struct(np)
}

type RefundRequest struct {
	PaymentID    string          `json:"paymentId" validate:"required"`
	Amount       decimal.Decimal `json:"amount" validate:"gt=0,money"`
	Reason       string          `json:"reason" validate:"required"`
	RefundMethod string          `json:"refundMethod" validate:"omitempty,paymentmethod"`
}

func (rr *RefundRequest) Validate(validate *validator.Validate) error {
	rr.PaymentID = core.CleanString(rr.PaymentID)
	rr.Reason = core.CleanString(rr.Reason)
	rr.RefundMethod = core.CleanString(rr.RefundMethod)
	if rr.RefundMethod == "" {
		rr.RefundMethod = MethodCash
	}
	return validate.Struct(rr)
}

type NewAdjustment struct {
	AcademicYearID string          `json:"academicYearId"`
	Type           string          `json:"type" validate:"required,adjtype"`
	Amount         decimal.Decimal `json:"amount" validate:"gt=0,money"`
	Reason         string          `json:"reason" validate:"required"`
}

func (na *NewAdjustment) Validate(validate *validator.Validate) error {
	na.AcademicYearID = core.CleanString(na.AcademicYearID)
	na.Type = core.CleanString(na.Type)
	na.Reason = core.CleanString(na.Reason)
	return validate.Struct(na)
}

var (
	paymentMethodTag  = "paymentmethod"
	paymentMethodText = "{0} must be one of CASH, BANK_TRANSFER, CHECK, E_WALLET, OTHER"

	adjTypeTag  = "adjtype"
	adjTypeText = "{0} must be one of DISCOUNT, ADDITIONAL"
)

// InitValidators registers `paymentmethod` and `adjtype`.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	core.RegisterOneOf(validate, translator, paymentMethodTag, paymentMethodText, Methods...)
	core.RegisterOneOf(validate, translator, adjTypeTag, adjTypeText, AdjustmentTypes...)
}

type Repository interface {
	// CreatePayment inserts the payment with its line items.
	CreatePayment(ctx context.Context, p Payment) (Payment, error)
	// GetPayment loads the payment with its line items and refunds.
	GetPayment(ctx context.Context, id string) (Payment, error)
	// ListPayments loads the student's payments for a year, oldest first.
	ListPayments(ctx context.Context, studentID, yearID string) ([]Payment, error)
	CreateRefund(ctx context.Context, r Refund) (Refund, error)
	// UpdateRefundTotals saves the aggregate refund fields of a payment.
	UpdateRefundTotals(ctx context.Context, p Payment) error

	CreateAdjustment(ctx context.Context, a Adjustment) (Adjustment, error)
	ListAdjustments(ctx context.Context, studentID, yearID string) ([]Adjustment, error)
}
