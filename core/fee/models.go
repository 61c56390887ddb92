// Package fee manages per-grade fee templates and optional fees.
package fee

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/trezcool/registrar/core"
)

var (
	ErrTemplateNotFound    = core.NewNotFoundError("fee template", "")
	ErrBreakdownNotFound   = core.NewNotFoundError("fee breakdown", "")
	ErrOptionalFeeNotFound = core.NewNotFoundError("optional fee", "")
	ErrAssignmentNotFound  = core.NewNotFoundError("student optional fee", "")
)

type Template struct {
	ID             string          `json:"id" db:"id"`
	Name           string          `json:"name" db:"name"`
	GradeLevel     string          `json:"gradeLevel" db:"grade_level"`
	AcademicYearID string          `json:"academicYearId" db:"academic_year_id"`
	Description    string          `json:"description" db:"description"`
	TotalAmount    decimal.Decimal `json:"totalAmount" db:"total_amount"`
	Breakdowns     []Breakdown     `json:"breakdowns" db:"-"`
	CreatedAt      time.Time       `json:"createdAt" db:"created_at"`
	UpdatedAt      time.Time       `json:"updatedAt" db:"updated_at"`
}

// Breakdown is one line of a template, e.g. Tuition.
type Breakdown struct {
	ID          string          `json:"id" db:"id"`
	TemplateID  string          `json:"templateId" db:"template_id"`
	Description string          `json:"description" db:"description"`
	Amount      decimal.Decimal `json:"amount" db:"amount"`
	Category    string          `json:"category" db:"category"`
	// IsRefundable nil means refundable.
	IsRefundable *bool `json:"isRefundable" db:"is_refundable"`
	SortOrder    int   `json:"sortOrder" db:"sort_order"`
}

func (b Breakdown) Refundable() bool {
	return b.IsRefundable == nil || *b.IsRefundable
}

// Breakdown finds a breakdown by id.
func (t Template) Breakdown(id string) (Breakdown, bool) {
	return lo.Find(t.Breakdowns, func(b Breakdown) bool { return b.ID == id })
}

// HasNonRefundable reports whether any breakdown is explicitly non-refundable.
func (t Template) HasNonRefundable() bool {
	return lo.SomeBy(t.Breakdowns, func(b Breakdown) bool { return !b.Refundable() })
}

// SumBreakdowns is the template total.
func SumBreakdowns(bds []Breakdown) decimal.Decimal {
	return lo.Reduce(bds, func(acc decimal.Decimal, b Breakdown, _ int) decimal.Decimal {
		return acc.Add(b.Amount)
	}, decimal.Zero)
}

type TemplateForm struct {
	Name           string          `json:"name" validate:"required,max=100"`
	GradeLevel     string          `json:"gradeLevel" validate:"required,gradelevel"`
	AcademicYearID string          `json:"academicYearId"`
	Description    string          `json:"description"`
	Breakdowns     []BreakdownForm `json:"breakdowns" validate:"required,min=1,dive"`
}

type BreakdownForm struct {
	ID           string          `json:"id"`
	Description  string          `json:"description" validate:"required,max=200"`
	Amount       decimal.Decimal `json:"amount" validate:"gt=0,money"`
	Category     string          `json:"category" validate:"omitempty,max=64"`
	IsRefundable *bool           `json:"isRefundable"`
}

func (tf *TemplateForm) Validate(validate *validator.Validate) error {
	tf.Name = core.CleanString(tf.Name)
	tf.GradeLevel = core.CleanString(tf.GradeLevel)
	tf.AcademicYearID = core.CleanString(tf.AcademicYearID)
	tf.Description = core.CleanString(tf.Description)
	for i := range tf.Breakdowns {
		tf.Breakdowns[i].ID = core.CleanString(tf.Breakdowns[i].ID)
		tf.Breakdowns[i].Description = core.CleanString(tf.Breakdowns[i].Description)
		tf.Breakdowns[i].Category = core.CleanString(tf.Breakdowns[i].Category, true /* lower */)
	}
	return validate.Struct(tf)
}

type TemplateFilter struct {
	AcademicYearID string `query:"academicYearId"`
	GradeLevel     string `query:"gradeLevel"`
}

type OptionalFee struct {
	ID          string          `json:"id" db:"id"`
	Name        string          `json:"name" db:"name"`
	Description string          `json:"description" db:"description"`
	Amount      decimal.Decimal `json:"amount" db:"amount"`
	IsActive    bool            `json:"isActive" db:"is_active"`
	Variations  []Variation     `json:"variations" db:"-"`
	CreatedAt   time.Time       `json:"createdAt" db:"created_at"`
	UpdatedAt   time.Time       `json:"updatedAt" db:"updated_at"`
}

// Variation is a priced option of an optional fee, e.g. a uniform size.
type Variation struct {
	ID            string          `json:"id" db:"id"`
	OptionalFeeID string          `json:"optionalFeeId" db:"optional_fee_id"`
	Name          string          `json:"name" db:"name"`
	Amount        decimal.Decimal `json:"amount" db:"amount"`
}

type OptionalFeeForm struct {
	Name        string          `json:"name" validate:"required,max=100"`
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount" validate:"gte=0,money"`
	IsActive    *bool           `json:"isActive"`
	Variations  []VariationForm `json:"variations" validate:"omitempty,dive"`
}

type VariationForm struct {
	ID     string          `json:"id"`
	Name   string          `json:"name" validate:"required,max=100"`
	Amount decimal.Decimal `json:"amount" validate:"gt=0,money"`
}

func (of *OptionalFeeForm) Validate(validate *validator.Validate) error {
	of.Name = core.CleanString(of.Name)
	of.Description = core.CleanString(of.Description)
	for i := range of.Variations {
		of.Variations[i].Name = core.CleanString(of.Variations[i].Name)
	}
	return validate.Struct(of)
}

// OptionalFeePatch edits an optional fee; nil fields are left untouched.
type OptionalFeePatch struct {
	Name        *string          `json:"name" validate:"omitempty,min=1,max=100"`
	Description *string          `json:"description"`
	Amount      *decimal.Decimal `json:"amount"`
	IsActive    *bool            `json:"isActive"`
	Variations  []VariationForm  `json:"variations" validate:"omitempty,dive"`
}

func (op *OptionalFeePatch) Validate(validate *validator.Validate) error {
	if op.Name != nil {
		name := core.CleanString(*op.Name)
		op.Name = &name
	}
	if op.Amount != nil && (op.Amount.IsNegative() || !op.Amount.Equal(op.Amount.Round(2))) {
		return core.NewFieldError("amount", "amount must be a positive amount with at most 2 decimal places")
	}
	return validate.Struct(op)
}

// StudentOptionalFee is an optional fee assigned to a student for one year.
type StudentOptionalFee struct {
	ID             string          `json:"id" db:"id"`
	StudentID      string          `json:"studentId" db:"student_id"`
	OptionalFeeID  string          `json:"optionalFeeId" db:"optional_fee_id"`
	VariationID    *string         `json:"variationId" db:"variation_id"`
	AcademicYearID string          `json:"academicYearId" db:"academic_year_id"`
	Amount         decimal.Decimal `json:"amount" db:"amount"`
	PaidAmount     decimal.Decimal `json:"paidAmount" db:"paid_amount"`
	IsPaid         bool            `json:"isPaid" db:"is_paid"`
	CreatedAt      time.Time       `json:"createdAt" db:"created_at"`
	UpdatedAt      time.Time       `json:"updatedAt" db:"updated_at"`

	// read-only
	OptionalFeeName string `json:"optionalFeeName" db:"optional_fee_name"`
}

// Pay adds to the paid amount, never beyond the assigned amount.
func (sof *StudentOptionalFee) Pay(amount decimal.Decimal) {
	sof.PaidAmount = decimal.Min(sof.PaidAmount.Add(amount), sof.Amount)
	sof.IsPaid = sof.PaidAmount.GreaterThanOrEqual(sof.Amount)
}

type AssignForm struct {
	OptionalFeeID  string          `json:"optionalFeeId" validate:"required"`
	VariationID    string          `json:"variationId"`
	AcademicYearID string          `json:"academicYearId"`
	PayAmount      decimal.Decimal `json:"payAmount" validate:"gte=0,money"`
}

func (af *AssignForm) Validate(validate *validator.Validate) error {
	af.OptionalFeeID = core.CleanString(af.OptionalFeeID)
	af.VariationID = core.CleanString(af.VariationID)
	af.AcademicYearID = core.CleanString(af.AcademicYearID)
	return validate.Struct(af)
}

type Repository interface {
	CreateTemplate(ctx context.Context, t Template) (Template, error)
	// UpdateTemplate saves the template and replaces its breakdowns: known ids are updated,
	// new ones inserted and missing ones removed.
	UpdateTemplate(ctx context.Context, t Template) (Template, error)
	GetTemplate(ctx context.Context, id string) (Template, error)
	// GetTemplateFor returns ErrTemplateNotFound when the grade has no template for the year.
	GetTemplateFor(ctx context.Context, gradeLevel, yearID string) (Template, error)
	ListTemplates(ctx context.Context, filter TemplateFilter) ([]Template, error)
	GetBreakdown(ctx context.Context, id string) (Breakdown, error)
	DeleteTemplate(ctx context.Context, id string) error
	// BreakdownsInUse reports whether any payment line item references one of the breakdowns.
	BreakdownsInUse(ctx context.Context, breakdownIDs ...string) (bool, error)

	CreateOptionalFee(ctx context.Context, of OptionalFee) (OptionalFee, error)
	// UpdateOptionalFee saves the fee and replaces its variations like UpdateTemplate.
	UpdateOptionalFee(ctx context.Context, of OptionalFee) (OptionalFee, error)
	GetOptionalFee(ctx context.Context, id string) (OptionalFee, error)
	ListOptionalFees(ctx context.Context, activeOnly bool) ([]OptionalFee, error)
	DeleteOptionalFee(ctx context.Context, id string) error
	OptionalFeeAssigned(ctx context.Context, id string) (bool, error)

	ListStudentOptionalFees(ctx context.Context, studentID, yearID string) ([]StudentOptionalFee, error)
	GetStudentOptionalFee(ctx context.Context, studentID, optionalFeeID, yearID string) (StudentOptionalFee, error)
	// SaveStudentOptionalFee inserts or updates by (student, optional fee, year).
	SaveStudentOptionalFee(ctx context.Context, sof StudentOptionalFee) (StudentOptionalFee, error)
	DeleteStudentOptionalFee(ctx context.Context, id string) error
}
