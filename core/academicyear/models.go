// Package academicyear manages school years and the single-active-year rule.
package academicyear

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/registrar/core"
	"github.com/trezcool/registrar/core/enrollment"
)

const (
	ActionEnd      = "end"
	ActionActivate = "activate"
	ActionClose    = "close"
)

type AcademicYear struct {
	ID        string    `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	StartDate core.Date `json:"startDate" db:"start_date"`
	EndDate   core.Date `json:"endDate" db:"end_date"`
	IsActive  bool      `json:"isActive" db:"is_active"`
	IsClosed  bool      `json:"isClosed" db:"is_closed"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}

// NewAcademicYear contains information needed to create an AcademicYear.
type NewAcademicYear struct {
	Name      string    `json:"name" validate:"required,max=64"`
	StartDate core.Date `json:"startDate" validate:"required"`
	EndDate   core.Date `json:"endDate" validate:"required"`
	IsActive  *bool     `json:"isActive"`
}

func (ny *NewAcademicYear) Validate(validate *validator.Validate) error {
	ny.Name = core.CleanString(ny.Name)
	if err := validate.Struct(ny); err != nil {
		return err
	}
	return checkDates(ny.StartDate, ny.EndDate)
}

// UpdateAcademicYear edits a year and/or applies one lifecycle action.
type UpdateAcademicYear struct {
	Name      string    `json:"name" validate:"omitempty,max=64"`
	StartDate core.Date `json:"startDate"`
	EndDate   core.Date `json:"endDate"`
	Action    string    `json:"action" validate:"omitempty,oneof=end activate close"`
}

func (uy *UpdateAcademicYear) Validate(validate *validator.Validate) error {
	uy.Name = core.CleanString(uy.Name)
	uy.Action = core.CleanString(uy.Action, true /* lower */)
	return validate.Struct(uy)
}

// ActionRequest is the body of POST /academic-years/:id.
type ActionRequest struct {
	Action string `json:"action" validate:"required,oneof=end activate close"`
}

func (ar *ActionRequest) Validate(validate *validator.Validate) error {
	ar.Action = core.CleanString(ar.Action, true /* lower */)
	return validate.Struct(ar)
}

func checkDates(start, end core.Date) error {
	if !end.After(start.Time) {
		return core.NewFieldError("endDate", "endDate must be after startDate")
	}
	return nil
}

// snapshot is what goes to the recycle bin when a year is deleted.
type snapshot struct {
	Year        AcademicYear            `json:"year"`
	Enrollments []enrollment.Enrollment `json:"enrollments"`
}

type Repository interface {
	CreateYear(ctx context.Context, y AcademicYear) (AcademicYear, error)
	UpdateYear(ctx context.Context, y AcademicYear) (AcademicYear, error)
	GetYear(ctx context.Context, id string) (AcademicYear, error)
	// GetActiveYear returns ErrNoActiveYear when no year is active.
	GetActiveYear(ctx context.Context) (AcademicYear, error)
	// ListYears returns the years newest first.
	ListYears(ctx context.Context) ([]AcademicYear, error)
	NameExists(ctx context.Context, name, excludedID string) (bool, error)
	// DeactivateAll deactivates every year except exceptID.
	DeactivateAll(ctx context.Context, exceptID string) error
	DeleteYear(ctx context.Context, id string) error
	CountPayments(ctx context.Context, yearID string) (int, error)
}

// Prepopulator seeds per-year structures when a year is created. previous is the year
// that was active before, if any.
type Prepopulator interface {
	Prepopulate(ctx context.Context, year AcademicYear, previous *AcademicYear) error
}
