// Package enrollment holds the Student × AcademicYear join and the enrollment state machine.
package enrollment

import (
	"context"
	"fmt"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/registrar/core"
)

type Status string

const (
	StatusPending     Status = "PENDING"
	StatusEnrolled    Status = "ENROLLED"
	StatusTransferred Status = "TRANSFERRED"
	StatusDropped     Status = "DROPPED"
)

var (
	Statuses = []Status{StatusPending, StatusEnrolled, StatusTransferred, StatusDropped}

	// transitions allowed through a student update; re-enrollment resets any status to PENDING.
	transitions = map[Status][]Status{
		StatusPending:  {StatusEnrolled, StatusDropped},
		StatusEnrolled: {StatusTransferred, StatusDropped, StatusPending},
	}

	GradeLevels = func() []string {
		levels := []string{"Nursery", "Kinder"}
		for i := 1; i <= 12; i++ {
			levels = append(levels, fmt.Sprintf("Grade %d", i))
		}
		return levels
	}()

	ErrNotFound = core.NewNotFoundError("enrollment", "")
)

func (s Status) Valid() bool {
	for _, st := range Statuses {
		if s == st {
			return true
		}
	}
	return false
}

// CanTransition reports whether a student may move from one status to another by update.
func CanTransition(from, to Status) bool {
	if from == to {
		return true
	}
	for _, st := range transitions[from] {
		if st == to {
			return true
		}
	}
	return false
}

type Enrollment struct {
	ID             string    `json:"id" db:"id"`
	StudentID      string    `json:"studentId" db:"student_id"`
	AcademicYearID string    `json:"academicYearId" db:"academic_year_id"`
	GradeLevel     string    `json:"gradeLevel" db:"grade_level"`
	SectionID      *string   `json:"sectionId" db:"section_id"`
	Status         Status    `json:"status" db:"status"`
	EnrollmentDate core.Date `json:"enrollmentDate" db:"enrollment_date"`
	CreatedAt      time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt      time.Time `json:"updatedAt" db:"updated_at"`

	// read-only, filled on listing
	AcademicYearName string `json:"academicYearName,omitempty" db:"academic_year_name"`
	SectionName      string `json:"sectionName,omitempty" db:"section_name"`
}

// References tells which rows an enrollment points to still exist.
// Section is true when the enrollment has no section.
type References struct {
	Student bool `db:"student"`
	Year    bool `db:"year"`
	Section bool `db:"section"`
}

func (r References) Complete() bool { return r.Student && r.Year && r.Section }

type Repository interface {
	// CreateEnrollment returns ErrNotFound when the student or year does not exist.
	CreateEnrollment(ctx context.Context, e Enrollment) (Enrollment, error)
	UpdateEnrollment(ctx context.Context, e Enrollment) (Enrollment, error)
	// GetEnrollment returns ErrNotFound when the student has no enrollment for the year.
	GetEnrollment(ctx context.Context, studentID, yearID string) (Enrollment, error)
	ListByStudent(ctx context.Context, studentID string) ([]Enrollment, error)
	ListByYear(ctx context.Context, yearID string) ([]Enrollment, error)
	// HasClosedYearEnrollment reports whether the student is enrolled in any closed year.
	HasClosedYearEnrollment(ctx context.Context, studentID string) (bool, error)
	References(ctx context.Context, e Enrollment) (References, error)
	DeleteByYear(ctx context.Context, yearID string) (int, error)
	DeleteByStudent(ctx context.Context, studentID string) (int, error)
}

var (
	gradeLevelTag  = "gradelevel"
	gradeLevelText = "{0} must be one of Nursery, Kinder, Grade 1 … Grade 12"

	statusTag  = "enrollstatus"
	statusText = "{0} must be one of PENDING, ENROLLED, TRANSFERRED, DROPPED"
)

// InitValidators registers `gradelevel` and `enrollstatus`.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	core.RegisterOneOf(validate, translator, gradeLevelTag, gradeLevelText, GradeLevels...)

	statuses := make([]string, 0, len(Statuses))
	for _, st := range Statuses {
		statuses = append(statuses, string(st))
	}
	core.RegisterOneOf(validate, translator, statusTag, statusText, statuses...)
}
