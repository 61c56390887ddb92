// Package student runs the enrollment and re-enrollment workflow.
package student

import (
	"context"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"

	"github.com/trezcool/registrar/core"
	"github.com/trezcool/registrar/core/enrollment"
)

var ErrNotFound = core.NewNotFoundError("student", "")

type Address struct {
	Street       string `json:"street" db:"street"`
	Barangay     string `json:"barangay" db:"barangay"`
	Municipality string `json:"municipality" db:"municipality"`
	Province     string `json:"province" db:"province"`
	Region       string `json:"region" db:"region"`
}

type Student struct {
	ID                   string            `json:"id" db:"id"`
	LRN                  *string           `json:"lrn" db:"lrn"`
	FirstName            string            `json:"firstName" db:"first_name"`
	MiddleName           string            `json:"middleName" db:"middle_name"`
	LastName             string            `json:"lastName" db:"last_name"`
	Suffix               string            `json:"suffix" db:"suffix"`
	DateOfBirth          core.Date         `json:"dateOfBirth" db:"date_of_birth"`
	Gender               string            `json:"gender" db:"gender"`
	ContactNumber        string            `json:"contactNumber" db:"contact_number"`
	Email                string            `json:"email" db:"email"`
	Address              `json:"address"`
	GuardianName         string            `json:"guardianName" db:"guardian_name"`
	GuardianContact      string            `json:"guardianContact" db:"guardian_contact"`
	GuardianRelationship string            `json:"guardianRelationship" db:"guardian_relationship"`
	GradeLevel           string            `json:"gradeLevel" db:"grade_level"`
	SectionID            *string           `json:"sectionId" db:"section_id"`
	EnrollmentStatus     enrollment.Status `json:"enrollmentStatus" db:"enrollment_status"`
	IsTransferee         bool              `json:"isTransferee" db:"is_transferee"`
	PreviousSchool       string            `json:"previousSchool" db:"previous_school"`
	// Remarks holds EncodeRemarks(text, labels).
	Remarks   string    `json:"remarks" db:"remarks"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}

func (s Student) FullName() string {
	parts := lo.Filter([]string{s.FirstName, s.MiddleName, s.LastName, s.Suffix}, func(p string, _ int) bool {
		return p != ""
	})
	return strings.Join(parts, " ")
}

// Detail is a student with its parsed remarks and enrollment history.
type Detail struct {
	Student
	RemarkText   string                  `json:"remarkText"`
	RemarkLabels []string                `json:"remarkLabels"`
	Enrollments  []enrollment.Enrollment `json:"enrollments"`
}

// EnrollResult is returned by Enroll.
type EnrollResult struct {
	Student
	Enrollment     enrollment.Enrollment `json:"enrollment"`
	IsReenrollment bool                  `json:"isReenrollment"`
}

// Form is the body of POST and PUT /students.
type Form struct {
	LRN                  string            `json:"lrn" validate:"omitempty,lrn"`
	FirstName            string            `json:"firstName" validate:"required,max=100"`
	MiddleName           string            `json:"middleName" validate:"max=100"`
	LastName             string            `json:"lastName" validate:"required,max=100"`
	Suffix               string            `json:"suffix" validate:"max=16"`
	DateOfBirth          core.Date         `json:"dateOfBirth" validate:"required"`
	Gender               string            `json:"gender" validate:"omitempty,oneof=MALE FEMALE"`
	ContactNumber        string            `json:"contactNumber" validate:"max=32"`
	Email                string            `json:"email" validate:"omitempty,email"`
	Address              Address           `json:"address"`
	GuardianName         string            `json:"guardianName" validate:"max=200"`
	GuardianContact      string            `json:"guardianContact" validate:"max=32"`
	GuardianRelationship string            `json:"guardianRelationship" validate:"max=64"`
	GradeLevel           string            `json:"gradeLevel" validate:"required,gradelevel"`
	SectionID            string            `json:"sectionId"`
	IsTransferee         bool              `json:"isTransferee"`
	PreviousSchool       string            `json:"previousSchool" validate:"max=200"`
	RemarkText           string            `json:"remarkText"`
	RemarkLabels         []string          `json:"remarkLabels" validate:"omitempty,dive,required,excludesall=0x7C0x2C"`
	EnrollmentStatus     enrollment.Status `json:"enrollmentStatus" validate:"omitempty,enrollstatus"`

	sectionName string // set by imports, resolved to SectionID
}

func (f *Form) Clean() {
	f.LRN = core.CleanString(f.LRN)
	f.FirstName = core.CleanString(f.FirstName)
	f.MiddleName = core.CleanString(f.MiddleName)
	f.LastName = core.CleanString(f.LastName)
	f.Suffix = core.CleanString(f.Suffix)
	f.Gender = strings.ToUpper(core.CleanString(f.Gender))
	f.ContactNumber = core.CleanString(f.ContactNumber)
	f.Email = core.CleanString(f.Email, true /* lower */)
	f.Address = Address{
		Street:       core.CleanString(f.Address.Street),
		Barangay:     core.CleanString(f.Address.Barangay),
		Municipality: core.CleanString(f.Address.Municipality),
		Province:     core.CleanString(f.Address.Province),
		Region:       core.CleanString(f.Address.Region),
	}
	f.GuardianName = core.CleanString(f.GuardianName)
	f.GuardianContact = core.CleanString(f.GuardianContact)
	f.GuardianRelationship = core.CleanString(f.GuardianRelationship)
	f.GradeLevel = core.CleanString(f.GradeLevel)
	f.SectionID = core.CleanString(f.SectionID)
	f.PreviousSchool = core.CleanString(f.PreviousSchool)
	f.RemarkText = core.CleanString(f.RemarkText)
	f.RemarkLabels = lo.FilterMap(f.RemarkLabels, func(l string, _ int) (string, bool) {
		l = core.CleanString(l)
		return l, l != ""
	})
	f.EnrollmentStatus = enrollment.Status(strings.ToUpper(core.CleanString(string(f.EnrollmentStatus))))
}

func (f *Form) Validate(validate *validator.Validate) error {
	f.Clean()
	return validate.Struct(f)
}

// apply copies the form onto the student, leaving status and timestamps alone.
func (f Form) apply(s *Student) {
	s.LRN = nil
	if f.LRN != "" {
		lrn := f.LRN
		s.LRN = &lrn
	}
	s.FirstName = f.FirstName
	s.MiddleName = f.MiddleName
	s.LastName = f.LastName
	s.Suffix = f.Suffix
	s.DateOfBirth = f.DateOfBirth
	s.Gender = f.Gender
	s.ContactNumber = f.ContactNumber
	s.Email = f.Email
	s.Address = f.Address
	s.GuardianName = f.GuardianName
	s.GuardianContact = f.GuardianContact
	s.GuardianRelationship = f.GuardianRelationship
	s.GradeLevel = f.GradeLevel
	s.SectionID = nil
	if f.SectionID != "" {
		sid := f.SectionID
		s.SectionID = &sid
	}
	s.IsTransferee = f.IsTransferee
	s.PreviousSchool = f.PreviousSchool
	s.Remarks = EncodeRemarks(f.RemarkText, f.RemarkLabels)
}

// SwitchForm moves a student to another grade and/or section in the active year.
type SwitchForm struct {
	GradeLevel string  `json:"gradeLevel" validate:"omitempty,gradelevel"`
	SectionID  *string `json:"sectionId"`
}

func (sf *SwitchForm) Validate(validate *validator.Validate) error {
	sf.GradeLevel = core.CleanString(sf.GradeLevel)
	if sf.SectionID != nil {
		sid := core.CleanString(*sf.SectionID)
		sf.SectionID = &sid
	}
	if sf.GradeLevel == "" && sf.SectionID == nil {
		return core.NewFieldError("gradeLevel", "one of gradeLevel or sectionId is required")
	}
	return validate.Struct(sf)
}

type QueryFilter struct {
	Search         string            `query:"search"`
	GradeLevel     string            `query:"gradeLevel"`
	SectionID      string            `query:"sectionId"`
	Status         enrollment.Status `query:"status"`
	AcademicYearID string            `query:"academicYearId"`
	core.Page
	Orderings []core.DBOrdering `query:"-"`
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
	qf.GradeLevel = core.CleanString(qf.GradeLevel)
	qf.SectionID = core.CleanString(qf.SectionID)
	qf.Status = enrollment.Status(strings.ToUpper(core.CleanString(string(qf.Status))))
	qf.AcademicYearID = core.CleanString(qf.AcademicYearID)
	qf.Page = qf.Page.Clean()
}

type Page struct {
	Students []Student `json:"students"`
	Total    int       `json:"total"`
	Page     int       `json:"page"`
	Limit    int       `json:"limit"`
}

// snapshot is what goes to the recycle bin when a student is deleted.
type snapshot struct {
	Student     Student                 `json:"student"`
	Enrollments []enrollment.Enrollment `json:"enrollments"`
}

type Repository interface {
	CreateStudent(ctx context.Context, s Student) (Student, error)
	UpdateStudent(ctx context.Context, s Student) (Student, error)
	GetStudent(ctx context.Context, id string) (Student, error)
	FindByLRN(ctx context.Context, lrn string) (Student, error)
	// FindByNameAndBirth matches first and last names case-insensitively.
	FindByNameAndBirth(ctx context.Context, firstName, lastName string, dob core.Date) (Student, error)
	// QueryStudents returns one page of matching students and the total count.
	// Search matches names and LRN; AcademicYearID keeps students enrolled in that year.
	QueryStudents(ctx context.Context, filter QueryFilter) ([]Student, int, error)
	CountPayments(ctx context.Context, studentID string) (int, error)
	DeleteStudent(ctx context.Context, id string) error
}
