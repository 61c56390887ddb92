// Package testutil builds an in-memory application and seeds it for tests.
package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/trezcool/registrar/apps/container"
	"github.com/trezcool/registrar/assets"
	"github.com/trezcool/registrar/core"
	"github.com/trezcool/registrar/core/academicyear"
	"github.com/trezcool/registrar/core/fee"
	"github.com/trezcool/registrar/core/section"
	"github.com/trezcool/registrar/core/student"
	"github.com/trezcool/registrar/core/user"
	emailsvc "github.com/trezcool/registrar/services/email"
	inmemdb "github.com/trezcool/registrar/storage/database/inmem"
)

// App is an application running on the in-memory store.
type App struct {
	*container.Container
	DB   *inmemdb.DB
	Mail *emailsvc.ConsoleService
}

func NewApp(t *testing.T) *App {
	t.Helper()
	if err := core.ParseEmailTemplates(assets.FS, assets.EmailTemplatesDir, true); err != nil {
		t.Fatalf("NewApp() failed: %v", err)
	}
	conf := core.NewTestConfig()
	db := inmemdb.Open()
	mailSvc := emailsvc.NewConsoleServiceMock(conf)
	return &App{
		Container: container.New(conf, container.InMemRepositories(db), mailSvc),
		DB:        db,
		Mail:      mailSvc,
	}
}

func CreateUser(
	t *testing.T,
	repo user.Repository,
	name, uname, email, pwd string,
	roles []string,
	isActive bool,
	createdAt ...time.Time,
) user.User {
	t.Helper()
	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	usr := user.User{
		Name:      name,
		Username:  uname,
		Email:     email,
		Roles:     roles,
		IsActive:  isActive,
		CreatedAt: tstamp,
		UpdatedAt: tstamp,
	}
	if pwd != "" {
		if err := usr.SetPassword(pwd); err != nil {
			t.Fatalf("CreateUser() failed: %v", err)
		}
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	return usr
}

// CreateYear creates a year running from June 1st of startYear to March 31st of the next year.
func (app *App) CreateYear(t *testing.T, name string, startYear int, active bool) academicyear.AcademicYear {
	t.Helper()
	year, err := app.Years.Create(context.Background(), academicyear.NewAcademicYear{
		Name:      name,
		StartDate: core.NewDate(time.Date(startYear, time.June, 1, 0, 0, 0, 0, time.UTC)),
		EndDate:   core.NewDate(time.Date(startYear+1, time.March, 31, 0, 0, 0, 0, time.UTC)),
		IsActive:  &active,
	})
	if err != nil {
		t.Fatalf("CreateYear() failed: %v", err)
	}
	return year
}

func (app *App) CreateSection(t *testing.T, name, grade string) section.Section {
	t.Helper()
	sec, err := app.Sections.Create(context.Background(), section.NewSection{Name: name, GradeLevel: grade})
	if err != nil {
		t.Fatalf("CreateSection() failed: %v", err)
	}
	return sec
}

// Breakdown returns a breakdown form; refundable nil means refundable.
func Breakdown(desc string, amount float64, refundable *bool) fee.BreakdownForm {
	return fee.BreakdownForm{Description: desc, Amount: decimal.NewFromFloat(amount), IsRefundable: refundable}
}

func (app *App) CreateTemplate(t *testing.T, grade, yearID string, bds ...fee.BreakdownForm) fee.Template {
	t.Helper()
	tmpl, err := app.Fees.CreateTemplate(context.Background(), fee.TemplateForm{
		Name:           grade + " fees",
		GradeLevel:     grade,
		AcademicYearID: yearID,
		Breakdowns:     bds,
	})
	if err != nil {
		t.Fatalf("CreateTemplate() failed: %v", err)
	}
	return tmpl
}

// StudentForm returns a valid enrollment form.
func StudentForm(first, last, grade string) student.Form {
	return student.Form{
		FirstName:   first,
		LastName:    last,
		DateOfBirth: core.MustParseDate("2015-04-12"),
		GradeLevel:  grade,
	}
}

func (app *App) Enroll(t *testing.T, f student.Form) student.EnrollResult {
	t.Helper()
	if err := f.Validate(app.Validate); err != nil {
		t.Fatalf("Enroll() failed: %v", err)
	}
	res, err := app.Students.Enroll(context.Background(), f)
	if err != nil {
		t.Fatalf("Enroll() failed: %v", err)
	}
	return res
}

func Bool(b bool) *bool { return &b }

func Dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }
