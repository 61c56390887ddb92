// Package container builds the services of the application on top of a set of repositories.
package container

import (
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"

	"github.com/trezcool/registrar/core"
	"github.com/trezcool/registrar/core/academicyear"
	"github.com/trezcool/registrar/core/enrollment"
	"github.com/trezcool/registrar/core/fee"
	"github.com/trezcool/registrar/core/ledger"
	"github.com/trezcool/registrar/core/notification"
	"github.com/trezcool/registrar/core/payment"
	"github.com/trezcool/registrar/core/recyclebin"
	"github.com/trezcool/registrar/core/remark"
	"github.com/trezcool/registrar/core/section"
	"github.com/trezcool/registrar/core/student"
	"github.com/trezcool/registrar/core/user"
	"github.com/trezcool/registrar/storage/database"
	inmemdb "github.com/trezcool/registrar/storage/database/inmem"
	boiledrepos "github.com/trezcool/registrar/storage/database/sqlboiler"
	sqlxrepos "github.com/trezcool/registrar/storage/database/sqlx"
)

type Repositories struct {
	Users         user.Repository
	Years         academicyear.Repository
	Enrollments   enrollment.Repository
	Sections      section.Repository
	Students      student.Repository
	Fees          fee.Repository
	Payments      payment.Repository
	Ledger        ledger.Repository
	Notifications notification.Repository
	Remarks       remark.Repository
	RecycleBin    recyclebin.Repository
	Tx            core.Transactor
}

// PostgresRepositories returns the repositories backed by db.
func PostgresRepositories(db *sqlx.DB) Repositories {
	return Repositories{
		Users:         sqlxrepos.NewUserRepository(db),
		Years:         sqlxrepos.NewAcademicYearRepository(db),
		Enrollments:   sqlxrepos.NewEnrollmentRepository(db),
		Sections:      sqlxrepos.NewSectionRepository(db),
		Students:      sqlxrepos.NewStudentRepository(db),
		Fees:          sqlxrepos.NewFeeRepository(db),
		Payments:      sqlxrepos.NewPaymentRepository(db),
		Ledger:        boiledrepos.NewLedgerRepository(db),
		Notifications: sqlxrepos.NewNotificationRepository(db),
		Remarks:       sqlxrepos.NewRemarkRepository(db),
		RecycleBin:    sqlxrepos.NewRecycleBinRepository(db),
		Tx:            database.NewTransactor(db),
	}
}

// InMemRepositories returns the repositories backed by the in-memory store (tests & demo).
func InMemRepositories(db *inmemdb.DB) Repositories {
	return Repositories{
		Users:         inmemdb.NewUserRepository(db),
		Years:         inmemdb.NewAcademicYearRepository(db),
		Enrollments:   inmemdb.NewEnrollmentRepository(db),
		Sections:      inmemdb.NewSectionRepository(db),
		Students:      inmemdb.NewStudentRepository(db),
		Fees:          inmemdb.NewFeeRepository(db),
		Payments:      inmemdb.NewPaymentRepository(db),
		Ledger:        inmemdb.NewLedgerRepository(db),
		Notifications: inmemdb.NewNotificationRepository(db),
		Remarks:       inmemdb.NewRemarkRepository(db),
		RecycleBin:    inmemdb.NewRecycleBinRepository(db),
		Tx:            inmemdb.NewTransactor(db),
	}
}

type Container struct {
	Conf       *core.Config
	Repos      Repositories
	Validate   *validator.Validate
	Translator ut.Translator

	Users         *user.Service
	Years         *academicyear.Service
	Sections      *section.Service
	Students      *student.Service
	Fees          *fee.Service
	Payments      *payment.Service
	Ledger        *ledger.Reconciler
	Notifications *notification.Service
	Remarks       *remark.Service
	RecycleBin    *recyclebin.Service
}

func New(conf *core.Config, repos Repositories, mailSvc core.EmailService) *Container {
	validate, translator := core.NewValidator()
	user.InitValidators(validate, translator)
	enrollment.InitValidators(validate, translator)
	payment.InitValidators(validate, translator)

	c := &Container{
		Conf:       conf,
		Repos:      repos,
		Validate:   validate,
		Translator: translator,
	}

	c.Users = user.NewService(repos.Users)
	c.RecycleBin = recyclebin.NewService(repos.RecycleBin, repos.Tx)
	c.Ledger = ledger.NewReconciler(repos.Ledger, repos.Tx)
	c.Notifications = notification.NewService(repos.Notifications, c.Users, mailSvc, conf)
	c.Years = academicyear.NewService(repos.Years, repos.Enrollments, c.RecycleBin, repos.Tx)
	c.Sections = section.NewService(repos.Sections, c.RecycleBin, repos.Tx)
	c.Remarks = remark.NewService(repos.Remarks, c.RecycleBin, repos.Tx)
	c.Fees = fee.NewService(repos.Fees, c.Years, repos.Enrollments, c.Ledger, c.RecycleBin, repos.Tx)
	c.Students = student.NewService(
		repos.Students, repos.Enrollments, c.Years, c.Sections,
		c.Notifications, c.Ledger, c.RecycleBin, repos.Tx,
	)
	c.Payments = payment.NewService(repos.Payments, c.Students, repos.Enrollments, c.Fees, c.Years, c.Ledger, repos.Tx)

	// new years start with a copy of the previous year's fees
	c.Years.AddPrepopulator(c.Fees)

	c.Students.RegisterBinHandler(c.RecycleBin)
	c.Sections.RegisterBinHandler(c.RecycleBin)
	c.Years.RegisterBinHandler(c.RecycleBin)
	c.Fees.RegisterBinHandler(c.RecycleBin)
	c.Remarks.RegisterBinHandler(c.RecycleBin)
	return c
}
