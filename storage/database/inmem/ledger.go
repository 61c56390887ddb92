package inmemdb

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/trezcool/registrar/core"
	"github.com/trezcool/registrar/core/ledger"
	"github.com/trezcool/registrar/core/payment"
)

type ledgerRepository struct {
	db *DB
}

var _ ledger.Repository = (*ledgerRepository)(nil) // interface compliance check

func NewLedgerRepository(db *DB) *ledgerRepository {
	return &ledgerRepository{db: db}
}

// gradeFor is the student's grade for the year: the enrollment's, else the student's.
func (repo *ledgerRepository) gradeFor(studentID, yearID string) string {
	for _, e := range repo.db.t.enrollments {
		if e.StudentID == studentID && e.AcademicYearID == yearID {
			return e.GradeLevel
		}
	}
	return repo.db.t.students[studentID].GradeLevel
}

func (repo *ledgerRepository) LoadSources(_ context.Context, studentID, yearID string) (ledger.Sources, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	src := ledger.Sources{
		BaseFee:    decimal.Zero,
		NetPaid:    decimal.Zero,
		Additional: decimal.Zero,
		Discount:   decimal.Zero,
	}
	grade := repo.gradeFor(studentID, yearID)
	for _, t := range repo.db.t.templates {
		if t.AcademicYearID == yearID && t.GradeLevel == grade {
			src.BaseFee = t.TotalAmount
			break
		}
	}
	for _, p := range repo.db.t.payments {
		if p.StudentID != studentID || p.AcademicYearID != yearID {
			continue
		}
		src.NetPaid = src.NetPaid.Add(p.NetAmount())
		if src.LastPaymentDate == nil || p.PaymentDate.After(src.LastPaymentDate.Time) {
			d := p.PaymentDate
			src.LastPaymentDate = &d
		}
	}
	for _, a := range repo.db.t.adjustments {
		if a.StudentID != studentID || a.AcademicYearID != yearID {
			continue
		}
		switch a.Type {
		case payment.AdjustmentAdditional:
			src.Additional = src.Additional.Add(a.Amount)
		case payment.AdjustmentDiscount:
			src.Discount = src.Discount.Add(a.Amount)
		}
	}
	return src, nil
}

func (repo *ledgerRepository) GetFeeStatus(_ context.Context, studentID, yearID string) (ledger.FeeStatus, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if fs, ok := repo.db.t.feeStatuses[statusKey{studentID, yearID}]; ok {
		return fs, nil
	}
	return ledger.FeeStatus{}, ledger.ErrNotFound
}

func (repo *ledgerRepository) UpsertFeeStatus(_ context.Context, fs ledger.FeeStatus) (ledger.FeeStatus, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.t.students[fs.StudentID]; !ok {
		return ledger.FeeStatus{}, core.NewNotFoundError("student", fs.StudentID)
	}
	if _, ok := repo.db.t.years[fs.AcademicYearID]; !ok {
		return ledger.FeeStatus{}, core.NewNotFoundError("academic year", fs.AcademicYearID)
	}
	repo.db.t.feeStatuses[statusKey{fs.StudentID, fs.AcademicYearID}] = fs
	return fs, nil
}

func (repo *ledgerRepository) Summarize(_ context.Context, yearID string) (ledger.Summary, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	sum := ledger.NewSummary(yearID)
	for key, fs := range repo.db.t.feeStatuses {
		if key.yearID == yearID {
			sum.Add(fs)
		}
	}
	return sum, nil
}
