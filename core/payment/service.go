package payment

import (
	"context"
	"fmt"
	"math/rand"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/pkg/errors"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/trezcool/registrar/core"
	"github.com/trezcool/registrar/core/academicyear"
	"github.com/trezcool/registrar/core/enrollment"
	"github.com/trezcool/registrar/core/fee"
	"github.com/trezcool/registrar/core/ledger"
	"github.com/trezcool/registrar/core/student"
)

var (
	errNoRefundableAmount = core.NewFieldError("amount", "no refundable amount remaining")
	errRefundBlocked      = core.NewFieldError("paymentId",
		"refund blocked: the payment has no line items and the fee template has non-refundable fees")
)

type (
	yearResolver interface {
		Resolve(ctx context.Context, id string) (academicyear.AcademicYear, error)
	}

	studentGetter interface {
		Get(ctx context.Context, id string) (student.Student, error)
	}

	feeFinder interface {
		TemplateFor(ctx context.Context, gradeLevel, yearID string) (fee.Template, error)
		GetBreakdown(ctx context.Context, id string) (fee.Breakdown, error)
	}

	enrollmentGetter interface {
		GetEnrollment(ctx context.Context, studentID, yearID string) (enrollment.Enrollment, error)
	}
)

type Service struct {
	repo        Repository
	students    studentGetter
	enrollments enrollmentGetter
	fees        feeFinder
	years       yearResolver
	ledger      *ledger.Reconciler
	tx          core.Transactor
}

func NewService(
	repo Repository,
	students studentGetter,
	enrollments enrollmentGetter,
	fees feeFinder,
	years yearResolver,
	reconciler *ledger.Reconciler,
	tx core.Transactor,
) *Service {
	return &Service{
		repo:        repo,
		students:    students,
		enrollments: enrollments,
		fees:        fees,
		years:       years,
		ledger:      reconciler,
		tx:          tx,
	}
}

// gradeFor is the student's grade for the year: the enrollment's, else the student's current one.
// The ledger prices the year from the same grade.
func (svc *Service) gradeFor(ctx context.Context, stud student.Student, yearID string) (string, error) {
	enr, err := svc.enrollments.GetEnrollment(ctx, stud.ID, yearID)
	switch {
	case err == nil:
		return enr.GradeLevel, nil
	case core.IsNotFound(err):
		return stud.GradeLevel, nil
	default:
		return "", errors.Wrap(err, "getting enrollment")
	}
}

// template returns the fee template of the student's grade for the year, or nil.
func (svc *Service) template(ctx context.Context, stud student.Student, yearID string) (*fee.Template, error) {
	grade, err := svc.gradeFor(ctx, stud, yearID)
	if err != nil {
		return nil, err
	}
	tmpl, err := svc.fees.TemplateFor(ctx, grade, yearID)
	if err != nil {
		if core.IsNotFound(err) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "getting fee template")
	}
	return &tmpl, nil
}

func (svc *Service) List(ctx context.Context, studentID, yearID string) ([]Payment, error) {
	if _, err := svc.students.Get(ctx, studentID); err != nil {
		return nil, err
	}
	year, err := svc.years.Resolve(ctx, yearID)
	if err != nil {
		return nil, err
	}
	return svc.repo.ListPayments(ctx, studentID, year.ID)
}

// Record validates the line items against the template of the student and saves the payment.
func (svc *Service) Record(ctx context.Context, studentID, recordedBy string, np NewPayment) (Payment, error) {
	var pmt Payment
	err := svc.tx.WithinTx(ctx, func(ctx context.Context) error {
		stud, err := svc.students.Get(ctx, studentID)
		if err != nil {
			return err
		}
		year, err := svc.years.Resolve(ctx, np.AcademicYearID)
		if err != nil {
			return err
		}

		pmt = Payment{
			StudentID:       stud.ID,
			AcademicYearID:  year.ID,
			AmountPaid:      np.AmountPaid,
			PaymentDate:     np.PaymentDate,
			PaymentMethod:   np.PaymentMethod,
			ReferenceNumber: np.ReferenceNumber,
			ReceiptNumber:   np.ReceiptNumber,
			Remarks:         np.Remarks,
			RecordedBy:      recordedBy,
			RefundAmount:    decimal.Zero,
			CreatedAt:       core.NowFunc(),
		}

		if len(np.LineItems) > 0 {
			if pmt.LineItems, err = svc.checkLineItems(ctx, stud, year.ID, np); err != nil {
				return err
			}
		}

		if pmt, err = svc.repo.CreatePayment(ctx, pmt); err != nil {
			return errors.Wrap(err, "creating payment")
		}
		_, err = svc.ledger.Recalculate(ctx, stud.ID, year.ID)
		return errors.Wrap(err, "recalculating fee status")
	})
	return pmt, err
}

func (svc *Service) checkLineItems(ctx context.Context, stud student.Student, yearID string, np NewPayment) ([]LineItem, error) {
	total := lo.Reduce(np.LineItems, func(acc decimal.Decimal, li NewLineItem, _ int) decimal.Decimal {
		return acc.Add(li.Amount)
	}, decimal.Zero)
	if !total.Equal(np.AmountPaid) {
		return nil, core.NewFieldError("lineItems", "line items must add up to amountPaid")
	}

	tmpl, err := svc.template(ctx, stud, yearID)
	if err != nil {
		return nil, err
	}
	if tmpl == nil {
		return nil, core.NewFieldError("lineItems", "no fee template for the student's grade in this academic year")
	}

	requested := make(map[string]decimal.Decimal)
	items := make([]LineItem, 0, len(np.LineItems))
	for _, li := range np.LineItems {
		bd, ok := tmpl.Breakdown(li.FeeBreakdownID)
		if !ok {
			return nil, core.NewFieldError("lineItems", "unknown fee breakdown: "+li.FeeBreakdownID)
		}
		desc := li.Description
		if desc == "" {
			desc = bd.Description
		}
		bdID := bd.ID
		items = append(items, LineItem{FeeBreakdownID: &bdID, Description: desc, Amount: li.Amount})
		requested[bd.ID] = requested[bd.ID].Add(li.Amount)
	}

	prior, err := svc.repo.ListPayments(ctx, stud.ID, yearID)
	if err != nil {
		return nil, errors.Wrap(err, "listing payments")
	}
	bds, err := svc.breakdowns(ctx, prior...)
	if err != nil {
		return nil, err
	}
	paid := PaidPerBreakdown(prior, bds)
	for bdID, amount := range requested {
		bd, _ := tmpl.Breakdown(bdID)
		remaining := bd.Amount.Sub(paid[bdID])
		if amount.GreaterThan(remaining) {
			return nil, core.NewFieldError("lineItems",
				fmt.Sprintf("amount exceeds remaining balance of %s for %s", remaining.StringFixed(2), bd.Description))
		}
	}
	return items, nil
}

// Refund records a (partial) refund and keeps the payment's aggregate refund fields in sync.
func (svc *Service) Refund(ctx context.Context, studentID, refundedBy string, rr RefundRequest) (Payment, error) {
	var pmt Payment
	err := svc.tx.WithinTx(ctx, func(ctx context.Context) error {
		stud, err := svc.students.Get(ctx, studentID)
		if err != nil {
			return err
		}
		if pmt, err = svc.repo.GetPayment(ctx, rr.PaymentID); err != nil {
			return err
		}
		if pmt.StudentID != stud.ID {
			return ErrNotFound
		}

		tmpl, err := svc.template(ctx, stud, pmt.AcademicYearID)
		if err != nil {
			return err
		}
		bds, err := svc.breakdowns(ctx, pmt)
		if err != nil {
			return err
		}
		refundable, err := RefundableAmount(pmt, bds, tmpl)
		if err != nil {
			return err
		}
		remaining := refundable.Sub(pmt.RefundAmount)
		if !remaining.IsPositive() {
			return errNoRefundableAmount
		}
		if rr.Amount.GreaterThan(remaining) {
			return core.NewFieldError("amount", "refund exceeds the refundable balance of "+remaining.StringFixed(2))
		}

		now := core.NowFunc()
		ref, err := svc.repo.CreateRefund(ctx, Refund{
			RefundID:     NewRefundID(stud.ID, now),
			PaymentID:    pmt.ID,
			Amount:       rr.Amount,
			Reason:       rr.Reason,
			RefundMethod: rr.RefundMethod,
			RefundedBy:   refundedBy,
			RefundDate:   now,
		})
		if err != nil {
			return errors.Wrap(err, "creating refund")
		}

		pmt.Refunds = append(pmt.Refunds[:len(pmt.Refunds):len(pmt.Refunds)], ref)
		pmt.RefundAmount = SumRefunds(pmt.Refunds)
		pmt.IsRefunded = true
		pmt.RefundDate = &now
		pmt.RefundReason = rr.Reason
		pmt.RefundedBy = refundedBy
		if err = svc.repo.UpdateRefundTotals(ctx, pmt); err != nil {
			return errors.Wrap(err, "updating refund totals")
		}

		_, err = svc.ledger.Recalculate(ctx, stud.ID, pmt.AcademicYearID)
		return errors.Wrap(err, "recalculating fee status")
	})
	return pmt, err
}

// Adjustments

func (svc *Service) ListAdjustments(ctx context.Context, studentID, yearID string) ([]Adjustment, error) {
	if _, err := svc.students.Get(ctx, studentID); err != nil {
		return nil, err
	}
	year, err := svc.years.Resolve(ctx, yearID)
	if err != nil {
		return nil, err
	}
	return svc.repo.ListAdjustments(ctx, studentID, year.ID)
}

func (svc *Service) CreateAdjustment(ctx context.Context, studentID, createdBy string, na NewAdjustment) (Adjustment, error) {
	var adj Adjustment
	err := svc.tx.WithinTx(ctx, func(ctx context.Context) error {
		stud, err := svc.students.Get(ctx, studentID)
		if err != nil {
			return err
		}
		year, err := svc.years.Resolve(ctx, na.AcademicYearID)
		if err != nil {
			return err
		}
		adj, err = svc.repo.CreateAdjustment(ctx, Adjustment{
			StudentID:      stud.ID,
			AcademicYearID: year.ID,
			Type:           na.Type,
			Amount:         na.Amount,
			Reason:         na.Reason,
			CreatedBy:      createdBy,
			CreatedAt:      core.NowFunc(),
		})
		if err != nil {
			return errors.Wrap(err, "creating adjustment")
		}
		_, err = svc.ledger.Recalculate(ctx, stud.ID, year.ID)
		return errors.Wrap(err, "recalculating fee status")
	})
	return adj, err
}

// Refund eligibility

// breakdowns loads the breakdown linked by each line item, by its own id. Ids that no longer
// resolve are left out of the map.
func (svc *Service) breakdowns(ctx context.Context, payments ...Payment) (map[string]fee.Breakdown, error) {
	bds := make(map[string]fee.Breakdown)
	seen := make(map[string]bool)
	for _, p := range payments {
		for _, li := range p.LineItems {
			if li.FeeBreakdownID == nil || seen[*li.FeeBreakdownID] {
				continue
			}
			id := *li.FeeBreakdownID
			seen[id] = true
			bd, err := svc.fees.GetBreakdown(ctx, id)
			if err != nil {
				if core.IsNotFound(err) {
					continue
				}
				return nil, errors.Wrap(err, "getting fee breakdown")
			}
			bds[id] = bd
		}
	}
	return bds, nil
}

// itemRefundable: an unlinked item is refundable, a linked one only if its breakdown still
// exists and is refundable.
func itemRefundable(li LineItem, bds map[string]fee.Breakdown) bool {
	if li.FeeBreakdownID == nil {
		return true
	}
	bd, ok := bds[*li.FeeBreakdownID]
	return ok && bd.Refundable()
}

// RefundableAmount is the part of a payment that may be refunded: its refundable line items,
// or the whole amount when it has none and the template has no non-refundable fee.
// bds holds the breakdowns the line items link to.
func RefundableAmount(p Payment, bds map[string]fee.Breakdown, tmpl *fee.Template) (decimal.Decimal, error) {
	if len(p.LineItems) == 0 {
		if tmpl != nil && tmpl.HasNonRefundable() {
			return decimal.Zero, errRefundBlocked
		}
		return p.AmountPaid, nil
	}
	total := decimal.Zero
	for _, li := range p.LineItems {
		if itemRefundable(li, bds) {
			total = total.Add(li.Amount)
		}
	}
	return total, nil
}

// PaidPerBreakdown nets every payment's line items of their proportional share of refunds.
func PaidPerBreakdown(payments []Payment, bds map[string]fee.Breakdown) map[string]decimal.Decimal {
	paid := make(map[string]decimal.Decimal)
	for _, p := range payments {
		refundable, err := RefundableAmount(p, bds, nil)
		if err != nil {
			refundable = decimal.Zero
		}
		for _, li := range p.LineItems {
			if li.FeeBreakdownID == nil {
				continue
			}
			amount := li.Amount
			if p.RefundAmount.IsPositive() && refundable.IsPositive() && itemRefundable(li, bds) {
				share := p.RefundAmount.Mul(li.Amount).Div(refundable)
				amount = amount.Sub(share)
			}
			paid[*li.FeeBreakdownID] = paid[*li.FeeBreakdownID].Add(amount)
		}
	}
	return paid
}

// NewRefundID builds REF-<last 6 alphanumerics of the student id>-<base36 millis>-<2 random base36>.
func NewRefundID(studentID string, now time.Time) string {
	alnum := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return r
		}
		return -1
	}, studentID)
	if len(alnum) > 6 {
		alnum = alnum[len(alnum)-6:]
	}
	stamp := strconv.FormatInt(now.UnixNano()/int64(time.Millisecond), 36)
	suffix := strconv.FormatInt(rand.Int63n(36*36), 36)
	if len(suffix) < 2 {
		suffix = "0" + suffix
	}
	return strings.ToUpper("REF-" + alnum + "-" + stamp + "-" + suffix)
}
