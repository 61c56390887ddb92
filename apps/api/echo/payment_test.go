package echoapi_test

import (
	"net/http"
	"testing"

	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	. "github.com/trezcool/registrar/apps/api/echo"
	"github.com/trezcool/registrar/core"
	"github.com/trezcool/registrar/core/fee"
	"github.com/trezcool/registrar/core/ledger"
	"github.com/trezcool/registrar/core/payment"
	testutil "github.com/trezcool/registrar/tests"
)

func Test_paymentApi(t *testing.T) {
	e := setup(t)
	cashierToken := getToken(t, e, e.cashier)
	viewerToken := getToken(t, e, e.viewer)

	year := e.CreateYear(t, "2025-2026", 2025, true)
	tmpl := e.CreateTemplate(t, "Grade 2", year.ID,
		testutil.Breakdown("Tuition", 10000, nil),
		testutil.Breakdown("Books", 2000, testutil.Bool(false)),
	)
	tuition, _ := lo.Find(tmpl.Breakdowns, func(b fee.Breakdown) bool { return b.Description == "Tuition" })
	books, _ := lo.Find(tmpl.Breakdowns, func(b fee.Breakdown) bool { return b.Description == "Books" })
	stud := e.Enroll(t, testutil.StudentForm("Lea", "Salonga", "Grade 2"))
	base := "/api/students/" + stud.ID

	np := payment.NewPayment{
		AmountPaid:    testutil.Dec("3000"),
		PaymentDate:   core.MustParseDate("2025-07-01"),
		PaymentMethod: payment.MethodCash,
		LineItems: []payment.NewLineItem{
			{FeeBreakdownID: tuition.ID, Amount: testutil.Dec("2500")},
			{FeeBreakdownID: books.ID, Amount: testutil.Dec("500")},
		},
	}

	e.run(t, []httpTest{
		{
			name: "cashier required", method: http.MethodPost, path: base + "/payments", body: marchallObj(t, np),
			token: getToken(t, e, e.registrar), wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "permission denied"}),
		},
		{
			name: "invalid payment", method: http.MethodPost, path: base + "/payments",
			body: []byte(`{"amountPaid":"0","paymentMethod":"GOLD"}`), token: cashierToken, wantCode: http.StatusBadRequest,
		},
		{
			name: "unknown student", method: http.MethodPost, path: "/api/students/nope/payments", body: marchallObj(t, np),
			token: cashierToken, wantCode: http.StatusNotFound,
		},
		{name: "no payments yet", path: base + "/payments", token: viewerToken, wantData: []byte(`[]`)},
	})

	var pmt payment.Payment
	e.doJSON(t, http.MethodPost, base+"/payments", cashierToken, np, http.StatusCreated, &pmt)
	assert.Equal(t, e.cashier.ID, pmt.RecordedBy)
	assert.Equal(t, year.ID, pmt.AcademicYearID, "defaults to the active year")
	require.Len(t, pmt.LineItems, 2)

	var fs ledger.FeeStatus
	e.doJSON(t, http.MethodGet, base+"/fee-status", viewerToken, nil, http.StatusOK, &fs)
	assert.Equal(t, ledger.StatusPartial, fs.PaymentStatus)
	assert.True(t, fs.TotalDue.Equal(testutil.Dec("12000")), fs.TotalDue.String())
	assert.True(t, fs.Balance.Equal(testutil.Dec("9000")), fs.Balance.String())

	t.Run("refund", func(t *testing.T) {
		rr := payment.RefundRequest{PaymentID: pmt.ID, Amount: testutil.Dec("1000"), Reason: "transfer"}
		var refunded payment.Payment
		e.doJSON(t, http.MethodPatch, base+"/payments", cashierToken, rr, http.StatusOK, &refunded)
		assert.True(t, refunded.IsRefunded)
		assert.True(t, refunded.RefundAmount.Equal(testutil.Dec("1000")))
		assert.Equal(t, e.cashier.ID, refunded.RefundedBy)

		rr.Amount = testutil.Dec("5000")
		rec := e.do(http.MethodPatch, base+"/payments", cashierToken, marchallObj(t, rr))
		assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())

		var payments []payment.Payment
		e.doJSON(t, http.MethodGet, base+"/payments?academicYearId="+year.ID, viewerToken, nil, http.StatusOK, &payments)
		require.Len(t, payments, 1)
		assert.Len(t, payments[0].Refunds, 1)
	})

	t.Run("adjustments", func(t *testing.T) {
		na := payment.NewAdjustment{Type: payment.AdjustmentDiscount, Amount: testutil.Dec("1500"), Reason: "sibling discount"}
		var adj payment.Adjustment
		e.doJSON(t, http.MethodPost, base+"/adjustments", cashierToken, na, http.StatusCreated, &adj)
		assert.Equal(t, e.cashier.ID, adj.CreatedBy)

		var adjs []payment.Adjustment
		e.doJSON(t, http.MethodGet, base+"/adjustments", viewerToken, nil, http.StatusOK, &adjs)
		assert.Len(t, adjs, 1)

		var fs ledger.FeeStatus
		e.doJSON(t, http.MethodGet, base+"/fee-status", viewerToken, nil, http.StatusOK, &fs)
		assert.True(t, fs.TotalPaid.Equal(testutil.Dec("2000")), fs.TotalPaid.String())
		assert.True(t, fs.Balance.Equal(fs.TotalDue.Sub(fs.TotalPaid)))
	})

	t.Run("late flag", func(t *testing.T) {
		rec := e.do(http.MethodPatch, base+"/fee-status", cashierToken, []byte(`{}`))
		assert.Equal(t, http.StatusBadRequest, rec.Code)

		var fs ledger.FeeStatus
		e.doJSON(t, http.MethodPatch, base+"/fee-status", cashierToken,
			FeeStatusPatch{IsLatePayment: testutil.Bool(true)}, http.StatusOK, &fs)
		assert.True(t, fs.IsLatePayment)

		e.doJSON(t, http.MethodGet, base+"/fee-status", viewerToken, nil, http.StatusOK, &fs)
		assert.True(t, fs.IsLatePayment, "recalculation keeps the flag")

		var sum ledger.Summary
		e.doJSON(t, http.MethodGet, "/api/fees/summary", viewerToken, nil, http.StatusOK, &sum)
		assert.Equal(t, year.ID, sum.AcademicYearID)
		assert.Equal(t, 1, sum.Students)
		assert.Equal(t, 1, sum.LatePayments)
	})
}
