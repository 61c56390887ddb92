package fee_test

import (
	"context"
	"testing"

	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/registrar/core"
	"github.com/trezcool/registrar/core/fee"
	"github.com/trezcool/registrar/core/payment"
	"github.com/trezcool/registrar/core/recyclebin"
	testutil "github.com/trezcool/registrar/tests"
)

func TestService_Templates(t *testing.T) {
	ctx := context.Background()
	app := testutil.NewApp(t)
	year := app.CreateYear(t, "2025-2026", 2025, true)
	res := app.Enroll(t, testutil.StudentForm("Gabriela", "Silang", "Grade 8"))

	tf := fee.TemplateForm{Name: "Grade 8", GradeLevel: "Grade 8", Breakdowns: []fee.BreakdownForm{}}
	assert.Error(t, tf.Validate(app.Validate), "at least one breakdown")

	tmpl := app.CreateTemplate(t, "Grade 8", "", testutil.Breakdown("Tuition", 20000, nil), testutil.Breakdown("Lab", 1500.5, nil))
	assert.Equal(t, year.ID, tmpl.AcademicYearID, "defaults to the active year")
	assert.True(t, tmpl.TotalAmount.Equal(testutil.Dec("21500.5")))

	_, err := app.Fees.CreateTemplate(ctx, fee.TemplateForm{
		Name: "dup", GradeLevel: "Grade 8", Breakdowns: []fee.BreakdownForm{testutil.Breakdown("X", 1, nil)},
	})
	assert.True(t, core.IsConflict(err))

	summary, err := app.Ledger.Summary(ctx, year.ID)
	require.NoError(t, err)
	assert.True(t, summary.TotalDue.Equal(testutil.Dec("21500.5")), "enrolled students follow the template")

	tuition, _ := lo.Find(tmpl.Breakdowns, func(b fee.Breakdown) bool { return b.Description == "Tuition" })
	_, err = app.Payments.Record(ctx, res.ID, "", payment.NewPayment{
		AmountPaid: testutil.Dec("1000"), PaymentDate: core.Today(), PaymentMethod: payment.MethodCash,
		LineItems: []payment.NewLineItem{{FeeBreakdownID: tuition.ID, Amount: testutil.Dec("1000")}},
	})
	require.NoError(t, err)

	// tuition has payments, so it must stay
	_, err = app.Fees.UpdateTemplate(ctx, tmpl.ID, fee.TemplateForm{
		Name: "Grade 8", GradeLevel: "Grade 8", Breakdowns: []fee.BreakdownForm{testutil.Breakdown("Tuition", 21000, nil)},
	})
	assert.True(t, core.IsConflict(err), "got %v", err)

	upd := testutil.Breakdown("Tuition", 21000, nil)
	upd.ID = tuition.ID
	tmpl, err = app.Fees.UpdateTemplate(ctx, tmpl.ID, fee.TemplateForm{
		Name: "Grade 8 fees", GradeLevel: "Grade 8", Breakdowns: []fee.BreakdownForm{upd},
	})
	require.NoError(t, err)
	require.Len(t, tmpl.Breakdowns, 1)
	assert.Equal(t, tuition.ID, tmpl.Breakdowns[0].ID)

	summary, err = app.Ledger.Summary(ctx, year.ID)
	require.NoError(t, err)
	assert.True(t, summary.TotalBalance.Equal(testutil.Dec("20000")))

	err = app.Fees.DeleteTemplate(ctx, tmpl.ID, "")
	assert.True(t, core.IsConflict(err))
}

func TestService_DeleteTemplate(t *testing.T) {
	ctx := context.Background()
	app := testutil.NewApp(t)
	year := app.CreateYear(t, "2025-2026", 2025, true)
	tmpl := app.CreateTemplate(t, "Kinder", year.ID, testutil.Breakdown("Tuition", 8000, nil))

	require.NoError(t, app.RecycleBin.Trash(ctx, recyclebin.EntityFeeTemplate, tmpl.ID, "owner"))
	_, err := app.Fees.TemplateFor(ctx, "Kinder", year.ID)
	assert.True(t, core.IsNotFound(err))

	items, err := app.RecycleBin.List(ctx, recyclebin.ListFilter{EntityType: recyclebin.EntityFeeTemplate})
	require.NoError(t, err)
	require.Len(t, items, 1)

	_, err = app.RecycleBin.Restore(ctx, items[0].ID)
	require.NoError(t, err)
	restored, err := app.Fees.TemplateFor(ctx, "Kinder", year.ID)
	require.NoError(t, err)
	assert.Equal(t, tmpl.ID, restored.ID)
	assert.Len(t, restored.Breakdowns, 1)
}

func TestService_OptionalFees(t *testing.T) {
	ctx := context.Background()
	app := testutil.NewApp(t)
	app.CreateYear(t, "2025-2026", 2025, true)
	res := app.Enroll(t, testutil.StudentForm("Andres", "Bonifacio", "Grade 9"))

	of := fee.OptionalFeeForm{
		Name:   "Uniform",
		Amount: testutil.Dec("800"),
		Variations: []fee.VariationForm{
			{Name: "Small", Amount: testutil.Dec("750")},
			{Name: "Large", Amount: testutil.Dec("900")},
		},
	}
	require.NoError(t, of.Validate(app.Validate))
	uniform, err := app.Fees.CreateOptionalFee(ctx, of)
	require.NoError(t, err)
	require.Len(t, uniform.Variations, 2)
	large, ok := lo.Find(uniform.Variations, func(v fee.Variation) bool { return v.Name == "Large" })
	require.True(t, ok)

	_, err = app.Fees.AssignOrPay(ctx, res.ID, fee.AssignForm{OptionalFeeID: uniform.ID, VariationID: "nope"})
	assert.True(t, core.IsValidation(err))

	sof, err := app.Fees.AssignOrPay(ctx, res.ID, fee.AssignForm{OptionalFeeID: uniform.ID, VariationID: large.ID, PayAmount: testutil.Dec("500")})
	require.NoError(t, err)
	assert.True(t, sof.Amount.Equal(testutil.Dec("900")))
	assert.False(t, sof.IsPaid)

	// paying again tops up the same assignment, capped at its amount
	sof, err = app.Fees.AssignOrPay(ctx, res.ID, fee.AssignForm{OptionalFeeID: uniform.ID, PayAmount: testutil.Dec("1000")})
	require.NoError(t, err)
	assert.True(t, sof.PaidAmount.Equal(testutil.Dec("900")))
	assert.True(t, sof.IsPaid)

	fees, err := app.Fees.ListStudentOptionalFees(ctx, res.ID, "")
	require.NoError(t, err)
	require.Len(t, fees, 1)
	assert.Equal(t, "Uniform", fees[0].OptionalFeeName)

	err = app.Fees.DeleteOptionalFee(ctx, uniform.ID)
	assert.True(t, core.IsConflict(err), "assigned fees are kept")

	inactive := false
	_, err = app.Fees.UpdateOptionalFee(ctx, uniform.ID, fee.OptionalFeePatch{IsActive: &inactive, Variations: []fee.VariationForm{}})
	require.NoError(t, err)
	active, err := app.Fees.ListOptionalFees(ctx, true)
	require.NoError(t, err)
	assert.Empty(t, active)

	fees, err = app.Fees.ListStudentOptionalFees(ctx, res.ID, "")
	require.NoError(t, err)
	assert.Nil(t, fees[0].VariationID, "removed variations are unlinked")

	require.NoError(t, app.Fees.Unassign(ctx, res.ID, uniform.ID, ""))
	require.NoError(t, app.Fees.DeleteOptionalFee(ctx, uniform.ID))
	err = app.Fees.Unassign(ctx, res.ID, uniform.ID, "")
	assert.True(t, core.IsNotFound(err))
}
