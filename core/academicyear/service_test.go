package academicyear_test

import (
	"context"
	"testing"

	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/registrar/core"
	"github.com/trezcool/registrar/core/academicyear"
	"github.com/trezcool/registrar/core/fee"
	"github.com/trezcool/registrar/core/payment"
	"github.com/trezcool/registrar/core/recyclebin"
	testutil "github.com/trezcool/registrar/tests"
)

func activeIDs(t *testing.T, app *testutil.App) []string {
	years, err := app.Years.List(context.Background())
	require.NoError(t, err)
	return lo.FilterMap(years, func(y academicyear.AcademicYear, _ int) (string, bool) { return y.ID, y.IsActive })
}

func TestService_Create(t *testing.T) {
	ctx := context.Background()
	app := testutil.NewApp(t)

	ny := academicyear.NewAcademicYear{
		Name:      "2025-2026",
		StartDate: core.MustParseDate("2025-06-01"),
		EndDate:   core.MustParseDate("2025-05-01"),
	}
	err := ny.Validate(app.Validate)
	assert.True(t, core.IsValidation(err), "end before start")

	y1 := app.CreateYear(t, "2024-2025", 2024, true)
	assert.True(t, y1.IsActive)

	_, err = app.Years.Create(ctx, academicyear.NewAcademicYear{
		Name:      "2024-2025",
		StartDate: core.MustParseDate("2030-06-01"),
		EndDate:   core.MustParseDate("2031-03-31"),
	})
	assert.True(t, core.IsConflict(err), "duplicate name; got %v", err)

	inactive := app.CreateYear(t, "2026-2027", 2026, false)
	assert.Equal(t, []string{y1.ID}, activeIDs(t, app))

	y2 := app.CreateYear(t, "2025-2026", 2025, true)
	assert.Equal(t, []string{y2.ID}, activeIDs(t, app), "one active year at a time")

	active, err := app.Years.GetActive(ctx)
	require.NoError(t, err)
	assert.Equal(t, y2.ID, active.ID)

	resolved, err := app.Years.Resolve(ctx, inactive.ID)
	require.NoError(t, err)
	assert.Equal(t, inactive.ID, resolved.ID)
}

func TestService_Create_CopiesPreviousTemplates(t *testing.T) {
	ctx := context.Background()
	app := testutil.NewApp(t)

	prev := app.CreateYear(t, "2024-2025", 2024, true)
	app.CreateTemplate(t, "Grade 1", prev.ID, testutil.Breakdown("Tuition", 9000, nil), testutil.Breakdown("ID", 150, testutil.Bool(false)))
	app.CreateTemplate(t, "Grade 2", prev.ID, testutil.Breakdown("Tuition", 9500, nil))

	next := app.CreateYear(t, "2025-2026", 2025, true)
	templates, err := app.Fees.ListTemplates(ctx, fee.TemplateFilter{AcademicYearID: next.ID})
	require.NoError(t, err)
	require.Len(t, templates, 2)

	g1, ok := lo.Find(templates, func(tm fee.Template) bool { return tm.GradeLevel == "Grade 1" })
	require.True(t, ok)
	assert.True(t, g1.TotalAmount.Equal(testutil.Dec("9150")))
	require.Len(t, g1.Breakdowns, 2)
	assert.False(t, g1.Breakdowns[1].Refundable())

	old, err := app.Fees.TemplateFor(ctx, "Grade 1", prev.ID)
	require.NoError(t, err)
	assert.NotEqual(t, old.Breakdowns[0].ID, g1.Breakdowns[0].ID, "breakdowns are copied, not shared")
}

func TestService_Lifecycle(t *testing.T) {
	ctx := context.Background()
	app := testutil.NewApp(t)

	y1 := app.CreateYear(t, "2024-2025", 2024, true)
	y2 := app.CreateYear(t, "2025-2026", 2025, false)

	tests := []struct {
		name       string
		id         string
		action     string
		wantActive []string
		wantErr    bool
	}{
		{name: "activate", id: y2.ID, action: academicyear.ActionActivate, wantActive: []string{y2.ID}},
		{name: "close", id: y1.ID, action: academicyear.ActionClose, wantActive: []string{y2.ID}},
		{name: "closed years stay closed", id: y1.ID, action: academicyear.ActionActivate, wantActive: []string{y2.ID}, wantErr: true},
		{name: "end", id: y2.ID, action: academicyear.ActionEnd, wantActive: []string{}},
		{name: "unknown action", id: y2.ID, action: "archive", wantActive: []string{}, wantErr: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := app.Years.Apply(ctx, tc.id, tc.action)
			if tc.wantErr {
				assert.True(t, core.IsValidation(err), "got %v", err)
			} else {
				require.NoError(t, err)
			}
			assert.ElementsMatch(t, tc.wantActive, activeIDs(t, app))
		})
	}

	ended, err := app.Years.Get(ctx, y2.ID)
	require.NoError(t, err)
	assert.True(t, ended.EndDate.Equal(core.Today()))

	_, err = app.Years.GetActive(ctx)
	assert.True(t, core.IsNotFound(err))
}

func TestService_Update(t *testing.T) {
	ctx := context.Background()
	app := testutil.NewApp(t)
	y1 := app.CreateYear(t, "SY 2024", 2024, true)
	app.CreateYear(t, "SY 2025", 2025, false)

	_, err := app.Years.Update(ctx, y1.ID, academicyear.UpdateAcademicYear{Name: "SY 2025"})
	assert.True(t, core.IsConflict(err))

	_, err = app.Years.Update(ctx, y1.ID, academicyear.UpdateAcademicYear{EndDate: core.MustParseDate("2024-01-01")})
	assert.True(t, core.IsValidation(err))

	year, err := app.Years.Update(ctx, y1.ID, academicyear.UpdateAcademicYear{Name: "2024-2025", Action: academicyear.ActionEnd})
	require.NoError(t, err)
	assert.Equal(t, "2024-2025", year.Name)
	assert.False(t, year.IsActive)
}

func TestService_Delete(t *testing.T) {
	ctx := context.Background()
	app := testutil.NewApp(t)

	old := app.CreateYear(t, "2024-2025", 2024, true)
	res := app.Enroll(t, testutil.StudentForm("Rafael", "Cruz", "Grade 4"))
	_, err := app.Payments.Record(ctx, res.ID, "", payment.NewPayment{
		AcademicYearID: old.ID, AmountPaid: testutil.Dec("1000"), PaymentDate: core.Today(), PaymentMethod: payment.MethodCash,
	})
	require.NoError(t, err)

	err = app.Years.Delete(ctx, old.ID, "")
	assert.True(t, core.IsConflict(err), "the active year is kept")

	current := app.CreateYear(t, "2025-2026", 2025, true)
	err = app.Years.Delete(ctx, old.ID, "")
	assert.True(t, core.IsConflict(err), "years with payments are kept")

	spare := app.CreateYear(t, "2026-2027", 2026, false)
	_, err = app.Years.SetActive(ctx, spare.ID)
	require.NoError(t, err)
	app.Enroll(t, testutil.StudentForm("Rafael", "Cruz", "Grade 5"))
	_, err = app.Years.SetActive(ctx, current.ID)
	require.NoError(t, err)

	require.NoError(t, app.RecycleBin.Trash(ctx, recyclebin.EntityAcademicYear, spare.ID, "owner"))
	_, err = app.Years.Get(ctx, spare.ID)
	assert.True(t, core.IsNotFound(err))

	items, err := app.RecycleBin.List(ctx, recyclebin.ListFilter{})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "2026-2027", items[0].EntityName)
	assert.Equal(t, "owner", items[0].DeletedBy)

	_, err = app.RecycleBin.Restore(ctx, items[0].ID)
	require.NoError(t, err)
	restored, err := app.Years.Get(ctx, spare.ID)
	require.NoError(t, err)
	assert.False(t, restored.IsActive, "restored years come back inactive")

	detail, err := app.Students.Detail(ctx, res.ID)
	require.NoError(t, err)
	assert.Len(t, detail.Enrollments, 2, "enrollments come back with the year")
}
