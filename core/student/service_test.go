package student_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/registrar/core"
	"github.com/trezcool/registrar/core/enrollment"
	"github.com/trezcool/registrar/core/ledger"
	"github.com/trezcool/registrar/core/notification"
	"github.com/trezcool/registrar/core/payment"
	"github.com/trezcool/registrar/core/recyclebin"
	"github.com/trezcool/registrar/core/student"
	"github.com/trezcool/registrar/core/user"
	testutil "github.com/trezcool/registrar/tests"
)

func setup(t *testing.T) (*testutil.App, user.User) {
	app := testutil.NewApp(t)
	admin := testutil.CreateUser(t, app.Repos.Users, "Registrar", "registrar", "registrar@school.test", "", []string{user.RoleAdminRegistrar}, true)
	return app, admin
}

func TestService_Enroll(t *testing.T) {
	ctx := context.Background()
	app, admin := setup(t)

	// no active year
	f := testutil.StudentForm("Juan", "Dela Cruz", "Grade 1")
	require.NoError(t, f.Validate(app.Validate))
	_, err := app.Students.Enroll(ctx, f)
	assert.True(t, core.IsValidation(err), "got %v", err)

	year := app.CreateYear(t, "2025-2026", 2025, true)
	app.CreateTemplate(t, "Grade 1", year.ID, testutil.Breakdown("Tuition", 15000, nil), testutil.Breakdown("Books", 3000, nil))
	sec := app.CreateSection(t, "Sampaguita", "Grade 1")

	f.SectionID = sec.ID
	f.RemarkLabels = []string{"Scholar"}
	res := app.Enroll(t, f)

	assert.False(t, res.IsReenrollment)
	assert.Equal(t, enrollment.StatusPending, res.EnrollmentStatus)
	assert.Equal(t, enrollment.StatusPending, res.Enrollment.Status)
	assert.Equal(t, year.ID, res.Enrollment.AcademicYearID)
	assert.Equal(t, sec.ID, core.StringValue(res.Enrollment.SectionID))

	// admins are notified
	inbox, err := app.Notifications.List(ctx, notification.QueryFilter{UserID: admin.ID})
	require.NoError(t, err)
	require.Len(t, inbox.Notifications, 1)
	assert.Equal(t, 1, inbox.UnreadCount)
	assert.Equal(t, notification.TypeEnrollment, inbox.Notifications[0].Type)
	assert.Equal(t, "New enrollment", inbox.Notifications[0].Title)

	// the ledger is seeded from the template
	summary, err := app.Ledger.Summary(ctx, year.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Students)
	assert.Equal(t, 1, summary.Counts[ledger.StatusUnpaid])
	assert.True(t, summary.TotalDue.Equal(testutil.Dec("18000")))

	detail, err := app.Students.Detail(ctx, res.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"Scholar"}, detail.RemarkLabels)
	require.Len(t, detail.Enrollments, 1)
	assert.Equal(t, "2025-2026", detail.Enrollments[0].AcademicYearName)
	assert.Equal(t, "Sampaguita", detail.Enrollments[0].SectionName)

	// same student, same year
	_, err = app.Students.Enroll(ctx, f)
	assert.True(t, core.IsConflict(err), "got %v", err)
}

func TestService_Enroll_Reenrollment(t *testing.T) {
	ctx := context.Background()
	app, _ := setup(t)

	prev := app.CreateYear(t, "2024-2025", 2024, true)
	f := testutil.StudentForm("Maria", "Santos", "Grade 3")
	f.LRN = "123456789012"
	first := app.Enroll(t, f)

	app.CreateYear(t, "2025-2026", 2025, true)
	f.GradeLevel = "Grade 4"
	f.FirstName = "MARIA"
	second := app.Enroll(t, f)

	assert.True(t, second.IsReenrollment)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "Grade 4", second.GradeLevel)
	assert.NotEqual(t, prev.ID, second.Enrollment.AcademicYearID)

	detail, err := app.Students.Detail(ctx, first.ID)
	require.NoError(t, err)
	require.Len(t, detail.Enrollments, 2)
	assert.Equal(t, "2025-2026", detail.Enrollments[0].AcademicYearName, "newest year first")
	assert.Equal(t, "Grade 3", detail.Enrollments[1].GradeLevel)
}

func TestService_Enroll_SectionChecks(t *testing.T) {
	ctx := context.Background()
	app, _ := setup(t)
	app.CreateYear(t, "2025-2026", 2025, true)
	sec := app.CreateSection(t, "Rosal", "Grade 2")

	tests := []struct {
		name      string
		sectionID string
		grade     string
	}{
		{name: "unknown section", sectionID: "nope", grade: "Grade 2"},
		{name: "section of another grade", sectionID: sec.ID, grade: "Grade 5"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := testutil.StudentForm("Pedro", "Reyes", tc.grade)
			f.SectionID = tc.sectionID
			require.NoError(t, f.Validate(app.Validate))
			_, err := app.Students.Enroll(ctx, f)
			assert.True(t, core.IsValidation(err), "got %v", err)
		})
	}
}

func TestService_Update_StatusTransitions(t *testing.T) {
	ctx := context.Background()
	app, admin := setup(t)
	app.CreateYear(t, "2025-2026", 2025, true)
	res := app.Enroll(t, testutil.StudentForm("Ana", "Lopez", "Kinder"))

	f := testutil.StudentForm("Ana", "Lopez", "Kinder")
	f.EnrollmentStatus = enrollment.StatusTransferred
	require.NoError(t, f.Validate(app.Validate))
	_, err := app.Students.Update(ctx, res.ID, f)
	assert.True(t, core.IsValidation(err), "PENDING cannot go to TRANSFERRED")

	f.EnrollmentStatus = enrollment.StatusEnrolled
	stud, err := app.Students.Update(ctx, res.ID, f)
	require.NoError(t, err)
	assert.Equal(t, enrollment.StatusEnrolled, stud.EnrollmentStatus)

	// enrollment notifications are cleared once enrolled
	inbox, err := app.Notifications.List(ctx, notification.QueryFilter{UserID: admin.ID})
	require.NoError(t, err)
	assert.Empty(t, inbox.Notifications)

	f.EnrollmentStatus = enrollment.StatusDropped
	stud, err = app.Students.Update(ctx, res.ID, f)
	require.NoError(t, err)
	assert.Equal(t, enrollment.StatusDropped, stud.EnrollmentStatus)
}

func TestService_Switch(t *testing.T) {
	ctx := context.Background()
	app, _ := setup(t)
	year := app.CreateYear(t, "2025-2026", 2025, true)
	app.CreateTemplate(t, "Grade 1", year.ID, testutil.Breakdown("Tuition", 10000, nil))
	app.CreateTemplate(t, "Grade 2", year.ID, testutil.Breakdown("Tuition", 12000, nil))
	g1 := app.CreateSection(t, "A", "Grade 1")
	g2 := app.CreateSection(t, "B", "Grade 2")

	f := testutil.StudentForm("Jose", "Rizal", "Grade 1")
	f.SectionID = g1.ID
	res := app.Enroll(t, f)

	stud, err := app.Students.Switch(ctx, res.ID, student.SwitchForm{GradeLevel: "Grade 2"})
	require.NoError(t, err)
	assert.Equal(t, "Grade 2", stud.GradeLevel)
	assert.Nil(t, stud.SectionID, "the old section belongs to the old grade")

	sid := g2.ID
	stud, err = app.Students.Switch(ctx, res.ID, student.SwitchForm{SectionID: &sid})
	require.NoError(t, err)
	assert.Equal(t, g2.ID, core.StringValue(stud.SectionID))

	summary, err := app.Ledger.Summary(ctx, year.ID)
	require.NoError(t, err)
	assert.True(t, summary.TotalDue.Equal(testutil.Dec("12000")))
}

func TestService_Delete(t *testing.T) {
	ctx := context.Background()
	app, admin := setup(t)
	year := app.CreateYear(t, "2025-2026", 2025, true)

	keep := app.Enroll(t, testutil.StudentForm("Paid", "Up", "Grade 1"))
	_, err := app.Payments.Record(ctx, keep.ID, admin.ID, payment.NewPayment{
		AcademicYearID: year.ID,
		AmountPaid:     testutil.Dec("500"),
		PaymentDate:    core.Today(),
		PaymentMethod:  payment.MethodCash,
	})
	require.NoError(t, err)
	err = app.Students.Delete(ctx, keep.ID, admin.ID)
	assert.True(t, core.IsConflict(err), "students with payments are kept; got %v", err)

	gone := app.Enroll(t, testutil.StudentForm("To", "Delete", "Grade 1"))
	require.NoError(t, app.Students.Delete(ctx, gone.ID, admin.ID))

	_, err = app.Students.Get(ctx, gone.ID)
	assert.True(t, core.IsNotFound(err))

	items, err := app.RecycleBin.List(ctx, recyclebin.ListFilter{EntityType: recyclebin.EntityStudent})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "To Delete", items[0].EntityName)

	// restoring brings back the student and its enrollment
	_, err = app.RecycleBin.Restore(ctx, items[0].ID)
	require.NoError(t, err)
	detail, err := app.Students.Detail(ctx, gone.ID)
	require.NoError(t, err)
	assert.Len(t, detail.Enrollments, 1)
}

func TestService_Query(t *testing.T) {
	ctx := context.Background()
	app, _ := setup(t)
	app.CreateYear(t, "2025-2026", 2025, true)
	for _, name := range []string{"Carlos", "Bea", "Andres"} {
		app.Enroll(t, testutil.StudentForm(name, "Garcia", "Grade 6"))
	}
	app.Enroll(t, testutil.StudentForm("Luz", "Mendoza", "Grade 5"))

	page, err := app.Students.Query(ctx, student.QueryFilter{GradeLevel: "Grade 6", Page: core.Page{Limit: 2}})
	require.NoError(t, err)
	assert.Equal(t, 3, page.Total)
	require.Len(t, page.Students, 2)
	assert.Equal(t, "Andres", page.Students[0].FirstName)
	assert.Equal(t, "Bea", page.Students[1].FirstName)

	page, err = app.Students.Query(ctx, student.QueryFilter{Search: "mendo"})
	require.NoError(t, err)
	require.Len(t, page.Students, 1)
	assert.Equal(t, "Luz", page.Students[0].FirstName)
}
