package recyclebin_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/registrar/core"
	"github.com/trezcool/registrar/core/enrollment"
	"github.com/trezcool/registrar/core/recyclebin"
	"github.com/trezcool/registrar/core/remark"
	"github.com/trezcool/registrar/core/section"
	testutil "github.com/trezcool/registrar/tests"
)

func TestService_Remarks(t *testing.T) {
	ctx := context.Background()
	app := testutil.NewApp(t)

	nr := remark.NewRemark{Label: "Scholar, Honors"}
	assert.Error(t, nr.Validate(app.Validate), "commas are reserved")

	for _, label := range []string{"Working student", "Scholar"} {
		nr := remark.NewRemark{Label: "  " + label + " "}
		require.NoError(t, nr.Validate(app.Validate))
		_, err := app.Remarks.Create(ctx, nr)
		require.NoError(t, err)
	}
	_, err := app.Remarks.Create(ctx, remark.NewRemark{Label: "scholar"})
	assert.True(t, core.IsConflict(err), "labels are unique regardless of case")

	remarks, err := app.Remarks.List(ctx, true)
	require.NoError(t, err)
	require.Len(t, remarks, 2)
	assert.Equal(t, "Scholar", remarks[0].Label)

	require.NoError(t, app.Remarks.Delete(ctx, remarks[0].ID, "owner"))
	items, err := app.RecycleBin.List(ctx, recyclebin.ListFilter{EntityType: recyclebin.EntityCustomRemark})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, remarks[0].ID, items[0].EntityID)
	assert.WithinDuration(t, items[0].DeletedAt.Add(recyclebin.Retention), items[0].PermanentDeleteAt, time.Second)

	// the label was taken again in the meantime
	_, err = app.Remarks.Create(ctx, remark.NewRemark{Label: "Scholar"})
	require.NoError(t, err)
	_, err = app.RecycleBin.Restore(ctx, items[0].ID)
	assert.True(t, core.IsConflict(err))

	_, err = app.RecycleBin.Get(ctx, items[0].ID)
	assert.NoError(t, err, "a failed restore keeps the item")
}

func TestService_Sections(t *testing.T) {
	ctx := context.Background()
	app := testutil.NewApp(t)
	app.CreateYear(t, "2025-2026", 2025, true)
	full := app.CreateSection(t, "Mabini", "Grade 3")
	empty := app.CreateSection(t, "Bonifacio", "Grade 3")

	f := testutil.StudentForm("Emilio", "Aguinaldo", "Grade 3")
	f.SectionID = full.ID
	res := app.Enroll(t, f)
	f.EnrollmentStatus = enrollment.StatusEnrolled
	require.NoError(t, f.Validate(app.Validate))
	_, err := app.Students.Update(ctx, res.ID, f)
	require.NoError(t, err)

	sections, err := app.Sections.List(ctx, section.QueryFilter{GradeLevel: "Grade 3"})
	require.NoError(t, err)
	require.Len(t, sections, 2)
	assert.Equal(t, "Bonifacio", sections[0].Name)
	assert.Equal(t, 1, sections[1].EnrolledCount)

	err = app.RecycleBin.Trash(ctx, recyclebin.EntitySection, full.ID, "owner")
	assert.True(t, core.IsConflict(err), "sections with enrolled students are kept")

	require.NoError(t, app.RecycleBin.Trash(ctx, recyclebin.EntitySection, empty.ID, "owner"))
	items, err := app.RecycleBin.List(ctx, recyclebin.ListFilter{Search: "bonif"})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Bonifacio (Grade 3)", items[0].EntityName)

	_, err = app.RecycleBin.Restore(ctx, items[0].ID)
	require.NoError(t, err)
	restored, err := app.Sections.Get(ctx, empty.ID)
	require.NoError(t, err)
	assert.Equal(t, "Bonifacio", restored.Name)

	_, err = app.RecycleBin.Get(ctx, items[0].ID)
	assert.True(t, core.IsNotFound(err))
}

func TestService_Purge(t *testing.T) {
	ctx := context.Background()
	app := testutil.NewApp(t)

	var ids []string
	for _, label := range []string{"A", "B", "C"} {
		rmk, err := app.Remarks.Create(ctx, remark.NewRemark{Label: label})
		require.NoError(t, err)
		require.NoError(t, app.RecycleBin.Trash(ctx, recyclebin.EntityCustomRemark, rmk.ID, ""))
		ids = append(ids, rmk.ID)
	}

	items, err := app.RecycleBin.List(ctx, recyclebin.ListFilter{})
	require.NoError(t, err)
	require.Len(t, items, 3)

	require.NoError(t, app.RecycleBin.Purge(ctx, items[0].ID))
	err = app.RecycleBin.Purge(ctx, items[0].ID)
	assert.True(t, core.IsNotFound(err))

	n, err := app.RecycleBin.PurgeExpired(ctx, time.Now().Add(recyclebin.Retention-time.Hour))
	require.NoError(t, err)
	assert.Zero(t, n, "nothing expired yet")

	n, err = app.RecycleBin.PurgeExpired(ctx, time.Now().Add(recyclebin.Retention+time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	items, err = app.RecycleBin.List(ctx, recyclebin.ListFilter{})
	require.NoError(t, err)
	assert.Empty(t, items)

	err = app.RecycleBin.Trash(ctx, recyclebin.EntityType("UNKNOWN"), ids[0], "")
	assert.Error(t, err)
}

func TestService_PurgeExpired_boundary(t *testing.T) {
	ctx := context.Background()
	app := testutil.NewApp(t)

	rmk, err := app.Remarks.Create(ctx, remark.NewRemark{Label: "Transferee"})
	require.NoError(t, err)
	require.NoError(t, app.RecycleBin.Trash(ctx, recyclebin.EntityCustomRemark, rmk.ID, ""))
	items, err := app.RecycleBin.List(ctx, recyclebin.ListFilter{})
	require.NoError(t, err)
	require.Len(t, items, 1)
	deadline := items[0].PermanentDeleteAt

	assert.False(t, items[0].Expired(deadline.Add(-time.Nanosecond)))
	assert.True(t, items[0].Expired(deadline))

	n, err := app.RecycleBin.PurgeExpired(ctx, deadline.Add(-time.Nanosecond))
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = app.RecycleBin.PurgeExpired(ctx, deadline)
	require.NoError(t, err)
	assert.Equal(t, 1, n, "an item is purged at exactly its permanent delete time")
}

func TestService_Restore_missingReferences(t *testing.T) {
	ctx := context.Background()
	app := testutil.NewApp(t)

	binItem := func(t *testing.T, entityID string) recyclebin.Item {
		t.Helper()
		items, err := app.RecycleBin.List(ctx, recyclebin.ListFilter{})
		require.NoError(t, err)
		for _, it := range items {
			if it.EntityID == entityID {
				return it
			}
		}
		t.Fatalf("%s is not in the recycle bin", entityID)
		return recyclebin.Item{}
	}
	yearIDs := func(t *testing.T, studentID string) []string {
		t.Helper()
		ens, err := app.Repos.Enrollments.ListByStudent(ctx, studentID)
		require.NoError(t, err)
		ids := make([]string, 0, len(ens))
		for _, e := range ens {
			ids = append(ids, e.AcademicYearID)
		}
		return ids
	}

	y1 := app.CreateYear(t, "2024-2025", 2024, true)
	jose := app.Enroll(t, testutil.StudentForm("Jose", "Rizal", "Grade 3"))
	andres := app.Enroll(t, testutil.StudentForm("Andres", "Bonifacio", "Grade 3"))
	apolinario := app.Enroll(t, testutil.StudentForm("Apolinario", "Mabini", "Grade 3"))

	y2 := app.CreateYear(t, "2025-2026", 2025, true)
	app.Enroll(t, testutil.StudentForm("Jose", "Rizal", "Grade 4"))
	app.Enroll(t, testutil.StudentForm("Apolinario", "Mabini", "Grade 4"))

	// jose goes first, so his snapshot still points at the 2024 year
	require.NoError(t, app.RecycleBin.Trash(ctx, recyclebin.EntityStudent, jose.ID, "owner"))
	require.NoError(t, app.RecycleBin.Trash(ctx, recyclebin.EntityAcademicYear, y1.ID, "owner"))
	// the year snapshot still points at apolinario
	require.NoError(t, app.RecycleBin.Trash(ctx, recyclebin.EntityStudent, apolinario.ID, "owner"))

	t.Run("student whose year is gone", func(t *testing.T) {
		_, err := app.RecycleBin.Restore(ctx, binItem(t, jose.ID).ID)
		require.NoError(t, err)

		_, err = app.Students.Get(ctx, jose.ID)
		require.NoError(t, err)
		assert.Equal(t, []string{y2.ID}, yearIDs(t, jose.ID))
		fs, err := app.Repos.Ledger.GetFeeStatus(ctx, jose.ID, y1.ID)
		assert.True(t, core.IsNotFound(err), "no fee status for the missing year: %+v", fs)
	})

	t.Run("year whose student is gone", func(t *testing.T) {
		_, err := app.RecycleBin.Restore(ctx, binItem(t, y1.ID).ID)
		require.NoError(t, err)

		year, err := app.Years.Get(ctx, y1.ID)
		require.NoError(t, err)
		assert.False(t, year.IsActive)

		ens, err := app.Repos.Enrollments.ListByYear(ctx, y1.ID)
		require.NoError(t, err)
		require.Len(t, ens, 1)
		assert.Equal(t, andres.ID, ens[0].StudentID)

		_, err = app.Students.Get(ctx, apolinario.ID)
		assert.True(t, core.IsNotFound(err), "restoring a year does not bring its students back")
		binItem(t, apolinario.ID)
	})

	t.Run("student restored later", func(t *testing.T) {
		_, err := app.RecycleBin.Restore(ctx, binItem(t, apolinario.ID).ID)
		require.NoError(t, err)
		assert.Equal(t, []string{y2.ID}, yearIDs(t, apolinario.ID))

		items, err := app.RecycleBin.List(ctx, recyclebin.ListFilter{})
		require.NoError(t, err)
		assert.Empty(t, items)
	})
}
