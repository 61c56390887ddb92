package echoapi_test

import (
	"bytes"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	. "github.com/trezcool/registrar/apps/api/echo"
	"github.com/trezcool/registrar/core/enrollment"
	"github.com/trezcool/registrar/core/recyclebin"
	"github.com/trezcool/registrar/core/student"
	testutil "github.com/trezcool/registrar/tests"
)

func Test_studentApi_enroll(t *testing.T) {
	e := setup(t)
	registrarToken := getToken(t, e, e.registrar)

	form := marchallObj(t, testutil.StudentForm("Juan", "Luna", "Grade 5"))

	e.run(t, []httpTest{
		{
			name: "no active year", method: http.MethodPost, path: "/api/students", body: form, token: registrarToken,
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, ErrorResponse{
				Error:   "there is no active academic year",
				Details: map[string]string{"academicYear": "there is no active academic year"},
			}),
		},
	})

	year := e.CreateYear(t, "2025-2026", 2025, true)
	narra := e.CreateSection(t, "Narra", "Grade 5")

	e.run(t, []httpTest{
		{
			name: "registrar required", method: http.MethodPost, path: "/api/students", body: form, token: getToken(t, e, e.cashier),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "permission denied"}),
		},
		{
			name: "invalid data", method: http.MethodPost, path: "/api/students", body: []byte(`{"gradeLevel":"Grade 13"}`), token: registrarToken,
			wantCode: http.StatusBadRequest,
		},
	})

	var res student.EnrollResult
	e.doJSON(t, http.MethodPost, "/api/students", registrarToken, testutil.StudentForm("Juan", "Luna", "Grade 5"), http.StatusCreated, &res)
	assert.False(t, res.IsReenrollment)
	assert.Equal(t, enrollment.StatusPending, res.EnrollmentStatus)
	assert.Equal(t, year.ID, res.Enrollment.AcademicYearID)

	e.run(t, []httpTest{
		{
			name: "already enrolled", method: http.MethodPost, path: "/api/students", body: form, token: registrarToken,
			wantCode: http.StatusConflict, wantData: marchallObj(t, httpErr{Error: "student is already enrolled in the active academic year"}),
		},
		{
			name: "unknown student", path: "/api/students/nope", token: registrarToken,
			wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: "student not found"}),
		},
	})

	t.Run("query", func(t *testing.T) {
		var page student.Page
		e.doJSON(t, http.MethodGet, "/api/students?search=LUNA&gradeLevel=Grade%205", getToken(t, e, e.viewer), nil, http.StatusOK, &page)
		assert.Equal(t, 1, page.Total)
		require.Len(t, page.Students, 1)
		assert.Equal(t, res.ID, page.Students[0].ID)

		e.doJSON(t, http.MethodGet, "/api/students?gradeLevel=Grade%206", registrarToken, nil, http.StatusOK, &page)
		assert.Zero(t, page.Total)
	})

	t.Run("switch section", func(t *testing.T) {
		var stud student.Student
		e.doJSON(t, http.MethodPost, "/api/students/"+res.ID+"/switch", registrarToken,
			student.SwitchForm{SectionID: &narra.ID}, http.StatusOK, &stud)
		require.NotNil(t, stud.SectionID)
		assert.Equal(t, narra.ID, *stud.SectionID)

		var detail student.Detail
		e.doJSON(t, http.MethodGet, "/api/students/"+res.ID, registrarToken, nil, http.StatusOK, &detail)
		require.Len(t, detail.Enrollments, 1)
		require.NotNil(t, detail.Enrollments[0].SectionID)
		assert.Equal(t, narra.ID, *detail.Enrollments[0].SectionID)
	})

	t.Run("update", func(t *testing.T) {
		f := testutil.StudentForm("Juan", "Luna", "Grade 5")
		f.SectionID = narra.ID
		f.RemarkText = "artist"
		f.RemarkLabels = []string{"Scholar"}
		var stud student.Student
		e.doJSON(t, http.MethodPut, "/api/students/"+res.ID, registrarToken, f, http.StatusOK, &stud)
		assert.Equal(t, "artist|Scholar", stud.Remarks)
	})
}

func Test_studentApi_deleteAndRestore(t *testing.T) {
	e := setup(t)
	registrarToken := getToken(t, e, e.registrar)
	e.CreateYear(t, "2025-2026", 2025, true)
	res := e.Enroll(t, testutil.StudentForm("Antonio", "Luna", "Grade 7"))

	e.run(t, []httpTest{
		{name: "delete", method: http.MethodDelete, path: "/api/students/" + res.ID, token: registrarToken, wantCode: http.StatusNoContent},
		{name: "deleted", path: "/api/students/" + res.ID, token: registrarToken, wantCode: http.StatusNotFound},
	})

	var items []recyclebin.Item
	e.doJSON(t, http.MethodGet, "/api/recycle-bin?entityType=STUDENT", registrarToken, nil, http.StatusOK, &items)
	require.Len(t, items, 1)
	assert.Equal(t, res.ID, items[0].EntityID)
	assert.Equal(t, "Antonio Luna", items[0].EntityName)
	assert.Equal(t, e.registrar.ID, items[0].DeletedBy)

	var restored recyclebin.Item
	e.doJSON(t, http.MethodPatch, "/api/recycle-bin/"+items[0].ID, registrarToken, nil, http.StatusOK, &restored)
	assert.Equal(t, items[0].ID, restored.ID)

	var detail student.Detail
	e.doJSON(t, http.MethodGet, "/api/students/"+res.ID, registrarToken, nil, http.StatusOK, &detail)
	assert.Len(t, detail.Enrollments, 1)

	e.run(t, []httpTest{
		{name: "bin emptied", path: "/api/recycle-bin", token: registrarToken, wantData: []byte(`[]`)},
	})
}

func Test_studentApi_import(t *testing.T) {
	e := setup(t)
	registrarToken := getToken(t, e, e.registrar)
	e.CreateYear(t, "2025-2026", 2025, true)

	upload := func(field, filename, content string) *httptest.ResponseRecorder {
		var body bytes.Buffer
		w := multipart.NewWriter(&body)
		fw, err := w.CreateFormFile(field, filename)
		require.NoError(t, err)
		_, err = fw.Write([]byte(content))
		require.NoError(t, err)
		require.NoError(t, w.Close())

		req := httptest.NewRequest(http.MethodPost, "/api/students/import", &body)
		req.Header.Set(echo.HeaderContentType, w.FormDataContentType())
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+registrarToken)
		rec := httptest.NewRecorder()
		e.srv.ServeHTTP(rec, req)
		return rec
	}

	csv := "First Name,Last Name,Date of Birth,Grade Level\n" +
		"Juan,Luna,2014-10-23,Grade 5\n" +
		"Marcelo,del Pilar,23/08/2013,Grade 6\n"

	rec := upload("document", "students.csv", csv)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	ok, err := jsonBytesEqual(rec.Body.Bytes(), marchallObj(t, ErrorResponse{
		Error:   "a CSV or XLSX file is required",
		Details: map[string]string{"file": "a CSV or XLSX file is required"},
	}))
	require.NoError(t, err)
	assert.True(t, ok, rec.Body.String())

	rec = upload("file", "students.pdf", csv)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = upload("file", "students.csv", csv)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	ok, err = jsonBytesEqual(rec.Body.Bytes(), marchallObj(t, student.ImportResult{
		Success: 1,
		Errors:  []student.ImportError{{Row: 3, Error: `invalid date of birth "23/08/2013": expected YYYY-MM-DD`}},
	}))
	require.NoError(t, err)
	assert.True(t, ok, rec.Body.String())
}

func Test_studentRoutes(t *testing.T) {
	e := setup(t)
	registrarToken := getToken(t, e, e.registrar)
	viewerToken := getToken(t, e, e.viewer)
	e.CreateYear(t, "2025-2026", 2025, true)
	res := e.Enroll(t, testutil.StudentForm("Gregorio", "del Pilar", "Grade 4"))
	base := "/api/students/" + res.ID

	// detail routes must survive the payment and fee routes nested under the same path
	var detail student.Detail
	e.doJSON(t, http.MethodGet, base, viewerToken, nil, http.StatusOK, &detail)
	assert.Equal(t, res.ID, detail.ID)

	e.run(t, []httpTest{
		{name: "payments", path: base + "/payments", token: viewerToken, wantData: []byte(`[]`)},
		{name: "adjustments", path: base + "/adjustments", token: viewerToken, wantData: []byte(`[]`)},
		{name: "fee status", path: base + "/fee-status", token: viewerToken, wantCode: http.StatusOK},
		{name: "optional fees", path: base + "/optional-fees", token: viewerToken, wantData: []byte(`[]`)},
		{name: "unknown route", path: base + "/nope", token: viewerToken, wantCode: http.StatusNotFound},
	})

	var stud student.Student
	e.doJSON(t, http.MethodPut, base, registrarToken, testutil.StudentForm("Gregorio", "del Pilar", "Grade 5"), http.StatusOK, &stud)
	assert.Equal(t, "Grade 5", stud.GradeLevel)

	e.doJSON(t, http.MethodPost, base+"/switch", registrarToken, student.SwitchForm{GradeLevel: "Grade 6"}, http.StatusOK, &stud)
	assert.Equal(t, "Grade 6", stud.GradeLevel)

	e.run(t, []httpTest{
		{name: "delete", method: http.MethodDelete, path: base, token: registrarToken, wantCode: http.StatusNoContent},
		{name: "gone", path: base, token: registrarToken, wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: "student not found"})},
	})
}
