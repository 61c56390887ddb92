package echoapi_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/registrar/core"
	"github.com/trezcool/registrar/core/academicyear"
	"github.com/trezcool/registrar/core/section"
	testutil "github.com/trezcool/registrar/tests"
)

func Test_academicYearApi(t *testing.T) {
	e := setup(t)
	registrarToken := getToken(t, e, e.registrar)
	viewerToken := getToken(t, e, e.viewer)

	ny := academicyear.NewAcademicYear{
		Name:      "2025-2026",
		StartDate: core.MustParseDate("2025-06-01"),
		EndDate:   core.MustParseDate("2026-03-31"),
		IsActive:  testutil.Bool(true),
	}

	e.run(t, []httpTest{
		{
			name: "no active year", path: "/api/academic-years/active", token: viewerToken,
			wantCode: http.StatusNotFound,
		},
		{
			name: "registrar required", method: http.MethodPost, path: "/api/academic-years", body: marchallObj(t, ny), token: viewerToken,
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "permission denied"}),
		},
		{
			name: "end before start", method: http.MethodPost, path: "/api/academic-years", token: registrarToken,
			body:     []byte(`{"name":"bad","startDate":"2025-06-01","endDate":"2025-05-01"}`),
			wantCode: http.StatusBadRequest,
		},
	})

	var y1 academicyear.AcademicYear
	e.doJSON(t, http.MethodPost, "/api/academic-years", registrarToken, ny, http.StatusCreated, &y1)
	assert.True(t, y1.IsActive)

	ny.Name = "2026-2027"
	ny.StartDate = core.MustParseDate("2026-06-01")
	ny.EndDate = core.MustParseDate("2027-03-31")
	ny.IsActive = testutil.Bool(false)
	var y2 academicyear.AcademicYear
	e.doJSON(t, http.MethodPost, "/api/academic-years", registrarToken, ny, http.StatusCreated, &y2)
	assert.False(t, y2.IsActive)

	e.run(t, []httpTest{
		{name: "duplicate name", method: http.MethodPost, path: "/api/academic-years", body: marchallObj(t, ny), token: registrarToken, wantCode: http.StatusConflict},
		{name: "active", path: "/api/academic-years/active", token: viewerToken, wantData: marchallObj(t, y1)},
		{
			name: "unknown action", method: http.MethodPost, path: "/api/academic-years/" + y2.ID, token: registrarToken,
			body: []byte(`{"action":"archive"}`), wantCode: http.StatusBadRequest,
		},
		{
			name: "owner deletes", method: http.MethodDelete, path: "/api/academic-years/" + y2.ID, token: registrarToken,
			wantCode: http.StatusForbidden,
		},
	})

	var activated academicyear.AcademicYear
	e.doJSON(t, http.MethodPost, "/api/academic-years/"+y2.ID, registrarToken, academicyear.ActionRequest{Action: "ACTIVATE"}, http.StatusOK, &activated)
	assert.True(t, activated.IsActive)

	var years []academicyear.AcademicYear
	e.doJSON(t, http.MethodGet, "/api/academic-years", viewerToken, nil, http.StatusOK, &years)
	require.Len(t, years, 2)
	for _, y := range years {
		assert.Equal(t, y.ID == y2.ID, y.IsActive, "one active year at a time")
	}

	var renamed academicyear.AcademicYear
	e.doJSON(t, http.MethodPatch, "/api/academic-years/"+y1.ID, registrarToken, map[string]string{"name": "SY 2025-2026"}, http.StatusOK, &renamed)
	assert.Equal(t, "SY 2025-2026", renamed.Name)
	assert.Equal(t, y1.StartDate.String(), renamed.StartDate.String())

	// a new year is active unless told otherwise
	ny.Name = "2027-2028"
	ny.StartDate = core.MustParseDate("2027-06-01")
	ny.EndDate = core.MustParseDate("2028-03-31")
	ny.IsActive = nil
	var y3 academicyear.AcademicYear
	e.doJSON(t, http.MethodPost, "/api/academic-years", registrarToken, ny, http.StatusCreated, &y3)
	assert.True(t, y3.IsActive)
	e.run(t, []httpTest{
		{name: "newest active", path: "/api/academic-years/active", token: viewerToken, wantData: marchallObj(t, y3)},
	})
}

func Test_sectionApi(t *testing.T) {
	e := setup(t)
	registrarToken := getToken(t, e, e.registrar)

	var narra section.Section
	e.doJSON(t, http.MethodPost, "/api/sections", registrarToken, section.NewSection{Name: "Narra", GradeLevel: "Grade 5"}, http.StatusCreated, &narra)
	e.CreateSection(t, "Molave", "Grade 6")

	e.run(t, []httpTest{
		{
			name: "invalid grade", method: http.MethodPost, path: "/api/sections", token: registrarToken,
			body: marchallObj(t, section.NewSection{Name: "Acacia", GradeLevel: "Grade 13"}), wantCode: http.StatusBadRequest,
		},
		{
			name: "cashier cannot create", method: http.MethodPost, path: "/api/sections", token: getToken(t, e, e.cashier),
			body: marchallObj(t, section.NewSection{Name: "Acacia", GradeLevel: "Grade 5"}), wantCode: http.StatusForbidden,
		},
		{name: "retrieve", path: "/api/sections/" + narra.ID, token: registrarToken, wantData: marchallObj(t, narra)},
		{name: "unknown", path: "/api/sections/nope", token: registrarToken, wantCode: http.StatusNotFound},
	})

	var sections []section.Section
	e.doJSON(t, http.MethodGet, "/api/sections?gradeLevel=Grade%205", registrarToken, nil, http.StatusOK, &sections)
	require.Len(t, sections, 1)
	assert.Equal(t, narra.ID, sections[0].ID)

	var updated section.Section
	e.doJSON(t, http.MethodPatch, "/api/sections/"+narra.ID, registrarToken, map[string]interface{}{"isActive": false}, http.StatusOK, &updated)
	assert.False(t, updated.IsActive)
	assert.Equal(t, "Narra", updated.Name)

	e.doJSON(t, http.MethodGet, "/api/sections?isActive=true", registrarToken, nil, http.StatusOK, &sections)
	require.Len(t, sections, 1)
	assert.Equal(t, "Molave", sections[0].Name)

	rec := e.do(http.MethodDelete, "/api/sections/"+narra.ID, registrarToken)
	assert.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())
	rec = e.do(http.MethodGet, "/api/sections/"+narra.ID, registrarToken)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
