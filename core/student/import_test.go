package student_test

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/trezcool/registrar/core"
	"github.com/trezcool/registrar/core/student"
)

const importCSV = `LRN,First Name,Last_Name,date-of-birth,Grade Level,Section,Transferee,Remarks,Unknown
111122223333,Juan,Luna,2014-10-23,Grade 5,Narra,yes,Artist|Scholar,x
,Antonio,Luna,2012-10-29,Grade 7,,no,,
,,,,,,,,
,Marcelo,del Pilar,23/08/2013,Grade 6,,,,
,Apolinario,Mabini,2013-07-23,Grade 6,Molave,,,
,Melchora,Aquino,2012-01-06,Grade 13,,,,
`

func TestParseImportFile(t *testing.T) {
	rows, err := student.ParseImportFile(strings.NewReader(importCSV), "students.csv")
	require.NoError(t, err)
	require.Len(t, rows, 5, "blank lines are skipped")

	first := rows[0]
	assert.Equal(t, 2, first.Line)
	assert.NoError(t, first.Err)
	assert.Equal(t, "111122223333", first.Form.LRN)
	assert.Equal(t, "Luna", first.Form.LastName)
	assert.Equal(t, "2014-10-23", first.Form.DateOfBirth.String())
	assert.True(t, first.Form.IsTransferee)
	assert.Equal(t, "Artist", first.Form.RemarkText)
	assert.Equal(t, []string{"Scholar"}, first.Form.RemarkLabels)

	assert.Equal(t, 5, rows[2].Line)
	assert.EqualError(t, rows[2].Err, `invalid date of birth "23/08/2013": expected YYYY-MM-DD`)

	tests := []struct {
		name     string
		content  string
		filename string
	}{
		{name: "unsupported extension", content: importCSV, filename: "students.pdf"},
		{name: "empty file", content: "", filename: "students.csv"},
		{name: "no known columns", content: "foo,bar\n1,2\n", filename: "students.csv"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := student.ParseImportFile(strings.NewReader(tc.content), tc.filename)
			assert.True(t, core.IsValidation(err), "got %v", err)
		})
	}
}

func TestParseImportFile_XLSX(t *testing.T) {
	xf := excelize.NewFile()
	sheet := xf.GetSheetName(0)
	for i, row := range [][]interface{}{
		{"First Name", "Last Name", "Birth Date", "Grade"},
		{"Gregorio", "del Pilar", "2011-11-14", "Grade 8"},
	} {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, xf.SetSheetRow(sheet, cell, &row))
	}
	buf, err := xf.WriteToBuffer()
	require.NoError(t, err)

	rows, err := student.ParseImportFile(bytes.NewReader(buf.Bytes()), "Students.XLSX")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Gregorio", rows[0].Form.FirstName)
	assert.Equal(t, "Grade 8", rows[0].Form.GradeLevel)
}

func TestService_Import(t *testing.T) {
	ctx := context.Background()
	app, _ := setup(t)
	app.CreateYear(t, "2025-2026", 2025, true)
	app.CreateSection(t, "Narra", "Grade 5")

	rows, err := student.ParseImportFile(strings.NewReader(importCSV), "students.csv")
	require.NoError(t, err)

	res := app.Students.Import(ctx, rows, app.Validate, app.Translator)
	assert.Equal(t, 2, res.Success)
	assert.Zero(t, res.Skipped)
	require.Len(t, res.Errors, 3)
	assert.Equal(t, 5, res.Errors[0].Row)
	assert.Equal(t, 6, res.Errors[1].Row)
	assert.Equal(t, "section: section Molave not found for Grade 6", res.Errors[1].Error)
	assert.Equal(t, 7, res.Errors[2].Row)
	assert.Contains(t, res.Errors[2].Error, "gradeLevel: ")

	report, err := res.ErrorReport()
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(report.String()), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "Row,Error", lines[0])
	assert.Equal(t, "6,section: section Molave not found for Grade 6", lines[2])

	// importing again skips the students already enrolled this year
	res = app.Students.Import(ctx, rows[:2], app.Validate, app.Translator)
	assert.Zero(t, res.Success)
	assert.Equal(t, 2, res.Skipped)
	assert.Empty(t, res.Errors)

	page, err := app.Students.Query(ctx, student.QueryFilter{Search: "luna"})
	require.NoError(t, err)
	assert.Equal(t, 2, page.Total)
}

func TestRemarks(t *testing.T) {
	tests := []struct {
		text   string
		labels []string
		stored string
	}{
		{stored: ""},
		{text: "needs follow-up", stored: "needs follow-up|"},
		{labels: []string{"Scholar", "PWD"}, stored: "|Scholar,PWD"},
		{text: "a|b", labels: []string{"Scholar"}, stored: "a|b|Scholar"},
	}
	for _, tc := range tests {
		t.Run(tc.stored, func(t *testing.T) {
			assert.Equal(t, tc.stored, student.EncodeRemarks(tc.text, tc.labels))
			text, labels := student.ParseRemarks(tc.stored)
			assert.Equal(t, tc.text, text)
			assert.Equal(t, tc.labels, labels)
		})
	}

	text, labels := student.ParseRemarks("legacy free text")
	assert.Equal(t, "legacy free text", text)
	assert.Nil(t, labels)
}
