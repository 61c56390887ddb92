package student

import (
	"bytes"
	"context"
	"encoding/csv"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/xuri/excelize/v2"

	"github.com/trezcool/registrar/core"
)

// importColumns maps normalized header names to a setter on the form.
var importColumns = map[string]func(f *Form, v string) error{
	"lrn":                  func(f *Form, v string) error { f.LRN = v; return nil },
	"firstname":            func(f *Form, v string) error { f.FirstName = v; return nil },
	"middlename":           func(f *Form, v string) error { f.MiddleName = v; return nil },
	"lastname":             func(f *Form, v string) error { f.LastName = v; return nil },
	"suffix":               func(f *Form, v string) error { f.Suffix = v; return nil },
	"dateofbirth":          setBirthDate,
	"birthdate":            setBirthDate,
	"gender":               func(f *Form, v string) error { f.Gender = v; return nil },
	"contactnumber":        func(f *Form, v string) error { f.ContactNumber = v; return nil },
	"email":                func(f *Form, v string) error { f.Email = v; return nil },
	"street":               func(f *Form, v string) error { f.Address.Street = v; return nil },
	"barangay":             func(f *Form, v string) error { f.Address.Barangay = v; return nil },
	"municipality":         func(f *Form, v string) error { f.Address.Municipality = v; return nil },
	"province":             func(f *Form, v string) error { f.Address.Province = v; return nil },
	"region":               func(f *Form, v string) error { f.Address.Region = v; return nil },
	"guardianname":         func(f *Form, v string) error { f.GuardianName = v; return nil },
	"guardiancontact":      func(f *Form, v string) error { f.GuardianContact = v; return nil },
	"guardianrelationship": func(f *Form, v string) error { f.GuardianRelationship = v; return nil },
	"gradelevel":           func(f *Form, v string) error { f.GradeLevel = v; return nil },
	"grade":                func(f *Form, v string) error { f.GradeLevel = v; return nil },
	"section":              func(f *Form, v string) error { f.sectionName = v; return nil },
	"istransferee":         setTransferee,
	"transferee":           setTransferee,
	"previousschool":       func(f *Form, v string) error { f.PreviousSchool = v; return nil },
	"remarks": func(f *Form, v string) error {
		f.RemarkText, f.RemarkLabels = ParseRemarks(v)
		return nil
	},
}

func setBirthDate(f *Form, v string) error {
	if v == "" {
		return nil
	}
	d, err := core.ParseDate(v)
	if err != nil {
		return errors.Errorf("invalid date of birth %q: expected YYYY-MM-DD", v)
	}
	f.DateOfBirth = d
	return nil
}

func setTransferee(f *Form, v string) error {
	switch strings.ToLower(v) {
	case "", "no", "n":
		f.IsTransferee = false
	case "yes", "y":
		f.IsTransferee = true
	default:
		b, err := strconv.ParseBool(v)
		if err != nil {
			return errors.Errorf("invalid transferee value %q", v)
		}
		f.IsTransferee = b
	}
	return nil
}

func normalizeHeader(h string) string {
	h = strings.ToLower(strings.TrimSpace(h))
	return strings.NewReplacer(" ", "", "_", "", "-", "").Replace(h)
}

// ImportRow is one data row of an import file. Line is 1-based and counts the header.
type ImportRow struct {
	Line int
	Form Form
	Err  error
}

type ImportError struct {
	Row   int    `json:"row"`
	Error string `json:"error"`
}

type ImportResult struct {
	Success int           `json:"success"`
	Skipped int           `json:"skipped"`
	Errors  []ImportError `json:"errors"`
}

// ErrorReport renders the rejected rows as CSV.
func (r ImportResult) ErrorReport() (*bytes.Buffer, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	_ = w.Write([]string{"Row", "Error"})
	for _, ie := range r.Errors {
		_ = w.Write([]string{strconv.Itoa(ie.Row), ie.Error})
	}
	w.Flush()
	return &buf, errors.Wrap(w.Error(), "writing import report")
}

// ParseImportFile reads a CSV or XLSX (first sheet) file with a header row.
func ParseImportFile(r io.Reader, filename string) ([]ImportRow, error) {
	var (
		records [][]string
		err     error
	)
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv", "":
		cr := csv.NewReader(r)
		cr.FieldsPerRecord = -1
		cr.TrimLeadingSpace = true
		records, err = cr.ReadAll()
		if err != nil {
			return nil, core.NewFieldError("file", "invalid CSV file: "+err.Error())
		}
	case ".xlsx":
		xf, err := excelize.OpenReader(r)
		if err != nil {
			return nil, core.NewFieldError("file", "invalid XLSX file: "+err.Error())
		}
		defer xf.Close()
		if records, err = xf.GetRows(xf.GetSheetName(0)); err != nil {
			return nil, errors.Wrap(err, "reading sheet")
		}
	default:
		return nil, core.NewFieldError("file", "only .csv and .xlsx files are supported")
	}
	return parseRecords(records)
}

func parseRecords(records [][]string) ([]ImportRow, error) {
	if len(records) == 0 {
		return nil, core.NewFieldError("file", "file is empty")
	}
	header := make([]string, len(records[0]))
	known := 0
	for i, h := range records[0] {
		header[i] = normalizeHeader(h)
		if _, ok := importColumns[header[i]]; ok {
			known++
		}
	}
	if known == 0 {
		return nil, core.NewFieldError("file", "no known columns in header row")
	}

	rows := make([]ImportRow, 0, len(records)-1)
	for i, rec := range records[1:] {
		if isBlank(rec) {
			continue
		}
		row := ImportRow{Line: i + 2}
		for j, val := range rec {
			if j >= len(header) {
				break
			}
			set, ok := importColumns[header[j]]
			if !ok {
				continue
			}
			if err := set(&row.Form, strings.TrimSpace(val)); err != nil && row.Err == nil {
				row.Err = err
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func isBlank(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// Import enrolls every row in the active year. Each row runs in its own transaction;
// rows already enrolled in the active year are skipped.
func (svc *Service) Import(ctx context.Context, rows []ImportRow, validate *validator.Validate, translator ut.Translator) ImportResult {
	res := ImportResult{Errors: []ImportError{}}
	fail := func(line int, err error) {
		res.Errors = append(res.Errors, ImportError{Row: line, Error: describeError(err, translator)})
	}

	for _, row := range rows {
		if row.Err != nil {
			fail(row.Line, row.Err)
			continue
		}
		f := row.Form
		if err := f.Validate(validate); err != nil {
			fail(row.Line, err)
			continue
		}
		if name := core.CleanString(f.sectionName); name != "" {
			sec, err := svc.sections.GetByName(ctx, name, f.GradeLevel)
			if err != nil {
				if core.IsNotFound(err) {
					err = core.NewFieldError("section", "section "+name+" not found for "+f.GradeLevel)
				}
				fail(row.Line, err)
				continue
			}
			f.SectionID = sec.ID
		}

		if _, err := svc.Enroll(ctx, f); err != nil {
			if errors.Cause(err) == errAlreadyActive {
				res.Skipped++
				continue
			}
			fail(row.Line, err)
			continue
		}
		res.Success++
	}
	return res
}

func describeError(err error, translator ut.Translator) string {
	switch e := errors.Cause(err).(type) {
	case validator.ValidationErrors:
		msgs := make([]string, 0, len(e))
		for _, fe := range e {
			msg := fe.Error()
			if translator != nil {
				msg = fe.Translate(translator)
			}
			msgs = append(msgs, fe.Field()+": "+msg)
		}
		return strings.Join(msgs, "; ")
	case *core.ValidationError:
		msgs := make([]string, 0, len(e.Fields))
		for _, fe := range e.Fields {
			msgs = append(msgs, fe.Field+": "+fe.Error)
		}
		if len(msgs) == 0 {
			return e.Error()
		}
		return strings.Join(msgs, "; ")
	}
	return err.Error()
}
