package sqlxrepos

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/registrar/core"
	"github.com/trezcool/registrar/core/student"
	"github.com/trezcool/registrar/storage/database"
)

const studentColumns = `id, lrn, first_name, middle_name, last_name, suffix, date_of_birth, gender,
	contact_number, email, street, barangay, municipality, province, region, guardian_name,
	guardian_contact, guardian_relationship, grade_level, section_id, enrollment_status,
	is_transferee, previous_school, remarks, created_at, updated_at`

var studentOrderings = map[string]string{
	"lastName":    "last_name",
	"firstName":   "first_name",
	"lrn":         "lrn",
	"gradeLevel":  "grade_level",
	"status":      "enrollment_status",
	"createdAt":   "created_at",
	"updatedAt":   "updated_at",
	"dateOfBirth": "date_of_birth",
}

type studentRepository struct {
	db *sqlx.DB
}

var _ student.Repository = (*studentRepository)(nil)

func NewStudentRepository(db *sqlx.DB) *studentRepository {
	return &studentRepository{db: db}
}

func studentArgs(s student.Student) []interface{} {
	return []interface{}{
		s.ID, s.LRN, s.FirstName, s.MiddleName, s.LastName, s.Suffix, s.DateOfBirth, s.Gender,
		s.ContactNumber, s.Email, s.Street, s.Barangay, s.Municipality, s.Province, s.Region, s.GuardianName,
		s.GuardianContact, s.GuardianRelationship, s.GradeLevel, s.SectionID, s.EnrollmentStatus,
		s.IsTransferee, s.PreviousSchool, s.Remarks, s.CreatedAt, s.UpdatedAt,
	}
}

func (repo studentRepository) CreateStudent(ctx context.Context, s student.Student) (student.Student, error) {
	s.ID = newID(s.ID)
	_, err := database.Executor(ctx, repo.db).ExecContext(ctx,
		`INSERT INTO students (`+studentColumns+`) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13,
			$14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26)`,
		studentArgs(s)...)
	if err != nil {
		return student.Student{}, database.TrapErr(err, student.ErrNotFound, "inserting student")
	}
	return s, nil
}

func (repo studentRepository) UpdateStudent(ctx context.Context, s student.Student) (student.Student, error) {
	res, err := database.Executor(ctx, repo.db).ExecContext(ctx, `
		UPDATE students SET lrn = $2, first_name = $3, middle_name = $4, last_name = $5, suffix = $6,
			date_of_birth = $7, gender = $8, contact_number = $9, email = $10, street = $11,
			barangay = $12, municipality = $13, province = $14, region = $15, guardian_name = $16,
			guardian_contact = $17, guardian_relationship = $18, grade_level = $19, section_id = $20,
			enrollment_status = $21, is_transferee = $22, previous_school = $23, remarks = $24,
			created_at = $25, updated_at = $26
		WHERE id = $1`,
		studentArgs(s)...)
	if err != nil {
		return student.Student{}, database.TrapErr(err, student.ErrNotFound, "updating student")
	}
	return s, mustAffect(res, student.ErrNotFound)
}

func (repo studentRepository) GetStudent(ctx context.Context, id string) (student.Student, error) {
	var s student.Student
	if !validID(id) {
		return s, student.ErrNotFound
	}
	err := database.Executor(ctx, repo.db).GetContext(ctx, &s, `SELECT `+studentColumns+` FROM students WHERE id = $1`, id)
	return s, database.TrapErr(err, student.ErrNotFound, "getting student")
}

func (repo studentRepository) FindByLRN(ctx context.Context, lrn string) (student.Student, error) {
	var s student.Student
	err := database.Executor(ctx, repo.db).GetContext(ctx, &s, `SELECT `+studentColumns+` FROM students WHERE lrn = $1`, lrn)
	return s, database.TrapErr(err, student.ErrNotFound, "finding student by LRN")
}

func (repo studentRepository) FindByNameAndBirth(ctx context.Context, firstName, lastName string, dob core.Date) (student.Student, error) {
	var s student.Student
	err := database.Executor(ctx, repo.db).GetContext(ctx, &s, `
		SELECT `+studentColumns+` FROM students
		WHERE lower(first_name) = lower($1) AND lower(last_name) = lower($2) AND date_of_birth = $3
		ORDER BY created_at LIMIT 1`,
		firstName, lastName, dob)
	return s, database.TrapErr(err, student.ErrNotFound, "finding student by name")
}

func (repo studentRepository) QueryStudents(ctx context.Context, filter student.QueryFilter) ([]student.Student, int, error) {
	var (
		where []string
		args  []interface{}
	)
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.Search != "" {
		p := arg("%" + filter.Search + "%")
		where = append(where, fmt.Sprintf(
			"(first_name ILIKE %s OR last_name ILIKE %s OR middle_name ILIKE %s OR lrn ILIKE %s OR (first_name || ' ' || last_name) ILIKE %s)",
			p, p, p, p, p))
	}
	if filter.GradeLevel != "" {
		where = append(where, "grade_level = "+arg(filter.GradeLevel))
	}
	if filter.SectionID != "" {
		where = append(where, "section_id::text = "+arg(filter.SectionID))
	}
	if filter.Status != "" {
		where = append(where, "enrollment_status = "+arg(filter.Status))
	}
	if filter.AcademicYearID != "" {
		where = append(where, "id IN (SELECT student_id FROM enrollments WHERE academic_year_id::text = "+arg(filter.AcademicYearID)+")")
	}

	cond := ""
	if len(where) > 0 {
		cond = ` WHERE ` + strings.Join(where, " AND ")
	}
	exec := database.Executor(ctx, repo.db)

	var total int
	if err := exec.GetContext(ctx, &total, `SELECT COUNT(*) FROM students`+cond, args...); err != nil {
		return nil, 0, errors.Wrap(err, "counting students")
	}

	q := `SELECT ` + studentColumns + ` FROM students` + cond +
		` ORDER BY ` + core.OrderBy(filter.Orderings, studentOrderings, "last_name ASC, first_name ASC") +
		fmt.Sprintf(` LIMIT %d OFFSET %d`, filter.Limit, filter.Offset())
	students := []student.Student{}
	if err := exec.SelectContext(ctx, &students, q, args...); err != nil {
		return nil, 0, errors.Wrap(err, "querying students")
	}
	return students, total, nil
}

func (repo studentRepository) CountPayments(ctx context.Context, studentID string) (int, error) {
	var n int
	err := database.Executor(ctx, repo.db).GetContext(ctx, &n, `SELECT COUNT(*) FROM payments WHERE student_id = $1`, studentID)
	return n, errors.Wrap(err, "counting payments")
}

func (repo studentRepository) DeleteStudent(ctx context.Context, id string) error {
	res, err := database.Executor(ctx, repo.db).ExecContext(ctx, `DELETE FROM students WHERE id = $1`, id)
	if err != nil {
		return database.TrapErr(err, student.ErrNotFound, "deleting student")
	}
	return mustAffect(res, student.ErrNotFound)
}
