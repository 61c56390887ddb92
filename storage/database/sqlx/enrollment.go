package sqlxrepos

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/registrar/core/enrollment"
	"github.com/trezcool/registrar/storage/database"
)

const (
	enrollmentColumns = `id, student_id, academic_year_id, grade_level, section_id, status, enrollment_date, created_at, updated_at`

	enrollmentSelect = `
		SELECT e.id, e.student_id, e.academic_year_id, e.grade_level, e.section_id, e.status,
			e.enrollment_date, e.created_at, e.updated_at,
			y.name AS academic_year_name, COALESCE(s.name, '') AS section_name
		FROM enrollments e
		JOIN academic_years y ON y.id = e.academic_year_id
		LEFT JOIN sections s ON s.id = e.section_id`
)

type enrollmentRepository struct {
	db *sqlx.DB
}

var _ enrollment.Repository = (*enrollmentRepository)(nil)

func NewEnrollmentRepository(db *sqlx.DB) *enrollmentRepository {
	return &enrollmentRepository{db: db}
}

func (repo enrollmentRepository) CreateEnrollment(ctx context.Context, e enrollment.Enrollment) (enrollment.Enrollment, error) {
	e.ID = newID(e.ID)
	_, err := database.Executor(ctx, repo.db).ExecContext(ctx,
		`INSERT INTO enrollments (`+enrollmentColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		e.ID, e.StudentID, e.AcademicYearID, e.GradeLevel, e.SectionID, e.Status, e.EnrollmentDate, e.CreatedAt, e.UpdatedAt)
	if err != nil {
		return enrollment.Enrollment{}, database.TrapErr(err, enrollment.ErrNotFound, "inserting enrollment")
	}
	return e, nil
}

func (repo enrollmentRepository) UpdateEnrollment(ctx context.Context, e enrollment.Enrollment) (enrollment.Enrollment, error) {
	res, err := database.Executor(ctx, repo.db).ExecContext(ctx,
		`UPDATE enrollments SET grade_level = $2, section_id = $3, status = $4, updated_at = $5 WHERE id = $1`,
		e.ID, e.GradeLevel, e.SectionID, e.Status, e.UpdatedAt)
	if err != nil {
		return enrollment.Enrollment{}, database.TrapErr(err, enrollment.ErrNotFound, "updating enrollment")
	}
	return e, mustAffect(res, enrollment.ErrNotFound)
}

func (repo enrollmentRepository) GetEnrollment(ctx context.Context, studentID, yearID string) (enrollment.Enrollment, error) {
	var e enrollment.Enrollment
	if !validID(studentID) || !validID(yearID) {
		return e, enrollment.ErrNotFound
	}
	err := database.Executor(ctx, repo.db).GetContext(ctx, &e,
		enrollmentSelect+` WHERE e.student_id = $1 AND e.academic_year_id = $2`, studentID, yearID)
	return e, database.TrapErr(err, enrollment.ErrNotFound, "getting enrollment")
}

func (repo enrollmentRepository) ListByStudent(ctx context.Context, studentID string) ([]enrollment.Enrollment, error) {
	es := []enrollment.Enrollment{}
	err := database.Executor(ctx, repo.db).SelectContext(ctx, &es,
		enrollmentSelect+` WHERE e.student_id = $1 ORDER BY y.start_date DESC`, studentID)
	return es, errors.Wrap(err, "listing student enrollments")
}

func (repo enrollmentRepository) ListByYear(ctx context.Context, yearID string) ([]enrollment.Enrollment, error) {
	es := []enrollment.Enrollment{}
	err := database.Executor(ctx, repo.db).SelectContext(ctx, &es,
		enrollmentSelect+` WHERE e.academic_year_id = $1 ORDER BY e.created_at`, yearID)
	return es, errors.Wrap(err, "listing year enrollments")
}

func (repo enrollmentRepository) HasClosedYearEnrollment(ctx context.Context, studentID string) (bool, error) {
	var exists bool
	err := database.Executor(ctx, repo.db).GetContext(ctx, &exists, `
		SELECT EXISTS (
			SELECT 1 FROM enrollments e JOIN academic_years y ON y.id = e.academic_year_id
			WHERE e.student_id = $1 AND y.is_closed
		)`, studentID)
	return exists, errors.Wrap(err, "checking closed year enrollments")
}

func (repo enrollmentRepository) References(ctx context.Context, e enrollment.Enrollment) (enrollment.References, error) {
	orNull := func(id string) interface{} {
		if validID(id) {
			return id
		}
		return nil
	}
	var sectionID interface{}
	if e.SectionID != nil {
		sectionID = orNull(*e.SectionID)
	}

	var refs enrollment.References
	err := database.Executor(ctx, repo.db).GetContext(ctx, &refs, `
		SELECT
			EXISTS (SELECT 1 FROM students WHERE id = $1) AS student,
			EXISTS (SELECT 1 FROM academic_years WHERE id = $2) AS year,
			(NOT $3::boolean OR EXISTS (SELECT 1 FROM sections WHERE id = $4)) AS section`,
		orNull(e.StudentID), orNull(e.AcademicYearID), e.SectionID != nil, sectionID)
	return refs, errors.Wrap(err, "checking enrollment references")
}

func (repo enrollmentRepository) DeleteByYear(ctx context.Context, yearID string) (int, error) {
	res, err := database.Executor(ctx, repo.db).ExecContext(ctx, `DELETE FROM enrollments WHERE academic_year_id = $1`, yearID)
	if err != nil {
		return 0, errors.Wrap(err, "deleting year enrollments")
	}
	return affected(res)
}

func (repo enrollmentRepository) DeleteByStudent(ctx context.Context, studentID string) (int, error) {
	res, err := database.Executor(ctx, repo.db).ExecContext(ctx, `DELETE FROM enrollments WHERE student_id = $1`, studentID)
	if err != nil {
		return 0, errors.Wrap(err, "deleting student enrollments")
	}
	return affected(res)
}
