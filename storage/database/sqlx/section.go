package sqlxrepos

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/registrar/core/enrollment"
	"github.com/trezcool/registrar/core/section"
	"github.com/trezcool/registrar/storage/database"
)

const sectionSelect = `
	SELECT sec.id, sec.name, sec.grade_level, sec.is_active, sec.created_at, sec.updated_at,
		(SELECT COUNT(*) FROM students st WHERE st.section_id = sec.id AND st.enrollment_status = 'ENROLLED') AS enrolled_count
	FROM sections sec`

type sectionRepository struct {
	db *sqlx.DB
}

var _ section.Repository = (*sectionRepository)(nil)

func NewSectionRepository(db *sqlx.DB) *sectionRepository {
	return &sectionRepository{db: db}
}

func (repo sectionRepository) CreateSection(ctx context.Context, s section.Section) (section.Section, error) {
	s.ID = newID(s.ID)
	_, err := database.Executor(ctx, repo.db).ExecContext(ctx,
		`INSERT INTO sections (id, name, grade_level, is_active, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		s.ID, s.Name, s.GradeLevel, s.IsActive, s.CreatedAt, s.UpdatedAt)
	if err != nil {
		return section.Section{}, database.TrapErr(err, section.ErrNotFound, "inserting section")
	}
	return s, nil
}

func (repo sectionRepository) UpdateSection(ctx context.Context, s section.Section) (section.Section, error) {
	res, err := database.Executor(ctx, repo.db).ExecContext(ctx,
		`UPDATE sections SET name = $2, grade_level = $3, is_active = $4, updated_at = $5 WHERE id = $1`,
		s.ID, s.Name, s.GradeLevel, s.IsActive, s.UpdatedAt)
	if err != nil {
		return section.Section{}, database.TrapErr(err, section.ErrNotFound, "updating section")
	}
	return s, mustAffect(res, section.ErrNotFound)
}

func (repo sectionRepository) GetSection(ctx context.Context, id string) (section.Section, error) {
	var s section.Section
	if !validID(id) {
		return s, section.ErrNotFound
	}
	err := database.Executor(ctx, repo.db).GetContext(ctx, &s, sectionSelect+` WHERE sec.id = $1`, id)
	return s, database.TrapErr(err, section.ErrNotFound, "getting section")
}

func (repo sectionRepository) GetSectionByName(ctx context.Context, name, gradeLevel string) (section.Section, error) {
	var s section.Section
	err := database.Executor(ctx, repo.db).GetContext(ctx, &s,
		sectionSelect+` WHERE lower(sec.name) = lower($1) AND sec.grade_level = $2`, name, gradeLevel)
	return s, database.TrapErr(err, section.ErrNotFound, "getting section by name")
}

func (repo sectionRepository) ListSections(ctx context.Context, filter section.QueryFilter) ([]section.Section, error) {
	var (
		where []string
		args  []interface{}
	)
	if filter.GradeLevel != "" {
		args = append(args, filter.GradeLevel)
		where = append(where, fmt.Sprintf("sec.grade_level = $%d", len(args)))
	}
	if filter.IsActive != nil {
		args = append(args, *filter.IsActive)
		where = append(where, fmt.Sprintf("sec.is_active = $%d", len(args)))
	}
	q := sectionSelect
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	q += ` ORDER BY ` + gradeOrder("sec.grade_level") + `, sec.name`

	sections := []section.Section{}
	err := database.Executor(ctx, repo.db).SelectContext(ctx, &sections, q, args...)
	return sections, errors.Wrap(err, "listing sections")
}

// gradeOrder sorts grade levels in school order instead of alphabetically.
func gradeOrder(col string) string {
	var b strings.Builder
	b.WriteString("CASE " + col)
	for i, g := range enrollment.GradeLevels {
		fmt.Fprintf(&b, " WHEN '%s' THEN %d", g, i)
	}
	b.WriteString(" ELSE 99 END")
	return b.String()
}

func (repo sectionRepository) Exists(ctx context.Context, name, gradeLevel, excludedID string) (bool, error) {
	var exists bool
	err := database.Executor(ctx, repo.db).GetContext(ctx, &exists, `
		SELECT EXISTS (
			SELECT 1 FROM sections WHERE lower(name) = lower($1) AND grade_level = $2 AND id::text <> $3
		)`, name, gradeLevel, excludedID)
	return exists, errors.Wrap(err, "checking section name")
}

func (repo sectionRepository) CountEnrolled(ctx context.Context, id string) (int, error) {
	var n int
	err := database.Executor(ctx, repo.db).GetContext(ctx, &n,
		`SELECT COUNT(*) FROM students WHERE section_id = $1 AND enrollment_status = $2`, id, enrollment.StatusEnrolled)
	return n, errors.Wrap(err, "counting enrolled students")
}

func (repo sectionRepository) DeleteSection(ctx context.Context, id string) error {
	res, err := database.Executor(ctx, repo.db).ExecContext(ctx, `DELETE FROM sections WHERE id = $1`, id)
	if err != nil {
		return database.TrapErr(err, section.ErrNotFound, "deleting section")
	}
	return mustAffect(res, section.ErrNotFound)
}
