package sqlxrepos

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/registrar/core/academicyear"
	"github.com/trezcool/registrar/storage/database"
)

const yearColumns = `id, name, start_date, end_date, is_active, is_closed, created_at, updated_at`

type yearRepository struct {
	db *sqlx.DB
}

var _ academicyear.Repository = (*yearRepository)(nil)

func NewAcademicYearRepository(db *sqlx.DB) *yearRepository {
	return &yearRepository{db: db}
}

func (repo yearRepository) CreateYear(ctx context.Context, y academicyear.AcademicYear) (academicyear.AcademicYear, error) {
	y.ID = newID(y.ID)
	_, err := database.Executor(ctx, repo.db).ExecContext(ctx,
		`INSERT INTO academic_years (`+yearColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		y.ID, y.Name, y.StartDate, y.EndDate, y.IsActive, y.IsClosed, y.CreatedAt, y.UpdatedAt)
	if err != nil {
		return academicyear.AcademicYear{}, database.TrapErr(err, academicyear.ErrNotFound, "inserting academic year")
	}
	return y, nil
}

func (repo yearRepository) UpdateYear(ctx context.Context, y academicyear.AcademicYear) (academicyear.AcademicYear, error) {
	res, err := database.Executor(ctx, repo.db).ExecContext(ctx,
		`UPDATE academic_years SET name = $2, start_date = $3, end_date = $4, is_active = $5,
		is_closed = $6, updated_at = $7 WHERE id = $1`,
		y.ID, y.Name, y.StartDate, y.EndDate, y.IsActive, y.IsClosed, y.UpdatedAt)
	if err != nil {
		return academicyear.AcademicYear{}, database.TrapErr(err, academicyear.ErrNotFound, "updating academic year")
	}
	return y, mustAffect(res, academicyear.ErrNotFound)
}

func (repo yearRepository) GetYear(ctx context.Context, id string) (academicyear.AcademicYear, error) {
	var y academicyear.AcademicYear
	if !validID(id) {
		return y, academicyear.ErrNotFound
	}
	err := database.Executor(ctx, repo.db).GetContext(ctx, &y, `SELECT `+yearColumns+` FROM academic_years WHERE id = $1`, id)
	return y, database.TrapErr(err, academicyear.ErrNotFound, "getting academic year")
}

func (repo yearRepository) GetActiveYear(ctx context.Context) (academicyear.AcademicYear, error) {
	var y academicyear.AcademicYear
	err := database.Executor(ctx, repo.db).GetContext(ctx, &y,
		`SELECT `+yearColumns+` FROM academic_years WHERE is_active LIMIT 1`)
	return y, database.TrapErr(err, academicyear.ErrNoActiveYear, "getting active academic year")
}

func (repo yearRepository) ListYears(ctx context.Context) ([]academicyear.AcademicYear, error) {
	years := []academicyear.AcademicYear{}
	err := database.Executor(ctx, repo.db).SelectContext(ctx, &years,
		`SELECT `+yearColumns+` FROM academic_years ORDER BY start_date DESC, created_at DESC`)
	return years, errors.Wrap(err, "listing academic years")
}

func (repo yearRepository) NameExists(ctx context.Context, name, excludedID string) (bool, error) {
	var exists bool
	q := `SELECT EXISTS (SELECT 1 FROM academic_years WHERE lower(name) = lower($1) AND id::text <> $2)`
	err := database.Executor(ctx, repo.db).GetContext(ctx, &exists, q, name, excludedID)
	return exists, errors.Wrap(err, "checking academic year name")
}

func (repo yearRepository) DeactivateAll(ctx context.Context, exceptID string) error {
	_, err := database.Executor(ctx, repo.db).ExecContext(ctx,
		`UPDATE academic_years SET is_active = FALSE, updated_at = now() WHERE is_active AND id::text <> $1`, exceptID)
	return errors.Wrap(err, "deactivating academic years")
}

func (repo yearRepository) DeleteYear(ctx context.Context, id string) error {
	res, err := database.Executor(ctx, repo.db).ExecContext(ctx, `DELETE FROM academic_years WHERE id = $1`, id)
	if err != nil {
		return database.TrapErr(err, academicyear.ErrNotFound, "deleting academic year")
	}
	return mustAffect(res, academicyear.ErrNotFound)
}

func (repo yearRepository) CountPayments(ctx context.Context, yearID string) (int, error) {
	var n int
	err := database.Executor(ctx, repo.db).GetContext(ctx, &n, `SELECT COUNT(*) FROM payments WHERE academic_year_id = $1`, yearID)
	return n, errors.Wrap(err, "counting payments")
}
