package sqlxrepos

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/samber/lo"

	"github.com/trezcool/registrar/core/fee"
	"github.com/trezcool/registrar/storage/database"
)

const (
	templateColumns  = `id, name, grade_level, academic_year_id, description, total_amount, created_at, updated_at`
	breakdownColumns = `id, template_id, description, amount, category, is_refundable, sort_order`
	optFeeColumns    = `id, name, description, amount, is_active, created_at, updated_at`
	variationColumns = `id, optional_fee_id, name, amount`
	sofColumns       = `id, student_id, optional_fee_id, variation_id, academic_year_id, amount, paid_amount, is_paid, created_at, updated_at`
)

type feeRepository struct {
	db *sqlx.DB
}

var _ fee.Repository = (*feeRepository)(nil)

func NewFeeRepository(db *sqlx.DB) *feeRepository {
	return &feeRepository{db: db}
}

// Templates

func (repo feeRepository) insertBreakdowns(ctx context.Context, exec database.DBExecutor, templateID string, bds []fee.Breakdown) ([]fee.Breakdown, error) {
	for i := range bds {
		bds[i].ID = newID(bds[i].ID)
		bds[i].TemplateID = templateID
		bds[i].SortOrder = i
		_, err := exec.ExecContext(ctx,
			`INSERT INTO fee_breakdowns (`+breakdownColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			bds[i].ID, templateID, bds[i].Description, bds[i].Amount, bds[i].Category, bds[i].IsRefundable, bds[i].SortOrder)
		if err != nil {
			return nil, database.TrapErr(err, fee.ErrTemplateNotFound, "inserting fee breakdown")
		}
	}
	return bds, nil
}

func (repo feeRepository) CreateTemplate(ctx context.Context, t fee.Template) (fee.Template, error) {
	exec := database.Executor(ctx, repo.db)
	t.ID = newID(t.ID)
	_, err := exec.ExecContext(ctx,
		`INSERT INTO fee_templates (`+templateColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		t.ID, t.Name, t.GradeLevel, t.AcademicYearID, t.Description, t.TotalAmount, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return fee.Template{}, database.TrapErr(err, fee.ErrTemplateNotFound, "inserting fee template")
	}
	if t.Breakdowns, err = repo.insertBreakdowns(ctx, exec, t.ID, t.Breakdowns); err != nil {
		return fee.Template{}, err
	}
	return t, nil
}

func (repo feeRepository) UpdateTemplate(ctx context.Context, t fee.Template) (fee.Template, error) {
	exec := database.Executor(ctx, repo.db)
	res, err := exec.ExecContext(ctx,
		`UPDATE fee_templates SET name = $2, grade_level = $3, description = $4, total_amount = $5, updated_at = $6 WHERE id = $1`,
		t.ID, t.Name, t.GradeLevel, t.Description, t.TotalAmount, t.UpdatedAt)
	if err != nil {
		return fee.Template{}, database.TrapErr(err, fee.ErrTemplateNotFound, "updating fee template")
	}
	if err = mustAffect(res, fee.ErrTemplateNotFound); err != nil {
		return fee.Template{}, err
	}

	kept := lo.FilterMap(t.Breakdowns, func(b fee.Breakdown, _ int) (string, bool) { return b.ID, b.ID != "" })
	if _, err = exec.ExecContext(ctx,
		`DELETE FROM fee_breakdowns WHERE template_id = $1 AND NOT (id::text = ANY($2))`, t.ID, idArray(kept)); err != nil {
		return fee.Template{}, errors.Wrap(err, "removing fee breakdowns")
	}
	for i := range t.Breakdowns {
		b := &t.Breakdowns[i]
		b.TemplateID = t.ID
		b.SortOrder = i
		if b.ID == "" {
			b.ID = newID("")
			_, err = exec.ExecContext(ctx,
				`INSERT INTO fee_breakdowns (`+breakdownColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
				b.ID, t.ID, b.Description, b.Amount, b.Category, b.IsRefundable, b.SortOrder)
		} else {
			_, err = exec.ExecContext(ctx,
				`UPDATE fee_breakdowns SET description = $3, amount = $4, category = $5, is_refundable = $6, sort_order = $7
				WHERE id = $1 AND template_id = $2`,
				b.ID, t.ID, b.Description, b.Amount, b.Category, b.IsRefundable, b.SortOrder)
		}
		if err != nil {
			return fee.Template{}, errors.Wrap(err, "saving fee breakdown")
		}
	}
	return t, nil
}

func (repo feeRepository) loadBreakdowns(ctx context.Context, templates []fee.Template) error {
	if len(templates) == 0 {
		return nil
	}
	ids := lo.Map(templates, func(t fee.Template, _ int) string { return t.ID })
	var bds []fee.Breakdown
	if err := database.Executor(ctx, repo.db).SelectContext(ctx, &bds,
		`SELECT `+breakdownColumns+` FROM fee_breakdowns WHERE template_id::text = ANY($1) ORDER BY sort_order`,
		idArray(ids)); err != nil {
		return errors.Wrap(err, "loading fee breakdowns")
	}
	byTemplate := lo.GroupBy(bds, func(b fee.Breakdown) string { return b.TemplateID })
	for i := range templates {
		templates[i].Breakdowns = byTemplate[templates[i].ID]
		if templates[i].Breakdowns == nil {
			templates[i].Breakdowns = []fee.Breakdown{}
		}
	}
	return nil
}

func (repo feeRepository) getTemplate(ctx context.Context, cond string, args ...interface{}) (fee.Template, error) {
	var t fee.Template
	err := database.Executor(ctx, repo.db).GetContext(ctx, &t, `SELECT `+templateColumns+` FROM fee_templates WHERE `+cond, args...)
	if err != nil {
		return t, database.TrapErr(err, fee.ErrTemplateNotFound, "getting fee template")
	}
	ts := []fee.Template{t}
	if err = repo.loadBreakdowns(ctx, ts); err != nil {
		return fee.Template{}, err
	}
	return ts[0], nil
}

func (repo feeRepository) GetTemplate(ctx context.Context, id string) (fee.Template, error) {
	if !validID(id) {
		return fee.Template{}, fee.ErrTemplateNotFound
	}
	return repo.getTemplate(ctx, `id = $1`, id)
}

func (repo feeRepository) GetTemplateFor(ctx context.Context, gradeLevel, yearID string) (fee.Template, error) {
	if !validID(yearID) {
		return fee.Template{}, fee.ErrTemplateNotFound
	}
	return repo.getTemplate(ctx, `grade_level = $1 AND academic_year_id = $2`, gradeLevel, yearID)
}

func (repo feeRepository) GetBreakdown(ctx context.Context, id string) (fee.Breakdown, error) {
	var bd fee.Breakdown
	if !validID(id) {
		return bd, fee.ErrBreakdownNotFound
	}
	err := database.Executor(ctx, repo.db).GetContext(ctx, &bd,
		`SELECT `+breakdownColumns+` FROM fee_breakdowns WHERE id = $1`, id)
	return bd, database.TrapErr(err, fee.ErrBreakdownNotFound, "getting fee breakdown")
}

func (repo feeRepository) ListTemplates(ctx context.Context, filter fee.TemplateFilter) ([]fee.Template, error) {
	var (
		where []string
		args  []interface{}
	)
	if filter.AcademicYearID != "" {
		args = append(args, filter.AcademicYearID)
		where = append(where, fmt.Sprintf("academic_year_id::text = $%d", len(args)))
	}
	if filter.GradeLevel != "" {
		args = append(args, filter.GradeLevel)
		where = append(where, fmt.Sprintf("grade_level = $%d", len(args)))
	}
	q := `SELECT ` + templateColumns + ` FROM fee_templates`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	q += ` ORDER BY ` + gradeOrder("grade_level")

	templates := []fee.Template{}
	if err := database.Executor(ctx, repo.db).SelectContext(ctx, &templates, q, args...); err != nil {
		return nil, errors.Wrap(err, "listing fee templates")
	}
	return templates, repo.loadBreakdowns(ctx, templates)
}

func (repo feeRepository) DeleteTemplate(ctx context.Context, id string) error {
	res, err := database.Executor(ctx, repo.db).ExecContext(ctx, `DELETE FROM fee_templates WHERE id = $1`, id)
	if err != nil {
		return database.TrapErr(err, fee.ErrTemplateNotFound, "deleting fee template")
	}
	return mustAffect(res, fee.ErrTemplateNotFound)
}

func (repo feeRepository) BreakdownsInUse(ctx context.Context, breakdownIDs ...string) (bool, error) {
	if len(breakdownIDs) == 0 {
		return false, nil
	}
	var used bool
	err := database.Executor(ctx, repo.db).GetContext(ctx, &used,
		`SELECT EXISTS (SELECT 1 FROM payment_line_items WHERE fee_breakdown_id::text = ANY($1))`, idArray(breakdownIDs))
	return used, errors.Wrap(err, "checking fee breakdown usage")
}

// Optional fees

func (repo feeRepository) saveVariations(ctx context.Context, exec database.DBExecutor, of *fee.OptionalFee) error {
	kept := lo.FilterMap(of.Variations, func(v fee.Variation, _ int) (string, bool) { return v.ID, v.ID != "" })
	if _, err := exec.ExecContext(ctx,
		`DELETE FROM optional_fee_variations WHERE optional_fee_id = $1 AND NOT (id::text = ANY($2))`, of.ID, idArray(kept)); err != nil {
		return errors.Wrap(err, "removing variations")
	}
	for i := range of.Variations {
		v := &of.Variations[i]
		v.OptionalFeeID = of.ID
		var err error
		if v.ID == "" {
			v.ID = newID("")
			_, err = exec.ExecContext(ctx,
				`INSERT INTO optional_fee_variations (`+variationColumns+`) VALUES ($1, $2, $3, $4)`, v.ID, of.ID, v.Name, v.Amount)
		} else {
			_, err = exec.ExecContext(ctx,
				`INSERT INTO optional_fee_variations (`+variationColumns+`) VALUES ($1, $2, $3, $4)
				ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, amount = EXCLUDED.amount`, v.ID, of.ID, v.Name, v.Amount)
		}
		if err != nil {
			return errors.Wrap(err, "saving variation")
		}
	}
	return nil
}

func (repo feeRepository) CreateOptionalFee(ctx context.Context, of fee.OptionalFee) (fee.OptionalFee, error) {
	exec := database.Executor(ctx, repo.db)
	of.ID = newID(of.ID)
	_, err := exec.ExecContext(ctx,
		`INSERT INTO optional_fees (`+optFeeColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		of.ID, of.Name, of.Description, of.Amount, of.IsActive, of.CreatedAt, of.UpdatedAt)
	if err != nil {
		return fee.OptionalFee{}, database.TrapErr(err, fee.ErrOptionalFeeNotFound, "inserting optional fee")
	}
	return of, repo.saveVariations(ctx, exec, &of)
}

func (repo feeRepository) UpdateOptionalFee(ctx context.Context, of fee.OptionalFee) (fee.OptionalFee, error) {
	exec := database.Executor(ctx, repo.db)
	res, err := exec.ExecContext(ctx,
		`UPDATE optional_fees SET name = $2, description = $3, amount = $4, is_active = $5, updated_at = $6 WHERE id = $1`,
		of.ID, of.Name, of.Description, of.Amount, of.IsActive, of.UpdatedAt)
	if err != nil {
		return fee.OptionalFee{}, database.TrapErr(err, fee.ErrOptionalFeeNotFound, "updating optional fee")
	}
	if err = mustAffect(res, fee.ErrOptionalFeeNotFound); err != nil {
		return fee.OptionalFee{}, err
	}
	return of, repo.saveVariations(ctx, exec, &of)
}

func (repo feeRepository) loadVariations(ctx context.Context, fees []fee.OptionalFee) error {
	if len(fees) == 0 {
		return nil
	}
	ids := lo.Map(fees, func(of fee.OptionalFee, _ int) string { return of.ID })
	var vs []fee.Variation
	if err := database.Executor(ctx, repo.db).SelectContext(ctx, &vs,
		`SELECT `+variationColumns+` FROM optional_fee_variations WHERE optional_fee_id::text = ANY($1) ORDER BY name`,
		idArray(ids)); err != nil {
		return errors.Wrap(err, "loading variations")
	}
	byFee := lo.GroupBy(vs, func(v fee.Variation) string { return v.OptionalFeeID })
	for i := range fees {
		fees[i].Variations = byFee[fees[i].ID]
		if fees[i].Variations == nil {
			fees[i].Variations = []fee.Variation{}
		}
	}
	return nil
}

func (repo feeRepository) GetOptionalFee(ctx context.Context, id string) (fee.OptionalFee, error) {
	var of fee.OptionalFee
	if !validID(id) {
		return of, fee.ErrOptionalFeeNotFound
	}
	if err := database.Executor(ctx, repo.db).GetContext(ctx, &of,
		`SELECT `+optFeeColumns+` FROM optional_fees WHERE id = $1`, id); err != nil {
		return of, database.TrapErr(err, fee.ErrOptionalFeeNotFound, "getting optional fee")
	}
	fees := []fee.OptionalFee{of}
	if err := repo.loadVariations(ctx, fees); err != nil {
		return fee.OptionalFee{}, err
	}
	return fees[0], nil
}

func (repo feeRepository) ListOptionalFees(ctx context.Context, activeOnly bool) ([]fee.OptionalFee, error) {
	q := `SELECT ` + optFeeColumns + ` FROM optional_fees`
	if activeOnly {
		q += ` WHERE is_active`
	}
	q += ` ORDER BY name`
	fees := []fee.OptionalFee{}
	if err := database.Executor(ctx, repo.db).SelectContext(ctx, &fees, q); err != nil {
		return nil, errors.Wrap(err, "listing optional fees")
	}
	return fees, repo.loadVariations(ctx, fees)
}

func (repo feeRepository) DeleteOptionalFee(ctx context.Context, id string) error {
	res, err := database.Executor(ctx, repo.db).ExecContext(ctx, `DELETE FROM optional_fees WHERE id = $1`, id)
	if err != nil {
		return database.TrapErr(err, fee.ErrOptionalFeeNotFound, "deleting optional fee")
	}
	return mustAffect(res, fee.ErrOptionalFeeNotFound)
}

func (repo feeRepository) OptionalFeeAssigned(ctx context.Context, id string) (bool, error) {
	var assigned bool
	err := database.Executor(ctx, repo.db).GetContext(ctx, &assigned,
		`SELECT EXISTS (SELECT 1 FROM student_optional_fees WHERE optional_fee_id = $1)`, id)
	return assigned, errors.Wrap(err, "checking optional fee assignments")
}

// Student optional fees

const sofSelect = `
	SELECT sof.id, sof.student_id, sof.optional_fee_id, sof.variation_id, sof.academic_year_id, sof.amount,
		sof.paid_amount, sof.is_paid, sof.created_at, sof.updated_at, f.name AS optional_fee_name
	FROM student_optional_fees sof
	JOIN optional_fees f ON f.id = sof.optional_fee_id`

func (repo feeRepository) ListStudentOptionalFees(ctx context.Context, studentID, yearID string) ([]fee.StudentOptionalFee, error) {
	sofs := []fee.StudentOptionalFee{}
	err := database.Executor(ctx, repo.db).SelectContext(ctx, &sofs,
		sofSelect+` WHERE sof.student_id = $1 AND sof.academic_year_id = $2 ORDER BY f.name`, studentID, yearID)
	return sofs, errors.Wrap(err, "listing student optional fees")
}

func (repo feeRepository) GetStudentOptionalFee(ctx context.Context, studentID, optionalFeeID, yearID string) (fee.StudentOptionalFee, error) {
	var sof fee.StudentOptionalFee
	if !validID(studentID) || !validID(optionalFeeID) || !validID(yearID) {
		return sof, fee.ErrAssignmentNotFound
	}
	err := database.Executor(ctx, repo.db).GetContext(ctx, &sof,
		sofSelect+` WHERE sof.student_id = $1 AND sof.optional_fee_id = $2 AND sof.academic_year_id = $3`,
		studentID, optionalFeeID, yearID)
	return sof, database.TrapErr(err, fee.ErrAssignmentNotFound, "getting student optional fee")
}

func (repo feeRepository) SaveStudentOptionalFee(ctx context.Context, sof fee.StudentOptionalFee) (fee.StudentOptionalFee, error) {
	sof.ID = newID(sof.ID)
	err := database.Executor(ctx, repo.db).GetContext(ctx, &sof.ID, `
		INSERT INTO student_optional_fees (`+sofColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (student_id, optional_fee_id, academic_year_id) DO UPDATE SET
			variation_id = EXCLUDED.variation_id, amount = EXCLUDED.amount, paid_amount = EXCLUDED.paid_amount,
			is_paid = EXCLUDED.is_paid, updated_at = EXCLUDED.updated_at
		RETURNING id`,
		sof.ID, sof.StudentID, sof.OptionalFeeID, sof.VariationID, sof.AcademicYearID, sof.Amount,
		sof.PaidAmount, sof.IsPaid, sof.CreatedAt, sof.UpdatedAt)
	if err != nil {
		return fee.StudentOptionalFee{}, database.TrapErr(err, fee.ErrAssignmentNotFound, "saving student optional fee")
	}
	return sof, nil
}

func (repo feeRepository) DeleteStudentOptionalFee(ctx context.Context, id string) error {
	res, err := database.Executor(ctx, repo.db).ExecContext(ctx, `DELETE FROM student_optional_fees WHERE id = $1`, id)
	if err != nil {
		return database.TrapErr(err, fee.ErrAssignmentNotFound, "deleting student optional fee")
	}
	return mustAffect(res, fee.ErrAssignmentNotFound)
}
