package fee

import (
	"context"

	"github.com/pkg/errors"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/trezcool/registrar/core"
	"github.com/trezcool/registrar/core/academicyear"
	"github.com/trezcool/registrar/core/enrollment"
	"github.com/trezcool/registrar/core/ledger"
	"github.com/trezcool/registrar/core/recyclebin"
)

type yearResolver interface {
	Resolve(ctx context.Context, id string) (academicyear.AcademicYear, error)
}

type Service struct {
	repo        Repository
	years       yearResolver
	enrollments enrollment.Repository
	ledger      *ledger.Reconciler
	bin         recyclebin.SoftDeleter
	tx          core.Transactor
}

var _ academicyear.Prepopulator = (*Service)(nil)

func NewService(
	repo Repository,
	years yearResolver,
	enrollments enrollment.Repository,
	reconciler *ledger.Reconciler,
	bin recyclebin.SoftDeleter,
	tx core.Transactor,
) *Service {
	return &Service{
		repo:        repo,
		years:       years,
		enrollments: enrollments,
		ledger:      reconciler,
		bin:         bin,
		tx:          tx,
	}
}

func (svc *Service) RegisterBinHandler(bin *recyclebin.Service) {
	bin.Register(recyclebin.EntityFeeTemplate, recyclebin.HandlerFuncs{
		TrashFunc:   svc.DeleteTemplate,
		RestoreFunc: svc.restoreTemplate,
	})
}

// Templates

// ListTemplates lists the templates of a year; the active year when none is given.
func (svc *Service) ListTemplates(ctx context.Context, filter TemplateFilter) ([]Template, error) {
	year, err := svc.years.Resolve(ctx, filter.AcademicYearID)
	if err != nil {
		return nil, err
	}
	filter.AcademicYearID = year.ID
	filter.GradeLevel = core.CleanString(filter.GradeLevel)
	return svc.repo.ListTemplates(ctx, filter)
}

func (svc *Service) GetTemplate(ctx context.Context, id string) (Template, error) {
	return svc.repo.GetTemplate(ctx, id)
}

// TemplateFor returns the template of a grade for a year.
func (svc *Service) TemplateFor(ctx context.Context, gradeLevel, yearID string) (Template, error) {
	return svc.repo.GetTemplateFor(ctx, gradeLevel, yearID)
}

// GetBreakdown finds a breakdown by id, whatever template or year it belongs to.
func (svc *Service) GetBreakdown(ctx context.Context, id string) (Breakdown, error) {
	return svc.repo.GetBreakdown(ctx, id)
}

func buildBreakdowns(forms []BreakdownForm) []Breakdown {
	return lo.Map(forms, func(f BreakdownForm, i int) Breakdown {
		return Breakdown{
			ID:           f.ID,
			Description:  f.Description,
			Amount:       f.Amount,
			Category:     f.Category,
			IsRefundable: f.IsRefundable,
			SortOrder:    i,
		}
	})
}

func (svc *Service) checkTemplateSlot(ctx context.Context, grade, yearID, excludedID string) error {
	t, err := svc.repo.GetTemplateFor(ctx, grade, yearID)
	switch {
	case err == nil && t.ID != excludedID:
		return core.NewConflictError("a fee template already exists for %s in this academic year", grade)
	case err != nil && !core.IsNotFound(err):
		return errors.Wrap(err, "checking template uniqueness")
	}
	return nil
}

func (svc *Service) CreateTemplate(ctx context.Context, tf TemplateForm) (Template, error) {
	var tmpl Template
	err := svc.tx.WithinTx(ctx, func(ctx context.Context) error {
		year, err := svc.years.Resolve(ctx, tf.AcademicYearID)
		if err != nil {
			return err
		}
		if err = svc.checkTemplateSlot(ctx, tf.GradeLevel, year.ID, ""); err != nil {
			return err
		}

		now := core.NowFunc()
		bds := buildBreakdowns(tf.Breakdowns)
		for i := range bds {
			bds[i].ID = "" // always new
		}
		tmpl, err = svc.repo.CreateTemplate(ctx, Template{
			Name:           tf.Name,
			GradeLevel:     tf.GradeLevel,
			AcademicYearID: year.ID,
			Description:    tf.Description,
			TotalAmount:    SumBreakdowns(bds),
			Breakdowns:     bds,
			CreatedAt:      now,
			UpdatedAt:      now,
		})
		if err != nil {
			return errors.Wrap(err, "creating template")
		}
		return svc.recalculateGrade(ctx, tmpl.GradeLevel, tmpl.AcademicYearID)
	})
	return tmpl, err
}

// UpdateTemplate replaces a template's fields and breakdowns.
func (svc *Service) UpdateTemplate(ctx context.Context, id string, tf TemplateForm) (Template, error) {
	var tmpl Template
	err := svc.tx.WithinTx(ctx, func(ctx context.Context) error {
		orig, err := svc.repo.GetTemplate(ctx, id)
		if err != nil {
			return err
		}
		if tf.GradeLevel != orig.GradeLevel {
			if err = svc.checkTemplateSlot(ctx, tf.GradeLevel, orig.AcademicYearID, orig.ID); err != nil {
				return err
			}
		}

		bds := buildBreakdowns(tf.Breakdowns)
		kept := make(map[string]bool, len(bds))
		for i, b := range bds {
			if b.ID == "" {
				continue
			}
			if _, ok := orig.Breakdown(b.ID); !ok {
				return core.NewFieldError("breakdowns", "unknown breakdown: "+b.ID)
			}
			kept[b.ID] = true
			bds[i].TemplateID = orig.ID
		}
		removed := lo.FilterMap(orig.Breakdowns, func(b Breakdown, _ int) (string, bool) {
			return b.ID, !kept[b.ID]
		})
		if len(removed) > 0 {
			inUse, err := svc.repo.BreakdownsInUse(ctx, removed...)
			if err != nil {
				return errors.Wrap(err, "checking breakdown usage")
			}
			if inUse {
				return core.NewConflictError("cannot remove fee breakdowns that payments were recorded against")
			}
		}

		tmpl = orig
		tmpl.Name = tf.Name
		tmpl.GradeLevel = tf.GradeLevel
		tmpl.Description = tf.Description
		tmpl.Breakdowns = bds
		tmpl.TotalAmount = SumBreakdowns(bds)
		tmpl.UpdatedAt = core.NowFunc()
		if tmpl, err = svc.repo.UpdateTemplate(ctx, tmpl); err != nil {
			return errors.Wrap(err, "updating template")
		}

		if orig.GradeLevel != tmpl.GradeLevel {
			if err = svc.recalculateGrade(ctx, orig.GradeLevel, orig.AcademicYearID); err != nil {
				return err
			}
		}
		return svc.recalculateGrade(ctx, tmpl.GradeLevel, tmpl.AcademicYearID)
	})
	return tmpl, err
}

// DeleteTemplate moves a template with its breakdowns to the recycle bin.
func (svc *Service) DeleteTemplate(ctx context.Context, id, deletedBy string) error {
	return svc.tx.WithinTx(ctx, func(ctx context.Context) error {
		tmpl, err := svc.repo.GetTemplate(ctx, id)
		if err != nil {
			return err
		}
		ids := lo.Map(tmpl.Breakdowns, func(b Breakdown, _ int) string { return b.ID })
		if len(ids) > 0 {
			inUse, err := svc.repo.BreakdownsInUse(ctx, ids...)
			if err != nil {
				return errors.Wrap(err, "checking breakdown usage")
			}
			if inUse {
				return core.NewConflictError("fee template %q has payments recorded against it", tmpl.Name)
			}
		}

		if _, err = svc.bin.SoftDelete(ctx, recyclebin.Entry{
			EntityType: recyclebin.EntityFeeTemplate,
			EntityID:   tmpl.ID,
			EntityName: tmpl.Name + " (" + tmpl.GradeLevel + ")",
			DeletedBy:  deletedBy,
			Snapshot:   tmpl,
		}); err != nil {
			return errors.Wrap(err, "moving template to recycle bin")
		}
		if err = svc.repo.DeleteTemplate(ctx, tmpl.ID); err != nil {
			return errors.Wrap(err, "deleting template")
		}
		return svc.recalculateGrade(ctx, tmpl.GradeLevel, tmpl.AcademicYearID)
	})
}

func (svc *Service) restoreTemplate(ctx context.Context, it recyclebin.Item) error {
	var tmpl Template
	if err := it.Decode(&tmpl); err != nil {
		return err
	}
	if _, err := svc.repo.GetTemplate(ctx, tmpl.ID); err == nil {
		return core.NewConflictError("fee template %q already exists", tmpl.Name)
	} else if !core.IsNotFound(err) {
		return err
	}
	if err := svc.checkTemplateSlot(ctx, tmpl.GradeLevel, tmpl.AcademicYearID, ""); err != nil {
		return err
	}
	tmpl.UpdatedAt = core.NowFunc()
	if _, err := svc.repo.CreateTemplate(ctx, tmpl); err != nil {
		return err
	}
	return svc.recalculateGrade(ctx, tmpl.GradeLevel, tmpl.AcademicYearID)
}

// recalculateGrade refreshes the fee status of every student enrolled in a grade for a year.
func (svc *Service) recalculateGrade(ctx context.Context, grade, yearID string) error {
	enrollments, err := svc.enrollments.ListByYear(ctx, yearID)
	if err != nil {
		return errors.Wrap(err, "listing enrollments")
	}
	for _, e := range enrollments {
		if e.GradeLevel != grade {
			continue
		}
		if _, err = svc.ledger.Recalculate(ctx, e.StudentID, yearID); err != nil {
			return errors.Wrapf(err, "recalculating fee status of student %s", e.StudentID)
		}
	}
	return nil
}

// Prepopulate copies the templates of the previous year into a new year, skipping grades
// that already have one.
func (svc *Service) Prepopulate(ctx context.Context, year academicyear.AcademicYear, previous *academicyear.AcademicYear) error {
	if previous == nil {
		return nil
	}
	templates, err := svc.repo.ListTemplates(ctx, TemplateFilter{AcademicYearID: previous.ID})
	if err != nil {
		return errors.Wrap(err, "listing previous templates")
	}
	now := core.NowFunc()
	for _, t := range templates {
		if err = svc.checkTemplateSlot(ctx, t.GradeLevel, year.ID, ""); err != nil {
			if core.IsConflict(err) {
				continue
			}
			return err
		}
		clone := Template{
			Name:           t.Name,
			GradeLevel:     t.GradeLevel,
			AcademicYearID: year.ID,
			Description:    t.Description,
			TotalAmount:    t.TotalAmount,
			CreatedAt:      now,
			UpdatedAt:      now,
			Breakdowns: lo.Map(t.Breakdowns, func(b Breakdown, _ int) Breakdown {
				b.ID, b.TemplateID = "", ""
				return b
			}),
		}
		if _, err = svc.repo.CreateTemplate(ctx, clone); err != nil {
			return errors.Wrapf(err, "copying template %q", t.Name)
		}
	}
	return nil
}

// Optional fees

func (svc *Service) ListOptionalFees(ctx context.Context, activeOnly bool) ([]OptionalFee, error) {
	return svc.repo.ListOptionalFees(ctx, activeOnly)
}

func buildVariations(forms []VariationForm) []Variation {
	return lo.Map(forms, func(f VariationForm, _ int) Variation {
		return Variation{ID: f.ID, Name: f.Name, Amount: f.Amount}
	})
}

func (svc *Service) CreateOptionalFee(ctx context.Context, of OptionalFeeForm) (OptionalFee, error) {
	now := core.NowFunc()
	vars := buildVariations(of.Variations)
	for i := range vars {
		vars[i].ID = ""
	}
	return svc.repo.CreateOptionalFee(ctx, OptionalFee{
		Name:        of.Name,
		Description: of.Description,
		Amount:      of.Amount,
		IsActive:    of.IsActive == nil || *of.IsActive,
		Variations:  vars,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
}

func (svc *Service) UpdateOptionalFee(ctx context.Context, id string, op OptionalFeePatch) (OptionalFee, error) {
	var of OptionalFee
	err := svc.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		if of, err = svc.repo.GetOptionalFee(ctx, id); err != nil {
			return err
		}
		if op.Name != nil {
			of.Name = *op.Name
		}
		if op.Description != nil {
			of.Description = core.CleanString(*op.Description)
		}
		if op.Amount != nil {
			of.Amount = *op.Amount
		}
		if op.IsActive != nil {
			of.IsActive = *op.IsActive
		}
		if op.Variations != nil {
			vars := buildVariations(op.Variations)
			for i, v := range vars {
				if v.ID == "" {
					continue
				}
				if !lo.ContainsBy(of.Variations, func(o Variation) bool { return o.ID == v.ID }) {
					return core.NewFieldError("variations", "unknown variation: "+v.ID)
				}
				vars[i].OptionalFeeID = of.ID
			}
			of.Variations = vars
		}
		of.UpdatedAt = core.NowFunc()
		of, err = svc.repo.UpdateOptionalFee(ctx, of)
		return err
	})
	return of, err
}

func (svc *Service) DeleteOptionalFee(ctx context.Context, id string) error {
	return svc.tx.WithinTx(ctx, func(ctx context.Context) error {
		of, err := svc.repo.GetOptionalFee(ctx, id)
		if err != nil {
			return err
		}
		assigned, err := svc.repo.OptionalFeeAssigned(ctx, of.ID)
		if err != nil {
			return errors.Wrap(err, "checking assignments")
		}
		if assigned {
			return core.NewConflictError("optional fee %q is assigned to students", of.Name)
		}
		return svc.repo.DeleteOptionalFee(ctx, of.ID)
	})
}

// Student optional fees

func (svc *Service) ListStudentOptionalFees(ctx context.Context, studentID, yearID string) ([]StudentOptionalFee, error) {
	year, err := svc.years.Resolve(ctx, yearID)
	if err != nil {
		return nil, err
	}
	return svc.repo.ListStudentOptionalFees(ctx, studentID, year.ID)
}

// AssignOrPay assigns an optional fee to the student (once per year) and records payAmount on it.
func (svc *Service) AssignOrPay(ctx context.Context, studentID string, af AssignForm) (StudentOptionalFee, error) {
	var sof StudentOptionalFee
	err := svc.tx.WithinTx(ctx, func(ctx context.Context) error {
		year, err := svc.years.Resolve(ctx, af.AcademicYearID)
		if err != nil {
			return err
		}
		of, err := svc.repo.GetOptionalFee(ctx, af.OptionalFeeID)
		if err != nil {
			if core.IsNotFound(err) {
				return core.NewFieldError("optionalFeeId", "optional fee not found")
			}
			return err
		}

		now := core.NowFunc()
		sof, err = svc.repo.GetStudentOptionalFee(ctx, studentID, of.ID, year.ID)
		switch {
		case core.IsNotFound(err):
			if !of.IsActive {
				return core.NewFieldError("optionalFeeId", "optional fee is not active")
			}
			amount := of.Amount
			var variationID *string
			if af.VariationID != "" {
				v, ok := lo.Find(of.Variations, func(v Variation) bool { return v.ID == af.VariationID })
				if !ok {
					return core.NewFieldError("variationId", "unknown variation")
				}
				amount = v.Amount
				variationID = &v.ID
			}
			sof = StudentOptionalFee{
				StudentID:      studentID,
				OptionalFeeID:  of.ID,
				VariationID:    variationID,
				AcademicYearID: year.ID,
				Amount:         amount,
				PaidAmount:     decimal.Zero,
				CreatedAt:      now,
			}
		case err != nil:
			return errors.Wrap(err, "getting student optional fee")
		}

		sof.Pay(af.PayAmount)
		sof.UpdatedAt = now
		sof, err = svc.repo.SaveStudentOptionalFee(ctx, sof)
		return err
	})
	return sof, err
}

func (svc *Service) Unassign(ctx context.Context, studentID, optionalFeeID, yearID string) error {
	return svc.tx.WithinTx(ctx, func(ctx context.Context) error {
		year, err := svc.years.Resolve(ctx, yearID)
		if err != nil {
			return err
		}
		sof, err := svc.repo.GetStudentOptionalFee(ctx, studentID, optionalFeeID, year.ID)
		if err != nil {
			return err
		}
		return svc.repo.DeleteStudentOptionalFee(ctx, sof.ID)
	})
}
