package academicyear

import (
	"context"

	"github.com/pkg/errors"

	"github.com/trezcool/registrar/core"
	"github.com/trezcool/registrar/core/enrollment"
	"github.com/trezcool/registrar/core/recyclebin"
)

var (
	ErrNotFound     = core.NewNotFoundError("academic year", "")
	ErrNoActiveYear = core.NewNotFoundError("active academic year", "")
)

type Service struct {
	repo          Repository
	enrollments   enrollment.Repository
	bin           recyclebin.SoftDeleter
	tx            core.Transactor
	prepopulators []Prepopulator
}

func NewService(repo Repository, enrollments enrollment.Repository, bin recyclebin.SoftDeleter, tx core.Transactor) *Service {
	return &Service{repo: repo, enrollments: enrollments, bin: bin, tx: tx}
}

// AddPrepopulator registers a step run after every year creation.
func (svc *Service) AddPrepopulator(p Prepopulator) {
	svc.prepopulators = append(svc.prepopulators, p)
}

// RegisterBinHandler lets the recycle bin trash and restore academic years.
func (svc *Service) RegisterBinHandler(bin *recyclebin.Service) {
	bin.Register(recyclebin.EntityAcademicYear, recyclebin.HandlerFuncs{
		TrashFunc:   svc.Delete,
		RestoreFunc: svc.restore,
	})
}

func (svc *Service) List(ctx context.Context) ([]AcademicYear, error) {
	return svc.repo.ListYears(ctx)
}

func (svc *Service) Get(ctx context.Context, id string) (AcademicYear, error) {
	return svc.repo.GetYear(ctx, id)
}

func (svc *Service) GetActive(ctx context.Context) (AcademicYear, error) {
	return svc.repo.GetActiveYear(ctx)
}

// Resolve returns the year with the given id, or the active one when id is blank.
func (svc *Service) Resolve(ctx context.Context, id string) (AcademicYear, error) {
	if id = core.CleanString(id); id != "" {
		return svc.repo.GetYear(ctx, id)
	}
	return svc.repo.GetActiveYear(ctx)
}

func (svc *Service) checkName(ctx context.Context, name, excludedID string) error {
	exists, err := svc.repo.NameExists(ctx, name, excludedID)
	if err != nil {
		return errors.Wrap(err, "checking name uniqueness")
	}
	if exists {
		return core.NewConflictError("an academic year named %q already exists", name)
	}
	return nil
}

func (svc *Service) Create(ctx context.Context, ny NewAcademicYear) (AcademicYear, error) {
	var year AcademicYear
	err := svc.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := svc.checkName(ctx, ny.Name, ""); err != nil {
			return err
		}

		var previous *AcademicYear
		prev, err := svc.repo.GetActiveYear(ctx)
		switch {
		case err == nil:
			previous = &prev
		case !core.IsNotFound(err):
			return errors.Wrap(err, "getting active year")
		}

		isActive := ny.IsActive == nil || *ny.IsActive
		if isActive {
			if err = svc.repo.DeactivateAll(ctx, ""); err != nil {
				return errors.Wrap(err, "deactivating years")
			}
		}

		now := core.NowFunc()
		year, err = svc.repo.CreateYear(ctx, AcademicYear{
			Name:      ny.Name,
			StartDate: ny.StartDate,
			EndDate:   ny.EndDate,
			IsActive:  isActive,
			CreatedAt: now,
			UpdatedAt: now,
		})
		if err != nil {
			return errors.Wrap(err, "creating year")
		}

		for _, p := range svc.prepopulators {
			if err = p.Prepopulate(ctx, year, previous); err != nil {
				return errors.Wrap(err, "prepopulating year")
			}
		}
		return nil
	})
	return year, err
}

func (svc *Service) Update(ctx context.Context, id string, uy UpdateAcademicYear) (AcademicYear, error) {
	var year AcademicYear
	err := svc.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		if year, err = svc.repo.GetYear(ctx, id); err != nil {
			return err
		}

		changed := false
		if uy.Name != "" && uy.Name != year.Name {
			if err = svc.checkName(ctx, uy.Name, year.ID); err != nil {
				return err
			}
			year.Name = uy.Name
			changed = true
		}
		if !uy.StartDate.IsZero() {
			year.StartDate = uy.StartDate
			changed = true
		}
		if !uy.EndDate.IsZero() {
			year.EndDate = uy.EndDate
			changed = true
		}
		if changed {
			if err = checkDates(year.StartDate, year.EndDate); err != nil {
				return err
			}
			year.UpdatedAt = core.NowFunc()
			if year, err = svc.repo.UpdateYear(ctx, year); err != nil {
				return errors.Wrap(err, "updating year")
			}
		}

		if uy.Action != "" {
			year, err = svc.Apply(ctx, year.ID, uy.Action)
		}
		return err
	})
	return year, err
}

// Apply runs one lifecycle action: end, activate or close.
func (svc *Service) Apply(ctx context.Context, id, action string) (AcademicYear, error) {
	switch action {
	case ActionEnd:
		return svc.End(ctx, id)
	case ActionActivate:
		return svc.Activate(ctx, id)
	case ActionClose:
		return svc.Close(ctx, id)
	}
	return AcademicYear{}, core.NewFieldError("action", "action must be one of end, activate, close")
}

// SetActive deactivates every other year and activates the given one, in one transaction.
func (svc *Service) SetActive(ctx context.Context, id string) (AcademicYear, error) {
	var year AcademicYear
	err := svc.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		if year, err = svc.repo.GetYear(ctx, id); err != nil {
			return err
		}
		if year.IsClosed {
			return core.NewFieldError("action", "a closed academic year cannot be activated")
		}
		if err = svc.repo.DeactivateAll(ctx, year.ID); err != nil {
			return errors.Wrap(err, "deactivating years")
		}
		year.IsActive = true
		year.UpdatedAt = core.NowFunc()
		year, err = svc.repo.UpdateYear(ctx, year)
		return errors.Wrap(err, "activating year")
	})
	return year, err
}

func (svc *Service) Activate(ctx context.Context, id string) (AcademicYear, error) {
	return svc.SetActive(ctx, id)
}

// End deactivates the year and stamps today as its end date.
func (svc *Service) End(ctx context.Context, id string) (AcademicYear, error) {
	return svc.modify(ctx, id, func(y *AcademicYear) {
		y.IsActive = false
		y.EndDate = core.Today()
	})
}

// Close ends the year for good: it can no longer be activated.
func (svc *Service) Close(ctx context.Context, id string) (AcademicYear, error) {
	return svc.modify(ctx, id, func(y *AcademicYear) {
		y.IsActive = false
		y.IsClosed = true
	})
}

func (svc *Service) modify(ctx context.Context, id string, fn func(y *AcademicYear)) (AcademicYear, error) {
	var year AcademicYear
	err := svc.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		if year, err = svc.repo.GetYear(ctx, id); err != nil {
			return err
		}
		fn(&year)
		year.UpdatedAt = core.NowFunc()
		year, err = svc.repo.UpdateYear(ctx, year)
		return err
	})
	return year, err
}

// Delete moves an inactive, payment-free year and its enrollments to the recycle bin.
func (svc *Service) Delete(ctx context.Context, id, deletedBy string) error {
	return svc.tx.WithinTx(ctx, func(ctx context.Context) error {
		year, err := svc.repo.GetYear(ctx, id)
		if err != nil {
			return err
		}
		if year.IsActive {
			return core.NewConflictError("the active academic year cannot be deleted")
		}
		payments, err := svc.repo.CountPayments(ctx, year.ID)
		if err != nil {
			return errors.Wrap(err, "counting payments")
		}
		if payments > 0 {
			return core.NewConflictError("academic year %q has %d payment(s) recorded", year.Name, payments)
		}

		enrollments, err := svc.enrollments.ListByYear(ctx, year.ID)
		if err != nil {
			return errors.Wrap(err, "listing enrollments")
		}
		if _, err = svc.bin.SoftDelete(ctx, recyclebin.Entry{
			EntityType: recyclebin.EntityAcademicYear,
			EntityID:   year.ID,
			EntityName: year.Name,
			DeletedBy:  deletedBy,
			Snapshot:   snapshot{Year: year, Enrollments: enrollments},
		}); err != nil {
			return errors.Wrap(err, "moving year to recycle bin")
		}

		if _, err = svc.enrollments.DeleteByYear(ctx, year.ID); err != nil {
			return errors.Wrap(err, "deleting enrollments")
		}
		return errors.Wrap(svc.repo.DeleteYear(ctx, year.ID), "deleting year")
	})
}

// restore re-creates a deleted year, inactive, with the enrollments whose student still exists.
func (svc *Service) restore(ctx context.Context, it recyclebin.Item) error {
	var snap snapshot
	if err := it.Decode(&snap); err != nil {
		return err
	}

	if _, err := svc.repo.GetYear(ctx, snap.Year.ID); err == nil {
		return core.NewConflictError("academic year %q already exists", snap.Year.Name)
	} else if !core.IsNotFound(err) {
		return err
	}
	if err := svc.checkName(ctx, snap.Year.Name, ""); err != nil {
		return err
	}

	year := snap.Year
	year.IsActive = false
	year.UpdatedAt = core.NowFunc()
	if _, err := svc.repo.CreateYear(ctx, year); err != nil {
		return errors.Wrap(err, "re-creating year")
	}
	for _, e := range snap.Enrollments {
		refs, err := svc.enrollments.References(ctx, e)
		if err != nil {
			return err
		}
		if !refs.Student {
			continue
		}
		if !refs.Section {
			e.SectionID = nil
		}
		if _, err := svc.enrollments.CreateEnrollment(ctx, e); err != nil {
			return errors.Wrap(err, "re-creating enrollment")
		}
	}
	return nil
}
