// Package section manages class sections per grade level.
package section

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/trezcool/registrar/core"
	"github.com/trezcool/registrar/core/recyclebin"
)

var ErrNotFound = core.NewNotFoundError("section", "")

type Section struct {
	ID         string    `json:"id" db:"id"`
	Name       string    `json:"name" db:"name"`
	GradeLevel string    `json:"gradeLevel" db:"grade_level"`
	IsActive   bool      `json:"isActive" db:"is_active"`
	CreatedAt  time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt  time.Time `json:"updatedAt" db:"updated_at"`

	// read-only
	EnrolledCount int `json:"enrolledCount" db:"enrolled_count"`
}

type NewSection struct {
	Name       string `json:"name" validate:"required,max=64"`
	GradeLevel string `json:"gradeLevel" validate:"required,gradelevel"`
	IsActive   *bool  `json:"isActive"`
}

func (ns *NewSection) Validate(validate *validator.Validate) error {
	ns.Name = core.CleanString(ns.Name)
	ns.GradeLevel = core.CleanString(ns.GradeLevel)
	return validate.Struct(ns)
}

type UpdateSection struct {
	Name       string `json:"name" validate:"omitempty,max=64"`
	GradeLevel string `json:"gradeLevel" validate:"omitempty,gradelevel"`
	IsActive   *bool  `json:"isActive"`
}

func (us *UpdateSection) Validate(validate *validator.Validate) error {
	us.Name = core.CleanString(us.Name)
	us.GradeLevel = core.CleanString(us.GradeLevel)
	return validate.Struct(us)
}

type QueryFilter struct {
	GradeLevel string `query:"gradeLevel"`
	IsActive   *bool  `query:"isActive"`
}

type Repository interface {
	CreateSection(ctx context.Context, s Section) (Section, error)
	UpdateSection(ctx context.Context, s Section) (Section, error)
	GetSection(ctx context.Context, id string) (Section, error)
	GetSectionByName(ctx context.Context, name, gradeLevel string) (Section, error)
	// ListSections orders by grade level then name.
	ListSections(ctx context.Context, filter QueryFilter) ([]Section, error)
	Exists(ctx context.Context, name, gradeLevel, excludedID string) (bool, error)
	// CountEnrolled counts the ENROLLED students placed in the section.
	CountEnrolled(ctx context.Context, id string) (int, error)
	DeleteSection(ctx context.Context, id string) error
}

type Service struct {
	repo Repository
	bin  recyclebin.SoftDeleter
	tx   core.Transactor
}

func NewService(repo Repository, bin recyclebin.SoftDeleter, tx core.Transactor) *Service {
	return &Service{repo: repo, bin: bin, tx: tx}
}

func (svc *Service) RegisterBinHandler(bin *recyclebin.Service) {
	bin.Register(recyclebin.EntitySection, recyclebin.HandlerFuncs{
		TrashFunc:   svc.Delete,
		RestoreFunc: svc.restore,
	})
}

func (svc *Service) List(ctx context.Context, filter QueryFilter) ([]Section, error) {
	filter.GradeLevel = core.CleanString(filter.GradeLevel)
	return svc.repo.ListSections(ctx, filter)
}

func (svc *Service) Get(ctx context.Context, id string) (Section, error) {
	return svc.repo.GetSection(ctx, id)
}

func (svc *Service) GetByName(ctx context.Context, name, gradeLevel string) (Section, error) {
	return svc.repo.GetSectionByName(ctx, core.CleanString(name), gradeLevel)
}

func (svc *Service) checkUniqueness(ctx context.Context, name, grade, excludedID string) error {
	exists, err := svc.repo.Exists(ctx, name, grade, excludedID)
	if err != nil {
		return errors.Wrap(err, "checking section uniqueness")
	}
	if exists {
		return core.NewConflictError("section %q already exists for %s", name, grade)
	}
	return nil
}

func (svc *Service) Create(ctx context.Context, ns NewSection) (Section, error) {
	var sec Section
	err := svc.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := svc.checkUniqueness(ctx, ns.Name, ns.GradeLevel, ""); err != nil {
			return err
		}
		now := core.NowFunc()
		var err error
		sec, err = svc.repo.CreateSection(ctx, Section{
			Name:       ns.Name,
			GradeLevel: ns.GradeLevel,
			IsActive:   ns.IsActive == nil || *ns.IsActive,
			CreatedAt:  now,
			UpdatedAt:  now,
		})
		return err
	})
	return sec, err
}

func (svc *Service) Update(ctx context.Context, id string, us UpdateSection) (Section, error) {
	var sec Section
	err := svc.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		if sec, err = svc.repo.GetSection(ctx, id); err != nil {
			return err
		}
		if us.Name != "" {
			sec.Name = us.Name
		}
		if us.GradeLevel != "" {
			sec.GradeLevel = us.GradeLevel
		}
		if us.IsActive != nil {
			sec.IsActive = *us.IsActive
		}
		if err = svc.checkUniqueness(ctx, sec.Name, sec.GradeLevel, sec.ID); err != nil {
			return err
		}
		sec.UpdatedAt = core.NowFunc()
		sec, err = svc.repo.UpdateSection(ctx, sec)
		return err
	})
	return sec, err
}

// Delete moves a section without enrolled students to the recycle bin.
func (svc *Service) Delete(ctx context.Context, id, deletedBy string) error {
	return svc.tx.WithinTx(ctx, func(ctx context.Context) error {
		sec, err := svc.repo.GetSection(ctx, id)
		if err != nil {
			return err
		}
		n, err := svc.repo.CountEnrolled(ctx, sec.ID)
		if err != nil {
			return errors.Wrap(err, "counting enrolled students")
		}
		if n > 0 {
			return core.NewConflictError("section %q has %d enrolled student(s)", sec.Name, n)
		}
		if _, err = svc.bin.SoftDelete(ctx, recyclebin.Entry{
			EntityType: recyclebin.EntitySection,
			EntityID:   sec.ID,
			EntityName: sec.Name + " (" + sec.GradeLevel + ")",
			DeletedBy:  deletedBy,
			Snapshot:   sec,
		}); err != nil {
			return errors.Wrap(err, "moving section to recycle bin")
		}
		return svc.repo.DeleteSection(ctx, sec.ID)
	})
}

func (svc *Service) restore(ctx context.Context, it recyclebin.Item) error {
	var sec Section
	if err := it.Decode(&sec); err != nil {
		return err
	}
	if _, err := svc.repo.GetSection(ctx, sec.ID); err == nil {
		return core.NewConflictError("section %q already exists", sec.Name)
	} else if !core.IsNotFound(err) {
		return err
	}
	if err := svc.checkUniqueness(ctx, sec.Name, sec.GradeLevel, ""); err != nil {
		return err
	}
	sec.EnrolledCount = 0
	sec.UpdatedAt = core.NowFunc()
	_, err := svc.repo.CreateSection(ctx, sec)
	return err
}
