// Package remark manages the admin-defined checkbox labels used in student remarks.
package remark

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/trezcool/registrar/core"
	"github.com/trezcool/registrar/core/recyclebin"
)

var ErrNotFound = core.NewNotFoundError("remark", "")

type Remark struct {
	ID        string    `json:"id" db:"id"`
	Label     string    `json:"label" db:"label"`
	IsActive  bool      `json:"isActive" db:"is_active"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}

type NewRemark struct {
	Label string `json:"label" validate:"required,max=100,excludesall=0x7C0x2C"`
}

func (nr *NewRemark) Validate(validate *validator.Validate) error {
	nr.Label = core.CleanString(nr.Label)
	return validate.Struct(nr)
}

type Repository interface {
	CreateRemark(ctx context.Context, r Remark) (Remark, error)
	GetRemark(ctx context.Context, id string) (Remark, error)
	// ListRemarks orders by label.
	ListRemarks(ctx context.Context, activeOnly bool) ([]Remark, error)
	LabelExists(ctx context.Context, label string) (bool, error)
	DeleteRemark(ctx context.Context, id string) error
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
	bin.Register(recyclebin.EntityCustomRemark, recyclebin.HandlerFuncs{
		TrashFunc:   svc.Delete,
		RestoreFunc: svc.restore,
	})
}

func (svc *Service) List(ctx context.Context, activeOnly bool) ([]Remark, error) {
	return svc.repo.ListRemarks(ctx, activeOnly)
}

func (svc *Service) checkLabel(ctx context.Context, label string) error {
	exists, err := svc.repo.LabelExists(ctx, label)
	if err != nil {
		return errors.Wrap(err, "checking label uniqueness")
	}
	if exists {
		return core.NewConflictError("remark %q already exists", label)
	}
	return nil
}

func (svc *Service) Create(ctx context.Context, nr NewRemark) (Remark, error) {
	var rmk Remark
	err := svc.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := svc.checkLabel(ctx, nr.Label); err != nil {
			return err
		}
		var err error
		rmk, err = svc.repo.CreateRemark(ctx, Remark{Label: nr.Label, IsActive: true, CreatedAt: core.NowFunc()})
		return err
	})
	return rmk, err
}

func (svc *Service) Delete(ctx context.Context, id, deletedBy string) error {
	return svc.tx.WithinTx(ctx, func(ctx context.Context) error {
		rmk, err := svc.repo.GetRemark(ctx, id)
		if err != nil {
			return err
		}
		if _, err = svc.bin.SoftDelete(ctx, recyclebin.Entry{
			EntityType: recyclebin.EntityCustomRemark,
			EntityID:   rmk.ID,
			EntityName: rmk.Label,
			DeletedBy:  deletedBy,
			Snapshot:   rmk,
		}); err != nil {
			return errors.Wrap(err, "moving remark to recycle bin")
		}
		return svc.repo.DeleteRemark(ctx, rmk.ID)
	})
}

func (svc *Service) restore(ctx context.Context, it recyclebin.Item) error {
	var rmk Remark
	if err := it.Decode(&rmk); err != nil {
		return err
	}
	if err := svc.checkLabel(ctx, rmk.Label); err != nil {
		return err
	}
	_, err := svc.repo.CreateRemark(ctx, rmk)
	return err
}
