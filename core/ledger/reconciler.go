package ledger

import (
	"context"

	"github.com/pkg/errors"

	"github.com/trezcool/registrar/core"
)

// Reconciler recomputes fee statuses. Recalculate is idempotent.
type Reconciler struct {
	repo Repository
	tx   core.Transactor
}

func NewReconciler(repo Repository, tx core.Transactor) *Reconciler {
	return &Reconciler{repo: repo, tx: tx}
}

// Recalculate rebuilds the fee status of a student for a year, keeping the late-payment flag.
func (r *Reconciler) Recalculate(ctx context.Context, studentID, yearID string) (FeeStatus, error) {
	return r.recalculate(ctx, studentID, yearID, nil)
}

// SetLatePayment flags (or clears) a late payment and recalculates.
func (r *Reconciler) SetLatePayment(ctx context.Context, studentID, yearID string, late bool) (FeeStatus, error) {
	return r.recalculate(ctx, studentID, yearID, &late)
}

func (r *Reconciler) recalculate(ctx context.Context, studentID, yearID string, late *bool) (FeeStatus, error) {
	var fs FeeStatus
	err := r.tx.WithinTx(ctx, func(ctx context.Context) error {
		src, err := r.repo.LoadSources(ctx, studentID, yearID)
		if err != nil {
			return errors.Wrap(err, "loading ledger sources")
		}

		fs = Compute(src)
		fs.StudentID = studentID
		fs.AcademicYearID = yearID
		fs.UpdatedAt = core.NowFunc()

		if late != nil {
			fs.IsLatePayment = *late
		} else {
			prev, err := r.repo.GetFeeStatus(ctx, studentID, yearID)
			switch {
			case err == nil:
				fs.IsLatePayment = prev.IsLatePayment
			case !core.IsNotFound(err):
				return errors.Wrap(err, "getting previous fee status")
			}
		}

		fs, err = r.repo.UpsertFeeStatus(ctx, fs)
		return errors.Wrap(err, "saving fee status")
	})
	return fs, err
}

func (r *Reconciler) Summary(ctx context.Context, yearID string) (Summary, error) {
	return r.repo.Summarize(ctx, yearID)
}
