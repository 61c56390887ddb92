package student

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"github.com/trezcool/registrar/core"
	"github.com/trezcool/registrar/core/academicyear"
	"github.com/trezcool/registrar/core/enrollment"
	"github.com/trezcool/registrar/core/ledger"
	"github.com/trezcool/registrar/core/notification"
	"github.com/trezcool/registrar/core/recyclebin"
	"github.com/trezcool/registrar/core/section"
)

var (
	errNoActiveYear  = core.NewFieldError("academicYear", "there is no active academic year")
	errNotInActive   = core.NewConflictError("student is not enrolled in the active academic year")
	errAlreadyActive = core.NewConflictError("student is already enrolled in the active academic year")
)

type (
	yearGetter interface {
		GetActive(ctx context.Context) (academicyear.AcademicYear, error)
	}

	sectionGetter interface {
		Get(ctx context.Context, id string) (section.Section, error)
		GetByName(ctx context.Context, name, gradeLevel string) (section.Section, error)
	}

	notifier interface {
		NotifyAdmins(ctx context.Context, notice notification.Notice) (int, error)
		ClearEnrollment(ctx context.Context, studentID string) (int, error)
		DropEnrollment(ctx context.Context, studentID, title, message string) (int, error)
	}

	reconciler interface {
		Recalculate(ctx context.Context, studentID, yearID string) (ledger.FeeStatus, error)
	}
)

type Service struct {
	repo        Repository
	enrollments enrollment.Repository
	years       yearGetter
	sections    sectionGetter
	notifier    notifier
	ledger      reconciler
	bin         recyclebin.SoftDeleter
	tx          core.Transactor
}

func NewService(
	repo Repository,
	enrollments enrollment.Repository,
	years yearGetter,
	sections sectionGetter,
	notif notifier,
	ledger reconciler,
	bin recyclebin.SoftDeleter,
	tx core.Transactor,
) *Service {
	return &Service{
		repo:        repo,
		enrollments: enrollments,
		years:       years,
		sections:    sections,
		notifier:    notif,
		ledger:      ledger,
		bin:         bin,
		tx:          tx,
	}
}

func (svc *Service) RegisterBinHandler(bin *recyclebin.Service) {
	bin.Register(recyclebin.EntityStudent, recyclebin.HandlerFuncs{
		TrashFunc:   svc.Delete,
		RestoreFunc: svc.restore,
	})
}

func (svc *Service) Get(ctx context.Context, id string) (Student, error) {
	return svc.repo.GetStudent(ctx, id)
}

func (svc *Service) Detail(ctx context.Context, id string) (Detail, error) {
	stud, err := svc.repo.GetStudent(ctx, id)
	if err != nil {
		return Detail{}, err
	}
	enrollments, err := svc.enrollments.ListByStudent(ctx, stud.ID)
	if err != nil {
		return Detail{}, errors.Wrap(err, "listing enrollments")
	}
	if enrollments == nil {
		enrollments = []enrollment.Enrollment{}
	}
	text, labels := ParseRemarks(stud.Remarks)
	return Detail{Student: stud, RemarkText: text, RemarkLabels: labels, Enrollments: enrollments}, nil
}

func (svc *Service) Query(ctx context.Context, filter QueryFilter) (Page, error) {
	filter.Clean()
	students, total, err := svc.repo.QueryStudents(ctx, filter)
	if err != nil {
		return Page{}, errors.Wrap(err, "querying students")
	}
	if students == nil {
		students = []Student{}
	}
	return Page{Students: students, Total: total, Page: filter.Page.Page, Limit: filter.Limit}, nil
}

func (svc *Service) activeYear(ctx context.Context) (academicyear.AcademicYear, error) {
	year, err := svc.years.GetActive(ctx)
	if err != nil {
		if core.IsNotFound(err) {
			return year, errNoActiveYear
		}
		return year, errors.Wrap(err, "getting active year")
	}
	return year, nil
}

// checkSection makes sure the section exists, is active and belongs to the grade.
func (svc *Service) checkSection(ctx context.Context, sectionID, grade string) error {
	if sectionID == "" {
		return nil
	}
	sec, err := svc.sections.Get(ctx, sectionID)
	if err != nil {
		if core.IsNotFound(err) {
			return core.NewFieldError("sectionId", "section not found")
		}
		return errors.Wrap(err, "getting section")
	}
	if !sec.IsActive {
		return core.NewFieldError("sectionId", "section is not active")
	}
	if sec.GradeLevel != grade {
		return core.NewFieldError("sectionId", fmt.Sprintf("section %s is for %s", sec.Name, sec.GradeLevel))
	}
	return nil
}

// findExisting looks a student up by LRN, then by name and date of birth.
func (svc *Service) findExisting(ctx context.Context, f Form) (*Student, error) {
	if f.LRN != "" {
		stud, err := svc.repo.FindByLRN(ctx, f.LRN)
		if err == nil {
			return &stud, nil
		} else if !core.IsNotFound(err) {
			return nil, errors.Wrap(err, "finding student by LRN")
		}
	}
	stud, err := svc.repo.FindByNameAndBirth(ctx, f.FirstName, f.LastName, f.DateOfBirth)
	if err != nil {
		if core.IsNotFound(err) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "finding student by name")
	}
	// same name, different learner
	if f.LRN != "" && stud.LRN != nil && *stud.LRN != f.LRN {
		return nil, nil
	}
	return &stud, nil
}

func (svc *Service) hasEnrollment(ctx context.Context, studentID, yearID string) (enrollment.Enrollment, bool, error) {
	e, err := svc.enrollments.GetEnrollment(ctx, studentID, yearID)
	if err != nil {
		if core.IsNotFound(err) {
			return e, false, nil
		}
		return e, false, errors.Wrap(err, "getting enrollment")
	}
	return e, true, nil
}

// Enroll creates a PENDING enrollment in the active year for a new or returning student.
func (svc *Service) Enroll(ctx context.Context, f Form) (EnrollResult, error) {
	var res EnrollResult
	err := svc.tx.WithinTx(ctx, func(ctx context.Context) error {
		year, err := svc.activeYear(ctx)
		if err != nil {
			return err
		}
		if err = svc.checkSection(ctx, f.SectionID, f.GradeLevel); err != nil {
			return err
		}

		existing, err := svc.findExisting(ctx, f)
		if err != nil {
			return err
		}

		now := core.NowFunc()
		var stud Student
		if existing != nil {
			if _, found, err := svc.hasEnrollment(ctx, existing.ID, year.ID); err != nil {
				return err
			} else if found {
				return errAlreadyActive
			}
			stud = *existing
			f.apply(&stud)
			stud.EnrollmentStatus = enrollment.StatusPending
			stud.UpdatedAt = now
			if stud, err = svc.repo.UpdateStudent(ctx, stud); err != nil {
				return errors.Wrap(err, "updating student")
			}
			res.IsReenrollment = true
		} else {
			f.apply(&stud)
			stud.EnrollmentStatus = enrollment.StatusPending
			stud.CreatedAt = now
			stud.UpdatedAt = now
			if stud, err = svc.repo.CreateStudent(ctx, stud); err != nil {
				return errors.Wrap(err, "creating student")
			}
		}

		enr, err := svc.enrollments.CreateEnrollment(ctx, enrollment.Enrollment{
			StudentID:      stud.ID,
			AcademicYearID: year.ID,
			GradeLevel:     stud.GradeLevel,
			SectionID:      stud.SectionID,
			Status:         enrollment.StatusPending,
			EnrollmentDate: core.NewDate(now),
			CreatedAt:      now,
			UpdatedAt:      now,
		})
		if err != nil {
			return errors.Wrap(err, "creating enrollment")
		}
		res.Student = stud
		res.Enrollment = enr

		if err = svc.notifyPending(ctx, stud, enr, year, res.IsReenrollment); err != nil {
			return err
		}
		_, err = svc.ledger.Recalculate(ctx, stud.ID, year.ID)
		return errors.Wrap(err, "recalculating fee status")
	})
	return res, err
}

func (svc *Service) notifyPending(ctx context.Context, stud Student, enr enrollment.Enrollment, year academicyear.AcademicYear, reenrollment bool) error {
	title := "New enrollment"
	if reenrollment {
		title = "Re-enrollment"
	}
	_, err := svc.notifier.NotifyAdmins(ctx, notification.Notice{
		Type:         notification.TypeEnrollment,
		Title:        title,
		Message:      fmt.Sprintf("%s submitted an enrollment for %s (%s).", stud.FullName(), stud.GradeLevel, year.Name),
		StudentID:    stud.ID,
		EnrollmentID: enr.ID,
	})
	return errors.Wrap(err, "notifying admins")
}

// activeEnrollment returns the student with its active-year enrollment.
func (svc *Service) activeEnrollment(ctx context.Context, id string) (Student, enrollment.Enrollment, academicyear.AcademicYear, error) {
	stud, err := svc.repo.GetStudent(ctx, id)
	if err != nil {
		return stud, enrollment.Enrollment{}, academicyear.AcademicYear{}, err
	}
	year, err := svc.activeYear(ctx)
	if err != nil {
		if errors.Cause(err) == errNoActiveYear {
			err = errNotInActive
		}
		return stud, enrollment.Enrollment{}, year, err
	}
	enr, found, err := svc.hasEnrollment(ctx, stud.ID, year.ID)
	if err != nil {
		return stud, enr, year, err
	}
	if !found {
		return stud, enr, year, errNotInActive
	}
	return stud, enr, year, nil
}

// Update edits a student enrolled in the active year and applies status transitions.
func (svc *Service) Update(ctx context.Context, id string, f Form) (Student, error) {
	var stud Student
	err := svc.tx.WithinTx(ctx, func(ctx context.Context) error {
		var (
			enr  enrollment.Enrollment
			year academicyear.AcademicYear
			err  error
		)
		if stud, enr, year, err = svc.activeEnrollment(ctx, id); err != nil {
			return err
		}
		if err = svc.checkSection(ctx, f.SectionID, f.GradeLevel); err != nil {
			return err
		}
		if f.LRN != "" && (stud.LRN == nil || *stud.LRN != f.LRN) {
			if other, err := svc.repo.FindByLRN(ctx, f.LRN); err == nil && other.ID != stud.ID {
				return core.NewConflictError("a student with LRN %s already exists", f.LRN)
			} else if err != nil && !core.IsNotFound(err) {
				return errors.Wrap(err, "finding student by LRN")
			}
		}

		prevStatus, prevGrade := stud.EnrollmentStatus, stud.GradeLevel
		nextStatus := prevStatus
		if f.EnrollmentStatus != "" {
			nextStatus = f.EnrollmentStatus
		}
		if !enrollment.CanTransition(prevStatus, nextStatus) {
			return core.NewFieldError("enrollmentStatus",
				fmt.Sprintf("cannot change status from %s to %s", prevStatus, nextStatus))
		}

		now := core.NowFunc()
		f.apply(&stud)
		stud.EnrollmentStatus = nextStatus
		stud.UpdatedAt = now
		if stud, err = svc.repo.UpdateStudent(ctx, stud); err != nil {
			return errors.Wrap(err, "updating student")
		}

		enr.GradeLevel = stud.GradeLevel
		enr.SectionID = stud.SectionID
		enr.Status = nextStatus
		enr.UpdatedAt = now
		if enr, err = svc.enrollments.UpdateEnrollment(ctx, enr); err != nil {
			return errors.Wrap(err, "updating enrollment")
		}

		if nextStatus != prevStatus {
			if err = svc.onStatusChange(ctx, stud, enr, year); err != nil {
				return err
			}
		}
		if stud.GradeLevel != prevGrade {
			if _, err = svc.ledger.Recalculate(ctx, stud.ID, year.ID); err != nil {
				return errors.Wrap(err, "recalculating fee status")
			}
		}
		return nil
	})
	return stud, err
}

func (svc *Service) onStatusChange(ctx context.Context, stud Student, enr enrollment.Enrollment, year academicyear.AcademicYear) error {
	var err error
	switch stud.EnrollmentStatus {
	case enrollment.StatusEnrolled:
		_, err = svc.notifier.ClearEnrollment(ctx, stud.ID)
	case enrollment.StatusDropped:
		_, err = svc.notifier.DropEnrollment(ctx, stud.ID, "Enrollment dropped",
			fmt.Sprintf("%s's enrollment for %s (%s) was dropped.", stud.FullName(), stud.GradeLevel, year.Name))
	case enrollment.StatusPending:
		err = svc.notifyPending(ctx, stud, enr, year, true)
	}
	return errors.Wrap(err, "updating notifications")
}

// Switch moves the student to another grade and/or section within the active year.
func (svc *Service) Switch(ctx context.Context, id string, sf SwitchForm) (Student, error) {
	var stud Student
	err := svc.tx.WithinTx(ctx, func(ctx context.Context) error {
		var (
			enr  enrollment.Enrollment
			year academicyear.AcademicYear
			err  error
		)
		if stud, enr, year, err = svc.activeEnrollment(ctx, id); err != nil {
			return err
		}

		prevGrade := stud.GradeLevel
		if sf.GradeLevel != "" {
			stud.GradeLevel = sf.GradeLevel
		}
		if sf.SectionID != nil {
			stud.SectionID = nil
			if *sf.SectionID != "" {
				stud.SectionID = sf.SectionID
			}
		} else if stud.GradeLevel != prevGrade {
			stud.SectionID = nil // old section belongs to the old grade
		}
		if err = svc.checkSection(ctx, core.StringValue(stud.SectionID), stud.GradeLevel); err != nil {
			return err
		}

		now := core.NowFunc()
		stud.UpdatedAt = now
		if stud, err = svc.repo.UpdateStudent(ctx, stud); err != nil {
			return errors.Wrap(err, "updating student")
		}
		enr.GradeLevel = stud.GradeLevel
		enr.SectionID = stud.SectionID
		enr.UpdatedAt = now
		if _, err = svc.enrollments.UpdateEnrollment(ctx, enr); err != nil {
			return errors.Wrap(err, "updating enrollment")
		}

		if stud.GradeLevel != prevGrade {
			_, err = svc.ledger.Recalculate(ctx, stud.ID, year.ID)
		}
		return errors.Wrap(err, "recalculating fee status")
	})
	return stud, err
}

// Delete moves a student enrolled only in open years, without payments, to the recycle bin.
func (svc *Service) Delete(ctx context.Context, id, deletedBy string) error {
	return svc.tx.WithinTx(ctx, func(ctx context.Context) error {
		stud, _, _, err := svc.activeEnrollment(ctx, id)
		if err != nil {
			return err
		}
		closed, err := svc.enrollments.HasClosedYearEnrollment(ctx, stud.ID)
		if err != nil {
			return errors.Wrap(err, "checking closed year enrollments")
		}
		if closed {
			return core.NewConflictError("student is enrolled in a closed academic year")
		}
		payments, err := svc.repo.CountPayments(ctx, stud.ID)
		if err != nil {
			return errors.Wrap(err, "counting payments")
		}
		if payments > 0 {
			return core.NewConflictError("student has %d payment(s) recorded", payments)
		}

		enrollments, err := svc.enrollments.ListByStudent(ctx, stud.ID)
		if err != nil {
			return errors.Wrap(err, "listing enrollments")
		}
		if _, err = svc.bin.SoftDelete(ctx, recyclebin.Entry{
			EntityType: recyclebin.EntityStudent,
			EntityID:   stud.ID,
			EntityName: stud.FullName(),
			DeletedBy:  deletedBy,
			Snapshot:   snapshot{Student: stud, Enrollments: enrollments},
		}); err != nil {
			return errors.Wrap(err, "moving student to recycle bin")
		}
		if _, err = svc.enrollments.DeleteByStudent(ctx, stud.ID); err != nil {
			return errors.Wrap(err, "deleting enrollments")
		}
		return errors.Wrap(svc.repo.DeleteStudent(ctx, stud.ID), "deleting student")
	})
}

func (svc *Service) restore(ctx context.Context, it recyclebin.Item) error {
	var snap snapshot
	if err := it.Decode(&snap); err != nil {
		return err
	}
	if _, err := svc.repo.GetStudent(ctx, snap.Student.ID); err == nil {
		return core.NewConflictError("student %s already exists", snap.Student.FullName())
	} else if !core.IsNotFound(err) {
		return err
	}
	if snap.Student.LRN != nil {
		if _, err := svc.repo.FindByLRN(ctx, *snap.Student.LRN); err == nil {
			return core.NewConflictError("a student with LRN %s already exists", *snap.Student.LRN)
		} else if !core.IsNotFound(err) {
			return err
		}
	}

	stud := snap.Student
	if stud.SectionID != nil {
		if _, err := svc.sections.Get(ctx, *stud.SectionID); err != nil {
			if !core.IsNotFound(err) {
				return err
			}
			stud.SectionID = nil
		}
	}
	stud.UpdatedAt = core.NowFunc()
	if _, err := svc.repo.CreateStudent(ctx, stud); err != nil {
		return errors.Wrap(err, "re-creating student")
	}
	for _, e := range snap.Enrollments {
		refs, err := svc.enrollments.References(ctx, e)
		if err != nil {
			return err
		}
		if !refs.Year {
			continue
		}
		if !refs.Section {
			e.SectionID = nil
		}
		if _, err := svc.enrollments.CreateEnrollment(ctx, e); err != nil {
			return errors.Wrap(err, "re-creating enrollment")
		}
		if _, err := svc.ledger.Recalculate(ctx, stud.ID, e.AcademicYearID); err != nil {
			return errors.Wrap(err, "recalculating fee status")
		}
	}
	return nil
}
