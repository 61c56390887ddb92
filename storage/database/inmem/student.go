package inmemdb

import (
	"context"
	"strings"

	"github.com/samber/lo"

	"github.com/trezcool/registrar/core"
	"github.com/trezcool/registrar/core/enrollment"
	"github.com/trezcool/registrar/core/payment"
	"github.com/trezcool/registrar/core/student"
)

type studentRepository struct {
	db *DB
}

var _ student.Repository = (*studentRepository)(nil) // interface compliance check

func NewStudentRepository(db *DB) *studentRepository {
	return &studentRepository{db: db}
}

func (repo *studentRepository) save(s student.Student) (student.Student, error) {
	if s.LRN != nil {
		for _, other := range repo.db.t.students {
			if other.ID != s.ID && other.LRN != nil && *other.LRN == *s.LRN {
				return student.Student{}, core.NewConflictError("a student with LRN %s already exists", *s.LRN)
			}
		}
	}
	repo.db.t.students[s.ID] = s
	return s, nil
}

func (repo *studentRepository) CreateStudent(_ context.Context, s student.Student) (student.Student, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	s.ID = newID(s.ID)
	return repo.save(s)
}

func (repo *studentRepository) UpdateStudent(_ context.Context, s student.Student) (student.Student, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.t.students[s.ID]; !ok {
		return student.Student{}, student.ErrNotFound
	}
	return repo.save(s)
}

func (repo *studentRepository) GetStudent(_ context.Context, id string) (student.Student, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if s, ok := repo.db.t.students[id]; ok {
		return s, nil
	}
	return student.Student{}, student.ErrNotFound
}

func (repo *studentRepository) FindByLRN(_ context.Context, lrn string) (student.Student, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	for _, s := range repo.db.t.students {
		if s.LRN != nil && *s.LRN == lrn {
			return s, nil
		}
	}
	return student.Student{}, student.ErrNotFound
}

func (repo *studentRepository) FindByNameAndBirth(_ context.Context, firstName, lastName string, dob core.Date) (student.Student, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	matches := lo.Filter(lo.Values(repo.db.t.students), func(s student.Student, _ int) bool {
		return strings.EqualFold(s.FirstName, firstName) && strings.EqualFold(s.LastName, lastName) && s.DateOfBirth.Equal(dob)
	})
	if len(matches) == 0 {
		return student.Student{}, student.ErrNotFound
	}
	return lo.MinBy(matches, func(a, b student.Student) bool { return a.CreatedAt.Before(b.CreatedAt) }), nil
}

var studentComparators = comparators[student.Student]{
	"lastName":    func(a, b student.Student) int { return strings.Compare(a.LastName, b.LastName) },
	"firstName":   func(a, b student.Student) int { return strings.Compare(a.FirstName, b.FirstName) },
	"lrn":         func(a, b student.Student) int { return strings.Compare(core.StringValue(a.LRN), core.StringValue(b.LRN)) },
	"gradeLevel":  func(a, b student.Student) int { return strings.Compare(a.GradeLevel, b.GradeLevel) },
	"status":      func(a, b student.Student) int { return strings.Compare(string(a.EnrollmentStatus), string(b.EnrollmentStatus)) },
	"createdAt":   func(a, b student.Student) int { return compareTime(a.CreatedAt, b.CreatedAt) },
	"updatedAt":   func(a, b student.Student) int { return compareTime(a.UpdatedAt, b.UpdatedAt) },
	"dateOfBirth": func(a, b student.Student) int { return compareTime(a.DateOfBirth.Time, b.DateOfBirth.Time) },
}

func (repo *studentRepository) enrolledIn(studentID, yearID string) bool {
	return lo.SomeBy(lo.Values(repo.db.t.enrollments), func(e enrollment.Enrollment) bool {
		return e.StudentID == studentID && e.AcademicYearID == yearID
	})
}

func (repo *studentRepository) QueryStudents(_ context.Context, filter student.QueryFilter) ([]student.Student, int, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	students := lo.Filter(lo.Values(repo.db.t.students), func(s student.Student, _ int) bool {
		if q := filter.Search; q != "" &&
			!(containsFold(s.FirstName, q) || containsFold(s.LastName, q) || containsFold(s.MiddleName, q) ||
				containsFold(core.StringValue(s.LRN), q) || containsFold(s.FirstName+" "+s.LastName, q)) {
			return false
		}
		if filter.GradeLevel != "" && s.GradeLevel != filter.GradeLevel {
			return false
		}
		if filter.SectionID != "" && core.StringValue(s.SectionID) != filter.SectionID {
			return false
		}
		if filter.Status != "" && s.EnrollmentStatus != filter.Status {
			return false
		}
		return filter.AcademicYearID == "" || repo.enrolledIn(s.ID, filter.AcademicYearID)
	})
	sortBy(students, filter.Orderings, studentComparators,
		core.DBOrdering{Field: "lastName", Ascending: true}, core.DBOrdering{Field: "firstName", Ascending: true})

	total := len(students)
	page := filter.Page.Clean()
	start := lo.Min([]int{page.Offset(), total})
	end := lo.Min([]int{start + page.Limit, total})
	return students[start:end], total, nil
}

func (repo *studentRepository) CountPayments(_ context.Context, studentID string) (int, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()
	return repo.db.countPayments(func(p payment.Payment) bool { return p.StudentID == studentID }), nil
}

func (repo *studentRepository) DeleteStudent(_ context.Context, id string) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.t.students[id]; !ok {
		return student.ErrNotFound
	}
	if repo.db.countPayments(func(p payment.Payment) bool { return p.StudentID == id }) > 0 {
		return core.NewConflictError("student has payments")
	}
	delete(repo.db.t.students, id)
	repo.db.cascadeStudent(id)
	return nil
}
