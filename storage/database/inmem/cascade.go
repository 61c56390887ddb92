package inmemdb

import (
	"github.com/trezcool/registrar/core/payment"
)

// The helpers below stand in for the foreign keys of the SQL schema. Callers hold db.mu.

func (db *DB) countPayments(match func(p payment.Payment) bool) int {
	var n int
	for _, p := range db.t.payments {
		if match(p) {
			n++
		}
	}
	return n
}

// cascadeYear drops the rows that reference a deleted academic year.
func (db *DB) cascadeYear(yearID string) {
	for id, e := range db.t.enrollments {
		if e.AcademicYearID == yearID {
			delete(db.t.enrollments, id)
		}
	}
	for id, t := range db.t.templates {
		if t.AcademicYearID == yearID {
			delete(db.t.templates, id)
		}
	}
	for id, sof := range db.t.studentFees {
		if sof.AcademicYearID == yearID {
			delete(db.t.studentFees, id)
		}
	}
	for id, a := range db.t.adjustments {
		if a.AcademicYearID == yearID {
			delete(db.t.adjustments, id)
		}
	}
	for key := range db.t.feeStatuses {
		if key.yearID == yearID {
			delete(db.t.feeStatuses, key)
		}
	}
}

// cascadeStudent drops the rows that reference a deleted student.
func (db *DB) cascadeStudent(studentID string) {
	for id, e := range db.t.enrollments {
		if e.StudentID == studentID {
			delete(db.t.enrollments, id)
		}
	}
	for id, sof := range db.t.studentFees {
		if sof.StudentID == studentID {
			delete(db.t.studentFees, id)
		}
	}
	for id, a := range db.t.adjustments {
		if a.StudentID == studentID {
			delete(db.t.adjustments, id)
		}
	}
	for key := range db.t.feeStatuses {
		if key.studentID == studentID {
			delete(db.t.feeStatuses, key)
		}
	}
}

// detachSection unlinks students and enrollments from a deleted section.
func (db *DB) detachSection(sectionID string) {
	for id, s := range db.t.students {
		if s.SectionID != nil && *s.SectionID == sectionID {
			s.SectionID = nil
			db.t.students[id] = s
		}
	}
	for id, e := range db.t.enrollments {
		if e.SectionID != nil && *e.SectionID == sectionID {
			e.SectionID = nil
			db.t.enrollments[id] = e
		}
	}
}

// detachBreakdowns unlinks payment line items from removed fee breakdowns.
func (db *DB) detachBreakdowns(removed map[string]bool) {
	if len(removed) == 0 {
		return
	}
	for id, p := range db.t.payments {
		changed := false
		items := make([]payment.LineItem, len(p.LineItems))
		for i, li := range p.LineItems {
			if li.FeeBreakdownID != nil && removed[*li.FeeBreakdownID] {
				li.FeeBreakdownID = nil
				changed = true
			}
			items[i] = li
		}
		if changed {
			p.LineItems = items
			db.t.payments[id] = p
		}
	}
}
