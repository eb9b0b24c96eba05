package ledger

import (
	"context"
	"time"

	"feeledger/internal/core"
)

// RecordFilter selects fee records. Zero fields do not filter.
type RecordFilter struct {
	AdmissionNo  string
	Class        string
	AcademicYear *core.AcademicYear
	// CreatedFrom and CreatedTo bound CreatedAt inclusively.
	CreatedFrom time.Time
	CreatedTo   time.Time
	// CreatedBefore bounds CreatedAt exclusively.
	CreatedBefore time.Time
	// OrderByCreated sorts by CreatedAt instead of period.
	OrderByCreated bool
}

// Matches applies the filter in memory. Stores without a query language use it
// so that every backend agrees on semantics.
func (f RecordFilter) Matches(r core.FeeRecord) bool {
	if f.AdmissionNo != "" && r.AdmissionNo != f.AdmissionNo {
		return false
	}
	if f.Class != "" && r.Class != f.Class {
		return false
	}
	if f.AcademicYear != nil && r.AcademicYear() != *f.AcademicYear {
		return false
	}
	if !f.CreatedFrom.IsZero() && r.CreatedAt.Before(f.CreatedFrom) {
		return false
	}
	if !f.CreatedTo.IsZero() && r.CreatedAt.After(f.CreatedTo) {
		return false
	}
	if !f.CreatedBefore.IsZero() && !r.CreatedAt.Before(f.CreatedBefore) {
		return false
	}
	return true
}

// Totals are summed paid, remaining and current-fee amounts.
type Totals struct {
	TotalPaid core.Money
	TotalDue  core.Money
	TotalFee  core.Money
}

// PeriodTotals are Totals for one billing period.
type PeriodTotals struct {
	Period core.Period
	Totals
}

// PaymentOptions tune the store's atomic payment update.
type PaymentOptions struct {
	// Strict rejects payments that would push paid above totalFee+backDues.
	Strict bool
	At     time.Time
}

// RecordStore persists fee records. Implementations must enforce uniqueness
// on (admissionNo, period) and apply payments atomically.
type RecordStore interface {
	// FindOne returns a NotFound error when absent.
	FindOne(ctx context.Context, admissionNo string, period core.Period) (core.FeeRecord, error)
	// Find returns matching records ordered by period, or by CreatedAt when
	// the filter asks for it.
	Find(ctx context.Context, filter RecordFilter) ([]core.FeeRecord, error)
	// Insert assigns ID and returns a Conflict error on a duplicate period.
	Insert(ctx context.Context, record *core.FeeRecord) error
	// ApplyPayment does paid += amount and remaining = totalFee + backDues - paid
	// as one conditional update. It fails with Validation when the new paid
	// amount would be negative, or exceed the payable in strict mode.
	ApplyPayment(ctx context.Context, admissionNo string, period core.Period, amount core.Money, opts PaymentOptions) (core.FeeRecord, error)
	// PeriodTotals groups matching records by period, newest first.
	PeriodTotals(ctx context.Context, filter RecordFilter) ([]PeriodTotals, error)
	// Totals sums matching records.
	Totals(ctx context.Context, filter RecordFilter) (Totals, error)
}

// StudentDirectory is the read side the engine needs.
type StudentDirectory interface {
	FindStudent(ctx context.Context, admissionNo string) (core.Student, error)
	ListStudentsByClass(ctx context.Context, class string) ([]core.Student, error)
}

// StudentStore adds the admin write side.
type StudentStore interface {
	StudentDirectory
	AddStudent(ctx context.Context, s core.Student) error
	ListStudents(ctx context.Context) ([]core.Student, error)
}

// ScheduleDirectory looks up standard class charges.
type ScheduleDirectory interface {
	FindSchedule(ctx context.Context, className string) (core.ClassFeeSchedule, error)
}

type ScheduleStore interface {
	ScheduleDirectory
	UpsertSchedule(ctx context.Context, s core.ClassFeeSchedule) error
	ListSchedules(ctx context.Context) ([]core.ClassFeeSchedule, error)
}

type AdminStore interface {
	FindAdmin(ctx context.Context, username string) (core.Admin, error)
	CreateAdmin(ctx context.Context, a core.Admin) error
}
