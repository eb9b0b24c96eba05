// Package ledger implements the fee-ledger rules: period identity, back-due
// carry-forward, payable computation, payment application and the summaries
// built on top of the stored records.
//
// The engine is stateless. Every operation is one short unit of work against
// the RecordStore, StudentDirectory and ScheduleDirectory it was built with.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"feeledger/internal/core"
	"feeledger/internal/log"
)

// Options configure an Engine.
type Options struct {
	// Classes is the enumerated class set. Empty means core.DefaultClasses.
	Classes core.ClassSet
	// StrictPayments rejects payments that would overpay a period.
	StrictPayments bool
	// Clock stamps createdAt/updatedAt. Defaults to time.Now in UTC.
	Clock func() time.Time
}

type Engine struct {
	records   RecordStore
	students  StudentDirectory
	schedules ScheduleDirectory
	classes   core.ClassSet
	strict    bool
	now       func() time.Time
}

func NewEngine(records RecordStore, students StudentDirectory, schedules ScheduleDirectory, opts Options) *Engine {
	classes := opts.Classes
	if len(classes) == 0 {
		classes = core.DefaultClasses
	}
	clock := opts.Clock
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}
	return &Engine{
		records:   records,
		students:  students,
		schedules: schedules,
		classes:   classes,
		strict:    opts.StrictPayments,
		now:       clock,
	}
}

// Classes returns the enumerated class set the engine enforces.
func (e *Engine) Classes() core.ClassSet { return e.classes }

// CreateFeeRecordInput describes a new period record. Class overrides the
// student's enrolled class when set.
type CreateFeeRecordInput struct {
	AdmissionNo string
	Key         core.PeriodKey
	Class       string
	Charges     core.Charges
	PaidAmount  core.Money
}

// CreateFeeRecord creates the record for one student and period, carrying the
// predecessor's remaining amount forward as back dues.
func (e *Engine) CreateFeeRecord(ctx context.Context, in CreateFeeRecordInput) (core.FeeRecord, error) {
	if in.Key == nil {
		return core.FeeRecord{}, core.Validationf("period is required")
	}
	student, err := e.students.FindStudent(ctx, in.AdmissionNo)
	if err != nil {
		return core.FeeRecord{}, err
	}
	class := in.Class
	if class == "" {
		class = student.Class
	}
	return e.create(ctx, student, class, in.Key, in.Charges, in.PaidAmount)
}

func (e *Engine) create(ctx context.Context, student core.Student, class string, key core.PeriodKey, charges core.Charges, paid core.Money) (core.FeeRecord, error) {
	if !e.classes.Contains(class) {
		return core.FeeRecord{}, core.Validationf("class %q is not one of %v", class, []string(e.classes))
	}
	if err := charges.Validate(); err != nil {
		return core.FeeRecord{}, err
	}
	if paid.IsNegative() {
		return core.FeeRecord{}, core.Validationf("paid amount must not be negative")
	}

	backDues, err := e.backDuesFor(ctx, student.AdmissionNo, key)
	if err != nil {
		return core.FeeRecord{}, err
	}

	period := key.Period()
	if _, err := e.records.FindOne(ctx, student.AdmissionNo, period); err == nil {
		return core.FeeRecord{}, core.Conflictf("fee record for %s already exists for %s", student.AdmissionNo, key)
	} else if !errors.Is(err, core.ErrNotFound) {
		return core.FeeRecord{}, fmt.Errorf("check existing record: %w", err)
	}

	totalFee := charges.Total()
	payable := totalFee.Add(backDues)
	if paid.Cents > payable.Cents {
		return core.FeeRecord{}, core.Validationf("paid amount %s exceeds total payable %s", paid, payable)
	}

	now := e.now()
	rec := core.FeeRecord{
		AdmissionNo:     student.AdmissionNo,
		StudentName:     student.Name,
		Class:           class,
		Period:          period,
		Scheme:          key.Scheme(),
		Charges:         charges.Clone(),
		BackDues:        backDues,
		TotalFee:        totalFee,
		PaidAmount:      paid,
		RemainingAmount: payable.Sub(paid),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := e.records.Insert(ctx, &rec); err != nil {
		return core.FeeRecord{}, err
	}

	log.FromContext(ctx).WithComponent(log.ComponentLedger).InfoContext(ctx, "Fee record created",
		log.NewFields().
			WithPeriod(rec.AdmissionNo, period.Month, period.Year, rec.AcademicYear().String()).
			WithAmount(payable.Cents).
			WithOperation(log.OpCreate).ToSlice()...)
	return rec, nil
}

// backDuesFor is the predecessor's remaining amount, or zero when the
// student has no record for the previous period.
func (e *Engine) backDuesFor(ctx context.Context, admissionNo string, key core.PeriodKey) (core.Money, error) {
	prev, err := e.records.FindOne(ctx, admissionNo, key.Predecessor().Period())
	switch {
	case err == nil:
		return prev.RemainingAmount, nil
	case errors.Is(err, core.ErrNotFound):
		return core.Money{}, nil
	default:
		return core.Money{}, fmt.Errorf("lookup predecessor: %w", err)
	}
}

// ApplyPayment adds amount to the period's paid total. Successor periods keep
// the back dues they were created with.
func (e *Engine) ApplyPayment(ctx context.Context, admissionNo string, key core.PeriodKey, amount core.Money) (core.FeeRecord, error) {
	if key == nil {
		return core.FeeRecord{}, core.Validationf("period is required")
	}
	if amount.IsNegative() {
		return core.FeeRecord{}, core.Validationf("payment amount must not be negative")
	}
	rec, err := e.records.ApplyPayment(ctx, admissionNo, key.Period(), amount, PaymentOptions{
		Strict: e.strict,
		At:     e.now(),
	})
	if err != nil {
		return core.FeeRecord{}, err
	}

	log.FromContext(ctx).WithComponent(log.ComponentLedger).InfoContext(ctx, "Payment applied",
		log.NewFields().
			WithPeriod(admissionNo, rec.Period.Month, rec.Period.Year, "").
			WithAmount(amount.Cents).
			WithOperation(log.OpPay).ToSlice()...)
	return rec, nil
}

// GetPeriodRecord returns one period's record and what it carries forward.
func (e *Engine) GetPeriodRecord(ctx context.Context, admissionNo string, key core.PeriodKey) (PeriodRecordView, error) {
	if key == nil {
		return PeriodRecordView{}, core.Validationf("period is required")
	}
	rec, err := e.records.FindOne(ctx, admissionNo, key.Period())
	if err != nil {
		return PeriodRecordView{}, err
	}
	return PeriodRecordView{
		RecordView:        NewRecordView(rec),
		NextPeriodBackDue: rec.RemainingAmount,
	}, nil
}

// GenerateClassFees creates the period's record for every student in the
// class from the class fee schedule. Students who already have a record for
// the period are skipped.
func (e *Engine) GenerateClassFees(ctx context.Context, className string, key core.PeriodKey) (GenerateResult, error) {
	if key == nil {
		return GenerateResult{}, core.Validationf("period is required")
	}
	if !e.classes.Contains(className) {
		return GenerateResult{}, core.Validationf("class %q is not one of %v", className, []string(e.classes))
	}
	schedule, err := e.schedules.FindSchedule(ctx, className)
	if err != nil {
		return GenerateResult{}, err
	}
	students, err := e.students.ListStudentsByClass(ctx, className)
	if err != nil {
		return GenerateResult{}, err
	}
	if len(students) == 0 {
		return GenerateResult{}, core.NotFoundf("no students found in class %s", className)
	}

	p := key.Period()
	res := GenerateResult{ClassName: className, Month: p.Month, Year: p.Year, Created: []string{}, Skipped: []string{}}
	for _, s := range students {
		_, err := e.create(ctx, s, className, key, schedule.Charges(), core.Money{})
		switch {
		case err == nil:
			res.Created = append(res.Created, s.AdmissionNo)
		case errors.Is(err, core.ErrConflict):
			res.Skipped = append(res.Skipped, s.AdmissionNo)
		default:
			return res, fmt.Errorf("generate fee for %s: %w", s.AdmissionNo, err)
		}
	}

	log.FromContext(ctx).WithComponent(log.ComponentLedger).InfoContext(ctx, "Class fees generated",
		log.FieldClass, className,
		log.FieldMonth, p.Month,
		log.FieldYear, p.Year,
		"created", len(res.Created),
		"skipped", len(res.Skipped))
	return res, nil
}
