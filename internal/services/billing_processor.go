package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"feeledger/internal/core"
	"feeledger/internal/ledger"
	"feeledger/internal/log"
)

// ClassFeeGenerator is implemented by FeeService and ledger.Engine.
type ClassFeeGenerator interface {
	GenerateClassFees(ctx context.Context, className string, key core.PeriodKey) (ledger.GenerateResult, error)
}

// BillingRun summarises one pass over the class schedules.
type BillingRun struct {
	Key     core.PeriodKey
	Classes int
	Created int
	Skipped int
	Failed  []string
}

// BillingProcessor generates the current period's records for every class
// that has an active fee schedule.
type BillingProcessor struct {
	schedules ledger.ScheduleStore
	generator ClassFeeGenerator
	resolver  PeriodResolver
}

func NewBillingProcessor(schedules ledger.ScheduleStore, generator ClassFeeGenerator, scheme core.Scheme) (*BillingProcessor, error) {
	resolver, err := GetPeriodResolver(scheme)
	if err != nil {
		return nil, err
	}
	return &BillingProcessor{schedules: schedules, generator: generator, resolver: resolver}, nil
}

// ProcessDueFees bills the period containing now. A class that fails is
// logged and recorded; the run carries on with the remaining classes.
func (p *BillingProcessor) ProcessDueFees(ctx context.Context, now time.Time) (BillingRun, error) {
	if p.schedules == nil || p.generator == nil {
		return BillingRun{}, fmt.Errorf("processor not properly initialized")
	}
	logger := log.FromContext(ctx).WithComponent(log.ComponentBilling)

	schedules, err := p.schedules.ListSchedules(ctx)
	if err != nil {
		return BillingRun{}, fmt.Errorf("list class fee schedules: %w", err)
	}

	run := BillingRun{Key: p.resolver.KeyAt(now), Failed: []string{}}
	logger.InfoContext(ctx, "Processing class billing",
		"period", run.Key.String(),
		"schedules", len(schedules))

	for _, s := range schedules {
		if !IsScheduleActive(s, now) {
			continue
		}
		run.Classes++
		res, err := p.generator.GenerateClassFees(ctx, s.ClassName, run.Key)
		switch {
		case err == nil:
		case errors.Is(err, core.ErrNotFound):
			// schedule without enrolled students
			logger.DebugContext(ctx, "No students to bill", log.FieldClass, s.ClassName)
			continue
		default:
			logger.ErrorContext(ctx, "Failed to generate class fees",
				log.FieldClass, s.ClassName,
				log.FieldError, err)
			run.Failed = append(run.Failed, s.ClassName)
		}
		run.Created += len(res.Created)
		run.Skipped += len(res.Skipped)
	}

	logger.InfoContext(ctx, "Class billing complete",
		"period", run.Key.String(),
		"classes", run.Classes,
		"created", run.Created,
		"skipped", run.Skipped,
		"failed", len(run.Failed))

	if len(run.Failed) > 0 {
		return run, fmt.Errorf("billing failed for classes %v", run.Failed)
	}
	return run, nil
}
