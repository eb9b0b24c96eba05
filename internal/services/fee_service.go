package services

import (
	"context"
	"fmt"

	"feeledger/internal/amqp"
	"feeledger/internal/core"
	"feeledger/internal/ledger"
	"feeledger/internal/log"
)

// EventPublisher is the slice of the AMQP client FeeService needs.
type EventPublisher interface {
	PublishLedgerEvent(ctx context.Context, ev *amqp.LedgerEvent) error
	Close() error
}

// FeeService orchestrates ledger writes and change notifications. Reads go
// straight to the embedded engine.
type FeeService struct {
	*ledger.Engine
	publisher EventPublisher
}

// NewFeeService accepts a nil publisher; events are then skipped.
func NewFeeService(engine *ledger.Engine, publisher EventPublisher) *FeeService {
	return &FeeService{Engine: engine, publisher: publisher}
}

// CreateFeeRecord stores the record and announces it.
func (s *FeeService) CreateFeeRecord(ctx context.Context, in ledger.CreateFeeRecordInput) (core.FeeRecord, error) {
	rec, err := s.Engine.CreateFeeRecord(ctx, in)
	if err != nil {
		return core.FeeRecord{}, err
	}
	s.publish(ctx, amqp.NewLedgerEvent(amqp.EventFeeRecordCreated, rec.AdmissionNo, rec.Period.Month, rec.Period.Year, 0))
	return rec, nil
}

// ApplyPayment records the payment and announces it.
func (s *FeeService) ApplyPayment(ctx context.Context, admissionNo string, key core.PeriodKey, amount core.Money) (core.FeeRecord, error) {
	rec, err := s.Engine.ApplyPayment(ctx, admissionNo, key, amount)
	if err != nil {
		return core.FeeRecord{}, err
	}
	s.publish(ctx, amqp.NewLedgerEvent(amqp.EventPaymentApplied, rec.AdmissionNo, rec.Period.Month, rec.Period.Year, amount.Cents))
	return rec, nil
}

// GenerateClassFees announces every record it created.
func (s *FeeService) GenerateClassFees(ctx context.Context, className string, key core.PeriodKey) (ledger.GenerateResult, error) {
	res, err := s.Engine.GenerateClassFees(ctx, className, key)
	for _, admissionNo := range res.Created {
		s.publish(ctx, amqp.NewLedgerEvent(amqp.EventFeeRecordCreated, admissionNo, res.Month, res.Year, 0))
	}
	return res, err
}

// publish never fails the caller: the record is already stored.
func (s *FeeService) publish(ctx context.Context, ev *amqp.LedgerEvent) {
	logger := log.FromContext(ctx).WithComponent(log.ComponentAMQP)
	if s.publisher == nil {
		logger.DebugContext(ctx, "AMQP client not available, skipping ledger event", log.FieldEventType, ev.Type)
		return
	}
	if err := s.publisher.PublishLedgerEvent(ctx, ev); err != nil {
		logger.ErrorContext(ctx, "Failed to publish ledger event",
			log.FieldEventID, ev.EventID,
			log.FieldEventType, ev.Type,
			log.FieldAdmissionNo, ev.AdmissionNo,
			log.FieldError, err)
	}
}

func (s *FeeService) Close() error {
	if s.publisher == nil {
		return nil
	}
	if err := s.publisher.Close(); err != nil {
		return fmt.Errorf("close amqp: %w", err)
	}
	return nil
}
