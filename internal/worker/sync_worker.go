package worker

import (
	"context"
	"errors"
	"fmt"

	"feeledger/internal/amqp"
	"feeledger/internal/core"
	"feeledger/internal/ledger"
	"feeledger/internal/log"
	"feeledger/internal/sheets"
)

// SyncWorker mirrors fee records into the spreadsheet as ledger events arrive.
type SyncWorker struct {
	records ledger.RecordStore
	sheets  sheets.FeeRowWriter
}

func NewSyncWorker(records ledger.RecordStore, writer sheets.FeeRowWriter) *SyncWorker {
	return &SyncWorker{records: records, sheets: writer}
}

// HandleLedgerEvent re-reads the record named by the event and writes its
// current state. The event itself carries no balances, so out-of-order or
// duplicate deliveries still converge on the stored values.
func (w *SyncWorker) HandleLedgerEvent(ctx context.Context, ev *amqp.LedgerEvent) error {
	logger := log.FromContext(ctx).WithComponent(log.ComponentWorker)
	period := core.Period{Month: ev.Month, Year: ev.Year}

	rec, err := w.records.FindOne(ctx, ev.AdmissionNo, period)
	if errors.Is(err, core.ErrNotFound) {
		// nothing to mirror; acking avoids a poison message
		logger.WarnContext(ctx, "Ledger event for missing fee record",
			log.FieldEventID, ev.EventID,
			log.FieldAdmissionNo, ev.AdmissionNo,
			log.FieldMonth, ev.Month,
			log.FieldYear, ev.Year)
		return nil
	}
	if err != nil {
		return fmt.Errorf("get fee record from storage: %w", err)
	}

	ref, err := w.sheets.UpsertFeeRow(ctx, rec)
	if err != nil {
		return fmt.Errorf("sync fee record to sheets: %w", err)
	}

	logger.InfoContext(ctx, "Synced fee record",
		log.FieldEventID, ev.EventID,
		log.FieldEventType, ev.Type,
		log.FieldAdmissionNo, rec.AdmissionNo,
		log.FieldMonth, rec.Period.Month,
		log.FieldYear, rec.Period.Year,
		"sheets_ref", ref)
	return nil
}

// ResyncAcademicYear pushes every record of the academic year. It recovers
// from missed events or worker downtime and is safe to repeat.
func (w *SyncWorker) ResyncAcademicYear(ctx context.Context, ay core.AcademicYear) (synced int, err error) {
	logger := log.FromContext(ctx).WithComponent(log.ComponentWorker)

	recs, err := w.records.Find(ctx, ledger.RecordFilter{AcademicYear: &ay})
	if err != nil {
		return 0, fmt.Errorf("list fee records for %s: %w", ay, err)
	}

	var failed int
	for _, rec := range recs {
		if err := ctx.Err(); err != nil {
			return synced, err
		}
		if _, err := w.sheets.UpsertFeeRow(ctx, rec); err != nil {
			logger.ErrorContext(ctx, "Failed to sync fee record during resync",
				log.FieldAdmissionNo, rec.AdmissionNo,
				log.FieldMonth, rec.Period.Month,
				log.FieldYear, rec.Period.Year,
				log.FieldError, err)
			failed++
			continue
		}
		synced++
	}

	logger.InfoContext(ctx, "Academic year resync completed",
		log.FieldAcademicYear, ay.String(),
		"total", len(recs),
		"synced", synced,
		"errors", failed)

	if failed > 0 {
		return synced, fmt.Errorf("%d of %d fee records failed to sync", failed, len(recs))
	}
	return synced, nil
}
