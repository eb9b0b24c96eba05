package sheets

import (
	"context"

	"feeledger/internal/core"
)

// FeeRowWriter mirrors fee records into a spreadsheet, one row per student
// and period. Writing the same record twice updates the existing row.
type FeeRowWriter interface {
	UpsertFeeRow(ctx context.Context, rec core.FeeRecord) (rowRef string, err error)
}
