package google

import (
	"fmt"
	"strings"
	"time"

	"feeledger/internal/core"
)

// academicSheetName returns "<academic year> <base>", e.g. "2025-26 Fees".
func academicSheetName(base string, ay core.AcademicYear) string {
	return fmt.Sprintf("%s %s", ay, strings.TrimSpace(base))
}

// rowKey identifies a record's row in column A.
func rowKey(rec core.FeeRecord) string {
	return fmt.Sprintf("%s/%s", rec.AdmissionNo, rec.Period)
}

func feeRowValues(rec core.FeeRecord) []any {
	return []any{
		rowKey(rec),
		rec.AdmissionNo,
		rec.StudentName,
		rec.Class,
		rec.AcademicYear().String(),
		rec.Period.Month,
		rec.Period.Year,
		rec.TotalFee.String(),
		rec.BackDues.String(),
		rec.PaidAmount.String(),
		rec.RemainingAmount.String(),
		rec.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

// indexRows maps column A keys to their 1-based row numbers. The first row
// is the header; blank cells still occupy a row.
func indexRows(values [][]any) *sheetRows {
	rows := &sheetRows{keys: map[string]int{}, nextRow: len(values) + 1}
	for i, row := range values {
		if i == 0 || len(row) == 0 {
			continue
		}
		key := strings.TrimSpace(fmt.Sprint(row[0]))
		if key == "" {
			continue
		}
		if _, dup := rows.keys[key]; !dup {
			rows.keys[key] = i + 1
		}
	}
	return rows
}
