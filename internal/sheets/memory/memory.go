// Package memory is a FeeRowWriter kept in process memory, used when no
// spreadsheet is configured and in tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"feeledger/internal/core"
	"feeledger/internal/sheets"
)

type Store struct {
	mu   sync.Mutex
	rows map[string]core.FeeRecord
	refs map[string]int
}

var _ sheets.FeeRowWriter = (*Store)(nil)

func New() *Store {
	return &Store{rows: map[string]core.FeeRecord{}, refs: map[string]int{}}
}

func rowKey(rec core.FeeRecord) string {
	return fmt.Sprintf("%s/%s", rec.AdmissionNo, rec.Period)
}

// UpsertFeeRow stores the latest copy of the record and returns a synthetic
// row reference that stays stable across updates.
func (s *Store) UpsertFeeRow(_ context.Context, rec core.FeeRecord) (string, error) {
	if rec.AdmissionNo == "" {
		return "", core.Validationf("fee row needs an admission number")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	key := rowKey(rec)
	ref, ok := s.refs[key]
	if !ok {
		ref = len(s.refs) + 1
		s.refs[key] = ref
	}
	s.rows[key] = rec
	return fmt.Sprintf("mem:%d", ref), nil
}

// Rows returns the mirrored records ordered by admission number then period.
func (s *Store) Rows() []core.FeeRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.FeeRecord, 0, len(s.rows))
	for _, r := range s.rows {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].AdmissionNo != out[j].AdmissionNo {
			return out[i].AdmissionNo < out[j].AdmissionNo
		}
		return out[i].Period.Before(out[j].Period)
	})
	return out
}
