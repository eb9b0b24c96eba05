// Package memory is an in-process store for development and tests. It
// satisfies every ledger store port and applies payments under its mutex.
package memory

import (
	"context"
	"slices"
	"sort"
	"sync"

	"feeledger/internal/core"
	"feeledger/internal/ledger"
)

type recordKey struct {
	admissionNo string
	period      core.Period
}

type Store struct {
	mu        sync.Mutex
	nextID    int64
	records   map[recordKey]core.FeeRecord
	students  map[string]core.Student
	schedules map[string]core.ClassFeeSchedule
	admins    map[string]core.Admin
}

var (
	_ ledger.RecordStore   = (*Store)(nil)
	_ ledger.StudentStore  = (*Store)(nil)
	_ ledger.ScheduleStore = (*Store)(nil)
	_ ledger.AdminStore    = (*Store)(nil)
)

func New() *Store {
	return &Store{
		records:   map[recordKey]core.FeeRecord{},
		students:  map[string]core.Student{},
		schedules: map[string]core.ClassFeeSchedule{},
		admins:    map[string]core.Admin{},
	}
}

func clone(r core.FeeRecord) core.FeeRecord {
	r.Charges = r.Charges.Clone()
	return r
}

func (s *Store) FindOne(_ context.Context, admissionNo string, period core.Period) (core.FeeRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[recordKey{admissionNo, period}]
	if !ok {
		return core.FeeRecord{}, core.NotFoundf("fee record not found for %s %s", admissionNo, period)
	}
	return clone(r), nil
}

func (s *Store) Find(_ context.Context, f ledger.RecordFilter) ([]core.FeeRecord, error) {
	s.mu.Lock()
	out := make([]core.FeeRecord, 0)
	for _, r := range s.records {
		if f.Matches(r) {
			out = append(out, clone(r))
		}
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if f.OrderByCreated {
			if !a.CreatedAt.Equal(b.CreatedAt) {
				return a.CreatedAt.Before(b.CreatedAt)
			}
			return a.ID < b.ID
		}
		if a.Period != b.Period {
			return a.Period.Before(b.Period)
		}
		return a.AdmissionNo < b.AdmissionNo
	})
	return out, nil
}

func (s *Store) Insert(_ context.Context, r *core.FeeRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := recordKey{r.AdmissionNo, r.Period}
	if _, exists := s.records[k]; exists {
		return core.Conflictf("fee record for %s already exists for %s", r.AdmissionNo, r.Period)
	}
	s.nextID++
	r.ID = s.nextID
	s.records[k] = clone(*r)
	return nil
}

func (s *Store) ApplyPayment(_ context.Context, admissionNo string, period core.Period, amount core.Money, opts ledger.PaymentOptions) (core.FeeRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := recordKey{admissionNo, period}
	r, ok := s.records[k]
	if !ok {
		return core.FeeRecord{}, core.NotFoundf("fee record not found for %s %s", admissionNo, period)
	}
	paid := r.PaidAmount.Add(amount)
	if paid.IsNegative() {
		return core.FeeRecord{}, core.Validationf("payment would make paid amount negative")
	}
	payable := r.TotalFee.Add(r.BackDues)
	if opts.Strict && paid.Cents > payable.Cents {
		return core.FeeRecord{}, core.Validationf("payment of %s exceeds remaining amount %s", amount, r.RemainingAmount)
	}
	r.PaidAmount = paid
	r.RemainingAmount = payable.Sub(paid)
	if !opts.At.IsZero() {
		r.UpdatedAt = opts.At
	}
	s.records[k] = r
	return clone(r), nil
}

func (s *Store) PeriodTotals(ctx context.Context, f ledger.RecordFilter) ([]ledger.PeriodTotals, error) {
	records, err := s.Find(ctx, f)
	if err != nil {
		return nil, err
	}
	groups := map[core.Period]*ledger.PeriodTotals{}
	for _, r := range records {
		g, ok := groups[r.Period]
		if !ok {
			g = &ledger.PeriodTotals{Period: r.Period}
			groups[r.Period] = g
		}
		g.TotalPaid = g.TotalPaid.Add(r.PaidAmount)
		g.TotalDue = g.TotalDue.Add(r.RemainingAmount)
		g.TotalFee = g.TotalFee.Add(r.TotalFee)
	}
	out := make([]ledger.PeriodTotals, 0, len(groups))
	for _, g := range groups {
		out = append(out, *g)
	}
	slices.SortFunc(out, func(a, b ledger.PeriodTotals) int { return core.ComparePeriods(b.Period, a.Period) })
	return out, nil
}

func (s *Store) Totals(ctx context.Context, f ledger.RecordFilter) (ledger.Totals, error) {
	records, err := s.Find(ctx, f)
	if err != nil {
		return ledger.Totals{}, err
	}
	var t ledger.Totals
	for _, r := range records {
		t.TotalPaid = t.TotalPaid.Add(r.PaidAmount)
		t.TotalDue = t.TotalDue.Add(r.RemainingAmount)
		t.TotalFee = t.TotalFee.Add(r.TotalFee)
	}
	return t, nil
}

// Students

func (s *Store) AddStudent(_ context.Context, st core.Student) error {
	if err := st.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.students[st.AdmissionNo]; ok {
		return core.Conflictf("student with admission number %s already exists", st.AdmissionNo)
	}
	for _, other := range s.students {
		if other.RollNo == st.RollNo {
			return core.Conflictf("student with roll number %s already exists", st.RollNo)
		}
	}
	s.students[st.AdmissionNo] = st
	return nil
}

func (s *Store) FindStudent(_ context.Context, admissionNo string) (core.Student, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.students[admissionNo]
	if !ok {
		return core.Student{}, core.NotFoundf("student %s not found", admissionNo)
	}
	return st, nil
}

func (s *Store) ListStudents(_ context.Context) ([]core.Student, error) {
	return s.filterStudents(func(core.Student) bool { return true }), nil
}

func (s *Store) ListStudentsByClass(_ context.Context, class string) ([]core.Student, error) {
	return s.filterStudents(func(st core.Student) bool { return st.Class == class }), nil
}

func (s *Store) filterStudents(keep func(core.Student) bool) []core.Student {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.Student, 0, len(s.students))
	for _, st := range s.students {
		if keep(st) {
			out = append(out, st)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AdmissionNo < out[j].AdmissionNo })
	return out
}

// Schedules

func (s *Store) UpsertSchedule(_ context.Context, sc core.ClassFeeSchedule) error {
	if err := sc.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.schedules[sc.ClassName] = sc
	return nil
}

func (s *Store) FindSchedule(_ context.Context, className string) (core.ClassFeeSchedule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sc, ok := s.schedules[className]
	if !ok {
		return core.ClassFeeSchedule{}, core.NotFoundf("class fee schedule for %s not found", className)
	}
	return sc, nil
}

func (s *Store) ListSchedules(_ context.Context) ([]core.ClassFeeSchedule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.ClassFeeSchedule, 0, len(s.schedules))
	for _, sc := range s.schedules {
		out = append(out, sc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ClassName < out[j].ClassName })
	return out, nil
}

// Admins

func (s *Store) CreateAdmin(_ context.Context, a core.Admin) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.admins[a.Username]; ok {
		return core.Conflictf("admin %s already exists", a.Username)
	}
	s.admins[a.Username] = a
	return nil
}

func (s *Store) FindAdmin(_ context.Context, username string) (core.Admin, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.admins[username]
	if !ok {
		return core.Admin{}, core.NotFoundf("admin %s not found", username)
	}
	return a, nil
}
