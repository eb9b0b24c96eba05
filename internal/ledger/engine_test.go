package ledger_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"feeledger/internal/core"
	"feeledger/internal/ledger"
	"feeledger/internal/storage/memory"
)

type fixture struct {
	store  *memory.Store
	engine *ledger.Engine
	now    time.Time
}

func newFixture(t *testing.T, opts ledger.Options) *fixture {
	t.Helper()
	f := &fixture{
		store: memory.New(),
		now:   time.Date(2025, 4, 5, 9, 0, 0, 0, time.UTC),
	}
	opts.Clock = func() time.Time { return f.now }
	f.engine = ledger.NewEngine(f.store, f.store, f.store, opts)
	return f
}

func (f *fixture) addStudent(t *testing.T, admissionNo, class, rollNo string) {
	t.Helper()
	require.NoError(t, f.store.AddStudent(context.Background(), core.Student{
		AdmissionNo:   admissionNo,
		Name:          "Student " + admissionNo,
		Class:         class,
		RollNo:        rollNo,
		DateOfBirth:   time.Date(2019, 6, 1, 0, 0, 0, 0, time.UTC),
		DateOfJoining: time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC),
		Address:       "12 School Lane",
	}))
}

func academic(t *testing.T, month int, ay string) core.PeriodKey {
	t.Helper()
	k, err := core.NewAcademicKey(month, ay)
	require.NoError(t, err)
	return k
}

func calendar(t *testing.T, month, year int) core.PeriodKey {
	t.Helper()
	k, err := core.NewCalendarKey(month, year)
	require.NoError(t, err)
	return k
}

func standardCharges() core.Charges {
	return core.Charges{core.ItemTuition: core.Cents(100000), core.ItemTransportation: core.Cents(20000)}
}

func TestCreateFeeRecord_CarryForward(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, ledger.Options{})
	f.addStudent(t, "S1", "KG1", "1")

	april, err := f.engine.CreateFeeRecord(ctx, ledger.CreateFeeRecordInput{
		AdmissionNo: "S1",
		Key:         academic(t, 4, "2025-26"),
		Charges:     standardCharges(),
		PaidAmount:  core.Cents(80000),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(120000), april.TotalFee.Cents)
	assert.Equal(t, int64(0), april.BackDues.Cents)
	assert.Equal(t, int64(40000), april.RemainingAmount.Cents)
	assert.Equal(t, core.Period{Month: 4, Year: 2025}, april.Period)
	assert.Equal(t, "Student S1", april.StudentName)
	assert.Equal(t, "KG1", april.Class)

	may, err := f.engine.CreateFeeRecord(ctx, ledger.CreateFeeRecordInput{
		AdmissionNo: "S1",
		Key:         academic(t, 5, "2025-26"),
		Charges:     standardCharges(),
		PaidAmount:  core.Cents(160000),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(40000), may.BackDues.Cents)
	assert.Equal(t, int64(160000), may.TotalPayable().Cents)
	assert.Equal(t, int64(0), may.RemainingAmount.Cents)
	assert.True(t, may.Balanced())
}

func TestCreateFeeRecord_AcademicYearBoundary(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, ledger.Options{})
	f.addStudent(t, "S1", "1st", "1")

	_, err := f.engine.CreateFeeRecord(ctx, ledger.CreateFeeRecordInput{
		AdmissionNo: "S1",
		Key:         academic(t, 3, "2024-25"),
		Charges:     standardCharges(),
		PaidAmount:  core.Cents(100000),
	})
	require.NoError(t, err)

	april, err := f.engine.CreateFeeRecord(ctx, ledger.CreateFeeRecordInput{
		AdmissionNo: "S1",
		Key:         academic(t, 4, "2025-26"),
		Charges:     standardCharges(),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(20000), april.BackDues.Cents, "April carries March of the previous academic year")

	// calendar entry for January 2026 finds December 2025 regardless of how it was keyed
	_, err = f.engine.CreateFeeRecord(ctx, ledger.CreateFeeRecordInput{
		AdmissionNo: "S1",
		Key:         academic(t, 12, "2025-26"),
		Charges:     core.Charges{core.ItemTuition: core.Cents(5000)},
	})
	require.NoError(t, err)
	jan, err := f.engine.CreateFeeRecord(ctx, ledger.CreateFeeRecordInput{
		AdmissionNo: "S1",
		Key:         calendar(t, 1, 2026),
		Charges:     core.Charges{core.ItemTuition: core.Cents(1000)},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(5000), jan.BackDues.Cents)
	assert.Equal(t, core.SchemeCalendar, jan.Scheme)
}

func TestCreateFeeRecord_Errors(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, ledger.Options{})
	f.addStudent(t, "S1", "KG2", "1")
	f.addStudent(t, "S9", "Grade 9", "9")

	_, err := f.engine.CreateFeeRecord(ctx, ledger.CreateFeeRecordInput{
		AdmissionNo: "S1",
		Key:         academic(t, 6, "2025-26"),
		Charges:     standardCharges(),
	})
	require.NoError(t, err)

	tests := []struct {
		name string
		in   ledger.CreateFeeRecordInput
		want error
	}{
		{
			name: "unknown student",
			in:   ledger.CreateFeeRecordInput{AdmissionNo: "nobody", Key: academic(t, 6, "2025-26")},
			want: core.ErrNotFound,
		},
		{
			name: "class outside enumerated set",
			in:   ledger.CreateFeeRecordInput{AdmissionNo: "S9", Key: academic(t, 6, "2025-26")},
			want: core.ErrValidation,
		},
		{
			name: "class override outside set",
			in:   ledger.CreateFeeRecordInput{AdmissionNo: "S1", Class: "PhD", Key: academic(t, 7, "2025-26")},
			want: core.ErrValidation,
		},
		{
			name: "duplicate period",
			in:   ledger.CreateFeeRecordInput{AdmissionNo: "S1", Key: academic(t, 6, "2025-26"), Charges: core.Charges{"other": core.Cents(1)}},
			want: core.ErrConflict,
		},
		{
			name: "duplicate period keyed in the other scheme",
			in:   ledger.CreateFeeRecordInput{AdmissionNo: "S1", Key: calendar(t, 6, 2025)},
			want: core.ErrConflict,
		},
		{
			name: "paid above payable",
			in: ledger.CreateFeeRecordInput{
				AdmissionNo: "S1", Key: academic(t, 8, "2025-26"),
				Charges: standardCharges(), PaidAmount: core.Cents(120001),
			},
			want: core.ErrValidation,
		},
		{
			name: "negative charge",
			in: ledger.CreateFeeRecordInput{
				AdmissionNo: "S1", Key: academic(t, 8, "2025-26"),
				Charges: core.Charges{core.ItemTuition: core.Cents(-5)},
			},
			want: core.ErrValidation,
		},
		{
			name: "missing period",
			in:   ledger.CreateFeeRecordInput{AdmissionNo: "S1"},
			want: core.ErrValidation,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.engine.CreateFeeRecord(ctx, tt.in)
			require.ErrorIs(t, err, tt.want)
		})
	}
}

func TestCreateFeeRecord_PaidEqualToPayable(t *testing.T) {
	f := newFixture(t, ledger.Options{})
	f.addStudent(t, "S1", "Nursery", "1")
	rec, err := f.engine.CreateFeeRecord(context.Background(), ledger.CreateFeeRecordInput{
		AdmissionNo: "S1",
		Key:         calendar(t, 9, 2025),
		Charges:     standardCharges(),
		PaidAmount:  core.Cents(120000),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(0), rec.RemainingAmount.Cents)
}

func TestCreateFeeRecord_ConfiguredClasses(t *testing.T) {
	f := newFixture(t, ledger.Options{Classes: core.ClassSet{"Grade 9"}})
	f.addStudent(t, "S9", "Grade 9", "9")
	_, err := f.engine.CreateFeeRecord(context.Background(), ledger.CreateFeeRecordInput{
		AdmissionNo: "S9",
		Key:         calendar(t, 9, 2025),
	})
	require.NoError(t, err)
}

func TestApplyPayment(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, ledger.Options{})
	f.addStudent(t, "S1", "KG1", "1")
	key := academic(t, 4, "2025-26")
	_, err := f.engine.CreateFeeRecord(ctx, ledger.CreateFeeRecordInput{AdmissionNo: "S1", Key: key, Charges: standardCharges()})
	require.NoError(t, err)

	f.now = f.now.Add(48 * time.Hour)
	rec, err := f.engine.ApplyPayment(ctx, "S1", key, core.Cents(30000))
	require.NoError(t, err)
	assert.Equal(t, int64(30000), rec.PaidAmount.Cents)
	assert.Equal(t, int64(90000), rec.RemainingAmount.Cents)
	assert.Equal(t, f.now, rec.UpdatedAt)

	// additivity: a then b equals a+b
	rec, err = f.engine.ApplyPayment(ctx, "S1", key, core.Cents(20000))
	require.NoError(t, err)
	assert.Equal(t, int64(50000), rec.PaidAmount.Cents)
	assert.Equal(t, int64(70000), rec.RemainingAmount.Cents)
	assert.True(t, rec.Balanced())

	// zero is a valid no-op payment
	rec, err = f.engine.ApplyPayment(ctx, "S1", key, core.Money{})
	require.NoError(t, err)
	assert.Equal(t, int64(50000), rec.PaidAmount.Cents)

	_, err = f.engine.ApplyPayment(ctx, "S1", key, core.Cents(-1))
	require.ErrorIs(t, err, core.ErrValidation)

	_, err = f.engine.ApplyPayment(ctx, "S1", academic(t, 5, "2025-26"), core.Cents(1))
	require.ErrorIs(t, err, core.ErrNotFound)

	// overpayment is accepted by default and leaves a negative remainder
	rec, err = f.engine.ApplyPayment(ctx, "S1", key, core.Cents(100000))
	require.NoError(t, err)
	assert.Equal(t, int64(-30000), rec.RemainingAmount.Cents)
}

func TestApplyPayment_Strict(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, ledger.Options{StrictPayments: true})
	f.addStudent(t, "S1", "KG1", "1")
	key := calendar(t, 4, 2025)
	_, err := f.engine.CreateFeeRecord(ctx, ledger.CreateFeeRecordInput{AdmissionNo: "S1", Key: key, Charges: standardCharges()})
	require.NoError(t, err)

	_, err = f.engine.ApplyPayment(ctx, "S1", key, core.Cents(120001))
	require.ErrorIs(t, err, core.ErrValidation)

	rec, err := f.engine.ApplyPayment(ctx, "S1", key, core.Cents(120000))
	require.NoError(t, err)
	assert.Equal(t, int64(0), rec.RemainingAmount.Cents)
}

func TestApplyPayment_DoesNotRepropagate(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, ledger.Options{})
	f.addStudent(t, "S1", "KG1", "1")
	april := academic(t, 4, "2025-26")
	may := academic(t, 5, "2025-26")
	_, err := f.engine.CreateFeeRecord(ctx, ledger.CreateFeeRecordInput{AdmissionNo: "S1", Key: april, Charges: standardCharges()})
	require.NoError(t, err)
	_, err = f.engine.CreateFeeRecord(ctx, ledger.CreateFeeRecordInput{AdmissionNo: "S1", Key: may, Charges: standardCharges()})
	require.NoError(t, err)

	_, err = f.engine.ApplyPayment(ctx, "S1", april, core.Cents(120000))
	require.NoError(t, err)

	view, err := f.engine.GetPeriodRecord(ctx, "S1", may)
	require.NoError(t, err)
	assert.Equal(t, core.Cents(120000), view.BackDues, "successor back dues stay frozen")
	assert.Equal(t, core.Cents(240000), view.RemainingAmount)
	assert.Equal(t, view.RemainingAmount, view.NextPeriodBackDue)
}

func TestApplyPayment_Concurrent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, ledger.Options{})
	f.addStudent(t, "S1", "KG1", "1")
	key := calendar(t, 5, 2025)
	_, err := f.engine.CreateFeeRecord(ctx, ledger.CreateFeeRecordInput{AdmissionNo: "S1", Key: key, Charges: standardCharges()})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.engine.ApplyPayment(ctx, "S1", key, core.Cents(100))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	view, err := f.engine.GetPeriodRecord(ctx, "S1", key)
	require.NoError(t, err)
	assert.Equal(t, int64(5000), view.PaidAmount.Cents)
	assert.Equal(t, int64(115000), view.RemainingAmount.Cents)
}

func TestGenerateClassFees(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, ledger.Options{})
	f.addStudent(t, "S1", "KG1", "1")
	f.addStudent(t, "S2", "KG1", "2")
	f.addStudent(t, "S3", "KG2", "3")

	key := calendar(t, 4, 2025)
	_, err := f.engine.GenerateClassFees(ctx, "KG1", key)
	require.ErrorIs(t, err, core.ErrNotFound, "schedule missing")

	require.NoError(t, f.store.UpsertSchedule(ctx, core.ClassFeeSchedule{
		ClassName:         "KG1",
		TuitionFee:        core.Cents(100000),
		TransportationFee: core.Cents(20000),
	}))
	require.NoError(t, f.store.UpsertSchedule(ctx, core.ClassFeeSchedule{ClassName: "Nursery", TuitionFee: core.Cents(1)}))

	// S2 already has a March balance and an April record
	_, err = f.engine.CreateFeeRecord(ctx, ledger.CreateFeeRecordInput{AdmissionNo: "S1", Key: calendar(t, 3, 2025), Charges: core.Charges{core.ItemTuition: core.Cents(7000)}})
	require.NoError(t, err)
	_, err = f.engine.CreateFeeRecord(ctx, ledger.CreateFeeRecordInput{AdmissionNo: "S2", Key: key, Charges: standardCharges()})
	require.NoError(t, err)

	res, err := f.engine.GenerateClassFees(ctx, "KG1", key)
	require.NoError(t, err)
	assert.Equal(t, []string{"S1"}, res.Created)
	assert.Equal(t, []string{"S2"}, res.Skipped)

	view, err := f.engine.GetPeriodRecord(ctx, "S1", key)
	require.NoError(t, err)
	assert.Equal(t, core.Cents(7000), view.BackDues)
	assert.Equal(t, core.Cents(127000), view.RemainingAmount)
	assert.Equal(t, core.Cents(100000), view.TuitionFee)

	_, err = f.engine.GenerateClassFees(ctx, "Nursery", key)
	require.ErrorIs(t, err, core.ErrNotFound, "no students in class")

	_, err = f.engine.GenerateClassFees(ctx, "Unknown", key)
	require.ErrorIs(t, err, core.ErrValidation)

	// running again is idempotent
	res, err = f.engine.GenerateClassFees(ctx, "KG1", key)
	require.NoError(t, err)
	assert.Empty(t, res.Created)
	assert.Len(t, res.Skipped, 2)
}

func TestCachedSchedules(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	cached := ledger.NewCachedSchedules(store, 8, time.Minute)

	_, err := cached.FindSchedule(ctx, "KG1")
	require.ErrorIs(t, err, core.ErrNotFound)

	require.NoError(t, cached.UpsertSchedule(ctx, core.ClassFeeSchedule{ClassName: "KG1", TuitionFee: core.Cents(100)}))
	s, err := cached.FindSchedule(ctx, "KG1")
	require.NoError(t, err)
	assert.Equal(t, core.Cents(100), s.TuitionFee)

	require.NoError(t, cached.UpsertSchedule(ctx, core.ClassFeeSchedule{ClassName: "KG1", TuitionFee: core.Cents(200)}))
	s, err = cached.FindSchedule(ctx, "KG1")
	require.NoError(t, err)
	assert.Equal(t, core.Cents(200), s.TuitionFee, "upsert invalidates the cached entry")

	_, err = cached.FindSchedule(ctx, "KG1")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), cached.Stats().Hits)
}

// gatedSchedules pauses FindSchedule after the read until released.
type gatedSchedules struct {
	*memory.Store
	gate    atomic.Bool
	entered chan struct{}
	release chan struct{}
}

func (g *gatedSchedules) FindSchedule(ctx context.Context, className string) (core.ClassFeeSchedule, error) {
	s, err := g.Store.FindSchedule(ctx, className)
	if g.gate.Load() {
		g.entered <- struct{}{}
		<-g.release
	}
	return s, err
}

func TestCachedSchedules_UpsertDuringLookup(t *testing.T) {
	ctx := context.Background()
	store := &gatedSchedules{Store: memory.New(), entered: make(chan struct{}, 1), release: make(chan struct{})}
	require.NoError(t, store.UpsertSchedule(ctx, core.ClassFeeSchedule{ClassName: "KG1", TuitionFee: core.Cents(100)}))
	cached := ledger.NewCachedSchedules(store, 8, time.Minute)

	store.gate.Store(true)
	done := make(chan struct{})
	go func() {
		defer close(done)
		s, err := cached.FindSchedule(ctx, "KG1")
		assert.NoError(t, err)
		assert.Equal(t, core.Cents(100), s.TuitionFee)
	}()
	<-store.entered

	require.NoError(t, cached.UpsertSchedule(ctx, core.ClassFeeSchedule{ClassName: "KG1", TuitionFee: core.Cents(200)}))
	store.gate.Store(false)
	close(store.release)
	<-done

	s, err := cached.FindSchedule(ctx, "KG1")
	require.NoError(t, err)
	assert.Equal(t, core.Cents(200), s.TuitionFee, "a lookup racing the upsert must not cache the old schedule")
}
