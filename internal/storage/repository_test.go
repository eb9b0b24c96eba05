package storage

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"feeledger/internal/core"
	"feeledger/internal/ledger"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func testRecord(admissionNo string, month, year int, created time.Time) *core.FeeRecord {
	charges := core.Charges{core.ItemTuition: core.Cents(100000), core.ItemTransportation: core.Cents(20000)}
	return &core.FeeRecord{
		AdmissionNo:     admissionNo,
		StudentName:     "Student " + admissionNo,
		Class:           "KG1",
		Period:          core.Period{Month: month, Year: year},
		Scheme:          core.SchemeAcademic,
		Charges:         charges,
		BackDues:        core.Cents(5000),
		TotalFee:        charges.Total(),
		RemainingAmount: core.Cents(125000),
		CreatedAt:       created,
		UpdatedAt:       created,
	}
}

func TestMigrationsApplied(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ledger.db")
	repo, err := NewSQLiteRepository(path)
	require.NoError(t, err)
	require.NoError(t, repo.Close())

	// reopening is a no-op migration
	repo, err = NewSQLiteRepository(path)
	require.NoError(t, err)
	defer repo.Close()

	version, dirty, err := SchemaVersion(DSN(path))
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)
	assert.False(t, dirty)
}

func TestInsertAndFindOne(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	created := time.Date(2025, 4, 5, 9, 30, 0, 0, time.UTC)

	rec := testRecord("S1", 4, 2025, created)
	require.NoError(t, repo.Insert(ctx, rec))
	assert.NotZero(t, rec.ID)

	got, err := repo.FindOne(ctx, "S1", core.Period{Month: 4, Year: 2025})
	require.NoError(t, err)
	assert.Equal(t, rec.ID, got.ID)
	assert.Equal(t, core.SchemeAcademic, got.Scheme)
	assert.Equal(t, rec.Charges, got.Charges)
	assert.Equal(t, core.Cents(5000), got.BackDues)
	assert.Equal(t, core.Cents(125000), got.RemainingAmount)
	assert.True(t, got.CreatedAt.Equal(created))
	assert.True(t, got.Balanced())

	_, err = repo.FindOne(ctx, "S1", core.Period{Month: 5, Year: 2025})
	require.ErrorIs(t, err, core.ErrNotFound)

	err = repo.Insert(ctx, testRecord("S1", 4, 2025, created))
	require.ErrorIs(t, err, core.ErrConflict)
}

func TestApplyPayment(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	period := core.Period{Month: 4, Year: 2025}
	require.NoError(t, repo.Insert(ctx, testRecord("S1", 4, 2025, time.Now())))

	at := time.Date(2025, 4, 20, 12, 0, 0, 0, time.UTC)
	rec, err := repo.ApplyPayment(ctx, "S1", period, core.Cents(25000), ledger.PaymentOptions{At: at})
	require.NoError(t, err)
	assert.Equal(t, core.Cents(25000), rec.PaidAmount)
	assert.Equal(t, core.Cents(100000), rec.RemainingAmount)
	assert.True(t, rec.UpdatedAt.Equal(at))

	_, err = repo.ApplyPayment(ctx, "S1", period, core.Cents(-25001), ledger.PaymentOptions{})
	require.ErrorIs(t, err, core.ErrValidation)

	_, err = repo.ApplyPayment(ctx, "S1", period, core.Cents(100001), ledger.PaymentOptions{Strict: true})
	require.ErrorIs(t, err, core.ErrValidation)

	_, err = repo.ApplyPayment(ctx, "S2", period, core.Cents(1), ledger.PaymentOptions{})
	require.ErrorIs(t, err, core.ErrNotFound)

	// rejected attempts left the row untouched
	got, err := repo.FindOne(ctx, "S1", period)
	require.NoError(t, err)
	assert.Equal(t, core.Cents(25000), got.PaidAmount)

	// lenient mode allows overpayment
	rec, err = repo.ApplyPayment(ctx, "S1", period, core.Cents(100001), ledger.PaymentOptions{})
	require.NoError(t, err)
	assert.Equal(t, core.Cents(-1), rec.RemainingAmount)
}

func TestApplyPayment_NoLostUpdates(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	period := core.Period{Month: 6, Year: 2025}
	require.NoError(t, repo.Insert(ctx, testRecord("S1", 6, 2025, time.Now())))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repo.ApplyPayment(ctx, "S1", period, core.Cents(1000), ledger.PaymentOptions{})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, err := repo.FindOne(ctx, "S1", period)
	require.NoError(t, err)
	assert.Equal(t, core.Cents(20000), got.PaidAmount)
	assert.Equal(t, core.Cents(105000), got.RemainingAmount)
}

func TestFindAndTotals(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	// S1: Feb, Mar, Apr 2025 created one month apart; S2: Apr 2025
	for i, m := range []int{2, 3, 4} {
		require.NoError(t, repo.Insert(ctx, testRecord("S1", m, 2025, base.AddDate(0, i+1, 0))))
	}
	other := testRecord("S2", 4, 2025, base)
	other.Class = "KG2"
	require.NoError(t, repo.Insert(ctx, other))

	all, err := repo.Find(ctx, ledger.RecordFilter{AdmissionNo: "S1"})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, 2, all[0].Period.Month)

	ay := core.AcademicYear{Start: 2024}
	prev, err := repo.Find(ctx, ledger.RecordFilter{AdmissionNo: "S1", AcademicYear: &ay})
	require.NoError(t, err)
	assert.Len(t, prev, 2, "February and March belong to 2024-25")

	kg2, err := repo.Find(ctx, ledger.RecordFilter{Class: "KG2"})
	require.NoError(t, err)
	require.Len(t, kg2, 1)
	assert.Equal(t, "S2", kg2[0].AdmissionNo)

	window, err := repo.Find(ctx, ledger.RecordFilter{
		AdmissionNo:    "S1",
		CreatedFrom:    base.AddDate(0, 2, 0),
		CreatedTo:      base.AddDate(0, 3, 0),
		OrderByCreated: true,
	})
	require.NoError(t, err)
	require.Len(t, window, 2)
	assert.Equal(t, 3, window[0].Period.Month)

	before, err := repo.Totals(ctx, ledger.RecordFilter{AdmissionNo: "S1", CreatedBefore: base.AddDate(0, 2, 0)})
	require.NoError(t, err)
	assert.Equal(t, core.Cents(125000), before.TotalDue)

	groups, err := repo.PeriodTotals(ctx, ledger.RecordFilter{AdmissionNo: "S1"})
	require.NoError(t, err)
	require.Len(t, groups, 3)
	assert.Equal(t, core.Period{Month: 4, Year: 2025}, groups[0].Period)
	assert.Equal(t, core.Cents(120000), groups[0].TotalFee)

	empty, err := repo.Totals(ctx, ledger.RecordFilter{AdmissionNo: "nobody"})
	require.NoError(t, err)
	assert.Zero(t, empty.TotalDue.Cents)
}

func TestStudentsSchedulesAdmins(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	st := core.Student{
		AdmissionNo:   "S1",
		Name:          "Asha",
		Class:         "KG1",
		RollNo:        "7",
		DateOfBirth:   time.Date(2020, 2, 29, 0, 0, 0, 0, time.UTC),
		DateOfJoining: time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC),
		Address:       "1 Main Road",
	}
	require.NoError(t, repo.AddStudent(ctx, st))

	dupAdmission := st
	dupAdmission.RollNo = "8"
	require.ErrorIs(t, repo.AddStudent(ctx, dupAdmission), core.ErrConflict)

	dupRoll := st
	dupRoll.AdmissionNo = "S2"
	err := repo.AddStudent(ctx, dupRoll)
	require.ErrorIs(t, err, core.ErrConflict)
	assert.Contains(t, err.Error(), "roll number")

	require.ErrorIs(t, repo.AddStudent(ctx, core.Student{AdmissionNo: "S3"}), core.ErrValidation)

	got, err := repo.FindStudent(ctx, "S1")
	require.NoError(t, err)
	assert.Equal(t, st, got)

	kg1, err := repo.ListStudentsByClass(ctx, "KG1")
	require.NoError(t, err)
	assert.Len(t, kg1, 1)

	_, err = repo.FindStudent(ctx, "S404")
	require.ErrorIs(t, err, core.ErrNotFound)

	require.NoError(t, repo.UpsertSchedule(ctx, core.ClassFeeSchedule{ClassName: "KG1", TuitionFee: core.Cents(100)}))
	require.NoError(t, repo.UpsertSchedule(ctx, core.ClassFeeSchedule{ClassName: "KG1", TuitionFee: core.Cents(150), TransportationFee: core.Cents(20)}))
	sc, err := repo.FindSchedule(ctx, "KG1")
	require.NoError(t, err)
	assert.Equal(t, core.Cents(150), sc.TuitionFee)
	assert.Equal(t, core.Cents(20), sc.TransportationFee)
	list, err := repo.ListSchedules(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	require.NoError(t, repo.CreateAdmin(ctx, core.Admin{Username: "admin", PasswordHash: "hash"}))
	require.ErrorIs(t, repo.CreateAdmin(ctx, core.Admin{Username: "admin"}), core.ErrConflict)
	a, err := repo.FindAdmin(ctx, "admin")
	require.NoError(t, err)
	assert.Equal(t, "hash", a.PasswordHash)
}
