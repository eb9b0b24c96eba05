// Package storage is the SQLite-backed implementation of the ledger stores.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"feeledger/internal/core"
	"feeledger/internal/ledger"
)

type SQLiteRepository struct {
	db *sql.DB
}

var (
	_ ledger.RecordStore   = (*SQLiteRepository)(nil)
	_ ledger.StudentStore  = (*SQLiteRepository)(nil)
	_ ledger.ScheduleStore = (*SQLiteRepository)(nil)
	_ ledger.AdminStore    = (*SQLiteRepository)(nil)
)

// DSN adds the pragmas every connection needs to a database path.
func DSN(dbPath string) string {
	return "file:" + dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	dsn := DSN(dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// SQLite serializes writers anyway; one connection keeps the atomic
	// payment update free of SQLITE_BUSY retries.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dsn); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping reports whether the database is reachable.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	if errors.As(err, &se) {
		return se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE ||
			se.Code() == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY ||
			(se.Code()&0xff == sqlite3.SQLITE_CONSTRAINT && strings.Contains(se.Error(), "UNIQUE"))
	}
	return false
}

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

func encodeCharges(c core.Charges) (string, error) {
	cents := make(map[string]int64, len(c))
	for k, v := range c {
		cents[k] = v.Cents
	}
	b, err := json.Marshal(cents)
	if err != nil {
		return "", fmt.Errorf("encode charges: %w", err)
	}
	return string(b), nil
}

func decodeCharges(s string) (core.Charges, error) {
	var cents map[string]int64
	if err := json.Unmarshal([]byte(s), &cents); err != nil {
		return nil, fmt.Errorf("decode charges: %w", err)
	}
	c := make(core.Charges, len(cents))
	for k, v := range cents {
		c[k] = core.Cents(v)
	}
	return c, nil
}

const recordColumns = `id, admission_no, student_name, class, month, year, scheme, charges,
	back_dues, total_fee, paid_amount, remaining_amount, created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (core.FeeRecord, error) {
	var (
		rec                                 core.FeeRecord
		scheme, charges                     string
		backDues, totalFee, paid, remaining int64
		createdAt, updatedAt                int64
	)
	err := s.Scan(&rec.ID, &rec.AdmissionNo, &rec.StudentName, &rec.Class,
		&rec.Period.Month, &rec.Period.Year, &scheme, &charges,
		&backDues, &totalFee, &paid, &remaining, &createdAt, &updatedAt)
	if err != nil {
		return core.FeeRecord{}, err
	}
	rec.Scheme = core.Scheme(scheme)
	if rec.Charges, err = decodeCharges(charges); err != nil {
		return core.FeeRecord{}, err
	}
	rec.BackDues = core.Cents(backDues)
	rec.TotalFee = core.Cents(totalFee)
	rec.PaidAmount = core.Cents(paid)
	rec.RemainingAmount = core.Cents(remaining)
	rec.CreatedAt = fromMillis(createdAt)
	rec.UpdatedAt = fromMillis(updatedAt)
	return rec, nil
}

func (r *SQLiteRepository) FindOne(ctx context.Context, admissionNo string, period core.Period) (core.FeeRecord, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM fee_records WHERE admission_no = ? AND year = ? AND month = ?`,
		admissionNo, period.Year, period.Month)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.FeeRecord{}, core.NotFoundf("fee record not found for %s %s", admissionNo, period)
	}
	if err != nil {
		return core.FeeRecord{}, fmt.Errorf("find fee record: %w", err)
	}
	return rec, nil
}

// where renders a RecordFilter as a SQL predicate.
func where(f ledger.RecordFilter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	if f.AdmissionNo != "" {
		conds = append(conds, "admission_no = ?")
		args = append(args, f.AdmissionNo)
	}
	if f.Class != "" {
		conds = append(conds, "class = ?")
		args = append(args, f.Class)
	}
	if f.AcademicYear != nil {
		conds = append(conds, "academic_year = ?")
		args = append(args, f.AcademicYear.String())
	}
	if !f.CreatedFrom.IsZero() {
		conds = append(conds, "created_at >= ?")
		args = append(args, f.CreatedFrom.UnixMilli())
	}
	if !f.CreatedTo.IsZero() {
		conds = append(conds, "created_at <= ?")
		args = append(args, f.CreatedTo.UnixMilli())
	}
	if !f.CreatedBefore.IsZero() {
		conds = append(conds, "created_at < ?")
		args = append(args, f.CreatedBefore.UnixMilli())
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func (r *SQLiteRepository) Find(ctx context.Context, f ledger.RecordFilter) ([]core.FeeRecord, error) {
	clause, args := where(f)
	order := " ORDER BY year, month, admission_no"
	if f.OrderByCreated {
		order = " ORDER BY created_at, id"
	}
	rows, err := r.db.QueryContext(ctx, `SELECT `+recordColumns+` FROM fee_records`+clause+order, args...)
	if err != nil {
		return nil, fmt.Errorf("query fee records: %w", err)
	}
	defer rows.Close()

	out := []core.FeeRecord{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan fee record: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate fee records: %w", err)
	}
	return out, nil
}

func (r *SQLiteRepository) Insert(ctx context.Context, rec *core.FeeRecord) error {
	charges, err := encodeCharges(rec.Charges)
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, `INSERT INTO fee_records (
		admission_no, student_name, class, month, year, academic_year, scheme, charges,
		tuition_fee, transportation_fee, back_dues, total_fee, paid_amount, remaining_amount,
		created_at, updated_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.AdmissionNo, rec.StudentName, rec.Class, rec.Period.Month, rec.Period.Year,
		rec.AcademicYear().String(), string(rec.Scheme), charges,
		rec.Charges.Get(core.ItemTuition).Cents, rec.Charges.Get(core.ItemTransportation).Cents,
		rec.BackDues.Cents, rec.TotalFee.Cents, rec.PaidAmount.Cents, rec.RemainingAmount.Cents,
		toMillis(rec.CreatedAt), toMillis(rec.UpdatedAt))
	if isUniqueViolation(err) {
		return core.Conflictf("fee record for %s already exists for %s", rec.AdmissionNo, rec.Period)
	}
	if err != nil {
		return fmt.Errorf("insert fee record: %w", err)
	}
	if rec.ID, err = res.LastInsertId(); err != nil {
		return fmt.Errorf("read fee record id: %w", err)
	}
	return nil
}

// ApplyPayment runs the increment and the remaining recomputation in one
// UPDATE. SET expressions see the pre-update row, so paid_amount on the
// right-hand side is the old value.
func (r *SQLiteRepository) ApplyPayment(ctx context.Context, admissionNo string, period core.Period, amount core.Money, opts ledger.PaymentOptions) (core.FeeRecord, error) {
	strict := 0
	if opts.Strict {
		strict = 1
	}
	at := opts.At
	if at.IsZero() {
		at = time.Now()
	}
	row := r.db.QueryRowContext(ctx, `UPDATE fee_records
		SET paid_amount = paid_amount + ?1,
		    remaining_amount = total_fee + back_dues - (paid_amount + ?1),
		    updated_at = ?2
		WHERE admission_no = ?3 AND year = ?4 AND month = ?5
		  AND paid_amount + ?1 >= 0
		  AND (?6 = 0 OR paid_amount + ?1 <= total_fee + back_dues)
		RETURNING `+recordColumns,
		amount.Cents, toMillis(at), admissionNo, period.Year, period.Month, strict)
	rec, err := scanRecord(row)
	if err == nil {
		return rec, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return core.FeeRecord{}, fmt.Errorf("apply payment: %w", err)
	}

	// Nothing updated: either the record is missing or the guard rejected it.
	existing, findErr := r.FindOne(ctx, admissionNo, period)
	if findErr != nil {
		return core.FeeRecord{}, findErr
	}
	if existing.PaidAmount.Add(amount).IsNegative() {
		return core.FeeRecord{}, core.Validationf("payment would make paid amount negative")
	}
	return core.FeeRecord{}, core.Validationf("payment of %s exceeds remaining amount %s", amount, existing.RemainingAmount)
}

func (r *SQLiteRepository) PeriodTotals(ctx context.Context, f ledger.RecordFilter) ([]ledger.PeriodTotals, error) {
	clause, args := where(f)
	rows, err := r.db.QueryContext(ctx, `SELECT month, year,
		COALESCE(SUM(paid_amount), 0), COALESCE(SUM(remaining_amount), 0), COALESCE(SUM(total_fee), 0)
		FROM fee_records`+clause+`
		GROUP BY year, month
		ORDER BY year DESC, month DESC`, args...)
	if err != nil {
		return nil, fmt.Errorf("aggregate fee records: %w", err)
	}
	defer rows.Close()

	out := []ledger.PeriodTotals{}
	for rows.Next() {
		var (
			g              ledger.PeriodTotals
			paid, due, fee int64
		)
		if err := rows.Scan(&g.Period.Month, &g.Period.Year, &paid, &due, &fee); err != nil {
			return nil, fmt.Errorf("scan period totals: %w", err)
		}
		g.TotalPaid, g.TotalDue, g.TotalFee = core.Cents(paid), core.Cents(due), core.Cents(fee)
		out = append(out, g)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) Totals(ctx context.Context, f ledger.RecordFilter) (ledger.Totals, error) {
	clause, args := where(f)
	var paid, due, fee int64
	err := r.db.QueryRowContext(ctx, `SELECT
		COALESCE(SUM(paid_amount), 0), COALESCE(SUM(remaining_amount), 0), COALESCE(SUM(total_fee), 0)
		FROM fee_records`+clause, args...).Scan(&paid, &due, &fee)
	if err != nil {
		return ledger.Totals{}, fmt.Errorf("sum fee records: %w", err)
	}
	return ledger.Totals{TotalPaid: core.Cents(paid), TotalDue: core.Cents(due), TotalFee: core.Cents(fee)}, nil
}
