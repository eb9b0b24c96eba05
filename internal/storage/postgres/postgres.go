// Package postgres stores the ledger in PostgreSQL through GORM.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"feeledger/internal/core"
	"feeledger/internal/ledger"
)

type Config struct {
	DSN          string
	MaxIdleConns int
	MaxOpenConns int
	// LogSQL turns on GORM statement logging.
	LogSQL bool
}

type Store struct {
	db *gorm.DB
}

var (
	_ ledger.RecordStore   = (*Store)(nil)
	_ ledger.StudentStore  = (*Store)(nil)
	_ ledger.ScheduleStore = (*Store)(nil)
	_ ledger.AdminStore    = (*Store)(nil)
)

// Open connects, sizes the pool and migrates the schema.
func Open(cfg Config) (*Store, error) {
	level := logger.Silent
	if cfg.LogSQL {
		level = logger.Info
	}
	db, err := gorm.Open(postgres.Open(cfg.DSN), &gorm.Config{
		Logger:         logger.Default.LogMode(level),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql.DB: %w", err)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := db.AutoMigrate(&studentRow{}, &scheduleRow{}, &adminRow{}, &feeRecordRow{}); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("migrate schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *Store) FindOne(ctx context.Context, admissionNo string, period core.Period) (core.FeeRecord, error) {
	var row feeRecordRow
	err := s.db.WithContext(ctx).
		Where("admission_no = ? AND year = ? AND month = ?", admissionNo, period.Year, period.Month).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return core.FeeRecord{}, core.NotFoundf("fee record not found for %s %s", admissionNo, period)
	}
	if err != nil {
		return core.FeeRecord{}, fmt.Errorf("find fee record: %w", err)
	}
	return row.toCore(), nil
}

func scoped(db *gorm.DB, f ledger.RecordFilter) *gorm.DB {
	if f.AdmissionNo != "" {
		db = db.Where("admission_no = ?", f.AdmissionNo)
	}
	if f.Class != "" {
		db = db.Where("class = ?", f.Class)
	}
	if f.AcademicYear != nil {
		db = db.Where("academic_year = ?", f.AcademicYear.String())
	}
	if !f.CreatedFrom.IsZero() {
		db = db.Where("created_at >= ?", f.CreatedFrom)
	}
	if !f.CreatedTo.IsZero() {
		db = db.Where("created_at <= ?", f.CreatedTo)
	}
	if !f.CreatedBefore.IsZero() {
		db = db.Where("created_at < ?", f.CreatedBefore)
	}
	return db
}

func (s *Store) Find(ctx context.Context, f ledger.RecordFilter) ([]core.FeeRecord, error) {
	q := scoped(s.db.WithContext(ctx).Model(&feeRecordRow{}), f)
	if f.OrderByCreated {
		q = q.Order("created_at, id")
	} else {
		q = q.Order("year, month, admission_no")
	}
	var rows []feeRecordRow
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("query fee records: %w", err)
	}
	out := make([]core.FeeRecord, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toCore())
	}
	return out, nil
}

func (s *Store) Insert(ctx context.Context, r *core.FeeRecord) error {
	row := toRow(*r)
	err := s.db.WithContext(ctx).Create(&row).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return core.Conflictf("fee record for %s already exists for %s", r.AdmissionNo, r.Period)
	}
	if err != nil {
		return fmt.Errorf("insert fee record: %w", err)
	}
	r.ID = row.ID
	return nil
}

// ApplyPayment is a single UPDATE ... RETURNING. Zero rows affected means the
// record is missing or the guard rejected the new paid amount.
func (s *Store) ApplyPayment(ctx context.Context, admissionNo string, period core.Period, amount core.Money, opts ledger.PaymentOptions) (core.FeeRecord, error) {
	at := opts.At
	if at.IsZero() {
		at = time.Now()
	}
	var row feeRecordRow
	q := s.db.WithContext(ctx).Model(&row).Clauses(clause.Returning{}).
		Where("admission_no = ? AND year = ? AND month = ?", admissionNo, period.Year, period.Month).
		Where("paid_amount + ? >= 0", amount.Cents)
	if opts.Strict {
		q = q.Where("paid_amount + ? <= total_fee + back_dues", amount.Cents)
	}
	res := q.Updates(map[string]any{
		"paid_amount":      gorm.Expr("paid_amount + ?", amount.Cents),
		"remaining_amount": gorm.Expr("total_fee + back_dues - (paid_amount + ?)", amount.Cents),
		"updated_at":       at,
	})
	if res.Error != nil {
		return core.FeeRecord{}, fmt.Errorf("apply payment: %w", res.Error)
	}
	if res.RowsAffected == 1 {
		return row.toCore(), nil
	}

	existing, err := s.FindOne(ctx, admissionNo, period)
	if err != nil {
		return core.FeeRecord{}, err
	}
	if existing.PaidAmount.Add(amount).IsNegative() {
		return core.FeeRecord{}, core.Validationf("payment would make paid amount negative")
	}
	return core.FeeRecord{}, core.Validationf("payment of %s exceeds remaining amount %s", amount, existing.RemainingAmount)
}

type totalsRow struct {
	Month     int
	Year      int
	TotalPaid int64
	TotalDue  int64
	TotalFee  int64
}

const sumColumns = "COALESCE(SUM(paid_amount), 0) AS total_paid, " +
	"COALESCE(SUM(remaining_amount), 0) AS total_due, " +
	"COALESCE(SUM(total_fee), 0) AS total_fee"

func (s *Store) PeriodTotals(ctx context.Context, f ledger.RecordFilter) ([]ledger.PeriodTotals, error) {
	var rows []totalsRow
	err := scoped(s.db.WithContext(ctx).Model(&feeRecordRow{}), f).
		Select("month, year, " + sumColumns).
		Group("year, month").
		Order("year DESC, month DESC").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("aggregate fee records: %w", err)
	}
	out := make([]ledger.PeriodTotals, 0, len(rows))
	for _, r := range rows {
		out = append(out, ledger.PeriodTotals{
			Period: core.Period{Month: r.Month, Year: r.Year},
			Totals: ledger.Totals{
				TotalPaid: core.Cents(r.TotalPaid),
				TotalDue:  core.Cents(r.TotalDue),
				TotalFee:  core.Cents(r.TotalFee),
			},
		})
	}
	return out, nil
}

func (s *Store) Totals(ctx context.Context, f ledger.RecordFilter) (ledger.Totals, error) {
	var r totalsRow
	err := scoped(s.db.WithContext(ctx).Model(&feeRecordRow{}), f).
		Select(sumColumns).
		Scan(&r).Error
	if err != nil {
		return ledger.Totals{}, fmt.Errorf("sum fee records: %w", err)
	}
	return ledger.Totals{
		TotalPaid: core.Cents(r.TotalPaid),
		TotalDue:  core.Cents(r.TotalDue),
		TotalFee:  core.Cents(r.TotalFee),
	}, nil
}
