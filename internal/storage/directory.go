package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"feeledger/internal/core"
)

const studentColumns = `admission_no, name, class, roll_no, dob, date_of_joining, address`

func scanStudent(s scanner) (core.Student, error) {
	var (
		st          core.Student
		dob, joined string
	)
	if err := s.Scan(&st.AdmissionNo, &st.Name, &st.Class, &st.RollNo, &dob, &joined, &st.Address); err != nil {
		return core.Student{}, err
	}
	var err error
	if st.DateOfBirth, err = time.Parse(time.DateOnly, dob); err != nil {
		return core.Student{}, fmt.Errorf("parse dob: %w", err)
	}
	if st.DateOfJoining, err = time.Parse(time.DateOnly, joined); err != nil {
		return core.Student{}, fmt.Errorf("parse date of joining: %w", err)
	}
	return st, nil
}

func (r *SQLiteRepository) AddStudent(ctx context.Context, st core.Student) error {
	if err := st.Validate(); err != nil {
		return err
	}
	_, err := r.db.ExecContext(ctx, `INSERT INTO students (`+studentColumns+`, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		st.AdmissionNo, st.Name, st.Class, st.RollNo,
		st.DateOfBirth.Format(time.DateOnly), st.DateOfJoining.Format(time.DateOnly),
		st.Address, time.Now().UnixMilli())
	if isUniqueViolation(err) {
		if strings.Contains(err.Error(), "roll_no") {
			return core.Conflictf("student with roll number %s already exists", st.RollNo)
		}
		return core.Conflictf("student with admission number %s already exists", st.AdmissionNo)
	}
	if err != nil {
		return fmt.Errorf("insert student: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) FindStudent(ctx context.Context, admissionNo string) (core.Student, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+studentColumns+` FROM students WHERE admission_no = ?`, admissionNo)
	st, err := scanStudent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Student{}, core.NotFoundf("student %s not found", admissionNo)
	}
	if err != nil {
		return core.Student{}, fmt.Errorf("find student: %w", err)
	}
	return st, nil
}

func (r *SQLiteRepository) ListStudents(ctx context.Context) ([]core.Student, error) {
	return r.queryStudents(ctx, `SELECT `+studentColumns+` FROM students ORDER BY admission_no`)
}

func (r *SQLiteRepository) ListStudentsByClass(ctx context.Context, class string) ([]core.Student, error) {
	return r.queryStudents(ctx, `SELECT `+studentColumns+` FROM students WHERE class = ? ORDER BY admission_no`, class)
}

func (r *SQLiteRepository) queryStudents(ctx context.Context, query string, args ...any) ([]core.Student, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query students: %w", err)
	}
	defer rows.Close()

	out := []core.Student{}
	for rows.Next() {
		st, err := scanStudent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan student: %w", err)
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) UpsertSchedule(ctx context.Context, s core.ClassFeeSchedule) error {
	if err := s.Validate(); err != nil {
		return err
	}
	updated := s.UpdatedAt
	if updated.IsZero() {
		updated = time.Now()
	}
	_, err := r.db.ExecContext(ctx, `INSERT INTO class_fee_schedules
		(class_name, tuition_fee, transportation_fee, effective_from, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(class_name) DO UPDATE SET
			tuition_fee = excluded.tuition_fee,
			transportation_fee = excluded.transportation_fee,
			effective_from = excluded.effective_from,
			updated_at = excluded.updated_at`,
		s.ClassName, s.TuitionFee.Cents, s.TransportationFee.Cents, toMillis(s.EffectiveFrom), toMillis(updated))
	if err != nil {
		return fmt.Errorf("upsert class fee schedule: %w", err)
	}
	return nil
}

func scanSchedule(s scanner) (core.ClassFeeSchedule, error) {
	var (
		sc                           core.ClassFeeSchedule
		tuition, transport, from, up int64
	)
	if err := s.Scan(&sc.ClassName, &tuition, &transport, &from, &up); err != nil {
		return core.ClassFeeSchedule{}, err
	}
	sc.TuitionFee = core.Cents(tuition)
	sc.TransportationFee = core.Cents(transport)
	sc.EffectiveFrom = fromMillis(from)
	sc.UpdatedAt = fromMillis(up)
	return sc, nil
}

const scheduleColumns = `class_name, tuition_fee, transportation_fee, effective_from, updated_at`

func (r *SQLiteRepository) FindSchedule(ctx context.Context, className string) (core.ClassFeeSchedule, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+scheduleColumns+` FROM class_fee_schedules WHERE class_name = ?`, className)
	sc, err := scanSchedule(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.ClassFeeSchedule{}, core.NotFoundf("class fee schedule for %s not found", className)
	}
	if err != nil {
		return core.ClassFeeSchedule{}, fmt.Errorf("find class fee schedule: %w", err)
	}
	return sc, nil
}

func (r *SQLiteRepository) ListSchedules(ctx context.Context) ([]core.ClassFeeSchedule, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+scheduleColumns+` FROM class_fee_schedules ORDER BY class_name`)
	if err != nil {
		return nil, fmt.Errorf("query class fee schedules: %w", err)
	}
	defer rows.Close()

	out := []core.ClassFeeSchedule{}
	for rows.Next() {
		sc, err := scanSchedule(rows)
		if err != nil {
			return nil, fmt.Errorf("scan class fee schedule: %w", err)
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) CreateAdmin(ctx context.Context, a core.Admin) error {
	created := a.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	_, err := r.db.ExecContext(ctx, `INSERT INTO admins (username, password_hash, created_at) VALUES (?, ?, ?)`,
		a.Username, a.PasswordHash, toMillis(created))
	if isUniqueViolation(err) {
		return core.Conflictf("admin %s already exists", a.Username)
	}
	if err != nil {
		return fmt.Errorf("insert admin: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) FindAdmin(ctx context.Context, username string) (core.Admin, error) {
	var (
		a       core.Admin
		created int64
	)
	err := r.db.QueryRowContext(ctx, `SELECT username, password_hash, created_at FROM admins WHERE username = ?`, username).
		Scan(&a.Username, &a.PasswordHash, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Admin{}, core.NotFoundf("admin %s not found", username)
	}
	if err != nil {
		return core.Admin{}, fmt.Errorf("find admin: %w", err)
	}
	a.CreatedAt = fromMillis(created)
	return a, nil
}
