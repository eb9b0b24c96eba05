package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"feeledger/internal/core"
)

func (s *Store) AddStudent(ctx context.Context, st core.Student) error {
	if err := st.Validate(); err != nil {
		return err
	}
	row := studentRow{
		AdmissionNo:   st.AdmissionNo,
		Name:          st.Name,
		Class:         st.Class,
		RollNo:        st.RollNo,
		DOB:           st.DateOfBirth,
		DateOfJoining: st.DateOfJoining,
		Address:       st.Address,
	}
	err := s.db.WithContext(ctx).Create(&row).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
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

func (s *Store) FindStudent(ctx context.Context, admissionNo string) (core.Student, error) {
	var row studentRow
	err := s.db.WithContext(ctx).Where("admission_no = ?", admissionNo).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return core.Student{}, core.NotFoundf("student %s not found", admissionNo)
	}
	if err != nil {
		return core.Student{}, fmt.Errorf("find student: %w", err)
	}
	return row.toCore(), nil
}

func (s *Store) ListStudents(ctx context.Context) ([]core.Student, error) {
	return s.listStudents(s.db.WithContext(ctx))
}

func (s *Store) ListStudentsByClass(ctx context.Context, class string) ([]core.Student, error) {
	return s.listStudents(s.db.WithContext(ctx).Where("class = ?", class))
}

func (s *Store) listStudents(q *gorm.DB) ([]core.Student, error) {
	var rows []studentRow
	if err := q.Order("admission_no").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("query students: %w", err)
	}
	out := make([]core.Student, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toCore())
	}
	return out, nil
}

func (s *Store) UpsertSchedule(ctx context.Context, sc core.ClassFeeSchedule) error {
	if err := sc.Validate(); err != nil {
		return err
	}
	updated := sc.UpdatedAt
	if updated.IsZero() {
		updated = time.Now()
	}
	row := scheduleRow{
		ClassName:         sc.ClassName,
		TuitionFee:        sc.TuitionFee.Cents,
		TransportationFee: sc.TransportationFee.Cents,
		EffectiveFrom:     sc.EffectiveFrom,
		UpdatedAt:         updated,
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "class_name"}},
		DoUpdates: clause.AssignmentColumns([]string{"tuition_fee", "transportation_fee", "effective_from", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("upsert class fee schedule: %w", err)
	}
	return nil
}

func (s *Store) FindSchedule(ctx context.Context, className string) (core.ClassFeeSchedule, error) {
	var row scheduleRow
	err := s.db.WithContext(ctx).Where("class_name = ?", className).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return core.ClassFeeSchedule{}, core.NotFoundf("class fee schedule for %s not found", className)
	}
	if err != nil {
		return core.ClassFeeSchedule{}, fmt.Errorf("find class fee schedule: %w", err)
	}
	return row.toCore(), nil
}

func (s *Store) ListSchedules(ctx context.Context) ([]core.ClassFeeSchedule, error) {
	var rows []scheduleRow
	if err := s.db.WithContext(ctx).Order("class_name").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("query class fee schedules: %w", err)
	}
	out := make([]core.ClassFeeSchedule, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toCore())
	}
	return out, nil
}

func (s *Store) CreateAdmin(ctx context.Context, a core.Admin) error {
	row := adminRow{Username: a.Username, PasswordHash: a.PasswordHash, CreatedAt: a.CreatedAt}
	err := s.db.WithContext(ctx).Create(&row).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return core.Conflictf("admin %s already exists", a.Username)
	}
	if err != nil {
		return fmt.Errorf("insert admin: %w", err)
	}
	return nil
}

func (s *Store) FindAdmin(ctx context.Context, username string) (core.Admin, error) {
	var row adminRow
	err := s.db.WithContext(ctx).Where("username = ?", username).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return core.Admin{}, core.NotFoundf("admin %s not found", username)
	}
	if err != nil {
		return core.Admin{}, fmt.Errorf("find admin: %w", err)
	}
	return core.Admin{Username: row.Username, PasswordHash: row.PasswordHash, CreatedAt: row.CreatedAt.UTC()}, nil
}
