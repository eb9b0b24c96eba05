package services

import (
	"context"
	"strings"
	"time"

	"feeledger/internal/core"
	"feeledger/internal/ledger"
	"feeledger/internal/log"
)

// DirectoryService manages the student roster and class fee schedules,
// enforcing the configured class set on both.
type DirectoryService struct {
	students  ledger.StudentStore
	schedules ledger.ScheduleStore
	classes   core.ClassSet
	now       func() time.Time
}

func NewDirectoryService(students ledger.StudentStore, schedules ledger.ScheduleStore, classes core.ClassSet) *DirectoryService {
	if len(classes) == 0 {
		classes = core.DefaultClasses
	}
	return &DirectoryService{
		students:  students,
		schedules: schedules,
		classes:   classes,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (s *DirectoryService) AddStudent(ctx context.Context, st core.Student) (core.Student, error) {
	st.AdmissionNo = strings.TrimSpace(st.AdmissionNo)
	st.RollNo = strings.TrimSpace(st.RollNo)
	if !s.classes.Contains(st.Class) {
		return core.Student{}, core.Validationf("invalid class %q: must be one of %s", st.Class, strings.Join(s.classes, ", "))
	}
	if err := s.students.AddStudent(ctx, st); err != nil {
		return core.Student{}, err
	}
	log.FromContext(ctx).WithComponent(log.ComponentLedger).InfoContext(ctx, "Student added",
		log.FieldAdmissionNo, st.AdmissionNo,
		log.FieldClass, st.Class)
	return st, nil
}

func (s *DirectoryService) ListStudents(ctx context.Context) ([]core.Student, error) {
	return s.students.ListStudents(ctx)
}

// SetSchedule replaces the standard charges of a class. A zero EffectiveFrom
// means the schedule applies from now.
func (s *DirectoryService) SetSchedule(ctx context.Context, sc core.ClassFeeSchedule) (core.ClassFeeSchedule, error) {
	if !s.classes.Contains(sc.ClassName) {
		return core.ClassFeeSchedule{}, core.Validationf("invalid class %q: must be one of %s", sc.ClassName, strings.Join(s.classes, ", "))
	}
	now := s.now()
	if sc.EffectiveFrom.IsZero() {
		sc.EffectiveFrom = now
	}
	sc.UpdatedAt = now
	if err := s.schedules.UpsertSchedule(ctx, sc); err != nil {
		return core.ClassFeeSchedule{}, err
	}
	log.FromContext(ctx).WithComponent(log.ComponentLedger).InfoContext(ctx, "Class fee schedule updated",
		log.FieldClass, sc.ClassName,
		"tuition_fee", sc.TuitionFee.String(),
		"transportation_fee", sc.TransportationFee.String())
	return sc, nil
}

func (s *DirectoryService) ListSchedules(ctx context.Context) ([]core.ClassFeeSchedule, error) {
	return s.schedules.ListSchedules(ctx)
}
