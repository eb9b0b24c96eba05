package postgres

import (
	"time"

	"gorm.io/datatypes"

	"feeledger/internal/core"
)

// feeRecordRow maps fee_records. Amounts are minor units.
type feeRecordRow struct {
	ID                int64                                `gorm:"primaryKey;autoIncrement"`
	AdmissionNo       string                               `gorm:"type:varchar(64);not null;uniqueIndex:ux_fee_records_period,priority:1;index:idx_fee_records_created,priority:1"`
	StudentName       string                               `gorm:"type:varchar(200);not null"`
	Class             string                               `gorm:"type:varchar(64);not null;index:idx_fee_records_class_year,priority:1"`
	Month             int                                  `gorm:"not null;uniqueIndex:ux_fee_records_period,priority:3;check:month BETWEEN 1 AND 12"`
	Year              int                                  `gorm:"not null;uniqueIndex:ux_fee_records_period,priority:2"`
	AcademicYear      string                               `gorm:"type:char(7);not null;index:idx_fee_records_class_year,priority:2"`
	Scheme            string                               `gorm:"type:varchar(16);not null;default:calendar"`
	Charges           datatypes.JSONType[map[string]int64] `gorm:"type:jsonb;not null"`
	TuitionFee        int64                                `gorm:"not null;default:0"`
	TransportationFee int64                                `gorm:"not null;default:0"`
	BackDues          int64                                `gorm:"not null;default:0"`
	TotalFee          int64                                `gorm:"not null"`
	PaidAmount        int64                                `gorm:"not null;default:0"`
	RemainingAmount   int64                                `gorm:"not null"`
	CreatedAt         time.Time                            `gorm:"not null;index:idx_fee_records_created,priority:2"`
	UpdatedAt         time.Time                            `gorm:"not null"`
}

func (feeRecordRow) TableName() string { return "fee_records" }

func toRow(r core.FeeRecord) feeRecordRow {
	cents := make(map[string]int64, len(r.Charges))
	for k, v := range r.Charges {
		cents[k] = v.Cents
	}
	return feeRecordRow{
		ID:                r.ID,
		AdmissionNo:       r.AdmissionNo,
		StudentName:       r.StudentName,
		Class:             r.Class,
		Month:             r.Period.Month,
		Year:              r.Period.Year,
		AcademicYear:      r.AcademicYear().String(),
		Scheme:            string(r.Scheme),
		Charges:           datatypes.NewJSONType(cents),
		TuitionFee:        r.Charges.Get(core.ItemTuition).Cents,
		TransportationFee: r.Charges.Get(core.ItemTransportation).Cents,
		BackDues:          r.BackDues.Cents,
		TotalFee:          r.TotalFee.Cents,
		PaidAmount:        r.PaidAmount.Cents,
		RemainingAmount:   r.RemainingAmount.Cents,
		CreatedAt:         r.CreatedAt,
		UpdatedAt:         r.UpdatedAt,
	}
}

func (row feeRecordRow) toCore() core.FeeRecord {
	charges := core.Charges{}
	for k, v := range row.Charges.Data() {
		charges[k] = core.Cents(v)
	}
	return core.FeeRecord{
		ID:              row.ID,
		AdmissionNo:     row.AdmissionNo,
		StudentName:     row.StudentName,
		Class:           row.Class,
		Period:          core.Period{Month: row.Month, Year: row.Year},
		Scheme:          core.Scheme(row.Scheme),
		Charges:         charges,
		BackDues:        core.Cents(row.BackDues),
		TotalFee:        core.Cents(row.TotalFee),
		PaidAmount:      core.Cents(row.PaidAmount),
		RemainingAmount: core.Cents(row.RemainingAmount),
		CreatedAt:       row.CreatedAt.UTC(),
		UpdatedAt:       row.UpdatedAt.UTC(),
	}
}

type studentRow struct {
	AdmissionNo   string    `gorm:"primaryKey;type:varchar(64)"`
	Name          string    `gorm:"type:varchar(200);not null"`
	Class         string    `gorm:"type:varchar(64);not null;index"`
	RollNo        string    `gorm:"type:varchar(64);not null;uniqueIndex:ux_students_roll_no"`
	DOB           time.Time `gorm:"column:dob;type:date;not null"`
	DateOfJoining time.Time `gorm:"type:date;not null"`
	Address       string    `gorm:"type:text;not null"`
	CreatedAt     time.Time
}

func (studentRow) TableName() string { return "students" }

func (s studentRow) toCore() core.Student {
	return core.Student{
		AdmissionNo:   s.AdmissionNo,
		Name:          s.Name,
		Class:         s.Class,
		RollNo:        s.RollNo,
		DateOfBirth:   s.DOB.UTC(),
		DateOfJoining: s.DateOfJoining.UTC(),
		Address:       s.Address,
	}
}

type scheduleRow struct {
	ClassName         string `gorm:"primaryKey;type:varchar(64)"`
	TuitionFee        int64  `gorm:"not null;check:tuition_fee >= 0"`
	TransportationFee int64  `gorm:"not null;check:transportation_fee >= 0"`
	EffectiveFrom     time.Time
	UpdatedAt         time.Time
}

func (scheduleRow) TableName() string { return "class_fee_schedules" }

func (s scheduleRow) toCore() core.ClassFeeSchedule {
	return core.ClassFeeSchedule{
		ClassName:         s.ClassName,
		TuitionFee:        core.Cents(s.TuitionFee),
		TransportationFee: core.Cents(s.TransportationFee),
		EffectiveFrom:     s.EffectiveFrom.UTC(),
		UpdatedAt:         s.UpdatedAt.UTC(),
	}
}

type adminRow struct {
	Username     string `gorm:"primaryKey;type:varchar(64)"`
	PasswordHash string `gorm:"type:varchar(100);not null"`
	CreatedAt    time.Time
}

func (adminRow) TableName() string { return "admins" }
