package ledger

import (
	"time"

	"feeledger/internal/core"
)

// RecordView is the wire shape of a fee record. Field names follow the
// persisted document layout of the existing deployment.
type RecordView struct {
	AdmissionNo       string       `json:"admissionNo"`
	StudentName       string       `json:"studentName"`
	Class             string       `json:"class"`
	Scheme            core.Scheme  `json:"scheme"`
	Month             int          `json:"month"`
	Year              int          `json:"year"`
	AcademicYear      string       `json:"academicYear"`
	Charges           core.Charges `json:"charges"`
	TuitionFee        core.Money   `json:"tuitionFee"`
	TransportationFee core.Money   `json:"transportationFee"`
	BackDues          core.Money   `json:"backDues"`
	TotalFee          core.Money   `json:"totalFee"`
	TotalPayable      core.Money   `json:"totalPayable"`
	PaidAmount        core.Money   `json:"paidAmount"`
	RemainingAmount   core.Money   `json:"remainingAmount"`
	CreatedAt         time.Time    `json:"createdAt"`
	UpdatedAt         time.Time    `json:"updatedAt"`
}

func NewRecordView(r core.FeeRecord) RecordView {
	charges := r.Charges
	if charges == nil {
		charges = core.Charges{}
	}
	return RecordView{
		AdmissionNo:       r.AdmissionNo,
		StudentName:       r.StudentName,
		Class:             r.Class,
		Scheme:            r.Scheme,
		Month:             r.Period.Month,
		Year:              r.Period.Year,
		AcademicYear:      r.AcademicYear().String(),
		Charges:           charges,
		TuitionFee:        charges.Get(core.ItemTuition),
		TransportationFee: charges.Get(core.ItemTransportation),
		BackDues:          r.BackDues,
		TotalFee:          r.TotalFee,
		TotalPayable:      r.TotalPayable(),
		PaidAmount:        r.PaidAmount,
		RemainingAmount:   r.RemainingAmount,
		CreatedAt:         r.CreatedAt,
		UpdatedAt:         r.UpdatedAt,
	}
}

// PeriodRecordView adds the amount that will carry into the next period.
type PeriodRecordView struct {
	RecordView
	NextPeriodBackDue core.Money `json:"nextMonthBackDue"`
}

type PeriodSummaryRow struct {
	Scheme       core.Scheme `json:"scheme"`
	Month        int         `json:"month"`
	Year         int         `json:"year,omitempty"`
	AcademicYear string      `json:"academicYear,omitempty"`
	TotalPaid    core.Money  `json:"totalPaid"`
	TotalDue     core.Money  `json:"totalDue"`
	TotalFee     core.Money  `json:"totalFee"`
}

type LifetimeSummary struct {
	AdmissionNo string     `json:"admissionNo"`
	TotalPaid   core.Money `json:"totalPaid"`
	TotalDue    core.Money `json:"totalDue"`
	TotalFee    core.Money `json:"totalFee"`
}

type RangeEntry struct {
	MonthName       string     `json:"month"`
	Month           int        `json:"monthNumber"`
	Year            int        `json:"year"`
	TotalFee        core.Money `json:"totalFee"`
	PaidAmount      core.Money `json:"paidAmount"`
	RemainingAmount core.Money `json:"remainingAmount"`
	CurrentPayment  core.Money `json:"currentPayment"`
	Date            time.Time  `json:"date"`
}

type RangeSummary struct {
	AdmissionNo  string       `json:"admissionNo"`
	StudentName  string       `json:"studentName"`
	From         time.Time    `json:"from"`
	To           time.Time    `json:"to"`
	PriorBackDue core.Money   `json:"totalBackDue"`
	Records      []RangeEntry `json:"content"`
}

type MonthPayment struct {
	PaidAmount      core.Money `json:"paidAmount"`
	RemainingAmount core.Money `json:"remainingAmount"`
}

// StudentFeeRow is one line of the class roster fee table.
type StudentFeeRow struct {
	AdmissionNo       string               `json:"admissionNo"`
	StudentName       string               `json:"studentName"`
	Class             string               `json:"class"`
	Charges           core.Charges         `json:"charges"`
	TuitionFee        core.Money           `json:"tuitionFee"`
	TransportationFee core.Money           `json:"transportationFee"`
	TotalFee          core.Money           `json:"totalFee"`
	Payments          map[int]MonthPayment `json:"payments"`
	BackDues          core.Money           `json:"backDues"`
}

type StatementEntry struct {
	RecordView
	CumulativeDue core.Money `json:"cumulativeDue"`
}

type AcademicStatement struct {
	AdmissionNo  string           `json:"admissionNo"`
	AcademicYear string           `json:"academicYear"`
	TotalRecords int              `json:"totalRecords"`
	Fees         []StatementEntry `json:"fees"`
}

type GenerateResult struct {
	ClassName string   `json:"className"`
	Month     int      `json:"month"`
	Year      int      `json:"year"`
	Created   []string `json:"created"`
	Skipped   []string `json:"skipped"`
}
