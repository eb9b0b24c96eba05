package http

import (
	"time"

	"feeledger/internal/core"
)

type loginRequest struct {
	Username string `json:"username" validate:"required,max=64"`
	Password string `json:"password" validate:"required,max=128"`
}

type studentRequest struct {
	AdmissionNo   string `json:"admissionNo" validate:"required,max=32"`
	Name          string `json:"name" validate:"required,max=128"`
	Class         string `json:"class" validate:"required"`
	RollNo        string `json:"rollNo" validate:"required,max=32"`
	DateOfBirth   string `json:"dob" validate:"required,datetime=2006-01-02"`
	DateOfJoining string `json:"dateOfJoining" validate:"required,datetime=2006-01-02"`
	Address       string `json:"address" validate:"required,max=512"`
}

func (req studentRequest) toStudent() (core.Student, error) {
	dob, err := parseDate("dob", req.DateOfBirth)
	if err != nil {
		return core.Student{}, err
	}
	joined, err := parseDate("dateOfJoining", req.DateOfJoining)
	if err != nil {
		return core.Student{}, err
	}
	return core.Student{
		AdmissionNo:   sanitizeInput(req.AdmissionNo),
		Name:          sanitizeInput(req.Name),
		Class:         sanitizeInput(req.Class),
		RollNo:        sanitizeInput(req.RollNo),
		DateOfBirth:   dob,
		DateOfJoining: joined,
		Address:       sanitizeInput(req.Address),
	}, nil
}

type studentView struct {
	AdmissionNo   string `json:"admissionNo"`
	Name          string `json:"name"`
	Class         string `json:"class"`
	RollNo        string `json:"rollNo"`
	DateOfBirth   string `json:"dob"`
	DateOfJoining string `json:"dateOfJoining"`
	Address       string `json:"address"`
}

func newStudentView(s core.Student) studentView {
	return studentView{
		AdmissionNo:   s.AdmissionNo,
		Name:          s.Name,
		Class:         s.Class,
		RollNo:        s.RollNo,
		DateOfBirth:   formatDate(s.DateOfBirth),
		DateOfJoining: formatDate(s.DateOfJoining),
		Address:       s.Address,
	}
}

type scheduleRequest struct {
	TuitionFee        core.Money `json:"tuitionFee"`
	TransportationFee core.Money `json:"transportationFee"`
	EffectiveFrom     string     `json:"effectiveFrom,omitempty" validate:"omitempty,datetime=2006-01-02"`
}

type scheduleView struct {
	ClassName         string     `json:"className"`
	TuitionFee        core.Money `json:"tuitionFee"`
	TransportationFee core.Money `json:"transportationFee"`
	EffectiveFrom     string     `json:"effectiveFrom"`
	UpdatedAt         time.Time  `json:"updatedAt"`
}

func newScheduleView(s core.ClassFeeSchedule) scheduleView {
	return scheduleView{
		ClassName:         s.ClassName,
		TuitionFee:        s.TuitionFee,
		TransportationFee: s.TransportationFee,
		EffectiveFrom:     formatDate(s.EffectiveFrom),
		UpdatedAt:         s.UpdatedAt,
	}
}

// createFeeRequest accepts the itemized charges either as a map or as the
// two well-known fields.
type createFeeRequest struct {
	PeriodParams
	Class             string       `json:"class,omitempty"`
	Charges           core.Charges `json:"charges,omitempty"`
	TuitionFee        *core.Money  `json:"tuitionFee,omitempty"`
	TransportationFee *core.Money  `json:"transportationFee,omitempty"`
	PaidAmount        core.Money   `json:"paidAmount"`
}

func (req createFeeRequest) charges() core.Charges {
	charges := req.Charges.Clone()
	if req.TuitionFee != nil {
		charges[core.ItemTuition] = *req.TuitionFee
	}
	if req.TransportationFee != nil {
		charges[core.ItemTransportation] = *req.TransportationFee
	}
	return charges
}

type paymentRequest struct {
	PeriodParams
	Amount *core.Money `json:"amount" validate:"required"`
}

type rangeRequest struct {
	DateFrom string `json:"dateFrom" validate:"required"`
	DateTo   string `json:"dateTo" validate:"required"`
}

type classTableRequest struct {
	ClassName    string `json:"className" validate:"required"`
	AcademicYear string `json:"academicYear" validate:"required"`
}

type generateRequest struct {
	ClassName string `json:"className" validate:"required"`
	PeriodParams
}
