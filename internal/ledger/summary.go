package ledger

import (
	"context"
	"sort"
	"strings"
	"time"

	"feeledger/internal/core"
)

// GetPeriodSummary sums paid, due and fee per period, newest first, keyed in
// the requested scheme. A student without records gets an empty list.
func (e *Engine) GetPeriodSummary(ctx context.Context, admissionNo string, scheme core.Scheme) ([]PeriodSummaryRow, error) {
	groups, err := e.records.PeriodTotals(ctx, RecordFilter{AdmissionNo: admissionNo})
	if err != nil {
		return nil, err
	}
	rows := make([]PeriodSummaryRow, 0, len(groups))
	for _, g := range groups {
		row := PeriodSummaryRow{
			Scheme:    scheme,
			Month:     g.Period.Month,
			TotalPaid: g.TotalPaid,
			TotalDue:  g.TotalDue,
			TotalFee:  g.TotalFee,
		}
		if scheme == core.SchemeAcademic {
			row.AcademicYear = g.Period.AcademicYear().String()
		} else {
			row.Year = g.Period.Year
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// GetLifetimeSummary sums every period the student has.
func (e *Engine) GetLifetimeSummary(ctx context.Context, admissionNo string) (LifetimeSummary, error) {
	t, err := e.records.Totals(ctx, RecordFilter{AdmissionNo: admissionNo})
	if err != nil {
		return LifetimeSummary{}, err
	}
	return LifetimeSummary{
		AdmissionNo: admissionNo,
		TotalPaid:   t.TotalPaid,
		TotalDue:    t.TotalDue,
		TotalFee:    t.TotalFee,
	}, nil
}

// ParseInstant accepts RFC 3339 timestamps or YYYY-MM-DD dates (UTC). A bare
// date used as an upper bound covers the whole day.
func ParseInstant(s string, upper bool) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, core.Validationf("date is required")
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, core.Validationf("invalid date %q: use YYYY-MM-DD or RFC 3339", s)
	}
	if upper {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return t, nil
}

// GetRangeSummary lists the records entered within [from, to], oldest first,
// and the remaining amounts of everything entered before from.
func (e *Engine) GetRangeSummary(ctx context.Context, admissionNo, from, to string) (RangeSummary, error) {
	fromT, err := ParseInstant(from, false)
	if err != nil {
		return RangeSummary{}, err
	}
	toT, err := ParseInstant(to, true)
	if err != nil {
		return RangeSummary{}, err
	}
	if toT.Before(fromT) {
		return RangeSummary{}, core.Validationf("date range start %s is after end %s", from, to)
	}

	student, err := e.students.FindStudent(ctx, admissionNo)
	if err != nil {
		return RangeSummary{}, err
	}

	records, err := e.records.Find(ctx, RecordFilter{
		AdmissionNo:    admissionNo,
		CreatedFrom:    fromT,
		CreatedTo:      toT,
		OrderByCreated: true,
	})
	if err != nil {
		return RangeSummary{}, err
	}
	prior, err := e.records.Totals(ctx, RecordFilter{AdmissionNo: admissionNo, CreatedBefore: fromT})
	if err != nil {
		return RangeSummary{}, err
	}

	out := RangeSummary{
		AdmissionNo:  student.AdmissionNo,
		StudentName:  student.Name,
		From:         fromT,
		To:           toT,
		PriorBackDue: prior.TotalDue,
		Records:      make([]RangeEntry, 0, len(records)),
	}
	for _, r := range records {
		out.Records = append(out.Records, RangeEntry{
			MonthName:       time.Month(r.Period.Month).String(),
			Month:           r.Period.Month,
			Year:            r.Period.Year,
			TotalFee:        r.TotalFee,
			PaidAmount:      r.PaidAmount,
			RemainingAmount: r.RemainingAmount,
			CurrentPayment:  r.PaidAmount,
			Date:            r.CreatedAt,
		})
	}
	return out, nil
}

// GetClassFeeTable groups a class's records for one academic year by student.
// Itemized charges are summed over the year; backDues is the remaining amount
// of the student's latest period.
func (e *Engine) GetClassFeeTable(ctx context.Context, className, academicYear string) ([]StudentFeeRow, error) {
	if strings.TrimSpace(className) == "" {
		return nil, core.Validationf("class is required")
	}
	ay, err := core.ParseAcademicYear(academicYear)
	if err != nil {
		return nil, err
	}
	records, err := e.records.Find(ctx, RecordFilter{Class: className, AcademicYear: &ay})
	if err != nil {
		return nil, err
	}

	rows := map[string]*StudentFeeRow{}
	for _, r := range records {
		row, ok := rows[r.AdmissionNo]
		if !ok {
			row = &StudentFeeRow{
				AdmissionNo: r.AdmissionNo,
				StudentName: r.StudentName,
				Class:       r.Class,
				Charges:     core.Charges{},
				Payments:    map[int]MonthPayment{},
			}
			rows[r.AdmissionNo] = row
		}
		for item, amount := range r.Charges {
			row.Charges[item] = row.Charges[item].Add(amount)
		}
		row.TotalFee = row.TotalFee.Add(r.TotalFee)
		row.Payments[r.Period.Month] = MonthPayment{
			PaidAmount:      r.PaidAmount,
			RemainingAmount: r.RemainingAmount,
		}
		// records arrive in period order, so the chronologically last one
		// wins: March closes an academic year, not December
		row.BackDues = r.RemainingAmount
	}

	out := make([]StudentFeeRow, 0, len(rows))
	for _, row := range rows {
		row.TuitionFee = row.Charges.Get(core.ItemTuition)
		row.TransportationFee = row.Charges.Get(core.ItemTransportation)
		out = append(out, *row)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AdmissionNo < out[j].AdmissionNo })
	return out, nil
}

// GetAcademicYearStatement lists a student's records for the academic year in
// period order with a running total of the remaining amounts.
func (e *Engine) GetAcademicYearStatement(ctx context.Context, admissionNo, academicYear string) (AcademicStatement, error) {
	ay, err := core.ParseAcademicYear(academicYear)
	if err != nil {
		return AcademicStatement{}, err
	}
	records, err := e.records.Find(ctx, RecordFilter{AdmissionNo: admissionNo, AcademicYear: &ay})
	if err != nil {
		return AcademicStatement{}, err
	}

	st := AcademicStatement{
		AdmissionNo:  admissionNo,
		AcademicYear: ay.String(),
		TotalRecords: len(records),
		Fees:         make([]StatementEntry, 0, len(records)),
	}
	var running core.Money
	for _, r := range records {
		running = running.Add(r.RemainingAmount)
		st.Fees = append(st.Fees, StatementEntry{RecordView: NewRecordView(r), CumulativeDue: running})
	}
	return st, nil
}
