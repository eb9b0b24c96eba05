package core

import (
	"slices"
	"sort"
	"strings"
	"time"
)

// Well-known charge items. Any other non-empty name is accepted as an extra item.
const (
	ItemTuition        = "tuitionFee"
	ItemTransportation = "transportationFee"
)

// DefaultClasses is the enumerated class set used when none is configured.
var DefaultClasses = []string{"Nursery", "KG1", "KG2", "1st", "2nd"}

type (
	// Charges is the itemized breakdown of a period's current fee.
	Charges map[string]Money

	FeeRecord struct {
		ID              int64
		AdmissionNo     string
		StudentName     string
		Class           string
		Period          Period
		Scheme          Scheme
		Charges         Charges
		BackDues        Money
		TotalFee        Money
		PaidAmount      Money
		RemainingAmount Money
		CreatedAt       time.Time
		UpdatedAt       time.Time
	}

	Student struct {
		AdmissionNo   string
		Name          string
		Class         string
		RollNo        string
		DateOfBirth   time.Time
		DateOfJoining time.Time
		Address       string
	}

	// ClassFeeSchedule holds the standard monthly charges for a class.
	ClassFeeSchedule struct {
		ClassName         string
		TuitionFee        Money
		TransportationFee Money
		EffectiveFrom     time.Time
		UpdatedAt         time.Time
	}

	Admin struct {
		Username     string
		PasswordHash string
		CreatedAt    time.Time
	}
)

// Total sums every item.
func (c Charges) Total() Money {
	var total Money
	for _, m := range c {
		total = total.Add(m)
	}
	return total
}

func (c Charges) Get(item string) Money { return c[item] }

// Items returns item names in a stable order.
func (c Charges) Items() []string {
	names := make([]string, 0, len(c))
	for k := range c {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

func (c Charges) Validate() error {
	for name, m := range c {
		if strings.TrimSpace(name) == "" {
			return Validationf("charge item name cannot be empty")
		}
		if m.IsNegative() {
			return Validationf("charge %q must not be negative", name)
		}
	}
	return nil
}

// Clone copies c so stored records never alias caller maps.
func (c Charges) Clone() Charges {
	out := make(Charges, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

// TotalPayable is current charges plus carried-forward back dues.
func (r FeeRecord) TotalPayable() Money {
	return r.TotalFee.Add(r.BackDues)
}

// Key returns the record's period in the scheme it was entered with.
func (r FeeRecord) Key() PeriodKey {
	return KeyFor(r.Period, r.Scheme)
}

func (r FeeRecord) AcademicYear() AcademicYear {
	return r.Period.AcademicYear()
}

// Balanced reports whether remaining == totalFee + backDues - paid.
func (r FeeRecord) Balanced() bool {
	return r.RemainingAmount == r.TotalPayable().Sub(r.PaidAmount)
}

func (s Student) Validate() error {
	var missing []string
	check := func(name, v string) {
		if strings.TrimSpace(v) == "" {
			missing = append(missing, name)
		}
	}
	check("admissionNo", s.AdmissionNo)
	check("name", s.Name)
	check("class", s.Class)
	check("rollNo", s.RollNo)
	check("address", s.Address)
	if s.DateOfBirth.IsZero() {
		missing = append(missing, "dob")
	}
	if s.DateOfJoining.IsZero() {
		missing = append(missing, "dateOfJoining")
	}
	if len(missing) > 0 {
		return Validationf("missing required fields: %s", strings.Join(missing, ", "))
	}
	return nil
}

func (s ClassFeeSchedule) Validate() error {
	if strings.TrimSpace(s.ClassName) == "" {
		return Validationf("class name is required")
	}
	if s.TuitionFee.IsNegative() || s.TransportationFee.IsNegative() {
		return Validationf("class fees must not be negative")
	}
	return nil
}

// Charges returns the schedule as an itemized breakdown.
func (s ClassFeeSchedule) Charges() Charges {
	return Charges{
		ItemTuition:        s.TuitionFee,
		ItemTransportation: s.TransportationFee,
	}
}

// ClassSet is the enumerated set of classes a school runs.
type ClassSet []string

func (cs ClassSet) Contains(class string) bool {
	return slices.Contains(cs, class)
}
