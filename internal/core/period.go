package core

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// Scheme names the period-keying scheme a record was entered with.
type Scheme string

const (
	SchemeCalendar Scheme = "calendar"
	SchemeAcademic Scheme = "academic"
)

func ParseScheme(s string) (Scheme, error) {
	switch Scheme(s) {
	case "", SchemeCalendar:
		return SchemeCalendar, nil
	case SchemeAcademic:
		return SchemeAcademic, nil
	}
	return "", Validationf("unknown period scheme %q", s)
}

// AcademicStartMonth is April: the academic year runs April to March.
const AcademicStartMonth = 4

var academicYearPattern = regexp.MustCompile(`^\d{4}-\d{2}$`)

// AcademicYear is an April-March school year, written "YYYY-YY".
type AcademicYear struct {
	Start int
}

// ParseAcademicYear parses "2025-26". The suffix must be the two-digit form
// of Start+1, so "2099-00" is accepted and "2025-27" is not.
func ParseAcademicYear(s string) (AcademicYear, error) {
	if !academicYearPattern.MatchString(s) {
		return AcademicYear{}, Validationf("academic year %q must match YYYY-YY", s)
	}
	start, _ := strconv.Atoi(s[:4])
	suffix, _ := strconv.Atoi(s[5:])
	if suffix != (start+1)%100 {
		return AcademicYear{}, Validationf("academic year %q: suffix must be %02d", s, (start+1)%100)
	}
	return AcademicYear{Start: start}, nil
}

func (a AcademicYear) String() string {
	return fmt.Sprintf("%04d-%02d", a.Start, (a.Start+1)%100)
}

func (a AcademicYear) Prev() AcademicYear { return AcademicYear{Start: a.Start - 1} }

// CalendarYear is the calendar year that month falls in within this academic
// year: January to March belong to Start+1.
func (a AcademicYear) CalendarYear(month int) int {
	if month < AcademicStartMonth {
		return a.Start + 1
	}
	return a.Start
}

// AcademicYearOf returns the academic year containing (month, year).
func AcademicYearOf(month, year int) AcademicYear {
	if month < AcademicStartMonth {
		return AcademicYear{Start: year - 1}
	}
	return AcademicYear{Start: year}
}

// Period is the canonical stored identity of a billing month.
type Period struct {
	Month int
	Year  int
}

func (p Period) index() int { return p.Year*12 + p.Month - 1 }

// Before reports whether p is earlier than o.
func (p Period) Before(o Period) bool { return p.index() < o.index() }

func (p Period) AcademicYear() AcademicYear { return AcademicYearOf(p.Month, p.Year) }

func (p Period) String() string { return fmt.Sprintf("%04d-%02d", p.Year, p.Month) }

// ComparePeriods orders periods chronologically, for slices.SortFunc.
func ComparePeriods(a, b Period) int { return a.index() - b.index() }

// PeriodKey identifies a student's billing month in one of the two schemes.
// Both schemes resolve to the same canonical Period.
type PeriodKey interface {
	Scheme() Scheme
	Period() Period
	Predecessor() PeriodKey
	String() string
}

// CalendarKey is (month, calendar year).
type CalendarKey struct {
	Month int
	Year  int
}

// AcademicKey is (month, academic year).
type AcademicKey struct {
	Month        int
	AcademicYear AcademicYear
}

func validMonth(month int) error {
	if month < 1 || month > 12 {
		return Validationf("month %d must be between 1 and 12", month)
	}
	return nil
}

func NewCalendarKey(month, year int) (CalendarKey, error) {
	if err := validMonth(month); err != nil {
		return CalendarKey{}, err
	}
	if year < 1 || year > 9999 {
		return CalendarKey{}, Validationf("year %d out of range", year)
	}
	return CalendarKey{Month: month, Year: year}, nil
}

func NewAcademicKey(month int, academicYear string) (AcademicKey, error) {
	if err := validMonth(month); err != nil {
		return AcademicKey{}, err
	}
	ay, err := ParseAcademicYear(academicYear)
	if err != nil {
		return AcademicKey{}, err
	}
	return AcademicKey{Month: month, AcademicYear: ay}, nil
}

func (k CalendarKey) Scheme() Scheme { return SchemeCalendar }
func (k CalendarKey) Period() Period { return Period{Month: k.Month, Year: k.Year} }
func (k CalendarKey) String() string { return fmt.Sprintf("%02d/%04d", k.Month, k.Year) }

func (k CalendarKey) Predecessor() PeriodKey {
	if k.Month == 1 {
		return CalendarKey{Month: 12, Year: k.Year - 1}
	}
	return CalendarKey{Month: k.Month - 1, Year: k.Year}
}

func (k AcademicKey) Scheme() Scheme { return SchemeAcademic }

func (k AcademicKey) Period() Period {
	return Period{Month: k.Month, Year: k.AcademicYear.CalendarYear(k.Month)}
}

func (k AcademicKey) String() string {
	return fmt.Sprintf("%02d/%s", k.Month, k.AcademicYear)
}

// Predecessor of April steps into March of the previous academic year.
// January's predecessor is December of the same academic year.
func (k AcademicKey) Predecessor() PeriodKey {
	switch k.Month {
	case AcademicStartMonth:
		return AcademicKey{Month: 3, AcademicYear: k.AcademicYear.Prev()}
	case 1:
		return AcademicKey{Month: 12, AcademicYear: k.AcademicYear}
	}
	return AcademicKey{Month: k.Month - 1, AcademicYear: k.AcademicYear}
}

// KeyFor expresses p in the requested scheme.
func KeyFor(p Period, scheme Scheme) PeriodKey {
	if scheme == SchemeAcademic {
		return AcademicKey{Month: p.Month, AcademicYear: p.AcademicYear()}
	}
	return CalendarKey{Month: p.Month, Year: p.Year}
}

// PeriodAt returns the calendar period containing t.
func PeriodAt(t time.Time) Period {
	return Period{Month: int(t.Month()), Year: t.Year()}
}
