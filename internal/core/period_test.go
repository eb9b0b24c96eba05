package core

import (
	"errors"
	"testing"
	"time"
)

func TestParseAcademicYear(t *testing.T) {
	cases := []struct {
		in    string
		start int
		ok    bool
	}{
		{"2025-26", 2025, true},
		{"1999-00", 1999, true},
		{"2099-00", 2099, true},
		{"2025-27", 0, false},
		{"2025/26", 0, false},
		{"25-26", 0, false},
		{"2025-2026", 0, false},
		{"", 0, false},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			ay, err := ParseAcademicYear(tc.in)
			if !tc.ok {
				if !errors.Is(err, ErrValidation) {
					t.Fatalf("expected validation error, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error %v", err)
			}
			if ay.Start != tc.start {
				t.Fatalf("start = %d, want %d", ay.Start, tc.start)
			}
			if ay.String() != tc.in {
				t.Fatalf("String() = %s, want %s", ay, tc.in)
			}
		})
	}
}

func TestAcademicKeyCalendarYear(t *testing.T) {
	cases := []struct {
		month int
		ay    string
		year  int
	}{
		{4, "2025-26", 2025},
		{12, "2025-26", 2025},
		{1, "2025-26", 2026},
		{3, "2025-26", 2026},
		{3, "1999-00", 2000},
		{2, "2099-00", 2100},
		{4, "2099-00", 2099},
	}
	for _, tc := range cases {
		k, err := NewAcademicKey(tc.month, tc.ay)
		if err != nil {
			t.Fatalf("NewAcademicKey(%d, %s): %v", tc.month, tc.ay, err)
		}
		if got := k.Period().Year; got != tc.year {
			t.Errorf("month %d of %s: year = %d, want %d", tc.month, tc.ay, got, tc.year)
		}
		// round trip through the canonical period
		back := KeyFor(k.Period(), SchemeAcademic)
		if back != PeriodKey(k) {
			t.Errorf("round trip of %s gave %s", k, back)
		}
	}
}

func TestPredecessor(t *testing.T) {
	cases := []struct {
		name string
		key  PeriodKey
		want PeriodKey
	}{
		{"calendar january wraps", CalendarKey{1, 2025}, CalendarKey{12, 2024}},
		{"calendar mid year", CalendarKey{7, 2025}, CalendarKey{6, 2025}},
		{"academic april wraps", AcademicKey{4, AcademicYear{2025}}, AcademicKey{3, AcademicYear{2024}}},
		{"academic january stays in year", AcademicKey{1, AcademicYear{2025}}, AcademicKey{12, AcademicYear{2025}}},
		{"academic may", AcademicKey{5, AcademicYear{2025}}, AcademicKey{4, AcademicYear{2025}}},
		{"academic century", AcademicKey{4, AcademicYear{2100}}, AcademicKey{3, AcademicYear{2099}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := tc.key.Predecessor()
			if got != tc.want {
				t.Fatalf("Predecessor(%s) = %s, want %s", tc.key, got, tc.want)
			}
			// both schemes agree on the canonical predecessor
			cal := KeyFor(tc.key.Period(), SchemeCalendar).Predecessor()
			if cal.Period() != got.Period() {
				t.Fatalf("schemes disagree: calendar %v academic %v", cal.Period(), got.Period())
			}
		})
	}
	if s := (AcademicKey{4, AcademicYear{2025}}).Predecessor().String(); s != "03/2024-25" {
		t.Fatalf("unexpected predecessor string %s", s)
	}
}

func TestKeyValidation(t *testing.T) {
	for _, m := range []int{0, 13, -1} {
		if _, err := NewCalendarKey(m, 2025); !errors.Is(err, ErrValidation) {
			t.Errorf("calendar month %d should fail", m)
		}
		if _, err := NewAcademicKey(m, "2025-26"); !errors.Is(err, ErrValidation) {
			t.Errorf("academic month %d should fail", m)
		}
	}
	if _, err := NewAcademicKey(5, "2025-2026"); !errors.Is(err, ErrValidation) {
		t.Error("bad academic year should fail")
	}
}

func TestPeriodOrdering(t *testing.T) {
	a := Period{Month: 12, Year: 2024}
	b := Period{Month: 1, Year: 2025}
	if !a.Before(b) || b.Before(a) {
		t.Fatal("December 2024 should sort before January 2025")
	}
	if ComparePeriods(a, b) >= 0 {
		t.Fatal("ComparePeriods should be negative")
	}
	if p := PeriodAt(time.Date(2025, time.March, 31, 23, 0, 0, 0, time.UTC)); p != (Period{3, 2025}) {
		t.Fatalf("PeriodAt = %v", p)
	}
	if ay := (Period{Month: 3, Year: 2025}).AcademicYear().String(); ay != "2024-25" {
		t.Fatalf("academic year of March 2025 = %s", ay)
	}
}

func TestErrorKinds(t *testing.T) {
	err := NotFoundf("student %s not found", "A1")
	if !errors.Is(err, ErrNotFound) || errors.Is(err, ErrConflict) {
		t.Fatal("NotFoundf should only match ErrNotFound")
	}
	wrapped := errors.Join(errors.New("ctx"), Conflictf("dup"))
	if KindOf(wrapped) != KindConflict {
		t.Fatalf("KindOf wrapped = %q", KindOf(wrapped))
	}
	if KindOf(errors.New("disk full")) != "" {
		t.Fatal("plain errors have no kind")
	}
	if MessageOf(err) != "student A1 not found" {
		t.Fatalf("MessageOf = %q", MessageOf(err))
	}
}
