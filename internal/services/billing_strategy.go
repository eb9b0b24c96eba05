package services

import (
	"fmt"
	"time"

	"feeledger/internal/core"
)

// PeriodResolver picks the billing period key for an instant. Each scheme
// has its own resolver so the billing run can speak either key format.
type PeriodResolver interface {
	KeyAt(now time.Time) core.PeriodKey
}

type CalendarResolver struct{}

func (CalendarResolver) KeyAt(now time.Time) core.PeriodKey {
	return core.KeyFor(core.PeriodAt(now), core.SchemeCalendar)
}

type AcademicResolver struct{}

func (AcademicResolver) KeyAt(now time.Time) core.PeriodKey {
	return core.KeyFor(core.PeriodAt(now), core.SchemeAcademic)
}

var periodResolvers = map[core.Scheme]PeriodResolver{
	core.SchemeCalendar: CalendarResolver{},
	core.SchemeAcademic: AcademicResolver{},
}

func GetPeriodResolver(scheme core.Scheme) (PeriodResolver, error) {
	r, ok := periodResolvers[scheme]
	if !ok {
		return nil, fmt.Errorf("unknown period scheme: %s", scheme)
	}
	return r, nil
}

// IsScheduleActive reports whether a class schedule applies at now. A zero
// EffectiveFrom means the schedule always applies.
func IsScheduleActive(s core.ClassFeeSchedule, now time.Time) bool {
	return s.EffectiveFrom.IsZero() || !now.Before(s.EffectiveFrom)
}
