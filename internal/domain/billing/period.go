package billing

import (
	"fmt"
	"time"
)

// BillingCycle is the calendar-aligned cadence on a contract.
type BillingCycle string

const (
	CycleMonthly   BillingCycle = "monthly"
	CycleQuarterly BillingCycle = "quarterly"
	CycleYearly    BillingCycle = "yearly"
)

// Period is the inclusive date range a single invoice covers.
type Period struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Overlaps reports whether two periods share at least one day.
func (p Period) Overlaps(other Period) bool {
	return !p.Start.After(other.End) && !p.End.Before(other.Start)
}

// Days returns the inclusive length of the period in days.
func (p Period) Days() int {
	return int(p.End.Sub(p.Start).Hours()/24) + 1
}

func (p Period) String() string {
	return fmt.Sprintf("%s..%s", p.Start.Format("2006-01-02"), p.End.Format("2006-01-02"))
}

// CivilDate truncates t to a date at UTC midnight. All period arithmetic
// works on civil dates so wall-clock time and zones never shift a boundary.
func CivilDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ComputePeriod maps a calendar-aligned billing cycle and an anchor date to
// the period containing the anchor. A monthly period is the anchor's calendar
// month. Quarterly periods align to the Jan/Apr/Jul/Oct quarters, and yearly
// periods cover the anchor's calendar year.
func ComputePeriod(cycle BillingCycle, anchor time.Time) (Period, error) {
	y, m, _ := CivilDate(anchor).Date()

	switch cycle {
	case CycleMonthly:
		start := time.Date(y, m, 1, 0, 0, 0, 0, time.UTC)
		return Period{Start: start, End: start.AddDate(0, 1, -1)}, nil
	case CycleQuarterly:
		quarterStart := time.Month((int(m)-1)/3*3 + 1)
		start := time.Date(y, quarterStart, 1, 0, 0, 0, 0, time.UTC)
		return Period{Start: start, End: start.AddDate(0, 3, -1)}, nil
	case CycleYearly:
		start := time.Date(y, time.January, 1, 0, 0, 0, 0, time.UTC)
		return Period{Start: start, End: start.AddDate(1, 0, -1)}, nil
	default:
		return Period{}, fmt.Errorf("unknown billing cycle: %q", cycle)
	}
}

// AdvanceSchedule computes the period starting at the schedule's current next
// generation date and the date the schedule should advance to afterwards.
// The period runs from the old next date up to the day before the new one.
//
// Month-based frequencies re-anchor every advance on dayOfMonth (falling back
// to the current date's day when unset), clamped to the target month's last
// day. A schedule anchored on the 31st bills Feb 29, then returns to Mar 31
// instead of drifting onto whatever day bare month addition lands on.
func AdvanceSchedule(freq ScheduleFrequency, next time.Time, dayOfMonth int) (Period, time.Time, error) {
	start := CivilDate(next)

	var newNext time.Time
	switch freq {
	case FrequencyWeekly:
		newNext = start.AddDate(0, 0, 7)
	case FrequencyMonthly:
		newNext = advanceMonths(start, 1, dayOfMonth)
	case FrequencyQuarterly:
		newNext = advanceMonths(start, 3, dayOfMonth)
	case FrequencyYearly:
		newNext = advanceMonths(start, 12, dayOfMonth)
	default:
		return Period{}, time.Time{}, fmt.Errorf("unknown schedule frequency: %q", freq)
	}

	return Period{Start: start, End: newNext.AddDate(0, 0, -1)}, newNext, nil
}

func advanceMonths(start time.Time, months, dayOfMonth int) time.Time {
	day := dayOfMonth
	if day <= 0 {
		day = start.Day()
	}

	firstOfTarget := time.Date(start.Year(), start.Month()+time.Month(months), 1, 0, 0, 0, 0, time.UTC)
	if lastDay := firstOfTarget.AddDate(0, 1, -1).Day(); day > lastDay {
		day = lastDay
	}

	return time.Date(firstOfTarget.Year(), firstOfTarget.Month(), day, 0, 0, 0, 0, time.UTC)
}
