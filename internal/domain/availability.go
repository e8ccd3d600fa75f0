package domain

import (
	"errors"
	"fmt"
	"time"
)

// AvailabilityKind is the per-date resolution result. A date is either
// closed, open without a fixed window (an open override on a day the weekly
// pattern gives no hours for), or open within the pattern's window.
type AvailabilityKind string

const (
	AvailabilityClosed     AvailabilityKind = "closed"
	AvailabilityOpen       AvailabilityKind = "open"
	AvailabilityOpenWindow AvailabilityKind = "open_window"
)

// DayAvailability is one resolved calendar date. StartTime/EndTime are
// "HH:MM" and set only when Kind is AvailabilityOpenWindow.
type DayAvailability struct {
	Date      time.Time
	DayOfWeek int
	Kind      AvailabilityKind
	StartTime string
	EndTime   string
}

func (d DayAvailability) IsAvailable() bool {
	return d.Kind != AvailabilityClosed
}

// ISOWeekday maps time.Weekday onto 1..7 with Monday = 1.
func ISOWeekday(t time.Time) int {
	wd := int(t.Weekday())
	if wd == 0 {
		return 7
	}
	return wd
}

var errBadClock = errors.New("invalid HH:MM value")

// ParseClock converts an "HH:MM" string to minutes since midnight.
func ParseClock(s string) (int, error) {
	if len(s) != 5 || s[2] != ':' {
		return 0, fmt.Errorf("%w: %q", errBadClock, s)
	}
	var h, m int
	if _, err := fmt.Sscanf(s, "%02d:%02d", &h, &m); err != nil {
		return 0, fmt.Errorf("%w: %q", errBadClock, s)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("%w: %q", errBadClock, s)
	}
	return h*60 + m, nil
}

// MinuteOfDay returns t's clock position as minutes since midnight.
func MinuteOfDay(t time.Time) int {
	return t.Hour()*60 + t.Minute()
}

// DateOf truncates t to its UTC calendar date.
func DateOf(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// ResolveAvailability folds a provider's weekly pattern and date overrides
// into one DayAvailability per date of [from, from+days). It is a pure
// function of its inputs: bookings never influence the result, and days with
// neither a rule nor an open override resolve closed.
//
// Precedence per date: a closed override wins outright. An open override
// forces the day available and then defers to the weekly rule for the window;
// when the rule is missing, unavailable, or windowless the day stays open
// with no window. Without an override the weekly rule alone decides.
func ResolveAvailability(rules []WeeklyRule, overrides []AvailabilityOverride, from time.Time, days int) []DayAvailability {
	byWeekday := make(map[int]WeeklyRule, len(rules))
	for _, r := range rules {
		byWeekday[r.DayOfWeek] = r
	}
	byDate := make(map[time.Time]AvailabilityOverride, len(overrides))
	for _, o := range overrides {
		byDate[DateOf(o.Date)] = o
	}

	start := DateOf(from)
	out := make([]DayAvailability, 0, days)
	for i := 0; i < days; i++ {
		d := start.AddDate(0, 0, i)
		out = append(out, resolveDate(byWeekday, byDate, d))
	}
	return out
}

func resolveDate(byWeekday map[int]WeeklyRule, byDate map[time.Time]AvailabilityOverride, d time.Time) DayAvailability {
	day := DayAvailability{
		Date:      d,
		DayOfWeek: ISOWeekday(d),
		Kind:      AvailabilityClosed,
	}

	forcedOpen := false
	if ov, ok := byDate[d]; ok {
		if !ov.IsAvailable {
			return day
		}
		forcedOpen = true
	}

	rule, ok := byWeekday[day.DayOfWeek]
	switch {
	case ok && rule.IsAvailable && rule.StartTime != "" && rule.EndTime != "":
		day.Kind = AvailabilityOpenWindow
		day.StartTime = rule.StartTime
		day.EndTime = rule.EndTime
	case ok && rule.IsAvailable:
		day.Kind = AvailabilityOpen
	case forcedOpen:
		day.Kind = AvailabilityOpen
	}
	return day
}
