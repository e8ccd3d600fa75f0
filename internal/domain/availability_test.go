package domain

import (
	"testing"
	"time"
)

func TestResolveAvailability_DefaultsClosed(t *testing.T) {
	from := time.Date(2026, 2, 2, 0, 0, 0, 0, time.UTC) // a Monday

	out := ResolveAvailability(nil, nil, from, 7)
	if len(out) != 7 {
		t.Fatalf("len(out) = %d, want 7", len(out))
	}
	for i, d := range out {
		if d.Kind != AvailabilityClosed {
			t.Fatalf("day %d kind = %q, want %q", i, d.Kind, AvailabilityClosed)
		}
		if d.IsAvailable() {
			t.Fatalf("day %d reported available", i)
		}
	}
	if out[0].DayOfWeek != 1 || out[6].DayOfWeek != 7 {
		t.Fatalf("weekdays = %d..%d, want 1..7", out[0].DayOfWeek, out[6].DayOfWeek)
	}
}

func TestResolveAvailability_WeeklyWindow(t *testing.T) {
	rules := []WeeklyRule{
		{ProviderID: "p1", DayOfWeek: 1, StartTime: "09:00", EndTime: "12:00", IsAvailable: true},
		{ProviderID: "p1", DayOfWeek: 3, IsAvailable: false},
	}
	from := time.Date(2026, 2, 2, 0, 0, 0, 0, time.UTC)

	out := ResolveAvailability(rules, nil, from, 3)

	mon := out[0]
	if mon.Kind != AvailabilityOpenWindow {
		t.Fatalf("monday kind = %q, want %q", mon.Kind, AvailabilityOpenWindow)
	}
	if mon.StartTime != "09:00" || mon.EndTime != "12:00" {
		t.Fatalf("monday window = %s-%s, want 09:00-12:00", mon.StartTime, mon.EndTime)
	}
	if out[1].Kind != AvailabilityClosed {
		t.Fatalf("tuesday kind = %q, want closed (no rule)", out[1].Kind)
	}
	if out[2].Kind != AvailabilityClosed {
		t.Fatalf("wednesday kind = %q, want closed (rule unavailable)", out[2].Kind)
	}
}

func TestResolveAvailability_ClosedOverrideBeatsPattern(t *testing.T) {
	monday := time.Date(2026, 2, 2, 0, 0, 0, 0, time.UTC)
	rules := []WeeklyRule{
		{ProviderID: "p1", DayOfWeek: 1, StartTime: "09:00", EndTime: "12:00", IsAvailable: true},
	}
	overrides := []AvailabilityOverride{
		{ProviderID: "p1", Date: monday, IsAvailable: false},
	}

	out := ResolveAvailability(rules, overrides, monday, 8)

	if out[0].Kind != AvailabilityClosed {
		t.Fatalf("overridden monday kind = %q, want closed", out[0].Kind)
	}
	if out[0].StartTime != "" || out[0].EndTime != "" {
		t.Fatalf("overridden monday window = %s-%s, want empty", out[0].StartTime, out[0].EndTime)
	}
	// the following Monday is untouched by the single-date override
	if out[7].Kind != AvailabilityOpenWindow {
		t.Fatalf("next monday kind = %q, want %q", out[7].Kind, AvailabilityOpenWindow)
	}
}

func TestResolveAvailability_OpenOverrideWithoutPatternWindow(t *testing.T) {
	saturday := time.Date(2026, 2, 7, 0, 0, 0, 0, time.UTC)
	overrides := []AvailabilityOverride{
		{ProviderID: "p1", Date: saturday, IsAvailable: true},
	}

	out := ResolveAvailability(nil, overrides, saturday, 1)

	if out[0].Kind != AvailabilityOpen {
		t.Fatalf("kind = %q, want %q", out[0].Kind, AvailabilityOpen)
	}
	if !out[0].IsAvailable() {
		t.Fatalf("expected available")
	}
	if out[0].StartTime != "" || out[0].EndTime != "" {
		t.Fatalf("window = %s-%s, want empty", out[0].StartTime, out[0].EndTime)
	}
}

func TestResolveAvailability_OpenOverrideInheritsPatternWindow(t *testing.T) {
	monday := time.Date(2026, 2, 2, 0, 0, 0, 0, time.UTC)
	rules := []WeeklyRule{
		{ProviderID: "p1", DayOfWeek: 1, StartTime: "09:00", EndTime: "17:00", IsAvailable: true},
	}
	overrides := []AvailabilityOverride{
		{ProviderID: "p1", Date: monday, IsAvailable: true},
	}

	out := ResolveAvailability(rules, overrides, monday, 1)

	if out[0].Kind != AvailabilityOpenWindow {
		t.Fatalf("kind = %q, want %q", out[0].Kind, AvailabilityOpenWindow)
	}
	if out[0].StartTime != "09:00" || out[0].EndTime != "17:00" {
		t.Fatalf("window = %s-%s, want 09:00-17:00", out[0].StartTime, out[0].EndTime)
	}
}

func TestResolveAvailability_IgnoresTimeOfDayInInputs(t *testing.T) {
	noon := time.Date(2026, 2, 2, 12, 30, 0, 0, time.UTC)
	overrides := []AvailabilityOverride{
		{ProviderID: "p1", Date: time.Date(2026, 2, 2, 23, 59, 0, 0, time.UTC), IsAvailable: false},
	}

	out := ResolveAvailability(nil, overrides, noon, 1)

	if !out[0].Date.Equal(time.Date(2026, 2, 2, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("date = %v, want midnight UTC", out[0].Date)
	}
	if out[0].Kind != AvailabilityClosed {
		t.Fatalf("kind = %q, want closed (override matched by date)", out[0].Kind)
	}
}

func TestParseClock(t *testing.T) {
	cases := []struct {
		in      string
		minutes int
		wantErr bool
	}{
		{"09:00", 540, false},
		{"00:00", 0, false},
		{"23:59", 1439, false},
		{"24:00", 0, true},
		{"09:60", 0, true},
		{"9:00", 0, true},
		{"0900", 0, true},
		{"", 0, true},
	}
	for _, tc := range cases {
		got, err := ParseClock(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("ParseClock(%q) expected error", tc.in)
			}
			continue
		}
		if err != nil {
			t.Fatalf("ParseClock(%q) error: %v", tc.in, err)
		}
		if got != tc.minutes {
			t.Fatalf("ParseClock(%q) = %d, want %d", tc.in, got, tc.minutes)
		}
	}
}

func TestAppointmentStatusTransitions(t *testing.T) {
	if !AppointmentStatusBooked.CanTransitionTo(AppointmentStatusCancelled) {
		t.Fatalf("booked -> cancelled should be allowed")
	}
	if !AppointmentStatusBooked.CanTransitionTo(AppointmentStatusCompleted) {
		t.Fatalf("booked -> completed should be allowed")
	}
	if AppointmentStatusCancelled.CanTransitionTo(AppointmentStatusCompleted) {
		t.Fatalf("cancelled -> completed should be rejected")
	}
	if AppointmentStatusCompleted.CanTransitionTo(AppointmentStatusCancelled) {
		t.Fatalf("completed -> cancelled should be rejected")
	}
	if AppointmentStatusCompleted.CanTransitionTo(AppointmentStatusBooked) {
		t.Fatalf("no transition may return to booked")
	}
}
