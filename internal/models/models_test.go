package models

import (
	"testing"
	"time"
)

func TestScheduleContains(t *testing.T) {
	start := time.Date(2026, 1, 7, 19, 0, 0, 0, time.UTC) // Wednesday
	end := time.Date(2026, 1, 14, 7, 0, 0, 0, time.UTC)
	s := &Schedule{WeekStart: start, WeekEnd: end}

	tests := []struct {
		name string
		at   time.Time
		want bool
	}{
		{"start boundary", start, true},
		{"mid week", time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC), true},
		{"end boundary excluded", end, false},
		{"before start", start.Add(-time.Minute), false},
		{"next wednesday midnight", time.Date(2026, 1, 14, 0, 0, 0, 0, time.UTC), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := s.Contains(tt.at); got != tt.want {
				t.Errorf("Contains(%v) = %v, want %v", tt.at, got, tt.want)
			}
		})
	}
}

func TestScheduleBoundaryDays(t *testing.T) {
	s := &Schedule{
		WeekStart: time.Date(2026, 1, 7, 19, 0, 0, 0, time.UTC),
		WeekEnd:   time.Date(2026, 1, 14, 7, 0, 0, 0, time.UTC),
	}

	if !s.StartsOn(time.Date(2026, 1, 7, 0, 0, 0, 0, time.UTC)) {
		t.Error("expected Jan 7 to be the start day")
	}
	if !s.EndsOn(time.Date(2026, 1, 14, 0, 0, 0, 0, time.UTC)) {
		t.Error("expected Jan 14 to be the hand-over day")
	}
	if s.StartsOn(time.Date(2026, 1, 8, 0, 0, 0, 0, time.UTC)) {
		t.Error("Jan 8 is not a boundary")
	}
}

func TestRotationPlanOperatorAt(t *testing.T) {
	p := &RotationPlan{OperatorIDs: []int64{10, 20, 30}, StartIndex: 1}

	want := []int64{20, 30, 10, 20, 30}
	for week, userID := range want {
		if got := p.OperatorAt(week); got != userID {
			t.Errorf("week %d: got user %d, want %d", week, got, userID)
		}
	}
}

func TestDateOnly(t *testing.T) {
	at := time.Date(2026, 3, 15, 23, 59, 59, 123, time.UTC)
	got := DateOnly(at)
	want := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("DateOnly = %v, want %v", got, want)
	}
}
