package google

import (
	"testing"
	"time"

	"dutyroster/internal/models"
)

func TestTabTitle(t *testing.T) {
	batch := &models.ScheduleBatch{
		StartDate: time.Date(2026, 3, 4, 19, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2026, 5, 27, 7, 0, 0, 0, time.UTC),
	}

	got := tabTitle(batch)
	want := "2026-03-04 - 2026-05-27"
	if got != want {
		t.Errorf("Expected tab title %q, got %q", want, got)
	}
}

func TestScheduleRowValues(t *testing.T) {
	start := time.Date(2026, 3, 4, 19, 0, 0, 0, time.UTC)
	sch := &models.Schedule{
		WeekNumber: 10,
		WeekStart:  start,
		WeekEnd:    start.AddDate(0, 0, 7).Add(-12 * time.Hour),
		UserID:     10,
		Override:   true,
	}

	values := scheduleRowValues(sch, "Alice")

	expected := []interface{}{
		10,
		"2026-03-04 19:00",
		"2026-03-11 07:00",
		"Alice",
		"yes",
	}

	if len(values) != len(expected) {
		t.Fatalf("Expected %d values, got %d", len(expected), len(values))
	}
	for i, v := range values {
		if v != expected[i] {
			t.Errorf("At index %d: expected %v, got %v", i, expected[i], v)
		}
	}
}

func TestScheduleRowValuesUnchanged(t *testing.T) {
	sch := &models.Schedule{WeekNumber: 11}
	values := scheduleRowValues(sch, "Bob")
	if values[4] != "" {
		t.Errorf("Expected empty change marker, got %v", values[4])
	}
}
