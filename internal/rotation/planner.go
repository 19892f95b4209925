// Package rotation generates weekly on-call rotations. Everything here
// is pure date arithmetic: plans and materialized weeks are computed
// deterministically so a plan can be replayed during batch approval.
package rotation

import (
	"time"

	"dutyroster/internal/domain"
	"dutyroster/internal/models"
)

const (
	// HandoverStartHour is the hour a rotation week begins (Wednesday).
	HandoverStartHour = 19
	// HandoverEndHour is the hour a rotation week ends (next Wednesday).
	HandoverEndHour = 7
)

// NextRotationStart snaps t forward to the next Wednesday and forces
// the time to 19:00. A Wednesday is never advanced to the following
// week; only its time is normalized.
func NextRotationStart(t time.Time) time.Time {
	days := (int(time.Wednesday) - int(t.Weekday()) + 7) % 7
	d := t.AddDate(0, 0, days)
	return time.Date(d.Year(), d.Month(), d.Day(), HandoverStartHour, 0, 0, 0, t.Location())
}

// WeekEnd returns the end of the rotation week beginning at start:
// seven days later at 07:00.
func WeekEnd(start time.Time) time.Time {
	d := start.AddDate(0, 0, 7)
	return time.Date(d.Year(), d.Month(), d.Day(), HandoverEndHour, 0, 0, 0, d.Location())
}

// Plan builds a rotation plan for weekCount weeks starting from the
// Wednesday on or after startDate. operatorIDs must be the pool in
// rotation order; startIndex selects the operator of week zero.
func Plan(startDate time.Time, weekCount int, operatorIDs []int64, startIndex int) (models.RotationPlan, error) {
	if len(operatorIDs) == 0 {
		return models.RotationPlan{}, domain.Validationf("plan rotation: empty operator pool")
	}
	if weekCount <= 0 {
		return models.RotationPlan{}, domain.Validationf("plan rotation: week count %d", weekCount)
	}
	if startIndex < 0 || startIndex >= len(operatorIDs) {
		startIndex = 0
	}

	return models.RotationPlan{
		StartDate:   NextRotationStart(startDate),
		WeekCount:   weekCount,
		OperatorIDs: append([]int64(nil), operatorIDs...),
		StartIndex:  startIndex,
	}, nil
}

// Materialize expands a plan into one Schedule per week. Week i runs
// [StartDate+7i days 19:00, +7 days 07:00) and is assigned to
// OperatorIDs[(StartIndex+i) mod len]. Re-running on the same plan
// yields an identical sequence.
func Materialize(plan models.RotationPlan, batchID int64) []models.Schedule {
	schedules := make([]models.Schedule, 0, plan.WeekCount)
	for i := 0; i < plan.WeekCount; i++ {
		weekStart := plan.StartDate.AddDate(0, 0, 7*i)
		_, weekNumber := weekStart.ISOWeek()
		schedules = append(schedules, models.Schedule{
			BatchID:    batchID,
			WeekStart:  weekStart,
			WeekEnd:    WeekEnd(weekStart),
			WeekNumber: weekNumber,
			UserID:     plan.OperatorAt(i),
		})
	}
	return schedules
}

// PlanEnd returns the end of the plan's last week.
func PlanEnd(plan models.RotationPlan) time.Time {
	return WeekEnd(plan.StartDate.AddDate(0, 0, 7*(plan.WeekCount-1)))
}
