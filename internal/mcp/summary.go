package mcp

import (
	"fmt"
	"slices"
	"time"

	"github.com/claude/utegym/internal/models"
)

// PeriodSummary aggregates the workouts started within one period.
type PeriodSummary struct {
	Period      string   `json:"period"`
	Start       string   `json:"start"`
	Workouts    int      `json:"workouts"`
	DoneSets    int      `json:"done_sets"`
	TotalReps   int      `json:"total_reps"`
	VolumeKg    float64  `json:"volume_kg"`
	AvgRPE      *float64 `json:"avg_rpe"`
	DurationSec int      `json:"duration_sec"`
}

func validBucket(b string) bool {
	switch b {
	case "day", "week", "month":
		return true
	}
	return false
}

// periodStart truncates t (in UTC) to the start of its bucket. Weeks start
// on Monday.
func periodStart(t time.Time, bucket string) time.Time {
	t = t.UTC()
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	switch bucket {
	case "week":
		offset := (int(day.Weekday()) + 6) % 7
		return day.AddDate(0, 0, -offset)
	case "month":
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	}
	return day
}

func periodLabel(start time.Time, bucket string) string {
	switch bucket {
	case "week":
		y, w := start.ISOWeek()
		return fmt.Sprintf("%d-W%02d", y, w)
	case "month":
		return start.Format("2006-01")
	}
	return start.Format(time.DateOnly)
}

// summarizePeriods groups workouts into buckets in chronological order. The
// average RPE is weighted by each workout's done sets.
func summarizePeriods(workouts []models.WorkoutRow, bucket string) []PeriodSummary {
	type acc struct {
		sum       PeriodSummary
		rpeWeight float64
		rpeSets   int
	}
	byStart := map[time.Time]*acc{}
	var order []time.Time

	for _, w := range workouts {
		start := periodStart(w.StartedAt, bucket)
		a, ok := byStart[start]
		if !ok {
			a = &acc{sum: PeriodSummary{
				Period: periodLabel(start, bucket),
				Start:  start.Format(time.DateOnly),
			}}
			byStart[start] = a
			order = append(order, start)
		}
		s := w.Summary
		a.sum.Workouts++
		a.sum.DoneSets += s.DoneSets
		a.sum.TotalReps += s.TotalReps
		a.sum.VolumeKg += s.VolumeKg
		a.sum.DurationSec += s.DurationSec
		if s.AvgRPE != nil && s.DoneSets > 0 {
			a.rpeWeight += *s.AvgRPE * float64(s.DoneSets)
			a.rpeSets += s.DoneSets
		}
	}

	slices.SortFunc(order, time.Time.Compare)
	out := make([]PeriodSummary, 0, len(order))
	for _, start := range order {
		a := byStart[start]
		if a.rpeSets > 0 {
			avg := a.rpeWeight / float64(a.rpeSets)
			a.sum.AvgRPE = &avg
		}
		out = append(out, a.sum)
	}
	return out
}
