package models

import (
	"time"

	"github.com/google/uuid"
)

// WorkoutSummary is the metadata sent with a finished workout header.
type WorkoutSummary struct {
	MethodKey     string   `json:"method_key,omitempty"`
	ExerciseCount int      `json:"exercise_count"`
	TotalSets     int      `json:"total_sets"`
	DoneSets      int      `json:"done_sets"`
	TotalReps     int      `json:"total_reps"`
	VolumeKg      float64  `json:"volume_kg"`
	AvgRPE        *float64 `json:"avg_rpe"`
	DurationSec   int      `json:"duration_sec"`
	Bodyweight    bool     `json:"bodyweight_only"`
}

// Summarize computes the header metadata for a run finished at the given time.
// Only sets marked done contribute reps, volume and RPE.
func Summarize(r WorkoutRunState, finishedAt time.Time) WorkoutSummary {
	s := WorkoutSummary{
		ExerciseCount: len(r.Plan.Exercises),
		Bodyweight:    r.Plan.BodyweightOnly,
	}
	if r.Plan.Method != nil {
		s.MethodKey = r.Plan.Method.Key
	}
	if d := finishedAt.Sub(r.StartedAt); d > 0 {
		s.DurationSec = int(d / time.Second)
	}

	var rpeSum float64
	var rpeCount int
	for _, l := range r.Logs {
		for _, set := range l.Sets {
			s.TotalSets++
			if !set.Done {
				continue
			}
			s.DoneSets++
			reps := 0
			if set.Reps != nil {
				reps = *set.Reps
			}
			s.TotalReps += reps
			if set.LoadKg != nil {
				s.VolumeKg += *set.LoadKg * float64(reps)
			}
			if set.RPE != nil {
				rpeSum += *set.RPE
				rpeCount++
			}
		}
	}
	if rpeCount > 0 {
		avg := rpeSum / float64(rpeCount)
		s.AvgRPE = &avg
	}
	return s
}

// ExerciseLogRow is one per-exercise row stored against a workout.
type ExerciseLogRow struct {
	WorkoutID   uuid.UUID `json:"workout_id"`
	Position    int       `json:"position"`
	ExerciseKey string    `json:"exercise_key"`
	SetCount    int       `json:"set_count"`
	Reps        []int     `json:"reps"`
	Loads       []float64 `json:"loads"`
	AvgRPE      *float64  `json:"avg_rpe"`
}

// ExerciseLogRows flattens the run's logs into rows in plan order. Unset
// reps and loads are sent as zero.
func ExerciseLogRows(r WorkoutRunState) []ExerciseLogRow {
	rows := make([]ExerciseLogRow, 0, len(r.Logs))
	for i, l := range r.Logs {
		row := ExerciseLogRow{
			Position:    i,
			ExerciseKey: l.ExerciseKey,
			SetCount:    len(l.Sets),
			Reps:        make([]int, len(l.Sets)),
			Loads:       make([]float64, len(l.Sets)),
		}
		var rpeSum float64
		var rpeCount int
		for j, s := range l.Sets {
			if s.Reps != nil {
				row.Reps[j] = *s.Reps
			}
			if s.LoadKg != nil {
				row.Loads[j] = *s.LoadKg
			}
			if s.RPE != nil {
				rpeSum += *s.RPE
				rpeCount++
			}
		}
		if rpeCount > 0 {
			avg := rpeSum / float64(rpeCount)
			row.AvgRPE = &avg
		}
		rows = append(rows, row)
	}
	return rows
}

// WorkoutRow is a stored workout session as returned by the server.
type WorkoutRow struct {
	ID         uuid.UUID      `json:"id"`
	ClientKey  uuid.UUID      `json:"client_key"`
	UserID     string         `json:"user_id"`
	GymID      *string        `json:"gym_id"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt *time.Time     `json:"finished_at"`
	Notes      string         `json:"notes"`
	Summary    WorkoutSummary `json:"summary"`
}
