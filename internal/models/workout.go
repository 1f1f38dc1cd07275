package models

import (
	"time"

	"github.com/google/uuid"
)

// Set count bounds for a single exercise, and the RPE scale ceiling.
const (
	MinSets = 1
	MaxSets = 10
	MaxRPE  = 10
)

// GymRef identifies the outdoor gym a workout is planned for.
type GymRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Gym is an outdoor gym location with its fixed equipment.
type Gym struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	Municipality  string   `json:"municipality"`
	Lat           float64  `json:"lat"`
	Lon           float64  `json:"lon"`
	EquipmentKeys []string `json:"equipment_keys"`
}

// Ref returns the lightweight reference stored in plans.
func (g Gym) Ref() GymRef {
	return GymRef{ID: g.ID, Name: g.Name}
}

// MethodScheme is the set/rep formula of a training method.
type MethodScheme struct {
	Sets    int   `json:"sets"`
	Reps    []int `json:"reps,omitempty"`
	WorkSec *int  `json:"work_sec,omitempty"`
	RestSec *int  `json:"rest_sec,omitempty"`
}

// Method is a named training scheme (amrap, emom, pyramid, ...).
type Method struct {
	Key         string       `json:"key"`
	Name        string       `json:"name"`
	Focus       string       `json:"focus,omitempty"`
	Intensity   string       `json:"intensity,omitempty"`
	DurationMin int          `json:"duration_min,omitempty"`
	Scheme      MethodScheme `json:"scheme"`
}

// Exercise is an entry of the exercise catalog.
type Exercise struct {
	Key           string   `json:"key"`
	Name          string   `json:"name"`
	Description   string   `json:"description,omitempty"`
	EquipmentKeys []string `json:"equipment_keys,omitempty"`
	Bodyweight    bool     `json:"bodyweight"`
}

// Prescription is the target volume for one exercise within a plan.
type Prescription struct {
	Sets        int    `json:"sets"`
	Reps        []int  `json:"reps,omitempty"`
	DurationSec *int   `json:"duration_sec,omitempty"`
	Notes       string `json:"notes,omitempty"`
}

// SeedSet returns the set a new log row starts from: the first prescribed
// rep count (if any) and the prescribed duration, not done.
func (p Prescription) SeedSet() Set {
	var s Set
	if len(p.Reps) > 0 {
		s.Reps = intPtr(p.Reps[0])
	}
	if p.DurationSec != nil {
		s.DurationSeconds = intPtr(*p.DurationSec)
	}
	return s
}

// PlanExercise is one exercise of a frozen plan.
type PlanExercise struct {
	Key          string       `json:"key"`
	Name         string       `json:"name,omitempty"`
	Prescription Prescription `json:"prescription"`
}

// WorkoutPlan is the output of the wizard. A run owns its own copy.
type WorkoutPlan struct {
	Gym            *GymRef        `json:"gym"`
	EquipmentKeys  []string       `json:"equipment_keys"`
	BodyweightOnly bool           `json:"bodyweight_only"`
	Method         *Method        `json:"method"`
	Exercises      []PlanExercise `json:"exercises"`
	CreatedAt      time.Time      `json:"created_at"`
}

// Set is one logged set. Unset values serialize as null.
type Set struct {
	Reps            *int     `json:"reps"`
	LoadKg          *float64 `json:"load_kg"`
	RPE             *float64 `json:"rpe"`
	DurationSeconds *int     `json:"duration_seconds"`
	Done            bool     `json:"done"`
}

// ExerciseLog holds the sets logged for the plan exercise at the same index.
type ExerciseLog struct {
	ExerciseKey string `json:"exercise_key"`
	Sets        []Set  `json:"sets"`
}

// WorkoutRunState is the active workout session.
// Logs is index-aligned with Plan.Exercises.
type WorkoutRunState struct {
	ClientKey uuid.UUID     `json:"client_key"`
	SessionID string        `json:"session_id,omitempty"`
	Plan      WorkoutPlan   `json:"plan"`
	StartedAt time.Time     `json:"started_at"`
	Logs      []ExerciseLog `json:"logs"`
	Notes     string        `json:"notes"`
}

// LocalIDPrefix marks ids that were generated on the device and have not
// been acknowledged by the server.
const LocalIDPrefix = "local-"

// PendingWorkout is a finished run that still has to reach the server.
type PendingWorkout struct {
	ID         string          `json:"id"`
	UserID     *string         `json:"user_id"`
	Run        WorkoutRunState `json:"run"`
	FinishedAt time.Time       `json:"finished_at"`
	QueuedAt   time.Time       `json:"queued_at"`
}

// NewLog seeds an exercise log from a plan exercise.
func NewLog(ex PlanExercise) ExerciseLog {
	n := ClampSets(ex.Prescription.Sets)
	sets := make([]Set, n)
	for i := range sets {
		sets[i] = ex.Prescription.SeedSet()
	}
	return ExerciseLog{ExerciseKey: ex.Key, Sets: sets}
}

// Clone returns a deep copy of the plan.
func (p WorkoutPlan) Clone() WorkoutPlan {
	out := p
	if p.Gym != nil {
		g := *p.Gym
		out.Gym = &g
	}
	out.EquipmentKeys = cloneStrings(p.EquipmentKeys)
	if p.Method != nil {
		m := p.Method.Clone()
		out.Method = &m
	}
	if p.Exercises != nil {
		out.Exercises = make([]PlanExercise, len(p.Exercises))
		for i, ex := range p.Exercises {
			ex.Prescription = ex.Prescription.Clone()
			out.Exercises[i] = ex
		}
	}
	return out
}

// Clone returns a deep copy of the method.
func (m Method) Clone() Method {
	out := m
	out.Scheme.Reps = cloneInts(m.Scheme.Reps)
	if m.Scheme.WorkSec != nil {
		out.Scheme.WorkSec = intPtr(*m.Scheme.WorkSec)
	}
	if m.Scheme.RestSec != nil {
		out.Scheme.RestSec = intPtr(*m.Scheme.RestSec)
	}
	return out
}

// Clone returns a deep copy of the prescription.
func (p Prescription) Clone() Prescription {
	out := p
	out.Reps = cloneInts(p.Reps)
	if p.DurationSec != nil {
		out.DurationSec = intPtr(*p.DurationSec)
	}
	return out
}

// Clone returns a deep copy of the set.
func (s Set) Clone() Set {
	out := s
	if s.Reps != nil {
		out.Reps = intPtr(*s.Reps)
	}
	if s.LoadKg != nil {
		v := *s.LoadKg
		out.LoadKg = &v
	}
	if s.RPE != nil {
		v := *s.RPE
		out.RPE = &v
	}
	if s.DurationSeconds != nil {
		out.DurationSeconds = intPtr(*s.DurationSeconds)
	}
	return out
}

// Clone returns a deep copy of the run.
func (r WorkoutRunState) Clone() WorkoutRunState {
	out := r
	out.Plan = r.Plan.Clone()
	if r.Logs != nil {
		out.Logs = make([]ExerciseLog, len(r.Logs))
		for i, l := range r.Logs {
			sets := make([]Set, len(l.Sets))
			for j, s := range l.Sets {
				sets[j] = s.Clone()
			}
			out.Logs[i] = ExerciseLog{ExerciseKey: l.ExerciseKey, Sets: sets}
		}
	}
	return out
}

// ClampSets bounds a set count to [MinSets, MaxSets].
func ClampSets(n int) int {
	if n < MinSets {
		return MinSets
	}
	if n > MaxSets {
		return MaxSets
	}
	return n
}

func intPtr(v int) *int { return &v }

func cloneInts(in []int) []int {
	if in == nil {
		return nil
	}
	out := make([]int, len(in))
	copy(out, in)
	return out
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}
