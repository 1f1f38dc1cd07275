package models

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// ErrInvalidRecord is returned when a persisted or remote record cannot be
// repaired into a usable value.
var ErrInvalidRecord = errors.New("invalid record")

// NormalizeRun validates a decoded run and repairs what can be repaired:
// set counts are clamped, logs are padded or truncated to the plan, and
// per-set values are bounded. Runs without a start time or exercises are
// rejected.
func NormalizeRun(r *WorkoutRunState) error {
	if r == nil {
		return fmt.Errorf("%w: nil run", ErrInvalidRecord)
	}
	if r.StartedAt.IsZero() {
		return fmt.Errorf("%w: run has no start time", ErrInvalidRecord)
	}
	if len(r.Plan.Exercises) == 0 {
		return fmt.Errorf("%w: run plan has no exercises", ErrInvalidRecord)
	}

	normalizePlan(&r.Plan)

	if len(r.Logs) > len(r.Plan.Exercises) {
		r.Logs = r.Logs[:len(r.Plan.Exercises)]
	}
	for i := len(r.Logs); i < len(r.Plan.Exercises); i++ {
		r.Logs = append(r.Logs, NewLog(r.Plan.Exercises[i]))
	}

	for i := range r.Logs {
		ex := r.Plan.Exercises[i]
		log := &r.Logs[i]
		if log.ExerciseKey == "" {
			log.ExerciseKey = ex.Key
		}
		want := ex.Prescription.Sets
		if len(log.Sets) > want {
			log.Sets = log.Sets[:want]
		}
		for len(log.Sets) < want {
			log.Sets = append(log.Sets, ex.Prescription.SeedSet())
		}
		for j := range log.Sets {
			normalizeSet(&log.Sets[j])
		}
	}
	return nil
}

// NormalizePending validates a decoded pending workout.
func NormalizePending(p *PendingWorkout) error {
	if p == nil || p.ID == "" {
		return fmt.Errorf("%w: pending workout has no id", ErrInvalidRecord)
	}
	if err := NormalizeRun(&p.Run); err != nil {
		return fmt.Errorf("pending %s: %w", p.ID, err)
	}
	if p.UserID != nil && strings.TrimSpace(*p.UserID) == "" {
		p.UserID = nil
	}
	if p.FinishedAt.IsZero() {
		p.FinishedAt = p.QueuedAt
	}
	if p.FinishedAt.IsZero() || p.FinishedAt.Before(p.Run.StartedAt) {
		p.FinishedAt = p.Run.StartedAt
	}
	return nil
}

// NormalizeWizard repairs a decoded wizard draft. A draft is never rejected;
// the worst case is an empty draft.
func NormalizeWizard(w *WizardState) {
	if w == nil {
		return
	}
	w.EquipmentKeys = NormalizeKeys(w.EquipmentKeys)
	if len(w.EquipmentKeys) == 0 {
		w.BodyweightOnly = true
	}
	if w.Method != nil && w.Method.Key == "" {
		w.Method = nil
	}
	exercises := w.Exercises[:0]
	for _, ex := range w.Exercises {
		if ex.Key == "" {
			continue
		}
		normalizePrescription(&ex.Prescription)
		exercises = append(exercises, ex)
	}
	w.Exercises = exercises
}

// NormalizeKeys trims, deduplicates and sorts a set of identifiers.
func NormalizeKeys(keys []string) []string {
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		k = strings.TrimSpace(k)
		if k != "" {
			out = append(out, k)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}

func normalizePlan(p *WorkoutPlan) {
	p.EquipmentKeys = NormalizeKeys(p.EquipmentKeys)
	for i := range p.Exercises {
		normalizePrescription(&p.Exercises[i].Prescription)
	}
}

func normalizePrescription(p *Prescription) {
	p.Sets = ClampSets(p.Sets)
	for i, r := range p.Reps {
		if r < 0 {
			p.Reps[i] = 0
		}
	}
	if p.DurationSec != nil && *p.DurationSec < 0 {
		p.DurationSec = nil
	}
}

func normalizeSet(s *Set) {
	if s.Reps != nil && *s.Reps < 0 {
		s.Reps = intPtr(0)
	}
	if s.LoadKg != nil && *s.LoadKg < 0 {
		s.LoadKg = nil
	}
	if s.RPE != nil {
		v := ClampRPE(*s.RPE)
		s.RPE = &v
	}
	if s.DurationSeconds != nil && *s.DurationSeconds < 0 {
		s.DurationSeconds = nil
	}
}

// ClampRPE bounds a perceived-exertion score to [0, MaxRPE].
func ClampRPE(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > MaxRPE {
		return MaxRPE
	}
	return v
}
