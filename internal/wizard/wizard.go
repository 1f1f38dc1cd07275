// Package wizard builds a WorkoutPlan from the planning steps: gym,
// equipment, method and exercises. Steps may be set in any order; the draft
// is only validated when a plan is created.
package wizard

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/claude/utegym/internal/models"
)

var (
	ErrNoMethod    = errors.New("no training method chosen")
	ErrNoExercises = errors.New("no exercises chosen")
)

// DraftStore persists the wizard draft between sessions.
type DraftStore interface {
	WizardDraft(ctx context.Context) *models.WizardState
	SetWizardDraft(ctx context.Context, w *models.WizardState) <-chan error
}

// Wizard owns one planning session. It is safe for concurrent use.
type Wizard struct {
	store DraftStore
	now   func() time.Time
	log   *slog.Logger

	mu    sync.Mutex
	state models.WizardState
}

// New creates a Wizard with an empty draft. now may be nil.
func New(store DraftStore, now func() time.Time, log *slog.Logger) *Wizard {
	if now == nil {
		now = time.Now
	}
	return &Wizard{
		store: store,
		now:   now,
		log:   log,
		state: models.WizardState{BodyweightOnly: true},
	}
}

// Resume creates a Wizard seeded from the persisted draft, if any.
func Resume(ctx context.Context, store DraftStore, now func() time.Time, log *slog.Logger) *Wizard {
	w := New(store, now, log)
	if draft := store.WizardDraft(ctx); draft != nil {
		w.state = *draft
		log.Info("resumed wizard draft", "exercises", len(draft.Exercises))
	}
	return w
}

// State returns a copy of the current draft.
func (w *Wizard) State() models.WizardState {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state.Clone()
}

// Dispatch applies a to the draft and persists the result. The channel
// reports the background write and may be ignored.
func (w *Wizard) Dispatch(ctx context.Context, a Action) <-chan error {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.state = Reduce(w.state, a)
	if _, ok := a.(Reset); ok {
		return w.store.SetWizardDraft(ctx, nil)
	}
	draft := w.state.Clone()
	return w.store.SetWizardDraft(ctx, &draft)
}

// SetGym chooses the gym. Equipment is left as it was.
func (w *Wizard) SetGym(ctx context.Context, gym models.GymRef) {
	w.Dispatch(ctx, SetGym{Gym: gym})
}

// SetEquipment records the equipment at hand; see the SetEquipment action.
func (w *Wizard) SetEquipment(ctx context.Context, keys []string, bodyweightOnly bool) {
	w.Dispatch(ctx, SetEquipment{Keys: keys, BodyweightOnly: bodyweightOnly})
}

// SetMethod chooses the training method.
func (w *Wizard) SetMethod(ctx context.Context, m models.Method) {
	w.Dispatch(ctx, SetMethod{Method: m})
}

// SetExercises replaces the candidate exercises and their prescriptions.
func (w *Wizard) SetExercises(ctx context.Context, exercises []models.WizardExercise) {
	w.Dispatch(ctx, SetExercises{Exercises: exercises})
}

// ToggleExercise selects or deselects one exercise by key.
func (w *Wizard) ToggleExercise(ctx context.Context, key string) {
	w.Dispatch(ctx, ToggleExercise{Key: key})
}

// Reset clears the draft, including the persisted copy.
func (w *Wizard) Reset(ctx context.Context) {
	w.Dispatch(ctx, Reset{})
}

// CreatePlan snapshots the draft into a plan stamped with the current time.
func (w *Wizard) CreatePlan() (*models.WorkoutPlan, error) {
	w.mu.Lock()
	state := w.state.Clone()
	w.mu.Unlock()

	plan, err := CreatePlan(state, w.now())
	if err != nil {
		w.log.Info("plan not ready", "reason", err)
		return nil, err
	}
	return plan, nil
}

// Ready reports why a draft cannot become a plan, or nil if it can.
func Ready(s models.WizardState) error {
	if s.Method == nil {
		return ErrNoMethod
	}
	if len(planExercises(s)) == 0 {
		return ErrNoExercises
	}
	return nil
}

// CreatePlan projects a draft into a plan. It has no side effects; two calls
// on the same draft differ only in CreatedAt.
func CreatePlan(s models.WizardState, now time.Time) (*models.WorkoutPlan, error) {
	if err := Ready(s); err != nil {
		return nil, err
	}
	s = s.Clone()

	chosen := planExercises(s)
	exercises := make([]models.PlanExercise, len(chosen))
	for i, ex := range chosen {
		p := ex.Prescription
		if p.Sets <= 0 {
			p.Sets = s.Method.Scheme.Sets
		}
		if len(p.Reps) == 0 && len(s.Method.Scheme.Reps) > 0 {
			p.Reps = append([]int(nil), s.Method.Scheme.Reps...)
		}
		p.Sets = models.ClampSets(p.Sets)
		exercises[i] = models.PlanExercise{Key: ex.Key, Name: ex.Name, Prescription: p}
	}

	return &models.WorkoutPlan{
		Gym:            s.Gym,
		EquipmentKeys:  s.EquipmentKeys,
		BodyweightOnly: s.BodyweightOnly,
		Method:         s.Method,
		Exercises:      exercises,
		CreatedAt:      now,
	}, nil
}

// planExercises returns the selected exercises, or every exercise when none
// is marked selected.
func planExercises(s models.WizardState) []models.WizardExercise {
	var selected []models.WizardExercise
	for _, ex := range s.Exercises {
		if ex.Selected {
			selected = append(selected, ex)
		}
	}
	if len(selected) > 0 {
		return selected
	}
	return s.Exercises
}
