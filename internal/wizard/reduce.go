package wizard

import (
	"github.com/claude/utegym/internal/models"
)

// Action is one wizard transition.
type Action interface {
	apply(s *models.WizardState)
}

// Reduce returns the draft after applying a. The input is not modified.
func Reduce(s models.WizardState, a Action) models.WizardState {
	out := s.Clone()
	a.apply(&out)
	return out
}

// SetGym sets the chosen gym.
type SetGym struct{ Gym models.GymRef }

func (a SetGym) apply(s *models.WizardState) {
	g := a.Gym
	s.Gym = &g
}

// SetEquipment replaces the available equipment. Choosing bodyweight only
// clears the keys; an empty key set implies bodyweight only.
type SetEquipment struct {
	Keys           []string
	BodyweightOnly bool
}

func (a SetEquipment) apply(s *models.WizardState) {
	if a.BodyweightOnly {
		s.EquipmentKeys = []string{}
		s.BodyweightOnly = true
		return
	}
	s.EquipmentKeys = models.NormalizeKeys(a.Keys)
	s.BodyweightOnly = len(s.EquipmentKeys) == 0
}

// SetMethod sets the training method. The method is copied.
type SetMethod struct{ Method models.Method }

func (a SetMethod) apply(s *models.WizardState) {
	m := a.Method.Clone()
	s.Method = &m
}

// SetExercises replaces the exercise list with a copy of Exercises.
type SetExercises struct{ Exercises []models.WizardExercise }

func (a SetExercises) apply(s *models.WizardState) {
	s.Exercises = models.WizardState{Exercises: a.Exercises}.Clone().Exercises
}

// ToggleExercise flips the selected flag of the exercise with Key.
type ToggleExercise struct{ Key string }

func (a ToggleExercise) apply(s *models.WizardState) {
	for i := range s.Exercises {
		if s.Exercises[i].Key == a.Key {
			s.Exercises[i].Selected = !s.Exercises[i].Selected
		}
	}
}

// Reset returns the draft to its initial, bodyweight-only state.
type Reset struct{}

func (Reset) apply(s *models.WizardState) {
	*s = models.WizardState{BodyweightOnly: true}
}
