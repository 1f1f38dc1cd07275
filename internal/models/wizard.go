package models

// WizardExercise is a candidate exercise in the planning wizard.
type WizardExercise struct {
	Key          string       `json:"key"`
	Name         string       `json:"name,omitempty"`
	Selected     bool         `json:"selected"`
	Prescription Prescription `json:"prescription"`
}

// WizardState is the draft being built by the planning wizard. Fields are
// independent; readiness is only checked when a plan is created.
type WizardState struct {
	Gym            *GymRef          `json:"gym"`
	EquipmentKeys  []string         `json:"equipment_keys"`
	BodyweightOnly bool             `json:"bodyweight_only"`
	Method         *Method          `json:"method"`
	Exercises      []WizardExercise `json:"exercises"`
}

// Clone returns a deep copy of the wizard state.
func (w WizardState) Clone() WizardState {
	out := w
	if w.Gym != nil {
		g := *w.Gym
		out.Gym = &g
	}
	out.EquipmentKeys = cloneStrings(w.EquipmentKeys)
	if w.Method != nil {
		m := w.Method.Clone()
		out.Method = &m
	}
	if w.Exercises != nil {
		out.Exercises = make([]WizardExercise, len(w.Exercises))
		for i, ex := range w.Exercises {
			ex.Prescription = ex.Prescription.Clone()
			out.Exercises[i] = ex
		}
	}
	return out
}
