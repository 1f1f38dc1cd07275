package wizard

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"reflect"
	"testing"
	"time"

	"github.com/claude/utegym/internal/localstore"
	"github.com/claude/utegym/internal/models"
	"github.com/spf13/afero"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newStore() (*localstore.Store, localstore.KV) {
	kv := localstore.NewFileKV(afero.NewMemMapFs(), "/state")
	return localstore.New(kv, testLogger()), kv
}

// stepClock returns a clock that advances one second per call.
func stepClock() func() time.Time {
	t := time.Date(2026, 7, 1, 6, 0, 0, 0, time.UTC)
	return func() time.Time {
		t = t.Add(time.Second)
		return t
	}
}

func amrap() models.Method {
	return models.Method{Key: "amrap", Name: "AMRAP", Scheme: models.MethodScheme{Sets: 3}}
}

func pushup() models.WizardExercise {
	return models.WizardExercise{
		Key:          "pushup",
		Prescription: models.Prescription{Sets: 3, Reps: []int{10, 10, 10}},
	}
}

// TestReady verifies the readiness predicate for each missing field.
func TestReady(t *testing.T) {
	m := amrap()
	tests := []struct {
		name  string
		state models.WizardState
		want  error
	}{
		{"empty", models.WizardState{}, ErrNoMethod},
		{"no method", models.WizardState{Exercises: []models.WizardExercise{pushup()}}, ErrNoMethod},
		{"no exercises", models.WizardState{Method: &m}, ErrNoExercises},
		{"ready", models.WizardState{Method: &m, Exercises: []models.WizardExercise{pushup()}}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := Ready(tt.state); !errors.Is(err, tt.want) {
				t.Errorf("Ready = %v, want %v", err, tt.want)
			}
		})
	}
}

// TestCreatePlanExample verifies the amrap/pushup scenario produces a
// one-exercise plan with the prescription intact.
func TestCreatePlanExample(t *testing.T) {
	m := amrap()
	state := models.WizardState{Method: &m, Exercises: []models.WizardExercise{pushup()}}

	plan, err := CreatePlan(state, time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(plan.Exercises) != 1 {
		t.Fatalf("exercises = %d, want 1", len(plan.Exercises))
	}
	p := plan.Exercises[0].Prescription
	if p.Sets != 3 || !reflect.DeepEqual(p.Reps, []int{10, 10, 10}) {
		t.Errorf("prescription = %+v, want 3 x [10 10 10]", p)
	}
}

// TestCreatePlanIdempotentShape verifies two plans from the same draft agree
// on everything but the timestamp.
func TestCreatePlanIdempotentShape(t *testing.T) {
	ctx := context.Background()
	store, _ := newStore()
	w := New(store, stepClock(), testLogger())
	w.SetGym(ctx, models.GymRef{ID: "g1", Name: "Ängby"})
	w.SetEquipment(ctx, []string{"pullup_bar", "parallel_bars"}, false)
	w.SetMethod(ctx, amrap())
	w.SetExercises(ctx, []models.WizardExercise{pushup(), {Key: "pullup", Prescription: models.Prescription{Sets: 4}}})

	a, err := w.CreatePlan()
	if err != nil {
		t.Fatal(err)
	}
	b, err := w.CreatePlan()
	if err != nil {
		t.Fatal(err)
	}
	if a.CreatedAt.Equal(b.CreatedAt) {
		t.Error("timestamps should be read on each call")
	}
	if !reflect.DeepEqual(a.Gym, b.Gym) || !reflect.DeepEqual(a.EquipmentKeys, b.EquipmentKeys) ||
		!reflect.DeepEqual(a.Method, b.Method) || !reflect.DeepEqual(a.Exercises, b.Exercises) {
		t.Errorf("plans differ:\n%+v\n%+v", a, b)
	}

	// Plans are snapshots.
	a.Exercises[0].Prescription.Reps[0] = 99
	if w.State().Exercises[0].Prescription.Reps[0] != 10 {
		t.Error("plan shares memory with the draft")
	}
}

// TestCreatePlanNotReady verifies the nil result for an incomplete draft.
func TestCreatePlanNotReady(t *testing.T) {
	store, _ := newStore()
	w := New(store, nil, testLogger())
	plan, err := w.CreatePlan()
	if plan != nil || !errors.Is(err, ErrNoMethod) {
		t.Errorf("CreatePlan = %v, %v; want nil, ErrNoMethod", plan, err)
	}
}

// TestCreatePlanSelection verifies selected exercises win, defaults come from
// the method scheme, and set counts are clamped.
func TestCreatePlanSelection(t *testing.T) {
	m := models.Method{Key: "pyramid", Scheme: models.MethodScheme{Sets: 4, Reps: []int{5, 10, 15, 10}}}
	state := models.WizardState{
		Method: &m,
		Exercises: []models.WizardExercise{
			{Key: "squat", Selected: true},
			{Key: "dip"},
			{Key: "row", Selected: true, Prescription: models.Prescription{Sets: 25}},
		},
	}
	plan, err := CreatePlan(state, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if len(plan.Exercises) != 2 || plan.Exercises[0].Key != "squat" || plan.Exercises[1].Key != "row" {
		t.Fatalf("exercises = %+v, want squat,row", plan.Exercises)
	}
	squat := plan.Exercises[0].Prescription
	if squat.Sets != 4 || !reflect.DeepEqual(squat.Reps, []int{5, 10, 15, 10}) {
		t.Errorf("squat = %+v, want method defaults", squat)
	}
	if plan.Exercises[1].Prescription.Sets != models.MaxSets {
		t.Errorf("row sets = %d, want %d", plan.Exercises[1].Prescription.Sets, models.MaxSets)
	}
}

// TestSetEquipment verifies key normalization and the bodyweight flag.
func TestSetEquipment(t *testing.T) {
	s := Reduce(models.WizardState{}, SetEquipment{Keys: []string{"rings", "bars", "rings"}})
	if !reflect.DeepEqual(s.EquipmentKeys, []string{"bars", "rings"}) || s.BodyweightOnly {
		t.Errorf("state = %+v", s)
	}
	s = Reduce(s, SetEquipment{Keys: []string{"bars"}, BodyweightOnly: true})
	if len(s.EquipmentKeys) != 0 || !s.BodyweightOnly {
		t.Errorf("bodyweight only: state = %+v", s)
	}
	s = Reduce(s, SetEquipment{})
	if !s.BodyweightOnly {
		t.Error("no equipment should imply bodyweight only")
	}
}

// TestReduceDoesNotMutateInput verifies the reducer is pure.
func TestReduceDoesNotMutateInput(t *testing.T) {
	in := models.WizardState{Exercises: []models.WizardExercise{pushup()}}
	out := Reduce(in, ToggleExercise{Key: "pushup"})
	if in.Exercises[0].Selected {
		t.Error("input was mutated")
	}
	if !out.Exercises[0].Selected {
		t.Error("toggle not applied")
	}
}

// TestDraftResumeAndReset verifies that an interrupted session resumes from
// the persisted draft and that Reset clears it.
func TestDraftResumeAndReset(t *testing.T) {
	ctx := context.Background()
	store, kv := newStore()
	w := New(store, nil, testLogger())
	w.SetMethod(ctx, amrap())
	w.SetExercises(ctx, []models.WizardExercise{pushup()})
	if err := store.Flush(ctx); err != nil {
		t.Fatal(err)
	}

	resumed := Resume(ctx, localstore.New(kv, testLogger()), nil, testLogger())
	if err := Ready(resumed.State()); err != nil {
		t.Fatalf("resumed draft not ready: %v", err)
	}

	resumed.Reset(ctx)
	w.Reset(ctx)
	if err := store.Flush(ctx); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := kv.Get(ctx, localstore.KeyWizard); ok {
		t.Error("draft should be removed after Reset")
	}
	if resumed.State().Method != nil {
		t.Error("state should be empty after Reset")
	}
}
