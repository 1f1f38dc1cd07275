package storage

import (
	"strings"
	"testing"

	"github.com/claude/utegym/internal/gateway"
	"github.com/claude/utegym/internal/models"
	"github.com/google/uuid"
)

// TestExerciseQuery verifies filter clauses and parameter numbering.
func TestExerciseQuery(t *testing.T) {
	tests := []struct {
		name     string
		filter   gateway.ExerciseFilter
		contains []string
		args     int
	}{
		{
			name:     "no filter",
			filter:   gateway.ExerciseFilter{},
			contains: []string{"FROM exercises ORDER BY name"},
		},
		{
			name:     "gym",
			filter:   gateway.ExerciseFilter{GymID: "g1"},
			contains: []string{"WHERE (bodyweight OR equipment_keys <@ (SELECT equipment_keys FROM gyms WHERE id = $1))"},
			args:     1,
		},
		{
			name:   "all",
			filter: gateway.ExerciseFilter{GymID: "g1", EquipmentKeys: []string{"rings"}, Search: " row "},
			contains: []string{
				"id = $1",
				"equipment_keys <@ $2",
				"name ILIKE '%' || $3 || '%'",
				" AND ",
			},
			args: 3,
		},
		{
			name:     "blank search ignored",
			filter:   gateway.ExerciseFilter{Search: "   "},
			contains: []string{"FROM exercises ORDER BY name"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			query, args := exerciseQuery(tt.filter)
			for _, c := range tt.contains {
				if !strings.Contains(query, c) {
					t.Errorf("query %q does not contain %q", query, c)
				}
			}
			if len(args) != tt.args {
				t.Errorf("args = %v, want %d", args, tt.args)
			}
		})
	}

	_, args := exerciseQuery(gateway.ExerciseFilter{Search: " row "})
	if args[0] != "row" {
		t.Errorf("search arg = %q, want trimmed", args[0])
	}
}

// TestExerciseLogInsert verifies the multi-row insert and that nil arrays
// are sent as empty arrays.
func TestExerciseLogInsert(t *testing.T) {
	id := uuid.New()
	rpe := 7.5
	rows := []models.ExerciseLogRow{
		{Position: 0, ExerciseKey: "pushup", SetCount: 2, Reps: []int{10, 8}, Loads: []float64{0, 0}, AvgRPE: &rpe},
		{Position: 1, ExerciseKey: "plank", SetCount: 0},
	}
	query, args := exerciseLogInsert(id, rows)

	if !strings.HasSuffix(query, "($1,$2,$3,$4,$5,$6,$7),($8,$9,$10,$11,$12,$13,$14)") {
		t.Errorf("query = %q", query)
	}
	if len(args) != 14 {
		t.Fatalf("args = %d, want 14", len(args))
	}
	if args[0] != id || args[7] != id {
		t.Error("workout id not bound on every row")
	}
	if reps, ok := args[11].([]int); !ok || reps == nil {
		t.Errorf("reps arg = %#v, want empty slice", args[11])
	}
	if loads, ok := args[12].([]float64); !ok || loads == nil {
		t.Errorf("loads arg = %#v, want empty slice", args[12])
	}
}

// TestPayloadLogRows verifies a finished snapshot yields one row per
// exercise, so closing a session stores the same rows as logging it whole.
func TestPayloadLogRows(t *testing.T) {
	reps, load := 8, 12.5
	p := gateway.WorkoutPayload{
		Plan: models.WorkoutPlan{Exercises: []models.PlanExercise{{Key: "dip"}, {Key: "row"}}},
		Logs: []models.ExerciseLog{
			{ExerciseKey: "dip", Sets: []models.Set{{Reps: &reps, LoadKg: &load, Done: true}, {}}},
			{ExerciseKey: "row", Sets: []models.Set{{Reps: &reps}}},
		},
	}
	rows := payloadLogRows(p)
	if len(rows) != 2 {
		t.Fatalf("rows = %+v, want 2", rows)
	}
	if rows[0].ExerciseKey != "dip" || rows[0].SetCount != 2 || rows[0].Reps[0] != 8 || rows[0].Loads[0] != 12.5 {
		t.Errorf("first row = %+v", rows[0])
	}
	if rows[1].Position != 1 || rows[1].ExerciseKey != "row" {
		t.Errorf("second row = %+v", rows[1])
	}
}
