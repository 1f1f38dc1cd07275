// Package gateway defines the remote API the device talks to and an HTTP
// implementation of it.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/claude/utegym/internal/models"
	"github.com/google/uuid"
)

// ErrUnauthorized is returned when the server rejects the caller's
// credentials. The user has to log in before saving.
var ErrUnauthorized = errors.New("not logged in")

// Gateway accepts workouts from the device. Every write carries the run's
// client key; the server treats repeats of the same key as the same workout.
type Gateway interface {
	CreateSession(ctx context.Context, p WorkoutPayload) (string, error)
	FinishSession(ctx context.Context, sessionID string, p WorkoutPayload) error
	LogCompletedWorkout(ctx context.Context, p WorkoutPayload) (string, error)
	InsertWorkout(ctx context.Context, h WorkoutHeader) (string, error)
	InsertExerciseLogs(ctx context.Context, workoutID string, rows []models.ExerciseLogRow) error
}

// ReferenceSource serves catalog data and workout history.
type ReferenceSource interface {
	ListGyms(ctx context.Context, f GymFilter) ([]models.Gym, error)
	ListExercises(ctx context.Context, f ExerciseFilter) ([]models.Exercise, error)
	ListMethods(ctx context.Context) ([]models.Method, error)
	ListWorkouts(ctx context.Context, f WorkoutFilter) ([]models.WorkoutRow, error)
}

// WorkoutPayload is a full session snapshot: plan, logs and timestamps.
type WorkoutPayload struct {
	ClientKey  uuid.UUID             `json:"client_key"`
	UserID     string                `json:"user_id"`
	GymID      *string               `json:"gym_id"`
	Plan       models.WorkoutPlan    `json:"plan"`
	Logs       []models.ExerciseLog  `json:"logs"`
	Notes      string                `json:"notes"`
	StartedAt  time.Time             `json:"started_at"`
	FinishedAt *time.Time            `json:"finished_at"`
	Metadata   models.WorkoutSummary `json:"metadata"`
}

// WorkoutHeader is the summary row written before per-exercise rows.
type WorkoutHeader struct {
	ClientKey  uuid.UUID             `json:"client_key"`
	UserID     string                `json:"user_id"`
	GymID      *string               `json:"gym_id"`
	StartedAt  time.Time             `json:"started_at"`
	FinishedAt time.Time             `json:"finished_at"`
	Notes      string                `json:"notes"`
	Metadata   models.WorkoutSummary `json:"metadata"`
}

type GymFilter struct {
	Search       string
	Municipality string
}

type ExerciseFilter struct {
	GymID         string
	Search        string
	EquipmentKeys []string
}

type WorkoutFilter struct {
	UserID string
	Start  time.Time
	End    time.Time
}

// NewPayload builds a payload from a run. finishedAt is nil for a session
// that is still in progress.
func NewPayload(run models.WorkoutRunState, userID string, finishedAt *time.Time) WorkoutPayload {
	run = run.Clone()
	p := WorkoutPayload{
		ClientKey:  run.ClientKey,
		UserID:     userID,
		GymID:      gymID(run.Plan),
		Plan:       run.Plan,
		Logs:       run.Logs,
		Notes:      run.Notes,
		StartedAt:  run.StartedAt,
		FinishedAt: finishedAt,
	}
	if finishedAt != nil {
		p.Metadata = models.Summarize(run, *finishedAt)
	} else {
		p.Metadata = models.Summarize(run, run.StartedAt)
	}
	return p
}

// NewHeader builds the header for a queued workout.
func NewHeader(p models.PendingWorkout) (WorkoutHeader, error) {
	if p.UserID == nil {
		return WorkoutHeader{}, fmt.Errorf("pending %s: %w", p.ID, ErrUnauthorized)
	}
	return WorkoutHeader{
		ClientKey:  p.Run.ClientKey,
		UserID:     *p.UserID,
		GymID:      gymID(p.Run.Plan),
		StartedAt:  p.Run.StartedAt,
		FinishedAt: p.FinishedAt,
		Notes:      p.Run.Notes,
		Metadata:   models.Summarize(p.Run, p.FinishedAt),
	}, nil
}

func gymID(plan models.WorkoutPlan) *string {
	if plan.Gym == nil || plan.Gym.ID == "" {
		return nil
	}
	id := plan.Gym.ID
	return &id
}
