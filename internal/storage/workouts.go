package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/claude/utegym/internal/gateway"
	"github.com/claude/utegym/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Every write upserts on client_key, so a device retrying the same run gets
// the same row back. plan, logs and finished_at are only overwritten by
// non-null values.
const upsertSessionSQL = `
	INSERT INTO workout_sessions (client_key, user_id, gym_id, plan, logs, notes, started_at, finished_at, metadata)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	ON CONFLICT (client_key) DO UPDATE SET
		gym_id      = EXCLUDED.gym_id,
		plan        = COALESCE(EXCLUDED.plan, workout_sessions.plan),
		logs        = COALESCE(EXCLUDED.logs, workout_sessions.logs),
		notes       = EXCLUDED.notes,
		finished_at = COALESCE(EXCLUDED.finished_at, workout_sessions.finished_at),
		metadata    = EXCLUDED.metadata,
		updated_at  = NOW()
	WHERE workout_sessions.user_id = EXCLUDED.user_id
	RETURNING id`

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func upsertSession(ctx context.Context, q querier, userID string, p gateway.WorkoutPayload, withBody bool) (uuid.UUID, error) {
	var plan, logs any
	if withBody {
		plan, logs = p.Plan, p.Logs
	}
	var id uuid.UUID
	err := q.QueryRow(ctx, upsertSessionSQL,
		p.ClientKey, userID, p.GymID, plan, logs, p.Notes, p.StartedAt, p.FinishedAt, p.Metadata,
	).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, fmt.Errorf("session %s: %w", p.ClientKey, ErrConflict)
	}
	if err != nil {
		return uuid.Nil, fmt.Errorf("upserting session %s: %w", p.ClientKey, err)
	}
	return id, nil
}

// UpsertSession stores a session snapshot and returns its id.
func (db *DB) UpsertSession(ctx context.Context, userID string, p gateway.WorkoutPayload) (uuid.UUID, error) {
	return upsertSession(ctx, db.Pool, userID, p, true)
}

// UpsertWorkoutHeader stores the summary row of a workout replayed from a
// device queue. An existing plan and logs are kept.
func (db *DB) UpsertWorkoutHeader(ctx context.Context, userID string, h gateway.WorkoutHeader) (uuid.UUID, error) {
	finished := h.FinishedAt
	p := gateway.WorkoutPayload{
		ClientKey:  h.ClientKey,
		GymID:      h.GymID,
		Notes:      h.Notes,
		StartedAt:  h.StartedAt,
		FinishedAt: &finished,
		Metadata:   h.Metadata,
	}
	return upsertSession(ctx, db.Pool, userID, p, false)
}

// FinishSession closes an open session with its final snapshot and writes
// its exercise rows in the same transaction.
func (db *DB) FinishSession(ctx context.Context, id uuid.UUID, userID string, p gateway.WorkoutPayload) error {
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE workout_sessions SET
			plan = $3, logs = $4, notes = $5, finished_at = $6, metadata = $7, updated_at = NOW()
		WHERE id = $1 AND user_id = $2`,
		id, userID, p.Plan, p.Logs, p.Notes, p.FinishedAt, p.Metadata)
	if err != nil {
		return fmt.Errorf("finishing session %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	if err := replaceLogs(ctx, tx, id, payloadLogRows(p)); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing session %s: %w", id, err)
	}
	return nil
}

// LogCompletedWorkout stores a finished run and its exercise rows in one
// transaction.
func (db *DB) LogCompletedWorkout(ctx context.Context, userID string, p gateway.WorkoutPayload) (uuid.UUID, error) {
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return uuid.Nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	id, err := upsertSession(ctx, tx, userID, p, true)
	if err != nil {
		return uuid.Nil, err
	}
	if err := replaceLogs(ctx, tx, id, payloadLogRows(p)); err != nil {
		return uuid.Nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return uuid.Nil, fmt.Errorf("committing workout: %w", err)
	}
	return id, nil
}

// payloadLogRows derives the exercise rows of a full snapshot.
func payloadLogRows(p gateway.WorkoutPayload) []models.ExerciseLogRow {
	return models.ExerciseLogRows(models.WorkoutRunState{Plan: p.Plan, Logs: p.Logs})
}

// ReplaceExerciseLogs swaps the exercise rows of a workout for rows. It
// returns ErrNotFound when the workout is not the user's.
func (db *DB) ReplaceExerciseLogs(ctx context.Context, workoutID uuid.UUID, userID string, rows []models.ExerciseLogRow) error {
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var owned bool
	err = tx.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM workout_sessions WHERE id = $1 AND user_id = $2)`,
		workoutID, userID).Scan(&owned)
	if err != nil {
		return fmt.Errorf("checking workout %s: %w", workoutID, err)
	}
	if !owned {
		return fmt.Errorf("workout %s: %w", workoutID, ErrNotFound)
	}
	if err := replaceLogs(ctx, tx, workoutID, rows); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing exercise logs: %w", err)
	}
	return nil
}

func replaceLogs(ctx context.Context, tx pgx.Tx, workoutID uuid.UUID, rows []models.ExerciseLogRow) error {
	if _, err := tx.Exec(ctx, `DELETE FROM exercise_logs WHERE workout_id = $1`, workoutID); err != nil {
		return fmt.Errorf("clearing exercise logs: %w", err)
	}
	if len(rows) == 0 {
		return nil
	}
	query, args := exerciseLogInsert(workoutID, rows)
	if _, err := tx.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("inserting exercise logs: %w", err)
	}
	return nil
}

// exerciseLogInsert builds one multi-row INSERT for rows.
func exerciseLogInsert(workoutID uuid.UUID, rows []models.ExerciseLogRow) (string, []any) {
	query := `INSERT INTO exercise_logs (workout_id, position, exercise_key, set_count, reps, loads, avg_rpe) VALUES `
	args := make([]any, 0, len(rows)*7)
	valueStrings := make([]string, 0, len(rows))

	for i, r := range rows {
		base := i * 7
		valueStrings = append(valueStrings, fmt.Sprintf(
			"($%d,$%d,$%d,$%d,$%d,$%d,$%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7,
		))
		reps, loads := r.Reps, r.Loads
		if reps == nil {
			reps = []int{}
		}
		if loads == nil {
			loads = []float64{}
		}
		args = append(args, workoutID, r.Position, r.ExerciseKey, r.SetCount, reps, loads, r.AvgRPE)
	}
	return query + strings.Join(valueStrings, ","), args
}

// ListWorkouts returns the user's workouts started in [f.Start, f.End),
// newest first.
func (db *DB) ListWorkouts(ctx context.Context, f gateway.WorkoutFilter) ([]models.WorkoutRow, error) {
	rows, err := db.Pool.Query(ctx,
		`SELECT id, client_key, user_id, gym_id, started_at, finished_at, notes, metadata
		 FROM workout_sessions
		 WHERE user_id = $1 AND started_at >= $2 AND started_at < $3
		 ORDER BY started_at DESC`,
		f.UserID, f.Start, f.End)
	if err != nil {
		return nil, fmt.Errorf("querying workouts: %w", err)
	}
	defer rows.Close()

	result := []models.WorkoutRow{}
	for rows.Next() {
		var w models.WorkoutRow
		if err := rows.Scan(&w.ID, &w.ClientKey, &w.UserID, &w.GymID, &w.StartedAt,
			&w.FinishedAt, &w.Notes, &w.Summary); err != nil {
			return nil, fmt.Errorf("scanning workout: %w", err)
		}
		result = append(result, w)
	}
	return result, rows.Err()
}

// ExerciseLogs returns the stored rows of one workout in plan order.
func (db *DB) ExerciseLogs(ctx context.Context, workoutID uuid.UUID, userID string) ([]models.ExerciseLogRow, error) {
	rows, err := db.Pool.Query(ctx,
		`SELECT l.workout_id, l.position, l.exercise_key, l.set_count, l.reps, l.loads, l.avg_rpe
		 FROM exercise_logs l
		 JOIN workout_sessions s ON s.id = l.workout_id
		 WHERE l.workout_id = $1 AND s.user_id = $2
		 ORDER BY l.position`,
		workoutID, userID)
	if err != nil {
		return nil, fmt.Errorf("querying exercise logs: %w", err)
	}
	defer rows.Close()

	result := []models.ExerciseLogRow{}
	for rows.Next() {
		var r models.ExerciseLogRow
		var loads []float32
		var rpe *float32
		if err := rows.Scan(&r.WorkoutID, &r.Position, &r.ExerciseKey, &r.SetCount, &r.Reps, &loads, &rpe); err != nil {
			return nil, fmt.Errorf("scanning exercise log: %w", err)
		}
		r.Loads = make([]float64, len(loads))
		for i, l := range loads {
			r.Loads[i] = float64(l)
		}
		if rpe != nil {
			v := float64(*rpe)
			r.AvgRPE = &v
		}
		result = append(result, r)
	}
	return result, rows.Err()
}
