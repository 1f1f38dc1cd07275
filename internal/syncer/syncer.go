// Package syncer replays queued workouts to the server when the device comes
// back online.
package syncer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/claude/utegym/internal/gateway"
	"github.com/claude/utegym/internal/models"
)

// Queue is the pending-workout storage the engine drains.
type Queue interface {
	PendingWorkouts(ctx context.Context) []models.PendingWorkout
	RemovePendingWorkout(ctx context.Context, id string) error
}

// Stats summarizes one drain.
type Stats struct {
	Attempted int
	Synced    int
	Failed    int
	Skipped   int
}

// Engine drains the pending queue. It is safe for concurrent use; drains
// never overlap.
type Engine struct {
	queue Queue
	gw    gateway.Gateway
	log   *slog.Logger

	draining sync.Mutex
}

func New(queue Queue, gw gateway.Gateway, log *slog.Logger) *Engine {
	return &Engine{queue: queue, gw: gw, log: log}
}

// Drain tries every queued workout once, in queue order. A failed item stays
// queued and does not stop the rest. Guest workouts are skipped.
func (e *Engine) Drain(ctx context.Context) Stats {
	e.draining.Lock()
	defer e.draining.Unlock()

	var st Stats
	for _, p := range e.queue.PendingWorkouts(ctx) {
		if ctx.Err() != nil {
			break
		}
		if p.UserID == nil {
			st.Skipped++
			continue
		}
		st.Attempted++
		if err := e.push(ctx, p); err != nil {
			st.Failed++
			e.log.Warn("pending workout not synced", "id", p.ID, "error", err)
			continue
		}
		st.Synced++
	}

	if st.Attempted > 0 || st.Skipped > 0 {
		e.log.Info("drained pending queue",
			"attempted", st.Attempted, "synced", st.Synced,
			"failed", st.Failed, "skipped", st.Skipped)
	}
	return st
}

func (e *Engine) push(ctx context.Context, p models.PendingWorkout) error {
	header, err := gateway.NewHeader(p)
	if err != nil {
		return err
	}
	id, err := e.gw.InsertWorkout(ctx, header)
	if err != nil {
		return fmt.Errorf("inserting workout: %w", err)
	}
	if err := e.gw.InsertExerciseLogs(ctx, id, models.ExerciseLogRows(p.Run)); err != nil {
		return fmt.Errorf("inserting exercise logs for %s: %w", id, err)
	}
	if err := e.queue.RemovePendingWorkout(ctx, p.ID); err != nil {
		return fmt.Errorf("removing from queue: %w", err)
	}
	e.log.Debug("pending workout synced", "id", p.ID, "workout_id", id)
	return nil
}

// Watch drains whenever online turns true after having been false, and on
// the first true. It returns when ctx is done or online is closed.
func (e *Engine) Watch(ctx context.Context, online <-chan bool) {
	connected := false
	for {
		select {
		case <-ctx.Done():
			return
		case up, ok := <-online:
			if !ok {
				return
			}
			if up && !connected {
				e.Drain(ctx)
			}
			connected = up
		}
	}
}
