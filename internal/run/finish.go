package run

import (
	"context"
	"errors"
	"fmt"

	"github.com/claude/utegym/internal/gateway"
	"github.com/claude/utegym/internal/models"
)

var errOffline = errors.New("no remote gateway configured")

// FinishStatus says where a finished workout ended up.
type FinishStatus int

const (
	// Synced means the server has the workout.
	Synced FinishStatus = iota
	// Queued means the workout waits in the pending queue.
	Queued
)

func (s FinishStatus) String() string {
	if s == Synced {
		return "synced"
	}
	return "queued"
}

// FinishResult tells the caller which notice to show.
type FinishResult struct {
	Status        FinishStatus
	WorkoutID     string
	PendingID     string
	Summary       models.WorkoutSummary
	LoginRequired bool
}

// Finish completes the active run. A run with a remote session is closed
// with FinishSession; a local-only run is sent whole with
// LogCompletedWorkout. When the remote write fails, or userID is nil, the run
// is queued for the sync engine instead. Either way the run is cleared, unless
// it could not be queued, in which case it stays active and the error is
// returned.
func (m *Machine) Finish(ctx context.Context, userID *string) (FinishResult, error) {
	m.mu.Lock()
	if m.run == nil {
		m.mu.Unlock()
		return FinishResult{}, ErrNoActiveRun
	}
	if m.finishing {
		m.mu.Unlock()
		return FinishResult{}, ErrFinishing
	}
	m.finishing = true
	run := m.run.Clone()
	m.mu.Unlock()

	finishedAt := m.now()
	if finishedAt.Before(run.StartedAt) {
		finishedAt = run.StartedAt
	}
	res := FinishResult{Summary: models.Summarize(run, finishedAt)}

	var remoteErr error
	switch {
	case userID == nil:
		remoteErr = gateway.ErrUnauthorized
	case m.gw == nil:
		remoteErr = errOffline
	default:
		p := gateway.NewPayload(run, *userID, &finishedAt)
		if run.SessionID != "" {
			remoteErr = m.gw.FinishSession(ctx, run.SessionID, p)
			res.WorkoutID = run.SessionID
		} else {
			res.WorkoutID, remoteErr = m.gw.LogCompletedWorkout(ctx, p)
		}
	}

	if remoteErr != nil {
		res.WorkoutID = ""
		res.Status = Queued
		res.LoginRequired = errors.Is(remoteErr, gateway.ErrUnauthorized)
		res.PendingID = m.nextPendingID(finishedAt)

		pending := models.PendingWorkout{
			ID:         res.PendingID,
			UserID:     userID,
			Run:        run,
			FinishedAt: finishedAt,
			QueuedAt:   m.now(),
		}
		if err := m.store.AddPendingWorkout(ctx, pending); err != nil {
			m.mu.Lock()
			m.finishing = false
			m.mu.Unlock()
			return FinishResult{}, fmt.Errorf("queueing workout %s: %w", run.ClientKey, err)
		}
		m.log.Warn("workout saved offline", "client_key", run.ClientKey, "pending_id", res.PendingID, "error", remoteErr)
	} else {
		res.Status = Synced
		m.log.Info("workout saved", "client_key", run.ClientKey, "workout_id", res.WorkoutID)
	}

	m.mu.Lock()
	m.run = nil
	m.finishing = false
	m.store.SetCurrentRun(ctx, nil)
	m.mu.Unlock()
	return res, nil
}
