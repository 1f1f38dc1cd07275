// Package run tracks the workout in progress. Every change is applied to an
// in-memory copy and written through to the local store, so a killed app
// resumes where it left off.
package run

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/claude/utegym/internal/gateway"
	"github.com/claude/utegym/internal/models"
	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

var (
	ErrNoActiveRun     = errors.New("no workout in progress")
	ErrRunActive       = errors.New("a workout is already in progress")
	ErrFinishing       = errors.New("workout is being finished")
	ErrIndexOutOfRange = errors.New("exercise or set index out of range")
)

// Store is the persistence the machine needs.
type Store interface {
	CurrentRun(ctx context.Context) *models.WorkoutRunState
	SetCurrentRun(ctx context.Context, run *models.WorkoutRunState) <-chan error
	AddPendingWorkout(ctx context.Context, w models.PendingWorkout) error
}

// Machine owns the single active run.
type Machine struct {
	store Store
	gw    gateway.Gateway
	now   func() time.Time
	log   *slog.Logger

	mu        sync.Mutex
	run       *models.WorkoutRunState
	finishing bool

	idMu    sync.Mutex
	entropy io.Reader
}

// New creates a Machine. gw may be nil, in which case every run is local
// and every finish is queued. now may be nil.
func New(store Store, gw gateway.Gateway, now func() time.Time, log *slog.Logger) *Machine {
	if now == nil {
		now = time.Now
	}
	return &Machine{
		store:   store,
		gw:      gw,
		now:     now,
		log:     log,
		entropy: ulid.Monotonic(rand.Reader, 0),
	}
}

// Resume loads the persisted run, if any, and returns a copy of it.
func (m *Machine) Resume(ctx context.Context) *models.WorkoutRunState {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.run = m.store.CurrentRun(ctx)
	if m.run == nil {
		return nil
	}
	m.log.Info("resumed workout", "client_key", m.run.ClientKey, "started_at", m.run.StartedAt)
	c := m.run.Clone()
	return &c
}

// Current returns a copy of the active run, or nil.
func (m *Machine) Current() *models.WorkoutRunState {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.run == nil {
		return nil
	}
	c := m.run.Clone()
	return &c
}

// Start begins a run of plan. Logs are seeded from the prescriptions. For a
// logged-in user a remote session is opened; if that fails the run simply
// stays local.
func (m *Machine) Start(ctx context.Context, plan models.WorkoutPlan, userID *string) (*models.WorkoutRunState, error) {
	m.mu.Lock()
	if m.run != nil {
		m.mu.Unlock()
		return nil, ErrRunActive
	}

	run := models.WorkoutRunState{
		ClientKey: uuid.New(),
		Plan:      plan.Clone(),
		StartedAt: m.now(),
	}
	if err := models.NormalizeRun(&run); err != nil {
		m.mu.Unlock()
		return nil, fmt.Errorf("starting workout: %w", err)
	}
	m.run = &run
	m.store.SetCurrentRun(ctx, &run)
	m.mu.Unlock()

	m.log.Info("workout started", "client_key", run.ClientKey, "exercises", len(run.Plan.Exercises))

	if m.gw != nil && userID != nil {
		id, err := m.gw.CreateSession(ctx, gateway.NewPayload(run, *userID, nil))
		if err != nil {
			m.log.Warn("remote session not created, continuing locally", "client_key", run.ClientKey, "error", err)
		} else {
			m.applySessionID(ctx, run.ClientKey, id)
		}
	}
	return m.Current(), nil
}

// applySessionID records the remote id unless the run it was created for
// has since finished or been replaced.
func (m *Machine) applySessionID(ctx context.Context, key uuid.UUID, id string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.run == nil || m.run.ClientKey != key || m.finishing {
		m.log.Info("discarding stale session id", "client_key", key, "session_id", id)
		return
	}
	next := m.run.Clone()
	next.SessionID = id
	m.run = &next
	m.store.SetCurrentRun(ctx, &next)
}

// Discard drops the active run without saving it anywhere.
func (m *Machine) Discard(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.run == nil {
		return ErrNoActiveRun
	}
	if m.finishing {
		return ErrFinishing
	}
	m.log.Info("workout discarded", "client_key", m.run.ClientKey)
	m.run = nil
	m.store.SetCurrentRun(ctx, nil)
	return nil
}

// mutate applies fn to a copy of the run and, if it succeeds, makes the copy
// current and persists it.
func (m *Machine) mutate(ctx context.Context, fn func(r *models.WorkoutRunState) error) (*models.WorkoutRunState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.run == nil {
		return nil, ErrNoActiveRun
	}
	if m.finishing {
		return nil, ErrFinishing
	}
	next := m.run.Clone()
	if err := fn(&next); err != nil {
		return nil, err
	}
	m.run = &next
	m.store.SetCurrentRun(ctx, &next)

	out := next.Clone()
	return &out, nil
}

func setAt(r *models.WorkoutRunState, i, j int) (*models.Set, error) {
	if i < 0 || i >= len(r.Logs) || j < 0 || j >= len(r.Logs[i].Sets) {
		return nil, fmt.Errorf("%w: exercise %d set %d", ErrIndexOutOfRange, i, j)
	}
	return &r.Logs[i].Sets[j], nil
}

// ToggleSetDone flips the done flag of one set.
func (m *Machine) ToggleSetDone(ctx context.Context, exercise, set int) (*models.WorkoutRunState, error) {
	return m.mutate(ctx, func(r *models.WorkoutRunState) error {
		s, err := setAt(r, exercise, set)
		if err != nil {
			return err
		}
		s.Done = !s.Done
		return nil
	})
}

// ChangeSets resizes an exercise to n sets, clamped to [1, 10]. New sets are
// seeded from the prescription; extra sets are dropped from the end. The
// run's copy of the plan is updated to match.
func (m *Machine) ChangeSets(ctx context.Context, exercise, n int) (*models.WorkoutRunState, error) {
	return m.mutate(ctx, func(r *models.WorkoutRunState) error {
		if exercise < 0 || exercise >= len(r.Plan.Exercises) {
			return fmt.Errorf("%w: exercise %d", ErrIndexOutOfRange, exercise)
		}
		n = models.ClampSets(n)
		ex := &r.Plan.Exercises[exercise]
		log := &r.Logs[exercise]

		if len(log.Sets) > n {
			log.Sets = log.Sets[:n]
		}
		for len(log.Sets) < n {
			log.Sets = append(log.Sets, ex.Prescription.SeedSet())
		}
		ex.Prescription.Sets = n
		return nil
	})
}

// ChangeRepForSet sets the reps of one set from free text; see ParseReps.
func (m *Machine) ChangeRepForSet(ctx context.Context, exercise, set int, text string) (*models.WorkoutRunState, error) {
	reps := ParseReps(text)
	return m.mutate(ctx, func(r *models.WorkoutRunState) error {
		s, err := setAt(r, exercise, set)
		if err != nil {
			return err
		}
		s.Reps = &reps
		return nil
	})
}

// ChangeLoadForSet sets the load of one set from free text; see ParseLoad.
func (m *Machine) ChangeLoadForSet(ctx context.Context, exercise, set int, text string) (*models.WorkoutRunState, error) {
	load := ParseLoad(text)
	return m.mutate(ctx, func(r *models.WorkoutRunState) error {
		s, err := setAt(r, exercise, set)
		if err != nil {
			return err
		}
		s.LoadKg = load
		return nil
	})
}

// ChangeRPEForSet sets the perceived exertion of one set, clamped to
// [0, 10]. nil clears it.
func (m *Machine) ChangeRPEForSet(ctx context.Context, exercise, set int, rpe *float64) (*models.WorkoutRunState, error) {
	return m.mutate(ctx, func(r *models.WorkoutRunState) error {
		s, err := setAt(r, exercise, set)
		if err != nil {
			return err
		}
		if rpe == nil {
			s.RPE = nil
			return nil
		}
		v := models.ClampRPE(*rpe)
		s.RPE = &v
		return nil
	})
}

// UpdateNotes replaces the run's notes.
func (m *Machine) UpdateNotes(ctx context.Context, text string) (*models.WorkoutRunState, error) {
	return m.mutate(ctx, func(r *models.WorkoutRunState) error {
		r.Notes = text
		return nil
	})
}

func (m *Machine) nextPendingID(t time.Time) string {
	m.idMu.Lock()
	defer m.idMu.Unlock()
	return models.LocalIDPrefix + ulid.MustNew(ulid.Timestamp(t), m.entropy).String()
}
