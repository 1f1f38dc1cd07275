// Package localstore persists the current workout run, the wizard draft and
// the queue of workouts waiting to be synced. Reads are served from memory;
// slot writes go through to the backing KV in the background.
package localstore

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/claude/utegym/internal/models"
)

// KV is the persistent key to string mapping the store is layered on.
// Writes are durable once Set or Remove returns nil.
type KV interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
}

// Keys under which records are stored.
const (
	KeyCurrentRun = "utegym.current_run"
	KeyWizard     = "utegym.wizard_draft"
	KeyPending    = "utegym.pending_workouts"
)

// slot is a single-value record written in the background. Writes carry a
// sequence number and a write older than the last one applied is dropped.
type slot struct {
	key     string
	seq     uint64 // guarded by Store.mu
	mu      sync.Mutex
	written uint64 // guarded by mu
}

// Store is the device-local durable store. It is safe for concurrent use.
type Store struct {
	kv  KV
	log *slog.Logger

	mu           sync.Mutex
	run          *models.WorkoutRunState
	runLoaded    bool
	wizard       *models.WizardState
	wizardLoaded bool
	runSlot      slot
	wizardSlot   slot

	// queueMu serializes every read-modify-write of the pending list.
	queueMu sync.Mutex

	inflight int           // guarded by mu
	idle     chan struct{} // guarded by mu; nil when inflight is 0
}

// New creates a Store over kv.
func New(kv KV, log *slog.Logger) *Store {
	return &Store{
		kv:         kv,
		log:        log,
		runSlot:    slot{key: KeyCurrentRun},
		wizardSlot: slot{key: KeyWizard},
	}
}

// CurrentRun returns a copy of the active run, or nil. The first call loads
// it from the backing store; unreadable data is logged and treated as absent.
func (s *Store) CurrentRun(ctx context.Context) *models.WorkoutRunState {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.runLoaded {
		s.run = s.loadRun(ctx)
		s.runLoaded = true
	}
	if s.run == nil {
		return nil
	}
	c := s.run.Clone()
	return &c
}

// SetCurrentRun replaces the active run; nil deletes it. The cache is
// updated before SetCurrentRun returns. The channel receives the result of
// the background write and may be ignored.
func (s *Store) SetCurrentRun(ctx context.Context, run *models.WorkoutRunState) <-chan error {
	s.mu.Lock()
	var value any
	if run == nil {
		s.run = nil
	} else {
		c := run.Clone()
		s.run = &c
		value = c
	}
	s.runLoaded = true
	s.runSlot.seq++
	seq := s.runSlot.seq
	s.mu.Unlock()

	return s.write(ctx, &s.runSlot, seq, value)
}

// WizardDraft returns a copy of the persisted wizard draft, or nil.
func (s *Store) WizardDraft(ctx context.Context) *models.WizardState {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.wizardLoaded {
		s.wizard = s.loadWizard(ctx)
		s.wizardLoaded = true
	}
	if s.wizard == nil {
		return nil
	}
	c := s.wizard.Clone()
	return &c
}

// SetWizardDraft replaces the wizard draft; nil deletes it.
func (s *Store) SetWizardDraft(ctx context.Context, w *models.WizardState) <-chan error {
	s.mu.Lock()
	var value any
	if w == nil {
		s.wizard = nil
	} else {
		c := w.Clone()
		s.wizard = &c
		value = c
	}
	s.wizardLoaded = true
	s.wizardSlot.seq++
	seq := s.wizardSlot.seq
	s.mu.Unlock()

	return s.write(ctx, &s.wizardSlot, seq, value)
}

// Flush waits until no background write is in flight. Writes issued while
// Flush waits are waited for too.
func (s *Store) Flush(ctx context.Context) error {
	s.mu.Lock()
	idle := s.idle
	s.mu.Unlock()
	if idle == nil {
		return nil
	}
	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// startWrite and endWrite count in-flight writes under s.mu. idle is
// closed when the count drops back to zero.
func (s *Store) startWrite() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inflight == 0 {
		s.idle = make(chan struct{})
	}
	s.inflight++
}

func (s *Store) endWrite() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inflight--
	if s.inflight == 0 {
		close(s.idle)
		s.idle = nil
	}
}

func (s *Store) write(ctx context.Context, sl *slot, seq uint64, value any) <-chan error {
	result := make(chan error, 1)

	var data []byte
	if value != nil {
		var err error
		data, err = json.Marshal(value)
		if err != nil {
			s.log.Warn("encoding record failed", "key", sl.key, "error", err)
			result <- fmt.Errorf("encoding %s: %w", sl.key, err)
			return result
		}
	}

	ctx = context.WithoutCancel(ctx)
	s.startWrite()
	go func() {
		defer s.endWrite()
		sl.mu.Lock()
		defer sl.mu.Unlock()

		if seq <= sl.written {
			result <- nil
			return
		}
		sl.written = seq

		var err error
		if data == nil {
			err = s.kv.Remove(ctx, sl.key)
		} else {
			err = s.kv.Set(ctx, sl.key, string(data))
		}
		if err != nil {
			s.log.Warn("persisting record failed", "key", sl.key, "error", err)
		}
		result <- err
	}()
	return result
}

func (s *Store) loadRun(ctx context.Context) *models.WorkoutRunState {
	raw, ok := s.read(ctx, KeyCurrentRun)
	if !ok {
		return nil
	}
	var run models.WorkoutRunState
	if err := json.Unmarshal([]byte(raw), &run); err != nil {
		s.log.Warn("discarding unreadable run", "error", err)
		return nil
	}
	if err := models.NormalizeRun(&run); err != nil {
		s.log.Warn("discarding invalid run", "error", err)
		return nil
	}
	return &run
}

func (s *Store) loadWizard(ctx context.Context) *models.WizardState {
	raw, ok := s.read(ctx, KeyWizard)
	if !ok {
		return nil
	}
	var w models.WizardState
	if err := json.Unmarshal([]byte(raw), &w); err != nil {
		s.log.Warn("discarding unreadable wizard draft", "error", err)
		return nil
	}
	models.NormalizeWizard(&w)
	return &w
}

func (s *Store) read(ctx context.Context, key string) (string, bool) {
	raw, ok, err := s.kv.Get(ctx, key)
	if err != nil {
		s.log.Warn("reading record failed", "key", key, "error", err)
		return "", false
	}
	return raw, ok
}

// PendingWorkouts returns the queued workouts in queue order. Malformed
// entries are dropped; a malformed or unreadable list reads as empty.
func (s *Store) PendingWorkouts(ctx context.Context) []models.PendingWorkout {
	s.queueMu.Lock()
	defer s.queueMu.Unlock()

	list, err := s.readPending(ctx)
	if err != nil {
		s.log.Warn("reading pending queue failed", "error", err)
		return []models.PendingWorkout{}
	}
	return list
}

// AddPendingWorkout appends w to the queue. An entry with the same id is
// replaced in place.
func (s *Store) AddPendingWorkout(ctx context.Context, w models.PendingWorkout) error {
	if err := models.NormalizePending(&w); err != nil {
		return fmt.Errorf("queueing workout: %w", err)
	}

	s.queueMu.Lock()
	defer s.queueMu.Unlock()

	list, err := s.readPending(ctx)
	if err != nil {
		return fmt.Errorf("queueing workout: %w", err)
	}
	if i := slices.IndexFunc(list, func(p models.PendingWorkout) bool { return p.ID == w.ID }); i >= 0 {
		list[i] = w
	} else {
		list = append(list, w)
	}
	return s.writePending(ctx, list)
}

// RemovePendingWorkout drops the entry with the given id, if present.
func (s *Store) RemovePendingWorkout(ctx context.Context, id string) error {
	s.queueMu.Lock()
	defer s.queueMu.Unlock()

	list, err := s.readPending(ctx)
	if err != nil {
		return fmt.Errorf("removing pending workout %s: %w", id, err)
	}
	kept := slices.DeleteFunc(list, func(p models.PendingWorkout) bool { return p.ID == id })
	return s.writePending(ctx, kept)
}

// readPending loads the queue. Only a failed read is an error; a list that
// does not decode reads as empty.
func (s *Store) readPending(ctx context.Context) ([]models.PendingWorkout, error) {
	raw, ok, err := s.kv.Get(ctx, KeyPending)
	if err != nil {
		return nil, fmt.Errorf("reading pending queue: %w", err)
	}
	if !ok {
		return []models.PendingWorkout{}, nil
	}

	var items []json.RawMessage
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		s.log.Warn("discarding unreadable pending queue", "error", err)
		return []models.PendingWorkout{}, nil
	}

	list := make([]models.PendingWorkout, 0, len(items))
	for i, item := range items {
		var p models.PendingWorkout
		if err := json.Unmarshal(item, &p); err != nil {
			s.log.Warn("dropping unreadable pending workout", "index", i, "error", err)
			continue
		}
		if err := models.NormalizePending(&p); err != nil {
			s.log.Warn("dropping invalid pending workout", "index", i, "error", err)
			continue
		}
		list = append(list, p)
	}
	return list, nil
}

func (s *Store) writePending(ctx context.Context, list []models.PendingWorkout) error {
	if len(list) == 0 {
		if err := s.kv.Remove(ctx, KeyPending); err != nil {
			s.log.Warn("persisting pending queue failed", "error", err)
			return err
		}
		return nil
	}
	data, err := json.Marshal(list)
	if err != nil {
		return fmt.Errorf("encoding pending queue: %w", err)
	}
	if err := s.kv.Set(ctx, KeyPending, string(data)); err != nil {
		s.log.Warn("persisting pending queue failed", "error", err)
		return err
	}
	return nil
}
