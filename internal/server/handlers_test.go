package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/claude/utegym/internal/gateway"
	"github.com/claude/utegym/internal/localstore"
	"github.com/claude/utegym/internal/models"
	"github.com/claude/utegym/internal/run"
	"github.com/claude/utegym/internal/storage"
	"github.com/claude/utegym/internal/syncer"
	"github.com/google/uuid"
	"github.com/spf13/afero"
)

// memStore is an in-memory Store that upserts on client key like the
// Postgres implementation.
type memStore struct {
	mu       sync.Mutex
	byKey    map[uuid.UUID]*storedWorkout
	logs     map[uuid.UUID][]models.ExerciseLogRow
	users    map[string]bool
	gyms     []models.Gym
	methods  []models.Method
	pingErr  error
	lastGyms gateway.GymFilter
	lastEx   gateway.ExerciseFilter
}

type storedWorkout struct {
	row     models.WorkoutRow
	payload gateway.WorkoutPayload
}

func newMemStore() *memStore {
	return &memStore{
		byKey: map[uuid.UUID]*storedWorkout{},
		logs:  map[uuid.UUID][]models.ExerciseLogRow{},
		users: map[string]bool{},
	}
}

func (m *memStore) upsert(user string, p gateway.WorkoutPayload, withBody bool) (uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.byKey[p.ClientKey]
	if ok && w.row.UserID != user {
		return uuid.Nil, storage.ErrConflict
	}
	if !ok {
		w = &storedWorkout{row: models.WorkoutRow{ID: uuid.New(), ClientKey: p.ClientKey, UserID: user}}
		m.byKey[p.ClientKey] = w
	}
	w.row.GymID, w.row.StartedAt, w.row.Notes, w.row.Summary = p.GymID, p.StartedAt, p.Notes, p.Metadata
	if p.FinishedAt != nil {
		w.row.FinishedAt = p.FinishedAt
	}
	if withBody {
		w.payload = p
	}
	return w.row.ID, nil
}

func (m *memStore) find(id uuid.UUID, user string) *storedWorkout {
	for _, w := range m.byKey {
		if w.row.ID == id && w.row.UserID == user {
			return w
		}
	}
	return nil
}

func (m *memStore) UpsertSession(_ context.Context, user string, p gateway.WorkoutPayload) (uuid.UUID, error) {
	return m.upsert(user, p, true)
}

func (m *memStore) FinishSession(_ context.Context, id uuid.UUID, user string, p gateway.WorkoutPayload) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	w := m.find(id, user)
	if w == nil {
		return storage.ErrNotFound
	}
	w.payload, w.row.FinishedAt = p, p.FinishedAt
	m.logs[id] = models.ExerciseLogRows(models.WorkoutRunState{Plan: p.Plan, Logs: p.Logs})
	return nil
}

func (m *memStore) LogCompletedWorkout(ctx context.Context, user string, p gateway.WorkoutPayload) (uuid.UUID, error) {
	id, err := m.upsert(user, p, true)
	if err != nil {
		return uuid.Nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logs[id] = models.ExerciseLogRows(models.WorkoutRunState{Plan: p.Plan, Logs: p.Logs})
	return id, nil
}

func (m *memStore) UpsertWorkoutHeader(_ context.Context, user string, h gateway.WorkoutHeader) (uuid.UUID, error) {
	finished := h.FinishedAt
	return m.upsert(user, gateway.WorkoutPayload{
		ClientKey: h.ClientKey, GymID: h.GymID, Notes: h.Notes,
		StartedAt: h.StartedAt, FinishedAt: &finished, Metadata: h.Metadata,
	}, false)
}

func (m *memStore) ReplaceExerciseLogs(_ context.Context, id uuid.UUID, user string, rows []models.ExerciseLogRow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.find(id, user) == nil {
		return storage.ErrNotFound
	}
	m.logs[id] = rows
	return nil
}

func (m *memStore) ExerciseLogs(_ context.Context, id uuid.UUID, user string) ([]models.ExerciseLogRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.find(id, user) == nil {
		return nil, storage.ErrNotFound
	}
	return m.logs[id], nil
}

func (m *memStore) ListWorkouts(_ context.Context, f gateway.WorkoutFilter) ([]models.WorkoutRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.WorkoutRow{}
	for _, w := range m.byKey {
		if w.row.UserID == f.UserID && !w.row.StartedAt.Before(f.Start) && w.row.StartedAt.Before(f.End) {
			out = append(out, w.row)
		}
	}
	return out, nil
}

func (m *memStore) ListGyms(_ context.Context, f gateway.GymFilter) ([]models.Gym, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastGyms = f
	return append([]models.Gym(nil), m.gyms...), nil
}

func (m *memStore) ListExercises(_ context.Context, f gateway.ExerciseFilter) ([]models.Exercise, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastEx = f
	return []models.Exercise{}, nil
}

func (m *memStore) ListMethods(context.Context) ([]models.Method, error) {
	return m.methods, nil
}

func (m *memStore) TouchUser(_ context.Context, login, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[login] = true
	return nil
}

func (m *memStore) Ping(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pingErr
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestServer(t *testing.T) (*memStore, *httptest.Server) {
	t.Helper()
	store := newMemStore()
	ts := httptest.NewServer(New(store, "key", testLogger()))
	t.Cleanup(ts.Close)
	return store, ts
}

func testPlan() models.WorkoutPlan {
	return models.WorkoutPlan{
		Gym:    &models.GymRef{ID: "g1", Name: "Alby"},
		Method: &models.Method{Key: "amrap", Scheme: models.MethodScheme{Sets: 3}},
		Exercises: []models.PlanExercise{
			{Key: "pushup", Prescription: models.Prescription{Sets: 3, Reps: []int{10}}},
			{Key: "dip", Prescription: models.Prescription{Sets: 2, Reps: []int{8}}},
		},
	}
}

func do(t *testing.T, method, url, apiKey, user, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	if apiKey != "" {
		req.Header.Set("X-API-Key", apiKey)
	}
	if user != "" {
		req.Header.Set("X-User-ID", user)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

// TestHandleMeDefault verifies the /api/v1/me endpoint returns the dev user
// identity when no header is sent.
func TestHandleMeDefault(t *testing.T) {
	_, ts := newTestServer(t)
	resp := do(t, http.MethodGet, ts.URL+"/api/v1/me", "", "", "")

	var info UserInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if info != devUser {
		t.Errorf("me = %+v, want %+v", info, devUser)
	}
}

// TestHealth verifies the health endpoint reflects the database.
func TestHealth(t *testing.T) {
	store, ts := newTestServer(t)
	if resp := do(t, http.MethodGet, ts.URL+"/api/v1/healthz", "", "", ""); resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
	store.mu.Lock()
	store.pingErr = errors.New("down")
	store.mu.Unlock()
	if resp := do(t, http.MethodGet, ts.URL+"/api/v1/healthz", "", "", ""); resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", resp.StatusCode)
	}
}

// TestWritesRequireAPIKey verifies every write route is behind the key.
func TestWritesRequireAPIKey(t *testing.T) {
	_, ts := newTestServer(t)
	id := uuid.NewString()
	routes := [][2]string{
		{http.MethodPost, "/api/v1/sessions"},
		{http.MethodPatch, "/api/v1/sessions/" + id},
		{http.MethodPost, "/api/v1/workouts/complete"},
		{http.MethodPost, "/api/v1/workouts"},
		{http.MethodPut, "/api/v1/workouts/" + id + "/logs"},
	}
	for _, rt := range routes {
		if resp := do(t, rt[0], ts.URL+rt[1], "", "u1", "{}"); resp.StatusCode != http.StatusUnauthorized {
			t.Errorf("%s %s: status = %d, want 401", rt[0], rt[1], resp.StatusCode)
		}
	}
}

// TestCreateSessionValidation verifies malformed and foreign payloads.
func TestCreateSessionValidation(t *testing.T) {
	_, ts := newTestServer(t)
	key := uuid.NewString()
	tests := []struct {
		name string
		body string
		want int
	}{
		{"bad json", `{`, http.StatusBadRequest},
		{"no client key", `{"started_at": "2026-05-01T07:00:00Z"}`, http.StatusBadRequest},
		{"no start", `{"client_key": "` + key + `"}`, http.StatusBadRequest},
		{"other user", `{"client_key": "` + key + `", "user_id": "u2", "started_at": "2026-05-01T07:00:00Z"}`, http.StatusForbidden},
		{"finish before start", `{"client_key": "` + key + `", "started_at": "2026-05-01T07:00:00Z", "finished_at": "2026-05-01T06:00:00Z"}`, http.StatusBadRequest},
		{"ok", `{"client_key": "` + key + `", "user_id": "u1", "started_at": "2026-05-01T07:00:00Z"}`, http.StatusCreated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if resp := do(t, http.MethodPost, ts.URL+"/api/v1/sessions", "key", "u1", tt.body); resp.StatusCode != tt.want {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.want)
			}
		})
	}
}

// TestClientKeyConflict verifies a client key cannot be taken over by
// another user.
func TestClientKeyConflict(t *testing.T) {
	_, ts := newTestServer(t)
	body := `{"client_key": "` + uuid.NewString() + `", "started_at": "2026-05-01T07:00:00Z"}`
	if resp := do(t, http.MethodPost, ts.URL+"/api/v1/sessions", "key", "u1", body); resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if resp := do(t, http.MethodPost, ts.URL+"/api/v1/sessions", "key", "u2", body); resp.StatusCode != http.StatusConflict {
		t.Errorf("status = %d, want 409", resp.StatusCode)
	}
}

// TestListGymsSorted verifies query params reach the store and the result
// is in Swedish order.
func TestListGymsSorted(t *testing.T) {
	store, ts := newTestServer(t)
	store.mu.Lock()
	store.gyms = []models.Gym{{ID: "2", Name: "Östberga"}, {ID: "1", Name: "Zinkensdamm"}}
	store.mu.Unlock()

	resp := do(t, http.MethodGet, ts.URL+"/api/v1/gyms?q=park&municipality=Stockholm", "", "", "")
	var gyms []models.Gym
	if err := json.NewDecoder(resp.Body).Decode(&gyms); err != nil {
		t.Fatal(err)
	}
	if len(gyms) != 2 || gyms[0].ID != "1" {
		t.Errorf("gyms = %+v", gyms)
	}
	do(t, http.MethodGet, ts.URL+"/api/v1/exercises?gym_id=g1&equipment=rings,,bars", "", "", "")

	store.mu.Lock()
	defer store.mu.Unlock()
	if store.lastGyms.Search != "park" || store.lastGyms.Municipality != "Stockholm" {
		t.Errorf("filter = %+v", store.lastGyms)
	}
	if got := store.lastEx.EquipmentKeys; len(got) != 2 || got[0] != "bars" {
		t.Errorf("equipment filter = %v", got)
	}
}

// TestParseTimeRange verifies defaults and date-only bounds.
func TestParseTimeRange(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/?start=2026-05-01&end=2026-05-03", nil)
	start, end, err := parseTimeRange(req)
	if err != nil {
		t.Fatal(err)
	}
	if !start.Equal(time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)) || !end.Equal(time.Date(2026, 5, 4, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("range = %v .. %v", start, end)
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	start, end, err = parseTimeRange(req)
	if err != nil {
		t.Fatal(err)
	}
	if d := end.Sub(start); d < 29*24*time.Hour || d > 31*24*time.Hour {
		t.Errorf("default range = %v", d)
	}

	req = httptest.NewRequest(http.MethodGet, "/?start=yesterday", nil)
	if _, _, err := parseTimeRange(req); err == nil {
		t.Error("expected error for bad start")
	}
}

// TestDeviceRoundTrip drives the device side against the API: a run is
// started and finished online, a second one is finished offline and later
// replayed by the sync engine twice without creating duplicates.
func TestDeviceRoundTrip(t *testing.T) {
	ctx := context.Background()
	store, ts := newTestServer(t)
	client := gateway.NewHTTPClient(ts.URL, "key", "u1").WithRetry(1, time.Millisecond)
	local := localstore.New(localstore.NewFileKV(afero.NewMemMapFs(), "/state"), testLogger())
	user := "u1"

	online := run.New(local, client, nil, testLogger())
	started, err := online.Start(ctx, testPlan(), &user)
	if err != nil {
		t.Fatal(err)
	}
	if started.SessionID == "" {
		t.Fatal("no remote session created")
	}
	if _, err := online.ToggleSetDone(ctx, 0, 0); err != nil {
		t.Fatal(err)
	}
	res, err := online.Finish(ctx, &user)
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != run.Synced || res.WorkoutID != started.SessionID {
		t.Fatalf("finish = %+v", res)
	}

	// A session closed online gets its exercise rows like any other workout.
	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/api/v1/workouts/"+started.SessionID+"/logs", nil)
	req.Header.Set("X-User-ID", user)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	var rows []models.ExerciseLogRow
	err = json.NewDecoder(resp.Body).Decode(&rows)
	resp.Body.Close()
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK || len(rows) != 2 {
		t.Fatalf("session logs = %d %+v, want 2 rows", resp.StatusCode, rows)
	}
	if rows[0].ExerciseKey != "pushup" || rows[0].SetCount != 3 || rows[0].Reps[0] != 10 {
		t.Errorf("first row = %+v", rows[0])
	}

	offline := run.New(local, nil, nil, testLogger())
	queued, err := offline.Start(ctx, testPlan(), &user)
	if err != nil {
		t.Fatal(err)
	}
	if res, err := offline.Finish(ctx, &user); err != nil || res.Status != run.Queued {
		t.Fatalf("offline finish = %+v, %v", res, err)
	}

	engine := syncer.New(local, client, testLogger())
	if st := engine.Drain(ctx); st.Synced != 1 {
		t.Fatalf("drain = %+v", st)
	}
	if len(local.PendingWorkouts(ctx)) != 0 {
		t.Fatal("queue not empty after drain")
	}

	// Replaying the same item (as after a crash before removal) must not
	// create a second workout.
	if _, err := client.InsertWorkout(ctx, gateway.WorkoutHeader{
		ClientKey: queued.ClientKey, UserID: user,
		StartedAt: queued.StartedAt, FinishedAt: queued.StartedAt.Add(time.Minute),
	}); err != nil {
		t.Fatal(err)
	}

	store.mu.Lock()
	defer store.mu.Unlock()
	if len(store.byKey) != 2 {
		t.Errorf("stored workouts = %d, want 2", len(store.byKey))
	}
	w := store.byKey[queued.ClientKey]
	if w == nil || len(store.logs[w.row.ID]) != 2 {
		t.Errorf("replayed workout logs = %+v", w)
	}
	if !store.users["u1"] {
		t.Error("user not recorded")
	}
}
