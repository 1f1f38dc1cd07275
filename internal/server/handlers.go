package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/claude/utegym/internal/gateway"
	"github.com/claude/utegym/internal/models"
	"github.com/claude/utegym/internal/storage"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// maxBodyBytes bounds request bodies. A full session snapshot is a few KB.
const maxBodyBytes = 1 << 20

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.db.Ping(r.Context()); err != nil {
		s.log.Warn("health check failed", "error", err)
		writeError(w, http.StatusServiceUnavailable, "database unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, userInfoFromContext(r))
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	user, p, ok := s.decodePayload(w, r)
	if !ok {
		return
	}
	id, err := s.db.UpsertSession(r.Context(), user, p)
	if err != nil {
		s.writeStoreError(w, "create session", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": id.String()})
}

func (s *Server) handleFinishSession(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	user, p, ok := s.decodePayload(w, r)
	if !ok {
		return
	}
	if p.FinishedAt == nil {
		writeError(w, http.StatusBadRequest, "finished_at required")
		return
	}
	if err := s.db.FinishSession(r.Context(), id, user, p); err != nil {
		s.writeStoreError(w, "finish session", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleLogCompleted(w http.ResponseWriter, r *http.Request) {
	user, p, ok := s.decodePayload(w, r)
	if !ok {
		return
	}
	if p.FinishedAt == nil {
		writeError(w, http.StatusBadRequest, "finished_at required")
		return
	}
	id, err := s.db.LogCompletedWorkout(r.Context(), user, p)
	if err != nil {
		s.writeStoreError(w, "log completed workout", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": id.String()})
}

func (s *Server) handleInsertWorkout(w http.ResponseWriter, r *http.Request) {
	var h gateway.WorkoutHeader
	if !decodeBody(w, r, &h) {
		return
	}
	user, ok := bodyUser(w, r, h.UserID)
	if !ok {
		return
	}
	if h.ClientKey == uuid.Nil || h.StartedAt.IsZero() || h.FinishedAt.IsZero() {
		writeError(w, http.StatusBadRequest, "client_key, started_at and finished_at required")
		return
	}
	if h.FinishedAt.Before(h.StartedAt) {
		writeError(w, http.StatusBadRequest, "finished_at before started_at")
		return
	}
	id, err := s.db.UpsertWorkoutHeader(r.Context(), user, h)
	if err != nil {
		s.writeStoreError(w, "insert workout", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": id.String()})
}

func (s *Server) handleReplaceLogs(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var rows []models.ExerciseLogRow
	if !decodeBody(w, r, &rows) {
		return
	}
	for i := range rows {
		row := &rows[i]
		row.WorkoutID = id
		if row.ExerciseKey == "" || row.SetCount < 0 || len(row.Reps) > models.MaxSets || len(row.Loads) > models.MaxSets {
			writeError(w, http.StatusBadRequest, "invalid exercise log row")
			return
		}
	}
	user := userInfoFromContext(r).Login
	if err := s.db.ReplaceExerciseLogs(r.Context(), id, user, rows); err != nil {
		s.writeStoreError(w, "replace exercise logs", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetExerciseLogs(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	rows, err := s.db.ExerciseLogs(r.Context(), id, userInfoFromContext(r).Login)
	if err != nil {
		s.writeStoreError(w, "exercise logs", err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) handleListWorkouts(w http.ResponseWriter, r *http.Request) {
	start, end, err := parseTimeRange(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	workouts, err := s.db.ListWorkouts(r.Context(), gateway.WorkoutFilter{
		UserID: userInfoFromContext(r).Login,
		Start:  start,
		End:    end,
	})
	if err != nil {
		s.writeStoreError(w, "list workouts", err)
		return
	}
	writeJSON(w, http.StatusOK, workouts)
}

func (s *Server) handleListGyms(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	gyms, err := s.db.ListGyms(r.Context(), gateway.GymFilter{
		Search:       q.Get("q"),
		Municipality: q.Get("municipality"),
	})
	if err != nil {
		s.writeStoreError(w, "list gyms", err)
		return
	}
	models.SortGyms(gyms)
	writeJSON(w, http.StatusOK, gyms)
}

func (s *Server) handleListExercises(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := gateway.ExerciseFilter{GymID: q.Get("gym_id"), Search: q.Get("q")}
	if eq := q.Get("equipment"); eq != "" {
		f.EquipmentKeys = models.NormalizeKeys(strings.Split(eq, ","))
	}
	exercises, err := s.db.ListExercises(r.Context(), f)
	if err != nil {
		s.writeStoreError(w, "list exercises", err)
		return
	}
	writeJSON(w, http.StatusOK, exercises)
}

func (s *Server) handleListMethods(w http.ResponseWriter, r *http.Request) {
	methods, err := s.db.ListMethods(r.Context())
	if err != nil {
		s.writeStoreError(w, "list methods", err)
		return
	}
	writeJSON(w, http.StatusOK, methods)
}

// decodePayload reads a session snapshot and checks it belongs to the caller.
func (s *Server) decodePayload(w http.ResponseWriter, r *http.Request) (string, gateway.WorkoutPayload, bool) {
	var p gateway.WorkoutPayload
	if !decodeBody(w, r, &p) {
		return "", p, false
	}
	user, ok := bodyUser(w, r, p.UserID)
	if !ok {
		return "", p, false
	}
	if p.ClientKey == uuid.Nil || p.StartedAt.IsZero() {
		writeError(w, http.StatusBadRequest, "client_key and started_at required")
		return "", p, false
	}
	if p.FinishedAt != nil && p.FinishedAt.Before(p.StartedAt) {
		writeError(w, http.StatusBadRequest, "finished_at before started_at")
		return "", p, false
	}
	return user, p, true
}

// bodyUser returns the caller's login. A user id in the body must match it.
func bodyUser(w http.ResponseWriter, r *http.Request, claimed string) (string, bool) {
	user := userInfoFromContext(r).Login
	if claimed != "" && claimed != user {
		writeError(w, http.StatusForbidden, "user_id does not match caller")
		return "", false
	}
	return user, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return false
	}
	return true
}

func pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid workout ID")
		return uuid.Nil, false
	}
	return id, true
}

func (s *Server) writeStoreError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, "workout not found")
	case errors.Is(err, storage.ErrConflict):
		writeError(w, http.StatusConflict, "client key already used")
	default:
		s.log.Error(op+" failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// parseTimeRange reads start and end query parameters as RFC 3339 or
// dates. Without a start it covers the last 30 days.
func parseTimeRange(r *http.Request) (start, end time.Time, err error) {
	startStr := r.URL.Query().Get("start")
	endStr := r.URL.Query().Get("end")

	if endStr == "" {
		end = time.Now()
	} else if end, err = parseTime(endStr); err != nil {
		return time.Time{}, time.Time{}, err
	} else if len(endStr) == len(time.DateOnly) {
		// End of day for date-only
		end = end.Add(24 * time.Hour)
	}

	if startStr == "" {
		start = end.AddDate(0, 0, -30)
		return start, end, nil
	}
	start, err = parseTime(startStr)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return start, end, nil
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, s)
	if err == nil {
		return t, nil
	}
	return time.Parse(time.DateOnly, s)
}
