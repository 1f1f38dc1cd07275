// Package server is the Utegym REST API: it accepts workouts from devices
// and serves the gym, exercise and method catalog.
package server

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/claude/utegym/internal/gateway"
	"github.com/claude/utegym/internal/models"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// Store is the repository behind the API. *storage.DB satisfies it.
type Store interface {
	gateway.ReferenceSource
	UpsertSession(ctx context.Context, userID string, p gateway.WorkoutPayload) (uuid.UUID, error)
	FinishSession(ctx context.Context, id uuid.UUID, userID string, p gateway.WorkoutPayload) error
	LogCompletedWorkout(ctx context.Context, userID string, p gateway.WorkoutPayload) (uuid.UUID, error)
	UpsertWorkoutHeader(ctx context.Context, userID string, h gateway.WorkoutHeader) (uuid.UUID, error)
	ReplaceExerciseLogs(ctx context.Context, workoutID uuid.UUID, userID string, rows []models.ExerciseLogRow) error
	ExerciseLogs(ctx context.Context, workoutID uuid.UUID, userID string) ([]models.ExerciseLogRow, error)
	TouchUser(ctx context.Context, login, displayName string) error
	Ping(ctx context.Context) error
}

// Server holds dependencies for HTTP handlers.
type Server struct {
	db       Store
	log      *slog.Logger
	apiKey   string
	identity func(http.Handler) http.Handler
	router   chi.Router
}

// New creates a Server. Requests are attributed with DevIdentity until
// SetTailscale is called.
func New(db Store, apiKey string, log *slog.Logger) *Server {
	s := &Server{
		db:       db,
		log:      log,
		apiKey:   apiKey,
		identity: DevIdentity,
	}
	s.router = s.routes()
	return s
}

// SetTailscale attributes requests to the tailnet user behind them. Call
// it before serving.
func (s *Server) SetTailscale(w WhoIser) {
	s.identity = TailscaleIdentity(w, s.log)
	s.router = s.routes()
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(RequestLogging(s.log))
	r.Use(CORS)

	r.Get("/api/v1/healthz", s.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.identity)
		r.Use(s.touchUser)

		r.Get("/me", s.handleMe)
		r.Get("/gyms", s.handleListGyms)
		r.Get("/exercises", s.handleListExercises)
		r.Get("/methods", s.handleListMethods)
		r.Get("/workouts", s.handleListWorkouts)
		r.Get("/workouts/{id}/logs", s.handleGetExerciseLogs)

		// Device writes (API key required)
		r.Group(func(r chi.Router) {
			r.Use(APIKeyAuth(s.apiKey))
			r.Post("/sessions", s.handleCreateSession)
			r.Patch("/sessions/{id}", s.handleFinishSession)
			r.Post("/workouts/complete", s.handleLogCompleted)
			r.Post("/workouts", s.handleInsertWorkout)
			r.Put("/workouts/{id}/logs", s.handleReplaceLogs)
		})
	})
	return r
}

// touchUser records the caller's login. Failures are logged only.
func (s *Server) touchUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		info := userInfoFromContext(r)
		if err := s.db.TouchUser(r.Context(), info.Login, info.DisplayName); err != nil {
			s.log.Warn("recording user failed", "login", info.Login, "error", err)
		}
		next.ServeHTTP(w, r)
	})
}
