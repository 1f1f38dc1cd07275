package mcp

import (
	"context"

	"github.com/claude/utegym/internal/gateway"
	"github.com/claude/utegym/internal/models"
	"github.com/claude/utegym/internal/storage"
)

// DataSource abstracts the data layer for MCP tools. Both *storage.DB
// (direct database access) and *gateway.HTTPClient (remote via the REST
// API) satisfy it.
type DataSource interface {
	gateway.ReferenceSource
}

var (
	_ DataSource = (*storage.DB)(nil)
	_ DataSource = (*gateway.HTTPClient)(nil)
	_ DataSource = cachedSource{}
)

// Cached serves tools from c, so a remote source that drops out keeps
// answering with the last listing it returned.
func Cached(c *gateway.ReferenceCache) DataSource {
	return cachedSource{c: c}
}

type cachedSource struct {
	c *gateway.ReferenceCache
}

func (s cachedSource) ListGyms(ctx context.Context, f gateway.GymFilter) ([]models.Gym, error) {
	return s.c.Gyms(ctx, f), nil
}

func (s cachedSource) ListExercises(ctx context.Context, f gateway.ExerciseFilter) ([]models.Exercise, error) {
	return s.c.Exercises(ctx, f), nil
}

func (s cachedSource) ListMethods(ctx context.Context) ([]models.Method, error) {
	return s.c.Methods(ctx), nil
}

func (s cachedSource) ListWorkouts(ctx context.Context, f gateway.WorkoutFilter) ([]models.WorkoutRow, error) {
	return s.c.Workouts(ctx, f), nil
}
