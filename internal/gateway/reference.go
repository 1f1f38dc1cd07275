package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/claude/utegym/internal/models"
)

// ReferenceCache serves catalog data from a source and falls back to the
// last good answer for the same query when the source fails or returns
// nothing.
type ReferenceCache struct {
	src ReferenceSource
	log *slog.Logger

	mu   sync.Mutex
	last map[string]any
}

// NewReferenceCache wraps src.
func NewReferenceCache(src ReferenceSource, log *slog.Logger) *ReferenceCache {
	return &ReferenceCache{src: src, log: log, last: make(map[string]any)}
}

// Gyms returns gyms sorted by name in Swedish order.
func (c *ReferenceCache) Gyms(ctx context.Context, f GymFilter) []models.Gym {
	key := fmt.Sprintf("gyms|%s|%s", strings.ToLower(f.Search), f.Municipality)
	gyms := cached(c, key, func() ([]models.Gym, error) { return c.src.ListGyms(ctx, f) })
	models.SortGyms(gyms)
	return gyms
}

func (c *ReferenceCache) Exercises(ctx context.Context, f ExerciseFilter) []models.Exercise {
	key := fmt.Sprintf("exercises|%s|%s|%s", f.GymID, strings.ToLower(f.Search), strings.Join(models.NormalizeKeys(f.EquipmentKeys), ","))
	return cached(c, key, func() ([]models.Exercise, error) { return c.src.ListExercises(ctx, f) })
}

func (c *ReferenceCache) Methods(ctx context.Context) []models.Method {
	return cached(c, "methods", func() ([]models.Method, error) { return c.src.ListMethods(ctx) })
}

func (c *ReferenceCache) Workouts(ctx context.Context, f WorkoutFilter) []models.WorkoutRow {
	key := fmt.Sprintf("workouts|%s|%d|%d", f.UserID, f.Start.Unix(), f.End.Unix())
	return cached(c, key, func() ([]models.WorkoutRow, error) { return c.src.ListWorkouts(ctx, f) })
}

func cached[T any](c *ReferenceCache, key string, fetch func() ([]T, error)) []T {
	items, err := fetch()
	if err == nil && len(items) > 0 {
		c.mu.Lock()
		c.last[key] = items
		c.mu.Unlock()
		out := make([]T, len(items))
		copy(out, items)
		return out
	}
	if err != nil {
		c.log.Warn("reference fetch failed, keeping cached data", "query", key, "error", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	prev, _ := c.last[key].([]T)
	out := make([]T, len(prev))
	copy(out, prev)
	return out
}
