package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/claude/utegym/internal/gateway"
	"github.com/claude/utegym/internal/models"
)

// ListGyms returns gyms matching the filter. Ordering is left to the
// caller, which sorts with Swedish collation.
func (db *DB) ListGyms(ctx context.Context, f gateway.GymFilter) ([]models.Gym, error) {
	rows, err := db.Pool.Query(ctx,
		`SELECT id, name, municipality, lat, lon, equipment_keys
		 FROM gyms
		 WHERE ($1::text = '' OR name ILIKE '%' || $1 || '%')
		   AND ($2::text = '' OR municipality = $2)`,
		f.Search, f.Municipality)
	if err != nil {
		return nil, fmt.Errorf("querying gyms: %w", err)
	}
	defer rows.Close()

	result := []models.Gym{}
	for rows.Next() {
		var g models.Gym
		if err := rows.Scan(&g.ID, &g.Name, &g.Municipality, &g.Lat, &g.Lon, &g.EquipmentKeys); err != nil {
			return nil, fmt.Errorf("scanning gym: %w", err)
		}
		result = append(result, g)
	}
	return result, rows.Err()
}

// exerciseQuery builds the catalog query for f. Bodyweight exercises always
// match the equipment conditions.
func exerciseQuery(f gateway.ExerciseFilter) (string, []any) {
	var where []string
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if f.GymID != "" {
		where = append(where, "(bodyweight OR equipment_keys <@ (SELECT equipment_keys FROM gyms WHERE id = "+arg(f.GymID)+"))")
	}
	if len(f.EquipmentKeys) > 0 {
		where = append(where, "(bodyweight OR equipment_keys <@ "+arg(f.EquipmentKeys)+")")
	}
	if s := strings.TrimSpace(f.Search); s != "" {
		where = append(where, "name ILIKE '%' || "+arg(s)+" || '%'")
	}

	query := `SELECT key, name, description, equipment_keys, bodyweight FROM exercises`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	return query + " ORDER BY name", args
}

// ListExercises returns catalog exercises usable under f.
func (db *DB) ListExercises(ctx context.Context, f gateway.ExerciseFilter) ([]models.Exercise, error) {
	query, args := exerciseQuery(f)
	rows, err := db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying exercises: %w", err)
	}
	defer rows.Close()

	result := []models.Exercise{}
	for rows.Next() {
		var e models.Exercise
		if err := rows.Scan(&e.Key, &e.Name, &e.Description, &e.EquipmentKeys, &e.Bodyweight); err != nil {
			return nil, fmt.Errorf("scanning exercise: %w", err)
		}
		result = append(result, e)
	}
	return result, rows.Err()
}

// ListMethods returns every training method.
func (db *DB) ListMethods(ctx context.Context) ([]models.Method, error) {
	rows, err := db.Pool.Query(ctx,
		`SELECT key, name, focus, intensity, duration_min, scheme FROM methods ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("querying methods: %w", err)
	}
	defer rows.Close()

	result := []models.Method{}
	for rows.Next() {
		var m models.Method
		if err := rows.Scan(&m.Key, &m.Name, &m.Focus, &m.Intensity, &m.DurationMin, &m.Scheme); err != nil {
			return nil, fmt.Errorf("scanning method: %w", err)
		}
		result = append(result, m)
	}
	return result, rows.Err()
}

// UpsertGyms loads or refreshes gym rows, used to import the municipal gym
// registry.
func (db *DB) UpsertGyms(ctx context.Context, gyms []models.Gym) (int64, error) {
	if len(gyms) == 0 {
		return 0, nil
	}

	query := `INSERT INTO gyms (id, name, municipality, lat, lon, equipment_keys) VALUES `
	args := make([]any, 0, len(gyms)*6)
	valueStrings := make([]string, 0, len(gyms))

	for i, g := range gyms {
		base := i * 6
		valueStrings = append(valueStrings, fmt.Sprintf(
			"($%d,$%d,$%d,$%d,$%d,$%d)",
			base+1, base+2, base+3, base+4, base+5, base+6,
		))
		keys := models.NormalizeKeys(g.EquipmentKeys)
		args = append(args, g.ID, g.Name, g.Municipality, g.Lat, g.Lon, keys)
	}

	query += strings.Join(valueStrings, ",") + `
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name, municipality = EXCLUDED.municipality,
			lat = EXCLUDED.lat, lon = EXCLUDED.lon, equipment_keys = EXCLUDED.equipment_keys`

	tag, err := db.Pool.Exec(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("upserting gyms: %w", err)
	}
	return tag.RowsAffected(), nil
}

// UpsertExercises loads or refreshes catalog exercises.
func (db *DB) UpsertExercises(ctx context.Context, exercises []models.Exercise) (int64, error) {
	if len(exercises) == 0 {
		return 0, nil
	}

	query := `INSERT INTO exercises (key, name, description, equipment_keys, bodyweight) VALUES `
	args := make([]any, 0, len(exercises)*5)
	valueStrings := make([]string, 0, len(exercises))

	for i, e := range exercises {
		base := i * 5
		valueStrings = append(valueStrings, fmt.Sprintf(
			"($%d,$%d,$%d,$%d,$%d)",
			base+1, base+2, base+3, base+4, base+5,
		))
		args = append(args, e.Key, e.Name, e.Description, models.NormalizeKeys(e.EquipmentKeys), e.Bodyweight)
	}

	query += strings.Join(valueStrings, ",") + `
		ON CONFLICT (key) DO UPDATE SET
			name = EXCLUDED.name, description = EXCLUDED.description,
			equipment_keys = EXCLUDED.equipment_keys, bodyweight = EXCLUDED.bodyweight`

	tag, err := db.Pool.Exec(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("upserting exercises: %w", err)
	}
	return tag.RowsAffected(), nil
}

// UpsertMethods loads or refreshes training methods.
func (db *DB) UpsertMethods(ctx context.Context, methods []models.Method) (int64, error) {
	if len(methods) == 0 {
		return 0, nil
	}

	query := `INSERT INTO methods (key, name, focus, intensity, duration_min, scheme) VALUES `
	args := make([]any, 0, len(methods)*6)
	valueStrings := make([]string, 0, len(methods))

	for i, m := range methods {
		base := i * 6
		valueStrings = append(valueStrings, fmt.Sprintf(
			"($%d,$%d,$%d,$%d,$%d,$%d)",
			base+1, base+2, base+3, base+4, base+5, base+6,
		))
		args = append(args, m.Key, m.Name, m.Focus, m.Intensity, m.DurationMin, m.Scheme)
	}

	query += strings.Join(valueStrings, ",") + `
		ON CONFLICT (key) DO UPDATE SET
			name = EXCLUDED.name, focus = EXCLUDED.focus, intensity = EXCLUDED.intensity,
			duration_min = EXCLUDED.duration_min, scheme = EXCLUDED.scheme`

	tag, err := db.Pool.Exec(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("upserting methods: %w", err)
	}
	return tag.RowsAffected(), nil
}
