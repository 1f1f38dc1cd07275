// Package importer loads the gym, exercise and method catalog from JSON
// files into the server database.
package importer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/claude/utegym/internal/models"
	"github.com/spf13/afero"
)

// Catalog file names looked up in the import directory.
const (
	GymsFile      = "gyms.json"
	ExercisesFile = "exercises.json"
	MethodsFile   = "methods.json"
)

// Postgres allows 65535 parameters per statement; six per gym row.
const batchSize = 5000

// Sink receives validated catalog rows. *storage.DB satisfies it.
type Sink interface {
	UpsertGyms(ctx context.Context, gyms []models.Gym) (int64, error)
	UpsertExercises(ctx context.Context, exercises []models.Exercise) (int64, error)
	UpsertMethods(ctx context.Context, methods []models.Method) (int64, error)
}

// Stats tracks import progress.
type Stats struct {
	FilesProcessed int
	FilesMissing   int

	GymsRead         int
	GymsWritten      int64
	ExercisesRead    int
	ExercisesWritten int64
	MethodsRead      int
	MethodsWritten   int64
	RecordsRejected  int
	RejectedExamples []string
}

// Importer reads catalog files and writes them to a Sink.
type Importer struct {
	sink   Sink
	fs     afero.Fs
	log    *slog.Logger
	dryRun bool
	stats  Stats
}

func New(sink Sink, fsys afero.Fs, log *slog.Logger, dryRun bool) *Importer {
	return &Importer{sink: sink, fs: fsys, log: log, dryRun: dryRun}
}

// Import processes the catalog files in dir. Missing files are skipped;
// records without an id or name are rejected individually.
func (imp *Importer) Import(ctx context.Context, dir string) (*Stats, error) {
	var err error
	imp.stats.GymsRead, imp.stats.GymsWritten, err = importFile(ctx, imp,
		filepath.Join(dir, GymsFile), imp.validGyms, imp.sink.UpsertGyms)
	if err != nil {
		return &imp.stats, fmt.Errorf("importing gyms: %w", err)
	}
	imp.stats.ExercisesRead, imp.stats.ExercisesWritten, err = importFile(ctx, imp,
		filepath.Join(dir, ExercisesFile), imp.validExercises, imp.sink.UpsertExercises)
	if err != nil {
		return &imp.stats, fmt.Errorf("importing exercises: %w", err)
	}
	imp.stats.MethodsRead, imp.stats.MethodsWritten, err = importFile(ctx, imp,
		filepath.Join(dir, MethodsFile), imp.validMethods, imp.sink.UpsertMethods)
	if err != nil {
		return &imp.stats, fmt.Errorf("importing methods: %w", err)
	}
	return &imp.stats, nil
}

func importFile[T any](ctx context.Context, imp *Importer, path string,
	validate func([]T) []T, write func(context.Context, []T) (int64, error)) (int, int64, error) {
	var rows []T
	ok, err := imp.readFile(path, &rows)
	if err != nil || !ok {
		return 0, 0, err
	}
	rows = validate(rows)
	n, err := writeBatches(ctx, imp, rows, write)
	return len(rows), n, err
}

func (imp *Importer) readFile(path string, v any) (bool, error) {
	data, err := afero.ReadFile(imp.fs, path)
	if errors.Is(err, fs.ErrNotExist) {
		imp.stats.FilesMissing++
		imp.log.Info("catalog file not found, skipping", "file", path)
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("reading %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("parsing %s: %w", path, err)
	}
	imp.stats.FilesProcessed++
	return true, nil
}

func (imp *Importer) reject(kind string, i int, reason string) {
	imp.stats.RecordsRejected++
	if len(imp.stats.RejectedExamples) < 10 {
		imp.stats.RejectedExamples = append(imp.stats.RejectedExamples, fmt.Sprintf("%s #%d: %s", kind, i, reason))
	}
	imp.log.Warn("rejecting catalog record", "kind", kind, "index", i, "reason", reason)
}

func (imp *Importer) validGyms(in []models.Gym) []models.Gym {
	out := make([]models.Gym, 0, len(in))
	seen := map[string]bool{}
	for i, g := range in {
		g.ID = strings.TrimSpace(g.ID)
		g.Name = strings.TrimSpace(g.Name)
		switch {
		case g.ID == "" || g.Name == "":
			imp.reject("gym", i, "missing id or name")
			continue
		case seen[g.ID]:
			imp.reject("gym", i, "duplicate id "+g.ID)
			continue
		case g.Lat < -90 || g.Lat > 90 || g.Lon < -180 || g.Lon > 180:
			imp.reject("gym", i, "coordinates out of range")
			continue
		}
		seen[g.ID] = true
		g.EquipmentKeys = models.NormalizeKeys(g.EquipmentKeys)
		out = append(out, g)
	}
	return out
}

func (imp *Importer) validExercises(in []models.Exercise) []models.Exercise {
	out := make([]models.Exercise, 0, len(in))
	seen := map[string]bool{}
	for i, e := range in {
		e.Key = strings.TrimSpace(e.Key)
		if e.Key == "" || strings.TrimSpace(e.Name) == "" {
			imp.reject("exercise", i, "missing key or name")
			continue
		}
		if seen[e.Key] {
			imp.reject("exercise", i, "duplicate key "+e.Key)
			continue
		}
		seen[e.Key] = true
		e.EquipmentKeys = models.NormalizeKeys(e.EquipmentKeys)
		if len(e.EquipmentKeys) == 0 {
			e.Bodyweight = true
		}
		out = append(out, e)
	}
	return out
}

func (imp *Importer) validMethods(in []models.Method) []models.Method {
	out := make([]models.Method, 0, len(in))
	seen := map[string]bool{}
	for i, m := range in {
		m.Key = strings.TrimSpace(m.Key)
		if m.Key == "" || strings.TrimSpace(m.Name) == "" {
			imp.reject("method", i, "missing key or name")
			continue
		}
		if seen[m.Key] {
			imp.reject("method", i, "duplicate key "+m.Key)
			continue
		}
		seen[m.Key] = true
		if m.Scheme.Sets != 0 {
			m.Scheme.Sets = models.ClampSets(m.Scheme.Sets)
		}
		out = append(out, m)
	}
	return out
}

// writeBatches hands rows to write in chunks that stay within the
// Postgres parameter limit. In dry-run mode nothing is written and the
// row count is reported as written.
func writeBatches[T any](ctx context.Context, imp *Importer, rows []T, write func(context.Context, []T) (int64, error)) (int64, error) {
	if imp.dryRun {
		return int64(len(rows)), nil
	}
	var total int64
	for i := 0; i < len(rows); i += batchSize {
		end := min(i+batchSize, len(rows))
		n, err := write(ctx, rows[i:end])
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}
