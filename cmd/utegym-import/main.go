package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/claude/utegym/internal/config"
	"github.com/claude/utegym/internal/importer"
	"github.com/claude/utegym/internal/storage"
	"github.com/spf13/afero"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	catalogPath := flag.String("path", "", "directory containing gyms.json, exercises.json and methods.json (required)")
	migrationsDir := flag.String("migrations", "migrations", "path to migrations directory")
	dryRun := flag.Bool("dry-run", false, "validate and count without writing to the database")
	flag.Parse()

	log := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	if *catalogPath == "" {
		fmt.Fprintf(os.Stderr, "Usage: utegym-import -config config.yaml -path /path/to/catalog [-dry-run]\n")
		flag.PrintDefaults()
		os.Exit(1)
	}

	info, err := os.Stat(*catalogPath)
	if err != nil || !info.IsDir() {
		log.Error("catalog path does not exist or is not a directory", "path", *catalogPath)
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	dsn := cfg.Database.DSN()
	if err := storage.RunMigrations(dsn, *migrationsDir); err != nil {
		log.Error("migration failed", "error", err)
		os.Exit(1)
	}
	log.Info("migrations applied")

	ctx := context.Background()

	if *dryRun {
		log.Info("DRY RUN mode: no data will be written to the database")
	}

	db, err := storage.New(ctx, dsn, cfg.Database.MaxConns)
	if err != nil {
		log.Error("failed to connect database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	log.Info("database connected")

	imp := importer.New(db, afero.NewOsFs(), log, *dryRun)
	stats, err := imp.Import(ctx, *catalogPath)
	if err != nil {
		log.Error("import failed", "error", err)
		printStats(log, stats)
		os.Exit(1)
	}

	printStats(log, stats)
	log.Info("import complete")
}

func printStats(log *slog.Logger, stats *importer.Stats) {
	if stats == nil {
		return
	}
	log.Info("import stats",
		"files_processed", stats.FilesProcessed,
		"files_missing", stats.FilesMissing,
		"gyms_read", stats.GymsRead,
		"gyms_written", stats.GymsWritten,
		"exercises_read", stats.ExercisesRead,
		"exercises_written", stats.ExercisesWritten,
		"methods_read", stats.MethodsRead,
		"methods_written", stats.MethodsWritten,
		"records_rejected", stats.RecordsRejected,
	)
	if len(stats.RejectedExamples) > 0 {
		log.Info("rejected records", "examples", stats.RejectedExamples)
	}
}
