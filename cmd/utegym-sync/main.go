package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/claude/utegym/internal/config"
	"github.com/claude/utegym/internal/gateway"
	"github.com/claude/utegym/internal/localstore"
	"github.com/claude/utegym/internal/syncer"
	"github.com/spf13/afero"
)

// Version is set at build time via -ldflags.
var Version = "dev"

func main() {
	configPath := flag.String("config", "", "path to device config file (optional)")
	status := flag.Bool("status", false, "print the current run and pending queue, then exit")
	watch := flag.Bool("watch", false, "keep running and sync whenever the server becomes reachable")
	interval := flag.Duration("interval", 30*time.Second, "reachability probe interval in watch mode")
	retries := flag.Int("retries", 3, "attempts per request before an item is left for the next sync")
	version := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *version {
		fmt.Println("utegym-sync", Version)
		return
	}

	log := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	cfg, err := config.LoadDevice(*configPath)
	if err != nil {
		log.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	kv, closeKV, err := openKV(cfg)
	if err != nil {
		log.Error("failed to open local store", "backend", cfg.Backend, "error", err)
		os.Exit(1)
	}
	defer closeKV()
	store := localstore.New(kv, log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *status {
		printStatus(ctx, store, cfg.User())
		return
	}

	if !cfg.Online() {
		fmt.Fprintf(os.Stderr, "Error: no server configured (set server_url or UTEGYM_SERVER_URL)\n")
		os.Exit(1)
	}

	if cfg.User() == nil {
		log.Warn("no user configured; workouts finished as guest stay queued")
	}

	client := gateway.NewHTTPClient(cfg.ServerURL, cfg.APIKey, cfg.UserID).WithRetry(*retries, time.Second)
	engine := syncer.New(store, client, log)

	if !*watch {
		stats := engine.Drain(ctx)
		log.Info("sync complete",
			"attempted", stats.Attempted,
			"synced", stats.Synced,
			"failed", stats.Failed,
			"skipped", stats.Skipped,
		)
		if stats.Failed > 0 {
			os.Exit(1)
		}
		return
	}

	// One attempt per probe; the interval is the retry.
	prober := gateway.NewHTTPClient(cfg.ServerURL, cfg.APIKey, cfg.UserID).WithRetry(1, 0)
	online := make(chan bool)
	go probe(ctx, prober, *interval, online)
	log.Info("watching connectivity", "server", cfg.ServerURL, "interval", *interval)
	engine.Watch(ctx, online)
	log.Info("sync watcher stopped")
}

func openKV(cfg *config.DeviceConfig) (localstore.KV, func(), error) {
	switch cfg.Backend {
	case config.BackendFile:
		return localstore.NewFileKV(afero.NewOsFs(), cfg.StateDir), func() {}, nil
	default:
		kv, err := localstore.OpenSQLite(cfg.StateDir)
		if err != nil {
			return nil, nil, err
		}
		return kv, func() { kv.Close() }, nil
	}
}

// probe reports server reachability on online until ctx is cancelled.
func probe(ctx context.Context, client *gateway.HTTPClient, every time.Duration, online chan<- bool) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := client.Ping(pingCtx)
		cancel()

		select {
		case online <- err == nil:
		case <-ctx.Done():
			return
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return
		}
	}
}

func printStatus(ctx context.Context, store *localstore.Store, device *string) {
	if device != nil {
		fmt.Printf("device user: %s\n", *device)
	} else {
		fmt.Println("device user: guest")
	}

	if run := store.CurrentRun(ctx); run != nil {
		done, total := 0, 0
		for _, l := range run.Logs {
			for _, s := range l.Sets {
				total++
				if s.Done {
					done++
				}
			}
		}
		fmt.Printf("current run: %s started %s, %d/%d sets done\n",
			run.ClientKey, run.StartedAt.Format(time.RFC3339), done, total)
	} else {
		fmt.Println("current run: none")
	}

	pending := store.PendingWorkouts(ctx)
	fmt.Printf("pending workouts: %d\n", len(pending))
	for _, p := range pending {
		user := "guest (login required)"
		if p.UserID != nil {
			user = *p.UserID
		}
		fmt.Printf("  %s  %s  user=%s\n", p.ID, p.FinishedAt.Format(time.RFC3339), user)
	}
}
