package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/claude/utegym/internal/config"
	"github.com/claude/utegym/internal/gateway"
	utemcp "github.com/claude/utegym/internal/mcp"
	"github.com/claude/utegym/internal/storage"
	"github.com/mark3labs/mcp-go/server"
)

// Version is set at build time via -ldflags.
var Version = "dev"

func main() {
	configPath := flag.String("config", "", "server config file; connects to the database directly")
	serverURL := flag.String("server", "", "Utegym server URL; used when -config is not set")
	apiKey := flag.String("api-key", os.Getenv("UTEGYM_API_KEY"), "API key for -server")
	userID := flag.String("user", utemcp.DefaultUser, "user whose workouts are exposed")
	flag.Parse()

	// stdout carries the protocol; logs go to stderr.
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	ctx := context.Background()
	var ds utemcp.DataSource

	switch {
	case *configPath != "":
		cfg, err := config.Load(*configPath)
		if err != nil {
			log.Error("failed to load config", "error", err)
			os.Exit(1)
		}
		db, err := storage.New(ctx, cfg.Database.DSN(), cfg.Database.MaxConns)
		if err != nil {
			log.Error("failed to connect database", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		ds = db
	case *serverURL != "":
		client := gateway.NewHTTPClient(*serverURL, *apiKey, *userID).WithRetry(2, 500*time.Millisecond)
		ds = utemcp.Cached(gateway.NewReferenceCache(client, log))
	default:
		fmt.Fprintf(os.Stderr, "Usage: utegym-mcp (-config config.yaml | -server URL) [-user ID]\n")
		flag.PrintDefaults()
		os.Exit(1)
	}

	s := utemcp.New(ds, Version, log)
	user := *userID
	err := server.ServeStdio(s, server.WithStdioContextFunc(func(ctx context.Context) context.Context {
		return utemcp.WithUserID(ctx, user)
	}))
	if err != nil {
		log.Error("mcp server stopped", "error", err)
		os.Exit(1)
	}
}
