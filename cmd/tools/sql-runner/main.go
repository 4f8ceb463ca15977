// Package main is a one-shot tool that runs a SQL script against the
// configured database. The whole script is sent in one round trip and runs
// in a single implicit transaction on the server.
//
// Usage:
//
//	sql-runner -file schema.sql
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"pgbridge/internal/config"
	"pgbridge/internal/db"
)

func main() {
	file := flag.String("file", "", "path to the SQL script to execute")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	if *file == "" {
		logger.Error("-file is required")
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	script, err := os.ReadFile(*file)
	if err != nil {
		logger.Error("failed to read script", "file", *file, "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := db.NewClient(cfg.Database, logger, nil)
	defer client.Close()

	if err := client.Exec.RunScript(ctx, string(script)); err != nil {
		logger.Error("script failed", "file", *file, "error", err)
		os.Exit(1)
	}
	logger.Info("script executed", "file", *file)
}
