// Package main is the entrypoint for the notify-listener daemon.
//
// The daemon subscribes to a notification channel and logs every payload
// it receives. It exposes an operational HTTP surface (/healthz, /stats,
// /metrics) and keeps re-subscribing after failures, with a circuit
// breaker so a database that is down is not hammered. SIGINT/SIGTERM
// trigger a graceful shutdown: the poll loop unlistens and releases its
// connection before the process exits.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sony/gobreaker/v2"
	"golang.org/x/sync/errgroup"

	"pgbridge/internal/config"
	"pgbridge/internal/db"
	"pgbridge/internal/health"
	"pgbridge/internal/listen"
	"pgbridge/internal/metrics"
)

const metricsNamespace = "pgbridge"

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel(cfg.App.LogLevel),
	}))
	slog.SetDefault(logger)

	if cfg.Listener.Channel == "" {
		logger.Error("PGB_CHANNEL must be set")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New(metricsNamespace)
	client := db.NewClient(cfg.Database, logger, m)
	defer client.Close()
	m.RegisterPoolStats(metricsNamespace, func() (int32, int32, int32, int32) {
		s := client.Stat()
		return s.AcquiredConns, s.IdleConns, s.TotalConns, s.MaxConns
	})

	listener := listen.New(cfg.Database, logger, m)

	srv := &http.Server{
		Addr:              cfg.Ops.Addr,
		Handler:           health.NewRouter(client, client, m.Handler(), logger),
		ReadHeaderTimeout: 5 * time.Second,
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		logger.Info("ops server listening", "addr", cfg.Ops.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		defer cancel()
		return supervise(gctx, listener, cfg.Listener, logHandlers(logger), logger)
	})

	if err := g.Wait(); err != nil {
		logger.Error("daemon exited with error", "error", err)
		os.Exit(1)
	}
	logger.Info("daemon stopped")
}

// supervise keeps one poll session alive, re-subscribing after failures.
// The circuit breaker opens after consecutive failures and forces a longer
// pause between attempts while open.
func supervise(ctx context.Context, l *listen.Listener, lc config.ListenerConfig, h listen.Handlers, logger *slog.Logger) error {
	cb := gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:    "notify-listener",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
	})

	for {
		if ctx.Err() != nil {
			return nil
		}
		_, err := cb.Execute(func() (struct{}, error) {
			return struct{}{}, l.Poll(ctx, lc.Channel, h, lc.WaitTimeout)
		})
		if ctx.Err() != nil {
			return nil
		}
		if err == nil {
			// A callback requested a stop; honor it.
			return nil
		}

		delay := retryDelay(lc.RetryInterval, err)
		logger.Warn("listener session ended, retrying", "error", err, "sleep", delay)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}
	}
}

// retryDelay stretches the pause while the breaker is open.
func retryDelay(base time.Duration, err error) time.Duration {
	if base <= 0 {
		base = 5 * time.Second
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return base * 4
	}
	return base
}

// logHandlers builds the callback set: payloads and lifecycle transitions
// are logged, nothing else.
func logHandlers(logger *slog.Logger) listen.Handlers {
	return listen.Handlers{
		OnNotify: func(payload string) error {
			logger.Info("notification received", "payload", payload)
			return nil
		},
		OnTimeout: func() error {
			logger.Debug("idle wait timed out")
			return nil
		},
		OnClose: func() {
			logger.Info("listener closed")
		},
		OnError: func(err error) {
			logger.Error("listener error", "error", err)
		},
	}
}

// logLevel maps the configured level name to a slog level.
func logLevel(name string) slog.Level {
	switch name {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
