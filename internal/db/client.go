package db

import (
	"context"
	"log/slog"

	"pgbridge/internal/catalog"
	"pgbridge/internal/config"
	"pgbridge/internal/metrics"
	"pgbridge/internal/pool"
)

// Client bundles the connection subsystem for one database target: the
// pool, the liveness-checking guard, the executor, and the catalog. It is
// the explicitly constructed, explicitly owned entry point; callers that
// want sharing pass the same instance around. One Client per logical
// database target.
type Client struct {
	Exec    *Executor
	Catalog *catalog.Catalog

	pool  *pool.Pool
	guard *pool.Guard
}

// NewClient wires a Client from the database configuration. logger and m
// may be nil.
func NewClient(cfg config.DatabaseConfig, logger *slog.Logger, m *metrics.Metrics) *Client {
	if logger == nil {
		logger = slog.Default()
	}

	p := pool.New(cfg, logger)
	g := pool.NewGuard(p, cfg, logger)
	g.SetOnRebuild(m.ObservePoolRebuild)
	exec := NewExecutor(g, cfg.Schema, logger, m)

	return &Client{
		Exec:    exec,
		Catalog: catalog.New(exec, cfg.Schema),
		pool:    p,
		guard:   g,
	}
}

// Ping verifies the database is reachable through a guarded connection.
func (c *Client) Ping(ctx context.Context) error {
	return c.Exec.Run(ctx, "SELECT 1")
}

// Stat returns the pool bookkeeping snapshot.
func (c *Client) Stat() pool.Stat {
	return c.pool.Stat()
}

// Close tears down the pool. Safe to call multiple times.
func (c *Client) Close() {
	c.pool.CloseAll()
}
