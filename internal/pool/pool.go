// Package pool owns the pooled PostgreSQL connections used by the rest of
// the toolkit. It wraps pgxpool (the pooling primitive) behind the Source
// contract and adds the scoped-acquisition Guard with its ping-based
// liveness check and whole-pool rebuild on failure.
package pool

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"pgbridge/internal/config"
)

// Conn is the subset of pooled-connection behavior the toolkit consumes.
// It is satisfied by *pgxpool.Conn and by test doubles. Callers receive a
// Conn only through a Guard scope and must not retain it past scope exit.
type Conn interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Conn() *pgx.Conn
	Release()
}

// Source is the capability contract for connection ownership: acquire a
// connection, rebuild the pool in place, tear everything down. It has one
// production implementation (Pool); tests substitute fakes.
type Source interface {
	AcquireConn(ctx context.Context) (Conn, error)
	Restart(ctx context.Context) error
	CloseAll()
	Closed() bool
}

// Stat is a snapshot of pool bookkeeping, exposed for the ops surface.
type Stat struct {
	AcquiredConns int32 `json:"acquired_conns"`
	IdleConns     int32 `json:"idle_conns"`
	TotalConns    int32 `json:"total_conns"`
	MaxConns      int32 `json:"max_conns"`
}

// Pool is a fixed-capacity pool of live database connections bound to one
// database target. The inner pgxpool is created lazily on first acquire,
// so Closed reports true both before first use and after CloseAll. Checkout
// exclusivity and blocking-when-exhausted semantics are delegated to
// pgxpool.
//
// A Pool is intended to be created once per logical database target and
// shared explicitly by everything talking to that target.
type Pool struct {
	cfg    config.DatabaseConfig
	logger *slog.Logger

	mu   sync.Mutex
	pool *pgxpool.Pool
}

// New creates a Pool for the given database target. No connections are
// established until the first acquisition.
func New(cfg config.DatabaseConfig, logger *slog.Logger) *Pool {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pool{cfg: cfg, logger: logger}
}

// AcquireConn draws a connection from the pool, initializing the pool on
// first use. It blocks until a connection is available or the context is
// done; pool exhaustion blocks rather than fails.
func (p *Pool) AcquireConn(ctx context.Context) (Conn, error) {
	inner, err := p.ensure(ctx)
	if err != nil {
		return nil, err
	}
	conn, err := inner.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("pool: acquire: %w", err)
	}
	return conn, nil
}

// Restart closes every connection the pool tracks and allocates a fresh
// pool with identical parameters. Connections still checked out belong to
// the old pool and are discarded when released.
func (p *Pool) Restart(ctx context.Context) error {
	p.CloseAll()
	_, err := p.ensure(ctx)
	return err
}

// CloseAll closes every connection the pool currently tracks and marks the
// pool closed. Safe to call multiple times; a no-op when already closed.
func (p *Pool) CloseAll() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.pool == nil {
		return
	}
	p.pool.Close()
	p.pool = nil
	p.logger.Info("connection pool closed", "db", p.cfg.Name)
}

// Closed reports whether the pool has never been initialized or has been
// closed.
func (p *Pool) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pool == nil
}

// Stat returns a snapshot of the pool bookkeeping. All counters are zero
// while the pool is closed.
func (p *Pool) Stat() Stat {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.pool == nil {
		return Stat{MaxConns: int32(p.cfg.MaxConns)}
	}
	s := p.pool.Stat()
	return Stat{
		AcquiredConns: s.AcquiredConns(),
		IdleConns:     s.IdleConns(),
		TotalConns:    s.TotalConns(),
		MaxConns:      s.MaxConns(),
	}
}

// ensure returns the inner pgxpool, creating it when absent.
func (p *Pool) ensure(ctx context.Context) (*pgxpool.Pool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.pool != nil {
		return p.pool, nil
	}

	pc, err := pgxpool.ParseConfig(DSN(p.cfg))
	if err != nil {
		return nil, fmt.Errorf("pool: parse config: %w", err)
	}
	pc.MaxConns = int32(p.cfg.MaxConns)
	if pc.MaxConns < 1 {
		pc.MaxConns = 1
	}
	pc.MinConns = 1
	if p.cfg.Schema != "" {
		pc.ConnConfig.RuntimeParams["search_path"] = p.cfg.Schema
	}

	inner, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, fmt.Errorf("pool: create: %w", err)
	}
	p.pool = inner
	p.logger.Info("connection pool created",
		"db", p.cfg.Name, "host", p.cfg.Host, "max_conns", pc.MaxConns)
	return inner, nil
}
