package pool

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"time"

	"pgbridge/internal/config"
)

// Guard performs scoped connection acquisition: it draws a connection from
// the Source, optionally verifies liveness with bounded retries, hands the
// connection to the caller's function, and returns it to the pool on every
// exit path (success, error, or panic).
//
// The liveness contract is best effort, not a guarantee: once the retry
// budget is exhausted the last drawn connection is yielded even if it still
// looks dead, and the caller's first real use surfaces the failure.
type Guard struct {
	src           Source
	prePing       bool
	maxReconnects int
	logger        *slog.Logger

	// sleep and jitter are injection points for tests.
	sleep  func(time.Duration)
	jitter func() float64

	onRebuild func()
}

// SetOnRebuild installs a hook invoked after every pool rebuild, used to
// feed the rebuild counter without coupling this package to the metrics
// sink.
func (g *Guard) SetOnRebuild(fn func()) {
	g.onRebuild = fn
}

// NewGuard creates a Guard over the given Source using the configured
// liveness policy.
func NewGuard(src Source, cfg config.DatabaseConfig, logger *slog.Logger) *Guard {
	if logger == nil {
		logger = slog.Default()
	}
	maxReconnects := cfg.MaxReconnects
	if maxReconnects < 1 {
		maxReconnects = 3
	}
	return &Guard{
		src:           src,
		prePing:       cfg.PrePing,
		maxReconnects: maxReconnects,
		logger:        logger,
		sleep:         time.Sleep,
		jitter:        rand.Float64,
	}
}

// WithConn acquires a connection, runs fn with it, and releases it. When
// pre-ping is enabled the connection is verified first; see acquireLive.
func (g *Guard) WithConn(ctx context.Context, fn func(Conn) error) error {
	conn, err := g.acquireLive(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()
	return fn(conn)
}

// acquireLive draws a connection and, when pre-ping is enabled, runs up to
// maxReconnects liveness attempts. A dead connection triggers a rebuild of
// the whole pool; the first failure rebuilds immediately, every later
// failure sleeps an exponential backoff interval before rebuilding. After
// the budget is exhausted the last drawn connection is returned as is.
//
// Rebuilding the entire pool rather than discarding one connection trades
// some inefficiency for correctness: the pooling primitive offers no
// fine-grained invalidation, and a proxy that dropped one idle connection
// has usually dropped its siblings too.
func (g *Guard) acquireLive(ctx context.Context) (Conn, error) {
	conn, err := g.src.AcquireConn(ctx)
	if err != nil || !g.prePing {
		return conn, err
	}

	for n := 0; n < g.maxReconnects; n++ {
		if g.ping(ctx, conn) {
			break
		}
		if n > 0 {
			d := backoffDelay(n-1, g.jitter())
			g.logger.Warn("connection still dead, backing off before pool rebuild",
				"attempt", n+1, "sleep", d)
			g.sleep(d)
		} else {
			g.logger.Warn("dead connection detected, rebuilding pool")
		}
		conn.Release()
		if err := g.src.Restart(ctx); err != nil {
			return nil, err
		}
		if g.onRebuild != nil {
			g.onRebuild()
		}
		conn, err = g.src.AcquireConn(ctx)
		if err != nil {
			return nil, err
		}
	}
	return conn, nil
}

// ping runs the trivial liveness query and compares the first returned
// value to 1.
func (g *Guard) ping(ctx context.Context, conn Conn) bool {
	var one int
	if err := conn.QueryRow(ctx, "SELECT 1").Scan(&one); err != nil {
		return false
	}
	return one == 1
}

// backoffDelay computes 2^n seconds plus up to one second of jitter, where
// n is the zero-based retry index excluding the first failed attempt.
func backoffDelay(n int, jitter float64) time.Duration {
	return time.Duration(1<<uint(n))*time.Second + time.Duration(jitter*float64(time.Second))
}
