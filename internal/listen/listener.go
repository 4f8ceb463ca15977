// Package listen implements the asynchronous change-notification
// subscriber: a single dedicated connection issuing LISTEN on a channel
// and a cooperative blocking wait loop dispatching to user callbacks on
// notification arrival, idle timeout, graceful shutdown, and unexpected
// error. It also carries the DDL builders that wire a table's insert and
// update events to pg_notify.
package listen

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"pgbridge/internal/config"
	"pgbridge/internal/metrics"
	"pgbridge/internal/pool"
)

// ErrStop is the sentinel a callback returns to request a graceful stop of
// the poll loop.
var ErrStop = errors.New("listen: stop requested")

// DefaultWaitTimeout bounds one blocking wait when no timeout is given.
const DefaultWaitTimeout = 5 * time.Second

// unlistenTimeout bounds the best-effort UNLISTEN on the way out.
const unlistenTimeout = 2 * time.Second

// Handlers carries the optional callbacks of one poll session. Any nil
// callback is skipped.
//
// OnNotify receives each payload verbatim, in server order. OnTimeout
// fires after each idle wait that expired with no data. Errors returned
// from either are logged and swallowed per invocation, except ErrStop
// which ends the loop gracefully. OnClose runs after a graceful exit
// (ErrStop or context cancellation); OnError runs with the terminal error
// otherwise. OnClose and OnError are not guarded; keep them trivial.
type Handlers struct {
	OnNotify  func(payload string) error
	OnTimeout func() error
	OnClose   func()
	OnError   func(err error)
}

// conn is the slice of pgx.Conn behavior the listener uses, extracted so
// tests can script notification sequences.
type conn interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	WaitForNotification(ctx context.Context) (*pgconn.Notification, error)
	Close(ctx context.Context) error
}

// Listener runs poll sessions over one dedicated connection per session,
// dialed outside the pool in autocommit mode. A Listener is not safe for
// concurrent Poll calls; embedders wanting several channels run one
// Listener per channel on their own goroutines.
type Listener struct {
	dial    func(ctx context.Context) (conn, error)
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// New creates a Listener dialing dedicated connections from the database
// configuration. logger and m may be nil.
func New(cfg config.DatabaseConfig, logger *slog.Logger, m *metrics.Metrics) *Listener {
	if logger == nil {
		logger = slog.Default()
	}
	return &Listener{
		dial: func(ctx context.Context) (conn, error) {
			cc, err := pool.ConnConfig(cfg)
			if err != nil {
				return nil, err
			}
			return pgx.ConnectConfig(ctx, cc)
		},
		logger:  logger,
		metrics: m,
	}
}

// Poll subscribes to channel and blocks dispatching callbacks until the
// context is canceled, a callback returns ErrStop, or the connection
// fails. Each blocking wait is bounded by timeout (DefaultWaitTimeout when
// zero). UNLISTEN is issued before the connection is released on every
// exit path.
//
// Graceful exits invoke OnClose and return nil; any other exit invokes
// OnError with the terminal error and returns it.
func (l *Listener) Poll(ctx context.Context, channel string, h Handlers, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = DefaultWaitTimeout
	}
	log := l.logger.With("channel", channel, "session", uuid.NewString())

	c, err := l.dial(ctx)
	if err != nil {
		return fmt.Errorf("listen: dial: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), unlistenTimeout)
		defer cancel()
		if err := c.Close(closeCtx); err != nil {
			log.Warn("failed to close listener connection", "error", err)
		}
	}()

	quoted := pgx.Identifier{channel}.Sanitize()
	if _, err := c.Exec(ctx, "LISTEN "+quoted); err != nil {
		return fmt.Errorf("listen: subscribe to %s: %w", channel, err)
	}
	log.Info("listening")

	loopErr := l.loop(ctx, c, channel, h, timeout, log)

	// UNLISTEN runs on a fresh deadline: the loop context is usually
	// already canceled by the time we get here.
	unlistenCtx, cancel := context.WithTimeout(context.Background(), unlistenTimeout)
	defer cancel()
	if _, err := c.Exec(unlistenCtx, "UNLISTEN "+quoted); err != nil {
		log.Warn("failed to unlisten", "error", err)
	}

	if loopErr == nil || errors.Is(loopErr, ErrStop) || errors.Is(loopErr, context.Canceled) {
		log.Info("listener stopped")
		if h.OnClose != nil {
			h.OnClose()
		}
		return nil
	}
	log.Error("listener failed", "error", loopErr)
	if h.OnError != nil {
		h.OnError(loopErr)
	}
	return loopErr
}

// loop is the blocking wait cycle. It returns ErrStop or a context error
// for graceful exits and the driver error otherwise.
func (l *Listener) loop(ctx context.Context, c conn, channel string, h Handlers, timeout time.Duration, log *slog.Logger) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		waitCtx, cancel := context.WithTimeout(ctx, timeout)
		n, err := c.WaitForNotification(waitCtx)
		cancel()

		switch {
		case err == nil:
			l.metrics.ObserveNotification(channel)
			if stop := l.invoke(channel, log, "notify", func() error { return h.OnNotify(n.Payload) }, h.OnNotify == nil); stop {
				return ErrStop
			}
		case ctx.Err() != nil:
			return ctx.Err()
		case errors.Is(err, context.DeadlineExceeded):
			l.metrics.ObserveWaitTimeout(channel)
			if stop := l.invoke(channel, log, "timeout", h.OnTimeout, h.OnTimeout == nil); stop {
				return ErrStop
			}
		default:
			return err
		}
	}
}

// invoke runs one guarded callback. Panics and returned errors are logged
// and swallowed so one bad payload cannot stop the subscription; only
// ErrStop propagates, as a stop request.
func (l *Listener) invoke(channel string, log *slog.Logger, kind string, fn func() error, skip bool) (stop bool) {
	if skip {
		return false
	}
	defer func() {
		if r := recover(); r != nil {
			l.metrics.ObserveCallbackFailure(channel)
			log.Error("callback panicked", "callback", kind, "panic", r)
			stop = false
		}
	}()
	if err := fn(); err != nil {
		if errors.Is(err, ErrStop) {
			return true
		}
		l.metrics.ObserveCallbackFailure(channel)
		log.Error("callback failed", "callback", kind, "error", err)
	}
	return false
}
