package listen

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedConn plays back a fixed sequence of wait outcomes.
type scriptedConn struct {
	waits     []func(ctx context.Context) (*pgconn.Notification, error)
	i         int
	execs     []string
	listenErr error
	closed    bool
}

func (c *scriptedConn) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	c.execs = append(c.execs, sql)
	if c.listenErr != nil && strings.HasPrefix(sql, "LISTEN") {
		return pgconn.CommandTag{}, c.listenErr
	}
	return pgconn.CommandTag{}, nil
}

func (c *scriptedConn) WaitForNotification(ctx context.Context) (*pgconn.Notification, error) {
	if c.i >= len(c.waits) {
		return nil, errors.New("script exhausted")
	}
	f := c.waits[c.i]
	c.i++
	return f(ctx)
}

func (c *scriptedConn) Close(ctx context.Context) error {
	c.closed = true
	return nil
}

func notify(payload string) func(ctx context.Context) (*pgconn.Notification, error) {
	return func(ctx context.Context) (*pgconn.Notification, error) {
		return &pgconn.Notification{Channel: "events", Payload: payload}, nil
	}
}

func idleTimeout() func(ctx context.Context) (*pgconn.Notification, error) {
	return func(ctx context.Context) (*pgconn.Notification, error) {
		return nil, context.DeadlineExceeded
	}
}

func newTestListener(c *scriptedConn) *Listener {
	return &Listener{
		dial:   func(ctx context.Context) (conn, error) { return c, nil },
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func TestPollDeliversNotificationsInOrder(t *testing.T) {
	c := &scriptedConn{waits: []func(context.Context) (*pgconn.Notification, error){
		notify(`{"id": 1}`),
		notify(`{"id": 2}`),
	}}
	l := newTestListener(c)

	var payloads []string
	var closed bool
	h := Handlers{
		OnNotify: func(p string) error {
			payloads = append(payloads, p)
			if len(payloads) == 2 {
				return ErrStop
			}
			return nil
		},
		OnClose: func() { closed = true },
	}

	err := l.Poll(context.Background(), "events", h, time.Second)
	require.NoError(t, err)

	assert.Equal(t, []string{`{"id": 1}`, `{"id": 2}`}, payloads)
	assert.True(t, closed)
	assert.True(t, c.closed)
	assert.Equal(t, `LISTEN "events"`, c.execs[0])
	assert.Equal(t, `UNLISTEN "events"`, c.execs[len(c.execs)-1])
}

func TestPollInvokesTimeoutCallback(t *testing.T) {
	c := &scriptedConn{waits: []func(context.Context) (*pgconn.Notification, error){
		idleTimeout(),
		idleTimeout(),
	}}
	l := newTestListener(c)

	timeouts := 0
	h := Handlers{
		OnTimeout: func() error {
			timeouts++
			if timeouts == 2 {
				return ErrStop
			}
			return nil
		},
	}

	err := l.Poll(context.Background(), "events", h, time.Second)
	require.NoError(t, err)
	assert.Equal(t, 2, timeouts)
}

func TestPollDriverErrorInvokesOnError(t *testing.T) {
	driverErr := errors.New("unexpected EOF")
	c := &scriptedConn{waits: []func(context.Context) (*pgconn.Notification, error){
		func(ctx context.Context) (*pgconn.Notification, error) { return nil, driverErr },
	}}
	l := newTestListener(c)

	var seen error
	h := Handlers{OnError: func(err error) { seen = err }}

	err := l.Poll(context.Background(), "events", h, time.Second)
	assert.ErrorIs(t, err, driverErr)
	assert.ErrorIs(t, seen, driverErr)
	// UNLISTEN is attempted even on the failure path.
	assert.Equal(t, `UNLISTEN "events"`, c.execs[len(c.execs)-1])
}

func TestPollContextCancellationIsGraceful(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	c := &scriptedConn{waits: []func(context.Context) (*pgconn.Notification, error){
		func(waitCtx context.Context) (*pgconn.Notification, error) {
			cancel()
			<-waitCtx.Done()
			return nil, waitCtx.Err()
		},
	}}
	l := newTestListener(c)

	var closed bool
	var failed bool
	h := Handlers{
		OnClose: func() { closed = true },
		OnError: func(error) { failed = true },
	}

	err := l.Poll(ctx, "events", h, time.Second)
	require.NoError(t, err)

	assert.True(t, closed)
	assert.False(t, failed)
	assert.True(t, c.closed)
}

func TestPollCallbackErrorIsSwallowed(t *testing.T) {
	c := &scriptedConn{waits: []func(context.Context) (*pgconn.Notification, error){
		notify("bad"),
		notify("good"),
	}}
	l := newTestListener(c)

	var payloads []string
	h := Handlers{OnNotify: func(p string) error {
		payloads = append(payloads, p)
		if p == "bad" {
			return errors.New("cannot parse payload")
		}
		return ErrStop
	}}

	err := l.Poll(context.Background(), "events", h, time.Second)
	require.NoError(t, err)
	assert.Equal(t, []string{"bad", "good"}, payloads)
}

func TestPollCallbackPanicIsRecovered(t *testing.T) {
	c := &scriptedConn{waits: []func(context.Context) (*pgconn.Notification, error){
		notify("boom"),
		notify("fine"),
	}}
	l := newTestListener(c)

	var payloads []string
	h := Handlers{OnNotify: func(p string) error {
		if p == "boom" {
			panic("malformed payload")
		}
		payloads = append(payloads, p)
		return ErrStop
	}}

	err := l.Poll(context.Background(), "events", h, time.Second)
	require.NoError(t, err)
	assert.Equal(t, []string{"fine"}, payloads)
}

func TestPollNilCallbacksAreSkipped(t *testing.T) {
	c := &scriptedConn{waits: []func(context.Context) (*pgconn.Notification, error){
		notify("ignored"),
		idleTimeout(),
		func(ctx context.Context) (*pgconn.Notification, error) { return nil, errors.New("done") },
	}}
	l := newTestListener(c)

	err := l.Poll(context.Background(), "events", Handlers{}, time.Second)
	assert.Error(t, err)
}

func TestPollListenFailure(t *testing.T) {
	c := &scriptedConn{listenErr: errors.New("permission denied")}
	l := newTestListener(c)

	err := l.Poll(context.Background(), "events", Handlers{}, time.Second)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "subscribe")
	assert.True(t, c.closed)
}

func TestPollDialFailure(t *testing.T) {
	dialErr := errors.New("connection refused")
	l := &Listener{
		dial:   func(ctx context.Context) (conn, error) { return nil, dialErr },
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	err := l.Poll(context.Background(), "events", Handlers{}, time.Second)
	assert.ErrorIs(t, err, dialErr)
}

func TestPollQuotesChannelIdentifier(t *testing.T) {
	c := &scriptedConn{waits: []func(context.Context) (*pgconn.Notification, error){
		func(ctx context.Context) (*pgconn.Notification, error) { return nil, errors.New("done") },
	}}
	l := newTestListener(c)

	_ = l.Poll(context.Background(), `odd"name`, Handlers{}, time.Second)
	assert.Equal(t, `LISTEN "odd""name"`, c.execs[0])
}
