// Package db implements command execution against the pooled connections:
// the single-chokepoint Executor every higher-level operation routes
// through, plus query helpers, the bulk COPY loader, and the Rowset-based
// conflict resolvers. All transaction and error-classification logic lives
// here and nowhere else.
package db

import (
	"context"
	"log/slog"

	"github.com/jackc/pgx/v5"

	"pgbridge/internal/metrics"
	"pgbridge/internal/pool"
	"pgbridge/internal/types"
)

// Scope is the scoped-acquisition contract the executor depends on,
// satisfied by *pool.Guard and by test doubles.
type Scope interface {
	WithConn(ctx context.Context, fn func(pool.Conn) error) error
}

// ExecOptions carries the optional parameters of Execute.
type ExecOptions struct {
	// Args are positional parameters bound into $n placeholders. Ignored
	// when Batch is set.
	Args []any

	// Batch, when non-empty, applies the command once per parameter set
	// in a single round trip. Batched commands produce no rowset.
	Batch [][]any

	// NoCommit discards the implicit transaction instead of committing
	// it. Used by read-only paths that must leave no trace.
	NoCommit bool
}

// Executor runs commands against connections obtained through a Scope,
// inside an implicit transaction per call. Failures are classified,
// rolled back, and re-raised as *types.ExecError carrying the command
// text, the driver error, and the rollback outcome.
type Executor struct {
	scope   Scope
	schema  string
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewExecutor creates an Executor. schema is the default schema used when
// resolving unqualified table names; logger and m may be nil.
func NewExecutor(scope Scope, schema string, logger *slog.Logger, m *metrics.Metrics) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{scope: scope, schema: schema, logger: logger, metrics: m}
}

// Execute runs a single command (or one batched command) in one implicit
// transaction and returns the produced rowset. Commands without a result
// set return an empty rowset. The whole command, batch included, commits
// or rolls back atomically; no partial commits are possible.
func (e *Executor) Execute(ctx context.Context, cmd string, opts ExecOptions) (types.Rowset, error) {
	var rs types.Rowset
	err := e.scope.WithConn(ctx, func(conn pool.Conn) error {
		tx, err := conn.Begin(ctx)
		if err != nil {
			return types.NewExecError(cmd, err, nil)
		}

		res, err := runInTx(ctx, tx, cmd, opts)
		if err != nil {
			e.metrics.ObserveRollback()
			rbErr := tx.Rollback(ctx)
			return types.NewExecError(cmd, err, rbErr)
		}

		if opts.NoCommit {
			if err := tx.Rollback(ctx); err != nil {
				return types.NewExecError(cmd, err, nil)
			}
		} else if err := tx.Commit(ctx); err != nil {
			// pgx rolls the transaction back itself when commit fails.
			return types.NewExecError(cmd, err, nil)
		}

		rs = res
		return nil
	})
	if err != nil {
		e.metrics.ObserveCommand("error")
		return types.Rowset{}, err
	}
	e.metrics.ObserveCommand("ok")
	return rs, nil
}

// Run executes a command and discards any result. Convenience wrapper used
// by DDL builders and callers that only care about success.
func (e *Executor) Run(ctx context.Context, cmd string, args ...any) error {
	_, err := e.Execute(ctx, cmd, ExecOptions{Args: args})
	return err
}

// RunScript executes a multi-statement SQL script in one round trip.
// Scripts bypass the per-call transaction: the server runs the whole
// script inside a single implicit transaction of its own.
func (e *Executor) RunScript(ctx context.Context, script string) error {
	err := e.scope.WithConn(ctx, func(conn pool.Conn) error {
		if _, err := conn.Exec(ctx, script); err != nil {
			return types.NewExecError(script, err, nil)
		}
		return nil
	})
	if err != nil {
		e.metrics.ObserveCommand("error")
		return err
	}
	e.metrics.ObserveCommand("ok")
	return nil
}

// DefaultSchema returns the schema configured for unqualified table names,
// empty when none is set.
func (e *Executor) DefaultSchema() string {
	return e.schema
}

// runInTx performs the actual statement execution inside the transaction.
func runInTx(ctx context.Context, tx pgx.Tx, cmd string, opts ExecOptions) (types.Rowset, error) {
	if len(opts.Batch) > 0 {
		b := &pgx.Batch{}
		for _, set := range opts.Batch {
			b.Queue(cmd, set...)
		}
		br := tx.SendBatch(ctx, b)
		for range opts.Batch {
			if _, err := br.Exec(); err != nil {
				_ = br.Close()
				return types.Rowset{}, err
			}
		}
		if err := br.Close(); err != nil {
			return types.Rowset{}, err
		}
		return types.Rowset{}, nil
	}

	rows, err := tx.Query(ctx, cmd, opts.Args...)
	if err != nil {
		return types.Rowset{}, err
	}
	return collectRowset(rows)
}

// collectRowset drains rows and captures column names. Statements with no
// result metadata (DDL, plain DML) yield an empty rowset.
func collectRowset(rows pgx.Rows) (types.Rowset, error) {
	defer rows.Close()

	var rs types.Rowset
	for _, fd := range rows.FieldDescriptions() {
		rs.Columns = append(rs.Columns, fd.Name)
	}
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return types.Rowset{}, err
		}
		rs.Rows = append(rs.Rows, vals)
	}
	if err := rows.Err(); err != nil {
		return types.Rowset{}, err
	}
	return rs, nil
}
