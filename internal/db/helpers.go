package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"pgbridge/internal/types"
)

// ResolveSchema splits a possibly schema-qualified name on the first dot.
// Unqualified names fall back to the configured default schema, then to
// "public".
func ResolveSchema(qualified, defaultSchema string) (schema, name string) {
	if i := strings.Index(qualified, "."); i >= 0 {
		return qualified[:i], qualified[i+1:]
	}
	if defaultSchema != "" {
		return defaultSchema, qualified
	}
	return "public", qualified
}

// TableIdent resolves a table name against the default schema and returns
// the quoted identifier.
func (e *Executor) TableIdent(table string) pgx.Identifier {
	schema, name := ResolveSchema(table, e.schema)
	return pgx.Identifier{schema, name}
}

// Select runs a query in one committed transaction and returns the rowset.
func (e *Executor) Select(ctx context.Context, cmd string, args ...any) (types.Rowset, error) {
	return e.Execute(ctx, cmd, ExecOptions{Args: args})
}

// SelectOne runs a query and returns the first value of the first row, or
// def when the result is empty or NULL.
func (e *Executor) SelectOne(ctx context.Context, cmd string, def any, args ...any) (any, error) {
	rs, err := e.Select(ctx, cmd, args...)
	if err != nil {
		return nil, err
	}
	v, ok := rs.First()
	if !ok {
		return def, nil
	}
	return v, nil
}

// InsertRow builds and executes a parameterized INSERT INTO ... VALUES for
// one row. When returnID names a serial key column its generated value is
// returned; otherwise the returned id is 0.
func (e *Executor) InsertRow(ctx context.Context, table string, columns []string, values []any, returnID string) (int64, error) {
	if len(columns) == 0 || len(columns) != len(values) {
		return 0, fmt.Errorf("db: insert into %s: %d columns for %d values", table, len(columns), len(values))
	}

	quoted := make([]string, len(columns))
	placeholders := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = pgx.Identifier{c}.Sanitize()
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}
	cmd := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		e.TableIdent(table).Sanitize(),
		strings.Join(quoted, ", "),
		strings.Join(placeholders, ", "))

	if returnID == "" {
		return 0, e.Run(ctx, cmd, values...)
	}
	return e.InsertReturn(ctx, cmd, returnID, values...)
}

// InsertReturn executes an INSERT command extended with a RETURNING clause
// for the named serial key and returns the generated value.
func (e *Executor) InsertReturn(ctx context.Context, cmd, returnID string, args ...any) (int64, error) {
	cmd = cmd + " RETURNING " + pgx.Identifier{returnID}.Sanitize()
	rs, err := e.Execute(ctx, cmd, ExecOptions{Args: args})
	if err != nil {
		return 0, err
	}
	v, ok := rs.First()
	if !ok {
		return 0, types.NewExecError(cmd, fmt.Errorf("no %s returned", returnID), nil)
	}
	id, err := asInt64(v)
	if err != nil {
		return 0, types.NewExecError(cmd, err, nil)
	}
	return id, nil
}

// asInt64 converts the integer types pgx produces for serial columns.
func asInt64(v any) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case int32:
		return int64(n), nil
	case int16:
		return int64(n), nil
	case int:
		return int64(n), nil
	default:
		return 0, fmt.Errorf("unexpected key type %T", v)
	}
}
