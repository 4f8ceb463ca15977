package db

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/klauspost/compress/zstd"

	"pgbridge/internal/pool"
	"pgbridge/internal/types"
)

// CopyFrom bulk-loads rows into a table through the COPY protocol, inside
// one transaction. nil values map to SQL NULL. Returns the number of rows
// written. Failures roll the transaction back and surface as
// *types.CopyError with the dual-failure discipline.
func (e *Executor) CopyFrom(ctx context.Context, table string, columns []string, rows [][]any) (int64, error) {
	return e.copyWith(ctx, table, func(ctx context.Context, tx pgx.Tx) (int64, error) {
		schema, name := ResolveSchema(table, e.schema)
		return tx.CopyFrom(ctx, pgx.Identifier{schema, name}, columns, pgx.CopyFromRows(rows))
	})
}

// CopyFromCSV streams CSV text into a table through the COPY protocol,
// letting the server parse and coerce the fields. Empty fields map to SQL
// NULL. When compressed is true the reader is zstd-decompressed first.
func (e *Executor) CopyFromCSV(ctx context.Context, table string, columns []string, r io.Reader, compressed bool) (int64, error) {
	if compressed {
		dec, err := zstd.NewReader(r)
		if err != nil {
			return 0, types.NewCopyError(table, fmt.Errorf("open zstd stream: %w", err), nil)
		}
		defer dec.Close()
		r = dec
	}

	sql := copyCSVCommand(e.TableIdent(table), columns)
	return e.copyWith(ctx, table, func(ctx context.Context, tx pgx.Tx) (int64, error) {
		tag, err := tx.Conn().PgConn().CopyFrom(ctx, r, sql)
		if err != nil {
			return 0, err
		}
		return tag.RowsAffected(), nil
	})
}

// copyWith runs one COPY operation inside a transaction on a guarded
// connection and applies the CopyError classification on failure.
func (e *Executor) copyWith(ctx context.Context, table string, op func(context.Context, pgx.Tx) (int64, error)) (int64, error) {
	var copied int64
	err := e.scope.WithConn(ctx, func(conn pool.Conn) error {
		tx, err := conn.Begin(ctx)
		if err != nil {
			return types.NewCopyError(table, err, nil)
		}

		n, err := op(ctx, tx)
		if err != nil {
			e.metrics.ObserveRollback()
			rbErr := tx.Rollback(ctx)
			return types.NewCopyError(table, err, rbErr)
		}
		if err := tx.Commit(ctx); err != nil {
			return types.NewCopyError(table, err, nil)
		}

		copied = n
		return nil
	})
	if err != nil {
		return 0, err
	}
	e.metrics.ObserveCopyRows(copied)
	return copied, nil
}

// copyCSVCommand builds the COPY ... FROM STDIN statement for the CSV
// path. The empty-string NULL marker mirrors the bulk loader's contract:
// missing values round-trip to SQL NULL.
func copyCSVCommand(table pgx.Identifier, columns []string) string {
	var cols string
	if len(columns) > 0 {
		quoted := make([]string, len(columns))
		for i, c := range columns {
			quoted[i] = pgx.Identifier{c}.Sanitize()
		}
		cols = " (" + strings.Join(quoted, ", ") + ")"
	}
	return fmt.Sprintf("COPY %s%s FROM STDIN WITH (FORMAT csv, NULL '')", table.Sanitize(), cols)
}
