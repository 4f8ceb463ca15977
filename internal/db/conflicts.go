package db

import (
	"context"
	"fmt"
	"strings"
	"time"

	"pgbridge/internal/types"
)

// ResolvePrimaryConflicts drops from data every row whose primary key is
// already present in the table. Existing rows are fetched with a single
// range query on filterCol (>= the minimum value found in data), so
// filterCol should be the column the data is naturally ordered by
// (typically a timestamp or serial).
func (e *Executor) ResolvePrimaryConflicts(ctx context.Context, table string, data types.Rowset, pkey []string, filterCol string) (types.Rowset, error) {
	if data.Empty() {
		return data, nil
	}

	minVal, err := columnMin(data, filterCol)
	if err != nil {
		return types.Rowset{}, err
	}

	existing, err := e.Select(ctx,
		fmt.Sprintf("SELECT * FROM %s WHERE %s >= $1",
			e.TableIdent(table).Sanitize(), quoteColumn(filterCol)),
		minVal)
	if err != nil {
		return types.Rowset{}, err
	}
	if existing.Empty() {
		return data, nil
	}

	taken, err := keySet(existing, pkey)
	if err != nil {
		return types.Rowset{}, err
	}
	return filterRows(data, pkey, func(key string) bool {
		_, conflict := taken[key]
		return !conflict
	})
}

// ResolveForeignConflicts drops from data every row whose foreign key has
// no matching row in the parent table. Parent rows are fetched with a
// single range query on filterParent (>= the minimum value of filterChild
// found in data). An empty parent selection means nothing can be inserted;
// the result keeps the columns but no rows.
func (e *Executor) ResolveForeignConflicts(ctx context.Context, parentTable string, data types.Rowset, fkey []string, filterParent, filterChild string) (types.Rowset, error) {
	if data.Empty() {
		return data, nil
	}

	minVal, err := columnMin(data, filterChild)
	if err != nil {
		return types.Rowset{}, err
	}

	parent, err := e.Select(ctx,
		fmt.Sprintf("SELECT * FROM %s WHERE %s >= $1",
			e.TableIdent(parentTable).Sanitize(), quoteColumn(filterParent)),
		minVal)
	if err != nil {
		return types.Rowset{}, err
	}
	if parent.Empty() {
		return types.Rowset{Columns: data.Columns}, nil
	}

	known, err := keySet(parent, fkey)
	if err != nil {
		return types.Rowset{}, err
	}
	return filterRows(data, fkey, func(key string) bool {
		_, ok := known[key]
		return ok
	})
}

// quoteColumn quotes a single column identifier.
func quoteColumn(name string) string {
	return fmt.Sprintf("%q", name)
}

// columnMin returns the minimum value of the named column.
func columnMin(data types.Rowset, column string) (any, error) {
	idx := data.ColumnIndex(column)
	if idx < 0 {
		return nil, fmt.Errorf("db: column %q not present in data", column)
	}
	min := data.Rows[0][idx]
	for _, row := range data.Rows[1:] {
		if lessValue(row[idx], min) {
			min = row[idx]
		}
	}
	return min, nil
}

// keySet builds the set of composite key strings present in rs.
func keySet(rs types.Rowset, key []string) (map[string]struct{}, error) {
	idxs, err := columnIndexes(rs, key)
	if err != nil {
		return nil, err
	}
	set := make(map[string]struct{}, len(rs.Rows))
	for _, row := range rs.Rows {
		set[rowKey(row, idxs)] = struct{}{}
	}
	return set, nil
}

// filterRows keeps the rows of data whose composite key passes keep.
func filterRows(data types.Rowset, key []string, keep func(string) bool) (types.Rowset, error) {
	idxs, err := columnIndexes(data, key)
	if err != nil {
		return types.Rowset{}, err
	}
	out := types.Rowset{Columns: data.Columns}
	for _, row := range data.Rows {
		if keep(rowKey(row, idxs)) {
			out.Rows = append(out.Rows, row)
		}
	}
	return out, nil
}

func columnIndexes(rs types.Rowset, names []string) ([]int, error) {
	idxs := make([]int, len(names))
	for i, n := range names {
		idx := rs.ColumnIndex(n)
		if idx < 0 {
			return nil, fmt.Errorf("db: key column %q not present", n)
		}
		idxs[i] = idx
	}
	return idxs, nil
}

// rowKey folds the key columns of one row into a comparable string.
// Values of different Go types that print identically (e.g. int32 vs
// int64 ids) compare equal, which is the desired cross-source behavior.
func rowKey(row []any, idxs []int) string {
	parts := make([]string, len(idxs))
	for i, idx := range idxs {
		parts[i] = printValue(row[idx])
	}
	return strings.Join(parts, "\x1f")
}

func printValue(v any) string {
	switch t := v.(type) {
	case time.Time:
		return t.UTC().Format(time.RFC3339Nano)
	default:
		return fmt.Sprint(v)
	}
}

// lessValue orders the column types that appear in filter columns:
// numbers, timestamps, and strings. Mixed numeric widths compare as
// float64.
func lessValue(a, b any) bool {
	if af, aok := asFloat(a); aok {
		if bf, bok := asFloat(b); bok {
			return af < bf
		}
	}
	if at, aok := a.(time.Time); aok {
		if bt, bok := b.(time.Time); bok {
			return at.Before(bt)
		}
	}
	if as, aok := a.(string); aok {
		if bs, bok := b.(string); bok {
			return as < bs
		}
	}
	return printValue(a) < printValue(b)
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}
