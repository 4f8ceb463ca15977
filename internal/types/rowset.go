// Package types holds the shared data and error types used across the
// pgbridge toolkit: the Rowset tabular exchange type consumed by query
// helpers, and the typed errors raised by the executor and the bulk loader.
package types

// Rowset is the tabular result of a command: an ordered list of rows (each
// an ordered list of column values) plus the column names in result order.
// Both slices are empty for commands that produce no result set (DDL, plain
// DML without RETURNING). A Rowset is constructed fresh per call and has no
// identity beyond it.
type Rowset struct {
	Columns []string
	Rows    [][]any
}

// Empty reports whether the rowset contains no rows.
func (r Rowset) Empty() bool {
	return len(r.Rows) == 0
}

// ColumnIndex returns the position of the named column, or -1 when the
// column is not part of the result.
func (r Rowset) ColumnIndex(name string) int {
	for i, c := range r.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// First returns the first value of the first row. The second return is
// false when the rowset is empty or the value is NULL.
func (r Rowset) First() (any, bool) {
	if len(r.Rows) == 0 || len(r.Rows[0]) == 0 || r.Rows[0][0] == nil {
		return nil, false
	}
	return r.Rows[0][0], true
}
