package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pgbridge/internal/types"
)

func incoming(rows ...[]any) types.Rowset {
	return types.Rowset{Columns: []string{"id", "ts"}, Rows: rows}
}

func TestResolvePrimaryConflictsDropsExistingKeys(t *testing.T) {
	existing := newFakeRows([]string{"id", "ts"}, [][]any{
		{int64(1), int64(100)},
		{int64(3), int64(300)},
	})
	tx := &fakeTx{rows: existing}
	e := newTestExecutor(&fakeConn{tx: tx})

	data := incoming(
		[]any{int64(1), int64(100)},
		[]any{int64(2), int64(200)},
		[]any{int64(3), int64(300)},
		[]any{int64(4), int64(400)},
	)
	out, err := e.ResolvePrimaryConflicts(context.Background(), "events", data, []string{"id"}, "ts")
	require.NoError(t, err)

	assert.Equal(t, data.Columns, out.Columns)
	require.Len(t, out.Rows, 2)
	assert.Equal(t, int64(2), out.Rows[0][0])
	assert.Equal(t, int64(4), out.Rows[1][0])
	// The range filter is anchored at the minimum incoming filter value.
	assert.Contains(t, tx.querySQL, `WHERE "ts" >= $1`)
}

func TestResolvePrimaryConflictsMixedIntWidthsCompareEqual(t *testing.T) {
	existing := newFakeRows([]string{"id", "ts"}, [][]any{{int32(1), int64(100)}})
	tx := &fakeTx{rows: existing}
	e := newTestExecutor(&fakeConn{tx: tx})

	data := incoming([]any{int64(1), int64(100)}, []any{int64(2), int64(200)})
	out, err := e.ResolvePrimaryConflicts(context.Background(), "events", data, []string{"id"}, "ts")
	require.NoError(t, err)

	require.Len(t, out.Rows, 1)
	assert.Equal(t, int64(2), out.Rows[0][0])
}

func TestResolvePrimaryConflictsNoExistingRows(t *testing.T) {
	tx := &fakeTx{rows: newFakeRows([]string{"id", "ts"}, nil)}
	e := newTestExecutor(&fakeConn{tx: tx})

	data := incoming([]any{int64(1), int64(100)})
	out, err := e.ResolvePrimaryConflicts(context.Background(), "events", data, []string{"id"}, "ts")
	require.NoError(t, err)
	assert.Equal(t, data, out)
}

func TestResolvePrimaryConflictsEmptyInputSkipsQuery(t *testing.T) {
	// A begin failure would surface if the resolver touched the database.
	e := newTestExecutor(&fakeConn{beginErr: errors.New("must not connect")})

	data := types.Rowset{Columns: []string{"id", "ts"}}
	out, err := e.ResolvePrimaryConflicts(context.Background(), "events", data, []string{"id"}, "ts")
	require.NoError(t, err)
	assert.Equal(t, data, out)
}

func TestResolvePrimaryConflictsUnknownFilterColumn(t *testing.T) {
	e := newTestExecutor(&fakeConn{beginErr: errors.New("must not connect")})

	data := incoming([]any{int64(1), int64(100)})
	_, err := e.ResolvePrimaryConflicts(context.Background(), "events", data, []string{"id"}, "missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing")
}

func TestResolveForeignConflictsKeepsMatchedRows(t *testing.T) {
	parent := newFakeRows([]string{"id", "created_at"}, [][]any{
		{int64(10), int64(1)},
		{int64(20), int64(2)},
	})
	tx := &fakeTx{rows: parent}
	e := newTestExecutor(&fakeConn{tx: tx})

	data := types.Rowset{
		Columns: []string{"event_id", "id", "ts"},
		Rows: [][]any{
			{int64(100), int64(10), int64(5)},
			{int64(101), int64(30), int64(6)},
			{int64(102), int64(20), int64(7)},
		},
	}
	out, err := e.ResolveForeignConflicts(context.Background(), "users", data,
		[]string{"id"}, "created_at", "ts")
	require.NoError(t, err)

	require.Len(t, out.Rows, 2)
	assert.Equal(t, int64(100), out.Rows[0][0])
	assert.Equal(t, int64(102), out.Rows[1][0])
	assert.Contains(t, tx.querySQL, `WHERE "created_at" >= $1`)
}

func TestResolveForeignConflictsEmptyParentDropsEverything(t *testing.T) {
	tx := &fakeTx{rows: newFakeRows([]string{"id"}, nil)}
	e := newTestExecutor(&fakeConn{tx: tx})

	data := incoming([]any{int64(1), int64(100)}, []any{int64(2), int64(200)})
	out, err := e.ResolveForeignConflicts(context.Background(), "users", data,
		[]string{"id"}, "created_at", "ts")
	require.NoError(t, err)

	assert.Equal(t, data.Columns, out.Columns)
	assert.Empty(t, out.Rows)
}

func TestColumnMinOrdersTimestamps(t *testing.T) {
	early := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	late := early.Add(48 * time.Hour)
	data := types.Rowset{
		Columns: []string{"ts"},
		Rows:    [][]any{{late}, {early}},
	}

	got, err := columnMin(data, "ts")
	require.NoError(t, err)
	assert.Equal(t, early, got)
}

func TestLessValue(t *testing.T) {
	assert.True(t, lessValue(int32(1), int64(2)))
	assert.False(t, lessValue(float64(3), int(2)))
	assert.True(t, lessValue("a", "b"))

	now := time.Now()
	assert.True(t, lessValue(now, now.Add(time.Second)))
}

func TestRowKeyCompositeKeys(t *testing.T) {
	a := rowKey([]any{int64(1), "x"}, []int{0, 1})
	b := rowKey([]any{int32(1), "x"}, []int{0, 1})
	c := rowKey([]any{int64(1), "y"}, []int{0, 1})

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}
