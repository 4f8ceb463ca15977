package catalog

import (
	"context"
	"fmt"

	"pgbridge/internal/types"
)

// Runner is the slice of executor behavior the catalog consumes.
type Runner interface {
	Select(ctx context.Context, cmd string, args ...any) (types.Rowset, error)
	SelectOne(ctx context.Context, cmd string, def any, args ...any) (any, error)
}

// Column describes one table column.
type Column struct {
	Name     string
	DataType string
}

// ForeignKeyColumn is a child/parent column pair of a foreign key.
type ForeignKeyColumn struct {
	Child  string
	Parent string
}

// Catalog answers schema metadata questions through the executor.
type Catalog struct {
	runner Runner
	schema string
}

// New creates a Catalog. schema is the default schema applied to
// unqualified table names.
func New(runner Runner, schema string) *Catalog {
	return &Catalog{runner: runner, schema: schema}
}

// PrimaryKey returns the column names of the table's primary key, in index
// order.
func (c *Catalog) PrimaryKey(ctx context.Context, table string) ([]string, error) {
	schema, name := c.resolve(table)
	rs, err := c.runner.Select(ctx, PrimaryKeyQuery(schema, name))
	if err != nil {
		return nil, err
	}
	cols := make([]string, 0, len(rs.Rows))
	for _, row := range rs.Rows {
		s, ok := row[0].(string)
		if !ok {
			return nil, fmt.Errorf("catalog: unexpected column name type %T", row[0])
		}
		cols = append(cols, s)
	}
	return cols, nil
}

// ForeignKey returns the child/parent column pairs of the foreign key from
// table to parent.
func (c *Catalog) ForeignKey(ctx context.Context, table, parent string) ([]ForeignKeyColumn, error) {
	schema, name := c.resolve(table)
	parentSchema, parentName := c.resolve(parent)
	rs, err := c.runner.Select(ctx, ForeignKeyQuery(schema, name, parentSchema, parentName))
	if err != nil {
		return nil, err
	}
	pairs := make([]ForeignKeyColumn, 0, len(rs.Rows))
	for _, row := range rs.Rows {
		child, _ := row[0].(string)
		par, _ := row[1].(string)
		pairs = append(pairs, ForeignKeyColumn{Child: child, Parent: par})
	}
	return pairs, nil
}

// TableExists reports whether the table exists.
func (c *Catalog) TableExists(ctx context.Context, table string) (bool, error) {
	schema, name := c.resolve(table)
	rs, err := c.runner.Select(ctx, TableExistsQuery(), name, schema)
	if err != nil {
		return false, err
	}
	return !rs.Empty(), nil
}

// Columns returns the table's column attributes in ordinal position order.
func (c *Catalog) Columns(ctx context.Context, table string) ([]Column, error) {
	schema, name := c.resolve(table)
	rs, err := c.runner.Select(ctx, ColumnsQuery(), schema, name)
	if err != nil {
		return nil, err
	}
	cols := make([]Column, 0, len(rs.Rows))
	for _, row := range rs.Rows {
		colName, _ := row[0].(string)
		dataType, _ := row[1].(string)
		cols = append(cols, Column{Name: colName, DataType: dataType})
	}
	return cols, nil
}

// ConnectionsCount returns the amount of active server connections across
// all databases, 0 when the statistics view is empty.
func (c *Catalog) ConnectionsCount(ctx context.Context) (int64, error) {
	v, err := c.runner.SelectOne(ctx, ConnectionsCountQuery(), int64(0))
	if err != nil {
		return 0, err
	}
	switch n := v.(type) {
	case int64:
		return n, nil
	case int32:
		return int64(n), nil
	case float64:
		return int64(n), nil
	default:
		return 0, fmt.Errorf("catalog: unexpected connection count type %T", v)
	}
}

// resolve splits a possibly qualified name on the first dot, falling back
// to the default schema, then "public".
func (c *Catalog) resolve(table string) (string, string) {
	for i := 0; i < len(table); i++ {
		if table[i] == '.' {
			return table[:i], table[i+1:]
		}
	}
	if c.schema != "" {
		return c.schema, table
	}
	return "public", table
}
