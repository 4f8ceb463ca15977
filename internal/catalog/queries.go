// Package catalog provides schema introspection over the executor: primary
// and foreign key lookup, table existence, column attributes, and the
// server-wide connection count. The SQL text builders are exported
// separately so callers can run them through their own execution path.
package catalog

import "fmt"

// PrimaryKeyQuery returns the query selecting the column names and types
// of a table's primary key.
func PrimaryKeyQuery(schema, table string) string {
	return fmt.Sprintf(`
	SELECT
	    a.attname AS column_name,
	    format_type(a.atttypid, a.atttypmod) AS data_type
	FROM
	    pg_index i
	JOIN
	    pg_attribute a
	ON
	    a.attrelid = i.indrelid AND
	    a.attnum = ANY(i.indkey)
	WHERE
	    i.indrelid = '%s.%s'::regclass AND
	    i.indisprimary`, schema, table)
}

// ForeignKeyQuery returns the query selecting the child/parent column name
// pairs of the foreign key from a table to its parent.
func ForeignKeyQuery(schema, table, parentSchema, parent string) string {
	return fmt.Sprintf(`
	SELECT
	    att2.attname AS child_column,
	    att.attname AS parent_column
	FROM
	   (SELECT
	        unnest(con1.conkey) AS parent,
	        unnest(con1.confkey) AS child,
	        con1.confrelid,
	        con1.conrelid
	    FROM
	        pg_class cl
	        JOIN pg_namespace ns ON cl.relnamespace = ns.oid
	        JOIN pg_constraint con1 ON con1.conrelid = cl.oid
	        JOIN pg_class cl2 ON cl2.oid = con1.confrelid
	        JOIN pg_namespace ns2 ON ns2.oid = cl2.relnamespace
	    WHERE
	        cl.relname = '%s' AND
	        ns.nspname = '%s' AND
	        cl2.relname = '%s' AND
	        ns2.nspname = '%s' AND
	        con1.contype = 'f'
	   ) con
	   JOIN pg_attribute att ON
	        att.attrelid = con.confrelid AND att.attnum = con.child
	   JOIN pg_attribute att2 ON
	        att2.attrelid = con.conrelid AND att2.attnum = con.parent`,
		table, schema, parent, parentSchema)
}

// TableExistsQuery returns the query selecting the table name when it
// exists in the given schema.
func TableExistsQuery() string {
	return `
	SELECT
	    table_name
	FROM
	    information_schema.tables
	WHERE
	    table_name = $1 AND
	    table_schema = $2
	LIMIT 1`
}

// ColumnsQuery returns the query selecting column names and data types in
// ordinal position order.
func ColumnsQuery() string {
	return `
	SELECT
	    column_name, data_type
	FROM
	    information_schema.columns
	WHERE
	    table_schema = $1 AND
	    table_name = $2
	ORDER BY
	    ordinal_position`
}

// ConnectionsCountQuery returns the query summing active backends across
// all databases.
func ConnectionsCountQuery() string {
	return `SELECT SUM(numbackends) FROM pg_stat_database`
}
