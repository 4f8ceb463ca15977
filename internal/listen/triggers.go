package listen

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"pgbridge/internal/db"
)

// Runner is the slice of executor behavior the DDL builders consume.
type Runner interface {
	Run(ctx context.Context, cmd string, args ...any) error
	DefaultSchema() string
}

// CreateNotifyFunction installs (or replaces) a trigger function that
// publishes the full affected row as JSON on the given channel via
// pg_notify. Idempotent.
func CreateNotifyFunction(ctx context.Context, r Runner, name, channel string) error {
	schema, fn := db.ResolveSchema(name, r.DefaultSchema())
	cmd := fmt.Sprintf(`
	CREATE OR REPLACE FUNCTION %s()
	    RETURNS trigger
	    LANGUAGE plpgsql
	AS $function$
	BEGIN
	    PERFORM pg_notify(%s, row_to_json(NEW)::text);
	    RETURN NEW;
	END;
	$function$`,
		pgx.Identifier{schema, fn}.Sanitize(),
		quoteLiteral(channel))
	return r.Run(ctx, cmd)
}

// CreateInsertTrigger wires the named notify function to a table's insert
// and update events. The trigger is named <table>_insert and is dropped
// first, so repeated calls are safe.
func CreateInsertTrigger(ctx context.Context, r Runner, functionName, table string) error {
	schema, name := db.ResolveSchema(table, r.DefaultSchema())
	fnSchema, fn := db.ResolveSchema(functionName, r.DefaultSchema())
	tableIdent := pgx.Identifier{schema, name}.Sanitize()
	triggerIdent := pgx.Identifier{name + "_insert"}.Sanitize()

	drop := fmt.Sprintf("DROP TRIGGER IF EXISTS %s ON %s", triggerIdent, tableIdent)
	if err := r.Run(ctx, drop); err != nil {
		return err
	}

	create := fmt.Sprintf(`
	CREATE TRIGGER %s
	AFTER INSERT OR UPDATE
	ON %s
	FOR EACH ROW EXECUTE FUNCTION %s()`,
		triggerIdent,
		tableIdent,
		pgx.Identifier{fnSchema, fn}.Sanitize())
	return r.Run(ctx, create)
}

// quoteLiteral single-quotes a string literal for interpolation into DDL
// bodies, doubling embedded quotes.
func quoteLiteral(s string) string {
	out := make([]byte, 0, len(s)+2)
	out = append(out, '\'')
	for i := 0; i < len(s); i++ {
		if s[i] == '\'' {
			out = append(out, '\'')
		}
		out = append(out, s[i])
	}
	out = append(out, '\'')
	return string(out)
}
