package pool

import (
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"pgbridge/internal/config"
)

// DSN builds a keyword/value connection string from the database
// configuration. Pool sizing is not part of the DSN; it is applied to the
// pgxpool config directly so the same DSN can also be used for the
// listener's dedicated (non-pooled) connection.
func DSN(cfg config.DatabaseConfig) string {
	parts := []string{
		"host=" + quoteKV(cfg.Host),
		fmt.Sprintf("port=%d", cfg.Port),
		"user=" + quoteKV(cfg.User),
		"dbname=" + quoteKV(cfg.Name),
	}
	if cfg.Password != "" {
		parts = append(parts, "password="+quoteKV(cfg.Password))
	}
	if opts := strings.TrimSpace(cfg.Options); opts != "" {
		// Free-form driver options are passed through verbatim.
		parts = append(parts, opts)
	}
	return strings.Join(parts, " ")
}

// ConnConfig parses the database configuration into a single-connection
// pgx config, applying the schema search path when one is configured.
// The listener dials its dedicated connection from this config.
func ConnConfig(cfg config.DatabaseConfig) (*pgx.ConnConfig, error) {
	cc, err := pgx.ParseConfig(DSN(cfg))
	if err != nil {
		return nil, fmt.Errorf("pool: parse connection config: %w", err)
	}
	if cfg.Schema != "" {
		cc.RuntimeParams["search_path"] = cfg.Schema
	}
	return cc, nil
}

// quoteKV quotes a keyword/value parameter value when it contains
// characters that would break the DSN (spaces, quotes) or is empty.
func quoteKV(v string) string {
	if v != "" && !strings.ContainsAny(v, " '\\") {
		return v
	}
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `'`, `\'`)
	return "'" + v + "'"
}
