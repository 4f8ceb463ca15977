package config

import "time"

// Config is the root configuration for the pgbridge toolkit and its
// binaries. Values are read from the environment via envconfig struct tags;
// a .env file is honored in development. See loader.go for the loading
// lifecycle.
type Config struct {
	App      AppConfig
	Database DatabaseConfig
	Listener ListenerConfig
	Ops      OpsConfig
}

// AppConfig holds process-level settings.
type AppConfig struct {
	LogLevel string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`
}

// DatabaseConfig is the effective configuration surface of the connection
// subsystem: target coordinates, pool sizing, and the liveness-check policy
// applied by the connection guard.
type DatabaseConfig struct {
	Host     string `envconfig:"PGB_HOST" default:"localhost" validate:"required"`
	Port     uint16 `envconfig:"PGB_PORT" default:"5432"`
	User     string `envconfig:"PGB_USER" validate:"required"`
	Password string `envconfig:"PGB_PASSWORD"`
	Name     string `envconfig:"PGB_DBNAME" validate:"required"`

	// Schema, when set, is injected as the search_path for every pooled
	// and listener connection.
	Schema string `envconfig:"PGB_SCHEMA"`

	// Options carries additional driver parameters verbatim, as a
	// space-separated list of key=value pairs (e.g. "sslmode=require").
	Options string `envconfig:"PGB_OPTIONS"`

	// MaxConns is the pool capacity. The minimum pool size is fixed at 1.
	MaxConns int `envconfig:"PGB_POOL_SIZE" default:"20" validate:"min=1"`

	// PrePing enables the liveness check on scoped acquisition. When a
	// connection fails the ping the whole pool is rebuilt, up to
	// MaxReconnects attempts with exponential backoff between rebuilds.
	PrePing       bool `envconfig:"PGB_PRE_PING" default:"false"`
	MaxReconnects int  `envconfig:"PGB_MAX_RECONNECTS" default:"3" validate:"min=1"`
}

// ListenerConfig configures the notification listener daemon.
type ListenerConfig struct {
	Channel     string        `envconfig:"PGB_CHANNEL"`
	WaitTimeout time.Duration `envconfig:"PGB_WAIT_TIMEOUT" default:"5s"`

	// RetryInterval is the pause between re-listen attempts after the
	// poll loop exits with an error.
	RetryInterval time.Duration `envconfig:"PGB_RETRY_INTERVAL" default:"5s"`
}

// OpsConfig configures the operational HTTP surface (health, stats,
// metrics) exposed by the listener daemon.
type OpsConfig struct {
	Addr string `envconfig:"PGB_OPS_ADDR" default:":9090"`
}
