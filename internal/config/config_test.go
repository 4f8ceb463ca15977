package config

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("PGB_USER", "app")
	t.Setenv("PGB_DBNAME", "warehouse")
}

func TestLoadDefaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, uint16(5432), cfg.Database.Port)
	assert.Equal(t, "app", cfg.Database.User)
	assert.Equal(t, "warehouse", cfg.Database.Name)
	assert.Equal(t, 20, cfg.Database.MaxConns)
	assert.False(t, cfg.Database.PrePing)
	assert.Equal(t, 3, cfg.Database.MaxReconnects)
	assert.Equal(t, "info", cfg.App.LogLevel)
	assert.Equal(t, ":9090", cfg.Ops.Addr)
}

func TestLoadOverrides(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("PGB_HOST", "db.internal")
	t.Setenv("PGB_PORT", "5433")
	t.Setenv("PGB_SCHEMA", "staging")
	t.Setenv("PGB_POOL_SIZE", "4")
	t.Setenv("PGB_PRE_PING", "true")
	t.Setenv("PGB_CHANNEL", "events")
	t.Setenv("PGB_WAIT_TIMEOUT", "250ms")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, uint16(5433), cfg.Database.Port)
	assert.Equal(t, "staging", cfg.Database.Schema)
	assert.Equal(t, 4, cfg.Database.MaxConns)
	assert.True(t, cfg.Database.PrePing)
	assert.Equal(t, "events", cfg.Listener.Channel)
	assert.Equal(t, "250ms", cfg.Listener.WaitTimeout.String())
}

func TestLoadMissingRequired(t *testing.T) {
	t.Setenv("PGB_USER", "")
	t.Setenv("PGB_DBNAME", "")

	_, err := Load()
	require.Error(t, err)

	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, ErrorTypeValidation, cfgErr.Type)
}

func TestLoadRejectsBadLogLevel(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("LOG_LEVEL", "verbose")

	_, err := Load()
	require.Error(t, err)

	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, ErrorTypeValidation, cfgErr.Type)
	assert.Contains(t, cfgErr.Message, "LogLevel")
}

func TestLoadRejectsZeroPoolSize(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("PGB_POOL_SIZE", "0")

	_, err := Load()
	require.Error(t, err)

	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, ErrorTypeValidation, cfgErr.Type)
}

func TestLoadUnparsableEnvValue(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("PGB_PORT", "not-a-port")

	_, err := Load()
	require.Error(t, err)

	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, ErrorTypeEnv, cfgErr.Type)
}

func TestConfigErrorFormat(t *testing.T) {
	inner := errors.New("strconv failure")
	err := &ConfigError{Type: ErrorTypeEnv, Message: "bad value", Err: inner}

	assert.Equal(t, "[env] bad value: strconv failure", err.Error())
	assert.ErrorIs(t, err, inner)

	bare := &ConfigError{Type: ErrorTypeValidation, Message: "missing user"}
	assert.Equal(t, "[validation] missing user", bare.Error())
}
