// Package config implements the configuration loading lifecycle for the
// pgbridge binaries.
//
// The loading sequence is:
//  1. Load a .env file via godotenv (non-fatal if absent).
//  2. Use envconfig to process struct tags and populate the Config struct.
//  3. Validate the struct using go-playground/validator.
package config

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// ErrorType categorizes configuration failures for diagnostics.
type ErrorType string

const (
	ErrorTypeEnv        ErrorType = "env"
	ErrorTypeValidation ErrorType = "validation"
)

// ConfigError is a diagnostic error type returned by Load to aid debugging.
type ConfigError struct {
	Type    ErrorType
	Message string
	Err     error
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// Unwrap returns the underlying error for use with errors.Is/errors.As.
func (e *ConfigError) Unwrap() error {
	return e.Err
}

// Load reads the configuration from the environment. A .env file in the
// working directory is merged first when present; existing environment
// variables take precedence over file values.
func Load() (*Config, error) {
	// godotenv returns an error when the file is missing; that is the
	// normal case outside local development.
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, &ConfigError{
			Type:    ErrorTypeEnv,
			Message: "failed to process environment variables",
			Err:     err,
		}
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks the configuration against the struct validation tags.
func Validate(cfg *Config) error {
	v := validator.New()
	if err := v.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			first := verrs[0]
			return &ConfigError{
				Type:    ErrorTypeValidation,
				Message: fmt.Sprintf("invalid value for %s (rule %q)", first.Namespace(), first.Tag()),
				Err:     err,
			}
		}
		return &ConfigError{
			Type:    ErrorTypeValidation,
			Message: "configuration validation failed",
			Err:     err,
		}
	}
	return nil
}
