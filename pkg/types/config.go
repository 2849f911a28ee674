package types

import (
	"errors"
	"fmt"
)

// Config holds backend selection and parameters for Store.Attach.
type Config struct {
	Backend string `json:"backend" yaml:"backend" mapstructure:"backend"`
	DataDir string `json:"data_dir" yaml:"data_dir" mapstructure:"data_dir"`
	DSN     string `json:"dsn,omitempty" yaml:"dsn,omitempty" mapstructure:"dsn"` // Postgres connection string.
}

// Supported backend names.
const (
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// Config validation errors.
var (
	ErrBackendEmpty   = errors.New("backend must not be empty")
	ErrBackendUnknown = errors.New("unknown backend")
	ErrDSNEmpty       = errors.New("postgres backend requires a dsn")
)

// knownBackends lists the backends that Validate accepts.
var knownBackends = map[string]bool{
	BackendSQLite:   true,
	BackendPostgres: true,
}

// Validate checks that the Config is well-formed. It returns a sentinel error
// from this package on failure.
func (c Config) Validate() error {
	if c.Backend == "" {
		return ErrBackendEmpty
	}
	if !knownBackends[c.Backend] {
		return fmt.Errorf("%w: %q", ErrBackendUnknown, c.Backend)
	}
	if c.Backend == BackendPostgres && c.DSN == "" {
		return ErrDSNEmpty
	}
	return nil
}
