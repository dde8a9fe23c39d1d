package datasource

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownMode is returned when the raw mode value maps to no known mode.
	ErrUnknownMode = errors.New("unknown data source mode")

	// ErrMissingBackendURL marks live mode running without a backend location.
	ErrMissingBackendURL = errors.New("live mode requires a backend URL")
)

// ConfigurationError reports a data source configuration the process
// should not run with. It is the only error class the selector escalates.
type ConfigurationError struct {
	Raw  string // raw configuration value as read from the environment
	Mode Mode
	Err  error
}

func (e *ConfigurationError) Error() string {
	if e.Mode == ModeUnknown {
		return fmt.Sprintf("configuration error: %v %q (expected one of: real, live, mock, test)", e.Err, e.Raw)
	}
	return fmt.Sprintf("configuration error: mode %s: %v", e.Mode, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }
