package datasource

import (
	"errors"
	"log/slog"
	"net"
	"strings"
)

// Environment is the raw input the selector works from. The CLI fills it
// from viper once at start-up; nothing in this package reads the process
// environment directly.
type Environment struct {
	Mode       string // raw mode value, e.g. "real" or "mock"
	BackendURL string // backend location, required in live mode
	Host       string // host the process serves from; judges production vs. development
}

// Selection is the outcome of resolving an Environment. Config is valid
// whenever Select returned no error; Issues lists misconfigurations that
// did not stop the selection but that callers must check for.
type Selection struct {
	Env        Environment
	Config     Config
	Production bool
	Issues     []error
	Warnings   []string
}

// Mode returns the resolved mode.
func (s *Selection) Mode() Mode { return s.Config.Mode }

// Check returns the recorded misconfigurations joined into one error, or
// nil when the selection is fully usable.
func (s *Selection) Check() error {
	return errors.Join(s.Issues...)
}

// Summary is the printable form of a Selection.
type Summary struct {
	Config
	Host       string   `json:"host,omitempty"`
	Production bool     `json:"production"`
	Issues     []string `json:"issues,omitempty"`
	Warnings   []string `json:"warnings,omitempty"`
}

// Summary flattens the selection for display. The backend URL is left out.
func (s *Selection) Summary() Summary {
	sum := Summary{
		Config:     s.Config,
		Host:       s.Env.Host,
		Production: s.Production,
		Warnings:   s.Warnings,
	}
	for _, err := range s.Issues {
		sum.Issues = append(sum.Issues, err.Error())
	}
	return sum
}

// Select resolves env into a Selection and logs the outcome. Only an
// unrecognized mode is returned as an error. A live selection without a
// backend URL is logged and recorded in Issues but still succeeds.
func Select(env Environment, logger *slog.Logger) (*Selection, error) {
	if logger == nil {
		logger = slog.Default()
	}

	mode := ResolveMode(env.Mode)
	cfg, err := BuildConfig(mode)
	if err != nil {
		logger.Error("unrecognized data source mode", "raw", env.Mode)
		return nil, &ConfigurationError{Raw: env.Mode, Mode: ModeUnknown, Err: ErrUnknownMode}
	}

	sel := &Selection{
		Env:        env,
		Config:     cfg,
		Production: !IsDevelopmentHost(env.Host),
	}

	logger.Info("data source resolved",
		"mode", cfg.Mode,
		"raw", env.Mode,
		"display_name", cfg.DisplayName,
		"expected_records", cfg.ExpectedRecordCount,
	)

	if cfg.IsMock && sel.Production {
		msg := "mock data source selected on a production host"
		sel.Warnings = append(sel.Warnings, msg)
		logger.Warn(msg, "host", env.Host)
	}

	if cfg.IsLive && strings.TrimSpace(env.BackendURL) == "" {
		sel.Issues = append(sel.Issues, &ConfigurationError{Raw: env.Mode, Mode: ModeLive, Err: ErrMissingBackendURL})
		logger.Error("live data source selected but backend URL is not set")
	}

	return sel, nil
}

// IsDevelopmentHost reports whether host looks like a local or development
// machine. An empty host cannot be judged and counts as development.
func IsDevelopmentHost(host string) bool {
	host = strings.ToLower(strings.TrimSpace(host))
	if host == "" {
		return true
	}
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.Trim(host, "[]")

	switch {
	case host == "localhost",
		strings.HasSuffix(host, ".localhost"),
		strings.HasSuffix(host, ".local"):
		return true
	}

	label, _, _ := strings.Cut(host, ".")
	if label == "dev" || label == "development" {
		return true
	}

	if ip := net.ParseIP(host); ip != nil {
		return ip.IsLoopback() || ip.IsUnspecified() || ip.IsPrivate()
	}
	return false
}
