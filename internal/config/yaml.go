package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// YAMLConfig represents the top-level dashprobe.yaml file. Viper reads the
// same file for individual keys; this type is its typed schema and the
// source of `config init` defaults.
type YAMLConfig struct {
	DataSource DataSourceConfig `yaml:"data_source"`
	Probe      ProbeConfig      `yaml:"probe"`
	Server     ServerConfig     `yaml:"server"`
	MCP        MCPConfig        `yaml:"mcp"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// DataSourceConfig selects the backend the dashboard (and the probe) reads.
type DataSourceConfig struct {
	Mode       string `yaml:"mode"`        // real, live, mock or test
	BackendURL string `yaml:"backend_url"` // required in live mode
	MockDSN    string `yaml:"mock_dsn"`    // SQLite file used in mock mode
	Host       string `yaml:"host"`        // host the dashboard is served from
}

// ProbeConfig controls plan runs.
type ProbeConfig struct {
	Plan        string `yaml:"plan"`
	Concurrency int    `yaml:"concurrency"`
	Timeout     string `yaml:"timeout"`
}

// ServerConfig controls the diagnostics HTTP server.
type ServerConfig struct {
	Host            string          `yaml:"host"`
	Port            int             `yaml:"port"`
	ShutdownTimeout string          `yaml:"shutdown_timeout"`
	CORS            CORSConfig      `yaml:"cors"`
	RateLimit       RateLimitConfig `yaml:"rate_limit"`
}

// CORSConfig controls cross-origin resource sharing settings.
type CORSConfig struct {
	Origins []string `yaml:"origins"`
	Methods []string `yaml:"methods"`
}

// RateLimitConfig bounds requests per client IP. Zero disables limiting.
type RateLimitConfig struct {
	RequestsPerMinute int `yaml:"requests_per_minute"`
}

// MCPConfig controls the MCP (Model Context Protocol) server.
type MCPConfig struct {
	Transport string `yaml:"transport"` // stdio or http
	Addr      string `yaml:"addr"`
}

// LoggingConfig controls log output. When File is set, logs are written
// there and rotated by size.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// LoadYAMLConfig reads and parses a YAML configuration file on top of the
// defaults. Environment variables referenced as ${VAR_NAME} in the file are
// expanded before parsing.
func LoadYAMLConfig(path string) (*YAMLConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	content := ExpandEnv(string(data))

	cfg := DefaultYAMLConfig()
	if err := yaml.Unmarshal([]byte(content), cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}
	return cfg, nil
}

// DefaultYAMLConfig returns a YAMLConfig pre-filled with sensible defaults.
func DefaultYAMLConfig() *YAMLConfig {
	return &YAMLConfig{
		DataSource: DataSourceConfig{
			Mode:       "real",
			BackendURL: "${SUPABASE_DB_URL}",
			MockDSN:    "mock.db",
		},
		Probe: ProbeConfig{
			Plan:        "dashprobe-plan.yaml",
			Concurrency: 4,
			Timeout:     "30s",
		},
		Server: ServerConfig{
			Host:            "127.0.0.1",
			Port:            8686,
			ShutdownTimeout: "10s",
			CORS: CORSConfig{
				Origins: []string{"*"},
				Methods: []string{"GET", "POST"},
			},
			RateLimit: RateLimitConfig{RequestsPerMinute: 120},
		},
		MCP: MCPConfig{
			Transport: "stdio",
			Addr:      "127.0.0.1:8687",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
			Compress:   true,
		},
	}
}

// WriteDefaultConfig writes the default configuration to a YAML file. It
// refuses to overwrite an existing file.
func WriteDefaultConfig(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file %s: %w", path, ErrAlreadyExists)
	}
	data, err := yaml.Marshal(DefaultYAMLConfig())
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
