package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/dashprobe/dashprobe/internal/config"
	"github.com/dashprobe/dashprobe/internal/connector"
	"github.com/dashprobe/dashprobe/internal/connector/mssql"
	"github.com/dashprobe/dashprobe/internal/connector/mysql"
	"github.com/dashprobe/dashprobe/internal/connector/postgres"
	"github.com/dashprobe/dashprobe/internal/connector/sqlite"
	"github.com/dashprobe/dashprobe/internal/datasource"
	"github.com/dashprobe/dashprobe/internal/model"
)

// dataDir holds the --data-dir persistent flag value (set on root command).
var dataDir string

// resolveDataDir returns the data directory from --data-dir flag,
// DASHPROBE_DATA_DIR env var, or ~/.dashprobe as fallback.
func resolveDataDir() string {
	if dataDir != "" {
		return dataDir
	}
	if envDir := os.Getenv("DASHPROBE_DATA_DIR"); envDir != "" {
		return envDir
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".dashprobe")
}

// openConfigStore opens the SQLite store of saved backends.
func openConfigStore() (*config.Store, error) {
	return config.NewStore(resolveDataDir())
}

// newRegistry creates a connector registry with all supported database drivers registered.
func newRegistry() *connector.Registry {
	registry := connector.NewRegistry()
	registry.RegisterDriver("postgres", func() connector.Connector { return postgres.New() })
	registry.RegisterDriver("mysql", func() connector.Connector { return mysql.New() })
	registry.RegisterDriver("mssql", func() connector.Connector { return mssql.New() })
	registry.RegisterDriver("sqlite", func() connector.Connector { return sqlite.New() })
	return registry
}

// newLogger builds the process logger from the logging.* settings. Logs go
// to stderr unless logging.file is set, in which case they are rotated by
// lumberjack.
func newLogger() *slog.Logger {
	var out io.Writer = os.Stderr
	if file := viper.GetString("logging.file"); file != "" {
		out = &lumberjack.Logger{
			Filename:   file,
			MaxSize:    viper.GetInt("logging.max_size_mb"),
			MaxBackups: viper.GetInt("logging.max_backups"),
			MaxAge:     viper.GetInt("logging.max_age_days"),
			Compress:   viper.GetBool("logging.compress"),
		}
	}

	opts := &slog.HandlerOptions{Level: parseLevel(viper.GetString("logging.level"))}
	if strings.EqualFold(viper.GetString("logging.format"), "json") {
		return slog.New(slog.NewJSONHandler(out, opts))
	}
	return slog.New(slog.NewTextHandler(out, opts))
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// dataSourceEnv gathers the selector input from viper.
func dataSourceEnv() datasource.Environment {
	host := viper.GetString("data_source.host")
	if host == "" {
		host, _ = os.Hostname()
	}
	return datasource.Environment{
		Mode:       viper.GetString("data_source.mode"),
		BackendURL: backendURL(),
		Host:       host,
	}
}

// backendURL returns data_source.backend_url. ${VAR} references are
// expanded only when the value is a config file literal; a URL taken
// straight from the environment is used verbatim.
func backendURL() string {
	raw := viper.GetString("data_source.backend_url")
	for _, name := range backendURLEnv {
		if os.Getenv(name) != "" {
			return raw
		}
	}
	return config.ExpandEnv(raw)
}

// selectDataSource runs the data source selector over the configured
// environment.
func selectDataSource(logger *slog.Logger) (*datasource.Selection, error) {
	return datasource.Select(dataSourceEnv(), logger)
}

// backendFlags are the flags every probing command accepts to pick its
// backend explicitly instead of through the data source selector.
type backendFlags struct {
	dsn     string
	driver  string
	service string
	schema  string
}

func (f *backendFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.dsn, "dsn", "", "Connection string of the backend to probe")
	cmd.Flags().StringVar(&f.driver, "driver", "postgres", "Driver for --dsn (postgres, mysql, mssql, sqlite)")
	cmd.Flags().StringVar(&f.service, "service", "", "Name of a saved backend (see 'dashprobe db list')")
	cmd.Flags().StringVar(&f.schema, "schema", "", "Schema to probe (default depends on driver)")
}

// resolvedBackend is the backend a command will connect to. Selection is
// nil when the backend was chosen by flag.
type resolvedBackend struct {
	Name      string
	Config    connector.ConnectionConfig
	Selection *datasource.Selection
}

// errNoBackendURL is returned when live mode is selected without a backend
// location and no explicit backend was given.
var errNoBackendURL = errors.New("live data source has no backend URL; set SUPABASE_DB_URL or pass --dsn")

// resolveBackend picks the backend in order: --dsn/--driver, then
// --service, then the data source selector (live reads the backend URL
// with postgres, mock opens data_source.mock_dsn with sqlite).
func resolveBackend(ctx context.Context, f backendFlags, logger *slog.Logger) (*resolvedBackend, error) {
	if f.dsn != "" {
		return &resolvedBackend{
			Name:   "flag",
			Config: connectionConfig(f.driver, f.dsn, f.schema, model.DefaultPoolConfig()),
		}, nil
	}

	if f.service != "" {
		store, err := openConfigStore()
		if err != nil {
			return nil, fmt.Errorf("open config store: %w", err)
		}
		defer store.Close()

		b, err := store.GetBackendByName(ctx, f.service)
		if err != nil {
			return nil, fmt.Errorf("look up backend %q: %w", f.service, err)
		}
		schema := b.Schema
		if f.schema != "" {
			schema = f.schema
		}
		return &resolvedBackend{
			Name:   b.Name,
			Config: connectionConfig(b.Driver, b.DSN, schema, b.Pool),
		}, nil
	}

	sel, err := selectDataSource(logger)
	if err != nil {
		return nil, err
	}

	res := &resolvedBackend{Name: sel.Mode().String(), Selection: sel}
	switch sel.Mode() {
	case datasource.ModeLive:
		url := sel.Env.BackendURL
		if strings.TrimSpace(url) == "" {
			return nil, errNoBackendURL
		}
		res.Config = connectionConfig("postgres", url, f.schema, model.DefaultPoolConfig())
	default:
		res.Config = connectionConfig("sqlite", viper.GetString("data_source.mock_dsn"), f.schema, model.DefaultPoolConfig())
	}
	return res, nil
}

func connectionConfig(driver, dsn, schema string, pool model.PoolConfig) connector.ConnectionConfig {
	return connector.ConnectionConfig{
		Driver:          driver,
		DSN:             dsn,
		SchemaName:      schema,
		MaxOpenConns:    pool.MaxOpenConns,
		MaxIdleConns:    pool.MaxIdleConns,
		ConnMaxLifetime: pool.ConnMaxLifetime,
		ConnMaxIdleTime: pool.ConnMaxIdleTime,
	}
}

// connectBackend resolves and connects the backend for a probing command.
// The caller owns the returned registry and must CloseAll it.
func connectBackend(ctx context.Context, f backendFlags, logger *slog.Logger) (*connector.Registry, connector.Connector, *resolvedBackend, error) {
	rb, err := resolveBackend(ctx, f, logger)
	if err != nil {
		return nil, nil, nil, err
	}

	registry := newRegistry()
	conn, err := registry.Connect(rb.Name, rb.Config)
	if err != nil {
		return nil, nil, nil, err
	}
	logger.Debug("connected backend", "backend", rb.Name, "driver", rb.Config.Driver)
	return registry, conn, rb, nil
}

// durationSetting parses a duration setting, falling back to def when the
// value is empty or malformed.
func durationSetting(key string, def time.Duration) time.Duration {
	s := viper.GetString(key)
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return def
	}
	return d
}

// versionString returns a display version string.
func versionString() string {
	if appVersion == "" || appVersion == "dev" {
		return "dev"
	}
	if strings.HasPrefix(appVersion, "v") {
		return appVersion
	}
	return "v" + appVersion
}
