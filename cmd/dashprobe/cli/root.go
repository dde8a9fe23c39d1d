package cli

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/dashprobe/dashprobe/internal/config"
)

// backendURLEnv are the variables data_source.backend_url is read from,
// in order of precedence.
var backendURLEnv = []string{"DASHPROBE_BACKEND_URL", "SUPABASE_DB_URL", "DATABASE_URL"}

var (
	cfgFile    string
	appVersion string // set in Execute, reported by the MCP server
)

// Execute creates the root command tree and runs it.
func Execute(version, commit, date string) error {
	appVersion = version
	rootCmd := newRootCmd(version, commit, date)
	return rootCmd.Execute()
}

func newRootCmd(version, commit, date string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dashprobe",
		Short: "Check which data source a dashboard reads and whether its schema holds up",
		Long: `dashprobe resolves the dashboard's data source (live or mock) from a single
configuration value and probes the backend the dashboard depends on: tables,
columns, declared relationships and names that should be unique.

The data source is read from DATA_SOURCE (or DASHPROBE_DATA_SOURCE). Accepted
values are real, live, mock and test. The live backend location is read from
SUPABASE_DB_URL, DATABASE_URL or DASHPROBE_BACKEND_URL.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./dashprobe.yaml)")
	cmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "data directory for saved backends (default: ~/.dashprobe)")
	cmd.PersistentFlags().String("log-level", "", "log level: debug, info, warn, error")
	viper.BindPFlag("logging.level", cmd.PersistentFlags().Lookup("log-level"))

	cobra.OnInitialize(initConfig)

	cmd.AddCommand(newModeCmd())
	cmd.AddCommand(newProbeCmd())
	cmd.AddCommand(newDBCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newMCPCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newVersionCmd(version, commit, date))

	return cmd
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("dashprobe")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME/.dashprobe")
	}

	setDefaults()

	viper.SetEnvPrefix("DASHPROBE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// The dashboard's own variable names take part in resolution too.
	viper.BindEnv("data_source.mode", "DASHPROBE_DATA_SOURCE", "DATA_SOURCE")
	viper.BindEnv(append([]string{"data_source.backend_url"}, backendURLEnv...)...)
	viper.BindEnv("data_source.host", "DASHPROBE_HOST")

	viper.ReadInConfig() // Ignore error - config file is optional
}

// setDefaults mirrors config.DefaultYAMLConfig into viper. The data source
// mode and backend URL have no default: an unset mode is reported as
// unknown rather than guessed.
func setDefaults() {
	d := config.DefaultYAMLConfig()

	viper.SetDefault("data_source.mock_dsn", d.DataSource.MockDSN)

	viper.SetDefault("probe.concurrency", d.Probe.Concurrency)
	viper.SetDefault("probe.timeout", d.Probe.Timeout)

	viper.SetDefault("server.host", d.Server.Host)
	viper.SetDefault("server.port", d.Server.Port)
	viper.SetDefault("server.shutdown_timeout", d.Server.ShutdownTimeout)
	viper.SetDefault("server.cors.origins", d.Server.CORS.Origins)
	viper.SetDefault("server.cors.methods", d.Server.CORS.Methods)
	viper.SetDefault("server.rate_limit.requests_per_minute", d.Server.RateLimit.RequestsPerMinute)

	viper.SetDefault("mcp.transport", d.MCP.Transport)
	viper.SetDefault("mcp.addr", d.MCP.Addr)

	viper.SetDefault("logging.level", d.Logging.Level)
	viper.SetDefault("logging.format", d.Logging.Format)
	viper.SetDefault("logging.max_size_mb", d.Logging.MaxSizeMB)
	viper.SetDefault("logging.max_backups", d.Logging.MaxBackups)
	viper.SetDefault("logging.max_age_days", d.Logging.MaxAgeDays)
	viper.SetDefault("logging.compress", d.Logging.Compress)
}
