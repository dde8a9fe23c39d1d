package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/dashprobe/dashprobe/internal/probe"
	"github.com/dashprobe/dashprobe/internal/server"
)

func newServeCmd() *cobra.Command {
	var (
		port    int
		host    string
		backend backendFlags
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the diagnostics HTTP API",
		Long: `Start an HTTP server that runs probes on request against the resolved backend.

Routes:
  GET  /healthz, /readyz
  GET  /api/v1/datasource
  GET  /api/v1/tables/{table}
  GET  /api/v1/tables/{table}/columns?columns=a,b
  GET  /api/v1/relationships?parent=&child=&fk=
  GET  /api/v1/duplicates?table=&column=&value=
  POST /api/v1/probe`,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()

			registry, conn, rb, err := connectBackend(cmd.Context(), backend, logger)
			if err != nil {
				return err
			}
			defer registry.CloseAll()

			cfg := server.Config{
				Host:            viper.GetString("server.host"),
				Port:            viper.GetInt("server.port"),
				ShutdownTimeout: durationSetting("server.shutdown_timeout", 10*time.Second),
				CORSOrigins:     viper.GetStringSlice("server.cors.origins"),
				CORSMethods:     viper.GetStringSlice("server.cors.methods"),
				RateLimit:       viper.GetInt("server.rate_limit.requests_per_minute"),
				ProbeTimeout:    durationSetting("probe.timeout", 30*time.Second),
			}

			srv := server.New(cfg, registry, rb.Selection, probe.NewProber(conn, logger), logger)

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "→ dashprobe %s\n", versionString())
			fmt.Fprintf(out, "→ Listening on http://%s:%d\n", cfg.Host, cfg.Port)
			fmt.Fprintf(out, "→ Backend:    %s (%s)\n", rb.Name, rb.Config.Driver)
			fmt.Fprintf(out, "→ Health:     http://%s:%d/healthz\n", cfg.Host, cfg.Port)
			fmt.Fprintln(out)

			return srv.ListenAndServe()
		},
	}

	backend.register(cmd)
	cmd.Flags().IntVarP(&port, "port", "p", 8686, "HTTP listen port")
	cmd.Flags().StringVar(&host, "host", "127.0.0.1", "HTTP listen host")

	viper.BindPFlag("server.port", cmd.Flags().Lookup("port"))
	viper.BindPFlag("server.host", cmd.Flags().Lookup("host"))

	return cmd
}
