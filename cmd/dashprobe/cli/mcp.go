package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	dmcp "github.com/dashprobe/dashprobe/internal/mcp"
	"github.com/dashprobe/dashprobe/internal/probe"
)

func newMCPCmd() *cobra.Command {
	var (
		transport string
		addr      string
		backend   backendFlags
	)

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Start the MCP server for AI agents",
		Long: `Start a Model Context Protocol (MCP) server that exposes the probes as
read-only tools. Supports stdio (default) and streamable HTTP transports.

In stdio mode the server speaks JSON-RPC over stdin/stdout, for clients that
launch dashprobe as a subprocess. Logs go to stderr or logging.file.`,
		Example: `  dashprobe mcp                                   # stdio mode
  dashprobe mcp --transport http --addr 127.0.0.1:8687`,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()

			registry, conn, rb, err := connectBackend(cmd.Context(), backend, logger)
			if err != nil {
				return err
			}
			defer registry.CloseAll()

			timeout := durationSetting("probe.timeout", 30*time.Second)
			srv := dmcp.NewMCPServer(probe.NewProber(conn, logger), rb.Selection, timeout, versionString(), logger)

			switch viper.GetString("mcp.transport") {
			case "stdio":
				return srv.ServeStdio()
			case "http":
				return srv.ServeHTTP(viper.GetString("mcp.addr"))
			default:
				return fmt.Errorf("unsupported transport %q; use 'stdio' or 'http'", viper.GetString("mcp.transport"))
			}
		},
	}

	backend.register(cmd)
	cmd.Flags().StringVar(&transport, "transport", "stdio", "Transport mode: stdio or http")
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8687", "Listen address (only used with --transport http)")

	viper.BindPFlag("mcp.transport", cmd.Flags().Lookup("transport"))
	viper.BindPFlag("mcp.addr", cmd.Flags().Lookup("addr"))

	return cmd
}
