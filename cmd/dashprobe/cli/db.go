package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/dashprobe/dashprobe/internal/model"
)

var supportedDrivers = map[string]bool{
	"postgres": true, "mysql": true, "mssql": true, "sqlite": true,
}

func newDBCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "db",
		Aliases: []string{"backend"},
		Short:   "Manage saved backends",
		Long:    "Add, remove, list and test backends that probes can target with --service.",
	}

	cmd.AddCommand(newDBAddCmd())
	cmd.AddCommand(newDBListCmd())
	cmd.AddCommand(newDBRemoveCmd())
	cmd.AddCommand(newDBTestCmd())

	return cmd
}

// ---------- db add ----------

func newDBAddCmd() *cobra.Command {
	var (
		name   string
		driver string
		dsn    string
		label  string
		schema string
	)

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Save a backend",
		Long: `Save a backend connection under a name.

Supported drivers: postgres, mysql, mssql, sqlite`,
		Example: `  dashprobe db add --name supabase --driver postgres --dsn "$SUPABASE_DB_URL"
  dashprobe db add --name mock --driver sqlite --dsn ./mock.db`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDBAdd(cmd.Context(), cmd.OutOrStdout(), name, driver, dsn, label, schema)
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Backend name (unique identifier)")
	cmd.Flags().StringVar(&driver, "driver", "", "Database driver (postgres, mysql, mssql, sqlite)")
	cmd.Flags().StringVar(&dsn, "dsn", "", "Data source name / connection string")
	cmd.Flags().StringVar(&label, "label", "", "Human-readable label (defaults to name)")
	cmd.Flags().StringVar(&schema, "schema", "", "Schema to probe (default depends on driver)")

	return cmd
}

func runDBAdd(ctx context.Context, w io.Writer, name, driver, dsn, label, schema string) error {
	if name == "" || driver == "" || dsn == "" {
		return fmt.Errorf("name, driver, and dsn are required")
	}
	if !supportedDrivers[driver] {
		return fmt.Errorf("unsupported driver %q; supported: postgres, mysql, mssql, sqlite", driver)
	}
	if label == "" {
		label = name
	}

	store, err := openConfigStore()
	if err != nil {
		return fmt.Errorf("open config store: %w", err)
	}
	defer store.Close()

	b := &model.BackendConfig{
		Name:     name,
		Label:    label,
		Driver:   driver,
		DSN:      dsn,
		Schema:   schema,
		IsActive: true,
		Pool:     model.DefaultPoolConfig(),
	}

	if err := store.CreateBackend(ctx, b); err != nil {
		return fmt.Errorf("create backend: %w", err)
	}

	fmt.Fprintf(w, "Added backend %q (driver=%s, id=%d)\n", name, driver, b.ID)
	return nil
}

// ---------- db list ----------

func newDBListCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:     "list",
		Short:   "List saved backends",
		Aliases: []string{"ls"},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDBList(cmd.Context(), cmd.OutOrStdout(), jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runDBList(ctx context.Context, w io.Writer, jsonOutput bool) error {
	store, err := openConfigStore()
	if err != nil {
		return fmt.Errorf("open config store: %w", err)
	}
	defer store.Close()

	backends, err := store.ListBackends(ctx)
	if err != nil {
		return fmt.Errorf("list backends: %w", err)
	}

	if jsonOutput {
		type backendRow struct {
			Name   string `json:"name"`
			Driver string `json:"driver"`
			Label  string `json:"label"`
			Schema string `json:"schema"`
			Active bool   `json:"active"`
		}
		rows := make([]backendRow, len(backends))
		for i, b := range backends {
			rows[i] = backendRow{
				Name:   b.Name,
				Driver: b.Driver,
				Label:  b.Label,
				Schema: b.Schema,
				Active: b.IsActive,
			}
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	}

	if len(backends) == 0 {
		fmt.Fprintln(w, "No backends saved. Use 'dashprobe db add' to add one.")
		return nil
	}

	fmt.Fprintf(w, "%-20s %-10s %-8s\n", "NAME", "DRIVER", "ACTIVE")
	fmt.Fprintf(w, "%-20s %-10s %-8s\n", "----", "------", "------")
	for _, b := range backends {
		active := "yes"
		if !b.IsActive {
			active = "no"
		}
		fmt.Fprintf(w, "%-20s %-10s %-8s\n", b.Name, b.Driver, active)
	}

	return nil
}

// ---------- db remove ----------

func newDBRemoveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "remove <name>",
		Aliases: []string{"rm", "delete"},
		Short:   "Remove a saved backend",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openConfigStore()
			if err != nil {
				return fmt.Errorf("open config store: %w", err)
			}
			defer store.Close()

			if err := store.DeleteBackend(cmd.Context(), args[0]); err != nil {
				return fmt.Errorf("delete backend %q: %w", args[0], err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Removed backend %q\n", args[0])
			return nil
		},
	}

	return cmd
}

// ---------- db test ----------

func newDBTestCmd() *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "test <name>",
		Short: "Test a saved backend's connection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := boundedContext(cmd.Context(), timeout)
			defer cancel()

			logger := newLogger()
			registry, conn, rb, err := connectBackend(ctx, backendFlags{service: args[0]}, logger)
			if err != nil {
				return err
			}
			defer registry.CloseAll()

			fmt.Fprintf(cmd.OutOrStdout(), "Testing backend %q (driver=%s)...\n", rb.Name, rb.Config.Driver)
			if err := conn.Ping(ctx); err != nil {
				return fmt.Errorf("ping failed: %w", err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), "Connection successful.")
			return nil
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "Give up after this long")

	return cmd
}
