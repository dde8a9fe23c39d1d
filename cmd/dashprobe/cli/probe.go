package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/dashprobe/dashprobe/internal/probe"
	"github.com/dashprobe/dashprobe/internal/report"
)

// probeOptions are shared by every probe subcommand.
type probeOptions struct {
	backend    backendFlags
	jsonOutput bool
	timeout    time.Duration
}

func (o *probeOptions) register(cmd *cobra.Command) {
	o.backend.register(cmd)
	cmd.Flags().BoolVar(&o.jsonOutput, "json", false, "Output as JSON")
	cmd.Flags().DurationVar(&o.timeout, "timeout", 0, "Bound on each check (default from probe.timeout)")
}

func (o *probeOptions) format() report.Format {
	if o.jsonOutput {
		return report.FormatJSON
	}
	return report.FormatText
}

func (o *probeOptions) checkTimeout() time.Duration {
	if o.timeout > 0 {
		return o.timeout
	}
	return durationSetting("probe.timeout", 30*time.Second)
}

// failedChecksError is returned when at least one check failed, so the
// process exits non-zero after the results are printed.
type failedChecksError struct {
	failed, total int
}

func (e *failedChecksError) Error() string {
	return fmt.Sprintf("%d of %d checks failed", e.failed, e.total)
}

func newProbeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "probe",
		Short: "Probe the backend the dashboard depends on",
		Long: `Run schema checks against the resolved backend. Each check reports the table,
OK or FAIL, and a reason on failure. The command exits non-zero when any
check fails.`,
	}

	cmd.AddCommand(newProbeTableCmd())
	cmd.AddCommand(newProbeColumnsCmd())
	cmd.AddCommand(newProbeRelationshipCmd())
	cmd.AddCommand(newProbeDuplicatesCmd())
	cmd.AddCommand(newProbeRunCmd())

	return cmd
}

// withProber connects the backend selected by opts and calls fn with a
// Prober over it. The backend is closed when fn returns.
func withProber(cmd *cobra.Command, opts *probeOptions, fn func(ctx context.Context, p *probe.Prober, rb *resolvedBackend) error) error {
	logger := newLogger()

	registry, conn, rb, err := connectBackend(cmd.Context(), opts.backend, logger)
	if err != nil {
		return err
	}
	defer registry.CloseAll()

	return fn(cmd.Context(), probe.NewProber(conn, logger), rb)
}

func boundedContext(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// printSingle renders one result (as a row, or as JSON) and maps a failed
// check to a non-zero exit.
func printSingle(w io.Writer, opts *probeOptions, v any, row report.Row) error {
	p := report.NewPrinter(w, opts.format())
	var err error
	if opts.jsonOutput {
		err = p.JSON(v)
	} else {
		err = p.PrintRows(row)
	}
	if err != nil {
		return err
	}
	if !row.OK {
		return &failedChecksError{failed: 1, total: 1}
	}
	return nil
}

// ---------- probe table ----------

func newProbeTableCmd() *cobra.Command {
	var opts probeOptions

	cmd := &cobra.Command{
		Use:     "table <table>",
		Short:   "Check that a table exists and count its rows",
		Args:    cobra.ExactArgs(1),
		Example: `  dashprobe probe table brands`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withProber(cmd, &opts, func(ctx context.Context, p *probe.Prober, _ *resolvedBackend) error {
				ctx, cancel := boundedContext(ctx, opts.checkTimeout())
				defer cancel()

				res := p.ProbeTable(ctx, args[0])
				return printSingle(cmd.OutOrStdout(), &opts, res, report.TableRow(res))
			})
		},
	}

	opts.register(cmd)
	return cmd
}

// ---------- probe columns ----------

func newProbeColumnsCmd() *cobra.Command {
	var opts probeOptions

	cmd := &cobra.Command{
		Use:     "columns <table> <column>...",
		Short:   "Check that a table carries the given columns",
		Args:    cobra.MinimumNArgs(2),
		Example: `  dashprobe probe columns products id name brand_id`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withProber(cmd, &opts, func(ctx context.Context, p *probe.Prober, _ *resolvedBackend) error {
				ctx, cancel := boundedContext(ctx, opts.checkTimeout())
				defer cancel()

				res := p.ProbeColumns(ctx, args[0], args[1:])
				return printSingle(cmd.OutOrStdout(), &opts, res, report.ColumnRow(res))
			})
		},
	}

	opts.register(cmd)
	return cmd
}

// ---------- probe relationship ----------

func newProbeRelationshipCmd() *cobra.Command {
	var opts probeOptions

	cmd := &cobra.Command{
		Use:   "relationship <parent> <child> <foreign-key>",
		Short: "Diagnose a parent/child relationship",
		Long: `Sample one child row, look up its parent by primary key, and run the
child-to-parent join separately. A lookup that works next to a join that fails
means the foreign key is not declared in the backend's metadata.`,
		Args:    cobra.ExactArgs(3),
		Example: `  dashprobe probe relationship brands products brand_id`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withProber(cmd, &opts, func(ctx context.Context, p *probe.Prober, _ *resolvedBackend) error {
				ctx, cancel := boundedContext(ctx, opts.checkTimeout())
				defer cancel()

				res := p.ProbeRelationship(ctx, args[0], args[1], args[2])
				return printSingle(cmd.OutOrStdout(), &opts, res, report.RelationshipRow(res))
			})
		},
	}

	opts.register(cmd)
	return cmd
}

// ---------- probe duplicates ----------

func newProbeDuplicatesCmd() *cobra.Command {
	var opts probeOptions

	cmd := &cobra.Command{
		Use:     "duplicates <table> <column> <value>",
		Short:   "Count rows whose column equals a value",
		Args:    cobra.ExactArgs(3),
		Example: `  dashprobe probe duplicates brands name JTI`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withProber(cmd, &opts, func(ctx context.Context, p *probe.Prober, _ *resolvedBackend) error {
				ctx, cancel := boundedContext(ctx, opts.checkTimeout())
				defer cancel()

				res := p.DetectDuplicateNames(ctx, args[0], args[1], args[2])
				return printSingle(cmd.OutOrStdout(), &opts, res, report.DuplicateRow(res))
			})
		},
	}

	opts.register(cmd)
	return cmd
}

// ---------- probe run ----------

func newProbeRunCmd() *cobra.Command {
	var (
		opts        probeOptions
		planPath    string
		concurrency int
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run every check of a plan file",
		Long: `Run a YAML plan of checks and print one line per check. The plan has optional
sections tables, columns, relationships and duplicates:

  tables: [brands, products]
  columns:
    - {table: products, columns: [id, name, brand_id]}
  relationships:
    - {parent: brands, child: products, foreign_key: brand_id}
  duplicates:
    - {table: brands, column: name, value: JTI}`,
		Example: `  dashprobe probe run --plan dashprobe-plan.yaml
  DATA_SOURCE=mock dashprobe probe run --plan plan.yaml --concurrency 8 --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if planPath == "" {
				planPath = viper.GetString("probe.plan")
			}
			if planPath == "" {
				return fmt.Errorf("no plan given; pass --plan or set probe.plan")
			}
			plan, err := probe.LoadPlan(planPath)
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("concurrency") {
				concurrency = viper.GetInt("probe.concurrency")
			}

			return withProber(cmd, &opts, func(ctx context.Context, p *probe.Prober, rb *resolvedBackend) error {
				return runPlan(ctx, cmd.OutOrStdout(), p, rb, plan, probe.RunOptions{
					Concurrency: concurrency,
					Timeout:     opts.checkTimeout(),
				}, opts.format())
			})
		},
	}

	opts.register(cmd)
	cmd.Flags().StringVar(&planPath, "plan", "", "Plan file (default from probe.plan)")
	cmd.Flags().IntVar(&concurrency, "concurrency", 4, "Checks to run at once")

	return cmd
}

// runPlan runs plan, prints the report and turns failures into an error.
func runPlan(ctx context.Context, w io.Writer, p *probe.Prober, rb *resolvedBackend, plan *probe.Plan, opts probe.RunOptions, format report.Format) error {
	rep := p.Run(ctx, plan, opts)
	if rb != nil && rb.Selection != nil {
		rep.Mode = rb.Selection.Mode().String()
	}

	if err := report.NewPrinter(w, format).Report(rep); err != nil {
		return err
	}
	if n := rep.Failures(); n > 0 {
		return &failedChecksError{failed: n, total: rep.Checks()}
	}
	return nil
}
