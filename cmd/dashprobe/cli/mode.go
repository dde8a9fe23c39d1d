package cli

import (
	"github.com/spf13/cobra"

	"github.com/dashprobe/dashprobe/internal/report"
)

func newModeCmd() *cobra.Command {
	var (
		jsonOutput bool
		strict     bool
	)

	cmd := &cobra.Command{
		Use:   "mode",
		Short: "Show the resolved data source",
		Long: `Resolve the data source the dashboard would use and print its descriptor.

Fails when the configured value is not one of real, live, mock or test. With
--strict it also fails when the selection is usable but misconfigured, such
as live mode without a backend URL.`,
		Example: `  DATA_SOURCE=mock dashprobe mode
  dashprobe mode --json --strict`,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()

			sel, err := selectDataSource(logger)
			if err != nil {
				return err
			}

			format := report.FormatText
			if jsonOutput {
				format = report.FormatJSON
			}
			if err := report.NewPrinter(cmd.OutOrStdout(), format).Selection(sel); err != nil {
				return err
			}

			if strict {
				return sel.Check()
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.Flags().BoolVar(&strict, "strict", false, "Fail on misconfiguration, not only on an unknown mode")

	return cmd
}
