package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hadleybricks/brickvest/internal/report"
)

// reportCmd represents the report command
var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Generate the investment report",
	Long: `Renders the markdown investment report: methodology, the latest
validation results and the fee-adjusted top-25 buy list.

Reads the newest result files from the results directory and writes
investment_report_YYYYMMDD.md plus investment_report_latest.md to the
reports directory.

Example:
  go run ./cmd/brickvest report`,
	RunE: runReport,
}

func init() {
	rootCmd.AddCommand(reportCmd)
}

func runReport(cmd *cobra.Command, args []string) error {
	d, err := initDeps()
	if err != nil {
		return err
	}
	defer d.Close()

	gen := report.New(report.Config{
		ResultsDir: d.cfg.ResultsDir,
		ReportsDir: d.cfg.ReportsDir,
	}, d.sets, d.preds, d.log)

	path, err := gen.Run(context.Background())
	if err != nil {
		return err
	}

	fmt.Printf("Report written to %s\n", path)
	return nil
}
