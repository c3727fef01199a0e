package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hadleybricks/brickvest/internal/validation"
)

var (
	validateTest string
	validateTopN int
)

// validateCmd represents the validate command
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Run the model validation protocols",
	Long: `Runs one or all validation protocols against the training table
and writes the results as JSON to the results directory.

Protocols:
  backtest    - walk-forward portfolio backtest (top-N vs bottom-N)
  calibration - quantile interval coverage per horizon
  baseline    - model vs heuristic strategy comparison
  all         - every protocol

Example:
  go run ./cmd/brickvest validate --test backtest
  go run ./cmd/brickvest validate --test all --top-n 15`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().StringVar(&validateTest, "test", "all", "protocol to run (backtest|calibration|baseline|all)")
	validateCmd.Flags().IntVar(&validateTopN, "top-n", 0, "portfolio size for the backtest (default 10)")
}

func runValidate(cmd *cobra.Command, args []string) error {
	protocol := validation.Protocol(validateTest)
	switch protocol {
	case validation.ProtocolBacktest, validation.ProtocolCalibration,
		validation.ProtocolBaseline, validation.ProtocolAll:
	default:
		return fmt.Errorf("unknown protocol: %s", validateTest)
	}

	d, err := initDeps()
	if err != nil {
		return err
	}
	defer d.Close()

	cfg := validation.DefaultConfig()
	cfg.ResultsDir = d.cfg.ResultsDir
	if validateTopN > 0 {
		cfg.TopN = validateTopN
	}

	validator := validation.NewValidator(cfg, d.training, d.log)
	report, err := validator.Run(context.Background(), protocol)
	if err != nil {
		return err
	}

	if report.Backtest != nil {
		fmt.Printf("Backtest: avg separation %.1f pp, avg top win rate %.0f%%\n",
			report.Backtest.AvgSeparationPP, report.Backtest.AvgTopWinRate*100)
	}
	if report.Calibration != nil {
		for _, hc := range report.Calibration.Horizons {
			fmt.Printf("Calibration %s: %.0f%% within IQR (%s)\n",
				hc.Horizon, hc.Pooled.WithinIQR*100, hc.Classification)
		}
	}
	if report.Baseline != nil {
		fmt.Printf("Baseline: model alpha %.1f pp over random selection\n", report.Baseline.ModelAlphaPP)
	}
	return nil
}
