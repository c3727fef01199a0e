package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hadleybricks/brickvest/internal/pipeline"
)

// pipelineCmd represents the pipeline command
var pipelineCmd = &cobra.Command{
	Use:   "pipeline",
	Short: "Run the model pipeline",
	Long: `Runs the offline model pipeline or a single stage of it.

Stages in order:
  build     - rebuild the training table from retired sets and snapshots
  features  - engineer feature vectors for every training row
  train     - walk-forward search and final quantile fits per horizon
  score     - score every live set with the persisted models

Subcommands:
  run       - all stages in order, halting on the first failure
  build, features, train, score - one stage only

Example:
  go run ./cmd/brickvest pipeline run
  go run ./cmd/brickvest pipeline train`,
}

func init() {
	rootCmd.AddCommand(pipelineCmd)

	pipelineCmd.AddCommand(&cobra.Command{
		Use:   "run",
		Short: "Run every stage in order",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRunner(func(ctx context.Context, r *pipeline.Runner) error {
				return r.Run(ctx)
			})
		},
	})

	for _, step := range pipeline.Steps {
		step := step
		pipelineCmd.AddCommand(&cobra.Command{
			Use:   string(step),
			Short: fmt.Sprintf("Run the %s stage only", step),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withRunner(func(ctx context.Context, r *pipeline.Runner) error {
					return r.RunStep(ctx, step)
				})
			},
		})
	}
}

// withRunner wires the pipeline runner and hands it to fn.
func withRunner(fn func(context.Context, *pipeline.Runner) error) error {
	d, err := initDeps()
	if err != nil {
		return err
	}
	defer d.Close()

	runner := pipeline.NewRunner(d.sets, d.snapshots, d.training, d.preds, d.runs, d.models, d.log)
	return fn(context.Background(), runner)
}
