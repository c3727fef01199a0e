// Package jobs holds the scheduled job implementations.
package jobs

import (
	"context"

	"github.com/hadleybricks/brickvest/internal/pipeline"
	"github.com/hadleybricks/brickvest/pkg/logger"
)

// PipelineJob runs the full model pipeline nightly: dataset build,
// feature engineering, training and scoring.
type PipelineJob struct {
	runner *pipeline.Runner
	logger *logger.Logger
}

// NewPipelineJob creates a new pipeline job
func NewPipelineJob(runner *pipeline.Runner, log *logger.Logger) *PipelineJob {
	return &PipelineJob{
		runner: runner,
		logger: log,
	}
}

// Name returns the job name
func (j *PipelineJob) Name() string {
	return "model_pipeline"
}

// Schedule runs every day at 2 AM, after the overnight snapshot
// imports have landed.
func (j *PipelineJob) Schedule() string {
	return "0 0 2 * * *"
}

// Run executes the pipeline
func (j *PipelineJob) Run(ctx context.Context) error {
	j.logger.Info("Starting nightly model pipeline")
	return j.runner.Run(ctx)
}
