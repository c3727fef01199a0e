// Package pipeline sequences the offline stages: dataset build,
// feature engineering, training and scoring. Commands and the
// scheduler share the same runner.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/hadleybricks/brickvest/internal/artifacts"
	"github.com/hadleybricks/brickvest/internal/contracts"
	"github.com/hadleybricks/brickvest/internal/dataset"
	"github.com/hadleybricks/brickvest/internal/features"
	"github.com/hadleybricks/brickvest/internal/scoring"
	"github.com/hadleybricks/brickvest/internal/training"
	"github.com/hadleybricks/brickvest/pkg/logger"
)

// Step names one pipeline stage.
type Step string

const (
	StepBuild    Step = "build"
	StepFeatures Step = "features"
	StepTrain    Step = "train"
	StepScore    Step = "score"
)

// Steps lists the stages in execution order.
var Steps = []Step{StepBuild, StepFeatures, StepTrain, StepScore}

// Runner executes the pipeline stages against storage. Every stage is
// idempotent, so a failed run is rerun from the start.
type Runner struct {
	sets     contracts.SetRepository
	snaps    contracts.SnapshotRepository
	training contracts.TrainingRepository
	preds    contracts.PredictionRepository
	runs     contracts.ModelRunRepository
	models   *artifacts.Store

	trainCfg training.Config
	weights  contracts.ScoreWeights
	log      *logger.Logger
}

// NewRunner creates a pipeline runner with the shipped configuration.
func NewRunner(
	sets contracts.SetRepository,
	snaps contracts.SnapshotRepository,
	trainingRepo contracts.TrainingRepository,
	preds contracts.PredictionRepository,
	runs contracts.ModelRunRepository,
	models *artifacts.Store,
	log *logger.Logger,
) *Runner {
	return &Runner{
		sets:     sets,
		snaps:    snaps,
		training: trainingRepo,
		preds:    preds,
		runs:     runs,
		models:   models,
		trainCfg: training.DefaultConfig(),
		weights:  contracts.DefaultScoreWeights,
		log:      log.WithField("component", "pipeline"),
	}
}

// WithTrainingConfig overrides the trainer configuration.
func (r *Runner) WithTrainingConfig(cfg training.Config) *Runner {
	r.trainCfg = cfg
	return r
}

// Run executes every stage in order, halting on the first failure so a
// broken upstream stage never feeds a downstream one.
func (r *Runner) Run(ctx context.Context) error {
	started := time.Now()
	for _, step := range Steps {
		if err := r.RunStep(ctx, step); err != nil {
			return fmt.Errorf("pipeline halted at %s: %w", step, err)
		}
	}
	r.log.WithField("duration", time.Since(started)).Info("Pipeline complete")
	return nil
}

// RunStep executes one named stage.
func (r *Runner) RunStep(ctx context.Context, step Step) error {
	started := time.Now()
	r.log.WithField("step", string(step)).Info("Pipeline step started")

	var err error
	switch step {
	case StepBuild:
		err = r.build(ctx)
	case StepFeatures:
		err = r.engineer(ctx)
	case StepTrain:
		err = r.train(ctx)
	case StepScore:
		err = r.score(ctx)
	default:
		return fmt.Errorf("unknown pipeline step: %s", step)
	}
	if err != nil {
		return err
	}

	r.log.WithFields(map[string]interface{}{
		"step":     string(step),
		"duration": time.Since(started),
	}).Info("Pipeline step complete")
	return nil
}

func (r *Runner) build(ctx context.Context) error {
	builder := dataset.NewBuilder(r.sets, r.snaps, r.training, r.log)
	result, err := builder.Run(ctx)
	if err != nil {
		return err
	}
	if result.Persisted == 0 {
		return fmt.Errorf("dataset build produced no rows")
	}
	return nil
}

func (r *Runner) engineer(ctx context.Context) error {
	engineer := features.NewEngineer(r.sets, r.snaps, r.training, r.log)
	updated, err := engineer.Run(ctx)
	if err != nil {
		return err
	}
	if updated == 0 {
		return fmt.Errorf("feature step updated no rows")
	}
	return nil
}

func (r *Runner) train(ctx context.Context) error {
	rows, err := r.training.ListAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to load training rows: %w", err)
	}

	trainer := training.NewTrainer(r.trainCfg, r.models, r.runs, r.log)
	results, err := trainer.TrainAll(ctx, rows)
	if err != nil {
		return err
	}

	trained := 0
	for _, res := range results {
		if !res.Skipped {
			trained++
		}
	}
	if trained == 0 {
		return fmt.Errorf("no horizon had enough data to train")
	}
	return nil
}

func (r *Runner) score(ctx context.Context) error {
	scorer, err := scoring.NewScorer(r.weights, r.log)
	if err != nil {
		return err
	}
	runner := scoring.NewRunner(r.sets, r.snaps, r.training, r.preds, r.models, scorer, r.log)
	_, err = runner.Run(ctx)
	return err
}
