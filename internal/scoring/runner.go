package scoring

import (
	"context"
	"fmt"

	"github.com/hadleybricks/brickvest/internal/artifacts"
	"github.com/hadleybricks/brickvest/internal/contracts"
	"github.com/hadleybricks/brickvest/internal/gbm"
	"github.com/hadleybricks/brickvest/pkg/logger"
)

// Runner wires the scorer to storage and model artifacts.
type Runner struct {
	sets     contracts.SetRepository
	snaps    contracts.SnapshotRepository
	training contracts.TrainingRepository
	preds    contracts.PredictionRepository
	store    *artifacts.Store
	scorer   *Scorer
	log      *logger.Logger
}

// NewRunner creates the scoring pipeline step.
func NewRunner(
	sets contracts.SetRepository,
	snaps contracts.SnapshotRepository,
	training contracts.TrainingRepository,
	preds contracts.PredictionRepository,
	store *artifacts.Store,
	scorer *Scorer,
	log *logger.Logger,
) *Runner {
	return &Runner{
		sets:     sets,
		snaps:    snaps,
		training: training,
		preds:    preds,
		store:    store,
		scorer:   scorer,
		log:      log.WithField("component", "scoring"),
	}
}

// Run scores every eligible set with the persisted models and upserts
// the predictions.
func (r *Runner) Run(ctx context.Context) (*BatchStats, error) {
	ms, err := r.loadModels()
	if err != nil {
		return nil, err
	}

	sets, err := r.sets.ListScoreable(ctx, contracts.RecentRetiredCutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to list scoreable sets: %w", err)
	}

	setNumbers := make([]string, len(sets))
	for i, s := range sets {
		setNumbers[i] = s.SetNumber
	}
	snaps, err := r.snaps.ListBySets(ctx, setNumbers)
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshots: %w", err)
	}

	trainingRows, err := r.training.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load training rows: %w", err)
	}

	preds, stats := r.scorer.Score(sets, snaps, trainingRows, ms)

	persisted, err := r.preds.UpsertBatch(ctx, preds)
	if err != nil {
		return nil, fmt.Errorf("failed to persist predictions: %w", err)
	}

	r.log.WithFields(map[string]interface{}{
		"candidates": len(sets),
		"scored":     stats.Scored,
		"persisted":  persisted,
		"models":     describeModelSet(ms),
		"version":    contracts.ModelVersion,
	}).Info("Scoring complete")
	return &stats, nil
}

// loadModels reads every horizon with a complete artifact triplet.
// At least one horizon must be available.
func (r *Runner) loadModels() (*ModelSet, error) {
	ms := &ModelSet{
		Models:   make(map[contracts.Horizon]map[float64]*gbm.Model),
		Features: make(map[contracts.Horizon][]string),
	}
	for _, h := range contracts.Horizons {
		if !r.store.HasHorizon(h) {
			r.log.WithField("horizon", string(h)).Warn("No model artifacts for horizon")
			continue
		}
		models, featureNames, err := r.store.LoadHorizon(h)
		if err != nil {
			return nil, fmt.Errorf("failed to load models: %w", err)
		}
		ms.Models[h] = models
		ms.Features[h] = featureNames
	}
	if len(ms.Models) == 0 {
		return nil, fmt.Errorf("no trained models found; run the train step first")
	}
	return ms, nil
}
