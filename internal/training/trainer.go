package training

import (
	"context"
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"github.com/hadleybricks/brickvest/internal/contracts"
	"github.com/hadleybricks/brickvest/internal/features"
	"github.com/hadleybricks/brickvest/internal/gbm"
	"github.com/hadleybricks/brickvest/pkg/logger"
)

// ModelStore persists fitted models per horizon.
type ModelStore interface {
	SaveHorizon(horizon contracts.Horizon, models map[float64]*gbm.Model, featureNames []string) error
}

// Config controls the trainer. Defaults match production; tests lower
// the gates to fit synthetic datasets.
type Config struct {
	Folds          []contracts.Fold
	MinHorizonRows int
	MinFoldTrain   int
	MinFoldVal     int
	Trials         int
	NumRounds      int
	EarlyStopping  int
	Parallelism    int
	Seed           int64

	FinalTrainMaxYear int
	HoldoutMinYear    int
}

// DefaultConfig returns the production training configuration.
func DefaultConfig() Config {
	return Config{
		Folds:             contracts.CVFolds,
		MinHorizonRows:    50,
		MinFoldTrain:      30,
		MinFoldVal:        5,
		Trials:            50,
		NumRounds:         500,
		EarlyStopping:     50,
		Parallelism:       4,
		Seed:              42,
		FinalTrainMaxYear: contracts.FinalTrainMaxYear,
		HoldoutMinYear:    contracts.HoldoutMinYear,
	}
}

// Trainer runs the walk-forward search and final quantile fits.
type Trainer struct {
	cfg   Config
	store ModelStore
	runs  contracts.ModelRunRepository
	log   *logger.Logger
}

// NewTrainer creates a trainer. runs may be nil when run metadata is
// not persisted (validation reuses the trainer internals directly).
func NewTrainer(cfg Config, store ModelStore, runs contracts.ModelRunRepository, log *logger.Logger) *Trainer {
	return &Trainer{
		cfg:   cfg,
		store: store,
		runs:  runs,
		log:   log.WithField("component", "training"),
	}
}

// HorizonResult is the outcome of training one horizon.
type HorizonResult struct {
	Horizon    contracts.Horizon
	Skipped    bool
	SkipReason string

	BestParams  map[string]float64
	SearchScore float64 // winning fold's validation MAE

	Models   map[float64]*gbm.Model
	Features []string
	Run      *contracts.ModelRun
}

// TrainAll trains every horizon from the given labelled rows, persists
// artifacts and run metadata, and returns the per-horizon results.
func (t *Trainer) TrainAll(ctx context.Context, rows []contracts.TrainingRow) ([]*HorizonResult, error) {
	usable := rowsWithFeatures(rows)
	if dropped := len(rows) - len(usable); dropped > 0 {
		t.log.WithFields(map[string]interface{}{
			"dropped": dropped,
			"schema":  features.Version,
		}).Warn("Rows without current feature vectors excluded from training")
	}

	results := make([]*HorizonResult, 0, len(contracts.Horizons))
	for _, h := range contracts.Horizons {
		res, err := t.TrainHorizon(ctx, usable, h)
		if err != nil {
			return nil, fmt.Errorf("horizon %s: %w", h, err)
		}
		results = append(results, res)

		if res.Skipped {
			continue
		}
		if t.store != nil {
			if err := t.store.SaveHorizon(h, res.Models, res.Features); err != nil {
				return nil, fmt.Errorf("horizon %s: failed to save models: %w", h, err)
			}
		}
		if t.runs != nil && res.Run != nil {
			if _, err := t.runs.Insert(ctx, res.Run); err != nil {
				return nil, fmt.Errorf("horizon %s: failed to record run: %w", h, err)
			}
		}
	}
	return results, nil
}

// TrainHorizon runs search and final fits for one horizon.
func (t *Trainer) TrainHorizon(ctx context.Context, rows []contracts.TrainingRow, h contracts.Horizon) (*HorizonResult, error) {
	res := &HorizonResult{Horizon: h}
	log := t.log.WithField("horizon", string(h))

	matrix := buildMatrix(rows, h)
	if matrix.Len() < t.cfg.MinHorizonRows {
		res.Skipped = true
		res.SkipReason = fmt.Sprintf("%d labelled rows, need %d", matrix.Len(), t.cfg.MinHorizonRows)
		log.WithField("rows", matrix.Len()).Warn("Skipping horizon: too few labelled rows")
		return res, nil
	}
	matrix.dropDuplicateColumns()

	best, folds, evals, err := t.searchBestParams(ctx, matrix)
	if err != nil {
		return nil, fmt.Errorf("hyperparameter search failed: %w", err)
	}
	if best == nil {
		return nil, fmt.Errorf("no fold met the %d train / %d val row gates", t.cfg.MinFoldTrain, t.cfg.MinFoldVal)
	}
	res.BestParams = best.params
	res.SearchScore = best.score
	log.WithFields(map[string]interface{}{
		"val_mae": best.score,
		"folds":   folds,
		"trials":  evals,
		"params":  best.params,
	}).Info("Search complete")

	if err := t.finalFit(matrix, res); err != nil {
		return nil, err
	}
	log.WithFields(map[string]interface{}{
		"train_rows": res.Run.TrainRows,
		"test_rows":  res.Run.TestRows,
		"train_mae":  res.Run.TrainMAE,
	}).Info("Horizon trained")
	return res, nil
}

// searchBestParams runs a full fixed-budget search on every fold that
// passes the row gates and keeps the single lowest-MAE winner across
// folds. Returns the winner, the qualifying fold count and the total
// objective evaluations; the winner is nil when no fold qualifies.
func (t *Trainer) searchBestParams(ctx context.Context, m *Matrix) (*trial, int, int64, error) {
	var best *trial
	var evals int64
	valid := 0
	for _, fold := range t.cfg.Folds {
		train := m.subset(func(y int) bool { return y <= fold.TrainEndYear })
		val := m.subset(func(y int) bool { return y == fold.ValYear })
		if train.Len() < t.cfg.MinFoldTrain || val.Len() < t.cfg.MinFoldVal {
			continue
		}
		valid++

		medians := columnMedians(train.X, len(train.Features))
		trainImp := train.imputed(medians)
		valImp := val.imputed(medians)
		trainDS := gbm.Dataset{Features: trainImp.Features, X: trainImp.X, Y: trainImp.Y, Weights: trainImp.Weights}
		valDS := gbm.Dataset{Features: valImp.Features, X: valImp.X, Y: valImp.Y}

		searcher := &Searcher{Trials: t.cfg.Trials, Parallelism: t.cfg.Parallelism, Seed: t.cfg.Seed}
		foldBest, err := searcher.Run(ctx, func(ctx context.Context, params map[string]float64) (float64, error) {
			atomic.AddInt64(&evals, 1)
			p := t.gbmParams(params, gbm.ObjectiveL2, 0)
			p.EarlyStopping = t.cfg.EarlyStopping
			model, err := gbm.FitWithEarlyStopping(trainDS, valDS, p)
			if err != nil {
				return 0, err
			}
			return meanAbsError(model, valImp), nil
		})
		if err != nil {
			return nil, valid, evals, fmt.Errorf("fold val=%d: %w", fold.ValYear, err)
		}

		t.log.WithFields(map[string]interface{}{
			"val_year": fold.ValYear,
			"val_mae":  foldBest.score,
		}).Debug("Fold search complete")
		if best == nil || foldBest.score < best.score {
			best = foldBest
		}
	}
	return best, valid, evals, nil
}

// finalFit trains the shipped quantile models on retirement years up
// to the cutoff, holding later years out for reported metrics only.
func (t *Trainer) finalFit(m *Matrix, res *HorizonResult) error {
	train := m.subset(func(y int) bool { return y <= t.cfg.FinalTrainMaxYear })
	holdout := m.subset(func(y int) bool { return y >= t.cfg.HoldoutMinYear })
	if train.Len() == 0 {
		return fmt.Errorf("no training rows at or before %d", t.cfg.FinalTrainMaxYear)
	}

	medians := columnMedians(train.X, len(train.Features))
	trainImp := train.imputed(medians)

	res.Models = make(map[float64]*gbm.Model, len(contracts.Quantiles))
	for _, alpha := range contracts.Quantiles {
		p := t.gbmParams(res.BestParams, gbm.ObjectiveQuantile, alpha)
		model, err := gbm.Fit(
			gbm.Dataset{Features: trainImp.Features, X: trainImp.X, Y: trainImp.Y, Weights: trainImp.Weights},
			p,
		)
		if err != nil {
			return fmt.Errorf("quantile %.2f fit failed: %w", alpha, err)
		}
		res.Models[alpha] = model
	}
	res.Features = trainImp.Features

	median := res.Models[0.50]
	run := &contracts.ModelRun{
		Horizon:      res.Horizon,
		ModelVersion: contracts.ModelVersion,
		TrainedAt:    time.Now().UTC(),
		Hyperparams:  res.BestParams,
		Features:     res.Features,
		Importances:  median.Importances(),
		TrainRows:    train.Len(),
		TestRows:     holdout.Len(),
		TrainMAE:     meanAbsError(median, trainImp),
	}
	if holdout.Len() > 0 {
		holdImp := holdout.imputed(medians)
		mae := meanAbsError(median, holdImp)
		r2 := rSquared(median, holdImp)
		run.TestMAE = &mae
		run.TestR2 = &r2
	}
	res.Run = run
	return nil
}

// gbmParams converts a search assignment into boosting parameters.
func (t *Trainer) gbmParams(params map[string]float64, obj gbm.ObjectiveKind, alpha float64) gbm.Params {
	return gbm.Params{
		Objective:       obj,
		Alpha:           alpha,
		NumRounds:       t.cfg.NumRounds,
		NumLeaves:       int(params["num_leaves"]),
		LearningRate:    params["learning_rate"],
		MaxDepth:        int(params["max_depth"]),
		MinChildSamples: int(params["min_child_samples"]),
		FeatureFraction: params["feature_fraction"],
		LambdaL1:        params["lambda_l1"],
		LambdaL2:        params["lambda_l2"],
		Seed:            t.cfg.Seed,
	}
}

func rowsWithFeatures(rows []contracts.TrainingRow) []contracts.TrainingRow {
	out := make([]contracts.TrainingRow, 0, len(rows))
	for i := range rows {
		if rows[i].Features != nil && rows[i].FeatureVersion == features.Version {
			out = append(out, rows[i])
		}
	}
	return out
}

func meanAbsError(m *gbm.Model, data *Matrix) float64 {
	if data.Len() == 0 {
		return 0
	}
	var sum float64
	for i := range data.X {
		sum += math.Abs(m.Predict(data.X[i]) - data.Y[i])
	}
	return sum / float64(data.Len())
}

func rSquared(m *gbm.Model, data *Matrix) float64 {
	if data.Len() == 0 {
		return 0
	}
	var meanY float64
	for _, y := range data.Y {
		meanY += y
	}
	meanY /= float64(data.Len())

	var ssRes, ssTot float64
	for i := range data.X {
		d := data.Y[i] - m.Predict(data.X[i])
		ssRes += d * d
		dy := data.Y[i] - meanY
		ssTot += dy * dy
	}
	if ssTot == 0 {
		return 0
	}
	return 1 - ssRes/ssTot
}
