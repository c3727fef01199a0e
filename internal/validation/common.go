// Package validation runs the three model-quality protocols: ranking
// backtest, quantile calibration, and heuristic baseline comparison.
// All protocols share the trainer's walk-forward folds, recency
// weighting and feature preparation, but fit throwaway fold models
// with fixed reference hyperparameters so results measure the data and
// pipeline, not a tuned configuration.
package validation

import (
	"math"
	"sort"

	"github.com/hadleybricks/brickvest/internal/contracts"
	"github.com/hadleybricks/brickvest/internal/features"
	"github.com/hadleybricks/brickvest/internal/gbm"
)

// Config controls the validation protocols. Defaults match
// production; tests lower the gates.
type Config struct {
	Folds          []contracts.Fold
	MinHorizonRows int
	MinFoldTrain   int
	MinFoldVal     int // calibration test-group floor
	MinBacktestTest int
	TopN           int
	NumRounds      int
	Seed           int64
	ResultsDir     string
}

// DefaultConfig returns the production validation configuration.
func DefaultConfig() Config {
	return Config{
		Folds:           contracts.CVFolds,
		MinHorizonRows:  50,
		MinFoldTrain:    30,
		MinFoldVal:      5,
		MinBacktestTest: 10,
		TopN:            10,
		NumRounds:       500,
		Seed:            42,
		ResultsDir:      "validation_results",
	}
}

// referenceParams are the fixed fold-model hyperparameters.
func referenceParams(cfg Config, alpha float64) gbm.Params {
	return gbm.Params{
		Objective:       gbm.ObjectiveQuantile,
		Alpha:           alpha,
		NumRounds:       cfg.NumRounds,
		NumLeaves:       31,
		LearningRate:    0.05,
		MaxDepth:        5,
		MinChildSamples: 20,
		FeatureFraction: 0.8,
		Seed:            cfg.Seed,
	}
}

// foldRow is one test-year observation with its quantile predictions.
type foldRow struct {
	Set       string
	Theme     string
	RRP       float64
	ActualLog float64
	P25Log    float64
	P50Log    float64
	P75Log    float64

	// Features used by the heuristic baseline strategies.
	IsLicensed      bool
	ProductionRun   *float64
	ExclusivityTier *float64
}

// ActualPct converts the realised log target to percent appreciation.
func (r *foldRow) ActualPct() float64 { return contracts.LogToPct(r.ActualLog) }

// PredictedPct converts the median prediction to percent appreciation.
func (r *foldRow) PredictedPct() float64 { return contracts.LogToPct(r.P50Log) }

// matrixView carries the dense view used by all protocols.
type matrixView struct {
	Features []string
	X        [][]float64
	Y        []float64
	Weights  []float64
	Years    []int
	Rows     []*contracts.TrainingRow
}

// buildView extracts labelled rows for one horizon into a dense matrix
// with recency weights, mirroring the trainer's preparation.
func buildView(rows []contracts.TrainingRow, h contracts.Horizon) *matrixView {
	names := features.Names()
	v := &matrixView{Features: names}
	for i := range rows {
		target := rows[i].Target(h)
		if target == nil || rows[i].Features == nil {
			continue
		}
		vec := make([]float64, len(names))
		for j, name := range names {
			if f := rows[i].Features[name]; f != nil {
				vec[j] = *f
			} else {
				vec[j] = math.NaN()
			}
		}
		v.X = append(v.X, vec)
		v.Y = append(v.Y, *target)
		w := 1.0
		if rows[i].RetirementYear >= contracts.RecencyMinYear {
			w = contracts.RecencyWeight
		}
		v.Weights = append(v.Weights, w)
		v.Years = append(v.Years, rows[i].RetirementYear)
		v.Rows = append(v.Rows, &rows[i])
	}
	return v
}

func (v *matrixView) subset(keep func(year int) bool) *matrixView {
	out := &matrixView{Features: v.Features}
	for i := range v.X {
		if !keep(v.Years[i]) {
			continue
		}
		out.X = append(out.X, v.X[i])
		out.Y = append(out.Y, v.Y[i])
		out.Weights = append(out.Weights, v.Weights[i])
		out.Years = append(out.Years, v.Years[i])
		out.Rows = append(out.Rows, v.Rows[i])
	}
	return out
}

// foldPredictions fits reference quantile models on the fold's
// training years and predicts the test year. The validation year is
// left out of training, same split the search saw. ok is false when
// the fold fails the row gates.
func foldPredictions(cfg Config, view *matrixView, fold contracts.Fold, minTest int) ([]foldRow, bool, error) {
	train := view.subset(func(y int) bool { return y <= fold.TrainEndYear })
	test := view.subset(func(y int) bool { return y == fold.TestYear })
	if len(train.X) < cfg.MinFoldTrain || len(test.X) < minTest {
		return nil, false, nil
	}

	medians := colMedians(train.X, len(train.Features))
	trainX := imputeCopy(train.X, medians)
	testX := imputeCopy(test.X, medians)

	models := make(map[float64]*gbm.Model, len(contracts.Quantiles))
	for _, alpha := range contracts.Quantiles {
		m, err := gbm.Fit(gbm.Dataset{
			Features: train.Features,
			X:        trainX,
			Y:        train.Y,
			Weights:  train.Weights,
		}, referenceParams(cfg, alpha))
		if err != nil {
			return nil, false, err
		}
		models[alpha] = m
	}

	out := make([]foldRow, len(testX))
	for i := range testX {
		row := test.Rows[i]
		fr := foldRow{
			Set:       row.SetNumber,
			Theme:     row.Theme,
			RRP:       row.RRPGBP,
			ActualLog: test.Y[i],
			P25Log:    models[0.25].Predict(testX[i]),
			P50Log:    models[0.50].Predict(testX[i]),
			P75Log:    models[0.75].Predict(testX[i]),
		}
		if f := row.Features[features.FeatIsLicensed]; f != nil && *f > 0 {
			fr.IsLicensed = true
		}
		fr.ProductionRun = row.Features[features.FeatProductionMonths]
		fr.ExclusivityTier = row.Features[features.FeatExclusivityTier]
		out[i] = fr
	}
	return out, true, nil
}

func colMedians(X [][]float64, nCols int) []float64 {
	medians := make([]float64, nCols)
	col := make([]float64, 0, len(X))
	for j := 0; j < nCols; j++ {
		col = col[:0]
		for i := range X {
			if v := X[i][j]; !math.IsNaN(v) {
				col = append(col, v)
			}
		}
		if len(col) == 0 {
			continue
		}
		sort.Float64s(col)
		n := len(col)
		if n%2 == 1 {
			medians[j] = col[n/2]
		} else {
			medians[j] = (col[n/2-1] + col[n/2]) / 2
		}
	}
	return medians
}

func imputeCopy(X [][]float64, medians []float64) [][]float64 {
	out := make([][]float64, len(X))
	for i := range X {
		vec := make([]float64, len(X[i]))
		for j, v := range X[i] {
			if math.IsNaN(v) {
				vec[j] = medians[j]
			} else {
				vec[j] = v
			}
		}
		out[i] = vec
	}
	return out
}

func meanFloat(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func medianFloat(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

func stdFloat(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	mean := meanFloat(values)
	var ss float64
	for _, v := range values {
		d := v - mean
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(values)-1))
}

func winRate(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	wins := 0
	for _, v := range values {
		if v > 0 {
			wins++
		}
	}
	return float64(wins) / float64(len(values))
}
