package validation

import (
	"fmt"
	"math/rand"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hadleybricks/brickvest/internal/contracts"
	"github.com/hadleybricks/brickvest/internal/features"
	"github.com/hadleybricks/brickvest/pkg/config"
	"github.com/hadleybricks/brickvest/pkg/logger"
)

func newTestLogger() *logger.Logger {
	return logger.New(&config.Config{Env: "development", LogLevel: "error", LogFormat: "json"})
}

// testValidationConfig lowers the production gates for synthetic data.
func testValidationConfig(t *testing.T) Config {
	cfg := DefaultConfig()
	cfg.MinHorizonRows = 40
	cfg.MinFoldTrain = 20
	cfg.MinFoldVal = 5
	cfg.MinBacktestTest = 10
	cfg.TopN = 5
	cfg.NumRounds = 30
	cfg.ResultsDir = t.TempDir()
	return cfg
}

// syntheticHistory builds labelled rows where piece count drives 1yr
// appreciation, with licensing adding a fixed premium.
func syntheticHistory(perYear int, seed int64) []contracts.TrainingRow {
	rng := rand.New(rand.NewSource(seed))
	var rows []contracts.TrainingRow
	for year := 2016; year <= 2024; year++ {
		for i := 0; i < perYear; i++ {
			pieces := 100 + rng.Float64()*2000
			licensed := i%2 == 0
			run := 6 + rng.Float64()*30
			tier := float64(i % 6)

			target := pieces/4000 - 0.15 + 0.06*rng.NormFloat64()
			if licensed {
				target += 0.1
			}

			row := contracts.TrainingRow{
				SetNumber:      fmt.Sprintf("%d-%03d", year, i),
				Theme:          "Star Wars",
				ExitDate:       time.Date(year, 1+time.Month(i%12), 10, 0, 0, 0, 0, time.UTC),
				RetirementYear: year,
				RRPGBP:         30 + pieces/15,
				Features:       map[string]*float64{},
				FeatureVersion: features.Version,
			}
			setFeat := func(name string, v float64) {
				vv := v
				row.Features[name] = &vv
			}
			setFeat(features.FeatPieceCount, pieces)
			setFeat(features.FeatRRP, row.RRPGBP)
			setFeat(features.FeatIsLicensed, boolFloat(licensed))
			setFeat(features.FeatProductionMonths, run)
			setFeat(features.FeatExclusivityTier, tier)

			row.SetTarget(contracts.Horizon1yr, &target)
			rows = append(rows, row)
		}
	}
	return rows
}

func boolFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func TestBacktestSeparatesTopFromBottom(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping fold training in short mode")
	}
	cfg := testValidationConfig(t)
	rows := syntheticHistory(15, 101)

	res, err := runBacktest(cfg, rows)
	require.NoError(t, err)
	require.NotEmpty(t, res.Folds)

	// The signal is real, so the ranked top group must out-appreciate
	// the bottom group on average.
	assert.Greater(t, res.AvgSeparationPP, 0.0)
	assert.Greater(t, res.AvgTopMeanPct, res.AvgBottomMeanPct)

	for _, f := range res.Folds {
		assert.GreaterOrEqual(t, f.TopN, 5)
		assert.LessOrEqual(t, f.TopN, cfg.TopN)
	}
}

func TestBacktestShrinksTopNOnSmallTestYears(t *testing.T) {
	predRows := make([]foldRow, 18)
	for i := range predRows {
		predRows[i] = foldRow{
			Set:       fmt.Sprintf("s%d", i),
			RRP:       50,
			ActualLog: float64(i) / 50,
			P25Log:    float64(i)/40 - 0.05,
			P50Log:    float64(i) / 40,
			P75Log:    float64(i)/40 + 0.05,
		}
	}
	fold := contracts.Fold{TestYear: 2022}

	// 18 rows / 3 = 6, below the requested 10.
	res, ok := backtestFold(fold, predRows, 10)
	require.True(t, ok)
	assert.Equal(t, 6, res.TopN)

	// 12 rows / 3 = 4 < 5: fold skipped.
	_, ok = backtestFold(fold, predRows[:12], 10)
	assert.False(t, ok)
}

func TestBaselineScoresEachFoldThenAverages(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping fold training in short mode")
	}
	cfg := testValidationConfig(t)
	rows := syntheticHistory(15, 77)

	res, err := runBaseline(cfg, rows)
	require.NoError(t, err)
	require.NotEmpty(t, res.Folds)
	assert.Equal(t, len(res.Folds), res.FoldsEvaluated)

	names := map[string]StrategyAggregate{}
	for _, s := range res.Strategies {
		names[s.Strategy] = s
	}
	for _, want := range []string{
		StrategyModelTopN, StrategyLicensedUnder100, StrategyShortRun,
		StrategyExclusive, StrategyRandom,
	} {
		require.Contains(t, names, want)
	}

	model := names[StrategyModelTopN]
	random := names[StrategyRandom]
	assert.Greater(t, model.TotalN, 0)
	assert.Greater(t, random.TotalN, model.TotalN)
	assert.Equal(t, res.FoldsEvaluated, random.FoldsWithData)
	// Piece count predicts the target, so the model should beat blind buying.
	assert.Greater(t, res.ModelAlphaPP, 0.0)

	// Within each fold the random baseline covers the whole test year
	// and the alpha is measured against it; the headline alpha is the
	// average over folds.
	var alphas []float64
	for _, f := range res.Folds {
		perFold := map[string]StrategyResult{}
		for _, s := range f.Strategies {
			perFold[s.Strategy] = s
		}
		assert.Equal(t, f.TestRows, perFold[StrategyRandom].N)
		assert.Equal(t, f.TopN, perFold[StrategyModelTopN].N)
		assert.InDelta(t, perFold[StrategyModelTopN].MeanPct-perFold[StrategyRandom].MeanPct,
			f.ModelAlphaPP, 1e-9)
		alphas = append(alphas, f.ModelAlphaPP)
	}
	assert.InDelta(t, meanFloat(alphas), res.ModelAlphaPP, 1e-9)
}

func TestFoldTrainingStopsAtTrainEndYear(t *testing.T) {
	cfg := testValidationConfig(t)
	cfg.MinFoldTrain = 5

	// Three rows in the training window, plenty in the validation and
	// test years. Validation-year rows never train fold models, so the
	// train gate must fail.
	var rows []contracts.TrainingRow
	kept2018 := 0
	for _, r := range syntheticHistory(12, 19) {
		switch r.RetirementYear {
		case 2018:
			if kept2018 < 3 {
				rows = append(rows, r)
				kept2018++
			}
		case 2019, 2020:
			rows = append(rows, r)
		}
	}

	view := buildView(rows, contracts.Horizon1yr)
	fold := contracts.Fold{TrainEndYear: 2018, ValYear: 2019, TestYear: 2020}

	_, ok, err := foldPredictions(cfg, view, fold, 10)
	require.NoError(t, err)
	assert.False(t, ok)

	assert.Equal(t, 3, countTrainRows(view, fold))
}

func TestValidatorRunOnRowsAllProtocols(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping fold training in short mode")
	}
	cfg := testValidationConfig(t)
	v := NewValidator(cfg, nil, newTestLogger())

	report, err := v.RunOnRows(syntheticHistory(15, 55), ProtocolAll)
	require.NoError(t, err)
	assert.NotNil(t, report.Backtest)
	assert.NotNil(t, report.Calibration)
	assert.NotNil(t, report.Baseline)
	assert.Equal(t, contracts.ModelVersion, report.ModelVersion)

	// Calibration ran for 1yr only; the other horizons lack targets.
	require.Len(t, report.Calibration.Horizons, 1)
	assert.Equal(t, string(contracts.Horizon1yr), report.Calibration.Horizons[0].Horizon)
	assert.Len(t, report.Calibration.HorizonsSkipped, 3)
	assert.NotEmpty(t, report.Calibration.Horizons[0].Classification)
	assert.Greater(t, report.Calibration.Horizons[0].MeanIQRWidthPP, 0.0)
}

func TestValidatorWritesResultFiles(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping fold training in short mode")
	}
	cfg := testValidationConfig(t)
	v := NewValidator(cfg, nil, newTestLogger())

	report, err := v.RunOnRows(syntheticHistory(15, 31), ProtocolBacktest)
	require.NoError(t, err)
	require.NoError(t, v.writeResults(report))

	entries, err := filepath.Glob(filepath.Join(cfg.ResultsDir, "backtest_*.json"))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
