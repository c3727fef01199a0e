package scoring

import (
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hadleybricks/brickvest/internal/contracts"
	"github.com/hadleybricks/brickvest/internal/features"
	"github.com/hadleybricks/brickvest/internal/gbm"
	"github.com/hadleybricks/brickvest/pkg/config"
	"github.com/hadleybricks/brickvest/pkg/logger"
)

func newTestLogger() *logger.Logger {
	return logger.New(&config.Config{Env: "development", LogLevel: "error", LogFormat: "json"})
}

// trainModelSet fits a 1yr quantile triplet on two features where
// piece count drives log appreciation.
func trainModelSet(t *testing.T) *ModelSet {
	t.Helper()
	featureNames := []string{features.FeatPieceCount, features.FeatRRP}

	rng := rand.New(rand.NewSource(31))
	n := 400
	X := make([][]float64, n)
	y := make([]float64, n)
	for i := 0; i < n; i++ {
		pieces := 100 + rng.Float64()*2000
		rrp := 20 + rng.Float64()*200
		X[i] = []float64{pieces, rrp}
		y[i] = pieces/4000 - 0.1 + 0.08*rng.NormFloat64()
	}
	ds := gbm.Dataset{Features: featureNames, X: X, Y: y}

	models := map[float64]*gbm.Model{}
	for _, alpha := range contracts.Quantiles {
		p := gbm.DefaultParams()
		p.Objective = gbm.ObjectiveQuantile
		p.Alpha = alpha
		p.NumRounds = 40
		p.NumLeaves = 15
		p.MinChildSamples = 10
		p.MaxDepth = 4
		m, err := gbm.Fit(ds, p)
		require.NoError(t, err)
		models[alpha] = m
	}

	return &ModelSet{
		Models:   map[contracts.Horizon]map[float64]*gbm.Model{contracts.Horizon1yr: models},
		Features: map[contracts.Horizon][]string{contracts.Horizon1yr: featureNames},
	}
}

func liveSet(setNumber, theme string, pieces int, rrp float64) contracts.CatalogSet {
	p := pieces
	r := rrp
	return contracts.CatalogSet{
		SetNumber: setNumber,
		Theme:     theme,
		Status:    contracts.StatusAvailable,
		Pieces:    &p,
		RRPGBP:    &r,
	}
}

// themeHistory gives a theme enough labelled rows to clear the
// thin-data flag.
func themeHistory(theme string, n int) []contracts.TrainingRow {
	rows := make([]contracts.TrainingRow, n)
	for i := range rows {
		rows[i] = contracts.TrainingRow{
			SetNumber:      fmt.Sprintf("%s-hist-%d", theme, i),
			Theme:          theme,
			ExitDate:       time.Date(2018+i%5, 3, 1, 0, 0, 0, 0, time.UTC),
			RetirementYear: 2018 + i%5,
			RRPGBP:         80,
		}
		v := 0.2
		rows[i].SetTarget(contracts.Horizon1yr, &v)
	}
	return rows
}

func TestNewScorerRejectsBadWeights(t *testing.T) {
	_, err := NewScorer(contracts.ScoreWeights{Appreciation: 1, Confidence: 1}, newTestLogger())
	assert.Error(t, err)

	_, err = NewScorer(contracts.DefaultScoreWeights, newTestLogger())
	assert.NoError(t, err)
}

func TestScoreProducesForecastsAndComposite(t *testing.T) {
	ms := trainModelSet(t)
	scorer, err := NewScorer(contracts.DefaultScoreWeights, newTestLogger())
	require.NoError(t, err)

	sets := []contracts.CatalogSet{
		liveSet("big", "Star Wars", 2000, 150),
		liveSet("small", "Star Wars", 300, 40),
	}
	preds, stats := scorer.Score(sets, nil, themeHistory("Star Wars", 10), ms)
	require.Len(t, preds, 2)
	assert.Equal(t, 2, stats.Scored)

	big, small := preds[0], preds[1]
	oneYearBig := big.Horizons[contracts.Horizon1yr]
	oneYearSmall := small.Horizons[contracts.Horizon1yr]

	assert.Greater(t, oneYearBig.AppreciationPct, oneYearSmall.AppreciationPct)
	assert.Greater(t, big.CompositeScore, small.CompositeScore)

	// Derived values are internally consistent.
	assert.InDelta(t, contracts.LogToPct(oneYearBig.P50Log), oneYearBig.AppreciationPct, 1e-9)
	assert.InDelta(t, 150*oneYearBig.AppreciationPct/100, big.ExpectedProfit, 1e-9)
	assert.InDelta(t, oneYearBig.AppreciationPct*oneYearBig.Confidence, big.RiskAdjusted, 1e-9)
	assert.GreaterOrEqual(t, big.CompositeScore, 0.0)
	assert.LessOrEqual(t, big.CompositeScore, 10.0)
	assert.Equal(t, contracts.ModelVersion, big.ModelVersion)
}

func TestScoreWithZeroSnapshotsStillPredicts(t *testing.T) {
	ms := trainModelSet(t)
	scorer, err := NewScorer(contracts.DefaultScoreWeights, newTestLogger())
	require.NoError(t, err)

	// No snapshots at all: trajectory features are null and the models
	// route them through the learned default directions.
	preds, stats := scorer.Score(
		[]contracts.CatalogSet{liveSet("fresh", "Star Wars", 1000, 90)},
		map[string][]contracts.PriceSnapshot{},
		themeHistory("Star Wars", 8),
		ms,
	)
	require.Len(t, preds, 1)
	assert.Equal(t, 1, stats.Scored)

	oneYear, ok := preds[0].Horizons[contracts.Horizon1yr]
	require.True(t, ok)
	assert.False(t, oneYear.PredictedPrice <= 0)
	assert.Greater(t, oneYear.Confidence, 0.0)
}

func TestScoreSkipsItemsMissingRRPOrTheme(t *testing.T) {
	ms := trainModelSet(t)
	scorer, err := NewScorer(contracts.DefaultScoreWeights, newTestLogger())
	require.NoError(t, err)

	noRRP := contracts.CatalogSet{SetNumber: "x", Theme: "City"}
	cheap := liveSet("y", "City", 100, 2)
	noTheme := liveSet("z", "", 100, 50)

	preds, stats := scorer.Score(
		[]contracts.CatalogSet{noRRP, cheap, noTheme, liveSet("ok", "City", 500, 50)},
		nil, themeHistory("City", 6), ms,
	)
	assert.Len(t, preds, 1)
	assert.Equal(t, 2, stats.SkippedNoRRP)
	assert.Equal(t, 1, stats.SkippedNoTheme)
}

func TestRiskFlags(t *testing.T) {
	expensive := liveSet("e", "Star Wars", 5000, 600)
	pred := contracts.Prediction{
		Horizons: map[contracts.Horizon]contracts.HorizonForecast{
			contracts.Horizon1yr: {P50Log: -0.1, Confidence: 0.2},
		},
	}
	flags := riskFlags(expensive, pred, 2)
	assert.Contains(t, flags, FlagHighRRP)
	assert.Contains(t, flags, FlagThinThemeData)
	assert.Contains(t, flags, FlagNegativeForecast)
	assert.Contains(t, flags, FlagHighUncertainty)
	assert.NotContains(t, flags, FlagLowPieceCount)

	impulse := liveSet("i", "Star Wars", 50, 45)
	pred = contracts.Prediction{
		Horizons: map[contracts.Horizon]contracts.HorizonForecast{
			contracts.Horizon1yr: {P50Log: 0.2, Confidence: 0.8},
		},
	}
	flags = riskFlags(impulse, pred, 20)
	assert.Equal(t, []string{FlagLowPieceCount}, flags)
}
