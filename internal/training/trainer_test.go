package training

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hadleybricks/brickvest/internal/contracts"
	"github.com/hadleybricks/brickvest/internal/features"
	"github.com/hadleybricks/brickvest/internal/gbm"
)

// testConfig lowers the production gates so synthetic datasets of a
// few hundred rows can exercise the full path.
func testConfig() Config {
	cfg := DefaultConfig()
	cfg.MinHorizonRows = 20
	cfg.MinFoldTrain = 10
	cfg.MinFoldVal = 3
	cfg.Trials = 12
	cfg.NumRounds = 40
	cfg.EarlyStopping = 8
	cfg.Parallelism = 2
	return cfg
}

// syntheticRows generates labelled rows across retirement years where
// piece count drives appreciation.
func syntheticRows(perYear int, seed int64) []contracts.TrainingRow {
	rng := rand.New(rand.NewSource(seed))
	var rows []contracts.TrainingRow
	for year := 2016; year <= 2024; year++ {
		for i := 0; i < perYear; i++ {
			pieces := 100 + rng.Float64()*2000
			target := pieces/4000 + 0.05*rng.NormFloat64()
			rows = append(rows, labelledRow(
				fmt.Sprintf("%d-%d", year, i),
				year,
				target,
				map[string]float64{
					features.FeatPieceCount: pieces,
					features.FeatRRP:        50 + pieces/20,
					features.FeatIsLicensed: float64(i % 2),
				},
			))
		}
	}
	return rows
}

type memoryStore struct {
	saved map[contracts.Horizon]map[float64]*gbm.Model
}

func (s *memoryStore) SaveHorizon(h contracts.Horizon, models map[float64]*gbm.Model, _ []string) error {
	if s.saved == nil {
		s.saved = map[contracts.Horizon]map[float64]*gbm.Model{}
	}
	s.saved[h] = models
	return nil
}

func TestTrainHorizonSkipsWhenTooFewRows(t *testing.T) {
	tr := NewTrainer(testConfig(), nil, nil, newTestLogger())

	res, err := tr.TrainHorizon(context.Background(), syntheticRows(1, 1)[:5], contracts.Horizon1yr)
	require.NoError(t, err)
	assert.True(t, res.Skipped)
	assert.Contains(t, res.SkipReason, "labelled rows")
}

func TestTrainHorizonProducesOrderedQuantileModels(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping full training in short mode")
	}
	rows := syntheticRows(30, 17)
	tr := NewTrainer(testConfig(), nil, nil, newTestLogger())

	res, err := tr.TrainHorizon(context.Background(), rows, contracts.Horizon1yr)
	require.NoError(t, err)
	require.False(t, res.Skipped, res.SkipReason)
	require.Len(t, res.Models, 3)
	require.NotNil(t, res.Run)

	assert.Greater(t, res.Run.TrainRows, 0)
	assert.Greater(t, res.Run.TestRows, 0, "2024 rows must land in the holdout")
	assert.NotNil(t, res.Run.TestMAE)
	assert.NotEmpty(t, res.Run.Importances)
	assert.Equal(t, contracts.ModelVersion, res.Run.ModelVersion)

	probe := probeVector(res.Features, map[string]float64{
		features.FeatPieceCount: 1500,
		features.FeatRRP:        125,
		features.FeatIsLicensed: 1,
	})
	p25 := res.Models[0.25].Predict(probe)
	p50 := res.Models[0.50].Predict(probe)
	p75 := res.Models[0.75].Predict(probe)
	assert.LessOrEqual(t, p25, p50+0.05)
	assert.LessOrEqual(t, p50, p75+0.05)

	// The median model must have learned the piece-count signal.
	low := res.Models[0.50].Predict(probeVector(res.Features, map[string]float64{
		features.FeatPieceCount: 200, features.FeatRRP: 60,
	}))
	high := res.Models[0.50].Predict(probeVector(res.Features, map[string]float64{
		features.FeatPieceCount: 2000, features.FeatRRP: 150,
	}))
	assert.Less(t, low, high)
}

func TestSearchRunsFullBudgetPerFold(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping full training in short mode")
	}
	cfg := testConfig()
	cfg.Trials = 6
	rows := syntheticRows(12, 11)
	tr := NewTrainer(cfg, nil, nil, newTestLogger())

	matrix := buildMatrix(rows, contracts.Horizon1yr)
	matrix.dropDuplicateColumns()

	best, folds, evals, err := tr.searchBestParams(context.Background(), matrix)
	require.NoError(t, err)
	require.NotNil(t, best)

	// Every fold qualifies here, and each one gets its own full
	// trial budget rather than sharing a pooled one.
	assert.Equal(t, len(cfg.Folds), folds)
	assert.Equal(t, int64(cfg.Trials*folds), evals)
}

func TestSearchSkipsFoldsBelowRowGates(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping full training in short mode")
	}
	cfg := testConfig()
	cfg.Trials = 4

	// No rows after 2019, so folds validating on 2020+ cannot run.
	var rows []contracts.TrainingRow
	for _, r := range syntheticRows(12, 5) {
		if r.RetirementYear <= 2019 {
			rows = append(rows, r)
		}
	}
	tr := NewTrainer(cfg, nil, nil, newTestLogger())

	matrix := buildMatrix(rows, contracts.Horizon1yr)
	matrix.dropDuplicateColumns()

	best, folds, evals, err := tr.searchBestParams(context.Background(), matrix)
	require.NoError(t, err)
	require.NotNil(t, best)
	assert.Equal(t, 1, folds, "only the fold validating on 2019 has train and val rows")
	assert.Equal(t, int64(cfg.Trials), evals)
}

func TestTrainAllPersistsArtifacts(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping full training in short mode")
	}
	rows := syntheticRows(12, 23)
	// Give every horizon the same labels so all four train.
	for i := range rows {
		target := *rows[i].Target(contracts.Horizon1yr)
		for _, h := range contracts.Horizons {
			v := target
			rows[i].SetTarget(h, &v)
		}
	}

	store := &memoryStore{}
	tr := NewTrainer(testConfig(), store, nil, newTestLogger())

	results, err := tr.TrainAll(context.Background(), rows)
	require.NoError(t, err)
	require.Len(t, results, len(contracts.Horizons))

	for _, res := range results {
		assert.False(t, res.Skipped, "horizon %s: %s", res.Horizon, res.SkipReason)
		assert.Contains(t, store.saved, res.Horizon)
	}
}

func TestTrainAllDropsStaleFeatureVectors(t *testing.T) {
	rows := syntheticRows(2, 3)
	for i := range rows {
		rows[i].FeatureVersion = "v0"
	}
	tr := NewTrainer(testConfig(), nil, nil, newTestLogger())

	results, err := tr.TrainAll(context.Background(), rows)
	require.NoError(t, err)
	for _, res := range results {
		assert.True(t, res.Skipped)
	}
}

// probeVector lays a feature map out in model column order, NaN for
// anything unspecified.
func probeVector(names []string, values map[string]float64) []float64 {
	vec := make([]float64, len(names))
	for i, n := range names {
		if v, ok := values[n]; ok {
			vec[i] = v
		} else {
			vec[i] = math.NaN()
		}
	}
	return vec
}
