package artifacts

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hadleybricks/brickvest/internal/contracts"
	"github.com/hadleybricks/brickvest/internal/gbm"
)

func fitTinyModel(t *testing.T, alpha float64) *gbm.Model {
	t.Helper()
	rng := rand.New(rand.NewSource(int64(alpha * 100)))
	n := 80
	X := make([][]float64, n)
	y := make([]float64, n)
	for i := 0; i < n; i++ {
		x := rng.Float64() * 10
		X[i] = []float64{x}
		y[i] = x + rng.NormFloat64()
	}
	p := gbm.DefaultParams()
	p.Objective = gbm.ObjectiveQuantile
	p.Alpha = alpha
	p.NumRounds = 20
	p.MinChildSamples = 5
	m, err := gbm.Fit(gbm.Dataset{Features: []string{"x"}, X: X, Y: y}, p)
	require.NoError(t, err)
	return m
}

func TestSaveAndLoadHorizonRoundTrip(t *testing.T) {
	store := NewStore(t.TempDir())

	models := map[float64]*gbm.Model{}
	for _, alpha := range contracts.Quantiles {
		models[alpha] = fitTinyModel(t, alpha)
	}
	featureNames := []string{"x"}

	require.NoError(t, store.SaveHorizon(contracts.Horizon1yr, models, featureNames))
	assert.True(t, store.HasHorizon(contracts.Horizon1yr))
	assert.False(t, store.HasHorizon(contracts.Horizon3yr))

	loaded, names, err := store.LoadHorizon(contracts.Horizon1yr)
	require.NoError(t, err)
	assert.Equal(t, featureNames, names)
	require.Len(t, loaded, 3)

	row := []float64{5.0}
	for _, alpha := range contracts.Quantiles {
		assert.InDelta(t, models[alpha].Predict(row), loaded[alpha].Predict(row), 1e-12)
	}
}

func TestLoadHorizonFailsOnIncompleteTriplet(t *testing.T) {
	store := NewStore(t.TempDir())
	_, _, err := store.LoadHorizon(contracts.Horizon2yr)
	assert.Error(t, err)
}
