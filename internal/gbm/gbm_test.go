package gbm

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// syntheticLinear builds y = 2*x0 + noise with a second irrelevant column.
func syntheticLinear(n int, seed int64, noise float64) Dataset {
	rng := rand.New(rand.NewSource(seed))
	X := make([][]float64, n)
	y := make([]float64, n)
	for i := 0; i < n; i++ {
		x0 := rng.Float64() * 10
		x1 := rng.Float64()
		X[i] = []float64{x0, x1}
		y[i] = 2*x0 + noise*rng.NormFloat64()
	}
	return Dataset{Features: []string{"signal", "noise"}, X: X, Y: y}
}

func fitParams() Params {
	p := DefaultParams()
	p.NumRounds = 80
	p.NumLeaves = 15
	p.MinChildSamples = 5
	p.LearningRate = 0.1
	p.MaxDepth = 4
	return p
}

func TestFitRecoversMonotonicSignal(t *testing.T) {
	train := syntheticLinear(400, 7, 0.1)
	m, err := Fit(train, fitParams())
	require.NoError(t, err)

	low := m.Predict([]float64{1, 0.5})
	mid := m.Predict([]float64{5, 0.5})
	high := m.Predict([]float64{9, 0.5})

	assert.Less(t, low, mid)
	assert.Less(t, mid, high)
	assert.InDelta(t, 2.0, low, 1.5)
	assert.InDelta(t, 18.0, high, 1.5)
}

func TestFitRejectsBadInput(t *testing.T) {
	p := DefaultParams()

	_, err := Fit(Dataset{}, p)
	assert.Error(t, err)

	ds := syntheticLinear(50, 1, 0)
	ds.Y[3] = math.NaN()
	_, err = Fit(ds, p)
	assert.Error(t, err)

	p.Objective = ObjectiveQuantile
	p.Alpha = 1.5
	_, err = Fit(syntheticLinear(50, 1, 0), p)
	assert.Error(t, err)
}

func TestQuantilePredictionsAreOrdered(t *testing.T) {
	// Heteroscedastic data so the quantile spread is real.
	rng := rand.New(rand.NewSource(11))
	n := 600
	X := make([][]float64, n)
	y := make([]float64, n)
	for i := 0; i < n; i++ {
		x := rng.Float64() * 10
		X[i] = []float64{x}
		y[i] = x + (0.5+x/5)*rng.NormFloat64()
	}
	ds := Dataset{Features: []string{"x"}, X: X, Y: y}

	models := map[float64]*Model{}
	for _, alpha := range []float64{0.25, 0.50, 0.75} {
		p := fitParams()
		p.Objective = ObjectiveQuantile
		p.Alpha = alpha
		m, err := Fit(ds, p)
		require.NoError(t, err)
		models[alpha] = m
	}

	for _, x := range []float64{1, 3, 5, 7, 9} {
		row := []float64{x}
		p25 := models[0.25].Predict(row)
		p50 := models[0.50].Predict(row)
		p75 := models[0.75].Predict(row)
		assert.LessOrEqual(t, p25, p50+0.25, "x=%v", x)
		assert.LessOrEqual(t, p50, p75+0.25, "x=%v", x)
		assert.Less(t, p25, p75, "x=%v: IQR collapsed", x)
	}
}

func TestQuantileCoverageRoughlyMatchesAlpha(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	n := 800
	X := make([][]float64, n)
	y := make([]float64, n)
	for i := 0; i < n; i++ {
		x := rng.Float64() * 4
		X[i] = []float64{x}
		y[i] = x + rng.NormFloat64()
	}
	ds := Dataset{Features: []string{"x"}, X: X, Y: y}

	p := fitParams()
	p.Objective = ObjectiveQuantile
	p.Alpha = 0.5
	m, err := Fit(ds, p)
	require.NoError(t, err)

	below := 0
	for i := range y {
		if y[i] < m.Predict(X[i]) {
			below++
		}
	}
	rate := float64(below) / float64(n)
	assert.InDelta(t, 0.5, rate, 0.08)
}

func TestMissingValuesRoutedBySplitDirection(t *testing.T) {
	// Rows where the signal feature is missing share the high-target
	// group, so the learned default direction should send NaN high.
	n := 300
	X := make([][]float64, n)
	y := make([]float64, n)
	for i := 0; i < n; i++ {
		switch {
		case i%3 == 0:
			X[i] = []float64{math.NaN()}
			y[i] = 10
		case i%3 == 1:
			X[i] = []float64{8 + float64(i%7)/10}
			y[i] = 10
		default:
			X[i] = []float64{1 + float64(i%7)/10}
			y[i] = 0
		}
	}
	ds := Dataset{Features: []string{"x"}, X: X, Y: y}

	p := fitParams()
	p.MinChildSamples = 10
	m, err := Fit(ds, p)
	require.NoError(t, err)

	missingPred := m.Predict([]float64{math.NaN()})
	lowPred := m.Predict([]float64{1.2})
	assert.Greater(t, missingPred, lowPred+5)
	assert.InDelta(t, 10.0, missingPred, 1.5)
}

func TestSampleWeightsShiftTheFit(t *testing.T) {
	// Two clusters with conflicting targets at the same x; the heavier
	// cluster should dominate the prediction.
	n := 200
	X := make([][]float64, n)
	y := make([]float64, n)
	w := make([]float64, n)
	for i := 0; i < n; i++ {
		X[i] = []float64{5}
		if i%2 == 0 {
			y[i] = 0
			w[i] = 1
		} else {
			y[i] = 10
			w[i] = 9
		}
	}
	ds := Dataset{Features: []string{"x"}, X: X, Y: y, Weights: w}

	p := fitParams()
	m, err := Fit(ds, p)
	require.NoError(t, err)

	pred := m.Predict([]float64{5})
	assert.Greater(t, pred, 8.0)
}

func TestEarlyStoppingTruncatesEnsemble(t *testing.T) {
	train := syntheticLinear(300, 5, 2.0)
	valid := syntheticLinear(100, 6, 2.0)

	p := fitParams()
	p.NumRounds = 500
	p.EarlyStopping = 10
	m, err := FitWithEarlyStopping(train, valid, p)
	require.NoError(t, err)

	assert.Less(t, len(m.Trees), 500)
	assert.Equal(t, m.BestRound, len(m.Trees)-1)
}

func TestImportancesFavourSignalFeature(t *testing.T) {
	train := syntheticLinear(400, 9, 0.1)
	m, err := Fit(train, fitParams())
	require.NoError(t, err)

	imp := m.Importances()
	assert.Greater(t, imp["signal"], imp["noise"])
}

func TestJSONRoundTripPreservesPredictions(t *testing.T) {
	train := syntheticLinear(200, 13, 0.2)
	m, err := Fit(train, fitParams())
	require.NoError(t, err)

	data, err := m.ToJSON()
	require.NoError(t, err)

	loaded, err := FromJSON(data)
	require.NoError(t, err)

	for _, x := range []float64{0.5, 2.5, 7.5} {
		row := []float64{x, 0.1}
		assert.InDelta(t, m.Predict(row), loaded.Predict(row), 1e-12)
	}
	assert.Equal(t, m.FeatureNames, loaded.FeatureNames)
}

func TestDeterministicWithFixedSeed(t *testing.T) {
	train := syntheticLinear(200, 21, 0.5)
	p := fitParams()
	p.FeatureFraction = 0.5
	p.Seed = 42

	m1, err := Fit(train, p)
	require.NoError(t, err)
	m2, err := Fit(train, p)
	require.NoError(t, err)

	row := []float64{4.2, 0.3}
	assert.Equal(t, m1.Predict(row), m2.Predict(row))
}
