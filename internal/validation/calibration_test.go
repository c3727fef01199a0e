package validation

import (
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
)

// synthObservations draws actuals from a known normal distribution and
// predicts its exact quantiles, so empirical coverage must land within
// sampling error of the nominal rates.
func synthObservations(n int, seed int64) []QuantileObservation {
	rng := rand.New(rand.NewSource(seed))
	draws := make([]float64, n)
	for i := range draws {
		draws[i] = rng.NormFloat64()
	}
	sorted := append([]float64(nil), draws...)
	sort.Float64s(sorted)
	p25 := sorted[n/4]
	p50 := sorted[n/2]
	p75 := sorted[3*n/4]

	obs := make([]QuantileObservation, n)
	for i, a := range draws {
		obs[i] = QuantileObservation{Actual: a, P25: p25, P50: p50, P75: p75}
	}
	return obs
}

func TestMeasureCoverageMatchedDistribution(t *testing.T) {
	obs := synthObservations(2000, 8)
	c := MeasureCoverage(obs)

	assert.InDelta(t, 0.25, c.BelowP25, 0.03)
	assert.InDelta(t, 0.50, c.BelowP50, 0.03)
	assert.InDelta(t, 0.75, c.BelowP75, 0.03)
	assert.InDelta(t, 0.50, c.WithinIQR, 0.03)
	assert.Equal(t, CalibrationWell, ClassifyCoverage(c))
}

func TestMeasureCoverageShiftedPredictions(t *testing.T) {
	obs := synthObservations(2000, 9)
	// Shift every quantile up: far more actuals now fall below them.
	for i := range obs {
		obs[i].P25 += 1.5
		obs[i].P50 += 1.5
		obs[i].P75 += 1.5
	}
	c := MeasureCoverage(obs)
	assert.Greater(t, c.BelowP25, 0.5)
	assert.Equal(t, CalibrationPoor, ClassifyCoverage(c))
}

func TestClassifyCoverageBoundaries(t *testing.T) {
	well := Coverage{BelowP25: 0.30, BelowP50: 0.52, BelowP75: 0.71}
	assert.Equal(t, CalibrationWell, ClassifyCoverage(well))

	moderate := Coverage{BelowP25: 0.37, BelowP50: 0.50, BelowP75: 0.75}
	assert.Equal(t, CalibrationModerate, ClassifyCoverage(moderate))

	poor := Coverage{BelowP25: 0.25, BelowP50: 0.67, BelowP75: 0.75}
	assert.Equal(t, CalibrationPoor, ClassifyCoverage(poor))
}

func TestMeasureCoverageEmpty(t *testing.T) {
	c := MeasureCoverage(nil)
	assert.Equal(t, 0, c.N)
	assert.Equal(t, 0.0, c.BelowP50)
}
