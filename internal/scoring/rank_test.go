package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func fp(v float64) *float64 { return &v }

func TestPercentileRanksOrdering(t *testing.T) {
	values := []*float64{fp(10), fp(30), fp(20)}
	ranks := PercentileRanks(values)

	assert.InDelta(t, 1.0/3, ranks[0], 1e-9)
	assert.InDelta(t, 3.0/3, ranks[1], 1e-9)
	assert.InDelta(t, 2.0/3, ranks[2], 1e-9)
}

func TestPercentileRanksAverageTies(t *testing.T) {
	values := []*float64{fp(5), fp(5), fp(1), fp(9)}
	ranks := PercentileRanks(values)

	// The two fives occupy ranks 2 and 3: average 2.5 out of 4.
	assert.InDelta(t, 2.5/4, ranks[0], 1e-9)
	assert.InDelta(t, 2.5/4, ranks[1], 1e-9)
	assert.InDelta(t, 1.0/4, ranks[2], 1e-9)
	assert.InDelta(t, 4.0/4, ranks[3], 1e-9)
}

func TestPercentileRanksMissingGetsNeutral(t *testing.T) {
	values := []*float64{fp(1), nil, fp(3)}
	ranks := PercentileRanks(values)

	assert.Equal(t, 0.5, ranks[1])
	// Present values are ranked among themselves only.
	assert.InDelta(t, 1.0/2, ranks[0], 1e-9)
	assert.InDelta(t, 2.0/2, ranks[2], 1e-9)
}

func TestPercentileRanksAllMissing(t *testing.T) {
	ranks := PercentileRanks([]*float64{nil, nil})
	assert.Equal(t, []float64{0.5, 0.5}, ranks)
}
