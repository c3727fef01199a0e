package contracts

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogToPctRoundTrip(t *testing.T) {
	for _, pct := range []float64{-50, -10, 0, 5, 25, 100, 250} {
		logRatio := PctToLog(pct)
		assert.InDelta(t, pct, LogToPct(logRatio), 1e-9, "pct=%v", pct)
	}
}

func TestLogToPct(t *testing.T) {
	// log(1.5) means +50%.
	assert.InDelta(t, 50.0, LogToPct(PctToLog(50.0)), 1e-9)
	assert.InDelta(t, 0.0, LogToPct(0), 1e-12)
}

func TestLogToPrice(t *testing.T) {
	// A zero log target returns RRP unchanged.
	assert.InDelta(t, 49.99, LogToPrice(0, 49.99), 1e-9)
	// +100% doubles the price.
	assert.InDelta(t, 100.0, LogToPrice(PctToLog(100), 50.0), 1e-9)
}

func TestDefaultScoreWeightsSumToOne(t *testing.T) {
	require.NoError(t, DefaultScoreWeights.Validate())
}

func TestScoreWeightsValidateRejectsBadSum(t *testing.T) {
	w := ScoreWeights{Appreciation: 0.5, Confidence: 0.5, Profit: 0.5}
	assert.Error(t, w.Validate())
}

func TestRetirementQuarter(t *testing.T) {
	cases := []struct {
		month   time.Month
		quarter int
	}{
		{time.January, 1}, {time.March, 1},
		{time.April, 2}, {time.June, 2},
		{time.July, 3}, {time.September, 3},
		{time.October, 4}, {time.December, 4},
	}
	for _, tc := range cases {
		d := time.Date(2022, tc.month, 15, 0, 0, 0, 0, time.UTC)
		assert.Equal(t, tc.quarter, RetirementQuarter(d), "month=%v", tc.month)
	}
}

func TestTrainingRowTargetAccessors(t *testing.T) {
	row := &TrainingRow{}
	v := 0.25
	for _, h := range Horizons {
		require.Nil(t, row.Target(h))
		row.SetTarget(h, &v)
		require.NotNil(t, row.Target(h))
		assert.Equal(t, v, *row.Target(h))
	}
}

func TestMilestonesCoverAllHorizons(t *testing.T) {
	seen := map[Horizon]bool{}
	for _, m := range Milestones {
		if m.Horizon != "" {
			seen[m.Horizon] = true
		}
	}
	for _, h := range Horizons {
		assert.True(t, seen[h], "horizon %s missing a milestone window", h)
	}
}
