package features

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hadleybricks/brickvest/internal/contracts"
)

func snap(t time.Time, price float64) contracts.PriceSnapshot {
	return contracts.PriceSnapshot{CapturedAt: t, Price: price}
}

func TestTrainingTrajectoryUsesAftermarketWindows(t *testing.T) {
	exit := time.Date(2021, 6, 1, 0, 0, 0, 0, time.UTC)
	snaps := []contracts.PriceSnapshot{
		// A pre-exit rally must not leak into the aftermarket momentum.
		snap(exit.AddDate(0, 0, -60), 50),
		snap(exit.AddDate(0, 0, -30), 80),
		snap(exit.AddDate(0, 0, -20), 110),
		// Flat aftermarket.
		snap(exit.AddDate(0, 0, 20), 100),
		snap(exit.AddDate(0, 0, 50), 100),
		snap(exit.AddDate(0, 0, 80), 100),
	}

	out := make(map[string]*float64)
	trajectoryFeatures(snaps, exit, 100, false, out)

	require.NotNil(t, out[FeatMomentum90d])
	assert.InDelta(t, 0.0, *out[FeatMomentum90d], 1e-9)
	require.NotNil(t, out[FeatVolatility180d])
	assert.InDelta(t, 0.0, *out[FeatVolatility180d], 1e-9)
}

func TestTrainingTrajectoryFromPostExitSnapshotsOnly(t *testing.T) {
	exit := time.Date(2024, 11, 1, 0, 0, 0, 0, time.UTC)

	// A set with coverage only after retirement, nine captures across
	// the first 85 days, must still produce both trajectory features.
	snaps := make([]contracts.PriceSnapshot, 0, 9)
	for i := 0; i < 9; i++ {
		day := 5 + i*10
		snaps = append(snaps, snap(exit.AddDate(0, 0, day), 100+float64(day)))
	}

	out := make(map[string]*float64)
	trajectoryFeatures(snaps, exit, 100, false, out)

	require.NotNil(t, out[FeatMomentum90d])
	assert.Greater(t, *out[FeatMomentum90d], 0.0)
	require.NotNil(t, out[FeatVolatility180d])
	assert.Greater(t, *out[FeatVolatility180d], 0.0)
}

func TestMomentumIsNormalisedSlope(t *testing.T) {
	exit := time.Date(2021, 6, 1, 0, 0, 0, 0, time.UTC)
	snaps := []contracts.PriceSnapshot{
		snap(exit.AddDate(0, 0, 10), 100),
		snap(exit.AddDate(0, 0, 40), 106),
		snap(exit.AddDate(0, 0, 70), 112),
	}

	out := make(map[string]*float64)
	trajectoryFeatures(snaps, exit, 100, false, out)

	require.NotNil(t, out[FeatMomentum90d])
	// 0.2 GBP/day over a mean price of 106.
	assert.InDelta(t, 0.2/106.0, *out[FeatMomentum90d], 1e-9)
}

func TestMomentumRequiresTimeSpread(t *testing.T) {
	exit := time.Date(2021, 6, 1, 0, 0, 0, 0, time.UTC)
	at := exit.AddDate(0, 0, 30)
	snaps := []contracts.PriceSnapshot{
		snap(at, 100), snap(at, 101), snap(at, 102),
	}

	out := make(map[string]*float64)
	trajectoryFeatures(snaps, exit, 100, false, out)

	assert.Nil(t, out[FeatMomentum90d])
}

func TestTrajectoryMinimumPointFloors(t *testing.T) {
	asOf := time.Date(2021, 6, 1, 0, 0, 0, 0, time.UTC)
	snaps := []contracts.PriceSnapshot{
		snap(asOf.AddDate(0, 0, -50), 90),
		snap(asOf.AddDate(0, 0, -10), 110),
	}

	// Two trailing points meet the live floor...
	out := make(map[string]*float64)
	trajectoryFeatures(snaps, asOf, 100, true, out)
	require.NotNil(t, out[FeatMomentum90d])
	// slope 0.5 GBP/day over a mean price of 100.
	assert.InDelta(t, 0.5/100.0, *out[FeatMomentum90d], 1e-9)

	// ...while two aftermarket points stay below the training floor.
	post := []contracts.PriceSnapshot{
		snap(asOf.AddDate(0, 0, 20), 90),
		snap(asOf.AddDate(0, 0, 60), 110),
	}
	out = make(map[string]*float64)
	trajectoryFeatures(post, asOf, 100, false, out)
	assert.Nil(t, out[FeatMomentum90d])
}

func TestDiscountAtRetirementWindowIsTwoSided(t *testing.T) {
	exit := time.Date(2021, 6, 1, 0, 0, 0, 0, time.UTC)
	snaps := []contracts.PriceSnapshot{
		snap(exit.AddDate(0, 0, -10), 75),
		snap(exit.AddDate(0, 0, -5), 80),
		snap(exit.AddDate(0, 0, 10), 90),
		// Outside the retirement window on both sides.
		snap(exit.AddDate(0, 0, -40), 20),
		snap(exit.AddDate(0, 0, 40), 200),
	}

	out := make(map[string]*float64)
	trajectoryFeatures(snaps, exit, 100, false, out)

	require.NotNil(t, out[FeatDiscountAtRetirement])
	// (100 - median(75,80,90)) / 100
	assert.InDelta(t, 0.20, *out[FeatDiscountAtRetirement], 1e-9)
}

func TestLatestMarketState(t *testing.T) {
	exit := time.Date(2021, 6, 1, 0, 0, 0, 0, time.UTC)
	before, after, outside := 12, 9, 30
	amazon := true
	snaps := []contracts.PriceSnapshot{
		{CapturedAt: exit.AddDate(0, 0, -10), Price: 90, SellerCount: &before},
		{CapturedAt: exit.AddDate(0, 0, 5), Price: 92, SellerCount: &after, BuyBoxIsAmazon: &amazon},
		{CapturedAt: exit.AddDate(0, 0, 20), Price: 95, SellerCount: &outside},
	}

	out := make(map[string]*float64)
	trajectoryFeatures(snaps, exit, 100, false, out)

	require.NotNil(t, out[FeatSellerCount])
	assert.Equal(t, 9.0, *out[FeatSellerCount])
	require.NotNil(t, out[FeatBuyBoxAmazon])
	assert.Equal(t, 1.0, *out[FeatBuyBoxAmazon])
}
