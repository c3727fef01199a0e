package dataset

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hadleybricks/brickvest/internal/contracts"
)

func day(year int, month time.Month, d int) time.Time {
	return time.Date(year, month, d, 12, 0, 0, 0, time.UTC)
}

func snapsAt(setNumber string, prices map[time.Time]float64) []contracts.PriceSnapshot {
	out := make([]contracts.PriceSnapshot, 0, len(prices))
	for ts, p := range prices {
		out = append(out, contracts.PriceSnapshot{SetNumber: setNumber, CapturedAt: ts, Price: p})
	}
	return out
}

func TestWindowMedianRequiresMinSnapshots(t *testing.T) {
	center := day(2020, time.June, 1)
	snaps := snapsAt("75192", map[time.Time]float64{
		day(2020, time.May, 25): 100,
		day(2020, time.June, 3): 110,
	})

	price, count := windowMedian(snaps, center, 15)
	assert.Nil(t, price)
	assert.Equal(t, 2, count)

	snaps = append(snaps, contracts.PriceSnapshot{CapturedAt: day(2020, time.June, 10), Price: 120})
	price, count = windowMedian(snaps, center, 15)
	require.NotNil(t, price)
	assert.Equal(t, 3, count)
	assert.InDelta(t, 110.0, *price, 1e-9)
}

func TestWindowMedianExcludesOutOfWindowSnapshots(t *testing.T) {
	center := day(2020, time.June, 1)
	snaps := snapsAt("10179", map[time.Time]float64{
		day(2020, time.May, 20):  100,
		day(2020, time.May, 28):  102,
		day(2020, time.June, 5):  104,
		day(2020, time.April, 1): 900, // outside
		day(2020, time.August, 1): 900, // outside
	})

	price, count := windowMedian(snaps, center, 15)
	require.NotNil(t, price)
	assert.Equal(t, 3, count)
	assert.InDelta(t, 102.0, *price, 1e-9)
}

func TestWindowMedianIgnoresNonPositivePrices(t *testing.T) {
	center := day(2020, time.June, 1)
	snaps := []contracts.PriceSnapshot{
		{CapturedAt: day(2020, time.June, 1), Price: 0},
		{CapturedAt: day(2020, time.June, 2), Price: -5},
		{CapturedAt: day(2020, time.June, 3), Price: math.NaN()},
		{CapturedAt: day(2020, time.June, 4), Price: 50},
	}
	price, count := windowMedian(snaps, center, 15)
	assert.Nil(t, price)
	assert.Equal(t, 1, count)
}

// denseSnaps produces enough points around every milestone window for
// targets to materialise at the given multiple of RRP.
func denseSnaps(exit time.Time, rrp float64, multiples map[contracts.Horizon]float64) []contracts.PriceSnapshot {
	var snaps []contracts.PriceSnapshot
	for _, m := range contracts.Milestones {
		mult := 1.0
		if m.Horizon != "" {
			mult = multiples[m.Horizon]
		}
		center := exit.AddDate(0, 0, m.OffsetDays)
		for _, off := range []int{-5, 0, 5} {
			snaps = append(snaps, contracts.PriceSnapshot{
				CapturedAt: center.AddDate(0, 0, off),
				Price:      rrp * mult,
			})
		}
	}
	return snaps
}

func TestBuildRowComputesLogTargetsAndQuality(t *testing.T) {
	exit := day(2020, time.March, 15)
	rrp := 100.0
	set := contracts.CatalogSet{
		SetNumber: "75290",
		Theme:     "Star Wars",
		Status:    contracts.StatusRetired,
		ExitDate:  &exit,
		RRPGBP:    &rrp,
	}
	multiples := map[contracts.Horizon]float64{
		contracts.Horizon6m:  1.10,
		contracts.Horizon1yr: 1.25,
		contracts.Horizon2yr: 1.50,
		contracts.Horizon3yr: 2.00,
	}

	row := buildRow(set, denseSnaps(exit, rrp, multiples))
	require.NotNil(t, row)
	assert.Equal(t, contracts.QualityGood, row.Quality)
	assert.Equal(t, 2020, row.RetirementYear)
	require.NotNil(t, row.PriceAtRetirement)
	assert.InDelta(t, 100.0, *row.PriceAtRetirement, 1e-9)

	for h, mult := range multiples {
		target := row.Target(h)
		require.NotNil(t, target, "horizon %s", h)
		assert.InDelta(t, math.Log(mult), *target, 1e-9, "horizon %s", h)
	}
}

func TestBuildRowPartialQualityWhenWindowsMissing(t *testing.T) {
	exit := day(2022, time.January, 10)
	rrp := 60.0
	set := contracts.CatalogSet{
		SetNumber: "21318",
		Theme:     "Ideas",
		ExitDate:  &exit,
		RRPGBP:    &rrp,
	}

	// Only the 6m window has enough snapshots.
	center := exit.AddDate(0, 0, 180)
	snaps := []contracts.PriceSnapshot{
		{CapturedAt: center.AddDate(0, 0, -3), Price: 70},
		{CapturedAt: center, Price: 72},
		{CapturedAt: center.AddDate(0, 0, 3), Price: 74},
	}

	row := buildRow(set, snaps)
	require.NotNil(t, row)
	assert.Equal(t, contracts.QualityPartial, row.Quality)
	assert.NotNil(t, row.Target6m)
	assert.Nil(t, row.Target1yr)
	assert.Nil(t, row.Target2yr)
	assert.Nil(t, row.Target3yr)
}

func TestBuildRowInsufficientWithNoSnapshots(t *testing.T) {
	exit := day(2021, time.July, 1)
	rrp := 40.0
	set := contracts.CatalogSet{SetNumber: "60198", Theme: "City", ExitDate: &exit, RRPGBP: &rrp}

	row := buildRow(set, nil)
	require.NotNil(t, row)
	assert.Equal(t, contracts.QualityInsufficient, row.Quality)
}

func TestBuildRowRejectsIneligibleSets(t *testing.T) {
	exit := day(2020, time.March, 15)
	cheap := 2.0
	old := day(2010, time.March, 15)
	rrp := 50.0

	assert.Nil(t, buildRow(contracts.CatalogSet{SetNumber: "a", RRPGBP: &rrp}, nil), "missing exit date")
	assert.Nil(t, buildRow(contracts.CatalogSet{SetNumber: "b", ExitDate: &exit}, nil), "missing rrp")
	assert.Nil(t, buildRow(contracts.CatalogSet{SetNumber: "c", ExitDate: &exit, RRPGBP: &cheap}, nil), "rrp floor")
	assert.Nil(t, buildRow(contracts.CatalogSet{SetNumber: "d", ExitDate: &old, RRPGBP: &rrp}, nil), "exit year floor")
}
