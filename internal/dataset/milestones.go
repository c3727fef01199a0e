// Package dataset builds labelled training rows from retired sets and
// their marketplace price history: milestone window medians, log
// appreciation targets, and winsorised target columns.
package dataset

import (
	"math"
	"sort"
	"time"

	"github.com/hadleybricks/brickvest/internal/contracts"
)

// windowMedian returns the median price of snapshots captured within
// [center-halfWidth, center+halfWidth] days, and the snapshot count.
// The median is nil when fewer than contracts.MinWindowSnapshots fall
// inside the window.
func windowMedian(snaps []contracts.PriceSnapshot, center time.Time, halfWidthDays int) (*float64, int) {
	lo := center.AddDate(0, 0, -halfWidthDays)
	hi := center.AddDate(0, 0, halfWidthDays)

	prices := make([]float64, 0, 8)
	for _, s := range snaps {
		if s.CapturedAt.Before(lo) || s.CapturedAt.After(hi) {
			continue
		}
		if s.Price <= 0 || math.IsNaN(s.Price) || math.IsInf(s.Price, 0) {
			continue
		}
		prices = append(prices, s.Price)
	}
	if len(prices) < contracts.MinWindowSnapshots {
		return nil, len(prices)
	}
	return ptr(median(prices)), len(prices)
}

func median(values []float64) float64 {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

func ptr(v float64) *float64 { return &v }

// buildRow computes milestone prices, targets and quality for one
// retired set. Returns nil when the set is not usable (no exit date or
// retail price below the floor).
func buildRow(set contracts.CatalogSet, snaps []contracts.PriceSnapshot) *contracts.TrainingRow {
	if set.ExitDate == nil || set.RRPGBP == nil || *set.RRPGBP < contracts.MinRRPGBP {
		return nil
	}
	exit := *set.ExitDate
	if exit.Year() < contracts.MinExitYear {
		return nil
	}
	rrp := *set.RRPGBP

	row := &contracts.TrainingRow{
		SetNumber:      set.SetNumber,
		Theme:          set.Theme,
		Subtheme:       set.Subtheme,
		ExitDate:       exit,
		RetirementYear: contracts.RetirementYear(exit),
		RRPGBP:         rrp,
	}

	targets := 0
	for _, m := range contracts.Milestones {
		center := exit.AddDate(0, 0, m.OffsetDays)
		price, _ := windowMedian(snaps, center, m.HalfWidth)
		if m.Horizon == "" {
			row.PriceAtRetirement = price
			continue
		}
		row.SetMilestonePrice(m.Horizon, price)
		if price != nil {
			t := math.Log(*price / rrp)
			row.SetTarget(m.Horizon, &t)
			targets++
		}
	}

	switch {
	case targets == len(contracts.Horizons):
		row.Quality = contracts.QualityGood
	case targets > 0:
		row.Quality = contracts.QualityPartial
	default:
		row.Quality = contracts.QualityInsufficient
	}
	return row
}
