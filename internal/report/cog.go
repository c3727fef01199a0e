// Package report renders the investment report: methodology, the
// latest validation results and a fee-adjusted top-25 buy list.
package report

import "math"

// Amazon fee structure, approximate for the UK toys category.
const (
	ReferralFeePct = 0.15 // referral fee share of sale price
	FulfilmentFee  = 3.25 // flat fulfilment fee in GBP, medium box
)

// CostAnalysis is the fee-adjusted economics of buying one set now
// and selling it a year after retirement.
type CostAnalysis struct {
	BuyPrice    float64
	BuySource   string
	SellPrice   float64
	ReferralFee float64
	TotalFees   float64
	NetRevenue  float64
	GrossProfit float64
	COGPct      float64 // buy price share of sale price; lower is better
	MarginPct   float64
	ROIPct      float64
}

// analyseCost computes the fee-adjusted margin for one buy/sell pair.
// Returns false when either price is unusable.
func analyseCost(buyPrice float64, buySource string, sellPrice float64) (CostAnalysis, bool) {
	if buyPrice <= 0 || sellPrice <= 0 || math.IsNaN(buyPrice) || math.IsNaN(sellPrice) {
		return CostAnalysis{}, false
	}

	referral := sellPrice * ReferralFeePct
	fees := referral + FulfilmentFee
	netRevenue := sellPrice - fees
	grossProfit := netRevenue - buyPrice

	return CostAnalysis{
		BuyPrice:    round2(buyPrice),
		BuySource:   buySource,
		SellPrice:   round2(sellPrice),
		ReferralFee: round2(referral),
		TotalFees:   round2(fees),
		NetRevenue:  round2(netRevenue),
		GrossProfit: round2(grossProfit),
		COGPct:      round1(buyPrice / sellPrice * 100),
		MarginPct:   round1(grossProfit / sellPrice * 100),
		ROIPct:      round1(grossProfit / buyPrice * 100),
	}, true
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }
func round1(v float64) float64 { return math.Round(v*10) / 10 }
