package features

import (
	"math"
	"sort"
	"time"

	"github.com/hadleybricks/brickvest/internal/contracts"
)

const (
	momentumWindowDays   = 90
	volatilityWindowDays = 180
	retirementWindowDays = 15

	// Trailing windows at scoring time are shorter-lived, so they get
	// a lower point floor than the historical windows.
	minTrajectoryPointsTrain = 3
	minTrajectoryPointsLive  = 2
)

// window is a capture-time interval. Post-exit windows exclude the
// exit date itself so the retirement-day snapshot is not counted as
// aftermarket movement.
type window struct {
	lo, hi    time.Time
	excludeLo bool
}

func (w window) contains(t time.Time) bool {
	if t.After(w.hi) {
		return false
	}
	if w.excludeLo {
		return t.After(w.lo)
	}
	return !t.Before(w.lo)
}

// trajectoryFeatures fills the price-trajectory portion of the vector.
//
// Training mode measures the realised aftermarket trajectory: the
// discount and market state come from the two-sided window around the
// exit date, momentum from the 90 days after it, volatility from the
// 180 days after it. The targets are post-retirement returns, so the
// inputs describe the post-retirement tape.
//
// Live mode has no aftermarket yet. The same statistics are computed
// over trailing windows ending at asOf, which in live use is the
// latest snapshot time.
func trajectoryFeatures(snaps []contracts.PriceSnapshot, asOf time.Time, rrp float64, live bool, out map[string]*float64) {
	sorted := cleanSnapshots(snaps)

	var momWin, volWin, stateWin window
	minPoints := minTrajectoryPointsTrain
	if live {
		minPoints = minTrajectoryPointsLive
		momWin = window{lo: asOf.AddDate(0, 0, -momentumWindowDays), hi: asOf}
		volWin = window{lo: asOf.AddDate(0, 0, -volatilityWindowDays), hi: asOf}
		stateWin = window{lo: asOf.AddDate(0, 0, -retirementWindowDays), hi: asOf}
	} else {
		momWin = window{lo: asOf, hi: asOf.AddDate(0, 0, momentumWindowDays), excludeLo: true}
		volWin = window{lo: asOf, hi: asOf.AddDate(0, 0, volatilityWindowDays), excludeLo: true}
		stateWin = window{lo: asOf.AddDate(0, 0, -retirementWindowDays), hi: asOf.AddDate(0, 0, retirementWindowDays)}
	}

	out[FeatDiscountAtRetirement] = discountIn(sorted, stateWin, rrp)
	out[FeatMomentum90d] = momentum(sorted, momWin, minPoints)
	out[FeatVolatility180d] = volatility(sorted, volWin, minPoints)

	sc, bb := latestMarketState(sorted, stateWin)
	out[FeatSellerCount] = sc
	out[FeatBuyBoxAmazon] = bb
}

// discountIn is (rrp - p) / rrp where p is the median price inside
// the retirement window.
func discountIn(sorted []contracts.PriceSnapshot, w window, rrp float64) *float64 {
	_, prices := windowPoints(sorted, w)
	if len(prices) == 0 || rrp <= 0 {
		return nil
	}
	return fptr((rrp - medianOf(prices)) / rrp)
}

// momentum is the least-squares slope of price against capture day
// over the window, normalised by the window's mean price. Nil when
// the window has too few points or no spread in time.
func momentum(sorted []contracts.PriceSnapshot, w window, minPoints int) *float64 {
	days, prices := windowPoints(sorted, w)
	if len(prices) < minPoints {
		return nil
	}
	mean := meanOf(prices)
	if mean == 0 {
		return nil
	}
	dayMean := meanOf(days)
	var cov, dayVar float64
	for i := range days {
		dd := days[i] - dayMean
		cov += dd * (prices[i] - mean)
		dayVar += dd * dd
	}
	if dayVar == 0 {
		return nil
	}
	return fptr((cov / dayVar) / mean)
}

// volatility is the sample standard deviation of window prices,
// normalised by the window's mean price.
func volatility(sorted []contracts.PriceSnapshot, w window, minPoints int) *float64 {
	_, prices := windowPoints(sorted, w)
	if len(prices) < minPoints || len(prices) < 2 {
		return nil
	}
	mean := meanOf(prices)
	if mean == 0 {
		return nil
	}
	var ss float64
	for _, p := range prices {
		d := p - mean
		ss += d * d
	}
	std := math.Sqrt(ss / float64(len(prices)-1))
	return fptr(std / mean)
}

// latestMarketState pulls seller count and buy-box ownership from the
// most recent snapshot inside the window that carries each field.
func latestMarketState(sorted []contracts.PriceSnapshot, w window) (sellerCount, buyBoxAmazon *float64) {
	for i := len(sorted) - 1; i >= 0; i-- {
		s := sorted[i]
		if s.CapturedAt.After(w.hi) {
			continue
		}
		if s.CapturedAt.Before(w.lo) {
			break
		}
		if sellerCount == nil && s.SellerCount != nil {
			sellerCount = fptr(float64(*s.SellerCount))
		}
		if buyBoxAmazon == nil && s.BuyBoxIsAmazon != nil {
			buyBoxAmazon = fptr(boolToFloat(*s.BuyBoxIsAmazon))
		}
		if sellerCount != nil && buyBoxAmazon != nil {
			break
		}
	}
	return sellerCount, buyBoxAmazon
}

// cleanSnapshots drops unusable prices and sorts by capture time.
func cleanSnapshots(snaps []contracts.PriceSnapshot) []contracts.PriceSnapshot {
	sorted := make([]contracts.PriceSnapshot, 0, len(snaps))
	for _, s := range snaps {
		if s.Price <= 0 || math.IsNaN(s.Price) || math.IsInf(s.Price, 0) {
			continue
		}
		sorted = append(sorted, s)
	}
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].CapturedAt.Before(sorted[j].CapturedAt)
	})
	return sorted
}

// windowPoints returns capture days (relative to the window start)
// and prices for snapshots inside the window, in capture order.
func windowPoints(sorted []contracts.PriceSnapshot, w window) (days, prices []float64) {
	for _, s := range sorted {
		if !w.contains(s.CapturedAt) {
			continue
		}
		days = append(days, s.CapturedAt.Sub(w.lo).Hours()/24)
		prices = append(prices, s.Price)
	}
	return days, prices
}

func meanOf(values []float64) float64 {
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func medianOf(values []float64) float64 {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}
