// Package features engineers the model feature vectors: intrinsic set
// attributes, pre-retirement price trajectory, and theme-historical
// appreciation statistics with a strict exit-date lookback.
package features

import "fmt"

// Version tags every feature vector so trained models refuse rows
// built under a different schema.
const Version = "v2"

// Intrinsic feature names.
const (
	FeatPieceCount       = "piece_count"
	FeatRRP              = "rrp_gbp"
	FeatPricePerPiece    = "price_per_piece"
	FeatMinifigCount     = "minifig_count"
	FeatAgeMin           = "age_min"
	FeatRating           = "rating"
	FeatWantOwnRatio     = "want_own_ratio"
	FeatIsLicensed       = "is_licensed"
	FeatIsUCS            = "is_ucs"
	FeatIsModular        = "is_modular"
	FeatExclusivityTier  = "exclusivity_tier"
	FeatProductionMonths = "production_run_months"
	FeatBoxVolume        = "box_volume"
	FeatRetirementYear   = "retirement_year"
	FeatRetirementQtr    = "retirement_quarter"
)

// Trajectory feature names.
const (
	FeatDiscountAtRetirement = "discount_at_retirement"
	FeatMomentum90d          = "price_momentum_90d"
	FeatVolatility180d       = "price_volatility_180d"
	FeatSellerCount          = "seller_count_at_retirement"
	FeatBuyBoxAmazon         = "buy_box_is_amazon"
)

// themeFeaturePrefixes are expanded per horizon (6m/1yr/2yr/3yr).
var themeFeaturePrefixes = []string{
	"theme_mean_log",
	"theme_median_log",
	"theme_std_log",
	"theme_sample_size",
}

// Names returns the closed, ordered feature schema. Models and
// training matrices index columns by this order.
func Names() []string {
	names := []string{
		FeatPieceCount, FeatRRP, FeatPricePerPiece, FeatMinifigCount,
		FeatAgeMin, FeatRating, FeatWantOwnRatio, FeatIsLicensed,
		FeatIsUCS, FeatIsModular, FeatExclusivityTier,
		FeatProductionMonths, FeatBoxVolume, FeatRetirementYear,
		FeatRetirementQtr,
		FeatDiscountAtRetirement, FeatMomentum90d, FeatVolatility180d,
		FeatSellerCount, FeatBuyBoxAmazon,
	}
	for _, prefix := range themeFeaturePrefixes {
		for _, h := range horizonSuffixes {
			names = append(names, fmt.Sprintf("%s_%s", prefix, h))
		}
	}
	return names
}

var horizonSuffixes = []string{"6m", "1yr", "2yr", "3yr"}

// ThemeFeatureName builds a theme-historical feature name.
func ThemeFeatureName(prefix, horizon string) string {
	return fmt.Sprintf("%s_%s", prefix, horizon)
}
