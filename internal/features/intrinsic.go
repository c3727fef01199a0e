package features

import (
	"strings"
	"time"

	"github.com/hadleybricks/brickvest/internal/contracts"
)

// licensedThemes are themes built on third-party intellectual property.
// Licensing is a strong appreciation driver after retirement.
var licensedThemes = map[string]bool{
	"Star Wars":                   true,
	"Harry Potter":                true,
	"Marvel Super Heroes":         true,
	"DC Comics Super Heroes":      true,
	"Batman":                      true,
	"Disney":                      true,
	"Jurassic World":              true,
	"Minecraft":                   true,
	"Super Mario":                 true,
	"Sonic the Hedgehog":          true,
	"The Lord of the Rings":       true,
	"The Hobbit":                  true,
	"Indiana Jones":               true,
	"Stranger Things":             true,
	"Ghostbusters":                true,
	"Back to the Future":          true,
	"James Bond":                  true,
	"Avatar":                      true,
	"Speed Champions":             true,
	"Brickheadz":                  true,
	"The Simpsons":                true,
	"Teenage Mutant Ninja Turtles": true,
}

// exclusivityOrdinal encodes distribution exclusivity as an ordinal.
// Unknown tiers fall back to 1 so they sit between general retail and
// genuinely limited releases.
var exclusivityOrdinal = map[string]float64{
	"retail":         0,
	"unknown":        1,
	"limited":        2,
	"lego_exclusive": 3,
	"park_exclusive": 4,
	"promotional":    5,
}

const exclusivityFallback = 1.0

const daysPerMonth = 30.44

// intrinsicFeatures fills the catalog-derived portion of the vector.
// exitDate is nil for sets still on the market.
func intrinsicFeatures(set contracts.CatalogSet, exitDate *time.Time, out map[string]*float64) {
	out[FeatPieceCount] = intPtrToFloat(set.Pieces)
	out[FeatRRP] = set.RRPGBP
	out[FeatMinifigCount] = intPtrToFloat(set.Minifigs)
	out[FeatAgeMin] = intPtrToFloat(set.AgeMin)
	out[FeatRating] = set.Rating

	if set.RRPGBP != nil && set.Pieces != nil && *set.Pieces > 0 {
		out[FeatPricePerPiece] = fptr(*set.RRPGBP / float64(*set.Pieces))
	} else {
		out[FeatPricePerPiece] = nil
	}

	out[FeatWantOwnRatio] = wantOwnRatio(set.WantCount, set.OwnCount)
	out[FeatIsLicensed] = fptr(boolToFloat(licensedThemes[set.Theme]))
	out[FeatIsUCS] = fptr(boolToFloat(isUCS(set.Subtheme)))
	out[FeatIsModular] = fptr(boolToFloat(isModular(set.Subtheme)))
	out[FeatExclusivityTier] = fptr(exclusivityTier(set.ExclusivityTier))
	out[FeatProductionMonths] = productionRunMonths(set.LaunchDate, exitDate)
	out[FeatBoxVolume] = boxVolume(set.Width, set.Height, set.Depth)

	if exitDate != nil {
		out[FeatRetirementYear] = fptr(float64(contracts.RetirementYear(*exitDate)))
		out[FeatRetirementQtr] = fptr(float64(contracts.RetirementQuarter(*exitDate)))
	} else {
		out[FeatRetirementYear] = nil
		out[FeatRetirementQtr] = nil
	}
}

// wantOwnRatio is want/own demand pressure. A missing or zero own
// count falls back to 1 so highly wanted but rarely owned sets keep a
// meaningful signal.
func wantOwnRatio(want, own *int) *float64 {
	if want == nil {
		return nil
	}
	denom := 1.0
	if own != nil && *own > 0 {
		denom = float64(*own)
	}
	return fptr(float64(*want) / denom)
}

func isUCS(subtheme *string) bool {
	return subtheme != nil && strings.Contains(*subtheme, "Ultimate Collector")
}

func isModular(subtheme *string) bool {
	return subtheme != nil && strings.Contains(*subtheme, "Modular Buildings")
}

func exclusivityTier(tier *string) float64 {
	if tier == nil {
		return exclusivityFallback
	}
	if v, ok := exclusivityOrdinal[strings.ToLower(*tier)]; ok {
		return v
	}
	return exclusivityFallback
}

// productionRunMonths is the shelf life from launch to exit, clipped
// at zero for data-entry inversions.
func productionRunMonths(launch, exit *time.Time) *float64 {
	if launch == nil || exit == nil {
		return nil
	}
	days := exit.Sub(*launch).Hours() / 24
	months := days / daysPerMonth
	if months < 0 {
		months = 0
	}
	return fptr(months)
}

func boxVolume(w, h, d *float64) *float64 {
	if w == nil || h == nil || d == nil {
		return nil
	}
	return fptr(*w * *h * *d)
}

func intPtrToFloat(v *int) *float64 {
	if v == nil {
		return nil
	}
	return fptr(float64(*v))
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func fptr(v float64) *float64 { return &v }
