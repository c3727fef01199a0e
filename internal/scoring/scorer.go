package scoring

import (
	"fmt"
	"math"
	"time"

	"github.com/hadleybricks/brickvest/internal/contracts"
	"github.com/hadleybricks/brickvest/internal/features"
	"github.com/hadleybricks/brickvest/internal/gbm"
	"github.com/hadleybricks/brickvest/pkg/logger"
)

// Risk flag names attached to predictions.
const (
	FlagHighRRP          = "high_rrp"
	FlagLowPieceCount    = "low_piece_count"
	FlagThinThemeData    = "thin_theme_data"
	FlagNegativeForecast = "negative_forecast"
	FlagHighUncertainty  = "high_uncertainty"
)

const (
	highRRPThreshold        = 200.0
	lowPieceCountThreshold  = 100
	lowPieceCountMinRRP     = 30.0
	thinThemeComparables    = 5
	highUncertaintyConf     = 0.3
)

// ModelSet holds the loaded quantile models and their feature column
// order per horizon. Horizons without a complete triplet are absent.
type ModelSet struct {
	Models   map[contracts.Horizon]map[float64]*gbm.Model
	Features map[contracts.Horizon][]string
}

// Scorer converts live sets into predictions.
type Scorer struct {
	weights contracts.ScoreWeights
	log     *logger.Logger
}

// NewScorer validates the composite weights and returns a scorer.
func NewScorer(weights contracts.ScoreWeights, log *logger.Logger) (*Scorer, error) {
	if err := weights.Validate(); err != nil {
		return nil, err
	}
	return &Scorer{weights: weights, log: log.WithField("component", "scoring")}, nil
}

// BatchStats summarises one scoring pass.
type BatchStats struct {
	Scored            int
	SkippedNoRRP      int
	SkippedNoTheme    int
	HorizonsAvailable int
}

// Score predicts every eligible set. Items missing a retail price or a
// theme are counted and skipped, never fatal. trainingRows supply the
// live theme aggregates.
func (s *Scorer) Score(
	sets []contracts.CatalogSet,
	snaps map[string][]contracts.PriceSnapshot,
	trainingRows []contracts.TrainingRow,
	ms *ModelSet,
) ([]contracts.Prediction, BatchStats) {
	stats := BatchStats{HorizonsAvailable: len(ms.Models)}
	themeStats := features.ComputeThemeStats(trainingRows)
	now := time.Now().UTC()

	preds := make([]contracts.Prediction, 0, len(sets))
	for _, set := range sets {
		if set.RRPGBP == nil || *set.RRPGBP < contracts.MinRRPGBP {
			stats.SkippedNoRRP++
			continue
		}
		if set.Theme == "" {
			stats.SkippedNoTheme++
			continue
		}

		vec := features.BuildLiveVector(set, snaps[set.SetNumber], themeStats)
		pred := s.scoreOne(set, vec, themeStats, ms, now)
		preds = append(preds, pred)
	}
	stats.Scored = len(preds)

	s.assignComposites(preds)

	if stats.SkippedNoRRP > 0 || stats.SkippedNoTheme > 0 {
		s.log.WithFields(map[string]interface{}{
			"no_rrp":   stats.SkippedNoRRP,
			"no_theme": stats.SkippedNoTheme,
		}).Warn("Sets skipped during scoring")
	}
	return preds, stats
}

// scoreOne runs every available horizon triplet for one set.
func (s *Scorer) scoreOne(
	set contracts.CatalogSet,
	vec map[string]*float64,
	themeStats *features.ThemeStats,
	ms *ModelSet,
	now time.Time,
) contracts.Prediction {
	rrp := *set.RRPGBP
	pred := contracts.Prediction{
		SetNumber:    set.SetNumber,
		ModelVersion: contracts.ModelVersion,
		ScoredAt:     now,
		Horizons:     make(map[contracts.Horizon]contracts.HorizonForecast),
	}

	for h, models := range ms.Models {
		row := vectorForModel(vec, ms.Features[h])
		forecast := contracts.HorizonForecast{
			Horizon: h,
			P25Log:  models[0.25].Predict(row),
			P50Log:  models[0.50].Predict(row),
			P75Log:  models[0.75].Predict(row),
		}
		forecast.AppreciationPct = contracts.LogToPct(forecast.P50Log)
		forecast.AppreciationLowPct = contracts.LogToPct(forecast.P25Log)
		forecast.AppreciationHighPct = contracts.LogToPct(forecast.P75Log)
		forecast.PredictedPrice = contracts.LogToPrice(forecast.P50Log, rrp)
		forecast.Confidence = 1.0 / (1.0 + math.Abs(forecast.P75Log-forecast.P25Log))
		pred.Horizons[h] = forecast
	}

	if oneYear, ok := pred.Horizons[contracts.Horizon1yr]; ok {
		pred.ExpectedProfit = rrp * oneYear.AppreciationPct / 100
		pred.RiskAdjusted = oneYear.AppreciationPct * oneYear.Confidence
	}

	sampleSize := themeStats.SampleSize(set.Theme)
	pred.ThemeSampleSize = &sampleSize
	pred.RiskFlags = riskFlags(set, pred, sampleSize)
	return pred
}

// assignComposites computes batch percentile ranks and blends them
// into the 0-10 composite score.
func (s *Scorer) assignComposites(preds []contracts.Prediction) {
	n := len(preds)
	apps := make([]*float64, n)
	profits := make([]*float64, n)
	riskAdj := make([]*float64, n)
	for i := range preds {
		if oneYear, ok := preds[i].Horizons[contracts.Horizon1yr]; ok {
			apps[i] = fptr(oneYear.AppreciationPct)
			profits[i] = fptr(preds[i].ExpectedProfit)
			riskAdj[i] = fptr(preds[i].RiskAdjusted)
		}
	}

	appRanks := PercentileRanks(apps)
	profitRanks := PercentileRanks(profits)
	riskRanks := PercentileRanks(riskAdj)

	for i := range preds {
		conf := 0.5
		if oneYear, ok := preds[i].Horizons[contracts.Horizon1yr]; ok {
			conf = oneYear.Confidence
		}
		preds[i].CompositeScore = 10 * (s.weights.Appreciation*appRanks[i] +
			s.weights.Confidence*conf +
			s.weights.Profit*profitRanks[i] +
			s.weights.RiskAdjusted*riskRanks[i])
	}
}

// riskFlags derives the qualitative caution flags for one prediction.
func riskFlags(set contracts.CatalogSet, pred contracts.Prediction, themeSamples int) []string {
	var flags []string
	rrp := *set.RRPGBP

	if rrp > highRRPThreshold {
		flags = append(flags, FlagHighRRP)
	}
	if set.Pieces != nil && *set.Pieces < lowPieceCountThreshold && rrp > lowPieceCountMinRRP {
		flags = append(flags, FlagLowPieceCount)
	}
	if themeSamples < thinThemeComparables {
		flags = append(flags, FlagThinThemeData)
	}
	if oneYear, ok := pred.Horizons[contracts.Horizon1yr]; ok {
		if oneYear.P50Log < 0 {
			flags = append(flags, FlagNegativeForecast)
		}
		if oneYear.Confidence < highUncertaintyConf {
			flags = append(flags, FlagHighUncertainty)
		}
	}
	return flags
}

// vectorForModel lays out the live feature map in the model's column
// order, NaN for missing values.
func vectorForModel(vec map[string]*float64, names []string) []float64 {
	row := make([]float64, len(names))
	for i, name := range names {
		if v := vec[name]; v != nil {
			row[i] = *v
		} else {
			row[i] = math.NaN()
		}
	}
	return row
}

func fptr(v float64) *float64 { return &v }

// describeModelSet is used in logs when loading artifacts.
func describeModelSet(ms *ModelSet) string {
	return fmt.Sprintf("%d horizons loaded", len(ms.Models))
}
