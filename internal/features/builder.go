package features

import (
	"context"
	"fmt"
	"time"

	"github.com/hadleybricks/brickvest/internal/contracts"
	"github.com/hadleybricks/brickvest/pkg/logger"
)

// nullRateWarnThreshold: features more absent than this are logged but
// never dropped; the models route missing values natively.
const nullRateWarnThreshold = 0.30

// BuildTrainingVectors fills Features on every row in place.
// Intrinsic and theme features use only information available at each
// row's exit date; trajectory features measure the realised
// post-retirement windows. Returns the per-feature null rates.
func BuildTrainingVectors(
	rows []contracts.TrainingRow,
	sets map[string]contracts.CatalogSet,
	snaps map[string][]contracts.PriceSnapshot,
	log *logger.Logger,
) map[string]float64 {
	lookback := newThemeLookback(rows)
	now := time.Now().UTC()

	for i := range rows {
		row := &rows[i]
		out := make(map[string]*float64, len(Names()))

		set, ok := sets[row.SetNumber]
		if !ok {
			set = contracts.CatalogSet{
				SetNumber: row.SetNumber,
				Theme:     row.Theme,
				RRPGBP:    &row.RRPGBP,
			}
		}
		exit := row.ExitDate
		intrinsicFeatures(set, &exit, out)
		trajectoryFeatures(snaps[row.SetNumber], exit, row.RRPGBP, false, out)
		lookback.fill(row, out)

		row.Features = out
		row.FeatureVersion = Version
		row.FeaturesBuiltAt = &now
	}

	rates := nullRates(rows)
	for name, rate := range rates {
		if rate > nullRateWarnThreshold {
			log.WithFields(map[string]interface{}{
				"feature":   name,
				"null_rate": fmt.Sprintf("%.1f%%", rate*100),
			}).Warn("Feature has a high null rate")
		}
	}
	return rates
}

// BuildLiveVector engineers the feature vector for one set at scoring
// time: trajectory from trailing windows ending at the latest
// snapshot, theme statistics over the whole training history.
func BuildLiveVector(
	set contracts.CatalogSet,
	snaps []contracts.PriceSnapshot,
	stats *ThemeStats,
) map[string]*float64 {
	out := make(map[string]*float64, len(Names()))

	intrinsicFeatures(set, set.ExitDate, out)

	asOf := latestCaptureTime(snaps)
	rrp := 0.0
	if set.RRPGBP != nil {
		rrp = *set.RRPGBP
	}
	if asOf != nil {
		trajectoryFeatures(snaps, *asOf, rrp, true, out)
	} else {
		out[FeatDiscountAtRetirement] = nil
		out[FeatMomentum90d] = nil
		out[FeatVolatility180d] = nil
		out[FeatSellerCount] = nil
		out[FeatBuyBoxAmazon] = nil
	}

	stats.fill(set.Theme, out)
	return out
}

func latestCaptureTime(snaps []contracts.PriceSnapshot) *time.Time {
	var latest *time.Time
	for i := range snaps {
		t := snaps[i].CapturedAt
		if latest == nil || t.After(*latest) {
			latest = &t
		}
	}
	return latest
}

func nullRates(rows []contracts.TrainingRow) map[string]float64 {
	rates := make(map[string]float64)
	if len(rows) == 0 {
		return rates
	}
	for _, name := range Names() {
		nulls := 0
		for i := range rows {
			if rows[i].Features[name] == nil {
				nulls++
			}
		}
		rates[name] = float64(nulls) / float64(len(rows))
	}
	return rates
}

// Engineer runs the feature step against storage.
type Engineer struct {
	sets     contracts.SetRepository
	snaps    contracts.SnapshotRepository
	training contracts.TrainingRepository
	log      *logger.Logger
}

// NewEngineer creates the feature pipeline step.
func NewEngineer(
	sets contracts.SetRepository,
	snaps contracts.SnapshotRepository,
	training contracts.TrainingRepository,
	log *logger.Logger,
) *Engineer {
	return &Engineer{
		sets:     sets,
		snaps:    snaps,
		training: training,
		log:      log.WithField("component", "features"),
	}
}

// Run loads the training table, engineers every vector and writes the
// results back. Idempotent: vectors are fully recomputed each run.
func (e *Engineer) Run(ctx context.Context) (int, error) {
	rows, err := e.training.ListAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to load training rows: %w", err)
	}
	if len(rows) == 0 {
		e.log.Warn("No training rows; run the build step first")
		return 0, nil
	}

	catalog, err := e.sets.ListRetired(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to load catalog sets: %w", err)
	}
	setsByNumber := make(map[string]contracts.CatalogSet, len(catalog))
	setNumbers := make([]string, 0, len(rows))
	for _, s := range catalog {
		setsByNumber[s.SetNumber] = s
	}
	for i := range rows {
		setNumbers = append(setNumbers, rows[i].SetNumber)
	}

	snapsBySet, err := e.snaps.ListBySets(ctx, setNumbers)
	if err != nil {
		return 0, fmt.Errorf("failed to load price snapshots: %w", err)
	}

	BuildTrainingVectors(rows, setsByNumber, snapsBySet, e.log)

	n, err := e.training.UpdateFeatures(ctx, rows)
	if err != nil {
		return 0, fmt.Errorf("failed to persist feature vectors: %w", err)
	}

	e.log.WithFields(map[string]interface{}{
		"rows":    n,
		"schema":  Version,
		"columns": len(Names()),
	}).Info("Feature vectors built")
	return n, nil
}
