package validation

import (
	"github.com/hadleybricks/brickvest/internal/contracts"
)

// Calibration classification labels.
const (
	CalibrationWell     = "well_calibrated"
	CalibrationModerate = "moderately_calibrated"
	CalibrationPoor     = "poorly_calibrated"
)

const (
	wellCalibratedPP     = 0.10
	moderateCalibratedPP = 0.15
)

// QuantileObservation pairs a realised log target with the three
// quantile predictions made for it.
type QuantileObservation struct {
	Actual float64
	P25    float64
	P50    float64
	P75    float64
}

// Coverage holds empirical quantile coverage rates.
type Coverage struct {
	N         int     `json:"n"`
	BelowP25  float64 `json:"below_p25"`
	BelowP50  float64 `json:"below_p50"`
	BelowP75  float64 `json:"below_p75"`
	WithinIQR float64 `json:"within_iqr"`
}

// MeasureCoverage computes how often actual outcomes fall below each
// predicted quantile. Perfectly calibrated models give 25/50/75% and
// 50% inside the IQR.
func MeasureCoverage(obs []QuantileObservation) Coverage {
	c := Coverage{N: len(obs)}
	if len(obs) == 0 {
		return c
	}
	var below25, below50, below75, within int
	for _, o := range obs {
		if o.Actual < o.P25 {
			below25++
		}
		if o.Actual < o.P50 {
			below50++
		}
		if o.Actual < o.P75 {
			below75++
		}
		if o.Actual >= o.P25 && o.Actual <= o.P75 {
			within++
		}
	}
	n := float64(len(obs))
	c.BelowP25 = float64(below25) / n
	c.BelowP50 = float64(below50) / n
	c.BelowP75 = float64(below75) / n
	c.WithinIQR = float64(within) / n
	return c
}

// ClassifyCoverage labels pooled coverage by its worst deviation from
// the nominal rates.
func ClassifyCoverage(c Coverage) string {
	worst := abs(c.BelowP25 - 0.25)
	if d := abs(c.BelowP50 - 0.50); d > worst {
		worst = d
	}
	if d := abs(c.BelowP75 - 0.75); d > worst {
		worst = d
	}
	switch {
	case worst < wellCalibratedPP:
		return CalibrationWell
	case worst < moderateCalibratedPP:
		return CalibrationModerate
	default:
		return CalibrationPoor
	}
}

// CalibrationFold is one fold's coverage.
type CalibrationFold struct {
	TestYear int      `json:"test_year"`
	Coverage Coverage `json:"coverage"`
}

// HorizonCalibration is the calibration outcome for one horizon.
type HorizonCalibration struct {
	Horizon      string            `json:"horizon"`
	Folds        []CalibrationFold `json:"folds"`
	FoldsSkipped int               `json:"folds_skipped"`

	// Pooled coverage across every fold's test rows. Fold-averaging
	// would let small folds swamp the estimate, so classification
	// reads the pooled rates.
	Pooled         Coverage `json:"pooled"`
	Classification string   `json:"classification"`

	MeanIQRWidthPP   float64 `json:"mean_iqr_width_pp"`
	MedianIQRWidthPP float64 `json:"median_iqr_width_pp"`
}

// CalibrationResult covers every horizon with enough data.
type CalibrationResult struct {
	Horizons        []HorizonCalibration `json:"horizons"`
	HorizonsSkipped []string             `json:"horizons_skipped,omitempty"`
}

// runCalibration checks whether the p25/p50/p75 predictions cover the
// realised outcomes at their nominal rates, per horizon.
func runCalibration(cfg Config, rows []contracts.TrainingRow) (*CalibrationResult, error) {
	result := &CalibrationResult{}
	for _, h := range contracts.Horizons {
		view := buildView(rows, h)
		if len(view.X) < cfg.MinHorizonRows {
			result.HorizonsSkipped = append(result.HorizonsSkipped, string(h))
			continue
		}

		hc := HorizonCalibration{Horizon: string(h)}
		var pooled []QuantileObservation
		var iqrWidths []float64

		for _, fold := range cfg.Folds {
			predRows, ok, err := foldPredictions(cfg, view, fold, cfg.MinFoldVal)
			if err != nil {
				return nil, err
			}
			if !ok {
				hc.FoldsSkipped++
				continue
			}

			obs := make([]QuantileObservation, len(predRows))
			for i, r := range predRows {
				obs[i] = QuantileObservation{Actual: r.ActualLog, P25: r.P25Log, P50: r.P50Log, P75: r.P75Log}
				iqrWidths = append(iqrWidths, contracts.LogToPct(r.P75Log)-contracts.LogToPct(r.P25Log))
			}
			pooled = append(pooled, obs...)
			hc.Folds = append(hc.Folds, CalibrationFold{TestYear: fold.TestYear, Coverage: MeasureCoverage(obs)})
		}

		if len(pooled) == 0 {
			result.HorizonsSkipped = append(result.HorizonsSkipped, string(h))
			continue
		}
		hc.Pooled = MeasureCoverage(pooled)
		hc.Classification = ClassifyCoverage(hc.Pooled)
		hc.MeanIQRWidthPP = meanFloat(iqrWidths)
		hc.MedianIQRWidthPP = medianFloat(iqrWidths)
		result.Horizons = append(result.Horizons, hc)
	}
	return result, nil
}
