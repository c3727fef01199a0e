package validation

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/hadleybricks/brickvest/internal/contracts"
	"github.com/hadleybricks/brickvest/pkg/logger"
)

// Protocol selects which validation suite to run.
type Protocol string

const (
	ProtocolBacktest    Protocol = "backtest"
	ProtocolCalibration Protocol = "calibration"
	ProtocolBaseline    Protocol = "baseline"
	ProtocolAll         Protocol = "all"
)

// Report bundles the protocol outputs. Sections not requested are nil.
type Report struct {
	GeneratedAt  time.Time          `json:"generated_at"`
	ModelVersion string             `json:"model_version"`
	Backtest     *BacktestResult    `json:"backtest,omitempty"`
	Calibration  *CalibrationResult `json:"calibration,omitempty"`
	Baseline     *BaselineResult    `json:"baseline,omitempty"`
}

// Validator runs the protocols against persisted training rows.
type Validator struct {
	cfg      Config
	training contracts.TrainingRepository
	log      *logger.Logger
}

// NewValidator creates a validator.
func NewValidator(cfg Config, training contracts.TrainingRepository, log *logger.Logger) *Validator {
	return &Validator{
		cfg:      cfg,
		training: training,
		log:      log.WithField("component", "validation"),
	}
}

// Run executes the requested protocol against the training table and
// writes each section to the results directory.
func (v *Validator) Run(ctx context.Context, protocol Protocol) (*Report, error) {
	rows, err := v.training.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load training rows: %w", err)
	}
	report, err := v.RunOnRows(rows, protocol)
	if err != nil {
		return nil, err
	}
	if err := v.writeResults(report); err != nil {
		return nil, err
	}
	return report, nil
}

// RunOnRows executes the protocols on rows already in memory.
func (v *Validator) RunOnRows(rows []contracts.TrainingRow, protocol Protocol) (*Report, error) {
	report := &Report{
		GeneratedAt:  time.Now().UTC(),
		ModelVersion: contracts.ModelVersion,
	}

	if protocol == ProtocolBacktest || protocol == ProtocolAll {
		res, err := runBacktest(v.cfg, rows)
		if err != nil {
			return nil, fmt.Errorf("backtest: %w", err)
		}
		report.Backtest = res
		v.log.WithFields(map[string]interface{}{
			"folds":          len(res.Folds),
			"avg_separation": res.AvgSeparationPP,
			"avg_top_mean":   res.AvgTopMeanPct,
		}).Info("Backtest complete")
	}

	if protocol == ProtocolCalibration || protocol == ProtocolAll {
		res, err := runCalibration(v.cfg, rows)
		if err != nil {
			return nil, fmt.Errorf("calibration: %w", err)
		}
		report.Calibration = res
		for _, hc := range res.Horizons {
			v.log.WithFields(map[string]interface{}{
				"horizon":        hc.Horizon,
				"classification": hc.Classification,
				"within_iqr":     hc.Pooled.WithinIQR,
			}).Info("Calibration measured")
		}
	}

	if protocol == ProtocolBaseline || protocol == ProtocolAll {
		res, err := runBaseline(v.cfg, rows)
		if err != nil {
			return nil, fmt.Errorf("baseline: %w", err)
		}
		report.Baseline = res
		v.log.WithField("model_alpha_pp", res.ModelAlphaPP).Info("Baseline comparison complete")
	}

	return report, nil
}

// writeResults persists each populated section as its own JSON file.
func (v *Validator) writeResults(report *Report) error {
	if v.cfg.ResultsDir == "" {
		return nil
	}
	if err := os.MkdirAll(v.cfg.ResultsDir, 0o755); err != nil {
		return fmt.Errorf("failed to create results dir: %w", err)
	}

	stamp := report.GeneratedAt.Format("20060102_150405")
	sections := map[string]interface{}{}
	if report.Backtest != nil {
		sections["backtest"] = report.Backtest
	}
	if report.Calibration != nil {
		sections["calibration"] = report.Calibration
	}
	if report.Baseline != nil {
		sections["baseline"] = report.Baseline
	}

	for name, section := range sections {
		payload := struct {
			GeneratedAt  time.Time   `json:"generated_at"`
			ModelVersion string      `json:"model_version"`
			Result       interface{} `json:"result"`
		}{report.GeneratedAt, report.ModelVersion, section}

		data, err := json.MarshalIndent(payload, "", " ")
		if err != nil {
			return fmt.Errorf("failed to serialise %s results: %w", name, err)
		}
		path := filepath.Join(v.cfg.ResultsDir, fmt.Sprintf("%s_%s.json", name, stamp))
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return fmt.Errorf("failed to write %s results: %w", name, err)
		}
		v.log.WithField("path", path).Info("Validation results written")
	}
	return nil
}
