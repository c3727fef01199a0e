package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/hadleybricks/brickvest/internal/validation"
)

// validationResults holds the latest persisted output of each
// validation protocol. Sections are nil when no file exists yet.
type validationResults struct {
	Backtest    *validation.BacktestResult
	Calibration *validation.CalibrationResult
	Baseline    *validation.BaselineResult
	GeneratedAt time.Time
}

type resultEnvelope struct {
	GeneratedAt  time.Time       `json:"generated_at"`
	ModelVersion string          `json:"model_version"`
	Result       json.RawMessage `json:"result"`
}

// loadValidationResults reads the newest result file per section from
// the validator's output directory.
func loadValidationResults(dir string) (*validationResults, error) {
	out := &validationResults{}

	backtest, when, err := loadLatest(dir, "backtest")
	if err != nil {
		return nil, err
	}
	if backtest != nil {
		var res validation.BacktestResult
		if err := json.Unmarshal(backtest, &res); err != nil {
			return nil, fmt.Errorf("failed to decode backtest results: %w", err)
		}
		out.Backtest = &res
		out.GeneratedAt = when
	}

	calibration, when, err := loadLatest(dir, "calibration")
	if err != nil {
		return nil, err
	}
	if calibration != nil {
		var res validation.CalibrationResult
		if err := json.Unmarshal(calibration, &res); err != nil {
			return nil, fmt.Errorf("failed to decode calibration results: %w", err)
		}
		out.Calibration = &res
		if when.After(out.GeneratedAt) {
			out.GeneratedAt = when
		}
	}

	baseline, when, err := loadLatest(dir, "baseline")
	if err != nil {
		return nil, err
	}
	if baseline != nil {
		var res validation.BaselineResult
		if err := json.Unmarshal(baseline, &res); err != nil {
			return nil, fmt.Errorf("failed to decode baseline results: %w", err)
		}
		out.Baseline = &res
		if when.After(out.GeneratedAt) {
			out.GeneratedAt = when
		}
	}

	return out, nil
}

// loadLatest returns the raw result payload of the newest
// `{section}_*.json` file, or nil when none exist.
func loadLatest(dir, section string) (json.RawMessage, time.Time, error) {
	matches, err := filepath.Glob(filepath.Join(dir, section+"_*.json"))
	if err != nil {
		return nil, time.Time{}, err
	}
	if len(matches) == 0 {
		return nil, time.Time{}, nil
	}

	// Timestamped names sort chronologically.
	sort.Strings(matches)
	path := matches[len(matches)-1]

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("failed to read %s: %w", path, err)
	}

	var env resultEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, time.Time{}, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return env.Result, env.GeneratedAt, nil
}
