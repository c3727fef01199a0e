// Package gbm implements gradient-boosted regression trees with
// leaf-wise growth, L1/L2 regularisation, per-tree feature subsampling,
// learned missing-value routing, and pinball-loss quantile objectives.
// It is deliberately small: exact split search on sorted values, no
// histogram binning, which is plenty for datasets in the low thousands
// of rows.
package gbm

import "fmt"

// ObjectiveKind selects the training loss.
type ObjectiveKind string

const (
	// ObjectiveL2 is squared-error regression, used by the
	// hyperparameter search phase.
	ObjectiveL2 ObjectiveKind = "l2"

	// ObjectiveQuantile is pinball loss at Params.Alpha, used by the
	// final per-quantile fits.
	ObjectiveQuantile ObjectiveKind = "quantile"
)

// Params holds the boosting hyperparameters.
type Params struct {
	Objective ObjectiveKind
	Alpha     float64 // quantile level, only for ObjectiveQuantile

	NumRounds       int
	NumLeaves       int
	LearningRate    float64
	MaxDepth        int // <= 0 means unlimited
	MinChildSamples int
	FeatureFraction float64 // (0, 1]
	LambdaL1        float64
	LambdaL2        float64

	// EarlyStopping stops after this many rounds without validation
	// improvement and truncates to the best round. Zero disables it;
	// it only applies when a validation set is supplied.
	EarlyStopping int

	Seed int64
}

// DefaultParams returns sane defaults matching common library defaults.
func DefaultParams() Params {
	return Params{
		Objective:       ObjectiveL2,
		NumRounds:       100,
		NumLeaves:       31,
		LearningRate:    0.1,
		MaxDepth:        -1,
		MinChildSamples: 20,
		FeatureFraction: 1.0,
		Seed:            1,
	}
}

func (p Params) validate() error {
	if p.NumRounds <= 0 {
		return fmt.Errorf("gbm: num rounds must be positive, got %d", p.NumRounds)
	}
	if p.NumLeaves < 2 {
		return fmt.Errorf("gbm: num leaves must be >= 2, got %d", p.NumLeaves)
	}
	if p.LearningRate <= 0 {
		return fmt.Errorf("gbm: learning rate must be positive, got %v", p.LearningRate)
	}
	if p.FeatureFraction <= 0 || p.FeatureFraction > 1 {
		return fmt.Errorf("gbm: feature fraction must be in (0, 1], got %v", p.FeatureFraction)
	}
	if p.Objective == ObjectiveQuantile && (p.Alpha <= 0 || p.Alpha >= 1) {
		return fmt.Errorf("gbm: quantile alpha must be in (0, 1), got %v", p.Alpha)
	}
	if p.Objective != ObjectiveL2 && p.Objective != ObjectiveQuantile {
		return fmt.Errorf("gbm: unknown objective %q", p.Objective)
	}
	return nil
}
