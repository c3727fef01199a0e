package gbm

import (
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
)

// Model is a fitted gradient-boosted ensemble.
type Model struct {
	FeatureNames []string      `json:"feature_names"`
	Objective    ObjectiveKind `json:"objective"`
	Alpha        float64       `json:"alpha,omitempty"`
	BaseScore    float64       `json:"base_score"`
	Trees        []Tree        `json:"trees"`
	BestRound    int           `json:"best_round"`

	gains map[int]float64
}

// Fit trains a model on the full dataset with no early stopping.
func Fit(train Dataset, params Params) (*Model, error) {
	return FitWithEarlyStopping(train, Dataset{}, params)
}

// FitWithEarlyStopping trains a model, evaluating each round against
// the validation set when one is supplied. With early stopping enabled
// the ensemble is truncated to the best validation round.
func FitWithEarlyStopping(train, valid Dataset, params Params) (*Model, error) {
	if err := params.validate(); err != nil {
		return nil, err
	}
	if err := train.validate(); err != nil {
		return nil, err
	}
	hasValid := valid.Len() > 0
	if hasValid {
		if err := valid.validate(); err != nil {
			return nil, fmt.Errorf("validation set: %w", err)
		}
	}

	m := &Model{
		FeatureNames: train.Features,
		Objective:    params.Objective,
		Alpha:        params.Alpha,
		gains:        make(map[int]float64),
	}

	switch params.Objective {
	case ObjectiveL2:
		m.BaseScore = weightedMean(train.Y, train.Weights)
	case ObjectiveQuantile:
		m.BaseScore = weightedQuantile(train.Y, train.Weights, params.Alpha)
	}

	n := train.Len()
	preds := make([]float64, n)
	for i := range preds {
		preds[i] = m.BaseScore
	}
	var validPreds []float64
	if hasValid {
		validPreds = make([]float64, valid.Len())
		for i := range validPreds {
			validPreds[i] = m.BaseScore
		}
	}

	rng := rand.New(rand.NewSource(params.Seed))
	grad := make([]float64, n)
	hess := make([]float64, n)

	bestMetric := math.Inf(1)
	bestRound := -1

	for round := 0; round < params.NumRounds; round++ {
		computeGradients(params, &train, preds, grad, hess)

		gr := &grower{
			ds:       &train,
			grad:     grad,
			hess:     hess,
			params:   params,
			features: sampleFeatures(len(train.Features), params.FeatureFraction, rng),
			gains:    m.gains,
		}
		tree, leaves := gr.grow()

		if params.Objective == ObjectiveQuantile {
			renewQuantileLeaves(tree, leaves, &train, preds, params.Alpha)
		}

		// Fold shrinkage into the stored leaf values.
		for i := range tree.Nodes {
			if tree.Nodes[i].Feature < 0 {
				tree.Nodes[i].Value *= params.LearningRate
			}
		}

		m.Trees = append(m.Trees, *tree)
		for i := 0; i < n; i++ {
			preds[i] += tree.Predict(train.X[i])
		}

		if !hasValid {
			continue
		}
		for i := 0; i < valid.Len(); i++ {
			validPreds[i] += tree.Predict(valid.X[i])
		}
		metric := evalMetric(params, valid.Y, validPreds)
		if metric < bestMetric {
			bestMetric = metric
			bestRound = round
		}
		if params.EarlyStopping > 0 && round-bestRound >= params.EarlyStopping {
			break
		}
	}

	if hasValid && bestRound >= 0 {
		m.Trees = m.Trees[:bestRound+1]
		m.BestRound = bestRound
	} else {
		m.BestRound = len(m.Trees) - 1
	}

	return m, nil
}

// computeGradients fills weighted gradients and hessians for the round.
func computeGradients(params Params, ds *Dataset, preds, grad, hess []float64) {
	for i := range ds.Y {
		w := ds.weight(i)
		switch params.Objective {
		case ObjectiveL2:
			grad[i] = (preds[i] - ds.Y[i]) * w
			hess[i] = w
		case ObjectiveQuantile:
			if ds.Y[i] > preds[i] {
				grad[i] = -params.Alpha * w
			} else {
				grad[i] = (1 - params.Alpha) * w
			}
			hess[i] = w
		}
	}
}

// renewQuantileLeaves resets each leaf value to the weighted
// alpha-quantile of the residuals of the samples it holds. Pinball
// gradients shape the tree but give biased leaf magnitudes.
func renewQuantileLeaves(tree *Tree, leaves []*leafState, ds *Dataset, preds []float64, alpha float64) {
	for _, l := range leaves {
		if len(l.indices) == 0 {
			continue
		}
		residuals := make([]float64, len(l.indices))
		weights := make([]float64, len(l.indices))
		for k, i := range l.indices {
			residuals[k] = ds.Y[i] - preds[i]
			weights[k] = ds.weight(i)
		}
		tree.Nodes[l.nodeIdx].Value = weightedQuantile(residuals, weights, alpha)
	}
}

// evalMetric computes the validation metric: MAE for L2, mean pinball
// loss for quantile.
func evalMetric(params Params, y, preds []float64) float64 {
	var sum float64
	for i := range y {
		diff := y[i] - preds[i]
		switch params.Objective {
		case ObjectiveQuantile:
			if diff >= 0 {
				sum += params.Alpha * diff
			} else {
				sum += (params.Alpha - 1) * diff
			}
		default:
			sum += math.Abs(diff)
		}
	}
	return sum / float64(len(y))
}

// sampleFeatures picks the per-tree column subset.
func sampleFeatures(total int, fraction float64, rng *rand.Rand) []int {
	k := int(math.Round(fraction * float64(total)))
	if k < 1 {
		k = 1
	}
	if k >= total {
		cols := make([]int, total)
		for i := range cols {
			cols[i] = i
		}
		return cols
	}
	perm := rng.Perm(total)
	return perm[:k]
}

// Predict returns the model output for one feature row, ordered as
// FeatureNames. Missing values must be NaN.
func (m *Model) Predict(row []float64) float64 {
	out := m.BaseScore
	for i := range m.Trees {
		out += m.Trees[i].Predict(row)
	}
	return out
}

// PredictBatch predicts every row of a matrix.
func (m *Model) PredictBatch(X [][]float64) []float64 {
	out := make([]float64, len(X))
	for i, row := range X {
		out[i] = m.Predict(row)
	}
	return out
}

// Importances returns total split gain per feature name.
func (m *Model) Importances() map[string]float64 {
	out := make(map[string]float64, len(m.gains))
	if m.gains != nil {
		for f, g := range m.gains {
			out[m.FeatureNames[f]] = g
		}
		return out
	}
	// Model loaded from JSON: recompute from tree structure. Gains are
	// not serialised, so fall back to split counts.
	for _, t := range m.Trees {
		for _, n := range t.Nodes {
			if n.Feature >= 0 {
				out[m.FeatureNames[n.Feature]] += 1
			}
		}
	}
	return out
}

// ToJSON serialises the fitted model.
func (m *Model) ToJSON() ([]byte, error) {
	return json.MarshalIndent(m, "", " ")
}

// FromJSON loads a serialised model.
func FromJSON(data []byte) (*Model, error) {
	var m Model
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("gbm: failed to decode model: %w", err)
	}
	return &m, nil
}
