package gbm

import (
	"fmt"
	"math"
	"sort"
)

// Dataset is a dense feature matrix with targets and optional sample
// weights. Missing feature values are represented as NaN and routed at
// prediction time by the per-split learned default direction.
type Dataset struct {
	Features []string    // column names, len == cols
	X        [][]float64 // row-major, len == rows
	Y        []float64
	Weights  []float64 // nil means uniform
}

// Len returns the number of rows.
func (d *Dataset) Len() int { return len(d.X) }

func (d *Dataset) validate() error {
	if len(d.X) == 0 {
		return fmt.Errorf("gbm: empty dataset")
	}
	if len(d.Y) != len(d.X) {
		return fmt.Errorf("gbm: %d rows but %d targets", len(d.X), len(d.Y))
	}
	if d.Weights != nil && len(d.Weights) != len(d.X) {
		return fmt.Errorf("gbm: %d rows but %d weights", len(d.X), len(d.Weights))
	}
	cols := len(d.Features)
	for i, row := range d.X {
		if len(row) != cols {
			return fmt.Errorf("gbm: row %d has %d columns, want %d", i, len(row), cols)
		}
	}
	for i, y := range d.Y {
		if math.IsNaN(y) || math.IsInf(y, 0) {
			return fmt.Errorf("gbm: target %d is not finite", i)
		}
	}
	return nil
}

func (d *Dataset) weight(i int) float64 {
	if d.Weights == nil {
		return 1.0
	}
	return d.Weights[i]
}

// weightedMean returns the weighted average of y over the given indices.
func weightedMean(y, w []float64) float64 {
	var sum, wsum float64
	for i, v := range y {
		wi := 1.0
		if w != nil {
			wi = w[i]
		}
		sum += v * wi
		wsum += wi
	}
	if wsum == 0 {
		return 0
	}
	return sum / wsum
}

// weightedQuantile returns the weighted alpha-quantile of values.
func weightedQuantile(values, weights []float64, alpha float64) float64 {
	if len(values) == 0 {
		return 0
	}
	type vw struct {
		v, w float64
	}
	pairs := make([]vw, len(values))
	var total float64
	for i, v := range values {
		wi := 1.0
		if weights != nil {
			wi = weights[i]
		}
		pairs[i] = vw{v, wi}
		total += wi
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].v < pairs[j].v })

	threshold := alpha * total
	var cum float64
	for _, p := range pairs {
		cum += p.w
		if cum >= threshold {
			return p.v
		}
	}
	return pairs[len(pairs)-1].v
}
