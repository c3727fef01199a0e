// Package training implements the walk-forward trainer: matrix
// preparation, TPE hyperparameter search over fixed retirement-year
// folds, and the final per-quantile fits.
package training

import (
	"math"
	"sort"

	"github.com/hadleybricks/brickvest/internal/contracts"
	"github.com/hadleybricks/brickvest/internal/features"
)

// Matrix is a dense training view of the labelled rows for one
// horizon. Missing feature values are NaN until imputed.
type Matrix struct {
	Features []string
	X        [][]float64
	Y        []float64
	Weights  []float64
	Years    []int // retirement year per row, drives fold membership
	Sets     []string
}

// Len returns the number of rows.
func (m *Matrix) Len() int { return len(m.X) }

// buildMatrix extracts the rows with a target for the horizon. Sample
// weights upweight recent retirements.
func buildMatrix(rows []contracts.TrainingRow, h contracts.Horizon) *Matrix {
	names := features.Names()
	m := &Matrix{Features: names}
	for i := range rows {
		target := rows[i].Target(h)
		if target == nil {
			continue
		}
		vec := make([]float64, len(names))
		for j, name := range names {
			if v := rows[i].Features[name]; v != nil {
				vec[j] = *v
			} else {
				vec[j] = math.NaN()
			}
		}
		m.X = append(m.X, vec)
		m.Y = append(m.Y, *target)
		m.Weights = append(m.Weights, recencyWeight(rows[i].RetirementYear))
		m.Years = append(m.Years, rows[i].RetirementYear)
		m.Sets = append(m.Sets, rows[i].SetNumber)
	}
	return m
}

func recencyWeight(year int) float64 {
	if year >= contracts.RecencyMinYear {
		return contracts.RecencyWeight
	}
	return 1.0
}

// subset returns the rows whose retirement year satisfies the predicate.
func (m *Matrix) subset(keep func(year int) bool) *Matrix {
	out := &Matrix{Features: m.Features}
	for i := range m.X {
		if !keep(m.Years[i]) {
			continue
		}
		out.X = append(out.X, m.X[i])
		out.Y = append(out.Y, m.Y[i])
		out.Weights = append(out.Weights, m.Weights[i])
		out.Years = append(out.Years, m.Years[i])
		out.Sets = append(out.Sets, m.Sets[i])
	}
	return out
}

// dropDuplicateColumns removes columns whose values are identical to
// an earlier column, comparing NaN as equal. Duplicate columns make
// split gains arbitrary between twins.
func (m *Matrix) dropDuplicateColumns() {
	nCols := len(m.Features)
	keep := make([]bool, nCols)
	for j := 0; j < nCols; j++ {
		keep[j] = true
		for k := 0; k < j; k++ {
			if !keep[k] {
				continue
			}
			if columnsEqual(m.X, j, k) {
				keep[j] = false
				break
			}
		}
	}

	var names []string
	for j, k := range keep {
		if k {
			names = append(names, m.Features[j])
		}
	}
	if len(names) == nCols {
		return
	}
	for i := range m.X {
		vec := make([]float64, 0, len(names))
		for j := range keep {
			if keep[j] {
				vec = append(vec, m.X[i][j])
			}
		}
		m.X[i] = vec
	}
	m.Features = names
}

func columnsEqual(X [][]float64, a, b int) bool {
	for i := range X {
		va, vb := X[i][a], X[i][b]
		if math.IsNaN(va) && math.IsNaN(vb) {
			continue
		}
		if va != vb {
			return false
		}
	}
	return true
}

// columnMedians computes the per-column median of non-NaN values. A
// fully missing column gets 0.
func columnMedians(X [][]float64, nCols int) []float64 {
	medians := make([]float64, nCols)
	col := make([]float64, 0, len(X))
	for j := 0; j < nCols; j++ {
		col = col[:0]
		for i := range X {
			if v := X[i][j]; !math.IsNaN(v) {
				col = append(col, v)
			}
		}
		if len(col) == 0 {
			medians[j] = 0
			continue
		}
		sort.Float64s(col)
		n := len(col)
		if n%2 == 1 {
			medians[j] = col[n/2]
		} else {
			medians[j] = (col[n/2-1] + col[n/2]) / 2
		}
	}
	return medians
}

// imputed returns a deep copy of the matrix with NaN values replaced
// by the given medians. Medians must come from the training split to
// keep validation rows out of the statistics.
func (m *Matrix) imputed(medians []float64) *Matrix {
	out := &Matrix{
		Features: m.Features,
		Y:        m.Y,
		Weights:  m.Weights,
		Years:    m.Years,
		Sets:     m.Sets,
	}
	out.X = make([][]float64, len(m.X))
	for i := range m.X {
		vec := make([]float64, len(m.X[i]))
		for j, v := range m.X[i] {
			if math.IsNaN(v) {
				vec[j] = medians[j]
			} else {
				vec[j] = v
			}
		}
		out.X[i] = vec
	}
	return out
}
