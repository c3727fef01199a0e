package dataset

import (
	"sort"

	"github.com/hadleybricks/brickvest/internal/contracts"
)

// quantileLinear computes the q-quantile of sorted values with linear
// interpolation between closest ranks.
func quantileLinear(sorted []float64, q float64) float64 {
	n := len(sorted)
	if n == 1 {
		return sorted[0]
	}
	pos := q * float64(n-1)
	lo := int(pos)
	if lo >= n-1 {
		return sorted[n-1]
	}
	frac := pos - float64(lo)
	return sorted[lo] + frac*(sorted[lo+1]-sorted[lo])
}

// winsoriseTargets clips every target column to its [WinsorLowerQ,
// WinsorUpperQ] quantile range, computed over the column's non-null
// values. Columns with fewer than MinWinsorRows non-null values are
// left untouched. Returns per-horizon clipped counts.
func winsoriseTargets(rows []contracts.TrainingRow) map[contracts.Horizon]int {
	clipped := make(map[contracts.Horizon]int, len(contracts.Horizons))
	for _, h := range contracts.Horizons {
		values := make([]float64, 0, len(rows))
		for i := range rows {
			if t := rows[i].Target(h); t != nil {
				values = append(values, *t)
			}
		}
		if len(values) < contracts.MinWinsorRows {
			continue
		}
		sort.Float64s(values)
		lower := quantileLinear(values, contracts.WinsorLowerQ)
		upper := quantileLinear(values, contracts.WinsorUpperQ)

		for i := range rows {
			t := rows[i].Target(h)
			if t == nil {
				continue
			}
			switch {
			case *t < lower:
				rows[i].SetTarget(h, ptr(lower))
				clipped[h]++
			case *t > upper:
				rows[i].SetTarget(h, ptr(upper))
				clipped[h]++
			}
		}
	}
	return clipped
}
