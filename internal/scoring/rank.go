// Package scoring turns fitted quantile models into per-set investment
// predictions: appreciation forecasts, confidence, composite score and
// risk flags.
package scoring

import "sort"

// PercentileRanks computes average-tie percentile ranks in (0, 1].
// A nil entry means the metric is missing for that item and gets the
// neutral rank 0.5.
func PercentileRanks(values []*float64) []float64 {
	n := len(values)
	ranks := make([]float64, n)

	present := make([]int, 0, n)
	for i, v := range values {
		if v == nil {
			ranks[i] = 0.5
		} else {
			present = append(present, i)
		}
	}
	if len(present) == 0 {
		return ranks
	}

	sort.Slice(present, func(a, b int) bool {
		return *values[present[a]] < *values[present[b]]
	})

	total := float64(len(present))
	i := 0
	for i < len(present) {
		j := i
		for j+1 < len(present) && *values[present[j+1]] == *values[present[i]] {
			j++
		}
		// Average rank across the tie group, 1-based.
		avgRank := (float64(i+1) + float64(j+1)) / 2
		for k := i; k <= j; k++ {
			ranks[present[k]] = avgRank / total
		}
		i = j + 1
	}
	return ranks
}
