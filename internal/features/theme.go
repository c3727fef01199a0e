package features

import (
	"math"
	"sort"

	"github.com/hadleybricks/brickvest/internal/contracts"
)

// minThemeComparables is the minimum number of prior same-theme rows
// for the mean/median/std theme features to materialise. The sample
// size itself is always recorded.
const minThemeComparables = 3

// ThemeStats holds per-theme, per-horizon appreciation statistics
// computed over a training set. Used for live scoring where no
// lookback applies.
type ThemeStats struct {
	byTheme map[string]map[contracts.Horizon]themeAgg
}

type themeAgg struct {
	mean   float64
	median float64
	std    float64
	n      int
}

// SampleSize returns how many labelled rows a theme contributed at the
// 1yr horizon; the scorer's thin-data risk flag reads this.
func (s *ThemeStats) SampleSize(theme string) int {
	if s == nil || s.byTheme == nil {
		return 0
	}
	return s.byTheme[theme][contracts.Horizon1yr].n
}

// ComputeThemeStats aggregates every labelled row per theme and
// horizon. No lookback: this is the live-scoring view, where the whole
// training history is legitimately in the past.
func ComputeThemeStats(rows []contracts.TrainingRow) *ThemeStats {
	byTheme := make(map[string]map[contracts.Horizon]themeAgg)
	for _, h := range contracts.Horizons {
		grouped := make(map[string][]float64)
		for i := range rows {
			if t := rows[i].Target(h); t != nil {
				grouped[rows[i].Theme] = append(grouped[rows[i].Theme], *t)
			}
		}
		for theme, targets := range grouped {
			if byTheme[theme] == nil {
				byTheme[theme] = make(map[contracts.Horizon]themeAgg)
			}
			byTheme[theme][h] = aggregate(targets)
		}
	}
	return &ThemeStats{byTheme: byTheme}
}

// fill writes a theme's statistics into a feature vector. Aggregates
// below the comparable floor leave the stat features null but still
// record the sample size.
func (s *ThemeStats) fill(theme string, out map[string]*float64) {
	for _, h := range contracts.Horizons {
		suffix := string(h)
		agg, ok := s.byTheme[theme][h]
		out[ThemeFeatureName("theme_sample_size", suffix)] = fptr(float64(agg.n))
		if !ok || agg.n < minThemeComparables {
			out[ThemeFeatureName("theme_mean_log", suffix)] = nil
			out[ThemeFeatureName("theme_median_log", suffix)] = nil
			out[ThemeFeatureName("theme_std_log", suffix)] = nil
			continue
		}
		out[ThemeFeatureName("theme_mean_log", suffix)] = fptr(agg.mean)
		out[ThemeFeatureName("theme_median_log", suffix)] = fptr(agg.median)
		out[ThemeFeatureName("theme_std_log", suffix)] = fptr(agg.std)
	}
}

// themeLookback computes theme-historical features for training rows
// with a strict exit-date lookback: row i only ever sees same-theme
// rows whose exit date is strictly earlier. Rows retiring on the same
// day cannot see each other.
type themeLookback struct {
	// per theme: rows sorted ascending by exit date
	sorted map[string][]*contracts.TrainingRow
}

func newThemeLookback(rows []contracts.TrainingRow) *themeLookback {
	byTheme := make(map[string][]*contracts.TrainingRow)
	for i := range rows {
		byTheme[rows[i].Theme] = append(byTheme[rows[i].Theme], &rows[i])
	}
	for _, group := range byTheme {
		sort.Slice(group, func(a, b int) bool {
			return group[a].ExitDate.Before(group[b].ExitDate)
		})
	}
	return &themeLookback{sorted: byTheme}
}

// fill writes the strictly-prior theme statistics for one row.
func (l *themeLookback) fill(row *contracts.TrainingRow, out map[string]*float64) {
	group := l.sorted[row.Theme]

	// First index whose exit date is >= this row's: everything before
	// it is strictly earlier.
	boundary := sort.Search(len(group), func(i int) bool {
		return !group[i].ExitDate.Before(row.ExitDate)
	})

	for _, h := range contracts.Horizons {
		suffix := string(h)
		targets := make([]float64, 0, boundary)
		for i := 0; i < boundary; i++ {
			if t := group[i].Target(h); t != nil {
				targets = append(targets, *t)
			}
		}
		out[ThemeFeatureName("theme_sample_size", suffix)] = fptr(float64(len(targets)))
		if len(targets) < minThemeComparables {
			out[ThemeFeatureName("theme_mean_log", suffix)] = nil
			out[ThemeFeatureName("theme_median_log", suffix)] = nil
			out[ThemeFeatureName("theme_std_log", suffix)] = nil
			continue
		}
		agg := aggregate(targets)
		out[ThemeFeatureName("theme_mean_log", suffix)] = fptr(agg.mean)
		out[ThemeFeatureName("theme_median_log", suffix)] = fptr(agg.median)
		out[ThemeFeatureName("theme_std_log", suffix)] = fptr(agg.std)
	}
}

func aggregate(targets []float64) themeAgg {
	n := len(targets)
	agg := themeAgg{n: n}
	if n == 0 {
		return agg
	}
	agg.mean = meanOf(targets)
	agg.median = medianOf(targets)
	if n >= 2 {
		var ss float64
		for _, t := range targets {
			d := t - agg.mean
			ss += d * d
		}
		agg.std = math.Sqrt(ss / float64(n-1))
	}
	return agg
}
