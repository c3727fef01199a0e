package validation

import (
	"fmt"
	"sort"

	"github.com/hadleybricks/brickvest/internal/contracts"
)

// Baseline strategy names.
const (
	StrategyModelTopN        = "model_top_n"
	StrategyLicensedUnder100 = "licensed_under_100"
	StrategyShortRun         = "licensed_short_run"
	StrategyExclusive        = "exclusive_licensed"
	StrategyRandom           = "random"
)

const (
	baselineMaxRRP           = 100.0
	baselineMaxRunMonths     = 24.0
	baselineMinExclusiveTier = 3.0
	baselineMinTopN          = 3
)

// StrategyResult summarises realised appreciation of one buying rule
// within a single test year.
type StrategyResult struct {
	Strategy  string  `json:"strategy"`
	N         int     `json:"n"`
	MeanPct   float64 `json:"mean_pct"`
	MedianPct float64 `json:"median_pct"`
	StdPct    float64 `json:"std_pct"`
	WinRate   float64 `json:"win_rate"`
	BestPct   float64 `json:"best_pct"`
	WorstPct  float64 `json:"worst_pct"`
}

// BaselineFold is one test year's strategy comparison.
type BaselineFold struct {
	TestYear   int              `json:"test_year"`
	TestRows   int              `json:"test_rows"`
	TopN       int              `json:"top_n"`
	Strategies []StrategyResult `json:"strategies"`

	// ModelAlphaPP is the model picks' mean appreciation minus the
	// fold's all-sets mean, in percentage points.
	ModelAlphaPP float64 `json:"model_alpha_pp"`
}

// StrategyAggregate averages one strategy's per-fold results over the
// folds where it selected anything.
type StrategyAggregate struct {
	Strategy      string  `json:"strategy"`
	TotalN        int     `json:"total_n"`
	AvgMeanPct    float64 `json:"avg_mean_pct"`
	AvgMedianPct  float64 `json:"avg_median_pct"`
	AvgWinRate    float64 `json:"avg_win_rate"`
	FoldsWithData int     `json:"folds_with_data"`
}

// BaselineResult compares the model against naive heuristics, fold by
// fold, with fold-averaged aggregates.
type BaselineResult struct {
	Horizon        string              `json:"horizon"`
	Folds          []BaselineFold      `json:"folds"`
	FoldsEvaluated int                 `json:"folds_evaluated"`
	FoldsSkipped   int                 `json:"folds_skipped"`
	Strategies     []StrategyAggregate `json:"strategies"`

	// ModelAlphaPP is the per-fold alpha averaged over evaluated folds.
	ModelAlphaPP float64 `json:"model_alpha_pp"`
}

// heuristicStrategies are the no-model buying rules, evaluated within
// each test year.
var heuristicStrategies = []struct {
	name string
	pick func(r foldRow) bool
}{
	{StrategyLicensedUnder100, func(r foldRow) bool {
		return r.IsLicensed && r.RRP <= baselineMaxRRP
	}},
	{StrategyShortRun, func(r foldRow) bool {
		return r.IsLicensed && r.RRP <= baselineMaxRRP &&
			r.ProductionRun != nil && *r.ProductionRun <= baselineMaxRunMonths
	}},
	{StrategyExclusive, func(r foldRow) bool {
		return r.IsLicensed && r.ExclusivityTier != nil && *r.ExclusivityTier >= baselineMinExclusiveTier
	}},
}

// runBaseline asks whether the model beats rules a collector could
// apply without any model at all. Each fold is scored on its own test
// year, then strategies are compared on their fold averages. 1yr
// horizon only.
func runBaseline(cfg Config, rows []contracts.TrainingRow) (*BaselineResult, error) {
	view := buildView(rows, contracts.Horizon1yr)
	if len(view.X) < cfg.MinHorizonRows {
		return nil, fmt.Errorf("baseline needs %d labelled 1yr rows, have %d", cfg.MinHorizonRows, len(view.X))
	}

	result := &BaselineResult{Horizon: string(contracts.Horizon1yr)}
	for _, fold := range cfg.Folds {
		predRows, ok, err := foldPredictions(cfg, view, fold, cfg.MinBacktestTest)
		if err != nil {
			return nil, fmt.Errorf("fold %d: %w", fold.TestYear, err)
		}
		if !ok {
			result.FoldsSkipped++
			continue
		}

		foldRes, ok := baselineFold(fold, predRows, cfg.TopN)
		if !ok {
			result.FoldsSkipped++
			continue
		}
		result.Folds = append(result.Folds, foldRes)
	}
	if len(result.Folds) == 0 {
		return nil, fmt.Errorf("no fold met the baseline row gates")
	}

	result.FoldsEvaluated = len(result.Folds)
	result.Strategies = aggregateStrategies(result.Folds)

	var alphas []float64
	for _, f := range result.Folds {
		alphas = append(alphas, f.ModelAlphaPP)
	}
	result.ModelAlphaPP = meanFloat(alphas)
	return result, nil
}

// baselineFold evaluates every strategy on one test year. ok is false
// when the year is too small to give the model a meaningful pick list.
func baselineFold(fold contracts.Fold, predRows []foldRow, requestedTopN int) (BaselineFold, bool) {
	topN := requestedTopN
	if third := len(predRows) / 3; third < topN {
		topN = third
	}
	if topN < baselineMinTopN {
		return BaselineFold{}, false
	}

	order := make([]int, len(predRows))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool {
		return predRows[order[a]].PredictedPct() > predRows[order[b]].PredictedPct()
	})
	modelPicks := make([]float64, topN)
	for i, idx := range order[:topN] {
		modelPicks[i] = predRows[idx].ActualPct()
	}

	res := BaselineFold{
		TestYear: fold.TestYear,
		TestRows: len(predRows),
		TopN:     topN,
	}
	res.Strategies = append(res.Strategies, strategyStats(StrategyModelTopN, modelPicks))
	for _, s := range heuristicStrategies {
		var actuals []float64
		for _, r := range predRows {
			if s.pick(r) {
				actuals = append(actuals, r.ActualPct())
			}
		}
		res.Strategies = append(res.Strategies, strategyStats(s.name, actuals))
	}

	// Random baseline: the expected outcome of buying blindly is the
	// mean over every set in the test year.
	all := make([]float64, len(predRows))
	for i := range predRows {
		all[i] = predRows[i].ActualPct()
	}
	random := strategyStats(StrategyRandom, all)
	res.Strategies = append(res.Strategies, random)

	res.ModelAlphaPP = meanFloat(modelPicks) - random.MeanPct
	return res, true
}

// aggregateStrategies averages each strategy's fold results over the
// folds where it had picks.
func aggregateStrategies(folds []BaselineFold) []StrategyAggregate {
	order := []string{
		StrategyModelTopN, StrategyLicensedUnder100, StrategyShortRun,
		StrategyExclusive, StrategyRandom,
	}
	out := make([]StrategyAggregate, 0, len(order))
	for _, name := range order {
		agg := StrategyAggregate{Strategy: name}
		var means, medians, winRates []float64
		for _, f := range folds {
			for _, s := range f.Strategies {
				if s.Strategy != name || s.N == 0 {
					continue
				}
				agg.TotalN += s.N
				agg.FoldsWithData++
				means = append(means, s.MeanPct)
				medians = append(medians, s.MedianPct)
				winRates = append(winRates, s.WinRate)
			}
		}
		agg.AvgMeanPct = meanFloat(means)
		agg.AvgMedianPct = meanFloat(medians)
		agg.AvgWinRate = meanFloat(winRates)
		out = append(out, agg)
	}
	return out
}

func strategyStats(name string, actuals []float64) StrategyResult {
	res := StrategyResult{Strategy: name, N: len(actuals)}
	if len(actuals) == 0 {
		return res
	}
	res.MeanPct = meanFloat(actuals)
	res.MedianPct = medianFloat(actuals)
	res.StdPct = stdFloat(actuals)
	res.WinRate = winRate(actuals)
	res.BestPct = actuals[0]
	res.WorstPct = actuals[0]
	for _, v := range actuals {
		if v > res.BestPct {
			res.BestPct = v
		}
		if v < res.WorstPct {
			res.WorstPct = v
		}
	}
	return res
}
