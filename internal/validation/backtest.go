package validation

import (
	"fmt"
	"sort"

	"github.com/hadleybricks/brickvest/internal/contracts"
	"github.com/hadleybricks/brickvest/internal/scoring"
)

// BacktestFold is one test year's ranking outcome.
type BacktestFold struct {
	TestYear  int `json:"test_year"`
	TrainRows int `json:"train_rows"`
	TestRows  int `json:"test_rows"`
	TopN      int `json:"top_n"`

	TopMeanPct    float64 `json:"top_mean_pct"`
	TopMedianPct  float64 `json:"top_median_pct"`
	TopWinRate    float64 `json:"top_win_rate"`
	BottomMeanPct float64 `json:"bottom_mean_pct"`
	BottomMedianPct float64 `json:"bottom_median_pct"`
	MiddleMeanPct float64 `json:"middle_mean_pct"`
	SeparationPP  float64 `json:"separation_pp"`
}

// BacktestResult aggregates the per-fold outcomes.
type BacktestResult struct {
	Horizon       string         `json:"horizon"`
	RequestedTopN int            `json:"requested_top_n"`
	Folds         []BacktestFold `json:"folds"`
	FoldsSkipped  int            `json:"folds_skipped"`

	AvgTopMeanPct    float64 `json:"avg_top_mean_pct"`
	AvgBottomMeanPct float64 `json:"avg_bottom_mean_pct"`
	AvgSeparationPP  float64 `json:"avg_separation_pp"`
	AvgTopWinRate    float64 `json:"avg_top_win_rate"`
}

// runBacktest answers: had we bought the model's top picks in each
// historical year, how would they have appreciated versus its bottom
// picks? 1yr horizon only.
func runBacktest(cfg Config, rows []contracts.TrainingRow) (*BacktestResult, error) {
	view := buildView(rows, contracts.Horizon1yr)
	if len(view.X) < cfg.MinHorizonRows {
		return nil, fmt.Errorf("backtest needs %d labelled 1yr rows, have %d", cfg.MinHorizonRows, len(view.X))
	}

	result := &BacktestResult{Horizon: string(contracts.Horizon1yr), RequestedTopN: cfg.TopN}
	for _, fold := range cfg.Folds {
		predRows, ok, err := foldPredictions(cfg, view, fold, cfg.MinBacktestTest)
		if err != nil {
			return nil, fmt.Errorf("fold %d: %w", fold.TestYear, err)
		}
		if !ok {
			result.FoldsSkipped++
			continue
		}

		foldRes, ok := backtestFold(fold, predRows, cfg.TopN)
		if !ok {
			result.FoldsSkipped++
			continue
		}
		foldRes.TrainRows = countTrainRows(view, fold)
		result.Folds = append(result.Folds, foldRes)
	}

	var topMeans, bottomMeans, seps, winRates []float64
	for _, f := range result.Folds {
		topMeans = append(topMeans, f.TopMeanPct)
		bottomMeans = append(bottomMeans, f.BottomMeanPct)
		seps = append(seps, f.SeparationPP)
		winRates = append(winRates, f.TopWinRate)
	}
	result.AvgTopMeanPct = meanFloat(topMeans)
	result.AvgBottomMeanPct = meanFloat(bottomMeans)
	result.AvgSeparationPP = meanFloat(seps)
	result.AvgTopWinRate = meanFloat(winRates)
	return result, nil
}

// backtestFold ranks one test year by composite score and compares the
// top, bottom and middle groups on realised appreciation.
func backtestFold(fold contracts.Fold, predRows []foldRow, requestedTopN int) (BacktestFold, bool) {
	// Effective group size shrinks with small test years so top and
	// bottom never overlap.
	topN := requestedTopN
	if third := len(predRows) / 3; third < topN {
		topN = third
	}
	if topN < 5 {
		return BacktestFold{}, false
	}

	scores := compositeScores(predRows)
	order := make([]int, len(predRows))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool { return scores[order[a]] > scores[order[b]] })

	actual := func(indices []int) []float64 {
		out := make([]float64, len(indices))
		for i, idx := range indices {
			out[i] = predRows[idx].ActualPct()
		}
		return out
	}

	top := actual(order[:topN])
	bottom := actual(order[len(order)-topN:])
	middle := actual(order[topN : len(order)-topN])

	res := BacktestFold{
		TestYear:        fold.TestYear,
		TestRows:        len(predRows),
		TopN:            topN,
		TopMeanPct:      meanFloat(top),
		TopMedianPct:    medianFloat(top),
		TopWinRate:      winRate(top),
		BottomMeanPct:   meanFloat(bottom),
		BottomMedianPct: medianFloat(bottom),
		MiddleMeanPct:   meanFloat(middle),
	}
	res.SeparationPP = res.TopMeanPct - res.BottomMeanPct
	return res, true
}

// compositeScores applies the production score blend to fold
// predictions, ranking within the test cohort.
func compositeScores(predRows []foldRow) []float64 {
	n := len(predRows)
	apps := make([]*float64, n)
	profits := make([]*float64, n)
	riskAdj := make([]*float64, n)
	confs := make([]float64, n)
	for i := range predRows {
		app := predRows[i].PredictedPct()
		conf := 1.0 / (1.0 + abs(predRows[i].P75Log-predRows[i].P25Log))
		profit := predRows[i].RRP * app / 100
		ra := app * conf

		apps[i] = &app
		profits[i] = &profit
		riskAdj[i] = &ra
		confs[i] = conf
	}

	appRanks := scoring.PercentileRanks(apps)
	profitRanks := scoring.PercentileRanks(profits)
	riskRanks := scoring.PercentileRanks(riskAdj)

	w := contracts.DefaultScoreWeights
	scores := make([]float64, n)
	for i := range scores {
		scores[i] = 10 * (w.Appreciation*appRanks[i] +
			w.Confidence*confs[i] +
			w.Profit*profitRanks[i] +
			w.RiskAdjusted*riskRanks[i])
	}
	return scores
}

func countTrainRows(view *matrixView, fold contracts.Fold) int {
	n := 0
	for _, y := range view.Years {
		if y <= fold.TrainEndYear {
			n++
		}
	}
	return n
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
