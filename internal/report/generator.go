package report

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/hadleybricks/brickvest/internal/contracts"
	"github.com/hadleybricks/brickvest/internal/validation"
	"github.com/hadleybricks/brickvest/pkg/logger"
)

const topListSize = 25

// Config locates the generator's inputs and outputs.
type Config struct {
	ResultsDir string // validator JSON output
	ReportsDir string
}

// Generator renders the markdown investment report.
type Generator struct {
	cfg         Config
	sets        contracts.SetRepository
	predictions contracts.PredictionRepository
	log         *logger.Logger
}

// New creates a report generator.
func New(cfg Config, sets contracts.SetRepository, predictions contracts.PredictionRepository, log *logger.Logger) *Generator {
	return &Generator{
		cfg:         cfg,
		sets:        sets,
		predictions: predictions,
		log:         log.WithField("component", "report"),
	}
}

// Run renders the report and writes it to the reports directory, both
// date-stamped and as the `latest` copy. Returns the stamped path.
func (g *Generator) Run(ctx context.Context) (string, error) {
	results, err := loadValidationResults(g.cfg.ResultsDir)
	if err != nil {
		return "", fmt.Errorf("failed to load validation results: %w", err)
	}
	if results.Backtest == nil && results.Calibration == nil && results.Baseline == nil {
		g.log.Warn("No validation results found, report will carry placeholders")
	}

	rows, err := g.topOpportunities(ctx)
	if err != nil {
		return "", err
	}

	body := g.render(results, rows, time.Now())

	if err := os.MkdirAll(g.cfg.ReportsDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create reports dir: %w", err)
	}
	stamped := filepath.Join(g.cfg.ReportsDir,
		fmt.Sprintf("investment_report_%s.md", time.Now().Format("20060102")))
	for _, path := range []string{stamped, filepath.Join(g.cfg.ReportsDir, "investment_report_latest.md")} {
		if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
			return "", fmt.Errorf("failed to write report: %w", err)
		}
	}

	g.log.WithFields(map[string]interface{}{
		"path":       stamped,
		"top_listed": len(rows),
	}).Info("Report written")
	return stamped, nil
}

// opportunity is one row of the top-25 buy list.
type opportunity struct {
	Rank       int
	SetNumber  string
	Name       string
	Theme      string
	RRP        float64
	Score      float64
	Confidence float64
	OneYearPct float64
	Cost       CostAnalysis
	RiskFlags  []string
}

// topOpportunities joins the highest-scored predictions with catalog
// metadata and computes fee-adjusted economics for each.
func (g *Generator) topOpportunities(ctx context.Context) ([]opportunity, error) {
	preds, err := g.predictions.ListRanked(ctx, topListSize*2, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to list predictions: %w", err)
	}
	if len(preds) == 0 {
		return nil, nil
	}

	scoreable, err := g.sets.ListScoreable(ctx, time.Time{})
	if err != nil {
		return nil, fmt.Errorf("failed to list sets: %w", err)
	}
	bySet := make(map[string]contracts.CatalogSet, len(scoreable))
	for _, s := range scoreable {
		bySet[s.SetNumber] = s
	}

	var rows []opportunity
	for _, p := range preds {
		if len(rows) == topListSize {
			break
		}
		set, ok := bySet[p.SetNumber]
		if !ok || set.RRPGBP == nil {
			continue
		}
		oneYear, ok := p.Horizons[contracts.Horizon1yr]
		if !ok {
			continue
		}

		// Buy at the current market price when one is known,
		// otherwise at RRP.
		buyPrice := *set.RRPGBP
		buySource := "RRP"
		if set.CurrentPrice != nil && *set.CurrentPrice > 0 {
			buyPrice = *set.CurrentPrice
			buySource = "latest snapshot"
		}

		cost, ok := analyseCost(buyPrice, buySource, oneYear.PredictedPrice)
		if !ok {
			continue
		}

		rows = append(rows, opportunity{
			Rank:       len(rows) + 1,
			SetNumber:  p.SetNumber,
			Name:       set.Name,
			Theme:      set.Theme,
			RRP:        *set.RRPGBP,
			Score:      p.CompositeScore,
			Confidence: oneYear.Confidence,
			OneYearPct: oneYear.AppreciationPct,
			Cost:       cost,
			RiskFlags:  p.RiskFlags,
		})
	}
	return rows, nil
}

// render builds the full markdown document.
func (g *Generator) render(results *validationResults, rows []opportunity, now time.Time) string {
	var b strings.Builder
	w := func(format string, args ...interface{}) {
		fmt.Fprintf(&b, format+"\n", args...)
	}

	w("# Collectible Set Investment Model %s", contracts.ModelVersion)
	w("")
	w("*Generated: %s*", now.Format("2006-01-02 15:04"))
	w("")
	w("---")

	renderMethodology(w)
	renderBacktest(w, results.Backtest)
	renderCalibration(w, results.Calibration)
	renderBaseline(w, results.Baseline)
	renderTopList(w, rows)
	renderLimitations(w)

	return b.String()
}

type writeLine func(format string, args ...interface{})

func renderMethodology(w writeLine) {
	w("")
	w("## Methodology")
	w("")
	w("For each prediction horizon, three gradient-boosted quantile models")
	w("predict the 25th, 50th and 75th percentiles of `log(price / RRP)`.")
	w("The median gives the point estimate; the interquartile range gives")
	w("the uncertainty. Percent appreciation is `(exp(log) - 1) * 100`.")
	w("")
	w("| Milestone | Days from exit | Window | Min snapshots |")
	w("|-----------|----------------|--------|---------------|")
	for _, m := range contracts.Milestones {
		w("| %s | %d | ±%dd | %d |", m.Name, m.OffsetDays, m.HalfWidth, contracts.MinWindowSnapshots)
	}
	w("")
	w("Training uses walk-forward cross-validation over retirement years:")
	w("")
	w("| Train (year ≤) | Validation | Test |")
	w("|----------------|------------|------|")
	for _, f := range contracts.CVFolds {
		w("| %d | %d | %d |", f.TrainEndYear, f.ValYear, f.TestYear)
	}
	w("")
	weights := contracts.DefaultScoreWeights
	w("The composite score blends percentile-ranked components:")
	w("")
	w("```")
	w("score = ( %.2f * rank(appreciation_1yr)", weights.Appreciation)
	w("        + %.2f * confidence_1yr", weights.Confidence)
	w("        + %.2f * rank(expected_profit)", weights.Profit)
	w("        + %.2f * rank(risk_adjusted) ) * 10", weights.RiskAdjusted)
	w("```")
	w("")
	w("Sets retired in %d or later carry %.0fx sample weight. Targets are", contracts.RecencyMinYear, contracts.RecencyWeight)
	w("winsorised at the %.0fth/%.0fth percentiles. Minimum RRP £%.0f,", contracts.WinsorLowerQ*100, contracts.WinsorUpperQ*100, contracts.MinRRPGBP)
	w("minimum retirement year %d.", contracts.MinExitYear)
	w("")
	w("---")
}

func renderBacktest(w writeLine, res *validation.BacktestResult) {
	w("")
	w("## Validation 1: Portfolio Backtest")
	w("")
	if res == nil {
		w("*No backtest results found. Run the validate command first.*")
		w("")
		w("---")
		return
	}
	w("For each historical fold the model ranks the test year's sets and")
	w("the realised 1yr appreciation of its top-%d picks is compared with", res.RequestedTopN)
	w("its bottom picks.")
	w("")
	w("| Metric | Value |")
	w("|--------|-------|")
	w("| Folds evaluated | %d |", len(res.Folds))
	w("| Folds skipped | %d |", res.FoldsSkipped)
	w("| Avg top-N appreciation | %.1f%% |", res.AvgTopMeanPct)
	w("| Avg bottom-N appreciation | %.1f%% |", res.AvgBottomMeanPct)
	w("| Avg separation | %.1f pp |", res.AvgSeparationPP)
	w("| Avg top-N win rate | %.0f%% |", res.AvgTopWinRate*100)
	w("")
	if len(res.Folds) > 0 {
		w("| Test year | N | Top mean | Bottom mean | Middle mean | Separation | Top win rate |")
		w("|-----------|---|----------|-------------|-------------|------------|--------------|")
		for _, f := range res.Folds {
			w("| %d | %d | %.1f%% | %.1f%% | %.1f%% | %.1f pp | %.0f%% |",
				f.TestYear, f.TopN, f.TopMeanPct, f.BottomMeanPct,
				f.MiddleMeanPct, f.SeparationPP, f.TopWinRate*100)
		}
		w("")
	}
	w("---")
}

func renderCalibration(w writeLine, res *validation.CalibrationResult) {
	w("")
	w("## Validation 2: Quantile Calibration")
	w("")
	if res == nil {
		w("*No calibration results found. Run the validate command first.*")
		w("")
		w("---")
		return
	}
	w("Well-calibrated quantiles mean 25%% of realised outcomes fall below")
	w("the p25 prediction, 50%% below p50, 75%% below p75, and half inside")
	w("the interquartile range. Coverage is pooled across folds.")
	w("")
	for _, h := range res.Horizons {
		w("### Horizon %s — %s", h.Horizon, h.Classification)
		w("")
		w("| Quantile | Target | Pooled coverage |")
		w("|----------|--------|-----------------|")
		w("| p25 | 25%% | %.1f%% |", h.Pooled.BelowP25*100)
		w("| p50 | 50%% | %.1f%% |", h.Pooled.BelowP50*100)
		w("| p75 | 75%% | %.1f%% |", h.Pooled.BelowP75*100)
		w("| IQR | 50%% | %.1f%% |", h.Pooled.WithinIQR*100)
		w("")
		w("Pooled samples: %d. Median IQR width %.1f pp, mean %.1f pp.",
			h.Pooled.N, h.MedianIQRWidthPP, h.MeanIQRWidthPP)
		w("")
	}
	if len(res.HorizonsSkipped) > 0 {
		w("Skipped for lack of data: %s.", strings.Join(res.HorizonsSkipped, ", "))
		w("")
	}
	w("---")
}

func renderBaseline(w writeLine, res *validation.BaselineResult) {
	w("")
	w("## Validation 3: Baseline Heuristic Comparison")
	w("")
	if res == nil {
		w("*No baseline results found. Run the validate command first.*")
		w("")
		w("---")
		return
	}
	w("The model's top picks against rules a collector could apply without")
	w("any model. Each strategy is scored within every test year, then")
	w("averaged across the %d evaluated folds.", res.FoldsEvaluated)
	w("")
	w("| Strategy | Total N | Avg mean | Avg median | Avg win rate | Folds |")
	w("|----------|---------|----------|------------|--------------|-------|")
	for _, s := range res.Strategies {
		w("| %s | %d | %.1f%% | %.1f%% | %.0f%% | %d |",
			s.Strategy, s.TotalN, s.AvgMeanPct, s.AvgMedianPct,
			s.AvgWinRate*100, s.FoldsWithData)
	}
	w("")
	for _, f := range res.Folds {
		w("- %d: model alpha %.1f pp over %d sets (top %d)",
			f.TestYear, f.ModelAlphaPP, f.TestRows, f.TopN)
	}
	w("")
	w("**Model alpha over random selection: %.1f pp (fold average)**", res.ModelAlphaPP)
	w("")
	w("---")
}

func renderTopList(w writeLine, rows []opportunity) {
	w("")
	w("## Top %d Investment Opportunities", topListSize)
	w("")
	w("Fee assumptions: %.0f%% referral fee plus £%.2f fulfilment per", ReferralFeePct*100, FulfilmentFee)
	w("unit. VAT and storage are excluded, so realised margins will be")
	w("lower. Buy price is the latest observed market price, falling back")
	w("to RRP.")
	w("")
	if len(rows) == 0 {
		w("*No scored predictions available. Run the score command first.*")
		w("")
		w("---")
		return
	}
	w("| # | Set | Name | Theme | RRP | Buy now | Pred sell (1yr) | COG%% | Net ROI%% | Score | Conf |")
	w("|---|-----|------|-------|-----|---------|-----------------|------|----------|-------|------|")
	for _, r := range rows {
		w("| %d | %s | %s | %s | £%.0f | £%.2f | £%.2f | %.0f%% | %.0f%% | %.1f | %.2f |",
			r.Rank, r.SetNumber, truncate(r.Name, 30), truncate(r.Theme, 15),
			r.RRP, r.Cost.BuyPrice, r.Cost.SellPrice, r.Cost.COGPct,
			r.Cost.ROIPct, r.Score, r.Confidence)
	}
	w("")

	totalCost, totalProfit := 0.0, 0.0
	roi := make([]float64, 0, len(rows))
	for _, r := range rows {
		totalCost += r.Cost.BuyPrice
		totalProfit += r.Cost.GrossProfit
		roi = append(roi, r.Cost.ROIPct)
	}
	w("Buying all %d would need £%.2f of capital for a predicted gross", len(rows), totalCost)
	w("profit of £%.2f at 1yr (median ROI %.1f%%).", totalProfit, median(roi))
	w("")

	flagged := 0
	for _, r := range rows {
		if len(r.RiskFlags) > 0 {
			flagged++
		}
	}
	if flagged > 0 {
		w("%d of the %d carry at least one risk flag:", flagged, len(rows))
		w("")
		for _, r := range rows {
			if len(r.RiskFlags) > 0 {
				w("- %s: %s", r.SetNumber, strings.Join(r.RiskFlags, ", "))
			}
		}
		w("")
	}
	w("---")
}

func renderLimitations(w writeLine) {
	w("")
	w("## Known Limitations")
	w("")
	w("- **Survivorship bias**: training rows exist only for sets liquid")
	w("  enough to generate price snapshots; illiquid sets are missing.")
	w("- **Small samples**: roughly a thousand rows across the folds puts")
	w("  the models in overfitting territory despite regularisation, and")
	w("  niche themes may have fewer than five comparables.")
	w("- **Dual prediction regime**: sets without marketplace history get")
	w("  NaN trajectory features routed by the trees' default directions,")
	w("  an accuracy regime the validation does not separate out.")
	w("- **Component correlation**: expected profit is appreciation times")
	w("  RRP, so for similarly priced sets appreciation's effective weight")
	w("  in the composite exceeds its nominal %.0f%%.", contracts.DefaultScoreWeights.Appreciation*100)
	w("- **Single marketplace**: all pricing comes from one marketplace's")
	w("  buy box; collector-to-collector prices are not represented.")
	w("")
	w("*Model version: %s*", contracts.ModelVersion)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}
