package contracts

import (
	"fmt"
	"math"
	"time"
)

// Horizon is a post-retirement prediction horizon.
type Horizon string

const (
	Horizon6m  Horizon = "6m"
	Horizon1yr Horizon = "1yr"
	Horizon2yr Horizon = "2yr"
	Horizon3yr Horizon = "3yr"
)

// Horizons lists the prediction horizons in ascending order.
var Horizons = []Horizon{Horizon6m, Horizon1yr, Horizon2yr, Horizon3yr}

// Milestone describes a price-observation window relative to a set's
// exit date. A milestone price is the median of snapshots inside
// [Offset-HalfWidth, Offset+HalfWidth] days, requiring MinSnapshots.
type Milestone struct {
	Name       string
	Horizon    Horizon // empty for the retirement milestone
	OffsetDays int
	HalfWidth  int
}

// MinWindowSnapshots is the minimum snapshot count for a milestone
// window to produce a price.
const MinWindowSnapshots = 3

// Milestones lists the observation windows, retirement first.
var Milestones = []Milestone{
	{Name: "retirement", Horizon: "", OffsetDays: 0, HalfWidth: 15},
	{Name: "6m", Horizon: Horizon6m, OffsetDays: 180, HalfWidth: 30},
	{Name: "1yr", Horizon: Horizon1yr, OffsetDays: 365, HalfWidth: 30},
	{Name: "2yr", Horizon: Horizon2yr, OffsetDays: 730, HalfWidth: 30},
	{Name: "3yr", Horizon: Horizon3yr, OffsetDays: 1095, HalfWidth: 30},
}

// Quantiles are the regression quantiles trained per horizon.
var Quantiles = []float64{0.25, 0.50, 0.75}

// RecentRetiredCutoff: retired sets that exited on or after this date
// are still scoreable; older retirements are history, not inventory.
var RecentRetiredCutoff = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

// Fold is one walk-forward cross-validation split over retirement years.
type Fold struct {
	TrainEndYear int // train on retirement_year <= TrainEndYear
	ValYear      int
	TestYear     int
}

// CVFolds are the fixed walk-forward splits used by the trainer's
// hyperparameter search and by all validation protocols.
var CVFolds = []Fold{
	{TrainEndYear: 2018, ValYear: 2019, TestYear: 2020},
	{TrainEndYear: 2019, ValYear: 2020, TestYear: 2021},
	{TrainEndYear: 2020, ValYear: 2021, TestYear: 2022},
	{TrainEndYear: 2021, ValYear: 2022, TestYear: 2023},
	{TrainEndYear: 2022, ValYear: 2023, TestYear: 2024},
}

// Pipeline-wide constants.
const (
	ModelVersion = "v2.1"

	MinRRPGBP   = 5.0  // sets cheaper than this are excluded everywhere
	MinExitYear = 2012 // earlier retirements have no usable price history

	// Winsorisation of target columns.
	WinsorLowerQ  = 0.02
	WinsorUpperQ  = 0.98
	MinWinsorRows = 10

	// Final model fit.
	FinalTrainMaxYear = 2023 // retirement_year <= this trains the shipped models
	HoldoutMinYear    = 2024 // held out for reported metrics only
	RecencyWeight     = 2.0
	RecencyMinYear    = 2020

	// Storage batching.
	PageSize        = 1000
	UpsertBatchSize = 200
)

// ScoreWeights are the composite-score blend weights. They must sum to 1.
type ScoreWeights struct {
	Appreciation float64
	Confidence   float64
	Profit       float64
	RiskAdjusted float64
}

// DefaultScoreWeights is the shipped composite blend.
var DefaultScoreWeights = ScoreWeights{
	Appreciation: 0.30,
	Confidence:   0.25,
	Profit:       0.25,
	RiskAdjusted: 0.20,
}

// Validate checks that the weights sum to 1.0 within tolerance.
func (w ScoreWeights) Validate() error {
	sum := w.Appreciation + w.Confidence + w.Profit + w.RiskAdjusted
	if math.Abs(sum-1.0) > 1e-9 {
		return fmt.Errorf("score weights must sum to 1.0, got %.6f", sum)
	}
	return nil
}

// LogToPct converts a log-appreciation target to percent appreciation.
func LogToPct(logRatio float64) float64 {
	return (math.Exp(logRatio) - 1.0) * 100.0
}

// PctToLog converts percent appreciation back to a log target.
func PctToLog(pct float64) float64 {
	return math.Log(1.0 + pct/100.0)
}

// LogToPrice converts a log-appreciation target to an absolute price.
func LogToPrice(logRatio, rrp float64) float64 {
	return rrp * math.Exp(logRatio)
}

// RetirementYear extracts the year component of an exit date.
func RetirementYear(exit time.Time) int {
	return exit.Year()
}

// RetirementQuarter returns the calendar quarter (1-4) of an exit date.
func RetirementQuarter(exit time.Time) int {
	return (int(exit.Month())-1)/3 + 1
}
