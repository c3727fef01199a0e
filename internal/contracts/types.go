// Package contracts defines the shared domain types and repository
// interfaces used across the pipeline stages. Stages depend on this
// package only, never on each other's internals.
package contracts

import "time"

// SetStatus is the lifecycle status of a catalog set.
type SetStatus string

const (
	StatusAvailable    SetStatus = "available"
	StatusRetiringSoon SetStatus = "retiring_soon"
	StatusRetired      SetStatus = "retired"
)

// CatalogSet is a row from the brickset_sets table: one collectible
// product set with its catalog metadata and retail pricing.
type CatalogSet struct {
	SetNumber    string
	Name         string
	Theme        string
	Subtheme     *string
	YearReleased *int
	Pieces       *int
	Minifigs     *int

	RRPGBP       *float64 // UK retail price
	CurrentPrice *float64 // latest observed marketplace price

	Status     SetStatus
	LaunchDate *time.Time
	ExitDate   *time.Time // retirement date

	Rating    *float64
	WantCount *int
	OwnCount  *int
	AgeMin    *int

	// Box dimensions in cm.
	Width  *float64
	Height *float64
	Depth  *float64

	ExclusivityTier *string // retail, limited, lego_exclusive, park_exclusive, promotional
	ASIN            *string
}

// PriceSnapshot is one observed marketplace price point for a set.
type PriceSnapshot struct {
	SetNumber      string
	CapturedAt     time.Time
	Price          float64
	ListPrice      *float64
	SellerCount    *int
	BuyBoxIsAmazon *bool
	Source         string
}

// RowQuality classifies a training row by how many horizon targets it has.
type RowQuality string

const (
	QualityGood         RowQuality = "good"         // all 4 targets present
	QualityPartial      RowQuality = "partial"      // 1-3 targets present
	QualityInsufficient RowQuality = "insufficient" // no targets; never persisted
)

// TrainingRow is one labelled example: a retired set with its milestone
// prices, log-appreciation targets, and engineered feature vector.
// Milestone prices and targets are nil when the window had fewer than
// the minimum snapshot count.
type TrainingRow struct {
	SetNumber      string
	Theme          string
	Subtheme       *string
	ExitDate       time.Time
	RetirementYear int
	RRPGBP         float64

	PriceAtRetirement *float64
	Price6m           *float64
	Price1yr          *float64
	Price2yr          *float64
	Price3yr          *float64

	Target6m  *float64 // log(price_6m / rrp)
	Target1yr *float64
	Target2yr *float64
	Target3yr *float64

	Quality RowQuality

	// Features maps feature name to value; nil means missing. The key
	// set is the closed schema in internal/features.
	Features        map[string]*float64
	FeatureVersion  string
	FeaturesBuiltAt *time.Time
}

// Target returns the training target for a horizon, or nil.
func (r *TrainingRow) Target(h Horizon) *float64 {
	switch h {
	case Horizon6m:
		return r.Target6m
	case Horizon1yr:
		return r.Target1yr
	case Horizon2yr:
		return r.Target2yr
	case Horizon3yr:
		return r.Target3yr
	}
	return nil
}

// SetTarget stores a training target for a horizon.
func (r *TrainingRow) SetTarget(h Horizon, v *float64) {
	switch h {
	case Horizon6m:
		r.Target6m = v
	case Horizon1yr:
		r.Target1yr = v
	case Horizon2yr:
		r.Target2yr = v
	case Horizon3yr:
		r.Target3yr = v
	}
}

// MilestonePrice returns the median milestone price for a horizon, or nil.
func (r *TrainingRow) MilestonePrice(h Horizon) *float64 {
	switch h {
	case Horizon6m:
		return r.Price6m
	case Horizon1yr:
		return r.Price1yr
	case Horizon2yr:
		return r.Price2yr
	case Horizon3yr:
		return r.Price3yr
	}
	return nil
}

// SetMilestonePrice stores the median milestone price for a horizon.
func (r *TrainingRow) SetMilestonePrice(h Horizon, v *float64) {
	switch h {
	case Horizon6m:
		r.Price6m = v
	case Horizon1yr:
		r.Price1yr = v
	case Horizon2yr:
		r.Price2yr = v
	case Horizon3yr:
		r.Price3yr = v
	}
}

// HorizonForecast is the per-horizon output of the scorer for one set.
type HorizonForecast struct {
	Horizon Horizon

	// Raw model outputs in log space.
	P25Log float64
	P50Log float64
	P75Log float64

	// Derived values.
	AppreciationPct    float64 // (exp(p50) - 1) * 100
	AppreciationLowPct float64
	AppreciationHighPct float64
	PredictedPrice     float64 // rrp * exp(p50)
	Confidence         float64 // 1 / (1 + |p75 - p25|)
}

// Prediction is the scorer's full output for one set.
type Prediction struct {
	SetNumber    string
	ModelVersion string
	ScoredAt     time.Time

	Horizons map[Horizon]HorizonForecast

	// 1yr-derived investment metrics.
	ExpectedProfit float64 // rrp * appreciation_1yr / 100
	RiskAdjusted   float64 // appreciation_1yr * confidence_1yr

	CompositeScore float64 // 0-10
	RiskFlags      []string

	ThemeSampleSize *int
}

// ModelRun records one trained horizon's artifacts and metrics.
type ModelRun struct {
	ID           int64
	Horizon      Horizon
	ModelVersion string
	TrainedAt    time.Time

	Hyperparams map[string]float64
	Features    []string
	Importances map[string]float64

	TrainRows int
	TestRows  int
	TrainMAE  float64
	TestMAE   *float64
	TestR2    *float64

	TrainStart time.Time
	TrainEnd   time.Time
}
