package contracts

import (
	"context"
	"time"
)

// SetRepository reads and updates catalog sets.
type SetRepository interface {
	// ListRetired returns retired sets eligible for training: exit date
	// present, exit year >= MinExitYear, RRP >= MinRRPGBP.
	ListRetired(ctx context.Context) ([]CatalogSet, error)

	// ListScoreable returns sets eligible for live scoring: available or
	// retiring soon, or retired with an exit date on/after cutoff.
	ListScoreable(ctx context.Context, retiredCutoff time.Time) ([]CatalogSet, error)

	// ListMissingRRP returns sets without a UK retail price.
	ListMissingRRP(ctx context.Context) ([]CatalogSet, error)

	// UpdateRRP writes a backfilled retail price and its provenance.
	UpdateRRP(ctx context.Context, setNumber string, rrp float64, source string) error

	// ListASINs returns set numbers with ASINs, for price-history import.
	ListASINs(ctx context.Context) (map[string]string, error)
}

// SnapshotRepository reads and writes marketplace price snapshots.
type SnapshotRepository interface {
	// ListBySets returns all snapshots for the given set numbers, ordered
	// by set number then capture time. Reads are paged internally.
	ListBySets(ctx context.Context, setNumbers []string) (map[string][]PriceSnapshot, error)

	// InsertBatch upserts snapshots keyed by (set_number, captured_at, source).
	InsertBatch(ctx context.Context, snaps []PriceSnapshot) (int, error)
}

// TrainingRepository persists labelled training rows.
type TrainingRepository interface {
	// UpsertRows replaces training rows keyed by set number.
	UpsertRows(ctx context.Context, rows []TrainingRow) (int, error)

	// ListAll returns every persisted training row.
	ListAll(ctx context.Context) ([]TrainingRow, error)

	// UpdateFeatures writes the feature vectors for existing rows.
	UpdateFeatures(ctx context.Context, rows []TrainingRow) (int, error)
}

// PredictionRepository persists scorer output.
type PredictionRepository interface {
	// UpsertBatch replaces predictions keyed by set number.
	UpsertBatch(ctx context.Context, preds []Prediction) (int, error)

	// ListRanked returns predictions ordered by composite score descending.
	ListRanked(ctx context.Context, limit, offset int) ([]Prediction, error)
}

// ModelRunRepository records training run metadata.
type ModelRunRepository interface {
	Insert(ctx context.Context, run *ModelRun) (int64, error)

	// LatestByHorizon returns the most recent run per horizon for a version.
	LatestByHorizon(ctx context.Context, version string) (map[Horizon]ModelRun, error)
}
