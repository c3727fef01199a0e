package dataset

import (
	"context"
	"fmt"

	"github.com/hadleybricks/brickvest/internal/contracts"
	"github.com/hadleybricks/brickvest/pkg/logger"
)

// Builder assembles the training table from retired sets and their
// price snapshots.
type Builder struct {
	sets     contracts.SetRepository
	snaps    contracts.SnapshotRepository
	training contracts.TrainingRepository
	log      *logger.Logger
}

// NewBuilder creates a training-data builder.
func NewBuilder(
	sets contracts.SetRepository,
	snaps contracts.SnapshotRepository,
	training contracts.TrainingRepository,
	log *logger.Logger,
) *Builder {
	return &Builder{
		sets:     sets,
		snaps:    snaps,
		training: training,
		log:      log.WithField("component", "dataset"),
	}
}

// BuildResult summarises one build run.
type BuildResult struct {
	SetsExamined int
	RowsGood     int
	RowsPartial  int
	Skipped      int
	Clipped      map[contracts.Horizon]int
	Persisted    int
}

// Run rebuilds the full training table: every eligible retired set is
// re-derived from snapshots and upserted, so the operation is
// idempotent.
func (b *Builder) Run(ctx context.Context) (*BuildResult, error) {
	sets, err := b.sets.ListRetired(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list retired sets: %w", err)
	}
	b.log.WithField("sets", len(sets)).Info("Building training rows")

	setNumbers := make([]string, len(sets))
	for i, s := range sets {
		setNumbers[i] = s.SetNumber
	}
	snapsBySet, err := b.snaps.ListBySets(ctx, setNumbers)
	if err != nil {
		return nil, fmt.Errorf("failed to load price snapshots: %w", err)
	}

	res := &BuildResult{SetsExamined: len(sets)}
	rows := make([]contracts.TrainingRow, 0, len(sets))
	for _, set := range sets {
		row := buildRow(set, snapsBySet[set.SetNumber])
		if row == nil || row.Quality == contracts.QualityInsufficient {
			res.Skipped++
			continue
		}
		rows = append(rows, *row)
		if row.Quality == contracts.QualityGood {
			res.RowsGood++
		} else {
			res.RowsPartial++
		}
	}

	res.Clipped = winsoriseTargets(rows)

	persisted, err := b.training.UpsertRows(ctx, rows)
	if err != nil {
		return nil, fmt.Errorf("failed to persist training rows: %w", err)
	}
	res.Persisted = persisted

	b.log.WithFields(map[string]interface{}{
		"examined":  res.SetsExamined,
		"good":      res.RowsGood,
		"partial":   res.RowsPartial,
		"skipped":   res.Skipped,
		"persisted": res.Persisted,
	}).Info("Training rows built")
	return res, nil
}
