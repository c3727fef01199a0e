package jobs

import (
	"context"

	"github.com/hadleybricks/brickvest/internal/ingest"
	"github.com/hadleybricks/brickvest/pkg/logger"
)

// BackfillRRPJob fills missing retail prices once a week. The
// backfiller is idempotent, so reruns only touch sets still missing a
// price.
type BackfillRRPJob struct {
	backfiller *ingest.Backfiller
	logger     *logger.Logger
}

// NewBackfillRRPJob creates a new RRP backfill job
func NewBackfillRRPJob(backfiller *ingest.Backfiller, log *logger.Logger) *BackfillRRPJob {
	return &BackfillRRPJob{
		backfiller: backfiller,
		logger:     log,
	}
}

// Name returns the job name
func (j *BackfillRRPJob) Name() string {
	return "backfill_rrp"
}

// Schedule runs every Sunday at midnight.
func (j *BackfillRRPJob) Schedule() string {
	return "0 0 0 * * 0"
}

// Run executes the backfill
func (j *BackfillRRPJob) Run(ctx context.Context) error {
	result, err := j.backfiller.Run(ctx)
	if err != nil {
		return err
	}

	j.logger.WithFields(map[string]interface{}{
		"brickset": result.BricksetUpdated,
		"amazon":   result.AmazonUpdated,
		"keepa":    result.KeepaUpdated,
		"regional": result.RegionalUpdated,
		"missing":  result.StillMissing,
	}).Info("RRP backfill complete")
	return nil
}

// KeepaImportJob pulls fresh buy-box price history for sets whose
// ASINs are not yet covered.
type KeepaImportJob struct {
	importer *ingest.KeepaImporter
	logger   *logger.Logger
}

// NewKeepaImportJob creates a new Keepa import job
func NewKeepaImportJob(importer *ingest.KeepaImporter, log *logger.Logger) *KeepaImportJob {
	return &KeepaImportJob{
		importer: importer,
		logger:   log,
	}
}

// Name returns the job name
func (j *KeepaImportJob) Name() string {
	return "keepa_import"
}

// Schedule runs every Saturday at 1 AM, ahead of the Sunday backfill
// so the proxy pass sees fresh snapshots.
func (j *KeepaImportJob) Schedule() string {
	return "0 0 1 * * 6"
}

// Run executes the import
func (j *KeepaImportJob) Run(ctx context.Context) error {
	result, err := j.importer.Run(ctx)
	if err != nil {
		return err
	}

	j.logger.WithFields(map[string]interface{}{
		"total":     result.TotalASINs,
		"processed": result.Processed,
		"snapshots": result.Snapshots,
		"failed":    result.Failed,
	}).Info("Keepa import complete")
	return nil
}
