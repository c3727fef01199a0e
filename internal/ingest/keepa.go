package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/time/rate"

	"github.com/hadleybricks/brickvest/pkg/config"
	"github.com/hadleybricks/brickvest/pkg/httputil"
	"github.com/hadleybricks/brickvest/pkg/logger"
)

// KeepaSnapshotChecker reports which sets already carry imported
// buy-box history, so reruns skip them.
type KeepaSnapshotChecker interface {
	SetsWithKeepaData(ctx context.Context, setNumbers []string) (map[string]bool, error)
}

// ASINLister maps set numbers to marketplace ASINs.
type ASINLister interface {
	ListASINs(ctx context.Context) (map[string]string, error)
}

// KeepaImportResult summarises one import run.
type KeepaImportResult struct {
	TotalASINs      int `json:"total_asins"`
	AlreadyImported int `json:"already_imported"`
	Processed       int `json:"processed"`
	Snapshots       int `json:"snapshots"`
	Successful      int `json:"successful"`
	Failed          int `json:"failed"`
	SkippedNoData   int `json:"skipped_no_data"`
}

type keepaBatchStats struct {
	Stats struct {
		TotalSnapshotsImported int `json:"total_snapshots_imported"`
		Successful             int `json:"successful"`
		Failed                 int `json:"failed"`
		SkippedNoData          int `json:"skipped_no_data"`
	} `json:"stats"`
}

// KeepaImporter triggers buy-box history imports through the import
// endpoint in ASIN batches. The endpoint budget is roughly 20 tokens a
// minute and a full batch costs about 30, so batches are spaced out by
// the configured delay.
type KeepaImporter struct {
	httpClient *httputil.Client
	asins      ASINLister
	checker    KeepaSnapshotChecker
	cfg        config.KeepaConfig
	limiter    *rate.Limiter
	log        *logger.Logger
}

// NewKeepaImporter creates an importer.
func NewKeepaImporter(httpClient *httputil.Client, asins ASINLister, checker KeepaSnapshotChecker, cfg config.KeepaConfig, log *logger.Logger) *KeepaImporter {
	return &KeepaImporter{
		httpClient: httpClient,
		asins:      asins,
		checker:    checker,
		cfg:        cfg,
		limiter:    rate.NewLimiter(rate.Every(cfg.BatchDelay), 1),
		log:        log.WithField("component", "ingest.keepa"),
	}
}

// Run imports price history for every ASIN not yet covered.
func (k *KeepaImporter) Run(ctx context.Context) (*KeepaImportResult, error) {
	bySet, err := k.asins.ListASINs(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list asins: %w", err)
	}
	result := &KeepaImportResult{TotalASINs: len(bySet)}
	if len(bySet) == 0 {
		k.log.Info("No ASINs to import")
		return result, nil
	}

	pending, skipped, err := k.pendingASINs(ctx, bySet)
	if err != nil {
		return nil, err
	}
	result.AlreadyImported = skipped
	result.Processed = len(pending)
	if len(pending) == 0 {
		k.log.Info("All ASINs already have price history")
		return result, nil
	}

	batches := (len(pending) + k.cfg.BatchSize - 1) / k.cfg.BatchSize
	for i := 0; i < len(pending); i += k.cfg.BatchSize {
		end := i + k.cfg.BatchSize
		if end > len(pending) {
			end = len(pending)
		}
		batch := pending[i:end]
		batchNum := i/k.cfg.BatchSize + 1

		if err := k.limiter.Wait(ctx); err != nil {
			return result, fmt.Errorf("import interrupted: %w", err)
		}

		k.log.WithFields(map[string]interface{}{
			"batch": batchNum,
			"of":    batches,
			"asins": len(batch),
		}).Info("Importing price history batch")

		stats, err := k.importBatch(ctx, batch)
		if err != nil {
			k.log.WithError(err).WithField("batch", batchNum).Error("Import batch failed")
			result.Failed += len(batch)
			continue
		}
		result.Snapshots += stats.Stats.TotalSnapshotsImported
		result.Successful += stats.Stats.Successful
		result.Failed += stats.Stats.Failed
		result.SkippedNoData += stats.Stats.SkippedNoData
	}

	k.log.WithFields(map[string]interface{}{
		"processed":  result.Processed,
		"snapshots":  result.Snapshots,
		"successful": result.Successful,
		"failed":     result.Failed,
	}).Info("Keepa import complete")
	return result, nil
}

// pendingASINs drops ASINs whose sets already have imported history,
// deduplicating while preserving set-number order.
func (k *KeepaImporter) pendingASINs(ctx context.Context, bySet map[string]string) ([]string, int, error) {
	setNums := make([]string, 0, len(bySet))
	for sn := range bySet {
		setNums = append(setNums, sn)
	}

	covered, err := k.checker.SetsWithKeepaData(ctx, setNums)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to check existing snapshots: %w", err)
	}

	seen := make(map[string]bool, len(bySet))
	var pending []string
	skipped := 0
	for sn, asin := range bySet {
		if covered[sn] {
			skipped++
			continue
		}
		if seen[asin] {
			continue
		}
		seen[asin] = true
		pending = append(pending, asin)
	}
	return pending, skipped, nil
}

func (k *KeepaImporter) importBatch(ctx context.Context, asins []string) (*keepaBatchStats, error) {
	payload := map[string]interface{}{"asins": asins}
	headers := map[string]string{}
	if k.cfg.AuthToken != "" {
		headers["Authorization"] = "Bearer " + k.cfg.AuthToken
	}
	resp, err := k.httpClient.PostJSONWithHeaders(ctx, k.cfg.ImportURL, payload, headers)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	var stats keepaBatchStats
	if err := json.Unmarshal(body, &stats); err != nil {
		return nil, fmt.Errorf("failed to decode import stats: %w", err)
	}
	return &stats, nil
}
