package ingest

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/hadleybricks/brickvest/internal/contracts"
	"github.com/hadleybricks/brickvest/pkg/logger"
)

// Provenance labels written to rrp_source on backfilled prices.
const (
	SourceBrickset = "brickset_api"
	SourceAmazon   = "amazon_seeded"
	SourceKeepaP95 = "keepa_p95"
	SourceRegional = "regional_conversion"
)

// Conversion ratios calibrated on sets priced in both regions.
const (
	ukUSRatio = 0.867
	ukDERatio = 0.889
)

// keepaProxyMinSnapshots is the floor for a P95 proxy to count.
const keepaProxyMinSnapshots = 3

// RegionalPrice holds a set's non-UK retail prices.
type RegionalPrice struct {
	US *float64
	DE *float64
}

// BackfillSource supplies the fallback pricing data the waterfall
// draws on after the Brickset API pass.
type BackfillSource interface {
	// AmazonSeededPrices returns seeded marketplace prices by set number.
	AmazonSeededPrices(ctx context.Context, setNumbers []string) (map[string]float64, error)

	// KeepaBuyBoxPrices returns observed buy-box prices by set number,
	// sentinel values excluded.
	KeepaBuyBoxPrices(ctx context.Context, setNumbers []string) (map[string][]float64, error)

	// RegionalPrices returns US/DE retail prices by set number.
	RegionalPrices(ctx context.Context, setNumbers []string) (map[string]RegionalPrice, error)
}

// BackfillResult counts updates per waterfall pass.
type BackfillResult struct {
	InitialMissing  int `json:"initial_missing"`
	BricksetUpdated int `json:"brickset_updated"`
	AmazonUpdated   int `json:"amazon_updated"`
	KeepaUpdated    int `json:"keepa_updated"`
	RegionalUpdated int `json:"regional_updated"`
	StillMissing    int `json:"still_missing"`
}

// Backfiller recovers missing UK retail prices. Passes run in order of
// source reliability: Brickset API, seeded Amazon prices, the 95th
// percentile of buy-box history, then regional price conversion. Each
// pass re-reads the missing list so reruns are idempotent.
type Backfiller struct {
	sets     contracts.SetRepository
	source   BackfillSource
	brickset *BricksetClient
	log      *logger.Logger

	// SkipBrickset runs fallback passes only.
	SkipBrickset bool
}

// NewBackfiller creates an RRP backfiller.
func NewBackfiller(sets contracts.SetRepository, source BackfillSource, brickset *BricksetClient, log *logger.Logger) *Backfiller {
	return &Backfiller{
		sets:     sets,
		source:   source,
		brickset: brickset,
		log:      log.WithField("component", "ingest.backfill"),
	}
}

// Run executes the waterfall and returns per-pass counts.
func (b *Backfiller) Run(ctx context.Context) (*BackfillResult, error) {
	missing, err := b.sets.ListMissingRRP(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list sets missing rrp: %w", err)
	}
	result := &BackfillResult{InitialMissing: len(missing)}
	if len(missing) == 0 {
		b.log.Info("No sets missing RRP")
		return result, nil
	}

	if !b.SkipBrickset {
		n, err := b.passBrickset(ctx, missing)
		if err != nil {
			return result, err
		}
		result.BricksetUpdated = n
	} else {
		b.log.Info("Skipping Brickset API pass")
	}

	passes := []struct {
		name   string
		source string
		fn     func(context.Context, []contracts.CatalogSet) (map[string]float64, error)
		out    *int
	}{
		{"amazon", SourceAmazon, b.passAmazon, &result.AmazonUpdated},
		{"keepa_p95", SourceKeepaP95, b.passKeepaP95, &result.KeepaUpdated},
		{"regional", SourceRegional, b.passRegional, &result.RegionalUpdated},
	}

	for _, pass := range passes {
		missing, err = b.sets.ListMissingRRP(ctx)
		if err != nil {
			return result, fmt.Errorf("failed to refresh missing list: %w", err)
		}
		if len(missing) == 0 {
			break
		}

		prices, err := pass.fn(ctx, missing)
		if err != nil {
			return result, fmt.Errorf("%s pass failed: %w", pass.name, err)
		}
		n, err := b.applyPrices(ctx, prices, pass.source)
		*pass.out = n
		if err != nil {
			return result, err
		}
		b.log.WithFields(map[string]interface{}{
			"pass":    pass.name,
			"updated": n,
		}).Info("Backfill pass complete")
	}

	missing, err = b.sets.ListMissingRRP(ctx)
	if err != nil {
		return result, fmt.Errorf("failed to count remaining gaps: %w", err)
	}
	result.StillMissing = len(missing)

	b.log.WithFields(map[string]interface{}{
		"initial_missing": result.InitialMissing,
		"brickset":        result.BricksetUpdated,
		"amazon":          result.AmazonUpdated,
		"keepa_p95":       result.KeepaUpdated,
		"regional":        result.RegionalUpdated,
		"still_missing":   result.StillMissing,
	}).Info("RRP backfill complete")
	return result, nil
}

func (b *Backfiller) passBrickset(ctx context.Context, missing []contracts.CatalogSet) (int, error) {
	if b.brickset == nil {
		return 0, nil
	}

	year := time.Now().Year()
	prices, err := b.brickset.FetchUKPrices(ctx, []int{year - 2, year - 1, year}, contracts.MinRRPGBP)
	if err != nil {
		return 0, fmt.Errorf("brickset pass failed: %w", err)
	}

	matched := make(map[string]float64, len(missing))
	for _, s := range missing {
		if price, ok := prices[s.SetNumber]; ok {
			matched[s.SetNumber] = price
		}
	}
	n, err := b.applyPrices(ctx, matched, SourceBrickset)
	if err != nil {
		return n, err
	}
	b.log.WithField("updated", n).Info("Brickset API pass complete")
	return n, nil
}

func (b *Backfiller) passAmazon(ctx context.Context, missing []contracts.CatalogSet) (map[string]float64, error) {
	prices, err := b.source.AmazonSeededPrices(ctx, setNumbers(missing))
	if err != nil {
		return nil, err
	}
	out := make(map[string]float64, len(prices))
	for sn, price := range prices {
		if price >= contracts.MinRRPGBP {
			out[sn] = price
		}
	}
	return out, nil
}

func (b *Backfiller) passKeepaP95(ctx context.Context, missing []contracts.CatalogSet) (map[string]float64, error) {
	history, err := b.source.KeepaBuyBoxPrices(ctx, setNumbers(missing))
	if err != nil {
		return nil, err
	}
	out := make(map[string]float64)
	for sn, prices := range history {
		if proxy, ok := keepaProxy(prices); ok {
			out[sn] = proxy
		}
	}
	return out, nil
}

func (b *Backfiller) passRegional(ctx context.Context, missing []contracts.CatalogSet) (map[string]float64, error) {
	regional, err := b.source.RegionalPrices(ctx, setNumbers(missing))
	if err != nil {
		return nil, err
	}
	out := make(map[string]float64)
	for sn, rp := range regional {
		if converted, ok := convertRegional(rp); ok {
			out[sn] = converted
		}
	}
	return out, nil
}

func (b *Backfiller) applyPrices(ctx context.Context, prices map[string]float64, source string) (int, error) {
	updated := 0
	for sn, price := range prices {
		if err := b.sets.UpdateRRP(ctx, sn, price, source); err != nil {
			return updated, fmt.Errorf("failed to update rrp for %s: %w", sn, err)
		}
		updated++
	}
	return updated, nil
}

func setNumbers(sets []contracts.CatalogSet) []string {
	out := make([]string, len(sets))
	for i, s := range sets {
		out[i] = s.SetNumber
	}
	return out
}

// keepaProxy estimates RRP as the 95th percentile of observed buy-box
// prices. Needs at least keepaProxyMinSnapshots observations and a
// result above the catalog floor.
func keepaProxy(prices []float64) (float64, bool) {
	if len(prices) < keepaProxyMinSnapshots {
		return 0, false
	}
	p95 := percentile(prices, 0.95)
	if p95 < contracts.MinRRPGBP {
		return 0, false
	}
	return math.Round(p95*100) / 100, true
}

// convertRegional estimates UK RRP from a US or DE retail price. US is
// preferred, having the larger calibration sample.
func convertRegional(rp RegionalPrice) (float64, bool) {
	var converted float64
	switch {
	case rp.US != nil && *rp.US >= contracts.MinRRPGBP:
		converted = *rp.US * ukUSRatio
	case rp.DE != nil && *rp.DE >= contracts.MinRRPGBP:
		converted = *rp.DE * ukDERatio
	default:
		return 0, false
	}
	converted = math.Round(converted*100) / 100
	if converted < contracts.MinRRPGBP {
		return 0, false
	}
	return converted, true
}

// percentile returns the q-th quantile with linear interpolation.
func percentile(values []float64, q float64) float64 {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}
