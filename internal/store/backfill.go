package store

import (
	"context"
	"fmt"

	"github.com/hadleybricks/brickvest/internal/ingest"
	"github.com/hadleybricks/brickvest/pkg/database"
	"github.com/hadleybricks/brickvest/pkg/logger"
)

// backfillChunkSize keeps `= ANY` parameter arrays small enough to
// stay under statement timeouts on the snapshot table.
const backfillChunkSize = 100

// BackfillRepository supplies the fallback pricing data for the RRP
// backfill waterfall.
type BackfillRepository struct {
	db  *database.DB
	log *logger.Logger
}

// NewBackfillRepository creates a backfill data source.
func NewBackfillRepository(db *database.DB, log *logger.Logger) *BackfillRepository {
	return &BackfillRepository{db: db, log: log.WithField("component", "store.backfill")}
}

// AmazonSeededPrices returns seeded marketplace prices by set number.
func (r *BackfillRepository) AmazonSeededPrices(ctx context.Context, setNumbers []string) (map[string]float64, error) {
	out := make(map[string]float64)
	for _, chunk := range chunkStrings(setNumbers, backfillChunkSize) {
		rows, err := r.db.Pool.Query(ctx, `
			SELECT set_number, amazon_price
			FROM seeded_asin_pricing
			WHERE set_number = ANY($1) AND amazon_price IS NOT NULL`,
			chunk)
		if err != nil {
			return nil, fmt.Errorf("failed to query seeded prices: %w", err)
		}
		for rows.Next() {
			var sn string
			var price float64
			if err := rows.Scan(&sn, &price); err != nil {
				rows.Close()
				return nil, fmt.Errorf("failed to scan seeded price: %w", err)
			}
			out[sn] = price
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// KeepaBuyBoxPrices returns buy-box price history by set number.
// Sentinel values above £500 are excluded at the query.
func (r *BackfillRepository) KeepaBuyBoxPrices(ctx context.Context, setNumbers []string) (map[string][]float64, error) {
	out := make(map[string][]float64)
	for _, chunk := range chunkStrings(setNumbers, backfillChunkSize) {
		rows, err := r.db.Pool.Query(ctx, `
			SELECT set_number, price
			FROM price_snapshots
			WHERE set_number = ANY($1)
			  AND source = 'keepa_amazon_buybox'
			  AND price > 0 AND price < 500`,
			chunk)
		if err != nil {
			return nil, fmt.Errorf("failed to query buy-box history: %w", err)
		}
		for rows.Next() {
			var sn string
			var price float64
			if err := rows.Scan(&sn, &price); err != nil {
				rows.Close()
				return nil, fmt.Errorf("failed to scan buy-box price: %w", err)
			}
			out[sn] = append(out[sn], price)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// RegionalPrices returns US/DE retail prices by set number.
func (r *BackfillRepository) RegionalPrices(ctx context.Context, setNumbers []string) (map[string]ingest.RegionalPrice, error) {
	out := make(map[string]ingest.RegionalPrice)
	for _, chunk := range chunkStrings(setNumbers, backfillChunkSize) {
		rows, err := r.db.Pool.Query(ctx, `
			SELECT set_number, us_retail_price, de_retail_price
			FROM brickset_sets
			WHERE set_number = ANY($1)
			  AND (us_retail_price IS NOT NULL OR de_retail_price IS NOT NULL)`,
			chunk)
		if err != nil {
			return nil, fmt.Errorf("failed to query regional prices: %w", err)
		}
		for rows.Next() {
			var sn string
			var rp ingest.RegionalPrice
			if err := rows.Scan(&sn, &rp.US, &rp.DE); err != nil {
				rows.Close()
				return nil, fmt.Errorf("failed to scan regional price: %w", err)
			}
			out[sn] = rp
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// SetsWithKeepaData reports which sets already carry imported buy-box
// history.
func (r *BackfillRepository) SetsWithKeepaData(ctx context.Context, setNumbers []string) (map[string]bool, error) {
	out := make(map[string]bool)
	for _, chunk := range chunkStrings(setNumbers, backfillChunkSize) {
		rows, err := r.db.Pool.Query(ctx, `
			SELECT DISTINCT set_number
			FROM price_snapshots
			WHERE set_number = ANY($1) AND source = 'keepa_amazon_buybox'`,
			chunk)
		if err != nil {
			return nil, fmt.Errorf("failed to query snapshot coverage: %w", err)
		}
		for rows.Next() {
			var sn string
			if err := rows.Scan(&sn); err != nil {
				rows.Close()
				return nil, fmt.Errorf("failed to scan set number: %w", err)
			}
			out[sn] = true
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func chunkStrings(values []string, size int) [][]string {
	var chunks [][]string
	for start := 0; start < len(values); start += size {
		end := start + size
		if end > len(values) {
			end = len(values)
		}
		chunks = append(chunks, values[start:end])
	}
	return chunks
}
