package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/hadleybricks/brickvest/internal/contracts"
	"github.com/hadleybricks/brickvest/pkg/database"
	"github.com/hadleybricks/brickvest/pkg/logger"
)

// SnapshotRepository reads and writes the price_snapshots table.
type SnapshotRepository struct {
	db  *database.DB
	log *logger.Logger
}

// NewSnapshotRepository creates a price snapshot repository.
func NewSnapshotRepository(db *database.DB, log *logger.Logger) *SnapshotRepository {
	return &SnapshotRepository{db: db, log: log.WithField("component", "store.snapshots")}
}

// ListBySets returns all snapshots for the given sets grouped by set
// number, ordered by capture time. Set numbers are chunked to keep
// parameter lists bounded.
func (r *SnapshotRepository) ListBySets(ctx context.Context, setNumbers []string) (map[string][]contracts.PriceSnapshot, error) {
	out := make(map[string][]contracts.PriceSnapshot, len(setNumbers))
	for start := 0; start < len(setNumbers); start += contracts.PageSize {
		end := start + contracts.PageSize
		if end > len(setNumbers) {
			end = len(setNumbers)
		}
		if err := r.listChunk(ctx, setNumbers[start:end], out); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (r *SnapshotRepository) listChunk(ctx context.Context, chunk []string, out map[string][]contracts.PriceSnapshot) error {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT set_number, captured_at, price, list_price, seller_count,
		       buy_box_is_amazon, source
		FROM price_snapshots
		WHERE set_number = ANY($1)
		ORDER BY set_number, captured_at`,
		chunk)
	if err != nil {
		return fmt.Errorf("failed to query snapshots: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var s contracts.PriceSnapshot
		if err := rows.Scan(&s.SetNumber, &s.CapturedAt, &s.Price, &s.ListPrice,
			&s.SellerCount, &s.BuyBoxIsAmazon, &s.Source); err != nil {
			return fmt.Errorf("failed to scan snapshot: %w", err)
		}
		out[s.SetNumber] = append(out[s.SetNumber], s)
	}
	return rows.Err()
}

// InsertBatch upserts snapshots keyed by (set_number, captured_at,
// source) in batches. Non-finite prices are dropped with a log line.
func (r *SnapshotRepository) InsertBatch(ctx context.Context, snaps []contracts.PriceSnapshot) (int, error) {
	clean := make([]contracts.PriceSnapshot, 0, len(snaps))
	dropped := 0
	for _, s := range snaps {
		if !isFinite(s.Price) || s.Price <= 0 {
			dropped++
			continue
		}
		s.ListPrice = sanitizePtr(s.ListPrice)
		clean = append(clean, s)
	}
	if dropped > 0 {
		r.log.WithField("dropped", dropped).Warn("Snapshots with non-finite prices dropped")
	}

	total := 0
	for start := 0; start < len(clean); start += contracts.UpsertBatchSize {
		end := start + contracts.UpsertBatchSize
		if end > len(clean) {
			end = len(clean)
		}

		batch := &pgx.Batch{}
		for _, s := range clean[start:end] {
			batch.Queue(`
				INSERT INTO price_snapshots
					(set_number, captured_at, price, list_price, seller_count,
					 buy_box_is_amazon, source)
				VALUES ($1, $2, $3, $4, $5, $6, $7)
				ON CONFLICT (set_number, captured_at, source) DO UPDATE SET
					price = EXCLUDED.price,
					list_price = EXCLUDED.list_price,
					seller_count = EXCLUDED.seller_count,
					buy_box_is_amazon = EXCLUDED.buy_box_is_amazon`,
				s.SetNumber, s.CapturedAt, s.Price, s.ListPrice,
				s.SellerCount, s.BuyBoxIsAmazon, s.Source)
		}

		br := r.db.Pool.SendBatch(ctx, batch)
		for range clean[start:end] {
			if _, err := br.Exec(); err != nil {
				br.Close()
				return total, fmt.Errorf("snapshot upsert failed: %w", err)
			}
			total++
		}
		if err := br.Close(); err != nil {
			return total, fmt.Errorf("snapshot batch close failed: %w", err)
		}
	}
	return total, nil
}
