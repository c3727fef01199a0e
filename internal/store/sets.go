// Package store implements the repository interfaces on PostgreSQL
// via pgx. Reads are paged, writes are batched, and non-finite floats
// are sanitised to NULL before they reach the wire.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/hadleybricks/brickvest/internal/contracts"
	"github.com/hadleybricks/brickvest/pkg/database"
	"github.com/hadleybricks/brickvest/pkg/logger"
)

// SetRepository reads and updates the brickset_sets table.
type SetRepository struct {
	db  *database.DB
	log *logger.Logger
}

// NewSetRepository creates a catalog set repository.
func NewSetRepository(db *database.DB, log *logger.Logger) *SetRepository {
	return &SetRepository{db: db, log: log.WithField("component", "store.sets")}
}

const setColumns = `
	set_number, name, theme, subtheme, year_released, pieces, minifigs,
	uk_retail_price, current_price, status, launch_date, exit_date,
	rating, want_count, own_count, age_min, width, height, depth,
	exclusivity_tier, asin`

func scanSet(rows pgx.Rows) (contracts.CatalogSet, error) {
	var s contracts.CatalogSet
	err := rows.Scan(
		&s.SetNumber, &s.Name, &s.Theme, &s.Subtheme, &s.YearReleased,
		&s.Pieces, &s.Minifigs, &s.RRPGBP, &s.CurrentPrice, &s.Status,
		&s.LaunchDate, &s.ExitDate, &s.Rating, &s.WantCount, &s.OwnCount,
		&s.AgeMin, &s.Width, &s.Height, &s.Depth, &s.ExclusivityTier,
		&s.ASIN,
	)
	return s, err
}

// listPaged runs a keyset-paginated query ordered by set_number.
func (r *SetRepository) listPaged(ctx context.Context, where string, args ...interface{}) ([]contracts.CatalogSet, error) {
	var out []contracts.CatalogSet
	cursor := ""
	for {
		query := fmt.Sprintf(`
			SELECT %s FROM brickset_sets
			WHERE %s AND set_number > $%d
			ORDER BY set_number
			LIMIT %d`,
			setColumns, where, len(args)+1, contracts.PageSize)

		rows, err := r.db.Pool.Query(ctx, query, append(args, cursor)...)
		if err != nil {
			return nil, fmt.Errorf("failed to query sets: %w", err)
		}

		n := 0
		for rows.Next() {
			s, err := scanSet(rows)
			if err != nil {
				rows.Close()
				return nil, fmt.Errorf("failed to scan set: %w", err)
			}
			out = append(out, s)
			cursor = s.SetNumber
			n++
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("set query failed: %w", err)
		}
		if n < contracts.PageSize {
			return out, nil
		}
	}
}

// ListRetired returns training-eligible retired sets.
func (r *SetRepository) ListRetired(ctx context.Context) ([]contracts.CatalogSet, error) {
	return r.listPaged(ctx, `
		status = 'retired'
		AND exit_date IS NOT NULL
		AND EXTRACT(YEAR FROM exit_date) >= $1
		AND uk_retail_price >= $2`,
		contracts.MinExitYear, contracts.MinRRPGBP)
}

// ListScoreable returns sets eligible for live scoring.
func (r *SetRepository) ListScoreable(ctx context.Context, retiredCutoff time.Time) ([]contracts.CatalogSet, error) {
	return r.listPaged(ctx, `
		(status IN ('available', 'retiring_soon')
		 OR (status = 'retired' AND exit_date >= $1))
		AND uk_retail_price >= $2`,
		retiredCutoff, contracts.MinRRPGBP)
}

// ListMissingRRP returns sets without a UK retail price.
func (r *SetRepository) ListMissingRRP(ctx context.Context) ([]contracts.CatalogSet, error) {
	return r.listPaged(ctx, `uk_retail_price IS NULL`)
}

// UpdateRRP writes a backfilled retail price with its provenance.
func (r *SetRepository) UpdateRRP(ctx context.Context, setNumber string, rrp float64, source string) error {
	tag, err := r.db.Pool.Exec(ctx, `
		UPDATE brickset_sets
		SET uk_retail_price = $2, rrp_source = $3, updated_at = NOW()
		WHERE set_number = $1`,
		setNumber, rrp, source)
	if err != nil {
		return fmt.Errorf("failed to update rrp for %s: %w", setNumber, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("set %s not found", setNumber)
	}
	return nil
}

// ListASINs returns set number to ASIN for sets carrying one.
func (r *SetRepository) ListASINs(ctx context.Context) (map[string]string, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT set_number, asin FROM brickset_sets
		WHERE asin IS NOT NULL AND asin != ''
		ORDER BY set_number`)
	if err != nil {
		return nil, fmt.Errorf("failed to query asins: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var setNumber, asin string
		if err := rows.Scan(&setNumber, &asin); err != nil {
			return nil, fmt.Errorf("failed to scan asin: %w", err)
		}
		out[setNumber] = asin
	}
	return out, rows.Err()
}
