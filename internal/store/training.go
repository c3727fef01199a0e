package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/hadleybricks/brickvest/internal/contracts"
	"github.com/hadleybricks/brickvest/pkg/database"
	"github.com/hadleybricks/brickvest/pkg/logger"
)

// TrainingRepository reads and writes investment_training_data.
type TrainingRepository struct {
	db  *database.DB
	log *logger.Logger
}

// NewTrainingRepository creates a training row repository.
func NewTrainingRepository(db *database.DB, log *logger.Logger) *TrainingRepository {
	return &TrainingRepository{db: db, log: log.WithField("component", "store.training")}
}

// UpsertRows replaces training rows keyed by set number in batches.
func (r *TrainingRepository) UpsertRows(ctx context.Context, rows []contracts.TrainingRow) (int, error) {
	total := 0
	for start := 0; start < len(rows); start += contracts.UpsertBatchSize {
		end := start + contracts.UpsertBatchSize
		if end > len(rows) {
			end = len(rows)
		}

		batch := &pgx.Batch{}
		for _, row := range rows[start:end] {
			batch.Queue(`
				INSERT INTO investment_training_data
					(set_number, theme, subtheme, exit_date, retirement_year,
					 rrp_gbp, price_at_retirement, price_6m, price_1yr,
					 price_2yr, price_3yr, target_6m, target_1yr, target_2yr,
					 target_3yr, quality, updated_at)
				VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,NOW())
				ON CONFLICT (set_number) DO UPDATE SET
					theme = EXCLUDED.theme,
					subtheme = EXCLUDED.subtheme,
					exit_date = EXCLUDED.exit_date,
					retirement_year = EXCLUDED.retirement_year,
					rrp_gbp = EXCLUDED.rrp_gbp,
					price_at_retirement = EXCLUDED.price_at_retirement,
					price_6m = EXCLUDED.price_6m,
					price_1yr = EXCLUDED.price_1yr,
					price_2yr = EXCLUDED.price_2yr,
					price_3yr = EXCLUDED.price_3yr,
					target_6m = EXCLUDED.target_6m,
					target_1yr = EXCLUDED.target_1yr,
					target_2yr = EXCLUDED.target_2yr,
					target_3yr = EXCLUDED.target_3yr,
					quality = EXCLUDED.quality,
					updated_at = NOW()`,
				row.SetNumber, row.Theme, row.Subtheme, row.ExitDate,
				row.RetirementYear, row.RRPGBP,
				sanitizePtr(row.PriceAtRetirement),
				sanitizePtr(row.Price6m), sanitizePtr(row.Price1yr),
				sanitizePtr(row.Price2yr), sanitizePtr(row.Price3yr),
				sanitizePtr(row.Target6m), sanitizePtr(row.Target1yr),
				sanitizePtr(row.Target2yr), sanitizePtr(row.Target3yr),
				string(row.Quality))
		}

		n, err := execBatch(ctx, r.db, batch, end-start)
		total += n
		if err != nil {
			return total, fmt.Errorf("training row upsert failed: %w", err)
		}
	}
	return total, nil
}

// UpdateFeatures writes the engineered vectors for existing rows.
func (r *TrainingRepository) UpdateFeatures(ctx context.Context, rows []contracts.TrainingRow) (int, error) {
	total := 0
	for start := 0; start < len(rows); start += contracts.UpsertBatchSize {
		end := start + contracts.UpsertBatchSize
		if end > len(rows) {
			end = len(rows)
		}

		batch := &pgx.Batch{}
		for _, row := range rows[start:end] {
			featJSON, err := json.Marshal(sanitizeFeatureMap(row.Features))
			if err != nil {
				return total, fmt.Errorf("failed to serialise features for %s: %w", row.SetNumber, err)
			}
			batch.Queue(`
				UPDATE investment_training_data
				SET features = $2, feature_version = $3,
				    features_built_at = $4, updated_at = NOW()
				WHERE set_number = $1`,
				row.SetNumber, featJSON, row.FeatureVersion, row.FeaturesBuiltAt)
		}

		n, err := execBatch(ctx, r.db, batch, end-start)
		total += n
		if err != nil {
			return total, fmt.Errorf("feature update failed: %w", err)
		}
	}
	return total, nil
}

// ListAll returns every training row, features included.
func (r *TrainingRepository) ListAll(ctx context.Context) ([]contracts.TrainingRow, error) {
	var out []contracts.TrainingRow
	cursor := ""
	for {
		rows, err := r.db.Pool.Query(ctx, `
			SELECT set_number, theme, subtheme, exit_date, retirement_year,
			       rrp_gbp, price_at_retirement, price_6m, price_1yr,
			       price_2yr, price_3yr, target_6m, target_1yr, target_2yr,
			       target_3yr, quality, features, feature_version,
			       features_built_at
			FROM investment_training_data
			WHERE set_number > $1
			ORDER BY set_number
			LIMIT $2`,
			cursor, contracts.PageSize)
		if err != nil {
			return nil, fmt.Errorf("failed to query training rows: %w", err)
		}

		n := 0
		for rows.Next() {
			var row contracts.TrainingRow
			var quality string
			var featJSON []byte
			var featVersion *string
			if err := rows.Scan(
				&row.SetNumber, &row.Theme, &row.Subtheme, &row.ExitDate,
				&row.RetirementYear, &row.RRPGBP, &row.PriceAtRetirement,
				&row.Price6m, &row.Price1yr, &row.Price2yr, &row.Price3yr,
				&row.Target6m, &row.Target1yr, &row.Target2yr, &row.Target3yr,
				&quality, &featJSON, &featVersion, &row.FeaturesBuiltAt,
			); err != nil {
				rows.Close()
				return nil, fmt.Errorf("failed to scan training row: %w", err)
			}
			row.Quality = contracts.RowQuality(quality)
			if featVersion != nil {
				row.FeatureVersion = *featVersion
			}
			if len(featJSON) > 0 {
				if err := json.Unmarshal(featJSON, &row.Features); err != nil {
					rows.Close()
					return nil, fmt.Errorf("failed to decode features for %s: %w", row.SetNumber, err)
				}
			}
			out = append(out, row)
			cursor = row.SetNumber
			n++
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("training row query failed: %w", err)
		}
		if n < contracts.PageSize {
			return out, nil
		}
	}
}

// execBatch sends a batch and counts successful statements.
func execBatch(ctx context.Context, db *database.DB, batch *pgx.Batch, n int) (int, error) {
	br := db.Pool.SendBatch(ctx, batch)
	done := 0
	for i := 0; i < n; i++ {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return done, err
		}
		done++
	}
	return done, br.Close()
}
