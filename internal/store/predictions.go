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

// PredictionRepository reads and writes investment_predictions.
type PredictionRepository struct {
	db  *database.DB
	log *logger.Logger
}

// NewPredictionRepository creates a prediction repository.
func NewPredictionRepository(db *database.DB, log *logger.Logger) *PredictionRepository {
	return &PredictionRepository{db: db, log: log.WithField("component", "store.predictions")}
}

// UpsertBatch replaces predictions keyed by set number in batches.
func (r *PredictionRepository) UpsertBatch(ctx context.Context, preds []contracts.Prediction) (int, error) {
	total := 0
	for start := 0; start < len(preds); start += contracts.UpsertBatchSize {
		end := start + contracts.UpsertBatchSize
		if end > len(preds) {
			end = len(preds)
		}

		batch := &pgx.Batch{}
		for _, p := range preds[start:end] {
			forecastJSON, err := json.Marshal(p.Horizons)
			if err != nil {
				return total, fmt.Errorf("failed to serialise forecasts for %s: %w", p.SetNumber, err)
			}
			flagsJSON, err := json.Marshal(p.RiskFlags)
			if err != nil {
				return total, fmt.Errorf("failed to serialise risk flags for %s: %w", p.SetNumber, err)
			}

			batch.Queue(`
				INSERT INTO investment_predictions
					(set_number, model_version, scored_at, forecasts,
					 expected_profit, risk_adjusted, composite_score,
					 risk_flags, theme_sample_size, updated_at)
				VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,NOW())
				ON CONFLICT (set_number) DO UPDATE SET
					model_version = EXCLUDED.model_version,
					scored_at = EXCLUDED.scored_at,
					forecasts = EXCLUDED.forecasts,
					expected_profit = EXCLUDED.expected_profit,
					risk_adjusted = EXCLUDED.risk_adjusted,
					composite_score = EXCLUDED.composite_score,
					risk_flags = EXCLUDED.risk_flags,
					theme_sample_size = EXCLUDED.theme_sample_size,
					updated_at = NOW()`,
				p.SetNumber, p.ModelVersion, p.ScoredAt, forecastJSON,
				p.ExpectedProfit, p.RiskAdjusted, p.CompositeScore,
				flagsJSON, p.ThemeSampleSize)
		}

		n, err := execBatch(ctx, r.db, batch, end-start)
		total += n
		if err != nil {
			return total, fmt.Errorf("prediction upsert failed: %w", err)
		}
	}
	return total, nil
}

// ListRanked returns predictions ordered by composite score descending.
func (r *PredictionRepository) ListRanked(ctx context.Context, limit, offset int) ([]contracts.Prediction, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT set_number, model_version, scored_at, forecasts,
		       expected_profit, risk_adjusted, composite_score,
		       risk_flags, theme_sample_size
		FROM investment_predictions
		ORDER BY composite_score DESC, set_number
		LIMIT $1 OFFSET $2`,
		limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query predictions: %w", err)
	}
	defer rows.Close()

	var out []contracts.Prediction
	for rows.Next() {
		var p contracts.Prediction
		var forecastJSON, flagsJSON []byte
		if err := rows.Scan(&p.SetNumber, &p.ModelVersion, &p.ScoredAt,
			&forecastJSON, &p.ExpectedProfit, &p.RiskAdjusted,
			&p.CompositeScore, &flagsJSON, &p.ThemeSampleSize); err != nil {
			return nil, fmt.Errorf("failed to scan prediction: %w", err)
		}
		if len(forecastJSON) > 0 {
			if err := json.Unmarshal(forecastJSON, &p.Horizons); err != nil {
				return nil, fmt.Errorf("failed to decode forecasts for %s: %w", p.SetNumber, err)
			}
		}
		if len(flagsJSON) > 0 {
			if err := json.Unmarshal(flagsJSON, &p.RiskFlags); err != nil {
				return nil, fmt.Errorf("failed to decode risk flags for %s: %w", p.SetNumber, err)
			}
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
