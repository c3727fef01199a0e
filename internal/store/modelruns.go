package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hadleybricks/brickvest/internal/contracts"
	"github.com/hadleybricks/brickvest/pkg/database"
	"github.com/hadleybricks/brickvest/pkg/logger"
)

// ModelRunRepository reads and writes investment_model_runs.
type ModelRunRepository struct {
	db  *database.DB
	log *logger.Logger
}

// NewModelRunRepository creates a model run repository.
func NewModelRunRepository(db *database.DB, log *logger.Logger) *ModelRunRepository {
	return &ModelRunRepository{db: db, log: log.WithField("component", "store.modelruns")}
}

// Insert records one training run and returns its id.
func (r *ModelRunRepository) Insert(ctx context.Context, run *contracts.ModelRun) (int64, error) {
	hyperJSON, err := json.Marshal(run.Hyperparams)
	if err != nil {
		return 0, fmt.Errorf("failed to serialise hyperparams: %w", err)
	}
	featJSON, err := json.Marshal(run.Features)
	if err != nil {
		return 0, fmt.Errorf("failed to serialise feature list: %w", err)
	}
	impJSON, err := json.Marshal(run.Importances)
	if err != nil {
		return 0, fmt.Errorf("failed to serialise importances: %w", err)
	}

	var id int64
	err = r.db.Pool.QueryRow(ctx, `
		INSERT INTO investment_model_runs
			(horizon, model_version, trained_at, hyperparams, features,
			 importances, train_rows, test_rows, train_mae, test_mae,
			 test_r2, train_start, train_end)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		RETURNING id`,
		string(run.Horizon), run.ModelVersion, run.TrainedAt, hyperJSON,
		featJSON, impJSON, run.TrainRows, run.TestRows, run.TrainMAE,
		sanitizePtr(run.TestMAE), sanitizePtr(run.TestR2),
		run.TrainStart, run.TrainEnd).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to insert model run: %w", err)
	}
	return id, nil
}

// LatestByHorizon returns the most recent run per horizon for a version.
func (r *ModelRunRepository) LatestByHorizon(ctx context.Context, version string) (map[contracts.Horizon]contracts.ModelRun, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT DISTINCT ON (horizon)
		       id, horizon, model_version, trained_at, hyperparams,
		       features, importances, train_rows, test_rows, train_mae,
		       test_mae, test_r2, train_start, train_end
		FROM investment_model_runs
		WHERE model_version = $1
		ORDER BY horizon, trained_at DESC`,
		version)
	if err != nil {
		return nil, fmt.Errorf("failed to query model runs: %w", err)
	}
	defer rows.Close()

	out := make(map[contracts.Horizon]contracts.ModelRun)
	for rows.Next() {
		var run contracts.ModelRun
		var horizon string
		var hyperJSON, featJSON, impJSON []byte
		if err := rows.Scan(&run.ID, &horizon, &run.ModelVersion,
			&run.TrainedAt, &hyperJSON, &featJSON, &impJSON,
			&run.TrainRows, &run.TestRows, &run.TrainMAE, &run.TestMAE,
			&run.TestR2, &run.TrainStart, &run.TrainEnd); err != nil {
			return nil, fmt.Errorf("failed to scan model run: %w", err)
		}
		run.Horizon = contracts.Horizon(horizon)
		if len(hyperJSON) > 0 {
			if err := json.Unmarshal(hyperJSON, &run.Hyperparams); err != nil {
				return nil, fmt.Errorf("failed to decode hyperparams: %w", err)
			}
		}
		if len(featJSON) > 0 {
			if err := json.Unmarshal(featJSON, &run.Features); err != nil {
				return nil, fmt.Errorf("failed to decode feature list: %w", err)
			}
		}
		if len(impJSON) > 0 {
			if err := json.Unmarshal(impJSON, &run.Importances); err != nil {
				return nil, fmt.Errorf("failed to decode importances: %w", err)
			}
		}
		out[run.Horizon] = run
	}
	return out, rows.Err()
}
