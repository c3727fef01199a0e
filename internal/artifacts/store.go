// Package artifacts stores fitted models on the filesystem, one JSON
// file per horizon and quantile plus the feature column order.
package artifacts

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hadleybricks/brickvest/internal/contracts"
	"github.com/hadleybricks/brickvest/internal/gbm"
)

// Store reads and writes model artifacts under a directory.
type Store struct {
	dir string
}

// NewStore creates a model store rooted at dir.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

func quantileLabel(alpha float64) string {
	return fmt.Sprintf("p%02.0f", alpha*100)
}

func (s *Store) modelPath(h contracts.Horizon, alpha float64) string {
	return filepath.Join(s.dir, fmt.Sprintf("%s_%s.json", h, quantileLabel(alpha)))
}

func (s *Store) featuresPath(h contracts.Horizon) string {
	return filepath.Join(s.dir, fmt.Sprintf("%s_features.json", h))
}

// SaveHorizon writes the three quantile models and the feature column
// order for one horizon, replacing any previous artifacts.
func (s *Store) SaveHorizon(h contracts.Horizon, models map[float64]*gbm.Model, featureNames []string) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create models dir: %w", err)
	}

	for alpha, model := range models {
		data, err := model.ToJSON()
		if err != nil {
			return fmt.Errorf("failed to serialise %s %s: %w", h, quantileLabel(alpha), err)
		}
		if err := os.WriteFile(s.modelPath(h, alpha), data, 0o644); err != nil {
			return fmt.Errorf("failed to write %s %s: %w", h, quantileLabel(alpha), err)
		}
	}

	data, err := json.MarshalIndent(featureNames, "", " ")
	if err != nil {
		return fmt.Errorf("failed to serialise feature list: %w", err)
	}
	if err := os.WriteFile(s.featuresPath(h), data, 0o644); err != nil {
		return fmt.Errorf("failed to write feature list: %w", err)
	}
	return nil
}

// LoadHorizon reads all three quantile models and the feature order
// for a horizon. Missing any file is an error: scoring needs the full
// triplet.
func (s *Store) LoadHorizon(h contracts.Horizon) (map[float64]*gbm.Model, []string, error) {
	models := make(map[float64]*gbm.Model, len(contracts.Quantiles))
	for _, alpha := range contracts.Quantiles {
		data, err := os.ReadFile(s.modelPath(h, alpha))
		if err != nil {
			return nil, nil, fmt.Errorf("horizon %s %s: %w", h, quantileLabel(alpha), err)
		}
		model, err := gbm.FromJSON(data)
		if err != nil {
			return nil, nil, fmt.Errorf("horizon %s %s: %w", h, quantileLabel(alpha), err)
		}
		models[alpha] = model
	}

	data, err := os.ReadFile(s.featuresPath(h))
	if err != nil {
		return nil, nil, fmt.Errorf("horizon %s feature list: %w", h, err)
	}
	var featureNames []string
	if err := json.Unmarshal(data, &featureNames); err != nil {
		return nil, nil, fmt.Errorf("horizon %s feature list: %w", h, err)
	}
	return models, featureNames, nil
}

// HasHorizon reports whether a complete artifact triplet exists.
func (s *Store) HasHorizon(h contracts.Horizon) bool {
	for _, alpha := range contracts.Quantiles {
		if _, err := os.Stat(s.modelPath(h, alpha)); err != nil {
			return false
		}
	}
	_, err := os.Stat(s.featuresPath(h))
	return err == nil
}
