package handlers

import (
	"net/http"
	"strconv"

	"github.com/hadleybricks/brickvest/internal/contracts"
	"github.com/hadleybricks/brickvest/pkg/logger"
)

const (
	defaultPredictionLimit = 50
	maxPredictionLimit     = 500
)

// PredictionHandler serves ranked scorer output.
type PredictionHandler struct {
	predictions contracts.PredictionRepository
	logger      *logger.Logger
}

// NewPredictionHandler creates a prediction handler.
func NewPredictionHandler(predictions contracts.PredictionRepository, log *logger.Logger) *PredictionHandler {
	return &PredictionHandler{predictions: predictions, logger: log}
}

// List returns predictions ordered by composite score.
// GET /api/predictions?limit=50&offset=0
func (h *PredictionHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", defaultPredictionLimit)
	offset := queryInt(r, "offset", 0)
	if limit <= 0 || limit > maxPredictionLimit {
		respondError(w, http.StatusBadRequest, "limit must be between 1 and 500")
		return
	}
	if offset < 0 {
		respondError(w, http.StatusBadRequest, "offset must not be negative")
		return
	}

	preds, err := h.predictions.ListRanked(r.Context(), limit, offset)
	if err != nil {
		h.logger.WithError(err).Error("Failed to list predictions")
		respondError(w, http.StatusInternalServerError, "Failed to list predictions")
		return
	}

	items := make([]predictionItem, 0, len(preds))
	for i, p := range preds {
		items = append(items, toPredictionItem(p, offset+i+1))
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"count":       len(items),
		"offset":      offset,
		"predictions": items,
	})
}

type predictionItem struct {
	Rank            int                     `json:"rank"`
	SetNumber       string                  `json:"set_number"`
	ModelVersion    string                  `json:"model_version"`
	ScoredAt        string                  `json:"scored_at"`
	CompositeScore  float64                 `json:"composite_score"`
	ExpectedProfit  float64                 `json:"expected_profit"`
	RiskAdjusted    float64                 `json:"risk_adjusted"`
	RiskFlags       []string                `json:"risk_flags"`
	ThemeSampleSize *int                    `json:"theme_sample_size,omitempty"`
	Horizons        map[string]horizonItem  `json:"horizons"`
}

type horizonItem struct {
	AppreciationPct     float64 `json:"appreciation_pct"`
	AppreciationLowPct  float64 `json:"appreciation_low_pct"`
	AppreciationHighPct float64 `json:"appreciation_high_pct"`
	PredictedPrice      float64 `json:"predicted_price"`
	Confidence          float64 `json:"confidence"`
}

func toPredictionItem(p contracts.Prediction, rank int) predictionItem {
	horizons := make(map[string]horizonItem, len(p.Horizons))
	for h, f := range p.Horizons {
		horizons[string(h)] = horizonItem{
			AppreciationPct:     f.AppreciationPct,
			AppreciationLowPct:  f.AppreciationLowPct,
			AppreciationHighPct: f.AppreciationHighPct,
			PredictedPrice:      f.PredictedPrice,
			Confidence:          f.Confidence,
		}
	}
	flags := p.RiskFlags
	if flags == nil {
		flags = []string{}
	}
	return predictionItem{
		Rank:            rank,
		SetNumber:       p.SetNumber,
		ModelVersion:    p.ModelVersion,
		ScoredAt:        p.ScoredAt.Format("2006-01-02T15:04:05Z07:00"),
		CompositeScore:  p.CompositeScore,
		ExpectedProfit:  p.ExpectedProfit,
		RiskAdjusted:    p.RiskAdjusted,
		RiskFlags:       flags,
		ThemeSampleSize: p.ThemeSampleSize,
		Horizons:        horizons,
	}
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return -1
	}
	return v
}
