package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/hadleybricks/brickvest/internal/contracts"
	"github.com/hadleybricks/brickvest/pkg/logger"
)

// maxImportBatch bounds one import request.
const maxImportBatch = 10000

// SnapshotHandler handles bulk price-snapshot imports.
type SnapshotHandler struct {
	snapshots contracts.SnapshotRepository
	logger    *logger.Logger
}

// NewSnapshotHandler creates a snapshot import handler.
func NewSnapshotHandler(snapshots contracts.SnapshotRepository, log *logger.Logger) *SnapshotHandler {
	return &SnapshotHandler{snapshots: snapshots, logger: log}
}

type snapshotPayload struct {
	SetNumber      string    `json:"set_number"`
	CapturedAt     time.Time `json:"captured_at"`
	Price          float64   `json:"price"`
	ListPrice      *float64  `json:"list_price,omitempty"`
	SellerCount    *int      `json:"seller_count,omitempty"`
	BuyBoxIsAmazon *bool     `json:"buy_box_is_amazon,omitempty"`
	Source         string    `json:"source"`
}

type importRequest struct {
	Snapshots []snapshotPayload `json:"snapshots"`
}

// Import upserts a batch of price snapshots.
// POST /api/import/snapshots
func (h *SnapshotHandler) Import(w http.ResponseWriter, r *http.Request) {
	var req importRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	if len(req.Snapshots) == 0 {
		respondError(w, http.StatusBadRequest, "No snapshots in request")
		return
	}
	if len(req.Snapshots) > maxImportBatch {
		respondError(w, http.StatusRequestEntityTooLarge, "Too many snapshots in one request")
		return
	}

	snaps := make([]contracts.PriceSnapshot, 0, len(req.Snapshots))
	for i, p := range req.Snapshots {
		if p.SetNumber == "" || p.Source == "" || p.CapturedAt.IsZero() {
			h.logger.WithField("index", i).Warn("Snapshot missing required fields")
			respondError(w, http.StatusBadRequest, "Snapshots need set_number, captured_at and source")
			return
		}
		snaps = append(snaps, contracts.PriceSnapshot{
			SetNumber:      p.SetNumber,
			CapturedAt:     p.CapturedAt,
			Price:          p.Price,
			ListPrice:      p.ListPrice,
			SellerCount:    p.SellerCount,
			BuyBoxIsAmazon: p.BuyBoxIsAmazon,
			Source:         p.Source,
		})
	}

	inserted, err := h.snapshots.InsertBatch(r.Context(), snaps)
	if err != nil {
		h.logger.WithError(err).Error("Snapshot import failed")
		respondError(w, http.StatusInternalServerError, "Failed to store snapshots")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"received": len(req.Snapshots),
		"upserted": inserted,
	})
}
