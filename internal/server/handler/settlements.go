package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/dextrustee/dexbridge/internal/domain"
)

// SettlementsHandler serves the settlement audit trail.
type SettlementsHandler struct {
	settlements domain.SettlementStore
	logger      *slog.Logger
}

// NewSettlementsHandler creates a SettlementsHandler.
func NewSettlementsHandler(settlements domain.SettlementStore, logger *slog.Logger) *SettlementsHandler {
	return &SettlementsHandler{
		settlements: settlements,
		logger:      logHandler(logger, "settlements"),
	}
}

// settlementJSON is the wire shape for one settlement record.
type settlementJSON struct {
	TradeID          string  `json:"trade_id"`
	Maker            string  `json:"maker"`
	Taker            string  `json:"taker"`
	TakerSide        string  `json:"taker_side"`
	Price            float64 `json:"price"`
	Quantity         float64 `json:"quantity"`
	TradeTimestamp   int64   `json:"trade_timestamp"`
	SettlementTxHash *string `json:"settlement_tx_hash"`
	Succeeded        bool    `json:"succeeded"`
	ProcessedAt      string  `json:"processed_at"`
}

// ListSettlements responds with settlement records, newest first.
// GET /api/settlements?limit=&offset=
func (h *SettlementsHandler) ListSettlements(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)

	recs, err := h.settlements.List(r.Context(), opts)
	if err != nil {
		h.logger.Error("list settlements failed", "error", err)
		writeError(w, http.StatusInternalServerError, "settlement store unavailable")
		return
	}

	out := make([]settlementJSON, 0, len(recs))
	for _, rec := range recs {
		out = append(out, settlementJSON{
			TradeID:          rec.TradeID,
			Maker:            rec.Maker,
			Taker:            rec.Taker,
			TakerSide:        string(rec.TakerSide),
			Price:            rec.Price,
			Quantity:         rec.Quantity,
			TradeTimestamp:   rec.TradeTimestamp,
			SettlementTxHash: rec.SettlementTxHash,
			Succeeded:        rec.Succeeded(),
			ProcessedAt:      rec.ProcessedAt.UTC().Format(time.RFC3339),
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"settlements": out,
		"limit":       opts.Limit,
		"offset":      opts.Offset,
	})
}
