package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/dextrustee/dexbridge/internal/domain"
)

// EventsHandler serves the ledgered on-chain events.
type EventsHandler struct {
	events domain.EventStore
	logger *slog.Logger
}

// NewEventsHandler creates an EventsHandler.
func NewEventsHandler(events domain.EventStore, logger *slog.Logger) *EventsHandler {
	return &EventsHandler{
		events: events,
		logger: logHandler(logger, "events"),
	}
}

// orderEventJSON is the wire shape for one ledgered order event.
type orderEventJSON struct {
	BlockNumber    uint64 `json:"block_number"`
	TxHash         string `json:"tx_hash"`
	LogIndex       uint   `json:"log_index"`
	Sender         string `json:"sender"`
	Token          string `json:"token"`
	Amount         string `json:"amount"`
	OrderType      string `json:"order_type"`
	Size           string `json:"size"`
	Side           string `json:"side"`
	MarketCode     string `json:"market_code"`
	BlockTimestamp string `json:"block_timestamp"`
}

// ListEvents responds with ledgered order events, newest first.
// GET /api/events?limit=&offset=
func (h *EventsHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)

	events, err := h.events.ListOrderEvents(r.Context(), opts)
	if err != nil {
		h.logger.Error("list events failed", "error", err)
		writeError(w, http.StatusInternalServerError, "event ledger unavailable")
		return
	}

	out := make([]orderEventJSON, 0, len(events))
	for _, e := range events {
		out = append(out, orderEventJSON{
			BlockNumber:    e.BlockNumber,
			TxHash:         e.TxHash,
			LogIndex:       e.LogIndex,
			Sender:         e.Sender,
			Token:          e.Token,
			Amount:         e.Amount,
			OrderType:      e.OrderType.String(),
			Size:           e.Size,
			Side:           e.Side,
			MarketCode:     e.MarketCode,
			BlockTimestamp: e.BlockTimestamp.UTC().Format(time.RFC3339),
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"events": out,
		"limit":  opts.Limit,
		"offset": opts.Offset,
	})
}
