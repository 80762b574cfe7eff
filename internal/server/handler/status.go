package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/dextrustee/dexbridge/internal/domain"
)

// StatusHandler serves the bridge runtime status for the ops dashboard.
type StatusHandler struct {
	Mode      string
	StartedAt time.Time
	cursor    domain.CursorStore
	events    domain.EventStore
	logger    *slog.Logger
}

// NewStatusHandler creates a StatusHandler.
func NewStatusHandler(mode string, startedAt time.Time, cursor domain.CursorStore, events domain.EventStore, logger *slog.Logger) *StatusHandler {
	return &StatusHandler{
		Mode:      mode,
		StartedAt: startedAt,
		cursor:    cursor,
		events:    events,
		logger:    logHandler(logger, "status"),
	}
}

// GetStatus responds with the bridge mode, uptime, block cursor, and event
// ledger size.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"mode":           h.Mode,
		"uptime_seconds": int64(time.Since(h.StartedAt).Seconds()),
	}

	block, err := h.cursor.Get(r.Context())
	switch {
	case errors.Is(err, domain.ErrNotFound):
		resp["last_processed_block"] = nil
	case err != nil:
		h.logger.Error("cursor lookup failed", "error", err)
		writeError(w, http.StatusInternalServerError, "cursor unavailable")
		return
	default:
		resp["last_processed_block"] = block
	}

	count, err := h.events.CountOrderEvents(r.Context())
	if err != nil {
		h.logger.Error("event count failed", "error", err)
		writeError(w, http.StatusInternalServerError, "event ledger unavailable")
		return
	}
	resp["order_events"] = count

	writeJSON(w, http.StatusOK, resp)
}
