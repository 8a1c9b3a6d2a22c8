package handler

import (
	"net/http"
	"time"

	"github.com/alanyoungcy/sharesniper/internal/domain"
)

// StatusSource exposes the live agent state the status endpoint reports.
type StatusSource interface {
	Mode() string
	Halted() bool
	OpenPositions() int
	GasQuote() (domain.GasQuote, error)
}

// StatusHandler serves the agent status endpoint.
type StatusHandler struct {
	source  StatusSource
	started time.Time
}

// NewStatusHandler creates a StatusHandler.
func NewStatusHandler(source StatusSource) *StatusHandler {
	return &StatusHandler{source: source, started: time.Now().UTC()}
}

// Status reports mode, halt state, book size, uptime and the current gas
// quote.
// GET /api/status
func (h *StatusHandler) Status(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{
		"mode":           h.source.Mode(),
		"halted":         h.source.Halted(),
		"open_positions": h.source.OpenPositions(),
		"uptime_seconds": int(time.Since(h.started).Seconds()),
	}

	if q, err := h.source.GasQuote(); err == nil {
		body["gas"] = map[string]any{
			"base_fee_wei": q.BaseFeePerGas.String(),
			"derived_wei":  q.DerivedPrice.String(),
			"fetched_at":   q.FetchedAt.UTC().Format(time.RFC3339),
		}
	} else {
		body["gas"] = nil
	}

	writeJSON(w, http.StatusOK, body)
}
