package handler

import (
	"net/http"
	"time"

	"github.com/alanyoungcy/sharesniper/internal/ledger"
)

// PositionsHandler serves the open book.
type PositionsHandler struct {
	book *ledger.Ledger
}

// NewPositionsHandler creates a PositionsHandler reading from book.
func NewPositionsHandler(book *ledger.Ledger) *PositionsHandler {
	return &PositionsHandler{book: book}
}

type positionView struct {
	Subject     string `json:"subject"`
	Quantity    string `json:"quantity"`
	BuyPriceWei string `json:"buy_price_wei"`
	OpenedAt    string `json:"opened_at,omitempty"`
}

// ListPositions returns every open position.
// GET /api/positions
func (h *PositionsHandler) ListPositions(w http.ResponseWriter, r *http.Request) {
	positions := h.book.Positions()

	views := make([]positionView, 0, len(positions))
	for _, p := range positions {
		v := positionView{
			Subject:     p.Subject.Hex(),
			Quantity:    p.Quantity.String(),
			BuyPriceWei: p.BuyPriceWei.String(),
		}
		if !p.OpenedAt.IsZero() {
			v.OpenedAt = p.OpenedAt.UTC().Format(time.RFC3339)
		}
		views = append(views, v)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"count":     len(views),
		"positions": views,
	})
}
