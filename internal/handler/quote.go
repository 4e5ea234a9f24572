package handler

import (
	"errors"
	"net/http"

	"github.com/xueqianLu/ticketdesk/internal/intent"
	"github.com/xueqianLu/ticketdesk/internal/outcome"
	"github.com/xueqianLu/ticketdesk/internal/preflight"
	"github.com/xueqianLu/ticketdesk/internal/units"
)

// QuoteHandler prices a quantity of tickets.
type QuoteHandler struct {
	desk Desk
}

// NewQuoteHandler creates a new QuoteHandler.
func NewQuoteHandler(d Desk) *QuoteHandler {
	return &QuoteHandler{desk: d}
}

// ServeHTTP implements the http.Handler interface.
func (h *QuoteHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	quantity, err := intent.ParseQuantity(r.URL.Query().Get("quantity"))
	if err != nil {
		writeError(w, http.StatusBadRequest, outcome.From(preflight.InvalidQuantity(err)).Message)
		return
	}

	quote, err := h.desk.Quote(r.Context(), quantity)
	if err != nil {
		o := outcome.From(err)
		if errors.Is(err, intent.ErrInvalidQuantity) {
			writeError(w, http.StatusBadRequest, o.Message)
			return
		}
		writeError(w, http.StatusBadGateway, o.Message)
		return
	}

	writeJSON(w, http.StatusOK, QuoteResponse{
		Quantity:     quantity,
		UnitPrice:    units.FormatEther(quote.UnitPrice),
		UnitPriceWei: quote.UnitPrice.String(),
		Total:        units.FormatEther(quote.Total),
		TotalWei:     quote.Total.String(),
	})
}
