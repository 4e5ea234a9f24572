package handler

import (
	"errors"
	"net/http"

	"github.com/xueqianLu/ticketdesk/internal/contract"
	"github.com/xueqianLu/ticketdesk/internal/preflight"
)

// BalancesHandler returns the balance snapshot, refreshing it on request or
// when none exists yet.
type BalancesHandler struct {
	desk Desk
}

// NewBalancesHandler creates a new BalancesHandler.
func NewBalancesHandler(d Desk) *BalancesHandler {
	return &BalancesHandler{desk: d}
}

// ServeHTTP implements the http.Handler interface.
func (h *BalancesHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	snap, ok := h.desk.Snapshot()
	if !ok || r.URL.Query().Get("refresh") == "true" {
		var err error
		snap, err = h.desk.Refresh(r.Context())
		switch {
		case errors.Is(err, preflight.ErrNoWallet):
			writeError(w, http.StatusConflict, "Please load your wallet first.")
			return
		case err != nil:
			var readErr *contract.ReadError
			if errors.As(err, &readErr) {
				writeError(w, http.StatusBadGateway, readErr.Describe())
				return
			}
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}

	writeJSON(w, http.StatusOK, balancesResponse(snap))
}
