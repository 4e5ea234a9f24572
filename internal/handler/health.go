package handler

import "net/http"

// HealthHandler reports liveness along with whether a wallet is loaded and
// where the attempt state machine currently is.
type HealthHandler struct {
	desk Desk
}

// NewHealthHandler creates a new HealthHandler.
func NewHealthHandler(d Desk) *HealthHandler {
	return &HealthHandler{desk: d}
}

// ServeHTTP implements the http.Handler interface.
func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	st := h.desk.Status()
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:       "ok",
		WalletLoaded: h.desk.Session() != nil,
		State:        st.State.String(),
		InFlight:     st.InFlight,
	})
}
