package handler

import "net/http"

// AttemptHandler reports the coordinator state and the last resolved attempt.
type AttemptHandler struct {
	desk Desk
}

// NewAttemptHandler creates a new AttemptHandler.
func NewAttemptHandler(d Desk) *AttemptHandler {
	return &AttemptHandler{desk: d}
}

// ServeHTTP implements the http.Handler interface.
func (h *AttemptHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	st := h.desk.Status()
	writeJSON(w, http.StatusOK, StatusResponse{
		State:    st.State.String(),
		InFlight: st.InFlight,
		Last:     attemptResponse(st.Last),
	})
}
