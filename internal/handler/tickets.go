package handler

import (
	"encoding/json"
	"net/http"

	"github.com/xueqianLu/ticketdesk/internal/intent"
	"github.com/xueqianLu/ticketdesk/internal/outcome"
	"github.com/xueqianLu/ticketdesk/internal/preflight"
)

// TicketsHandler submits a buy or redeem intent and waits for it to resolve.
type TicketsHandler struct {
	desk Desk
	kind intent.Kind
}

// NewTicketsHandler creates a handler submitting intents of kind.
func NewTicketsHandler(d Desk, kind intent.Kind) *TicketsHandler {
	return &TicketsHandler{desk: d, kind: kind}
}

// ServeHTTP implements the http.Handler interface.
func (h *TicketsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req TicketsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	in, err := intent.New(h.kind, req.rawQuantity())
	if err != nil {
		// rejected here so that bad input never reaches the coordinator
		o := outcome.From(preflight.InvalidQuantity(err))
		writeJSON(w, statusFor(o.Kind), AttemptResponse{
			Intent:  h.kind.String(),
			Kind:    o.Kind.String(),
			Message: o.Message,
		})
		return
	}

	res := h.desk.Submit(r.Context(), in)
	writeJSON(w, statusFor(res.Outcome.Kind), attemptResponse(&res))
}
