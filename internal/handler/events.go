package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/xueqianLu/ticketdesk/internal/coordinator"
)

// eventBuffer is how far a stream may fall behind before events are dropped for it.
const eventBuffer = 64

// EventsHandler streams coordinator notifications as server-sent events until
// the client goes away or the coordinator closes.
type EventsHandler struct {
	desk Desk
}

// NewEventsHandler creates a new EventsHandler.
func NewEventsHandler(d Desk) *EventsHandler {
	return &EventsHandler{desk: d}
}

// ServeHTTP implements the http.Handler interface.
func (h *EventsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "Streaming unsupported")
		return
	}

	ch := make(chan coordinator.Event, eventBuffer)
	sub := h.desk.Subscribe(ch)
	defer sub.Unsubscribe()

	// the stream outlives the server write timeout
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, ": subscribed\n\n")
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-sub.Err():
			return
		case ev := <-ch:
			data, err := json.Marshal(eventResponse(ev))
			if err != nil {
				continue
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
