package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"ticket-runners/internal/auth"
)

// StreamMyTickets streams ownership changes for the caller's tickets as
// Server-Sent Events.
func (h *Handler) StreamMyTickets(w http.ResponseWriter, r *http.Request) {
	caller, ok := auth.CallerFrom(r.Context())
	if !ok {
		http.Error(w, "missing caller identity", http.StatusUnauthorized)
		return
	}
	if h.Emitter == nil {
		http.Error(w, "live updates unavailable", http.StatusServiceUnavailable)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	// Set headers for SSE
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	// Context cancels when the client disconnects
	ctx := r.Context()
	eventChan := h.Emitter.Subscribe(ctx, caller.AccountID)

	fmt.Fprintf(w, "event: connected\ndata: {\"status\":\"connected\",\"accountID\":\"%s\"}\n\n", caller.AccountID)
	flusher.Flush()

	h.Logger.Info("SSE", fmt.Sprintf("Client connected to ownership events for account: %s", caller.AccountID))

	for {
		select {
		case event, open := <-eventChan:
			if !open {
				return
			}

			jsonData, err := json.Marshal(event)
			if err != nil {
				h.Logger.Error("SSE", fmt.Sprintf("Failed to serialize ownership event: %v", err))
				continue
			}

			fmt.Fprintf(w, "event: ownership\ndata: %s\n\n", jsonData)
			flusher.Flush()

		case <-ctx.Done():
			h.Logger.Debug("SSE", fmt.Sprintf("Client disconnected from ownership events for account: %s", caller.AccountID))
			return
		}
	}
}
