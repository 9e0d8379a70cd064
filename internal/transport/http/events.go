package transporthttp

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// pingInterval is how long a stream may stay idle before a keepalive
// frame is sent.
const pingInterval = 30 * time.Second

// handleEvents streams completion events as server-sent events. The
// subscription is released when the client disconnects.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	sub, err := s.events.Subscribe()
	if err != nil {
		s.writeError(w, http.StatusServiceUnavailable, "too many event subscribers")
		return
	}
	defer sub.Cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ping := time.NewTicker(pingInterval)
	defer ping.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case event, open := <-sub.C:
			if !open {
				return
			}
			data, err := json.Marshal(event)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: message\ndata: %s\n\n", data)
			flusher.Flush()
			ping.Reset(pingInterval)
		case <-ping.C:
			fmt.Fprint(w, "event: ping\ndata: \n\n")
			flusher.Flush()
		}
	}
}
