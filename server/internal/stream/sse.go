package stream

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/vitalstream/vitalstream/server/internal/hub"
)

// DefaultHeartbeat is used when New is given a non-positive interval.
const DefaultHeartbeat = 15 * time.Second

// Server serves the live record streams.
type Server struct {
	hub       *hub.Hub
	heartbeat time.Duration

	pongWait   time.Duration
	pingPeriod time.Duration
}

// New creates a Server streaming events from h. heartbeat sets both the SSE
// comment interval and the WebSocket ping period.
func New(h *hub.Hub, heartbeat time.Duration) *Server {
	if heartbeat <= 0 {
		heartbeat = DefaultHeartbeat
	}
	return &Server{
		hub:        h,
		heartbeat:  heartbeat,
		pingPeriod: heartbeat,
		pongWait:   heartbeat * 4,
	}
}

// ServeSSE streams events as text/event-stream until the client goes away,
// a write fails, or the hub drops the subscription.
func (s *Server) ServeSSE(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, `{"error":"method not allowed"}`, http.StatusMethodNotAllowed)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, `{"error":"streaming unsupported"}`, http.StatusInternalServerError)
		return
	}

	sess := openSession(s.hub, "sse", r.RemoteAddr)
	reason := "client disconnected"
	defer func() { sess.close(reason) }()

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()
	sess.streaming()

	ticker := time.NewTicker(s.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return

		case ev, ok := <-sess.events():
			if !ok {
				reason = "removed by hub"
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				slog.Error("stream: marshal event", "id", ev.ID, "err", err)
				continue
			}
			if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
				reason = "write failed"
				return
			}
			flusher.Flush()

		case <-ticker.C:
			if _, err := io.WriteString(w, ": ping\n\n"); err != nil {
				reason = "write failed"
				return
			}
			flusher.Flush()
		}
	}
}
