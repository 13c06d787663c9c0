package stream

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const writeTimeout = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// ServeWS upgrades the connection to WebSocket and forwards events as text
// frames. Blocks until the connection closes.
func (s *Server) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// upgrader has already written the error response.
		return
	}

	sess := openSession(s.hub, "websocket", r.RemoteAddr)
	defer conn.Close()

	done := make(chan struct{})
	go func() {
		s.readPump(conn)
		close(done)
	}()

	sess.serve(func() string { return s.writePump(conn, sess, done) })
}

// writePump forwards hub events and keepalive pings until the client goes
// away or the subscription ends. It returns the reason it stopped.
func (s *Server) writePump(conn *websocket.Conn, sess *session, done <-chan struct{}) string {
	ticker := time.NewTicker(s.pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return "client disconnected"

		case ev, ok := <-sess.events():
			conn.SetWriteDeadline(time.Now().Add(writeTimeout)) //nolint:errcheck
			if !ok {
				conn.WriteMessage(websocket.CloseMessage, //nolint:errcheck
					websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return "removed by hub"
			}
			data, err := json.Marshal(ev)
			if err != nil {
				slog.Error("stream: marshal event", "id", ev.ID, "err", err)
				continue
			}
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return "write failed"
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeTimeout)) //nolint:errcheck
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return "write failed"
			}
		}
	}
}

// readPump consumes control frames (pong, close) and detects disconnects.
// Clients are not expected to send data.
func (s *Server) readPump(conn *websocket.Conn) {
	conn.SetReadLimit(512)
	conn.SetReadDeadline(time.Now().Add(s.pongWait)) //nolint:errcheck
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(s.pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
