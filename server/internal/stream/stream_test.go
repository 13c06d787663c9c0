package stream

import (
	"bufio"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vitalstream/vitalstream/pkg/types"
	"github.com/vitalstream/vitalstream/server/internal/hub"
)

// --- helpers ----------------------------------------------------------------

func event(id int64) hub.Event {
	return hub.NewRecordEvent(id, types.Content{
		Timestamp: 1700000000.25,
		PatientID: "p1",
		Vitals:    types.Vitals{types.HeartRate: 80},
		AIResult:  "Normal",
	}, "abc123")
}

func startServer(t *testing.T, heartbeat time.Duration) (*hub.Hub, *httptest.Server) {
	t.Helper()
	h := hub.New(8)
	s := New(h, heartbeat)
	mux := http.NewServeMux()
	mux.HandleFunc("/stream", s.ServeSSE)
	mux.HandleFunc("/ws/stream", s.ServeWS)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return h, srv
}

// waitCount polls until the hub has want subscribers.
func waitCount(t *testing.T, h *hub.Hub, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for h.Count() != want {
		if time.Now().After(deadline) {
			t.Fatalf("hub subscribers: got %d, want %d", h.Count(), want)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func openSSE(t *testing.T, url string) (*http.Response, *bufio.Reader) {
	t.Helper()
	resp, err := http.Get(url + "/stream")
	if err != nil {
		t.Fatalf("GET /stream: %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp, bufio.NewReader(resp.Body)
}

// nextData returns the payload of the next "data:" line, skipping comments
// and blank separators.
func nextData(t *testing.T, r *bufio.Reader) string {
	t.Helper()
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			t.Fatalf("read SSE: %v", err)
		}
		if strings.HasPrefix(line, "data: ") {
			return strings.TrimSuffix(strings.TrimPrefix(line, "data: "), "\n")
		}
	}
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(url, "http") + "/ws/stream"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", wsURL, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// --- SSE --------------------------------------------------------------------

func TestSSE_Headers(t *testing.T) {
	_, srv := startServer(t, time.Minute)
	resp, _ := openSSE(t, srv.URL)

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status: got %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type: got %q", ct)
	}
	if cc := resp.Header.Get("Cache-Control"); cc != "no-cache" {
		t.Errorf("Cache-Control: got %q", cc)
	}
}

func TestSSE_DeliversPublishedEvent(t *testing.T) {
	h, srv := startServer(t, time.Minute)
	_, r := openSSE(t, srv.URL)
	waitCount(t, h, 1)

	h.Publish(event(5))

	var got hub.Event
	if err := json.Unmarshal([]byte(nextData(t, r)), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Type != hub.TypeNewRecord || got.ID != 5 || got.Hash != "abc123" {
		t.Errorf("event: %+v", got)
	}
	if got.Record.PatientID != "p1" || got.Record.Vitals[types.HeartRate] != 80 {
		t.Errorf("record: %+v", got.Record)
	}
}

func TestSSE_Heartbeat(t *testing.T) {
	h, srv := startServer(t, 20*time.Millisecond)
	_, r := openSSE(t, srv.URL)
	waitCount(t, h, 1)

	line, err := r.ReadString('\n')
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if line != ": ping\n" {
		t.Errorf("heartbeat: got %q", line)
	}
}

func TestSSE_ClientDisconnect_Unsubscribes(t *testing.T) {
	h, srv := startServer(t, time.Minute)
	resp, _ := openSSE(t, srv.URL)
	waitCount(t, h, 1)

	resp.Body.Close()
	waitCount(t, h, 0)
}

func TestSSE_HubClose_EndsStream(t *testing.T) {
	h, srv := startServer(t, time.Minute)
	_, r := openSSE(t, srv.URL)
	waitCount(t, h, 1)

	h.Close()

	done := make(chan error, 1)
	go func() {
		_, err := r.ReadString('\n')
		done <- err
	}()
	select {
	case err := <-done:
		if err == nil {
			t.Error("expected EOF after hub close")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("stream still open after hub close")
	}
}

func TestSSE_MethodNotAllowed(t *testing.T) {
	_, srv := startServer(t, time.Minute)
	resp, err := http.Post(srv.URL+"/stream", "application/json", nil)
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("status: got %d, want 405", resp.StatusCode)
	}
}

// --- WebSocket --------------------------------------------------------------

func TestWS_DeliversEventsInOrder(t *testing.T) {
	h, srv := startServer(t, time.Minute)
	conn := dial(t, srv.URL)
	waitCount(t, h, 1)

	for id := int64(1); id <= 3; id++ {
		h.Publish(event(id))
	}

	for want := int64(1); want <= 3; want++ {
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		mt, msg, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("ReadMessage: %v", err)
		}
		if mt != websocket.TextMessage {
			t.Errorf("message type: got %d, want text", mt)
		}
		var ev hub.Event
		if err := json.Unmarshal(msg, &ev); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if ev.ID != want {
			t.Errorf("id: got %d, want %d", ev.ID, want)
		}
	}
}

func TestWS_ClientClose_Unsubscribes(t *testing.T) {
	h, srv := startServer(t, time.Minute)
	conn := dial(t, srv.URL)
	waitCount(t, h, 1)

	conn.Close()
	waitCount(t, h, 0)
}

func TestWS_HubClose_SendsCloseFrame(t *testing.T) {
	h, srv := startServer(t, time.Minute)
	conn := dial(t, srv.URL)
	waitCount(t, h, 1)

	h.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	if !websocket.IsCloseError(err, websocket.CloseGoingAway) {
		t.Errorf("ReadMessage: got %v, want close going-away", err)
	}
}

func TestWS_Ping(t *testing.T) {
	h, srv := startServer(t, 20*time.Millisecond)
	conn := dial(t, srv.URL)
	waitCount(t, h, 1)

	pinged := make(chan struct{}, 1)
	conn.SetPingHandler(func(string) error {
		select {
		case pinged <- struct{}{}:
		default:
		}
		return nil
	})
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	select {
	case <-pinged:
	case <-time.After(2 * time.Second):
		t.Fatal("no ping received")
	}
}

// --- session ----------------------------------------------------------------

func TestSession_Lifecycle(t *testing.T) {
	h := hub.New(1)
	s := openSession(h, "test", "local")
	if s.State() != Open || h.Count() != 1 {
		t.Fatalf("open: state=%v count=%d", s.State(), h.Count())
	}
	s.streaming()
	if s.State() != Streaming {
		t.Errorf("state: got %v, want streaming", s.State())
	}
	s.close("done")
	s.close("again")
	if s.State() != Closed || h.Count() != 0 {
		t.Errorf("closed: state=%v count=%d", s.State(), h.Count())
	}
	s.streaming()
	if s.State() != Closed {
		t.Errorf("streaming after close: got %v", s.State())
	}
}

func TestSession_ServeClosesOnPanic(t *testing.T) {
	h := hub.New(1)
	s := openSession(h, "test", "local")

	func() {
		defer func() {
			if recover() == nil {
				t.Error("panic not propagated")
			}
		}()
		s.serve(func() string { panic("write pump failed") })
	}()

	if s.State() != Closed || h.Count() != 0 {
		t.Errorf("after panic: state=%v count=%d", s.State(), h.Count())
	}
}

func TestSession_ServeReturnsReason(t *testing.T) {
	h := hub.New(1)
	s := openSession(h, "test", "local")
	var during State
	s.serve(func() string {
		during = s.State()
		return "client closed"
	})
	if during != Streaming {
		t.Errorf("state during serve: got %v, want streaming", during)
	}
	if s.State() != Closed || h.Count() != 0 {
		t.Errorf("after serve: state=%v count=%d", s.State(), h.Count())
	}
}
