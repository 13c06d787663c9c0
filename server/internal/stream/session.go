package stream

import (
	"log/slog"
	"sync/atomic"

	"github.com/vitalstream/vitalstream/server/internal/hub"
)

// State is the lifecycle position of a streaming session.
type State int32

const (
	Open State = iota
	Streaming
	Closed
)

func (s State) String() string {
	switch s {
	case Open:
		return "open"
	case Streaming:
		return "streaming"
	case Closed:
		return "closed"
	}
	return "unknown"
}

// session binds one client connection to one hub subscription.
type session struct {
	kind   string
	remote string
	hub    *hub.Hub
	sub    *hub.Subscriber
	state  atomic.Int32
}

func openSession(h *hub.Hub, kind, remote string) *session {
	s := &session{kind: kind, remote: remote, hub: h, sub: h.Subscribe()}
	slog.Debug("stream: session opened", "kind", kind, "subscriber", s.sub.ID, "remote", remote)
	return s
}

func (s *session) events() <-chan hub.Event { return s.sub.Events() }

func (s *session) State() State { return State(s.state.Load()) }

func (s *session) streaming() {
	s.state.CompareAndSwap(int32(Open), int32(Streaming))
}

// serve marks the session Streaming, runs fn and closes the session with the
// reason fn returns. The session is closed even if fn panics.
func (s *session) serve(fn func() string) {
	reason := "aborted"
	defer func() { s.close(reason) }()
	s.streaming()
	reason = fn()
}

// close releases the subscription. Safe to call more than once.
func (s *session) close(reason string) {
	if State(s.state.Swap(int32(Closed))) == Closed {
		return
	}
	s.hub.Unsubscribe(s.sub)
	slog.Debug("stream: session closed", "kind", s.kind, "subscriber", s.sub.ID, "reason", reason)
}
