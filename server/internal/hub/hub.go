package hub

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/vitalstream/vitalstream/pkg/types"
)

// DefaultBufSize is the per-subscriber event buffer depth.
const DefaultBufSize = 16

// TypeNewRecord is the event type published for every ingested record.
const TypeNewRecord = "new_record"

// Event is the message delivered to subscribers.
type Event struct {
	Type   string        `json:"type"`
	ID     int64         `json:"id"`
	Record types.Content `json:"record"`
	Hash   string        `json:"hash"`
}

// NewRecordEvent builds the event for a freshly stored record.
func NewRecordEvent(id int64, c types.Content, hash string) Event {
	return Event{Type: TypeNewRecord, ID: id, Record: c, Hash: hash}
}

// Subscriber is one registered observer.
type Subscriber struct {
	ID string

	events    chan Event
	done      chan struct{}
	closeOnce sync.Once
}

// Events returns the delivery channel. It is closed when the hub removes the
// subscriber.
func (s *Subscriber) Events() <-chan Event { return s.events }

// Close signals that the consumer is gone. The hub drops the subscriber on
// its next publish or on Unsubscribe. Close is idempotent.
func (s *Subscriber) Close() {
	s.closeOnce.Do(func() { close(s.done) })
}

func (s *Subscriber) closed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// Hub owns the set of active subscribers. It is safe for concurrent use.
type Hub struct {
	bufSize int

	mu   sync.Mutex
	subs map[*Subscriber]struct{}

	dropped atomic.Uint64
}

// New creates a Hub whose subscribers buffer up to bufSize events.
// A non-positive bufSize selects DefaultBufSize.
func New(bufSize int) *Hub {
	if bufSize <= 0 {
		bufSize = DefaultBufSize
	}
	return &Hub{
		bufSize: bufSize,
		subs:    make(map[*Subscriber]struct{}),
	}
}

// Subscribe registers a new subscriber.
func (h *Hub) Subscribe() *Subscriber {
	s := &Subscriber{
		ID:     uuid.NewString(),
		events: make(chan Event, h.bufSize),
		done:   make(chan struct{}),
	}
	h.mu.Lock()
	h.subs[s] = struct{}{}
	h.mu.Unlock()
	return s
}

// Unsubscribe removes s and closes its Events channel. Calling it for a
// subscriber that was already removed is a no-op.
func (h *Hub) Unsubscribe(s *Subscriber) {
	s.Close()
	h.mu.Lock()
	h.remove(s)
	h.mu.Unlock()
}

// Publish delivers ev to every active subscriber without blocking.
// Subscribers that cannot accept it are removed.
func (h *Hub) Publish(ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for s := range h.subs {
		if s.closed() {
			h.remove(s)
			continue
		}
		select {
		case s.events <- ev:
		default:
			// Buffer full: the consumer is too slow to keep.
			h.remove(s)
			h.dropped.Add(1)
			slog.Debug("hub: dropped slow subscriber", "subscriber", s.ID, "event_id", ev.ID)
		}
	}
}

// Count returns the number of active subscribers.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Dropped returns how many subscribers have been removed for a full buffer.
func (h *Hub) Dropped() uint64 {
	return h.dropped.Load()
}

// Close removes every subscriber, closing their channels.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for s := range h.subs {
		s.Close()
		h.remove(s)
	}
}

// remove must be called with h.mu held.
func (h *Hub) remove(s *Subscriber) {
	if _, ok := h.subs[s]; ok {
		delete(h.subs, s)
		close(s.events)
	}
}
