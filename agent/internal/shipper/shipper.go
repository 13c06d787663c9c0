package shipper

import (
	"context"
	"log/slog"
	"math/rand"
	"time"

	"github.com/vitalstream/vitalstream/agent/internal/config"
	"github.com/vitalstream/vitalstream/pkg/types"
)

const (
	backoffInitial    = 1 * time.Second
	backoffMax        = 60 * time.Second
	backoffMultiplier = 2.0
)

// Shipper buffers readings and hands them to a Sender in order.
// Ship() is non-blocking; when the buffer is full the oldest reading is evicted.
// Run() must be called in a goroutine to drain the buffer.
type Shipper struct {
	buf     chan types.Reading
	sender  Sender
	initial time.Duration // first retry delay, shortened in tests
}

// New creates a Shipper with the buffer size from cfg.
func New(cfg config.AgentConfig, sender Sender) *Shipper {
	size := cfg.BufferSize
	if size <= 0 {
		size = config.DefaultBufferSize
	}
	return &Shipper{
		buf:     make(chan types.Reading, size),
		sender:  sender,
		initial: backoffInitial,
	}
}

// Ship enqueues r. If the buffer is full the oldest entry is evicted to
// make room.
func (s *Shipper) Ship(r types.Reading) {
	for {
		select {
		case s.buf <- r:
			return
		default:
		}
		select {
		case old := <-s.buf:
			slog.Warn("shipper: buffer full, evicted oldest reading",
				"patient", old.PatientID, "buffer_cap", cap(s.buf))
		default:
		}
	}
}

// Pending returns the number of buffered readings.
func (s *Shipper) Pending() int { return len(s.buf) }

// Run drains the buffer, retrying a failed reading with exponential backoff
// until it is delivered or permanently rejected. Run blocks until ctx is
// cancelled.
func (s *Shipper) Run(ctx context.Context) {
	bo := newBackoff(s.initial)

	for {
		var r types.Reading
		select {
		case <-ctx.Done():
			return
		case r = <-s.buf:
		}

		for {
			sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
			err := s.sender.Send(sendCtx, r)
			cancel()

			if err == nil {
				bo.reset()
				break
			}
			if ctx.Err() != nil {
				return
			}
			if IsPermanent(err) {
				slog.Error("shipper: permanent send error, discarding reading",
					"patient", r.PatientID, "err", err)
				break
			}

			wait := bo.next()
			slog.Warn("shipper: send failed, will retry",
				"patient", r.PatientID,
				"err", err,
				"retry_in", wait,
				"pending", len(s.buf))
			select {
			case <-ctx.Done():
				return
			case <-time.After(wait):
			}
		}
	}
}

// backoff implements truncated exponential backoff with jitter.
type backoff struct {
	initial time.Duration
	current time.Duration
}

func newBackoff(initial time.Duration) *backoff {
	return &backoff{initial: initial, current: initial}
}

// next returns the current backoff duration and advances the internal state.
func (b *backoff) next() time.Duration {
	d := b.current
	// Apply ±25 % jitter.
	jitter := time.Duration(float64(b.current) * 0.25 * (rand.Float64()*2 - 1)) //nolint:gosec // not crypto
	d += jitter
	if d < 0 {
		d = 0
	}

	b.current = time.Duration(float64(b.current) * backoffMultiplier)
	if b.current > backoffMax {
		b.current = backoffMax
	}
	return d
}

func (b *backoff) reset() {
	b.current = b.initial
}
