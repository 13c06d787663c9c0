package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/vitalstream/vitalstream/server/internal/config"
	"github.com/vitalstream/vitalstream/server/internal/hub"
)

const writeTimeout = 5 * time.Second

// StreamAdder is the subset of *redis.Client the relay uses.
type StreamAdder interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
}

// Relay copies hub events into one Redis stream.
type Relay struct {
	client StreamAdder
	hub    *hub.Hub
	stream string
	maxLen int64
}

// New creates a Relay writing to stream, trimmed to roughly maxLen entries.
func New(client StreamAdder, h *hub.Hub, stream string, maxLen int64) *Relay {
	return &Relay{client: client, hub: h, stream: stream, maxLen: maxLen}
}

// Dial connects to Redis and checks the connection with PING.
func Dial(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password(),
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("relay: ping %s: %w", cfg.Addr, err)
	}
	return client, nil
}

// Run relays events until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) {
	sub := r.hub.Subscribe()
	slog.Info("relay: started", "stream", r.stream, "max_len", r.maxLen)

	for {
		select {
		case <-ctx.Done():
			r.hub.Unsubscribe(sub)
			slog.Info("relay: stopped")
			return

		case ev, ok := <-sub.Events():
			if !ok {
				if ctx.Err() != nil {
					return
				}
				slog.Warn("relay: subscription dropped by hub, resubscribing")
				sub = r.hub.Subscribe()
				continue
			}
			if err := r.write(ctx, ev); err != nil {
				slog.Error("relay: xadd failed", "id", ev.ID, "err", err)
			}
		}
	}
}

// write appends one event to the stream.
func (r *Relay) write(ctx context.Context, ev hub.Event) error {
	data, err := json.Marshal(ev.Record)
	if err != nil {
		return fmt.Errorf("relay: marshal record %d: %w", ev.ID, err)
	}

	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	args := &redis.XAddArgs{
		Stream: r.stream,
		Values: map[string]interface{}{
			"type":       ev.Type,
			"id":         strconv.FormatInt(ev.ID, 10),
			"patient_id": ev.Record.PatientID,
			"hash":       ev.Hash,
			"data":       string(data),
		},
	}
	if r.maxLen > 0 {
		args.MaxLen = r.maxLen
		args.Approx = true
	}
	return r.client.XAdd(ctx, args).Err()
}
