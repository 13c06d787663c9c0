package alerts

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/vitalstream/vitalstream/server/internal/config"
)

const (
	defaultHistoryLen = 200
	sendTimeout       = 15 * time.Second
)

// Alert is one notification produced for an alerting reading.
type Alert struct {
	ID        string    `json:"id"`
	RecordID  int64     `json:"record_id"`
	PatientID string    `json:"patient_id"`
	Alerts    []string  `json:"alerts"`
	Message   string    `json:"message"`
	FiredAt   time.Time `json:"fired_at"`

	// Suppressed is true when the cooldown prevented delivery.
	Suppressed bool `json:"suppressed"`
}

// Notifier delivers an alert over one outbound channel.
type Notifier interface {
	Name() string
	Send(ctx context.Context, a *Alert) error
}

// Dispatcher fans alerts out to the configured notifiers.
//
// Dispatcher is safe for concurrent use.
type Dispatcher struct {
	mu        sync.Mutex
	notifiers []Notifier
	cooldown  time.Duration
	maxHist   int
	lastFire  map[string]time.Time // per patient
	history   []*Alert
	now       func() time.Time
	closed    bool

	inflight sync.WaitGroup
}

// NewDispatcher creates a Dispatcher with explicit notifiers.
func NewDispatcher(cooldown time.Duration, history int, notifiers ...Notifier) *Dispatcher {
	if history <= 0 {
		history = defaultHistoryLen
	}
	return &Dispatcher{
		notifiers: notifiers,
		cooldown:  cooldown,
		maxHist:   history,
		lastFire:  make(map[string]time.Time),
		now:       time.Now,
	}
}

// New creates a Dispatcher from the server alert configuration.
// A Dispatcher with no notifiers is valid; alerts are still recorded.
func New(cfg config.AlertsConfig) *Dispatcher {
	return NewDispatcher(cfg.Cooldown, cfg.History, Build(cfg, newClient())...)
}

// Build constructs the notifiers described by cfg. Targets whose secrets
// are missing from the environment are skipped with a warning.
func Build(cfg config.AlertsConfig, client *resty.Client) []Notifier {
	var out []Notifier
	if cfg.Twilio.Enabled() {
		out = append(out, NewTwilio(client, cfg.Twilio))
	} else if cfg.Twilio.AccountSIDEnv != "" || cfg.Twilio.From != "" {
		slog.Warn("alerts: twilio configured but credentials missing, skipping")
	}
	for _, wh := range cfg.Webhooks {
		url := wh.URL()
		if url == "" {
			slog.Warn("alerts: webhook url not set, skipping", "type", wh.Type, "url_env", wh.URLEnv)
			continue
		}
		out = append(out, NewWebhook(client, wh.Type, url))
	}
	return out
}

// Reload swaps in notifiers and cooldown from a new configuration.
// Cooldown state and history are kept.
func (d *Dispatcher) Reload(cfg config.AlertsConfig) {
	notifiers := Build(cfg, newClient())
	d.mu.Lock()
	d.notifiers = notifiers
	d.cooldown = cfg.Cooldown
	d.mu.Unlock()
	slog.Info("alerts: notifiers reloaded",
		"notifiers", lo.Map(notifiers, func(n Notifier, _ int) string { return n.Name() }))
}

// Notify records an alert for recordID and starts delivery in the
// background. It never blocks on a notifier and never fails.
func (d *Dispatcher) Notify(recordID int64, patientID string, alerts []string, message string) {
	now := d.now()
	a := &Alert{
		ID:        uuid.NewString(),
		RecordID:  recordID,
		PatientID: patientID,
		Alerts:    append([]string(nil), alerts...),
		Message:   message,
		FiredAt:   now,
	}

	d.mu.Lock()
	last, seen := d.lastFire[patientID]
	if d.cooldown > 0 && seen && now.Sub(last) < d.cooldown {
		a.Suppressed = true
	} else {
		d.lastFire[patientID] = now
	}
	d.history = append(d.history, a)
	if len(d.history) > d.maxHist {
		d.history = d.history[len(d.history)-d.maxHist:]
	}
	alertCopy := *a
	var notifiers []Notifier
	if !a.Suppressed && !d.closed {
		notifiers = d.notifiers
		d.inflight.Add(len(notifiers))
	}
	closed := d.closed
	d.mu.Unlock()

	slog.Warn("alert fired",
		"record_id", recordID,
		"patient_id", patientID,
		"alerts", alerts,
		"suppressed", a.Suppressed,
	)
	if closed && !a.Suppressed {
		slog.Warn("alerts: dispatcher closed, alert not delivered", "record_id", recordID)
	}
	for _, n := range notifiers {
		go d.deliver(n, &alertCopy)
	}
}

// Recent returns copies of recorded alerts, newest first.
func (d *Dispatcher) Recent() []Alert {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Alert, 0, len(d.history))
	for i := len(d.history) - 1; i >= 0; i-- {
		out = append(out, *d.history[i])
	}
	return out
}

// Close stops scheduling deliveries and blocks until in-flight ones have
// finished. Alerts notified after Close are still recorded in history.
// Safe to call more than once.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	d.inflight.Wait()
}

func (d *Dispatcher) deliver(n Notifier, a *Alert) {
	defer d.inflight.Done()
	defer func() {
		if r := recover(); r != nil {
			slog.Error("alerts: notifier panicked", "notifier", n.Name(), "panic", r)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()

	if err := n.Send(ctx, a); err != nil {
		slog.Error("alerts: delivery failed",
			"notifier", n.Name(),
			"record_id", a.RecordID,
			"err", err,
		)
		return
	}
	slog.Debug("alerts: delivered", "notifier", n.Name(), "record_id", a.RecordID)
}

func newClient() *resty.Client {
	return resty.New().
		SetTimeout(10*time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second)
}
