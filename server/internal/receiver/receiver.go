package receiver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/vitalstream/vitalstream/pkg/types"
	"github.com/vitalstream/vitalstream/server/internal/config"
	"github.com/vitalstream/vitalstream/server/internal/ingest"
)

const (
	ingestTimeout  = 10 * time.Second
	connectTimeout = 10 * time.Second
	quiesceMillis  = 250
)

// Ingester is the write path a receiver feeds. *ingest.Service implements it.
type Ingester interface {
	Ingest(ctx context.Context, patientID string, vitals types.Vitals) (ingest.Result, error)
}

// Receiver turns MQTT messages into ingested records.
type Receiver struct {
	svc    Ingester
	topic  string
	qos    byte
	client mqtt.Client
}

// New creates a Receiver without a broker connection. Connect is the
// usual constructor; New is used where the caller owns the client.
func New(svc Ingester, topic string, qos byte) *Receiver {
	return &Receiver{svc: svc, topic: topic, qos: qos}
}

// Connect dials the broker described by cfg and subscribes.
func Connect(cfg config.MQTTConfig, svc Ingester) (*Receiver, error) {
	r := New(svc, cfg.Topic, cfg.QoS)

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	if u := cfg.Username(); u != "" {
		opts.SetUsername(u)
	}
	if p := cfg.Password(); p != "" {
		opts.SetPassword(p)
	}
	opts.SetAutoReconnect(true)
	opts.SetCleanSession(true)
	opts.SetConnectTimeout(connectTimeout)
	opts.SetOnConnectHandler(func(c mqtt.Client) {
		if err := r.subscribe(c); err != nil {
			slog.Error("receiver: subscribe", "topic", r.topic, "err", err)
		}
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		slog.Warn("receiver: connection lost", "broker", cfg.Broker, "err", err)
	})

	r.client = mqtt.NewClient(opts)
	tok := r.client.Connect()
	if !tok.WaitTimeout(connectTimeout) {
		return nil, fmt.Errorf("receiver: connect %s: timed out", cfg.Broker)
	}
	if err := tok.Error(); err != nil {
		return nil, fmt.Errorf("receiver: connect %s: %w", cfg.Broker, err)
	}

	slog.Info("receiver: connected", "broker", cfg.Broker, "topic", cfg.Topic)
	return r, nil
}

func (r *Receiver) subscribe(c mqtt.Client) error {
	tok := c.Subscribe(r.topic, r.qos, r.Handle)
	tok.Wait()
	return tok.Error()
}

// Handle is the mqtt.MessageHandler for ingest topics.
func (r *Receiver) Handle(_ mqtt.Client, msg mqtt.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), ingestTimeout)
	defer cancel()

	res, err := r.ingest(ctx, msg.Topic(), msg.Payload())
	if err != nil {
		slog.Warn("receiver: message dropped", "topic", msg.Topic(), "err", err)
		return
	}
	slog.Debug("receiver: reading stored", "topic", msg.Topic(), "id", res.ID)
}

// errMalformed marks payloads that will never decode, as opposed to
// ingest failures.
var errMalformed = errors.New("receiver: malformed payload")

func (r *Receiver) ingest(ctx context.Context, topic string, payload []byte) (ingest.Result, error) {
	var reading *types.Reading
	if err := json.Unmarshal(payload, &reading); err != nil {
		return ingest.Result{}, fmt.Errorf("%w: %v", errMalformed, err)
	}
	if reading == nil {
		return ingest.Result{}, fmt.Errorf("%w: null", errMalformed)
	}

	patientID := reading.PatientID
	if patientID == "" {
		patientID = patientFromTopic(topic)
	}
	return r.svc.Ingest(ctx, patientID, reading.Values())
}

// patientFromTopic returns the last topic level, or "" for wildcards and
// empty levels.
func patientFromTopic(topic string) string {
	i := strings.LastIndexByte(topic, '/')
	if i < 0 {
		return ""
	}
	seg := topic[i+1:]
	if seg == "+" || seg == "#" {
		return ""
	}
	return seg
}

// Close unsubscribes and disconnects from the broker.
func (r *Receiver) Close() {
	if r.client == nil {
		return
	}
	if r.client.IsConnected() {
		r.client.Unsubscribe(r.topic).WaitTimeout(time.Second)
	}
	r.client.Disconnect(quiesceMillis)
	slog.Info("receiver: disconnected")
}
