package shipper

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/go-resty/resty/v2"

	"github.com/vitalstream/vitalstream/agent/internal/config"
	"github.com/vitalstream/vitalstream/pkg/types"
)

const (
	sendTimeout    = 10 * time.Second
	connectTimeout = 10 * time.Second
	quiesceMillis  = 250
)

// Sender delivers one reading to the server. A transient error makes the
// shipper retry the same reading after a backoff; an error wrapped with
// Permanent discards it.
type Sender interface {
	Send(ctx context.Context, r types.Reading) error
}

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// NewSender returns the Sender for cfg.Transport.
func NewSender(cfg config.AgentConfig) (Sender, error) {
	switch cfg.Transport {
	case config.TransportMQTT:
		return DialMQTT(cfg.MQTT)
	default:
		return NewHTTPSender(cfg)
	}
}

// HTTPSender posts readings to the server's /ingest endpoint.
type HTTPSender struct {
	client *resty.Client
}

type ingestAck struct {
	Status string `json:"status"`
	ID     int64  `json:"id"`
	Hash   string `json:"hash"`
}

type ingestErr struct {
	Error string `json:"error"`
}

// NewHTTPSender builds a resty client for cfg.ServerURL with auth from
// cfg.ServerAuth.
func NewHTTPSender(cfg config.AgentConfig) (*HTTPSender, error) {
	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.ServerURL, "/")).
		SetTimeout(sendTimeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	switch cfg.ServerAuth.Mode {
	case "apikey":
		if key := cfg.ServerAuth.Key(); key != "" {
			client.SetHeader(cfg.ServerAuth.EffectiveHeader(), key)
		} else {
			slog.Warn("shipper: apikey mode but key is empty", "key_env", cfg.ServerAuth.KeyEnv)
		}
	case "mtls":
		cert, err := tls.LoadX509KeyPair(cfg.ServerAuth.CertFile, cfg.ServerAuth.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("shipper: load client cert: %w", err)
		}
		client.SetCertificates(cert)
		if cfg.ServerAuth.CAFile != "" {
			client.SetRootCertificate(cfg.ServerAuth.CAFile)
		}
	}

	return &HTTPSender{client: client}, nil
}

// Send implements Sender. Client errors other than 408 and 429 are
// permanent; everything else is retried.
func (h *HTTPSender) Send(ctx context.Context, r types.Reading) error {
	var ack ingestAck
	var rejected ingestErr
	resp, err := h.client.R().
		SetContext(ctx).
		SetBody(r).
		SetResult(&ack).
		SetError(&rejected).
		Post("/ingest")
	if err != nil {
		return fmt.Errorf("shipper: post ingest: %w", err)
	}

	code := resp.StatusCode()
	if resp.IsError() {
		err := fmt.Errorf("shipper: post ingest: %s: %s", resp.Status(), rejected.Error)
		if code >= 400 && code < 500 && code != http.StatusRequestTimeout && code != http.StatusTooManyRequests {
			return Permanent(err)
		}
		return err
	}

	slog.Debug("shipper: reading delivered", "patient", r.PatientID, "id", ack.ID, "hash", ack.Hash)
	return nil
}

// MQTTSender publishes readings to <prefix>/<patient>.
type MQTTSender struct {
	client mqtt.Client
	prefix string
	qos    byte
}

// NewMQTTSender wraps an already connected client.
func NewMQTTSender(client mqtt.Client, prefix string, qos byte) *MQTTSender {
	return &MQTTSender{client: client, prefix: strings.TrimRight(prefix, "/"), qos: qos}
}

// DialMQTT connects to the broker in cfg. Publishing while the connection
// is down fails transiently and paho reconnects in the background.
func DialMQTT(cfg config.MQTTConfig) (*MQTTSender, error) {
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
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		slog.Warn("shipper: mqtt connection lost", "broker", cfg.Broker, "err", err)
	})

	client := mqtt.NewClient(opts)
	tok := client.Connect()
	if !tok.WaitTimeout(connectTimeout) {
		return nil, fmt.Errorf("shipper: connect %s: timed out", cfg.Broker)
	}
	if err := tok.Error(); err != nil {
		return nil, fmt.Errorf("shipper: connect %s: %w", cfg.Broker, err)
	}

	slog.Info("shipper: mqtt connected", "broker", cfg.Broker)
	return NewMQTTSender(client, cfg.TopicPrefix, cfg.QoS), nil
}

// Topic returns the topic a reading for patientID is published to.
func (m *MQTTSender) Topic(patientID string) string {
	return m.prefix + "/" + patientID
}

// Send implements Sender.
func (m *MQTTSender) Send(ctx context.Context, r types.Reading) error {
	payload, err := json.Marshal(r)
	if err != nil {
		return Permanent(fmt.Errorf("shipper: encode reading: %w", err))
	}

	topic := m.Topic(r.PatientID)
	tok := m.client.Publish(topic, m.qos, false, payload)
	select {
	case <-tok.Done():
	case <-ctx.Done():
		return fmt.Errorf("shipper: publish %s: %w", topic, ctx.Err())
	}
	if err := tok.Error(); err != nil {
		return fmt.Errorf("shipper: publish %s: %w", topic, err)
	}
	return nil
}

// Close disconnects from the broker.
func (m *MQTTSender) Close() {
	m.client.Disconnect(quiesceMillis)
}
