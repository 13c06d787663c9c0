package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// AlertsConfig controls outbound alert notifications.
type AlertsConfig struct {
	// Cooldown suppresses repeat notifications for the same patient for this
	// long after one is sent. Zero notifies on every alerting reading.
	Cooldown time.Duration `yaml:"cooldown"`

	// History is how many recent alerts GET /alerts keeps (default 200).
	History int `yaml:"history"`

	// Twilio configures WhatsApp/SMS delivery through the Twilio REST API.
	Twilio TwilioConfig `yaml:"twilio"`

	// Webhooks lists additional chat or HTTP delivery targets.
	Webhooks []WebhookConfig `yaml:"webhooks"`
}

// TwilioConfig holds Twilio messaging settings. Credentials are read from
// the environment.
type TwilioConfig struct {
	AccountSIDEnv string `yaml:"account_sid_env"`
	AuthTokenEnv  string `yaml:"auth_token_env"`

	// From and To are Twilio addresses, e.g. "whatsapp:+14155238886".
	From string `yaml:"from"`
	To   string `yaml:"to"`

	// BaseURL overrides the API root (default https://api.twilio.com).
	BaseURL string `yaml:"base_url"`
}

// AccountSID returns the account SID resolved from the environment.
func (t TwilioConfig) AccountSID() string { return env(t.AccountSIDEnv) }

// AuthToken returns the auth token resolved from the environment.
func (t TwilioConfig) AuthToken() string { return env(t.AuthTokenEnv) }

// Enabled reports whether enough is configured to attempt delivery.
func (t TwilioConfig) Enabled() bool {
	return t.AccountSID() != "" && t.AuthToken() != "" && t.From != "" && t.To != ""
}

// WebhookConfig defines one webhook delivery target.
type WebhookConfig struct {
	// Type is one of: teams | slack | http.
	Type string `yaml:"type"`

	// URLEnv is the name of the environment variable that holds the webhook URL.
	URLEnv string `yaml:"url_env"`
}

// URL returns the webhook URL resolved from the environment.
func (w WebhookConfig) URL() string { return env(w.URLEnv) }

// Default values for the server configuration.
const (
	DefaultHTTPPort     = 5000
	DefaultGRPCPort     = 50051
	DefaultStreamBuffer = 16
	DefaultHeartbeat    = 15 * time.Second
	DefaultAlertHistory = 200
	DefaultMQTTTopic    = "vitals/+"
	DefaultRedisStream  = "vitals:events"
	DefaultRedisMaxLen  = 10000
)

// Config holds the server-side configuration parsed from the `server:` section
// of config.yaml. The `agent:` key in the same file is ignored.
type Config struct {
	Server ServerConfig `yaml:"server"`
}

// ServerConfig holds all server-side settings.
type ServerConfig struct {
	// HTTPPort serves the REST API, SSE and WebSocket streams (default 5000).
	HTTPPort int `yaml:"http_port"`

	// GRPCPort serves the gRPC health service (default 50051, 0 disables it).
	GRPCPort int `yaml:"grpc_port"`

	// Log controls the process logger.
	Log LogConfig `yaml:"log"`

	// Auth configures how clients authenticate to the write paths.
	Auth AuthConfig `yaml:"auth"`

	// Store selects and configures the record store backend.
	Store StoreConfig `yaml:"store"`

	// Stream tunes live observer connections.
	Stream StreamConfig `yaml:"stream"`

	// Alerts configures the outbound notifier.
	Alerts AlertsConfig `yaml:"alerts"`

	// MQTT optionally ingests readings from a broker.
	MQTT MQTTConfig `yaml:"mqtt"`

	// Redis optionally mirrors hub events into a Redis stream.
	Redis RedisConfig `yaml:"redis"`
}

// LogConfig sets the log level: debug | info | warn | error.
type LogConfig struct {
	Level string `yaml:"level"`
}

// SlogLevel maps Level to a slog.Level, defaulting to info.
func (l LogConfig) SlogLevel() slog.Level {
	switch strings.ToLower(l.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// AuthConfig controls client authentication on the server side.
type AuthConfig struct {
	// Mode is one of: apikey | none.
	Mode string `yaml:"mode"`

	// KeyEnv is the name of the environment variable that holds the expected API key.
	// Used when Mode == "apikey".
	KeyEnv string `yaml:"key_env"`

	// Header is the HTTP header (and gRPC metadata key) to read the key from.
	// Defaults to "x-api-key" if empty.
	Header string `yaml:"header"`
}

// Key returns the expected API key resolved from the environment.
func (a AuthConfig) Key() string { return env(a.KeyEnv) }

// EffectiveHeader returns the configured header name, or the default "x-api-key".
func (a AuthConfig) EffectiveHeader() string {
	if a.Header != "" {
		return a.Header
	}
	return "x-api-key"
}

// StoreConfig selects the record store.
type StoreConfig struct {
	// Driver is one of: memory | postgres (default memory).
	Driver string `yaml:"driver"`

	// DSNEnv names the environment variable holding the Postgres DSN.
	DSNEnv string `yaml:"dsn_env"`

	MaxConns int `yaml:"max_conns"`
	MaxIdle  int `yaml:"max_idle"`
}

// DSN returns the Postgres DSN resolved from the environment.
func (s StoreConfig) DSN() string { return env(s.DSNEnv) }

// StreamConfig tunes live observer connections.
type StreamConfig struct {
	// BufferSize is the per-observer event buffer (default 16). An observer
	// that falls this far behind is disconnected.
	BufferSize int `yaml:"buffer_size"`

	// Heartbeat is the SSE keep-alive comment interval (default 15s).
	Heartbeat time.Duration `yaml:"heartbeat"`
}

// MQTTConfig configures the optional MQTT ingest transport.
type MQTTConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Broker      string `yaml:"broker"`
	ClientID    string `yaml:"client_id"`
	Topic       string `yaml:"topic"`
	QoS         byte   `yaml:"qos"`
	UsernameEnv string `yaml:"username_env"`
	PasswordEnv string `yaml:"password_env"`
}

// Username returns the broker user resolved from the environment.
func (m MQTTConfig) Username() string { return env(m.UsernameEnv) }

// Password returns the broker password resolved from the environment.
func (m MQTTConfig) Password() string { return env(m.PasswordEnv) }

// RedisConfig configures the optional Redis stream relay.
type RedisConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Addr        string `yaml:"addr"`
	PasswordEnv string `yaml:"password_env"`
	DB          int    `yaml:"db"`
	Stream      string `yaml:"stream"`
	MaxLen      int64  `yaml:"max_len"`
}

// Password returns the Redis password resolved from the environment.
func (r RedisConfig) Password() string { return env(r.PasswordEnv) }

// Load reads and parses the config file at path, returning the server configuration.
// Missing fields are filled with sensible defaults before validation.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("server config: read %q: %w", path, err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("server config: parse yaml: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("server config: %w", err)
	}

	return cfg, nil
}

// Default returns a Config pre-populated with default values.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPPort: DefaultHTTPPort,
			GRPCPort: DefaultGRPCPort,
			Store:    StoreConfig{Driver: "memory"},
			Stream: StreamConfig{
				BufferSize: DefaultStreamBuffer,
				Heartbeat:  DefaultHeartbeat,
			},
			Alerts: AlertsConfig{History: DefaultAlertHistory},
			MQTT: MQTTConfig{
				Topic:    DefaultMQTTTopic,
				ClientID: "vitalstream-server",
			},
			Redis: RedisConfig{
				Stream: DefaultRedisStream,
				MaxLen: DefaultRedisMaxLen,
			},
		},
	}
}

// validate checks structural constraints on the parsed configuration.
func validate(cfg *Config) error {
	s := cfg.Server
	if s.HTTPPort <= 0 || s.HTTPPort > 65535 {
		return fmt.Errorf("server.http_port %d is out of range [1, 65535]", s.HTTPPort)
	}
	if s.GRPCPort < 0 || s.GRPCPort > 65535 {
		return fmt.Errorf("server.grpc_port %d is out of range [0, 65535]", s.GRPCPort)
	}
	switch s.Auth.Mode {
	case "apikey", "none", "":
	default:
		return fmt.Errorf("server.auth.mode %q unknown: want apikey|none", s.Auth.Mode)
	}
	switch s.Store.Driver {
	case "memory", "":
	case "postgres":
		if s.Store.DSNEnv == "" {
			return fmt.Errorf("server.store.dsn_env is required for the postgres driver")
		}
	default:
		return fmt.Errorf("server.store.driver %q unknown: want memory|postgres", s.Store.Driver)
	}
	if s.Stream.BufferSize <= 0 {
		return fmt.Errorf("server.stream.buffer_size must be positive")
	}
	if s.Stream.Heartbeat < 0 {
		return fmt.Errorf("server.stream.heartbeat must not be negative")
	}
	if s.Alerts.Cooldown < 0 {
		return fmt.Errorf("server.alerts.cooldown must not be negative")
	}
	for i, wh := range s.Alerts.Webhooks {
		switch wh.Type {
		case "slack", "teams", "http":
		default:
			return fmt.Errorf("server.alerts.webhooks[%d].type %q unknown: want slack|teams|http", i, wh.Type)
		}
	}
	if s.MQTT.Enabled {
		if s.MQTT.Broker == "" {
			return fmt.Errorf("server.mqtt.broker is required when mqtt is enabled")
		}
		if s.MQTT.QoS > 2 {
			return fmt.Errorf("server.mqtt.qos %d is out of range [0, 2]", s.MQTT.QoS)
		}
	}
	if s.Redis.Enabled && s.Redis.Addr == "" {
		return fmt.Errorf("server.redis.addr is required when redis is enabled")
	}
	return nil
}

func env(name string) string {
	if name == "" {
		return ""
	}
	return os.Getenv(name)
}
