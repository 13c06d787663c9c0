package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Default values applied when fields are absent from the config file.
const (
	DefaultServerURL   = "http://127.0.0.1:5000"
	DefaultTransport   = TransportHTTP
	DefaultInterval    = 2 * time.Second
	DefaultBufferSize  = 1000
	DefaultTopicPrefix = "vitals"
	DefaultPatient     = "patient_001"
	DefaultAPIHeader   = "X-API-Key"
)

// Transports the agent can ship readings over.
const (
	TransportHTTP = "http"
	TransportMQTT = "mqtt"
)

// Config is the top-level agent configuration. The `server:` key in a
// shared config file is ignored.
type Config struct {
	Agent AgentConfig `yaml:"agent"`
}

// AgentConfig holds all agent-side settings.
type AgentConfig struct {
	// ServerURL is the base URL of vitalstream-server for the http transport.
	ServerURL string `yaml:"server_url"`

	// Transport is one of: http | mqtt.
	Transport string `yaml:"transport"`

	// Patients lists the simulated patient IDs; each gets one reading per
	// interval.
	Patients []string `yaml:"patients"`

	// Interval controls how often readings are generated.
	Interval time.Duration `yaml:"interval"`

	// BufferSize is the maximum number of readings held in memory when the
	// server is unreachable. The oldest reading is dropped first.
	BufferSize int `yaml:"buffer_size"`

	// Seed fixes the vitals generator for reproducible runs. Zero seeds
	// from the clock.
	Seed int64 `yaml:"seed"`

	// MQTT configures the mqtt transport.
	MQTT MQTTConfig `yaml:"mqtt"`

	// ServerAuth configures how the agent authenticates to the server.
	ServerAuth AuthConfig `yaml:"server_auth"`

	// Log sets the agent's log level.
	Log LogConfig `yaml:"log"`
}

// MQTTConfig holds broker settings for the mqtt transport.
type MQTTConfig struct {
	Broker   string `yaml:"broker"`
	ClientID string `yaml:"client_id"`
	// TopicPrefix is joined with the patient ID: <prefix>/<patient>.
	TopicPrefix string `yaml:"topic_prefix"`
	QoS         byte   `yaml:"qos"`
	UsernameEnv string `yaml:"username_env"`
	PasswordEnv string `yaml:"password_env"`
}

// Username returns the broker user resolved from the environment.
func (m MQTTConfig) Username() string { return env(m.UsernameEnv) }

// Password returns the broker password resolved from the environment.
func (m MQTTConfig) Password() string { return env(m.PasswordEnv) }

// AuthConfig specifies how the agent authenticates to the server.
type AuthConfig struct {
	// Mode is one of: apikey | mtls | none.
	Mode string `yaml:"mode"`

	// API key fields, used when Mode == "apikey".
	// Header is the HTTP header name to send the key in.
	Header string `yaml:"header"`
	// KeyEnv is the name of the environment variable that holds the key value.
	KeyEnv string `yaml:"key_env"`

	// mTLS fields, used when Mode == "mtls".
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
	CAFile   string `yaml:"ca_file"`
}

// Key returns the API key value resolved from the environment.
// Returns empty string if KeyEnv is unset or the variable is not found.
func (a AuthConfig) Key() string { return env(a.KeyEnv) }

// EffectiveHeader returns Header or DefaultAPIHeader.
func (a AuthConfig) EffectiveHeader() string {
	if a.Header != "" {
		return a.Header
	}
	return DefaultAPIHeader
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

// Load reads and parses the YAML config file at path.
// Missing optional fields are filled with sensible defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}
	if len(cfg.Agent.Patients) == 0 {
		cfg.Agent.Patients = []string{DefaultPatient}
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	return cfg, nil
}

// Default returns the configuration used when no file is given: one
// patient posting to a local server every two seconds.
func Default() *Config {
	return &Config{
		Agent: AgentConfig{
			ServerURL:  DefaultServerURL,
			Transport:  DefaultTransport,
			Patients:   []string{DefaultPatient},
			Interval:   DefaultInterval,
			BufferSize: DefaultBufferSize,
			MQTT: MQTTConfig{
				ClientID:    "vitalstream-agent",
				TopicPrefix: DefaultTopicPrefix,
				QoS:         1,
			},
		},
	}
}

// validate checks required fields and structural constraints.
func validate(cfg *Config) error {
	a := cfg.Agent
	if a.Interval <= 0 {
		return fmt.Errorf("agent.interval must be positive")
	}
	if a.BufferSize <= 0 {
		return fmt.Errorf("agent.buffer_size must be positive")
	}
	seen := make(map[string]bool, len(a.Patients))
	for i, p := range a.Patients {
		if p == "" || strings.ContainsAny(p, "/+#") {
			return fmt.Errorf("agent.patients[%d]: invalid id %q", i, p)
		}
		if seen[p] {
			return fmt.Errorf("agent.patients[%d]: duplicate id %q", i, p)
		}
		seen[p] = true
	}
	switch a.Transport {
	case TransportHTTP:
		u, err := url.Parse(a.ServerURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("agent.server_url %q must be an http(s) URL", a.ServerURL)
		}
	case TransportMQTT:
		if a.MQTT.Broker == "" {
			return fmt.Errorf("agent.mqtt.broker is required for transport mqtt")
		}
		if a.MQTT.QoS > 2 {
			return fmt.Errorf("agent.mqtt.qos must be 0, 1 or 2")
		}
	default:
		return fmt.Errorf("agent.transport %q unknown: want http|mqtt", a.Transport)
	}
	switch a.ServerAuth.Mode {
	case "apikey", "none", "":
	case "mtls":
		if a.ServerAuth.CertFile == "" || a.ServerAuth.KeyFile == "" {
			return fmt.Errorf("agent.server_auth: mtls needs cert_file and key_file")
		}
	default:
		return fmt.Errorf("agent.server_auth.mode %q unknown: want apikey|mtls|none", a.ServerAuth.Mode)
	}
	return nil
}

func env(name string) string {
	if name == "" {
		return ""
	}
	return os.Getenv(name)
}
