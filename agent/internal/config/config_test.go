package config

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoad_Valid(t *testing.T) {
	yaml := `
agent:
  server_url: "https://vitals.example.org"
  transport: http
  patients: [bed-1, bed-2]
  interval: 500ms
  buffer_size: 50
  seed: 42
  server_auth:
    mode: apikey
    key_env: VITALS_KEY
  log:
    level: debug
server:
  http_port: 9999
`
	cfg := loadFromString(t, yaml)
	a := cfg.Agent

	if a.ServerURL != "https://vitals.example.org" {
		t.Errorf("server_url: got %q", a.ServerURL)
	}
	if len(a.Patients) != 2 || a.Patients[1] != "bed-2" {
		t.Errorf("patients: got %v", a.Patients)
	}
	if a.Interval != 500*time.Millisecond {
		t.Errorf("interval: got %v", a.Interval)
	}
	if a.BufferSize != 50 || a.Seed != 42 {
		t.Errorf("buffer_size/seed: got %d/%d", a.BufferSize, a.Seed)
	}
	if a.ServerAuth.EffectiveHeader() != DefaultAPIHeader {
		t.Errorf("header: got %q", a.ServerAuth.EffectiveHeader())
	}
	if a.Log.SlogLevel() != slog.LevelDebug {
		t.Errorf("log level: got %v", a.Log.SlogLevel())
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg := loadFromString(t, "agent: {}\n")
	a := cfg.Agent

	if a.ServerURL != DefaultServerURL || a.Transport != TransportHTTP {
		t.Errorf("server_url/transport: got %q/%q", a.ServerURL, a.Transport)
	}
	if a.Interval != DefaultInterval {
		t.Errorf("interval: got %v, want %v", a.Interval, DefaultInterval)
	}
	if a.BufferSize != DefaultBufferSize {
		t.Errorf("buffer_size: got %d", a.BufferSize)
	}
	if len(a.Patients) != 1 || a.Patients[0] != DefaultPatient {
		t.Errorf("patients: got %v", a.Patients)
	}
	if a.MQTT.TopicPrefix != DefaultTopicPrefix || a.MQTT.QoS != 1 {
		t.Errorf("mqtt defaults: %+v", a.MQTT)
	}
}

func TestLoad_EmptyPatientsDefaulted(t *testing.T) {
	cfg := loadFromString(t, "agent:\n  patients: []\n")
	if len(cfg.Agent.Patients) != 1 {
		t.Errorf("patients: got %v", cfg.Agent.Patients)
	}
}

func TestLoad_MQTT(t *testing.T) {
	cfg := loadFromString(t, `
agent:
  transport: mqtt
  mqtt:
    broker: tcp://broker:1883
    topic_prefix: ward3/vitals
    qos: 0
`)
	if cfg.Agent.MQTT.Broker != "tcp://broker:1883" || cfg.Agent.MQTT.TopicPrefix != "ward3/vitals" {
		t.Errorf("mqtt: %+v", cfg.Agent.MQTT)
	}
	if cfg.Agent.MQTT.QoS != 0 {
		t.Errorf("qos: got %d, want 0", cfg.Agent.MQTT.QoS)
	}
}

func TestLoad_Invalid(t *testing.T) {
	cases := map[string]string{
		"interval":        "agent:\n  interval: -1s\n",
		"buffer":          "agent:\n  buffer_size: 0\n",
		"transport":       "agent:\n  transport: carrier-pigeon\n",
		"url scheme":      "agent:\n  server_url: ftp://x\n",
		"url missing":     "agent:\n  server_url: \"\"\n",
		"mqtt no broker":  "agent:\n  transport: mqtt\n",
		"mqtt qos":        "agent:\n  transport: mqtt\n  mqtt:\n    broker: tcp://b:1883\n    qos: 3\n",
		"patient slash":   "agent:\n  patients: [\"a/b\"]\n",
		"patient dup":     "agent:\n  patients: [a, a]\n",
		"auth mode":       "agent:\n  server_auth:\n    mode: kerberos\n",
		"mtls incomplete": "agent:\n  server_auth:\n    mode: mtls\n    cert_file: c.pem\n",
		"yaml":            "agent: [",
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := loadStringErr(t, content); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestAuthConfig_Key(t *testing.T) {
	t.Setenv("VITALSTREAM_AGENT_KEY", "abc123")
	a := AuthConfig{KeyEnv: "VITALSTREAM_AGENT_KEY"}
	if got := a.Key(); got != "abc123" {
		t.Errorf("Key(): got %q, want abc123", got)
	}
	if got := (AuthConfig{}).Key(); got != "" {
		t.Errorf("Key() with empty KeyEnv: got %q", got)
	}
}

func TestMQTTConfig_Credentials(t *testing.T) {
	t.Setenv("MQ_USER", "agent")
	t.Setenv("MQ_PASS", "pw")
	m := MQTTConfig{UsernameEnv: "MQ_USER", PasswordEnv: "MQ_PASS"}
	if m.Username() != "agent" || m.Password() != "pw" {
		t.Errorf("credentials: %q %q", m.Username(), m.Password())
	}
}

func TestWatch_AppliesNewLevel(t *testing.T) {
	p := writeFile(t, "agent:\n  log:\n    level: info\n")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reloaded := make(chan *Config, 8)
	errc := make(chan error, 1)
	go func() { errc <- Watch(ctx, p, func(c *Config) { reloaded <- c }) }()

	time.Sleep(100 * time.Millisecond)
	if err := os.WriteFile(p, []byte("agent:\n  log:\n    level: warn\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	deadline := time.After(3 * time.Second)
	for done := false; !done; {
		select {
		case c := <-reloaded:
			done = c.Agent.Log.SlogLevel() == slog.LevelWarn
		case <-deadline:
			t.Fatal("timed out waiting for reload")
		}
	}

	cancel()
	if err := <-errc; err != nil {
		t.Errorf("Watch returned %v", err)
	}
}

// --- helpers ----------------------------------------------------------------

func writeFile(t *testing.T, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(p, []byte(strings.TrimLeft(content, "\n")), 0o600); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return p
}

// loadFromString writes yaml to a temp file and calls Load, failing on error.
func loadFromString(t *testing.T, content string) *Config {
	t.Helper()
	cfg, err := loadStringErr(t, content)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return cfg
}

func loadStringErr(t *testing.T, content string) (*Config, error) {
	t.Helper()
	return Load(writeFile(t, content))
}
