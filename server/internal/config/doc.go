// Package config loads the server-side configuration from the `server:` section
// of config.yaml (the `agent:` key is ignored by the server binary).
//
// Config fields:
//   - HTTPPort      — REST API, SSE and WebSocket streams (default 5000)
//   - GRPCPort      — gRPC health service (default 50051, 0 disables)
//   - Log.Level     — debug | info | warn | error (default info)
//   - Auth.Mode     — "apikey" or "none"
//   - Auth.KeyEnv   — environment variable holding the expected API key
//   - Auth.Header   — HTTP header / gRPC metadata name (default "x-api-key")
//   - Store.Driver  — memory | postgres; Store.DSNEnv names the DSN variable
//   - Stream        — per-observer buffer size and SSE heartbeat
//   - Alerts        — cooldown, history size, Twilio and webhook targets
//   - MQTT, Redis   — optional ingest transport and event relay
//
// Secrets are never stored in the file: every *_env field names an
// environment variable that is read at use time.
//
// Load(path) applies defaults before unmarshalling, then validates.
// Watch(ctx, path, fn) reloads on change; the server applies the new log
// level and alert targets without a restart.
package config
