// Package config loads and watches the agent configuration file.
//
// Load(path) reads the `agent:` section of the YAML file, applies defaults
// (http transport to http://127.0.0.1:5000, one patient "patient_001",
// 2s interval, 1000 buffered readings), then validates URLs, patient IDs
// and enums. Default() returns the same configuration without a file.
//
// Secrets (API key, MQTT password) are never stored in the file; *_env
// fields name the environment variables that hold them.
//
// Watch(ctx, path, onChange) calls onChange with each successfully reloaded
// Config. The agent applies the log level and patient list live; other settings need a
// restart.
package config
