// Package shipper delivers simulated readings to vitalstream-server.
//
// Shipper.Ship() is non-blocking: readings are placed in an in-memory
// channel (default capacity 1000). When the buffer is full the oldest
// reading is evicted so the latest vitals are always preserved.
//
// Shipper.Run() drains the buffer in order through a Sender. A failed send
// is retried for the same reading with truncated exponential backoff
// (1s→60s, ±25% jitter). Errors marked Permanent (HTTP 4xx other than 408
// and 429, unencodable payloads) discard the reading instead.
//
// Two senders are provided: HTTPSender posts JSON to /ingest with resty,
// carrying an API key header or a client certificate; MQTTSender publishes
// the same JSON to <prefix>/<patient_id> with paho.
package shipper
