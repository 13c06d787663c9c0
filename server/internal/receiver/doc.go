// Package receiver accepts vitals readings from bedside agents over MQTT.
//
// Connect(cfg, svc) dials the broker and subscribes to cfg.Topic
// (default "vitals/+"). Each message payload has the POST /ingest shape,
// {"patient_id": ..., "vitals": {...}}; when patient_id is empty the last
// topic segment is used, so an agent may publish to vitals/<patient>.
// Accepted readings go through the same ingest path as HTTP.
//
// Malformed payloads are logged and dropped; MQTT has no reply channel.
// The subscription is re-established by the OnConnect handler after every
// reconnect.
package receiver
