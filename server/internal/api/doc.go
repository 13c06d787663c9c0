// Package api implements the HTTP REST API for vitalstream-server.
//
// New(svc, opts) returns an http.Handler that serves:
//
//	POST /ingest         {patient_id, vitals} -> {status:"ok", id, hash}
//	GET  /records        newest-first records, ?limit=N (max 100)
//	GET  /records/{id}   single record; 404 if unknown
//	GET  /verify/{id}    {valid, stored_hash, recomputed}; 404 {status:"not_found"}
//	GET  /alerts         recent alert notifications, newest first
//	GET  /healthz        {status, subscribers, records}
//
// All endpoints respond with Content-Type: application/json and return 405
// for the wrong method. Malformed ingest bodies get 400 and create nothing.
// Every response carries an X-Request-ID header.
//
// The live streams (/stream, /ws/stream) are served by package stream and
// /metrics by package metrics; the server binary mounts them beside this
// handler. No external HTTP framework is used.
package api
