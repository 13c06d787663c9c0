// Package stream pushes newly ingested records to live observers.
//
// Server.ServeSSE serves GET /stream as Server-Sent Events:
//
//	data: {"type":"new_record","id":42,"record":{...},"hash":"9f86d0..."}
//
// with a ": ping" comment line every heartbeat interval so intermediaries
// keep the connection open. Server.ServeWS serves GET /ws/stream and sends
// the same JSON as one text frame per event, with ping/pong keepalive.
//
// Each connection is a session that subscribes to the hub on open and
// unsubscribes on every exit path: client disconnect, write failure, removal
// by the hub as a slow consumer, or hub shutdown. No events are replayed; a
// client sees only records published after it connected.
//
// The WebSocket upgrader accepts all origins. Apply CORS restrictions at the
// reverse proxy level.
package stream
