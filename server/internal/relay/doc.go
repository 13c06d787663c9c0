// Package relay mirrors hub events into a capped Redis stream so downstream
// consumers (dashboards, archivers) can read the record feed without holding
// an SSE connection. The relay is an ordinary hub subscriber: if Redis falls
// behind, the hub drops it and the relay resubscribes, losing the events in
// between.
package relay
