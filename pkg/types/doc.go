// Package types defines the Go types shared by the server and the agent.
// These are the canonical in-memory representations of a vitals reading and
// of a stored record, and double as their JSON wire format.
package types
