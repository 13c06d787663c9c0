// Package store is the append-only record store. It assigns record IDs and
// answers point and newest-first range queries. Records are immutable once
// inserted; there is no update or delete.
//
// Two implementations share the Store interface: Memory, an in-process slice
// used by default and in tests, and Postgres, backed by database/sql and
// github.com/lib/pq.
package store
