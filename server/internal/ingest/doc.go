// Package ingest is the single write path. Service.Ingest evaluates a
// reading against the alert rules, stamps it with the server clock, hashes
// its canonical encoding, appends it to the store and only then publishes it
// to the hub. Readings that trip a rule are handed to a Notifier after the
// record is durable.
//
// A reading that fails hashing or storage is neither published nor
// notified. Verify recomputes a stored record's hash with the encoding
// version recorded alongside it.
package ingest
