// Package integrity computes the tamper-evidence hash stored with every
// record.
//
// The hash is SHA-256 over a canonical encoding of the record content
// (timestamp, patient_id, vitals, ai_result; never the storage id),
// lower-case hex encoded.
//
// Canonical encoding, version 1:
//
//	{"ai_result": "Normal", "patient_id": "p1", "timestamp": 1700000000.25, "vitals": {"heart_rate": 80, "spo2": 97}}
//
//   - object keys sorted by byte order at every level
//   - ", " between members, ": " between key and value
//   - strings JSON-escaped, every non-ASCII rune as \uXXXX (surrogate pairs
//     above the BMP), so the output is pure ASCII
//   - numbers in shortest round-trip decimal form without exponent;
//     integral values carry no fraction; negative zero is written as 0
//   - NaN and infinities are rejected
//
// Version 1 is frozen. Any change to the byte output must be introduced as a
// new version; records carry the version they were hashed with, and
// verification always recomputes with that version.
package integrity
