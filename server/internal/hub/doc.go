// Package hub implements the broadcast hub that fans newly ingested records
// out to every live observer.
//
// New(bufSize) creates a Hub. Subscribe registers an observer and returns a
// Subscriber whose Events channel has bufSize slots. Publish enqueues an
// event on every subscriber without blocking: a subscriber whose buffer is
// full, or whose consumer has called Close, is removed during the same pass
// and its Events channel is closed. Publish never returns an error.
//
// Event JSON format:
//
//	{
//	  "type":   "new_record",
//	  "id":     42,
//	  "record": { "timestamp": ..., "patient_id": ..., "vitals": {...}, "ai_result": ... },
//	  "hash":   "9f86d0..."
//	}
package hub
