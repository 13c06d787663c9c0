package store

import (
	"context"
	"errors"

	"github.com/vitalstream/vitalstream/pkg/types"
)

// MaxListLimit caps ListRecent. It is also the default when the caller asks
// for zero or a negative number of records.
const MaxListLimit = 100

// ErrNotFound is returned by Get for an unknown record ID.
var ErrNotFound = errors.New("store: record not found")

// Store is implemented by every record store backend. Implementations are
// safe for concurrent use and serialize ID assignment.
type Store interface {
	// Insert appends c with its precomputed hash and returns the new ID.
	// On error no ID is consumed from the caller's point of view.
	Insert(ctx context.Context, c types.Content, hash string, hashVersion int) (int64, error)

	// ListRecent returns at most limit records, highest ID first.
	ListRecent(ctx context.Context, limit int) ([]types.Record, error)

	// Get returns the record with the given ID or ErrNotFound.
	Get(ctx context.Context, id int64) (types.Record, error)

	// Count returns the number of stored records.
	Count(ctx context.Context) (int64, error)
}

// ClampLimit normalizes a requested list size to [1, MaxListLimit].
func ClampLimit(limit int) int {
	if limit <= 0 || limit > MaxListLimit {
		return MaxListLimit
	}
	return limit
}
