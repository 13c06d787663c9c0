package store

import (
	"context"
	"sync"

	"github.com/vitalstream/vitalstream/pkg/types"
)

// Memory is a thread-safe in-process record store. Record i (1-based) lives
// at index i-1, so IDs are dense by construction.
type Memory struct {
	mu      sync.RWMutex
	records []types.Record
}

// NewMemory creates an empty Memory store.
func NewMemory() *Memory {
	return &Memory{}
}

// Insert appends a deep copy of c. Callers may reuse c afterwards.
func (m *Memory) Insert(ctx context.Context, c types.Content, hash string, hashVersion int) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	id := int64(len(m.records)) + 1
	m.records = append(m.records, types.Record{
		ID:          id,
		Content:     c.Clone(),
		Hash:        hash,
		HashVersion: hashVersion,
	})
	return id, nil
}

// ListRecent returns copies of the newest records, highest ID first.
func (m *Memory) ListRecent(ctx context.Context, limit int) ([]types.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	limit = ClampLimit(limit)

	m.mu.RLock()
	defer m.mu.RUnlock()
	n := len(m.records)
	if limit > n {
		limit = n
	}
	out := make([]types.Record, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, cloneRecord(m.records[i]))
	}
	return out, nil
}

// Get returns a copy of the record with the given ID.
func (m *Memory) Get(ctx context.Context, id int64) (types.Record, error) {
	if err := ctx.Err(); err != nil {
		return types.Record{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if id < 1 || id > int64(len(m.records)) {
		return types.Record{}, ErrNotFound
	}
	return cloneRecord(m.records[id-1]), nil
}

// Count returns the number of stored records.
func (m *Memory) Count(ctx context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.records)), nil
}

func cloneRecord(r types.Record) types.Record {
	r.Content = r.Content.Clone()
	return r
}

var _ Store = (*Memory)(nil)
