package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	_ "github.com/lib/pq"

	"github.com/vitalstream/vitalstream/pkg/types"
)

const schema = `
CREATE TABLE IF NOT EXISTS records (
	id           BIGSERIAL PRIMARY KEY,
	timestamp    DOUBLE PRECISION NOT NULL,
	patient_id   TEXT NOT NULL,
	vitals_json  TEXT NOT NULL,
	ai_result    TEXT NOT NULL,
	record_hash  TEXT NOT NULL,
	hash_version INTEGER NOT NULL DEFAULT 1
)`

const (
	insertSQL = `INSERT INTO records (timestamp, patient_id, vitals_json, ai_result, record_hash, hash_version) ` +
		`VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`
	selectCols = `SELECT id, timestamp, patient_id, vitals_json, ai_result, record_hash, hash_version FROM records`
	listSQL    = selectCols + ` ORDER BY id DESC LIMIT $1`
	getSQL     = selectCols + ` WHERE id = $1`
	countSQL   = `SELECT COUNT(*) FROM records`
)

// PostgresOptions configures the connection pool.
type PostgresOptions struct {
	MaxConns int
	MaxIdle  int
}

// Postgres stores records in a PostgreSQL table. IDs come from the table's
// BIGSERIAL sequence; inserts additionally go through a single writer lock
// so IDs become visible in the order they were assigned.
type Postgres struct {
	db *sql.DB
	mu sync.Mutex
}

// OpenPostgres opens and pings a connection pool for dsn.
func OpenPostgres(ctx context.Context, dsn string, opts PostgresOptions) (*Postgres, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open postgres: %w", err)
	}
	if opts.MaxConns > 0 {
		db.SetMaxOpenConns(opts.MaxConns)
	}
	if opts.MaxIdle > 0 {
		db.SetMaxIdleConns(opts.MaxIdle)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: ping postgres: %w", err)
	}
	return NewPostgres(db), nil
}

// NewPostgres wraps an existing pool.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

// Migrate creates the records table if it does not exist.
func (p *Postgres) Migrate(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}

// Close closes the underlying pool.
func (p *Postgres) Close() error {
	return p.db.Close()
}

// Insert writes one row and returns the sequence-assigned ID.
func (p *Postgres) Insert(ctx context.Context, c types.Content, hash string, hashVersion int) (int64, error) {
	vitals, err := json.Marshal(c.Vitals.Clone())
	if err != nil {
		return 0, fmt.Errorf("store: encode vitals: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	var id int64
	err = p.db.QueryRowContext(ctx, insertSQL,
		c.Timestamp, c.PatientID, string(vitals), c.AIResult, hash, hashVersion,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("store: insert: %w", err)
	}
	return id, nil
}

// ListRecent returns the newest records, highest ID first.
func (p *Postgres) ListRecent(ctx context.Context, limit int) ([]types.Record, error) {
	rows, err := p.db.QueryContext(ctx, listSQL, ClampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("store: list: %w", err)
	}
	defer rows.Close()

	out := make([]types.Record, 0)
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list: %w", err)
	}
	return out, nil
}

// Get returns one record or ErrNotFound.
func (p *Postgres) Get(ctx context.Context, id int64) (types.Record, error) {
	r, err := scanRecord(p.db.QueryRowContext(ctx, getSQL, id))
	if errors.Is(err, sql.ErrNoRows) {
		return types.Record{}, ErrNotFound
	}
	return r, err
}

// Count returns the number of rows in the records table.
func (p *Postgres) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := p.db.QueryRowContext(ctx, countSQL).Scan(&n); err != nil {
		return 0, fmt.Errorf("store: count: %w", err)
	}
	return n, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (types.Record, error) {
	var (
		r      types.Record
		vitals string
	)
	if err := s.Scan(&r.ID, &r.Timestamp, &r.PatientID, &vitals, &r.AIResult, &r.Hash, &r.HashVersion); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return r, err
		}
		return r, fmt.Errorf("store: scan: %w", err)
	}
	r.Vitals = types.Vitals{}
	if err := json.Unmarshal([]byte(vitals), &r.Vitals); err != nil {
		return r, fmt.Errorf("store: decode vitals for record %d: %w", r.ID, err)
	}
	return r, nil
}

var _ Store = (*Postgres)(nil)
