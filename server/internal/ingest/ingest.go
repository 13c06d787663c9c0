package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vitalstream/vitalstream/pkg/types"
	"github.com/vitalstream/vitalstream/server/internal/hub"
	"github.com/vitalstream/vitalstream/server/internal/integrity"
	"github.com/vitalstream/vitalstream/server/internal/rules"
	"github.com/vitalstream/vitalstream/server/internal/store"
)

// ErrInvalidReading is returned when a reading cannot be hashed, e.g. it
// carries a non-finite number.
var ErrInvalidReading = errors.New("ingest: invalid reading")

// Publisher receives every stored record. *hub.Hub implements it.
type Publisher interface {
	Publish(hub.Event)
}

// Notifier is told about readings that tripped at least one rule. It must
// return promptly; delivery happens elsewhere.
type Notifier interface {
	Notify(recordID int64, patientID string, alerts []string, message string)
}

// Observer receives ingestion outcomes for instrumentation.
type Observer interface {
	Ingested(alerted bool, elapsed time.Duration)
	StoreFailed()
}

// Result is returned to the caller of Ingest.
type Result struct {
	ID   int64
	Hash string
}

// Verification is the outcome of recomputing a stored record's hash.
// A mismatch is reported as Valid=false, not as an error.
type Verification struct {
	Valid      bool   `json:"valid"`
	StoredHash string `json:"stored_hash"`
	Recomputed string `json:"recomputed"`
}

// Service coordinates rules, hashing, storage and broadcast.
type Service struct {
	store    store.Store
	pub      Publisher
	notifier Notifier
	obs      Observer
	now      func() time.Time
}

// Option customizes a Service.
type Option func(*Service)

// WithNotifier sets the alert notifier.
func WithNotifier(n Notifier) Option { return func(s *Service) { s.notifier = n } }

// WithObserver sets the instrumentation hook.
func WithObserver(o Observer) Option { return func(s *Service) { s.obs = o } }

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

// New creates a Service writing to st and publishing to pub.
func New(st store.Store, pub Publisher, opts ...Option) *Service {
	s := &Service{
		store: st,
		pub:   pub,
		obs:   nopObserver{},
		now:   time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Ingest evaluates, hashes, stores and publishes one reading, in that
// order. An empty patientID is recorded as types.UnknownPatient.
func (s *Service) Ingest(ctx context.Context, patientID string, vitals types.Vitals) (Result, error) {
	start := s.now()
	if patientID == "" {
		patientID = types.UnknownPatient
	}

	eval := rules.Evaluate(vitals)
	c := types.Content{
		Timestamp: float64(start.UnixNano()) / 1e9,
		PatientID: patientID,
		Vitals:    vitals.Clone(),
		AIResult:  eval.Text(),
	}

	hash, err := integrity.Hash(c)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrInvalidReading, err)
	}

	id, err := s.store.Insert(ctx, c, hash, integrity.Version)
	if err != nil {
		s.obs.StoreFailed()
		return Result{}, fmt.Errorf("ingest: %w", err)
	}

	s.pub.Publish(hub.NewRecordEvent(id, c, hash))

	if eval.Fired() && s.notifier != nil {
		s.notifier.Notify(id, patientID, eval.Alerts, rules.Summary(patientID, c.Vitals, eval))
	}

	s.obs.Ingested(eval.Fired(), s.now().Sub(start))
	return Result{ID: id, Hash: hash}, nil
}

// List returns up to limit records, newest first.
func (s *Service) List(ctx context.Context, limit int) ([]types.Record, error) {
	return s.store.ListRecent(ctx, limit)
}

// Get returns one record; errors.Is(err, store.ErrNotFound) for unknown IDs.
func (s *Service) Get(ctx context.Context, id int64) (types.Record, error) {
	return s.store.Get(ctx, id)
}

// Count returns the number of stored records.
func (s *Service) Count(ctx context.Context) (int64, error) {
	return s.store.Count(ctx)
}

// Verify recomputes the hash of record id with the encoding version it was
// stored under and compares it with the stored hash.
func (s *Service) Verify(ctx context.Context, id int64) (Verification, error) {
	r, err := s.store.Get(ctx, id)
	if err != nil {
		return Verification{}, err
	}
	version := r.HashVersion
	if version == 0 {
		version = 1
	}
	recomputed, err := integrity.HashVersion(version, r.Content)
	if err != nil {
		return Verification{}, fmt.Errorf("ingest: verify record %d: %w", id, err)
	}
	return Verification{
		Valid:      recomputed == r.Hash,
		StoredHash: r.Hash,
		Recomputed: recomputed,
	}, nil
}

type nopObserver struct{}

func (nopObserver) Ingested(bool, time.Duration) {}
func (nopObserver) StoreFailed()                 {}
