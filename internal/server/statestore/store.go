// Package statestore is a durable key to JSON-document store shared by the
// stateful services. Each Store owns one service key and guarantees:
//
//   - the backing schema is created lazily on first use;
//   - a save whose content hash equals the last successful write is skipped;
//   - at most one write per key is in flight, and saves arriving meanwhile
//     collapse into a single follow-up write of the freshest state.
package statestore

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/zeebo/blake3"

	"github.com/dmitrijs2005/credport/internal/common"
	"github.com/dmitrijs2005/credport/internal/logging"
	"github.com/dmitrijs2005/credport/internal/observability"
)

// Document is the persisted form of a service's state. A backend keeps at
// most one document per key.
type Document struct {
	Key       string          `json:"key"`
	Data      json.RawMessage `json:"data"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// Backend is the storage a Store writes through.
type Backend interface {
	// Init creates the backing schema. It must be idempotent.
	Init(ctx context.Context) error
	// Fetch returns nil, nil when key has never been written.
	Fetch(ctx context.Context, key string) (*Document, error)
	// Upsert inserts or replaces the document for doc.Key.
	Upsert(ctx context.Context, doc Document) error
}

type batch struct {
	data    []byte
	hash    [32]byte
	waiters []chan error
}

// Store coalesces saves for a single service key.
type Store struct {
	backend Backend
	key     string
	now     func() time.Time
	logger  logging.Logger

	initMu      sync.Mutex
	initialized bool

	mu       sync.Mutex
	inFlight bool
	pending  *batch
	lastHash [32]byte
	hasHash  bool
}

// Option customizes a Store.
type Option func(*Store)

func WithLogger(l logging.Logger) Option {
	return func(s *Store) { s.logger = l }
}

func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func New(backend Backend, key string, opts ...Option) *Store {
	s := &Store{
		backend: backend,
		key:     key,
		now:     time.Now,
		logger:  logging.NewNopLogger(),
	}
	for _, o := range opts {
		o(s)
	}
	s.logger = s.logger.With("module", "statestore", "key", key)
	return s
}

// Key is the service key this store writes.
func (s *Store) Key() string { return s.key }

func (s *Store) ensureInit(ctx context.Context) error {
	s.initMu.Lock()
	defer s.initMu.Unlock()

	if s.initialized {
		return nil
	}
	if err := s.backend.Init(ctx); err != nil {
		return fmt.Errorf("%w: init schema: %w", common.ErrPersistence, err)
	}
	s.initialized = true
	return nil
}

// Load returns the stored document for the store's key, or nil if nothing
// has been saved yet.
func (s *Store) Load(ctx context.Context) (*Document, error) {
	if err := s.ensureInit(ctx); err != nil {
		return nil, err
	}
	doc, err := s.backend.Fetch(ctx, s.key)
	if err != nil {
		return nil, fmt.Errorf("%w: fetch %q: %w", common.ErrPersistence, s.key, err)
	}
	return doc, nil
}

// Save persists data and waits for the physical write it was folded into.
// Returning early on ctx cancellation does not abort that write.
func (s *Store) Save(ctx context.Context, data []byte) error {
	select {
	case err := <-s.Submit(ctx, data):
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Submit queues data for persistence and returns a channel that receives
// the outcome exactly once. The channel is buffered; callers may drop it.
func (s *Store) Submit(ctx context.Context, data []byte) <-chan error {
	done := make(chan error, 1)
	hash := blake3.Sum256(data)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.inFlight {
		if s.pending == nil {
			s.pending = &batch{}
		} else {
			observability.StateWrites.WithLabelValues(s.key, "coalesced").Inc()
		}
		s.pending.data = data
		s.pending.hash = hash
		s.pending.waiters = append(s.pending.waiters, done)
		return done
	}

	if s.hasHash && hash == s.lastHash {
		observability.StateWrites.WithLabelValues(s.key, "skipped").Inc()
		done <- nil
		return done
	}

	s.inFlight = true
	go s.run(context.WithoutCancel(ctx), &batch{data: data, hash: hash, waiters: []chan error{done}})
	return done
}

// run writes b, then keeps draining the pending slot until it is empty.
func (s *Store) run(ctx context.Context, b *batch) {
	for b != nil {
		err := s.write(ctx, b)

		s.mu.Lock()
		if err == nil {
			s.lastHash = b.hash
			s.hasHash = true
		}
		next := s.pending
		s.pending = nil
		if next != nil && s.hasHash && next.hash == s.lastHash {
			observability.StateWrites.WithLabelValues(s.key, "skipped").Inc()
			notify(next.waiters, nil)
			next = nil
		}
		if next == nil {
			s.inFlight = false
		}
		s.mu.Unlock()

		notify(b.waiters, err)
		b = next
	}
}

func (s *Store) write(ctx context.Context, b *batch) error {
	if err := s.ensureInit(ctx); err != nil {
		observability.StateWrites.WithLabelValues(s.key, "failed").Inc()
		s.logger.Error(ctx, "state write failed", "error", err)
		return err
	}

	doc := Document{Key: s.key, Data: b.data, UpdatedAt: s.now().UTC()}
	if err := s.backend.Upsert(ctx, doc); err != nil {
		observability.StateWrites.WithLabelValues(s.key, "failed").Inc()
		s.logger.Error(ctx, "state write failed", "error", err, "waiters", len(b.waiters))
		return fmt.Errorf("%w: upsert %q: %w", common.ErrPersistence, s.key, err)
	}

	observability.StateWrites.WithLabelValues(s.key, "written").Inc()
	s.logger.Debug(ctx, "state written", "bytes", len(b.data), "waiters", len(b.waiters))
	return nil
}

func notify(waiters []chan error, err error) {
	for _, w := range waiters {
		w <- err
	}
}
