// Package persist gives a stateful in-memory service lazy hydration from a
// state store and ordered, coalesced checkpoints of its state.
package persist

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/dmitrijs2005/credport/internal/common"
	"github.com/dmitrijs2005/credport/internal/logging"
	"github.com/dmitrijs2005/credport/internal/server/statestore"
)

// Store is the part of *statestore.Store a service needs.
type Store interface {
	Load(ctx context.Context) (*statestore.Document, error)
	Submit(ctx context.Context, data []byte) <-chan error
}

// Service holds state of type T. The in-memory copy is authoritative once
// hydrated. T must round-trip through encoding/json.
//
// A nil Store makes the service purely in-memory.
type Service[T any] struct {
	store   Store
	initial func() T
	logger  logging.Logger

	mu       sync.Mutex
	state    T
	hydrated bool

	hydrateMu sync.Mutex
	// orders snapshots handed to the store
	queueMu sync.Mutex
}

func New[T any](store Store, initial func() T, logger logging.Logger) *Service[T] {
	if initial == nil {
		initial = func() T {
			var zero T
			return zero
		}
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Service[T]{
		store:   store,
		initial: initial,
		logger:  logger,
		state:   initial(),
	}
}

// EnsureHydrated loads persisted state the first time it is called. A load
// failure leaves the service unhydrated so the next call tries again.
func (s *Service[T]) EnsureHydrated(ctx context.Context) error {
	s.hydrateMu.Lock()
	defer s.hydrateMu.Unlock()

	if s.Hydrated() {
		return nil
	}

	if s.store == nil {
		s.mu.Lock()
		s.hydrated = true
		s.mu.Unlock()
		return nil
	}

	doc, err := s.store.Load(ctx)
	if err != nil {
		return err
	}

	state := s.initial()
	if doc != nil && len(doc.Data) > 0 {
		if err := json.Unmarshal(doc.Data, &state); err != nil {
			return fmt.Errorf("%w: decode state: %w", common.ErrPersistence, err)
		}
	}

	s.mu.Lock()
	s.state = state
	s.hydrated = true
	s.mu.Unlock()

	s.logger.Debug(ctx, "state hydrated", "found", doc != nil)
	return nil
}

func (s *Service[T]) Hydrated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hydrated
}

// View calls fn with the current state. fn must not retain references into it.
func (s *Service[T]) View(fn func(state T)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.state)
}

// Update calls fn with a pointer to the current state.
func (s *Service[T]) Update(fn func(state *T)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.state)
}

// QueuePersist snapshots the current state and hands it to the store.
// Snapshots from one Service reach the store in call order. The returned
// channel yields the outcome of the physical write the snapshot ended up in.
//
// An unhydrated service has nothing authoritative to write, so it resolves
// nil without touching the store.
func (s *Service[T]) QueuePersist(ctx context.Context) <-chan error {
	s.queueMu.Lock()
	defer s.queueMu.Unlock()

	if s.store == nil {
		return resolved(nil)
	}

	s.mu.Lock()
	if !s.hydrated {
		s.mu.Unlock()
		s.logger.Debug(ctx, "persist skipped, state not hydrated")
		return resolved(nil)
	}
	data, err := json.Marshal(s.state)
	s.mu.Unlock()
	if err != nil {
		return resolved(fmt.Errorf("%w: encode state: %w", common.ErrPersistence, err))
	}

	return s.store.Submit(ctx, data)
}

// Persist is QueuePersist that waits for the outcome.
func (s *Service[T]) Persist(ctx context.Context) error {
	select {
	case err := <-s.QueuePersist(ctx):
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// PersistAsync queues a persist and only logs a failure.
func (s *Service[T]) PersistAsync(ctx context.Context) {
	done := s.QueuePersist(ctx)
	go func() {
		if err := <-done; err != nil {
			s.logger.Warn(context.WithoutCancel(ctx), "background persist failed", "error", err)
		}
	}()
}

// ResetState marks the service unhydrated so the next EnsureHydrated reads
// the store again. A non-nil newState replaces the in-memory state.
func (s *Service[T]) ResetState(newState *T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hydrated = false
	if newState != nil {
		s.state = *newState
	}
}

func resolved(err error) <-chan error {
	ch := make(chan error, 1)
	ch <- err
	return ch
}
