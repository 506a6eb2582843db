package persist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/credport/internal/common"
	"github.com/dmitrijs2005/credport/internal/logging"
	"github.com/dmitrijs2005/credport/internal/server/statestore"
)

type counters struct {
	Hits map[string]int `json:"hits"`
}

func newCounters() counters { return counters{Hits: map[string]int{}} }

// recordingStore is a Store that remembers every snapshot it was given.
type recordingStore struct {
	mu        sync.Mutex
	doc       *statestore.Document
	loadErr   error
	loads     int
	submitted []string
	submitErr error
}

func (r *recordingStore) Load(context.Context) (*statestore.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.loads++
	if r.loadErr != nil {
		err := r.loadErr
		r.loadErr = nil
		return nil, err
	}
	return r.doc, nil
}

func (r *recordingStore) Submit(_ context.Context, data []byte) <-chan error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.submitted = append(r.submitted, string(data))
	ch := make(chan error, 1)
	ch <- r.submitErr
	return ch
}

// warnRecorder captures Warn calls.
type warnRecorder struct {
	logging.Logger
	mu    sync.Mutex
	warns []string
}

func (w *warnRecorder) Warn(_ context.Context, msg string, _ ...any) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.warns = append(w.warns, msg)
}

func (w *warnRecorder) count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.warns)
}

func TestNoStore_RunsInMemory(t *testing.T) {
	s := New[counters](nil, newCounters, nil)
	ctx := context.Background()

	require.NoError(t, s.EnsureHydrated(ctx))
	assert.True(t, s.Hydrated())

	s.Update(func(c *counters) { c.Hits["a"]++ })
	require.NoError(t, s.Persist(ctx))

	s.View(func(c counters) { assert.Equal(t, 1, c.Hits["a"]) })
}

func TestEnsureHydrated_LoadsOnce(t *testing.T) {
	store := &recordingStore{doc: &statestore.Document{Key: "k", Data: []byte(`{"hits":{"a":4}}`)}}
	s := New[counters](store, newCounters, nil)
	ctx := context.Background()

	require.NoError(t, s.EnsureHydrated(ctx))
	require.NoError(t, s.EnsureHydrated(ctx))
	assert.Equal(t, 1, store.loads)

	s.View(func(c counters) { assert.Equal(t, 4, c.Hits["a"]) })
}

func TestEnsureHydrated_AbsentDocumentKeepsInitial(t *testing.T) {
	s := New[counters](&recordingStore{}, newCounters, nil)
	require.NoError(t, s.EnsureHydrated(context.Background()))
	s.View(func(c counters) {
		assert.NotNil(t, c.Hits)
		assert.Empty(t, c.Hits)
	})
}

func TestEnsureHydrated_FailureIsRetried(t *testing.T) {
	store := &recordingStore{loadErr: errors.New("db down")}
	s := New[counters](store, newCounters, nil)
	ctx := context.Background()

	assert.Error(t, s.EnsureHydrated(ctx))
	assert.False(t, s.Hydrated())

	require.NoError(t, s.EnsureHydrated(ctx))
	assert.True(t, s.Hydrated())
	assert.Equal(t, 2, store.loads)
}

func TestEnsureHydrated_CorruptDocument(t *testing.T) {
	store := &recordingStore{doc: &statestore.Document{Data: []byte(`{"hits":`)}}
	s := New[counters](store, newCounters, nil)

	err := s.EnsureHydrated(context.Background())
	assert.ErrorIs(t, err, common.ErrPersistence)
	assert.False(t, s.Hydrated())
}

func TestQueuePersist_SnapshotsInCallOrder(t *testing.T) {
	store := &recordingStore{}
	s := New[counters](store, newCounters, nil)
	ctx := context.Background()
	require.NoError(t, s.EnsureHydrated(ctx))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Update(func(c *counters) { c.Hits["n"]++ })
			assert.NoError(t, <-s.QueuePersist(ctx))
		}()
	}
	wg.Wait()

	require.Len(t, store.submitted, 20)
	prev := 0
	for _, raw := range store.submitted {
		var c counters
		require.NoError(t, json.Unmarshal([]byte(raw), &c))
		assert.GreaterOrEqual(t, c.Hits["n"], prev, "snapshots never go backwards")
		prev = c.Hits["n"]
	}
	assert.Equal(t, 20, prev)
}

func TestPersistAsync_LogsFailure(t *testing.T) {
	store := &recordingStore{submitErr: fmt.Errorf("%w: boom", common.ErrPersistence)}
	logger := &warnRecorder{Logger: logging.NewNopLogger()}
	s := New[counters](store, newCounters, logger)
	require.NoError(t, s.EnsureHydrated(context.Background()))

	s.PersistAsync(context.Background())
	assert.Eventually(t, func() bool { return logger.count() == 1 }, time.Second, 10*time.Millisecond)
}

func TestQueuePersist_UnhydratedWritesNothing(t *testing.T) {
	store := &recordingStore{doc: &statestore.Document{Data: []byte(`{"hits":{"a":5}}`)}}
	s := New[counters](store, newCounters, nil)
	ctx := context.Background()

	require.NoError(t, s.Persist(ctx))
	assert.Empty(t, store.submitted)

	require.NoError(t, s.EnsureHydrated(ctx))
	s.ResetState(nil)
	require.NoError(t, s.Persist(ctx))
	assert.Empty(t, store.submitted, "reset state is not written before the next load")

	require.NoError(t, s.EnsureHydrated(ctx))
	require.NoError(t, s.Persist(ctx))
	require.Len(t, store.submitted, 1)
	assert.JSONEq(t, `{"hits":{"a":5}}`, store.submitted[0])
}

func TestResetState_RereadsStore(t *testing.T) {
	store := &recordingStore{doc: &statestore.Document{Data: []byte(`{"hits":{"a":1}}`)}}
	s := New[counters](store, newCounters, nil)
	ctx := context.Background()
	require.NoError(t, s.EnsureHydrated(ctx))

	replacement := counters{Hits: map[string]int{"b": 9}}
	s.ResetState(&replacement)
	assert.False(t, s.Hydrated())
	s.View(func(c counters) { assert.Equal(t, 9, c.Hits["b"]) })

	store.doc = &statestore.Document{Data: []byte(`{"hits":{"a":2}}`)}
	require.NoError(t, s.EnsureHydrated(ctx))
	s.View(func(c counters) { assert.Equal(t, map[string]int{"a": 2}, c.Hits) })
	assert.Equal(t, 2, store.loads)
}

func TestService_WithRealStore(t *testing.T) {
	mem := statestore.NewMemoryBackend()
	ctx := context.Background()

	first := New[counters](statestore.New(mem, "counters"), newCounters, nil)
	require.NoError(t, first.EnsureHydrated(ctx))
	first.Update(func(c *counters) { c.Hits["x"] = 3 })
	require.NoError(t, first.Persist(ctx))
	require.NoError(t, first.Persist(ctx))
	assert.Equal(t, 1, mem.Writes(), "unchanged state is not rewritten")

	second := New[counters](statestore.New(mem, "counters"), newCounters, nil)
	require.NoError(t, second.EnsureHydrated(ctx))
	second.View(func(c counters) { assert.Equal(t, 3, c.Hits["x"]) })
}
