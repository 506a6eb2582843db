package statestore

import (
	"context"
	"sync"
)

// MemoryBackend keeps documents in process memory. It backs the "memory"
// state backend and the tests.
type MemoryBackend struct {
	mu     sync.Mutex
	docs   map[string]Document
	writes int
	inits  int
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{docs: make(map[string]Document)}
}

func (m *MemoryBackend) Init(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inits++
	return nil
}

func (m *MemoryBackend) Fetch(_ context.Context, key string) (*Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[key]
	if !ok {
		return nil, nil
	}
	doc.Data = append([]byte(nil), doc.Data...)
	return &doc, nil
}

func (m *MemoryBackend) Upsert(_ context.Context, doc Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc.Data = append([]byte(nil), doc.Data...)
	m.docs[doc.Key] = doc
	m.writes++
	return nil
}

// Writes reports how many physical upserts were performed.
func (m *MemoryBackend) Writes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}
