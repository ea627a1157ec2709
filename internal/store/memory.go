package store

import (
	"context"
	"sync"
	"time"
)

type memoryClient struct {
	id   int64
	name string
}

// MemoryStore keeps everything in process memory. Used for tests and
// throwaway deployments.
type MemoryStore struct {
	mu     sync.RWMutex
	byKey  map[string]memoryClient
	passes []PassRecord
	nextID int64
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byKey: make(map[string]memoryClient)}
}

// Put inserts a server with a caller-chosen key and returns its id.
func (m *MemoryStore) Put(name, key string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	m.byKey[key] = memoryClient{id: m.nextID, name: name}
	return m.nextID
}

func (m *MemoryStore) Lookup(ctx context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.byKey[key]
	return c.name, ok, nil
}

func (m *MemoryStore) Register(ctx context.Context, name string) (string, error) {
	if name == "" {
		return "", ErrEmptyName
	}
	key := newKey()
	m.Put(name, key)
	return key, nil
}

func (m *MemoryStore) ClientID(ctx context.Context, key string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.byKey[key]
	if !ok {
		return 0, ErrNotFound
	}
	return c.id, nil
}

func (m *MemoryStore) RecordPass(ctx context.Context, clientID int64, playerID, remoteAddr string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.passes = append(m.passes, PassRecord{
		ClientID:   clientID,
		PlayerID:   playerID,
		RemoteAddr: remoteAddr,
		CreatedAt:  time.Now(),
	})
	return nil
}

func (m *MemoryStore) PassCount(ctx context.Context, clientID int64) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var n int64
	for _, p := range m.passes {
		if p.ClientID == clientID {
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) Ping(ctx context.Context) error { return nil }

func (m *MemoryStore) Close() error { return nil }
