package storage

import (
	"context"
	"fmt"
	"sync"

	"github.com/quernlabs/quern/pkg/hashing"
)

// MemoryStorage keeps chunks in a single mutex-guarded table. Writer
// contention is accepted as the cost of simplicity; durable backends carry
// the real concurrency load.
type MemoryStorage struct {
	hasher hashing.Hasher

	mu     sync.Mutex
	chunks map[hashing.Hash][]byte
}

// NewMemoryStorage returns an empty in-memory store.
func NewMemoryStorage(hasher hashing.Hasher) *MemoryStorage {
	return &MemoryStorage{
		hasher: hasher,
		chunks: make(map[hashing.Hash][]byte),
	}
}

func (m *MemoryStorage) Put(ctx context.Context, data []byte) (hashing.Hash, error) {
	if err := ctx.Err(); err != nil {
		return hashing.Hash{}, fmt.Errorf("storage: put: %w", err)
	}

	hash := m.hasher.HashBlock(data)

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.chunks[hash]; !ok {
		m.chunks[hash] = append([]byte(nil), data...)
	}
	return hash, nil
}

func (m *MemoryStorage) Get(ctx context.Context, hash hashing.Hash) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("storage: get %s: %w", hash.Short(), err)
	}

	m.mu.Lock()
	data, ok := m.chunks[hash]
	m.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("storage: get %s: %w", hash.Short(), ErrNotFound)
	}
	return append([]byte(nil), data...), nil
}

func (m *MemoryStorage) Has(ctx context.Context, hash hashing.Hash) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, fmt.Errorf("storage: has %s: %w", hash.Short(), err)
	}

	m.mu.Lock()
	_, ok := m.chunks[hash]
	m.mu.Unlock()
	return ok, nil
}

func (m *MemoryStorage) EntryCount(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.chunks), nil
}

func (m *MemoryStorage) Close() error { return nil }
