// Package storage provides content-addressed chunk storage behind pluggable
// backends.
//
// All backends satisfy the same interface: Put is idempotent, Get resolves a
// hash to the original bytes, Has answers existence without transferring the
// payload. Callers depend only on the interface so tests can substitute the
// in-memory backend for the durable one without code changes.
package storage

import (
	"context"
	"errors"

	"github.com/quernlabs/quern/pkg/hashing"
)

// ErrNotFound is returned by Get when no content exists for the hash.
// Callers decide the fallback; it is never fatal to the store itself.
var ErrNotFound = errors.New("storage: hash not found")

// ContentAddressedStorage is the backend-abstracted chunk store. Instances
// are shared by many readers and writers; no caller may assume exclusive
// access. Each Put is atomic at the granularity of one chunk: a cancelled
// call never leaves a partially-written entry observable.
type ContentAddressedStorage interface {
	// Put stores data under its content hash and returns the hash. Storing
	// the same bytes twice returns the same hash and is a no-op the second
	// time.
	Put(ctx context.Context, data []byte) (hashing.Hash, error)

	// Get returns the bytes stored under hash, or an error wrapping
	// ErrNotFound.
	Get(ctx context.Context, hash hashing.Hash) ([]byte, error)

	// Has reports whether content exists for the hash.
	Has(ctx context.Context, hash hashing.Hash) (bool, error)

	// EntryCount returns the number of distinct stored chunks.
	EntryCount(ctx context.Context) (int, error)

	// Close releases backend resources.
	Close() error
}
