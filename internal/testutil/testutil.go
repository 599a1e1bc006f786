// Package testutil holds shared helpers for package tests.
package testutil

import (
	"flag"
	"testing"

	"github.com/quernlabs/quern/pkg/hashing"
	"github.com/quernlabs/quern/pkg/storage"
)

var RunLong = flag.Bool("long", false, "run long/heavy tests")

func RequireLong(t *testing.T) {
	t.Helper()
	if !*RunLong {
		t.Skip("skipping long test (use -long to enable)")
	}
}

func IsLongEnabled() bool {
	return *RunLong
}

// NewMemoryStore returns a blake3-keyed in-memory store.
func NewMemoryStore(t *testing.T) storage.ContentAddressedStorage {
	t.Helper()
	store := storage.NewMemoryStorage(hashing.NewBlake3())
	t.Cleanup(func() { store.Close() })
	return store
}

// NewBadgerStore returns a durable store rooted in a temp dir that is
// removed when the test ends.
func NewBadgerStore(t *testing.T) storage.ContentAddressedStorage {
	t.Helper()
	store, err := storage.NewBuilder().
		WithBadgerBackend(t.TempDir()).
		WithHasher(hashing.NewBlake3()).
		Build()
	if err != nil {
		t.Fatalf("opening badger store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}
