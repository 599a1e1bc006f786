package keyvalstore_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quernlabs/quern/internal/keyvalstore"
	"github.com/quernlabs/quern/internal/testutil"
)

func openStore(t *testing.T, compression bool) *keyvalstore.Store {
	t.Helper()
	store, err := keyvalstore.Open(keyvalstore.Config{
		Path:        t.TempDir(),
		Compression: compression,
	})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestOpenRequiresPath(t *testing.T) {
	_, err := keyvalstore.Open(keyvalstore.Config{})
	assert.Error(t, err)
}

func TestWriteReadRoundTrip(t *testing.T) {
	for _, compression := range []bool{false, true} {
		store := openStore(t, compression)

		key := []byte("some-key")
		value := []byte("some value that should survive the round trip")

		require.NoError(t, store.Write(key, value))

		got, err := store.Read(key)
		require.NoError(t, err)
		assert.Equal(t, value, got)
	}
}

func TestReadMissingKey(t *testing.T) {
	store := openStore(t, false)

	_, err := store.Read([]byte("nope"))
	assert.True(t, keyvalstore.IsNotFound(err))
}

func TestHas(t *testing.T) {
	store := openStore(t, false)

	ok, err := store.Has([]byte("k"))
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Write([]byte("k"), []byte("v")))

	ok, err = store.Has([]byte("k"))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestEntryCountAndCounters(t *testing.T) {
	store := openStore(t, false)

	for _, k := range []string{"a", "b", "c"} {
		require.NoError(t, store.Write([]byte(k), []byte("v")))
	}
	_, err := store.Read([]byte("a"))
	require.NoError(t, err)

	count, err := store.EntryCount()
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	reads, writes := store.Counters()
	assert.Equal(t, uint64(1), reads)
	assert.Equal(t, uint64(3), writes)
}

func TestRunGC(t *testing.T) {
	testutil.RequireLong(t)
	store := openStore(t, false)

	for i := 0; i < 1000; i++ {
		require.NoError(t, store.Write([]byte{byte(i), byte(i >> 8)}, make([]byte, 4096)))
	}
	assert.NoError(t, store.RunGC())
}
