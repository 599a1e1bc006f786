package chunker_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quernlabs/quern/pkg/chunker"
	"github.com/quernlabs/quern/pkg/hashing"
	"github.com/quernlabs/quern/pkg/workerpool"
)

func TestBlockSizePresets(t *testing.T) {
	assert.Equal(t, 1024, chunker.Small.TargetBytes())
	assert.Equal(t, 4096, chunker.Medium.TargetBytes())
	assert.Equal(t, 16384, chunker.Large.TargetBytes())
}

func TestParseBlockSize(t *testing.T) {
	for _, name := range []string{"small", "medium", "large"} {
		size, err := chunker.ParseBlockSize(name)
		require.NoError(t, err)
		assert.Equal(t, name, size.String())
	}

	size, err := chunker.ParseBlockSize("")
	require.NoError(t, err)
	assert.Equal(t, chunker.Medium, size)

	_, err = chunker.ParseBlockSize("gigantic")
	assert.Error(t, err)
}

func TestChunkBytesSingleChunk(t *testing.T) {
	hasher := hashing.NewBlake3()
	data := []byte("fits in one chunk")

	chunks, err := chunker.ChunkBytes(data, chunker.Small, hasher)
	require.NoError(t, err)
	require.Len(t, chunks, 1)

	assert.Equal(t, 0, chunks[0].Index)
	assert.Equal(t, 0, chunks[0].Offset)
	assert.True(t, chunks[0].IsLast)
	assert.Equal(t, data, chunks[0].Data)
	assert.Equal(t, hasher.HashBlock(data), chunks[0].Hash)
}

func TestChunkBytesEmptyInput(t *testing.T) {
	hasher := hashing.NewBlake3()

	chunks, err := chunker.ChunkBytes(nil, chunker.Medium, hasher)
	require.NoError(t, err)
	require.Len(t, chunks, 1)

	assert.Equal(t, 0, chunks[0].Length)
	assert.True(t, chunks[0].IsLast)
	assert.Equal(t, hasher.HashBlock(nil), chunks[0].Hash)
}

func TestChunkBytesContiguity(t *testing.T) {
	hasher := hashing.NewBlake3()
	data := bytes.Repeat([]byte("x"), 3*1024+100)

	chunks, err := chunker.ChunkBytes(data, chunker.Small, hasher)
	require.NoError(t, err)
	require.Len(t, chunks, 4)

	offset := 0
	var reassembled []byte
	for i, c := range chunks {
		assert.Equal(t, i, c.Index)
		assert.Equal(t, offset, c.Offset)
		assert.Equal(t, len(c.Data), c.Length)
		assert.Equal(t, i == len(chunks)-1, c.IsLast)
		offset += c.Length
		reassembled = append(reassembled, c.Data...)
	}
	assert.Equal(t, data, reassembled)
	assert.Equal(t, 100, chunks[3].Length)
}

func TestChunkReaderParallelMatchesSerial(t *testing.T) {
	hasher := hashing.NewBlake3()
	data := bytes.Repeat([]byte("quern"), 5000)

	serial, err := chunker.ChunkBytes(data, chunker.Small, hasher)
	require.NoError(t, err)

	pool := workerpool.New(workerpool.Config{WorkerCount: 4})
	defer pool.Close()

	parallel, err := chunker.ChunkReaderParallel(bytes.NewReader(data), chunker.Small, hasher, pool)
	require.NoError(t, err)

	assert.Equal(t, serial, parallel)
}

func TestChunkReaderParallelEmptyInput(t *testing.T) {
	pool := workerpool.New(workerpool.Config{WorkerCount: 2})
	defer pool.Close()

	chunks, err := chunker.ChunkReaderParallel(bytes.NewReader(nil), chunker.Medium, hashing.NewBlake3(), pool)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.True(t, chunks[0].IsLast)
}
