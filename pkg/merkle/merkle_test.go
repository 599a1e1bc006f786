package merkle_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quernlabs/quern/pkg/chunker"
	"github.com/quernlabs/quern/pkg/hashing"
	"github.com/quernlabs/quern/pkg/merkle"
)

func chunksOf(t *testing.T, hasher hashing.Hasher, contents ...string) []chunker.Chunk {
	t.Helper()
	chunks := make([]chunker.Chunk, len(contents))
	offset := 0
	for i, c := range contents {
		chunks[i] = chunker.Chunk{
			Hash:   hasher.HashBlock([]byte(c)),
			Data:   []byte(c),
			Length: len(c),
			Index:  i,
			Offset: offset,
			IsLast: i == len(contents)-1,
		}
		offset += len(c)
	}
	return chunks
}

func TestFromBlocksDeterminism(t *testing.T) {
	hasher := hashing.NewBlake3()

	first, err := merkle.FromBlocks(chunksOf(t, hasher, "a", "b", "c", "d"), hasher)
	require.NoError(t, err)
	second, err := merkle.FromBlocks(chunksOf(t, hasher, "a", "b", "c", "d"), hasher)
	require.NoError(t, err)

	assert.Equal(t, first.RootHash, second.RootHash)
	assert.Equal(t, 4, first.BlockCount)
}

func TestFromBlocksSensitivity(t *testing.T) {
	hasher := hashing.NewBlake3()

	base, err := merkle.FromBlocks(chunksOf(t, hasher, "a", "b", "c"), hasher)
	require.NoError(t, err)

	variants := [][]string{
		{"a", "b", "x"},      // content
		{"a", "c", "b"},      // order
		{"a", "b"},           // length
		{"a", "b", "c", "d"}, // extra leaf
	}
	for _, v := range variants {
		tree, err := merkle.FromBlocks(chunksOf(t, hasher, v...), hasher)
		require.NoError(t, err)
		assert.NotEqual(t, base.RootHash, tree.RootHash, fmt.Sprintf("%v", v))
	}
}

func TestFromBlocksEmptyFails(t *testing.T) {
	_, err := merkle.FromBlocks(nil, hashing.NewBlake3())
	assert.ErrorIs(t, err, merkle.ErrNoBlocks)
}

func TestFromBlocksRejectsGappyIndices(t *testing.T) {
	hasher := hashing.NewBlake3()
	chunks := chunksOf(t, hasher, "a", "b")
	chunks[1].Index = 5

	_, err := merkle.FromBlocks(chunks, hasher)
	assert.Error(t, err)
}

func TestOddLeafPromotion(t *testing.T) {
	hasher := hashing.NewBlake3()
	chunks := chunksOf(t, hasher, "a", "b", "c")

	tree, err := merkle.FromBlocks(chunks, hasher)
	require.NoError(t, err)

	// Three leaves: (h0,h1) pair, h2 promoted, then the pair hashes with
	// the promoted leaf at the top.
	h0 := hasher.HashBlock([]byte("a"))
	h1 := hasher.HashBlock([]byte("b"))
	h2 := hasher.HashBlock([]byte("c"))
	want := hasher.HashNodes(hasher.HashNodes(h0, h1), h2)

	assert.Equal(t, want, tree.RootHash)
	assert.Equal(t, 2, tree.Depth())
}

func TestSingleLeafTree(t *testing.T) {
	hasher := hashing.NewBlake3()
	chunks := chunksOf(t, hasher, "only")

	tree, err := merkle.FromBlocks(chunks, hasher)
	require.NoError(t, err)

	assert.Equal(t, chunks[0].Hash, tree.RootHash)
	assert.Equal(t, 0, tree.Depth())
}

func TestFromLeafHashesMatchesFromBlocks(t *testing.T) {
	hasher := hashing.NewBlake3()
	chunks := chunksOf(t, hasher, "a", "b", "c", "d", "e")

	fromBlocks, err := merkle.FromBlocks(chunks, hasher)
	require.NoError(t, err)
	fromHashes, err := merkle.FromLeafHashes(fromBlocks.LeafHashes(), hasher)
	require.NoError(t, err)

	assert.Equal(t, fromBlocks.RootHash, fromHashes.RootHash)
}

func TestVerifyIntegrity(t *testing.T) {
	hasher := hashing.NewBlake3()
	tree, err := merkle.FromBlocks(chunksOf(t, hasher, "a", "b", "c"), hasher)
	require.NoError(t, err)

	require.NoError(t, tree.VerifyIntegrity(hasher))

	tree.Leaves[1].Hash = hasher.HashBlock([]byte("tampered"))
	assert.Error(t, tree.VerifyIntegrity(hasher))
}

func TestSnapshotRoundTrip(t *testing.T) {
	hasher := hashing.NewBlake3()
	tree, err := merkle.FromBlocks(chunksOf(t, hasher, "a", "b", "c", "d", "e", "f", "g"), hasher)
	require.NoError(t, err)

	data, err := tree.MarshalSnapshot()
	require.NoError(t, err)

	restored, err := merkle.FromSnapshot(data)
	require.NoError(t, err)

	assert.Equal(t, tree.RootHash, restored.RootHash)
	assert.Equal(t, tree.Leaves, restored.Leaves)
	assert.Equal(t, tree.BlockCount, restored.BlockCount)
	assert.Equal(t, tree.Depth(), restored.Depth())

	require.NoError(t, restored.VerifyIntegrity(hasher))
}

func TestFromSnapshotRejectsGarbage(t *testing.T) {
	_, err := merkle.FromSnapshot([]byte("not cbor"))
	assert.Error(t, err)
}
