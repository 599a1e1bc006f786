package blockstore_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quernlabs/quern/pkg/blockstore"
	"github.com/quernlabs/quern/pkg/hashing"
)

func newStore(t *testing.T) *blockstore.Store {
	t.Helper()
	store, err := blockstore.New(blockstore.Config{Path: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestStoreAndGetBlock(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)

	hash := hashing.NewBlake3().HashBlock([]byte("paragraph text"))
	block := &blockstore.Block{
		EntityID:    "doc-1",
		Content:     []byte("paragraph text"),
		BlockType:   "paragraph",
		Position:    0,
		ContentHash: &hash,
	}
	require.NoError(t, store.StoreBlock(ctx, block))
	assert.NotEmpty(t, block.ID)
	assert.False(t, block.CreatedAt.IsZero())

	got, err := store.GetBlock(ctx, block.ID)
	require.NoError(t, err)
	assert.Equal(t, block.ID, got.ID)
	assert.Equal(t, "doc-1", got.EntityID)
	assert.Equal(t, []byte("paragraph text"), got.Content)
	require.NotNil(t, got.ContentHash)
	assert.Equal(t, hash, *got.ContentHash)
	assert.Nil(t, got.ParentBlockID)
}

func TestGetBlockNotFound(t *testing.T) {
	store := newStore(t)

	_, err := store.GetBlock(context.Background(), "missing")
	assert.ErrorIs(t, err, blockstore.ErrBlockNotFound)
}

func TestStoreBlockUpsertIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)

	block := &blockstore.Block{
		ID:        "fixed-id",
		EntityID:  "doc-1",
		Content:   []byte("v1"),
		BlockType: "paragraph",
	}
	require.NoError(t, store.StoreBlock(ctx, block))
	created := block.CreatedAt

	block.Content = []byte("v2")
	require.NoError(t, store.StoreBlock(ctx, block))

	blocks, err := store.GetBlocks(ctx, "doc-1")
	require.NoError(t, err)
	require.Len(t, blocks, 1)
	assert.Equal(t, []byte("v2"), blocks[0].Content)
	assert.Equal(t, created.UTC(), blocks[0].CreatedAt.UTC())
}

func TestGetBlocksOrderedByPosition(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)

	for _, pos := range []int32{2, 0, 1} {
		require.NoError(t, store.StoreBlock(ctx, &blockstore.Block{
			EntityID:  "doc-1",
			Content:   []byte{byte(pos)},
			BlockType: "paragraph",
			Position:  pos,
		}))
	}

	blocks, err := store.GetBlocks(ctx, "doc-1")
	require.NoError(t, err)
	require.Len(t, blocks, 3)
	for i, b := range blocks {
		assert.Equal(t, int32(i), b.Position)
	}
}

func TestGetChildBlocks(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)

	parent := &blockstore.Block{EntityID: "doc-1", Content: []byte("heading"), BlockType: "heading"}
	require.NoError(t, store.StoreBlock(ctx, parent))

	for i := int32(0); i < 2; i++ {
		require.NoError(t, store.StoreBlock(ctx, &blockstore.Block{
			EntityID:      "doc-1",
			ParentBlockID: &parent.ID,
			Content:       []byte("child"),
			BlockType:     "paragraph",
			Position:      i,
		}))
	}

	children, err := store.GetChildBlocks(ctx, parent.ID)
	require.NoError(t, err)
	assert.Len(t, children, 2)
	for _, c := range children {
		require.NotNil(t, c.ParentBlockID)
		assert.Equal(t, parent.ID, *c.ParentBlockID)
	}
}

func TestUpdateBlock(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)

	block := &blockstore.Block{EntityID: "doc-1", Content: []byte("before"), BlockType: "paragraph"}
	require.NoError(t, store.StoreBlock(ctx, block))

	block.Content = []byte("after")
	block.Position = 7
	require.NoError(t, store.UpdateBlock(ctx, block))

	got, err := store.GetBlock(ctx, block.ID)
	require.NoError(t, err)
	assert.Equal(t, []byte("after"), got.Content)
	assert.Equal(t, int32(7), got.Position)
	assert.False(t, got.UpdatedAt.Before(got.CreatedAt))
}

func TestUpdateBlockNotFound(t *testing.T) {
	store := newStore(t)

	err := store.UpdateBlock(context.Background(), &blockstore.Block{ID: "missing"})
	assert.ErrorIs(t, err, blockstore.ErrBlockNotFound)
}

func TestDeleteBlockRecursive(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)

	root := &blockstore.Block{EntityID: "doc-1", Content: []byte("root"), BlockType: "heading"}
	require.NoError(t, store.StoreBlock(ctx, root))

	child := &blockstore.Block{EntityID: "doc-1", ParentBlockID: &root.ID, Content: []byte("child"), BlockType: "paragraph"}
	require.NoError(t, store.StoreBlock(ctx, child))

	grandchild := &blockstore.Block{EntityID: "doc-1", ParentBlockID: &child.ID, Content: []byte("grandchild"), BlockType: "paragraph"}
	require.NoError(t, store.StoreBlock(ctx, grandchild))

	sibling := &blockstore.Block{EntityID: "doc-1", Content: []byte("sibling"), BlockType: "paragraph"}
	require.NoError(t, store.StoreBlock(ctx, sibling))

	count, err := store.DeleteBlock(ctx, root.ID, true)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	_, err = store.GetBlock(ctx, grandchild.ID)
	assert.ErrorIs(t, err, blockstore.ErrBlockNotFound)

	_, err = store.GetBlock(ctx, sibling.ID)
	assert.NoError(t, err)
}

func TestDeleteBlockNonRecursive(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)

	block := &blockstore.Block{EntityID: "doc-1", Content: []byte("x"), BlockType: "paragraph"}
	require.NoError(t, store.StoreBlock(ctx, block))

	count, err := store.DeleteBlock(ctx, block.ID, false)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	count, err = store.DeleteBlock(ctx, block.ID, false)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestDeleteBlocksByEntity(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)

	for i := int32(0); i < 3; i++ {
		require.NoError(t, store.StoreBlock(ctx, &blockstore.Block{
			EntityID: "doc-1", Content: []byte("x"), BlockType: "paragraph", Position: i,
		}))
	}
	require.NoError(t, store.StoreBlock(ctx, &blockstore.Block{
		EntityID: "doc-2", Content: []byte("y"), BlockType: "paragraph",
	}))

	count, err := store.DeleteBlocks(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	remaining, err := store.GetBlocks(ctx, "doc-2")
	require.NoError(t, err)
	assert.Len(t, remaining, 1)
}

func TestGetContentHash(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)

	hash := hashing.NewBlake3().HashBlock([]byte("content"))
	withHash := &blockstore.Block{EntityID: "doc-1", Content: []byte("content"), BlockType: "paragraph", ContentHash: &hash}
	require.NoError(t, store.StoreBlock(ctx, withHash))

	withoutHash := &blockstore.Block{EntityID: "doc-1", Content: []byte("other"), BlockType: "paragraph"}
	require.NoError(t, store.StoreBlock(ctx, withoutHash))

	got, err := store.GetContentHash(ctx, withHash.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, hash, *got)

	got, err = store.GetContentHash(ctx, withoutHash.ID)
	require.NoError(t, err)
	assert.Nil(t, got)

	_, err = store.GetContentHash(ctx, "missing")
	assert.ErrorIs(t, err, blockstore.ErrBlockNotFound)
}
