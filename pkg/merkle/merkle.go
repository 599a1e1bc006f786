// Package merkle builds binary hash trees over ordered chunk sequences.
//
// Leaves are per-chunk hashes in index order. Interior levels are built
// bottom-up by hashing adjacent sibling pairs; an odd node at any level is
// promoted unchanged to the next level rather than padded with a sentinel,
// so a promoted digest can never collide with real content. The root is a
// pure function of the ordered leaf hashes: two trees built independently
// over identical chunk sequences always share the same root.
package merkle

import (
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/quernlabs/quern/pkg/chunker"
	"github.com/quernlabs/quern/pkg/hashing"
)

// ErrNoBlocks is returned when a tree is built from an empty chunk sequence.
var ErrNoBlocks = errors.New("merkle: cannot build tree from empty chunk sequence")

// Leaf pairs a chunk index with its content hash.
type Leaf struct {
	Index int
	Hash  hashing.Hash
}

// Tree is a read-only comparison object; it is never mutated after
// construction and may be shared across goroutines without locking.
type Tree struct {
	RootHash   hashing.Hash
	Leaves     []Leaf
	BlockCount int

	// levels[0] holds the leaf hashes, the last level the root. Empty for
	// trees restored from a snapshot; VerifyIntegrity rebuilds them.
	levels [][]hashing.Hash
}

// FromBlocks constructs a tree over the given chunks. The chunks must be
// non-empty with contiguous 0-based indices.
func FromBlocks(chunks []chunker.Chunk, hasher hashing.Hasher) (*Tree, error) {
	if len(chunks) == 0 {
		return nil, ErrNoBlocks
	}

	leaves := make([]Leaf, len(chunks))
	level := make([]hashing.Hash, len(chunks))
	for i, c := range chunks {
		if c.Index != i {
			return nil, fmt.Errorf("merkle: chunk at position %d has index %d, want contiguous indices", i, c.Index)
		}
		leaves[i] = Leaf{Index: i, Hash: c.Hash}
		level[i] = c.Hash
	}

	levels := reduce(level, hasher)

	return &Tree{
		RootHash:   levels[len(levels)-1][0],
		Leaves:     leaves,
		BlockCount: len(chunks),
		levels:     levels,
	}, nil
}

// FromLeafHashes constructs a tree directly from ordered leaf hashes. Used
// when rebuilding trees from persisted per-block hashes.
func FromLeafHashes(hashes []hashing.Hash, hasher hashing.Hasher) (*Tree, error) {
	if len(hashes) == 0 {
		return nil, ErrNoBlocks
	}

	leaves := make([]Leaf, len(hashes))
	level := make([]hashing.Hash, len(hashes))
	for i, h := range hashes {
		leaves[i] = Leaf{Index: i, Hash: h}
		level[i] = h
	}

	levels := reduce(level, hasher)

	return &Tree{
		RootHash:   levels[len(levels)-1][0],
		Leaves:     leaves,
		BlockCount: len(hashes),
		levels:     levels,
	}, nil
}

// reduce builds all interior levels bottom-up. The input slice becomes
// levels[0].
func reduce(level []hashing.Hash, hasher hashing.Hasher) [][]hashing.Hash {
	levels := [][]hashing.Hash{level}
	for len(level) > 1 {
		next := make([]hashing.Hash, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			if i+1 < len(level) {
				next = append(next, hasher.HashNodes(level[i], level[i+1]))
			} else {
				// Odd node: promote unchanged.
				next = append(next, level[i])
			}
		}
		levels = append(levels, next)
		level = next
	}
	return levels
}

// Depth returns the number of levels above the leaves. A single-leaf tree
// has depth 0.
func (t *Tree) Depth() int {
	if len(t.levels) == 0 {
		// Restored from snapshot; derive from leaf count.
		depth := 0
		for n := t.BlockCount; n > 1; n = (n + 1) / 2 {
			depth++
		}
		return depth
	}
	return len(t.levels) - 1
}

// LeafHashes returns the ordered leaf hashes.
func (t *Tree) LeafHashes() []hashing.Hash {
	hashes := make([]hashing.Hash, len(t.Leaves))
	for i, l := range t.Leaves {
		hashes[i] = l.Hash
	}
	return hashes
}

// VerifyIntegrity recomputes every interior level from the leaves and checks
// the stored root. For snapshot-restored trees this also repopulates the
// levels.
func (t *Tree) VerifyIntegrity(hasher hashing.Hasher) error {
	if t.BlockCount == 0 || len(t.Leaves) != t.BlockCount {
		return fmt.Errorf("merkle: tree has %d leaves but block count %d", len(t.Leaves), t.BlockCount)
	}

	levels := reduce(t.LeafHashes(), hasher)
	root := levels[len(levels)-1][0]
	if root != t.RootHash {
		return fmt.Errorf("merkle: root mismatch: computed %s, stored %s", root.Short(), t.RootHash.Short())
	}

	t.levels = levels
	return nil
}

// snapshot is the persisted form of a tree. Interior levels are derivable
// and not stored.
type snapshot struct {
	Root       [hashing.Size]byte   `cbor:"1,keyasint"`
	Leaves     [][hashing.Size]byte `cbor:"2,keyasint"`
	BlockCount int                  `cbor:"3,keyasint"`
}

// MarshalSnapshot encodes the tree for persistence in the key-value store.
func (t *Tree) MarshalSnapshot() ([]byte, error) {
	s := snapshot{
		Root:       t.RootHash,
		Leaves:     make([][hashing.Size]byte, len(t.Leaves)),
		BlockCount: t.BlockCount,
	}
	for i, l := range t.Leaves {
		s.Leaves[i] = l.Hash
	}

	data, err := cbor.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("merkle: encoding snapshot: %w", err)
	}
	return data, nil
}

// FromSnapshot restores a tree persisted with MarshalSnapshot. The restored
// tree carries no interior levels until VerifyIntegrity is called.
func FromSnapshot(data []byte) (*Tree, error) {
	var s snapshot
	if err := cbor.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("merkle: decoding snapshot: %w", err)
	}
	if s.BlockCount == 0 || len(s.Leaves) != s.BlockCount {
		return nil, fmt.Errorf("merkle: snapshot has %d leaves but block count %d", len(s.Leaves), s.BlockCount)
	}

	leaves := make([]Leaf, len(s.Leaves))
	for i, h := range s.Leaves {
		leaves[i] = Leaf{Index: i, Hash: h}
	}

	return &Tree{
		RootHash:   s.Root,
		Leaves:     leaves,
		BlockCount: s.BlockCount,
	}, nil
}
