package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/quernlabs/quern/pkg/hashing"
	"github.com/quernlabs/quern/pkg/merkle"
)

// Tree snapshots live next to the chunk store, keyed by root hash, so
// retrieve can reassemble a stream from its root alone.

func treePath(dataDir string, root hashing.Hash) string {
	return filepath.Join(dataDir, "trees", root.String()+".tree")
}

func saveTree(dataDir string, tree *merkle.Tree) error {
	if err := os.MkdirAll(filepath.Join(dataDir, "trees"), 0o755); err != nil {
		return fmt.Errorf("creating trees dir: %w", err)
	}
	data, err := tree.MarshalSnapshot()
	if err != nil {
		return err
	}
	return os.WriteFile(treePath(dataDir, tree.RootHash), data, 0o644)
}

func loadTree(dataDir string, root hashing.Hash) (*merkle.Tree, error) {
	data, err := os.ReadFile(treePath(dataDir, root))
	if err != nil {
		return nil, fmt.Errorf("no stored tree for root %s: %w", root.Short(), err)
	}
	return merkle.FromSnapshot(data)
}
