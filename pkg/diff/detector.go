package diff

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/quernlabs/quern/pkg/hashing"
	"github.com/quernlabs/quern/pkg/merkle"
	"github.com/quernlabs/quern/pkg/storage"
)

// Config tunes the change detector.
type Config struct {
	// SimilarityThreshold is the minimum score for reporting a delete+add
	// pair as a single modification.
	SimilarityThreshold float32
	// SearchWindow bounds how far (in leaf indices) a deletion candidate
	// looks for an addition candidate to pair with.
	SearchWindow int
	// Clock supplies record timestamps; defaults to time.Now.
	Clock func() time.Time
}

// DefaultConfig matches the tuning of the reference deployment.
func DefaultConfig() Config {
	return Config{
		SimilarityThreshold: 0.7,
		SearchWindow:        8,
		Clock:               time.Now,
	}
}

// Detector compares two Merkle trees and classifies every leaf-level
// difference. It reads chunk contents from the store to score candidate
// modifications; the trees themselves carry only hashes.
//
// A Detector is stateless between calls and safe for concurrent use.
type Detector struct {
	config Config
	store  storage.ContentAddressedStorage
	hasher hashing.Hasher
	log    *logrus.Logger
}

// NewDetector returns a detector with the default configuration.
func NewDetector(store storage.ContentAddressedStorage, hasher hashing.Hasher) *Detector {
	return NewDetectorWithConfig(store, hasher, DefaultConfig())
}

// NewDetectorWithConfig returns a detector with explicit tuning.
func NewDetectorWithConfig(store storage.ContentAddressedStorage, hasher hashing.Hasher, config Config) *Detector {
	if config.Clock == nil {
		config.Clock = time.Now
	}
	if config.SearchWindow < 0 {
		config.SearchWindow = 0
	}
	return &Detector{
		config: config,
		store:  store,
		hasher: hasher,
		log:    logrus.New(),
	}
}

// SetLogger replaces the detector's logger.
func (d *Detector) SetLogger(log *logrus.Logger) {
	if log != nil {
		d.log = log
	}
}

type candidate struct {
	index int
	hash  hashing.Hash
}

// CompareTrees produces the ordered change list between oldTree and
// newTree. Identical roots short-circuit to an empty list. Output ordering
// is fully deterministic: records sort by the position they occupy in the
// new tree (old tree for pure deletes), ties in construction order
// (moves, modifications, deletions, additions).
func (d *Detector) CompareTrees(ctx context.Context, oldTree, newTree *merkle.Tree, source Source) ([]Change, error) {
	if oldTree == nil || newTree == nil {
		return nil, fmt.Errorf("diff: compare requires two trees")
	}
	if oldTree.RootHash == newTree.RootHash {
		return nil, nil
	}

	meta := Metadata{Timestamp: d.config.Clock(), Source: source}

	oldByHash := indexByHash(oldTree)
	newByHash := indexByHash(newTree)

	var moves, deletions, additions []Change
	var delCand, addCand []candidate

	// Old-side pass: common hashes pair occurrence-wise in index order;
	// equal positions are unchanged, unequal ones moved. Occurrences
	// without a partner become deletion candidates.
	occOld := make(map[hashing.Hash]int)
	for _, leaf := range oldTree.Leaves {
		k := occOld[leaf.Hash]
		occOld[leaf.Hash]++

		newIndices := newByHash[leaf.Hash]
		if k < len(newIndices) {
			if newIndices[k] != leaf.Index {
				moves = append(moves, Change{
					Type:     Moved,
					OldIndex: leaf.Index,
					NewIndex: newIndices[k],
					Hash:     leaf.Hash,
					Meta:     meta,
				})
			}
			continue
		}
		delCand = append(delCand, candidate{index: leaf.Index, hash: leaf.Hash})
	}

	// New-side pass: occurrences beyond the old tree's count are addition
	// candidates.
	occNew := make(map[hashing.Hash]int)
	for _, leaf := range newTree.Leaves {
		k := occNew[leaf.Hash]
		occNew[leaf.Hash]++
		if k < len(oldByHash[leaf.Hash]) {
			continue
		}
		addCand = append(addCand, candidate{index: leaf.Index, hash: leaf.Hash})
	}

	// Modification pairing: each deletion candidate looks for the
	// best-scoring addition candidate, same index first, then nearest
	// within the window.
	addUsed := make([]bool, len(addCand))
	var modifications []Change
	for _, dc := range delCand {
		best, score, err := d.bestMatch(ctx, dc, addCand, addUsed)
		if err != nil {
			return nil, err
		}
		if best >= 0 && score >= d.config.SimilarityThreshold {
			ac := addCand[best]
			addUsed[best] = true
			modifications = append(modifications, Change{
				Type:       Modified,
				Index:      ac.index,
				OldHash:    dc.hash,
				NewHash:    ac.hash,
				Similarity: score,
				Meta:       meta,
			})
			continue
		}
		deletions = append(deletions, Change{
			Type:  Deleted,
			Index: dc.index,
			Hash:  dc.hash,
			Meta:  meta,
		})
	}

	for i, ac := range addCand {
		if addUsed[i] {
			continue
		}
		additions = append(additions, Change{
			Type:  Added,
			Index: ac.index,
			Hash:  ac.hash,
			Meta:  meta,
		})
	}

	changes := make([]Change, 0, len(moves)+len(modifications)+len(deletions)+len(additions))
	changes = append(changes, moves...)
	changes = append(changes, modifications...)
	changes = append(changes, deletions...)
	changes = append(changes, additions...)

	sort.SliceStable(changes, func(i, j int) bool {
		return changes[i].Position() < changes[j].Position()
	})

	d.log.WithFields(logrus.Fields{
		"old_root": oldTree.RootHash.Short(),
		"new_root": newTree.RootHash.Short(),
		"changes":  len(changes),
	}).Debug("diff: trees compared")

	return changes, nil
}

// bestMatch scores the unused addition candidates within the search window
// around dc and returns the index of the highest-scoring one. Candidates
// are visited same-index first, then by ascending distance, so equal
// scores resolve deterministically. Missing chunk content disqualifies a
// pairing without failing the comparison.
func (d *Detector) bestMatch(ctx context.Context, dc candidate, addCand []candidate, addUsed []bool) (int, float32, error) {
	oldData, err := d.store.Get(ctx, dc.hash)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return -1, 0, nil
		}
		return -1, 0, fmt.Errorf("diff: loading old chunk %s: %w", dc.hash.Short(), err)
	}

	type scored struct {
		pos      int
		distance int
	}
	var window []scored
	for i, ac := range addCand {
		if addUsed[i] {
			continue
		}
		distance := ac.index - dc.index
		if distance < 0 {
			distance = -distance
		}
		if distance > d.config.SearchWindow {
			continue
		}
		window = append(window, scored{pos: i, distance: distance})
	}
	sort.SliceStable(window, func(i, j int) bool {
		return window[i].distance < window[j].distance
	})

	best := -1
	var bestScore float32
	for _, w := range window {
		ac := addCand[w.pos]
		newData, err := d.store.Get(ctx, ac.hash)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				continue
			}
			return -1, 0, fmt.Errorf("diff: loading new chunk %s: %w", ac.hash.Short(), err)
		}
		if score := Similarity(oldData, newData); score > bestScore {
			best = w.pos
			bestScore = score
		}
	}
	return best, bestScore, nil
}

func indexByHash(tree *merkle.Tree) map[hashing.Hash][]int {
	m := make(map[hashing.Hash][]int, len(tree.Leaves))
	for _, leaf := range tree.Leaves {
		m[leaf.Hash] = append(m[leaf.Hash], leaf.Index)
	}
	return m
}
