// Package diff classifies the differences between two Merkle trees as
// additions, deletions, in-place modifications and position-preserving
// moves.
package diff

import (
	"time"

	"github.com/quernlabs/quern/pkg/hashing"
)

// ChangeType is the closed set of change classifications. Consumers can
// switch exhaustively; well-formed detector output never carries another
// value.
type ChangeType string

const (
	Added    ChangeType = "added"
	Deleted  ChangeType = "deleted"
	Modified ChangeType = "modified"
	Moved    ChangeType = "moved"
)

// Source tags where a change came from.
type Source string

const (
	SourceUserEdit    Source = "user_edit"
	SourceImport      Source = "import"
	SourceSync        Source = "sync"
	SourceMigration   Source = "migration"
	SourceMaintenance Source = "maintenance"
	SourceReindex     Source = "reindex"
	SourceUnknown     Source = "unknown"
)

// Metadata is shared by every change record.
type Metadata struct {
	Timestamp time.Time
	Source    Source
}

// Change is one classified difference between two trees. The populated
// fields depend on Type:
//
//	Added:    Index, Hash
//	Deleted:  Index, Hash
//	Modified: Index (new tree), OldHash, NewHash, Similarity
//	Moved:    OldIndex, NewIndex, Hash
//
// Records are immutable once produced.
type Change struct {
	Type ChangeType

	Index    int
	OldIndex int
	NewIndex int

	Hash    hashing.Hash
	OldHash hashing.Hash
	NewHash hashing.Hash

	// Similarity is a [0,1] content-closeness score, set for Modified.
	Similarity float32

	Meta Metadata
}

// Position returns the ordering key for detector output: the position the
// record occupies in the new tree, or the old tree for pure deletes.
func (c Change) Position() int {
	if c.Type == Moved {
		return c.NewIndex
	}
	return c.Index
}
