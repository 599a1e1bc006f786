// Package quern is a content-addressed storage engine with Merkle-tree
// change detection. It chunks byte streams, stores chunks by content
// hash, builds reproducible Merkle trees over them and classifies the
// differences between two trees as added, deleted, modified or moved
// blocks.
package quern

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/quernlabs/quern/pkg/blockstore"
	"github.com/quernlabs/quern/pkg/chunker"
	"github.com/quernlabs/quern/pkg/diff"
	"github.com/quernlabs/quern/pkg/hashing"
	"github.com/quernlabs/quern/pkg/merkle"
	"github.com/quernlabs/quern/pkg/storage"
	"github.com/quernlabs/quern/pkg/workerpool"
)

// Quern is the engine handle. It owns the chunk store, the block store
// and the lifecycle of the background garbage collection loop.
type Quern struct {
	config Config
	log    *logrus.Logger

	hasher    hashing.Hasher
	blockSize chunker.BlockSize
	store     storage.ContentAddressedStorage
	blocks    *blockstore.Store
	detector  *diff.Detector
	pool      *workerpool.Pool

	gcStop    chan struct{}
	closeOnce sync.Once
}

// New wires the engine from config. The badger backend requires
// Paths[0]; missing hasher or backend identifiers fail here, not at
// first use.
func New(conf Config) (*Quern, error) {
	if conf.Logger == nil {
		conf.Logger = defaultLogger()
	}

	hasher, err := hashing.New(conf.Hasher)
	if err != nil {
		return nil, fmt.Errorf("quern: %w", err)
	}

	blockSize := chunker.Medium
	if conf.BlockSize != "" {
		blockSize, err = chunker.ParseBlockSize(conf.BlockSize)
		if err != nil {
			return nil, fmt.Errorf("quern: %w", err)
		}
	}

	backend, err := storage.ParseBackendType(conf.Backend)
	if err != nil {
		return nil, fmt.Errorf("quern: %w", err)
	}

	builder := storage.NewBuilder().
		WithHasher(hasher).
		WithBlockSize(blockSize).
		WithCompression(conf.Compression).
		WithMinimumFreeBytes(uint64(conf.MinimumFreeGB) * 1024 * 1024 * 1024).
		WithLogger(conf.Logger)

	var dataPath string
	switch backend {
	case storage.BackendMemory:
		builder.WithMemoryBackend()
	case storage.BackendBadger:
		if len(conf.Paths) == 0 {
			return nil, fmt.Errorf("quern: badger backend requires at least one path")
		}
		dataPath = conf.Paths[0]
		builder.WithBadgerBackend(filepath.Join(dataPath, "chunks"))
	}

	store, err := builder.Build()
	if err != nil {
		return nil, fmt.Errorf("quern: %w", err)
	}

	var blocks *blockstore.Store
	if dataPath != "" {
		blocks, err = blockstore.New(blockstore.Config{
			Path:   filepath.Join(dataPath, "blocks"),
			Logger: conf.Logger,
		})
		if err != nil {
			store.Close()
			return nil, fmt.Errorf("quern: %w", err)
		}
	}

	detector := diff.NewDetector(store, hasher)
	detector.SetLogger(conf.Logger)

	q := &Quern{
		config:    conf,
		log:       conf.Logger,
		hasher:    hasher,
		blockSize: blockSize,
		store:     store,
		blocks:    blocks,
		detector:  detector,
		pool:      workerpool.New(workerpool.Config{}),
		gcStop:    make(chan struct{}),
	}

	if conf.GarbageCollectionInterval > 0 {
		if gc, ok := store.(*storage.BadgerStorage); ok {
			go q.runGarbageCollection(gc, conf.GarbageCollectionInterval)
		}
	}

	return q, nil
}

// Snapshot chunks the reader, stores every chunk and returns the Merkle
// tree over the stream.
func (q *Quern) Snapshot(ctx context.Context, reader io.Reader) (*merkle.Tree, error) {
	chunks, err := chunker.ChunkReaderParallel(reader, q.blockSize, q.hasher, q.pool)
	if err != nil {
		return nil, fmt.Errorf("quern: chunking input: %w", err)
	}
	for _, chunk := range chunks {
		if _, err := q.store.Put(ctx, chunk.Data); err != nil {
			return nil, fmt.Errorf("quern: storing chunk %d: %w", chunk.Index, err)
		}
	}
	tree, err := merkle.FromBlocks(chunks, q.hasher)
	if err != nil {
		return nil, fmt.Errorf("quern: building tree: %w", err)
	}
	return tree, nil
}

// SnapshotBytes is Snapshot over an in-memory buffer.
func (q *Quern) SnapshotBytes(ctx context.Context, data []byte) (*merkle.Tree, error) {
	chunks, err := chunker.ChunkBytes(data, q.blockSize, q.hasher)
	if err != nil {
		return nil, fmt.Errorf("quern: chunking input: %w", err)
	}
	for _, chunk := range chunks {
		if _, err := q.store.Put(ctx, chunk.Data); err != nil {
			return nil, fmt.Errorf("quern: storing chunk %d: %w", chunk.Index, err)
		}
	}
	tree, err := merkle.FromBlocks(chunks, q.hasher)
	if err != nil {
		return nil, fmt.Errorf("quern: building tree: %w", err)
	}
	return tree, nil
}

// Restore reassembles the byte stream a tree was built over by reading
// every leaf chunk from the store in index order.
func (q *Quern) Restore(ctx context.Context, tree *merkle.Tree) ([]byte, error) {
	if tree == nil {
		return nil, fmt.Errorf("quern: restore requires a tree")
	}
	var out []byte
	for _, leaf := range tree.Leaves {
		data, err := q.store.Get(ctx, leaf.Hash)
		if err != nil {
			return nil, fmt.Errorf("quern: restoring leaf %d: %w", leaf.Index, err)
		}
		out = append(out, data...)
	}
	return out, nil
}

// Compare classifies the differences between two trees.
func (q *Quern) Compare(ctx context.Context, oldTree, newTree *merkle.Tree, source diff.Source) ([]diff.Change, error) {
	return q.detector.CompareTrees(ctx, oldTree, newTree, source)
}

// Storage exposes the chunk store.
func (q *Quern) Storage() storage.ContentAddressedStorage { return q.store }

// Blocks exposes the hierarchical block store. Nil for the memory
// backend, which has no data directory to host it.
func (q *Quern) Blocks() *blockstore.Store { return q.blocks }

// Hasher exposes the configured content hasher.
func (q *Quern) Hasher() hashing.Hasher { return q.hasher }

// BlockSize exposes the configured chunking target.
func (q *Quern) BlockSize() chunker.BlockSize { return q.blockSize }

func (q *Quern) runGarbageCollection(gc *storage.BadgerStorage, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := gc.RunGC(); err != nil {
				q.log.WithError(err).Warn("quern: garbage collection failed")
			}
		case <-q.gcStop:
			return
		}
	}
}

// Close stops the GC loop and closes both stores.
func (q *Quern) Close() error {
	var err error
	q.closeOnce.Do(func() {
		close(q.gcStop)
		q.pool.Close()
		if q.blocks != nil {
			if cerr := q.blocks.Close(); cerr != nil {
				err = cerr
			}
		}
		if cerr := q.store.Close(); cerr != nil && err == nil {
			err = cerr
		}
	})
	return err
}
