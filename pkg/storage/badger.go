package storage

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/quernlabs/quern/internal/keyvalstore"
	"github.com/quernlabs/quern/pkg/hashing"
)

// BadgerStorage is the durable backend. Chunks live in badger keyed by their
// content hash; each Put is a single-key transaction, so a cancelled call is
// either fully committed or absent.
type BadgerStorage struct {
	hasher hashing.Hasher
	kv     *keyvalstore.Store
	log    *logrus.Logger
}

// BadgerConfig configures the durable backend.
type BadgerConfig struct {
	Path             string
	MinimumFreeBytes uint64
	Compression      bool
	Logger           *logrus.Logger
}

// NewBadgerStorage opens (or creates) a badger-backed store at the
// configured path.
func NewBadgerStorage(config BadgerConfig, hasher hashing.Hasher) (*BadgerStorage, error) {
	if config.Logger == nil {
		config.Logger = logrus.New()
	}

	kv, err := keyvalstore.Open(keyvalstore.Config{
		Path:             config.Path,
		MinimumFreeBytes: config.MinimumFreeBytes,
		Compression:      config.Compression,
		Logger:           config.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("storage: opening badger backend: %w", err)
	}

	return &BadgerStorage{
		hasher: hasher,
		kv:     kv,
		log:    config.Logger,
	}, nil
}

func (b *BadgerStorage) Put(ctx context.Context, data []byte) (hashing.Hash, error) {
	if err := ctx.Err(); err != nil {
		return hashing.Hash{}, fmt.Errorf("storage: put: %w", err)
	}

	hash := b.hasher.HashBlock(data)

	exists, err := b.kv.Has(hash[:])
	if err != nil {
		return hashing.Hash{}, fmt.Errorf("storage: put %s: %w", hash.Short(), err)
	}
	if exists {
		return hash, nil
	}

	if err := b.kv.Write(hash[:], data); err != nil {
		return hashing.Hash{}, fmt.Errorf("storage: put %s: %w", hash.Short(), err)
	}
	return hash, nil
}

func (b *BadgerStorage) Get(ctx context.Context, hash hashing.Hash) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("storage: get %s: %w", hash.Short(), err)
	}

	data, err := b.kv.Read(hash[:])
	if err != nil {
		if keyvalstore.IsNotFound(err) {
			return nil, fmt.Errorf("storage: get %s: %w", hash.Short(), ErrNotFound)
		}
		return nil, fmt.Errorf("storage: get %s: %w", hash.Short(), err)
	}
	return data, nil
}

func (b *BadgerStorage) Has(ctx context.Context, hash hashing.Hash) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, fmt.Errorf("storage: has %s: %w", hash.Short(), err)
	}

	exists, err := b.kv.Has(hash[:])
	if err != nil {
		return false, fmt.Errorf("storage: has %s: %w", hash.Short(), err)
	}
	return exists, nil
}

func (b *BadgerStorage) EntryCount(ctx context.Context) (int, error) {
	count, err := b.kv.EntryCount()
	if err != nil {
		return 0, fmt.Errorf("storage: entry count: %w", err)
	}
	return count, nil
}

// RunGC triggers badger value-log garbage collection.
func (b *BadgerStorage) RunGC() error {
	return b.kv.RunGC()
}

func (b *BadgerStorage) Close() error {
	return b.kv.Close()
}
