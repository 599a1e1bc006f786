// Package keyvalstore wraps badger for the durable content-addressed
// backend. Keys are content hashes; values are chunk payloads, optionally
// lzma-compressed before they hit the value log.
package keyvalstore

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"runtime"
	"sync/atomic"

	"github.com/dgraph-io/badger/v4"
	"github.com/shirou/gopsutil/disk"
	"github.com/sirupsen/logrus"
	"github.com/ulikunitz/xz/lzma"
)

// ErrKeyNotFound is returned by Read when the key is absent.
var ErrKeyNotFound = errors.New("keyvalstore: key not found")

// IsNotFound reports whether err stems from a missing key.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrKeyNotFound)
}

type Config struct {
	// Path is the badger data directory.
	Path string
	// MinimumFreeBytes refuses to open the store when the filesystem has
	// less free space. Zero disables the check.
	MinimumFreeBytes uint64
	// Compression enables lzma compression of values.
	Compression bool
	// Logger is optional; a default stderr logger is used when nil.
	Logger *logrus.Logger
}

type Store struct {
	config       Config
	db           *badger.DB
	log          *logrus.Logger
	readCounter  uint64
	writeCounter uint64
}

func Open(config Config) (*Store, error) {
	if config.Logger == nil {
		config.Logger = logrus.New()
	}
	if config.Path == "" {
		return nil, fmt.Errorf("keyvalstore: no data path configured")
	}

	if config.MinimumFreeBytes > 0 {
		usage, err := disk.Usage(config.Path)
		if err != nil {
			config.Logger.WithField("path", config.Path).Warnf("free-space check skipped: %v", err)
		} else if usage.Free < config.MinimumFreeBytes {
			return nil, fmt.Errorf("keyvalstore: %s has %d bytes free, need %d", config.Path, usage.Free, config.MinimumFreeBytes)
		}
	}

	opts := badger.DefaultOptions(config.Path)
	opts.Logger = nil
	opts.ValueLogFileSize = 1024 * 1024 * 100
	opts.SyncWrites = false

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("keyvalstore: opening %s: %w", config.Path, err)
	}

	return &Store{
		config: config,
		db:     db,
		log:    config.Logger,
	}, nil
}

func (s *Store) Write(key []byte, value []byte) error {
	atomic.AddUint64(&s.writeCounter, 1)

	if s.config.Compression {
		compressed, err := compressLzma(value)
		if err != nil {
			return fmt.Errorf("keyvalstore: compressing value for key %s: %w", hex.EncodeToString(key), err)
		}
		value = compressed
	}

	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, value)
	})
	if err != nil {
		return fmt.Errorf("keyvalstore: writing key %s: %w", hex.EncodeToString(key), err)
	}
	return nil
}

func (s *Store) Read(key []byte) ([]byte, error) {
	atomic.AddUint64(&s.readCounter, 1)

	var value []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("keyvalstore: reading key %s: %w", hex.EncodeToString(key), ErrKeyNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("keyvalstore: reading key %s: %w", hex.EncodeToString(key), err)
	}

	if s.config.Compression {
		decompressed, err := decompressLzma(value)
		if err != nil {
			return nil, fmt.Errorf("keyvalstore: decompressing value for key %s: %w", hex.EncodeToString(key), err)
		}
		value = decompressed
	}
	return value, nil
}

func (s *Store) Has(key []byte) (bool, error) {
	atomic.AddUint64(&s.readCounter, 1)

	err := s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(key)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("keyvalstore: checking key %s: %w", hex.EncodeToString(key), err)
	}
	return true, nil
}

// EntryCount iterates the key space without prefetching values.
func (s *Store) EntryCount() (int, error) {
	count := 0
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			count++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("keyvalstore: counting entries: %w", err)
	}
	return count, nil
}

// Counters returns the read and write operation counts since open.
func (s *Store) Counters() (reads, writes uint64) {
	return atomic.LoadUint64(&s.readCounter), atomic.LoadUint64(&s.writeCounter)
}

// RunGC syncs, flattens and garbage-collects the value log.
func (s *Store) RunGC() error {
	if err := s.db.Sync(); err != nil {
		return fmt.Errorf("keyvalstore: syncing db: %w", err)
	}

	if err := s.db.Flatten(runtime.NumCPU()); err != nil {
		return fmt.Errorf("keyvalstore: flattening db: %w", err)
	}
	s.log.Debug("keyvalstore: db flattened")

	if err := s.db.RunValueLogGC(0.1); err != nil && !errors.Is(err, badger.ErrNoRewrite) {
		return fmt.Errorf("keyvalstore: value log gc: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func compressLzma(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := lzma.NewWriter(&buf)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decompressLzma(data []byte) ([]byte, error) {
	r, err := lzma.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(r); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
