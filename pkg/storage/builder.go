package storage

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/quernlabs/quern/pkg/chunker"
	"github.com/quernlabs/quern/pkg/hashing"
)

// BackendType identifies a storage backend implementation.
type BackendType string

const (
	BackendMemory BackendType = "memory"
	BackendBadger BackendType = "badger"
)

// ParseBackendType maps a configuration identifier to a backend.
func ParseBackendType(s string) (BackendType, error) {
	switch s {
	case "memory":
		return BackendMemory, nil
	case "badger":
		return BackendBadger, nil
	default:
		return "", fmt.Errorf("storage: unknown backend %q", s)
	}
}

// Builder assembles a configured store. Backend and hasher are mandatory;
// missing options surface at Build time, never at first use.
type Builder struct {
	backend   BackendType
	backendOk bool

	hasher hashing.Hasher

	blockSize   chunker.BlockSize
	path        string
	minFree     uint64
	compression bool
	logger      *logrus.Logger
}

// NewBuilder returns a builder with a medium block size and nothing else
// selected.
func NewBuilder() *Builder {
	return &Builder{blockSize: chunker.Medium}
}

// WithMemoryBackend selects the in-memory backend.
func (b *Builder) WithMemoryBackend() *Builder {
	b.backend = BackendMemory
	b.backendOk = true
	return b
}

// WithBadgerBackend selects the durable backend rooted at path.
func (b *Builder) WithBadgerBackend(path string) *Builder {
	b.backend = BackendBadger
	b.backendOk = true
	b.path = path
	return b
}

// WithHasher selects the content hasher.
func (b *Builder) WithHasher(h hashing.Hasher) *Builder {
	b.hasher = h
	return b
}

// WithBlockSize sets the chunking target used by callers of this store.
func (b *Builder) WithBlockSize(size chunker.BlockSize) *Builder {
	b.blockSize = size
	return b
}

// WithMinimumFreeBytes sets the free-space threshold for the durable
// backend.
func (b *Builder) WithMinimumFreeBytes(n uint64) *Builder {
	b.minFree = n
	return b
}

// WithCompression toggles lzma compression of chunk payloads in the durable
// backend.
func (b *Builder) WithCompression(enable bool) *Builder {
	b.compression = enable
	return b
}

// WithLogger sets the logger passed to backends.
func (b *Builder) WithLogger(log *logrus.Logger) *Builder {
	b.logger = log
	return b
}

// BlockSize returns the configured chunking target.
func (b *Builder) BlockSize() chunker.BlockSize { return b.blockSize }

// Build validates the configuration and constructs the store.
func (b *Builder) Build() (ContentAddressedStorage, error) {
	if !b.backendOk {
		return nil, fmt.Errorf("storage: no backend selected")
	}
	if b.hasher == nil {
		return nil, fmt.Errorf("storage: no hasher selected")
	}

	switch b.backend {
	case BackendMemory:
		return NewMemoryStorage(b.hasher), nil
	case BackendBadger:
		if b.path == "" {
			return nil, fmt.Errorf("storage: badger backend requires a data path")
		}
		return NewBadgerStorage(BadgerConfig{
			Path:             b.path,
			MinimumFreeBytes: b.minFree,
			Compression:      b.compression,
			Logger:           b.logger,
		}, b.hasher)
	default:
		return nil, fmt.Errorf("storage: unknown backend %q", b.backend)
	}
}
