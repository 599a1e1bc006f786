package quern

import (
	"time"

	"github.com/sirupsen/logrus"
)

// Config configures an engine instance. Only Paths[0] is used at the
// moment; future versions may use multiple paths for tiering.
type Config struct {
	// Paths contains data directories. Currently only Paths[0] is used.
	// Required for the badger backend, ignored for memory.
	Paths []string
	// Backend selects the chunk store: "memory" or "badger".
	Backend string
	// Hasher selects the content hash algorithm: "blake3" or "sha256".
	Hasher string
	// BlockSize selects the chunking target: "small", "medium" or "large".
	BlockSize string
	// MinimumFreeGB is a free-space threshold for the durable backend.
	MinimumFreeGB uint
	// Compression enables lzma compression of stored chunks.
	Compression bool
	// GarbageCollectionInterval drives the durable backend's background
	// GC loop. Zero disables it.
	GarbageCollectionInterval time.Duration
	// Logger is optional. If nil, a stderr logger is used.
	Logger *logrus.Logger
}

func defaultLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.InfoLevel)
	return log
}
