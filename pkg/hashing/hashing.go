// Package hashing provides the content-addressing primitives for Quern.
//
// A Hash is a fixed-width 256-bit digest; equal hashes imply byte-identical
// content. Hashers are pure and safe for concurrent use, so chunking
// pipelines may call them from many goroutines without coordination.
package hashing

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/zeebo/blake3"
)

// Size is the digest width in bytes for all supported algorithms.
const Size = 32

// Hash is a fixed-width content digest. It is a comparable value type and
// never mutated after creation.
type Hash [Size]byte

// String returns the full lowercase hex encoding of the hash.
func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// Short returns the first 8 hex characters, used in human-readable output.
func (h Hash) Short() string {
	return hex.EncodeToString(h[:4])
}

// IsZero reports whether the hash is the all-zero value.
func (h Hash) IsZero() bool {
	return h == Hash{}
}

// FromHex parses a full-width hex digest.
func FromHex(s string) (Hash, error) {
	var h Hash
	b, err := hex.DecodeString(s)
	if err != nil {
		return h, fmt.Errorf("hashing: invalid hex digest %q: %w", s, err)
	}
	if len(b) != Size {
		return h, fmt.Errorf("hashing: digest %q has length %d, want %d", s, len(b), Size)
	}
	copy(h[:], b)
	return h, nil
}

// Hasher computes content and interior-node digests. Implementations must be
// deterministic, stateless and safe for concurrent use. Hashing an empty
// slice yields the algorithm's hash of empty input, not an error.
type Hasher interface {
	// HashBlock hashes raw chunk content.
	HashBlock(data []byte) Hash
	// HashNodes combines two child digests into an interior-node digest.
	HashNodes(left, right Hash) Hash
	// Algorithm returns the identifier accepted by New.
	Algorithm() string
}

// nodePrefix domain-separates interior nodes from leaf content so that a
// chunk whose bytes happen to equal two concatenated digests cannot collide
// with an interior node.
const nodePrefix = 0x01

// Blake3Hasher is the default hasher.
type Blake3Hasher struct{}

// NewBlake3 returns the default BLAKE3 hasher.
func NewBlake3() Blake3Hasher { return Blake3Hasher{} }

func (Blake3Hasher) HashBlock(data []byte) Hash {
	return blake3.Sum256(data)
}

func (Blake3Hasher) HashNodes(left, right Hash) Hash {
	var buf [1 + 2*Size]byte
	buf[0] = nodePrefix
	copy(buf[1:], left[:])
	copy(buf[1+Size:], right[:])
	return blake3.Sum256(buf[:])
}

func (Blake3Hasher) Algorithm() string { return "blake3" }

// SHA256Hasher is the alternative stdlib-backed hasher.
type SHA256Hasher struct{}

// NewSHA256 returns a SHA-256 hasher.
func NewSHA256() SHA256Hasher { return SHA256Hasher{} }

func (SHA256Hasher) HashBlock(data []byte) Hash {
	return sha256.Sum256(data)
}

func (SHA256Hasher) HashNodes(left, right Hash) Hash {
	var buf [1 + 2*Size]byte
	buf[0] = nodePrefix
	copy(buf[1:], left[:])
	copy(buf[1+Size:], right[:])
	return sha256.Sum256(buf[:])
}

func (SHA256Hasher) Algorithm() string { return "sha256" }

// New returns the hasher for the given algorithm identifier. An unknown
// identifier is a configuration error.
func New(algorithm string) (Hasher, error) {
	switch algorithm {
	case "blake3":
		return NewBlake3(), nil
	case "sha256":
		return NewSHA256(), nil
	default:
		return nil, fmt.Errorf("hashing: unknown algorithm %q", algorithm)
	}
}
