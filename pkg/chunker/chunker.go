// Package chunker splits byte streams into content-addressed chunks.
//
// Chunks are fixed-target-size: splitting is driven by a BlockSize preset
// rather than content-defined boundaries, so the same input always produces
// the same chunk sequence regardless of how it is read.
package chunker

import (
	"bytes"
	"fmt"
	"io"

	boxochunker "github.com/ipfs/boxo/chunker"

	"github.com/quernlabs/quern/pkg/hashing"
	"github.com/quernlabs/quern/pkg/workerpool"
)

// BlockSize selects the target chunk size.
type BlockSize int

const (
	// Small targets 1 KiB chunks, for fine-grained diffing of short notes.
	Small BlockSize = iota
	// Medium targets 4 KiB chunks, the default.
	Medium
	// Large targets 16 KiB chunks, for bulk content.
	Large
)

// TargetBytes returns the target chunk size in bytes.
func (b BlockSize) TargetBytes() int {
	switch b {
	case Small:
		return 1024
	case Large:
		return 16 * 1024
	default:
		return 4 * 1024
	}
}

func (b BlockSize) String() string {
	switch b {
	case Small:
		return "small"
	case Large:
		return "large"
	default:
		return "medium"
	}
}

// ParseBlockSize maps a configuration identifier to a preset.
func ParseBlockSize(s string) (BlockSize, error) {
	switch s {
	case "small":
		return Small, nil
	case "", "medium":
		return Medium, nil
	case "large":
		return Large, nil
	default:
		return Medium, fmt.Errorf("chunker: unknown block size %q", s)
	}
}

// Chunk is an immutable unit of content-addressed data. Index is the chunk's
// 0-based position in its originating sequence; Offset is its byte offset
// from the start of the stream.
type Chunk struct {
	Hash   hashing.Hash
	Data   []byte
	Length int
	Index  int
	Offset int
	IsLast bool
}

// ChunkBytes splits data into hashed chunks at the given target size.
func ChunkBytes(data []byte, size BlockSize, hasher hashing.Hasher) ([]Chunk, error) {
	return ChunkReader(bytes.NewReader(data), size, hasher)
}

// ChunkReader splits the reader's content into hashed chunks. An empty input
// yields a single empty chunk so that empty files still have a defined tree.
// The final chunk has IsLast set even when shorter than the target size.
func ChunkReader(reader io.Reader, size BlockSize, hasher hashing.Hasher) ([]Chunk, error) {
	splitter := boxochunker.NewSizeSplitter(reader, int64(size.TargetBytes()))

	var chunks []Chunk
	offset := 0
	for index := 0; ; index++ {
		data, err := splitter.NextBytes()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("chunker: reading chunk %d: %w", index, err)
		}

		chunks = append(chunks, Chunk{
			Hash:   hasher.HashBlock(data),
			Data:   data,
			Length: len(data),
			Index:  index,
			Offset: offset,
		})
		offset += len(data)
	}

	if len(chunks) == 0 {
		chunks = append(chunks, Chunk{
			Hash:   hasher.HashBlock(nil),
			Data:   nil,
			Length: 0,
			Index:  0,
			Offset: 0,
		})
	}

	chunks[len(chunks)-1].IsLast = true
	return chunks, nil
}

// ChunkReaderParallel splits the reader's content and hashes the chunks on
// the worker pool. Output order is index order, identical to ChunkReader.
func ChunkReaderParallel(reader io.Reader, size BlockSize, hasher hashing.Hasher, pool *workerpool.Pool) ([]Chunk, error) {
	splitter := boxochunker.NewSizeSplitter(reader, int64(size.TargetBytes()))

	type raw struct {
		data   []byte
		index  int
		offset int
	}

	var pending []raw
	offset := 0
	for index := 0; ; index++ {
		data, err := splitter.NextBytes()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("chunker: reading chunk %d: %w", index, err)
		}
		pending = append(pending, raw{data: data, index: index, offset: offset})
		offset += len(data)
	}

	if len(pending) == 0 {
		return ChunkReader(bytes.NewReader(nil), size, hasher)
	}

	room := pool.NewRoom(len(pending))
	for _, p := range pending {
		p := p
		room.Submit(func() interface{} {
			return Chunk{
				Hash:   hasher.HashBlock(p.data),
				Data:   p.data,
				Length: len(p.data),
				Index:  p.index,
				Offset: p.offset,
			}
		})
	}

	chunks := make([]Chunk, len(pending))
	for _, result := range room.Collect() {
		c := result.(Chunk)
		chunks[c.Index] = c
	}

	chunks[len(chunks)-1].IsLast = true
	return chunks, nil
}
