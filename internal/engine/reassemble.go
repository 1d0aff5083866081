package engine

import (
	"fmt"
	"sort"
)

const DefaultMediaType = "video/mp4"

// Blob is a finished download ready for a sink.
type Blob struct {
	Data      []byte
	MediaType string
}

func (b *Blob) Size() int64 {
	return int64(len(b.Data))
}

// Reassemble concatenates chunk payloads in ascending index order. The
// order of the input slice and the order in which chunks completed do not
// matter; every chunk must be done and the spans must be gapless.
func Reassemble(chunks []Chunk, mediaType string) (*Blob, error) {
	if mediaType == "" {
		mediaType = DefaultMediaType
	}
	ordered := make([]*Chunk, len(chunks))
	for i := range chunks {
		ordered[i] = &chunks[i]
	}
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].Index < ordered[j].Index
	})

	var total int64
	var next int64
	for i, c := range ordered {
		if c.Index != i {
			return nil, fmt.Errorf("chunk index %d missing", i)
		}
		if c.Status != ChunkDone {
			return nil, fmt.Errorf("chunk %d not complete (%s)", c.Index, c.Status)
		}
		if c.Start != next {
			return nil, fmt.Errorf("chunk %d starts at %d, expected %d", c.Index, c.Start, next)
		}
		if int64(len(c.Payload)) != c.Len() {
			return nil, fmt.Errorf("chunk %d: %w: expected %d bytes, got %d", c.Index, ErrSizeMismatch, c.Len(), len(c.Payload))
		}
		next = c.End + 1
		total += c.Len()
	}

	data := make([]byte, 0, total)
	for _, c := range ordered {
		data = append(data, c.Payload...)
	}
	return &Blob{Data: data, MediaType: mediaType}, nil
}

// joinPayloads concatenates payloads that already arrived in order.
func joinPayloads(parts [][]byte, mediaType string) *Blob {
	if mediaType == "" {
		mediaType = DefaultMediaType
	}
	var total int
	for _, p := range parts {
		total += len(p)
	}
	data := make([]byte, 0, total)
	for _, p := range parts {
		data = append(data, p...)
	}
	return &Blob{Data: data, MediaType: mediaType}
}
