package engine

import "fmt"

const DefaultChunkSize int64 = 1024 * 1024

type ChunkStatus int

const (
	ChunkPending ChunkStatus = iota
	ChunkInFlight
	ChunkDone
	ChunkFailed
)

func (s ChunkStatus) String() string {
	switch s {
	case ChunkPending:
		return "pending"
	case ChunkInFlight:
		return "in-flight"
	case ChunkDone:
		return "done"
	case ChunkFailed:
		return "failed"
	}
	return fmt.Sprintf("ChunkStatus(%d)", int(s))
}

// Chunk is a fixed byte span of the resource. Start and End are inclusive,
// matching the HTTP Range header.
type Chunk struct {
	Index   int
	Start   int64
	End     int64
	Payload []byte
	Status  ChunkStatus
}

func (c *Chunk) Len() int64 {
	return c.End - c.Start + 1
}

func (c *Chunk) RangeHeader() string {
	return fmt.Sprintf("bytes=%d-%d", c.Start, c.End)
}

// PlanChunks splits [0, total) into consecutive spans of chunkSize bytes.
// Only the last chunk may be shorter.
func PlanChunks(total, chunkSize int64) ([]Chunk, error) {
	if total <= 0 {
		return nil, &InvalidInputError{Field: "total size", Value: total}
	}
	if chunkSize <= 0 {
		return nil, &InvalidInputError{Field: "chunk size", Value: chunkSize}
	}
	count := (total + chunkSize - 1) / chunkSize
	chunks := make([]Chunk, 0, count)
	for i := range count {
		start := i * chunkSize
		end := min(start+chunkSize, total) - 1
		chunks = append(chunks, Chunk{
			Index: int(i),
			Start: start,
			End:   end,
		})
	}
	return chunks, nil
}
