package engine

import (
	"errors"
	"fmt"
)

var (
	// ErrProbeFailed marks a capability probe that could not reach the
	// origin. It never reaches the caller; the job falls back to a single
	// unranged request instead.
	ErrProbeFailed = errors.New("capability probe failed")

	// ErrSizeMismatch is wrapped when a payload length disagrees with the
	// span that was requested or the length the server declared.
	ErrSizeMismatch = errors.New("size mismatch")

	// ErrPersistFailed is wrapped when neither the sink nor the fallback
	// sink accepted the finished object.
	ErrPersistFailed = errors.New("persist failed")
)

// ChunkFetchError is a fetch whose status was neither 200 nor 206.
// Index is -1 for requests that do not belong to a planned chunk.
type ChunkFetchError struct {
	Index  int
	Status int
}

func (e *ChunkFetchError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("fetch failed: HTTP %d", e.Status)
	}
	return fmt.Sprintf("chunk %d fetch failed: HTTP %d", e.Index, e.Status)
}

// TransportError is a request the network layer rejected outright
// (DNS, refused or reset connection, cancelled context).
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

type InvalidInputError struct {
	Field string
	Value int64
}

func (e *InvalidInputError) Error() string {
	return fmt.Sprintf("invalid %s: %d", e.Field, e.Value)
}
