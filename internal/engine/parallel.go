package engine

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"
	"github.com/tanq16/vidgrab/internal/utils"
)

// workerCount clamps the pool so no worker starts without a chunk to claim.
func workerCount(poolSize, chunks int) int {
	return max(1, min(poolSize, chunks))
}

// fetchParallel fills every chunk's payload using a bounded pool. Workers
// claim indices from a shared cursor; the first failure trips the abort
// token and remaining workers stop at their next claim. onChunk receives
// each completed chunk's length.
func fetchParallel(ctx context.Context, client utils.HTTPDoer, url string, chunks []Chunk, poolSize int, onChunk func(n int64)) (int, error) {
	if len(chunks) == 0 {
		return 0, nil
	}
	numWorkers := workerCount(poolSize, len(chunks))
	log.Debug().Str("op", "engine/parallel").Msgf("fetching %d chunks with %d workers", len(chunks), numWorkers)

	var cursor atomic.Int64
	token := &abortToken{}
	var wg sync.WaitGroup
	for w := range numWorkers {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			runWorker(ctx, client, url, chunks, &cursor, token, onChunk, workerID)
		}(w)
	}
	wg.Wait()

	if token.aborted() {
		return numWorkers, token.cause()
	}
	return numWorkers, nil
}

func runWorker(ctx context.Context, client utils.HTTPDoer, url string, chunks []Chunk, cursor *atomic.Int64, token *abortToken, onChunk func(int64), workerID int) {
	for {
		// Claim first, then check the token: a claim that lost the race
		// with a failure is dropped without fetching.
		idx := int(cursor.Add(1) - 1)
		if idx >= len(chunks) || token.aborted() {
			return
		}
		if err := ctx.Err(); err != nil {
			token.trip(&TransportError{Op: fmt.Sprintf("claim chunk %d", idx), Err: err})
			return
		}
		chunk := &chunks[idx]
		chunk.Status = ChunkInFlight
		payload, err := fetchChunk(ctx, client, url, chunk)
		if err != nil {
			chunk.Status = ChunkFailed
			if token.trip(err) {
				log.Debug().Str("op", "engine/parallel").Err(err).Msgf("worker %d aborting job", workerID)
			}
			return
		}
		if token.aborted() {
			// Finished after another worker failed; the result is unused.
			chunk.Status = ChunkPending
			return
		}
		chunk.Payload = payload
		chunk.Status = ChunkDone
		if onChunk != nil {
			onChunk(int64(len(payload)))
		}
	}
}

func fetchChunk(ctx context.Context, client utils.HTTPDoer, url string, chunk *Chunk) ([]byte, error) {
	resp, err := doGet(ctx, client, url, chunk.RangeHeader())
	if err != nil {
		return nil, err
	}
	if !isSuccess(resp.StatusCode) {
		discardBody(resp)
		return nil, &ChunkFetchError{Index: chunk.Index, Status: resp.StatusCode}
	}
	if resp.StatusCode == http.StatusPartialContent {
		if start, _, _, ok := parseContentRange(resp.Header.Get("Content-Range")); ok && start != chunk.Start {
			discardBody(resp)
			return nil, fmt.Errorf("chunk %d: server returned range starting at %d, requested %d", chunk.Index, start, chunk.Start)
		}
	}
	if resp.ContentLength >= 0 && resp.ContentLength != chunk.Len() {
		discardBody(resp)
		return nil, fmt.Errorf("chunk %d: %w: expected %d bytes, server declared %d", chunk.Index, ErrSizeMismatch, chunk.Len(), resp.ContentLength)
	}
	payload, err := readBody(resp)
	if err != nil {
		return nil, fmt.Errorf("chunk %d: %w", chunk.Index, err)
	}
	if int64(len(payload)) != chunk.Len() {
		return nil, fmt.Errorf("chunk %d: %w: expected %d bytes, got %d", chunk.Index, ErrSizeMismatch, chunk.Len(), len(payload))
	}
	return payload, nil
}
