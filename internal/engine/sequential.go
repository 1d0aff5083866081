package engine

import (
	"context"
	"fmt"
	"net/http"

	"github.com/rs/zerolog/log"
	"github.com/tanq16/vidgrab/internal/utils"
)

// fetchSequential follows one cursor through the resource with open-ended
// range requests, letting the server decide how much each response carries.
// Parts are returned in arrival order, which is also byte order.
func fetchSequential(ctx context.Context, client utils.HTTPDoer, url string, onAdvance func(offset, total int64)) ([][]byte, error) {
	var parts [][]byte
	var offset, total int64
	for {
		resp, err := doGet(ctx, client, url, fmt.Sprintf("bytes=%d-", offset))
		if err != nil {
			return nil, err
		}
		if !isSuccess(resp.StatusCode) {
			discardBody(resp)
			return nil, &ChunkFetchError{Index: len(parts), Status: resp.StatusCode}
		}

		if resp.StatusCode == http.StatusOK {
			// Full body: either ranging was never honoured or the server
			// stopped honouring it. Either way this body is the resource.
			body, err := readBody(resp)
			if err != nil {
				return nil, err
			}
			if offset > 0 {
				log.Warn().Str("op", "engine/sequential").Msgf("server stopped ranging at offset %d for %s, keeping full body", offset, url)
			}
			parts = [][]byte{body}
			total = int64(len(body))
			offset = total
			if onAdvance != nil {
				onAdvance(offset, total)
			}
			return parts, nil
		}

		start, end, t, ok := parseContentRange(resp.Header.Get("Content-Range"))
		if !ok {
			discardBody(resp)
			return nil, fmt.Errorf("part %d: missing or invalid Content-Range %q", len(parts), resp.Header.Get("Content-Range"))
		}
		if start != offset {
			discardBody(resp)
			return nil, fmt.Errorf("part %d: server returned range starting at %d, requested %d", len(parts), start, offset)
		}
		want := end - start + 1
		if resp.ContentLength >= 0 && resp.ContentLength != want {
			discardBody(resp)
			return nil, fmt.Errorf("part %d: %w: expected %d bytes, server declared %d", len(parts), ErrSizeMismatch, want, resp.ContentLength)
		}
		body, err := readBody(resp)
		if err != nil {
			return nil, err
		}
		if int64(len(body)) != want {
			return nil, fmt.Errorf("part %d: %w: expected %d bytes, got %d", len(parts), ErrSizeMismatch, want, len(body))
		}
		parts = append(parts, body)
		offset = end + 1
		total = t
		log.Debug().Str("op", "engine/sequential").Msgf("part %d: bytes %d-%d of %d", len(parts)-1, start, end, total)
		if onAdvance != nil {
			onAdvance(offset, total)
		}
		if offset >= total {
			return parts, nil
		}
	}
}
