package engine

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/tanq16/vidgrab/internal/utils"
)

// fetchSingleShot downloads the whole resource with one unranged GET.
func fetchSingleShot(ctx context.Context, client utils.HTTPDoer, url, mediaType string) (*Blob, error) {
	resp, err := doGet(ctx, client, url, "")
	if err != nil {
		return nil, err
	}
	if !isSuccess(resp.StatusCode) {
		discardBody(resp)
		return nil, &ChunkFetchError{Index: -1, Status: resp.StatusCode}
	}
	declared := resp.ContentLength
	data, err := readBody(resp)
	if err != nil {
		return nil, err
	}
	if declared >= 0 && int64(len(data)) != declared {
		return nil, fmt.Errorf("%w: declared %d bytes, received %d", ErrSizeMismatch, declared, len(data))
	}
	log.Debug().Str("op", "engine/single").Msgf("single request finished for %s (%d bytes)", url, len(data))
	return joinPayloads([][]byte{data}, mediaType), nil
}
