package engine

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"

	"github.com/rs/zerolog/log"
	"github.com/tanq16/vidgrab/internal/utils"
)

var contentRangeRegex = regexp.MustCompile(`^bytes (\d+)-(\d+)/(\d+)$`)

// Capability is the outcome of a single probe request.
type Capability struct {
	SupportsRange bool
	TotalSize     int64
}

// Probe asks for the first byte of url and classifies the answer. A partial
// response with a complete Content-Range means ranges work; a plain 200 with
// a Content-Length gives the size only. Anything else, including a failed
// request, yields an unknown size and no range support.
func Probe(ctx context.Context, client utils.HTTPDoer, url string) Capability {
	resp, err := doGet(ctx, client, url, "bytes=0-0")
	if err != nil {
		log.Warn().Str("op", "engine/probe").Err(fmt.Errorf("%w: %w", ErrProbeFailed, err)).Msgf("probe failed for %s, using single request", url)
		return Capability{}
	}
	defer discardBody(resp)

	switch resp.StatusCode {
	case http.StatusPartialContent:
		if _, _, total, ok := parseContentRange(resp.Header.Get("Content-Range")); ok {
			log.Debug().Str("op", "engine/probe").Msgf("range supported for %s, total %d bytes", url, total)
			return Capability{SupportsRange: true, TotalSize: total}
		}
	case http.StatusOK:
		if size, ok := parseContentLength(resp.Header.Get("Content-Length")); ok {
			log.Debug().Str("op", "engine/probe").Msgf("range not supported for %s, length %d bytes", url, size)
			return Capability{TotalSize: size}
		}
	}
	log.Debug().Str("op", "engine/probe").Msgf("probe inconclusive for %s (status %d)", url, resp.StatusCode)
	return Capability{}
}

// parseContentRange reads "bytes <start>-<end>/<total>". The unknown-total
// form "bytes s-e/*" is rejected.
func parseContentRange(header string) (start, end, total int64, ok bool) {
	m := contentRangeRegex.FindStringSubmatch(header)
	if m == nil {
		return 0, 0, 0, false
	}
	var err error
	if start, err = strconv.ParseInt(m[1], 10, 64); err != nil {
		return 0, 0, 0, false
	}
	if end, err = strconv.ParseInt(m[2], 10, 64); err != nil {
		return 0, 0, 0, false
	}
	if total, err = strconv.ParseInt(m[3], 10, 64); err != nil {
		return 0, 0, 0, false
	}
	if end < start || end >= total {
		return 0, 0, 0, false
	}
	return start, end, total, true
}

func parseContentLength(header string) (int64, bool) {
	if header == "" {
		return 0, false
	}
	n, err := strconv.ParseInt(header, 10, 64)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// doGet issues a GET, optionally restricted by a Range header value.
func doGet(ctx context.Context, client utils.HTTPDoer, url, byteRange string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &TransportError{Op: "create request", Err: err}
	}
	if byteRange != "" {
		req.Header.Set("Range", byteRange)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, &TransportError{Op: "GET " + url, Err: err}
	}
	return resp, nil
}

func isSuccess(status int) bool {
	return status == http.StatusOK || status == http.StatusPartialContent
}

// readBody reads the whole response body. The declared length is not
// trusted for sizing; callers compare it against what they expect first.
func readBody(resp *http.Response) ([]byte, error) {
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Op: "read body", Err: err}
	}
	return data, nil
}

func discardBody(resp *http.Response) {
	io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))
	resp.Body.Close()
}
