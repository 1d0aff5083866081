package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
)

func testData(n int) []byte {
	data := make([]byte, n)
	for i := range data {
		data[i] = byte((i*7 + i/251) % 256)
	}
	return data
}

// rangeServer serves data with optional byte-range support. It records the
// Range header of every request.
type rangeServer struct {
	data []byte

	noRange  bool          // ignore Range headers, always 200
	maxSpan  int64         // cap on bytes per 206 response (0 = no cap)
	failAt   map[int64]int // range start -> status, probe excluded
	ignoreAt int64         // answer open-ended requests from this offset with a full 200 (0 = never)
	onServe  func(r *http.Request)

	mu     sync.Mutex
	ranges []string
}

func newRangeServer(t *testing.T, rs *rangeServer) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(rs)
	t.Cleanup(srv.Close)
	return srv
}

func (rs *rangeServer) requests() []string {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return append([]string(nil), rs.ranges...)
}

func (rs *rangeServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rangeHeader := r.Header.Get("Range")
	rs.mu.Lock()
	rs.ranges = append(rs.ranges, rangeHeader)
	rs.mu.Unlock()
	if rs.onServe != nil {
		rs.onServe(r)
	}

	total := int64(len(rs.data))
	if rs.noRange || rangeHeader == "" {
		w.Header().Set("Content-Length", strconv.FormatInt(total, 10))
		w.WriteHeader(http.StatusOK)
		w.Write(rs.data)
		return
	}

	bounds := strings.TrimPrefix(rangeHeader, "bytes=")
	parts := strings.SplitN(bounds, "-", 2)
	start, _ := strconv.ParseInt(parts[0], 10, 64)
	end := total - 1
	if parts[1] != "" {
		end, _ = strconv.ParseInt(parts[1], 10, 64)
	}
	if status, ok := rs.failAt[start]; ok && rangeHeader != "bytes=0-0" {
		w.WriteHeader(status)
		return
	}
	if rs.ignoreAt > 0 && start >= rs.ignoreAt && parts[1] == "" {
		w.Header().Set("Content-Length", strconv.FormatInt(total, 10))
		w.WriteHeader(http.StatusOK)
		w.Write(rs.data)
		return
	}
	end = min(end, total-1)
	if rs.maxSpan > 0 && end-start+1 > rs.maxSpan {
		end = start + rs.maxSpan - 1
	}
	w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, end, total))
	w.Header().Set("Content-Length", strconv.FormatInt(end-start+1, 10))
	w.WriteHeader(http.StatusPartialContent)
	w.Write(rs.data[start : end+1])
}

type memSink struct {
	mu    sync.Mutex
	err   error
	calls int
	blob  *Blob
	name  string
}

func (s *memSink) Persist(_ context.Context, blob *Blob, filename string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return s.err
	}
	s.blob = blob
	s.name = filename
	return nil
}

var errSinkDown = errors.New("sink unavailable")

// recorder collects callbacks and flags any overlap between them.
type recorder struct {
	mu       sync.Mutex
	active   int
	overlap  bool
	progress []int
	complete []Result
	errs     []string
}

func (r *recorder) enter() {
	r.mu.Lock()
	r.active++
	if r.active > 1 {
		r.overlap = true
	}
	r.mu.Unlock()
}

func (r *recorder) leave() {
	r.mu.Lock()
	r.active--
	r.mu.Unlock()
}

func (r *recorder) callbacks() Callbacks {
	return Callbacks{
		OnProgress: func(p int) {
			r.enter()
			defer r.leave()
			r.mu.Lock()
			r.progress = append(r.progress, p)
			r.mu.Unlock()
		},
		OnComplete: func(res Result) {
			r.enter()
			defer r.leave()
			r.mu.Lock()
			r.complete = append(r.complete, res)
			r.mu.Unlock()
		},
		OnError: func(msg string) {
			r.enter()
			defer r.leave()
			r.mu.Lock()
			r.errs = append(r.errs, msg)
			r.mu.Unlock()
		},
	}
}

// doerFunc answers requests without a network, for responses a real server
// would not produce.
type doerFunc func(r *http.Request) (*http.Response, error)

func (f doerFunc) Do(r *http.Request) (*http.Response, error) {
	return f(r)
}

func fakeResponse(status int, contentRange string, declared int64, body []byte) *http.Response {
	header := http.Header{}
	if contentRange != "" {
		header.Set("Content-Range", contentRange)
	}
	return &http.Response{
		StatusCode:    status,
		Header:        header,
		ContentLength: declared,
		Body:          io.NopCloser(bytes.NewReader(body)),
	}
}
