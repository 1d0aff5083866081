package engine

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tanq16/vidgrab/internal/utils"
)

func fixedNow() time.Time {
	return time.Date(2025, time.January, 2, 3, 4, 5, 0, time.Local)
}

func assertMonotonicTo100(t *testing.T, progress []int) {
	t.Helper()
	require.NotEmpty(t, progress)
	for i := 1; i < len(progress); i++ {
		require.GreaterOrEqual(t, progress[i], progress[i-1], "progress regressed: %v", progress)
	}
	assert.Equal(t, 100, progress[len(progress)-1])
}

func TestDownloadParallel(t *testing.T) {
	data := testData(10*1024 + 5)
	rs := &rangeServer{data: data}
	srv := newRangeServer(t, rs)
	sink := &memSink{}
	rec := &recorder{}

	e := New(Options{ChunkSize: 1024, PoolSize: 4, Sink: sink, Now: fixedNow})
	job := e.StartDownload(context.Background(), srv.URL, rec.callbacks())
	res, err := job.Wait()
	require.NoError(t, err)

	assert.Equal(t, Parallel, res.Strategy)
	assert.Equal(t, 4, res.Workers)
	assert.Equal(t, int64(len(data)), res.Bytes)
	assert.Equal(t, "video_20250102_030405.mp4", res.Filename)
	assert.Equal(t, job.ID, res.JobID)
	assert.Equal(t, StateDone, job.State())
	assert.Equal(t, Parallel, job.Strategy())
	assert.Equal(t, int64(len(data)), job.TotalSize())

	require.NotNil(t, sink.blob)
	assert.Equal(t, data, sink.blob.Data)
	assert.Equal(t, "video/mp4", sink.blob.MediaType)
	assert.Equal(t, res.Filename, sink.name)

	assertMonotonicTo100(t, rec.progress)
	assert.GreaterOrEqual(t, len(rec.progress), 11)
	assert.Len(t, rec.complete, 1)
	assert.Empty(t, rec.errs)
	assert.False(t, rec.overlap, "callbacks overlapped")

	reqs := rs.requests()
	require.Len(t, reqs, 12)
	assert.Equal(t, "bytes=0-0", reqs[0])
	seen := map[string]bool{}
	for _, r := range reqs[1:] {
		assert.False(t, seen[r], "chunk %s fetched twice", r)
		seen[r] = true
	}
}

func TestDownloadParallelClampsWorkers(t *testing.T) {
	data := testData(5 * 1024)
	rs := &rangeServer{data: data}
	srv := newRangeServer(t, rs)
	sink := &memSink{}

	e := New(Options{ChunkSize: 1024, PoolSize: 16, Sink: sink})
	res, err := e.Download(context.Background(), srv.URL, Callbacks{})
	require.NoError(t, err)
	assert.Equal(t, 5, res.Workers)
	assert.Len(t, rs.requests(), 6)
	assert.Equal(t, data, sink.blob.Data)

	assert.Equal(t, 5, workerCount(16, 5))
	assert.Equal(t, 16, workerCount(16, 400))
	assert.Equal(t, 1, workerCount(0, 3))
}

func TestDownloadParallelFailFast(t *testing.T) {
	data := testData(64 * 1024)
	failed := make(chan struct{})
	var once sync.Once
	rs := &rangeServer{
		data:   data,
		failAt: map[int64]int{2 * 1024: http.StatusInternalServerError},
		onServe: func(r *http.Request) {
			switch r.Header.Get("Range") {
			case "bytes=0-0":
			case "bytes=2048-3071":
				once.Do(func() { close(failed) })
			default:
				// healthy chunks answer only after the failure has landed
				<-failed
				time.Sleep(50 * time.Millisecond)
			}
		},
	}
	srv := newRangeServer(t, rs)
	sink := &memSink{}
	rec := &recorder{}

	e := New(Options{ChunkSize: 1024, PoolSize: 4, Sink: sink})
	job := e.StartDownload(context.Background(), srv.URL, rec.callbacks())
	res, err := job.Wait()
	require.Error(t, err)
	assert.Nil(t, res)

	var fetchErr *ChunkFetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, 2, fetchErr.Index)
	assert.Equal(t, http.StatusInternalServerError, fetchErr.Status)

	assert.Len(t, rec.errs, 1)
	assert.Contains(t, rec.errs[0], "HTTP 500")
	assert.Empty(t, rec.complete)
	assert.Equal(t, 0, sink.calls)
	assert.Equal(t, StateFailed, job.State())

	// only the chunks claimed before the failure were ever requested
	ranges := rs.requests()[1:]
	assert.LessOrEqual(t, len(ranges), 4)
	allowed := []string{"bytes=0-1023", "bytes=1024-2047", "bytes=2048-3071", "bytes=3072-4095"}
	for _, r := range ranges {
		assert.Contains(t, allowed, r)
	}
}

func TestDownloadParallelConcurrentFailuresReportOnce(t *testing.T) {
	data := testData(8 * 1024)
	var arrived sync.WaitGroup
	arrived.Add(2)
	rs := &rangeServer{
		data: data,
		failAt: map[int64]int{
			1024: http.StatusBadGateway,
			2048: http.StatusServiceUnavailable,
		},
		onServe: func(r *http.Request) {
			switch r.Header.Get("Range") {
			case "bytes=1024-2047", "bytes=2048-3071":
				// both failures are answered together
				arrived.Done()
				arrived.Wait()
			}
		},
	}
	srv := newRangeServer(t, rs)
	sink := &memSink{}
	rec := &recorder{}

	e := New(Options{ChunkSize: 1024, PoolSize: 4, Sink: sink})
	_, err := e.Download(context.Background(), srv.URL, rec.callbacks())
	require.Error(t, err)

	var fetchErr *ChunkFetchError
	require.ErrorAs(t, err, &fetchErr)
	switch fetchErr.Index {
	case 1:
		assert.Equal(t, http.StatusBadGateway, fetchErr.Status)
	case 2:
		assert.Equal(t, http.StatusServiceUnavailable, fetchErr.Status)
	default:
		t.Fatalf("unexpected failing chunk %d", fetchErr.Index)
	}
	require.Len(t, rec.errs, 1)
	assert.Equal(t, err.Error(), rec.errs[0])
	assert.Empty(t, rec.complete)
	assert.False(t, rec.overlap)
	assert.Equal(t, 0, sink.calls)
}

func TestFetchParallelStopsClaimingAfterFailure(t *testing.T) {
	data := testData(10 * 100)
	rs := &rangeServer{data: data, failAt: map[int64]int{300: http.StatusForbidden}}
	srv := newRangeServer(t, rs)

	chunks, err := PlanChunks(int64(len(data)), 100)
	require.NoError(t, err)
	workers, err := fetchParallel(context.Background(), utils.NewClient(utils.HTTPClientConfig{}), srv.URL, chunks, 1, nil)
	require.Error(t, err)
	assert.Equal(t, 1, workers)

	assert.Equal(t, []string{"bytes=0-99", "bytes=100-199", "bytes=200-299", "bytes=300-399"}, rs.requests())
	assert.Equal(t, ChunkDone, chunks[2].Status)
	assert.Equal(t, ChunkFailed, chunks[3].Status)
	for _, c := range chunks[4:] {
		assert.Equal(t, ChunkPending, c.Status)
		assert.Nil(t, c.Payload)
	}
}

func TestFetchParallelRejectsShortChunk(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Range", "bytes 0-49/100")
		w.WriteHeader(http.StatusPartialContent)
		w.Write(make([]byte, 50))
	}))
	defer srv.Close()

	chunks, err := PlanChunks(100, 100)
	require.NoError(t, err)
	_, err = fetchParallel(context.Background(), utils.NewClient(utils.HTTPClientConfig{}), srv.URL, chunks, 2, nil)
	require.ErrorIs(t, err, ErrSizeMismatch)
}

func TestDownloadSequential(t *testing.T) {
	data := testData(10_000)
	rs := &rangeServer{data: data, maxSpan: 3000}
	srv := newRangeServer(t, rs)
	sink := &memSink{}
	rec := &recorder{}

	e := New(Options{Mode: ModeSequential, Sink: sink})
	res, err := e.Download(context.Background(), srv.URL, rec.callbacks())
	require.NoError(t, err)
	assert.Equal(t, Sequential, res.Strategy)
	assert.Equal(t, 1, res.Workers)
	assert.Equal(t, data, sink.blob.Data)

	assert.Equal(t, []string{"bytes=0-0", "bytes=0-", "bytes=3000-", "bytes=6000-", "bytes=9000-"}, rs.requests())
	assert.Equal(t, []int{30, 60, 90, 100}, rec.progress)
	assert.False(t, rec.overlap)
}

func TestDownloadPoolOfOneIsSequential(t *testing.T) {
	data := testData(4000)
	rs := &rangeServer{data: data}
	srv := newRangeServer(t, rs)
	sink := &memSink{}

	e := New(Options{PoolSize: 1, Sink: sink})
	res, err := e.Download(context.Background(), srv.URL, Callbacks{})
	require.NoError(t, err)
	assert.Equal(t, Sequential, res.Strategy)
	assert.Equal(t, []string{"bytes=0-0", "bytes=0-"}, rs.requests())
}

func TestDownloadExplicitParallelWithOneWorker(t *testing.T) {
	data := testData(3000)
	rs := &rangeServer{data: data}
	srv := newRangeServer(t, rs)
	sink := &memSink{}

	e := New(Options{PoolSize: 1, Mode: ModeParallel, ChunkSize: 1000, Sink: sink})
	res, err := e.Download(context.Background(), srv.URL, Callbacks{})
	require.NoError(t, err)
	assert.Equal(t, Parallel, res.Strategy)
	assert.Equal(t, 1, res.Workers)
	assert.Equal(t, []string{"bytes=0-0", "bytes=0-999", "bytes=1000-1999", "bytes=2000-2999"}, rs.requests())
	assert.Equal(t, data, sink.blob.Data)
}

func TestSelectStrategy(t *testing.T) {
	ranged := Capability{SupportsRange: true, TotalSize: 100}
	tests := []struct {
		name string
		cap  Capability
		mode string
		pool int
		want Strategy
	}{
		{"no range support", Capability{TotalSize: 100}, ModeParallel, 16, SingleShot},
		{"unknown size", Capability{SupportsRange: true}, ModeAuto, 16, SingleShot},
		{"auto", ranged, ModeAuto, 16, Parallel},
		{"auto with one worker", ranged, ModeAuto, 1, Sequential},
		{"sequential", ranged, ModeSequential, 16, Sequential},
		{"parallel", ranged, ModeParallel, 16, Parallel},
		{"parallel with one worker", ranged, ModeParallel, 1, Parallel},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, selectStrategy(tt.cap, tt.mode, tt.pool))
		})
	}
}

func TestFetchSequentialFullBodyAtZero(t *testing.T) {
	data := testData(2048)
	rs := &rangeServer{data: data, noRange: true}
	srv := newRangeServer(t, rs)

	var advances [][2]int64
	parts, err := fetchSequential(context.Background(), utils.NewClient(utils.HTTPClientConfig{}), srv.URL, func(offset, total int64) {
		advances = append(advances, [2]int64{offset, total})
	})
	require.NoError(t, err)
	require.Len(t, parts, 1)
	assert.Equal(t, data, parts[0])
	assert.Equal(t, [][2]int64{{2048, 2048}}, advances)
	assert.Len(t, rs.requests(), 1)
}

func TestFetchSequentialServerStopsRanging(t *testing.T) {
	data := testData(9000)
	rs := &rangeServer{data: data, maxSpan: 3000, ignoreAt: 3000}
	srv := newRangeServer(t, rs)

	parts, err := fetchSequential(context.Background(), utils.NewClient(utils.HTTPClientConfig{}), srv.URL, nil)
	require.NoError(t, err)
	assert.Equal(t, data, joinPayloads(parts, "").Data)
	assert.Equal(t, []string{"bytes=0-", "bytes=3000-"}, rs.requests())
}

func TestFetchSequentialMissingContentRange(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPartialContent)
		w.Write([]byte("abc"))
	}))
	defer srv.Close()

	_, err := fetchSequential(context.Background(), utils.NewClient(utils.HTTPClientConfig{}), srv.URL, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Content-Range")
}

func TestFetchSequentialErrorStatus(t *testing.T) {
	rs := &rangeServer{data: testData(6000), maxSpan: 2000, failAt: map[int64]int{4000: http.StatusGone}}
	srv := newRangeServer(t, rs)

	_, err := fetchSequential(context.Background(), utils.NewClient(utils.HTTPClientConfig{}), srv.URL, nil)
	var fetchErr *ChunkFetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, 2, fetchErr.Index)
	assert.Equal(t, http.StatusGone, fetchErr.Status)
}

func TestDownloadSingleShotFallback(t *testing.T) {
	data := testData(7777)
	rs := &rangeServer{data: data, noRange: true}
	srv := newRangeServer(t, rs)
	sink := &memSink{}
	rec := &recorder{}

	e := New(Options{Sink: sink})
	res, err := e.Download(context.Background(), srv.URL, rec.callbacks())
	require.NoError(t, err)
	assert.Equal(t, SingleShot, res.Strategy)
	assert.Equal(t, int64(7777), sink.blob.Size())
	assert.Equal(t, data, sink.blob.Data)

	// probe, then exactly one unranged GET
	assert.Equal(t, []string{"bytes=0-0", ""}, rs.requests())
	assert.Equal(t, []int{100}, rec.progress)
}

func TestDownloadTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()
	rec := &recorder{}

	e := New(Options{Sink: &memSink{}})
	_, err := e.Download(context.Background(), url, rec.callbacks())
	var transportErr *TransportError
	require.ErrorAs(t, err, &transportErr)
	assert.Len(t, rec.errs, 1)
	assert.Empty(t, rec.progress)
}

func TestDownloadFallbackSink(t *testing.T) {
	rs := &rangeServer{data: testData(3000)}
	srv := newRangeServer(t, rs)
	primary := &memSink{err: errSinkDown}
	fallback := &memSink{}

	e := New(Options{ChunkSize: 1000, Sink: primary, Fallback: fallback})
	res, err := e.Download(context.Background(), srv.URL, Callbacks{})
	require.NoError(t, err)
	assert.Equal(t, 1, primary.calls)
	assert.Equal(t, 1, fallback.calls)
	assert.Equal(t, res.Filename, fallback.name)
	assert.Equal(t, rs.data, fallback.blob.Data)
}

func TestDownloadWithoutPrimarySinkUsesFallback(t *testing.T) {
	rs := &rangeServer{data: testData(3000)}
	srv := newRangeServer(t, rs)
	fallback := &memSink{}

	e := New(Options{Fallback: fallback})
	_, err := e.Download(context.Background(), srv.URL, Callbacks{})
	require.NoError(t, err)
	assert.Equal(t, 1, fallback.calls)
}

func TestDownloadPersistFailure(t *testing.T) {
	rs := &rangeServer{data: testData(3000)}
	srv := newRangeServer(t, rs)
	primary := &memSink{err: errSinkDown}
	fallback := &memSink{err: errors.New("disk full")}
	rec := &recorder{}

	e := New(Options{Sink: primary, Fallback: fallback})
	_, err := e.Download(context.Background(), srv.URL, rec.callbacks())
	require.ErrorIs(t, err, ErrPersistFailed)
	assert.Equal(t, 1, primary.calls)
	assert.Equal(t, 1, fallback.calls)
	assert.Len(t, rec.errs, 1)
	assert.Empty(t, rec.complete)

	_, err = New(Options{}).Download(context.Background(), srv.URL, Callbacks{})
	require.ErrorIs(t, err, ErrPersistFailed)
}

func TestStartDownloadReturnsImmediately(t *testing.T) {
	release := make(chan struct{})
	rs := &rangeServer{
		data: testData(1000),
		onServe: func(r *http.Request) {
			<-release
		},
	}
	srv := newRangeServer(t, rs)

	e := New(Options{Sink: &memSink{}})
	job := e.StartDownload(context.Background(), srv.URL, Callbacks{})
	select {
	case <-job.Done():
		t.Fatal("job finished before the server answered")
	default:
	}
	close(release)
	_, err := job.Wait()
	require.NoError(t, err)
}

func TestJobOptionsOverrideEngineDefaults(t *testing.T) {
	rs := &rangeServer{data: testData(2000)}
	srv := newRangeServer(t, rs)
	base := &memSink{}
	override := &memSink{}

	e := New(Options{Sink: base, Now: fixedNow})
	res, err := e.Download(context.Background(), srv.URL, Callbacks{},
		WithSink(override), WithPrefix("clip"), WithExt("webm"), WithMode(ModeSequential))
	require.NoError(t, err)
	assert.Equal(t, "clip_20250102_030405.webm", res.Filename)
	assert.Equal(t, Sequential, res.Strategy)
	assert.Equal(t, 0, base.calls)
	assert.Equal(t, 1, override.calls)
}

func TestInitReturnsSingleton(t *testing.T) {
	first := Init(Options{PoolSize: 3})
	second := Init(Options{PoolSize: 7})
	assert.Same(t, first, second)
	assert.Same(t, first, Default())
	assert.Equal(t, 3, second.Options().PoolSize)
}

func TestValidMode(t *testing.T) {
	for _, m := range []string{"", ModeAuto, ModeSequential, ModeParallel} {
		assert.True(t, ValidMode(m), m)
	}
	assert.False(t, ValidMode("turbo"))
}

func TestFetchSequentialRejectsRangeAtWrongOffset(t *testing.T) {
	data := testData(10)
	var ranges []string
	client := doerFunc(func(r *http.Request) (*http.Response, error) {
		ranges = append(ranges, r.Header.Get("Range"))
		return fakeResponse(http.StatusPartialContent, "bytes 5-9/10", 5, data[5:]), nil
	})

	parts, err := fetchSequential(context.Background(), client, "http://video.test/clip.mp4", nil)
	require.Error(t, err)
	assert.Nil(t, parts)
	assert.Contains(t, err.Error(), "starting at 5, requested 0")
	assert.Equal(t, []string{"bytes=0-"}, ranges)
}

func TestDownloadSequentialRejectsOversizedDeclaredLength(t *testing.T) {
	data := testData(10)
	client := doerFunc(func(r *http.Request) (*http.Response, error) {
		if r.Header.Get("Range") == "bytes=0-0" {
			return fakeResponse(http.StatusPartialContent, "bytes 0-0/10", 1, data[:1]), nil
		}
		return fakeResponse(http.StatusPartialContent, "bytes 0-9/10", 1<<62, data), nil
	})
	sink := &memSink{}
	rec := &recorder{}

	e := New(Options{Client: client, Mode: ModeSequential, Sink: sink})
	job := e.StartDownload(context.Background(), "http://video.test/clip.mp4", rec.callbacks())
	_, err := job.Wait()
	require.ErrorIs(t, err, ErrSizeMismatch)
	assert.Equal(t, Sequential, job.Strategy())
	assert.Len(t, rec.errs, 1)
	assert.Empty(t, rec.complete)
	assert.Equal(t, 0, sink.calls)
}

func TestDownloadSingleShotRejectsOversizedDeclaredLength(t *testing.T) {
	data := testData(10)
	client := doerFunc(func(r *http.Request) (*http.Response, error) {
		if r.Header.Get("Range") != "" {
			return fakeResponse(http.StatusNotFound, "", 0, nil), nil
		}
		return fakeResponse(http.StatusOK, "", 1<<62, data), nil
	})
	sink := &memSink{}
	rec := &recorder{}

	e := New(Options{Client: client, Sink: sink})
	job := e.StartDownload(context.Background(), "http://video.test/clip.mp4", rec.callbacks())
	_, err := job.Wait()
	require.ErrorIs(t, err, ErrSizeMismatch)
	assert.Equal(t, SingleShot, job.Strategy())
	assert.Len(t, rec.errs, 1)
	assert.Empty(t, rec.complete)
	assert.Equal(t, 0, sink.calls)
}
