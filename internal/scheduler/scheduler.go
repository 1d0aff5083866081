package scheduler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"
	"github.com/tanq16/vidgrab/internal/engine"
	"github.com/tanq16/vidgrab/internal/output"
	"github.com/tanq16/vidgrab/internal/sink"
	"github.com/tanq16/vidgrab/internal/utils"
)

// SinkOpener resolves a job destination into a sink.
type SinkOpener func(ctx context.Context, dest, profile string) (engine.Sink, error)

// Run downloads jobs with numWorkers concurrent downloads and renders their
// progress on stdout. It returns an error when any job failed.
func Run(jobs []utils.VideoJob, numWorkers int) error {
	outputMgr := output.NewManager(os.Stdout)
	outputMgr.StartDisplay()
	defer outputMgr.StopDisplay()
	eng := engine.Init(engine.Options{})
	return runJobs(context.Background(), jobs, numWorkers, eng, outputMgr, sink.Open)
}

func runJobs(ctx context.Context, jobs []utils.VideoJob, numWorkers int, eng *engine.Engine, outputMgr *output.Manager, open SinkOpener) error {
	numWorkers = max(1, min(numWorkers, len(jobs)))
	jobCh := make(chan utils.VideoJob, len(jobs))
	for _, job := range jobs {
		jobCh <- job
	}
	close(jobCh)

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		errs   []error
		failed int
	)
	for range numWorkers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobCh {
				if err := processJob(ctx, job, eng, outputMgr, open); err != nil {
					mu.Lock()
					failed++
					errs = append(errs, fmt.Errorf("%s: %w", job.URL, err))
					mu.Unlock()
				}
			}
		}()
	}
	wg.Wait()

	if failed > 0 {
		return fmt.Errorf("%d of %d downloads failed: %w", failed, len(jobs), errors.Join(errs...))
	}
	return nil
}

func processJob(ctx context.Context, job utils.VideoJob, eng *engine.Engine, outputMgr *output.Manager, open SinkOpener) error {
	funcID := outputMgr.RegisterJob(job.URL)
	fail := func(err error) error {
		outputMgr.ReportError(funcID, err)
		return err
	}

	if !engine.ValidMode(job.Strategy) {
		return fail(fmt.Errorf("unknown strategy %q", job.Strategy))
	}
	primary, err := open(ctx, job.Dest, job.Profile)
	if err != nil {
		return fail(fmt.Errorf("error opening destination: %v", err))
	}
	if c, ok := primary.(io.Closer); ok {
		defer c.Close()
	}

	clientCfg := job.HTTPClientConfig
	clientCfg.HighThreadMode = job.Connections > 8
	opts := []engine.Option{
		engine.WithClient(utils.NewClient(clientCfg)),
		engine.WithSink(primary),
		engine.WithFallback(sink.NewFileSink(".")),
		engine.WithPoolSize(job.Connections),
		engine.WithChunkSize(job.ChunkSize),
		engine.WithMode(job.Strategy),
		engine.WithPrefix(job.Prefix),
		engine.WithExt(job.Ext),
	}

	if job.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, job.Timeout)
		defer cancel()
	}

	outputMgr.SetMessage(funcID, fmt.Sprintf("Downloading %s", job.URL))
	var handle atomic.Pointer[engine.Job]
	cb := engine.Callbacks{
		OnProgress: func(percent int) {
			var size int64
			if h := handle.Load(); h != nil {
				size = h.TotalSize()
			}
			outputMgr.SetProgress(funcID, percent, size)
		},
		OnComplete: func(res engine.Result) {
			outputMgr.Complete(funcID, fmt.Sprintf("Saved %s (%s)", res.Filename, res.Strategy), res.Bytes)
		},
	}
	h := eng.StartDownload(ctx, job.URL, cb, opts...)
	handle.Store(h)
	res, err := h.Wait()
	if err != nil {
		return fail(err)
	}
	log.Debug().Str("op", "scheduler/processJob").Msgf("%s done with %d workers in %s", job.URL, res.Workers, res.Duration)
	return nil
}
