package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/tanq16/vidgrab/internal/utils"
)

const (
	ModeAuto       = "auto"
	ModeSequential = "sequential"
	ModeParallel   = "parallel"

	DefaultPoolSize = 16
	DefaultPrefix   = "video"
	DefaultExt      = "mp4"
)

// Sink persists a finished download under a suggested filename.
type Sink interface {
	Persist(ctx context.Context, blob *Blob, filename string) error
}

// Options configure an Engine. Zero values take the package defaults.
type Options struct {
	Client    utils.HTTPDoer
	PoolSize  int
	ChunkSize int64
	Mode      string
	Prefix    string
	Ext       string
	MediaType string
	Sink      Sink
	Fallback  Sink
	Now       func() time.Time
}

// Option adjusts the options of a single job.
type Option func(*Options)

func WithSink(s Sink) Option { return func(o *Options) { o.Sink = s } }
func WithFallback(s Sink) Option { return func(o *Options) { o.Fallback = s } }
func WithPrefix(p string) Option { return func(o *Options) { o.Prefix = p } }
func WithExt(e string) Option { return func(o *Options) { o.Ext = e } }
func WithMode(m string) Option { return func(o *Options) { o.Mode = m } }
func WithPoolSize(n int) Option { return func(o *Options) { o.PoolSize = n } }
func WithChunkSize(n int64) Option { return func(o *Options) { o.ChunkSize = n } }
func WithClient(c utils.HTTPDoer) Option { return func(o *Options) { o.Client = c } }

func ValidMode(mode string) bool {
	switch mode {
	case "", ModeAuto, ModeSequential, ModeParallel:
		return true
	}
	return false
}

func (o *Options) applyDefaults() {
	if o.Client == nil {
		o.Client = utils.NewClient(utils.HTTPClientConfig{})
	}
	if o.PoolSize <= 0 {
		o.PoolSize = DefaultPoolSize
	}
	if o.ChunkSize <= 0 {
		o.ChunkSize = DefaultChunkSize
	}
	if o.Mode == "" {
		o.Mode = ModeAuto
	}
	if o.Prefix == "" {
		o.Prefix = DefaultPrefix
	}
	if o.Ext == "" {
		o.Ext = DefaultExt
	}
	if o.MediaType == "" {
		o.MediaType = DefaultMediaType
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

type Engine struct {
	opts Options
}

var (
	defaultEngine *Engine
	initOnce      sync.Once
)

// Init creates the process-wide engine on first use. Later calls return the
// same instance and ignore their options; jobs already running keep the
// options they captured when they started.
func Init(opts Options) *Engine {
	initOnce.Do(func() {
		defaultEngine = New(opts)
	})
	return defaultEngine
}

// Default returns the process-wide engine, creating it with defaults if
// Init has not run.
func Default() *Engine {
	return Init(Options{})
}

// New returns an engine that is independent of the process-wide one.
func New(opts Options) *Engine {
	opts.applyDefaults()
	return &Engine{opts: opts}
}

func (e *Engine) Options() Options {
	return e.opts
}

// StartDownload begins fetching url in the background and returns at once.
func (e *Engine) StartDownload(ctx context.Context, url string, cb Callbacks, opts ...Option) *Job {
	o := e.opts
	for _, opt := range opts {
		opt(&o)
	}
	o.applyDefaults()
	job := newJob(uuid.NewString(), url, cb)
	go run(ctx, job, o)
	return job
}

// Download is the blocking form of StartDownload.
func (e *Engine) Download(ctx context.Context, url string, cb Callbacks, opts ...Option) (*Result, error) {
	return e.StartDownload(ctx, url, cb, opts...).Wait()
}

// selectStrategy picks how to fetch once the probe is known. In auto mode a
// pool of one is treated as sequential; an explicit parallel mode keeps the
// planned chunks even with a single worker.
func selectStrategy(c Capability, mode string, poolSize int) Strategy {
	if !c.SupportsRange || c.TotalSize <= 0 {
		return SingleShot
	}
	switch mode {
	case ModeSequential:
		return Sequential
	case ModeParallel:
		return Parallel
	}
	if poolSize == 1 {
		return Sequential
	}
	return Parallel
}

func run(ctx context.Context, job *Job, o Options) {
	startTime := time.Now()
	job.setState(StateProbing)
	capability := Probe(ctx, o.Client, job.URL)
	strategy := selectStrategy(capability, o.Mode, o.PoolSize)
	job.setPlan(strategy, capability.TotalSize)
	log.Info().Str("op", "engine/run").Msgf("job %s: %s download of %s", job.ID, strategy, job.URL)

	blob, workers, err := fetch(ctx, job, o, strategy, capability.TotalSize)
	if err != nil {
		log.Error().Str("op", "engine/run").Err(err).Msgf("job %s failed", job.ID)
		job.fail(err)
		return
	}

	filename := GenerateFilename(o.Prefix, o.Ext, o.Now())
	if err := persist(ctx, blob, filename, o.Sink, o.Fallback); err != nil {
		log.Error().Str("op", "engine/run").Err(err).Msgf("job %s could not be saved", job.ID)
		job.fail(err)
		return
	}
	log.Info().Str("op", "engine/run").Msgf("job %s saved %s (%d bytes)", job.ID, filename, blob.Size())
	job.complete(Result{
		JobID:    job.ID,
		URL:      job.URL,
		Strategy: strategy,
		Workers:  workers,
		Bytes:    blob.Size(),
		Filename: filename,
		Duration: time.Since(startTime),
	})
}

func fetch(ctx context.Context, job *Job, o Options, strategy Strategy, total int64) (*Blob, int, error) {
	switch strategy {
	case Sequential:
		job.setState(StateFetching)
		parts, err := fetchSequential(ctx, o.Client, job.URL, func(offset, size int64) {
			job.reportProgress(func() int { return percentOf(offset, size) })
		})
		if err != nil {
			return nil, 1, err
		}
		job.setState(StateReassembling)
		return joinPayloads(parts, o.MediaType), 1, nil

	case Parallel:
		job.setState(StatePlanning)
		chunks, err := PlanChunks(total, o.ChunkSize)
		if err != nil {
			return nil, 0, err
		}
		job.setState(StateFetching)
		progress := &progressState{total: total}
		workers, err := fetchParallel(ctx, o.Client, job.URL, chunks, o.PoolSize, func(n int64) {
			progress.add(n)
			job.reportProgress(progress.percent)
		})
		if err != nil {
			return nil, workers, err
		}
		job.setState(StateReassembling)
		blob, err := Reassemble(chunks, o.MediaType)
		return blob, workers, err

	default:
		job.setState(StateFetching)
		blob, err := fetchSingleShot(ctx, o.Client, job.URL, o.MediaType)
		if err != nil {
			return nil, 1, err
		}
		job.reportProgress(func() int { return 100 })
		return blob, 1, nil
	}
}

// persist hands blob to the sink, or to the fallback when the sink is
// missing or refuses it. Neither is retried.
func persist(ctx context.Context, blob *Blob, filename string, sink, fallback Sink) error {
	if sink != nil {
		err := sink.Persist(ctx, blob, filename)
		if err == nil {
			return nil
		}
		if fallback == nil {
			return fmt.Errorf("%w: %w", ErrPersistFailed, err)
		}
		log.Warn().Str("op", "engine/persist").Err(err).Msgf("sink failed for %s, using fallback", filename)
	}
	if fallback == nil {
		return fmt.Errorf("%w: no sink configured", ErrPersistFailed)
	}
	if err := fallback.Persist(ctx, blob, filename); err != nil {
		return fmt.Errorf("%w: %w", ErrPersistFailed, err)
	}
	return nil
}
