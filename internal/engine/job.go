package engine

import (
	"fmt"
	"sync"
	"time"
)

type Strategy int

const (
	StrategyUnset Strategy = iota
	SingleShot
	Sequential
	Parallel
)

func (s Strategy) String() string {
	switch s {
	case SingleShot:
		return "single-shot"
	case Sequential:
		return "sequential"
	case Parallel:
		return "parallel"
	}
	return "unset"
}

type State int

const (
	StateProbing State = iota
	StatePlanning
	StateFetching
	StateReassembling
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateProbing:
		return "probing"
	case StatePlanning:
		return "planning"
	case StateFetching:
		return "fetching"
	case StateReassembling:
		return "reassembling"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Callbacks receive job events. Calls for one job never overlap, progress
// values never decrease, and exactly one of OnComplete or OnError fires.
// Any field may be nil.
type Callbacks struct {
	OnProgress func(percent int)
	OnComplete func(res Result)
	OnError    func(message string)
}

type Result struct {
	JobID    string
	URL      string
	Strategy Strategy
	Workers  int
	Bytes    int64
	Filename string
	Duration time.Duration
}

// Job is the handle for one download started by Engine.StartDownload.
type Job struct {
	ID  string
	URL string

	mu        sync.Mutex
	state     State
	strategy  Strategy
	totalSize int64

	cbMu         sync.Mutex
	cb           Callbacks
	lastProgress int
	finished     bool

	done   chan struct{}
	result *Result
	err    error
}

func newJob(id, url string, cb Callbacks) *Job {
	return &Job{
		ID:           id,
		URL:          url,
		cb:           cb,
		lastProgress: -1,
		done:         make(chan struct{}),
	}
}

func (j *Job) State() State {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.state
}

func (j *Job) Strategy() Strategy {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.strategy
}

// TotalSize is 0 until the probe reports a size.
func (j *Job) TotalSize() int64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.totalSize
}

func (j *Job) setState(s State) {
	j.mu.Lock()
	j.state = s
	j.mu.Unlock()
}

func (j *Job) setPlan(strategy Strategy, total int64) {
	j.mu.Lock()
	j.strategy = strategy
	j.totalSize = total
	j.mu.Unlock()
}

// Done is closed after the terminal callback has returned.
func (j *Job) Done() <-chan struct{} {
	return j.done
}

// Wait blocks until the job finishes.
func (j *Job) Wait() (*Result, error) {
	<-j.done
	return j.result, j.err
}

// reportProgress computes the percentage under the callback lock so
// concurrent workers cannot deliver an older, smaller value after a newer one.
func (j *Job) reportProgress(compute func() int) {
	j.cbMu.Lock()
	defer j.cbMu.Unlock()
	if j.finished {
		return
	}
	pct := compute()
	if pct < j.lastProgress {
		pct = j.lastProgress
	}
	j.lastProgress = pct
	if j.cb.OnProgress != nil {
		j.cb.OnProgress(pct)
	}
}

func (j *Job) complete(res Result) {
	j.cbMu.Lock()
	if j.finished {
		j.cbMu.Unlock()
		return
	}
	if j.lastProgress < 100 && j.cb.OnProgress != nil {
		j.cb.OnProgress(100)
	}
	j.lastProgress = 100
	j.finished = true
	j.setState(StateDone)
	if j.cb.OnComplete != nil {
		j.cb.OnComplete(res)
	}
	j.result = &res
	j.cbMu.Unlock()
	close(j.done)
}

func (j *Job) fail(err error) {
	j.cbMu.Lock()
	if j.finished {
		j.cbMu.Unlock()
		return
	}
	j.finished = true
	j.setState(StateFailed)
	if j.cb.OnError != nil {
		j.cb.OnError(err.Error())
	}
	j.err = err
	j.cbMu.Unlock()
	close(j.done)
}
