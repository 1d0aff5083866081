package engine

import (
	"sync"
	"sync/atomic"
)

// abortToken is the shared cancellation flag for one job's workers. The
// first trip wins; later errors are dropped.
type abortToken struct {
	once sync.Once
	flag atomic.Bool
	err  error
}

func (a *abortToken) trip(err error) bool {
	first := false
	a.once.Do(func() {
		a.err = err
		a.flag.Store(true)
		first = true
	})
	return first
}

func (a *abortToken) aborted() bool {
	return a.flag.Load()
}

// cause must only be read after every worker has returned.
func (a *abortToken) cause() error {
	return a.err
}
