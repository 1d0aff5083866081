package engine

import (
	"math"
	"sync/atomic"
)

// progressState counts completed bytes. add is safe from any worker.
type progressState struct {
	completed atomic.Int64
	total     int64
}

func (p *progressState) add(n int64) int64 {
	return p.completed.Add(n)
}

func (p *progressState) percent() int {
	return percentOf(p.completed.Load(), p.total)
}

// percentOf is round(min(100, done*100/total)). An unknown total reads as 0.
func percentOf(done, total int64) int {
	if total <= 0 {
		return 0
	}
	pct := math.Round(float64(done) * 100 / float64(total))
	return int(min(100, max(0, pct)))
}
