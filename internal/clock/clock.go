// Package clock provides the single wall-clock seam used by the scheduler.
// All time comparisons in the cron core go through a Clock so tests can
// drive the timeline deterministically.
package clock

import (
	"sync/atomic"
	"time"
)

// Clock reads the current wall-clock time in unix milliseconds.
type Clock interface {
	NowMs() int64
}

// System reads from time.Now.
type System struct{}

func NewSystem() System { return System{} }

func (System) NowMs() int64 { return time.Now().UnixMilli() }

// Fake is a manually advanced clock for tests.
type Fake struct {
	ms atomic.Int64
}

// NewFake creates a fake clock starting at the given unix-ms instant.
func NewFake(startMs int64) *Fake {
	f := &Fake{}
	f.ms.Store(startMs)
	return f
}

func (f *Fake) NowMs() int64 { return f.ms.Load() }

// Set moves the clock to an absolute instant.
func (f *Fake) Set(ms int64) { f.ms.Store(ms) }

// Advance moves the clock forward by d.
func (f *Fake) Advance(d time.Duration) { f.ms.Add(d.Milliseconds()) }
