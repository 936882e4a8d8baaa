// coarsetime provides a coarse time implementation to reduce the overhead of frequent time.Now() calls.
// It updates the current time at a fixed interval (50ms) in a separate goroutine.
//
// Connections stamp their last activity on every poll, so the idle sweep of
// the event loop relies on it.

package coarsetime

import (
	"sync/atomic"
	"time"
)

const Resolution = 50 * time.Millisecond

var now atomic.Value

func init() {
	now.Store(time.Now())

	tick := time.NewTicker(Resolution)
	go func() {
		for range tick.C {
			now.Store(time.Now())
		}
	}()
}

func Now() time.Time {
	return now.Load().(time.Time)
}

// Since returns the coarse time elapsed since t. It never returns a negative
// duration.
func Since(t time.Time) time.Duration {
	return max(Now().Sub(t), 0)
}
