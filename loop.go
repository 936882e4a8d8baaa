package memcached

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Loop is a single-threaded cooperative event loop.
//
// Each tick offers every attached connection one Poll. Sockets never block,
// so a tick never waits on a slow client; when a whole tick makes no
// progress, Run sleeps until Wake is called or PollInterval elapses.
//
// Attach and Wake may be called from any goroutine. Everything else runs on
// the goroutine calling Run or Tick.
type Loop struct {
	mu      sync.Mutex
	pending []*Connection

	conns []*Connection
	wake  chan struct{}

	idleTimeout  time.Duration
	pollInterval time.Duration
	stats        *statsCollector
	logger       *slog.Logger
}

func NewLoop(cfg Config) *Loop {
	return newLoop(cfg.withDefaults(), newStatsCollector())
}

func newLoop(cfg Config, stats *statsCollector) *Loop {
	return &Loop{
		wake:         make(chan struct{}, 1),
		idleTimeout:  cfg.IdleTimeout,
		pollInterval: cfg.PollInterval,
		stats:        stats,
		logger:       cfg.Logger,
	}
}

// Attach hands a connection to the loop. It is picked up on the next tick.
func (l *Loop) Attach(c *Connection) {
	l.mu.Lock()
	l.pending = append(l.pending, c)
	l.mu.Unlock()

	l.stats.recordOpen()
	l.Wake()
}

// Wake interrupts the sleep of Run. It never blocks.
func (l *Loop) Wake() {
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Len returns the number of connections owned by the loop.
func (l *Loop) Len() int {
	return len(l.conns)
}

// Tick polls every connection once and detaches those whose socket is
// closed or that exceeded the idle timeout. It reports whether any
// connection made progress.
func (l *Loop) Tick() bool {
	l.adopt()

	progress := false
	live := l.conns[:0]
	for _, c := range l.conns {
		if c.Poll() {
			progress = true
		}

		switch {
		case c.Closed():
			l.detach(c)
		case l.idleTimeout > 0 && c.IdleFor() > l.idleTimeout:
			l.logger.Debug("memcached: closing idle connection", "idle", c.IdleFor())
			l.stats.recordIdleClose()
			l.detach(c)
		default:
			live = append(live, c)
		}
	}
	clear(l.conns[len(live):])
	l.conns = live

	return progress
}

// Run ticks until ctx is done, then closes every connection and returns
// ctx.Err().
func (l *Loop) Run(ctx context.Context) error {
	timer := time.NewTimer(l.pollInterval)
	defer timer.Stop()

	for {
		if l.Tick() {
			if err := ctx.Err(); err != nil {
				return l.shutdown(err)
			}
			continue
		}

		timer.Reset(l.pollInterval)
		select {
		case <-ctx.Done():
			return l.shutdown(ctx.Err())
		case <-l.wake:
		case <-timer.C:
		}
	}
}

func (l *Loop) adopt() {
	l.mu.Lock()
	l.conns = append(l.conns, l.pending...)
	clear(l.pending)
	l.pending = l.pending[:0]
	l.mu.Unlock()
}

func (l *Loop) detach(c *Connection) {
	if err := c.Close(); err != nil {
		l.logger.Debug("memcached: close failed", "error", err)
	}
	l.stats.recordClose()
}

func (l *Loop) shutdown(err error) error {
	l.adopt()
	for _, c := range l.conns {
		l.detach(c)
	}
	clear(l.conns)
	l.conns = l.conns[:0]
	return err
}
