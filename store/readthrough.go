package store

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"
	"golang.org/x/sync/singleflight"
)

// ErrNotFound is returned by a Source that has no value for a key.
var ErrNotFound = errors.New("store: not found")

// Source is a slow backing store consulted on cache misses.
type Source interface {
	Fetch(ctx context.Context, key string) (Item, error)
}

// SourceFunc adapts a function to a Source.
type SourceFunc func(ctx context.Context, key string) (Item, error)

func (f SourceFunc) Fetch(ctx context.Context, key string) (Item, error) {
	return f(ctx, key)
}

type ReadThroughConfig struct {
	// FetchTimeout bounds a single Source call. Default 1s.
	FetchTimeout time.Duration

	// Circuit breaker settings, see gobreaker.Settings.
	// Defaults: MaxRequests 1, Interval 0 (never reset), OpenTimeout 10s.
	MaxRequests uint32
	Interval    time.Duration
	OpenTimeout time.Duration

	Logger *slog.Logger
}

// ReadThrough serves items from a cache and fills misses from a Source.
//
// Get never waits for the source: a miss is answered at once and the key is
// fetched in the background, so a later Get finds it in the cache. Concurrent
// fills of the same key share one Source call.
//
// Source calls go through a circuit breaker: once the source fails too often
// misses are not fetched at all, until the breaker lets a probe through
// again. ErrNotFound is a regular miss and never trips it.
type ReadThrough struct {
	cache   *Sharded
	source  Source
	breaker *gobreaker.CircuitBreaker[Item]
	timeout time.Duration
	logger  *slog.Logger

	fills singleflight.Group
	wg    sync.WaitGroup
}

func NewReadThrough(source Source, cache *Sharded, cfg ReadThroughConfig) *ReadThrough {
	if cache == nil {
		cache = NewSharded(0)
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = time.Second
	}
	if cfg.MaxRequests == 0 {
		cfg.MaxRequests = 1
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = 10 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	settings := gobreaker.Settings{
		Name:        "store-source",
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrNotFound)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("store: source breaker state changed", "name", name, "from", from.String(), "to", to.String())
		},
	}

	return &ReadThrough{
		cache:   cache,
		source:  source,
		breaker: gobreaker.NewCircuitBreaker[Item](settings),
		timeout: cfg.FetchTimeout,
		logger:  logger,
	}
}

// Get returns the cached item for key. On a miss it starts a background
// fill and reports false.
func (r *ReadThrough) Get(key []byte) (Item, bool) {
	if item, ok := r.cache.Get(key); ok {
		return item, true
	}

	k := string(key)
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		_, _, _ = r.fills.Do(k, func() (any, error) {
			r.fill(k)
			return nil, nil
		})
	}()
	return Item{}, false
}

// Wait blocks until every background fill started so far has finished.
func (r *ReadThrough) Wait() {
	r.wg.Wait()
}

func (r *ReadThrough) fill(k string) {
	if _, ok := r.cache.Get([]byte(k)); ok {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	item, err := r.breaker.Execute(func() (Item, error) {
		return r.source.Fetch(ctx, k)
	})
	switch {
	case err == nil:
		item.Key = k
		r.cache.Set(item)
	case errors.Is(err, ErrNotFound):
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		r.logger.Debug("store: source skipped", "key", k, "error", err)
	default:
		r.logger.Warn("store: source fetch failed", "key", k, "error", err)
	}
}

// Invalidate drops key from the cache so the next Get refetches it.
func (r *ReadThrough) Invalidate(key string) {
	r.cache.Delete(key)
}

// BreakerState returns the state of the source circuit breaker.
func (r *ReadThrough) BreakerState() gobreaker.State {
	return r.breaker.State()
}

// Cached returns the number of cached items.
func (r *ReadThrough) Cached() int {
	return r.cache.Len()
}
