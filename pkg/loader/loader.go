// Package loader provides request-scoped batching loaders. A loader
// coalesces individual key lookups issued during one request into batched
// store calls, avoiding N+1 query patterns in resolvers.
//
// Loaders are cheap to construct and must never be shared across requests:
// each request gets fresh instances so one caller's data can never leak
// into another's.
package loader

import (
	"context"
	"sync"
	"time"

	"github.com/tallyhq/ledgergate/errors"
)

// BatchFunc fetches values for a batch of deduplicated keys. Keys absent
// from the returned map are reported to their callers as ErrNotFound.
type BatchFunc[K comparable, V any] func(ctx context.Context, keys []K) (map[K]V, error)

// Config controls batching behavior.
type Config struct {
	// Wait is how long the first Load in a batch waits for more keys
	// before dispatching.
	Wait time.Duration

	// MaxBatch dispatches the batch early once this many distinct keys
	// have accumulated. 0 means unbounded.
	MaxBatch int
}

// DefaultConfig returns batching defaults suited to in-request coalescing.
func DefaultConfig() Config {
	return Config{
		Wait:     2 * time.Millisecond,
		MaxBatch: 100,
	}
}

// Loader batches individual Load calls into BatchFunc invocations.
type Loader[K comparable, V any] struct {
	batchFn BatchFunc[K, V]
	wait    time.Duration
	maxSize int

	mu      sync.Mutex
	current *batch[K, V]
}

// batch accumulates keys until dispatched.
type batch[K comparable, V any] struct {
	keys []K
	seen map[K]struct{}

	full chan struct{} // closed when MaxBatch is reached
	done chan struct{} // closed when results are available

	results map[K]V
	err     error
}

// New creates a loader around batchFn.
func New[K comparable, V any](cfg Config, batchFn BatchFunc[K, V]) *Loader[K, V] {
	if cfg.Wait <= 0 {
		cfg.Wait = DefaultConfig().Wait
	}
	return &Loader[K, V]{
		batchFn: batchFn,
		wait:    cfg.Wait,
		maxSize: cfg.MaxBatch,
	}
}

// Load returns the value for key, batching the lookup with concurrent Load
// calls. Returns ErrNotFound when the batch function yields no value for key.
func (l *Loader[K, V]) Load(ctx context.Context, key K) (V, error) {
	var zero V

	l.mu.Lock()
	b := l.current
	if b == nil {
		b = &batch[K, V]{
			seen: make(map[K]struct{}),
			full: make(chan struct{}),
			done: make(chan struct{}),
		}
		l.current = b
		go l.run(ctx, b)
	}

	if _, dup := b.seen[key]; !dup {
		b.seen[key] = struct{}{}
		b.keys = append(b.keys, key)
		if l.maxSize > 0 && len(b.keys) >= l.maxSize {
			// Dispatch early; detach so the next Load opens a new batch
			l.current = nil
			close(b.full)
		}
	}
	l.mu.Unlock()

	select {
	case <-b.done:
	case <-ctx.Done():
		return zero, ctx.Err()
	}

	if b.err != nil {
		return zero, b.err
	}
	value, ok := b.results[key]
	if !ok {
		return zero, errors.ErrNotFound
	}
	return value, nil
}

// run waits for the batch window to close, then executes the batch function.
func (l *Loader[K, V]) run(ctx context.Context, b *batch[K, V]) {
	timer := time.NewTimer(l.wait)
	defer timer.Stop()

	select {
	case <-timer.C:
		l.mu.Lock()
		if l.current == b {
			l.current = nil
		}
		l.mu.Unlock()
	case <-b.full:
	case <-ctx.Done():
		l.mu.Lock()
		if l.current == b {
			l.current = nil
		}
		l.mu.Unlock()
		b.err = ctx.Err()
		close(b.done)
		return
	}

	b.results, b.err = l.batchFn(ctx, b.keys)
	close(b.done)
}
