// Package clientcache provides a generic keyed memoizing factory with
// at-most-one build per key under concurrent access, plus the concrete
// chain-scoped reader and signer caches built on it.
package clientcache

import (
	"context"
	"sync"
)

// pendingBuild is the shared handle concurrent callers wait on while one
// build is in flight. val and err are written before done is closed.
type pendingBuild[V any] struct {
	done chan struct{}
	val  V
	err  error
}

// Cache memoizes one client per key. The pending handle is registered under
// the lock before the build function runs; that ordering is what guarantees
// at-most-one build per key regardless of call concurrency.
type Cache[K comparable, V any] struct {
	mu      sync.Mutex
	build   func(ctx context.Context, key K) (V, error)
	ready   map[K]V
	pending map[K]*pendingBuild[V]
}

// New creates a cache around a build function.
func New[K comparable, V any](build func(ctx context.Context, key K) (V, error)) *Cache[K, V] {
	return &Cache[K, V]{
		build:   build,
		ready:   make(map[K]V),
		pending: make(map[K]*pendingBuild[V]),
	}
}

// Get returns the cached client for key, joins an in-flight build if one
// exists, or runs the build itself. All concurrent callers observe the same
// instance or the same error. A failed build removes the pending handle, so
// a later call retries.
func (c *Cache[K, V]) Get(ctx context.Context, key K) (V, error) {
	c.mu.Lock()
	if v, ok := c.ready[key]; ok {
		c.mu.Unlock()
		return v, nil
	}
	if p, ok := c.pending[key]; ok {
		c.mu.Unlock()
		return waitPending(ctx, p)
	}
	p := &pendingBuild[V]{done: make(chan struct{})}
	c.pending[key] = p
	c.mu.Unlock()

	v, err := c.build(ctx, key)

	c.mu.Lock()
	if err == nil {
		c.ready[key] = v
	}
	delete(c.pending, key)
	c.mu.Unlock()

	p.val, p.err = v, err
	close(p.done)

	return v, err
}

func waitPending[V any](ctx context.Context, p *pendingBuild[V]) (V, error) {
	select {
	case <-p.done:
		return p.val, p.err
	case <-ctx.Done():
		var zero V
		return zero, ctx.Err()
	}
}

// Reset evicts one cached entry, forcing the next Get to rebuild. An
// in-flight build is unaffected.
func (c *Cache[K, V]) Reset(key K) {
	c.mu.Lock()
	delete(c.ready, key)
	c.mu.Unlock()
}

// ResetAll evicts every cached entry. Used for credential rotation and tests.
func (c *Cache[K, V]) ResetAll() {
	c.mu.Lock()
	c.ready = make(map[K]V)
	c.mu.Unlock()
}
