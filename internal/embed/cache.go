package embed

import (
	"context"
	"errors"
	"sync"
	"time"

	"aperture/internal/logging"
)

// Cache wraps a Provider with a process-lifetime embedding cache keyed by
// (provider id, image path). Each key is computed at most once: concurrent
// callers for the same key share one in-flight extraction, so two grid cells
// requesting the same image never duplicate backbone work.
type Cache struct {
	provider Provider
	timeout  time.Duration

	mu      sync.Mutex
	entries map[string]*entry
}

type entry struct {
	ready chan struct{} // closed when vec/err are set
	vec   []float32
	err   error
}

// NewCache wraps provider. timeout bounds each extraction; zero means no
// per-image timeout beyond the caller's context.
func NewCache(provider Provider, timeout time.Duration) *Cache {
	return &Cache{
		provider: provider,
		timeout:  timeout,
		entries:  make(map[string]*entry),
	}
}

// ID returns the wrapped provider's id.
func (c *Cache) ID() string { return c.provider.ID() }

// Extract returns the cached embedding for path, computing it on first use.
// Failures (including per-image timeouts) are cached too: a broken image
// stays excluded for the process lifetime instead of being retried by every
// grid cell. Caller cancellation is the exception: it says nothing about the
// image, so the key stays retryable.
func (c *Cache) Extract(ctx context.Context, path string) ([]float32, error) {
	key := c.provider.ID() + "\x00" + path

	c.mu.Lock()
	e, ok := c.entries[key]
	if !ok {
		e = &entry{ready: make(chan struct{})}
		c.entries[key] = e
		c.mu.Unlock()

		extractCtx := ctx
		var cancel context.CancelFunc
		if c.timeout > 0 {
			extractCtx, cancel = context.WithTimeout(ctx, c.timeout)
			defer cancel()
		}
		vec, err := c.provider.Extract(extractCtx, path)
		if err != nil && ctx.Err() != nil {
			// The caller went away, not the image. Drop the entry so the
			// next caller with a live context retries instead of inheriting
			// this cancellation for the rest of the process.
			c.mu.Lock()
			delete(c.entries, key)
			c.mu.Unlock()
			e.err = ctx.Err()
			close(e.ready)
			return nil, ctx.Err()
		}
		if err != nil && errors.Is(err, context.DeadlineExceeded) {
			logging.New("embed-cache").Warn("extraction timed out", "path", path, "timeout", c.timeout)
		}
		var embedErr *Error
		if err != nil && !errors.As(err, &embedErr) {
			err = &Error{Path: path, Err: err}
		}
		e.vec, e.err = vec, err
		close(e.ready)
		return e.vec, e.err
	}
	c.mu.Unlock()

	select {
	case <-e.ready:
		return e.vec, e.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Len reports how many keys have been requested so far.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
