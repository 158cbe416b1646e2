// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package ratelimit provides the per-adapter request limiters. Limiters are
// constructed explicitly and injected into adapters; one limiter may be shared
// by concurrent queries against the same adapter.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/pdiddy/evidence-engine/pkg/types"
)

// Limiter throttles requests to one external source.
type Limiter interface {
	// Wait blocks until a request may be sent or ctx is done.
	Wait(ctx context.Context) error

	// Penalize records a rate-limit response. Subsequent Wait calls block
	// until the cool-down has passed.
	Penalize(retryAfter time.Duration)
}

// defaultCooldown applies when a 429 carries no usable Retry-After.
const defaultCooldown = 2 * time.Second

// TokenBucket is a token bucket with a mutex-guarded cool-down for 429
// responses. It is safe for concurrent use.
type TokenBucket struct {
	mu      sync.Mutex
	limiter *rate.Limiter
	retryAt time.Time
}

// NewTokenBucket returns a limiter allowing rps sustained requests per second
// with the given burst. rps <= 0 means unlimited.
func NewTokenBucket(rps float64, burst int) *TokenBucket {
	limit := rate.Limit(rps)
	if rps <= 0 {
		limit = rate.Inf
	}
	if burst <= 0 {
		burst = 1
	}
	return &TokenBucket{limiter: rate.NewLimiter(limit, burst)}
}

// FromConfig builds the limiter for a source's configuration.
func FromConfig(cfg types.SourceConfig) *TokenBucket {
	return NewTokenBucket(cfg.RequestsPerSecond, cfg.Burst)
}

// Wait blocks until a request can be made without exceeding the rate limit.
// It also respects any cool-down set by Penalize.
func (b *TokenBucket) Wait(ctx context.Context) error {
	b.mu.Lock()
	retryAt := b.retryAt
	b.mu.Unlock()

	if wait := time.Until(retryAt); wait > 0 {
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}

	return b.limiter.Wait(ctx)
}

// Penalize sets a cool-down of retryAfter (or a default when retryAfter <= 0).
// A shorter penalty never shortens an existing cool-down.
func (b *TokenBucket) Penalize(retryAfter time.Duration) {
	if retryAfter <= 0 {
		retryAfter = defaultCooldown
	}
	until := time.Now().Add(retryAfter)

	b.mu.Lock()
	defer b.mu.Unlock()
	if until.After(b.retryAt) {
		b.retryAt = until
	}
}

// CoolingDown reports whether a penalty is still in effect.
func (b *TokenBucket) CoolingDown() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return time.Now().Before(b.retryAt)
}

// Noop never blocks. Tests and local sources use it.
type Noop struct{}

// Wait returns ctx.Err() without blocking.
func (Noop) Wait(ctx context.Context) error { return ctx.Err() }

// Penalize does nothing.
func (Noop) Penalize(time.Duration) {}
