// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package httputil provides HTTP helpers shared across stages: jittered
// exponential backoff and retry on HTTP 429.
package httputil

import (
	"context"
	"io"
	"math"
	"math/rand/v2"
	"net/http"
	"strconv"
	"time"
)

// Backoff describes a capped exponential backoff with jitter. The zero value
// is not useful; start from DefaultBackoff.
type Backoff struct {
	// Base is the delay before jitter for attempt 0.
	Base time.Duration

	// Max caps every delay.
	Max time.Duration

	// Jitter is the fraction of each delay that is randomized, in [0,1].
	Jitter float64
}

// DefaultBackoff returns the policy used when configuration leaves it unset.
func DefaultBackoff() Backoff {
	return Backoff{Base: 500 * time.Millisecond, Max: 8 * time.Second, Jitter: 0.5}
}

// Delay returns the wait before retry attempt (0-based) given a random
// sample r in [0,1). It is a pure function: the same inputs always yield the
// same delay. The result lies in [d*(1-Jitter), d] where d = min(Max, Base*2^attempt).
func (b Backoff) Delay(attempt int, r float64) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	d := float64(b.Base) * math.Pow(2, float64(attempt))
	if b.Max > 0 && d > float64(b.Max) {
		d = float64(b.Max)
	}
	j := math.Min(math.Max(b.Jitter, 0), 1)
	r = math.Min(math.Max(r, 0), 1)
	return time.Duration(d * (1 - j + j*r))
}

// randFloat is the jitter source. Tests replace it for deterministic delays.
var randFloat = rand.Float64

// Next returns Delay(attempt) with a fresh random sample.
func (b Backoff) Next(attempt int) time.Duration {
	return b.Delay(attempt, randFloat())
}

// Sleep waits for d or until ctx is done, returning ctx.Err() in the latter case.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// ParseRetryAfter reads a Retry-After header given in seconds or as an HTTP
// date. It returns zero when the header is absent or unparseable.
func ParseRetryAfter(h string) time.Duration {
	if h == "" {
		return 0
	}
	if secs, err := strconv.Atoi(h); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(h); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

const defaultMaxRetries = 3

// DoWithRetry executes an HTTP request and retries on HTTP 429 (Too Many
// Requests) using the backoff policy. A Retry-After header longer than the
// computed delay takes precedence.
//
// Requests with a body must be replayable through GetBody (as requests built
// by http.NewRequest from a bytes or strings reader are).
//
// When maxRetries is 0 the default (3) is used. On each 429 the response
// body is drained and closed before sleeping. If the context is cancelled
// during a backoff wait the function returns ctx.Err(). After exhausting
// retries the last 429 response is returned so the caller can inspect it.
func DoWithRetry(ctx context.Context, client *http.Client, req *http.Request, policy Backoff, maxRetries int) (*http.Response, error) {
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}

	for attempt := 0; ; attempt++ {
		attemptReq := req.Clone(ctx)
		if req.GetBody != nil {
			body, err := req.GetBody()
			if err != nil {
				return nil, err
			}
			attemptReq.Body = body
		}

		resp, err := client.Do(attemptReq)
		if err != nil {
			return nil, err
		}

		if resp.StatusCode != http.StatusTooManyRequests {
			return resp, nil
		}

		if attempt >= maxRetries {
			return resp, nil
		}

		wait := policy.Next(attempt)
		if ra := ParseRetryAfter(resp.Header.Get("Retry-After")); ra > wait {
			wait = ra
		}

		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()

		if err := Sleep(ctx, wait); err != nil {
			return nil, err
		}
	}
}
