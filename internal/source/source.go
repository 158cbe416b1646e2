// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package source defines the uniform search interface over external evidence
// sources and the adapters that implement it.
//
// Each adapter declares its API base as a package var so tests can
// substitute an httptest server.
package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/pdiddy/evidence-engine/internal/httputil"
	"github.com/pdiddy/evidence-engine/internal/ratelimit"
	"github.com/pdiddy/evidence-engine/pkg/types"
)

// Adapter searches a single evidence source. Expected failures (timeouts,
// HTTP errors, rate limiting) are returned as errors; the retrieval
// coordinator turns them into empty results.
type Adapter interface {
	Name() types.Source
	Search(ctx context.Context, variants []string, c types.Constraints) ([]types.EvidenceCandidate, error)
}

var (
	// ErrAdapterFailure marks an adapter call that failed for a reason other
	// than rate limiting.
	ErrAdapterFailure = errors.New("adapter failure")

	// ErrRateLimited marks a 429-equivalent response.
	ErrRateLimited = errors.New("rate limited")
)

// RateLimitError is returned when a source answers with HTTP 429.
type RateLimitError struct {
	Source     types.Source
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("%s: rate limited, retry after %v", e.Source, e.RetryAfter)
	}
	return fmt.Sprintf("%s: rate limited", e.Source)
}

// Unwrap lets errors.Is match ErrRateLimited.
func (e *RateLimitError) Unwrap() error { return ErrRateLimited }

// Registry dispatches to adapters by source name.
type Registry struct {
	adapters map[types.Source]Adapter
}

// NewRegistry returns a registry holding the given adapters. Later adapters
// with a name already registered replace earlier ones.
func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[types.Source]Adapter, len(adapters))}
	for _, a := range adapters {
		r.adapters[a.Name()] = a
	}
	return r
}

// Register adds an adapter. It fails if the name is already taken.
func (r *Registry) Register(a Adapter) error {
	if _, ok := r.adapters[a.Name()]; ok {
		return fmt.Errorf("adapter %q already registered", a.Name())
	}
	r.adapters[a.Name()] = a
	return nil
}

// Get returns the adapter for s.
func (r *Registry) Get(s types.Source) (Adapter, bool) {
	a, ok := r.adapters[s]
	return a, ok
}

// Names returns registered sources in priority order.
func (r *Registry) Names() []types.Source {
	names := make([]types.Source, 0, len(r.adapters))
	for s := range r.adapters {
		names = append(names, s)
	}
	sort.Slice(names, func(i, j int) bool {
		pi, pj := names[i].Priority(), names[j].Priority()
		if pi != pj {
			return pi < pj
		}
		return names[i] < names[j]
	})
	return names
}

// Len returns the number of registered adapters.
func (r *Registry) Len() int { return len(r.adapters) }

// Select returns the registered adapters enabled by routing, in priority order.
// Sources routed but not registered are skipped.
func (r *Registry) Select(routing types.Routing) []Adapter {
	var out []Adapter
	for _, s := range r.Names() {
		if routing[s] {
			out = append(out, r.adapters[s])
		}
	}
	return out
}

// AllRouting enables every registered source.
func (r *Registry) AllRouting() types.Routing {
	routing := make(types.Routing, len(r.adapters))
	for s := range r.adapters {
		routing[s] = true
	}
	return routing
}

// do waits on the limiter, sends req, and maps HTTP 429 and non-200
// statuses to typed errors. On success the caller owns resp.Body.
func do(ctx context.Context, client *http.Client, limiter ratelimit.Limiter, src types.Source, req *http.Request) (*http.Response, error) {
	if limiter == nil {
		limiter = ratelimit.Noop{}
	}
	if client == nil {
		client = http.DefaultClient
	}
	if err := limiter.Wait(ctx); err != nil {
		return nil, err
	}

	resp, err := client.Do(req.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("%s request: %w", src, err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		retryAfter := httputil.ParseRetryAfter(resp.Header.Get("Retry-After"))
		limiter.Penalize(retryAfter)
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		return nil, &RateLimitError{Source: src, RetryAfter: retryAfter}
	case resp.StatusCode != http.StatusOK:
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		return nil, fmt.Errorf("%w: %s returned HTTP %d", ErrAdapterFailure, src, resp.StatusCode)
	}
	return resp, nil
}

// newGet builds a GET request with the User-Agent header set.
func newGet(ctx context.Context, rawURL, userAgent string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if userAgent != "" {
		req.Header.Set("User-Agent", userAgent)
	}
	return req, nil
}

// maxVariants caps the number of search variants combined into one query.
const maxVariants = 3

// primaryQuery returns the first non-empty variant.
func primaryQuery(variants []string) string {
	for _, v := range variants {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

// orQuery joins up to maxVariants distinct variants as "(a) OR (b)" for
// sources with boolean query syntax.
func orQuery(variants []string) string {
	seen := make(map[string]bool)
	var parts []string
	for _, v := range variants {
		v = strings.TrimSpace(v)
		if v == "" || seen[strings.ToLower(v)] {
			continue
		}
		seen[strings.ToLower(v)] = true
		parts = append(parts, v)
		if len(parts) == maxVariants {
			break
		}
	}
	switch len(parts) {
	case 0:
		return ""
	case 1:
		return parts[0]
	}
	for i, p := range parts {
		parts[i] = "(" + p + ")"
	}
	return strings.Join(parts, " OR ")
}

// limit returns c.MaxResults, or def when unset, capped at max when max > 0.
func limit(c types.Constraints, def, max int) int {
	n := c.MaxResults
	if n <= 0 {
		n = def
	}
	if max > 0 && n > max {
		n = max
	}
	return n
}
