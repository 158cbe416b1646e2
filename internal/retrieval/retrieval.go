// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package retrieval fans a query out to the routed source adapters and
// collects whatever completes within the round deadline. Adapter failures
// are isolated: they are logged, reported to the metrics sink, and turned
// into empty results.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/pdiddy/evidence-engine/internal/httputil"
	"github.com/pdiddy/evidence-engine/internal/logging"
	"github.com/pdiddy/evidence-engine/internal/metrics"
	"github.com/pdiddy/evidence-engine/internal/source"
	"github.com/pdiddy/evidence-engine/pkg/types"
)

// CallReport summarizes one adapter's contribution to a round.
type CallReport struct {
	Source   types.Source
	Count    int
	Attempts int
	Latency  time.Duration
	Status   string
	Err      error
}

// Round holds the merged results of one fan-out.
type Round struct {
	Number     int
	Candidates []types.EvidenceCandidate
	Calls      []CallReport
	Elapsed    time.Duration
}

// Errors returns "source: error" strings for every failed call.
func (r Round) Errors() []string {
	var out []string
	for _, c := range r.Calls {
		if c.Err != nil {
			out = append(out, fmt.Sprintf("%s: %v", c.Source, c.Err))
		}
	}
	return out
}

// Succeeded reports how many adapters returned without error.
func (r Round) Succeeded() int {
	n := 0
	for _, c := range r.Calls {
		if c.Err == nil {
			n++
		}
	}
	return n
}

// Coordinator runs retrieval rounds over a source registry.
type Coordinator struct {
	registry *source.Registry
	cfg      types.RetrievalConfig
	backoff  httputil.Backoff
	sink     metrics.Sink
	log      *slog.Logger
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithSink sets the metrics sink (default metrics.Noop).
func WithSink(s metrics.Sink) Option {
	return func(c *Coordinator) { c.sink = s }
}

// WithLogger sets the logger (default component "retrieval").
func WithLogger(l *slog.Logger) Option {
	return func(c *Coordinator) { c.log = l }
}

// New returns a coordinator. Zero-valued timing fields in cfg fall back to
// defaults.
func New(reg *source.Registry, cfg types.RetrievalConfig, opts ...Option) *Coordinator {
	def := types.DefaultConfig().Retrieval
	if cfg.AdapterTimeout <= 0 {
		cfg.AdapterTimeout = def.AdapterTimeout
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}

	b := httputil.DefaultBackoff()
	if cfg.BackoffBase > 0 {
		b.Base = cfg.BackoffBase
	}
	if cfg.BackoffMax > 0 {
		b.Max = cfg.BackoffMax
	}
	if cfg.Jitter > 0 {
		b.Jitter = cfg.Jitter
	}

	c := &Coordinator{
		registry: reg,
		cfg:      cfg,
		backoff:  b,
		sink:     metrics.Noop{},
		log:      logging.New("retrieval"),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Registry returns the coordinator's source registry.
func (c *Coordinator) Registry() *source.Registry { return c.registry }

type callResult struct {
	idx        int
	candidates []types.EvidenceCandidate
	report     CallReport
}

// Retrieve issues one concurrent search per routed adapter. Each call runs
// under its own timeout; the round as a whole is bounded by RoundDeadline
// and by ctx. Calls still running when the round ends are abandoned and
// their results discarded. Candidates are returned grouped by adapter in
// priority order, so the output does not depend on completion order.
func (c *Coordinator) Retrieve(ctx context.Context, round int, variants []string, routing types.Routing, cons types.Constraints) Round {
	start := time.Now()
	adapters := c.registry.Select(routing)
	out := Round{Number: round}
	if len(adapters) == 0 {
		c.log.Warn("no adapters routed", "round", round)
		return out
	}

	var (
		roundCtx context.Context
		cancel   context.CancelFunc
	)
	if c.cfg.RoundDeadline > 0 {
		roundCtx, cancel = context.WithTimeout(ctx, c.cfg.RoundDeadline)
	} else {
		roundCtx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	// Buffered so abandoned goroutines never block on send.
	ch := make(chan callResult, len(adapters))
	for i, a := range adapters {
		go func() {
			ch <- c.call(roundCtx, i, a, variants, c.constraintsFor(a.Name(), cons))
		}()
	}

	results := collect(roundCtx, ch, len(adapters))

	for i, a := range adapters {
		r := results[i]
		if r == nil {
			r = &callResult{report: CallReport{
				Source:  a.Name(),
				Latency: time.Since(start),
				Status:  metrics.StatusAbandoned,
				Err:     fmt.Errorf("%w: %s abandoned at round deadline: %w", source.ErrAdapterFailure, a.Name(), context.Cause(roundCtx)),
			}}
		}
		c.report(round, r.report)
		out.Calls = append(out.Calls, r.report)
		out.Candidates = append(out.Candidates, r.candidates...)
	}
	out.Elapsed = time.Since(start)

	c.log.Info("retrieval round complete",
		"round", round,
		"adapters", len(adapters),
		"succeeded", out.Succeeded(),
		"candidates", len(out.Candidates),
		"elapsed", out.Elapsed)
	return out
}

// collect gathers up to n results from ch, indexed by call, until all
// arrive or ctx ends. Results already buffered when ctx ends are kept;
// missing calls are left nil.
func collect(ctx context.Context, ch <-chan callResult, n int) []*callResult {
	results := make([]*callResult, n)
	pending := n
	for pending > 0 {
		select {
		case r := <-ch:
			results[r.idx] = &r
			pending--
		case <-ctx.Done():
			for pending > 0 {
				select {
				case r := <-ch:
					results[r.idx] = &r
					pending--
				default:
					return results
				}
			}
		}
	}
	return results
}

// constraintsFor applies the per-source MaxResults when the caller left it unset.
func (c *Coordinator) constraintsFor(s types.Source, cons types.Constraints) types.Constraints {
	if cons.MaxResults <= 0 {
		cons.MaxResults = c.cfg.Source(s).MaxResults
	}
	return cons
}

// call runs one adapter, retrying rate-limited attempts with jittered
// backoff up to MaxAttempts. A panic in the adapter is recovered as a
// failure of that adapter alone.
func (c *Coordinator) call(ctx context.Context, idx int, a source.Adapter, variants []string, cons types.Constraints) (res callResult) {
	start := time.Now()
	res = callResult{idx: idx, report: CallReport{Source: a.Name()}}
	defer func() {
		if p := recover(); p != nil {
			res.candidates = nil
			res.report.Err = fmt.Errorf("%w: %s panicked: %v", source.ErrAdapterFailure, a.Name(), p)
			res.report.Status = metrics.StatusError
		}
		res.report.Latency = time.Since(start)
	}()

	var err error
	for attempt := 0; attempt < c.cfg.MaxAttempts; attempt++ {
		res.report.Attempts = attempt + 1

		callCtx, cancel := context.WithTimeout(ctx, c.cfg.AdapterTimeout)
		res.candidates, err = a.Search(callCtx, variants, cons)
		cancel()
		if err == nil || !errors.Is(err, source.ErrRateLimited) {
			break
		}
		if attempt == c.cfg.MaxAttempts-1 {
			err = fmt.Errorf("%w: %s still rate limited after %d attempts: %w",
				source.ErrAdapterFailure, a.Name(), attempt+1, err)
			break
		}

		delay := c.backoff.Next(attempt)
		var rl *source.RateLimitError
		if errors.As(err, &rl) && rl.RetryAfter > delay {
			delay = rl.RetryAfter
		}
		c.log.Debug("rate limited, backing off", "source", a.Name(), "attempt", attempt+1, "delay", delay)
		if sleepErr := httputil.Sleep(ctx, delay); sleepErr != nil {
			err = fmt.Errorf("%w: %s: %w", source.ErrAdapterFailure, a.Name(), sleepErr)
			break
		}
	}

	if err != nil {
		res.candidates = nil
	}
	res.report.Err = err
	res.report.Count = len(res.candidates)
	res.report.Status = status(err, len(res.candidates))
	return res
}

func status(err error, n int) string {
	switch {
	case err == nil && n == 0:
		return metrics.StatusEmpty
	case err == nil:
		return metrics.StatusOK
	case errors.Is(err, source.ErrRateLimited):
		return metrics.StatusRateLimited
	case errors.Is(err, context.DeadlineExceeded):
		return metrics.StatusTimeout
	default:
		return metrics.StatusError
	}
}

func (c *Coordinator) report(round int, r CallReport) {
	c.sink.AdapterCall(metrics.AdapterEvent{
		Source:   r.Source,
		Round:    round,
		Attempts: r.Attempts,
		Latency:  r.Latency,
		Count:    r.Count,
		Status:   r.Status,
		Err:      r.Err,
	})
	if r.Err != nil {
		c.log.Warn("adapter failed",
			"source", r.Source, "round", round, "status", r.Status,
			"attempts", r.Attempts, "latency", r.Latency, "error", r.Err)
		return
	}
	c.log.Debug("adapter returned",
		"source", r.Source, "round", round, "count", r.Count, "latency", r.Latency)
}
