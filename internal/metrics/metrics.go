// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package metrics records adapter-call and answer events. The retrieval
// coordinator and pipeline report to a Sink; Recorder exports them as
// Prometheus metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pdiddy/evidence-engine/pkg/types"
)

// Adapter call outcomes.
const (
	StatusOK          = "ok"
	StatusEmpty       = "empty"
	StatusError       = "error"
	StatusTimeout     = "timeout"
	StatusRateLimited = "rate_limited"
	StatusAbandoned   = "abandoned"
)

// AdapterEvent describes one completed (or abandoned) adapter call.
type AdapterEvent struct {
	Source   types.Source
	Round    int
	Attempts int
	Latency  time.Duration
	Count    int
	Status   string
	Err      error
}

// Sink receives pipeline events. Implementations must be safe for
// concurrent use.
type Sink interface {
	AdapterCall(AdapterEvent)
	Answer(*types.Answer)
}

// Noop discards every event.
type Noop struct{}

func (Noop) AdapterCall(AdapterEvent) {}
func (Noop) Answer(*types.Answer)     {}

// Recorder exports events as Prometheus collectors.
type Recorder struct {
	adapterLatency *prometheus.HistogramVec
	adapterResults *prometheus.CounterVec
	adapterCalls   *prometheus.CounterVec
	answers        *prometheus.CounterVec
	grounding      prometheus.Histogram
	answerLatency  prometheus.Histogram
	cost           prometheus.Counter
	fallbacks      prometheus.Counter
}

// NewRecorder creates the collectors and registers them with reg.
func NewRecorder(reg prometheus.Registerer) (*Recorder, error) {
	r := &Recorder{
		adapterLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "evidence",
			Name:      "adapter_call_seconds",
			Help:      "Latency of evidence source adapter calls.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		}, []string{"source", "status"}),
		adapterResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "evidence",
			Name:      "adapter_results_total",
			Help:      "Candidates returned by evidence source adapters.",
		}, []string{"source"}),
		adapterCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "evidence",
			Name:      "adapter_calls_total",
			Help:      "Adapter calls by outcome.",
		}, []string{"source", "status"}),
		answers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "evidence",
			Name:      "answers_total",
			Help:      "Pipeline runs by answer status.",
		}, []string{"status"}),
		grounding: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "evidence",
			Name:      "grounding_score",
			Help:      "Grounding score of synthesized answers.",
			Buckets:   prometheus.LinearBuckets(0, 0.1, 11),
		}),
		answerLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "evidence",
			Name:      "answer_seconds",
			Help:      "End-to-end pipeline latency.",
			Buckets:   prometheus.ExponentialBuckets(0.25, 2, 10),
		}),
		cost: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "evidence",
			Name:      "generation_cost_usd_total",
			Help:      "Accumulated generation cost in USD.",
		}),
		fallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "evidence",
			Name:      "fallback_rounds_total",
			Help:      "Gap-triggered fallback retrieval rounds.",
		}),
	}

	for _, c := range []prometheus.Collector{
		r.adapterLatency, r.adapterResults, r.adapterCalls,
		r.answers, r.grounding, r.answerLatency, r.cost, r.fallbacks,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// AdapterCall records one adapter call.
func (r *Recorder) AdapterCall(e AdapterEvent) {
	src := string(e.Source)
	r.adapterLatency.WithLabelValues(src, e.Status).Observe(e.Latency.Seconds())
	r.adapterCalls.WithLabelValues(src, e.Status).Inc()
	if e.Count > 0 {
		r.adapterResults.WithLabelValues(src).Add(float64(e.Count))
	}
}

// Answer records the outcome of one pipeline run.
func (r *Recorder) Answer(a *types.Answer) {
	if a == nil {
		return
	}
	r.answers.WithLabelValues(string(a.Status)).Inc()
	r.answerLatency.Observe(a.Metadata.Elapsed.Seconds())
	if a.Verification != nil {
		r.grounding.Observe(a.Metadata.GroundingScore)
	}
	if a.Metadata.CostUSD > 0 {
		r.cost.Add(a.Metadata.CostUSD)
	}
	if a.Metadata.FallbackUsed {
		r.fallbacks.Inc()
	}
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
