// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/pdiddy/evidence-engine/internal/guidelines"
	"github.com/pdiddy/evidence-engine/internal/logging"
	"github.com/pdiddy/evidence-engine/internal/metrics"
	"github.com/pdiddy/evidence-engine/internal/pipeline"
	"github.com/pdiddy/evidence-engine/internal/rerank"
	"github.com/pdiddy/evidence-engine/internal/retrieval"
	"github.com/pdiddy/evidence-engine/internal/source"
	"github.com/pdiddy/evidence-engine/internal/synthesis"
	"github.com/pdiddy/evidence-engine/pkg/types"
)

// app holds the assembled pipeline and everything that must be closed with it.
type app struct {
	pipeline *pipeline.Pipeline
	registry *source.Registry
	gatherer prometheus.Gatherer
	closers  []func() error
}

// newApp wires the pipeline from cfg. Optional services degrade rather than
// fail: without a guideline index the guidelines source is absent, without
// an embedding key reranking falls back to lexical order, and an unreachable
// Redis is replaced by the in-memory cache.
func newApp(ctx context.Context, cfg types.Config, withMetrics bool) (*app, error) {
	log := logging.New("cli")
	a := &app{}

	var idx source.GuidelineIndex
	store, err := guidelines.NewStore(cfg.Guidelines)
	if err != nil {
		log.Warn("guideline index unavailable", "error", err)
	} else {
		idx = store
		a.closers = append(a.closers, store.Close)
	}
	a.registry = source.FromConfig(cfg.Retrieval, idx)

	var sink metrics.Sink = metrics.Noop{}
	if withMetrics {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		rec, err := metrics.NewRecorder(reg)
		if err != nil {
			a.Close()
			return nil, err
		}
		sink, a.gatherer = rec, reg
	}

	cache, err := rerank.NewCache(ctx, cfg.Rerank)
	if err != nil {
		log.Warn("rerank cache unavailable, using memory", "backend", cfg.Rerank.CacheBackend, "error", err)
		cache = rerank.NewMemoryCache(cfg.Rerank.CacheTTL, cfg.Rerank.CacheMaxEntries)
	}
	if rc, ok := cache.(*rerank.RedisCache); ok {
		a.closers = append(a.closers, rc.Close)
	}

	var emb rerank.Embedder
	if cfg.Embedding.APIKey != "" {
		emb = rerank.NewHTTPEmbedder(cfg.Embedding)
	} else {
		log.Warn("no embedding API key; reranking uses lexical scores only")
	}

	var gen synthesis.Generator
	if cfg.Synthesis.APIKey != "" {
		gen = synthesis.NewHTTPGenerator(cfg.Synthesis.AIConfig)
	}

	coord := retrieval.New(a.registry, cfg.Retrieval, retrieval.WithSink(sink))
	rr := rerank.New(emb, cfg.Rerank, rerank.WithCache(cache))
	gate := synthesis.New(gen, cfg.Synthesis)
	a.pipeline = pipeline.New(coord, rr, gate, cfg, pipeline.WithSink(sink))
	return a, nil
}

// requireGenerator reports a missing synthesis key before any retrieval runs.
func requireGenerator(cfg types.Config) error {
	if cfg.Synthesis.APIKey == "" {
		return errors.New("no synthesis API key: set synthesis.api_key, EVIDENCE_ENGINE_SYNTHESIS_API_KEY, or .secrets/openai-api-key")
	}
	return nil
}

// Close releases the app's resources.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	return errors.Join(errs...)
}
