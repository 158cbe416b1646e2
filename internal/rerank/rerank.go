// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package rerank orders filtered candidates by embedding similarity to the
// query blended with their lexical score. Small sets bypass the embedding
// call and embedding failures degrade to the incoming order.
package rerank

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/pdiddy/evidence-engine/internal/logging"
	"github.com/pdiddy/evidence-engine/pkg/types"
)

// Result is the outcome of one reranking pass.
type Result struct {
	// Scored holds the retained candidates, best first.
	Scored []types.ScoredCandidate

	// Dropped holds candidates below the similarity threshold.
	Dropped []types.EvidenceCandidate

	Bypassed bool
	Degraded bool
	CacheHit bool

	// Err is the embedding failure behind a degraded result.
	Err error
}

// Reranker scores candidates against a query. It is safe for concurrent use
// when its Embedder and Cache are.
type Reranker struct {
	emb   Embedder
	cache Cache
	cfg   types.RerankConfig
	log   *slog.Logger
}

// Option configures a Reranker.
type Option func(*Reranker)

// WithCache sets the similarity cache. A nil cache disables caching.
func WithCache(c Cache) Option {
	return func(r *Reranker) { r.cache = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Reranker) { r.log = l }
}

// New returns a Reranker using emb. Zero weights fall back to the defaults.
func New(emb Embedder, cfg types.RerankConfig, opts ...Option) *Reranker {
	if cfg.SemanticWeight == 0 && cfg.LexicalWeight == 0 {
		def := types.DefaultConfig().Rerank
		cfg.SemanticWeight, cfg.LexicalWeight = def.SemanticWeight, def.LexicalWeight
	}
	r := &Reranker{emb: emb, cfg: cfg}
	for _, o := range opts {
		o(r)
	}
	if r.log == nil {
		r.log = logging.New("rerank")
	}
	return r
}

// Rerank returns the candidates at or above the similarity threshold,
// ordered by the combined score with ties broken by identity key. It never
// fails: below the small-N cutoff or on embedding failure the candidates
// pass through in incoming order scored by lexical score alone.
func (r *Reranker) Rerank(ctx context.Context, query string, cands []types.EvidenceCandidate) Result {
	if len(cands) == 0 {
		return Result{}
	}
	if len(cands) < r.cfg.SmallNCutoff {
		r.log.Debug("rerank bypassed", "count", len(cands), "cutoff", r.cfg.SmallNCutoff)
		return Result{Scored: passThrough(cands), Bypassed: true}
	}
	if r.emb == nil {
		return r.degrade(cands, errors.New("no embedder configured"))
	}

	sig := Signature(r.emb.Model(), query, cands)
	if r.cache != nil {
		if sims, ok := r.cache.Get(ctx, sig); ok && len(sims) == len(cands) {
			res := r.score(cands, sims)
			res.CacheHit = true
			return res
		}
	}

	sims, err := r.similarities(ctx, query, cands)
	if err != nil {
		return r.degrade(cands, err)
	}
	if r.cache != nil {
		r.cache.Set(ctx, sig, sims)
	}
	res := r.score(cands, sims)
	r.log.Debug("reranked", "in", len(cands), "kept", len(res.Scored), "dropped", len(res.Dropped))
	return res
}

// similarities embeds the query and the candidate batch concurrently.
func (r *Reranker) similarities(ctx context.Context, query string, cands []types.EvidenceCandidate) ([]float64, error) {
	texts := make([]string, len(cands))
	for i, c := range cands {
		texts[i] = c.Text()
	}

	var (
		qv []float64
		cv [][]float64
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		v, err := r.emb.Embed(gctx, query)
		qv = v
		return err
	})
	g.Go(func() error {
		v, err := r.emb.EmbedBatch(gctx, texts)
		cv = v
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if len(cv) != len(cands) {
		return nil, fmt.Errorf("%w: got %d vectors for %d candidates", ErrEmbedding, len(cv), len(cands))
	}

	sims := make([]float64, len(cands))
	for i, v := range cv {
		s, err := Cosine(qv, v)
		if err != nil {
			return nil, err
		}
		sims[i] = s
	}
	return sims, nil
}

func (r *Reranker) score(cands []types.EvidenceCandidate, sims []float64) Result {
	var res Result
	for i, c := range cands {
		if sims[i] < r.cfg.MinSimilarity {
			res.Dropped = append(res.Dropped, c)
			continue
		}
		res.Scored = append(res.Scored, types.ScoredCandidate{
			Candidate:  c,
			Similarity: sims[i],
			Score:      clamp01(r.cfg.SemanticWeight*sims[i] + r.cfg.LexicalWeight*c.LexicalScore/100),
		})
	}
	sort.SliceStable(res.Scored, func(i, j int) bool {
		a, b := res.Scored[i], res.Scored[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		return a.Candidate.Key() < b.Candidate.Key()
	})
	return res
}

func (r *Reranker) degrade(cands []types.EvidenceCandidate, err error) Result {
	r.log.Warn("rerank degraded to incoming order", "count", len(cands), "error", err)
	return Result{Scored: passThrough(cands), Degraded: true, Err: err}
}

func passThrough(cands []types.EvidenceCandidate) []types.ScoredCandidate {
	out := make([]types.ScoredCandidate, len(cands))
	for i, c := range cands {
		out[i] = types.ScoredCandidate{Candidate: c, Score: clamp01(c.LexicalScore / 100)}
	}
	return out
}

// Cosine returns the cosine similarity of a and b. A zero vector has
// similarity 0 with everything.
func Cosine(a, b []float64) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: dimension mismatch %d != %d", ErrEmbedding, len(a), len(b))
	}
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0, nil
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb)), nil
}

func clamp01(x float64) float64 {
	return math.Min(math.Max(x, 0), 1)
}
