// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package rerank

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/evidence-engine/internal/logging"
	"github.com/pdiddy/evidence-engine/pkg/types"
)

// fakeEmbedder embeds the query as [1,0] and each candidate text as the
// unit vector at the angle whose cosine is sims[text].
type fakeEmbedder struct {
	sims       map[string]float64
	err        error
	batchCalls atomic.Int32
	queryCalls atomic.Int32
}

func (f *fakeEmbedder) Model() string { return "fake-v1" }

func (f *fakeEmbedder) Embed(_ context.Context, _ string) ([]float64, error) {
	f.queryCalls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return []float64{1, 0}, nil
}

func (f *fakeEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float64, error) {
	f.batchCalls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float64, len(texts))
	for i, t := range texts {
		out[i] = unitVec(f.sims[t])
	}
	return out, nil
}

func unitVec(c float64) []float64 {
	return []float64{c, math.Sqrt(1 - c*c)}
}

func cands(n int, lex float64) ([]types.EvidenceCandidate, map[string]float64) {
	sims := make(map[string]float64)
	var out []types.EvidenceCandidate
	for i := 0; i < n; i++ {
		c := types.EvidenceCandidate{
			Source:       types.SourcePubMed,
			ID:           fmt.Sprintf("%02d", i),
			Title:        fmt.Sprintf("title %02d", i),
			LexicalScore: lex,
		}
		out = append(out, c)
		sims[c.Text()] = 0.9 - float64(i)*0.05
	}
	return out, sims
}

func cfg() types.RerankConfig {
	c := types.DefaultConfig().Rerank
	c.CacheBackend = types.CacheNone
	return c
}

func TestRerank_ThresholdAndOrder(t *testing.T) {
	in, sims := cands(12, 50)
	// Reverse the incoming order; ranking must restore it.
	for i, j := 0, len(in)-1; i < j; i, j = i+1, j-1 {
		in[i], in[j] = in[j], in[i]
	}
	emb := &fakeEmbedder{sims: sims}
	c := cfg()
	// The tenth candidate sits exactly on the threshold.
	boundary, err := Cosine([]float64{1, 0}, unitVec(sims["title 09"]))
	require.NoError(t, err)
	c.MinSimilarity = boundary
	r := New(emb, c, WithLogger(logging.Discard()))

	res := r.Rerank(context.Background(), "q", in)
	assert.False(t, res.Bypassed)
	assert.False(t, res.Degraded)

	require.Len(t, res.Scored, 10)
	assert.Len(t, res.Dropped, 2)
	assert.Equal(t, "00", res.Scored[0].Candidate.ID)
	assert.Equal(t, "09", res.Scored[9].Candidate.ID, "similarity equal to the threshold is kept")
	assert.InDelta(t, 0.7*0.9+0.3*0.5, res.Scored[0].Score, 1e-9)
	assert.InDelta(t, 0.9, res.Scored[0].Similarity, 1e-9)

	assert.Equal(t, int32(1), emb.batchCalls.Load(), "candidates are embedded in one batch")
	assert.Equal(t, int32(1), emb.queryCalls.Load())
}

func TestRerank_TiesBrokenByKey(t *testing.T) {
	in, sims := cands(10, 0)
	for k := range sims {
		sims[k] = 0.8
	}
	res := New(&fakeEmbedder{sims: sims}, cfg(), WithLogger(logging.Discard())).
		Rerank(context.Background(), "q", []types.EvidenceCandidate{in[3], in[1], in[2], in[0], in[4], in[5], in[6], in[7], in[8], in[9]})
	require.Len(t, res.Scored, 10)
	for i, sc := range res.Scored {
		assert.Equal(t, fmt.Sprintf("%02d", i), sc.Candidate.ID)
	}
}

func TestRerank_Idempotent(t *testing.T) {
	in, sims := cands(15, 40)
	r := New(&fakeEmbedder{sims: sims}, cfg(), WithLogger(logging.Discard()))
	first := r.Rerank(context.Background(), "q", in)
	second := r.Rerank(context.Background(), "q", in)
	if diff := cmp.Diff(first.Scored, second.Scored); diff != "" {
		t.Errorf("rerank not idempotent (-first +second):\n%s", diff)
	}
}

func TestRerank_SmallNBypass(t *testing.T) {
	in, sims := cands(9, 60)
	emb := &fakeEmbedder{sims: sims}
	res := New(emb, cfg(), WithLogger(logging.Discard())).Rerank(context.Background(), "q", in)

	assert.True(t, res.Bypassed)
	require.Len(t, res.Scored, 9)
	for i, sc := range res.Scored {
		assert.Equal(t, in[i].Key(), sc.Candidate.Key())
		assert.InDelta(t, 0.6, sc.Score, 1e-9)
		assert.Zero(t, sc.Similarity)
	}
	assert.Zero(t, emb.batchCalls.Load())
}

func TestRerank_DegradesOnFailure(t *testing.T) {
	in, sims := cands(12, 30)
	boom := errors.New("service unavailable")
	res := New(&fakeEmbedder{sims: sims, err: boom}, cfg(), WithLogger(logging.Discard())).
		Rerank(context.Background(), "q", in)

	assert.True(t, res.Degraded)
	assert.ErrorIs(t, res.Err, boom)
	require.Len(t, res.Scored, 12)
	for i, sc := range res.Scored {
		assert.Equal(t, in[i].Key(), sc.Candidate.Key())
	}

	res = New(nil, cfg(), WithLogger(logging.Discard())).Rerank(context.Background(), "q", in)
	assert.True(t, res.Degraded)
}

func TestRerank_Empty(t *testing.T) {
	res := New(&fakeEmbedder{}, cfg()).Rerank(context.Background(), "q", nil)
	assert.Empty(t, res.Scored)
	assert.False(t, res.Degraded)
}

func TestRerank_Cache(t *testing.T) {
	in, sims := cands(12, 50)
	emb := &fakeEmbedder{sims: sims}
	cache := NewMemoryCache(time.Minute, 8)
	r := New(emb, cfg(), WithCache(cache), WithLogger(logging.Discard()))

	first := r.Rerank(context.Background(), "q", in)
	assert.False(t, first.CacheHit)
	second := r.Rerank(context.Background(), "q", in)
	assert.True(t, second.CacheHit)
	assert.Equal(t, int32(1), emb.batchCalls.Load())
	assert.Empty(t, cmp.Diff(first.Scored, second.Scored))

	// Same query, different candidate set: a miss.
	third := r.Rerank(context.Background(), "q", in[:11])
	assert.False(t, third.CacheHit)
	assert.Equal(t, int32(2), emb.batchCalls.Load())
}

func TestSignature(t *testing.T) {
	in, _ := cands(3, 0)
	base := Signature("m", "q", in)
	assert.Equal(t, base, Signature("m", "q", in))
	assert.NotEqual(t, base, Signature("m2", "q", in), "model is part of the key")
	assert.NotEqual(t, base, Signature("m", "q2", in), "query is part of the key")
	assert.NotEqual(t, base, Signature("m", "q", in[:2]), "candidate set is part of the key")

	swapped := []types.EvidenceCandidate{in[1], in[0], in[2]}
	assert.NotEqual(t, base, Signature("m", "q", swapped), "order is part of the key")

	edited := append([]types.EvidenceCandidate(nil), in...)
	edited[0].Body = "changed"
	assert.NotEqual(t, base, Signature("m", "q", edited), "text is part of the key")
}

func TestCosine(t *testing.T) {
	s, err := Cosine([]float64{1, 0}, []float64{0, 1})
	require.NoError(t, err)
	assert.InDelta(t, 0, s, 1e-12)

	s, err = Cosine([]float64{2, 2}, []float64{1, 1})
	require.NoError(t, err)
	assert.InDelta(t, 1, s, 1e-12)

	s, err = Cosine([]float64{0, 0}, []float64{1, 1})
	require.NoError(t, err)
	assert.Zero(t, s)

	_, err = Cosine([]float64{1}, []float64{1, 2})
	assert.ErrorIs(t, err, ErrEmbedding)
}
