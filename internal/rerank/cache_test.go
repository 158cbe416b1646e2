// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package rerank

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/evidence-engine/pkg/types"
)

func TestMemoryCache_TTL(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewMemoryCache(time.Minute, 4)
	c.now = func() time.Time { return now }
	ctx := context.Background()

	c.Set(ctx, "a", []float64{0.5})
	got, ok := c.Get(ctx, "a")
	require.True(t, ok)
	assert.Equal(t, []float64{0.5}, got)

	got[0] = 9
	again, _ := c.Get(ctx, "a")
	assert.Equal(t, 0.5, again[0], "Get returns a copy")

	now = now.Add(time.Minute)
	_, ok = c.Get(ctx, "a")
	assert.False(t, ok, "entry expires at TTL")
	assert.Zero(t, c.Len())
}

func TestMemoryCache_Bounded(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewMemoryCache(time.Hour, 2)
	c.now = func() time.Time { return now }
	ctx := context.Background()

	c.Set(ctx, "first", []float64{1})
	now = now.Add(time.Second)
	c.Set(ctx, "second", []float64{2})
	now = now.Add(time.Second)
	c.Set(ctx, "third", []float64{3})

	assert.Equal(t, 2, c.Len())
	_, ok := c.Get(ctx, "first")
	assert.False(t, ok, "oldest entry evicted")
	_, ok = c.Get(ctx, "third")
	assert.True(t, ok)
}

func TestNewCache(t *testing.T) {
	ctx := context.Background()

	c, err := NewCache(ctx, types.RerankConfig{CacheBackend: types.CacheNone})
	require.NoError(t, err)
	assert.Nil(t, c)

	c, err = NewCache(ctx, types.RerankConfig{CacheBackend: types.CacheMemory, CacheTTL: time.Minute})
	require.NoError(t, err)
	assert.IsType(t, &MemoryCache{}, c)

	_, err = NewCache(ctx, types.RerankConfig{CacheBackend: types.CacheRedis})
	assert.Error(t, err)

	_, err = NewCache(ctx, types.RerankConfig{CacheBackend: "disk"})
	assert.Error(t, err)
}

func newTestRedis(t *testing.T, ttl time.Duration) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rc, err := NewRedisCache(context.Background(), mr.Addr(), "", 0, ttl)
	require.NoError(t, err)
	t.Cleanup(func() { rc.Close() })
	return rc, mr
}

func TestRedisCache(t *testing.T) {
	rc, mr := newTestRedis(t, time.Minute)
	ctx := context.Background()

	sig := Signature("m", "redis test", nil)
	rc.Set(ctx, sig, []float64{0.25, 0.75})
	got, ok := rc.Get(ctx, sig)
	require.True(t, ok)
	assert.Equal(t, []float64{0.25, 0.75}, got)

	assert.True(t, mr.Exists(redisKeyPrefix+sig), "entries live under the rerank prefix")
	assert.Equal(t, time.Minute, mr.TTL(redisKeyPrefix+sig))

	_, ok = rc.Get(ctx, "missing")
	assert.False(t, ok)
}

func TestRedisCache_TTLExpiry(t *testing.T) {
	rc, mr := newTestRedis(t, time.Minute)
	ctx := context.Background()

	rc.Set(ctx, "sig", []float64{1})
	mr.FastForward(59 * time.Second)
	_, ok := rc.Get(ctx, "sig")
	assert.True(t, ok)

	mr.FastForward(time.Second)
	_, ok = rc.Get(ctx, "sig")
	assert.False(t, ok, "entry expires at TTL")
}

func TestRedisCache_DefaultTTL(t *testing.T) {
	rc, mr := newTestRedis(t, 0)
	rc.Set(context.Background(), "sig", []float64{1})
	assert.Equal(t, types.DefaultConfig().Rerank.CacheTTL, mr.TTL(redisKeyPrefix+"sig"))
}

func TestRedisCache_CorruptValueIsMiss(t *testing.T) {
	rc, mr := newTestRedis(t, time.Minute)
	require.NoError(t, mr.Set(redisKeyPrefix+"sig", "not json"))

	_, ok := rc.Get(context.Background(), "sig")
	assert.False(t, ok)
}

func TestRedisCache_KeyedBySignatureNotQuery(t *testing.T) {
	rc, _ := newTestRedis(t, time.Minute)
	ctx := context.Background()

	a := []types.EvidenceCandidate{{Source: types.SourcePubMed, ID: "1", Title: "Trial A"}}
	b := []types.EvidenceCandidate{{Source: types.SourcePubMed, ID: "2", Title: "Trial B"}}
	rc.Set(ctx, Signature("m", "same question", a), []float64{0.9})

	_, ok := rc.Get(ctx, Signature("m", "same question", b))
	assert.False(t, ok, "same query with different candidates must miss")
}

func TestNewCache_Redis(t *testing.T) {
	mr := miniredis.RunT(t)
	c, err := NewCache(context.Background(), types.RerankConfig{CacheBackend: types.CacheRedis, RedisAddr: mr.Addr(), CacheTTL: time.Minute})
	require.NoError(t, err)
	rc, ok := c.(*RedisCache)
	require.True(t, ok)
	rc.Close()

	down, err := miniredis.Run()
	require.NoError(t, err)
	addr := down.Addr()
	down.Close()
	_, err = NewCache(context.Background(), types.RerankConfig{CacheBackend: types.CacheRedis, RedisAddr: addr})
	assert.Error(t, err, "unreachable server fails the PING")
}

func TestHTTPEmbedder(t *testing.T) {
	var gotAuth string
	var gotReq embeddingRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/embeddings", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		// Out of order on purpose.
		w.Write([]byte(`{"model":"m","data":[{"index":1,"embedding":[0,1]},{"index":0,"embedding":[1,0]}]}`))
	}))
	defer srv.Close()

	cfg := types.EmbeddingConfig{AIConfig: types.AIConfig{Model: "m", APIKey: "k", Endpoint: srv.URL + "/v1/"}}
	e := NewHTTPEmbedder(cfg)

	vecs, err := e.EmbedBatch(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{1, 0}, {0, 1}}, vecs)
	assert.Equal(t, "Bearer k", gotAuth)
	assert.Equal(t, embeddingRequest{Model: "m", Input: []string{"a", "b"}}, gotReq)
	assert.Equal(t, "m", e.Model())
}

func TestHTTPEmbedder_Errors(t *testing.T) {
	tests := []struct {
		name string
		code int
		body string
	}{
		{"server error", http.StatusInternalServerError, `oops`},
		{"short response", http.StatusOK, `{"data":[]}`},
		{"bad index", http.StatusOK, `{"data":[{"index":4,"embedding":[1]}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.code)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			e := NewHTTPEmbedder(types.EmbeddingConfig{AIConfig: types.AIConfig{Model: "m", Endpoint: srv.URL}})
			_, err := e.Embed(context.Background(), "a")
			assert.ErrorIs(t, err, ErrEmbedding)
		})
	}
}
