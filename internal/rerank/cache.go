// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package rerank

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/pdiddy/evidence-engine/pkg/types"
)

// Cache stores the similarity vector computed for one signature.
type Cache interface {
	Get(ctx context.Context, sig string) ([]float64, bool)
	Set(ctx context.Context, sig string, sims []float64)
}

// Signature hashes the embedding model, the query text, and every
// candidate's identity key and text, in order.
func Signature(model, query string, cands []types.EvidenceCandidate) string {
	h := sha256.New()
	write := func(s string) {
		h.Write([]byte(s))
		h.Write([]byte{0})
	}
	write(model)
	write(query)
	for _, c := range cands {
		write(c.Key())
		write(c.Text())
	}
	return hex.EncodeToString(h.Sum(nil))
}

type memoryEntry struct {
	sims    []float64
	expires time.Time
}

// MemoryCache is a bounded in-process cache with a fixed TTL.
type MemoryCache struct {
	mu         sync.Mutex
	entries    map[string]memoryEntry
	ttl        time.Duration
	maxEntries int

	now func() time.Time
}

// NewMemoryCache returns a cache holding at most maxEntries for ttl each.
func NewMemoryCache(ttl time.Duration, maxEntries int) *MemoryCache {
	if maxEntries <= 0 {
		maxEntries = 256
	}
	return &MemoryCache{
		entries:    make(map[string]memoryEntry),
		ttl:        ttl,
		maxEntries: maxEntries,
		now:        time.Now,
	}
}

// Get returns a copy of the cached similarities for sig.
func (m *MemoryCache) Get(_ context.Context, sig string) ([]float64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[sig]
	if !ok {
		return nil, false
	}
	if !m.now().Before(e.expires) {
		delete(m.entries, sig)
		return nil, false
	}
	return append([]float64(nil), e.sims...), true
}

// Set stores sims under sig, evicting expired entries first and then the
// entry closest to expiry when the cache is full.
func (m *MemoryCache) Set(_ context.Context, sig string, sims []float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	if _, exists := m.entries[sig]; !exists && len(m.entries) >= m.maxEntries {
		var oldest string
		var oldestAt time.Time
		for k, e := range m.entries {
			if !now.Before(e.expires) {
				delete(m.entries, k)
				continue
			}
			if oldest == "" || e.expires.Before(oldestAt) {
				oldest, oldestAt = k, e.expires
			}
		}
		if len(m.entries) >= m.maxEntries && oldest != "" {
			delete(m.entries, oldest)
		}
	}
	m.entries[sig] = memoryEntry{sims: append([]float64(nil), sims...), expires: now.Add(m.ttl)}
}

// Len returns the number of stored entries, expired ones included.
func (m *MemoryCache) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// redisKeyPrefix namespaces rerank entries in a shared Redis.
const redisKeyPrefix = "evidence:rerank:"

// RedisCache stores similarity vectors in Redis with a TTL. Errors are
// treated as misses; the reranker recomputes.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCache connects to addr and verifies the connection with PING.
// A non-positive ttl falls back to the default so entries always expire.
func NewRedisCache(ctx context.Context, addr, password string, db int, ttl time.Duration) (*RedisCache, error) {
	if ttl <= 0 {
		ttl = types.DefaultConfig().Rerank.CacheTTL
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connecting to redis at %s: %w", addr, err)
	}
	return &RedisCache{client: client, ttl: ttl}, nil
}

// Get reads the entry for sig.
func (r *RedisCache) Get(ctx context.Context, sig string) ([]float64, bool) {
	val, err := r.client.Get(ctx, redisKeyPrefix+sig).Bytes()
	if err != nil {
		return nil, false
	}
	var sims []float64
	if err := json.Unmarshal(val, &sims); err != nil {
		return nil, false
	}
	return sims, true
}

// Set writes sims for sig with the cache TTL.
func (r *RedisCache) Set(ctx context.Context, sig string, sims []float64) {
	data, err := json.Marshal(sims)
	if err != nil {
		return
	}
	r.client.Set(ctx, redisKeyPrefix+sig, data, r.ttl)
}

// Close releases the connection pool.
func (r *RedisCache) Close() error {
	return r.client.Close()
}

// NewCache builds the cache selected by cfg. CacheNone yields nil.
func NewCache(ctx context.Context, cfg types.RerankConfig) (Cache, error) {
	switch cfg.CacheBackend {
	case "", types.CacheNone:
		return nil, nil
	case types.CacheMemory:
		return NewMemoryCache(cfg.CacheTTL, cfg.CacheMaxEntries), nil
	case types.CacheRedis:
		if cfg.RedisAddr == "" {
			return nil, errors.New("redis cache selected but rerank.redis_addr is empty")
		}
		rc, err := NewRedisCache(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.CacheTTL)
		if err != nil {
			return nil, err
		}
		return rc, nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.CacheBackend)
	}
}
