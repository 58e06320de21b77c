// Package cache keeps ranked result lists in Redis. Keys are derived from the
// analyzed query terms and only the settings the chosen model actually reads,
// so "Ayam Goreng" and "goreng ayam" share an entry under vsm and bm25.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/corpus-retrieval/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/corpus-retrieval/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/corpus-retrieval/internal/searcher/ranker"
	"github.com/Adithya-Monish-Kumar-K/corpus-retrieval/internal/searcher/vectorizer"
	"github.com/Adithya-Monish-Kumar-K/corpus-retrieval/pkg/metrics"
	pkgredis "github.com/Adithya-Monish-Kumar-K/corpus-retrieval/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/corpus-retrieval/pkg/resilience"
	"github.com/Adithya-Monish-Kumar-K/corpus-retrieval/pkg/tracing"
	"golang.org/x/sync/singleflight"
)

const keyPrefix = "rank:"

// Store is the subset of the Redis client the cache needs.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	FlushByPattern(ctx context.Context, pattern string) (int64, error)
}

// Key identifies one ranking request after parsing and analysis.
type Key struct {
	Model     ranker.Model
	Weighting vectorizer.Weighting
	Operator  index.Operator
	K         int
	Tokens    []string
}

// String is the canonical form hashed into the Redis key. Term order never
// changes a score, so tokens are sorted; duplicates are kept because vsm
// counts them.
func (k Key) String() string {
	tokens := append([]string(nil), k.Tokens...)
	sort.Strings(tokens)
	parts := []string{string(k.Model)}
	switch k.Model {
	case ranker.VSM:
		parts = append(parts, string(k.Weighting))
	case ranker.Boolean:
		parts = append(parts, string(k.Operator))
	}
	parts = append(parts, fmt.Sprintf("k=%d", k.K), strings.Join(tokens, ","))
	return strings.Join(parts, "|")
}

func (k Key) redisKey(generation string) string {
	hash := sha256.Sum256([]byte(k.String()))
	return fmt.Sprintf("%s%s:%x", keyPrefix, generation, hash[:16])
}

// ResultCache caches []ranker.Result per Key. Redis failures degrade to
// computing every request; a circuit breaker stops the cache from adding
// latency while Redis is down.
type ResultCache struct {
	store      Store
	ttl        time.Duration
	generation string
	group      singleflight.Group
	breaker    *resilience.CircuitBreaker
	metrics    *metrics.Metrics
	logger     *slog.Logger
	hits       atomic.Int64
	misses     atomic.Int64
}

// New returns a cache writing entries with ttl. generation namespaces the
// keys, typically a fingerprint of the loaded corpus and scoring options, so
// a service restarted on different data never serves stale rankings. m may be
// nil.
func New(store Store, ttl time.Duration, generation string, m *metrics.Metrics) *ResultCache {
	c := &ResultCache{
		store:      store,
		ttl:        ttl,
		generation: generation,
		metrics:    m,
		logger:     slog.Default().With("component", "result-cache"),
	}
	c.breaker = resilience.NewCircuitBreaker("redis-cache", resilience.CircuitBreakerConfig{
		FailureThreshold: 5,
		ResetTimeout:     15 * time.Second,
		OnStateChange: func(name string, to resilience.State) {
			if m != nil {
				m.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
			}
		},
	})
	return c
}

// Get looks key up. Any failure, including an open circuit, counts as a miss.
func (c *ResultCache) Get(ctx context.Context, key Key) ([]ranker.Result, bool) {
	rk := key.redisKey(c.generation)
	var data []byte
	err := c.breaker.Execute(func() error {
		var err error
		data, err = c.store.Get(ctx, rk)
		if pkgredis.IsNilError(err) {
			return nil
		}
		return err
	})
	if err != nil {
		c.logger.Warn("cache get failed", "key", rk, "error", err)
		c.recordMiss()
		return nil, false
	}
	if data == nil {
		c.recordMiss()
		return nil, false
	}
	var results []ranker.Result
	if err := json.Unmarshal(data, &results); err != nil {
		c.logger.Error("cache unmarshal failed", "key", rk, "error", err)
		c.recordMiss()
		return nil, false
	}
	c.recordHit()
	c.logger.Debug("cache hit", "key", rk, "results", len(results))
	return results, true
}

// Set stores results under key. Errors are logged, never returned: a cache
// write must not fail the request that produced the results.
func (c *ResultCache) Set(ctx context.Context, key Key, results []ranker.Result) {
	rk := key.redisKey(c.generation)
	data, err := json.Marshal(results)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", rk, "error", err)
		return
	}
	err = c.breaker.Execute(func() error {
		return c.store.Set(ctx, rk, data, c.ttl)
	})
	if err != nil {
		c.logger.Warn("cache set failed", "key", rk, "error", err)
	}
}

// GetOrCompute returns the cached results for key or runs compute once per key
// across concurrent callers and caches its output. The bool reports a hit.
func (c *ResultCache) GetOrCompute(
	ctx context.Context,
	key Key,
	compute func() ([]ranker.Result, error),
) ([]ranker.Result, bool, error) {
	_, span := tracing.StartChildSpan(ctx, "cache.get")
	results, ok := c.Get(ctx, key)
	span.SetAttr("hit", ok)
	span.End()
	if ok {
		return results, true, nil
	}
	val, err, _ := c.group.Do(key.redisKey(c.generation), func() (any, error) {
		results, err := compute()
		if err != nil {
			return nil, err
		}
		c.Set(ctx, key, results)
		return results, nil
	})
	if err != nil {
		return nil, false, err
	}
	return val.([]ranker.Result), false, nil
}

// Invalidate removes every entry of the current generation.
func (c *ResultCache) Invalidate(ctx context.Context) (int64, error) {
	pattern := keyPrefix + c.generation + ":*"
	deleted, err := c.store.FlushByPattern(ctx, pattern)
	if err != nil {
		return deleted, fmt.Errorf("invalidating cache: %w", err)
	}
	c.logger.Info("cache invalidated", "keys_deleted", deleted)
	return deleted, nil
}

func (c *ResultCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

// Breaker reports the Redis circuit state and how many calls it rejected.
func (c *ResultCache) Breaker() resilience.BreakerStats {
	return c.breaker.Stats()
}

func (c *ResultCache) recordHit() {
	c.hits.Add(1)
	if c.metrics != nil {
		c.metrics.CacheHitsTotal.Inc()
	}
}

func (c *ResultCache) recordMiss() {
	c.misses.Add(1)
	if c.metrics != nil {
		c.metrics.CacheMissesTotal.Inc()
	}
}

// Generation fingerprints a corpus and the scoring options in effect, for use
// as the key namespace passed to New.
func Generation(c *corpus.Corpus, options ...string) string {
	h := sha256.New()
	for _, doc := range c.Documents() {
		fmt.Fprintf(h, "%s:%d;", doc.ID, len(doc.Tokens))
	}
	for _, o := range options {
		fmt.Fprintf(h, "%s;", o)
	}
	return fmt.Sprintf("%x", h.Sum(nil)[:6])
}
