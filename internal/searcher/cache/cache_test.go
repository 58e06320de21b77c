package cache

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/corpus-retrieval/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/corpus-retrieval/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/corpus-retrieval/internal/searcher/ranker"
	"github.com/Adithya-Monish-Kumar-K/corpus-retrieval/internal/searcher/vectorizer"
	"github.com/Adithya-Monish-Kumar-K/corpus-retrieval/pkg/metrics"
	pkgredis "github.com/Adithya-Monish-Kumar-K/corpus-retrieval/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/corpus-retrieval/pkg/resilience"
)

type memStore struct {
	mu   sync.Mutex
	data map[string][]byte
	err  error
}

func newMemStore() *memStore {
	return &memStore{data: make(map[string][]byte)}
}

func (m *memStore) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	v, ok := m.data[key]
	if !ok {
		return nil, pkgredis.ErrNil
	}
	return v, nil
}

func (m *memStore) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.data[key] = value
	return nil
}

func (m *memStore) FlushByPattern(_ context.Context, pattern string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	prefix := strings.TrimSuffix(pattern, "*")
	var n int64
	for k := range m.data {
		if strings.HasPrefix(k, prefix) {
			delete(m.data, k)
			n++
		}
	}
	return n, nil
}

func TestKeyNormalization(t *testing.T) {
	tests := []struct {
		name string
		a, b Key
		same bool
	}{
		{
			name: "term order ignored",
			a:    Key{Model: ranker.BM25, K: 5, Tokens: []string{"ayam", "goreng"}},
			b:    Key{Model: ranker.BM25, K: 5, Tokens: []string{"goreng", "ayam"}},
			same: true,
		},
		{
			name: "weighting ignored outside vsm",
			a:    Key{Model: ranker.BM25, Weighting: vectorizer.Raw, K: 5, Tokens: []string{"ayam"}},
			b:    Key{Model: ranker.BM25, Weighting: vectorizer.Sublinear, K: 5, Tokens: []string{"ayam"}},
			same: true,
		},
		{
			name: "weighting matters for vsm",
			a:    Key{Model: ranker.VSM, Weighting: vectorizer.Raw, K: 5, Tokens: []string{"ayam"}},
			b:    Key{Model: ranker.VSM, Weighting: vectorizer.Sublinear, K: 5, Tokens: []string{"ayam"}},
			same: false,
		},
		{
			name: "operator matters for boolean",
			a:    Key{Model: ranker.Boolean, Operator: index.OpAND, K: 5, Tokens: []string{"ayam"}},
			b:    Key{Model: ranker.Boolean, Operator: index.OpOR, K: 5, Tokens: []string{"ayam"}},
			same: false,
		},
		{
			name: "duplicates kept",
			a:    Key{Model: ranker.VSM, K: 5, Tokens: []string{"ayam"}},
			b:    Key{Model: ranker.VSM, K: 5, Tokens: []string{"ayam", "ayam"}},
			same: false,
		},
		{
			name: "k matters",
			a:    Key{Model: ranker.VSM, K: 5, Tokens: []string{"ayam"}},
			b:    Key{Model: ranker.VSM, K: 10, Tokens: []string{"ayam"}},
			same: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.a.redisKey("g") == tt.b.redisKey("g"); got != tt.same {
				t.Errorf("%q vs %q: same=%v, want %v", tt.a, tt.b, got, tt.same)
			}
		})
	}
}

func TestKeyTokensNotMutated(t *testing.T) {
	tokens := []string{"goreng", "ayam"}
	_ = Key{Model: ranker.VSM, K: 1, Tokens: tokens}.String()
	if tokens[0] != "goreng" {
		t.Errorf("String sorted the caller's slice: %v", tokens)
	}
}

func TestGetOrCompute(t *testing.T) {
	store := newMemStore()
	m := metrics.New()
	c := New(store, time.Minute, "g1", m)
	key := Key{Model: ranker.VSM, Weighting: vectorizer.Raw, K: 2, Tokens: []string{"ayam"}}
	want := []ranker.Result{{Rank: 1, DocID: "a.txt", Score: 0.5}}

	calls := 0
	compute := func() ([]ranker.Result, error) {
		calls++
		return want, nil
	}

	got, hit, err := c.GetOrCompute(context.Background(), key, compute)
	if err != nil || hit {
		t.Fatalf("first call: hit=%v err=%v", hit, err)
	}
	if len(got) != 1 || got[0].DocID != "a.txt" {
		t.Fatalf("got %+v", got)
	}

	got, hit, err = c.GetOrCompute(context.Background(), key, compute)
	if err != nil || !hit {
		t.Fatalf("second call: hit=%v err=%v", hit, err)
	}
	if calls != 1 {
		t.Errorf("compute called %d times, want 1", calls)
	}
	if got[0].Score != 0.5 {
		t.Errorf("cached score = %v", got[0].Score)
	}

	hits, misses := c.Stats()
	if hits != 1 || misses != 1 {
		t.Errorf("stats = %d hits %d misses, want 1/1", hits, misses)
	}
}

func TestGetOrComputeError(t *testing.T) {
	c := New(newMemStore(), time.Minute, "g", nil)
	boom := errors.New("boom")
	_, _, err := c.GetOrCompute(context.Background(), Key{Model: ranker.BM25, K: 1, Tokens: []string{"x"}},
		func() ([]ranker.Result, error) { return nil, boom })
	if !errors.Is(err, boom) {
		t.Errorf("err = %v, want boom", err)
	}
}

func TestStoreFailureOpensCircuit(t *testing.T) {
	store := newMemStore()
	store.err = errors.New("connection refused")
	c := New(store, time.Minute, "g", nil)
	key := Key{Model: ranker.BM25, K: 1, Tokens: []string{"x"}}

	for i := 0; i < 10; i++ {
		results, hit, err := c.GetOrCompute(context.Background(), key, func() ([]ranker.Result, error) {
			return []ranker.Result{{Rank: 1, DocID: "d"}}, nil
		})
		if err != nil || hit || len(results) != 1 {
			t.Fatalf("degraded call %d: results=%v hit=%v err=%v", i, results, hit, err)
		}
	}
	if got := c.Breaker().State; got != resilience.StateOpen {
		t.Errorf("breaker state = %v, want open", got)
	}
}

func TestInvalidateScopedToGeneration(t *testing.T) {
	store := newMemStore()
	old := New(store, time.Minute, "old", nil)
	cur := New(store, time.Minute, "cur", nil)
	key := Key{Model: ranker.VSM, K: 1, Tokens: []string{"ayam"}}
	old.Set(context.Background(), key, []ranker.Result{})
	cur.Set(context.Background(), key, []ranker.Result{})

	n, err := cur.Invalidate(context.Background())
	if err != nil || n != 1 {
		t.Fatalf("Invalidate = %d, %v", n, err)
	}
	if _, ok := old.Get(context.Background(), key); !ok {
		t.Error("other generation was invalidated")
	}
	if _, ok := cur.Get(context.Background(), key); ok {
		t.Error("current generation survived invalidation")
	}
}

func TestGeneration(t *testing.T) {
	c1, _ := corpus.FromTokens(map[string][]string{"a.txt": {"ayam"}, "b.txt": {"ikan"}})
	c2, _ := corpus.FromTokens(map[string][]string{"a.txt": {"ayam", "goreng"}, "b.txt": {"ikan"}})
	if Generation(c1, "vsm") != Generation(c1, "vsm") {
		t.Error("generation not stable")
	}
	if Generation(c1, "vsm") == Generation(c2, "vsm") {
		t.Error("different corpora share a generation")
	}
	if Generation(c1, "zero") == Generation(c1, "smoothed") {
		t.Error("options ignored")
	}
}
