//go:build integration

// Package integration contains tests that verify the interaction between
// the search service and its real backends. Tests skip when a backend is
// unreachable.
//
// Run with:
//
//	go test -v -tags=integration ./test/integration/...
package integration

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/corpus-retrieval/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/corpus-retrieval/internal/evaluator"
	"github.com/Adithya-Monish-Kumar-K/corpus-retrieval/internal/evaluator/store"
	"github.com/Adithya-Monish-Kumar-K/corpus-retrieval/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/corpus-retrieval/internal/searcher/handler"
	"github.com/Adithya-Monish-Kumar-K/corpus-retrieval/internal/searcher/ranker"
	"github.com/Adithya-Monish-Kumar-K/corpus-retrieval/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/corpus-retrieval/pkg/postgres"
	pkgredis "github.com/Adithya-Monish-Kumar-K/corpus-retrieval/pkg/redis"
)

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// skipIfNoPostgres skips the test when PostgreSQL is unavailable.
func skipIfNoPostgres(t *testing.T) *postgres.Client {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	db, err := postgres.New(ctx, testPostgresConfig())
	if err != nil {
		t.Skipf("skipping integration test: postgres unavailable: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// skipIfNoRedis skips the test when Redis is unavailable.
func skipIfNoRedis(t *testing.T) *pkgredis.Client {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	client, err := pkgredis.NewClient(ctx, config.RedisConfig{
		Addr:     envOrDefault("TEST_REDIS_ADDR", "localhost:6379"),
		DB:       envOrDefaultInt("TEST_REDIS_DB", 15),
		PoolSize: 4,
	})
	if err != nil {
		t.Skipf("skipping integration test: redis unavailable: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func testPostgresConfig() config.PostgresConfig {
	return config.PostgresConfig{
		Host:            envOrDefault("TEST_POSTGRES_HOST", "localhost"),
		Port:            envOrDefaultInt("TEST_POSTGRES_PORT", 5432),
		Database:        envOrDefault("TEST_POSTGRES_DB", "retrieval_test"),
		User:            envOrDefault("TEST_POSTGRES_USER", "retrieval"),
		Password:        envOrDefault("TEST_POSTGRES_PASSWORD", "localdev"),
		SSLMode:         "disable",
		MaxOpenConns:    5,
		MaxIdleConns:    2,
		ConnMaxLifetime: 5 * time.Minute,
	}
}

func newSession(t *testing.T) *ranker.Ranker {
	t.Helper()
	c, err := corpus.FromTokens(map[string][]string{
		"ayam_goreng.txt": {"ayam", "goreng", "bumbu", "kuning"},
		"ayam_bakar.txt":  {"ayam", "bakar", "kecap"},
		"ikan_bakar.txt":  {"ikan", "bakar", "sambal"},
		"rendang.txt":     {"rendang", "daging", "santan"},
	})
	if err != nil {
		t.Fatal(err)
	}
	r, err := ranker.New(c, nil, ranker.Options{})
	if err != nil {
		t.Fatal(err)
	}
	return r
}

var gold = evaluator.Gold{
	"goreng":  {"ayam_goreng.txt"},
	"rendang": {"rendang.txt"},
	"bakar":   {"ayam_bakar.txt", "ikan_bakar.txt"},
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestEvaluationStoreRoundTrip(t *testing.T) {
	db := skipIfNoPostgres(t)
	ctx := context.Background()
	s := store.New(db, 5*time.Second)
	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("Migrate: %v", err)
	}

	report, err := evaluator.New(newSession(t), 2).Evaluate(ctx, gold, evaluator.Settings{Model: ranker.BM25, K: 2})
	if err != nil {
		t.Fatal(err)
	}
	id, err := s.Save(ctx, report)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	t.Cleanup(func() { db.DB.Exec("DELETE FROM evaluation_runs WHERE id = $1", id) })

	latest, err := s.Latest(ctx)
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if latest == nil || latest.ID != id {
		t.Fatalf("latest = %+v, want run %d", latest, id)
	}
	if latest.Report.MAP != report.MAP || len(latest.Report.Queries) != len(gold) {
		t.Errorf("round-tripped report = %+v", latest.Report)
	}

	var rows int
	if err := db.DB.QueryRow("SELECT COUNT(*) FROM evaluation_queries WHERE run_id = $1", id).Scan(&rows); err != nil {
		t.Fatal(err)
	}
	if rows != len(gold) {
		t.Errorf("query rows = %d, want %d", rows, len(gold))
	}
}

func TestEvaluateEndpointPersistsRun(t *testing.T) {
	db := skipIfNoPostgres(t)
	s := store.New(db, 5*time.Second)
	if err := s.Migrate(context.Background()); err != nil {
		t.Fatal(err)
	}

	mux := http.NewServeMux()
	handler.New(handler.Deps{
		Searcher: newSession(t),
		Gold:     gold,
		Runs:     s,
		Defaults: config.RetrievalConfig{Model: "vsm", DefaultK: 3, MaxK: 10, EvalConcurrency: 2},
	}).Register(mux)
	srv := httptest.NewServer(mux)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/v1/evaluate?model=bm25&k=2")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var body struct {
		RunID int64 `json:"run_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.RunID == 0 {
		t.Fatal("run was not persisted")
	}
	t.Cleanup(func() { db.DB.Exec("DELETE FROM evaluation_runs WHERE id = $1", body.RunID) })

	runs, err := s.List(context.Background(), 50)
	if err != nil {
		t.Fatal(err)
	}
	found := false
	for _, r := range runs {
		if r.ID == body.RunID {
			found = r.Report.Settings.Model == ranker.BM25
		}
	}
	if !found {
		t.Errorf("run %d not listed with model bm25", body.RunID)
	}
}

func TestResultCacheWithRedis(t *testing.T) {
	client := skipIfNoRedis(t)
	ctx := context.Background()
	generation := "it" + strconv.FormatInt(time.Now().UnixNano(), 36)
	rc := cache.New(client, time.Minute, generation, nil)
	t.Cleanup(func() { rc.Invalidate(context.Background()) })

	r := newSession(t)
	key := cache.Key{Model: ranker.BM25, K: 2, Tokens: []string{"goreng"}}
	compute := func() ([]ranker.Result, error) {
		return r.Rank(ctx, ranker.Request{Tokens: key.Tokens, Model: key.Model, K: key.K})
	}

	first, hit, err := rc.GetOrCompute(ctx, key, compute)
	if err != nil || hit {
		t.Fatalf("first: hit=%v err=%v", hit, err)
	}
	second, hit, err := rc.GetOrCompute(ctx, key, compute)
	if err != nil || !hit {
		t.Fatalf("second: hit=%v err=%v", hit, err)
	}
	if first[0].DocID != second[0].DocID || first[0].Score != second[0].Score {
		t.Errorf("cached %+v, computed %+v", second[0], first[0])
	}

	n, err := rc.Invalidate(ctx)
	if err != nil || n != 1 {
		t.Errorf("Invalidate = %d, %v", n, err)
	}
}

// ---------------------------------------------------------------------------
// Env helpers
// ---------------------------------------------------------------------------

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envOrDefaultInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
