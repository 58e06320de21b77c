package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/corpus-retrieval/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/corpus-retrieval/pkg/kafka"
)

func encode(t *testing.T, v any) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	return data
}

func TestAggregatorRecord(t *testing.T) {
	agg := NewAggregator()
	events := []SearchEvent{
		{Type: EventSearch, Query: "ayam bakar", Model: "vsm", Returned: 3, TopDocID: "b.txt", LatencyMs: 4},
		{Type: EventSearch, Query: "ayam bakar", Model: "bm25", Returned: 3, TopDocID: "b.txt", LatencyMs: 6, CacheHit: true},
		{Type: EventZeroResult, Query: "durian", Model: "boolean", Returned: 0, LatencyMs: 2},
	}
	for _, ev := range events {
		if err := agg.Record(encode(t, ev)); err != nil {
			t.Fatal(err)
		}
	}
	if err := agg.Record(encode(t, EvaluationEvent{Type: EventEvaluation, Model: "vsm", K: 5, MAP: 0.7})); err != nil {
		t.Fatal(err)
	}

	stats := agg.Stats()
	if stats.TotalSearches != 3 || stats.CacheHits != 1 || stats.CacheMisses != 2 {
		t.Errorf("counts = %+v", stats)
	}
	if stats.ZeroResultCount != 1 || len(stats.ZeroResultQueries) != 1 || stats.ZeroResultQueries[0].Query != "durian" {
		t.Errorf("zero results = %d %v", stats.ZeroResultCount, stats.ZeroResultQueries)
	}
	if stats.SearchesByModel["vsm"] != 1 || stats.SearchesByModel["bm25"] != 1 {
		t.Errorf("by model = %v", stats.SearchesByModel)
	}
	if len(stats.TopQueries) == 0 || stats.TopQueries[0] != (QueryCount{Query: "ayam bakar", Count: 2}) {
		t.Errorf("top queries = %v", stats.TopQueries)
	}
	if len(stats.TopDocuments) != 1 || stats.TopDocuments[0].Count != 2 {
		t.Errorf("top documents = %v", stats.TopDocuments)
	}
	if stats.P50LatencyMs != 4 || stats.AvgLatencyMs != 4 {
		t.Errorf("latency p50=%d avg=%v", stats.P50LatencyMs, stats.AvgLatencyMs)
	}
	if stats.LatestEvaluations["vsm"].MAP != 0.7 {
		t.Errorf("evaluations = %v", stats.LatestEvaluations)
	}
}

func TestAggregatorKeepsNewestEvaluation(t *testing.T) {
	agg := NewAggregator()
	now := time.Now()
	_ = agg.Record(encode(t, EvaluationEvent{Type: EventEvaluation, Model: "bm25", MAP: 0.9, Timestamp: now}))
	_ = agg.Record(encode(t, EvaluationEvent{Type: EventEvaluation, Model: "bm25", MAP: 0.1, Timestamp: now.Add(-time.Hour)}))
	if got := agg.Stats().LatestEvaluations["bm25"].MAP; got != 0.9 {
		t.Errorf("MAP = %v, want the newer run's 0.9", got)
	}
}

func TestAggregatorRejectsUnknown(t *testing.T) {
	agg := NewAggregator()
	if err := agg.Record([]byte(`{"type":"index_document"}`)); err == nil {
		t.Error("expected error for unknown type")
	}
	if err := agg.Record([]byte(`not json`)); err == nil {
		t.Error("expected error for malformed event")
	}
	if err := agg.Handle(context.Background(), nil, []byte(`not json`)); !errors.Is(err, apperrors.ErrMalformedEvent) {
		t.Errorf("Handle error = %v, want ErrMalformedEvent", err)
	}
}

type fakePublisher struct {
	mu      sync.Mutex
	batches [][]kafka.Event
	fail    bool
}

func (p *fakePublisher) PublishBatch(ctx context.Context, events []kafka.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail {
		return errors.New("broker down")
	}
	p.batches = append(p.batches, append([]kafka.Event(nil), events...))
	return nil
}

func (p *fakePublisher) total() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, b := range p.batches {
		n += len(b)
	}
	return n
}

func TestCollectorBatches(t *testing.T) {
	pub := &fakePublisher{}
	c := NewCollector(pub, 100, 2, time.Hour)
	c.Start(context.Background())
	for i := 0; i < 5; i++ {
		c.Track("vsm", SearchEvent{Type: EventSearch, Query: "ayam"})
	}
	c.Close()

	if got := pub.total(); got != 5 {
		t.Fatalf("published %d events, want 5", got)
	}
	for _, b := range pub.batches {
		if len(b) > 2 {
			t.Errorf("batch of %d exceeds batch size", len(b))
		}
	}
}

func TestCollectorFlushesOnCancel(t *testing.T) {
	pub := &fakePublisher{}
	c := NewCollector(pub, 100, 50, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	c.Start(ctx)
	c.Track("bm25", SearchEvent{Type: EventSearch})
	c.Track("bm25", SearchEvent{Type: EventSearch})
	cancel()
	c.Close()
	if got := pub.total(); got != 2 {
		t.Errorf("published %d events, want 2", got)
	}
}

func TestCollectorDropsWhenFull(t *testing.T) {
	pub := &fakePublisher{}
	c := NewCollector(pub, 1, 10, time.Hour)
	c.Track("a", 1)
	c.Track("a", 2) // buffer full, dropped
	c.Start(context.Background())
	c.Close()
	if got := pub.total(); got != 1 {
		t.Errorf("published %d events, want 1", got)
	}
}

func TestHandlerStats(t *testing.T) {
	agg := NewAggregator()
	_ = agg.Record([]byte(`{"type":"search","query":"soto","model":"vsm","returned":1}`))
	h := NewHandler(agg)

	rec := httptest.NewRecorder()
	h.Stats(rec, httptest.NewRequest(http.MethodGet, "/api/v1/analytics?model=vsm", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body["searches"] != float64(1) {
		t.Errorf("body = %v", body)
	}
}

func TestHandlerLeaderboardAndTop(t *testing.T) {
	agg := NewAggregator()
	now := time.Now()
	for _, ev := range []EvaluationEvent{
		{Type: EventEvaluation, Model: "vsm", MAP: 0.6, NDCG: 0.7, Timestamp: now},
		{Type: EventEvaluation, Model: "bm25", MAP: 0.8, NDCG: 0.85, Timestamp: now},
		{Type: EventEvaluation, Model: "boolean", MAP: 0.6, NDCG: 0.9, Timestamp: now},
	} {
		if err := agg.Record(encode(t, ev)); err != nil {
			t.Fatal(err)
		}
	}
	for _, q := range []string{"soto", "rendang", "soto", "gado"} {
		_ = agg.Record(encode(t, SearchEvent{Type: EventSearch, Query: q, Model: "bm25"}))
	}

	mux := http.NewServeMux()
	NewHandler(agg).Register(mux)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/analytics/leaderboard", nil))
	var board struct {
		Models []EvaluationEvent `json:"models"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &board); err != nil {
		t.Fatal(err)
	}
	var order []string
	for _, ev := range board.Models {
		order = append(order, ev.Model)
	}
	if len(order) != 3 || order[0] != "bm25" || order[1] != "boolean" || order[2] != "vsm" {
		t.Errorf("leaderboard order = %v", order)
	}

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/analytics?top=1", nil))
	var stats AggregatedStats
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatal(err)
	}
	if len(stats.TopQueries) != 1 || stats.TopQueries[0].Query != "soto" {
		t.Errorf("top queries = %v", stats.TopQueries)
	}

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/analytics?top=zero", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad top status = %d", rec.Code)
	}
}
