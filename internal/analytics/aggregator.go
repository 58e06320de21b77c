// Package analytics tracks how the retrieval service is used. The collector
// publishes search and evaluation events to Kafka; the aggregator consumes
// them and keeps running per-model statistics.
package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/corpus-retrieval/pkg/errors"
)

const maxLatencySamples = 10000

type AggregatedStats struct {
	TotalSearches     int64                      `json:"total_searches"`
	CacheHits         int64                      `json:"cache_hits"`
	CacheMisses       int64                      `json:"cache_misses"`
	ZeroResultCount   int64                      `json:"zero_result_count"`
	AvgLatencyMs      float64                    `json:"avg_latency_ms"`
	P50LatencyMs      int64                      `json:"p50_latency_ms"`
	P95LatencyMs      int64                      `json:"p95_latency_ms"`
	P99LatencyMs      int64                      `json:"p99_latency_ms"`
	SearchesByModel   map[string]int64           `json:"searches_by_model"`
	TopQueries        []QueryCount               `json:"top_queries"`
	ZeroResultQueries []QueryCount               `json:"zero_result_queries"`
	TopDocuments      []QueryCount               `json:"top_documents"`
	LatestEvaluations map[string]EvaluationEvent `json:"latest_evaluations"`
	QueriesPerMinute  float64                    `json:"queries_per_minute"`
}

// QueryCount pairs a key (a query or a document id) with its count.
type QueryCount struct {
	Query string `json:"query"`
	Count int64  `json:"count"`
}

type Aggregator struct {
	mu                sync.RWMutex
	totalSearches     int64
	cacheHits         int64
	cacheMisses       int64
	zeroResults       int64
	latencies         []int64
	next              int
	byModel           map[string]int64
	queryCounts       map[string]int64
	zeroResultQueries map[string]int64
	topDocs           map[string]int64
	evaluations       map[string]EvaluationEvent
	startTime         time.Time
	logger            *slog.Logger
}

func NewAggregator() *Aggregator {
	return &Aggregator{
		latencies:         make([]int64, 0, 1024),
		byModel:           make(map[string]int64),
		queryCounts:       make(map[string]int64),
		zeroResultQueries: make(map[string]int64),
		topDocs:           make(map[string]int64),
		evaluations:       make(map[string]EvaluationEvent),
		startTime:         time.Now(),
		logger:            slog.Default().With("component", "analytics-aggregator"),
	}
}

// Handle is a kafka.MessageHandler. Undecodable messages are reported as
// ErrMalformedEvent so the consumer commits past them.
func (a *Aggregator) Handle(ctx context.Context, key []byte, value []byte) error {
	if err := a.Record(value); err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrMalformedEvent, err)
	}
	return nil
}

// Record decodes one event and folds it into the running statistics.
func (a *Aggregator) Record(value []byte) error {
	var env envelope
	if err := json.Unmarshal(value, &env); err != nil {
		return fmt.Errorf("decoding event envelope: %w", err)
	}
	switch env.Type {
	case EventSearch, EventZeroResult:
		var event SearchEvent
		if err := json.Unmarshal(value, &event); err != nil {
			return fmt.Errorf("decoding search event: %w", err)
		}
		a.recordSearch(event)
	case EventEvaluation:
		var event EvaluationEvent
		if err := json.Unmarshal(value, &event); err != nil {
			return fmt.Errorf("decoding evaluation event: %w", err)
		}
		a.recordEvaluation(event)
	default:
		return fmt.Errorf("unknown event type %q", env.Type)
	}
	return nil
}

func (a *Aggregator) recordSearch(event SearchEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.totalSearches++
	if event.CacheHit {
		a.cacheHits++
	} else {
		a.cacheMisses++
	}
	a.byModel[event.Model]++
	a.queryCounts[event.Query]++
	if event.Returned == 0 {
		a.zeroResults++
		a.zeroResultQueries[event.Query]++
	}
	if event.TopDocID != "" {
		a.topDocs[event.TopDocID]++
	}

	// Latencies form a ring so a long-running aggregator keeps bounded memory.
	if len(a.latencies) < maxLatencySamples {
		a.latencies = append(a.latencies, event.LatencyMs)
	} else {
		a.latencies[a.next] = event.LatencyMs
		a.next = (a.next + 1) % maxLatencySamples
	}
}

func (a *Aggregator) recordEvaluation(event EvaluationEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if prev, ok := a.evaluations[event.Model]; ok && prev.Timestamp.After(event.Timestamp) {
		a.logger.Debug("ignoring stale evaluation event", "model", event.Model, "run_id", event.RunID)
		return
	}
	a.evaluations[event.Model] = event
	a.logger.Info("evaluation recorded", "model", event.Model, "run_id", event.RunID, "map", event.MAP)
}

const defaultTopN = 10

// Stats returns a snapshot of the aggregated statistics with the default
// length for the ranked lists.
func (a *Aggregator) Stats() AggregatedStats {
	return a.StatsTop(defaultTopN)
}

// StatsTop is Stats with n entries in each of the top query, zero-result and
// document lists.
func (a *Aggregator) StatsTop(n int) AggregatedStats {
	if n <= 0 {
		n = defaultTopN
	}
	a.mu.RLock()
	defer a.mu.RUnlock()

	stats := AggregatedStats{
		TotalSearches:     a.totalSearches,
		CacheHits:         a.cacheHits,
		CacheMisses:       a.cacheMisses,
		ZeroResultCount:   a.zeroResults,
		SearchesByModel:   make(map[string]int64, len(a.byModel)),
		LatestEvaluations: make(map[string]EvaluationEvent, len(a.evaluations)),
	}
	for model, n := range a.byModel {
		stats.SearchesByModel[model] = n
	}
	for model, ev := range a.evaluations {
		stats.LatestEvaluations[model] = ev
	}
	if len(a.latencies) > 0 {
		sorted := make([]int64, len(a.latencies))
		copy(sorted, a.latencies)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

		var sum int64
		for _, l := range sorted {
			sum += l
		}
		stats.AvgLatencyMs = float64(sum) / float64(len(sorted))
		stats.P50LatencyMs = percentile(sorted, 50)
		stats.P95LatencyMs = percentile(sorted, 95)
		stats.P99LatencyMs = percentile(sorted, 99)
	}
	stats.TopQueries = topN(a.queryCounts, n)
	stats.ZeroResultQueries = topN(a.zeroResultQueries, n)
	stats.TopDocuments = topN(a.topDocs, n)
	elapsed := time.Since(a.startTime).Minutes()
	if elapsed > 0 {
		stats.QueriesPerMinute = float64(stats.TotalSearches) / elapsed
	}
	return stats
}

// Leaderboard returns the latest evaluation of every model, best MAP first.
// Ties fall back to nDCG, then model name.
func (a *Aggregator) Leaderboard() []EvaluationEvent {
	a.mu.RLock()
	board := make([]EvaluationEvent, 0, len(a.evaluations))
	for _, ev := range a.evaluations {
		board = append(board, ev)
	}
	a.mu.RUnlock()

	sort.Slice(board, func(i, j int) bool {
		if board[i].MAP != board[j].MAP {
			return board[i].MAP > board[j].MAP
		}
		if board[i].NDCG != board[j].NDCG {
			return board[i].NDCG > board[j].NDCG
		}
		return board[i].Model < board[j].Model
	})
	return board
}

func percentile(sorted []int64, pct int) int64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := (pct * len(sorted)) / 100
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func topN(counts map[string]int64, n int) []QueryCount {
	result := make([]QueryCount, 0, len(counts))
	for query, count := range counts {
		result = append(result, QueryCount{Query: query, Count: count})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Count != result[j].Count {
			return result[i].Count > result[j].Count
		}
		return result[i].Query < result[j].Query
	})
	if len(result) > n {
		result = result[:n]
	}
	return result
}
