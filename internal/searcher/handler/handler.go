// Package handler exposes a retrieval session over HTTP: ranked search, the
// templated chat answer, evaluation against the loaded gold judgments and the
// cache controls. Every optional backend (cache, analytics, run store,
// metrics) may be nil.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/Adithya-Monish-Kumar-K/corpus-retrieval/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/corpus-retrieval/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/corpus-retrieval/internal/evaluator"
	"github.com/Adithya-Monish-Kumar-K/corpus-retrieval/internal/evaluator/store"
	"github.com/Adithya-Monish-Kumar-K/corpus-retrieval/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/corpus-retrieval/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/corpus-retrieval/internal/searcher/chat"
	"github.com/Adithya-Monish-Kumar-K/corpus-retrieval/internal/searcher/ranker"
	"github.com/Adithya-Monish-Kumar-K/corpus-retrieval/internal/searcher/vectorizer"
	"github.com/Adithya-Monish-Kumar-K/corpus-retrieval/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/corpus-retrieval/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/corpus-retrieval/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/corpus-retrieval/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/corpus-retrieval/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/corpus-retrieval/pkg/tracing"
)

const defaultSlowQuery = 250 * time.Millisecond

// Searcher is the retrieval session the handler serves.
type Searcher interface {
	Rank(ctx context.Context, req ranker.Request) ([]ranker.Result, error)
	Tokenize(query string) []string
	Corpus() *corpus.Corpus
}

// Tracker receives analytics events; analytics.Collector implements it.
type Tracker interface {
	Track(key string, event any)
}

// RunStore persists evaluation runs; store.Store implements it.
type RunStore interface {
	Save(ctx context.Context, report *evaluator.Report) (int64, error)
	List(ctx context.Context, limit int) ([]store.Run, error)
}

// Deps wires the handler. Only Searcher is required.
type Deps struct {
	Searcher  Searcher
	Evaluator *evaluator.Evaluator
	Gold      evaluator.Gold
	Responder *chat.Responder
	Cache     *cache.ResultCache
	Tracker   Tracker
	Runs      RunStore
	Metrics   *metrics.Metrics
	Defaults  config.RetrievalConfig
	SlowQuery time.Duration
}

type Handler struct {
	searcher  Searcher
	evaluator *evaluator.Evaluator
	gold      evaluator.Gold
	responder *chat.Responder
	cache     *cache.ResultCache
	tracker   Tracker
	runs      RunStore
	metrics   *metrics.Metrics
	defaults  config.RetrievalConfig
	slowQuery time.Duration
	logger    *slog.Logger
}

func New(d Deps) *Handler {
	if d.SlowQuery <= 0 {
		d.SlowQuery = defaultSlowQuery
	}
	if d.Evaluator == nil {
		d.Evaluator = evaluator.New(d.Searcher, d.Defaults.EvalConcurrency)
	}
	if d.Responder == nil {
		// config.Validate has already rejected unknown names.
		model, _ := ranker.ParseModel(d.Defaults.Model)
		weighting, _ := vectorizer.ParseWeighting(d.Defaults.Weighting)
		d.Responder = chat.NewResponder(d.Searcher, model, weighting, chat.DefaultResults)
	}
	return &Handler{
		searcher:  d.Searcher,
		evaluator: d.Evaluator,
		gold:      d.Gold,
		responder: d.Responder,
		cache:     d.Cache,
		tracker:   d.Tracker,
		runs:      d.Runs,
		metrics:   d.Metrics,
		defaults:  d.Defaults,
		slowQuery: d.SlowQuery,
		logger:    slog.Default().With("component", "search-handler"),
	}
}

// Register mounts every route on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/search", h.Search)
	mux.HandleFunc("GET /api/v1/chat", h.Chat)
	mux.HandleFunc("GET /api/v1/evaluate", h.Evaluate)
	mux.HandleFunc("GET /api/v1/evaluations", h.Evaluations)
	mux.HandleFunc("GET /api/v1/documents/{id}", h.Document)
	mux.HandleFunc("GET /api/v1/cache/stats", h.CacheStats)
	mux.HandleFunc("POST /api/v1/cache/invalidate", h.CacheInvalidate)
}

// SearchResponse is the body of GET /api/v1/search.
type SearchResponse struct {
	Query     string               `json:"query"`
	Terms     []string             `json:"terms"`
	Model     ranker.Model         `json:"model"`
	Weighting vectorizer.Weighting `json:"weighting,omitempty"`
	Operator  index.Operator       `json:"operator,omitempty"`
	K         int                  `json:"k"`
	Results   []ranker.Result      `json:"results"`
	CacheHit  bool                 `json:"cache_hit"`
	TookMs    int64                `json:"took_ms"`
}

// settings reads model, weight, op and k from the query string, falling back
// to the configured defaults. k above maxK is clamped.
func (h *Handler) settings(r *http.Request) (evaluator.Settings, error) {
	q := r.URL.Query()
	var s evaluator.Settings
	var err error

	if s.Model, err = ranker.ParseModel(orDefault(q.Get("model"), h.defaults.Model)); err != nil {
		return s, err
	}
	if s.Weighting, err = vectorizer.ParseWeighting(orDefault(q.Get("weight"), h.defaults.Weighting)); err != nil {
		return s, err
	}
	if s.Operator, err = index.ParseOperator(orDefault(q.Get("op"), h.defaults.Operator)); err != nil {
		return s, err
	}

	s.K = h.defaults.DefaultK
	if raw := q.Get("k"); raw != "" {
		k, err := strconv.Atoi(raw)
		if err != nil || k < 1 {
			return s, apperrors.Invalid("k must be a positive integer, got %q", raw)
		}
		s.K = k
	}
	if h.defaults.MaxK > 0 && s.K > h.defaults.MaxK {
		s.K = h.defaults.MaxK
	}
	return s, nil
}

func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	log := logger.FromContext(ctx)

	query := r.URL.Query().Get("q")
	if query == "" {
		h.writeError(w, http.StatusBadRequest, "query parameter 'q' is required")
		return
	}
	s, err := h.settings(r)
	if err != nil {
		h.writeAppError(w, err)
		return
	}

	requestID := middleware.GetRequestID(ctx)
	ctx, span := tracing.StartSpan(ctx, "search", requestID)
	span.SetAttr("model", string(s.Model))

	_, tokSpan := tracing.StartChildSpan(ctx, "tokenize")
	tokens := h.searcher.Tokenize(query)
	tokSpan.SetAttr("terms", len(tokens))
	tokSpan.End()

	req := ranker.Request{
		Tokens:    tokens,
		Model:     s.Model,
		Weighting: s.Weighting,
		Operator:  s.Operator,
		K:         s.K,
	}
	compute := func() ([]ranker.Result, error) {
		return h.searcher.Rank(ctx, req)
	}

	var results []ranker.Result
	cacheHit := false
	cacheStatus := "disabled"
	if h.cache != nil && len(tokens) > 0 {
		key := cache.Key{Model: s.Model, Weighting: s.Weighting, Operator: s.Operator, K: s.K, Tokens: tokens}
		results, cacheHit, err = h.cache.GetOrCompute(ctx, key, compute)
		cacheStatus = "miss"
		if cacheHit {
			cacheStatus = "hit"
		}
	} else {
		results, err = compute()
	}
	span.SetAttr("cache", cacheStatus)
	span.End()

	latency := time.Since(start)
	if err != nil {
		h.observeSearch(s.Model, "error", cacheStatus, latency, 0)
		log.Error("search failed", "query", query, "model", s.Model, "error", err)
		h.writeAppError(w, err)
		return
	}
	if results == nil {
		results = []ranker.Result{}
	}

	resultType := "zero_result"
	for _, res := range results {
		if res.Matched(s.Model) {
			resultType = "ok"
			break
		}
	}
	h.observeSearch(s.Model, resultType, cacheStatus, latency, len(results))

	log.Info("search completed",
		"query", query,
		"model", s.Model,
		"terms", len(tokens),
		"k", s.K,
		"returned", len(results),
		"cache", cacheStatus,
		"latency_ms", latency.Milliseconds(),
	)
	if latency >= h.slowQuery {
		span.Log(log)
	}
	h.trackSearch(ctx, query, tokens, s, results, latency, cacheHit, resultType)

	h.writeJSON(w, http.StatusOK, SearchResponse{
		Query:     query,
		Terms:     tokens,
		Model:     s.Model,
		Weighting: s.Weighting,
		Operator:  s.Operator,
		K:         s.K,
		Results:   results,
		CacheHit:  cacheHit,
		TookMs:    latency.Milliseconds(),
	})
}

func (h *Handler) observeSearch(model ranker.Model, resultType, cacheStatus string, latency time.Duration, returned int) {
	if h.metrics == nil {
		return
	}
	h.metrics.SearchQueriesTotal.WithLabelValues(string(model), resultType).Inc()
	h.metrics.SearchLatency.WithLabelValues(string(model), cacheStatus).Observe(latency.Seconds())
	if resultType != "error" {
		h.metrics.SearchResultsCount.WithLabelValues(string(model)).Observe(float64(returned))
	}
}

func (h *Handler) trackSearch(ctx context.Context, query string, tokens []string, s evaluator.Settings,
	results []ranker.Result, latency time.Duration, cacheHit bool, resultType string) {
	if h.tracker == nil {
		return
	}
	eventType := analytics.EventSearch
	if resultType == "zero_result" {
		eventType = analytics.EventZeroResult
	}
	event := analytics.SearchEvent{
		Type:      eventType,
		Query:     query,
		Terms:     tokens,
		Model:     string(s.Model),
		Weighting: string(s.Weighting),
		Operator:  string(s.Operator),
		K:         s.K,
		Returned:  len(results),
		LatencyMs: latency.Milliseconds(),
		CacheHit:  cacheHit,
		Timestamp: time.Now().UTC(),
		RequestID: middleware.GetRequestID(ctx),
	}
	if len(results) > 0 {
		event.TopDocID = results[0].DocID
		event.TopScore = results[0].Score
	}
	h.tracker.Track(string(s.Model), event)
}

func (h *Handler) Chat(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		h.writeError(w, http.StatusBadRequest, "query parameter 'q' is required")
		return
	}
	reply, err := h.responder.Answer(r.Context(), query)
	if err != nil {
		logger.FromContext(r.Context()).Error("chat failed", "query", query, "error", err)
		h.writeAppError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, reply)
}

// EvaluateResponse is the body of a full evaluation run. RunID is zero when
// no run store is configured or saving failed.
type EvaluateResponse struct {
	RunID int64 `json:"run_id,omitempty"`
	*evaluator.Report
}

// Evaluate scores the configured model against the gold judgments. With
// ?query= only that gold query is evaluated and nothing is persisted.
func (h *Handler) Evaluate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)
	if len(h.gold) == 0 {
		h.writeError(w, http.StatusServiceUnavailable, "no gold judgments loaded")
		return
	}
	s, err := h.settings(r)
	if err != nil {
		h.writeAppError(w, err)
		return
	}

	if query := r.URL.Query().Get("query"); query != "" {
		qr, err := h.evaluator.EvaluateQuery(ctx, h.gold, query, s)
		if err != nil {
			h.writeAppError(w, err)
			return
		}
		h.writeJSON(w, http.StatusOK, qr)
		return
	}

	report, err := h.evaluator.Evaluate(ctx, h.gold, s)
	if err != nil {
		if h.metrics != nil {
			h.metrics.EvaluationRunsTotal.WithLabelValues(string(s.Model), "error").Inc()
		}
		log.Error("evaluation failed", "model", s.Model, "error", err)
		h.writeAppError(w, err)
		return
	}
	if h.metrics != nil {
		model := string(s.Model)
		h.metrics.EvaluationRunsTotal.WithLabelValues(model, "ok").Inc()
		h.metrics.EvaluationScore.WithLabelValues(model, "precision").Set(report.Precision)
		h.metrics.EvaluationScore.WithLabelValues(model, "recall").Set(report.Recall)
		h.metrics.EvaluationScore.WithLabelValues(model, "f1").Set(report.F1)
		h.metrics.EvaluationScore.WithLabelValues(model, "map").Set(report.MAP)
		h.metrics.EvaluationScore.WithLabelValues(model, "ndcg").Set(report.NDCG)
	}

	resp := EvaluateResponse{Report: report}
	if h.runs != nil {
		id, err := h.runs.Save(ctx, report)
		if err != nil {
			log.Warn("evaluation run not persisted", "error", err)
		}
		resp.RunID = id
	}
	if h.tracker != nil {
		h.tracker.Track(string(s.Model), analytics.EvaluationEvent{
			Type:      analytics.EventEvaluation,
			RunID:     resp.RunID,
			Model:     string(s.Model),
			Weighting: string(s.Weighting),
			K:         s.K,
			Queries:   len(report.Queries),
			Precision: report.Precision,
			Recall:    report.Recall,
			F1:        report.F1,
			MAP:       report.MAP,
			NDCG:      report.NDCG,
			Timestamp: time.Now().UTC(),
		})
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// Evaluations lists persisted runs, newest first.
func (h *Handler) Evaluations(w http.ResponseWriter, r *http.Request) {
	if h.runs == nil {
		h.writeError(w, http.StatusServiceUnavailable, "evaluation history is disabled")
		return
	}
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			h.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	runs, err := h.runs.List(r.Context(), limit)
	if err != nil {
		logger.FromContext(r.Context()).Error("listing evaluation runs failed", "error", err)
		h.writeAppError(w, err)
		return
	}
	if runs == nil {
		runs = []store.Run{}
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

func (h *Handler) Document(w http.ResponseWriter, r *http.Request) {
	doc, err := h.searcher.Corpus().Get(r.PathValue("id"))
	if err != nil {
		h.writeAppError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, doc)
}

func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}

	hits, misses := h.cache.Stats()
	total := hits + misses
	var hitRate float64
	if total > 0 {
		hitRate = float64(hits) / float64(total) * 100
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"hits":     hits,
		"misses":   misses,
		"total":    total,
		"hit_rate": fmt.Sprintf("%.1f%%", hitRate),
		"circuit":  h.cache.Breaker(),
	})
}

func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeError(w, http.StatusServiceUnavailable, "caching is disabled")
		return
	}

	deleted, err := h.cache.Invalidate(r.Context())
	if err != nil {
		h.logger.Error("cache invalidation failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "cache invalidation failed")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{"status": "invalidated", "keys_deleted": deleted})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}

// writeAppError maps err to its HTTP status. Client errors echo their
// message; server errors are reported generically.
func (h *Handler) writeAppError(w http.ResponseWriter, err error) {
	status := apperrors.HTTPStatusCode(err)
	if status >= http.StatusInternalServerError {
		h.writeError(w, status, http.StatusText(status))
		return
	}
	message := err.Error()
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		message = appErr.Message
	}
	h.writeError(w, status, message)
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
