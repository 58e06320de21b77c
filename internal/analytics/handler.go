package analytics

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
)

const maxTopN = 100

type Handler struct {
	aggregator *Aggregator
	logger     *slog.Logger
}

func NewHandler(aggregator *Aggregator) *Handler {
	return &Handler{
		aggregator: aggregator,
		logger:     slog.Default().With("component", "analytics-handler"),
	}
}

func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/analytics", h.Stats)
	mux.HandleFunc("GET /api/v1/analytics/leaderboard", h.Leaderboard)
}

// Stats serves the aggregated statistics. ?top=n sizes the ranked lists
// (at most maxTopN). With ?model=name only that model's search count and
// latest evaluation are returned.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	top := 0
	if raw := q.Get("top"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "top must be a positive integer"})
			return
		}
		top = min(n, maxTopN)
	}
	stats := h.aggregator.StatsTop(top)

	if model := q.Get("model"); model != "" {
		body := map[string]any{
			"model":    model,
			"searches": stats.SearchesByModel[model],
		}
		if ev, ok := stats.LatestEvaluations[model]; ok {
			body["latest_evaluation"] = ev
		}
		h.writeJSON(w, http.StatusOK, body)
		return
	}
	h.writeJSON(w, http.StatusOK, stats)
}

// Leaderboard ranks models by their latest evaluation.
func (h *Handler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	board := h.aggregator.Leaderboard()
	h.writeJSON(w, http.StatusOK, map[string]any{
		"models":  board,
		"entries": len(board),
	})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("failed to write analytics response", "error", err)
	}
}
