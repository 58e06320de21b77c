package analytics

import "time"

type EventType string

const (
	EventSearch     EventType = "search"
	EventZeroResult EventType = "zero_result"
	EventEvaluation EventType = "evaluation"
)

// SearchEvent is published once per ranked query.
type SearchEvent struct {
	Type      EventType `json:"type"`
	Query     string    `json:"query"`
	Terms     []string  `json:"terms"`
	Model     string    `json:"model"`
	Weighting string    `json:"weighting,omitempty"`
	Operator  string    `json:"operator,omitempty"`
	K         int       `json:"k"`
	Returned  int       `json:"returned"`
	TopDocID  string    `json:"top_doc_id,omitempty"`
	TopScore  float64   `json:"top_score"`
	LatencyMs int64     `json:"latency_ms"`
	CacheHit  bool      `json:"cache_hit"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id,omitempty"`
}

// EvaluationEvent summarizes one evaluation run.
type EvaluationEvent struct {
	Type      EventType `json:"type"`
	RunID     int64     `json:"run_id,omitempty"`
	Model     string    `json:"model"`
	Weighting string    `json:"weighting,omitempty"`
	K         int       `json:"k"`
	Queries   int       `json:"queries"`
	Precision float64   `json:"precision"`
	Recall    float64   `json:"recall"`
	F1        float64   `json:"f1"`
	MAP       float64   `json:"map"`
	NDCG      float64   `json:"ndcg"`
	Timestamp time.Time `json:"timestamp"`
}

// envelope is decoded first to route a message by its type.
type envelope struct {
	Type EventType `json:"type"`
}
