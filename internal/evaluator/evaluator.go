// Package evaluator measures retrieval quality against gold relevance
// judgments: precision, recall, F1, MAP and nDCG at a cutoff k, computed per
// query and averaged over the gold set.
package evaluator

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/corpus-retrieval/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/corpus-retrieval/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/corpus-retrieval/internal/searcher/ranker"
	"github.com/Adithya-Monish-Kumar-K/corpus-retrieval/internal/searcher/vectorizer"
	apperrors "github.com/Adithya-Monish-Kumar-K/corpus-retrieval/pkg/errors"
)

// Ranker is the part of a retrieval session the evaluator drives.
type Ranker interface {
	Rank(ctx context.Context, req ranker.Request) ([]ranker.Result, error)
	Corpus() *corpus.Corpus
}

// Settings selects the model configuration under evaluation.
type Settings struct {
	Model     ranker.Model         `json:"model"`
	Weighting vectorizer.Weighting `json:"weighting"`
	Operator  index.Operator       `json:"operator,omitempty"`
	K         int                  `json:"k"`
}

// QueryReport holds the metrics of one gold query.
type QueryReport struct {
	Query     string   `json:"query"`
	Retrieved []string `json:"retrieved"`
	Relevant  []string `json:"relevant"`
	Precision float64  `json:"precision"`
	Recall    float64  `json:"recall"`
	F1        float64  `json:"f1"`
	AP        float64  `json:"ap"`
	NDCG      float64  `json:"ndcg"`
}

// Report is the corpus-level result: every metric is the mean of the
// per-query values.
type Report struct {
	Settings  Settings      `json:"settings"`
	Precision float64       `json:"precision"`
	Recall    float64       `json:"recall"`
	F1        float64       `json:"f1"`
	MAP       float64       `json:"map"`
	NDCG      float64       `json:"ndcg"`
	Queries   []QueryReport `json:"queries"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration_ns"`
}

type Evaluator struct {
	ranker      Ranker
	concurrency int
	logger      *slog.Logger
}

// New returns an Evaluator that scores up to concurrency gold queries at once.
func New(r Ranker, concurrency int) *Evaluator {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Evaluator{
		ranker:      r,
		concurrency: concurrency,
		logger:      slog.Default().With("component", "evaluator"),
	}
}

// Evaluate ranks every gold query and averages the metrics. Per-query reports
// come back in ascending query order regardless of scheduling.
func (e *Evaluator) Evaluate(ctx context.Context, gold Gold, s Settings) (*Report, error) {
	if len(gold) == 0 {
		return nil, apperrors.Invalid("gold set is empty")
	}
	if s.K <= 0 {
		return nil, apperrors.Invalid("k must be positive, got %d", s.K)
	}
	if err := gold.Validate(e.ranker.Corpus()); err != nil {
		return nil, err
	}

	start := time.Now()
	queries := gold.Queries()
	reports := make([]QueryReport, len(queries))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for i, q := range queries {
		i, q := i, q
		g.Go(func() error {
			qr, err := e.evaluate(gctx, q, gold[q], s)
			if err != nil {
				return fmt.Errorf("evaluating %q: %w", q, err)
			}
			reports[i] = *qr
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	report := &Report{
		Settings:  s,
		Queries:   reports,
		StartedAt: start.UTC(),
	}
	for _, qr := range reports {
		report.Precision += qr.Precision
		report.Recall += qr.Recall
		report.F1 += qr.F1
		report.MAP += qr.AP
		report.NDCG += qr.NDCG
	}
	n := float64(len(reports))
	report.Precision /= n
	report.Recall /= n
	report.F1 /= n
	report.MAP /= n
	report.NDCG /= n
	report.Duration = time.Since(start)

	e.logger.Info("evaluation complete",
		"model", s.Model,
		"weighting", s.Weighting,
		"k", s.K,
		"queries", len(reports),
		"precision", report.Precision,
		"recall", report.Recall,
		"map", report.MAP,
		"ndcg", report.NDCG,
		"duration_ms", report.Duration.Milliseconds(),
	)
	return report, nil
}

// EvaluateQuery scores a single gold query.
func (e *Evaluator) EvaluateQuery(ctx context.Context, gold Gold, query string, s Settings) (*QueryReport, error) {
	relevant, ok := gold[query]
	if !ok {
		return nil, apperrors.Newf(apperrors.ErrQueryNotInGold, http.StatusNotFound, "query %q has no gold judgments", query)
	}
	c := e.ranker.Corpus()
	for _, id := range relevant {
		if !c.Contains(id) {
			return nil, apperrors.Newf(apperrors.ErrDocumentNotFound, http.StatusNotFound,
				"gold query %q references %q, which is not in the corpus", query, id)
		}
	}
	return e.evaluate(ctx, query, relevant, s)
}

func (e *Evaluator) evaluate(ctx context.Context, query string, relevant []string, s Settings) (*QueryReport, error) {
	results, err := e.ranker.Rank(ctx, ranker.Request{
		Query:     query,
		Model:     s.Model,
		Weighting: s.Weighting,
		Operator:  s.Operator,
		K:         s.K,
	})
	if err != nil {
		return nil, err
	}
	retrieved := make([]string, len(results))
	for i, r := range results {
		retrieved[i] = r.DocID
	}

	qr := &QueryReport{Query: query, Retrieved: retrieved, Relevant: relevant}
	if qr.Precision, err = PrecisionAtK(retrieved, relevant, s.K); err != nil {
		return nil, err
	}
	if qr.Recall, err = RecallAtK(retrieved, relevant, s.K); err != nil {
		return nil, err
	}
	qr.F1 = F1(qr.Precision, qr.Recall)
	if qr.AP, err = AveragePrecisionAtK(retrieved, relevant, s.K); err != nil {
		return nil, err
	}
	if qr.NDCG, err = NDCGAtK(retrieved, relevant, s.K); err != nil {
		return nil, err
	}
	return qr, nil
}
