// Package ranker owns a retrieval session: the corpus, its statistics, the
// inverted index and the cached document vectors. A Ranker is built once and
// is safe for concurrent use; nothing it holds is mutated after New returns.
package ranker

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/corpus-retrieval/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/corpus-retrieval/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/corpus-retrieval/internal/indexer/stats"
	"github.com/Adithya-Monish-Kumar-K/corpus-retrieval/internal/searcher/similarity"
	"github.com/Adithya-Monish-Kumar-K/corpus-retrieval/internal/searcher/vectorizer"
	apperrors "github.com/Adithya-Monish-Kumar-K/corpus-retrieval/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/corpus-retrieval/pkg/tracing"
)

type Model string

const (
	Boolean Model = "boolean"
	VSM     Model = "vsm"
	BM25    Model = "bm25"
)

// ParseModel accepts a model name in any case; empty means vsm.
func ParseModel(name string) (Model, error) {
	switch Model(strings.ToLower(strings.TrimSpace(name))) {
	case "", VSM:
		return VSM, nil
	case Boolean:
		return Boolean, nil
	case BM25:
		return BM25, nil
	}
	return "", apperrors.Invalid("unknown model %q", name)
}

const (
	DefaultSnippetLength = 120
	DefaultExplainTerms  = 5
)

// Analyzer turns query text into the same terms documents were indexed with.
type Analyzer interface {
	Analyze(text string) []string
}

// TermScore is one explanatory term attached to a result.
type TermScore struct {
	Term   string  `json:"term"`
	Weight float64 `json:"weight"`
}

// Result is one ranked document.
type Result struct {
	Rank    int         `json:"rank"`
	DocID   string      `json:"doc_id"`
	Score   float64     `json:"score"`
	Snippet string      `json:"snippet"`
	Terms   []TermScore `json:"terms"`
}

// Matched reports whether the document shares at least one term with the
// query. Boolean and bm25 results list exactly the matched query terms; a vsm
// result matches when its cosine is positive. BM25 scores alone cannot tell,
// since a term present in more than half the corpus scores below zero.
func (res Result) Matched(model Model) bool {
	switch model {
	case Boolean, BM25:
		return len(res.Terms) > 0
	}
	return res.Score > 0
}

// Request describes one ranking call. Tokens, when non-nil, bypass the
// session analyzer and are used as-is.
type Request struct {
	Query     string
	Tokens    []string
	Model     Model
	Weighting vectorizer.Weighting
	Operator  index.Operator
	K         int
}

// Options configures a session. A nil BM25 selects k1=1.5, b=0.75; a
// non-nil one is used as given, zeros included.
type Options struct {
	Vectorizer    string
	OOVPolicy     stats.OOVPolicy
	BM25          *similarity.BM25
	SnippetLength int
	ExplainTerms  int
}

// Ranker is the retrieval session.
type Ranker struct {
	corpus     *corpus.Corpus
	stats      *stats.Statistics
	index      *index.Index
	vectorizer vectorizer.Vectorizer
	analyzer   Analyzer
	bm25       similarity.BM25

	snippetLength int
	explainTerms  int

	docVectors map[vectorizer.Weighting][]vectorizer.Vector
	docNorms   map[vectorizer.Weighting][]float64
	docFreqs   []similarity.TermFrequencies

	logger *slog.Logger
}

// New builds statistics, the inverted index and both weightings of every
// document vector. analyzer may be nil when callers always pass Tokens; query
// text is then split on whitespace.
func New(c *corpus.Corpus, analyzer Analyzer, opts Options) (*Ranker, error) {
	s, err := stats.Build(c, opts.OOVPolicy)
	if err != nil {
		return nil, fmt.Errorf("building statistics: %w", err)
	}
	vec, err := vectorizer.New(opts.Vectorizer, s)
	if err != nil {
		return nil, err
	}
	if opts.SnippetLength == 0 {
		opts.SnippetLength = DefaultSnippetLength
	}
	if opts.ExplainTerms <= 0 {
		opts.ExplainTerms = DefaultExplainTerms
	}
	bm25 := similarity.NewBM25(similarity.DefaultK1, similarity.DefaultB)
	if opts.BM25 != nil {
		bm25 = similarity.NewBM25(opts.BM25.K1, opts.BM25.B)
	}

	r := &Ranker{
		corpus:        c,
		stats:         s,
		index:         index.Build(c),
		vectorizer:    vec,
		analyzer:      analyzer,
		bm25:          bm25,
		snippetLength: opts.SnippetLength,
		explainTerms:  opts.ExplainTerms,
		docVectors:    make(map[vectorizer.Weighting][]vectorizer.Vector, 2),
		docNorms:      make(map[vectorizer.Weighting][]float64, 2),
		docFreqs:      make([]similarity.TermFrequencies, c.Len()),
		logger:        slog.Default().With("component", "ranker"),
	}

	for _, mode := range []vectorizer.Weighting{vectorizer.Raw, vectorizer.Sublinear} {
		vectors := make([]vectorizer.Vector, c.Len())
		norms := make([]float64, c.Len())
		for i, doc := range c.Documents() {
			vectors[i] = vec.Vectorize(doc.Tokens, mode)
			norms[i] = vectors[i].Norm()
		}
		r.docVectors[mode] = vectors
		r.docNorms[mode] = norms
	}
	for i, doc := range c.Documents() {
		freqs := make(similarity.TermFrequencies, len(doc.Tokens))
		for _, t := range doc.Tokens {
			freqs[t]++
		}
		r.docFreqs[i] = freqs
	}

	r.logger.Info("retrieval session ready",
		"documents", c.Len(),
		"vocabulary", s.VocabularySize(),
		"avg_doc_length", s.AvgDocLength,
		"vectorizer", vec.Name(),
		"oov_policy", s.Policy,
	)
	return r, nil
}

func (r *Ranker) Corpus() *corpus.Corpus { return r.corpus }
func (r *Ranker) Stats() *stats.Statistics { return r.stats }
func (r *Ranker) Index() *index.Index { return r.index }
func (r *Ranker) BM25Params() similarity.BM25 { return r.bm25 }
func (r *Ranker) Vectorizer() vectorizer.Vectorizer { return r.vectorizer }

// Tokenize runs query text through the session analyzer.
func (r *Ranker) Tokenize(query string) []string {
	if r.analyzer == nil {
		return strings.Fields(query)
	}
	return r.analyzer.Analyze(query)
}

// Rank scores the corpus under req.Model and returns at most req.K results,
// score descending with ties in corpus order. K larger than the corpus is
// clamped. An empty token sequence yields no results for every model.
func (r *Ranker) Rank(ctx context.Context, req Request) ([]Result, error) {
	if req.K <= 0 {
		return nil, apperrors.Invalid("k must be positive, got %d", req.K)
	}
	model, err := ParseModel(string(req.Model))
	if err != nil {
		return nil, err
	}
	weighting, err := vectorizer.ParseWeighting(string(req.Weighting))
	if err != nil {
		return nil, err
	}
	op, err := index.ParseOperator(string(req.Operator))
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	k := req.K
	if n := r.corpus.Len(); k > n {
		k = n
	}
	tokens := req.Tokens
	if tokens == nil {
		tokens = r.Tokenize(req.Query)
	}

	_, span := tracing.StartChildSpan(ctx, "ranker.rank")
	span.SetAttr("model", string(model))
	span.SetAttr("k", k)
	span.SetAttr("query_terms", len(tokens))
	defer span.End()

	if len(tokens) == 0 {
		return []Result{}, nil
	}

	var results []Result
	switch model {
	case Boolean:
		results = r.rankBoolean(tokens, op, k)
	case BM25:
		results = r.rankBM25(tokens, k)
	default:
		results = r.rankVSM(tokens, weighting, k)
	}
	span.SetAttr("returned", len(results))

	r.logger.Debug("ranked",
		"model", model,
		"weighting", weighting,
		"operator", op,
		"terms", len(tokens),
		"k", k,
		"returned", len(results),
	)
	return results, nil
}

func (r *Ranker) rankVSM(tokens []string, mode vectorizer.Weighting, k int) []Result {
	q := r.vectorizer.Vectorize(tokens, mode)
	qNorm := q.Norm()
	vectors, norms := r.docVectors[mode], r.docNorms[mode]

	top := newTopK(k)
	for i := range vectors {
		top.offer(i, similarity.CosineWithNorms(q, vectors[i], qNorm, norms[i]))
	}
	return r.collect(top, func(ordinal int) []TermScore {
		tw := vectors[ordinal].Top(r.explainTerms)
		terms := make([]TermScore, len(tw))
		for i, t := range tw {
			terms[i] = TermScore{Term: t.Term, Weight: t.Weight}
		}
		return terms
	})
}

func (r *Ranker) rankBM25(tokens []string, k int) []Result {
	top := newTopK(k)
	for i, freqs := range r.docFreqs {
		var score float64
		for _, c := range r.bm25.ContributionsFreq(tokens, freqs, r.stats.DocLength(i), r.stats) {
			score += c.Score
		}
		top.offer(i, score)
	}
	return r.collect(top, func(ordinal int) []TermScore {
		contribs := r.bm25.ContributionsFreq(tokens, r.docFreqs[ordinal], r.stats.DocLength(ordinal), r.stats)
		if len(contribs) > r.explainTerms {
			contribs = contribs[:r.explainTerms]
		}
		terms := make([]TermScore, len(contribs))
		for i, c := range contribs {
			terms[i] = TermScore{Term: c.Term, Weight: c.Score}
		}
		return terms
	})
}

// rankBoolean scores each matching document by the number of distinct query
// terms it contains.
func (r *Ranker) rankBoolean(tokens []string, op index.Operator, k int) []Result {
	distinct := dedupe(tokens)
	matched := r.index.Match(distinct, op)

	top := newTopK(k)
	it := matched.Iterator()
	for it.HasNext() {
		ordinal := int(it.Next())
		freqs := r.docFreqs[ordinal]
		var found int
		for _, t := range distinct {
			if freqs[t] > 0 {
				found++
			}
		}
		top.offer(ordinal, float64(found))
	}
	return r.collect(top, func(ordinal int) []TermScore {
		freqs := r.docFreqs[ordinal]
		terms := make([]TermScore, 0, len(distinct))
		for _, t := range distinct {
			if freqs[t] > 0 {
				terms = append(terms, TermScore{Term: t, Weight: 1})
			}
		}
		return terms
	})
}

func (r *Ranker) collect(top *topK, explain func(ordinal int) []TermScore) []Result {
	hits := top.sorted()
	results := make([]Result, len(hits))
	for i, h := range hits {
		doc := r.corpus.At(h.ordinal)
		results[i] = Result{
			Rank:    i + 1,
			DocID:   doc.ID,
			Score:   h.score,
			Snippet: doc.Snippet(r.snippetLength),
			Terms:   explain(h.ordinal),
		}
	}
	return results
}

func dedupe(tokens []string) []string {
	seen := make(map[string]struct{}, len(tokens))
	out := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
