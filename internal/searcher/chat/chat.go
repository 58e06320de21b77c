// Package chat answers free-text questions from the best-ranked document with
// a fixed template. It is a thin presentation layer over the ranker.
package chat

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/Adithya-Monish-Kumar-K/corpus-retrieval/internal/searcher/ranker"
	"github.com/Adithya-Monish-Kumar-K/corpus-retrieval/internal/searcher/vectorizer"
)

const (
	DefaultResults = 3
	wrapWidth      = 80
	noMatch        = "Sorry, I could not find anything for that query."
)

type Ranker interface {
	Rank(ctx context.Context, req ranker.Request) ([]ranker.Result, error)
}

// Reply is one chat turn. Best is nil when nothing matched.
type Reply struct {
	Query   string          `json:"query"`
	Answer  string          `json:"answer"`
	Best    *ranker.Result  `json:"best,omitempty"`
	Results []ranker.Result `json:"results"`
}

type Responder struct {
	ranker    Ranker
	model     ranker.Model
	weighting vectorizer.Weighting
	k         int
	logger    *slog.Logger
}

// NewResponder answers with model and lists up to k results per reply.
func NewResponder(r Ranker, model ranker.Model, weighting vectorizer.Weighting, k int) *Responder {
	if k <= 0 {
		k = DefaultResults
	}
	return &Responder{
		ranker:    r,
		model:     model,
		weighting: weighting,
		k:         k,
		logger:    slog.Default().With("component", "chat"),
	}
}

// Answer ranks query and builds the templated reply from the best result that
// shares a term with the query. Unmatched results are dropped from the reply.
func (r *Responder) Answer(ctx context.Context, query string) (*Reply, error) {
	results, err := r.ranker.Rank(ctx, ranker.Request{
		Query:     query,
		Model:     r.model,
		Weighting: r.weighting,
		K:         r.k,
	})
	if err != nil {
		return nil, err
	}
	matched := make([]ranker.Result, 0, len(results))
	for _, res := range results {
		if res.Matched(r.model) {
			matched = append(matched, res)
		}
	}
	reply := &Reply{Query: query, Results: matched}
	if len(matched) == 0 {
		reply.Answer = noMatch
		r.logger.Debug("no match", "query", query, "model", r.model)
		return reply, nil
	}
	best := matched[0]
	reply.Best = &best
	reply.Answer = fmt.Sprintf(
		"It looks like you mean **%s**.\nIn short: %s\nRead the full text in document %s.",
		Title(best.DocID), best.Snippet, best.DocID,
	)
	return reply, nil
}

// Title turns a document id such as "ayam_goreng.txt" into "Ayam Goreng".
func Title(docID string) string {
	name := strings.TrimSuffix(docID, filepath.Ext(docID))
	words := strings.Fields(strings.NewReplacer("_", " ", "-", " ").Replace(name))
	for i, w := range words {
		first, size := utf8.DecodeRuneInString(w)
		words[i] = string(unicode.ToUpper(first)) + strings.ToLower(w[size:])
	}
	return strings.Join(words, " ")
}

// Format renders a reply for a terminal: the answer wrapped at 80 columns,
// then the listed results.
func Format(reply *Reply) string {
	var b strings.Builder
	for i, line := range strings.Split(reply.Answer, "\n") {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(wrap(line, wrapWidth))
	}
	if len(reply.Results) > 0 {
		b.WriteString("\n\nTop results:")
		for _, res := range reply.Results {
			fmt.Fprintf(&b, "\n - %s (score=%.4f)", res.DocID, res.Score)
		}
	}
	return b.String()
}

func wrap(s string, width int) string {
	words := strings.Fields(s)
	if len(words) == 0 {
		return ""
	}
	var b strings.Builder
	col := 0
	for i, w := range words {
		if i > 0 {
			if col+1+len(w) > width {
				b.WriteByte('\n')
				col = 0
			} else {
				b.WriteByte(' ')
				col++
			}
		}
		b.WriteString(w)
		col += len(w)
	}
	return b.String()
}
