// Package session assembles a retrieval session from configuration: the
// preprocessor, the corpus, the ranker and, when configured, the gold
// judgments. Every binary that ranks queries starts here.
package session

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/corpus-retrieval/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/corpus-retrieval/internal/evaluator"
	"github.com/Adithya-Monish-Kumar-K/corpus-retrieval/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/corpus-retrieval/internal/indexer/stats"
	"github.com/Adithya-Monish-Kumar-K/corpus-retrieval/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/corpus-retrieval/internal/searcher/ranker"
	"github.com/Adithya-Monish-Kumar-K/corpus-retrieval/internal/searcher/similarity"
	"github.com/Adithya-Monish-Kumar-K/corpus-retrieval/internal/searcher/vectorizer"
	"github.com/Adithya-Monish-Kumar-K/corpus-retrieval/pkg/config"
)

type Session struct {
	Ranker   *ranker.Ranker
	Analyzer *tokenizer.Analyzer
	Gold     evaluator.Gold
}

// Open loads the corpus named by cfg.Corpus and builds the ranker. With
// preprocess set, raw documents are analyzed and the processed directory is
// rewritten first.
func Open(cfg *config.Config, preprocess bool) (*Session, error) {
	start := time.Now()
	analyzer, err := NewAnalyzer(cfg.Corpus)
	if err != nil {
		return nil, err
	}

	loader := corpus.NewLoader(cfg.Corpus.ProcessedDir, cfg.Corpus.RawDir, cfg.Corpus.Extension)
	var c *corpus.Corpus
	if preprocess {
		c, err = loader.Preprocess(analyzer)
	} else {
		c, err = loader.Load()
	}
	if err != nil {
		return nil, fmt.Errorf("loading corpus: %w", err)
	}

	policy, err := stats.ParseOOVPolicy(cfg.Retrieval.OOVPolicy)
	if err != nil {
		return nil, err
	}
	r, err := ranker.New(c, analyzer, ranker.Options{
		Vectorizer:    cfg.Retrieval.Vectorizer,
		OOVPolicy:     policy,
		BM25:          &similarity.BM25{K1: cfg.Retrieval.K1, B: cfg.Retrieval.B},
		SnippetLength: cfg.Retrieval.SnippetLength,
		ExplainTerms:  cfg.Retrieval.ExplainTerms,
	})
	if err != nil {
		return nil, fmt.Errorf("building ranker: %w", err)
	}

	s := &Session{Ranker: r, Analyzer: analyzer}
	if cfg.Corpus.GoldPath != "" {
		gold, err := evaluator.LoadGold(cfg.Corpus.GoldPath)
		if err != nil {
			return nil, err
		}
		if err := gold.Validate(c); err != nil {
			return nil, err
		}
		s.Gold = gold
	}

	dims := r.Stats().VocabularySize()
	if v, ok := r.Vectorizer().(*vectorizer.Vocabulary); ok {
		dims = v.Dimensions()
	}
	slog.Info("session opened",
		"documents", c.Len(),
		"vectorizer", r.Vectorizer().Name(),
		"dimensions", dims,
		"gold_queries", len(s.Gold),
		"preprocessed", preprocess,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return s, nil
}

// NewAnalyzer builds the preprocessor described by cc. A nil stopword list
// means the built-in one; an empty list disables stopword removal.
func NewAnalyzer(cc config.CorpusConfig) (*tokenizer.Analyzer, error) {
	stopwords := cc.Stopwords
	if stopwords == nil {
		stopwords = tokenizer.DefaultStopwords
	}
	return tokenizer.New(stopwords, cc.Stemmer)
}

// Settings parses the configured default model selection.
func Settings(rc config.RetrievalConfig) (evaluator.Settings, error) {
	var s evaluator.Settings
	var err error
	if s.Model, err = ranker.ParseModel(rc.Model); err != nil {
		return s, err
	}
	if s.Weighting, err = vectorizer.ParseWeighting(rc.Weighting); err != nil {
		return s, err
	}
	if s.Operator, err = index.ParseOperator(rc.Operator); err != nil {
		return s, err
	}
	s.K = rc.DefaultK
	return s, nil
}
