// Package stats computes corpus-level term statistics: document frequency,
// inverse document frequency, and document lengths. Statistics are built once
// per corpus and are read-only afterwards, so they can be shared across
// goroutines without locking.
package stats

import (
	"fmt"
	"math"
	"net/http"
	"sort"

	"github.com/Adithya-Monish-Kumar-K/corpus-retrieval/internal/corpus"
	apperrors "github.com/Adithya-Monish-Kumar-K/corpus-retrieval/pkg/errors"
)

// OOVPolicy decides the IDF of terms and how terms absent from the corpus
// are weighted.
type OOVPolicy string

const (
	// OOVZero uses idf = ln(N/df) and gives absent terms weight 0.
	OOVZero OOVPolicy = "zero"
	// OOVSmoothed uses idf = ln((N+1)/(df+1)) + 1, which is also defined
	// (as ln(N+1) + 1) for absent terms.
	OOVSmoothed OOVPolicy = "smoothed"
)

// ParseOOVPolicy validates a policy name.
func ParseOOVPolicy(name string) (OOVPolicy, error) {
	switch OOVPolicy(name) {
	case OOVZero, OOVSmoothed:
		return OOVPolicy(name), nil
	case "":
		return OOVZero, nil
	}
	return "", apperrors.Invalid("unknown oov policy %q", name)
}

// Statistics is the read-only term statistics of one corpus snapshot.
type Statistics struct {
	N            int
	Policy       OOVPolicy
	AvgDocLength float64

	df         map[string]int
	idf        map[string]float64
	docLengths []int
	oovIDF     float64
}

// Build scans the corpus once and derives df, idf and length statistics.
func Build(c *corpus.Corpus, policy OOVPolicy) (*Statistics, error) {
	if c == nil || c.Len() == 0 {
		return nil, apperrors.New(apperrors.ErrInvalidCorpus, http.StatusBadRequest, "statistics require at least one document")
	}
	if _, err := ParseOOVPolicy(string(policy)); err != nil {
		return nil, err
	}
	if policy == "" {
		policy = OOVZero
	}

	s := &Statistics{
		N:          c.Len(),
		Policy:     policy,
		df:         make(map[string]int),
		docLengths: make([]int, c.Len()),
	}
	var totalTokens int64
	for _, doc := range c.Documents() {
		seen := make(map[string]struct{}, len(doc.Tokens))
		for _, term := range doc.Tokens {
			if _, ok := seen[term]; ok {
				continue
			}
			seen[term] = struct{}{}
			s.df[term]++
		}
		s.docLengths[doc.Ordinal] = len(doc.Tokens)
		totalTokens += int64(len(doc.Tokens))
	}
	s.AvgDocLength = float64(totalTokens) / float64(s.N)

	n := float64(s.N)
	s.idf = make(map[string]float64, len(s.df))
	for term, df := range s.df {
		s.idf[term] = computeIDF(n, float64(df), policy)
	}
	if policy == OOVSmoothed {
		s.oovIDF = computeIDF(n, 0, policy)
	}
	return s, nil
}

func computeIDF(n, df float64, policy OOVPolicy) float64 {
	if policy == OOVSmoothed {
		return math.Log((n+1)/(df+1)) + 1
	}
	return math.Log(n / df)
}

// IDF returns the inverse document frequency of term under the configured
// policy. This is the only lookup vectorizers use, so documents and queries
// always agree on OOV handling.
func (s *Statistics) IDF(term string) float64 {
	if idf, ok := s.idf[term]; ok {
		return idf
	}
	return s.oovIDF
}

// DocFreq returns the number of documents containing term.
func (s *Statistics) DocFreq(term string) int {
	return s.df[term]
}

// Contains reports whether term occurs anywhere in the corpus.
func (s *Statistics) Contains(term string) bool {
	_, ok := s.df[term]
	return ok
}

// DocLength returns the token count of the document with the given ordinal.
func (s *Statistics) DocLength(ordinal int) int {
	return s.docLengths[ordinal]
}

// VocabularySize returns the number of distinct terms.
func (s *Statistics) VocabularySize() int {
	return len(s.df)
}

// Terms returns the vocabulary in ascending order.
func (s *Statistics) Terms() []string {
	terms := make([]string, 0, len(s.df))
	for term := range s.df {
		terms = append(terms, term)
	}
	sort.Strings(terms)
	return terms
}

func (s *Statistics) String() string {
	return fmt.Sprintf("Statistics{N=%d vocab=%d avgdl=%.2f policy=%s}", s.N, len(s.df), s.AvgDocLength, s.Policy)
}
