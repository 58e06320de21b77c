// Package vectorizer turns token sequences into sparse TF-IDF vectors.
//
// Two interchangeable strategies implement the Vectorizer contract: Sparse
// counts terms in a map, Vocabulary accumulates into dense columns of a
// vocabulary fitted from the corpus statistics. Both read IDF exclusively
// through stats.Statistics.IDF, so query and document vectors always share
// one out-of-vocabulary policy.
package vectorizer

import (
	"math"
	"sort"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/corpus-retrieval/internal/indexer/stats"
	apperrors "github.com/Adithya-Monish-Kumar-K/corpus-retrieval/pkg/errors"
)

// Weighting selects the term-frequency transform.
type Weighting string

const (
	// Raw weights a term by count × idf.
	Raw Weighting = "raw"
	// Sublinear weights a term by (1 + ln count) × idf.
	Sublinear Weighting = "sublinear"
)

// ParseWeighting accepts raw/sublinear and the tfidf/tfidf_sublinear names
// used by the command-line tools.
func ParseWeighting(name string) (Weighting, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "raw", "tfidf":
		return Raw, nil
	case "sublinear", "tfidf_sublinear":
		return Sublinear, nil
	}
	return "", apperrors.Invalid("unknown weighting scheme %q", name)
}

// Vector is a sparse term → weight mapping. Zero weights are not stored.
type Vector map[string]float64

// Norm returns the Euclidean length of v.
func (v Vector) Norm() float64 {
	var sum float64
	for _, term := range v.Terms() {
		w := v[term]
		sum += w * w
	}
	return math.Sqrt(sum)
}

// Terms returns the keys of v in ascending order. Summing in this order keeps
// floating-point results identical from run to run.
func (v Vector) Terms() []string {
	terms := make([]string, 0, len(v))
	for term := range v {
		terms = append(terms, term)
	}
	sort.Strings(terms)
	return terms
}

// TermWeight pairs a term with its weight.
type TermWeight struct {
	Term   string  `json:"term"`
	Weight float64 `json:"weight"`
}

// Top returns the n highest-weighted terms, ties broken alphabetically.
func (v Vector) Top(n int) []TermWeight {
	all := make([]TermWeight, 0, len(v))
	for term, w := range v {
		all = append(all, TermWeight{Term: term, Weight: w})
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].Weight != all[j].Weight {
			return all[i].Weight > all[j].Weight
		}
		return all[i].Term < all[j].Term
	})
	if n >= 0 && len(all) > n {
		all = all[:n]
	}
	return all
}

// Vectorizer is the capability shared by both strategies.
type Vectorizer interface {
	Vectorize(tokens []string, mode Weighting) Vector
	Name() string
}

// Kind names a Vectorizer strategy in configuration.
const (
	KindSparse     = "sparse"
	KindVocabulary = "vocabulary"
)

// New returns the strategy named by kind.
func New(kind string, s *stats.Statistics) (Vectorizer, error) {
	switch kind {
	case "", KindSparse:
		return NewSparse(s), nil
	case KindVocabulary:
		return NewVocabulary(s), nil
	}
	return nil, apperrors.Invalid("unknown vectorizer %q", kind)
}

func tfWeight(count float64, mode Weighting) float64 {
	if count <= 0 {
		return 0
	}
	if mode == Sublinear {
		return 1 + math.Log(count)
	}
	return count
}
