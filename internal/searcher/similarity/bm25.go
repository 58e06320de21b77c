package similarity

import (
	"math"
	"sort"

	"github.com/Adithya-Monish-Kumar-K/corpus-retrieval/internal/indexer/stats"
)

const (
	DefaultK1 = 1.5
	DefaultB  = 0.75
)

// BM25 holds the tunable parameters.
type BM25 struct {
	K1 float64
	B  float64
}

// NewBM25 returns a scorer, falling back to the defaults for negative k1 or
// b outside [0,1].
func NewBM25(k1, b float64) BM25 {
	if k1 < 0 {
		k1 = DefaultK1
	}
	if b < 0 || b > 1 {
		b = DefaultB
	}
	return BM25{K1: k1, B: b}
}

// Contribution is one query term's share of a BM25 score.
type Contribution struct {
	Term  string  `json:"term"`
	Score float64 `json:"score"`
}

// Score sums the per-term contributions over distinct query terms. The
// result is unbounded and can be negative for terms present in more than
// half the corpus.
func (m BM25) Score(queryTokens, docTokens []string, s *stats.Statistics) float64 {
	var score float64
	for _, c := range m.Contributions(queryTokens, docTokens, s) {
		score += c.Score
	}
	return score
}

// Contributions returns one entry per distinct query term present in the
// document, largest contribution first.
func (m BM25) Contributions(queryTokens, docTokens []string, s *stats.Statistics) []Contribution {
	freqs := make(map[string]int, len(docTokens))
	for _, t := range docTokens {
		freqs[t]++
	}
	return m.contributions(queryTokens, freqs, len(docTokens), s)
}

// TermFrequencies is a document's precomputed term counts.
type TermFrequencies map[string]int

// ContributionsFreq is Contributions for a document whose term counts and
// length are already known.
func (m BM25) ContributionsFreq(queryTokens []string, freqs TermFrequencies, docLength int, s *stats.Statistics) []Contribution {
	return m.contributions(queryTokens, freqs, docLength, s)
}

func (m BM25) contributions(queryTokens []string, freqs map[string]int, docLength int, s *stats.Statistics) []Contribution {
	seen := make(map[string]struct{}, len(queryTokens))
	out := make([]Contribution, 0, len(queryTokens))
	for _, term := range queryTokens {
		if _, dup := seen[term]; dup {
			continue
		}
		seen[term] = struct{}{}
		f := freqs[term]
		if f == 0 {
			continue
		}
		idf := IDF(s.N, s.DocFreq(term))
		tfNorm := m.tfNorm(float64(f), float64(docLength), s.AvgDocLength)
		out = append(out, Contribution{Term: term, Score: idf * tfNorm})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Term < out[j].Term
	})
	return out
}

// IDF is the classic Robertson–Spärck Jones idf,
// ln((N - df + 0.5)/(df + 0.5) + Epsilon).
func IDF(totalDocs, docFreq int) float64 {
	numerator := float64(totalDocs) - float64(docFreq) + 0.5
	denominator := float64(docFreq) + 0.5
	return math.Log(numerator/denominator + Epsilon)
}

func (m BM25) tfNorm(termFreq, docLength, avgDocLength float64) float64 {
	lengthRatio := 1.0
	if avgDocLength > 0 {
		lengthRatio = docLength / avgDocLength
	}
	denominator := termFreq + m.K1*(1-m.B+m.B*lengthRatio)
	if denominator == 0 {
		return 0
	}
	return (termFreq * (m.K1 + 1)) / denominator
}
