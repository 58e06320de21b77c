package vectorizer

import "github.com/Adithya-Monish-Kumar-K/corpus-retrieval/internal/indexer/stats"

// Sparse is the map-based strategy.
type Sparse struct {
	stats *stats.Statistics
}

func NewSparse(s *stats.Statistics) *Sparse {
	return &Sparse{stats: s}
}

func (v *Sparse) Name() string { return KindSparse }

func (v *Sparse) Vectorize(tokens []string, mode Weighting) Vector {
	counts := make(map[string]float64, len(tokens))
	for _, t := range tokens {
		counts[t]++
	}
	vec := make(Vector, len(counts))
	for term, count := range counts {
		w := tfWeight(count, mode) * v.stats.IDF(term)
		if w != 0 {
			vec[term] = w
		}
	}
	return vec
}
