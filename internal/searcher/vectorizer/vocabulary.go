package vectorizer

import "github.com/Adithya-Monish-Kumar-K/corpus-retrieval/internal/indexer/stats"

// Vocabulary fits a term → column mapping from the corpus vocabulary and
// counts in-vocabulary terms in a dense slice. Terms outside the vocabulary
// are counted separately and weighted with the statistics' OOV idf.
type Vocabulary struct {
	stats   *stats.Statistics
	columns map[string]int
	terms   []string
	idf     []float64
}

func NewVocabulary(s *stats.Statistics) *Vocabulary {
	terms := s.Terms()
	v := &Vocabulary{
		stats:   s,
		columns: make(map[string]int, len(terms)),
		terms:   terms,
		idf:     make([]float64, len(terms)),
	}
	for col, term := range terms {
		v.columns[term] = col
		v.idf[col] = s.IDF(term)
	}
	return v
}

func (v *Vocabulary) Name() string { return KindVocabulary }

// Dimensions returns the size of the fitted vocabulary.
func (v *Vocabulary) Dimensions() int { return len(v.terms) }

func (v *Vocabulary) Vectorize(tokens []string, mode Weighting) Vector {
	dense := make([]float64, len(v.terms))
	touched := make([]int, 0, len(tokens))
	var oov map[string]float64
	for _, t := range tokens {
		col, ok := v.columns[t]
		if !ok {
			if oov == nil {
				oov = make(map[string]float64)
			}
			oov[t]++
			continue
		}
		if dense[col] == 0 {
			touched = append(touched, col)
		}
		dense[col]++
	}

	vec := make(Vector, len(touched)+len(oov))
	for _, col := range touched {
		if w := tfWeight(dense[col], mode) * v.idf[col]; w != 0 {
			vec[v.terms[col]] = w
		}
	}
	for term, count := range oov {
		if w := tfWeight(count, mode) * v.stats.IDF(term); w != 0 {
			vec[term] = w
		}
	}
	return vec
}
