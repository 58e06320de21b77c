// Package similarity scores documents against queries: cosine similarity
// between TF-IDF vectors, and Okapi BM25 computed directly from term
// statistics.
package similarity

import "github.com/Adithya-Monish-Kumar-K/corpus-retrieval/internal/searcher/vectorizer"

// Epsilon guards the cosine denominator and the BM25 idf logarithm.
const Epsilon = 1e-9

// Cosine returns dot(v1, v2) / (|v1||v2| + Epsilon). Zero vectors score 0.
func Cosine(v1, v2 vectorizer.Vector) float64 {
	return CosineWithNorms(v1, v2, v1.Norm(), v2.Norm())
}

// CosineWithNorms is Cosine with precomputed norms, for callers that cache
// document vectors.
func CosineWithNorms(v1, v2 vectorizer.Vector, n1, n2 float64) float64 {
	return Dot(v1, v2) / (n1*n2 + Epsilon)
}

// Dot iterates only the smaller vector's keys, in sorted order so the sum is
// reproducible and Dot(a, b) == Dot(b, a) exactly.
func Dot(v1, v2 vectorizer.Vector) float64 {
	if len(v2) < len(v1) {
		v1, v2 = v2, v1
	}
	var dot float64
	for _, term := range v1.Terms() {
		if w2, ok := v2[term]; ok {
			dot += v1[term] * w2
		}
	}
	return dot
}
