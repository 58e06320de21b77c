package evaluator

import (
	"math"

	apperrors "github.com/Adithya-Monish-Kumar-K/corpus-retrieval/pkg/errors"
)

// Epsilon keeps F1 defined when precision and recall are both zero.
const Epsilon = 1e-9

// PrecisionAtK is |top-k ∩ relevant| / k. The divisor is the requested k even
// when fewer than k documents were retrieved.
func PrecisionAtK(retrieved, relevant []string, k int) (float64, error) {
	if k <= 0 {
		return 0, apperrors.Invalid("k must be positive, got %d", k)
	}
	return float64(hits(retrieved, relevant, k)) / float64(k), nil
}

// RecallAtK is |top-k ∩ relevant| / |relevant|.
func RecallAtK(retrieved, relevant []string, k int) (float64, error) {
	if err := checkArgs(relevant, k); err != nil {
		return 0, err
	}
	return float64(hits(retrieved, relevant, k)) / float64(len(toSet(relevant))), nil
}

// F1 is the harmonic mean of p and r.
func F1(p, r float64) float64 {
	return 2 * p * r / (p + r + Epsilon)
}

// AveragePrecisionAtK sums the precision at the rank of every relevant hit
// within the top k and divides by |relevant|. Averaged over queries it gives
// MAP@k.
func AveragePrecisionAtK(retrieved, relevant []string, k int) (float64, error) {
	if err := checkArgs(relevant, k); err != nil {
		return 0, err
	}
	rel := toSet(relevant)
	seen := make(map[string]struct{}, len(rel))
	var sum float64
	var found int
	for i, id := range cut(retrieved, k) {
		if _, ok := rel[id]; !ok {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		found++
		sum += float64(found) / float64(i+1)
	}
	return sum / float64(len(rel)), nil
}

// NDCGAtK uses binary gain and a 1/log2(rank+1) discount, normalized by the
// ideal ranking of min(k, |relevant|) hits.
func NDCGAtK(retrieved, relevant []string, k int) (float64, error) {
	if err := checkArgs(relevant, k); err != nil {
		return 0, err
	}
	rel := toSet(relevant)
	seen := make(map[string]struct{}, len(rel))
	var dcg float64
	for i, id := range cut(retrieved, k) {
		if _, ok := rel[id]; !ok {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		dcg += 1 / math.Log2(float64(i+2))
	}
	ideal := len(rel)
	if k < ideal {
		ideal = k
	}
	var idcg float64
	for i := 0; i < ideal; i++ {
		idcg += 1 / math.Log2(float64(i+2))
	}
	return dcg / idcg, nil
}

func checkArgs(relevant []string, k int) error {
	if k <= 0 {
		return apperrors.Invalid("k must be positive, got %d", k)
	}
	if len(relevant) == 0 {
		return apperrors.Invalid("relevant set is empty")
	}
	return nil
}

func hits(retrieved, relevant []string, k int) int {
	rel := toSet(relevant)
	seen := make(map[string]struct{}, len(rel))
	for _, id := range cut(retrieved, k) {
		if _, ok := rel[id]; ok {
			seen[id] = struct{}{}
		}
	}
	return len(seen)
}

func cut(ids []string, k int) []string {
	if len(ids) > k {
		return ids[:k]
	}
	return ids
}

func toSet(ids []string) map[string]struct{} {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}
