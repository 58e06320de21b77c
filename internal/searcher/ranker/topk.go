package ranker

import "container/heap"

type hit struct {
	ordinal int
	score   float64
}

// topK keeps the k best hits seen so far in a min-heap whose root is the
// weakest hit: lowest score, and among equal scores the latest in corpus
// order.
type topK struct {
	limit int
	h     hitHeap
}

func newTopK(limit int) *topK {
	return &topK{limit: limit, h: make(hitHeap, 0, limit+1)}
}

func (t *topK) offer(ordinal int, score float64) {
	if t.limit <= 0 {
		return
	}
	candidate := hit{ordinal: ordinal, score: score}
	if t.h.Len() < t.limit {
		heap.Push(&t.h, candidate)
		return
	}
	if weaker(t.h[0], candidate) {
		t.h[0] = candidate
		heap.Fix(&t.h, 0)
	}
}

// sorted drains the heap, best hit first.
func (t *topK) sorted() []hit {
	out := make([]hit, t.h.Len())
	for i := len(out) - 1; i >= 0; i-- {
		out[i] = heap.Pop(&t.h).(hit)
	}
	return out
}

func weaker(a, b hit) bool {
	if a.score != b.score {
		return a.score < b.score
	}
	return a.ordinal > b.ordinal
}

type hitHeap []hit

func (h hitHeap) Len() int { return len(h) }

func (h hitHeap) Less(i, j int) bool { return weaker(h[i], h[j]) }

func (h hitHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *hitHeap) Push(x interface{}) {
	*h = append(*h, x.(hit))
}

func (h *hitHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
