// Package index implements the boolean retrieval engine: an inverted index
// from term to the set of documents containing it, with AND/OR set queries.
// Posting sets are roaring bitmaps over document load ordinals, so every
// result comes back in corpus order.
package index

import (
	"sort"
	"strings"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/Adithya-Monish-Kumar-K/corpus-retrieval/internal/corpus"
	apperrors "github.com/Adithya-Monish-Kumar-K/corpus-retrieval/pkg/errors"
)

type Operator string

const (
	OpAND Operator = "AND"
	OpOR  Operator = "OR"
)

// ParseOperator accepts AND/OR in any case; empty means AND.
func ParseOperator(name string) (Operator, error) {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "", "AND":
		return OpAND, nil
	case "OR":
		return OpOR, nil
	}
	return "", apperrors.Invalid("unknown boolean operator %q", name)
}

// Index is immutable after Build. Tokens are indexed as given, with no case
// folding; normalization is the preprocessor's job.
type Index struct {
	postings map[string]*roaring.Bitmap
	ids      []string
}

// Build creates the inverted index for c.
func Build(c *corpus.Corpus) *Index {
	idx := &Index{
		postings: make(map[string]*roaring.Bitmap),
		ids:      c.IDs(),
	}
	for _, doc := range c.Documents() {
		for _, term := range doc.Tokens {
			bm, ok := idx.postings[term]
			if !ok {
				bm = roaring.New()
				idx.postings[term] = bm
			}
			bm.Add(uint32(doc.Ordinal))
		}
	}
	for _, bm := range idx.postings {
		bm.RunOptimize()
	}
	return idx
}

// Postings returns the ids of documents containing term, in corpus order.
func (idx *Index) Postings(term string) []string {
	bm, ok := idx.postings[term]
	if !ok {
		return nil
	}
	return idx.toIDs(bm)
}

// DocFreq returns the posting-set size of term.
func (idx *Index) DocFreq(term string) int {
	bm, ok := idx.postings[term]
	if !ok {
		return 0
	}
	return int(bm.GetCardinality())
}

// Terms returns the number of distinct indexed terms.
func (idx *Index) Terms() int {
	return len(idx.postings)
}

// Retrieve answers a boolean query and returns matching document ids in
// corpus order. An empty token sequence yields an empty result.
func (idx *Index) Retrieve(tokens []string, op Operator) []string {
	return idx.toIDs(idx.Match(tokens, op))
}

// Match is Retrieve returning the raw ordinal set. Under AND a token with no
// postings empties the result; under OR it is ignored.
func (idx *Index) Match(tokens []string, op Operator) *roaring.Bitmap {
	if len(tokens) == 0 {
		return roaring.New()
	}
	sets := make([]*roaring.Bitmap, 0, len(tokens))
	seen := make(map[string]struct{}, len(tokens))
	for _, term := range tokens {
		if _, dup := seen[term]; dup {
			continue
		}
		seen[term] = struct{}{}
		bm, ok := idx.postings[term]
		if !ok {
			if op == OpAND {
				return roaring.New()
			}
			continue
		}
		sets = append(sets, bm)
	}
	if len(sets) == 0 {
		return roaring.New()
	}
	switch op {
	case OpOR:
		return union(sets)
	default:
		return intersect(sets)
	}
}

// intersect starts from the smallest posting set so the working set only
// shrinks.
func intersect(sets []*roaring.Bitmap) *roaring.Bitmap {
	sort.Slice(sets, func(i, j int) bool {
		return sets[i].GetCardinality() < sets[j].GetCardinality()
	})
	result := sets[0].Clone()
	for _, bm := range sets[1:] {
		if result.IsEmpty() {
			break
		}
		result.And(bm)
	}
	return result
}

func union(sets []*roaring.Bitmap) *roaring.Bitmap {
	result := roaring.New()
	for _, bm := range sets {
		result.Or(bm)
	}
	return result
}

func (idx *Index) toIDs(bm *roaring.Bitmap) []string {
	ids := make([]string, 0, bm.GetCardinality())
	it := bm.Iterator()
	for it.HasNext() {
		ids = append(ids, idx.ids[it.Next()])
	}
	return ids
}
