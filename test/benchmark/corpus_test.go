package benchmark

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/corpus-retrieval/internal/corpus"
)

// vocabulary is drawn from with a skewed distribution so a few terms are
// common and most are rare, as in real text.
var vocabulary = func() []string {
	words := make([]string, 2000)
	for i := range words {
		words[i] = fmt.Sprintf("term%04d", i)
	}
	return words
}()

func syntheticCorpus(b *testing.B, numDocs, docLen int) *corpus.Corpus {
	b.Helper()
	rng := rand.New(rand.NewSource(42))
	zipf := rand.NewZipf(rng, 1.1, 1, uint64(len(vocabulary)-1))
	docs := make([]corpus.Document, numDocs)
	for i := range docs {
		tokens := make([]string, docLen)
		for j := range tokens {
			tokens[j] = vocabulary[zipf.Uint64()]
		}
		docs[i] = corpus.Document{ID: fmt.Sprintf("doc%06d.txt", i), Tokens: tokens}
	}
	c, err := corpus.New(docs)
	if err != nil {
		b.Fatal(err)
	}
	return c
}

var benchQueries = [][]string{
	{"term0001"},
	{"term0003", "term0150"},
	{"term0010", "term0020", "term0400", "term1500"},
}
