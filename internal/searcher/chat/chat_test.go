package chat

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/corpus-retrieval/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/corpus-retrieval/internal/searcher/ranker"
)

type fakeRanker struct {
	results []ranker.Result
	err     error
	got     ranker.Request
}

func (f *fakeRanker) Rank(_ context.Context, req ranker.Request) ([]ranker.Result, error) {
	f.got = req
	return f.results, f.err
}

func TestTitle(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"ayam_goreng.txt", "Ayam Goreng"},
		{"SOTO-betawi.txt", "Soto Betawi"},
		{"rendang", "Rendang"},
		{"nasi__uduk.md", "Nasi Uduk"},
		{"école_du_ayam.txt", "École Du Ayam"},
	}
	for _, tt := range tests {
		if got := Title(tt.in); got != tt.want {
			t.Errorf("Title(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestAnswer(t *testing.T) {
	f := &fakeRanker{results: []ranker.Result{
		{Rank: 1, DocID: "ayam_goreng.txt", Score: 0.8, Snippet: "ayam goreng bumbu kuning"},
		{Rank: 2, DocID: "ayam_bakar.txt", Score: 0.3},
	}}
	r := NewResponder(f, ranker.VSM, "", 0)
	reply, err := r.Answer(context.Background(), "ayam goreng")
	if err != nil {
		t.Fatal(err)
	}
	if f.got.K != DefaultResults || f.got.Model != ranker.VSM {
		t.Errorf("request = %+v", f.got)
	}
	if reply.Best == nil || reply.Best.DocID != "ayam_goreng.txt" {
		t.Fatalf("best = %+v", reply.Best)
	}
	for _, want := range []string{"**Ayam Goreng**", "ayam goreng bumbu kuning", "ayam_goreng.txt"} {
		if !strings.Contains(reply.Answer, want) {
			t.Errorf("answer %q missing %q", reply.Answer, want)
		}
	}
	out := Format(reply)
	if !strings.Contains(out, "Top results:") || !strings.Contains(out, " - ayam_bakar.txt (score=0.3000)") {
		t.Errorf("Format = %q", out)
	}
}

func TestAnswerNoMatch(t *testing.T) {
	for _, results := range [][]ranker.Result{
		{},
		{{Rank: 1, DocID: "a.txt", Score: 0}},
	} {
		r := NewResponder(&fakeRanker{results: results}, ranker.VSM, "", 3)
		reply, err := r.Answer(context.Background(), "sapi")
		if err != nil {
			t.Fatal(err)
		}
		if reply.Best != nil || reply.Answer != noMatch || len(reply.Results) != 0 {
			t.Errorf("reply = %+v", reply)
		}
	}
}

// "ayam" occurs in two of three documents, so its BM25 idf is negative and
// the matching documents rank below the one that lacks the term.
func TestAnswerBM25CommonTerm(t *testing.T) {
	c, err := corpus.New([]corpus.Document{
		{ID: "a.txt", Tokens: []string{"ayam", "goreng"}, Text: "Ayam goreng renyah."},
		{ID: "b.txt", Tokens: []string{"ayam", "bakar"}, Text: "Ayam bakar madu."},
		{ID: "c.txt", Tokens: []string{"ikan", "bakar"}, Text: "Ikan bakar sambal."},
	})
	if err != nil {
		t.Fatal(err)
	}
	rk, err := ranker.New(c, nil, ranker.Options{})
	if err != nil {
		t.Fatal(err)
	}
	reply, err := NewResponder(rk, ranker.BM25, "", 3).Answer(context.Background(), "ayam")
	if err != nil {
		t.Fatal(err)
	}
	if reply.Best == nil || reply.Best.DocID != "a.txt" {
		t.Fatalf("best = %+v, answer = %q", reply.Best, reply.Answer)
	}
	if reply.Best.Score >= 0 {
		t.Errorf("best score = %v, want negative", reply.Best.Score)
	}
	if len(reply.Results) != 2 || reply.Results[1].DocID != "b.txt" {
		t.Errorf("results = %+v, want a.txt and b.txt only", reply.Results)
	}
	if !strings.Contains(reply.Answer, "**A**") {
		t.Errorf("answer = %q", reply.Answer)
	}
}

func TestAnswerSkipsUnmatchedLeader(t *testing.T) {
	f := &fakeRanker{results: []ranker.Result{
		{Rank: 1, DocID: "ikan_bakar.txt", Score: 0},
		{Rank: 2, DocID: "ayam_bakar.txt", Score: -0.4, Terms: []ranker.TermScore{{Term: "ayam", Weight: -0.4}}},
	}}
	for _, model := range []ranker.Model{ranker.BM25, ranker.Boolean} {
		reply, err := NewResponder(f, model, "", 3).Answer(context.Background(), "ayam")
		if err != nil {
			t.Fatal(err)
		}
		if reply.Best == nil || reply.Best.DocID != "ayam_bakar.txt" || len(reply.Results) != 1 {
			t.Errorf("%s: reply = %+v", model, reply)
		}
	}
}

func TestAnswerError(t *testing.T) {
	boom := errors.New("boom")
	r := NewResponder(&fakeRanker{err: boom}, ranker.VSM, "", 3)
	if _, err := r.Answer(context.Background(), "x"); !errors.Is(err, boom) {
		t.Errorf("err = %v", err)
	}
}

func TestWrap(t *testing.T) {
	s := strings.Repeat("kata ", 40)
	for _, line := range strings.Split(wrap(s, 20), "\n") {
		if len(line) > 20 {
			t.Errorf("line %q longer than 20", line)
		}
	}
	if wrap("   ", 10) != "" {
		t.Error("blank input should wrap to empty")
	}
}
