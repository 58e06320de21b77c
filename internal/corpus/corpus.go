// Package corpus holds the fixed document collection a retrieval session
// works over. Documents keep their load order, which the ranker uses as the
// deterministic tie-break.
package corpus

import (
	"fmt"
	"net/http"
	"sort"
	"strings"

	apperrors "github.com/Adithya-Monish-Kumar-K/corpus-retrieval/pkg/errors"
)

// Document is one pre-normalized document.
type Document struct {
	ID      string   `json:"id"`
	Tokens  []string `json:"tokens"`
	Text    string   `json:"text,omitempty"`
	Ordinal int      `json:"ordinal"`
}

// Corpus is an immutable, ordered set of documents.
type Corpus struct {
	docs []Document
	byID map[string]int
}

// New builds a Corpus from docs in the given order. Ordinals are reassigned
// to match that order.
func New(docs []Document) (*Corpus, error) {
	c := &Corpus{
		docs: make([]Document, 0, len(docs)),
		byID: make(map[string]int, len(docs)),
	}
	for _, d := range docs {
		if strings.TrimSpace(d.ID) == "" {
			return nil, apperrors.New(apperrors.ErrInvalidArgument, http.StatusBadRequest, "document id must not be empty")
		}
		if _, dup := c.byID[d.ID]; dup {
			return nil, fmt.Errorf("%w: %s", apperrors.ErrDuplicateDocument, d.ID)
		}
		tokens := make([]string, len(d.Tokens))
		copy(tokens, d.Tokens)
		c.byID[d.ID] = len(c.docs)
		c.docs = append(c.docs, Document{
			ID:      d.ID,
			Tokens:  tokens,
			Text:    d.Text,
			Ordinal: len(c.docs),
		})
	}
	return c, nil
}

// FromTokens builds a Corpus from an id → tokens mapping. Map iteration has no
// order, so documents are loaded in ascending id order.
func FromTokens(m map[string][]string) (*Corpus, error) {
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	docs := make([]Document, 0, len(ids))
	for _, id := range ids {
		docs = append(docs, Document{ID: id, Tokens: m[id]})
	}
	return New(docs)
}

// Len returns the number of documents.
func (c *Corpus) Len() int {
	return len(c.docs)
}

// At returns the document with the given ordinal.
func (c *Corpus) At(ordinal int) *Document {
	return &c.docs[ordinal]
}

// Get looks up a document by id.
func (c *Corpus) Get(id string) (*Document, error) {
	i, ok := c.byID[id]
	if !ok {
		return nil, apperrors.Newf(apperrors.ErrDocumentNotFound, http.StatusNotFound, "document %q is not in the corpus", id)
	}
	return &c.docs[i], nil
}

// Contains reports whether id is loaded.
func (c *Corpus) Contains(id string) bool {
	_, ok := c.byID[id]
	return ok
}

// Documents returns the documents in load order. Callers must not modify
// the returned slice.
func (c *Corpus) Documents() []Document {
	return c.docs
}

// IDs returns document ids in load order.
func (c *Corpus) IDs() []string {
	ids := make([]string, len(c.docs))
	for i, d := range c.docs {
		ids[i] = d.ID
	}
	return ids
}

// Snippet returns the first n runes of the document's raw text, or of its
// joined tokens when no raw text was loaded.
func (d *Document) Snippet(n int) string {
	text := d.Text
	if text == "" {
		text = strings.Join(d.Tokens, " ")
	}
	text = strings.Join(strings.Fields(text), " ")
	if n <= 0 {
		return text
	}
	runes := []rune(text)
	if len(runes) <= n {
		return text
	}
	return string(runes[:n])
}
