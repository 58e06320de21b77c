// Package tokenizer is the text preprocessor shared by the corpus builder and
// the query path. It case-folds input, strips digits, punctuation and
// non-ASCII characters, removes stop-words and optionally stems with a
// Snowball stemmer. Documents and queries must go through the same Analyzer
// or vector-space scores lose their meaning.
package tokenizer

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/kljensen/snowball"
)

// DefaultStopwords is a compact Indonesian stop-word list matching the one
// the bundled recipe corpus was processed with.
var DefaultStopwords = []string{
	"ada", "adalah", "agar", "akan", "aku", "anda", "apa", "atau", "bagi",
	"bahwa", "banyak", "beberapa", "belum", "bisa", "dalam", "dan", "dari",
	"dengan", "di", "dia", "hingga", "ini", "itu", "jika", "juga", "kami",
	"kamu", "karena", "ke", "kita", "lagi", "lalu", "mereka", "nya", "oleh",
	"pada", "para", "saat", "sampai", "saya", "sebagai", "secara", "sedang",
	"sehingga", "setelah", "sudah", "tapi", "telah", "tersebut", "untuk",
	"yang",
}

// Analyzer turns raw text into normalized terms.
type Analyzer struct {
	stopWords map[string]struct{}
	language  string
}

// New creates an Analyzer. An empty language disables stemming; otherwise it
// must be a language supported by the snowball package (english, spanish,
// french, russian, swedish, norwegian, hungarian).
func New(stopwords []string, language string) (*Analyzer, error) {
	stop := make(map[string]struct{}, len(stopwords))
	for _, w := range stopwords {
		stop[strings.ToLower(w)] = struct{}{}
	}
	if language != "" {
		if _, err := snowball.Stem("probe", language, true); err != nil {
			return nil, fmt.Errorf("unsupported stemmer language %q: %w", language, err)
		}
	}
	return &Analyzer{stopWords: stop, language: language}, nil
}

// Clean lower-cases text and replaces digits, punctuation and non-ASCII runes
// with spaces, collapsing runs of whitespace.
func Clean(text string) string {
	text = strings.ToLower(text)
	cleaned := strings.Map(func(r rune) rune {
		switch {
		case r > unicode.MaxASCII:
			return ' '
		case unicode.IsDigit(r), unicode.IsPunct(r), unicode.IsSymbol(r):
			return ' '
		case unicode.IsSpace(r):
			return ' '
		}
		return r
	}, text)
	return strings.Join(strings.Fields(cleaned), " ")
}

// Analyze runs the full pipeline: clean, split, stop-word filter, stem.
func (a *Analyzer) Analyze(text string) []string {
	words := strings.Fields(Clean(text))
	terms := make([]string, 0, len(words))
	for _, word := range words {
		if _, isStop := a.stopWords[word]; isStop {
			continue
		}
		term := a.stem(word)
		if term == "" {
			continue
		}
		terms = append(terms, term)
	}
	return terms
}

func (a *Analyzer) stem(word string) string {
	if a.language == "" {
		return word
	}
	stemmed, err := snowball.Stem(word, a.language, true)
	if err != nil {
		return word
	}
	return stemmed
}
