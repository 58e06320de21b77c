package corpus

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	apperrors "github.com/Adithya-Monish-Kumar-K/corpus-retrieval/pkg/errors"
)

// Analyzer is the preprocessing step applied to raw text.
type Analyzer interface {
	Analyze(text string) []string
}

// Loader reads a corpus from flat per-document term lists: one file per
// document, whitespace-separated tokens, file name as the document id.
type Loader struct {
	ProcessedDir string
	RawDir       string
	Extension    string
	logger       *slog.Logger
}

func NewLoader(processedDir, rawDir, extension string) *Loader {
	if extension == "" {
		extension = ".txt"
	}
	return &Loader{
		ProcessedDir: processedDir,
		RawDir:       rawDir,
		Extension:    extension,
		logger:       slog.Default().With("component", "corpus-loader"),
	}
}

// Load reads every processed file and, when RawDir is set, attaches the raw
// text of the same name for snippets. Missing raw files are not an error.
func (l *Loader) Load() (*Corpus, error) {
	names, err := l.listFiles(l.ProcessedDir)
	if err != nil {
		return nil, err
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("%w: no %s files in %s", apperrors.ErrInvalidCorpus, l.Extension, l.ProcessedDir)
	}
	docs := make([]Document, 0, len(names))
	missingRaw := 0
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(l.ProcessedDir, name))
		if err != nil {
			return nil, fmt.Errorf("reading processed document %s: %w", name, err)
		}
		doc := Document{ID: name, Tokens: strings.Fields(string(data))}
		if l.RawDir != "" {
			raw, err := os.ReadFile(filepath.Join(l.RawDir, name))
			switch {
			case err == nil:
				doc.Text = string(raw)
			case os.IsNotExist(err):
				missingRaw++
			default:
				return nil, fmt.Errorf("reading raw document %s: %w", name, err)
			}
		}
		docs = append(docs, doc)
	}
	c, err := New(docs)
	if err != nil {
		return nil, err
	}
	l.logger.Info("corpus loaded",
		"dir", l.ProcessedDir,
		"documents", c.Len(),
		"missing_raw", missingRaw,
	)
	return c, nil
}

// Preprocess analyzes every raw file and returns the resulting corpus. When
// ProcessedDir is set the term lists are also written there so later runs can
// use Load directly.
func (l *Loader) Preprocess(analyzer Analyzer) (*Corpus, error) {
	names, err := l.listFiles(l.RawDir)
	if err != nil {
		return nil, err
	}
	if l.ProcessedDir != "" {
		if err := os.MkdirAll(l.ProcessedDir, 0755); err != nil {
			return nil, fmt.Errorf("creating processed directory: %w", err)
		}
	}
	docs := make([]Document, 0, len(names))
	for _, name := range names {
		raw, err := os.ReadFile(filepath.Join(l.RawDir, name))
		if err != nil {
			return nil, fmt.Errorf("reading raw document %s: %w", name, err)
		}
		tokens := analyzer.Analyze(string(raw))
		if l.ProcessedDir != "" {
			out := filepath.Join(l.ProcessedDir, name)
			if err := os.WriteFile(out, []byte(strings.Join(tokens, " ")), 0644); err != nil {
				return nil, fmt.Errorf("writing processed document %s: %w", name, err)
			}
		}
		l.logger.Debug("document preprocessed", "doc_id", name, "tokens", len(tokens))
		docs = append(docs, Document{ID: name, Tokens: tokens, Text: string(raw)})
	}
	c, err := New(docs)
	if err != nil {
		return nil, err
	}
	l.logger.Info("corpus preprocessed", "raw_dir", l.RawDir, "documents", c.Len())
	return c, nil
}

func (l *Loader) listFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading corpus directory %s: %w", dir, err)
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), l.Extension) {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}
