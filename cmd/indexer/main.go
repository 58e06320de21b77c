// Command indexer preprocesses the raw corpus offline. It analyzes every raw
// document, writes the term lists to the processed directory, and prints a
// summary of the resulting index: document count, vocabulary size, average
// document length and the terms with the highest document frequency.
//
// Usage:
//
//	go run ./cmd/indexer [--config configs/development.yaml] [--raw data] [--out data/processed] [--top 20]
package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/pflag"

	"github.com/Adithya-Monish-Kumar-K/corpus-retrieval/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/corpus-retrieval/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/corpus-retrieval/internal/indexer/stats"
	"github.com/Adithya-Monish-Kumar-K/corpus-retrieval/internal/searcher/session"
	"github.com/Adithya-Monish-Kumar-K/corpus-retrieval/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/corpus-retrieval/pkg/logger"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	flags := pflag.NewFlagSet("indexer", pflag.ContinueOnError)
	flags.SetOutput(stderr)
	configPath := flags.String("config", "configs/development.yaml", "path to config file")
	rawDir := flags.String("raw", "", "raw document directory (default: corpus.rawDir)")
	outDir := flags.String("out", "", "processed output directory (default: corpus.processedDir)")
	top := flags.Int("top", 20, "number of highest document-frequency terms to list")
	logLevel := flags.String("log-level", "", "override logging.level")
	if err := flags.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		return 2
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "failed to load config: %v\n", err)
		return 1
	}
	if *rawDir != "" {
		cfg.Corpus.RawDir = *rawDir
	}
	if *outDir != "" {
		cfg.Corpus.ProcessedDir = *outDir
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format, logger.Service("indexer"))
	if cfg.Corpus.RawDir == "" {
		fmt.Fprintln(stderr, "no raw directory configured")
		return 2
	}

	start := time.Now()
	analyzer, err := session.NewAnalyzer(cfg.Corpus)
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}
	loader := corpus.NewLoader(cfg.Corpus.ProcessedDir, cfg.Corpus.RawDir, cfg.Corpus.Extension)
	c, err := loader.Preprocess(analyzer)
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}
	policy, err := stats.ParseOOVPolicy(cfg.Retrieval.OOVPolicy)
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}
	s, err := stats.Build(c, policy)
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}
	idx := index.Build(c)

	fmt.Fprintf(stdout, "raw directory:       %s\n", cfg.Corpus.RawDir)
	fmt.Fprintf(stdout, "processed directory: %s\n", cfg.Corpus.ProcessedDir)
	fmt.Fprintf(stdout, "documents:           %d\n", c.Len())
	fmt.Fprintf(stdout, "vocabulary:          %d\n", s.VocabularySize())
	fmt.Fprintf(stdout, "indexed terms:       %d\n", idx.Terms())
	fmt.Fprintf(stdout, "avg doc length:      %.2f\n", s.AvgDocLength)
	fmt.Fprintf(stdout, "elapsed:             %s\n", time.Since(start).Round(time.Millisecond))
	if *top > 0 && s.VocabularySize() > 0 {
		fmt.Fprintln(stdout)
		printTopTerms(stdout, s, *top)
	}
	return 0
}

// printTopTerms lists the n terms present in the most documents, ties broken
// alphabetically.
func printTopTerms(w io.Writer, s *stats.Statistics, n int) {
	terms := s.Terms()
	sort.SliceStable(terms, func(i, j int) bool {
		return s.DocFreq(terms[i]) > s.DocFreq(terms[j])
	})
	if len(terms) > n {
		terms = terms[:n]
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TERM\tDF\tIDF")
	for _, t := range terms {
		fmt.Fprintf(tw, "%s\t%d\t%.4f\n", t, s.DocFreq(t), s.IDF(t))
	}
	tw.Flush()
}
