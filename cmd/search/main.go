// Command search ranks one query against the configured corpus, or evaluates
// a model against gold judgments, and prints the result.
//
// Usage:
//
//	go run ./cmd/search --model bm25 --k 5 --query "ayam goreng"
//	go run ./cmd/search --model vsm --weight sublinear --eval data/gold.json
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"text/tabwriter"

	"github.com/spf13/pflag"

	"github.com/Adithya-Monish-Kumar-K/corpus-retrieval/internal/evaluator"
	"github.com/Adithya-Monish-Kumar-K/corpus-retrieval/internal/searcher/ranker"
	"github.com/Adithya-Monish-Kumar-K/corpus-retrieval/internal/searcher/session"
	"github.com/Adithya-Monish-Kumar-K/corpus-retrieval/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/corpus-retrieval/pkg/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

type options struct {
	configPath string
	model      string
	weighting  string
	operator   string
	k          int
	query      string
	goldPath   string
	preprocess bool
	jsonOutput bool
	logLevel   string
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	var opts options
	flagSet := pflag.NewFlagSet("search", pflag.ContinueOnError)
	flagSet.SetOutput(stderr)
	flagSet.StringVar(&opts.configPath, "config", "", "path to config file")
	flagSet.StringVarP(&opts.model, "model", "m", "", "ranking model: boolean, vsm or bm25 (default from config)")
	flagSet.StringVarP(&opts.weighting, "weight", "w", "", "vsm term weighting: tfidf or tfidf_sublinear")
	flagSet.StringVar(&opts.operator, "op", "", "boolean operator: AND or OR")
	flagSet.IntVar(&opts.k, "k", 0, "number of results (default from config)")
	flagSet.StringVarP(&opts.query, "query", "q", "", "query text; remaining arguments are used when empty")
	flagSet.StringVar(&opts.goldPath, "eval", "", "evaluate against this gold judgment file instead of searching")
	flagSet.BoolVar(&opts.preprocess, "preprocess", false, "rebuild the processed corpus from the raw directory first")
	flagSet.BoolVar(&opts.jsonOutput, "json", false, "print JSON instead of a table")
	flagSet.StringVar(&opts.logLevel, "log-level", "warn", "log level: debug, info, warn, error")
	if err := flagSet.Parse(args); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}
	if opts.query == "" {
		opts.query = strings.Join(flagSet.Args(), " ")
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}
	logger.SetupWriter(stderr, opts.logLevel, cfg.Logging.Format)

	settings, err := resolveSettings(cfg.Retrieval, opts)
	if err != nil {
		return err
	}
	if opts.goldPath != "" {
		cfg.Corpus.GoldPath = opts.goldPath
	}
	s, err := session.Open(cfg, opts.preprocess)
	if err != nil {
		return err
	}

	if opts.goldPath != "" {
		report, err := evaluator.New(s.Ranker, cfg.Retrieval.EvalConcurrency).Evaluate(ctx, s.Gold, settings)
		if err != nil {
			return err
		}
		if opts.jsonOutput {
			return writeJSON(stdout, report)
		}
		printReport(stdout, report)
		return nil
	}

	if strings.TrimSpace(opts.query) == "" {
		return fmt.Errorf("a query is required: use --query or pass it as arguments")
	}
	results, err := s.Ranker.Rank(ctx, ranker.Request{
		Query:     opts.query,
		Model:     settings.Model,
		Weighting: settings.Weighting,
		Operator:  settings.Operator,
		K:         settings.K,
	})
	if err != nil {
		return err
	}
	if opts.jsonOutput {
		return writeJSON(stdout, results)
	}
	printResults(stdout, opts.query, settings, results)
	return nil
}

// resolveSettings layers the command-line flags over the configured defaults.
func resolveSettings(rc config.RetrievalConfig, opts options) (evaluator.Settings, error) {
	if opts.model != "" {
		rc.Model = opts.model
	}
	if opts.weighting != "" {
		rc.Weighting = opts.weighting
	}
	if opts.operator != "" {
		rc.Operator = opts.operator
	}
	if opts.k != 0 {
		rc.DefaultK = opts.k
	}
	return session.Settings(rc)
}

func printResults(w io.Writer, query string, s evaluator.Settings, results []ranker.Result) {
	fmt.Fprintf(w, "query: %q  model: %s", query, s.Model)
	switch s.Model {
	case ranker.VSM:
		fmt.Fprintf(w, " (%s)", s.Weighting)
	case ranker.Boolean:
		fmt.Fprintf(w, " (%s)", s.Operator)
	}
	fmt.Fprintf(w, "  k: %d\n\n", s.K)
	if len(results) == 0 {
		fmt.Fprintln(w, "no results")
		return
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RANK\tDOCUMENT\tSCORE\tTERMS")
	for _, r := range results {
		terms := make([]string, len(r.Terms))
		for i, t := range r.Terms {
			terms[i] = fmt.Sprintf("%s:%.3f", t.Term, t.Weight)
		}
		fmt.Fprintf(tw, "%d\t%s\t%.4f\t%s\n", r.Rank, r.DocID, r.Score, strings.Join(terms, " "))
	}
	tw.Flush()

	fmt.Fprintln(w)
	for _, r := range results {
		fmt.Fprintf(w, "%d. %s\n   %s\n", r.Rank, r.DocID, r.Snippet)
	}
}

func printReport(w io.Writer, report *evaluator.Report) {
	s := report.Settings
	fmt.Fprintf(w, "model: %s  weighting: %s  k: %d  queries: %d\n\n", s.Model, s.Weighting, s.K, len(report.Queries))

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "QUERY\tP@K\tR@K\tF1\tAP\tNDCG")
	for _, q := range report.Queries {
		fmt.Fprintf(tw, "%s\t%.4f\t%.4f\t%.4f\t%.4f\t%.4f\n", q.Query, q.Precision, q.Recall, q.F1, q.AP, q.NDCG)
	}
	fmt.Fprintf(tw, "MEAN\t%.4f\t%.4f\t%.4f\t%.4f\t%.4f\n", report.Precision, report.Recall, report.F1, report.MAP, report.NDCG)
	tw.Flush()
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
