// Command chat is an interactive front end to the retrieval session: every
// line typed is ranked and answered from the best document.
//
// Usage:
//
//	go run ./cmd/chat [--config configs/development.yaml] [--model bm25]
package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/pflag"

	"github.com/Adithya-Monish-Kumar-K/corpus-retrieval/internal/searcher/chat"
	"github.com/Adithya-Monish-Kumar-K/corpus-retrieval/internal/searcher/ranker"
	"github.com/Adithya-Monish-Kumar-K/corpus-retrieval/internal/searcher/session"
	"github.com/Adithya-Monish-Kumar-K/corpus-retrieval/internal/searcher/vectorizer"
	"github.com/Adithya-Monish-Kumar-K/corpus-retrieval/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/corpus-retrieval/pkg/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	var configPath, model, weighting, logLevel string
	var k int
	flagSet := pflag.NewFlagSet("chat", pflag.ContinueOnError)
	flagSet.SetOutput(stderr)
	flagSet.StringVar(&configPath, "config", "", "path to config file")
	flagSet.StringVarP(&model, "model", "m", "vsm", "ranking model: boolean, vsm or bm25")
	flagSet.StringVarP(&weighting, "weight", "w", "tfidf", "vsm term weighting: tfidf or tfidf_sublinear")
	flagSet.IntVar(&k, "k", chat.DefaultResults, "results listed under each answer")
	flagSet.StringVar(&logLevel, "log-level", "warn", "log level: debug, info, warn, error")
	if err := flagSet.Parse(args); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger.SetupWriter(stderr, logLevel, cfg.Logging.Format)

	m, err := ranker.ParseModel(model)
	if err != nil {
		return err
	}
	w, err := vectorizer.ParseWeighting(weighting)
	if err != nil {
		return err
	}
	s, err := session.Open(cfg, false)
	if err != nil {
		return err
	}
	responder := chat.NewResponder(s.Ranker, m, w, k)

	fmt.Fprintf(stdout, "Loaded %d documents. Type 'exit' to quit.\n", s.Ranker.Corpus().Len())
	scanner := bufio.NewScanner(stdin)
	for {
		fmt.Fprint(stdout, "\nYou: ")
		if !scanner.Scan() {
			fmt.Fprintln(stdout)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		switch strings.ToLower(line) {
		case "":
			continue
		case "exit", "quit":
			fmt.Fprintln(stdout, "Bot: Goodbye!")
			return nil
		}
		reply, err := responder.Answer(ctx, line)
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "\nBot: %s\n", chat.Format(reply))
	}
}
