// Command analytics starts the standalone analytics aggregation service.
//
// It consumes search and evaluation events from Kafka, aggregates them in
// memory (query volume per model, latency percentiles, cache hit rate, zero
// result rate, top queries and documents, latest evaluation per model), and
// exposes them at GET /api/v1/analytics.
//
// Usage:
//
//	go run ./cmd/analytics [--config configs/development.yaml]
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/Adithya-Monish-Kumar-K/corpus-retrieval/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/corpus-retrieval/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/corpus-retrieval/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/corpus-retrieval/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/corpus-retrieval/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/corpus-retrieval/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/corpus-retrieval/pkg/middleware"
)

func main() {
	flagSet := pflag.NewFlagSet("analytics", pflag.ExitOnError)
	configPath := flagSet.String("config", "configs/development.yaml", "path to config file")
	port := flagSet.Int("port", 0, "HTTP port (default: server.port + 1)")
	flagSet.Parse(os.Args[1:])

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *port == 0 {
		*port = cfg.Server.Port + 1
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format, logger.Service("analytics"))
	slog.Info("starting analytics service", "port", *port, "topic", cfg.Kafka.Topics.SearchEvents)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	aggregator := analytics.NewAggregator()
	consumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.SearchEvents, aggregator.Handle)
	go func() {
		if err := consumer.Start(ctx); err != nil {
			slog.Error("consumer error", "error", err)
		}
	}()

	checker := health.NewChecker()
	checker.Register("kafka", func(ctx context.Context) health.ComponentHealth {
		stats, counts := consumer.Stats(), consumer.Counts()
		msg := fmt.Sprintf("processed %d, dropped %d, failed %d, lag %d",
			counts.Processed, counts.Dropped, counts.Failed, stats.Lag)
		if stats.Errors > 0 && counts.Processed == 0 {
			return health.ComponentHealth{Status: health.StatusDegraded, Message: msg}
		}
		return health.ComponentHealth{Status: health.StatusUp, Message: msg}
	})

	mux := http.NewServeMux()
	analytics.NewHandler(aggregator).Register(mux)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	var chain http.Handler = mux
	if cfg.Metrics.Enabled {
		m := metrics.New()
		mux.Handle("GET /metrics", m.Handler())
		chain = middleware.Metrics(m)(chain)
	}
	chain = middleware.RequestID(chain)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("analytics service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("analytics service stopped")
}
