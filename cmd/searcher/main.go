// Command searcher serves a retrieval session over HTTP.
//
// Redis (result cache), Kafka (analytics events) and PostgreSQL (evaluation
// history) are each optional: when a backend is disabled or unreachable the
// service starts without it and reports it as degraded.
//
// Usage:
//
//	go run ./cmd/searcher [--config configs/development.yaml] [--preprocess]
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/Adithya-Monish-Kumar-K/corpus-retrieval/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/corpus-retrieval/internal/evaluator"
	"github.com/Adithya-Monish-Kumar-K/corpus-retrieval/internal/evaluator/store"
	"github.com/Adithya-Monish-Kumar-K/corpus-retrieval/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/corpus-retrieval/internal/searcher/handler"
	"github.com/Adithya-Monish-Kumar-K/corpus-retrieval/internal/searcher/session"
	"github.com/Adithya-Monish-Kumar-K/corpus-retrieval/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/corpus-retrieval/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/corpus-retrieval/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/corpus-retrieval/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/corpus-retrieval/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/corpus-retrieval/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/corpus-retrieval/pkg/postgres"
	pkgredis "github.com/Adithya-Monish-Kumar-K/corpus-retrieval/pkg/redis"
)

func main() {
	flagSet := pflag.NewFlagSet("searcher", pflag.ExitOnError)
	configPath := flagSet.String("config", "configs/development.yaml", "path to config file")
	preprocess := flagSet.Bool("preprocess", false, "rebuild the processed corpus from the raw directory before serving")
	flagSet.Parse(os.Args[1:])

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format, logger.Service("searcher"))
	slog.Info("starting search service", "port", cfg.Server.Port)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sess, err := session.Open(cfg, *preprocess)
	if err != nil {
		slog.Error("failed to open retrieval session", "error", err)
		os.Exit(1)
	}
	r := sess.Ranker

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
		m.CorpusDocuments.Set(float64(r.Corpus().Len()))
		m.VocabularySize.Set(float64(r.Stats().VocabularySize()))
		metricsErr := m.StartServer(ctx, cfg.Metrics.Port, cfg.Server.ShutdownTimeout)
		go func() {
			if err := <-metricsErr; err != nil {
				slog.Error("metrics server failed, shutting down", "error", err)
				stop()
			}
		}()
	}

	checker := health.NewChecker()
	checker.Register("retrieval", func(ctx context.Context) health.ComponentHealth {
		return health.ComponentHealth{
			Status:  health.StatusUp,
			Message: fmt.Sprintf("%d documents, %d terms", r.Corpus().Len(), r.Stats().VocabularySize()),
		}
	})

	var resultCache *cache.ResultCache
	if cfg.Redis.Enabled {
		redisClient, err := pkgredis.NewClient(ctx, cfg.Redis)
		if err != nil {
			slog.Warn("redis unavailable, result caching disabled", "error", err)
		} else {
			defer redisClient.Close()
			generation := cache.Generation(r.Corpus(),
				cfg.Retrieval.OOVPolicy,
				cfg.Retrieval.Vectorizer,
				fmt.Sprintf("k1=%v,b=%v", cfg.Retrieval.K1, cfg.Retrieval.B),
				fmt.Sprintf("snippet=%d,explain=%d", cfg.Retrieval.SnippetLength, cfg.Retrieval.ExplainTerms),
			)
			resultCache = cache.New(redisClient, cfg.Redis.CacheTTL, generation, m)
			checker.Register("redis", health.PingCheck(redisClient.Ping, false))
			slog.Info("result cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL, "generation", generation)
		}
	}

	var tracker handler.Tracker
	if cfg.Kafka.Enabled {
		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.SearchEvents)
		defer producer.Close()
		collector := analytics.NewCollector(producer, cfg.Kafka.BufferSize, cfg.Kafka.BatchSize, cfg.Kafka.FlushInterval)
		collector.Start(ctx)
		defer collector.Close()
		tracker = collector
		slog.Info("analytics publishing enabled", "topic", cfg.Kafka.Topics.SearchEvents)
	}

	var runs handler.RunStore
	if cfg.Postgres.Enabled {
		db, err := postgres.New(ctx, cfg.Postgres)
		if err != nil {
			slog.Warn("postgres unavailable, evaluation history disabled", "error", err)
		} else {
			defer db.Close()
			runStore := store.New(db, cfg.Postgres.QueryTimeout)
			if err := runStore.Migrate(ctx); err != nil {
				slog.Error("evaluation schema migration failed", "error", err)
				os.Exit(1)
			}
			runs = runStore
			checker.Register("postgres", health.PingCheck(db.Ping, false))
		}
	}

	h := handler.New(handler.Deps{
		Searcher:  r,
		Evaluator: evaluator.New(r, cfg.Retrieval.EvalConcurrency),
		Gold:      sess.Gold,
		Cache:     resultCache,
		Tracker:   tracker,
		Runs:      runs,
		Metrics:   m,
		Defaults:  cfg.Retrieval,
		SlowQuery: cfg.Retrieval.SlowQuery,
	})

	mux := http.NewServeMux()
	h.Register(mux)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	var chain http.Handler = middleware.Timeout(cfg.Server.WriteTimeout)(mux)
	if m != nil {
		chain = middleware.Metrics(m)(chain)
	}
	if cfg.Server.RateLimit > 0 {
		limiter := middleware.NewLimiter(cfg.Server.RateLimit, time.Minute)
		go pruneLimiter(ctx, limiter)
		chain = middleware.RateLimit(limiter)(chain)
	}
	if len(cfg.Server.CORSOrigins) > 0 {
		chain = middleware.CORS(middleware.NewCORSConfig(cfg.Server.CORSOrigins))(chain)
	}
	chain = middleware.RequestID(chain)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
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

	slog.Info("search service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("search service stopped")
}

func pruneLimiter(ctx context.Context, l *middleware.Limiter) {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := l.Prune(); n > 0 {
				slog.Debug("pruned idle rate limit buckets", "count", n)
			}
		}
	}
}
