// Command loadtest drives GET /api/v1/search with concurrent workers and
// reports throughput, latency percentiles, cache hit rate and status codes.
// Queries come from a gold relevance file when one is given, otherwise from
// a small built-in list, and each worker rotates through the ranking models.
//
// Usage:
//
//	go run ./cmd/loadtest [--url http://localhost:8080] [--gold data/gold.json] [-c 10] [-d 30s]
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/Adithya-Monish-Kumar-K/corpus-retrieval/internal/evaluator"
)

var defaultQueries = []string{
	"ayam goreng",
	"rendang daging sapi",
	"sambal terasi",
	"soto ayam kuning",
	"nasi goreng kampung",
	"sayur asem",
	"ikan bakar",
	"gado gado",
}

type Config struct {
	BaseURL     string
	Concurrency int
	Duration    time.Duration
	K           int
	Models      []string
	Queries     []string
}

type Stats struct {
	totalRequests atomic.Int64
	successCount  atomic.Int64
	errorCount    atomic.Int64
	cacheHits     atomic.Int64
	latencies     []time.Duration
	latenciesMu   sync.Mutex
	statusCodes   map[int]*atomic.Int64
	statusCodesMu sync.Mutex
}

func NewStats() *Stats {
	return &Stats{
		latencies:   make([]time.Duration, 0, 100000),
		statusCodes: make(map[int]*atomic.Int64),
	}
}

func (s *Stats) RecordRequest(duration time.Duration, statusCode int, cacheHit bool, err error) {
	s.totalRequests.Add(1)

	if err != nil {
		s.errorCount.Add(1)
		return
	}

	if statusCode >= 200 && statusCode < 300 {
		s.successCount.Add(1)
	} else {
		s.errorCount.Add(1)
	}
	if cacheHit {
		s.cacheHits.Add(1)
	}

	s.latenciesMu.Lock()
	s.latencies = append(s.latencies, duration)
	s.latenciesMu.Unlock()

	s.statusCodesMu.Lock()
	if _, ok := s.statusCodes[statusCode]; !ok {
		s.statusCodes[statusCode] = &atomic.Int64{}
	}
	s.statusCodes[statusCode].Add(1)
	s.statusCodesMu.Unlock()
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	flags := pflag.NewFlagSet("loadtest", pflag.ContinueOnError)
	flags.SetOutput(stderr)
	baseURL := flags.String("url", "http://localhost:8080", "base URL of the search service")
	concurrency := flags.IntP("concurrency", "c", 10, "number of concurrent workers")
	duration := flags.DurationP("duration", "d", 30*time.Second, "test duration")
	k := flags.Int("k", 10, "results requested per query")
	models := flags.StringSlice("models", []string{"boolean", "vsm", "bm25"}, "ranking models to rotate through")
	goldPath := flags.String("gold", "", "gold relevance file to draw queries from")
	if err := flags.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		return 2
	}
	if *concurrency <= 0 || len(*models) == 0 {
		fmt.Fprintln(stderr, "concurrency must be positive and at least one model is required")
		return 2
	}

	queries := defaultQueries
	if *goldPath != "" {
		gold, err := evaluator.LoadGold(*goldPath)
		if err != nil {
			fmt.Fprintf(stderr, "loading gold file: %v\n", err)
			return 1
		}
		queries = gold.Queries()
	}
	if len(queries) == 0 {
		fmt.Fprintln(stderr, "no queries to send")
		return 1
	}

	cfg := Config{
		BaseURL:     strings.TrimRight(*baseURL, "/"),
		Concurrency: *concurrency,
		Duration:    *duration,
		K:           *k,
		Models:      *models,
		Queries:     queries,
	}

	fmt.Fprintln(stdout, "=== Retrieval Load Test ===")
	fmt.Fprintf(stdout, "Target:      %s\n", cfg.BaseURL)
	fmt.Fprintf(stdout, "Concurrency: %d\n", cfg.Concurrency)
	fmt.Fprintf(stdout, "Duration:    %s\n", cfg.Duration)
	fmt.Fprintf(stdout, "Models:      %s\n", strings.Join(cfg.Models, ", "))
	fmt.Fprintf(stdout, "Queries:     %d unique\n", len(cfg.Queries))
	fmt.Fprintln(stdout)

	start := time.Now()
	stats := runLoadTest(ctx, cfg)
	if !printReport(stdout, stats, time.Since(start)) {
		return 1
	}
	return 0
}

func runLoadTest(ctx context.Context, cfg Config) *Stats {
	stats := NewStats()
	client := &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        cfg.Concurrency * 2,
			MaxIdleConnsPerHost: cfg.Concurrency * 2,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.Duration)
	defer cancel()

	var wg sync.WaitGroup
	for w := 0; w < cfg.Concurrency; w++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			for i := workerID; ctx.Err() == nil; i++ {
				query := cfg.Queries[i%len(cfg.Queries)]
				model := cfg.Models[(i/len(cfg.Queries))%len(cfg.Models)]
				searchURL := fmt.Sprintf("%s/api/v1/search?q=%s&model=%s&k=%d",
					cfg.BaseURL, url.QueryEscape(query), url.QueryEscape(model), cfg.K)

				start := time.Now()
				status, cacheHit, err := doSearch(ctx, client, searchURL)
				if ctx.Err() != nil {
					return
				}
				stats.RecordRequest(time.Since(start), status, cacheHit, err)
			}
		}(w)
	}
	wg.Wait()
	return stats
}

func doSearch(ctx context.Context, client *http.Client, rawURL string) (int, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return 0, false, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return 0, false, err
	}
	defer resp.Body.Close()

	var body struct {
		CacheHit bool `json:"cache_hit"`
	}
	if resp.StatusCode == http.StatusOK {
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			return resp.StatusCode, false, fmt.Errorf("decoding response: %w", err)
		}
	}
	io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, body.CacheHit, nil
}

// printReport writes the summary and reports whether any request completed.
func printReport(w io.Writer, stats *Stats, elapsed time.Duration) bool {
	total := stats.totalRequests.Load()
	success := stats.successCount.Load()
	failed := stats.errorCount.Load()

	fmt.Fprintln(w, "=== Results ===")
	fmt.Fprintf(w, "Total Requests:  %d\n", total)
	fmt.Fprintf(w, "Successful:      %d\n", success)
	fmt.Fprintf(w, "Errors:          %d\n", failed)

	if total > 0 {
		fmt.Fprintf(w, "Error Rate:      %.2f%%\n", float64(failed)/float64(total)*100)
		fmt.Fprintf(w, "Requests/sec:    %.2f\n", float64(total)/elapsed.Seconds())
	}
	if success > 0 {
		fmt.Fprintf(w, "Cache Hit Rate:  %.2f%%\n", float64(stats.cacheHits.Load())/float64(success)*100)
	}

	stats.latenciesMu.Lock()
	latencies := make([]time.Duration, len(stats.latencies))
	copy(latencies, stats.latencies)
	stats.latenciesMu.Unlock()

	if len(latencies) > 0 {
		sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

		var sum time.Duration
		for _, l := range latencies {
			sum += l
		}
		avg := sum / time.Duration(len(latencies))

		fmt.Fprintln(w)
		fmt.Fprintln(w, "=== Latency ===")
		fmt.Fprintf(w, "Min:    %s\n", latencies[0])
		fmt.Fprintf(w, "Avg:    %s\n", avg)
		fmt.Fprintf(w, "P50:    %s\n", percentile(latencies, 50))
		fmt.Fprintf(w, "P90:    %s\n", percentile(latencies, 90))
		fmt.Fprintf(w, "P95:    %s\n", percentile(latencies, 95))
		fmt.Fprintf(w, "P99:    %s\n", percentile(latencies, 99))
		fmt.Fprintf(w, "Max:    %s\n", latencies[len(latencies)-1])
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "=== Status Codes ===")
	stats.statusCodesMu.Lock()
	codes := make([]int, 0, len(stats.statusCodes))
	for code := range stats.statusCodes {
		codes = append(codes, code)
	}
	sort.Ints(codes)
	for _, code := range codes {
		fmt.Fprintf(w, "  %d: %d\n", code, stats.statusCodes[code].Load())
	}
	stats.statusCodesMu.Unlock()

	if total == 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "WARNING: No requests completed. Is the service running?")
		return false
	}
	return true
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p/100*float64(len(sorted)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
