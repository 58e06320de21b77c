package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestPercentile(t *testing.T) {
	sorted := make([]time.Duration, 100)
	for i := range sorted {
		sorted[i] = time.Duration(i+1) * time.Millisecond
	}
	tests := []struct {
		p    float64
		want time.Duration
	}{
		{50, 50 * time.Millisecond},
		{99, 99 * time.Millisecond},
		{100, 100 * time.Millisecond},
		{0, 1 * time.Millisecond},
	}
	for _, tt := range tests {
		if got := percentile(sorted, tt.p); got != tt.want {
			t.Errorf("p%v = %v, want %v", tt.p, got, tt.want)
		}
	}
	if got := percentile(nil, 50); got != 0 {
		t.Errorf("empty percentile = %v", got)
	}
}

func TestRunAgainstServer(t *testing.T) {
	var mu sync.Mutex
	seenModels := map[string]bool{}
	seenQueries := map[string]bool{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/search" {
			http.NotFound(w, r)
			return
		}
		mu.Lock()
		seenModels[r.URL.Query().Get("model")] = true
		seenQueries[r.URL.Query().Get("q")] = true
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"results":[],"cache_hit":true}`))
	}))
	defer srv.Close()

	gold := filepath.Join(t.TempDir(), "gold.json")
	if err := os.WriteFile(gold, []byte(`{"alpha": ["a.txt"], "beta": ["b.txt"]}`), 0o644); err != nil {
		t.Fatal(err)
	}

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{
		"--url", srv.URL, "-c", "2", "-d", "200ms", "--gold", gold, "--models", "bm25,vsm",
	}, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("exit code %d, stderr: %s", code, stderr.String())
	}
	out := stdout.String()
	for _, want := range []string{"Queries:     2 unique", "Cache Hit Rate:  100.00%", "200:"} {
		if !strings.Contains(out, want) {
			t.Errorf("report missing %q:\n%s", want, out)
		}
	}
	mu.Lock()
	defer mu.Unlock()
	if !seenModels["bm25"] || !seenModels["vsm"] {
		t.Errorf("models sent = %v", seenModels)
	}
	if !seenQueries["alpha"] || !seenQueries["beta"] {
		t.Errorf("queries sent = %v", seenQueries)
	}
}

func TestRunNoServer(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"--url", url, "-c", "1", "-d", "100ms"}, &stdout, &stderr)
	if code == 0 && !strings.Contains(stdout.String(), "Errors:") {
		t.Errorf("expected an error report, got:\n%s", stdout.String())
	}
}

func TestRunBadFlags(t *testing.T) {
	var stdout, stderr bytes.Buffer
	if code := run(context.Background(), []string{"-c", "0"}, &stdout, &stderr); code != 2 {
		t.Errorf("exit code = %d, want 2", code)
	}
}
