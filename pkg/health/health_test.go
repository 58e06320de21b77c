package health

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestRunWorstStatus(t *testing.T) {
	tests := []struct {
		name   string
		checks map[string]Check
		want   Status
	}{
		{"all up", map[string]Check{
			"ranker": PingCheck(func(context.Context) error { return nil }, true),
		}, StatusUp},
		{"optional down", map[string]Check{
			"ranker": PingCheck(func(context.Context) error { return nil }, true),
			"redis":  PingCheck(func(context.Context) error { return errors.New("refused") }, false),
		}, StatusDegraded},
		{"required down", map[string]Check{
			"ranker": PingCheck(func(context.Context) error { return errors.New("no corpus") }, true),
			"redis":  PingCheck(func(context.Context) error { return errors.New("refused") }, false),
		}, StatusDown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewChecker()
			for name, check := range tt.checks {
				c.Register(name, check)
			}
			report := c.Run(context.Background())
			if report.Status != tt.want {
				t.Errorf("status = %s, want %s", report.Status, tt.want)
			}
			if len(report.Components) != len(tt.checks) {
				t.Errorf("components = %v", report.Components)
			}
		})
	}
}

func TestReadyHandler(t *testing.T) {
	c := NewChecker()
	c.Register("redis", PingCheck(func(context.Context) error { return errors.New("refused") }, false))
	rec := httptest.NewRecorder()
	c.ReadyHandler()(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("degraded readiness = %d, want 200", rec.Code)
	}

	c.Register("ranker", PingCheck(func(context.Context) error { return errors.New("no corpus") }, true))
	rec = httptest.NewRecorder()
	c.ReadyHandler()(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("down readiness = %d, want 503", rec.Code)
	}
}

func TestRunCheckTimeout(t *testing.T) {
	c := NewChecker()
	c.SetCheckTimeout(20 * time.Millisecond)
	release := make(chan struct{})
	defer close(release)
	c.Register("postgres", func(ctx context.Context) ComponentHealth {
		<-release
		return ComponentHealth{Status: StatusUp}
	})
	c.Register("ranker", PingCheck(func(context.Context) error { return nil }, true))

	start := time.Now()
	report := c.Run(context.Background())
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("Run blocked for %v", elapsed)
	}
	if report.Status != StatusDown {
		t.Errorf("status = %s, want down", report.Status)
	}
	if got := report.Components["postgres"]; got.Status != StatusDown || !strings.Contains(got.Message, "timed out") {
		t.Errorf("postgres = %+v", got)
	}
	if report.Components["ranker"].Status != StatusUp {
		t.Errorf("ranker = %+v", report.Components["ranker"])
	}
}
