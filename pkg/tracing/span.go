// Package tracing records a tree of timed stages per request. The HTTP layer
// opens a root span keyed by the request id, packages below attach children
// through the context, and slow requests log the whole tree as one record.
package tracing

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"
)

type contextKey string

const spanKey contextKey = "trace_span"

// Span is one timed stage. Children and Attrs may be read once the span and
// its children have ended.
type Span struct {
	Name     string
	TraceID  string
	Start    time.Time
	Duration time.Duration
	Children []*Span
	Attrs    map[string]any

	mu    sync.Mutex
	ended bool
}

func newSpan(name, traceID string) *Span {
	return &Span{
		Name:    name,
		TraceID: traceID,
		Start:   time.Now(),
		Attrs:   make(map[string]any),
	}
}

// StartSpan opens a root span and stores it in the returned context.
func StartSpan(ctx context.Context, name string, traceID string) (context.Context, *Span) {
	span := newSpan(name, traceID)
	return context.WithValue(ctx, spanKey, span), span
}

// StartChildSpan opens a span under the one in ctx. Without a parent the
// span is detached and simply never logged.
func StartChildSpan(ctx context.Context, name string) (context.Context, *Span) {
	parent := SpanFromContext(ctx)
	child := newSpan(name, "")
	if parent != nil {
		child.TraceID = parent.TraceID
		parent.mu.Lock()
		parent.Children = append(parent.Children, child)
		parent.mu.Unlock()
	}
	return context.WithValue(ctx, spanKey, child), child
}

// End fixes the span's duration. Only the first call counts.
func (s *Span) End() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return
	}
	s.ended = true
	s.Duration = time.Since(s.Start)
}

func (s *Span) SetAttr(key string, value any) {
	s.mu.Lock()
	s.Attrs[key] = value
	s.mu.Unlock()
}

// SpanFromContext returns the innermost span in ctx, or nil.
func SpanFromContext(ctx context.Context) *Span {
	if span, ok := ctx.Value(spanKey).(*Span); ok {
		return span
	}
	return nil
}

// Find returns the first span named name in depth-first order, including s.
func (s *Span) Find(name string) *Span {
	if s.Name == name {
		return s
	}
	s.mu.Lock()
	children := append([]*Span(nil), s.Children...)
	s.mu.Unlock()
	for _, c := range children {
		if found := c.Find(name); found != nil {
			return found
		}
	}
	return nil
}

// Stage is one flattened span, named by its path from the root.
type Stage struct {
	Path     string
	Duration time.Duration
}

// Stages flattens the tree depth-first into root-relative paths such as
// "search/ranker.rank".
func (s *Span) Stages() []Stage {
	var out []Stage
	s.collect(nil, &out)
	return out
}

func (s *Span) collect(prefix []string, out *[]Stage) {
	path := append(prefix, s.Name)
	s.mu.Lock()
	d := s.Duration
	children := append([]*Span(nil), s.Children...)
	s.mu.Unlock()
	*out = append(*out, Stage{Path: strings.Join(path, "/"), Duration: d})
	for _, c := range children {
		c.collect(path, out)
	}
}

// Log writes the tree as a single record on log. Stage durations are in
// microseconds since most ranking stages finish well under a millisecond.
func (s *Span) Log(log *slog.Logger) {
	stages := s.Stages()
	stageAttrs := make([]any, 0, len(stages))
	for _, st := range stages[1:] {
		stageAttrs = append(stageAttrs, slog.Int64(st.Path, st.Duration.Microseconds()))
	}
	attrs := []any{
		"trace_id", s.TraceID,
		"span", s.Name,
		"total_us", s.Duration.Microseconds(),
		slog.Group("stages_us", stageAttrs...),
	}
	s.mu.Lock()
	for k, v := range s.Attrs {
		attrs = append(attrs, k, v)
	}
	s.mu.Unlock()
	log.Info("trace", attrs...)
}
