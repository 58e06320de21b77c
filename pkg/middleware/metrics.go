package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/corpus-retrieval/pkg/metrics"
)

// routes are the label values allowed for the path label. Requests to
// anything else are reported as "other" so scanners cannot inflate the
// series count.
var routes = map[string]bool{
	"/api/v1/search":           true,
	"/api/v1/chat":             true,
	"/api/v1/evaluate":         true,
	"/api/v1/evaluations":      true,
	"/api/v1/cache/stats":      true,
	"/api/v1/cache/invalidate": true,
	"/api/v1/analytics":        true,
	"/health/live":             true,
	"/health/ready":            true,
	"/metrics":                 true,
}

const documentRoute = "/api/v1/documents/"

// Metrics records request count, latency, response size and the in-flight
// gauge, labelled by route template.
func Metrics(m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			m.HTTPRequestsInFlight.Inc()
			defer m.HTTPRequestsInFlight.Dec()

			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(sw, r)

			path := routeLabel(r.URL.Path)
			m.HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(sw.status)).Inc()
			m.HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
			m.HTTPResponseBytes.WithLabelValues(path).Observe(float64(sw.bytes))
		})
	}
}

type statusWriter struct {
	http.ResponseWriter
	status      int
	bytes       int
	wroteHeader bool
}

func (sw *statusWriter) WriteHeader(code int) {
	if !sw.wroteHeader {
		sw.status = code
		sw.wroteHeader = true
	}
	sw.ResponseWriter.WriteHeader(code)
}

func (sw *statusWriter) Write(b []byte) (int, error) {
	sw.wroteHeader = true
	n, err := sw.ResponseWriter.Write(b)
	sw.bytes += n
	return n, err
}

// routeLabel maps a request path to its route template.
func routeLabel(path string) string {
	if routes[path] {
		return path
	}
	if id, ok := strings.CutPrefix(path, documentRoute); ok && id != "" && !strings.Contains(id, "/") {
		return documentRoute + "{id}"
	}
	return "other"
}
