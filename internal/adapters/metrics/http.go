package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler serves the collector's registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.gatherer, promhttp.HandlerOpts{})
}

// Middleware counts and times every request passing through next.
func (c *Collector) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &codeRecorder{ResponseWriter: w, code: http.StatusOK}
		began := time.Now()
		next.ServeHTTP(rec, r)

		route := normalizePath(r.URL.Path)
		c.httpRequestsTotal.WithLabelValues(r.Method, route, statusClass(rec.code)).Inc()
		c.httpRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(began).Seconds())
	})
}

type codeRecorder struct {
	http.ResponseWriter
	code int
}

func (rec *codeRecorder) WriteHeader(code int) {
	rec.code = code
	rec.ResponseWriter.WriteHeader(code)
}

// normalizePath replaces workflow IDs with a placeholder to bound label cardinality.
func normalizePath(path string) string {
	const prefix = "/api/v1/workflows/"
	rest, ok := strings.CutPrefix(path, prefix)
	if !ok || rest == "" {
		return path
	}
	if _, tail, found := strings.Cut(rest, "/"); found {
		return prefix + "{id}/" + tail
	}
	return prefix + "{id}"
}

// statusClass maps a status code to "2xx" through "5xx".
func statusClass(code int) string {
	if code < 200 || code > 599 {
		return "unknown"
	}
	return strconv.Itoa(code/100) + "xx"
}
