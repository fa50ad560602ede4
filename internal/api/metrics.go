package api

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"
)

// statusRecorder captures the response status for metrics.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Flush lets SSE handlers stream through the recorder.
func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Hijack lets the WebSocket upgrader take over the connection.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("hijack not supported")
	}
	return h.Hijack()
}

// instrument records request counts and latency per route.
func (s *Server) instrument(next http.Handler) http.Handler {
	if s.metrics == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.metrics.RecordHTTPRequest(r.Method, routeLabel(r.URL.Path), strconv.Itoa(rec.status), time.Since(start))
	})
}

// routeLabel bounds metric label cardinality to known routes.
func routeLabel(path string) string {
	switch path {
	case "/health", "/ready", "/metrics", "/login", "/logout",
		"/api/system-data", "/api/alerts", "/api/alerts/acknowledge",
		"/api/alerts/history", "/api/alerts/resolve-all", "/api/mechanics",
		"/api/assign-leak", "/api/simulate-leak", "/api/events", "/ws", "/stream":
		return path
	}
	return "other"
}
