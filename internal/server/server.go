// Package server exposes phonocoach over HTTP.
//
// Routes:
//
//	POST   /v1/align                       score a recognized phonemic string against a target
//	POST   /v1/sessions                    create a practice session
//	GET    /v1/sessions/{id}               session state
//	DELETE /v1/sessions/{id}               end a session
//	PUT    /v1/sessions/{id}/target        set the target sentence
//	GET    /v1/sessions/{id}/reference     reference pronunciation (audio/wav)
//	POST   /v1/sessions/{id}/attempts      score a recorded attempt
//	GET    /v1/practice                    websocket practice loop
//	GET    /healthz, /readyz               health probes
//	GET    /metrics                        Prometheus metrics
//	       /mcp                            MCP streamable HTTP
//
// Every route runs behind [observe.Middleware].
package server

import (
	"net/http"

	"github.com/MrWong99/phonocoach/internal/coach"
	"github.com/MrWong99/phonocoach/internal/health"
	"github.com/MrWong99/phonocoach/internal/observe"
)

const defaultMaxUploadBytes = 10 << 20

// Server routes HTTP requests to the coach and session registry.
type Server struct {
	coach    *coach.Coach
	sessions *coach.Sessions

	health         *health.Handler
	mcp            http.Handler
	metricsHandler http.Handler
	metrics        *observe.Metrics
	maxUpload      int64
	originPatterns []string
}

// Option configures a [Server].
type Option func(*Server)

// WithHealth mounts h at /healthz and /readyz.
func WithHealth(h *health.Handler) Option {
	return func(s *Server) { s.health = h }
}

// WithMCP mounts h at /mcp.
func WithMCP(h http.Handler) Option {
	return func(s *Server) { s.mcp = h }
}

// WithMetricsHandler mounts h at /metrics, typically promhttp.Handler().
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) { s.metricsHandler = h }
}

// WithMetrics records request metrics on m instead of
// [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithMaxUploadBytes caps uploaded attempts and websocket messages. Values
// <= 0 keep the default of 10 MiB.
func WithMaxUploadBytes(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxUpload = n
		}
	}
}

// WithOriginPatterns authorizes cross-origin websocket clients whose Origin
// host matches one of patterns. Same-origin clients are always accepted.
func WithOriginPatterns(patterns ...string) Option {
	return func(s *Server) { s.originPatterns = patterns }
}

// New creates a [Server].
func New(c *coach.Coach, sessions *coach.Sessions, opts ...Option) *Server {
	s := &Server{
		coach:     c,
		sessions:  sessions,
		maxUpload: defaultMaxUploadBytes,
	}
	for _, o := range opts {
		o(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	return s
}

// Handler returns the fully routed and instrumented handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/align", s.handleAlign)
	mux.HandleFunc("POST /v1/sessions", s.handleCreateSession)
	mux.HandleFunc("GET /v1/sessions/{id}", s.handleGetSession)
	mux.HandleFunc("DELETE /v1/sessions/{id}", s.handleDeleteSession)
	mux.HandleFunc("PUT /v1/sessions/{id}/target", s.handleSetTarget)
	mux.HandleFunc("GET /v1/sessions/{id}/reference", s.handleReference)
	mux.HandleFunc("POST /v1/sessions/{id}/attempts", s.handleAttempt)
	mux.HandleFunc("GET /v1/practice", s.handlePractice)

	if s.health != nil {
		s.health.Register(mux)
	}
	if s.metricsHandler != nil {
		mux.Handle("GET /metrics", s.metricsHandler)
	}
	if s.mcp != nil {
		mux.Handle("/mcp", s.mcp)
	}
	return observe.Middleware(s.metrics)(mux)
}
