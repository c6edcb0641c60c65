package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dativo-io/piiredact/internal/audit"
	"github.com/dativo-io/piiredact/internal/config"
	"github.com/dativo-io/piiredact/internal/engine"
	"github.com/dativo-io/piiredact/internal/otel"
)

const defaultTimeout = 60 * time.Second

// Server holds the dependencies of the HTTP API.
type Server struct {
	router       *chi.Mux
	engine       *engine.Engine
	store        *audit.Store
	rotator      *audit.Rotator
	limiter      *RateLimiter
	metrics      *Metrics
	apiKeys      []string
	corsOrigins  []string
	maxBodyBytes int64
	version      string
	startTime    time.Time
}

// Option configures the Server.
type Option func(*Server)

// WithReportStore enables the report endpoints and audit rotation.
func WithReportStore(store *audit.Store, rotator *audit.Rotator) Option {
	return func(s *Server) {
		s.store = store
		s.rotator = rotator
	}
}

// WithRateLimiter enables per-caller rate limiting.
func WithRateLimiter(rl *RateLimiter) Option {
	return func(s *Server) { s.limiter = rl }
}

// WithMetrics replaces the server's Prometheus instruments.
func WithMetrics(m *Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithAPIKeys requires one of keys on every /v1 request.
func WithAPIKeys(keys []string) Option {
	return func(s *Server) { s.apiKeys = keys }
}

// WithCORSOrigins sets allowed CORS origins (e.g. ["*"]).
func WithCORSOrigins(origins []string) Option {
	return func(s *Server) { s.corsOrigins = origins }
}

// WithMaxBodyBytes bounds request bodies.
func WithMaxBodyBytes(n int64) Option {
	return func(s *Server) { s.maxBodyBytes = n }
}

// WithVersion sets the version reported by /health.
func WithVersion(v string) Option {
	return func(s *Server) { s.version = v }
}

// NewServer builds a Server around eng.
func NewServer(eng *engine.Engine, opts ...Option) *Server {
	s := &Server{
		router:       chi.NewRouter(),
		engine:       eng,
		corsOrigins:  []string{"*"},
		maxBodyBytes: config.DefaultMaxBodyBytes,
		version:      "dev",
		startTime:    time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = NewMetrics("piiredact")
	}
	return s
}

// Routes returns the configured http.Handler.
func (s *Server) Routes() http.Handler {
	r := s.router
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(otel.MiddlewareWithStatus())
	r.Use(CORSMiddleware(s.corsOrigins))
	r.Use(s.metrics.Middleware)

	r.Get("/health", s.handleHealth)
	r.Get("/v1/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", s.metrics.Handler())

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(s.apiKeys))
		r.Use(RateLimitMiddleware(s.limiter))
		r.Use(middleware.Timeout(defaultTimeout))

		r.Get("/v1/sectors", s.handleSectors)
		r.Post("/v1/detect", s.handleDetect)
		r.Post("/v1/redact", s.handleRedact)

		r.Get("/v1/report", s.handleReport)
		r.Post("/v1/report/rotate", s.handleReportRotate)

		r.Get("/v1/reports", s.handleReportsList)
		r.Get("/v1/reports/{id}", s.handleReportGet)
		r.Get("/v1/reports/{id}/verify", s.handleReportVerify)
	})

	return r
}
