package http

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"loanbook/internal/cache"
	"loanbook/internal/core"
	"loanbook/internal/log"
	"loanbook/internal/middleware/ratelimit"
	"loanbook/internal/middleware/security"
	"loanbook/internal/middleware/trace"
	"loanbook/internal/services"
)

const (
	dashboardCacheSize = 8
	dashboardCacheTTL  = 5 * time.Minute
	maxBackupBytes     = 10 << 20
)

// ReadinessCheck reports whether a dependency can serve requests.
type ReadinessCheck func(ctx context.Context) error

type appMetrics struct {
	uptime      time.Time
	loansSaved  int64
	cacheHits   int64
	cacheMisses int64
}

// Server serves the loan JSON API.
type Server struct {
	http.Server
	loans  *services.LoanService
	checks map[string]ReadinessCheck
	logger *log.Logger
	events *log.StructuredLogger

	dashboardCache   *cache.LRUCache[core.Dashboard]
	cacheManager     *cache.Manager
	rateLimiter      *ratelimit.Limiter
	securityDetector *security.Detector
	traceMiddleware  *trace.Middleware
	appMetrics       *appMetrics

	// dashboardGen counts invalidations; a dashboard computed across one is
	// not cached.
	dashboardMu  sync.Mutex
	dashboardGen uint64

	shutdownOnce sync.Once
}

// Option customises a Server.
type Option func(*Server)

// WithReadinessCheck adds a named dependency checked by /readyz.
func WithReadinessCheck(name string, check ReadinessCheck) Option {
	return func(s *Server) {
		if check != nil {
			s.checks[name] = check
		}
	}
}

// WithLogger replaces the request-scoped logger.
func WithLogger(logger *log.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithRateLimit replaces the write rate limit configuration.
func WithRateLimit(cfg ratelimit.Config) Option {
	return func(s *Server) {
		s.rateLimiter.Stop()
		s.rateLimiter = ratelimit.NewLimiter(cfg)
	}
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(addr string, loans *services.LoanService, opts ...Option) *Server {
	s := &Server{
		Server: http.Server{
			Addr:              addr,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
		loans:            loans,
		checks:           map[string]ReadinessCheck{},
		logger:           log.New(log.Config{Component: log.ComponentHTTP, Handler: slog.Default().Handler()}),
		dashboardCache:   cache.NewLRUCache[core.Dashboard](dashboardCacheSize, dashboardCacheTTL),
		cacheManager:     cache.NewManager(),
		rateLimiter:      ratelimit.NewLimiter(ratelimit.DefaultConfig()),
		securityDetector: security.NewDetector(),
		appMetrics:       &appMetrics{uptime: time.Now()},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.events = log.NewStructuredLogger(s.logger)
	s.traceMiddleware = trace.NewMiddleware(s.securityDetector.ExtractClientIP).OnComplete(s.events.LogHTTPEnd)

	s.cacheManager.Register(s.dashboardCache)
	s.cacheManager.StartCleanup(10 * time.Minute)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /metrics", s.handleMetrics)

	mux.HandleFunc("GET /loans", s.handleListLoans)
	mux.HandleFunc("POST /loans", s.handleCreateLoan)
	mux.HandleFunc("GET /loans/{id}", s.handleGetLoan)
	mux.HandleFunc("PUT /loans/{id}", s.handleUpdateLoan)
	mux.HandleFunc("DELETE /loans/{id}", s.handleDeleteLoan)
	mux.HandleFunc("POST /loans/{id}/collect", s.handleCollectLoan)

	mux.HandleFunc("GET /dashboard", s.handleDashboard)
	mux.HandleFunc("GET /backup", s.handleExportBackup)
	mux.HandleFunc("POST /backup", s.handleImportBackup)

	s.Handler = s.chain(mux)
	return s
}

// chain wraps h with the middleware stack, outermost first: tracing,
// request-scoped logging, security headers, scanner detection, write limits.
func (s *Server) chain(h http.Handler) http.Handler {
	limited := s.rateLimiter.Middleware(s.securityDetector.ExtractClientIP, func(w http.ResponseWriter, r *http.Request) {
		s.logger.WarnContext(r.Context(), "Rate limit exceeded",
			log.FieldClientIP, s.securityDetector.ExtractClientIP(r),
			log.FieldMethod, r.Method,
			log.FieldPath, r.URL.Path)
		TooManyRequestsError().Write(w)
	})(h)

	headers := security.NewHeadersMiddleware(security.DefaultHeadersConfig())
	var handler http.Handler = limited
	handler = s.securityDetector.Middleware(handler)
	handler = headers.Middleware(handler)
	handler = log.RequestIDMiddleware(func(r *http.Request) string {
		return trace.GetRequestID(r.Context())
	})(handler)
	handler = log.Middleware(s.logger)(handler)
	return s.traceMiddleware.Middleware(handler)
}

// Shutdown gracefully shuts down the server and cleanup routines
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.cacheManager.Stop()
		s.rateLimiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

// dashboardKey caches one dashboard per calendar day.
func (s *Server) dashboardKey() string {
	return core.DateOf(s.loans.Now()).String()
}

// invalidateDashboard drops cached dashboards after any write.
func (s *Server) invalidateDashboard() {
	s.dashboardMu.Lock()
	defer s.dashboardMu.Unlock()
	s.dashboardGen++
	s.dashboardCache.Purge()
}

func (s *Server) dashboardGeneration() uint64 {
	s.dashboardMu.Lock()
	defer s.dashboardMu.Unlock()
	return s.dashboardGen
}

// cacheDashboard stores d unless a write invalidated the cache since gen.
func (s *Server) cacheDashboard(key string, gen uint64, d core.Dashboard) {
	s.dashboardMu.Lock()
	defer s.dashboardMu.Unlock()
	if s.dashboardGen == gen {
		s.dashboardCache.Set(key, d)
	}
}
