package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync/atomic"
	"time"

	"loanbook/internal/log"
)

// handleHealth performs basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	NewJSONResponse().JSON(map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
		"uptime":    time.Since(s.appMetrics.uptime).String(),
	}).Write(w)
}

// handleReady checks every registered dependency.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	httpStatus := http.StatusOK
	checks := make(map[string]interface{})

	names := make([]string, 0, len(s.checks))
	for name := range s.checks {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := s.checks[name](ctx); err != nil {
			checks[name] = fmt.Sprintf("failed: %v", err)
			status = "not_ready"
			httpStatus = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}

	checks["cache"] = map[string]interface{}{
		"dashboard_entries": s.dashboardCache.Size(),
		"status":            "ok",
	}
	checks["rate_limiter"] = map[string]interface{}{
		"active_clients": s.rateLimiter.ActiveClients(),
		"status":         "ok",
	}

	NewJSONResponse().Status(httpStatus).JSON(map[string]interface{}{
		"status":    status,
		"timestamp": time.Now().Format(time.RFC3339),
		"checks":    checks,
	}).Write(w)
}

// handleMetrics provides application and security metrics in plain text format
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")

	securityMetrics := s.securityDetector.GetMetrics()
	rateLimitMetrics := s.rateLimiter.GetMetrics()
	traceMetrics := s.traceMiddleware.GetMetrics()

	metrics := []struct {
		name, help, kind string
		value            interface{}
	}{
		{"http_requests_total", "Total number of HTTP requests", "counter", traceMetrics.TotalRequests},
		{"http_response_time_avg_us", "Average response time in microseconds", "gauge", traceMetrics.AverageResponseTime},
		{"loans_saved_total", "Total loan writes (create, edit, collect, delete)", "counter", atomic.LoadInt64(&s.appMetrics.loansSaved)},
		{"cache_hits_total", "Total dashboard cache hits", "counter", atomic.LoadInt64(&s.appMetrics.cacheHits)},
		{"cache_misses_total", "Total dashboard cache misses", "counter", atomic.LoadInt64(&s.appMetrics.cacheMisses)},
		{"cache_entries", "Current dashboard cache entries", "gauge", s.dashboardCache.Size()},
		{"rate_limit_hits_total", "Total rate limit rejections", "counter", rateLimitMetrics.TotalHits},
		{"active_rate_limit_clients", "Currently tracked rate limit clients", "gauge", rateLimitMetrics.ClientCount},
		{"suspicious_requests_total", "Total suspicious requests detected", "counter", securityMetrics.SuspiciousRequests},
		{"blocked_requests_total", "Total suspicious requests rejected", "counter", securityMetrics.BlockedRequests},
		{"uptime_seconds", "Application uptime in seconds", "gauge", int64(time.Since(s.appMetrics.uptime).Seconds())},
	}

	w.WriteHeader(http.StatusOK)
	for _, m := range metrics {
		fmt.Fprintf(w, "# HELP %s %s\n", m.name, m.help)
		fmt.Fprintf(w, "# TYPE %s %s\n", m.name, m.kind)
		fmt.Fprintf(w, "%s %v\n\n", m.name, m.value)
	}
}

// writeError maps service errors onto HTTP responses.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	var fields FieldErrors
	switch {
	case errors.As(err, &fields):
		ValidationError(fields).Write(w)
	case isValidationError(err):
		UnprocessableEntityError(err.Error()).Write(w)
	case isNotFound(err):
		NotFoundError(err.Error()).Write(w)
	case isInvalidBackup(err):
		BadRequestError(err.Error()).Write(w)
	case errors.Is(err, errBodyTooLarge):
		ErrorResponse(http.StatusRequestEntityTooLarge, err.Error()).Write(w)
	default:
		s.events.LogError(r.Context(), "Loan request failed", err, log.ComponentHTTP, op, nil)
		InternalServerError("internal error").Write(w)
	}
}
