/*
middleware.go - Authentication, request logging, and HTTP metrics

AUTHENTICATION MODEL:
  Identity is an external collaborator. Two credential shapes arrive:
    - Authorization: Bearer <token>  matching the configured admin token
      grants the admin capability.
    - X-Identity-Ref / X-Identity-Name headers, injected by the fronting
      identity provider, describe an authenticated end user. The person
      record is resolved lazily by the handlers that need it.
  The Actor capability is decided here, once, and carried in the request
  context; handlers never re-derive roles.
*/
package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/hotwire/points-engine/ledger"
)

// =============================================================================
// METRICS
// =============================================================================

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "points_http_requests_total",
			Help: "HTTP requests served",
		},
		[]string{"path", "code"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "points_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path", "code"},
	)
)

// =============================================================================
// CALLER CONTEXT
// =============================================================================

type contextKey int

const callerKey contextKey = iota

// Caller is what the boundary learned about the requester: the decided
// capability plus the raw identity claim for lazy person resolution.
type Caller struct {
	Actor        ledger.Actor
	ExternalRef  string
	ExternalName string
}

func callerFrom(ctx context.Context) Caller {
	if c, ok := ctx.Value(callerKey).(Caller); ok {
		return c
	}
	return Caller{Actor: ledger.Anonymous()}
}

// Authenticator builds the Caller from request credentials.
func Authenticator(adminToken string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			caller := Caller{Actor: ledger.Anonymous()}

			if token := bearerToken(r); token != "" && adminToken != "" && token == adminToken {
				caller.Actor = ledger.Admin()
			} else if ref := r.Header.Get("X-Identity-Ref"); ref != "" {
				// Member capability is bound to a person lazily: the
				// handlers that need one resolve it through the
				// identity resolver.
				caller.ExternalRef = ref
				caller.ExternalName = r.Header.Get("X-Identity-Name")
			}

			ctx := context.WithValue(r.Context(), callerKey, caller)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	return ""
}

// =============================================================================
// LOGGING AND METRICS
// =============================================================================

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// RequestLogger logs each request through zap and records the
// Prometheus request counters and duration histogram.
func RequestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(sw, r)

			elapsed := time.Since(start)
			labels := prometheus.Labels{
				"path": r.URL.Path,
				"code": strconv.Itoa(sw.status),
			}
			httpRequestsTotal.With(labels).Inc()
			httpRequestDuration.With(labels).Observe(elapsed.Seconds())

			logger.Info("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", sw.status),
				zap.Duration("elapsed", elapsed))
		})
	}
}
