package metrics

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type ctxKey string

const routeLabelKey ctxKey = "metrics_route"

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gigboard_http_requests_total",
		Help: "Total number of HTTP requests processed.",
	}, []string{"method", "route"})

	httpErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gigboard_http_errors_total",
		Help: "Total number of HTTP requests resulting in server errors.",
	}, []string{"method", "route", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gigboard_http_request_duration_seconds",
		Help:    "Histogram of latencies for HTTP requests.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route", "status"})

	dbLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gigboard_db_latency_seconds",
		Help:    "Histogram of database operation latencies.",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation", "route"})

	calendarRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gigboard_calendar_requests_total",
		Help: "Remote calendar calls by operation and outcome.",
	}, []string{"operation", "outcome"})

	calendarLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gigboard_calendar_latency_seconds",
		Help:    "Histogram of remote calendar call latencies.",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})

	syncOutcomesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gigboard_sync_outcomes_total",
		Help: "Event mutations by operation and resulting sync state.",
	}, []string{"operation", "state"})

	tokenRefreshesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gigboard_oauth_token_acquisitions_total",
		Help: "OAuth credential acquisitions by source (cache, refresh, consent) and outcome.",
	}, []string{"source", "outcome"})

	rateLimitedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gigboard_rate_limited_total",
		Help: "Requests rejected by the per-IP rate limiter.",
	}, []string{"limiter"})
)

// Middleware records request metrics and stores the route label in the context for DB instrumentation.
func Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			route := routePattern(r)
			ctx := context.WithValue(r.Context(), routeLabelKey, route)

			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r.WithContext(ctx))

			// chi resolves the pattern while routing, so re-read it after the handler ran.
			if p := routePattern(r); p != "" {
				route = p
			}
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			statusCode := strconv.Itoa(status)

			httpRequestsTotal.WithLabelValues(r.Method, route).Inc()
			httpRequestDuration.WithLabelValues(r.Method, route, statusCode).Observe(time.Since(start).Seconds())
			if status >= http.StatusInternalServerError {
				httpErrorsTotal.WithLabelValues(r.Method, route, statusCode).Inc()
			}
		})
	}
}

// Handler exposes the Prometheus metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveDBLatency records database latency for a given operation, associating it with request labels when available.
func ObserveDBLatency(ctx context.Context, operation string, start time.Time) {
	dbLatency.WithLabelValues(operation, routeFromContext(ctx)).Observe(time.Since(start).Seconds())
}

// ObserveCalendarCall records one remote calendar call.
func ObserveCalendarCall(operation, outcome string, start time.Time) {
	calendarRequestsTotal.WithLabelValues(operation, outcome).Inc()
	calendarLatency.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

// RecordSyncOutcome counts the sync state an event mutation ended in.
func RecordSyncOutcome(operation, state string) {
	syncOutcomesTotal.WithLabelValues(operation, state).Inc()
}

func RecordTokenAcquisition(source, outcome string) {
	tokenRefreshesTotal.WithLabelValues(source, outcome).Inc()
}

func RecordRateLimited(limiter string) {
	rateLimitedTotal.WithLabelValues(limiter).Inc()
}

func routeFromContext(ctx context.Context) string {
	if route, ok := ctx.Value(routeLabelKey).(string); ok && route != "" {
		return route
	}
	return "unknown"
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := strings.TrimSpace(rctx.RoutePattern()); pattern != "" {
			return pattern
		}
	}
	return r.URL.Path
}
