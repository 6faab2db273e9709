// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

var (
	AuthOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hr_auth_operations_total",
			Help: "Auth operations by name and outcome",
		},
		[]string{"operation", "outcome"},
	)

	ConfirmationEmails = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hr_auth_confirmation_emails_total",
			Help: "Confirmation emails by send result",
		},
		[]string{"result"},
	)

	VerificationCodeCollisions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "hr_auth_verification_code_collisions_total",
			Help: "Generated verification codes that were already held by another account",
		},
	)

	MailBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "hr_auth_mail_breaker_state",
			Help: "Mail circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hr_auth_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hr_auth_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)

func RecordAuth(operation string, err error) {
	outcome := OutcomeSuccess
	if err != nil {
		outcome = OutcomeFailure
	}
	AuthOperations.WithLabelValues(operation, outcome).Inc()
}

func Handler() http.Handler {
	return promhttp.Handler()
}

// HTTPMiddleware records request counts and latency labelled by route
// pattern, so path parameters do not explode cardinality.
func HTTPMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}

			path := c.Path()
			if path == "" {
				path = "unknown"
			}
			status := strconv.Itoa(c.Response().Status)

			httpRequestsTotal.WithLabelValues(c.Request().Method, path, status).Inc()
			httpRequestDuration.WithLabelValues(c.Request().Method, path, status).Observe(time.Since(start).Seconds())
			return nil
		}
	}
}
