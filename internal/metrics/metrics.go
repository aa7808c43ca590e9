package metrics

import (
	"net/http"
	"strconv"
	"time"

	"ms-marketplace/internal/logger"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Reservations counts reserve attempts by outcome.
	Reservations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "marketplace",
			Name:      "reservations_total",
			Help:      "Seat reservation attempts by outcome",
		},
		[]string{"outcome"},
	)

	SeatsReleased = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "marketplace",
			Name:      "seats_released_total",
			Help:      "Seats returned to inventory",
		},
	)

	// CompensationFailures counts releases that failed after a booking insert
	// failed. Each one means a lot may be short seats.
	CompensationFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "marketplace",
			Name:      "compensation_failures_total",
			Help:      "Compensating seat releases that failed",
		},
	)

	BookingTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "marketplace",
			Name:      "booking_transitions_total",
			Help:      "Booking status transitions by event and result",
		},
		[]string{"event", "result"},
	)

	CreditsApplied = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "marketplace",
			Name:      "ledger_credits_total",
			Help:      "Ledger credits applied by mode",
		},
		[]string{"mode"},
	)

	LedgerConflicts = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "marketplace",
			Name:      "ledger_version_conflicts_total",
			Help:      "Optimistic version conflicts on sales bookings",
		},
	)

	HTTPDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "marketplace",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)
)

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func routeOf(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
		return rctx.RoutePattern()
	}
	return r.URL.Path
}

// Middleware observes request latency labelled by chi route pattern.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		HTTPDuration.WithLabelValues(r.Method, routeOf(r), strconv.Itoa(rec.status)).Observe(time.Since(start).Seconds())
	})
}

// AccessLog writes one API line per request. Health and metrics scrapes
// are skipped.
func AccessLog(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/health" || r.URL.Path == "/metrics" {
				next.ServeHTTP(w, r)
				return
			}
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			log.LogAPI(r.Method, r.URL.Path, strconv.Itoa(rec.status), time.Since(start).Round(time.Microsecond).String())
		})
	}
}
