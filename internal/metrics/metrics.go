package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "citizen_http_requests_total",
			Help: "Total HTTP requests by method, route, and status",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "citizen_http_request_duration_seconds",
			Help:    "HTTP request latency distribution",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	fanoutEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "citizen_fanout_events_total",
			Help: "Fan-out operations started by event",
		},
		[]string{"event"},
	)

	fanoutRecipients = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "citizen_fanout_recipients",
			Help:    "Recipients per fan-out after deduplication",
			Buckets: []float64{0, 1, 5, 10, 50, 100, 500, 1000},
		},
	)

	fanoutTasksDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "citizen_fanout_tasks_dropped_total",
			Help: "Detached fan-out tasks dropped because the queue was full",
		},
	)

	notificationsRecorded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "citizen_notifications_recorded_total",
			Help: "Notification rows written by kind",
		},
		[]string{"kind"},
	)

	notificationWriteFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "citizen_notification_write_failures_total",
			Help: "Failed notification writes by kind",
		},
		[]string{"kind"},
	)

	pushTokens = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "citizen_push_tokens_total",
			Help: "Push tokens seen by the dispatcher by outcome (attempted, invalid, cleaned)",
		},
		[]string{"outcome"},
	)

	pushChunkFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "citizen_push_chunk_failures_total",
			Help: "Push gateway chunk submissions that failed",
		},
	)

	pushDispatchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "citizen_push_dispatch_duration_seconds",
			Help:    "Time to dispatch one push job including cleanup",
			Buckets: []float64{.05, .1, .25, .5, 1, 2, 5, 10, 30},
		},
	)

	circuitRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "citizen_circuit_rejections_total",
			Help: "Calls rejected by an open circuit breaker",
		},
		[]string{"breaker"},
	)

	circuitState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "citizen_circuit_state",
			Help: "Circuit breaker state by breaker (0 closed, 1 open, 2 half-open)",
		},
		[]string{"breaker"},
	)

	sqsMessagesInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "citizen_sqs_messages_in_flight",
			Help: "Push jobs currently being processed from SQS",
		},
	)

	idempotencyHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "citizen_idempotency_hits_total",
			Help: "Event submissions served from the idempotency cache",
		},
	)

	rateLimitRejections = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "citizen_rate_limit_rejections_total",
			Help: "Requests rejected by rate limiter",
		},
	)

	dbConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "citizen_db_connections_active",
			Help: "Acquired database connections",
		},
	)
)

// Push token outcomes
const (
	TokensAttempted = "attempted"
	TokensInvalid   = "invalid"
	TokensCleaned   = "cleaned"
)

// Handler returns the Prometheus metrics HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordRequest records HTTP request metrics
func RecordRequest(method, path string, status int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordFanout records the start of a fan-out and its recipient count.
func RecordFanout(event string, recipients int) {
	fanoutEvents.WithLabelValues(event).Inc()
	fanoutRecipients.Observe(float64(recipients))
}

// RecordTaskDropped counts a fan-out task rejected by a full queue.
func RecordTaskDropped() {
	fanoutTasksDropped.Inc()
}

// RecordNotificationsWritten counts successfully written rows.
func RecordNotificationsWritten(kind string, n int) {
	notificationsRecorded.WithLabelValues(kind).Add(float64(n))
}

// RecordNotificationWriteFailure counts a failed single or batch write.
func RecordNotificationWriteFailure(kind string) {
	notificationWriteFailures.WithLabelValues(kind).Inc()
}

// RecordPushTokens adds n tokens under outcome.
func RecordPushTokens(outcome string, n int) {
	if n <= 0 {
		return
	}
	pushTokens.WithLabelValues(outcome).Add(float64(n))
}

// RecordPushChunkFailure counts a failed gateway submission.
func RecordPushChunkFailure() {
	pushChunkFailures.Inc()
}

// RecordPushDispatch records how long one dispatch took.
func RecordPushDispatch(d time.Duration) {
	pushDispatchDuration.Observe(d.Seconds())
}

// RecordCircuitRejection counts a call short-circuited by breaker.
func RecordCircuitRejection(breaker string) {
	circuitRejections.WithLabelValues(breaker).Inc()
}

// SetCircuitState publishes the numeric state of breaker.
func SetCircuitState(breaker string, state int) {
	circuitState.WithLabelValues(breaker).Set(float64(state))
}

// SetSQSMessagesInFlight sets the current in-flight message count
func SetSQSMessagesInFlight(count int) {
	sqsMessagesInFlight.Set(float64(count))
}

// RecordIdempotencyHit records a cache hit for idempotency
func RecordIdempotencyHit() {
	idempotencyHits.Inc()
}

// RecordRateLimitRejection records a rate limit rejection
func RecordRateLimitRejection() {
	rateLimitRejections.Inc()
}

// SetDBConnections sets acquired database connection count
func SetDBConnections(count int) {
	dbConnectionsActive.Set(float64(count))
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

// Middleware returns HTTP middleware that records request metrics.
// Paths are labelled by chi route pattern so ids do not explode cardinality.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		RecordRequest(r.Method, routeLabel(r), wrapped.status, time.Since(start))
	})
}

func routeLabel(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unmatched"
}
