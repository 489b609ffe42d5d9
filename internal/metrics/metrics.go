package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// Webhook metrics
	WebhookRequestsTotal   *prometheus.CounterVec
	WebhookDurationSeconds *prometheus.HistogramVec

	// Action metrics
	ActionInvocationsTotal *prometheus.CounterVec
	ActionDurationSeconds  *prometheus.HistogramVec

	// Converse-loop metrics
	ConverseStepsTotal  *prometheus.CounterVec
	TurnDurationSeconds prometheus.Histogram

	// Outbound delivery metrics
	MessagesSentTotal *prometheus.CounterVec

	// Upstream API metrics
	UpstreamRequestsTotal   *prometheus.CounterVec
	UpstreamDurationSeconds *prometheus.HistogramVec

	// Session metrics
	SessionsActive  prometheus.Gauge
	SessionsCreated prometheus.Counter
	SessionsEvicted prometheus.Counter

	// Rate limiter metrics
	RateLimiterDropped *prometheus.CounterVec
}

// New creates a new Metrics instance with all metrics registered
func New(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		// Webhook metrics
		WebhookRequestsTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "avery_webhook_requests_total",
				Help: "Total number of webhook deliveries by kind and status",
			},
			[]string{"kind", "status"}, // kind: text, attachment, verify; status: success, error, ignored
		),

		WebhookDurationSeconds: promauto.With(registry).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "avery_webhook_duration_seconds",
				Help:    "Webhook processing duration in seconds by kind",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"kind"},
		),

		// Action metrics
		ActionInvocationsTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "avery_action_invocations_total",
				Help: "Total number of action invocations by action name and status",
			},
			[]string{"action", "status"}, // status: success, error
		),

		ActionDurationSeconds: promauto.With(registry).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "avery_action_duration_seconds",
				Help:    "Action execution duration in seconds by action name",
				Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"action"},
		),

		// Converse-loop metrics
		ConverseStepsTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "avery_converse_steps_total",
				Help: "Total number of converse-loop steps by step type",
			},
			[]string{"type"}, // type: msg, merge, action, stop, error
		),

		TurnDurationSeconds: promauto.With(registry).NewHistogram(
			prometheus.HistogramOpts{
				Name:    "avery_turn_duration_seconds",
				Help:    "Full conversation turn duration in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
		),

		// Outbound delivery metrics
		MessagesSentTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "avery_messages_sent_total",
				Help: "Total number of outbound Send API deliveries by status",
			},
			[]string{"status"}, // status: success, error
		),

		// Upstream API metrics
		UpstreamRequestsTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "avery_upstream_requests_total",
				Help: "Total number of upstream REST calls by service and status",
			},
			[]string{"service", "status"}, // service: brewery, untappd, forecast, wit, messenger
		),

		UpstreamDurationSeconds: promauto.With(registry).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "avery_upstream_duration_seconds",
				Help:    "Upstream REST call duration in seconds by service",
				Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10},
			},
			[]string{"service"},
		),

		// Session metrics
		SessionsActive: promauto.With(registry).NewGauge(
			prometheus.GaugeOpts{
				Name: "avery_sessions_active",
				Help: "Current number of stored sessions",
			},
		),

		SessionsCreated: promauto.With(registry).NewCounter(
			prometheus.CounterOpts{
				Name: "avery_sessions_created_total",
				Help: "Total number of sessions created",
			},
		),

		SessionsEvicted: promauto.With(registry).NewCounter(
			prometheus.CounterOpts{
				Name: "avery_sessions_evicted_total",
				Help: "Total number of sessions removed by TTL eviction",
			},
		),

		// Rate limiter metrics
		RateLimiterDropped: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "avery_rate_limiter_dropped_total",
				Help: "Total number of operations dropped by rate limiter",
			},
			[]string{"limiter_type"}, // limiter_type: send
		),
	}

	return m
}

// RecordWebhook records a webhook delivery with its processing duration.
func (m *Metrics) RecordWebhook(kind, status string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.WebhookRequestsTotal.WithLabelValues(kind, status).Inc()
	if durationSeconds > 0 {
		m.WebhookDurationSeconds.WithLabelValues(kind).Observe(durationSeconds)
	}
}

// RecordAction records an action invocation with its duration.
func (m *Metrics) RecordAction(action, status string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.ActionInvocationsTotal.WithLabelValues(action, status).Inc()
	m.ActionDurationSeconds.WithLabelValues(action).Observe(durationSeconds)
}

// RecordConverseStep records one step of the converse loop.
func (m *Metrics) RecordConverseStep(stepType string) {
	if m == nil {
		return
	}
	m.ConverseStepsTotal.WithLabelValues(stepType).Inc()
}

// RecordTurn records the duration of a full conversation turn.
func (m *Metrics) RecordTurn(durationSeconds float64) {
	if m == nil {
		return
	}
	m.TurnDurationSeconds.Observe(durationSeconds)
}

// RecordSend records an outbound Send API delivery.
func (m *Metrics) RecordSend(status string) {
	if m == nil {
		return
	}
	m.MessagesSentTotal.WithLabelValues(status).Inc()
}

// RecordUpstream records an upstream REST call.
func (m *Metrics) RecordUpstream(service, status string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.UpstreamRequestsTotal.WithLabelValues(service, status).Inc()
	m.UpstreamDurationSeconds.WithLabelValues(service).Observe(durationSeconds)
}

// SetActiveSessions updates the stored-session gauge.
func (m *Metrics) SetActiveSessions(count int) {
	if m == nil {
		return
	}
	m.SessionsActive.Set(float64(count))
}

// RecordSessionCreated increments the created-session counter.
func (m *Metrics) RecordSessionCreated() {
	if m == nil {
		return
	}
	m.SessionsCreated.Inc()
}

// RecordSessionsEvicted adds to the evicted-session counter.
func (m *Metrics) RecordSessionsEvicted(count int) {
	if m == nil || count <= 0 {
		return
	}
	m.SessionsEvicted.Add(float64(count))
}

// RecordRateLimiterDrop records an operation dropped by a rate limiter.
func (m *Metrics) RecordRateLimiterDrop(limiterType string) {
	if m == nil {
		return
	}
	m.RateLimiterDropped.WithLabelValues(limiterType).Inc()
}
