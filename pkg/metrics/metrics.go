package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all application metrics
type Metrics struct {
	// Lifecycle metrics
	Transitions *prometheus.CounterVec
	Rejections  *prometheus.CounterVec

	// Assignment metrics
	ClaimOutcomes *prometheus.CounterVec
	ClaimLatency  prometheus.Histogram

	// Auto-advance metrics
	AdvanceOutcomes *prometheus.CounterVec

	// Outbox related metrics
	OutboxEventsProcessed   prometheus.Counter
	OutboxEventsFailed      prometheus.Counter
	OutboxProcessingLatency prometheus.Histogram
	OutboxRetries           *prometheus.CounterVec

	// HTTP metrics
	HTTPRequests *prometheus.CounterVec
	HTTPLatency  *prometheus.HistogramVec
}

// New creates the metric set and registers it with reg. A nil registerer
// leaves the collectors unregistered, which tests rely on.
func New(namespace string, reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "appointment_transitions_total",
			Help:      "Appointment status transitions applied",
		}, []string{"from", "to"}),
		Rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "appointment_rejections_total",
			Help:      "Rejected appointment operations by error kind",
		}, []string{"kind"}),
		ClaimOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "resource_claims_total",
			Help:      "Dentist and room claim attempts by outcome",
		}, []string{"outcome"}),
		ClaimLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "resource_claim_duration_seconds",
			Help:      "Time spent inside the claim transaction",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		}),
		AdvanceOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queue_advance_total",
			Help:      "Auto-advance attempts by trigger and outcome",
		}, []string{"trigger", "outcome"}),
		OutboxEventsProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbox_events_processed_total",
			Help:      "Total number of successfully processed outbox events",
		}),
		OutboxEventsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbox_events_failed_total",
			Help:      "Total number of failed outbox events",
		}),
		OutboxProcessingLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "outbox_processing_duration_seconds",
			Help:      "Time spent processing outbox events",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}),
		OutboxRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbox_retry_attempts_total",
			Help:      "Total number of retry attempts for outbox events",
		}, []string{"event_type"}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route, method and status",
		}, []string{"route", "method", "status"}),
		HTTPLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),
	}

	if reg != nil {
		reg.MustRegister(
			m.Transitions, m.Rejections,
			m.ClaimOutcomes, m.ClaimLatency,
			m.AdvanceOutcomes,
			m.OutboxEventsProcessed, m.OutboxEventsFailed, m.OutboxProcessingLatency, m.OutboxRetries,
			m.HTTPRequests, m.HTTPLatency,
		)
	}
	return m
}

// Nop returns unregistered collectors.
func Nop() *Metrics {
	return New("test", nil)
}
