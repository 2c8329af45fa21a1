package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PaymentStarts counts start-payment calls by mode and outcome.
	PaymentStarts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payments_start_total",
			Help: "Start-payment requests by mode and outcome.",
		},
		[]string{"mode", "outcome"},
	)

	WebhookEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhook_events_total",
			Help: "Provider webhook events by type and outcome.",
		},
		[]string{"type", "outcome"},
	)

	GatewayRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gateway_request_duration_seconds",
			Help:    "Latency of payment provider calls.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "result"},
	)
)

// Outcome labels for PaymentStarts.
const (
	OutcomeCreated       = "created"
	OutcomeReplayed      = "replayed"
	OutcomeConflict      = "conflict"
	OutcomeInProgress    = "in_progress"
	OutcomeGatewayError  = "gateway_error"
	OutcomeInvalid       = "invalid"
	OutcomeAccountDenied = "account_not_ready"
	OutcomeError         = "error"
)
