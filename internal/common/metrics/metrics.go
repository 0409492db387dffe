package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Ingestion outcomes.
const (
	OutcomeQueued    = "queued"
	OutcomeDuplicate = "duplicate"
	OutcomeSkipped   = "skipped"
	OutcomeRejected  = "rejected"
	OutcomeError     = "error"
)

// Delivery outcomes.
const (
	OutcomeSent      = "sent"
	OutcomeRetry     = "retry"
	OutcomeExhausted = "exhausted"
)

var (
	AlertsIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fms_alerts_ingested_total",
			Help: "Total number of FMS alert webhooks by ingestion outcome",
		},
		[]string{"outcome"},
	)

	DeliveryAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "whatsapp_delivery_attempts_total",
			Help: "Total number of WhatsApp delivery attempts",
		},
		[]string{"kind", "outcome"},
	)

	ProviderRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "whatsapp_provider_request_seconds",
			Help:    "Duration of Infobip API calls in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"kind"},
	)

	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "whatsapp_queue_depth",
			Help: "Number of delivery tasks waiting in the queue",
		},
	)

	WorkersActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "whatsapp_workers_active",
			Help: "Number of delivery workers currently processing a task",
		},
	)
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fms_http_requests_total",
			Help: "Total number of HTTP requests by route and status",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fms_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)
