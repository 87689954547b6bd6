package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "seatinv_requests_total",
			Help: "Total number of requests",
		},
		[]string{"route", "code", "method"},
	)

	DBTxDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "seatinv_db_tx_seconds",
			Help:    "Duration of DB transactions, retries included",
			Buckets: prometheus.DefBuckets,
		},
	)

	TxRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "seatinv_db_tx_retries_total",
			Help: "Transactions restarted after a serialization failure",
		},
	)

	ReserveOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "seatinv_reserve_total",
			Help: "Reserve attempts by unit kind and outcome",
		},
		[]string{"kind", "outcome"},
	)

	HoldTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "seatinv_hold_transitions_total",
			Help: "Hold confirmations and releases by outcome",
		},
		[]string{"transition", "outcome"},
	)

	UnitsSwept = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "seatinv_units_swept_total",
			Help: "Units freed by expiry sweeps",
		},
	)

	SeatsGenerated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "seatinv_seats_generated_total",
			Help: "Seats written by floor-plan regenerations",
		},
	)

	OutboxLag = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "seatinv_outbox_lag_seconds",
			Help: "Age of the oldest unpublished outbox record",
		},
	)

	RabbitPublishRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "seatinv_rabbit_publish_failures_total",
			Help: "Outbox publishes rejected by the broker",
		},
	)

	RateLimitExceeded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "seatinv_rate_limit_exceeded_total",
			Help: "Total rate limit exceeded",
		},
	)
)

