package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	EventsReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tradeflow_settlement",
			Name:      "events_received_total",
			Help:      "Kafka events pulled by the settlement worker",
		},
		[]string{"topic"},
	)

	OrdersFilled = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tradeflow_settlement",
			Name:      "orders_filled_total",
			Help:      "Orders successfully moved to FILLED",
		},
		[]string{"topic"},
	)

	SettlementsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tradeflow_settlement",
			Name:      "failed_total",
			Help:      "Settlement attempts left unacknowledged, by reason",
		},
		[]string{"topic", "reason"},
	)

	DLQPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tradeflow_settlement",
			Name:      "dlq_total",
			Help:      "Poison events routed to the DLQ, by reason",
		},
		[]string{"topic", "reason"},
	)

	SettleLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "tradeflow_settlement",
			Name:      "settle_duration_seconds",
			Help:      "End-to-end settlement latency per event, including the simulated delay",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"topic"},
	)

	InflightSettlements = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "tradeflow_settlement",
			Name:      "inflight_settlements",
			Help:      "Number of events currently being settled (semaphore depth)",
		},
	)
)
