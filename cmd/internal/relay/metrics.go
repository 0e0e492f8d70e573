package relay

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricSubmits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "beacon",
		Subsystem: "relay",
		Name:      "submits_total",
		Help:      "Log submits by outcome (accepted, duplicate, failed).",
	}, []string{"outcome"})

	metricReplayRecords = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "beacon",
		Subsystem: "relay",
		Name:      "replay_records_total",
		Help:      "Records delivered to reconnecting clients via replay.",
	})

	metricReplayFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "beacon",
		Subsystem: "relay",
		Name:      "replay_failures_total",
		Help:      "Replays aborted by a store read error (partial delivery).",
	})

	metricBroadcastDrops = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "beacon",
		Subsystem: "relay",
		Name:      "broadcast_drops_total",
		Help:      "Fan-out deliveries dropped due to per-client backpressure.",
	})

	metricConnectedClients = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "beacon",
		Subsystem: "relay",
		Name:      "connected_clients",
		Help:      "Currently connected websocket sessions.",
	})
)
