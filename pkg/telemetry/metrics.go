package telemetry

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the engine's exported counters and gauges (§4.A).
// cmd/synapsed creates one instance and hands it to the maintenance
// scheduler, whose health job sets QueueDepth, SnapshotVersion and
// ANNDegraded; nothing in this repository updates the other fields.
// Register attaches them to a caller-supplied registry so cmd/synapsed
// controls whether they're exposed at all.
type Metrics struct {
	MutationsAppended prometheus.Counter
	MutationsApplied  prometheus.Counter
	QueueDepth        prometheus.Gauge
	ReconcileBatches  prometheus.Counter
	ReconcileLatency  prometheus.Histogram
	SnapshotVersion   prometheus.Gauge
	ANNSearches       prometheus.Counter
	ANNDegraded       prometheus.Gauge
	Checkpoints       prometheus.Counter
	ProtocolRequests  *prometheus.CounterVec
	ProtocolErrors    *prometheus.CounterVec
}

// NewMetrics constructs a fresh metric set under the "synapse" namespace.
func NewMetrics() *Metrics {
	return &Metrics{
		MutationsAppended: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "synapse", Name: "mutations_appended_total", Help: "mutations durably appended to the WAL",
		}),
		MutationsApplied: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "synapse", Name: "mutations_applied_total", Help: "mutations folded into a published snapshot",
		}),
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "synapse", Name: "write_queue_depth", Help: "pending mutations awaiting reconciliation",
		}),
		ReconcileBatches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "synapse", Name: "reconcile_batches_total", Help: "reconciliation passes performed",
		}),
		ReconcileLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "synapse", Name: "reconcile_latency_seconds", Help: "time to fold one batch into a new snapshot",
			Buckets: prometheus.DefBuckets,
		}),
		SnapshotVersion: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "synapse", Name: "snapshot_version", Help: "sequence number of the currently published snapshot",
		}),
		ANNSearches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "synapse", Name: "ann_searches_total", Help: "semantic_search calls served",
		}),
		ANNDegraded: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "synapse", Name: "ann_degraded", Help: "1 when the ANN index is in exact-scan fallback mode",
		}),
		Checkpoints: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "synapse", Name: "checkpoints_total", Help: "checkpoint generations written",
		}),
		ProtocolRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "synapse", Name: "protocol_requests_total", Help: "requests served by op tag",
		}, []string{"op"}),
		ProtocolErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "synapse", Name: "protocol_errors_total", Help: "requests failed by error code",
		}, []string{"code"}),
	}
}

// Register attaches every metric to reg. Called once at daemon startup.
func (m *Metrics) Register(reg *prometheus.Registry) {
	reg.MustRegister(
		m.MutationsAppended, m.MutationsApplied, m.QueueDepth, m.ReconcileBatches,
		m.ReconcileLatency, m.SnapshotVersion, m.ANNSearches, m.ANNDegraded,
		m.Checkpoints, m.ProtocolRequests, m.ProtocolErrors,
	)
}
