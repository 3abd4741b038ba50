package consumer

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds Prometheus metrics for the notification pipeline.
type Metrics struct {
	MessagesTotal   *prometheus.CounterVec
	StageFailures   *prometheus.CounterVec
	ProcessDuration prometheus.Histogram
	RecallItems     prometheus.Histogram
	InFlight        prometheus.Gauge
}

// NewMetrics registers and returns pipeline metrics on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		MessagesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "agent_messages_total",
			Help: "Total incident-ready messages by processing result.",
		}, []string{"result"}),
		StageFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "agent_stage_failures_total",
			Help: "Pipeline failures by stage.",
		}, []string{"stage"}),
		ProcessDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "agent_process_duration_seconds",
			Help:    "End-to-end processing time per notified incident.",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10), // 0.5s .. ~256s
		}),
		RecallItems: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "agent_recall_items",
			Help:    "Recalled context items per analyzed incident.",
			Buckets: prometheus.LinearBuckets(0, 1, 6), // 0 .. 5
		}),
		InFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "agent_messages_in_flight",
			Help: "Messages currently being processed.",
		}),
	}

	reg.MustRegister(
		m.MessagesTotal,
		m.StageFailures,
		m.ProcessDuration,
		m.RecallItems,
		m.InFlight,
	)
	return m
}
