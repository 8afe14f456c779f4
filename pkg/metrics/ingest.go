package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// IngestMetrics contains Prometheus metrics for the ingestion pipeline.
type IngestMetrics struct {
	ReportsPublished   *prometheus.CounterVec
	PublishFailures    *prometheus.CounterVec
	ReportsRejected    prometheus.Counter
	MessagesProcessed  *prometheus.CounterVec
	ProcessingDuration *prometheus.HistogramVec
	ActiveConsumers    prometheus.Gauge
}

// NewIngestMetrics creates and registers ingestion pipeline metrics.
func NewIngestMetrics(namespace string) *IngestMetrics {
	m := &IngestMetrics{
		ReportsPublished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "ingest",
				Name:      "reports_published_total",
				Help:      "Total number of reports published per queue",
			},
			[]string{"queue"},
		),
		PublishFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "ingest",
				Name:      "publish_failures_total",
				Help:      "Total number of failed publishes per queue",
			},
			[]string{"queue", "reason"},
		),
		ReportsRejected: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "ingest",
				Name:      "reports_rejected_total",
				Help:      "Total number of reports rejected by validation before publish",
			},
		),
		MessagesProcessed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "ingest",
				Name:      "messages_processed_total",
				Help:      "Total number of consumed messages by outcome",
			},
			[]string{"queue", "outcome"}, // outcome: acked, rejected
		),
		ProcessingDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "ingest",
				Name:      "processing_duration_seconds",
				Help:      "Duration of message processing",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"queue"},
		),
		ActiveConsumers: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "ingest",
				Name:      "active_consumers",
				Help:      "Number of running consumer loops",
			},
		),
	}

	MustRegister(
		m.ReportsPublished,
		m.PublishFailures,
		m.ReportsRejected,
		m.MessagesProcessed,
		m.ProcessingDuration,
		m.ActiveConsumers,
	)

	return m
}
