package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the harvest service
type Metrics struct {
	// Historical crawl metrics
	CrawlsTotal        *prometheus.CounterVec
	CrawlDuration      prometheus.Histogram
	ActiveCrawls       prometheus.Gauge
	GroupsProcessed    prometheus.Counter
	GroupsSkipped      *prometheus.CounterVec
	MessagesScanned    prometheus.Counter
	SpeakEventsCreated *prometheus.CounterVec

	// Platform metrics
	FloodWaits        prometheus.Counter
	FloodWaitSeconds  prometheus.Counter
	ActiveConnections prometheus.Gauge
	ConnectFailures   prometheus.Counter

	// Listener metrics
	ActiveListeners  prometheus.Gauge
	ListenerMessages *prometheus.CounterVec

	// Progress metrics
	ProgressWriteFailures prometheus.Counter

	// Kafka metrics
	KafkaMessagesProduced prometheus.Counter
	KafkaProduceErrors    *prometheus.CounterVec
}

var (
	// DefaultMetrics is the default metrics instance
	DefaultMetrics *Metrics
	once           sync.Once
)

// GetDefaultMetrics returns the singleton metrics instance
func GetDefaultMetrics() *Metrics {
	once.Do(func() {
		DefaultMetrics = NewMetrics()
	})
	return DefaultMetrics
}

// NewMetrics registers all collectors with the default registry.
// Call it once per process; use GetDefaultMetrics elsewhere.
func NewMetrics() *Metrics {
	return &Metrics{
		CrawlsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvest_crawls_total",
				Help: "Total number of account crawls by outcome",
			},
			[]string{"outcome"},
		),
		CrawlDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "harvest_crawl_duration_seconds",
			Help:    "Duration of a single account crawl",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600},
		}),
		ActiveCrawls: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "harvest_active_crawls",
			Help: "Number of account crawls currently holding a concurrency slot",
		}),
		GroupsProcessed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "harvest_groups_processed_total",
			Help: "Total number of groups walked by crawls",
		}),
		GroupsSkipped: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvest_groups_skipped_total",
				Help: "Total number of groups skipped by reason",
			},
			[]string{"reason"},
		),
		MessagesScanned: promauto.NewCounter(prometheus.CounterOpts{
			Name: "harvest_messages_scanned_total",
			Help: "Total number of history messages examined",
		}),
		SpeakEventsCreated: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvest_speak_events_created_total",
				Help: "Total number of new speak events stored by source",
			},
			[]string{"source"},
		),
		FloodWaits: promauto.NewCounter(prometheus.CounterOpts{
			Name: "harvest_flood_waits_total",
			Help: "Total number of FLOOD_WAIT penalties received",
		}),
		FloodWaitSeconds: promauto.NewCounter(prometheus.CounterOpts{
			Name: "harvest_flood_wait_seconds_total",
			Help: "Total seconds spent waiting out FLOOD_WAIT penalties",
		}),
		ActiveConnections: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "harvest_active_connections",
			Help: "Number of live MTProto connections",
		}),
		ConnectFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "harvest_connect_failures_total",
			Help: "Total number of failed connection attempts",
		}),
		ActiveListeners: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "harvest_active_listeners",
			Help: "Number of accounts with a running live listener",
		}),
		ListenerMessages: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvest_listener_messages_total",
				Help: "Total number of live messages handled by result",
			},
			[]string{"result"},
		),
		ProgressWriteFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "harvest_progress_write_failures_total",
			Help: "Total number of durable progress writes that failed",
		}),
		KafkaMessagesProduced: promauto.NewCounter(prometheus.CounterOpts{
			Name: "harvest_kafka_messages_produced_total",
			Help: "Total number of messages acknowledged by Kafka",
		}),
		KafkaProduceErrors: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvest_kafka_produce_errors_total",
				Help: "Total number of Kafka produce errors",
			},
			[]string{"topic"},
		),
	}
}

// RecordCrawl records a finished account crawl
func (m *Metrics) RecordCrawl(outcome string, d time.Duration) {
	m.CrawlsTotal.WithLabelValues(outcome).Inc()
	m.CrawlDuration.Observe(d.Seconds())
}

// RecordGroupSkipped records a group that contributed nothing
func (m *Metrics) RecordGroupSkipped(reason string) {
	m.GroupsSkipped.WithLabelValues(reason).Inc()
}

// RecordSpeakEvent records a newly stored speak event
func (m *Metrics) RecordSpeakEvent(source string) {
	m.SpeakEventsCreated.WithLabelValues(source).Inc()
}

// RecordFloodWait records a FLOOD_WAIT penalty
func (m *Metrics) RecordFloodWait(wait time.Duration) {
	m.FloodWaits.Inc()
	m.FloodWaitSeconds.Add(wait.Seconds())
}

// RecordListenerMessage records a live message by handling result
func (m *Metrics) RecordListenerMessage(result string) {
	m.ListenerMessages.WithLabelValues(result).Inc()
}

// RecordKafkaError records a failed produce
func (m *Metrics) RecordKafkaError(topic string) {
	m.KafkaProduceErrors.WithLabelValues(topic).Inc()
}
