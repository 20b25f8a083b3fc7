package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Drop reasons used as the "reason" label.
const (
	ReasonDecode   = "decode"
	ReasonWrite    = "write"
	ReasonShutdown = "shutdown"
	ReasonPanic    = "panic"
)

// Metrics bundles the collector's prometheus instruments. Each instance
// registers on its own Registerer so several pipelines can coexist.
type Metrics struct {
	// Ingest metrics
	MessagesReceived  prometheus.Counter
	MessagesDropped   *prometheus.CounterVec
	ReadingsWritten   prometheus.Counter
	AlertsWritten     *prometheus.CounterVec
	AlertWriteErrors  prometheus.Counter
	ProcessDuration   prometheus.Histogram
	QueueDepth        prometheus.Gauge
	QueueCapacity     prometheus.Gauge
	PipelineState     prometheus.Gauge
	ConnectionsLost   prometheus.Counter
	PanicsRecovered   *prometheus.CounterVec
	NotificationsSent *prometheus.CounterVec

	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// New creates and registers all instruments on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		MessagesReceived: f.NewCounter(prometheus.CounterOpts{
			Name: "collector_messages_received_total",
			Help: "Total number of messages delivered by the transport",
		}),
		MessagesDropped: f.NewCounterVec(prometheus.CounterOpts{
			Name: "collector_messages_dropped_total",
			Help: "Total number of messages dropped before a reading was stored",
		}, []string{"reason"}), // reason: decode, write, shutdown, panic
		ReadingsWritten: f.NewCounter(prometheus.CounterOpts{
			Name: "collector_readings_written_total",
			Help: "Total number of readings persisted",
		}),
		AlertsWritten: f.NewCounterVec(prometheus.CounterOpts{
			Name: "collector_alerts_written_total",
			Help: "Total number of alerts persisted",
		}, []string{"metric"}),
		AlertWriteErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "collector_alert_write_errors_total",
			Help: "Total number of alerts that failed to persist",
		}),
		ProcessDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "collector_message_process_duration_seconds",
			Help:    "Time taken to decode, evaluate and persist one message",
			Buckets: []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		}),
		QueueDepth: f.NewGauge(prometheus.GaugeOpts{
			Name: "collector_queue_size",
			Help: "Current number of messages waiting to be processed",
		}),
		QueueCapacity: f.NewGauge(prometheus.GaugeOpts{
			Name: "collector_queue_capacity",
			Help: "Capacity of the ingest queue",
		}),
		PipelineState: f.NewGauge(prometheus.GaugeOpts{
			Name: "collector_pipeline_state",
			Help: "Pipeline state: 0 stopped, 1 connecting, 2 subscribed",
		}),
		ConnectionsLost: f.NewCounter(prometheus.CounterOpts{
			Name: "collector_transport_connections_lost_total",
			Help: "Total number of transport disconnects",
		}),
		PanicsRecovered: f.NewCounterVec(prometheus.CounterOpts{
			Name: "collector_panics_recovered_total",
			Help: "Total number of panics recovered",
		}, []string{"component"}),
		NotificationsSent: f.NewCounterVec(prometheus.CounterOpts{
			Name: "collector_notifications_total",
			Help: "Alert notifications by provider and outcome",
		}, []string{"provider", "status"}),

		HTTPRequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "collector_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status"}),
		HTTPRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "collector_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"method", "endpoint", "status"}),
	}
}

// NewUnregistered returns instruments attached to a throwaway registry.
func NewUnregistered() *Metrics {
	return New(prometheus.NewRegistry())
}
