// Package metrics defines the Prometheus instrumentation for the ASR
// bridge service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the ASR bridge service
type Metrics struct {
	// Connection metrics
	ConnectionsActive prometheus.Gauge
	ConnectionsTotal  prometheus.Counter

	// Event metrics
	EventsReceived *prometheus.CounterVec
	DecodeErrors   prometheus.Counter

	// Utterance metrics
	UtterancesStarted   prometheus.Counter
	UtterancesCompleted prometheus.Counter
	UtterancesOverLimit prometheus.Counter
	UtteranceBytes      prometheus.Histogram
	UtteranceDuration   prometheus.Histogram

	// Transcription metrics
	TranscriptionRequests  prometheus.Counter
	TranscriptionSuccesses prometheus.Counter
	TranscriptionFailures  prometheus.Counter
	TranscriptionDuration  prometheus.Histogram

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers all metrics on the default registry
func NewMetrics() *Metrics {
	return NewMetricsWithRegistry(prometheus.DefaultRegisterer)
}

// NewMetricsWithRegistry creates all metrics on the given registry
func NewMetricsWithRegistry(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		ConnectionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "asr_connections_active",
			Help: "Current number of open client connections",
		}),
		ConnectionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "asr_connections_total",
			Help: "Total number of client connections accepted",
		}),

		EventsReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "asr_events_received_total",
			Help: "Total number of protocol events received",
		}, []string{"type"}),
		DecodeErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "asr_event_decode_errors_total",
			Help: "Total number of event decode errors",
		}),

		UtterancesStarted: factory.NewCounter(prometheus.CounterOpts{
			Name: "asr_utterances_started_total",
			Help: "Total number of utterances opened by audio-start",
		}),
		UtterancesCompleted: factory.NewCounter(prometheus.CounterOpts{
			Name: "asr_utterances_completed_total",
			Help: "Total number of utterances answered with a transcript",
		}),
		UtterancesOverLimit: factory.NewCounter(prometheus.CounterOpts{
			Name: "asr_utterances_over_limit_total",
			Help: "Total number of utterances that exceeded the duration limit",
		}),
		UtteranceBytes: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "asr_utterance_bytes",
			Help:    "Buffered size of completed utterances in bytes",
			Buckets: prometheus.ExponentialBuckets(1024, 2, 12), // 1KB to ~4MB
		}),
		UtteranceDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "asr_utterance_duration_seconds",
			Help:    "Buffered audio duration of completed utterances",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 10), // 0.25s to ~2 minutes
		}),

		TranscriptionRequests: factory.NewCounter(prometheus.CounterOpts{
			Name: "asr_transcription_requests_total",
			Help: "Total number of transcription calls dispatched to the engine",
		}),
		TranscriptionSuccesses: factory.NewCounter(prometheus.CounterOpts{
			Name: "asr_transcription_successes_total",
			Help: "Total number of successful transcription calls",
		}),
		TranscriptionFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "asr_transcription_failures_total",
			Help: "Total number of failed transcription calls",
		}),
		TranscriptionDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "asr_transcription_duration_seconds",
			Help:    "Duration of transcription calls",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~2 minutes
		}),

		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "asr_http_requests_total",
			Help: "Total number of HTTP monitoring requests",
		}, []string{"method", "endpoint", "status_code"}),
		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "asr_http_request_duration_seconds",
			Help:    "Duration of HTTP monitoring requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
	}
}

// RecordConnectionOpened tracks a newly accepted connection
func (m *Metrics) RecordConnectionOpened() {
	m.ConnectionsTotal.Inc()
	m.ConnectionsActive.Inc()
}

// RecordConnectionClosed tracks a closed connection
func (m *Metrics) RecordConnectionClosed() {
	m.ConnectionsActive.Dec()
}

// RecordEventReceived counts one received event by type
func (m *Metrics) RecordEventReceived(eventType string) {
	m.EventsReceived.WithLabelValues(eventType).Inc()
}

// RecordDecodeError counts one event decode failure
func (m *Metrics) RecordDecodeError() {
	m.DecodeErrors.Inc()
}

// RecordUtteranceStarted counts one opened utterance
func (m *Metrics) RecordUtteranceStarted() {
	m.UtterancesStarted.Inc()
}

// RecordUtteranceCompleted records a completed utterance and its buffered size
func (m *Metrics) RecordUtteranceCompleted(sizeBytes int, durationSeconds float64) {
	m.UtterancesCompleted.Inc()
	m.UtteranceBytes.Observe(float64(sizeBytes))
	m.UtteranceDuration.Observe(durationSeconds)
}

// RecordUtteranceOverLimit counts one utterance that exceeded the limit
func (m *Metrics) RecordUtteranceOverLimit() {
	m.UtterancesOverLimit.Inc()
}

// RecordTranscriptionRequest counts one dispatched engine call
func (m *Metrics) RecordTranscriptionRequest() {
	m.TranscriptionRequests.Inc()
}

// RecordTranscriptionSuccess records a successful engine call
func (m *Metrics) RecordTranscriptionSuccess(durationSeconds float64) {
	m.TranscriptionSuccesses.Inc()
	m.TranscriptionDuration.Observe(durationSeconds)
}

// RecordTranscriptionFailure records a failed engine call
func (m *Metrics) RecordTranscriptionFailure(durationSeconds float64) {
	m.TranscriptionFailures.Inc()
	m.TranscriptionDuration.Observe(durationSeconds)
}

// RecordHTTPRequest records an HTTP monitoring request
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, durationSeconds float64) {
	m.HTTPRequests.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(durationSeconds)
}
