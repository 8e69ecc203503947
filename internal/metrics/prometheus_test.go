package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsRegistration(t *testing.T) {
	// A fresh registry per test avoids duplicate registration panics
	reg := prometheus.NewRegistry()
	m := NewMetricsWithRegistry(reg)

	m.RecordConnectionOpened()
	m.RecordConnectionOpened()
	m.RecordConnectionClosed()

	if got := testutil.ToFloat64(m.ConnectionsTotal); got != 2 {
		t.Errorf("connections total = %f", got)
	}
	if got := testutil.ToFloat64(m.ConnectionsActive); got != 1 {
		t.Errorf("connections active = %f", got)
	}
}

func TestMetricsEventCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetricsWithRegistry(reg)

	m.RecordEventReceived("audio-chunk")
	m.RecordEventReceived("audio-chunk")
	m.RecordEventReceived("describe")
	m.RecordDecodeError()

	if got := testutil.ToFloat64(m.EventsReceived.WithLabelValues("audio-chunk")); got != 2 {
		t.Errorf("audio-chunk events = %f", got)
	}
	if got := testutil.ToFloat64(m.EventsReceived.WithLabelValues("describe")); got != 1 {
		t.Errorf("describe events = %f", got)
	}
	if got := testutil.ToFloat64(m.DecodeErrors); got != 1 {
		t.Errorf("decode errors = %f", got)
	}
}

func TestMetricsUtteranceLifecycle(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetricsWithRegistry(reg)

	m.RecordUtteranceStarted()
	m.RecordUtteranceCompleted(32000, 1.0)
	m.RecordUtteranceOverLimit()

	if got := testutil.ToFloat64(m.UtterancesStarted); got != 1 {
		t.Errorf("utterances started = %f", got)
	}
	if got := testutil.ToFloat64(m.UtterancesCompleted); got != 1 {
		t.Errorf("utterances completed = %f", got)
	}
	if got := testutil.ToFloat64(m.UtterancesOverLimit); got != 1 {
		t.Errorf("utterances over limit = %f", got)
	}
}

func TestMetricsTranscriptionCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetricsWithRegistry(reg)

	m.RecordTranscriptionRequest()
	m.RecordTranscriptionSuccess(0.5)
	m.RecordTranscriptionRequest()
	m.RecordTranscriptionFailure(1.5)

	if got := testutil.ToFloat64(m.TranscriptionRequests); got != 2 {
		t.Errorf("requests = %f", got)
	}
	if got := testutil.ToFloat64(m.TranscriptionSuccesses); got != 1 {
		t.Errorf("successes = %f", got)
	}
	if got := testutil.ToFloat64(m.TranscriptionFailures); got != 1 {
		t.Errorf("failures = %f", got)
	}
}
