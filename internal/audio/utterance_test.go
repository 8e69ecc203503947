package audio

import (
	"bytes"
	"testing"
)

func TestFormatBytesPerSecond(t *testing.T) {
	tests := []struct {
		name   string
		format Format
		want   int
	}{
		{"canonical", Format{16000, 2, 1}, 32000},
		{"stereo 44.1k", Format{44100, 2, 2}, 176400},
		{"zero rate", Format{0, 2, 1}, 0},
		{"negative rate", Format{-16000, 2, 1}, -32000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.format.BytesPerSecond(); got != tt.want {
				t.Errorf("BytesPerSecond() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestFormatIsCanonical(t *testing.T) {
	if !(Format{16000, 2, 1}).IsCanonical() {
		t.Error("16000/2/1 should be canonical")
	}
	if (Format{8000, 2, 1}).IsCanonical() {
		t.Error("8000/2/1 should not be canonical")
	}
	if (Format{16000, 2, 2}).IsCanonical() {
		t.Error("16000/2/2 should not be canonical")
	}
}

func TestUtteranceLifecycle(t *testing.T) {
	u := NewUtterance(0)

	if u.State() != StateIdle {
		t.Fatalf("initial state = %v", u.State())
	}

	// Chunks before audio-start are discarded
	if u.Append([]byte{1, 2, 3}) {
		t.Error("Append should fail while idle")
	}
	if u.Len() != 0 {
		t.Errorf("idle buffer length = %d", u.Len())
	}

	u.Start(Canonical)
	if u.State() != StateBuffering {
		t.Fatalf("state after Start = %v", u.State())
	}

	if !u.Append([]byte{1, 2}) {
		t.Error("Append should succeed while buffering")
	}
	if !u.Append([]byte{3, 4}) {
		t.Error("Append should succeed while buffering")
	}

	if !bytes.Equal(u.Bytes(), []byte{1, 2, 3, 4}) {
		t.Errorf("buffered = %v", u.Bytes())
	}

	u.Reset()
	if u.State() != StateIdle || u.Len() != 0 {
		t.Errorf("after Reset: state=%v len=%d", u.State(), u.Len())
	}
}

func TestUtteranceDurationLimit(t *testing.T) {
	// 1 second at 16000 Hz / 2 bytes / 1 channel is 32000 bytes
	tests := []struct {
		name       string
		maxSeconds float64
		chunkSizes []int
		wantState  State
		wantLen    int
	}{
		{
			name:       "below limit",
			maxSeconds: 1.0,
			chunkSizes: []int{16000, 15999},
			wantState:  StateBuffering,
			wantLen:    31999,
		},
		{
			name:       "exactly at limit stays buffering",
			maxSeconds: 1.0,
			chunkSizes: []int{32000},
			wantState:  StateBuffering,
			wantLen:    32000,
		},
		{
			name:       "crossing chunk is kept",
			maxSeconds: 1.0,
			chunkSizes: []int{16000, 16001},
			wantState:  StateOverLimit,
			wantLen:    32001,
		},
		{
			name:       "chunks after the limit are dropped",
			maxSeconds: 1.0,
			chunkSizes: []int{32001, 8000, 8000},
			wantState:  StateOverLimit,
			wantLen:    32001,
		},
		{
			name:       "zero limit is unlimited",
			maxSeconds: 0,
			chunkSizes: []int{320000, 320000},
			wantState:  StateBuffering,
			wantLen:    640000,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := NewUtterance(tt.maxSeconds)
			u.Start(Canonical)

			for _, size := range tt.chunkSizes {
				u.Append(make([]byte, size))
			}

			if u.State() != tt.wantState {
				t.Errorf("state = %v, want %v", u.State(), tt.wantState)
			}
			if u.Len() != tt.wantLen {
				t.Errorf("len = %d, want %d", u.Len(), tt.wantLen)
			}
		})
	}
}

func TestUtteranceZeroByteRateSkipsLimit(t *testing.T) {
	// A reported format with a zero byte rate cannot be used for duration
	// accounting; the limit check must not divide by it.
	u := NewUtterance(1.0)
	u.Start(Format{Rate: 0, Width: 0, Channels: 0})

	if !u.Append(make([]byte, 1<<20)) {
		t.Error("Append should succeed for unaccountable formats")
	}
	if u.State() != StateBuffering {
		t.Errorf("state = %v", u.State())
	}
	if u.Duration() != 0 {
		t.Errorf("duration = %f, want 0", u.Duration())
	}
}

func TestUtteranceDuration(t *testing.T) {
	u := NewUtterance(0)

	if u.Duration() != 0 {
		t.Errorf("idle duration = %f", u.Duration())
	}

	u.Start(Canonical)
	u.Append(make([]byte, 16000)) // 0.5s at 32000 B/s

	if got := u.Duration(); got != 0.5 {
		t.Errorf("duration = %f, want 0.5", got)
	}
}

func TestUtteranceStartDiscardsPreviousAudio(t *testing.T) {
	u := NewUtterance(0)

	u.Start(Canonical)
	u.Append([]byte{1, 2, 3, 4})

	u.Start(Canonical)
	if u.Len() != 0 {
		t.Errorf("restart kept %d stale bytes", u.Len())
	}
	if u.State() != StateBuffering {
		t.Errorf("state = %v", u.State())
	}
}

func TestUtteranceRestartClearsOverLimit(t *testing.T) {
	u := NewUtterance(1.0)
	u.Start(Canonical)
	u.Append(make([]byte, 40000))

	if u.State() != StateOverLimit {
		t.Fatalf("state = %v", u.State())
	}

	u.Start(Canonical)
	if u.State() != StateBuffering || u.Len() != 0 {
		t.Errorf("after restart: state=%v len=%d", u.State(), u.Len())
	}

	if !u.Append(make([]byte, 8000)) {
		t.Error("Append should succeed after restart")
	}
}

func TestStateString(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateIdle, "idle"},
		{StateBuffering, "buffering"},
		{StateOverLimit, "over_limit"},
	}

	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("%d.String() = %q, want %q", int(tt.state), got, tt.want)
		}
	}
}
