package protocol

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"

	json "github.com/goccy/go-json"
)

func TestEventRoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		event   Event
		payload []byte
	}{
		{
			name:  "type only",
			event: Event{Type: EventAudioStop},
		},
		{
			name:  "type and data",
			event: Event{Type: EventTranscript, Data: json.RawMessage(`{"text":"hello"}`)},
		},
		{
			name: "type, data and payload",
			event: Event{
				Type:    EventAudioChunk,
				Data:    json.RawMessage(`{"rate":16000,"width":2,"channels":1}`),
				Payload: []byte{0x01, 0x02, 0x03, 0x04},
			},
		},
		{
			name: "large payload",
			event: Event{
				Type:    EventAudioChunk,
				Data:    json.RawMessage(`{"rate":16000,"width":2,"channels":1}`),
				Payload: bytes.Repeat([]byte{0xAB}, 64*1024),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer

			writer := NewWriter(&buf)
			if err := writer.WriteEvent(&tt.event); err != nil {
				t.Fatalf("WriteEvent failed: %v", err)
			}

			reader := NewReader(&buf, 4096)
			got, err := reader.ReadEvent()
			if err != nil {
				t.Fatalf("ReadEvent failed: %v", err)
			}

			if got.Type != tt.event.Type {
				t.Errorf("type = %q, want %q", got.Type, tt.event.Type)
			}
			if !bytes.Equal(got.Data, tt.event.Data) {
				t.Errorf("data = %q, want %q", got.Data, tt.event.Data)
			}
			if !bytes.Equal(got.Payload, tt.event.Payload) {
				t.Errorf("payload mismatch: %d bytes, want %d", len(got.Payload), len(tt.event.Payload))
			}
		})
	}
}

func TestReadEventSequence(t *testing.T) {
	var buf bytes.Buffer
	writer := NewWriter(&buf)

	events := []*Event{
		{Type: EventTranscribe, Data: json.RawMessage(`{"language":"en"}`)},
		{Type: EventAudioStart, Data: json.RawMessage(`{"rate":16000,"width":2,"channels":1}`)},
		{Type: EventAudioChunk, Payload: []byte{1, 2, 3}},
		{Type: EventAudioStop},
	}

	for _, e := range events {
		if err := writer.WriteEvent(e); err != nil {
			t.Fatalf("WriteEvent failed: %v", err)
		}
	}

	reader := NewReader(&buf, 4096)
	for i, want := range events {
		got, err := reader.ReadEvent()
		if err != nil {
			t.Fatalf("ReadEvent %d failed: %v", i, err)
		}
		if got.Type != want.Type {
			t.Errorf("event %d type = %q, want %q", i, got.Type, want.Type)
		}
	}

	// The stream ends cleanly between events
	if _, err := reader.ReadEvent(); err != io.EOF {
		t.Errorf("expected io.EOF at stream end, got %v", err)
	}
}

func TestReadEventLegacyInlineData(t *testing.T) {
	// Older clients inline the data document in the header line
	raw := `{"type":"audio-start","data":{"rate":16000,"width":2,"channels":1}}` + "\n"

	reader := NewReader(strings.NewReader(raw), 4096)
	event, err := reader.ReadEvent()
	if err != nil {
		t.Fatalf("ReadEvent failed: %v", err)
	}

	if event.Type != EventAudioStart {
		t.Errorf("type = %q", event.Type)
	}

	start, err := ParseAudioStart(event)
	if err != nil {
		t.Fatalf("ParseAudioStart failed: %v", err)
	}
	if start.Rate != 16000 || start.Width != 2 || start.Channels != 1 {
		t.Errorf("audio-start = %+v", start)
	}
}

func TestReadEventMalformed(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"invalid JSON header", "{not json}\n"},
		{"missing type", `{"payload_length":4}` + "\n"},
		{"empty type", `{"type":""}` + "\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reader := NewReader(strings.NewReader(tt.raw), 4096)
			_, err := reader.ReadEvent()
			if err == nil {
				t.Fatal("expected error for malformed header")
			}
			if !errors.Is(err, ErrMalformedEvent) {
				t.Errorf("expected ErrMalformedEvent, got %v", err)
			}
		})
	}
}

func TestReadEventMalformedThenValid(t *testing.T) {
	raw := "{broken}\n" + `{"type":"audio-stop"}` + "\n"

	reader := NewReader(strings.NewReader(raw), 4096)

	_, err := reader.ReadEvent()
	if !errors.Is(err, ErrMalformedEvent) {
		t.Fatalf("expected ErrMalformedEvent, got %v", err)
	}

	// The reader stays positioned after the bad header line
	event, err := reader.ReadEvent()
	if err != nil {
		t.Fatalf("ReadEvent after malformed header failed: %v", err)
	}
	if event.Type != EventAudioStop {
		t.Errorf("type = %q", event.Type)
	}
}

// repeatByteReader serves an endless stream of one byte and counts how much
// of it was consumed.
type repeatByteReader struct {
	b        byte
	consumed int
}

func (r *repeatByteReader) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = r.b
	}
	r.consumed += len(p)
	return len(p), nil
}

func TestReadEventUnterminatedHeaderBounded(t *testing.T) {
	// A stream that never sends a newline must fail at the header size
	// limit instead of buffering the line indefinitely.
	src := &repeatByteReader{b: 'a'}
	reader := NewReader(src, 4096)

	_, err := reader.ReadEvent()
	if err == nil {
		t.Fatal("expected error for unterminated header")
	}
	if !strings.Contains(err.Error(), "header too large") {
		t.Errorf("unexpected error: %v", err)
	}

	// Consumption stays within one buffer of the limit
	if src.consumed > MaxHeaderSize+8192 {
		t.Errorf("consumed %d bytes before failing (limit %d)", src.consumed, MaxHeaderSize)
	}
}

func TestReadEventTruncatedPayload(t *testing.T) {
	raw := `{"type":"audio-chunk","payload_length":100}` + "\nshort"

	reader := NewReader(strings.NewReader(raw), 4096)
	if _, err := reader.ReadEvent(); err == nil {
		t.Fatal("expected error for truncated payload")
	}
}

func TestReadEventOversizedDeclarations(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"data too large", `{"type":"info","data_length":99999999}` + "\n"},
		{"payload too large", `{"type":"audio-chunk","payload_length":999999999}` + "\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reader := NewReader(strings.NewReader(tt.raw), 4096)
			if _, err := reader.ReadEvent(); err == nil {
				t.Fatal("expected error for oversized declaration")
			}
		})
	}
}

func TestWriteEventEmptyType(t *testing.T) {
	writer := NewWriter(&bytes.Buffer{})
	if err := writer.WriteEvent(&Event{}); err == nil {
		t.Fatal("expected error for event without type")
	}
}

func TestParseAudioStart(t *testing.T) {
	t.Run("missing data", func(t *testing.T) {
		if _, err := ParseAudioStart(&Event{Type: EventAudioStart}); err == nil {
			t.Fatal("expected error for audio-start without data")
		}
	})

	t.Run("wrong type", func(t *testing.T) {
		if _, err := ParseAudioStart(&Event{Type: EventAudioStop}); err == nil {
			t.Fatal("expected error for wrong event type")
		}
	})
}

func TestParseAudioChunk(t *testing.T) {
	event := &Event{
		Type:    EventAudioChunk,
		Data:    json.RawMessage(`{"rate":16000,"width":2,"channels":1}`),
		Payload: []byte{9, 8, 7},
	}

	chunk, err := ParseAudioChunk(event)
	if err != nil {
		t.Fatalf("ParseAudioChunk failed: %v", err)
	}

	if !bytes.Equal(chunk.Audio, []byte{9, 8, 7}) {
		t.Errorf("audio = %v", chunk.Audio)
	}
	if chunk.Rate != 16000 {
		t.Errorf("rate = %d", chunk.Rate)
	}
}

func TestTranscriptRoundTrip(t *testing.T) {
	original := Transcript{Text: "turn on the lights", Language: "en"}

	event, err := original.Event()
	if err != nil {
		t.Fatalf("Event failed: %v", err)
	}
	if event.Type != EventTranscript {
		t.Errorf("type = %q", event.Type)
	}

	parsed, err := ParseTranscript(event)
	if err != nil {
		t.Fatalf("ParseTranscript failed: %v", err)
	}
	if parsed.Text != original.Text || parsed.Language != original.Language {
		t.Errorf("transcript = %+v, want %+v", parsed, original)
	}
}

func TestEmptyTranscriptKeepsTextField(t *testing.T) {
	transcript := Transcript{Text: ""}

	event, err := transcript.Event()
	if err != nil {
		t.Fatalf("Event failed: %v", err)
	}

	// Clients expect an explicit empty text field, not an absent one
	if !bytes.Contains(event.Data, []byte(`"text":""`)) {
		t.Errorf("empty transcript data = %s", event.Data)
	}
}

func TestInfoEvent(t *testing.T) {
	info := Info{
		ASR: []ProgramInfo{
			{
				Name:        "moonshine-onnx",
				Attribution: Attribution{Name: "Moonshine AI", URL: "https://example.com"},
				Installed:   true,
				Models: []ModelInfo{
					{Name: "moonshine/tiny", Installed: true, Languages: []string{"en"}},
				},
			},
		},
	}

	event, err := info.Event()
	if err != nil {
		t.Fatalf("Event failed: %v", err)
	}
	if event.Type != EventInfo {
		t.Errorf("type = %q", event.Type)
	}

	var decoded Info
	if err := json.Unmarshal(event.Data, &decoded); err != nil {
		t.Fatalf("info data does not decode: %v", err)
	}
	if len(decoded.ASR) != 1 || decoded.ASR[0].Name != "moonshine-onnx" {
		t.Errorf("decoded = %+v", decoded)
	}
}
