package protocol

import (
	"bufio"
	"errors"
	"fmt"
	"io"

	json "github.com/goccy/go-json"
)

// ErrMalformedEvent marks decode failures that are recoverable: the header
// line was framed correctly but its content could not be used. Callers may
// skip the event and keep reading the stream.
var ErrMalformedEvent = errors.New("malformed event")

// Event type names exchanged with clients
const (
	EventDescribe   = "describe"
	EventInfo       = "info"
	EventTranscribe = "transcribe"
	EventAudioStart = "audio-start"
	EventAudioChunk = "audio-chunk"
	EventAudioStop  = "audio-stop"
	EventTranscript = "transcript"
)

// Frame size limits. Header lines are small JSON documents; payloads carry
// PCM audio and get a larger allowance.
const (
	MaxHeaderSize  = 8 * 1024
	MaxDataSize    = 1024 * 1024
	MaxPayloadSize = 16 * 1024 * 1024
)

// Event represents one framed protocol event: a type, an optional JSON data
// document, and an optional raw binary payload.
type Event struct {
	Type    string
	Data    json.RawMessage
	Payload []byte
}

// eventHeader is the wire form of the framing line. Older clients inline the
// data document in the header instead of sending data_length.
type eventHeader struct {
	Type          string          `json:"type"`
	Data          json.RawMessage `json:"data,omitempty"`
	DataLength    *int            `json:"data_length,omitempty"`
	PayloadLength *int            `json:"payload_length,omitempty"`
}

// String returns a human-readable representation of the event
func (e *Event) String() string {
	return fmt.Sprintf("Event{Type:%s, DataLen:%d, PayloadLen:%d}", e.Type, len(e.Data), len(e.Payload))
}

// Reader decodes framed events from a byte stream
type Reader struct {
	br *bufio.Reader
}

// NewReader creates an event reader with the given buffer size
func NewReader(r io.Reader, bufferSize int) *Reader {
	if bufferSize < 1024 {
		bufferSize = 1024
	}
	return &Reader{br: bufio.NewReaderSize(r, bufferSize)}
}

// ReadEvent reads the next complete event from the stream. It returns io.EOF
// when the peer closes the connection between events.
func (r *Reader) ReadEvent() (*Event, error) {
	line, err := r.readHeaderLine()
	if err != nil {
		return nil, err
	}

	var header eventHeader
	if err := json.Unmarshal(line, &header); err != nil {
		return nil, fmt.Errorf("%w: bad header JSON: %v", ErrMalformedEvent, err)
	}

	if header.Type == "" {
		return nil, fmt.Errorf("%w: header missing type", ErrMalformedEvent)
	}

	event := &Event{Type: header.Type, Data: header.Data}

	if header.DataLength != nil && *header.DataLength > 0 {
		n := *header.DataLength
		if n > MaxDataSize {
			return nil, fmt.Errorf("event data too large: %d bytes (limit %d)", n, MaxDataSize)
		}

		data := make([]byte, n)
		if _, err := io.ReadFull(r.br, data); err != nil {
			return nil, fmt.Errorf("failed to read event data: %w", err)
		}
		event.Data = data
	}

	if header.PayloadLength != nil && *header.PayloadLength > 0 {
		n := *header.PayloadLength
		if n > MaxPayloadSize {
			return nil, fmt.Errorf("event payload too large: %d bytes (limit %d)", n, MaxPayloadSize)
		}

		payload := make([]byte, n)
		if _, err := io.ReadFull(r.br, payload); err != nil {
			return nil, fmt.Errorf("failed to read event payload: %w", err)
		}
		event.Payload = payload
	}

	return event, nil
}

// readHeaderLine reads one newline-terminated header. MaxHeaderSize is
// enforced incrementally so a newline-free stream cannot grow the line
// without bound.
func (r *Reader) readHeaderLine() ([]byte, error) {
	var line []byte

	for {
		chunk, err := r.br.ReadSlice('\n')
		line = append(line, chunk...)

		if len(line) > MaxHeaderSize {
			return nil, fmt.Errorf("event header too large: %d bytes (limit %d)", len(line), MaxHeaderSize)
		}

		switch err {
		case nil:
			return line, nil
		case bufio.ErrBufferFull:
			continue
		case io.EOF:
			if len(line) == 0 {
				return nil, io.EOF
			}
			return nil, fmt.Errorf("failed to read event header: %w", err)
		default:
			return nil, fmt.Errorf("failed to read event header: %w", err)
		}
	}
}

// Writer encodes framed events onto a byte stream
type Writer struct {
	w io.Writer
}

// NewWriter creates an event writer
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// WriteEvent writes one complete event. The data document and payload are
// announced in the header line and written immediately after it.
func (w *Writer) WriteEvent(event *Event) error {
	if event.Type == "" {
		return fmt.Errorf("cannot write event with empty type")
	}

	header := eventHeader{Type: event.Type}

	if len(event.Data) > 0 {
		n := len(event.Data)
		header.DataLength = &n
	}

	if len(event.Payload) > 0 {
		n := len(event.Payload)
		header.PayloadLength = &n
	}

	line, err := json.Marshal(header)
	if err != nil {
		return fmt.Errorf("failed to encode event header: %w", err)
	}
	line = append(line, '\n')

	if _, err := w.w.Write(line); err != nil {
		return fmt.Errorf("failed to write event header: %w", err)
	}

	if len(event.Data) > 0 {
		if _, err := w.w.Write(event.Data); err != nil {
			return fmt.Errorf("failed to write event data: %w", err)
		}
	}

	if len(event.Payload) > 0 {
		if _, err := w.w.Write(event.Payload); err != nil {
			return fmt.Errorf("failed to write event payload: %w", err)
		}
	}

	return nil
}
