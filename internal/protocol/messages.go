package protocol

import (
	"fmt"

	json "github.com/goccy/go-json"
)

// Attribution credits the upstream project behind a program or model
type Attribution struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// ModelInfo describes one installed recognition model
type ModelInfo struct {
	Name        string      `json:"name"`
	Attribution Attribution `json:"attribution"`
	Installed   bool        `json:"installed"`
	Description string      `json:"description"`
	Languages   []string    `json:"languages"`
	Version     string      `json:"version"`
}

// ProgramInfo describes one ASR program and its models
type ProgramInfo struct {
	Name        string      `json:"name"`
	Attribution Attribution `json:"attribution"`
	Installed   bool        `json:"installed"`
	Description string      `json:"description"`
	Models      []ModelInfo `json:"models"`
}

// Info is the service descriptor sent in reply to a describe event
type Info struct {
	ASR []ProgramInfo `json:"asr"`
}

// Event encodes the descriptor as an info event
func (i *Info) Event() (*Event, error) {
	data, err := json.Marshal(i)
	if err != nil {
		return nil, fmt.Errorf("failed to encode info data: %w", err)
	}
	return &Event{Type: EventInfo, Data: data}, nil
}

// Transcribe announces an upcoming utterance. The requested model name and
// language are informational only; the session configuration always wins.
type Transcribe struct {
	Name     string `json:"name,omitempty"`
	Language string `json:"language,omitempty"`
}

// ParseTranscribe decodes a transcribe event
func ParseTranscribe(event *Event) (*Transcribe, error) {
	if event.Type != EventTranscribe {
		return nil, fmt.Errorf("expected %s event, got %s", EventTranscribe, event.Type)
	}

	t := &Transcribe{}
	if len(event.Data) > 0 {
		if err := json.Unmarshal(event.Data, t); err != nil {
			return nil, fmt.Errorf("malformed transcribe data: %w", err)
		}
	}

	return t, nil
}

// AudioStart opens an utterance and declares the PCM stream format
type AudioStart struct {
	Rate      int   `json:"rate"`
	Width     int   `json:"width"`
	Channels  int   `json:"channels"`
	Timestamp int64 `json:"timestamp,omitempty"`
}

// ParseAudioStart decodes an audio-start event
func ParseAudioStart(event *Event) (*AudioStart, error) {
	if event.Type != EventAudioStart {
		return nil, fmt.Errorf("expected %s event, got %s", EventAudioStart, event.Type)
	}

	if len(event.Data) == 0 {
		return nil, fmt.Errorf("audio-start event missing data")
	}

	a := &AudioStart{}
	if err := json.Unmarshal(event.Data, a); err != nil {
		return nil, fmt.Errorf("malformed audio-start data: %w", err)
	}

	return a, nil
}

// AudioChunk carries one slice of raw PCM samples in the event payload
type AudioChunk struct {
	Rate     int    `json:"rate"`
	Width    int    `json:"width"`
	Channels int    `json:"channels"`
	Audio    []byte `json:"-"`
}

// ParseAudioChunk decodes an audio-chunk event
func ParseAudioChunk(event *Event) (*AudioChunk, error) {
	if event.Type != EventAudioChunk {
		return nil, fmt.Errorf("expected %s event, got %s", EventAudioChunk, event.Type)
	}

	c := &AudioChunk{}
	if len(event.Data) > 0 {
		if err := json.Unmarshal(event.Data, c); err != nil {
			return nil, fmt.Errorf("malformed audio-chunk data: %w", err)
		}
	}
	c.Audio = event.Payload

	return c, nil
}

// Event encodes the chunk for sending
func (c *AudioChunk) Event() (*Event, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("failed to encode audio-chunk data: %w", err)
	}
	return &Event{Type: EventAudioChunk, Data: data, Payload: c.Audio}, nil
}

// Transcript is the recognized text for one utterance
type Transcript struct {
	Text     string `json:"text"`
	Language string `json:"language,omitempty"`
}

// Event encodes the transcript as a reply event
func (t *Transcript) Event() (*Event, error) {
	data, err := json.Marshal(t)
	if err != nil {
		return nil, fmt.Errorf("failed to encode transcript data: %w", err)
	}
	return &Event{Type: EventTranscript, Data: data}, nil
}

// ParseTranscript decodes a transcript event
func ParseTranscript(event *Event) (*Transcript, error) {
	if event.Type != EventTranscript {
		return nil, fmt.Errorf("expected %s event, got %s", EventTranscript, event.Type)
	}

	if len(event.Data) == 0 {
		return nil, fmt.Errorf("transcript event missing data")
	}

	t := &Transcript{}
	if err := json.Unmarshal(event.Data, t); err != nil {
		return nil, fmt.Errorf("malformed transcript data: %w", err)
	}

	return t, nil
}
