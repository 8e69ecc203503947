package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/skypro1111/wyoming-asr-service/internal/audio"
	"github.com/skypro1111/wyoming-asr-service/internal/config"
	"github.com/skypro1111/wyoming-asr-service/internal/metrics"
	"github.com/skypro1111/wyoming-asr-service/internal/protocol"
)

// Service descriptor constants reported on capability queries
const (
	programName        = "moonshine-onnx"
	programDescription = "Moonshine ONNX speech recognition"
	attributionName    = "Moonshine AI"
	attributionURL     = "https://github.com/moonshine-ai/moonshine"
)

// Transcriber converts one utterance of raw PCM into recognized text
type Transcriber interface {
	Transcribe(ctx context.Context, pcm []byte, format audio.Format, model, language string, options map[string]config.OptionValue) (string, error)
}

// Config contains the fixed per-session settings supplied at construction
type Config struct {
	Model      string
	Language   string
	MaxSeconds float64 // 0 means unlimited
	Options    map[string]config.OptionValue
}

// Handler owns one connection's session state. Events are delivered to it
// strictly in arrival order by a single goroutine; only the stats block is
// touched from outside (monitoring API) and carries its own lock.
type Handler struct {
	id          string
	cfg         Config
	logger      *slog.Logger
	transcriber Transcriber
	metrics     *metrics.Metrics

	utterance *audio.Utterance

	stats   Stats
	statsMu sync.RWMutex
}

// Stats is a snapshot of session activity for monitoring
type Stats struct {
	SessionID           string    `json:"session_id"`
	Model               string    `json:"model"`
	Language            string    `json:"language"`
	State               string    `json:"state"`
	StartTime           time.Time `json:"start_time"`
	LastActivity        time.Time `json:"last_activity"`
	EventsHandled       uint64    `json:"events_handled"`
	UtterancesStarted   uint64    `json:"utterances_started"`
	TranscriptsSent     uint64    `json:"transcripts_sent"`
	UtterancesOverLimit uint64    `json:"utterances_over_limit"`
	EngineFailures      uint64    `json:"engine_failures"`
}

// NewHandler creates the session state for one connection. The metrics
// argument may be nil (tests construct handlers without a registry).
func NewHandler(cfg Config, transcriber Transcriber, logger *slog.Logger, m *metrics.Metrics) *Handler {
	id := uuid.NewString()
	now := time.Now()

	return &Handler{
		id:          id,
		cfg:         cfg,
		logger:      logger.With(slog.String("session_id", id)),
		transcriber: transcriber,
		metrics:     m,
		utterance:   audio.NewUtterance(cfg.MaxSeconds),
		stats: Stats{
			SessionID:    id,
			Model:        cfg.Model,
			Language:     cfg.Language,
			State:        audio.StateIdle.String(),
			StartTime:    now,
			LastActivity: now,
		},
	}
}

// ID returns the session identifier
func (h *Handler) ID() string {
	return h.id
}

// HandleEvent consumes one protocol event and returns at most one reply
// event. It never terminates the connection: unknown events are ignored and
// engine failures degrade to an empty transcript.
func (h *Handler) HandleEvent(ctx context.Context, event *protocol.Event) (*protocol.Event, error) {
	h.touch(event.Type)

	if h.metrics != nil {
		h.metrics.RecordEventReceived(event.Type)
	}

	switch event.Type {
	case protocol.EventDescribe:
		return h.handleDescribe()

	case protocol.EventTranscribe:
		h.handleTranscribe(event)
		return nil, nil

	case protocol.EventAudioStart:
		h.handleAudioStart(event)
		return nil, nil

	case protocol.EventAudioChunk:
		h.handleAudioChunk(event)
		return nil, nil

	case protocol.EventAudioStop:
		return h.handleAudioStop(ctx)

	default:
		h.logger.Debug("Ignoring unsupported event type", slog.String("type", event.Type))
		return nil, nil
	}
}

// handleDescribe builds the service descriptor reply. The descriptor is
// derived only from immutable session configuration, so it is identical at
// any point of the utterance lifecycle.
func (h *Handler) handleDescribe() (*protocol.Event, error) {
	attribution := protocol.Attribution{Name: attributionName, URL: attributionURL}

	info := protocol.Info{
		ASR: []protocol.ProgramInfo{
			{
				Name:        programName,
				Attribution: attribution,
				Installed:   true,
				Description: programDescription,
				Models: []protocol.ModelInfo{
					{
						Name:        h.cfg.Model,
						Attribution: attribution,
						Installed:   true,
						Description: h.cfg.Model,
						Languages:   []string{h.cfg.Language},
						Version:     h.cfg.Model,
					},
				},
			},
		},
	}

	reply, err := info.Event()
	if err != nil {
		return nil, err
	}

	h.logger.Debug("Sending service descriptor", slog.String("model", h.cfg.Model))
	return reply, nil
}

// handleTranscribe resets the utterance state. Requested model/language are
// not honored; the session's fixed configuration always wins.
func (h *Handler) handleTranscribe(event *protocol.Event) {
	request, err := protocol.ParseTranscribe(event)
	if err != nil {
		h.logger.Debug("Ignoring malformed transcribe data", slog.String("error", err.Error()))
	} else if request.Name != "" || request.Language != "" {
		h.logger.Debug("Transcribe request fields ignored, session configuration wins",
			slog.String("requested_name", request.Name),
			slog.String("requested_language", request.Language),
		)
	}

	h.utterance.Reset()
	h.setState(h.utterance.State())
}

// handleAudioStart records the stream format and opens a fresh utterance
func (h *Handler) handleAudioStart(event *protocol.Event) {
	start, err := protocol.ParseAudioStart(event)
	if err != nil {
		h.logger.Warn("Ignoring malformed audio-start event", slog.String("error", err.Error()))
		return
	}

	format := audio.Format{Rate: start.Rate, Width: start.Width, Channels: start.Channels}
	if !format.IsCanonical() {
		h.logger.Warn("Unexpected audio format",
			slog.Int("rate", format.Rate),
			slog.Int("width", format.Width),
			slog.Int("channels", format.Channels),
			slog.String("expected", audio.Canonical.String()),
		)
	}

	h.utterance.Start(format)
	h.setState(h.utterance.State())

	h.statsMu.Lock()
	h.stats.UtterancesStarted++
	h.statsMu.Unlock()

	if h.metrics != nil {
		h.metrics.RecordUtteranceStarted()
	}
}

// handleAudioChunk appends samples to the open utterance
func (h *Handler) handleAudioChunk(event *protocol.Event) {
	chunk, err := protocol.ParseAudioChunk(event)
	if err != nil {
		h.logger.Debug("Ignoring malformed audio-chunk event", slog.String("error", err.Error()))
		return
	}

	if h.utterance.State() == audio.StateIdle {
		h.logger.Debug("Audio chunk before audio-start, ignoring",
			slog.Int("chunk_bytes", len(chunk.Audio)),
		)
		return
	}

	before := h.utterance.State()
	h.utterance.Append(chunk.Audio)

	if before == audio.StateBuffering && h.utterance.State() == audio.StateOverLimit {
		h.logger.Warn("Utterance exceeded duration limit, discarding further audio",
			slog.Float64("max_seconds", h.cfg.MaxSeconds),
			slog.Float64("buffered_seconds", h.utterance.Duration()),
		)

		h.setState(audio.StateOverLimit)

		h.statsMu.Lock()
		h.stats.UtterancesOverLimit++
		h.statsMu.Unlock()

		if h.metrics != nil {
			h.metrics.RecordUtteranceOverLimit()
		}
	}
}

// handleAudioStop closes the utterance and replies with exactly one
// transcript. Empty buffers and over-limit utterances yield empty text.
func (h *Handler) handleAudioStop(ctx context.Context) (*protocol.Event, error) {
	text := ""

	if h.utterance.State() == audio.StateBuffering && h.utterance.Len() > 0 {
		text = h.runTranscription(ctx)
	} else if h.utterance.State() == audio.StateOverLimit {
		h.logger.Debug("Audio stop on over-long utterance, sending empty transcript")
	} else {
		h.logger.Debug("Audio stop with empty buffer, sending empty transcript")
	}

	transcript := protocol.Transcript{Text: text, Language: h.cfg.Language}
	reply, err := transcript.Event()
	if err != nil {
		return nil, err
	}

	// Idle stops never opened an utterance, so there is nothing to complete
	if h.metrics != nil && h.utterance.State() != audio.StateIdle {
		h.metrics.RecordUtteranceCompleted(h.utterance.Len(), h.utterance.Duration())
	}

	h.statsMu.Lock()
	h.stats.TranscriptsSent++
	h.statsMu.Unlock()

	h.utterance.Reset()
	h.setState(audio.StateIdle)

	return reply, nil
}

// runTranscription drives the blocking adapter call for the buffered
// utterance. Engine failures are absorbed here: the session logs the error
// and degrades to an empty transcript, the same observable outcome as an
// over-long utterance, and the connection stays open.
func (h *Handler) runTranscription(ctx context.Context) string {
	format, _ := h.utterance.Format()

	h.logger.Debug("Running transcription",
		slog.Int("buffered_bytes", h.utterance.Len()),
		slog.Float64("buffered_seconds", h.utterance.Duration()),
		slog.String("model", h.cfg.Model),
	)

	if h.metrics != nil {
		h.metrics.RecordTranscriptionRequest()
	}

	start := time.Now()
	text, err := h.transcriber.Transcribe(ctx, h.utterance.Bytes(), format, h.cfg.Model, h.cfg.Language, h.cfg.Options)
	elapsed := time.Since(start)

	if err != nil {
		h.logger.Error("Transcription failed, sending empty transcript",
			slog.String("error", err.Error()),
			slog.Duration("duration", elapsed),
		)

		h.statsMu.Lock()
		h.stats.EngineFailures++
		h.statsMu.Unlock()

		if h.metrics != nil {
			h.metrics.RecordTranscriptionFailure(elapsed.Seconds())
		}

		return ""
	}

	if h.metrics != nil {
		h.metrics.RecordTranscriptionSuccess(elapsed.Seconds())
	}

	h.logger.Info("Transcript ready",
		slog.String("text", text),
		slog.Duration("duration", elapsed),
	)

	return text
}

// GetStats returns a snapshot of session activity
func (h *Handler) GetStats() Stats {
	h.statsMu.RLock()
	defer h.statsMu.RUnlock()
	return h.stats
}

// touch records event activity in the stats block
func (h *Handler) touch(eventType string) {
	h.statsMu.Lock()
	h.stats.EventsHandled++
	h.stats.LastActivity = time.Now()
	h.statsMu.Unlock()

	h.logger.Debug("Handling event", slog.String("type", eventType))
}

// setState mirrors the utterance state into the stats block
func (h *Handler) setState(state audio.State) {
	h.statsMu.Lock()
	h.stats.State = state.String()
	h.statsMu.Unlock()
}
