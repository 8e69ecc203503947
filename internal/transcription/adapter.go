package transcription

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"github.com/gammazero/workerpool"

	"github.com/skypro1111/wyoming-asr-service/internal/audio"
	"github.com/skypro1111/wyoming-asr-service/internal/config"
)

// Adapter converts buffered raw PCM into recognized text. The engine only
// accepts a file-like audio container, so each call wraps the samples into a
// transient WAV file, dispatches the blocking engine call to a bounded
// worker pool, and removes the file when the call returns or fails.
type Adapter struct {
	engine Engine
	pool   *workerpool.WorkerPool
	logger *slog.Logger
}

// NewAdapter creates an adapter backed by a worker pool of the given size
func NewAdapter(engine Engine, poolSize int, logger *slog.Logger) *Adapter {
	if poolSize < 1 {
		poolSize = 1
	}

	return &Adapter{
		engine: engine,
		pool:   workerpool.New(poolSize),
		logger: logger,
	}
}

// transcribeResult carries the outcome of one pooled engine call
type transcribeResult struct {
	text string
	err  error
}

// Transcribe encodes the PCM samples and runs them through the recognition
// engine. It blocks the calling goroutine until the pooled call completes,
// preserving the one-reply-per-utterance ordering for its session while
// other sessions keep running.
func (a *Adapter) Transcribe(ctx context.Context, pcm []byte, format audio.Format, model, language string, options map[string]config.OptionValue) (string, error) {
	if len(pcm) == 0 {
		return "", fmt.Errorf("cannot transcribe empty audio")
	}

	wavData, err := audio.EncodeWAV(pcm, format)
	if err != nil {
		return "", fmt.Errorf("failed to encode WAV container: %w", err)
	}

	wavPath, err := writeTempWAV(wavData)
	if err != nil {
		return "", err
	}

	resultChan := make(chan transcribeResult, 1)

	a.pool.Submit(func() {
		defer a.removeTempWAV(wavPath)

		results, err := a.engine.Transcribe(ctx, wavPath, model, language, options)
		if err != nil {
			resultChan <- transcribeResult{err: err}
			return
		}

		resultChan <- transcribeResult{text: firstResult(results)}
	})

	select {
	case result := <-resultChan:
		return result.text, result.err
	case <-ctx.Done():
		// The pooled task still owns the temp file and removes it when
		// the engine call eventually returns.
		return "", ctx.Err()
	}
}

// Stop waits for in-flight engine calls and shuts down the pool
func (a *Adapter) Stop() {
	a.pool.StopWait()
}

// firstResult stringifies the engine output: the first element of the
// result sequence, or an empty string when the sequence is empty.
func firstResult(results []string) string {
	if len(results) == 0 {
		return ""
	}
	return results[0]
}

// writeTempWAV writes the container to a fresh temporary file
func writeTempWAV(wavData []byte) (string, error) {
	tmp, err := os.CreateTemp("", "utterance-*.wav")
	if err != nil {
		return "", fmt.Errorf("failed to create temp audio file: %w", err)
	}

	if _, err := tmp.Write(wavData); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("failed to write temp audio file: %w", err)
	}

	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("failed to close temp audio file: %w", err)
	}

	return tmp.Name(), nil
}

// removeTempWAV deletes the transient container, tolerating a file that is
// already gone.
func (a *Adapter) removeTempWAV(path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		a.logger.Warn("Failed to remove temp audio file",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
	}
}

// Warmup runs a short synthetic utterance through the engine so the first
// real request does not pay model initialization costs.
func (a *Adapter) Warmup(ctx context.Context, model, language string, options map[string]config.OptionValue) error {
	format := audio.Canonical
	silence := make([]byte, format.BytesPerSecond()/2) // 0.5s of silence

	start := time.Now()
	if _, err := a.Transcribe(ctx, silence, format, model, language, options); err != nil {
		return fmt.Errorf("warmup transcription failed: %w", err)
	}

	a.logger.Info("Engine warmup completed",
		slog.String("model", model),
		slog.Duration("duration", time.Since(start)),
	)

	return nil
}
