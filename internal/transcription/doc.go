// Package transcription converts buffered utterance audio into recognized
// text. It defines the recognition engine boundary, an HTTP client for a
// local inference endpoint with retry logic and rate limiting, and the
// adapter that encodes PCM to a transient WAV file and offloads the blocking
// engine call to a bounded worker pool.
package transcription
