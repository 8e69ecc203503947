// Package session implements the per-connection event handler: the state
// machine that tracks protocol lifecycle events, accumulates utterance
// audio, enforces duration limits, and drives transcription replies.
package session
