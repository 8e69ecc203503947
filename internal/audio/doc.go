// Package audio handles utterance buffering and format conversion.
// It implements raw PCM accumulation with duration limits and encoding to
// the WAV container format the recognition engine consumes.
package audio
