package audio

import "fmt"

// Format describes a raw PCM stream
type Format struct {
	Rate     int // samples per second
	Width    int // bytes per sample
	Channels int
}

// Canonical is the rate/width/channels triple the engine is tuned for.
// Deviations are tolerated, not rejected.
var Canonical = Format{Rate: 16000, Width: 2, Channels: 1}

// BytesPerSecond returns the byte rate of the format. A zero or negative
// product means the reported format cannot be used for duration accounting.
func (f Format) BytesPerSecond() int {
	return f.Rate * f.Width * f.Channels
}

// IsCanonical reports whether the format matches the canonical triple
func (f Format) IsCanonical() bool {
	return f == Canonical
}

// String returns a human-readable representation of the format
func (f Format) String() string {
	return fmt.Sprintf("%dHz/%dB/%dch", f.Rate, f.Width, f.Channels)
}

// State is the explicit utterance state
type State int

const (
	// StateIdle means no utterance is open; chunks are ignored.
	StateIdle State = iota
	// StateBuffering means an utterance is open and samples accumulate.
	StateBuffering
	// StateOverLimit means the duration limit was exceeded; further
	// samples are accepted but discarded.
	StateOverLimit
)

// String returns the state name
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateBuffering:
		return "buffering"
	case StateOverLimit:
		return "over_limit"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// Utterance accumulates raw PCM for one audio-start..audio-stop cycle and
// enforces an optional duration limit. It is exclusively owned by a single
// session goroutine and is not safe for concurrent use.
type Utterance struct {
	data       []byte
	format     Format
	state      State
	maxSeconds float64 // 0 means unlimited
}

// NewUtterance creates an empty utterance buffer with an optional duration
// limit in seconds (0 disables the limit).
func NewUtterance(maxSeconds float64) *Utterance {
	return &Utterance{
		data:       make([]byte, 0, Canonical.BytesPerSecond()),
		state:      StateIdle,
		maxSeconds: maxSeconds,
	}
}

// State returns the current utterance state
func (u *Utterance) State() State {
	return u.state
}

// Format returns the stream format recorded by Start. The second return is
// false while the utterance is idle.
func (u *Utterance) Format() (Format, bool) {
	if u.state == StateIdle {
		return Format{}, false
	}
	return u.format, true
}

// Len returns the number of buffered bytes
func (u *Utterance) Len() int {
	return len(u.data)
}

// Bytes returns the buffered PCM samples
func (u *Utterance) Bytes() []byte {
	return u.data
}

// Duration returns the buffered audio duration in seconds. Formats with a
// non-positive byte rate report zero rather than dividing by it.
func (u *Utterance) Duration() float64 {
	bps := u.format.BytesPerSecond()
	if u.state == StateIdle || bps <= 0 {
		return 0
	}
	return float64(len(u.data)) / float64(bps)
}

// Start opens a fresh utterance with the given stream format, discarding
// any previously buffered audio.
func (u *Utterance) Start(format Format) {
	u.data = u.data[:0]
	u.format = format
	u.state = StateBuffering
}

// Append adds a chunk of raw samples. It returns true if the bytes were
// buffered and false if they were discarded (no open utterance, or the
// duration limit was already exceeded). Crossing the limit keeps the bytes
// already appended; only later chunks are dropped.
func (u *Utterance) Append(chunk []byte) bool {
	switch u.state {
	case StateIdle, StateOverLimit:
		return false
	}

	u.data = append(u.data, chunk...)

	if u.maxSeconds > 0 && u.format.BytesPerSecond() > 0 && u.Duration() > u.maxSeconds {
		u.state = StateOverLimit
	}

	return true
}

// Reset returns the utterance to the idle state and clears the buffer
func (u *Utterance) Reset() {
	u.data = u.data[:0]
	u.format = Format{}
	u.state = StateIdle
}
