// Package vad defines the Engine interface for voice activity detection backends.
//
// A VAD engine wraps a frame-level speech detector and surfaces it as a
// stateful, per-stream session. Each session maintains its own internal
// state (energy history, hangover counters) so that multiple concurrent
// audio streams can be processed independently.
//
// VAD is synchronous: ProcessFrame returns immediately with a detection
// result, so it can sit on the low-latency path that gates ASR input.
//
// Implementations must be safe for concurrent use across different sessions.
// A single Session should not be shared across goroutines unless the
// implementation documents otherwise.
package vad

// EventType enumerates detection states.
type EventType int

const (
	// Silence: no speech in this frame.
	Silence EventType = iota

	// SpeechStart: speech has just begun.
	SpeechStart

	// SpeechContinue: ongoing speech.
	SpeechContinue

	// SpeechEnd: speech has just ended.
	SpeechEnd
)

// String returns the human-readable name of the event type.
func (t EventType) String() string {
	switch t {
	case Silence:
		return "silence"
	case SpeechStart:
		return "speech_start"
	case SpeechContinue:
		return "speech_continue"
	case SpeechEnd:
		return "speech_end"
	default:
		return "unknown"
	}
}

// Event is the detection result for a single audio frame.
type Event struct {
	Type EventType

	// Probability is the speech probability score (0.0–1.0).
	Probability float64
}

// Config holds the parameters for a VAD session.
type Config struct {
	// SampleRate is the audio sample rate in Hz. Must match the PCM frames
	// passed to ProcessFrame.
	SampleRate int

	// FrameSizeMs is the duration of each audio frame in milliseconds.
	// ProcessFrame returns an error if the supplied frame does not match.
	FrameSizeMs int

	// SpeechThreshold is the probability above which a frame counts as
	// speech. Typical: 0.5.
	SpeechThreshold float64

	// SilenceHangoverMs is how much trailing silence ends an active speech
	// segment. Typical: 500.
	SilenceHangoverMs int
}

// Session is an active VAD session for a single audio stream.
type Session interface {
	// ProcessFrame analyses one frame of 16-bit little-endian mono PCM and
	// returns the detection result. Must not block.
	ProcessFrame(frame []byte) (Event, error)

	// Reset clears accumulated detection state without closing the session.
	Reset()

	// Close releases session resources. Calling Close more than once is safe.
	Close() error
}

// Engine is the factory for VAD sessions.
type Engine interface {
	// NewSession creates a session with the given configuration. Returns an
	// error if the configuration is invalid.
	NewSession(cfg Config) (Session, error)
}
