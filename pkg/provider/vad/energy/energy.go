// Package energy implements vad.Engine with a root-mean-square energy
// detector.
//
// A frame is classified as speech when its RMS energy (normalised against
// 16-bit full scale) maps to a probability above the configured threshold.
// Segment boundaries are smoothed with a silence hangover: speech only ends
// after the configured run of consecutive silent frames, so short pauses
// inside an utterance do not split it.
package energy

import (
	"fmt"
	"math"
	"sync"

	"github.com/kiwivoice/kiwi/pkg/provider/vad"
)

// rmsFullScale is the maximum RMS for 16-bit PCM; used to normalise energy
// into a [0,1] probability.
const rmsFullScale = 32767.0

// probabilityGain steepens the RMS→probability mapping so normal speech
// levels land well above typical thresholds.
const probabilityGain = 12.0

// Engine creates energy-based VAD sessions.
type Engine struct{}

var _ vad.Engine = (*Engine)(nil)

// New creates the engine.
func New() *Engine { return &Engine{} }

// NewSession implements vad.Engine.
func (e *Engine) NewSession(cfg vad.Config) (vad.Session, error) {
	if cfg.SampleRate <= 0 {
		return nil, fmt.Errorf("energy vad: invalid sample rate %d", cfg.SampleRate)
	}
	if cfg.FrameSizeMs <= 0 {
		return nil, fmt.Errorf("energy vad: invalid frame size %d ms", cfg.FrameSizeMs)
	}
	if cfg.SpeechThreshold <= 0 || cfg.SpeechThreshold >= 1 {
		return nil, fmt.Errorf("energy vad: speech threshold %.2f out of (0,1)", cfg.SpeechThreshold)
	}
	if cfg.SilenceHangoverMs <= 0 {
		cfg.SilenceHangoverMs = 500
	}

	// 16-bit mono: 2 bytes per sample.
	frameBytes := cfg.SampleRate * cfg.FrameSizeMs / 1000 * 2
	hangoverFrames := cfg.SilenceHangoverMs / cfg.FrameSizeMs
	if hangoverFrames < 1 {
		hangoverFrames = 1
	}

	return &session{
		cfg:            cfg,
		frameBytes:     frameBytes,
		hangoverFrames: hangoverFrames,
	}, nil
}

type session struct {
	cfg            vad.Config
	frameBytes     int
	hangoverFrames int

	mu           sync.Mutex
	closed       bool
	inSpeech     bool
	silentFrames int
}

// ProcessFrame implements vad.Session.
func (s *session) ProcessFrame(frame []byte) (vad.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return vad.Event{}, fmt.Errorf("energy vad: session is closed")
	}
	if len(frame) != s.frameBytes {
		return vad.Event{}, fmt.Errorf("energy vad: frame is %d bytes, want %d", len(frame), s.frameBytes)
	}

	prob := speechProbability(frame)
	speech := prob >= s.cfg.SpeechThreshold

	switch {
	case speech && !s.inSpeech:
		s.inSpeech = true
		s.silentFrames = 0
		return vad.Event{Type: vad.SpeechStart, Probability: prob}, nil

	case speech && s.inSpeech:
		s.silentFrames = 0
		return vad.Event{Type: vad.SpeechContinue, Probability: prob}, nil

	case !speech && s.inSpeech:
		s.silentFrames++
		if s.silentFrames >= s.hangoverFrames {
			s.inSpeech = false
			s.silentFrames = 0
			return vad.Event{Type: vad.SpeechEnd, Probability: prob}, nil
		}
		// Inside the hangover window the segment is still live.
		return vad.Event{Type: vad.SpeechContinue, Probability: prob}, nil

	default:
		return vad.Event{Type: vad.Silence, Probability: prob}, nil
	}
}

// Reset implements vad.Session.
func (s *session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inSpeech = false
	s.silentFrames = 0
}

// Close implements vad.Session.
func (s *session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// speechProbability maps the frame's RMS energy onto [0,1).
func speechProbability(frame []byte) float64 {
	var sum float64
	n := len(frame) / 2
	if n == 0 {
		return 0
	}
	for i := 0; i < len(frame); i += 2 {
		sample := float64(int16(uint16(frame[i]) | uint16(frame[i+1])<<8))
		sum += sample * sample
	}
	rms := math.Sqrt(sum / float64(n))
	p := rms / rmsFullScale * probabilityGain
	if p > 0.999 {
		p = 0.999
	}
	return p
}
