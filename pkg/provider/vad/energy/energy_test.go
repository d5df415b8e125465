package energy

import (
	"testing"

	"github.com/kiwivoice/kiwi/pkg/provider/vad"
)

// ─────────────────────────────────────────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────────────────────────────────────────

const (
	sampleRate  = 16000
	frameSizeMs = 20
	frameBytes  = sampleRate * frameSizeMs / 1000 * 2
)

func newSession(t *testing.T) vad.Session {
	t.Helper()
	s, err := New().NewSession(vad.Config{
		SampleRate:        sampleRate,
		FrameSizeMs:       frameSizeMs,
		SpeechThreshold:   0.5,
		SilenceHangoverMs: 60, // 3 frames
	})
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// loudFrame is a square wave near full scale.
func loudFrame() []byte {
	f := make([]byte, frameBytes)
	for i := 0; i < len(f); i += 4 {
		f[i], f[i+1] = 0xFF, 0x5F // ~24575
		f[i+2], f[i+3] = 0x01, 0xA0
	}
	return f
}

func silentFrame() []byte { return make([]byte, frameBytes) }

func process(t *testing.T, s vad.Session, frame []byte) vad.Event {
	t.Helper()
	ev, err := s.ProcessFrame(frame)
	if err != nil {
		t.Fatalf("process frame: %v", err)
	}
	return ev
}

// ─────────────────────────────────────────────────────────────────────────────
// Tests
// ─────────────────────────────────────────────────────────────────────────────

func TestSpeechStartContinueEnd(t *testing.T) {
	t.Parallel()
	s := newSession(t)

	if ev := process(t, s, silentFrame()); ev.Type != vad.Silence {
		t.Fatalf("silent frame = %v, want silence", ev.Type)
	}
	if ev := process(t, s, loudFrame()); ev.Type != vad.SpeechStart {
		t.Fatalf("first loud frame = %v, want speech_start", ev.Type)
	}
	if ev := process(t, s, loudFrame()); ev.Type != vad.SpeechContinue {
		t.Fatalf("second loud frame = %v, want speech_continue", ev.Type)
	}

	// Hangover: the first two silent frames keep the segment alive.
	for i := 0; i < 2; i++ {
		if ev := process(t, s, silentFrame()); ev.Type != vad.SpeechContinue {
			t.Fatalf("hangover frame %d = %v, want speech_continue", i, ev.Type)
		}
	}
	if ev := process(t, s, silentFrame()); ev.Type != vad.SpeechEnd {
		t.Fatalf("third silent frame = %v, want speech_end", ev.Type)
	}
}

func TestShortPauseDoesNotSplitSegment(t *testing.T) {
	t.Parallel()
	s := newSession(t)

	process(t, s, loudFrame()) // start
	process(t, s, silentFrame())
	process(t, s, silentFrame()) // pause shorter than hangover

	if ev := process(t, s, loudFrame()); ev.Type != vad.SpeechContinue {
		t.Errorf("speech after short pause = %v, want speech_continue (no new start)", ev.Type)
	}
}

func TestResetClearsSegmentState(t *testing.T) {
	t.Parallel()
	s := newSession(t)

	process(t, s, loudFrame())
	s.Reset()

	if ev := process(t, s, loudFrame()); ev.Type != vad.SpeechStart {
		t.Errorf("loud frame after reset = %v, want a fresh speech_start", ev.Type)
	}
}

func TestWrongFrameSizeRejected(t *testing.T) {
	t.Parallel()
	s := newSession(t)

	if _, err := s.ProcessFrame(make([]byte, frameBytes/2)); err == nil {
		t.Fatal("expected error for wrong frame size")
	}
}

func TestInvalidConfigRejected(t *testing.T) {
	t.Parallel()
	e := New()

	cases := []vad.Config{
		{SampleRate: 0, FrameSizeMs: 20, SpeechThreshold: 0.5},
		{SampleRate: 16000, FrameSizeMs: 0, SpeechThreshold: 0.5},
		{SampleRate: 16000, FrameSizeMs: 20, SpeechThreshold: 1.5},
	}
	for i, cfg := range cases {
		if _, err := e.NewSession(cfg); err == nil {
			t.Errorf("case %d: expected config error", i)
		}
	}
}
