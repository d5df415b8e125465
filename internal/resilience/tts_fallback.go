package resilience

import (
	"context"

	"github.com/kiwivoice/kiwi/pkg/provider/tts"
)

// TTSFallback implements [tts.Engine] with automatic failover across multiple
// synthesis backends. Each backend has its own circuit breaker. Because Speak
// covers playback, a failure after audio has started may replay the beginning
// of the utterance on the fallback; that beats silence.
type TTSFallback struct {
	group *FallbackGroup[tts.Engine]
}

var _ tts.Engine = (*TTSFallback)(nil)

// NewTTSFallback creates a [TTSFallback] with primary as the preferred
// backend.
func NewTTSFallback(primary tts.Engine, primaryName string, cfg FallbackConfig) *TTSFallback {
	return &TTSFallback{
		group: NewFallbackGroup(primary, primaryName, cfg),
	}
}

// AddFallback registers an additional synthesis engine as a fallback.
func (f *TTSFallback) AddFallback(name string, engine tts.Engine) {
	f.group.AddFallback(name, engine)
}

// Speak synthesises and plays text with the first healthy backend.
func (f *TTSFallback) Speak(ctx context.Context, text string) error {
	return f.group.Execute(func(e tts.Engine) error {
		return e.Speak(ctx, text)
	})
}

// States reports each backend's breaker state, keyed by backend name.
func (f *TTSFallback) States() map[string]State { return f.group.States() }
