package resilience

import (
	"context"

	"github.com/kiwivoice/kiwi/pkg/provider/asr"
)

// ASRFallback implements [asr.Engine] with automatic failover across multiple
// recognition backends. Each backend has its own circuit breaker.
type ASRFallback struct {
	group *FallbackGroup[asr.Engine]
}

var _ asr.Engine = (*ASRFallback)(nil)

// NewASRFallback creates an [ASRFallback] with primary as the preferred
// backend.
func NewASRFallback(primary asr.Engine, primaryName string, cfg FallbackConfig) *ASRFallback {
	return &ASRFallback{
		group: NewFallbackGroup(primary, primaryName, cfg),
	}
}

// AddFallback registers an additional recognition engine as a fallback.
func (f *ASRFallback) AddFallback(name string, engine asr.Engine) {
	f.group.AddFallback(name, engine)
}

// Recognize transcribes the utterance with the first healthy backend. If the
// primary fails, subsequent fallbacks are tried with the same audio.
func (f *ASRFallback) Recognize(ctx context.Context, pcm []byte, sampleRate int) (asr.Result, error) {
	return ExecuteWithResult(f.group, func(e asr.Engine) (asr.Result, error) {
		return e.Recognize(ctx, pcm, sampleRate)
	})
}

// States reports each backend's breaker state, keyed by backend name.
func (f *ASRFallback) States() map[string]State { return f.group.States() }
