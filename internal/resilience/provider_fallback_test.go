package resilience

import (
	"context"
	"errors"
	"testing"

	asrmock "github.com/kiwivoice/kiwi/pkg/provider/asr/mock"
	embmock "github.com/kiwivoice/kiwi/pkg/provider/embeddings/mock"
	"github.com/kiwivoice/kiwi/pkg/provider/llm"
	llmmock "github.com/kiwivoice/kiwi/pkg/provider/llm/mock"
	ttsmock "github.com/kiwivoice/kiwi/pkg/provider/tts/mock"
	"github.com/kiwivoice/kiwi/pkg/types"
)

func tightBreaker() FallbackConfig {
	return FallbackConfig{CircuitBreaker: CircuitBreakerConfig{MaxFailures: 2}}
}

func TestLLMFallbackFailsOverToSecondary(t *testing.T) {
	t.Parallel()
	primary := llmmock.New("from primary")
	primary.Err = errBackendDown
	secondary := llmmock.New("from secondary")

	f := NewLLMFallback(primary, "primary", tightBreaker())
	f.AddFallback("secondary", secondary)

	req := llm.CompletionRequest{Messages: []types.Message{{Role: "user", Content: "hi"}}}
	resp, err := f.Complete(context.Background(), req)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Content != "from secondary" {
		t.Errorf("content = %q", resp.Content)
	}
}

func TestLLMFallbackSkipsOpenPrimary(t *testing.T) {
	t.Parallel()
	primary := llmmock.New("from primary")
	primary.Err = errBackendDown
	secondary := llmmock.New("from secondary")

	f := NewLLMFallback(primary, "primary", tightBreaker())
	f.AddFallback("secondary", secondary)

	req := llm.CompletionRequest{Messages: []types.Message{{Role: "user", Content: "hi"}}}
	// Two failures trip the primary's breaker.
	for range 3 {
		if _, err := f.Complete(context.Background(), req); err != nil {
			t.Fatalf("Complete: %v", err)
		}
	}
	if got := len(primary.Requests()); got != 2 {
		t.Errorf("primary called %d times after breaker opened, want 2", got)
	}
	if got := len(secondary.Requests()); got != 3 {
		t.Errorf("secondary served %d requests, want 3", got)
	}
}

func TestLLMFallbackAllFailed(t *testing.T) {
	t.Parallel()
	primary := llmmock.New("")
	primary.Err = errBackendDown

	f := NewLLMFallback(primary, "primary", tightBreaker())
	_, err := f.Complete(context.Background(), llm.CompletionRequest{
		Messages: []types.Message{{Role: "user", Content: "hi"}},
	})
	if !errors.Is(err, ErrAllFailed) {
		t.Errorf("err = %v, want ErrAllFailed", err)
	}
}

func TestASRFallback(t *testing.T) {
	t.Parallel()
	primary := asrmock.New("wrong")
	primary.Err = errBackendDown
	secondary := asrmock.New("turn on the ac")

	f := NewASRFallback(primary, "primary", tightBreaker())
	f.AddFallback("secondary", secondary)

	result, err := f.Recognize(context.Background(), make([]byte, 640), 16000)
	if err != nil {
		t.Fatalf("Recognize: %v", err)
	}
	if result.Text != "turn on the ac" {
		t.Errorf("text = %q", result.Text)
	}
}

func TestTTSFallback(t *testing.T) {
	t.Parallel()
	primary := ttsmock.New()
	primary.Err = errBackendDown
	secondary := ttsmock.New()

	f := NewTTSFallback(primary, "primary", tightBreaker())
	f.AddFallback("secondary", secondary)

	if err := f.Speak(context.Background(), "AC is on."); err != nil {
		t.Fatalf("Speak: %v", err)
	}
	if spoken := secondary.Spoken(); len(spoken) != 1 || spoken[0] != "AC is on." {
		t.Errorf("secondary spoke %v", spoken)
	}
}

func TestEmbeddingsFallback(t *testing.T) {
	t.Parallel()
	primary := embmock.New(8)
	primary.Err = errBackendDown
	secondary := embmock.New(8)

	f := NewEmbeddingsFallback(primary, "primary", tightBreaker())
	f.AddFallback("secondary", secondary)

	vec, err := f.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(vec) != 8 {
		t.Errorf("vector length = %d", len(vec))
	}
	if f.Dimensions() != 8 {
		t.Errorf("dimensions = %d", f.Dimensions())
	}
}
