package resilience

import (
	"errors"
	"testing"
	"time"
)

func newStringGroup(maxFailures int, reset time.Duration) *FallbackGroup[string] {
	fg := NewFallbackGroup("openai", "openai", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: maxFailures, ResetTimeout: reset},
	})
	fg.AddFallback("ollama", "ollama")
	return fg
}

func TestFallbackGroupPrefersPrimary(t *testing.T) {
	t.Parallel()
	fg := newStringGroup(3, 0)

	var called string
	err := fg.Execute(func(v string) error {
		called = v
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if called != "openai" {
		t.Fatalf("called = %q, want the primary", called)
	}
}

func TestFallbackGroupFailsOver(t *testing.T) {
	t.Parallel()
	fg := newStringGroup(3, 0)

	var called string
	err := fg.Execute(func(v string) error {
		if v == "openai" {
			return errBackendDown
		}
		called = v
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if called != "ollama" {
		t.Fatalf("called = %q, want the fallback", called)
	}
}

func TestFallbackGroupAllFail(t *testing.T) {
	t.Parallel()
	fg := newStringGroup(3, 0)

	err := fg.Execute(func(string) error { return errBackendDown })
	if !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
}

func TestFallbackGroupSkipsOpenBreaker(t *testing.T) {
	t.Parallel()
	fg := newStringGroup(2, time.Hour)

	// Fail the primary enough to open its breaker.
	for i := 0; i < 2; i++ {
		_ = fg.Execute(func(v string) error {
			if v == "openai" {
				return errBackendDown
			}
			return nil
		})
	}

	var called string
	err := fg.Execute(func(v string) error {
		called = v
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if called != "ollama" {
		t.Fatalf("called = %q, want the fallback while the primary circuit is open", called)
	}
}

func TestFallbackGroupStates(t *testing.T) {
	t.Parallel()
	fg := newStringGroup(2, time.Hour)

	states := fg.States()
	if states["openai"] != StateClosed || states["ollama"] != StateClosed {
		t.Fatalf("fresh group states = %v, want all closed", states)
	}

	for i := 0; i < 2; i++ {
		_ = fg.Execute(func(v string) error {
			if v == "openai" {
				return errBackendDown
			}
			return nil
		})
	}

	states = fg.States()
	if states["openai"] != StateOpen {
		t.Errorf("primary state = %v, want open", states["openai"])
	}
	if states["ollama"] != StateClosed {
		t.Errorf("fallback state = %v, want closed", states["ollama"])
	}
}

func TestExecuteWithResultFailover(t *testing.T) {
	t.Parallel()
	fg := newStringGroup(3, 0)

	got, err := ExecuteWithResult(fg, func(v string) (string, error) {
		if v == "openai" {
			return "", errBackendDown
		}
		return "answer from " + v, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "answer from ollama" {
		t.Fatalf("result = %q", got)
	}
}

func TestExecuteWithResultAllFail(t *testing.T) {
	t.Parallel()
	fg := newStringGroup(3, 0)

	_, err := ExecuteWithResult(fg, func(string) (int, error) {
		return 0, errBackendDown
	})
	if !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
}
