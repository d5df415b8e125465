package resilience

import (
	"errors"
	"testing"
	"time"
)

var errBackendDown = errors.New("backend down")

func failN(cb *CircuitBreaker, n int) {
	for i := 0; i < n; i++ {
		_ = cb.Execute(func() error { return errBackendDown })
	}
}

func TestCircuitBreakerDefaults(t *testing.T) {
	t.Parallel()
	cb := NewCircuitBreaker(CircuitBreakerConfig{Name: "openai"})
	if cb.maxFailures != 5 {
		t.Errorf("maxFailures = %d, want 5", cb.maxFailures)
	}
	if cb.resetTimeout != 30*time.Second {
		t.Errorf("resetTimeout = %v, want 30s", cb.resetTimeout)
	}
	if cb.halfOpenMax != 3 {
		t.Errorf("halfOpenMax = %d, want 3", cb.halfOpenMax)
	}
	if cb.State() != StateClosed {
		t.Errorf("initial state = %v, want closed", cb.State())
	}
}

func TestCircuitBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	t.Parallel()
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Name: "openai", MaxFailures: 3, ResetTimeout: time.Hour,
	})

	var called bool
	if err := cb.Execute(func() error { called = true; return nil }); err != nil || !called {
		t.Fatalf("closed breaker must forward calls: err=%v called=%v", err, called)
	}

	failN(cb, 3)
	if cb.State() != StateOpen {
		t.Fatalf("state = %v, want open after 3 failures", cb.State())
	}

	err := cb.Execute(func() error { return nil })
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("err = %v, want ErrCircuitOpen", err)
	}
}

func TestCircuitBreakerSuccessResetsCounter(t *testing.T) {
	t.Parallel()
	cb := NewCircuitBreaker(CircuitBreakerConfig{Name: "piper", MaxFailures: 3})

	failN(cb, 2)
	_ = cb.Execute(func() error { return nil })
	if cb.State() != StateClosed {
		t.Fatalf("state = %v, want closed after a success", cb.State())
	}

	// The counter restarted, so two more failures are not enough to open.
	failN(cb, 2)
	if cb.State() != StateClosed {
		t.Fatal("breaker opened before reaching max consecutive failures")
	}
}

func TestCircuitBreakerHalfOpenProbes(t *testing.T) {
	t.Parallel()

	t.Run("reports half-open after the reset timeout", func(t *testing.T) {
		cb := NewCircuitBreaker(CircuitBreakerConfig{
			Name: "whisper", MaxFailures: 2, ResetTimeout: 10 * time.Millisecond, HalfOpenMax: 2,
		})
		failN(cb, 2)
		if cb.State() != StateOpen {
			t.Fatal("expected open")
		}

		time.Sleep(15 * time.Millisecond)
		if cb.State() != StateHalfOpen {
			t.Fatalf("state = %v, want half-open after timeout", cb.State())
		}
	})

	t.Run("closes after enough successful probes", func(t *testing.T) {
		cb := NewCircuitBreaker(CircuitBreakerConfig{
			Name: "whisper", MaxFailures: 2, ResetTimeout: 10 * time.Millisecond, HalfOpenMax: 2,
		})
		failN(cb, 2)
		time.Sleep(15 * time.Millisecond)

		for i := 0; i < 2; i++ {
			if err := cb.Execute(func() error { return nil }); err != nil {
				t.Fatalf("probe %d: %v", i, err)
			}
		}
		if cb.State() != StateClosed {
			t.Fatalf("state = %v, want closed after probes", cb.State())
		}
	})

	t.Run("reopens when a probe fails", func(t *testing.T) {
		cb := NewCircuitBreaker(CircuitBreakerConfig{
			Name: "whisper", MaxFailures: 2, ResetTimeout: 10 * time.Millisecond, HalfOpenMax: 3,
		})
		failN(cb, 2)
		time.Sleep(15 * time.Millisecond)

		if err := cb.Execute(func() error { return errBackendDown }); err == nil {
			t.Fatal("expected error from failing probe")
		}

		// State() would report half-open again once the timeout elapses, so
		// read the raw state.
		cb.mu.Lock()
		s := cb.state
		cb.mu.Unlock()
		if s != StateOpen {
			t.Fatalf("state = %v, want open after half-open failure", s)
		}
	})
}

func TestCircuitBreakerReset(t *testing.T) {
	t.Parallel()
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Name: "openai", MaxFailures: 2, ResetTimeout: time.Hour,
	})

	failN(cb, 2)
	if cb.State() != StateOpen {
		t.Fatal("expected open")
	}

	cb.Reset()
	if cb.State() != StateClosed {
		t.Fatalf("state = %v, want closed after reset", cb.State())
	}
	if err := cb.Execute(func() error { return nil }); err != nil {
		t.Fatalf("unexpected error after reset: %v", err)
	}
}

func TestStateString(t *testing.T) {
	t.Parallel()
	tests := []struct {
		state State
		want  string
	}{
		{StateClosed, "closed"},
		{StateOpen, "open"},
		{StateHalfOpen, "half-open"},
		{State(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}
