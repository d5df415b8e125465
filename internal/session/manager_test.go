package session

import (
	"errors"
	"log/slog"
	"testing"
	"time"
)

// ─────────────────────────────────────────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────────────────────────────────────────

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	return NewManager(ManagerConfig{Logger: slog.Default()})
}

func mustCreate(t *testing.T, m *Manager, agent, user string, priority int, interruptible bool) Session {
	t.Helper()
	s, err := m.Create(agent, user, priority, interruptible)
	if err != nil {
		t.Fatalf("create %s for %s: %v", agent, user, err)
	}
	return s
}

// ─────────────────────────────────────────────────────────────────────────────
// Tests
// ─────────────────────────────────────────────────────────────────────────────

func TestCreateWithEmptyStack(t *testing.T) {
	t.Parallel()
	m := newTestManager(t)

	s := mustCreate(t, m, "music_agent", "u1", 50, true)
	if s.State != StateRunning {
		t.Errorf("state = %q, want %q", s.State, StateRunning)
	}
	if active, ok := m.Active("u1"); !ok || active.ID != s.ID {
		t.Error("created session is not the active session")
	}
}

func TestWaitingSessionIsPushedNotRefused(t *testing.T) {
	t.Parallel()
	m := newTestManager(t)

	hotel := mustCreate(t, m, "hotel_agent", "u1", 50, false)
	if err := m.AwaitInput(hotel.ID, "which city?"); err != nil {
		t.Fatalf("await input: %v", err)
	}

	// Even a lower-priority, non-preempting newcomer stacks on top of a
	// waiting session.
	music := mustCreate(t, m, "music_agent", "u1", 10, true)

	stack := m.Stack("u1")
	if len(stack) != 2 {
		t.Fatalf("stack depth = %d, want 2", len(stack))
	}
	if stack[0].State != StatePaused {
		t.Errorf("bottom state = %q, want %q", stack[0].State, StatePaused)
	}
	if stack[1].ID != music.ID || stack[1].State != StateRunning {
		t.Errorf("top = %+v, want running music session", stack[1])
	}
}

func TestHigherPriorityPreemptsInterruptible(t *testing.T) {
	t.Parallel()
	m := newTestManager(t)

	mustCreate(t, m, "music_agent", "u1", 30, true)
	nav := mustCreate(t, m, "navigation_agent", "u1", 80, false)

	if active, _ := m.Active("u1"); active.ID != nav.ID {
		t.Error("higher-priority session did not preempt")
	}
}

func TestLowerPriorityIsRefused(t *testing.T) {
	t.Parallel()
	m := newTestManager(t)

	mustCreate(t, m, "navigation_agent", "u1", 80, true)
	_, err := m.Create("music_agent", "u1", 30, true)
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("err = %v, want ErrConflict", err)
	}
}

func TestEqualPriorityIsRefused(t *testing.T) {
	t.Parallel()
	m := newTestManager(t)

	mustCreate(t, m, "a_agent", "u1", 50, true)
	if _, err := m.Create("b_agent", "u1", 50, true); !errors.Is(err, ErrConflict) {
		t.Fatalf("err = %v, want ErrConflict (equal priority must not preempt)", err)
	}
}

func TestNonInterruptibleResistsPreemption(t *testing.T) {
	t.Parallel()
	m := newTestManager(t)

	mustCreate(t, m, "safety_agent", "u1", 10, false)
	if _, err := m.Create("music_agent", "u1", 99, true); !errors.Is(err, ErrConflict) {
		t.Fatalf("err = %v, want ErrConflict (non-interruptible must hold)", err)
	}
}

func TestCompleteResumesPausedSessionWithPrompt(t *testing.T) {
	t.Parallel()
	m := newTestManager(t)

	hotel := mustCreate(t, m, "hotel_agent", "u1", 50, false)
	if err := m.AwaitInput(hotel.ID, "which city?"); err != nil {
		t.Fatalf("await input: %v", err)
	}
	music := mustCreate(t, m, "music_agent", "u1", 10, true)

	resumed, err := m.Complete(music.ID)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if resumed == nil {
		t.Fatal("expected the paused hotel session to resume")
	}
	if resumed.ID != hotel.ID {
		t.Errorf("resumed %s, want %s", resumed.ID, hotel.ID)
	}
	if resumed.State != StateWaitingInput {
		t.Errorf("resumed state = %q, want %q (was mid-question)", resumed.State, StateWaitingInput)
	}
	if resumed.Prompt != "which city?" {
		t.Errorf("resumed prompt = %q, want the pending question", resumed.Prompt)
	}
}

func TestCompleteWithEmptyRemainderReturnsNil(t *testing.T) {
	t.Parallel()
	m := newTestManager(t)

	s := mustCreate(t, m, "music_agent", "u1", 50, true)
	resumed, err := m.Complete(s.ID)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if resumed != nil {
		t.Errorf("resumed = %+v, want nil", resumed)
	}
	if _, ok := m.Active("u1"); ok {
		t.Error("user still has an active session after completing the only one")
	}
}

func TestResumeRequiresWaitingTop(t *testing.T) {
	t.Parallel()
	m := newTestManager(t)

	s := mustCreate(t, m, "hotel_agent", "u1", 50, false)
	if err := m.Resume(s.ID); !errors.Is(err, ErrBadState) {
		t.Fatalf("err = %v, want ErrBadState (running session cannot be resumed)", err)
	}

	if err := m.AwaitInput(s.ID, "dates?"); err != nil {
		t.Fatalf("await input: %v", err)
	}
	if err := m.Resume(s.ID); err != nil {
		t.Fatalf("resume: %v", err)
	}
	got, _ := m.Get(s.ID)
	if got.State != StateRunning {
		t.Errorf("state = %q after resume, want %q", got.State, StateRunning)
	}
}

func TestOperationsOnBuriedSessionFail(t *testing.T) {
	t.Parallel()
	m := newTestManager(t)

	hotel := mustCreate(t, m, "hotel_agent", "u1", 50, false)
	_ = m.AwaitInput(hotel.ID, "city?")
	mustCreate(t, m, "music_agent", "u1", 10, true)

	if err := m.Resume(hotel.ID); !errors.Is(err, ErrNotActive) {
		t.Errorf("resume buried: err = %v, want ErrNotActive", err)
	}
	if _, err := m.Complete(hotel.ID); !errors.Is(err, ErrNotActive) {
		t.Errorf("complete buried: err = %v, want ErrNotActive", err)
	}
}

func TestUsersAreIndependent(t *testing.T) {
	t.Parallel()
	m := newTestManager(t)

	mustCreate(t, m, "music_agent", "u1", 50, true)
	// Same agent, different user: no conflict.
	mustCreate(t, m, "music_agent", "u2", 50, true)

	if len(m.Stack("u1")) != 1 || len(m.Stack("u2")) != 1 {
		t.Error("per-user stacks interfered with each other")
	}
}

func TestPriorityRangeValidation(t *testing.T) {
	t.Parallel()
	m := newTestManager(t)

	if _, err := m.Create("a", "u1", -1, true); err == nil {
		t.Error("expected error for priority < 0")
	}
	if _, err := m.Create("a", "u1", 101, true); err == nil {
		t.Error("expected error for priority > 100")
	}
}

func TestContextSurvivesPauseResume(t *testing.T) {
	t.Parallel()
	m := newTestManager(t)

	hotel := mustCreate(t, m, "hotel_agent", "u1", 50, false)
	err := m.UpdateContext(hotel.ID, func(c map[string]any) {
		c["city"] = "Berlin"
	})
	if err != nil {
		t.Fatalf("update context: %v", err)
	}
	_ = m.AwaitInput(hotel.ID, "dates?")

	music := mustCreate(t, m, "music_agent", "u1", 10, true)
	if _, err := m.Complete(music.ID); err != nil {
		t.Fatalf("complete: %v", err)
	}

	got, _ := m.Get(hotel.ID)
	if got.Context["city"] != "Berlin" {
		t.Errorf("context[city] = %v after pause/resume, want Berlin", got.Context["city"])
	}
}

func TestSweepExpiresIdleSessions(t *testing.T) {
	t.Parallel()

	var expired []Session
	m := NewManager(ManagerConfig{
		TTL:    time.Minute,
		Logger: slog.Default(),
		OnExpire: func(s Session) {
			expired = append(expired, s)
		},
	})

	s := mustCreate(t, m, "hotel_agent", "u1", 50, false)

	// Jump the clock past the TTL.
	m.now = func() time.Time { return time.Now().Add(2 * time.Minute) }

	removed := m.Sweep()
	if len(removed) != 1 || removed[0].ID != s.ID {
		t.Fatalf("sweep removed %v, want [%s]", removed, s.ID)
	}
	if len(expired) != 1 {
		t.Errorf("OnExpire fired %d times, want 1", len(expired))
	}
	if removed[0].State != StateError {
		t.Errorf("expired state = %q, want %q", removed[0].State, StateError)
	}
	if _, ok := m.Get(s.ID); ok {
		t.Error("expired session still retrievable")
	}
}

func TestSweepResumesSessionUnderExpiredTop(t *testing.T) {
	t.Parallel()
	m := NewManager(ManagerConfig{TTL: time.Minute, Logger: slog.Default()})

	hotel := mustCreate(t, m, "hotel_agent", "u1", 50, false)
	_ = m.AwaitInput(hotel.ID, "city?")
	music := mustCreate(t, m, "music_agent", "u1", 10, true)

	// Keep the hotel session fresh while the music session goes idle.
	m.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	m.Touch(hotel.ID)
	m.now = func() time.Time { return time.Now().Add(4 * time.Minute) }
	m.Touch(hotel.ID)

	removed := m.Sweep()
	if len(removed) != 1 || removed[0].ID != music.ID {
		t.Fatalf("sweep removed %v, want the idle music session", removed)
	}

	got, ok := m.Get(hotel.ID)
	if !ok {
		t.Fatal("hotel session vanished")
	}
	if got.State != StateWaitingInput {
		t.Errorf("hotel state = %q, want %q", got.State, StateWaitingInput)
	}
}

func TestStatsCountsByState(t *testing.T) {
	t.Parallel()
	m := newTestManager(t)

	hotel := mustCreate(t, m, "hotel_agent", "u1", 50, false)
	_ = m.AwaitInput(hotel.ID, "city?")
	mustCreate(t, m, "music_agent", "u1", 10, true)
	mustCreate(t, m, "chat_agent", "u2", 0, true)

	stats := m.Stats()
	if stats[StateRunning] != 2 {
		t.Errorf("running = %d, want 2", stats[StateRunning])
	}
	if stats[StatePaused] != 1 {
		t.Errorf("paused = %d, want 1", stats[StatePaused])
	}
}
