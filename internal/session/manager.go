package session

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ManagerConfig carries the manager's dependencies and tuning knobs.
type ManagerConfig struct {
	// TTL is how long a session may sit idle before the sweeper expires it.
	// Default: 5 minutes.
	TTL time.Duration

	// SweepInterval is how often the sweeper scans for idle sessions.
	// Default: 30 seconds.
	SweepInterval time.Duration

	// OnExpire is invoked (outside the manager's lock) for every session the
	// sweeper removes. Optional.
	OnExpire func(Session)

	// Logger for state changes. Nil falls back to slog.Default.
	Logger *slog.Logger
}

// Manager owns every user's session stack. All methods are safe for
// concurrent use; operations on the same user are serialized by the
// manager's lock, so two dispatches for one user can never interleave their
// stack updates.
type Manager struct {
	ttl           time.Duration
	sweepInterval time.Duration
	onExpire      func(Session)
	log           *slog.Logger
	now           func() time.Time

	mu     sync.Mutex
	stacks map[string][]*Session // per user, bottom first
	byID   map[string]*Session
}

// NewManager creates a Manager with the supplied configuration.
func NewManager(cfg ManagerConfig) *Manager {
	if cfg.TTL <= 0 {
		cfg.TTL = 5 * time.Minute
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = 30 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Manager{
		ttl:           cfg.TTL,
		sweepInterval: cfg.SweepInterval,
		onExpire:      cfg.OnExpire,
		log:           cfg.Logger,
		now:           time.Now,
		stacks:        make(map[string][]*Session),
		byID:          make(map[string]*Session),
	}
}

// Create opens a new session for user with the given agent. The outcome
// depends on the user's current active session:
//
//   - no active session: the new session starts running.
//   - active session waiting for input: it is paused and the new session
//     starts running on top of it.
//   - active session running with lower priority and interruptible: it is
//     paused and the new session preempts it.
//   - otherwise: [ErrConflict].
func (m *Manager) Create(agent, user string, priority int, interruptible bool) (Session, error) {
	if agent == "" || user == "" {
		return Session{}, fmt.Errorf("session: create: agent and user are required")
	}
	if priority < 0 || priority > 100 {
		return Session{}, fmt.Errorf("session: create: priority %d out of range [0,100]", priority)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if top := m.top(user); top != nil {
		switch {
		case top.State == StateWaitingInput:
			top.State = StatePaused
		case priority > top.Priority && top.Interruptible:
			top.State = StatePaused
		default:
			return Session{}, fmt.Errorf("%w: active %s (priority %d, interruptible %t) vs new %s (priority %d)",
				ErrConflict, top.Agent, top.Priority, top.Interruptible, agent, priority)
		}
		m.log.Info("session paused by newcomer",
			"paused", top.ID, "paused_agent", top.Agent, "new_agent", agent, "user", user)
	}

	now := m.now()
	s := &Session{
		ID:            uuid.NewString(),
		Agent:         agent,
		UserID:        user,
		Priority:      priority,
		Interruptible: interruptible,
		State:         StateRunning,
		Context:       make(map[string]any),
		CreatedAt:     now,
		LastActivity:  now,
	}
	m.stacks[user] = append(m.stacks[user], s)
	m.byID[s.ID] = s

	m.log.Info("session created",
		"session", s.ID, "agent", agent, "user", user,
		"priority", priority, "depth", len(m.stacks[user]))
	return snapshot(s), nil
}

// AwaitInput blocks the session on a follow-up question. Only the running
// stack top may wait for input.
func (m *Manager) AwaitInput(id, prompt string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.byID[id]
	if !ok {
		return fmt.Errorf("await input %q: %w", id, ErrNotFound)
	}
	if m.top(s.UserID) != s {
		return fmt.Errorf("await input %q: %w", id, ErrNotActive)
	}
	if s.State != StateRunning {
		return fmt.Errorf("await input %q in state %s: %w", id, s.State, ErrBadState)
	}
	s.State = StateWaitingInput
	s.Prompt = prompt
	s.LastActivity = m.now()
	return nil
}

// Resume delivers the user's answer to a waiting session, moving it back to
// running. Only the stack top can be resumed.
func (m *Manager) Resume(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.byID[id]
	if !ok {
		return fmt.Errorf("resume %q: %w", id, ErrNotFound)
	}
	if m.top(s.UserID) != s {
		return fmt.Errorf("resume %q: %w", id, ErrNotActive)
	}
	if s.State != StateWaitingInput {
		return fmt.Errorf("resume %q in state %s: %w", id, s.State, ErrBadState)
	}
	s.State = StateRunning
	s.Prompt = ""
	s.LastActivity = m.now()
	return nil
}

// Complete finishes the top session normally. If a paused session sits
// beneath it, that session becomes running again and a copy of it is
// returned so the caller can replay its pending prompt.
func (m *Manager) Complete(id string) (resumed *Session, err error) {
	return m.finish(id, StateCompleted)
}

// Fail finishes the top session abnormally, with the same resume behaviour
// as [Manager.Complete].
func (m *Manager) Fail(id string) (resumed *Session, err error) {
	return m.finish(id, StateError)
}

func (m *Manager) finish(id string, terminal State) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.byID[id]
	if !ok {
		return nil, fmt.Errorf("finish %q: %w", id, ErrNotFound)
	}
	if m.top(s.UserID) != s {
		return nil, fmt.Errorf("finish %q: %w", id, ErrNotActive)
	}

	s.State = terminal
	m.remove(s)
	m.log.Info("session finished",
		"session", s.ID, "agent", s.Agent, "user", s.UserID, "state", terminal)

	next := m.top(s.UserID)
	if next == nil {
		return nil, nil
	}
	if next.State == StatePaused {
		// Resume where the paused agent left off. If it was mid-question,
		// the caller replays next.Prompt to the user.
		if next.Prompt != "" {
			next.State = StateWaitingInput
		} else {
			next.State = StateRunning
		}
		next.LastActivity = m.now()
		m.log.Info("session resumed from stack",
			"session", next.ID, "agent", next.Agent, "user", next.UserID)
	}
	cp := snapshot(next)
	return &cp, nil
}

// UpdateContext runs fn against the session's context map under the
// manager's lock and refreshes the activity timestamp.
func (m *Manager) UpdateContext(id string, fn func(map[string]any)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.byID[id]
	if !ok {
		return fmt.Errorf("update context %q: %w", id, ErrNotFound)
	}
	fn(s.Context)
	s.LastActivity = m.now()
	return nil
}

// Touch refreshes the session's idle timer.
func (m *Manager) Touch(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.byID[id]; ok {
		s.LastActivity = m.now()
	}
}

// Get returns a copy of the session with the given id.
func (m *Manager) Get(id string) (Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.byID[id]
	if !ok {
		return Session{}, false
	}
	return snapshot(s), true
}

// Active returns a copy of the user's stack-top session, if any.
func (m *Manager) Active(user string) (Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	top := m.top(user)
	if top == nil {
		return Session{}, false
	}
	return snapshot(top), true
}

// Stack returns copies of the user's sessions, bottom first.
func (m *Manager) Stack(user string) []Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	stack := m.stacks[user]
	out := make([]Session, len(stack))
	for i, s := range stack {
		out[i] = snapshot(s)
	}
	return out
}

// Stats counts live sessions by state.
func (m *Manager) Stats() map[State]int {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[State]int)
	for _, s := range m.byID {
		out[s.State]++
	}
	return out
}

// Sweep expires every session idle longer than the TTL and returns copies of
// the removed sessions. When the expired session was the stack top, the
// session beneath it is resumed.
func (m *Manager) Sweep() []Session {
	m.mu.Lock()
	cutoff := m.now().Add(-m.ttl)

	var expired []Session
	for user, stack := range m.stacks {
		// Walk top-down so resuming-below logic sees a settled stack.
		for i := len(stack) - 1; i >= 0; i-- {
			s := stack[i]
			if !s.LastActivity.Before(cutoff) {
				continue
			}
			wasTop := m.top(user) == s
			s.State = StateError
			m.remove(s)
			expired = append(expired, snapshot(s))
			m.log.Warn("session expired",
				"session", s.ID, "agent", s.Agent, "user", user,
				"idle", m.now().Sub(s.LastActivity))

			if wasTop {
				if next := m.top(user); next != nil && next.State == StatePaused {
					if next.Prompt != "" {
						next.State = StateWaitingInput
					} else {
						next.State = StateRunning
					}
					next.LastActivity = m.now()
				}
			}
		}
	}
	m.mu.Unlock()

	if m.onExpire != nil {
		for _, s := range expired {
			m.onExpire(s)
		}
	}
	return expired
}

// Run drives the TTL sweeper until ctx is cancelled.
func (m *Manager) Run(ctx context.Context) {
	ticker := time.NewTicker(m.sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Sweep()
		}
	}
}

// top returns the user's stack top, or nil. Caller holds m.mu.
func (m *Manager) top(user string) *Session {
	stack := m.stacks[user]
	if len(stack) == 0 {
		return nil
	}
	return stack[len(stack)-1]
}

// remove deletes s from its user's stack and the id index. Caller holds m.mu.
func (m *Manager) remove(s *Session) {
	stack := m.stacks[s.UserID]
	for i, cand := range stack {
		if cand == s {
			stack = append(stack[:i], stack[i+1:]...)
			break
		}
	}
	if len(stack) == 0 {
		delete(m.stacks, s.UserID)
	} else {
		m.stacks[s.UserID] = stack
	}
	delete(m.byID, s.ID)
}

// snapshot deep-copies a session so callers never alias manager state.
func snapshot(s *Session) Session {
	cp := *s
	cp.Context = maps.Clone(s.Context)
	return cp
}
