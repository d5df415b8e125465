// Package session manages per-user agent session stacks.
//
// Each user has at most one active session, the top of their stack, and any
// number of paused sessions beneath it. A new session may displace the active
// one in exactly two cases: the active session is blocked waiting for user
// input, or the newcomer outranks it and the active session declared itself
// interruptible. Completing (or failing, or expiring) the top session
// automatically resumes the paused session beneath it.
package session

import (
	"errors"
	"time"
)

// State is the lifecycle state of a session.
type State string

const (
	// StateRunning: actively handling the user's request. Only the stack top
	// can be running.
	StateRunning State = "running"

	// StateWaitingInput: the agent asked a follow-up question and is blocked
	// on the user's answer.
	StateWaitingInput State = "waiting_input"

	// StatePaused: displaced by a newer session; resumes when everything
	// above it finishes.
	StatePaused State = "paused"

	// StateCompleted: finished normally. Terminal.
	StateCompleted State = "completed"

	// StateError: finished abnormally (agent failure or TTL expiry). Terminal.
	StateError State = "error"
)

// Terminal reports whether the state can no longer change.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateError
}

// Session is one agent conversation with one user. The manager hands out
// copies; mutate sessions only through manager methods.
type Session struct {
	ID     string
	Agent  string
	UserID string

	// Priority ranks sessions for preemption, 0 (lowest) to 100 (highest).
	Priority int

	// Interruptible declares whether a higher-priority session may pause
	// this one mid-flight.
	Interruptible bool

	State State

	// Context is the agent's working memory for this session (collected
	// slots, partial plans). It survives pause/resume.
	Context map[string]any

	// Prompt is the pending follow-up question while waiting for input. It
	// is replayed to the user when a paused session resumes.
	Prompt string

	CreatedAt    time.Time
	LastActivity time.Time
}

// Sentinel errors returned by the manager.
var (
	// ErrConflict: the active session refused to yield (lower or equal
	// priority, or not interruptible).
	ErrConflict = errors.New("session: active session cannot be preempted")

	// ErrNotFound: no session with that id.
	ErrNotFound = errors.New("session: not found")

	// ErrNotActive: the operation requires the session to be the stack top.
	ErrNotActive = errors.New("session: not the active session")

	// ErrBadState: the session is not in a state that permits the operation.
	ErrBadState = errors.New("session: invalid state for operation")
)
