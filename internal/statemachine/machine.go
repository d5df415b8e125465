// Package statemachine tracks the pipeline's interaction state.
//
// The machine advances through the capture/recognition/response cycle in
// reaction to pipeline triggers. Transitions not present in the table are
// rejected: the machine logs a warning and holds its current state, so a
// stray event (a duplicate speech-end, a late recognition result) can never
// push the pipeline into an inconsistent state.
package statemachine

import (
	"log/slog"
	"sync"
	"time"
)

// State is one phase of the interaction cycle.
type State string

const (
	// StateIdle: passively scanning for the wakeword.
	StateIdle State = "idle"

	// StateAwake: wakeword heard, waiting for speech to begin.
	StateAwake State = "awake"

	// StateListening: user speech in progress, frames are being buffered.
	StateListening State = "listening"

	// StateRecognizing: utterance captured, ASR in flight.
	StateRecognizing State = "recognizing"

	// StateThinking: recognition done, orchestrator/agent working.
	StateThinking State = "thinking"

	// StateSpeaking: response playing through TTS.
	StateSpeaking State = "speaking"
)

// Trigger is a stimulus that may advance the machine.
type Trigger string

const (
	TriggerWakeword     Trigger = "wakeword"
	TriggerWakeTimeout  Trigger = "wake_timeout"
	TriggerSpeechStart  Trigger = "speech_start"
	TriggerSpeechEnd    Trigger = "speech_end"
	TriggerRecognized   Trigger = "recognized"
	TriggerRecognizeErr Trigger = "recognize_error"
	TriggerSpeakStart   Trigger = "speak_start"
	TriggerSpeakEnd     Trigger = "speak_end"
	TriggerReset        Trigger = "reset"
)

// transitions is the complete legal-move table. Anything absent is invalid.
var transitions = map[State]map[Trigger]State{
	StateIdle: {
		TriggerWakeword: StateAwake,
	},
	StateAwake: {
		TriggerSpeechStart: StateListening,
		TriggerWakeTimeout: StateIdle,
		TriggerReset:       StateIdle,
	},
	StateListening: {
		TriggerSpeechEnd: StateRecognizing,
		TriggerReset:     StateIdle,
	},
	StateRecognizing: {
		TriggerRecognized:   StateThinking,
		TriggerRecognizeErr: StateIdle,
		TriggerReset:        StateIdle,
	},
	StateThinking: {
		TriggerSpeakStart: StateSpeaking,
		TriggerReset:      StateIdle,
	},
	StateSpeaking: {
		TriggerSpeakEnd: StateIdle,
		// Barge-in: the wakeword during playback restarts the cycle.
		TriggerWakeword: StateAwake,
		TriggerReset:    StateIdle,
	},
}

// Transition records one applied state change.
type Transition struct {
	From    State
	To      State
	Trigger Trigger
	Reason  string
	At      time.Time
}

const historyCap = 100

// Machine is the pipeline state machine. Safe for concurrent use.
type Machine struct {
	log *slog.Logger
	now func() time.Time

	mu        sync.Mutex
	state     State
	enteredAt time.Time
	history   []Transition
	onChange  []func(Transition)
}

// New creates a machine in [StateIdle]. A nil logger falls back to
// [slog.Default].
func New(log *slog.Logger) *Machine {
	if log == nil {
		log = slog.Default()
	}
	m := &Machine{log: log, now: time.Now, state: StateIdle}
	m.enteredAt = m.now()
	return m
}

// OnTransition registers a callback invoked after every applied transition.
// Callbacks run on the goroutine that fired the trigger, outside the
// machine's lock.
func (m *Machine) OnTransition(fn func(Transition)) {
	if fn == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onChange = append(m.onChange, fn)
}

// Fire applies a trigger. It returns the applied transition and true when the
// trigger was legal for the current state; otherwise it warns, holds state,
// and returns false.
func (m *Machine) Fire(trigger Trigger, reason string) (Transition, bool) {
	m.mu.Lock()

	next, ok := transitions[m.state][trigger]
	if !ok {
		state := m.state
		m.mu.Unlock()
		m.log.Warn("statemachine: invalid transition, holding state",
			"state", state, "trigger", trigger, "reason", reason)
		return Transition{}, false
	}

	tr := Transition{
		From:    m.state,
		To:      next,
		Trigger: trigger,
		Reason:  reason,
		At:      m.now(),
	}
	m.state = next
	m.enteredAt = tr.At

	m.history = append(m.history, tr)
	if len(m.history) > historyCap {
		m.history = m.history[len(m.history)-historyCap:]
	}

	callbacks := make([]func(Transition), len(m.onChange))
	copy(callbacks, m.onChange)
	m.mu.Unlock()

	m.log.Debug("statemachine: transition",
		"from", tr.From, "to", tr.To, "trigger", trigger, "reason", reason)

	for _, fn := range callbacks {
		fn(tr)
	}
	return tr, true
}

// State returns the current state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// TimeInState reports how long the machine has been in its current state.
// The VAD adapter uses this to expire the post-wakeword window.
func (m *Machine) TimeInState() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now().Sub(m.enteredAt)
}

// History returns a copy of the most recent transitions, oldest first. The
// ring keeps the last 100 entries.
func (m *Machine) History() []Transition {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Transition, len(m.history))
	copy(out, m.history)
	return out
}
