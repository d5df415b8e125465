// Package mock provides a scriptable vad.Engine for tests.
package mock

import (
	"sync"

	"github.com/kiwivoice/kiwi/pkg/provider/vad"
)

// Engine creates sessions that replay a scripted sequence of events.
type Engine struct {
	// Script is replayed by every session, one event per frame. After the
	// script is exhausted, sessions report silence.
	Script []vad.Event
}

var _ vad.Engine = (*Engine)(nil)

// New creates an engine whose sessions replay script.
func New(script ...vad.Event) *Engine {
	return &Engine{Script: script}
}

// NewSession implements vad.Engine.
func (e *Engine) NewSession(cfg vad.Config) (vad.Session, error) {
	script := make([]vad.Event, len(e.Script))
	copy(script, e.Script)
	return &session{script: script}, nil
}

type session struct {
	mu     sync.Mutex
	script []vad.Event
	pos    int
}

// ProcessFrame implements vad.Session.
func (s *session) ProcessFrame(frame []byte) (vad.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pos >= len(s.script) {
		return vad.Event{Type: vad.Silence}, nil
	}
	ev := s.script[s.pos]
	s.pos++
	return ev, nil
}

// Reset implements vad.Session.
func (s *session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pos = 0
}

// Close implements vad.Session.
func (s *session) Close() error { return nil }
