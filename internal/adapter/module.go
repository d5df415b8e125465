// Package adapter contains the pipeline modules: thin glue that subscribes a
// provider engine to the event bus, translates between bus events and the
// engine's API, and reports per-stage statistics.
//
// Every adapter implements [Module] and is driven by the controller through
// the same four-phase lifecycle: Initialize (allocate resources, subscribe),
// Start (begin consuming), Stop (stop consuming), Cleanup (release
// resources). Stop and Cleanup must be safe to call after a partial startup.
package adapter

import (
	"context"
	"sync"
)

// Module is the lifecycle contract shared by every pipeline stage.
type Module interface {
	// Name is the stable identifier used in logs, traces, and controller
	// lookups.
	Name() string

	Initialize(ctx context.Context) error
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Cleanup() error

	// Statistics returns a snapshot of the module's counters.
	Statistics() map[string]any
}

// stats is a small concurrent counter map shared by the adapters.
type stats struct {
	mu sync.Mutex
	m  map[string]int64
}

func newStats() *stats {
	return &stats{m: make(map[string]int64)}
}

func (s *stats) inc(key string) {
	s.mu.Lock()
	s.m[key]++
	s.mu.Unlock()
}

func (s *stats) add(key string, n int64) {
	s.mu.Lock()
	s.m[key] += n
	s.mu.Unlock()
}

func (s *stats) snapshot() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]any, len(s.m))
	for k, v := range s.m {
		out[k] = v
	}
	return out
}
