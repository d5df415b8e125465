// Package tracker correlates one utterance's journey through the pipeline.
//
// When ASR produces a recognition result, the adapter asks the tracker for a
// fresh message id and every downstream stage appends trace entries under
// that id. The id is independent of any session id: a single correlation id
// may touch several sessions (a new intent that pauses another agent), and a
// session accumulates many correlation ids over its life.
package tracker

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a tracked message.
type Status string

const (
	// StatusPending: stages are still appending entries.
	StatusPending Status = "pending"

	// StatusWaitingInput: the handling agent asked a follow-up question.
	StatusWaitingInput Status = "waiting_input"

	// StatusCompleted: a final response was produced.
	StatusCompleted Status = "completed"

	// StatusFailed: a stage failed terminally.
	StatusFailed Status = "failed"

	// StatusAborted: processing was cut short (busy drop, planner abort).
	StatusAborted Status = "aborted"
)

// terminal statuses can no longer change.
func (s Status) terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusAborted
}

// Entry is one stage record within a trace.
type Entry struct {
	Stage     string
	Input     string
	Output    string
	Timestamp time.Time
}

// Trace is the full record for one correlation id.
type Trace struct {
	ID        string
	Query     string
	Response  string
	Status    Status
	CreatedAt time.Time
	UpdatedAt time.Time
	Entries   []Entry
}

type trace struct {
	mu sync.Mutex
	t  Trace
}

// Tracker stores traces by correlation id. Safe for concurrent use; entries
// appended to the same trace keep their append order.
type Tracker struct {
	now func() time.Time

	mu     sync.RWMutex
	traces map[string]*trace
}

// New creates an empty tracker.
func New() *Tracker {
	return &Tracker{
		now:    time.Now,
		traces: make(map[string]*trace),
	}
}

// Begin allocates a correlation id for a new utterance and opens its trace
// with the recognized query text.
func (tk *Tracker) Begin(query string) string {
	id := uuid.NewString()
	now := tk.now()

	tk.mu.Lock()
	defer tk.mu.Unlock()
	tk.traces[id] = &trace{t: Trace{
		ID:        id,
		Query:     query,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}}
	return id
}

// Append adds a stage entry to the trace. Appending to an unknown id is an
// error; appending to a terminal trace is allowed (late stages may still
// report) but does not change the status.
func (tk *Tracker) Append(id, stage, input, output string) error {
	tr, err := tk.lookup(id)
	if err != nil {
		return fmt.Errorf("tracker: append %s: %w", stage, err)
	}

	tr.mu.Lock()
	defer tr.mu.Unlock()
	now := tk.now()
	tr.t.Entries = append(tr.t.Entries, Entry{
		Stage:     stage,
		Input:     input,
		Output:    output,
		Timestamp: now,
	})
	tr.t.UpdatedAt = now
	return nil
}

// Finish records the response text and moves the trace to a terminal or
// waiting status. Once a trace is terminal, later Finish calls are ignored.
func (tk *Tracker) Finish(id, response string, status Status) error {
	tr, err := tk.lookup(id)
	if err != nil {
		return fmt.Errorf("tracker: finish: %w", err)
	}

	tr.mu.Lock()
	defer tr.mu.Unlock()
	if tr.t.Status.terminal() {
		return nil
	}
	tr.t.Response = response
	tr.t.Status = status
	tr.t.UpdatedAt = tk.now()
	return nil
}

// Get returns a copy of the trace for id. The copy shares nothing with the
// live trace, so callers may inspect it without holding locks.
func (tk *Tracker) Get(id string) (Trace, bool) {
	tr, err := tk.lookup(id)
	if err != nil {
		return Trace{}, false
	}

	tr.mu.Lock()
	defer tr.mu.Unlock()
	out := tr.t
	out.Entries = make([]Entry, len(tr.t.Entries))
	copy(out.Entries, tr.t.Entries)
	return out, true
}

// Prune drops traces whose last update is older than maxAge and returns how
// many were removed. The evaluator and long-running daemons call this
// periodically to bound memory.
func (tk *Tracker) Prune(maxAge time.Duration) int {
	cutoff := tk.now().Add(-maxAge)

	tk.mu.Lock()
	defer tk.mu.Unlock()
	removed := 0
	for id, tr := range tk.traces {
		tr.mu.Lock()
		stale := tr.t.UpdatedAt.Before(cutoff)
		tr.mu.Unlock()
		if stale {
			delete(tk.traces, id)
			removed++
		}
	}
	return removed
}

func (tk *Tracker) lookup(id string) (*trace, error) {
	tk.mu.RLock()
	defer tk.mu.RUnlock()
	tr, ok := tk.traces[id]
	if !ok {
		return nil, fmt.Errorf("unknown message id %q", id)
	}
	return tr, nil
}
