package tracker

import (
	"sync"
	"testing"
	"time"
)

func TestBeginAssignsUniqueIDs(t *testing.T) {
	t.Parallel()
	tk := New()

	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		id := tk.Begin("query")
		if seen[id] {
			t.Fatalf("duplicate message id %q", id)
		}
		seen[id] = true
	}
}

func TestEntriesKeepAppendOrder(t *testing.T) {
	t.Parallel()
	tk := New()
	id := tk.Begin("play some jazz")

	stages := []string{"orchestrator", "agent", "tool", "tts"}
	for _, s := range stages {
		if err := tk.Append(id, s, "in", "out"); err != nil {
			t.Fatalf("append %s: %v", s, err)
		}
	}

	tr, ok := tk.Get(id)
	if !ok {
		t.Fatal("trace not found")
	}
	if len(tr.Entries) != len(stages) {
		t.Fatalf("got %d entries, want %d", len(tr.Entries), len(stages))
	}
	for i, s := range stages {
		if tr.Entries[i].Stage != s {
			t.Errorf("entry %d stage = %q, want %q", i, tr.Entries[i].Stage, s)
		}
	}
}

func TestFinishIsTerminal(t *testing.T) {
	t.Parallel()
	tk := New()
	id := tk.Begin("query")

	if err := tk.Finish(id, "done", StatusCompleted); err != nil {
		t.Fatalf("finish: %v", err)
	}
	// A second finish must not overwrite the terminal state.
	if err := tk.Finish(id, "too late", StatusFailed); err != nil {
		t.Fatalf("finish: %v", err)
	}

	tr, _ := tk.Get(id)
	if tr.Status != StatusCompleted {
		t.Errorf("status = %q, want %q", tr.Status, StatusCompleted)
	}
	if tr.Response != "done" {
		t.Errorf("response = %q, want %q", tr.Response, "done")
	}
}

func TestWaitingInputCanStillComplete(t *testing.T) {
	t.Parallel()
	tk := New()
	id := tk.Begin("book a hotel")

	if err := tk.Finish(id, "which city?", StatusWaitingInput); err != nil {
		t.Fatalf("finish: %v", err)
	}
	if err := tk.Finish(id, "booked", StatusCompleted); err != nil {
		t.Fatalf("finish: %v", err)
	}

	tr, _ := tk.Get(id)
	if tr.Status != StatusCompleted {
		t.Errorf("status = %q, want %q", tr.Status, StatusCompleted)
	}
}

func TestUnknownIDErrors(t *testing.T) {
	t.Parallel()
	tk := New()

	if err := tk.Append("nope", "stage", "", ""); err == nil {
		t.Error("expected error appending to unknown id")
	}
	if err := tk.Finish("nope", "", StatusCompleted); err == nil {
		t.Error("expected error finishing unknown id")
	}
	if _, ok := tk.Get("nope"); ok {
		t.Error("expected Get on unknown id to report not found")
	}
}

func TestGetReturnsACopy(t *testing.T) {
	t.Parallel()
	tk := New()
	id := tk.Begin("query")
	_ = tk.Append(id, "stage", "a", "b")

	tr, _ := tk.Get(id)
	tr.Entries[0].Stage = "mutated"
	tr.Query = "mutated"

	fresh, _ := tk.Get(id)
	if fresh.Entries[0].Stage != "stage" || fresh.Query != "query" {
		t.Error("mutating a returned trace affected the stored trace")
	}
}

func TestConcurrentAppendsToSameTrace(t *testing.T) {
	t.Parallel()
	tk := New()
	id := tk.Begin("query")

	const goroutines, perGoroutine = 8, 25
	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perGoroutine; i++ {
				if err := tk.Append(id, "stage", "", ""); err != nil {
					t.Errorf("append: %v", err)
				}
			}
		}()
	}
	wg.Wait()

	tr, _ := tk.Get(id)
	if got := len(tr.Entries); got != goroutines*perGoroutine {
		t.Errorf("got %d entries, want %d", got, goroutines*perGoroutine)
	}
}

func TestPruneDropsStaleTraces(t *testing.T) {
	t.Parallel()
	tk := New()

	stale := tk.Begin("old")
	// Rewind the clock for subsequent traces only.
	tk.now = func() time.Time { return time.Now().Add(time.Hour) }
	fresh := tk.Begin("new")

	if removed := tk.Prune(30 * time.Minute); removed != 1 {
		t.Fatalf("pruned %d traces, want 1", removed)
	}
	if _, ok := tk.Get(stale); ok {
		t.Error("stale trace survived prune")
	}
	if _, ok := tk.Get(fresh); !ok {
		t.Error("fresh trace was pruned")
	}
}
