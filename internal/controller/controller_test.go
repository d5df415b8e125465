package controller

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/kiwivoice/kiwi/internal/bus"
	"github.com/kiwivoice/kiwi/internal/event"
)

// journal records lifecycle calls across modules in order.
type journal struct {
	mu      sync.Mutex
	entries []string
}

func (j *journal) add(entry string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, entry)
}

func (j *journal) list() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]string(nil), j.entries...)
}

// fakeModule journals its lifecycle and fails on demand.
type fakeModule struct {
	name    string
	journal *journal

	failInit  bool
	failStart bool
	failStop  bool
}

func (m *fakeModule) Name() string { return m.name }

func (m *fakeModule) Initialize(context.Context) error {
	m.journal.add("init:" + m.name)
	if m.failInit {
		return fmt.Errorf("init boom")
	}
	return nil
}

func (m *fakeModule) Start(context.Context) error {
	m.journal.add("start:" + m.name)
	if m.failStart {
		return fmt.Errorf("start boom")
	}
	return nil
}

func (m *fakeModule) Stop(context.Context) error {
	m.journal.add("stop:" + m.name)
	if m.failStop {
		return fmt.Errorf("stop boom")
	}
	return nil
}

func (m *fakeModule) Cleanup() error {
	m.journal.add("cleanup:" + m.name)
	return nil
}

func (m *fakeModule) Statistics() map[string]any {
	return map[string]any{"name": m.name}
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestStartRunsInOrderAndStopReverses(t *testing.T) {
	t.Parallel()
	b := bus.New(nil)
	defer b.Close()
	j := &journal{}
	c := New(b, nil)

	for _, name := range []string{"audio", "wakeword", "asr"} {
		if err := c.Register(&fakeModule{name: name, journal: j}); err != nil {
			t.Fatalf("Register: %v", err)
		}
	}

	startups := 0
	b.Subscribe(event.KindSystemStartup, func(event.Event) { startups++ })

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if startups != 1 {
		t.Errorf("startup events = %d", startups)
	}
	if err := c.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	want := []string{
		"init:audio", "init:wakeword", "init:asr",
		"start:audio", "start:wakeword", "start:asr",
		"stop:asr", "stop:wakeword", "stop:audio",
		"cleanup:asr", "cleanup:wakeword", "cleanup:audio",
	}
	if got := j.list(); !equal(got, want) {
		t.Errorf("lifecycle order:\n got %v\nwant %v", got, want)
	}
}

func TestStartFailureRollsBackStartedModules(t *testing.T) {
	t.Parallel()
	b := bus.New(nil)
	defer b.Close()
	j := &journal{}
	c := New(b, nil)

	c.Register(&fakeModule{name: "audio", journal: j})
	c.Register(&fakeModule{name: "asr", journal: j, failStart: true})
	c.Register(&fakeModule{name: "tts", journal: j})

	err := c.Start(context.Background())
	if err == nil {
		t.Fatal("Start must fail")
	}

	want := []string{
		"init:audio", "init:asr", "init:tts",
		"start:audio", "start:asr",
		"stop:audio",
		"cleanup:tts", "cleanup:asr", "cleanup:audio",
	}
	if got := j.list(); !equal(got, want) {
		t.Errorf("rollback order:\n got %v\nwant %v", got, want)
	}
}

func TestInitFailureCleansUpInitializedModules(t *testing.T) {
	t.Parallel()
	b := bus.New(nil)
	defer b.Close()
	j := &journal{}
	c := New(b, nil)

	c.Register(&fakeModule{name: "audio", journal: j})
	c.Register(&fakeModule{name: "asr", journal: j, failInit: true})

	if err := c.Start(context.Background()); err == nil {
		t.Fatal("Start must fail")
	}

	want := []string{"init:audio", "init:asr", "cleanup:audio"}
	if got := j.list(); !equal(got, want) {
		t.Errorf("cleanup order:\n got %v\nwant %v", got, want)
	}
}

func TestStopErrorsDoNotBlockRemainingModules(t *testing.T) {
	t.Parallel()
	b := bus.New(nil)
	defer b.Close()
	j := &journal{}
	c := New(b, nil)

	c.Register(&fakeModule{name: "audio", journal: j})
	c.Register(&fakeModule{name: "asr", journal: j, failStop: true})

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	err := c.Stop(context.Background())
	if err == nil {
		t.Fatal("Stop must surface the failing module")
	}

	got := j.list()
	if got[len(got)-1] != "cleanup:audio" {
		t.Errorf("teardown incomplete: %v", got)
	}
}

func TestModuleLookupAndStatistics(t *testing.T) {
	t.Parallel()
	b := bus.New(nil)
	defer b.Close()
	c := New(b, nil)
	j := &journal{}

	c.Register(&fakeModule{name: "audio", journal: j})
	if err := c.Register(&fakeModule{name: "audio", journal: j}); err == nil {
		t.Error("duplicate names must be rejected")
	}

	if _, ok := c.Module("audio"); !ok {
		t.Error("Module lookup failed")
	}
	if _, ok := c.Module("ghost"); ok {
		t.Error("unknown module reported present")
	}
	stats := c.Statistics()
	if stats["audio"]["name"] != "audio" {
		t.Errorf("stats = %v", stats)
	}
}

func TestPublishForwardsToBus(t *testing.T) {
	t.Parallel()
	b := bus.New(nil)
	defer b.Close()
	c := New(b, nil)

	var got []event.Event
	b.Subscribe(event.KindASRSuccess, func(ev event.Event) { got = append(got, ev) })

	ev := event.New(event.KindASRSuccess, "evaluator")
	ev.Payload = event.ASRResult{Text: "hello"}
	c.Publish(ev)

	if len(got) != 1 || got[0].Payload.(event.ASRResult).Text != "hello" {
		t.Errorf("published = %v", got)
	}
}
