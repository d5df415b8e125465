package evaluation

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/kiwivoice/kiwi/internal/adapter"
	"github.com/kiwivoice/kiwi/internal/agent"
	"github.com/kiwivoice/kiwi/internal/bus"
	"github.com/kiwivoice/kiwi/internal/hotctx"
	"github.com/kiwivoice/kiwi/internal/orchestrator"
	"github.com/kiwivoice/kiwi/internal/session"
	"github.com/kiwivoice/kiwi/internal/tracker"
	llmmock "github.com/kiwivoice/kiwi/pkg/provider/llm/mock"
)

// scriptedAgent replies from a fixed script, one response per call.
type scriptedAgent struct {
	info agent.Info

	mu     sync.Mutex
	script []agent.Response
}

func (s *scriptedAgent) Info() agent.Info { return s.info }

func (s *scriptedAgent) Handle(_ context.Context, query string, _ *agent.Context) (agent.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	resp := agent.Response{Status: agent.StatusCompleted, Message: "done"}
	if len(s.script) > 0 {
		resp = s.script[0]
		s.script = s.script[1:]
	}
	resp.Agent = s.info.Name
	resp.Query = query
	return resp, nil
}

// pipeline wires the routing half of the runtime, enough for injected
// recognitions to settle.
type pipeline struct {
	bus     *bus.Bus
	tracker *tracker.Tracker
}

func newPipeline(t *testing.T, agents ...*scriptedAgent) *pipeline {
	t.Helper()
	b := bus.New(nil)
	t.Cleanup(b.Close)

	reg := agent.NewRegistry()
	for _, a := range agents {
		if err := reg.Register(a); err != nil {
			t.Fatalf("Register: %v", err)
		}
	}

	sessions := session.NewManager(session.ManagerConfig{})
	tk := tracker.New()

	oa := adapter.NewOrchestratorAdapter(adapter.OrchestratorDeps{
		Bus:          b,
		Orchestrator: orchestrator.New(orchestrator.Config{}),
		Assembler:    hotctx.NewAssembler(sessions, nil),
		Tracker:      tk,
		Agents:       reg,
	})
	aa := adapter.NewAgentAdapter(adapter.AgentAdapterDeps{
		Bus: b, Agents: reg, Sessions: sessions, Tracker: tk,
	})
	ctx := context.Background()
	for _, m := range []adapter.Module{oa, aa} {
		if err := m.Initialize(ctx); err != nil {
			t.Fatalf("Initialize %s: %v", m.Name(), err)
		}
		if err := m.Start(ctx); err != nil {
			t.Fatalf("Start %s: %v", m.Name(), err)
		}
		t.Cleanup(func() { m.Stop(context.Background()) })
	}
	return &pipeline{bus: b, tracker: tk}
}

func testConfig() Config {
	return Config{Timeout: 3 * time.Second, PollInterval: 5 * time.Millisecond}
}

func TestRunnerScoresSingleTurnCases(t *testing.T) {
	t.Parallel()
	music := &scriptedAgent{
		info:   agent.Info{Name: "music_agent", Capabilities: []string{"music", "play"}, Enabled: true, Interruptible: true},
		script: []agent.Response{{Status: agent.StatusCompleted, Message: "Playing jazz."}},
	}
	chat := &scriptedAgent{
		info:   agent.Info{Name: "chat_agent", Capabilities: []string{"chat"}, Enabled: true, Interruptible: true},
		script: []agent.Response{{Status: agent.StatusCompleted, Message: "Doing great, thanks."}},
	}
	p := newPipeline(t, music, chat)
	r := NewRunner(p.bus, p.tracker, testConfig())

	report, err := r.Run(context.Background(), []Case{
		{ID: "media-1", Category: "media", Query: "play some music", ExpectedAgent: "music_agent"},
		{ID: "chat-1", Category: "chat", Query: "how is your day going", ExpectedAgent: "chat_agent"},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if report.Total != 2 || report.Matched != 2 {
		t.Errorf("total/matched = %d/%d", report.Total, report.Matched)
	}
	for _, res := range report.Results {
		if res.Status != string(tracker.StatusCompleted) {
			t.Errorf("case %s status = %s", res.ID, res.Status)
		}
		if !res.Match || res.Quality != 0.8 || res.Rounds != 1 {
			t.Errorf("case %s = %+v", res.ID, res)
		}
	}
	if report.Results[0].Response != "Playing jazz." {
		t.Errorf("response = %q", report.Results[0].Response)
	}
	if len(report.Categories) != 2 || report.Categories["media"].MatchRate != 1.0 {
		t.Errorf("categories = %+v", report.Categories)
	}
}

func TestRunnerFollowsMultiRoundDialogue(t *testing.T) {
	t.Parallel()
	hotel := &scriptedAgent{
		info: agent.Info{Name: "hotel_agent", Capabilities: []string{"hotel", "book"}, Enabled: true, Priority: 10},
		script: []agent.Response{
			{Status: agent.StatusWaitingInput, Message: "Which room type?", Prompt: "Which room type?"},
			{Status: agent.StatusCompleted, Message: "Booked a double room."},
		},
	}
	p := newPipeline(t, hotel)
	r := NewRunner(p.bus, p.tracker, testConfig())

	report, err := r.Run(context.Background(), []Case{{
		ID: "hotel-1", Category: "booking",
		Query:         "book a hotel in berlin",
		ExpectedAgent: "hotel_agent",
		FollowUps:     []string{"a double room"},
	}})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	res := report.Results[0]
	if res.Rounds != 2 || res.Status != string(tracker.StatusCompleted) {
		t.Errorf("result = %+v", res)
	}
	if !res.Match || res.Agent != "hotel_agent" {
		t.Errorf("agent = %q match = %v", res.Agent, res.Match)
	}
	if res.Response != "Booked a double room." {
		t.Errorf("response = %q", res.Response)
	}
}

func TestRunnerExhaustedFollowUpsStayWaiting(t *testing.T) {
	t.Parallel()
	hotel := &scriptedAgent{
		info: agent.Info{Name: "hotel_agent", Capabilities: []string{"hotel"}, Enabled: true, Priority: 10},
		script: []agent.Response{
			{Status: agent.StatusWaitingInput, Message: "Which city?", Prompt: "Which city?"},
		},
	}
	p := newPipeline(t, hotel)
	r := NewRunner(p.bus, p.tracker, testConfig())

	report, err := r.Run(context.Background(), []Case{{
		ID: "hotel-2", Query: "book a hotel", ExpectedAgent: "hotel_agent",
	}})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	res := report.Results[0]
	if res.Status != string(tracker.StatusWaitingInput) || res.Quality != 0.5 {
		t.Errorf("result = %+v", res)
	}
}

func TestRunnerJudgeScoresQuality(t *testing.T) {
	t.Parallel()
	chat := &scriptedAgent{
		info: agent.Info{Name: "chat_agent", Capabilities: []string{"chat"}, Enabled: true, Interruptible: true},
		script: []agent.Response{
			{Status: agent.StatusCompleted, Message: "It is 21 degrees outside."},
			{Status: agent.StatusCompleted, Message: "Sure."},
		},
	}
	p := newPipeline(t, chat)

	judge := llmmock.New("")
	judge.EnqueueText("0.9")
	judge.EnqueueText("certainly a fine answer") // unparseable, falls back to rules
	cfg := testConfig()
	cfg.Judge = judge
	r := NewRunner(p.bus, p.tracker, cfg)

	report, err := r.Run(context.Background(), []Case{
		{ID: "judge-1", Query: "what is the weather like"},
		{ID: "judge-2", Query: "thanks a lot"},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Results[0].Quality != 0.9 {
		t.Errorf("judged quality = %v", report.Results[0].Quality)
	}
	if report.Results[1].Quality != 0.8 {
		t.Errorf("fallback quality = %v", report.Results[1].Quality)
	}
}

func TestRunnerTimesOutWhenNothingAnswers(t *testing.T) {
	t.Parallel()
	b := bus.New(nil)
	defer b.Close()
	r := NewRunner(b, tracker.New(), Config{
		Timeout: 50 * time.Millisecond, PollInterval: 5 * time.Millisecond,
	})

	report, err := r.Run(context.Background(), []Case{{ID: "dead-1", Query: "anyone there"}})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	res := report.Results[0]
	if res.Status != "timeout" || res.Error == "" {
		t.Errorf("result = %+v", res)
	}
	if res.Match {
		t.Error("timed-out case must not count as matched")
	}
}

func TestLoadCases(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	path := filepath.Join(dir, "cases.jsonl")
	content := `{"id":"c1","category":"media","query":"play jazz","expected_agent":"music_agent"}

{"id":"c2","query":"book a hotel","follow_ups":["a double room"]}
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	cases, err := LoadCases(path)
	if err != nil {
		t.Fatalf("LoadCases: %v", err)
	}
	if len(cases) != 2 || cases[0].ID != "c1" || len(cases[1].FollowUps) != 1 {
		t.Errorf("cases = %+v", cases)
	}

	bad := filepath.Join(dir, "bad.jsonl")
	os.WriteFile(bad, []byte(`{"id":"c1"`+"\n"), 0o644)
	if _, err := LoadCases(bad); err == nil {
		t.Error("malformed line must fail the load")
	}

	missing := filepath.Join(dir, "missing.jsonl")
	os.WriteFile(missing, []byte(`{"category":"media","query":"play"}`+"\n"), 0o644)
	if _, err := LoadCases(missing); err == nil {
		t.Error("case without id must fail the load")
	}
}

func TestWriteReport(t *testing.T) {
	t.Parallel()
	report := &Report{
		Total: 1, Matched: 1, AvgQuality: 0.8,
		Categories: map[string]CategoryStats{"media": {Cases: 1, MatchRate: 1, AvgQuality: 0.8}},
		Results:    []CaseResult{{ID: "c1", Category: "media", Match: true, Quality: 0.8}},
	}
	path := filepath.Join(t.TempDir(), "report.json")
	if err := WriteReport(report, path); err != nil {
		t.Fatalf("WriteReport: %v", err)
	}
	loaded, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(loaded) == 0 {
		t.Error("report file is empty")
	}
}
