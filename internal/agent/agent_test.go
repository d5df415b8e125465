package agent

import (
	"context"
	"fmt"
	"testing"

	"github.com/kiwivoice/kiwi/internal/execution"
	"github.com/kiwivoice/kiwi/internal/hotctx"
	"github.com/kiwivoice/kiwi/internal/memory"
	"github.com/kiwivoice/kiwi/pkg/provider/llm"
	"github.com/kiwivoice/kiwi/pkg/provider/llm/mock"
	"github.com/kiwivoice/kiwi/pkg/types"
)

func newVehicleRegistry(t *testing.T) (*execution.Registry, *execution.StateStore) {
	t.Helper()
	store := execution.NewStateStore()
	reg := execution.NewRegistry(store)
	if err := execution.RegisterCatalog(reg); err != nil {
		t.Fatalf("RegisterCatalog: %v", err)
	}
	return reg, store
}

// ────────────────────────────────────────────────────────────────────────────
// ToolAgent
// ────────────────────────────────────────────────────────────────────────────

func TestToolAgentExecutesCallsAndSummarizes(t *testing.T) {
	t.Parallel()
	reg, store := newVehicleRegistry(t)

	model := mock.New("").
		EnqueueToolCall("c1", "set_temperature", `{"zone": "driver", "temperature": 26}`).
		EnqueueText("Driver temperature is set to twenty-six degrees.")
	a := NewToolAgent(Info{Name: "climate_agent", Description: "climate control"}, model, reg,
		[]execution.Category{execution.CategoryClimate}, nil)

	resp, err := a.Handle(context.Background(), "set my temperature to 26", &Context{UserID: "u1"})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if resp.Status != StatusCompleted {
		t.Fatalf("status = %s, want completed", resp.Status)
	}
	if resp.Message != "Driver temperature is set to twenty-six degrees." {
		t.Errorf("message = %q", resp.Message)
	}

	if temp := store.Snapshot().Temperature["driver"]; temp != 26 {
		t.Errorf("driver temperature = %v, want 26", temp)
	}

	// Second request carries the tool transcript back to the model.
	reqs := model.Requests()
	if len(reqs) != 2 {
		t.Fatalf("requests = %d, want 2", len(reqs))
	}
	if len(reqs[0].Tools) == 0 {
		t.Errorf("first request offered no tools")
	}
	var sawToolMsg bool
	for _, m := range reqs[1].Messages {
		if m.Role == "tool" && m.ToolCallID == "c1" {
			sawToolMsg = true
		}
	}
	if !sawToolMsg {
		t.Errorf("summary request missing tool result message: %+v", reqs[1].Messages)
	}
}

func TestToolAgentOffersOnlyItsCategories(t *testing.T) {
	t.Parallel()
	reg, _ := newVehicleRegistry(t)
	model := mock.New("ok")
	a := NewToolAgent(Info{Name: "climate_agent"}, model, reg,
		[]execution.Category{execution.CategoryClimate}, nil)

	if _, err := a.Handle(context.Background(), "hi", nil); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	for _, def := range model.Requests()[0].Tools {
		if def.Name == "start_navigation" || def.Name == "start_engine" {
			t.Errorf("tool %q offered outside the climate category", def.Name)
		}
	}
}

func TestToolAgentSummaryFallback(t *testing.T) {
	t.Parallel()
	reg, _ := newVehicleRegistry(t)

	// Two calls, one of which fails (set_fan_speed out of range), then the
	// phrasing turn returns empty content.
	model := mock.New("").
		Enqueue(llm.CompletionResponse{ToolCalls: []types.ToolCall{
			{ID: "c1", Name: "turn_on_ac", Arguments: `{}`},
			{ID: "c2", Name: "set_fan_speed", Arguments: `{"speed": 99}`},
		}}).
		EnqueueText("")
	a := NewToolAgent(Info{Name: "climate_agent"}, model, reg, nil, nil)

	resp, err := a.Handle(context.Background(), "cool me down", nil)
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if resp.Status != StatusCompleted {
		t.Fatalf("status = %s", resp.Status)
	}
	if resp.Message != "Executed 2 operations, 1 succeeded." {
		t.Errorf("fallback message = %q", resp.Message)
	}
}

func TestToolAgentStructuredNeedInput(t *testing.T) {
	t.Parallel()
	reg, _ := newVehicleRegistry(t)
	model := mock.New(`{"need_input": true, "message": "Which zone should I heat?"}`)
	a := NewToolAgent(Info{Name: "climate_agent"}, model, reg, nil, nil)

	resp, err := a.Handle(context.Background(), "turn on the seat heating", nil)
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if resp.Status != StatusWaitingInput {
		t.Fatalf("status = %s, want waiting_input", resp.Status)
	}
	if resp.Prompt != "Which zone should I heat?" {
		t.Errorf("prompt = %q", resp.Prompt)
	}
}

func TestToolAgentQuestionHeuristic(t *testing.T) {
	t.Parallel()
	reg, _ := newVehicleRegistry(t)
	model := mock.New("Which playlist would you like, jazz or rock?")
	a := NewToolAgent(Info{Name: "music_agent"}, model, reg, nil, nil)

	resp, _ := a.Handle(context.Background(), "play something", nil)
	if resp.Status != StatusWaitingInput {
		t.Errorf("status = %s, a bare question should wait for input", resp.Status)
	}

	model2 := mock.New("Playing your favorites now.")
	a2 := NewToolAgent(Info{Name: "music_agent"}, model2, reg, nil, nil)
	resp2, _ := a2.Handle(context.Background(), "play something", nil)
	if resp2.Status != StatusCompleted {
		t.Errorf("status = %s, a statement should complete", resp2.Status)
	}
}

func TestToolAgentLLMFailure(t *testing.T) {
	t.Parallel()
	reg, _ := newVehicleRegistry(t)
	model := mock.New("")
	model.Err = fmt.Errorf("backend down")
	a := NewToolAgent(Info{Name: "climate_agent"}, model, reg, nil, nil)

	resp, err := a.Handle(context.Background(), "turn on the ac", nil)
	if err != nil {
		t.Fatalf("Handle must degrade, not error: %v", err)
	}
	if resp.Status != StatusError {
		t.Errorf("status = %s, want error", resp.Status)
	}
}

// ────────────────────────────────────────────────────────────────────────────
// ChatAgent
// ────────────────────────────────────────────────────────────────────────────

func TestChatAgentCarriesHistoryAndProfile(t *testing.T) {
	t.Parallel()
	model := mock.New("Nice to hear from you again!")
	a := NewChatAgent(Info{Name: "chat_agent"}, model, nil)

	actx := &Context{
		Turn: &hotctx.TurnContext{
			Recent: []memory.ShortTermMemory{{Query: "how are you", Response: "doing great"}},
		},
	}
	resp, err := a.Handle(context.Background(), "tell me a joke", actx)
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if resp.Status != StatusCompleted {
		t.Fatalf("status = %s", resp.Status)
	}

	req := model.Requests()[0]
	if len(req.Messages) != 3 {
		t.Errorf("messages = %d, want history pair + query", len(req.Messages))
	}
}

func TestChatAgentWithoutModel(t *testing.T) {
	t.Parallel()
	a := NewChatAgent(Info{Name: "chat_agent"}, nil, nil)
	resp, err := a.Handle(context.Background(), "hello", nil)
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if resp.Status != StatusCompleted || resp.Message == "" {
		t.Errorf("response = %+v", resp)
	}
}

// ────────────────────────────────────────────────────────────────────────────
// SessionAgent
// ────────────────────────────────────────────────────────────────────────────

func hotelSlots() []Slot {
	return []Slot{
		{Key: "city", Prompt: "Which city is the hotel in?"},
		{Key: "check_in", Prompt: "When do you check in?"},
		{Key: "room_type", Prompt: "What kind of room would you like?"},
	}
}

func TestSessionAgentCollectsSlotsAcrossTurns(t *testing.T) {
	t.Parallel()
	a, err := NewSessionAgent(Info{Name: "hotel_agent", Description: "hotel booking"}, nil, hotelSlots(), nil)
	if err != nil {
		t.Fatalf("NewSessionAgent: %v", err)
	}

	actx := &Context{SessionContext: map[string]any{}}

	resp, _ := a.Handle(context.Background(), "book me a hotel in Munich", actx)
	if resp.Status != StatusWaitingInput {
		t.Fatalf("turn 1 status = %s", resp.Status)
	}
	if resp.Prompt != "When do you check in?" {
		t.Errorf("turn 1 prompt = %q", resp.Prompt)
	}

	resp, _ = a.Handle(context.Background(), "next friday", actx)
	if resp.Status != StatusWaitingInput || resp.Prompt != "What kind of room would you like?" {
		t.Fatalf("turn 2 = %+v", resp)
	}

	resp, _ = a.Handle(context.Background(), "a double room", actx)
	if resp.Status != StatusCompleted {
		t.Fatalf("turn 3 status = %s", resp.Status)
	}
	if actx.SessionContext["check_in"] != "next friday" {
		t.Errorf("session context = %v", actx.SessionContext)
	}
}

func TestSessionAgentLLMExtractionFillsMultipleSlots(t *testing.T) {
	t.Parallel()
	model := mock.New("").
		EnqueueText(`{"city": "Munich", "check_in": "2026-09-01"}`).
		EnqueueText("unused")
	a, err := NewSessionAgent(Info{Name: "hotel_agent"}, model, hotelSlots(), nil)
	if err != nil {
		t.Fatalf("NewSessionAgent: %v", err)
	}

	actx := &Context{SessionContext: map[string]any{}}
	resp, _ := a.Handle(context.Background(), "a hotel in Munich from the first of September", actx)
	if resp.Status != StatusWaitingInput {
		t.Fatalf("status = %s", resp.Status)
	}
	if resp.Prompt != "What kind of room would you like?" {
		t.Errorf("prompt = %q, two slots should be filled in one turn", resp.Prompt)
	}
}

func TestSessionAgentResumesFromSavedContext(t *testing.T) {
	t.Parallel()
	a, err := NewSessionAgent(Info{Name: "hotel_agent"}, nil, hotelSlots(), nil)
	if err != nil {
		t.Fatalf("NewSessionAgent: %v", err)
	}

	// Context restored from a paused session with two slots already filled.
	actx := &Context{SessionContext: map[string]any{"city": "Berlin", "check_in": "tomorrow"}}
	resp, _ := a.Handle(context.Background(), "a single room", actx)
	if resp.Status != StatusCompleted {
		t.Errorf("status = %s, want completed after the final slot", resp.Status)
	}
}

func TestSessionAgentRejectsBadSlotConfig(t *testing.T) {
	t.Parallel()
	if _, err := NewSessionAgent(Info{Name: "x"}, nil, nil, nil); err == nil {
		t.Error("empty slot list must fail")
	}
	dup := []Slot{{Key: "a", Prompt: "p"}, {Key: "a", Prompt: "q"}}
	if _, err := NewSessionAgent(Info{Name: "x"}, nil, dup, nil); err == nil {
		t.Error("duplicate slot keys must fail")
	}
}

// ────────────────────────────────────────────────────────────────────────────
// Registry
// ────────────────────────────────────────────────────────────────────────────

func TestRegistryRegisterAndLookup(t *testing.T) {
	t.Parallel()
	r := NewRegistry()
	chat := NewChatAgent(Info{Name: "chat_agent", Enabled: true}, nil, nil)
	if err := r.Register(chat); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := r.Register(chat); err == nil {
		t.Error("duplicate registration must fail")
	}
	if _, err := r.Get("chat_agent"); err != nil {
		t.Errorf("Get: %v", err)
	}
	if _, err := r.Get("nope"); err == nil {
		t.Error("unknown agent must fail")
	}
	if infos := r.Infos(); len(infos) != 1 || infos[0].Name != "chat_agent" {
		t.Errorf("Infos = %+v", infos)
	}
}

func TestRegistryUpdateInfo(t *testing.T) {
	t.Parallel()
	r := NewRegistry()
	chat := NewChatAgent(Info{Name: "chat_agent", Priority: 10, Enabled: true}, nil, nil)
	if err := r.Register(chat); err != nil {
		t.Fatalf("Register: %v", err)
	}

	updated := Info{
		Name:          "renamed",
		Description:   "casual talk",
		Capabilities:  []string{"chat", "smalltalk"},
		Priority:      70,
		Interruptible: true,
		Enabled:       false,
	}
	if err := r.UpdateInfo("chat_agent", updated); err != nil {
		t.Fatalf("UpdateInfo: %v", err)
	}

	got, ok := r.InfoOf("chat_agent")
	if !ok {
		t.Fatal("InfoOf after update")
	}
	if got.Name != "chat_agent" {
		t.Errorf("Name = %q, update must not rename", got.Name)
	}
	if got.Priority != 70 || !got.Interruptible || got.Enabled {
		t.Errorf("info = %+v", got)
	}

	// The routing surface follows the registry, not the agent's own view.
	if infos := r.Infos(); infos[0].Priority != 70 {
		t.Errorf("Infos after update = %+v", infos)
	}
	if ai := chat.Info(); ai.Priority != 10 {
		t.Errorf("agent's own info changed: %+v", ai)
	}

	if err := r.UpdateInfo("ghost", updated); err == nil {
		t.Error("updating an unregistered agent must fail")
	}
	if _, ok := r.InfoOf("ghost"); ok {
		t.Error("InfoOf unknown agent must report false")
	}
}
