package adapter

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kiwivoice/kiwi/internal/agent"
	"github.com/kiwivoice/kiwi/internal/bus"
	"github.com/kiwivoice/kiwi/internal/event"
	"github.com/kiwivoice/kiwi/internal/hotctx"
	"github.com/kiwivoice/kiwi/internal/orchestrator"
	"github.com/kiwivoice/kiwi/internal/tracker"
)

// OrchestratorAdapter turns recognized utterances into dispatch requests. For
// every ASR success it assembles the user's turn context, asks the
// orchestrator for a routing decision, and publishes the dispatch.
type OrchestratorAdapter struct {
	bus       *bus.Bus
	orch      *orchestrator.Orchestrator
	assembler *hotctx.Assembler
	tracker   *tracker.Tracker
	agents    *agent.Registry
	log       *slog.Logger
	stats     *stats

	sub *bus.Subscription
}

var _ Module = (*OrchestratorAdapter)(nil)

// OrchestratorDeps carries the orchestrator adapter's dependencies.
type OrchestratorDeps struct {
	Bus          *bus.Bus
	Orchestrator *orchestrator.Orchestrator
	Assembler    *hotctx.Assembler
	Tracker      *tracker.Tracker
	Agents       *agent.Registry
	Logger       *slog.Logger
}

func NewOrchestratorAdapter(deps OrchestratorDeps) *OrchestratorAdapter {
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}
	return &OrchestratorAdapter{
		bus:       deps.Bus,
		orch:      deps.Orchestrator,
		assembler: deps.Assembler,
		tracker:   deps.Tracker,
		agents:    deps.Agents,
		log:       log.With("module", "orchestrator"),
		stats:     newStats(),
	}
}

func (a *OrchestratorAdapter) Name() string { return "orchestrator" }

func (a *OrchestratorAdapter) Initialize(context.Context) error {
	if a.bus == nil || a.orch == nil || a.assembler == nil || a.tracker == nil || a.agents == nil {
		return fmt.Errorf("adapter: orchestrator: bus, orchestrator, assembler, tracker, and agents are required")
	}
	sub, err := a.bus.Subscribe(event.KindASRSuccess, a.onRecognition, bus.WithWorker(8))
	if err != nil {
		return fmt.Errorf("adapter: orchestrator: %w", err)
	}
	a.sub = sub
	return nil
}

func (a *OrchestratorAdapter) Start(context.Context) error { return nil }

func (a *OrchestratorAdapter) Stop(context.Context) error {
	if a.sub != nil {
		a.bus.Unsubscribe(a.sub)
		a.sub = nil
	}
	return nil
}

func (a *OrchestratorAdapter) Cleanup() error { return nil }

func (a *OrchestratorAdapter) Statistics() map[string]any { return a.stats.snapshot() }

func (a *OrchestratorAdapter) onRecognition(ev event.Event) {
	result, ok := ev.Payload.(event.ASRResult)
	if !ok {
		return
	}
	a.stats.inc("decisions")

	tc, err := a.assembler.Assemble(context.Background(), result.UserID, result.Text)
	if err != nil {
		a.log.Warn("turn context assembly failed, deciding without it", "error", err)
		tc = &hotctx.TurnContext{}
	}

	in := orchestrator.Input{
		Query:  result.Text,
		UserID: result.UserID,
		Turn:   tc,
		Agents: routableAgents(a.agents),
	}

	decision := a.orch.Decide(context.Background(), in)
	a.tracker.Append(ev.MessageID, "orchestrator", result.Text,
		fmt.Sprintf("%s (%s, %.2f)", decision.SelectedAgent, decision.Action, decision.Confidence))
	a.log.Info("routing decision",
		"agent", decision.SelectedAgent, "action", decision.Action,
		"confidence", decision.Confidence, "reasoning", decision.Reasoning)

	dispatch := event.AgentDispatch{
		Query:      result.Text,
		Agent:      decision.SelectedAgent,
		UserID:     result.UserID,
		Confidence: decision.Confidence,
		Reasoning:  decision.Reasoning,
		Parameters: decision.Parameters,
	}
	switch decision.Action {
	case orchestrator.ActionResume:
		dispatch.Action = event.SessionResume
		if tc.ActiveSession != nil {
			dispatch.SessionID = tc.ActiveSession.ID
		}
	default:
		dispatch.Action = event.SessionNew
	}

	out := event.New(event.KindAgentDispatchRequest, a.Name())
	out.MessageID = ev.MessageID
	out.Payload = dispatch
	a.bus.Publish(out)
}

// routableAgents projects the registry into the orchestrator's view.
func routableAgents(reg *agent.Registry) []orchestrator.AgentInfo {
	infos := reg.Infos()
	out := make([]orchestrator.AgentInfo, 0, len(infos))
	for _, info := range infos {
		out = append(out, orchestrator.AgentInfo{
			Name:          info.Name,
			Description:   info.Description,
			Capabilities:  info.Capabilities,
			Priority:      info.Priority,
			Interruptible: info.Interruptible,
			Enabled:       info.Enabled,
		})
	}
	return out
}
