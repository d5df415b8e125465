package adapter

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kiwivoice/kiwi/internal/bus"
	"github.com/kiwivoice/kiwi/internal/event"
	"github.com/kiwivoice/kiwi/internal/memory"
)

// MemoryAdapter records finished conversation turns into the memory
// subsystem. Only settled responses are written: waiting_input turns are
// fragments of a dialogue still in progress and would pollute recall.
type MemoryAdapter struct {
	bus    *bus.Bus
	memory *memory.Manager
	log    *slog.Logger
	stats  *stats

	sub *bus.Subscription
}

var _ Module = (*MemoryAdapter)(nil)

// MemoryDeps carries the memory adapter's dependencies.
type MemoryDeps struct {
	Bus    *bus.Bus
	Memory *memory.Manager
	Logger *slog.Logger
}

func NewMemoryAdapter(deps MemoryDeps) *MemoryAdapter {
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}
	return &MemoryAdapter{
		bus:    deps.Bus,
		memory: deps.Memory,
		log:    log.With("module", "memory"),
		stats:  newStats(),
	}
}

func (a *MemoryAdapter) Name() string { return "memory" }

func (a *MemoryAdapter) Initialize(context.Context) error {
	if a.bus == nil || a.memory == nil {
		return fmt.Errorf("adapter: memory: bus and memory manager are required")
	}
	sub, err := a.bus.Subscribe(event.KindAgentResponse, a.onResponse, bus.WithWorker(32))
	if err != nil {
		return fmt.Errorf("adapter: memory: %w", err)
	}
	a.sub = sub
	return nil
}

func (a *MemoryAdapter) Start(context.Context) error { return nil }

func (a *MemoryAdapter) Stop(context.Context) error {
	if a.sub != nil {
		a.bus.Unsubscribe(a.sub)
		a.sub = nil
	}
	return nil
}

func (a *MemoryAdapter) Cleanup() error { return nil }

func (a *MemoryAdapter) Statistics() map[string]any { return a.stats.snapshot() }

func (a *MemoryAdapter) onResponse(ev event.Event) {
	resp, ok := ev.Payload.(event.AgentResponse)
	if !ok {
		return
	}
	if resp.Status == event.StatusWaitingInput || resp.Query == "" {
		return
	}

	turn := memory.ShortTermMemory{
		Query:     resp.Query,
		Response:  resp.Message,
		Agent:     resp.Agent,
		Success:   resp.Status != event.StatusError,
		ToolsUsed: toolsUsed(resp.Data),
	}
	if err := a.memory.Append(context.Background(), turn); err != nil {
		a.stats.inc("errors")
		a.log.Warn("turn not recorded", "error", err)
		return
	}
	a.stats.inc("turns_recorded")
}

func toolsUsed(data map[string]any) []string {
	raw, ok := data["tools_used"].([]string)
	if ok {
		return raw
	}
	anys, ok := data["tools_used"].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(anys))
	for _, v := range anys {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
