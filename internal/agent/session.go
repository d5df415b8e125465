package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kiwivoice/kiwi/pkg/provider/llm"
	"github.com/kiwivoice/kiwi/pkg/types"
)

// Slot is one piece of information a SessionAgent must collect before it can
// act, with the question it asks to collect it.
type Slot struct {
	Key    string `yaml:"key" json:"key"`
	Prompt string `yaml:"prompt" json:"prompt"`
}

// SessionAgent collects a fixed set of slots across turns. Each Handle call
// extracts whatever slot values the utterance carries, stores them in the
// session context, and either asks for the next missing slot (waiting_input)
// or confirms completion once every slot is filled. The collected values live
// entirely in Context.SessionContext, so a paused-and-resumed dialogue picks
// up exactly where it stopped.
type SessionAgent struct {
	info  Info
	model llm.Provider
	slots []Slot
	log   *slog.Logger
}

var _ Agent = (*SessionAgent)(nil)

// NewSessionAgent creates a SessionAgent over the given slots. At least one
// slot is required; without slots the agent degrades to a ChatAgent shape and
// there is no reason to pay the session machinery.
func NewSessionAgent(info Info, model llm.Provider, slots []Slot, log *slog.Logger) (*SessionAgent, error) {
	if len(slots) == 0 {
		return nil, fmt.Errorf("agent: session agent %q needs at least one slot", info.Name)
	}
	seen := make(map[string]bool, len(slots))
	for _, s := range slots {
		if s.Key == "" || s.Prompt == "" {
			return nil, fmt.Errorf("agent: session agent %q has a slot with empty key or prompt", info.Name)
		}
		if seen[s.Key] {
			return nil, fmt.Errorf("agent: session agent %q declares slot %q twice", info.Name, s.Key)
		}
		seen[s.Key] = true
	}
	if log == nil {
		log = slog.Default()
	}
	return &SessionAgent{info: info, model: model, slots: slots, log: log.With("agent", info.Name)}, nil
}

// Info implements Agent.
func (a *SessionAgent) Info() Info { return a.info }

// Handle implements Agent.
func (a *SessionAgent) Handle(ctx context.Context, query string, actx *Context) (Response, error) {
	if actx == nil {
		actx = &Context{}
	}
	if actx.SessionContext == nil {
		actx.SessionContext = make(map[string]any)
	}

	a.extract(ctx, query, actx.SessionContext)

	if missing := a.missingSlot(actx.SessionContext); missing != nil {
		return Response{
			Agent: a.info.Name, Query: query, Status: StatusWaitingInput,
			Message: missing.Prompt, Prompt: missing.Prompt,
			Data: map[string]any{"collected": collectedKeys(a.slots, actx.SessionContext)},
		}, nil
	}

	return a.confirm(ctx, query, actx)
}

// extract pulls slot values out of the utterance. With a model available the
// extraction is a structured completion over the remaining slots; without one
// the utterance fills the first empty slot verbatim, which keeps scripted
// dialogues working offline.
func (a *SessionAgent) extract(ctx context.Context, query string, sessCtx map[string]any) {
	if a.model == nil {
		if missing := a.missingSlot(sessCtx); missing != nil && strings.TrimSpace(query) != "" {
			sessCtx[missing.Key] = strings.TrimSpace(query)
		}
		return
	}

	resp, err := a.model.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: a.extractionPrompt(sessCtx),
		Messages:     []types.Message{{Role: "user", Content: query}},
		Temperature:  0.1,
	})
	if err != nil {
		a.log.Warn("slot extraction failed, filling verbatim", "error", err)
		if missing := a.missingSlot(sessCtx); missing != nil && strings.TrimSpace(query) != "" {
			sessCtx[missing.Key] = strings.TrimSpace(query)
		}
		return
	}

	var extracted map[string]any
	if err := json.Unmarshal([]byte(extractJSONObject(resp.Content)), &extracted); err != nil {
		a.log.Warn("slot extraction returned no JSON", "content", resp.Content)
		return
	}
	for _, s := range a.slots {
		v, ok := extracted[s.Key]
		if !ok {
			continue
		}
		if text, isStr := v.(string); isStr && strings.TrimSpace(text) == "" {
			continue
		}
		sessCtx[s.Key] = v
	}
}

func (a *SessionAgent) extractionPrompt(sessCtx map[string]any) string {
	var b strings.Builder
	b.WriteString("Extract values for the following fields from the user's message. ")
	b.WriteString("Reply with a single JSON object containing only the fields the message provides; omit the rest. No other text.\nFields:\n")
	for _, s := range a.slots {
		fmt.Fprintf(&b, "- %s (%s)\n", s.Key, s.Prompt)
	}
	if len(sessCtx) > 0 {
		if known, err := json.Marshal(sessCtx); err == nil {
			b.WriteString("Already collected: ")
			b.Write(known)
		}
	}
	return b.String()
}

func (a *SessionAgent) missingSlot(sessCtx map[string]any) *Slot {
	for i, s := range a.slots {
		if _, ok := sessCtx[s.Key]; !ok {
			return &a.slots[i]
		}
	}
	return nil
}

// confirm produces the terminal reply once every slot is filled.
func (a *SessionAgent) confirm(ctx context.Context, query string, actx *Context) (Response, error) {
	collected := make(map[string]any, len(a.slots))
	for _, s := range a.slots {
		collected[s.Key] = actx.SessionContext[s.Key]
	}
	data := map[string]any{"collected": collected}

	if a.model != nil {
		payload, _ := json.Marshal(collected)
		resp, err := a.model.Complete(ctx, llm.CompletionRequest{
			SystemPrompt: fmt.Sprintf("You are %s. %s\nAll required details are collected. Confirm the completed request to the user in one short spoken sentence.", a.info.Name, a.info.Description),
			Messages:     []types.Message{{Role: "user", Content: string(payload)}},
			Temperature:  0.5,
		})
		if err == nil && strings.TrimSpace(resp.Content) != "" {
			return Response{
				Agent: a.info.Name, Query: query, Status: StatusCompleted,
				Message: resp.Content, Data: data,
			}, nil
		}
		if err != nil {
			a.log.Warn("confirmation phrasing failed", "error", err)
		}
	}

	return Response{
		Agent: a.info.Name, Query: query, Status: StatusCompleted,
		Message: "All set, your request is confirmed.", Data: data,
	}, nil
}

func collectedKeys(slots []Slot, sessCtx map[string]any) []string {
	keys := make([]string, 0, len(slots))
	for _, s := range slots {
		if _, ok := sessCtx[s.Key]; ok {
			keys = append(keys, s.Key)
		}
	}
	return keys
}
