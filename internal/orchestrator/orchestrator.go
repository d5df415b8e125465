// Package orchestrator decides which agent handles an utterance. It prefers
// an LLM with a structured JSON prompt; when no model is configured or the
// call fails, a fuzzy keyword matcher over agent capabilities takes over, so
// routing never dies with the LLM backend.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/kiwivoice/kiwi/internal/hotctx"
	"github.com/kiwivoice/kiwi/internal/session"
	"github.com/kiwivoice/kiwi/pkg/provider/llm"
	"github.com/kiwivoice/kiwi/pkg/types"
)

// DefaultAgent receives everything no other agent claims.
const DefaultAgent = "chat_agent"

// SessionAction tells the agent adapter how to bind the decision to a session.
type SessionAction string

const (
	// ActionNew starts a fresh session for the selected agent.
	ActionNew SessionAction = "new"

	// ActionResume routes the utterance to the active waiting session as the
	// answer it has been waiting for.
	ActionResume SessionAction = "resume"
)

// AgentInfo describes one routable agent.
type AgentInfo struct {
	Name          string
	Description   string
	Capabilities  []string
	Priority      int
	Interruptible bool
	Enabled       bool
}

// Input carries the utterance and everything the decision can draw on.
type Input struct {
	Query  string
	UserID string

	// Turn is the assembled conversational context for this utterance. Nil
	// reads as a blank slate; routing then rests on the query alone.
	Turn *hotctx.TurnContext

	Agents []AgentInfo
}

func (in Input) turn() *hotctx.TurnContext {
	if in.Turn == nil {
		return &hotctx.TurnContext{}
	}
	return in.Turn
}

// Decision is the routing outcome.
type Decision struct {
	SelectedAgent string         `json:"selected_agent"`
	Action        SessionAction  `json:"-"`
	Confidence    float64        `json:"confidence"`
	Reasoning     string         `json:"reasoning"`
	Parameters    map[string]any `json:"parameters"`
}

// Config configures an Orchestrator.
type Config struct {
	// Model drives both selection and answer classification. Nil routes
	// everything through the rule matcher.
	Model llm.Provider

	Logger *slog.Logger
}

// Orchestrator is safe for concurrent use.
type Orchestrator struct {
	model llm.Provider
	rules *ruleMatcher
	log   *slog.Logger

	mu    sync.Mutex
	stats Statistics
}

// Statistics counts decisions by path.
type Statistics struct {
	TotalQueries  int64
	LLMDecisions  int64
	RuleFallbacks int64
	Resumes       int64
}

// New creates an Orchestrator.
func New(cfg Config) *Orchestrator {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Orchestrator{
		model: cfg.Model,
		rules: newRuleMatcher(),
		log:   log.With("component", "orchestrator"),
	}
}

// Decide routes one utterance. It never returns an error: every failure path
// degrades to the rule matcher and ultimately to the default agent.
func (o *Orchestrator) Decide(ctx context.Context, in Input) Decision {
	o.mu.Lock()
	o.stats.TotalQueries++
	o.mu.Unlock()

	// A session waiting for input gets first claim on the utterance.
	if active := in.turn().ActiveSession; active != nil && active.State == session.StateWaitingInput {
		if o.isAnswerToPending(ctx, active, in.Query) {
			o.mu.Lock()
			o.stats.Resumes++
			o.mu.Unlock()
			return Decision{
				SelectedAgent: active.Agent,
				Action:        ActionResume,
				Confidence:    0.9,
				Reasoning:     "utterance answers the pending question",
			}
		}
	}

	d := o.selectAgent(ctx, in)
	d.Action = ActionNew
	return d
}

// Stats returns a copy of the counters.
func (o *Orchestrator) Stats() Statistics {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.stats
}

// isAnswerToPending classifies an utterance against the active session's
// pending prompt. Without a model the conservative default is to treat it as
// the answer, matching what a human operator would assume mid-dialogue.
func (o *Orchestrator) isAnswerToPending(ctx context.Context, pending *session.Session, query string) bool {
	if o.model == nil {
		return true
	}

	prompt := fmt.Sprintf(`An assistant asked the user:
%q

The user then said:
%q

Is the user's utterance an answer to the assistant's question, or a new unrelated request?
Reply with exactly one word: "answer" or "new".`, pending.Prompt, query)

	resp, err := o.model.Complete(ctx, llm.CompletionRequest{
		Messages:    []types.Message{{Role: "user", Content: prompt}},
		Temperature: 0.1,
	})
	if err != nil {
		o.log.Warn("answer classification failed, assuming answer", "error", err)
		return true
	}
	return !strings.Contains(strings.ToLower(resp.Content), "new")
}

// selectAgent picks an agent for a fresh intent.
func (o *Orchestrator) selectAgent(ctx context.Context, in Input) Decision {
	if o.model != nil {
		if d, err := o.llmSelect(ctx, in); err == nil {
			o.mu.Lock()
			o.stats.LLMDecisions++
			o.mu.Unlock()
			return d
		} else {
			o.log.Warn("llm selection failed, falling back to rules", "error", err)
		}
	}

	o.mu.Lock()
	o.stats.RuleFallbacks++
	o.mu.Unlock()
	return o.rules.match(in.Query, in.Agents)
}

const selectSystemPrompt = "You are the decision center of an in-car voice assistant. Analyze the user's intent and select the agent best suited to handle the request."

func (o *Orchestrator) llmSelect(ctx context.Context, in Input) (Decision, error) {
	prompt, err := buildSelectionPrompt(in)
	if err != nil {
		return Decision{}, err
	}

	resp, err := o.model.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: selectSystemPrompt,
		Messages:     []types.Message{{Role: "user", Content: prompt}},
		Temperature:  0.3,
	})
	if err != nil {
		return Decision{}, fmt.Errorf("orchestrator: llm decision: %w", err)
	}

	var d Decision
	if err := json.Unmarshal([]byte(extractJSONObject(resp.Content)), &d); err != nil {
		return Decision{}, fmt.Errorf("orchestrator: decision not parseable: %w", err)
	}
	if d.SelectedAgent == "" || !agentKnown(d.SelectedAgent, in.Agents) {
		return Decision{}, fmt.Errorf("orchestrator: llm selected unknown agent %q", d.SelectedAgent)
	}
	if d.Parameters == nil {
		d.Parameters = map[string]any{}
	}
	return d, nil
}

func buildSelectionPrompt(in Input) (string, error) {
	type agentDesc struct {
		Name         string   `json:"name"`
		Description  string   `json:"description"`
		Capabilities []string `json:"capabilities"`
	}
	agents := make([]agentDesc, 0, len(in.Agents))
	for _, a := range in.Agents {
		if !a.Enabled {
			continue
		}
		agents = append(agents, agentDesc{a.Name, a.Description, a.Capabilities})
	}
	agentsJSON, err := json.MarshalIndent(agents, "", "  ")
	if err != nil {
		return "", fmt.Errorf("orchestrator: encode agents: %w", err)
	}

	tc := in.turn()

	type turn struct {
		User      string `json:"user"`
		Assistant string `json:"assistant"`
	}
	history := make([]turn, len(tc.Recent))
	for i, m := range tc.Recent {
		history[i] = turn{User: m.Query, Assistant: m.Response}
	}
	historyJSON, err := json.MarshalIndent(history, "", "  ")
	if err != nil {
		return "", fmt.Errorf("orchestrator: encode history: %w", err)
	}

	related := make([]turn, len(tc.Related))
	for i, m := range tc.Related {
		related[i] = turn{User: m.Query, Assistant: m.Response}
	}
	relatedJSON, err := json.MarshalIndent(related, "", "  ")
	if err != nil {
		return "", fmt.Errorf("orchestrator: encode related: %w", err)
	}

	var profile string
	if tc.LongTerm != nil {
		profileJSON, _ := json.MarshalIndent(tc.LongTerm.Profile, "", "  ")
		prefsJSON, _ := json.MarshalIndent(tc.LongTerm.Preferences, "", "  ")
		profile = fmt.Sprintf("Summary: %s\nProfile: %s\nPreferences: %s",
			tc.LongTerm.Summary, profileJSON, prefsJSON)
	}

	return fmt.Sprintf(`User query:
%s

Conversation history:
%s

Similar past exchanges:
%s

User profile:
%s

Vehicle status:
%s

Available agents:
%s

Requirements:
1. Analyze the intent behind the user's query.
2. Consider the conversation history and the user's preferences.
3. Select exactly one agent from the list above.
4. When the query spans multiple domains or needs multi-step coordination, select "planner_agent".
5. When the query is unclear or no agent fits, select "%s".

Output a single valid JSON object and nothing else:
{
  "selected_agent": "...",
  "confidence": 0.95,
  "reasoning": "...",
  "parameters": {}
}`, in.Query, historyJSON, relatedJSON, profile,
		hotctx.FormatVehicleStatus(tc.Vehicle), agentsJSON, DefaultAgent), nil
}

func agentKnown(name string, agents []AgentInfo) bool {
	for _, a := range agents {
		if a.Name == name && a.Enabled {
			return true
		}
	}
	return false
}

func extractJSONObject(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return s
	}
	return s[start : end+1]
}
