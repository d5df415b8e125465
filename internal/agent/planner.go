package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/kiwivoice/kiwi/pkg/provider/llm"
	"github.com/kiwivoice/kiwi/pkg/types"
)

// plannerStateKey is where a suspended plan lives inside the session context.
// The state is stored as a JSON string so the session context stays plain
// data regardless of how it is persisted.
const plannerStateKey = "planner_state"

// Task is one step of a plan. IDs start at 1 and DependsOn lists the ids that
// must complete before this task may run.
type Task struct {
	ID          int    `json:"task_id"`
	Description string `json:"description"`
	Agent       string `json:"agent"`
	DependsOn   []int  `json:"depends_on"`
}

// taskState tracks one task through execution.
type taskState struct {
	Task    Task           `json:"task"`
	Status  Status         `json:"status"`
	Message string         `json:"message"`
	Context map[string]any `json:"context,omitempty"`
}

// plannerState is the resumable snapshot of a plan in flight. It is written
// to the session context whenever a task blocks on user input.
type plannerState struct {
	Query     string       `json:"query"`
	Tasks     []*taskState `json:"tasks"`
	WaitingID int          `json:"waiting_id"`
}

// PlannerAgent decomposes a multi-intent query into a task plan, dispatches
// each task to the named agent in dependency order, and phrases a combined
// summary. Independent tasks run concurrently; a failed task aborts only the
// tasks that depend on it. When a sub-agent asks a follow-up question the
// whole plan suspends into the session context and resumes with the answer.
type PlannerAgent struct {
	info     Info
	model    llm.Provider
	registry *Registry
	log      *slog.Logger
}

var _ Agent = (*PlannerAgent)(nil)

// NewPlannerAgent creates a PlannerAgent dispatching into registry.
func NewPlannerAgent(info Info, model llm.Provider, registry *Registry, log *slog.Logger) *PlannerAgent {
	if log == nil {
		log = slog.Default()
	}
	return &PlannerAgent{info: info, model: model, registry: registry, log: log.With("agent", info.Name)}
}

// Info implements Agent.
func (a *PlannerAgent) Info() Info { return a.info }

// Handle implements Agent.
func (a *PlannerAgent) Handle(ctx context.Context, query string, actx *Context) (Response, error) {
	if actx == nil {
		actx = &Context{}
	}
	if actx.SessionContext == nil {
		actx.SessionContext = make(map[string]any)
	}

	if raw, ok := actx.SessionContext[plannerStateKey].(string); ok && raw != "" {
		return a.resume(ctx, query, raw, actx)
	}

	if a.model == nil {
		return errorResponse(a.info.Name, query, "planning requires a language model"), nil
	}

	plan, err := a.buildPlan(ctx, query, actx)
	if err != nil {
		a.log.Warn("planning failed", "error", err)
		return errorResponse(a.info.Name, query, "Sorry, I could not break that request down."), nil
	}

	// A one-task plan means routing got it wrong; hand the query straight to
	// that agent instead of paying the plan machinery.
	if len(plan) == 1 {
		return a.redirect(ctx, query, plan[0], actx)
	}

	state := &plannerState{Query: query}
	for _, t := range plan {
		state.Tasks = append(state.Tasks, &taskState{Task: t, Status: "pending", Context: map[string]any{}})
	}
	return a.run(ctx, query, state, actx)
}

// ────────────────────────────────────────────────────────────────────────────
// Planning
// ────────────────────────────────────────────────────────────────────────────

func (a *PlannerAgent) buildPlan(ctx context.Context, query string, actx *Context) ([]Task, error) {
	resp, err := a.model.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: a.planningPrompt(),
		Messages:     []types.Message{{Role: "user", Content: query}},
		Temperature:  0.2,
	})
	if err != nil {
		return nil, fmt.Errorf("agent: plan completion: %w", err)
	}

	var plan []Task
	if err := json.Unmarshal([]byte(extractJSONArray(resp.Content)), &plan); err != nil {
		return nil, fmt.Errorf("agent: plan not parseable: %w", err)
	}
	if len(plan) == 0 {
		return nil, fmt.Errorf("agent: model produced an empty plan")
	}
	if err := validatePlan(plan); err != nil {
		return nil, err
	}
	return plan, nil
}

func (a *PlannerAgent) planningPrompt() string {
	var b strings.Builder
	b.WriteString("You split an in-car voice request into tasks for specialist agents.\n")
	b.WriteString("Available agents:\n")
	for _, info := range a.registry.Infos() {
		if !info.Enabled || info.Name == a.info.Name {
			continue
		}
		fmt.Fprintf(&b, "- %s: %s (capabilities: %s)\n", info.Name, info.Description, strings.Join(info.Capabilities, ", "))
	}
	b.WriteString("Reply with only a JSON array of tasks:\n")
	b.WriteString(`[{"task_id": 1, "description": "<what to do>", "agent": "<agent name>", "depends_on": []}]` + "\n")
	b.WriteString("task_id starts at 1. depends_on lists the task_ids whose results the task needs. Keep the plan minimal.")
	return b.String()
}

func validatePlan(plan []Task) error {
	ids := make(map[int]bool, len(plan))
	for _, t := range plan {
		if t.ID < 1 {
			return fmt.Errorf("agent: task id %d out of range", t.ID)
		}
		if ids[t.ID] {
			return fmt.Errorf("agent: duplicate task id %d", t.ID)
		}
		if t.Agent == "" {
			return fmt.Errorf("agent: task %d names no agent", t.ID)
		}
		ids[t.ID] = true
	}
	for _, t := range plan {
		for _, dep := range t.DependsOn {
			if !ids[dep] {
				return fmt.Errorf("agent: task %d depends on unknown task %d", t.ID, dep)
			}
			if dep == t.ID {
				return fmt.Errorf("agent: task %d depends on itself", t.ID)
			}
		}
	}
	return nil
}

// redirect hands a single-task plan directly to the named agent.
func (a *PlannerAgent) redirect(ctx context.Context, query string, t Task, actx *Context) (Response, error) {
	target, err := a.registry.Get(t.Agent)
	if err != nil {
		return errorResponse(a.info.Name, query, fmt.Sprintf("no agent can handle %q", t.Description)), nil
	}
	a.log.Info("single-task plan, redirecting", "target", t.Agent)
	resp, err := target.Handle(ctx, query, actx)
	if err != nil {
		return errorResponse(a.info.Name, query, "Sorry, that request failed."), nil
	}
	return resp, nil
}

// ────────────────────────────────────────────────────────────────────────────
// Execution
// ────────────────────────────────────────────────────────────────────────────

// run drives the plan until every task is terminal or one blocks on input.
func (a *PlannerAgent) run(ctx context.Context, query string, state *plannerState, actx *Context) (Response, error) {
	for {
		ready := readyTasks(state)
		if len(ready) == 0 {
			break
		}

		var mu sync.Mutex
		g, gctx := errgroup.WithContext(ctx)
		for _, ts := range ready {
			g.Go(func() error {
				resp := a.runTask(gctx, ts, actx)
				mu.Lock()
				ts.Status = resp.Status
				ts.Message = resp.Message
				if resp.Status == StatusWaitingInput {
					ts.Message = resp.Prompt
				}
				mu.Unlock()
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return errorResponse(a.info.Name, query, "Sorry, the plan was interrupted."), nil
		}

		abortDependents(state)

		// A blocked task suspends the whole plan. Concurrent waiters are
		// resolved one at a time, lowest task id first.
		if waiting := firstWaiting(state); waiting != nil {
			state.WaitingID = waiting.Task.ID
			if err := saveState(actx.SessionContext, state); err != nil {
				a.log.Error("planner state not serializable", "error", err)
				return errorResponse(a.info.Name, query, "Sorry, I lost track of that plan."), nil
			}
			return Response{
				Agent: a.info.Name, Query: query, Status: StatusWaitingInput,
				Message: waiting.Message, Prompt: waiting.Message,
			}, nil
		}
	}

	delete(actx.SessionContext, plannerStateKey)
	return a.summarize(ctx, query, state), nil
}

// resume feeds the user's answer to the task that asked for it and continues
// the plan.
func (a *PlannerAgent) resume(ctx context.Context, query, raw string, actx *Context) (Response, error) {
	var state plannerState
	if err := json.Unmarshal([]byte(raw), &state); err != nil {
		delete(actx.SessionContext, plannerStateKey)
		a.log.Error("planner state corrupt", "error", err)
		return errorResponse(a.info.Name, query, "Sorry, I lost track of that plan. Please try again."), nil
	}

	var waiting *taskState
	for _, ts := range state.Tasks {
		if ts.Task.ID == state.WaitingID {
			waiting = ts
			break
		}
	}
	if waiting == nil || waiting.Status != StatusWaitingInput {
		delete(actx.SessionContext, plannerStateKey)
		return errorResponse(a.info.Name, query, "Sorry, I lost track of that plan. Please try again."), nil
	}

	resp := a.runTaskWith(ctx, waiting, actx, query)
	waiting.Status = resp.Status
	waiting.Message = resp.Message
	if resp.Status == StatusWaitingInput {
		// Still blocked; keep the saved plan and re-ask.
		waiting.Message = resp.Prompt
		state.WaitingID = waiting.Task.ID
		if err := saveState(actx.SessionContext, &state); err != nil {
			return errorResponse(a.info.Name, query, "Sorry, I lost track of that plan."), nil
		}
		return Response{
			Agent: a.info.Name, Query: state.Query, Status: StatusWaitingInput,
			Message: resp.Prompt, Prompt: resp.Prompt,
		}, nil
	}

	// The answered turn ran with the user's reply; the rest of the plan
	// continues from the original query.
	return a.run(ctx, state.Query, &state, actx)
}

// runTask invokes one task's agent with a task-private session context.
func (a *PlannerAgent) runTask(ctx context.Context, ts *taskState, actx *Context) Response {
	return a.runTaskWith(ctx, ts, actx, ts.Task.Description)
}

// runTaskWith runs a task with an explicit utterance; resume uses it to
// deliver the user's answer instead of the task description.
func (a *PlannerAgent) runTaskWith(ctx context.Context, ts *taskState, actx *Context, taskQuery string) Response {
	target, err := a.registry.Get(ts.Task.Agent)
	if err != nil {
		a.log.Warn("plan names unknown agent", "task", ts.Task.ID, "agent", ts.Task.Agent)
		return Response{Status: StatusError, Message: fmt.Sprintf("agent %q is not available", ts.Task.Agent)}
	}

	if ts.Context == nil {
		ts.Context = map[string]any{}
	}
	sub := &Context{
		UserID:         actx.UserID,
		SessionContext: ts.Context,
		Turn:           actx.Turn,
	}

	resp, err := target.Handle(ctx, taskQuery, sub)
	if err != nil {
		a.log.Warn("task failed", "task", ts.Task.ID, "agent", ts.Task.Agent, "error", err)
		return Response{Status: StatusError, Message: err.Error()}
	}
	return resp
}

// readyTasks returns pending tasks whose dependencies have all completed.
func readyTasks(state *plannerState) []*taskState {
	byID := make(map[int]*taskState, len(state.Tasks))
	for _, ts := range state.Tasks {
		byID[ts.Task.ID] = ts
	}
	var ready []*taskState
	for _, ts := range state.Tasks {
		if ts.Status != "pending" {
			continue
		}
		ok := true
		for _, dep := range ts.Task.DependsOn {
			if d := byID[dep]; d == nil || (d.Status != StatusCompleted && d.Status != StatusSuccess) {
				ok = false
				break
			}
		}
		if ok {
			ready = append(ready, ts)
		}
	}
	sort.Slice(ready, func(i, j int) bool { return ready[i].Task.ID < ready[j].Task.ID })
	return ready
}

// abortDependents marks pending tasks whose dependency chain can never
// complete. Applied repeatedly so aborts cascade.
func abortDependents(state *plannerState) {
	byID := make(map[int]*taskState, len(state.Tasks))
	for _, ts := range state.Tasks {
		byID[ts.Task.ID] = ts
	}
	for changed := true; changed; {
		changed = false
		for _, ts := range state.Tasks {
			if ts.Status != "pending" {
				continue
			}
			for _, dep := range ts.Task.DependsOn {
				d := byID[dep]
				if d != nil && (d.Status == StatusError || d.Status == "aborted") {
					ts.Status = "aborted"
					ts.Message = fmt.Sprintf("skipped, task %d did not complete", dep)
					changed = true
					break
				}
			}
		}
	}
}

func firstWaiting(state *plannerState) *taskState {
	for _, ts := range state.Tasks {
		if ts.Status == StatusWaitingInput {
			return ts
		}
	}
	return nil
}

func saveState(sessCtx map[string]any, state *plannerState) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("agent: encode planner state: %w", err)
	}
	sessCtx[plannerStateKey] = string(raw)
	return nil
}

// ────────────────────────────────────────────────────────────────────────────
// Summary
// ────────────────────────────────────────────────────────────────────────────

func (a *PlannerAgent) summarize(ctx context.Context, query string, state *plannerState) Response {
	completed, failed := 0, 0
	var lines []string
	results := make([]map[string]any, 0, len(state.Tasks))
	for _, ts := range state.Tasks {
		switch ts.Status {
		case StatusCompleted, StatusSuccess:
			completed++
		default:
			failed++
		}
		lines = append(lines, fmt.Sprintf("task %d (%s, %s): %s", ts.Task.ID, ts.Task.Agent, ts.Status, ts.Message))
		results = append(results, map[string]any{
			"task_id": ts.Task.ID, "agent": ts.Task.Agent,
			"status": string(ts.Status), "message": ts.Message,
		})
	}
	data := map[string]any{"tasks": results}

	status := StatusCompleted
	if completed == 0 {
		status = StatusError
	}
	fallback := fmt.Sprintf("Done: %d of %d tasks completed.", completed, len(state.Tasks))

	if a.model != nil {
		resp, err := a.model.Complete(ctx, llm.CompletionRequest{
			SystemPrompt: "Combine these task results into one short spoken reply for the driver. Mention anything that failed.",
			Messages:     []types.Message{{Role: "user", Content: strings.Join(lines, "\n")}},
			Temperature:  0.5,
		})
		if err == nil && strings.TrimSpace(resp.Content) != "" {
			return Response{Agent: a.info.Name, Query: query, Status: status, Message: resp.Content, Data: data}
		}
		if err != nil {
			a.log.Warn("summary phrasing failed", "error", err)
		}
	}
	return Response{Agent: a.info.Name, Query: query, Status: status, Message: fallback, Data: data}
}

func extractJSONArray(s string) string {
	start := strings.Index(s, "[")
	end := strings.LastIndex(s, "]")
	if start < 0 || end <= start {
		return s
	}
	return s[start : end+1]
}
