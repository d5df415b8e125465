package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kiwivoice/kiwi/internal/execution"
	"github.com/kiwivoice/kiwi/internal/hotctx"
	"github.com/kiwivoice/kiwi/pkg/provider/llm"
	"github.com/kiwivoice/kiwi/pkg/types"
)

// ToolAgent is the tool-using agent shape: it offers the model a slice of the
// vehicle tool catalog, executes whatever the model calls, then asks the
// model to phrase the outcome. A plain-text reply that reads as a question
// comes back as waiting_input, which gives single- and multi-turn behavior
// from one implementation.
type ToolAgent struct {
	info       Info
	model      llm.Provider
	registry   *execution.Registry
	categories []execution.Category
	log        *slog.Logger
}

var _ Agent = (*ToolAgent)(nil)

// NewToolAgent creates a ToolAgent limited to the given tool categories
// (none means the full catalog).
func NewToolAgent(info Info, model llm.Provider, registry *execution.Registry, categories []execution.Category, log *slog.Logger) *ToolAgent {
	if log == nil {
		log = slog.Default()
	}
	return &ToolAgent{
		info:       info,
		model:      model,
		registry:   registry,
		categories: categories,
		log:        log.With("agent", info.Name),
	}
}

// Info implements Agent.
func (a *ToolAgent) Info() Info { return a.info }

// Handle implements Agent.
func (a *ToolAgent) Handle(ctx context.Context, query string, actx *Context) (Response, error) {
	if a.model == nil {
		return errorResponse(a.info.Name, query, "no language model configured"), nil
	}

	messages := []types.Message{{Role: "user", Content: query}}
	resp, err := a.model.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: a.systemPrompt(actx),
		Messages:     messages,
		Tools:        a.registry.Definitions(a.categories...),
		Temperature:  0.3,
	})
	if err != nil {
		a.log.Warn("completion failed", "error", err)
		return errorResponse(a.info.Name, query, "Sorry, I could not process that."), nil
	}

	if len(resp.ToolCalls) > 0 {
		return a.runToolCalls(ctx, query, messages, resp.ToolCalls)
	}
	return a.classifyReply(query, resp.Content), nil
}

// runToolCalls executes every requested tool and has the model phrase a
// final reply over the results.
func (a *ToolAgent) runToolCalls(ctx context.Context, query string, messages []types.Message, calls []types.ToolCall) (Response, error) {
	messages = append(messages, types.Message{Role: "assistant", ToolCalls: calls})

	var toolsUsed []string
	var results []execution.Result
	for _, call := range calls {
		toolsUsed = append(toolsUsed, call.Name)
		result := a.executeCall(ctx, call)
		results = append(results, result)

		payload, err := json.Marshal(result)
		if err != nil {
			payload = []byte(`{"success":false,"message":"result not serializable"}`)
		}
		messages = append(messages, types.Message{
			Role: "tool", ToolCallID: call.ID, Content: string(payload),
		})
	}

	messages = append(messages, types.Message{
		Role:    "user",
		Content: "Summarize the tool results for the user in one short, natural spoken sentence.",
	})
	final, err := a.model.Complete(ctx, llm.CompletionRequest{Messages: messages, Temperature: 0.3})

	data := map[string]any{"tools_used": toolsUsed, "tool_results": results}
	if err != nil || strings.TrimSpace(final.Content) == "" {
		if err != nil {
			a.log.Warn("final phrasing failed", "error", err)
		}
		// Degraded summary straight from the results.
		succeeded := 0
		for _, r := range results {
			if r.Success {
				succeeded++
			}
		}
		return Response{
			Agent: a.info.Name, Query: query, Status: StatusCompleted,
			Message: fmt.Sprintf("Executed %d operations, %d succeeded.", len(results), succeeded),
			Data:    data,
		}, nil
	}

	return Response{
		Agent: a.info.Name, Query: query, Status: StatusCompleted,
		Message: final.Content, Data: data,
	}, nil
}

func (a *ToolAgent) executeCall(ctx context.Context, call types.ToolCall) execution.Result {
	var args map[string]any
	if call.Arguments != "" {
		if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil {
			return execution.Result{Success: false, Message: fmt.Sprintf("invalid arguments: %v", err)}
		}
	}
	a.log.Info("tool call", "tool", call.Name, "args", call.Arguments)
	result, err := a.registry.Execute(ctx, call.Name, args)
	if err != nil {
		return execution.Result{Success: false, Message: err.Error()}
	}
	return result
}

// classifyReply maps a plain-text model reply to a response status. The
// structured {"need_input": bool, "message": "..."} shape wins when present;
// otherwise the question heuristic decides.
func (a *ToolAgent) classifyReply(query, content string) Response {
	content = strings.TrimSpace(content)
	if content == "" {
		return errorResponse(a.info.Name, query, "the model returned an empty reply")
	}

	var structured struct {
		NeedInput *bool  `json:"need_input"`
		Message   string `json:"message"`
	}
	if err := json.Unmarshal([]byte(extractJSONObject(content)), &structured); err == nil &&
		structured.NeedInput != nil && structured.Message != "" {
		if *structured.NeedInput {
			return Response{
				Agent: a.info.Name, Query: query, Status: StatusWaitingInput,
				Message: structured.Message, Prompt: structured.Message,
			}
		}
		return Response{
			Agent: a.info.Name, Query: query, Status: StatusCompleted,
			Message: structured.Message,
		}
	}

	if isAskingQuestion(content) {
		return Response{
			Agent: a.info.Name, Query: query, Status: StatusWaitingInput,
			Message: content, Prompt: content,
		}
	}
	return Response{Agent: a.info.Name, Query: query, Status: StatusCompleted, Message: content}
}

func (a *ToolAgent) systemPrompt(actx *Context) string {
	var b strings.Builder
	b.WriteString("You are ")
	b.WriteString(a.info.Name)
	b.WriteString(", a specialist of an in-car voice assistant. ")
	b.WriteString(a.info.Description)
	b.WriteString("\nUse the provided tools to fulfil the request. When information is missing, reply with")
	b.WriteString(` {"need_input": true, "message": "<your question>"} and nothing else.`)
	b.WriteString(` When you can answer without tools, reply with {"need_input": false, "message": "<your answer>"}.`)

	turn := actx.TurnOrEmpty()
	if lt := turn.LongTerm; lt != nil && len(lt.Preferences) > 0 {
		if prefs, err := json.Marshal(lt.Preferences); err == nil {
			b.WriteString("\nUser preferences: ")
			b.Write(prefs)
		}
	}
	if turn.Vehicle != nil {
		b.WriteString("\nVehicle status: ")
		b.WriteString(hotctx.FormatVehicleStatus(turn.Vehicle))
	}
	return b.String()
}

func extractJSONObject(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return s
	}
	return s[start : end+1]
}
