// Package agent holds the agent runtime: the handler contract, the chat and
// tool-using agent shapes, a slot-filling session agent, and the planner
// meta-agent that coordinates other agents over a dependency-ordered task
// plan.
package agent

import (
	"context"
	"strings"

	"github.com/kiwivoice/kiwi/internal/hotctx"
)

// Status is the outcome class of one agent turn.
type Status string

const (
	StatusSuccess      Status = "success"
	StatusWaitingInput Status = "waiting_input"
	StatusCompleted    Status = "completed"
	StatusError        Status = "error"
)

// Terminal reports whether the status ends the agent dialogue.
func (s Status) Terminal() bool { return s != StatusWaitingInput }

// Info is an agent's routable identity, declared at construction from
// configuration.
type Info struct {
	Name          string
	Description   string
	Capabilities  []string
	Priority      int
	Interruptible bool
	Enabled       bool
}

// Context carries per-turn grounding into an agent. SessionContext is the
// mutable dialogue state owned by the session manager; agents read and write
// it but never see session ids. Turn is the assembled conversational context
// for this utterance and may be nil in bare invocations.
type Context struct {
	UserID         string
	SessionContext map[string]any
	Turn           *hotctx.TurnContext
}

// TurnOrEmpty returns the turn context, or an empty one when none was
// assembled. Callers can range and dereference the result without nil
// checks.
func (c *Context) TurnOrEmpty() *hotctx.TurnContext {
	if c == nil || c.Turn == nil {
		return &hotctx.TurnContext{}
	}
	return c.Turn
}

// Response is the result of one agent turn. Prompt is set when Status is
// waiting_input and holds the question to speak back to the user.
type Response struct {
	Agent   string
	Query   string
	Status  Status
	Message string
	Prompt  string
	Data    map[string]any
}

// Agent is the handler contract. Handle must be safe for concurrent use
// across distinct Context values.
type Agent interface {
	Info() Info
	Handle(ctx context.Context, query string, actx *Context) (Response, error)
}

// questionMarkers classify a plain-text model reply as a request for more
// information. The CJK tokens cover the Chinese interrogatives the assistant
// encounters in mixed-language use.
var questionMarkers = []string{
	"?", "？", "请问", "什么", "哪里", "怎么", "如何", "是否", "确认",
	"which", "what", "when", "where", "could you", "would you", "please provide",
}

// isAskingQuestion is the fallback classifier used when the model does not
// answer with the structured need_input JSON.
func isAskingQuestion(text string) bool {
	lowered := strings.ToLower(text)
	for _, marker := range questionMarkers {
		if strings.Contains(lowered, marker) {
			return true
		}
	}
	return false
}

func errorResponse(name, query, msg string) Response {
	return Response{Agent: name, Query: query, Status: StatusError, Message: msg}
}
