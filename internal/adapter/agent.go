package adapter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"

	"github.com/kiwivoice/kiwi/internal/agent"
	"github.com/kiwivoice/kiwi/internal/bus"
	"github.com/kiwivoice/kiwi/internal/event"
	"github.com/kiwivoice/kiwi/internal/hotctx"
	"github.com/kiwivoice/kiwi/internal/session"
	"github.com/kiwivoice/kiwi/internal/tracker"
)

// AgentAdapter executes dispatch requests: it opens or resumes the user's
// session, invokes the selected agent, settles the session according to the
// agent's status, and publishes the response plus a speak request. When
// completing a session uncovers a paused one beneath it, the uncovered
// session's pending question is replayed to the user.
type AgentAdapter struct {
	bus       *bus.Bus
	agents    *agent.Registry
	sessions  *session.Manager
	assembler *hotctx.Assembler
	tracker   *tracker.Tracker
	log       *slog.Logger
	stats     *stats

	sub *bus.Subscription
}

var _ Module = (*AgentAdapter)(nil)

// AgentAdapterDeps carries the agent adapter's dependencies. Assembler is
// optional; without it agents run on session context alone.
type AgentAdapterDeps struct {
	Bus       *bus.Bus
	Agents    *agent.Registry
	Sessions  *session.Manager
	Assembler *hotctx.Assembler
	Tracker   *tracker.Tracker
	Logger    *slog.Logger
}

func NewAgentAdapter(deps AgentAdapterDeps) *AgentAdapter {
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}
	return &AgentAdapter{
		bus:       deps.Bus,
		agents:    deps.Agents,
		sessions:  deps.Sessions,
		assembler: deps.Assembler,
		tracker:   deps.Tracker,
		log:       log.With("module", "agent"),
		stats:     newStats(),
	}
}

func (a *AgentAdapter) Name() string { return "agent" }

func (a *AgentAdapter) Initialize(context.Context) error {
	if a.bus == nil || a.agents == nil || a.sessions == nil || a.tracker == nil {
		return fmt.Errorf("adapter: agent: bus, agents, sessions, and tracker are required")
	}
	sub, err := a.bus.Subscribe(event.KindAgentDispatchRequest, a.onDispatch, bus.WithWorker(8))
	if err != nil {
		return fmt.Errorf("adapter: agent: %w", err)
	}
	a.sub = sub
	return nil
}

func (a *AgentAdapter) Start(context.Context) error { return nil }

func (a *AgentAdapter) Stop(context.Context) error {
	if a.sub != nil {
		a.bus.Unsubscribe(a.sub)
		a.sub = nil
	}
	return nil
}

func (a *AgentAdapter) Cleanup() error { return nil }

func (a *AgentAdapter) Statistics() map[string]any { return a.stats.snapshot() }

func (a *AgentAdapter) onDispatch(ev event.Event) {
	dispatch, ok := ev.Payload.(event.AgentDispatch)
	if !ok {
		return
	}
	a.stats.inc("dispatches")

	target, err := a.agents.Get(dispatch.Agent)
	if err != nil {
		a.stats.inc("unknown_agent")
		a.log.Error("dispatch to unknown agent", "agent", dispatch.Agent)
		a.respond(ev.MessageID, dispatch, "", event.StatusError,
			"Sorry, I cannot handle that right now.", "", nil)
		return
	}

	var sess session.Session
	switch dispatch.Action {
	case event.SessionResume:
		sess, err = a.resumeSession(dispatch)
	default:
		sess, err = a.openSession(dispatch)
	}
	if err != nil {
		if errors.Is(err, session.ErrConflict) {
			a.stats.inc("conflicts")
			a.respond(ev.MessageID, dispatch, "", event.StatusError,
				"I am still busy with your previous request.", "", nil)
			return
		}
		a.stats.inc("session_errors")
		a.log.Error("session setup failed", "error", err, "agent", dispatch.Agent)
		a.respond(ev.MessageID, dispatch, "", event.StatusError,
			"Sorry, something went wrong.", "", nil)
		return
	}

	actx := &agent.Context{
		UserID:         dispatch.UserID,
		SessionContext: maps.Clone(sess.Context),
	}
	if actx.SessionContext == nil {
		actx.SessionContext = make(map[string]any)
	}
	if a.assembler != nil {
		tc, err := a.assembler.Assemble(context.Background(), dispatch.UserID, dispatch.Query)
		if err != nil {
			a.log.Warn("turn context assembly failed, running agent without it", "error", err)
		} else {
			actx.Turn = tc
		}
	}

	resp, err := target.Handle(context.Background(), dispatch.Query, actx)
	if err != nil {
		a.stats.inc("agent_errors")
		a.log.Error("agent failed", "agent", dispatch.Agent, "error", err)
		resp = agent.Response{Status: agent.StatusError, Message: "Sorry, something went wrong."}
	}
	a.tracker.Append(ev.MessageID, "agent", dispatch.Query, resp.Message)

	// Persist whatever the agent wrote into its working context.
	a.sessions.UpdateContext(sess.ID, func(m map[string]any) {
		maps.Copy(m, actx.SessionContext)
	})

	a.settle(ev.MessageID, dispatch, sess.ID, resp)
}

// resumeSession moves the waiting session back to running.
func (a *AgentAdapter) resumeSession(dispatch event.AgentDispatch) (session.Session, error) {
	if err := a.sessions.Resume(dispatch.SessionID); err != nil {
		return session.Session{}, fmt.Errorf("adapter: agent: %w", err)
	}
	sess, ok := a.sessions.Get(dispatch.SessionID)
	if !ok {
		return session.Session{}, fmt.Errorf("adapter: agent: resumed session vanished: %w", session.ErrNotFound)
	}
	a.stats.inc("resumes")
	return sess, nil
}

// openSession creates a fresh session, possibly preempting the active one.
// Priority and interruptibility come from the registry's routing surface so
// live configuration edits carry into new sessions.
func (a *AgentAdapter) openSession(dispatch event.AgentDispatch) (session.Session, error) {
	info, _ := a.agents.InfoOf(dispatch.Agent)
	sess, err := a.sessions.Create(dispatch.Agent, dispatch.UserID, info.Priority, info.Interruptible)
	if err != nil {
		return session.Session{}, err
	}
	a.stats.inc("sessions_opened")
	return sess, nil
}

// settle finishes or parks the session per the agent's status and emits the
// response.
func (a *AgentAdapter) settle(messageID string, dispatch event.AgentDispatch, sessionID string, resp agent.Response) {
	switch resp.Status {
	case agent.StatusWaitingInput:
		if err := a.sessions.AwaitInput(sessionID, resp.Prompt); err != nil {
			a.log.Warn("await input failed", "session", sessionID, "error", err)
		}
		a.tracker.Finish(messageID, resp.Prompt, tracker.StatusWaitingInput)
		a.respond(messageID, dispatch, sessionID, event.StatusWaitingInput, resp.Message, resp.Prompt, resp.Data)
		return

	case agent.StatusError:
		resumed, _ := a.sessions.Fail(sessionID)
		a.tracker.Finish(messageID, resp.Message, tracker.StatusFailed)
		a.respond(messageID, dispatch, sessionID, event.StatusError, resp.Message, "", resp.Data)
		a.replay(dispatch.UserID, resumed)
		return

	default:
		resumed, _ := a.sessions.Complete(sessionID)
		a.tracker.Finish(messageID, resp.Message, tracker.StatusCompleted)
		a.respond(messageID, dispatch, sessionID, event.AgentResponseStatus(resp.Status), resp.Message, "", resp.Data)
		a.replay(dispatch.UserID, resumed)
	}
}

// respond publishes the agent response and the matching speak request.
func (a *AgentAdapter) respond(messageID string, dispatch event.AgentDispatch, sessionID string,
	status event.AgentResponseStatus, message, prompt string, data map[string]any) {

	out := event.New(event.KindAgentResponse, a.Name())
	out.MessageID = messageID
	out.Payload = event.AgentResponse{
		Agent:     dispatch.Agent,
		Query:     dispatch.Query,
		UserID:    dispatch.UserID,
		SessionID: sessionID,
		Status:    status,
		Message:   message,
		Prompt:    prompt,
		Data:      data,
	}
	a.bus.Publish(out)

	if message != "" {
		speak := event.New(event.KindTTSSpeakRequest, a.Name())
		speak.MessageID = messageID
		speak.Payload = event.SpeakRequest{Text: message, UserID: dispatch.UserID}
		a.bus.Publish(speak)
	}
}

// replay re-asks the pending question of a session uncovered by a completed
// one.
func (a *AgentAdapter) replay(userID string, resumed *session.Session) {
	if resumed == nil || resumed.State != session.StateWaitingInput || resumed.Prompt == "" {
		return
	}
	a.stats.inc("prompt_replays")
	a.log.Info("replaying pending prompt", "session", resumed.ID, "agent", resumed.Agent)

	out := event.New(event.KindAgentResponse, a.Name())
	out.Payload = event.AgentResponse{
		Agent:     resumed.Agent,
		UserID:    userID,
		SessionID: resumed.ID,
		Status:    event.StatusWaitingInput,
		Message:   resumed.Prompt,
		Prompt:    resumed.Prompt,
	}
	a.bus.Publish(out)

	speak := event.New(event.KindTTSSpeakRequest, a.Name())
	speak.Payload = event.SpeakRequest{Text: resumed.Prompt, UserID: userID}
	a.bus.Publish(speak)
}
