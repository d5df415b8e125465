package adapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/kiwivoice/kiwi/internal/bus"
	"github.com/kiwivoice/kiwi/internal/event"
)

// guiWriteTimeout bounds each websocket send so one stalled renderer cannot
// back up the fan-out loop.
const guiWriteTimeout = 2 * time.Second

// GUIAdapter streams display events to external renderers over a websocket
// endpoint. The renderer process (dashboard, debug console) connects to /ws
// and receives a JSON feed of state changes, transcript lines, and waveform
// envelopes; it never sends anything back except pings.
type GUIAdapter struct {
	bus  *bus.Bus
	addr string
	log  *slog.Logger
	st   *stats

	server *http.Server
	subs   []*bus.Subscription

	mu      sync.RWMutex
	bound   string
	clients map[string]*websocket.Conn
}

var _ Module = (*GUIAdapter)(nil)

// GUIDeps carries the GUI adapter's dependencies.
type GUIDeps struct {
	Bus *bus.Bus

	// Addr is the listen address for the websocket endpoint, e.g.
	// "127.0.0.1:8765".
	Addr string

	Logger *slog.Logger
}

// guiFrame is the wire format of one display update.
type guiFrame struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload,omitempty"`
}

// Wire payloads. The bus payload types stay tag-free; the feed commits to a
// lowercase JSON shape renderers can rely on.
type guiStatusPayload struct {
	State  string `json:"state"`
	Detail string `json:"detail,omitempty"`
}

type guiTextPayload struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

type guiWaveformPayload struct {
	Levels []float32 `json:"levels"`
}

func NewGUIAdapter(deps GUIDeps) *GUIAdapter {
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}
	return &GUIAdapter{
		bus:     deps.Bus,
		addr:    deps.Addr,
		log:     log.With("module", "gui"),
		st:      newStats(),
		clients: make(map[string]*websocket.Conn),
	}
}

func (a *GUIAdapter) Name() string { return "gui" }

func (a *GUIAdapter) Initialize(context.Context) error {
	if a.bus == nil || a.addr == "" {
		return fmt.Errorf("adapter: gui: bus and listen address are required")
	}

	kinds := []event.Kind{
		event.KindStateChanged,
		event.KindASRSuccess,
		event.KindAgentResponse,
		event.KindGUIStatus,
		event.KindGUIText,
		event.KindGUIWaveform,
	}
	for _, kind := range kinds {
		sub, err := a.bus.Subscribe(kind, a.onEvent, bus.WithWorker(64))
		if err != nil {
			return fmt.Errorf("adapter: gui: %w", err)
		}
		a.subs = append(a.subs, sub)
	}
	return nil
}

func (a *GUIAdapter) Start(context.Context) error {
	ln, err := net.Listen("tcp", a.addr)
	if err != nil {
		return fmt.Errorf("adapter: gui: listen %s: %w", a.addr, err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", a.handleWS)
	a.server = &http.Server{Handler: mux}

	a.mu.Lock()
	a.bound = ln.Addr().String()
	a.mu.Unlock()

	go func() {
		if err := a.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error("server stopped", "error", err)
		}
	}()
	a.log.Info("display feed listening", "addr", ln.Addr().String())
	return nil
}

// BoundAddr returns the actual listen address, useful when the configured
// address uses port 0.
func (a *GUIAdapter) BoundAddr() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.bound
}

func (a *GUIAdapter) Stop(ctx context.Context) error {
	for _, sub := range a.subs {
		a.bus.Unsubscribe(sub)
	}
	a.subs = nil

	if a.server == nil {
		return nil
	}
	if err := a.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("adapter: gui: shutdown: %w", err)
	}
	a.server = nil
	return nil
}

func (a *GUIAdapter) Cleanup() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	for id, conn := range a.clients {
		conn.Close(websocket.StatusGoingAway, "shutting down")
		delete(a.clients, id)
	}
	return nil
}

func (a *GUIAdapter) Statistics() map[string]any {
	out := a.st.snapshot()
	a.mu.RLock()
	out["clients"] = int64(len(a.clients))
	a.mu.RUnlock()
	return out
}

func (a *GUIAdapter) handleWS(w http.ResponseWriter, r *http.Request) {
	// Renderers connect from localhost tooling; origin checks add nothing.
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
	if err != nil {
		a.log.Warn("websocket accept failed", "error", err)
		return
	}

	id := uuid.NewString()
	a.mu.Lock()
	a.clients[id] = conn
	a.mu.Unlock()
	a.st.inc("connections")
	a.log.Info("renderer connected", "client", id, "remote", r.RemoteAddr)

	defer func() {
		a.mu.Lock()
		delete(a.clients, id)
		a.mu.Unlock()
		conn.Close(websocket.StatusNormalClosure, "")
	}()

	// Drain the read side so pings and close frames are processed; the feed
	// is one-way.
	for {
		if _, _, err := conn.Read(r.Context()); err != nil {
			return
		}
	}
}

func (a *GUIAdapter) onEvent(ev event.Event) {
	frame, ok := translate(ev)
	if !ok {
		return
	}
	raw, err := json.Marshal(frame)
	if err != nil {
		return
	}

	a.mu.RLock()
	conns := make(map[string]*websocket.Conn, len(a.clients))
	for id, c := range a.clients {
		conns[id] = c
	}
	a.mu.RUnlock()

	for id, conn := range conns {
		ctx, cancel := context.WithTimeout(context.Background(), guiWriteTimeout)
		err := conn.Write(ctx, websocket.MessageText, raw)
		cancel()
		if err != nil {
			a.st.inc("send_errors")
			a.log.Debug("send failed, dropping client", "client", id, "error", err)
			a.mu.Lock()
			delete(a.clients, id)
			a.mu.Unlock()
			conn.Close(websocket.StatusPolicyViolation, "write timeout")
			continue
		}
		a.st.inc("frames_sent")
	}
}

// translate maps a bus event to its display frame.
func translate(ev event.Event) (guiFrame, bool) {
	frame := guiFrame{Type: string(ev.Kind), Timestamp: ev.Timestamp}
	switch payload := ev.Payload.(type) {
	case event.StateChange:
		frame.Payload = guiStatusPayload{State: payload.To, Detail: payload.Reason}
	case event.ASRResult:
		frame.Type = string(event.KindGUIText)
		frame.Payload = guiTextPayload{Role: "user", Text: payload.Text}
	case event.AgentResponse:
		frame.Type = string(event.KindGUIText)
		frame.Payload = guiTextPayload{Role: "assistant", Text: payload.Message}
	case event.GUIStatus:
		frame.Payload = guiStatusPayload{State: payload.State, Detail: payload.Detail}
	case event.GUIText:
		frame.Payload = guiTextPayload{Role: payload.Role, Text: payload.Text}
	case event.GUIWaveform:
		frame.Payload = guiWaveformPayload{Levels: payload.Levels}
	default:
		return guiFrame{}, false
	}
	return frame, true
}
