// Package app wires every Kiwi subsystem into a running voice assistant.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run starts the pipeline and blocks until the context is
// cancelled, and Shutdown tears everything down in order. Evaluate runs the
// offline case file against the live pipeline instead of blocking.
//
// Externally backed engines arrive through [Providers], populated by main
// via the config registry. A nil provider slot leaves that stage
// unconfigured and the runtime degrades around it: no embeddings means no
// semantic recall, no LLM means rule-based routing, no audio source means
// the capture side stays silent and only injected recognitions flow.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/kiwivoice/kiwi/internal/adapter"
	"github.com/kiwivoice/kiwi/internal/agent"
	"github.com/kiwivoice/kiwi/internal/bus"
	"github.com/kiwivoice/kiwi/internal/config"
	"github.com/kiwivoice/kiwi/internal/controller"
	"github.com/kiwivoice/kiwi/internal/evaluation"
	"github.com/kiwivoice/kiwi/internal/event"
	"github.com/kiwivoice/kiwi/internal/execution"
	"github.com/kiwivoice/kiwi/internal/health"
	"github.com/kiwivoice/kiwi/internal/hotctx"
	"github.com/kiwivoice/kiwi/internal/memory"
	"github.com/kiwivoice/kiwi/internal/observe"
	"github.com/kiwivoice/kiwi/internal/orchestrator"
	"github.com/kiwivoice/kiwi/internal/resilience"
	"github.com/kiwivoice/kiwi/internal/session"
	"github.com/kiwivoice/kiwi/internal/statemachine"
	"github.com/kiwivoice/kiwi/internal/tracker"
	"github.com/kiwivoice/kiwi/internal/transcript"
	"github.com/kiwivoice/kiwi/internal/transcript/llmcorrect"
	"github.com/kiwivoice/kiwi/internal/transcript/phonetic"
	"github.com/kiwivoice/kiwi/pkg/audio"
	"github.com/kiwivoice/kiwi/pkg/provider/asr"
	"github.com/kiwivoice/kiwi/pkg/provider/embeddings"
	"github.com/kiwivoice/kiwi/pkg/provider/llm"
	"github.com/kiwivoice/kiwi/pkg/provider/tts"
	"github.com/kiwivoice/kiwi/pkg/provider/vad"
	"github.com/kiwivoice/kiwi/pkg/provider/wakeword"
	"github.com/kiwivoice/kiwi/pkg/vectordb"
	"github.com/kiwivoice/kiwi/pkg/vectordb/inmem"
	"github.com/kiwivoice/kiwi/pkg/vectordb/pgvector"
)

// Version identifies this build to MCP peers and health consumers.
const Version = "0.1.0"

// Providers holds one interface value per provider slot. Nil means the
// provider is not configured. Populated by main via the config registry.
type Providers struct {
	LLM        llm.Provider
	ASR        asr.Engine
	TTS        tts.Engine
	VAD        vad.Engine
	Wakeword   wakeword.Engine
	Embeddings embeddings.Provider
	Audio      audio.Source
}

// App owns all subsystem lifetimes and orchestrates the Kiwi voice pipeline.
type App struct {
	cfg       *config.Config
	providers *Providers

	// Subsystems, initialised in New and torn down in Shutdown.
	bus       *bus.Bus
	machine   *statemachine.Machine
	tracker   *tracker.Tracker
	sessions  *session.Manager
	guard     *vectordb.Guard
	memory    *memory.Manager
	consol    *memory.Consolidator
	state     *execution.StateStore
	tools     *execution.Registry
	agents    *agent.Registry
	orch      *orchestrator.Orchestrator
	prefetch  *hotctx.PreFetcher
	assembler *hotctx.Assembler
	ctrl      *controller.Controller
	metrics   *observe.Metrics
	admin     *health.Server

	// Breaker-wrapped provider views. Nil when the backing slot is empty.
	llmFB   *resilience.LLMFallback
	asrFB   *resilience.ASRFallback
	ttsFB   *resilience.TTSFallback
	embedFB *resilience.EmbeddingsFallback

	injectedStore vectordb.Store

	closers  []func() error
	stopOnce sync.Once
}

// Option adjusts construction. Options exist for tests that stand in for
// external backends; production wiring goes through config and [Providers].
type Option func(*App)

// WithVectorStore replaces the config-selected vector store, so tests run
// against an in-process store instead of Postgres.
func WithVectorStore(s vectordb.Store) Option {
	return func(a *App) { a.injectedStore = s }
}

// New creates and connects every subsystem. The returned App is not yet
// processing; call [App.Run] or [App.Evaluate].
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("app: config must not be nil")
	}
	if providers == nil {
		providers = &Providers{}
	}
	a := &App{cfg: cfg, providers: providers}
	for _, opt := range opts {
		opt(a)
	}

	// ── 1. Core plumbing ─────────────────────────────────────────────────
	a.bus = bus.New(slog.Default())
	a.tracker = tracker.New()
	a.machine = statemachine.New(slog.Default())
	a.machine.OnTransition(func(tr statemachine.Transition) {
		ev := event.New(event.KindStateChanged, "statemachine")
		ev.Payload = event.StateChange{From: string(tr.From), To: string(tr.To), Reason: tr.Reason}
		a.bus.Publish(ev)
	})

	// ── 2. Provider resilience ───────────────────────────────────────────
	a.wrapProviders()

	// ── 3. Sessions ──────────────────────────────────────────────────────
	a.initSessions()

	// ── 4. Memory ────────────────────────────────────────────────────────
	if err := a.initMemory(ctx); err != nil {
		return nil, fmt.Errorf("app: init memory: %w", err)
	}

	// ── 5. Vehicle state and tools ───────────────────────────────────────
	if err := a.initExecution(ctx); err != nil {
		return nil, fmt.Errorf("app: init execution: %w", err)
	}

	// ── 6. Agents ────────────────────────────────────────────────────────
	if err := a.initAgents(); err != nil {
		return nil, fmt.Errorf("app: init agents: %w", err)
	}

	// ── 7. Turn context plane ────────────────────────────────────────────
	a.initTurnContext()

	// ── 8. Routing ───────────────────────────────────────────────────────
	a.orch = orchestrator.New(orchestrator.Config{Model: a.llmProvider()})

	// ── 9. Pipeline modules ──────────────────────────────────────────────
	if err := a.initModules(); err != nil {
		return nil, fmt.Errorf("app: init modules: %w", err)
	}

	// ── 10. Telemetry and admin surface ──────────────────────────────────
	if cfg.Server.HealthAddr != "" {
		if err := a.initObservability(ctx); err != nil {
			return nil, fmt.Errorf("app: init observability: %w", err)
		}
	}

	return a, nil
}

// ─── Provider views ──────────────────────────────────────────────────────────

// wrapProviders puts a circuit breaker in front of every configured remote
// backend. A single-entry group still earns its keep: a flapping backend
// trips its breaker instead of stalling the pipeline, and the admin surface
// reports the breaker state.
func (a *App) wrapProviders() {
	cfg := resilience.FallbackConfig{}
	if a.providers.LLM != nil {
		a.llmFB = resilience.NewLLMFallback(a.providers.LLM, providerName(a.cfg.Providers.LLM), cfg)
	}
	if a.providers.ASR != nil {
		a.asrFB = resilience.NewASRFallback(a.providers.ASR, providerName(a.cfg.Providers.ASR), cfg)
	}
	if a.providers.TTS != nil {
		a.ttsFB = resilience.NewTTSFallback(a.providers.TTS, providerName(a.cfg.Providers.TTS), cfg)
	}
	if a.providers.Embeddings != nil {
		a.embedFB = resilience.NewEmbeddingsFallback(a.providers.Embeddings, providerName(a.cfg.Providers.Embeddings), cfg)
	}
}

func providerName(entry config.ProviderEntry) string {
	if entry.Name == "" {
		return "primary"
	}
	return entry.Name
}

// llmProvider returns the breaker-wrapped LLM, or nil when unconfigured.
// The explicit nil keeps a typed-nil wrapper out of interface fields.
func (a *App) llmProvider() llm.Provider {
	if a.llmFB == nil {
		return nil
	}
	return a.llmFB
}

func (a *App) asrEngine() asr.Engine {
	if a.asrFB == nil {
		return nil
	}
	return a.asrFB
}

func (a *App) ttsEngine() tts.Engine {
	if a.ttsFB == nil {
		return nil
	}
	return a.ttsFB
}

func (a *App) embedder() embeddings.Provider {
	if a.embedFB == nil {
		return nil
	}
	return a.embedFB
}

// ─── Init helpers ────────────────────────────────────────────────────────────

// initSessions creates the session manager and routes sweeper expiries onto
// the bus.
func (a *App) initSessions() {
	a.sessions = session.NewManager(session.ManagerConfig{
		TTL:           a.cfg.Session.TTL,
		SweepInterval: a.cfg.Session.SweepInterval,
		OnExpire: func(s session.Session) {
			ev := event.New(event.KindSessionExpired, "session")
			ev.Payload = event.SessionExpiry{
				SessionID: s.ID,
				Agent:     s.Agent,
				UserID:    s.UserID,
				IdleFor:   time.Since(s.LastActivity),
			}
			a.bus.Publish(ev)
		},
	})
}

// initMemory selects the vector store, wraps it in the degradation guard,
// and builds the memory manager plus its consolidation loop. Without an
// embeddings provider the memory subsystem is skipped and agents run on
// session context alone.
func (a *App) initMemory(ctx context.Context) error {
	embed := a.embedder()

	store := a.injectedStore
	if store == nil {
		if dsn := a.cfg.Memory.PostgresDSN; dsn != "" {
			dims := a.cfg.Memory.EmbeddingDimensions
			if dims <= 0 && embed != nil {
				dims = embed.Dimensions()
			}
			if dims <= 0 {
				return fmt.Errorf("memory.embedding_dimensions is required with memory.postgres_dsn")
			}
			pg, err := pgvector.New(ctx, dsn, dims)
			if err != nil {
				return err
			}
			store = pg
			slog.Info("vector store connected", "backend", "pgvector", "dimensions", dims)
		} else {
			store = inmem.New()
			slog.Info("vector store is in-process, recall will not survive restarts")
		}
	}
	a.guard = vectordb.NewGuard(store)
	a.closers = append(a.closers, a.guard.Close)

	if embed == nil {
		slog.Warn("no embeddings provider, memory subsystem disabled")
		return nil
	}

	a.memory = memory.NewManager(embed, a.guard, a.llmProvider(), memory.Config{
		ShortTermCap:     a.cfg.Memory.ShortTermCap,
		TriggerCount:     a.cfg.Memory.TriggerCount,
		RelatedThreshold: a.cfg.Memory.RelatedThreshold,
		LongTermFile:     a.cfg.Memory.LongTermFile,
	})
	a.consol = memory.NewConsolidator(a.memory, 0)
	return nil
}

// initExecution builds the vehicle state store and the tool registry, then
// imports tools from any configured external MCP servers.
func (a *App) initExecution(ctx context.Context) error {
	a.state = execution.NewStateStore()
	a.tools = execution.NewRegistry(a.state)
	if err := execution.RegisterCatalog(a.tools); err != nil {
		return err
	}

	if servers := a.cfg.MCP.Servers; len(servers) > 0 {
		specs := make([]execution.ExternalServer, 0, len(servers))
		for _, s := range servers {
			specs = append(specs, execution.ExternalServer{
				Name:     s.Name,
				Command:  s.Command,
				Args:     s.Args,
				Env:      s.Env,
				Category: execution.Category(s.Category),
			})
		}
		ext := execution.ConnectExternal(ctx, a.tools, specs, Version, slog.Default())
		a.closers = append(a.closers, ext.Close)
	}

	slog.Info("tool catalog registered", "tools", len(a.tools.List("")))
	return nil
}

// initAgents builds the configured agents. An empty agents list gets the
// default chat agent so routing always has a target.
func (a *App) initAgents() error {
	a.agents = agent.NewRegistry()
	model := a.llmProvider()

	configured := a.cfg.Agents
	if len(configured) == 0 {
		slog.Warn("no agents configured, registering the default chat agent")
		configured = []config.AgentConfig{{
			Name:        orchestrator.DefaultAgent,
			Kind:        config.AgentChat,
			Description: "General conversation and anything no specialist claims.",
		}}
	}

	for _, ac := range configured {
		info := agent.Info{
			Name:          ac.Name,
			Description:   ac.Description,
			Capabilities:  ac.Capabilities,
			Priority:      ac.Priority,
			Interruptible: ac.Interruptible,
			Enabled:       ac.Enabled(),
		}

		var (
			built agent.Agent
			err   error
		)
		switch ac.Kind {
		case config.AgentChat:
			built = agent.NewChatAgent(info, model, nil)
		case config.AgentTool:
			built = agent.NewToolAgent(info, model, a.tools, toolCategories(ac.Categories), nil)
		case config.AgentSession:
			built, err = agent.NewSessionAgent(info, model, ac.Slots, nil)
		case config.AgentPlanner:
			built = agent.NewPlannerAgent(info, model, a.agents, nil)
		default:
			err = fmt.Errorf("unknown agent kind %q", ac.Kind)
		}
		if err != nil {
			return fmt.Errorf("build agent %q: %w", ac.Name, err)
		}
		if err := a.agents.Register(built); err != nil {
			return err
		}
		slog.Info("agent registered", "name", ac.Name, "kind", ac.Kind, "priority", ac.Priority)
	}
	return nil
}

func toolCategories(names []string) []execution.Category {
	out := make([]execution.Category, 0, len(names))
	for _, n := range names {
		out = append(out, execution.Category(n))
	}
	return out
}

// initTurnContext builds the assembler and, when memory is available, the
// speculative recall prefetcher warmed from recognition events.
func (a *App) initTurnContext() {
	opts := []hotctx.Option{hotctx.WithVehicleState(a.state)}

	var mem hotctx.MemorySource
	if a.memory != nil {
		mem = a.memory

		a.prefetch = hotctx.NewPreFetcher(a.memory)
		if err := a.prefetch.Attach(a.bus); err != nil {
			slog.Warn("recall prefetch attach failed, recall stays on demand", "error", err)
			a.prefetch = nil
		} else {
			pf := a.prefetch
			a.closers = append(a.closers, func() error {
				pf.Detach()
				return nil
			})
			opts = append(opts, hotctx.WithPreFetcher(pf))
		}
	}

	a.assembler = hotctx.NewAssembler(a.sessions, mem, opts...)
}

// initModules builds one adapter per configured stage and registers them
// with the controller. Consumers are registered before producers: the
// capture source starts last and stops first, so frames never flow into a
// half-built pipeline.
func (a *App) initModules() error {
	a.ctrl = controller.New(a.bus, slog.Default())

	var mods []adapter.Module

	mods = append(mods, adapter.NewOrchestratorAdapter(adapter.OrchestratorDeps{
		Bus:          a.bus,
		Orchestrator: a.orch,
		Assembler:    a.assembler,
		Tracker:      a.tracker,
		Agents:       a.agents,
	}))
	mods = append(mods, adapter.NewAgentAdapter(adapter.AgentAdapterDeps{
		Bus:       a.bus,
		Agents:    a.agents,
		Sessions:  a.sessions,
		Assembler: a.assembler,
		Tracker:   a.tracker,
	}))
	if a.memory != nil {
		mods = append(mods, adapter.NewMemoryAdapter(adapter.MemoryDeps{
			Bus:    a.bus,
			Memory: a.memory,
		}))
	}
	if eng := a.ttsEngine(); eng != nil {
		mods = append(mods, adapter.NewTTSAdapter(adapter.TTSDeps{
			Bus:     a.bus,
			Engine:  eng,
			Machine: a.machine,
		}))
	}
	if addr := a.cfg.Server.GUIAddr; addr != "" {
		mods = append(mods, adapter.NewGUIAdapter(adapter.GUIDeps{
			Bus:  a.bus,
			Addr: addr,
		}))
	}
	if eng := a.asrEngine(); eng != nil {
		mods = append(mods, adapter.NewASRAdapter(adapter.ASRDeps{
			Bus:       a.bus,
			Engine:    eng,
			Machine:   a.machine,
			Tracker:   a.tracker,
			Corrector: a.buildCorrector(),
			UserID:    a.cfg.Pipeline.UserID,
		}))
	}
	if a.providers.VAD != nil {
		mods = append(mods, adapter.NewVADAdapter(adapter.VADDeps{
			Bus:     a.bus,
			Engine:  a.providers.VAD,
			Machine: a.machine,
			Config: adapter.VADConfig{
				SampleRate:        a.cfg.Pipeline.SampleRate,
				FrameSizeMs:       a.cfg.Pipeline.FrameSizeMs,
				SpeechThreshold:   a.cfg.Pipeline.SpeechThreshold,
				SilenceHangoverMs: a.cfg.Pipeline.SilenceHangoverMs,
				WakeTimeout:       a.cfg.Pipeline.WakeTimeout,
			},
		}))
	}
	if a.providers.Wakeword != nil {
		mods = append(mods, adapter.NewWakewordAdapter(adapter.WakewordDeps{
			Bus:     a.bus,
			Engine:  a.providers.Wakeword,
			Machine: a.machine,
		}))
	}
	if a.providers.Audio != nil {
		mods = append(mods, adapter.NewAudioAdapter(adapter.AudioDeps{
			Bus:    a.bus,
			Source: a.providers.Audio,
		}))
	}

	for _, m := range mods {
		if err := a.ctrl.Register(m); err != nil {
			return err
		}
	}
	return nil
}

// buildCorrector assembles hotword correction from the configured list. The
// phonetic stage always runs; the LLM review stage needs a model.
func (a *App) buildCorrector() transcript.Pipeline {
	hotwords := a.cfg.Pipeline.Hotwords
	if len(hotwords) == 0 {
		return nil
	}
	opts := []transcript.PipelineOption{
		transcript.WithPhoneticMatcher(phonetic.New(hotwords)),
	}
	if model := a.llmProvider(); model != nil {
		opts = append(opts, transcript.WithLLMCorrector(llmcorrect.New(model, hotwords)))
	}
	slog.Info("hotword correction enabled", "hotwords", len(hotwords))
	return transcript.NewPipeline(opts...)
}

// initObservability starts the OTel providers, bridges bus activity into the
// instruments, and builds the admin server.
func (a *App) initObservability(ctx context.Context) error {
	shutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceName: "kiwi"})
	if err != nil {
		return err
	}
	a.closers = append(a.closers, func() error { return shutdown(context.Background()) })

	metrics, err := observe.NewMetrics(otel.GetMeterProvider())
	if err != nil {
		return err
	}
	a.metrics = metrics

	bridge := observe.NewBridge(observe.BridgeDeps{Bus: a.bus, Metrics: metrics, Sessions: a.sessions})
	if err := bridge.Attach(); err != nil {
		return err
	}
	a.closers = append(a.closers, func() error { bridge.Detach(); return nil })

	checks := []health.Checker{
		health.Pipeline(a.ctrl),
		health.VectorStore(a.guard),
	}
	if a.llmFB != nil {
		checks = append(checks, health.Breakers("llm", a.llmFB.States))
	}
	if a.asrFB != nil {
		checks = append(checks, health.Breakers("asr", a.asrFB.States))
	}
	if a.ttsFB != nil {
		checks = append(checks, health.Breakers("tts", a.ttsFB.States))
	}
	if a.embedFB != nil {
		checks = append(checks, health.Breakers("embeddings", a.embedFB.States))
	}

	a.admin = health.NewServer(health.ServerConfig{
		Addr:     a.cfg.Server.HealthAddr,
		Checkers: checks,
		Stats:    a.ctrl.Statistics,
		Metrics:  metrics,
	})
	return nil
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run starts the pipeline and blocks until ctx is cancelled. It returns the
// context's error on an orderly stop; call [App.Shutdown] afterwards.
func (a *App) Run(ctx context.Context) error {
	if err := a.start(ctx); err != nil {
		return err
	}
	slog.Info("kiwi running",
		"agents", len(a.agents.Infos()),
		"gui", a.cfg.Server.GUIAddr,
		"admin", a.cfg.Server.HealthAddr,
	)
	<-ctx.Done()
	return ctx.Err()
}

// start brings the pipeline up: modules in registration order, then the
// session sweeper, periodic memory consolidation, and the admin listener.
func (a *App) start(ctx context.Context) error {
	if err := a.ctrl.Start(ctx); err != nil {
		return fmt.Errorf("app: start pipeline: %w", err)
	}
	go a.sessions.Run(ctx)
	if a.consol != nil {
		a.consol.Start(ctx)
	}
	if a.admin != nil {
		a.admin.Start()
	}
	return nil
}

// Evaluate starts the pipeline, drives the configured JSONL case file
// through it, and writes the report when a report path is configured. The
// caller still owns Shutdown.
func (a *App) Evaluate(ctx context.Context) (*evaluation.Report, error) {
	if a.cfg.Evaluation.Cases == "" {
		return nil, fmt.Errorf("app: evaluation.cases is not configured")
	}
	cases, err := evaluation.LoadCases(a.cfg.Evaluation.Cases)
	if err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}
	if err := a.start(ctx); err != nil {
		return nil, err
	}

	runner := evaluation.NewRunner(a.bus, a.tracker, evaluation.Config{
		Timeout: a.cfg.Evaluation.Timeout,
		Judge:   a.llmProvider(),
	})
	report, err := runner.Run(ctx, cases)
	if err != nil {
		return nil, fmt.Errorf("app: run evaluation: %w", err)
	}
	if path := a.cfg.Evaluation.Report; path != "" {
		if err := evaluation.WriteReport(report, path); err != nil {
			return nil, fmt.Errorf("app: %w", err)
		}
		slog.Info("evaluation report written", "path", path)
	}
	return report, nil
}

// ─── Hot reload ──────────────────────────────────────────────────────────────

// ApplyAgentDiffs applies live-safe agent changes from a configuration
// reload: description, capability, priority, and enablement edits update the
// registry's routing surface. Added or removed agents need a restart because
// their construction wiring (kind, slots, tools) is fixed in New.
func (a *App) ApplyAgentDiffs(updated *config.Config, diffs []config.AgentDiff) {
	byName := make(map[string]config.AgentConfig, len(updated.Agents))
	for _, ac := range updated.Agents {
		byName[ac.Name] = ac
	}

	for _, d := range diffs {
		if d.Added || d.Removed {
			slog.Warn("agent set changed in config, restart required",
				"agent", d.Name, "added", d.Added, "removed", d.Removed)
			continue
		}
		ac, ok := byName[d.Name]
		if !ok {
			continue
		}
		err := a.agents.UpdateInfo(d.Name, agent.Info{
			Name:          ac.Name,
			Description:   ac.Description,
			Capabilities:  ac.Capabilities,
			Priority:      ac.Priority,
			Interruptible: ac.Interruptible,
			Enabled:       ac.Enabled(),
		})
		if err != nil {
			slog.Warn("agent routing update failed", "agent", d.Name, "error", err)
			continue
		}
		slog.Info("agent routing surface updated",
			"agent", d.Name, "enabled", ac.Enabled(), "priority", ac.Priority)
	}
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown tears down all subsystems: modules stop in reverse start order,
// pending long-term memory is flushed, then the remaining closers run in
// registration order. It respects the context deadline: if ctx expires
// before all closers finish, the rest are skipped and the context error is
// returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		if err := a.ctrl.Stop(ctx); err != nil {
			slog.Warn("module stop error", "err", err)
		}
		if a.admin != nil {
			if err := a.admin.Shutdown(ctx); err != nil {
				slog.Warn("admin server shutdown error", "err", err)
			}
		}
		if a.consol != nil {
			a.consol.Stop()
			if a.consol.Flush(ctx) {
				slog.Info("flushed pending long-term distillation")
			}
		}

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		a.bus.Close()
		slog.Info("shutdown complete")
	})
	return shutdownErr
}
