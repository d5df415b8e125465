// Command kiwi is the main entry point for the Kiwi in-car voice assistant.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/kiwivoice/kiwi/internal/app"
	"github.com/kiwivoice/kiwi/internal/config"
	"github.com/kiwivoice/kiwi/internal/execution"
	"github.com/kiwivoice/kiwi/pkg/audio"
	"github.com/kiwivoice/kiwi/pkg/audio/wavfile"
	"github.com/kiwivoice/kiwi/pkg/provider/asr"
	"github.com/kiwivoice/kiwi/pkg/provider/asr/whisper"
	"github.com/kiwivoice/kiwi/pkg/provider/embeddings"
	oaembed "github.com/kiwivoice/kiwi/pkg/provider/embeddings/openai"
	"github.com/kiwivoice/kiwi/pkg/provider/llm"
	"github.com/kiwivoice/kiwi/pkg/provider/llm/anyllm"
	"github.com/kiwivoice/kiwi/pkg/provider/tts"
	"github.com/kiwivoice/kiwi/pkg/provider/tts/piper"
	"github.com/kiwivoice/kiwi/pkg/provider/vad"
	"github.com/kiwivoice/kiwi/pkg/provider/vad/energy"
	"github.com/kiwivoice/kiwi/pkg/provider/wakeword"
	"github.com/kiwivoice/kiwi/pkg/provider/wakeword/oww"
)

// logLevel backs every handler this process creates, so a configuration
// reload can change verbosity without rebuilding loggers.
var logLevel = new(slog.LevelVar)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	evalMode := flag.Bool("eval", false, "run the configured evaluation cases and exit")
	mcpMode := flag.Bool("mcp", false, "serve the vehicle tool catalog over MCP stdio and exit")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "kiwi: config file %q not found, copy config.example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "kiwi: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	slog.SetDefault(newLogger(cfg.Server.LogLevel))

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── MCP stdio mode ────────────────────────────────────────────────────────
	// Serves the tool catalog to an external MCP client; the voice pipeline
	// never starts. Logging goes to stderr, the protocol owns stdout.
	if *mcpMode {
		return runMCP(ctx)
	}

	slog.Info("kiwi starting",
		"config", *configPath,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Provider registry ─────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	// ── Instantiate providers ─────────────────────────────────────────────────
	providers, err := buildProviders(cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	// ── Startup summary ───────────────────────────────────────────────────────
	printStartupSummary(cfg)

	application, err := app.New(ctx, cfg, providers)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	// ── Evaluation mode ───────────────────────────────────────────────────────
	if *evalMode {
		return runEvaluation(ctx, application)
	}

	// ── Hot reload ────────────────────────────────────────────────────────────
	watcher, err := config.NewWatcher(*configPath, func(old, updated *config.Config) {
		applyReload(application, old, updated)
	})
	if err != nil {
		slog.Warn("config watcher unavailable, hot reload disabled", "err", err)
	} else {
		defer watcher.Stop()
	}

	slog.Info("assistant ready, press Ctrl+C to shut down")

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("shutdown signal received, stopping")

	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Run modes ─────────────────────────────────────────────────────────────────

// runMCP exposes the vehicle tool catalog over stdio. Tool calls act on a
// fresh state store owned by this process.
func runMCP(ctx context.Context) int {
	store := execution.NewStateStore()
	reg := execution.NewRegistry(store)
	if err := execution.RegisterCatalog(reg); err != nil {
		slog.Error("failed to register tool catalog", "err", err)
		return 1
	}
	server := execution.NewSDKServer(reg, app.Version)
	if err := execution.RunStdio(ctx, server, slog.Default()); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("mcp serve error", "err", err)
		return 1
	}
	return 0
}

// runEvaluation drives the configured case file through the pipeline and
// prints the aggregate outcome.
func runEvaluation(ctx context.Context, application *app.App) int {
	report, err := application.Evaluate(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	defer application.Shutdown(shutdownCtx)

	if err != nil {
		slog.Error("evaluation failed", "err", err)
		return 1
	}
	fmt.Printf("evaluation: %d/%d agents matched, avg quality %.2f, avg latency %dms\n",
		report.Matched, report.Total, report.AvgQuality, report.AvgLatency)
	return 0
}

// ── Hot reload ────────────────────────────────────────────────────────────────

// applyReload applies the live-safe subset of a configuration change. Log
// level and agent routing-surface edits take effect immediately; anything
// else needs a restart.
func applyReload(application *app.App, old, updated *config.Config) {
	d := config.Diff(old, updated)
	if d.LogLevelChanged {
		logLevel.Set(slogLevel(d.NewLogLevel))
		slog.Info("log level changed", "level", d.NewLogLevel)
	}
	if d.AgentsChanged {
		application.ApplyAgentDiffs(updated, d.AgentChanges)
	}
	if !d.LogLevelChanged && !d.AgentsChanged {
		slog.Info("config changed with no live-applicable difference, restart to apply")
	}
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// builtinProviders maps provider category names to the implementations that
// ship with Kiwi. Used for startup logging.
var builtinProviders = map[string][]string{
	"llm":        {"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"asr":        {"whisper"},
	"tts":        {"piper"},
	"vad":        {"energy"},
	"wakeword":   {"openwakeword"},
	"embeddings": {"openai"},
	"audio":      {"wavfile"},
}

// registerBuiltinProviders wires all built-in provider factories into reg.
// Each factory receives a config.ProviderEntry and constructs the appropriate
// provider from the real implementation packages.
func registerBuiltinProviders(reg *config.Registry) {
	// ── LLM ───────────────────────────────────────────────────────────────────
	// openai, anthropic, gemini, deepseek, mistral, groq, llamacpp, llamafile
	// all share the same pattern: optional APIKey + optional BaseURL.
	for _, providerName := range []string{
		"openai", "anthropic", "gemini",
		"deepseek", "mistral", "groq", "llamacpp", "llamafile",
	} {
		reg.RegisterLLM(providerName, func(entry config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(providerName, entry.Model, opts...)
		})
	}

	// ollama is a local server; it uses BaseURL for the address, not an API key.
	reg.RegisterLLM("ollama", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []anyllmlib.Option
		if entry.BaseURL != "" {
			opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
		}
		return anyllm.New("ollama", entry.Model, opts...)
	})

	// ── ASR ───────────────────────────────────────────────────────────────────

	reg.RegisterASR("whisper", func(entry config.ProviderEntry) (asr.Engine, error) {
		var opts []whisper.Option
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, whisper.WithLanguage(lang))
		}
		return whisper.New(entry.BaseURL, opts...)
	})

	// ── TTS ───────────────────────────────────────────────────────────────────

	reg.RegisterTTS("piper", func(entry config.ProviderEntry) (tts.Engine, error) {
		return piper.New(entry.BaseURL)
	})

	// ── VAD ───────────────────────────────────────────────────────────────────

	reg.RegisterVAD("energy", func(entry config.ProviderEntry) (vad.Engine, error) {
		return energy.New(), nil
	})

	// ── Wakeword ──────────────────────────────────────────────────────────────

	reg.RegisterWakeword("openwakeword", func(entry config.ProviderEntry) (wakeword.Engine, error) {
		var opts []oww.Option
		if th := optFloat(entry.Options, "threshold"); th > 0 {
			opts = append(opts, oww.WithThreshold(th))
		}
		return oww.New(entry.BaseURL, opts...)
	})

	// ── Embeddings ────────────────────────────────────────────────────────────

	reg.RegisterEmbeddings("openai", func(entry config.ProviderEntry) (embeddings.Provider, error) {
		var opts []oaembed.Option
		if entry.APIKey != "" {
			opts = append(opts, oaembed.WithAPIKey(entry.APIKey))
		}
		if entry.BaseURL != "" {
			opts = append(opts, oaembed.WithBaseURL(entry.BaseURL))
		}
		return oaembed.New(entry.Model, opts...)
	})

	// ── Audio ─────────────────────────────────────────────────────────────────
	// wavfile replays a recorded drive for bench testing. With loop: true the
	// source sits behind a reconnector that reopens the file when it ends.
	reg.RegisterAudio("wavfile", func(entry config.ProviderEntry) (audio.Source, error) {
		path := optString(entry.Options, "path")
		if path == "" {
			return nil, fmt.Errorf("audio/wavfile: options.path is required")
		}
		var opts []wavfile.Option
		if ms := optInt(entry.Options, "frame_size_ms"); ms > 0 {
			opts = append(opts, wavfile.WithFrameSize(ms))
		}
		if optBool(entry.Options, "realtime") {
			opts = append(opts, wavfile.WithRealtimePacing())
		}
		if optBool(entry.Options, "loop") {
			return audio.NewReconnector(audio.ReconnectorConfig{
				Open: func() (audio.Source, error) { return wavfile.New(path, opts...), nil },
			}), nil
		}
		return wavfile.New(path, opts...), nil
	})

	// Debug log of all registered providers.
	for kind, names := range builtinProviders {
		for _, name := range names {
			slog.Debug("registered provider", "kind", kind, "name", name)
		}
	}
}

// buildProviders instantiates all providers named in cfg using the registry
// and returns them in an [app.Providers] struct for the application to consume.
func buildProviders(cfg *config.Config, reg *config.Registry) (*app.Providers, error) {
	ps := &app.Providers{}

	if name := cfg.Providers.LLM.Name; name != "" {
		p, err := reg.CreateLLM(cfg.Providers.LLM)
		if errors.Is(err, config.ErrProviderNotRegistered) {
			slog.Debug("provider not registered, skipping", "kind", "llm", "name", name)
		} else if err != nil {
			return nil, fmt.Errorf("create llm provider %q: %w", name, err)
		} else {
			ps.LLM = p
			slog.Info("provider created", "kind", "llm", "name", name)
		}
	}

	if name := cfg.Providers.ASR.Name; name != "" {
		p, err := reg.CreateASR(cfg.Providers.ASR)
		if errors.Is(err, config.ErrProviderNotRegistered) {
			slog.Debug("provider not registered, skipping", "kind", "asr", "name", name)
		} else if err != nil {
			return nil, fmt.Errorf("create asr provider %q: %w", name, err)
		} else {
			ps.ASR = p
			slog.Info("provider created", "kind", "asr", "name", name)
		}
	}

	if name := cfg.Providers.TTS.Name; name != "" {
		p, err := reg.CreateTTS(cfg.Providers.TTS)
		if errors.Is(err, config.ErrProviderNotRegistered) {
			slog.Debug("provider not registered, skipping", "kind", "tts", "name", name)
		} else if err != nil {
			return nil, fmt.Errorf("create tts provider %q: %w", name, err)
		} else {
			ps.TTS = p
			slog.Info("provider created", "kind", "tts", "name", name)
		}
	}

	if name := cfg.Providers.VAD.Name; name != "" {
		p, err := reg.CreateVAD(cfg.Providers.VAD)
		if errors.Is(err, config.ErrProviderNotRegistered) {
			slog.Debug("provider not registered, skipping", "kind", "vad", "name", name)
		} else if err != nil {
			return nil, fmt.Errorf("create vad provider %q: %w", name, err)
		} else {
			ps.VAD = p
			slog.Info("provider created", "kind", "vad", "name", name)
		}
	}

	if name := cfg.Providers.Wakeword.Name; name != "" {
		p, err := reg.CreateWakeword(cfg.Providers.Wakeword)
		if errors.Is(err, config.ErrProviderNotRegistered) {
			slog.Debug("provider not registered, skipping", "kind", "wakeword", "name", name)
		} else if err != nil {
			return nil, fmt.Errorf("create wakeword provider %q: %w", name, err)
		} else {
			ps.Wakeword = p
			slog.Info("provider created", "kind", "wakeword", "name", name)
		}
	}

	if name := cfg.Providers.Embeddings.Name; name != "" {
		p, err := reg.CreateEmbeddings(cfg.Providers.Embeddings)
		if errors.Is(err, config.ErrProviderNotRegistered) {
			slog.Debug("provider not registered, skipping", "kind", "embeddings", "name", name)
		} else if err != nil {
			return nil, fmt.Errorf("create embeddings provider %q: %w", name, err)
		} else {
			ps.Embeddings = p
			slog.Info("provider created", "kind", "embeddings", "name", name)
		}
	}

	if name := cfg.Providers.Audio.Name; name != "" {
		p, err := reg.CreateAudio(cfg.Providers.Audio)
		if errors.Is(err, config.ErrProviderNotRegistered) {
			slog.Debug("provider not registered, skipping", "kind", "audio", "name", name)
		} else if err != nil {
			return nil, fmt.Errorf("create audio provider %q: %w", name, err)
		} else {
			ps.Audio = p
			slog.Info("provider created", "kind", "audio", "name", name)
		}
	}

	return ps, nil
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║          Kiwi startup summary         ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printProvider("LLM", cfg.Providers.LLM.Name, cfg.Providers.LLM.Model)
	printProvider("ASR", cfg.Providers.ASR.Name, cfg.Providers.ASR.Model)
	printProvider("TTS", cfg.Providers.TTS.Name, cfg.Providers.TTS.Model)
	printProvider("VAD", cfg.Providers.VAD.Name, "")
	printProvider("Wakeword", cfg.Providers.Wakeword.Name, "")
	printProvider("Embeddings", cfg.Providers.Embeddings.Name, cfg.Providers.Embeddings.Model)
	printProvider("Audio", cfg.Providers.Audio.Name, "")
	fmt.Printf("║  Agents          : %-19d ║\n", len(cfg.Agents))
	fmt.Printf("║  MCP servers     : %-19d ║\n", len(cfg.MCP.Servers))
	if cfg.Memory.PostgresDSN != "" {
		fmt.Printf("║  Memory          : %-19s ║\n", "postgres")
	} else {
		fmt.Printf("║  Memory          : %-19s ║\n", "in-memory")
	}
	if cfg.Server.GUIAddr != "" {
		fmt.Printf("║  GUI             : %-19s ║\n", cfg.Server.GUIAddr)
	} else {
		fmt.Printf("║  GUI             : %-19s ║\n", "(disabled)")
	}
	if cfg.Server.HealthAddr != "" {
		fmt.Printf("║  Health          : %-19s ║\n", cfg.Server.HealthAddr)
	} else {
		fmt.Printf("║  Health          : %-19s ║\n", "(disabled)")
	}
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printProvider(kind, name, model string) {
	value := name
	if value == "" {
		value = "(not configured)"
	} else if model != "" {
		value = name + " / " + model
	}
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Printf("║  %-12s    : %-19s ║\n", kind, value)
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func newLogger(level config.LogLevel) *slog.Logger {
	logLevel.Set(slogLevel(level))
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
}

func slogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ── Helpers ───────────────────────────────────────────────────────────────────

// optString extracts a string value from a provider Options map[string]any.
// Returns "" if the map is nil, the key is absent, or the value is not a string.
func optString(opts map[string]any, key string) string {
	if opts == nil {
		return ""
	}
	s, _ := opts[key].(string)
	return s
}

// optInt extracts an integer option. YAML decodes bare numbers as int, but a
// hand-edited value may arrive as float64.
func optInt(opts map[string]any, key string) int {
	if opts == nil {
		return 0
	}
	switch v := opts[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}

// optFloat extracts a float option, accepting integer literals too.
func optFloat(opts map[string]any, key string) float64 {
	if opts == nil {
		return 0
	}
	switch v := opts[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return 0
}

// optBool extracts a boolean option.
func optBool(opts map[string]any, key string) bool {
	if opts == nil {
		return false
	}
	b, _ := opts[key].(bool)
	return b
}
