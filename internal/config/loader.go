package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/kiwivoice/kiwi/internal/execution"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"llm":        {"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"asr":        {"whisper"},
	"tts":        {"piper"},
	"vad":        {"energy", "silero"},
	"wakeword":   {"openwakeword"},
	"embeddings": {"openai"},
	"audio":      {"wavfile", "alsa"},
}

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validCategories is the tool category namespace agents may bind to.
var validCategories = []string{
	string(execution.CategoryVehicleControl),
	string(execution.CategoryClimate),
	string(execution.CategoryEntertainment),
	string(execution.CategoryNavigation),
	string(execution.CategoryWindow),
	string(execution.CategorySeat),
	string(execution.CategoryLighting),
	string(execution.CategorySafety),
	string(execution.CategoryCommunication),
	string(execution.CategoryInformation),
	string(execution.CategoryEnergy),
	string(execution.CategoryADAS),
	string(execution.CategoryDoor),
	string(execution.CategoryWiper),
	string(execution.CategoryAmbient),
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Provider name validation — warn for unknown provider names.
	validateProviderName("llm", cfg.Providers.LLM.Name)
	validateProviderName("asr", cfg.Providers.ASR.Name)
	validateProviderName("tts", cfg.Providers.TTS.Name)
	validateProviderName("vad", cfg.Providers.VAD.Name)
	validateProviderName("wakeword", cfg.Providers.Wakeword.Name)
	validateProviderName("embeddings", cfg.Providers.Embeddings.Name)
	validateProviderName("audio", cfg.Providers.Audio.Name)

	// Pipeline
	if t := cfg.Pipeline.SpeechThreshold; t != 0 && (t <= 0 || t > 1) {
		errs = append(errs, fmt.Errorf("pipeline.speech_threshold %.2f is out of range (0, 1]", t))
	}
	if cfg.Pipeline.SampleRate < 0 {
		errs = append(errs, fmt.Errorf("pipeline.sample_rate must be positive"))
	}
	if cfg.Pipeline.WakeTimeout < 0 {
		errs = append(errs, fmt.Errorf("pipeline.wake_timeout must be positive"))
	}

	// Session
	if cfg.Session.TTL < 0 {
		errs = append(errs, fmt.Errorf("session.ttl must be positive"))
	}

	// Availability warnings
	if cfg.Providers.LLM.Name == "" && len(cfg.Agents) > 0 {
		slog.Warn("no LLM provider configured; agents degrade to rule-based and verbatim behaviour")
	}
	if cfg.Providers.Embeddings.Name != "" && cfg.Memory.EmbeddingDimensions <= 0 {
		slog.Warn("providers.embeddings is configured but memory.embedding_dimensions is not set; defaulting to 1536")
	}
	if cfg.Memory.PostgresDSN == "" && cfg.Providers.Embeddings.Name != "" {
		slog.Warn("memory.postgres_dsn is empty; semantic recall uses the in-process vector store")
	}

	// Agents
	agentNamesSeen := make(map[string]int, len(cfg.Agents))
	for i, a := range cfg.Agents {
		prefix := fmt.Sprintf("agents[%d]", i)
		if a.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
		} else {
			if prev, ok := agentNamesSeen[a.Name]; ok {
				errs = append(errs, fmt.Errorf("%s.name %q is a duplicate of agents[%d]", prefix, a.Name, prev))
			}
			agentNamesSeen[a.Name] = i
		}
		if !a.Kind.IsValid() {
			errs = append(errs, fmt.Errorf("%s.kind %q is invalid; valid values: chat, tool, session, planner", prefix, a.Kind))
		}
		if a.Priority < 0 || a.Priority > 100 {
			errs = append(errs, fmt.Errorf("%s.priority %d is out of range [0, 100]", prefix, a.Priority))
		}

		switch a.Kind {
		case AgentTool:
			for _, cat := range a.Categories {
				if !slices.Contains(validCategories, cat) {
					errs = append(errs, fmt.Errorf("%s.categories: unknown tool category %q", prefix, cat))
				}
			}
		case AgentSession:
			if len(a.Slots) == 0 {
				errs = append(errs, fmt.Errorf("%s: kind \"session\" requires at least one slot", prefix))
			}
			for j, slot := range a.Slots {
				if slot.Key == "" || slot.Prompt == "" {
					errs = append(errs, fmt.Errorf("%s.slots[%d]: key and prompt are required", prefix, j))
				}
			}
		}
	}

	// External MCP servers
	mcpNamesSeen := make(map[string]int, len(cfg.MCP.Servers))
	for i, s := range cfg.MCP.Servers {
		prefix := fmt.Sprintf("mcp.servers[%d]", i)
		if s.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
		} else {
			if prev, ok := mcpNamesSeen[s.Name]; ok {
				errs = append(errs, fmt.Errorf("%s.name %q is a duplicate of mcp.servers[%d]", prefix, s.Name, prev))
			}
			mcpNamesSeen[s.Name] = i
		}
		if s.Command == "" {
			errs = append(errs, fmt.Errorf("%s.command is required", prefix))
		}
		if s.Category != "" && !slices.Contains(validCategories, s.Category) {
			errs = append(errs, fmt.Errorf("%s.category: unknown tool category %q", prefix, s.Category))
		}
	}

	// Evaluation
	if cfg.Evaluation.Cases != "" && cfg.Evaluation.Report == "" {
		slog.Warn("evaluation.cases is set but evaluation.report is empty; report goes to stdout")
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name — may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
