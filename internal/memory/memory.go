// Package memory is the conversation memory subsystem: a bounded short-term
// ring of conversation turns mirrored into a vector collection for semantic
// recall, and a distilled long-term record (summary, user profile,
// preferences) refreshed by an LLM every few turns and persisted as JSON.
//
// Vector-store and file failures are logged and never fail the conversation:
// the in-memory ring keeps working for the life of the process.
package memory

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"sync"
	"time"

	"github.com/kiwivoice/kiwi/pkg/provider/embeddings"
	"github.com/kiwivoice/kiwi/pkg/provider/llm"
	"github.com/kiwivoice/kiwi/pkg/vectordb"
)

const (
	// shortTermCollection holds one vector per conversation turn.
	shortTermCollection = "short_term_memories"

	// longTermCollection holds one vector per profile/preference field.
	longTermCollection = "long_term_memories"
)

// ShortTermMemory is one completed conversation turn.
type ShortTermMemory struct {
	ID        string         `json:"id"`
	Query     string         `json:"query"`
	Response  string         `json:"response"`
	Timestamp time.Time      `json:"timestamp"`
	Agent     string         `json:"agent"`
	ToolsUsed []string       `json:"tools_used,omitempty"`
	Success   bool           `json:"success"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Recalled pairs a recalled turn with its similarity score (1 - cosine
// distance, so 1.0 is identical).
type Recalled struct {
	ShortTermMemory
	Score float64
}

// Config configures a Manager. Zero values take the documented defaults.
type Config struct {
	// ShortTermCap bounds the in-memory ring. Default 100.
	ShortTermCap int

	// TriggerCount runs long-term distillation every N appends. Default 10.
	TriggerCount int

	// MaxHistoryRounds caps how many recent turns feed one distillation.
	// Default 30.
	MaxHistoryRounds int

	// RelatedThreshold is the minimum similarity score for Related recall.
	// Default 0.7.
	RelatedThreshold float64

	// HistoryWindowTokens is the token budget for the rolling summary of
	// turns evicted from the ring. Default 2000.
	HistoryWindowTokens int

	// LongTermFile is the JSON persistence path. Empty disables file
	// persistence.
	LongTermFile string

	Logger *slog.Logger
}

func (c *Config) applyDefaults() {
	if c.ShortTermCap <= 0 {
		c.ShortTermCap = 100
	}
	if c.TriggerCount <= 0 {
		c.TriggerCount = 10
	}
	if c.MaxHistoryRounds <= 0 {
		c.MaxHistoryRounds = 30
	}
	if c.RelatedThreshold <= 0 {
		c.RelatedThreshold = 0.7
	}
	if c.HistoryWindowTokens <= 0 {
		c.HistoryWindowTokens = 2000
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Manager owns both memory tiers. All writes are serialized by one mutex so
// ring order and vector ids stay consistent; reads copy under the lock.
type Manager struct {
	embedder embeddings.Provider
	vectors  vectordb.Store
	llm      llm.Provider  // nil disables distillation
	window   *DialogWindow // nil when no llm is available to summarise
	cfg      Config
	log      *slog.Logger

	mu            sync.Mutex
	ring          []ShortTermMemory
	appended      int64 // total appends, drives ids and the distillation trigger
	lastDistilled int64 // appended count at the last successful distillation
	longTerm      LongTermMemory
}

// NewManager builds a Manager and loads the long-term record from
// cfg.LongTermFile when the file exists. A load failure logs and starts
// empty.
func NewManager(embedder embeddings.Provider, vectors vectordb.Store, model llm.Provider, cfg Config) *Manager {
	cfg.applyDefaults()
	m := &Manager{
		embedder: embedder,
		vectors:  vectors,
		llm:      model,
		cfg:      cfg,
		log:      cfg.Logger.With("component", "memory"),
		longTerm: newLongTermMemory(),
	}
	if model != nil {
		m.window = NewDialogWindow(DialogWindowConfig{
			MaxTokens:  cfg.HistoryWindowTokens,
			Summariser: NewLLMSummariser(model),
		})
	}

	if cfg.LongTermFile != "" {
		if lt, err := loadLongTerm(cfg.LongTermFile); err != nil {
			m.log.Warn("long-term memory load failed, starting empty",
				"file", cfg.LongTermFile, "error", err)
		} else if lt != nil {
			m.longTerm = *lt
			m.log.Info("long-term memory loaded",
				"file", cfg.LongTermFile, "update_count", lt.Metadata.UpdateCount)
		}
	}
	return m
}

// Append records one completed turn: it joins the ring (evicting the oldest
// past capacity into the rolling history window) and is upserted into the
// short-term vector collection under a monotonically increasing id. Every
// TriggerCount appends the long-term record is re-distilled.
//
// The returned error reflects only the ring append, which cannot fail today;
// embedding, vector, and distillation failures are logged and swallowed.
func (m *Manager) Append(ctx context.Context, mem ShortTermMemory) error {
	if mem.Timestamp.IsZero() {
		mem.Timestamp = time.Now()
	}

	m.mu.Lock()
	m.appended++
	mem.ID = fmt.Sprintf("stm_%06d", m.appended)
	m.ring = append(m.ring, mem)
	var evicted []ShortTermMemory
	if cut := len(m.ring) - m.cfg.ShortTermCap; cut > 0 {
		evicted = make([]ShortTermMemory, cut)
		copy(evicted, m.ring[:cut])
		m.ring = m.ring[cut:]
	}
	distill := m.appended%int64(m.cfg.TriggerCount) == 0
	m.mu.Unlock()

	m.indexTurn(ctx, mem)

	if m.window != nil && len(evicted) > 0 {
		if err := m.window.Absorb(ctx, evicted...); err != nil {
			m.log.Warn("history window absorb failed", "error", err)
		}
	}

	if distill {
		m.log.Info("distillation triggered", "appended", m.appended)
		m.distill(ctx)
	}
	return nil
}

// indexTurn embeds the turn text and upserts it into the vector store.
func (m *Manager) indexTurn(ctx context.Context, mem ShortTermMemory) {
	text := fmt.Sprintf("user: %s\nassistant: %s", mem.Query, mem.Response)
	vec, err := m.embedder.Embed(ctx, text)
	if err != nil {
		m.log.Warn("turn embedding failed", "id", mem.ID, "error", err)
		return
	}
	doc := vectordb.Document{
		ID:        mem.ID,
		Embedding: vec,
		Content:   text,
		Metadata: map[string]string{
			"agent":     mem.Agent,
			"timestamp": mem.Timestamp.UTC().Format(time.RFC3339),
		},
	}
	if err := m.vectors.Upsert(ctx, shortTermCollection, doc); err != nil {
		m.log.Warn("turn vector upsert failed", "id", mem.ID, "error", err)
	}
}

// Recent returns the last n turns in insertion order (oldest first).
func (m *Manager) Recent(n int) []ShortTermMemory {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n <= 0 || len(m.ring) == 0 {
		return []ShortTermMemory{}
	}
	if n > len(m.ring) {
		n = len(m.ring)
	}
	out := make([]ShortTermMemory, n)
	copy(out, m.ring[len(m.ring)-n:])
	return out
}

// Related recalls up to topK turns semantically similar to query, keeping
// only scores at or above the configured threshold and dropping anything
// already visible in the Recent(topK) window.
func (m *Manager) Related(ctx context.Context, query string, topK int) ([]Recalled, error) {
	if topK <= 0 {
		return []Recalled{}, nil
	}

	vec, err := m.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("memory: embed query: %w", err)
	}

	// Over-fetch so threshold and dedup filtering still leave topK results.
	matches, err := m.vectors.Query(ctx, shortTermCollection, vec, topK*3)
	if err != nil {
		return nil, fmt.Errorf("memory: vector query: %w", err)
	}

	recent := map[string]bool{}
	byID := map[string]ShortTermMemory{}
	m.mu.Lock()
	for _, turn := range m.ring {
		byID[turn.ID] = turn
	}
	start := len(m.ring) - topK
	if start < 0 {
		start = 0
	}
	for _, turn := range m.ring[start:] {
		recent[turn.ID] = true
	}
	m.mu.Unlock()

	out := make([]Recalled, 0, topK)
	for _, match := range matches {
		score := 1 - match.Distance
		if score < m.cfg.RelatedThreshold || recent[match.ID] {
			continue
		}
		turn, ok := byID[match.ID]
		if !ok {
			// Evicted from the ring but still indexed; reconstruct from the
			// stored document.
			turn = ShortTermMemory{ID: match.ID, Query: match.Content, Agent: match.Metadata["agent"]}
		}
		out = append(out, Recalled{ShortTermMemory: turn, Score: score})
		if len(out) == topK {
			break
		}
	}
	return out, nil
}

// LongTerm returns a copy of the current long-term record.
func (m *Manager) LongTerm() LongTermMemory {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.longTerm.clone()
}

// HistorySummary returns the rolling summary of turns that aged out of the
// short-term ring, or the empty string when none have been compressed yet.
func (m *Manager) HistorySummary() string {
	if m.window == nil {
		return ""
	}
	return m.window.Summary()
}

// DistillIfStale runs a distillation when turns have been appended since the
// last successful one. It reports whether a distillation was attempted.
// [Consolidator] calls this periodically so memory between trigger points
// still reaches disk, and shutdown calls it for a final flush.
func (m *Manager) DistillIfStale(ctx context.Context) bool {
	if m.llm == nil {
		return false
	}
	m.mu.Lock()
	stale := m.appended > m.lastDistilled
	m.mu.Unlock()
	if !stale {
		return false
	}
	m.distill(ctx)
	return true
}

// Stats reports ring occupancy and distillation progress.
func (m *Manager) Stats() map[string]any {
	held := 0
	if m.window != nil {
		held = m.window.Held()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return map[string]any{
		"short_term_count":  len(m.ring),
		"total_appends":     m.appended,
		"long_term_updates": m.longTerm.Metadata.UpdateCount,
		"window_held":       held,
	}
}

// snapshotHistory copies the distillation window out of the ring.
func (m *Manager) snapshotHistory() []ShortTermMemory {
	m.mu.Lock()
	defer m.mu.Unlock()
	start := len(m.ring) - m.cfg.MaxHistoryRounds
	if start < 0 {
		start = 0
	}
	out := make([]ShortTermMemory, len(m.ring)-start)
	copy(out, m.ring[start:])
	return out
}

func cloneAnyMap(in map[string]any) map[string]any {
	if in == nil {
		return map[string]any{}
	}
	return maps.Clone(in)
}
