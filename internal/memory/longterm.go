package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/kiwivoice/kiwi/pkg/provider/llm"
	"github.com/kiwivoice/kiwi/pkg/types"
	"github.com/kiwivoice/kiwi/pkg/vectordb"
)

// LongTermMemory is the distilled user record built up over many turns.
type LongTermMemory struct {
	// Summary is a short free-text synopsis of the conversation history.
	Summary string `json:"summary"`

	// Profile holds identity facts (name, occupation, location, ...).
	Profile map[string]any `json:"profile"`

	// Preferences holds interest lists keyed by topic (music, food, ...).
	Preferences map[string]any `json:"preferences"`

	Metadata LongTermMetadata `json:"metadata"`
}

// LongTermMetadata tracks the record's update history.
type LongTermMetadata struct {
	// LastUpdate is epoch seconds of the most recent merge.
	LastUpdate float64 `json:"last_update"`

	// UpdateCount is the number of merges applied since the record was created.
	UpdateCount int `json:"update_count"`
}

func newLongTermMemory() LongTermMemory {
	return LongTermMemory{
		Profile:     map[string]any{},
		Preferences: map[string]any{},
	}
}

func (lt LongTermMemory) clone() LongTermMemory {
	out := lt
	out.Profile = cloneAnyMap(lt.Profile)
	out.Preferences = cloneAnyMap(lt.Preferences)
	return out
}

// merge folds newly distilled data into the record. A non-empty incoming
// summary replaces the old one. Profile values only fill in where the
// existing value is empty, so established facts are not overwritten.
// Preference lists accumulate with deduplication.
func (lt *LongTermMemory) merge(in distilled, now time.Time) {
	if in.Summary != "" {
		lt.Summary = in.Summary
	}

	for key, value := range in.Profile {
		if isEmptyValue(value) {
			continue
		}
		if existing, ok := lt.Profile[key]; !ok || isEmptyValue(existing) {
			lt.Profile[key] = value
		}
	}

	for key, value := range in.Preferences {
		list, isList := toStringList(value)
		if isList {
			existing, _ := toStringList(lt.Preferences[key])
			merged := unionStrings(existing, list)
			if len(merged) > 0 {
				lt.Preferences[key] = merged
			}
			continue
		}
		if !isEmptyValue(value) {
			lt.Preferences[key] = value
		}
	}

	lt.Metadata.LastUpdate = float64(now.Unix())
	lt.Metadata.UpdateCount++
}

// distilled is the JSON shape the distillation prompt asks the model for.
type distilled struct {
	Summary     string         `json:"summary"`
	Profile     map[string]any `json:"profile"`
	Preferences map[string]any `json:"preferences"`
}

const distillSystemPrompt = "You are a user profiling system that extracts key facts about a user from conversation history."

// distill runs the LLM over the recent history and merges the result into the
// long-term record, persisting to disk and the vector store. All failures log
// and leave the previous record in place.
func (m *Manager) distill(ctx context.Context) {
	if m.llm == nil {
		m.log.Debug("no llm configured, skipping distillation")
		return
	}

	history := m.snapshotHistory()
	if len(history) == 0 {
		return
	}

	prompt, err := m.buildDistillPrompt(history)
	if err != nil {
		m.log.Warn("distillation prompt build failed", "error", err)
		return
	}

	resp, err := m.llm.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: distillSystemPrompt,
		Messages:     []types.Message{{Role: "user", Content: prompt}},
		Temperature:  0.3,
	})
	if err != nil {
		m.log.Warn("distillation llm call failed", "error", err)
		return
	}

	var extracted distilled
	if err := json.Unmarshal([]byte(extractJSONObject(resp.Content)), &extracted); err != nil {
		m.log.Warn("distillation response not parseable", "error", err)
		return
	}

	m.mu.Lock()
	m.longTerm.merge(extracted, time.Now())
	m.lastDistilled = m.appended
	record := m.longTerm.clone()
	m.mu.Unlock()

	if m.cfg.LongTermFile != "" {
		if err := saveLongTerm(m.cfg.LongTermFile, record); err != nil {
			m.log.Warn("long-term memory persist failed", "error", err)
		}
	}
	m.indexLongTerm(ctx, record)
	m.log.Info("long-term memory updated", "update_count", record.Metadata.UpdateCount)
}

func (m *Manager) buildDistillPrompt(history []ShortTermMemory) (string, error) {
	type turn struct {
		User      string  `json:"user"`
		Assistant string  `json:"assistant"`
		Timestamp float64 `json:"timestamp"`
	}
	turns := make([]turn, len(history))
	for i, h := range history {
		turns[i] = turn{User: h.Query, Assistant: h.Response, Timestamp: float64(h.Timestamp.Unix())}
	}

	m.mu.Lock()
	profile, errP := json.Marshal(m.longTerm.Profile)
	prefs, errQ := json.Marshal(m.longTerm.Preferences)
	m.mu.Unlock()
	if errP != nil || errQ != nil {
		return "", fmt.Errorf("memory: encode current record: %v %v", errP, errQ)
	}
	conversations, err := json.MarshalIndent(turns, "", "  ")
	if err != nil {
		return "", fmt.Errorf("memory: encode history: %w", err)
	}

	return fmt.Sprintf(`Analyze the conversation history and produce the user's long-term memory record.

Conversation history:
%s

Current user profile:
%s

Current user preferences:
%s

Requirements:
1. Extract identity facts (name, age, occupation, location, family members).
2. Extract interests and tastes (music, food, sports, travel, language).
3. Write an overall summary of the conversations, 100 words or fewer.
4. Update and extend the existing profile and preferences; do not discard accurate existing information.
5. Only extract facts stated explicitly; never guess.

Output a single valid JSON object and nothing else:
{
  "summary": "...",
  "profile": {"name": "", "age": null, "gender": "", "occupation": "", "location": "", "family": [], "other_facts": []},
  "preferences": {"music": [], "food": [], "sports": [], "travel": [], "language": "", "other_interests": []}
}
Leave fields empty when the conversations do not mention them.`,
		conversations, profile, prefs), nil
}

// indexLongTerm upserts one vector per non-empty profile/preference field so
// Related recall can surface long-lived facts.
func (m *Manager) indexLongTerm(ctx context.Context, record LongTermMemory) {
	fields := map[string]string{}
	for key, value := range record.Profile {
		if text := fieldText(value); text != "" {
			fields["profile."+key] = text
		}
	}
	for key, value := range record.Preferences {
		if text := fieldText(value); text != "" {
			fields["preferences."+key] = text
		}
	}

	for field, text := range fields {
		vec, err := m.embedder.Embed(ctx, fmt.Sprintf("%s: %s", field, text))
		if err != nil {
			m.log.Warn("long-term field embedding failed", "field", field, "error", err)
			continue
		}
		doc := vectordb.Document{
			ID:        "ltm_" + field,
			Embedding: vec,
			Content:   text,
			Metadata:  map[string]string{"field": field},
		}
		if err := m.vectors.Upsert(ctx, longTermCollection, doc); err != nil {
			m.log.Warn("long-term vector upsert failed", "field", field, "error", err)
		}
	}
}

// ─── persistence ─────────────────────────────────────────────────────────────

func loadLongTerm(path string) (*LongTermMemory, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("memory: read %s: %w", path, err)
	}
	lt := newLongTermMemory()
	if err := json.Unmarshal(data, &lt); err != nil {
		return nil, fmt.Errorf("memory: decode %s: %w", path, err)
	}
	if lt.Profile == nil {
		lt.Profile = map[string]any{}
	}
	if lt.Preferences == nil {
		lt.Preferences = map[string]any{}
	}
	return &lt, nil
}

// saveLongTerm rewrites the record atomically: write a temp file in the same
// directory, then rename over the target.
func saveLongTerm(path string, record LongTermMemory) error {
	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("memory: encode record: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("memory: create %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".longterm-*.json")
	if err != nil {
		return fmt.Errorf("memory: temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("memory: write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("memory: close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("memory: rename into place: %w", err)
	}
	return nil
}

// ─── helpers ─────────────────────────────────────────────────────────────────

func isEmptyValue(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	case []any:
		return len(t) == 0
	case []string:
		return len(t) == 0
	case map[string]any:
		return len(t) == 0
	}
	return false
}

func toStringList(v any) ([]string, bool) {
	switch t := v.(type) {
	case []string:
		return t, true
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out, true
	}
	return nil, false
}

func unionStrings(a, b []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, s := range append(append([]string{}, a...), b...) {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

func fieldText(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case []string:
		return strings.Join(t, ", ")
	case []any:
		list, _ := toStringList(t)
		return strings.Join(list, ", ")
	case float64:
		return fmt.Sprintf("%v", t)
	case nil:
		return ""
	default:
		data, err := json.Marshal(t)
		if err != nil {
			return ""
		}
		return string(data)
	}
}

// extractJSONObject trims markdown fences and surrounding prose, leaving the
// outermost JSON object.
func extractJSONObject(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return s
	}
	return s[start : end+1]
}
