// Package evaluation replays scripted utterances through the live pipeline
// and scores the outcomes.
//
// The evaluator bypasses the audio front-end: it injects recognition results
// directly onto the bus, exactly as the ASR adapter would publish them, then
// polls the message tracker until each utterance settles. Cases that expect a
// follow-up question carry scripted answers which are injected in turn, so
// multi-round agent dialogues are exercised end to end.
package evaluation

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/kiwivoice/kiwi/internal/bus"
	"github.com/kiwivoice/kiwi/internal/event"
	"github.com/kiwivoice/kiwi/internal/tracker"
	"github.com/kiwivoice/kiwi/pkg/provider/llm"
	"github.com/kiwivoice/kiwi/pkg/types"
)

// Case is one scripted evaluation utterance.
type Case struct {
	ID       string `json:"id"`
	Category string `json:"category"`
	Query    string `json:"query"`

	// ExpectedAgent is the agent that should handle the query.
	ExpectedAgent string `json:"expected_agent"`

	// FollowUps are answers injected whenever the pipeline asks a follow-up
	// question, in order.
	FollowUps []string `json:"follow_ups,omitempty"`
}

// CaseResult is the scored outcome of one case.
type CaseResult struct {
	ID       string  `json:"id"`
	Category string  `json:"category"`
	Query    string  `json:"query"`
	Response string  `json:"response"`
	Agent    string  `json:"agent"`
	Expected string  `json:"expected_agent"`
	Status   string  `json:"status"`
	Rounds   int     `json:"rounds"`
	Match    bool    `json:"agent_match"`
	Quality  float64 `json:"quality"`
	Latency  int64   `json:"latency_ms"`
	Error    string  `json:"error,omitempty"`
}

// CategoryStats aggregates the results of one case category.
type CategoryStats struct {
	Cases      int     `json:"cases"`
	MatchRate  float64 `json:"agent_match_rate"`
	AvgQuality float64 `json:"avg_quality"`
	AvgLatency int64   `json:"avg_latency_ms"`
}

// Report is the full evaluation outcome.
type Report struct {
	StartedAt  time.Time                `json:"started_at"`
	FinishedAt time.Time                `json:"finished_at"`
	Total      int                      `json:"total"`
	Matched    int                      `json:"matched"`
	AvgQuality float64                  `json:"avg_quality"`
	AvgLatency int64                    `json:"avg_latency_ms"`
	Categories map[string]CategoryStats `json:"categories"`
	Results    []CaseResult             `json:"results"`
}

// Config tunes the runner.
type Config struct {
	// Timeout bounds how long one round may take to settle. Default: 30s.
	Timeout time.Duration

	// PollInterval is the tracker polling cadence. Default: 25ms.
	PollInterval time.Duration

	// UserID attached to injected utterances. Default: "evaluator".
	UserID string

	// Judge scores response quality. Nil falls back to rule-based scoring.
	Judge llm.Provider

	Logger *slog.Logger
}

// Runner drives cases through the pipeline.
type Runner struct {
	bus     *bus.Bus
	tracker *tracker.Tracker
	cfg     Config
	log     *slog.Logger
}

// NewRunner creates a Runner publishing on b and observing tk.
func NewRunner(b *bus.Bus, tk *tracker.Tracker, cfg Config) *Runner {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 25 * time.Millisecond
	}
	if cfg.UserID == "" {
		cfg.UserID = "evaluator"
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Runner{bus: b, tracker: tk, cfg: cfg, log: log.With("component", "evaluation")}
}

// LoadCases reads a JSONL case file. Blank lines are skipped; any malformed
// line fails the load.
func LoadCases(path string) ([]Case, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("evaluation: open cases: %w", err)
	}
	defer f.Close()

	var cases []Case
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		var c Case
		if err := json.Unmarshal([]byte(text), &c); err != nil {
			return nil, fmt.Errorf("evaluation: cases line %d: %w", line, err)
		}
		if c.ID == "" || c.Query == "" {
			return nil, fmt.Errorf("evaluation: cases line %d: id and query are required", line)
		}
		cases = append(cases, c)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("evaluation: read cases: %w", err)
	}
	return cases, nil
}

// Run executes every case sequentially and aggregates the report. Cases run
// one at a time because they share the pipeline's single user session stack.
func (r *Runner) Run(ctx context.Context, cases []Case) (*Report, error) {
	report := &Report{
		StartedAt:  time.Now(),
		Categories: make(map[string]CategoryStats),
	}

	for _, c := range cases {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		result := r.runCase(ctx, c)
		report.Results = append(report.Results, result)
		r.log.Info("case finished",
			"case", c.ID, "agent", result.Agent, "match", result.Match,
			"quality", result.Quality, "latency_ms", result.Latency)
	}

	report.FinishedAt = time.Now()
	aggregate(report)
	return report, nil
}

// runCase injects the query, follows the dialogue through scripted answers,
// and scores the final state.
func (r *Runner) runCase(ctx context.Context, c Case) CaseResult {
	result := CaseResult{
		ID: c.ID, Category: c.Category, Query: c.Query, Expected: c.ExpectedAgent,
	}
	started := time.Now()

	trace, err := r.round(ctx, c.Query)
	result.Rounds = 1

	followUps := c.FollowUps
	for err == nil && trace.Status == tracker.StatusWaitingInput && len(followUps) > 0 {
		answer := followUps[0]
		followUps = followUps[1:]
		trace, err = r.round(ctx, answer)
		result.Rounds++
	}

	result.Latency = time.Since(started).Milliseconds()
	if err != nil {
		result.Status = "timeout"
		result.Error = err.Error()
		return result
	}

	result.Status = string(trace.Status)
	result.Response = trace.Response
	result.Agent = handlingAgent(trace)
	result.Match = c.ExpectedAgent == "" || result.Agent == c.ExpectedAgent
	result.Quality = r.scoreQuality(ctx, c, trace)
	return result
}

// round injects one utterance and waits for its trace to settle.
func (r *Runner) round(ctx context.Context, text string) (tracker.Trace, error) {
	id := r.tracker.Begin(text)

	ev := event.New(event.KindASRSuccess, "evaluation")
	ev.MessageID = id
	ev.Payload = event.ASRResult{Text: text, Confidence: 1.0, UserID: r.cfg.UserID}
	r.bus.Publish(ev)

	deadline := time.Now().Add(r.cfg.Timeout)
	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()
	for {
		trace, ok := r.tracker.Get(id)
		if ok && trace.Status != tracker.StatusPending {
			return trace, nil
		}
		if time.Now().After(deadline) {
			return trace, fmt.Errorf("evaluation: utterance %q did not settle within %s", text, r.cfg.Timeout)
		}
		select {
		case <-ctx.Done():
			return trace, ctx.Err()
		case <-ticker.C:
		}
	}
}

// handlingAgent extracts the selected agent from the orchestrator's trace
// entry.
func handlingAgent(trace tracker.Trace) string {
	for _, entry := range trace.Entries {
		if entry.Stage != "orchestrator" {
			continue
		}
		if i := strings.Index(entry.Output, " ("); i > 0 {
			return entry.Output[:i]
		}
		return entry.Output
	}
	return ""
}

// judgePrompt asks for a bare score so parsing stays trivial.
const judgePrompt = `You grade an in-car voice assistant's reply.
Score how well the reply answers the user's request on a scale from 0.0 to 1.0.
Reply with only the number.`

// scoreQuality grades the final response, preferring the LLM judge and
// falling back to rules when no judge is configured or it misbehaves.
func (r *Runner) scoreQuality(ctx context.Context, c Case, trace tracker.Trace) float64 {
	if r.cfg.Judge != nil {
		resp, err := r.cfg.Judge.Complete(ctx, llm.CompletionRequest{
			SystemPrompt: judgePrompt,
			Messages: []types.Message{{
				Role:    "user",
				Content: fmt.Sprintf("Request: %s\nReply: %s", c.Query, trace.Response),
			}},
			Temperature: 0.0,
		})
		if err == nil {
			if score, ok := parseScore(resp.Content); ok {
				return score
			}
			r.log.Warn("judge reply not a score", "case", c.ID, "reply", resp.Content)
		} else {
			r.log.Warn("judge unavailable, falling back to rules", "case", c.ID, "error", err)
		}
	}
	return ruleScore(trace)
}

// ruleScore is the judge-free fallback: settled with a real reply scores
// well, failures score zero.
func ruleScore(trace tracker.Trace) float64 {
	switch trace.Status {
	case tracker.StatusCompleted:
		if strings.TrimSpace(trace.Response) == "" {
			return 0.3
		}
		return 0.8
	case tracker.StatusWaitingInput:
		return 0.5
	default:
		return 0.0
	}
}

func parseScore(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	var score float64
	if _, err := fmt.Sscanf(s, "%f", &score); err != nil {
		return 0, false
	}
	if score < 0 || score > 1 {
		return 0, false
	}
	return score, true
}

// aggregate fills the report's totals and category breakdown.
func aggregate(report *Report) {
	report.Total = len(report.Results)
	if report.Total == 0 {
		return
	}

	type acc struct {
		cases   int
		matched int
		quality float64
		latency int64
	}
	perCategory := make(map[string]*acc)

	var matched int
	var quality float64
	var latency int64
	for _, res := range report.Results {
		if res.Match {
			matched++
		}
		quality += res.Quality
		latency += res.Latency

		cat := res.Category
		if cat == "" {
			cat = "uncategorized"
		}
		a := perCategory[cat]
		if a == nil {
			a = &acc{}
			perCategory[cat] = a
		}
		a.cases++
		if res.Match {
			a.matched++
		}
		a.quality += res.Quality
		a.latency += res.Latency
	}

	report.Matched = matched
	report.AvgQuality = quality / float64(report.Total)
	report.AvgLatency = latency / int64(report.Total)
	for cat, a := range perCategory {
		report.Categories[cat] = CategoryStats{
			Cases:      a.cases,
			MatchRate:  float64(a.matched) / float64(a.cases),
			AvgQuality: a.quality / float64(a.cases),
			AvgLatency: a.latency / int64(a.cases),
		}
	}
}

// WriteReport writes the report as indented JSON.
func WriteReport(report *Report, path string) error {
	raw, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("evaluation: encode report: %w", err)
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return fmt.Errorf("evaluation: write report: %w", err)
	}
	return nil
}
