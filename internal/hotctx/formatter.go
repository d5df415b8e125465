package hotctx

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/kiwivoice/kiwi/internal/execution"
	"github.com/kiwivoice/kiwi/internal/memory"
)

// FormatPromptContext renders tc as a plain-text block for inclusion in a
// system prompt: the rolling history summary, the distilled user record,
// related past exchanges with relative timestamps, and the vehicle status
// line. Recent turns are not rendered; they travel as chat messages.
//
// The formatter is pure and safe for concurrent use. Empty sections are
// omitted entirely; with nothing to render the result is the empty string,
// and a nil tc renders as empty.
func FormatPromptContext(tc *TurnContext) string {
	if tc == nil {
		return ""
	}

	var sections []string

	if s := strings.TrimSpace(tc.HistorySummary); s != "" {
		sections = append(sections, "Earlier in this conversation: "+s)
	}

	if s := formatUserSection(tc.LongTerm); s != "" {
		sections = append(sections, "What you know about the user:\n"+s)
	}

	if s := formatRelatedSection(tc.Related); s != "" {
		sections = append(sections, "Possibly relevant past exchanges:\n"+s)
	}

	if tc.Vehicle != nil {
		sections = append(sections, "Vehicle status: "+FormatVehicleStatus(tc.Vehicle))
	}

	return strings.Join(sections, "\n\n")
}

// ─────────────────────────────────────────────────────────────────────────────
// Internal helpers
// ─────────────────────────────────────────────────────────────────────────────

// formatUserSection renders the long-term record as lines. Returns an empty
// string when the record holds nothing yet.
func formatUserSection(lt *memory.LongTermMemory) string {
	if lt == nil {
		return ""
	}
	var lines []string

	if s := strings.TrimSpace(lt.Summary); s != "" {
		lines = append(lines, "Summary: "+s)
	}
	if len(lt.Profile) > 0 {
		if raw, err := json.Marshal(lt.Profile); err == nil {
			lines = append(lines, "Profile: "+string(raw))
		}
	}
	if len(lt.Preferences) > 0 {
		if raw, err := json.Marshal(lt.Preferences); err == nil {
			lines = append(lines, "Preferences: "+string(raw))
		}
	}

	return strings.Join(lines, "\n")
}

// formatRelatedSection renders recalled exchanges with relative timestamps.
// Exchanges reconstructed from the vector index after ring eviction carry no
// timestamp and render as "earlier".
func formatRelatedSection(related []memory.Recalled) string {
	if len(related) == 0 {
		return ""
	}

	now := time.Now()
	var lines []string
	for _, r := range related {
		label := "earlier"
		if !r.Timestamp.IsZero() {
			label = formatRelativeTime(now.Sub(r.Timestamp))
		}
		line := fmt.Sprintf("[%s] user: %s", label, r.Query)
		if r.Response != "" {
			line += " | assistant: " + r.Response
		}
		lines = append(lines, line)
	}

	return strings.Join(lines, "\n")
}

// FormatVehicleStatus renders the snapshot as one compact human-readable
// line covering drive state, charge, climate, media, and navigation.
func FormatVehicleStatus(v *execution.VehicleState) string {
	if v == nil {
		return ""
	}

	var parts []string

	switch {
	case v.EngineRunning && v.Speed > 0:
		parts = append(parts, fmt.Sprintf("driving %.0f km/h in %s mode", v.Speed, v.DrivingMode))
	case v.EngineRunning:
		parts = append(parts, "engine on, stationary")
	default:
		parts = append(parts, "engine off")
	}

	if v.Charging {
		parts = append(parts, fmt.Sprintf("charging at %.0f%% battery", v.BatteryLevel))
	} else if v.BatteryLevel > 0 {
		parts = append(parts, fmt.Sprintf("battery %.0f%%", v.BatteryLevel))
	}

	if v.ACOn {
		if temp, ok := v.Temperature["driver"]; ok {
			parts = append(parts, fmt.Sprintf("AC on at %.0f°C", temp))
		} else {
			parts = append(parts, "AC on")
		}
	}

	switch {
	case v.MusicPlaying:
		parts = append(parts, fmt.Sprintf("playing music from %s at volume %d", v.AudioSource, v.Volume))
	case v.MusicPaused:
		parts = append(parts, "music paused")
	}

	if v.NavigationActive && v.NavigationDestination != "" {
		parts = append(parts, "navigating to "+v.NavigationDestination)
	}

	return strings.Join(parts, "; ")
}

// formatRelativeTime converts a duration to a compact label such as
// "just now", "30s ago", "2m ago", "1h ago".
func formatRelativeTime(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	switch {
	case d < 5*time.Second:
		return "just now"
	case d < time.Minute:
		return fmt.Sprintf("%ds ago", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	default:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	}
}
