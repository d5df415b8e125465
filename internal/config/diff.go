package config

import "slices"

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked.
type ConfigDiff struct {
	AgentsChanged   bool        // true if any agent's routing surface changed
	AgentChanges    []AgentDiff // per-agent diffs
	LogLevelChanged bool
	NewLogLevel     LogLevel
}

// AgentDiff describes what changed for a single agent between two configs.
type AgentDiff struct {
	Name                string
	DescriptionChanged  bool
	CapabilitiesChanged bool
	PriorityChanged     bool
	EnabledChanged      bool
	Added               bool
	Removed             bool
}

// Diff compares old and new configs and returns what changed.
// Only tracks changes that are safe to apply without restart: the orchestrator
// reads the routing surface per decision, so description, capability, priority
// and enablement edits take effect live. Kind, slot, and category changes need
// a restart and are not reported.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	// Log level
	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	// Build agent lookup maps keyed by name.
	oldAgents := make(map[string]*AgentConfig, len(old.Agents))
	for i := range old.Agents {
		oldAgents[old.Agents[i].Name] = &old.Agents[i]
	}
	newAgents := make(map[string]*AgentConfig, len(new.Agents))
	for i := range new.Agents {
		newAgents[new.Agents[i].Name] = &new.Agents[i]
	}

	// Detect modified and removed agents.
	for name, oldAgent := range oldAgents {
		newAgent, exists := newAgents[name]
		if !exists {
			d.AgentChanges = append(d.AgentChanges, AgentDiff{
				Name:    name,
				Removed: true,
			})
			d.AgentsChanged = true
			continue
		}
		ad := diffAgent(name, oldAgent, newAgent)
		if ad.DescriptionChanged || ad.CapabilitiesChanged || ad.PriorityChanged || ad.EnabledChanged {
			d.AgentChanges = append(d.AgentChanges, ad)
			d.AgentsChanged = true
		}
	}

	// Detect added agents.
	for name := range newAgents {
		if _, exists := oldAgents[name]; !exists {
			d.AgentChanges = append(d.AgentChanges, AgentDiff{
				Name:  name,
				Added: true,
			})
			d.AgentsChanged = true
		}
	}

	return d
}

// diffAgent compares two agent configs with the same name.
func diffAgent(name string, old, new *AgentConfig) AgentDiff {
	ad := AgentDiff{Name: name}

	if old.Description != new.Description {
		ad.DescriptionChanged = true
	}
	if !slices.Equal(old.Capabilities, new.Capabilities) {
		ad.CapabilitiesChanged = true
	}
	if old.Priority != new.Priority {
		ad.PriorityChanged = true
	}
	if old.Disabled != new.Disabled {
		ad.EnabledChanged = true
	}

	return ad
}
