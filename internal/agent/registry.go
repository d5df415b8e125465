package agent

import (
	"fmt"
	"sort"
	"sync"
)

// Registry holds the constructed agents by name. It is populated during
// startup; the only later mutation is [Registry.UpdateInfo] applying a
// configuration reload to an agent's routing surface.
type Registry struct {
	mu     sync.RWMutex
	agents map[string]Agent
	infos  map[string]Info
}

func NewRegistry() *Registry {
	return &Registry{
		agents: make(map[string]Agent),
		infos:  make(map[string]Info),
	}
}

// Register adds an agent under its Info().Name.
func (r *Registry) Register(a Agent) error {
	info := a.Info()
	if info.Name == "" {
		return fmt.Errorf("agent: registering agent with empty name")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.agents[info.Name]; ok {
		return fmt.Errorf("agent: %q already registered", info.Name)
	}
	r.agents[info.Name] = a
	r.infos[info.Name] = info
	return nil
}

// Get returns the agent registered under name.
func (r *Registry) Get(name string) (Agent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.agents[name]
	if !ok {
		return nil, fmt.Errorf("agent: %q not registered", name)
	}
	return a, nil
}

// InfoOf returns the routing identity currently served for name. Unlike
// asking the agent directly, it reflects [Registry.UpdateInfo] overrides.
func (r *Registry) InfoOf(name string) (Info, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	info, ok := r.infos[name]
	return info, ok
}

// UpdateInfo replaces the routing identity served for name. The running
// agent keeps its construction-time wiring; only the surface the
// orchestrator and session setup read changes. This is how a configuration
// reload applies description, capability, priority, and enablement edits
// without a restart.
func (r *Registry) UpdateInfo(name string, info Info) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.agents[name]; !ok {
		return fmt.Errorf("agent: %q not registered", name)
	}
	info.Name = name
	r.infos[name] = info
	return nil
}

// Infos returns every registered agent's identity, sorted by name for stable
// prompt construction.
func (r *Registry) Infos() []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Info, 0, len(r.infos))
	for _, info := range r.infos {
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
