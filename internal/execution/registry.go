package execution

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/kiwivoice/kiwi/pkg/types"
)

// Category groups tools by vehicle domain.
type Category string

const (
	CategoryVehicleControl Category = "vehicle_control"
	CategoryClimate        Category = "climate"
	CategoryEntertainment  Category = "entertainment"
	CategoryNavigation     Category = "navigation"
	CategoryWindow         Category = "window"
	CategorySeat           Category = "seat"
	CategoryLighting       Category = "lighting"
	CategorySafety         Category = "safety"
	CategoryCommunication  Category = "communication"
	CategoryInformation    Category = "information"
	CategoryEnergy         Category = "energy"
	CategoryADAS           Category = "adas"
	CategoryDoor           Category = "door"
	CategoryWiper          Category = "wiper"
	CategoryAmbient        Category = "ambient"
)

// Sentinel errors distinguishing validation failures from handler failures.
var (
	// ErrUnknownTool: no tool registered under that name.
	ErrUnknownTool = errors.New("execution: unknown tool")

	// ErrInvalidParams: arguments failed schema validation.
	ErrInvalidParams = errors.New("execution: invalid parameters")
)

// Param describes one tool parameter.
type Param struct {
	Name        string
	Type        string // "string", "number", "integer", "boolean"
	Description string
	Required    bool

	// Enum restricts string values to this set when non-empty.
	Enum []string

	// Default is applied when an optional parameter is absent.
	Default any
}

// Result is a tool execution outcome.
type Result struct {
	Success bool           `json:"success"`
	Message string         `json:"message"`
	Data    map[string]any `json:"data,omitempty"`
}

// HandlerFunc executes a tool against the state store. args have already
// passed validation and carry defaults.
type HandlerFunc func(ctx context.Context, store *StateStore, args map[string]any) (Result, error)

// Tool is one registered capability.
type Tool struct {
	Name        string
	Description string
	Category    Category
	Params      []Param
	Handler     HandlerFunc
}

// Registry holds the tool catalog and executes calls with validation.
// Safe for concurrent use.
type Registry struct {
	store *StateStore

	mu      sync.RWMutex
	tools   map[string]*Tool
	byCat   map[Category][]string
	ordered []string
}

// NewRegistry creates an empty registry bound to store.
func NewRegistry(store *StateStore) *Registry {
	return &Registry{
		store: store,
		tools: make(map[string]*Tool),
		byCat: make(map[Category][]string),
	}
}

// Store exposes the bound state store (the info tools read snapshots from it).
func (r *Registry) Store() *StateStore { return r.store }

// Register adds a tool. Registering a duplicate name is an error.
func (r *Registry) Register(t Tool) error {
	if t.Name == "" {
		return fmt.Errorf("execution: register: empty tool name")
	}
	if t.Handler == nil {
		return fmt.Errorf("execution: register %s: nil handler", t.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[t.Name]; exists {
		return fmt.Errorf("execution: register %s: already registered", t.Name)
	}
	tool := t
	r.tools[t.Name] = &tool
	r.byCat[t.Category] = append(r.byCat[t.Category], t.Name)
	r.ordered = append(r.ordered, t.Name)
	return nil
}

// Get returns the tool with the given name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	if !ok {
		return Tool{}, false
	}
	return *t, true
}

// List returns tool names, optionally filtered by category. Names come back
// in registration order.
func (r *Registry) List(category Category) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if category == "" {
		out := make([]string, len(r.ordered))
		copy(out, r.ordered)
		return out
	}
	out := make([]string, len(r.byCat[category]))
	copy(out, r.byCat[category])
	return out
}

// Categories returns the categories that have at least one tool, sorted.
func (r *Registry) Categories() []Category {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Category, 0, len(r.byCat))
	for c := range r.byCat {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Execute validates args against the tool's schema and runs its handler.
// Validation failures return [ErrInvalidParams]; an unknown name returns
// [ErrUnknownTool]. Handler errors pass through untouched.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]any) (Result, error) {
	r.mu.RLock()
	t, ok := r.tools[name]
	r.mu.RUnlock()
	if !ok {
		return Result{}, fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}

	normalized, err := validateArgs(t, args)
	if err != nil {
		return Result{}, err
	}
	return t.Handler(ctx, r.store, normalized)
}

// Definitions converts tools to LLM tool definitions with JSON Schema
// parameters, optionally filtered by categories (nil means all).
func (r *Registry) Definitions(categories ...Category) []types.ToolDefinition {
	allowed := map[Category]bool{}
	for _, c := range categories {
		allowed[c] = true
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	var defs []types.ToolDefinition
	for _, name := range r.ordered {
		t := r.tools[name]
		if len(allowed) > 0 && !allowed[t.Category] {
			continue
		}
		defs = append(defs, types.ToolDefinition{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  paramSchema(t.Params),
		})
	}
	return defs
}

// paramSchema builds the JSON Schema object for a parameter list.
func paramSchema(params []Param) map[string]any {
	props := make(map[string]any, len(params))
	var required []string
	for _, p := range params {
		prop := map[string]any{
			"type":        p.Type,
			"description": p.Description,
		}
		if len(p.Enum) > 0 {
			enum := make([]any, len(p.Enum))
			for i, e := range p.Enum {
				enum[i] = e
			}
			prop["enum"] = enum
		}
		if p.Default != nil {
			prop["default"] = p.Default
		}
		props[p.Name] = prop
		if p.Required {
			required = append(required, p.Name)
		}
	}

	schema := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

// validateArgs checks required presence, types, and enum membership, and
// fills defaults. It returns a fresh map so handlers can mutate freely.
func validateArgs(t *Tool, args map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(t.Params))

	known := map[string]bool{}
	for _, p := range t.Params {
		known[p.Name] = true

		v, present := args[p.Name]
		if !present || v == nil {
			if p.Required {
				return nil, fmt.Errorf("%w: %s: missing required parameter %q", ErrInvalidParams, t.Name, p.Name)
			}
			if p.Default != nil {
				out[p.Name] = p.Default
			}
			continue
		}

		coerced, err := coerceType(p, v)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidParams, t.Name, err)
		}
		out[p.Name] = coerced
	}

	for name := range args {
		if !known[name] {
			return nil, fmt.Errorf("%w: %s: unexpected parameter %q", ErrInvalidParams, t.Name, name)
		}
	}
	return out, nil
}

// coerceType enforces the declared parameter type. JSON-decoded numbers
// arrive as float64; integer parameters additionally require a whole value.
func coerceType(p Param, v any) (any, error) {
	switch p.Type {
	case "string":
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("parameter %q must be a string, got %T", p.Name, v)
		}
		if len(p.Enum) > 0 {
			for _, e := range p.Enum {
				if s == e {
					return s, nil
				}
			}
			return nil, fmt.Errorf("parameter %q must be one of %v, got %q", p.Name, p.Enum, s)
		}
		return s, nil

	case "number":
		switch n := v.(type) {
		case float64:
			return n, nil
		case int:
			return float64(n), nil
		}
		return nil, fmt.Errorf("parameter %q must be a number, got %T", p.Name, v)

	case "integer":
		switch n := v.(type) {
		case int:
			return n, nil
		case float64:
			if n != float64(int(n)) {
				return nil, fmt.Errorf("parameter %q must be an integer, got %v", p.Name, n)
			}
			return int(n), nil
		}
		return nil, fmt.Errorf("parameter %q must be an integer, got %T", p.Name, v)

	case "boolean":
		b, ok := v.(bool)
		if !ok {
			return nil, fmt.Errorf("parameter %q must be a boolean, got %T", p.Name, v)
		}
		return b, nil

	default:
		return nil, fmt.Errorf("parameter %q has unsupported type %q", p.Name, p.Type)
	}
}
