package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/inkgate/inkgate/internal/logging"
)

// Registry maps tool names to executors and validates arguments
// against each tool's declared schema before dispatch.
type Registry struct {
	mu      sync.RWMutex
	tools   map[string]Tool
	schemas map[string]*jsonschema.Schema
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		tools:   make(map[string]Tool),
		schemas: make(map[string]*jsonschema.Schema),
	}
}

// Register adds a tool, compiling its input schema. Registering a
// duplicate name or an invalid schema is an error.
func (r *Registry) Register(t Tool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := t.Name()
	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("tool %q already registered", name)
	}

	raw, err := json.Marshal(t.InputSchema())
	if err != nil {
		return fmt.Errorf("tool %q has unencodable schema: %w", name, err)
	}
	schema, err := jsonschema.CompileString(name+".json", string(raw))
	if err != nil {
		return fmt.Errorf("tool %q has invalid schema: %w", name, err)
	}

	r.tools[name] = t
	r.schemas[name] = schema
	return nil
}

// Get returns the named tool.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// All returns the registered tools sorted by name.
func (r *Registry) All() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tools := make([]Tool, 0, len(r.tools))
	for _, t := range r.tools {
		tools = append(tools, t)
	}
	sort.Slice(tools, func(i, j int) bool { return tools[i].Name() < tools[j].Name() })
	return tools
}

// Dispatch validates args against the tool's schema and executes it.
// Unknown tools and schema violations return ErrInvalidArgs-class
// errors without reaching an executor.
func (r *Registry) Dispatch(ctx context.Context, name string, args map[string]any) (*Result, error) {
	r.mu.RLock()
	t, ok := r.tools[name]
	schema := r.schemas[name]
	r.mu.RUnlock()

	if !ok {
		return nil, &ExecError{Tool: name, Kind: ErrNotFound, Err: fmt.Errorf("unknown tool")}
	}

	// jsonschema validates generic JSON values, so round-trip the args
	// to normalize Go types (e.g. int vs float64).
	raw, err := json.Marshal(args)
	if err != nil {
		return nil, &ExecError{Tool: name, Kind: ErrInvalidArgs, Err: err}
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, &ExecError{Tool: name, Kind: ErrInvalidArgs, Err: err}
	}
	if err := schema.Validate(generic); err != nil {
		logging.Warn("tool: schema validation failed for %s: %v", name, err)
		return nil, &ExecError{Tool: name, Kind: ErrInvalidArgs, Err: err}
	}

	logging.Debug("tool: dispatching %s", name)
	return t.Execute(ctx, args)
}
