// Package tools implements the tool registry: a static, thread-safe
// catalog of tool descriptors with full (leader) and restricted
// (collaborator) role-filtered views, plus JSON-schema argument validation
// so malformed tool-call arguments surface as a SchemaError rather than
// reaching a tool implementation. Dispatch of self-contained tools lives
// in Executor; system-privileged dispatch lives in internal/kernel.
package tools

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/valerka1292/conclave/internal/kernelerr"
	"github.com/valerka1292/conclave/pkg/models"
)

type entry struct {
	descriptor models.ToolDescriptor
	schema     *jsonschema.Schema
}

// Registry is the static tool catalog. The zero value is not usable; use
// New.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]entry
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{tools: make(map[string]entry)}
}

// Register adds a tool descriptor, compiling its parameter schema (if
// present) so later calls to Validate can enforce it. Registering a name
// twice replaces the previous entry.
func (r *Registry) Register(desc models.ToolDescriptor) error {
	var schema *jsonschema.Schema
	if len(desc.Parameters) > 0 {
		compiler := jsonschema.NewCompiler()
		resourceName := desc.Name + ".json"
		if err := compiler.AddResource(resourceName, bytes.NewReader(desc.Parameters)); err != nil {
			return fmt.Errorf("tools: register %q: invalid parameter schema: %w", desc.Name, err)
		}
		compiled, err := compiler.Compile(resourceName)
		if err != nil {
			return fmt.Errorf("tools: register %q: compile parameter schema: %w", desc.Name, err)
		}
		schema = compiled
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[desc.Name] = entry{descriptor: desc, schema: schema}
	return nil
}

// Get returns the descriptor registered under name.
func (r *Registry) Get(name string) (models.ToolDescriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.tools[name]
	return e.descriptor, ok
}

// Validate checks args against name's registered JSON schema, if any, and
// reports a kernelerr.SchemaError on malformed JSON or a schema
// violation. An unknown tool name is itself a SchemaError.
func (r *Registry) Validate(name string, args json.RawMessage) error {
	r.mu.RLock()
	e, ok := r.tools[name]
	r.mu.RUnlock()
	if !ok {
		return kernelerr.New(kernelerr.SchemaError, fmt.Sprintf("unknown tool %q", name))
	}
	if e.schema == nil {
		return nil
	}

	var v any
	if len(args) == 0 {
		args = []byte("{}")
	}
	if err := json.Unmarshal(args, &v); err != nil {
		return kernelerr.Wrap(kernelerr.SchemaError, fmt.Sprintf("tool %q: arguments are not valid JSON", name), err)
	}
	if err := e.schema.Validate(v); err != nil {
		return kernelerr.Wrap(kernelerr.SchemaError, fmt.Sprintf("tool %q: arguments failed schema validation", name), err)
	}
	return nil
}

// FullCatalog returns every registered tool as an oracle-facing function
// tool list, including system-privileged tools. Intended for the leader
// role.
func (r *Registry) FullCatalog() []models.FunctionTool {
	return r.catalog(true)
}

// RestrictedCatalog returns every registered tool excluding
// system-privileged ones. Intended for collaborator roles.
func (r *Registry) RestrictedCatalog() []models.FunctionTool {
	return r.catalog(false)
}

func (r *Registry) catalog(includePrivileged bool) []models.FunctionTool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]models.FunctionTool, 0, len(names))
	for _, name := range names {
		e := r.tools[name]
		if e.descriptor.Privileged && !includePrivileged {
			continue
		}
		out = append(out, e.descriptor.AsFunctionTool())
	}
	return out
}

// PromptFragment renders a human-readable listing of name: description
// for the given view, so a system prompt can stay in sync with runtime
// tool availability.
func (r *Registry) PromptFragment(includePrivileged bool) string {
	tools := r.catalog(includePrivileged)
	out := ""
	for _, t := range tools {
		out += fmt.Sprintf("- %s: %s\n", t.Function.Name, t.Function.Description)
	}
	return out
}
