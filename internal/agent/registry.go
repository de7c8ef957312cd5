package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"sort"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/haasonsaas/aide/pkg/models"
)

// Tool parameter limits to prevent resource exhaustion.
const (
	// MaxToolNameLength is the maximum length of a tool name.
	MaxToolNameLength = 256

	// MaxToolParamsSize is the maximum size of tool parameter JSON (10 MiB).
	MaxToolParamsSize = 10 << 20
)

// Registry manages available tools with thread-safe registration and lookup.
// Parameter schemas are compiled once at registration and reused for every
// call. Allow/deny patterns gate which registered tools are exposed to the
// model; deny wins over allow.
type Registry struct {
	mu      sync.RWMutex
	tools   map[string]Tool
	schemas map[string]*jsonschema.Schema
	allow   []string
	deny    []string

	lockMu sync.Mutex
	locks  map[string]*sync.Mutex
}

// NewRegistry creates an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{
		tools:   make(map[string]Tool),
		schemas: make(map[string]*jsonschema.Schema),
		locks:   make(map[string]*sync.Mutex),
	}
}

// Register adds a tool, replacing any existing tool with the same name.
// The tool's schema is compiled here so a malformed schema fails loudly at
// wiring time instead of on first use.
func (r *Registry) Register(tool Tool) error {
	if tool == nil {
		return fmt.Errorf("register: nil tool")
	}
	name := tool.Name()
	if name == "" {
		return fmt.Errorf("register: tool name is empty")
	}
	if len(name) > MaxToolNameLength {
		return fmt.Errorf("register: tool name exceeds %d characters", MaxToolNameLength)
	}

	var compiled *jsonschema.Schema
	if raw := tool.Schema(); len(raw) > 0 {
		sch, err := jsonschema.CompileString("tool_"+name, string(raw))
		if err != nil {
			return fmt.Errorf("register %s: compile schema: %w", name, err)
		}
		compiled = sch
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[name] = tool
	if compiled != nil {
		r.schemas[name] = compiled
	} else {
		delete(r.schemas, name)
	}
	return nil
}

// Unregister removes a tool by name.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tools, name)
	delete(r.schemas, name)
}

// Get returns a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, ok := r.tools[name]
	return tool, ok
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// SetAllowPatterns restricts the exposed tool set to names matching at least
// one pattern. Patterns use path.Match syntax ("fs_*"). Empty means all.
func (r *Registry) SetAllowPatterns(patterns []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.allow = append([]string(nil), patterns...)
}

// SetDenyPatterns hides tools matching any pattern regardless of the allow
// list.
func (r *Registry) SetDenyPatterns(patterns []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deny = append([]string(nil), patterns...)
}

// Allowed reports whether a tool name passes the allow/deny patterns.
func (r *Registry) Allowed(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.allowedLocked(name)
}

func (r *Registry) allowedLocked(name string) bool {
	for _, p := range r.deny {
		if matchPattern(p, name) {
			return false
		}
	}
	if len(r.allow) == 0 {
		return true
	}
	for _, p := range r.allow {
		if matchPattern(p, name) {
			return true
		}
	}
	return false
}

func matchPattern(pattern, name string) bool {
	ok, err := path.Match(pattern, name)
	return err == nil && ok
}

// Exposed returns the allow/deny-filtered tools sorted by name, for passing
// to a provider as the offered tool set.
func (r *Registry) Exposed() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		if r.allowedLocked(name) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	tools := make([]Tool, 0, len(names))
	for _, name := range names {
		tools = append(tools, r.tools[name])
	}
	return tools
}

// ValidateParams checks raw parameters against the tool's compiled schema.
// Tools without a schema accept anything.
func (r *Registry) ValidateParams(name string, params json.RawMessage) error {
	r.mu.RLock()
	sch := r.schemas[name]
	r.mu.RUnlock()
	if sch == nil {
		return nil
	}
	var decoded any
	if len(params) == 0 {
		decoded = map[string]any{}
	} else if err := json.Unmarshal(params, &decoded); err != nil {
		return fmt.Errorf("parameters are not valid JSON: %w", err)
	}
	if err := sch.Validate(decoded); err != nil {
		return fmt.Errorf("parameters do not match schema: %w", err)
	}
	return nil
}

// Execute runs a tool by name with the given JSON parameters. Lookup
// failures, limit violations, and schema mismatches come back as failed
// ToolResults rather than errors so the model can observe and react to them.
// Tools reporting Exclusive are serialized per session.
func (r *Registry) Execute(ctx context.Context, call models.ToolCall) (*models.ToolResult, error) {
	if len(call.Name) > MaxToolNameLength {
		return failedResult(call.ID, fmt.Sprintf("tool name exceeds maximum length of %d characters", MaxToolNameLength)), nil
	}
	if len(call.Input) > MaxToolParamsSize {
		return failedResult(call.ID, fmt.Sprintf("tool parameters exceed maximum size of %d bytes", MaxToolParamsSize)), nil
	}

	r.mu.RLock()
	tool, ok := r.tools[call.Name]
	allowed := r.allowedLocked(call.Name)
	r.mu.RUnlock()
	if !ok || !allowed {
		return failedResult(call.ID, "tool not found: "+call.Name), nil
	}

	if err := r.ValidateParams(call.Name, call.Input); err != nil {
		return failedResult(call.ID, err.Error()), nil
	}

	if ex, ok := tool.(Exclusive); ok && ex.Exclusive() {
		if tc, ok := ToolContextFromContext(ctx); ok && tc.SessionID != "" {
			lock := r.sessionLock(tc.SessionID + "\x00" + call.Name)
			lock.Lock()
			defer lock.Unlock()
		}
	}

	result, err := tool.Execute(ctx, call.Input)
	if err != nil {
		return nil, err
	}
	if result == nil {
		result = &models.ToolResult{}
	}
	if result.ToolCallID == "" {
		result.ToolCallID = call.ID
	}
	return result, nil
}

func (r *Registry) sessionLock(key string) *sync.Mutex {
	r.lockMu.Lock()
	defer r.lockMu.Unlock()
	lock, ok := r.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		r.locks[key] = lock
	}
	return lock
}

// ReleaseSession drops the per-session tool locks for an ended session.
func (r *Registry) ReleaseSession(sessionID string) {
	r.lockMu.Lock()
	defer r.lockMu.Unlock()
	prefix := sessionID + "\x00"
	for key := range r.locks {
		if len(key) > len(prefix) && key[:len(prefix)] == prefix {
			delete(r.locks, key)
		}
	}
}

func failedResult(callID, msg string) *models.ToolResult {
	return &models.ToolResult{ToolCallID: callID, Content: msg, IsError: true}
}
