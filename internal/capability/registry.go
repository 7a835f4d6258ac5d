// ABOUTME: Thread-safe registries for tool and resource capabilities.
// ABOUTME: Invoke wraps lookup, input validation, timeout, and error shaping.

package capability

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/kestrelops/dialgate/internal/protocol"
	"github.com/kestrelops/dialgate/internal/schema"
)

// Options tune registry behavior at construction.
type Options struct {
	// StrictNames makes Register panic on duplicate names instead of
	// overwriting the earlier entry with a warning.
	StrictNames bool
}

// ToolRegistry holds invocable tools. Registration happens at startup;
// Invoke runs concurrently after that.
type ToolRegistry struct {
	mu     sync.RWMutex
	tools  map[string]*Tool
	order  []string
	opts   Options
	logger *slog.Logger
}

// NewToolRegistry creates an empty tool registry.
func NewToolRegistry(logger *slog.Logger, opts Options) *ToolRegistry {
	return &ToolRegistry{
		tools:  make(map[string]*Tool),
		opts:   opts,
		logger: logger.With("component", "tool-registry"),
	}
}

// Register stores a tool. Panics on an empty name or a nil execute function:
// both are programmer errors at wiring time, not runtime conditions. A
// duplicate name overwrites the earlier registration with a warning unless
// StrictNames is set, in which case it panics too.
func (r *ToolRegistry) Register(tool *Tool) {
	if tool.Name == "" {
		panic("capability: tool registered with empty name")
	}
	if tool.Execute == nil {
		panic(fmt.Sprintf("capability: tool %q registered with nil execute", tool.Name))
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[tool.Name]; exists {
		if r.opts.StrictNames {
			panic(fmt.Sprintf("capability: duplicate tool name %q", tool.Name))
		}
		r.logger.Warn("duplicate tool registration, overwriting", "tool", tool.Name)
	} else {
		r.order = append(r.order, tool.Name)
	}
	r.tools[tool.Name] = tool

	r.logger.Info("tool registered", "tool", tool.Name, "latency_class", string(tool.Latency))
}

// List returns tool summaries in registration order.
func (r *ToolRegistry) List() []Summary {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Summary, 0, len(r.order))
	for _, name := range r.order {
		t := r.tools[name]
		out = append(out, Summary{Name: t.Name, Description: t.Description, Schema: t.ParameterSchema})
	}
	return out
}

// Len returns the number of registered tools.
func (r *ToolRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// Invoke looks up a tool, validates the input against its parameter schema,
// and executes it under the deadline its latency class allows. Failures come
// back as *protocol.Error; the tool's own error text travels only in
// data.originalError, never in the primary message.
func (r *ToolRegistry) Invoke(ctx context.Context, name string, input map[string]any, call CallContext) (any, *protocol.Error) {
	r.mu.RLock()
	tool, ok := r.tools[name]
	r.mu.RUnlock()

	if !ok {
		return nil, protocol.Errorf(protocol.CodeMethodNotFound, "unknown tool %q", name)
	}

	if result := schema.Validate(anyValue(input), tool.ParameterSchema); !result.Valid {
		return nil, protocol.Errorf(protocol.CodeInvalidParams, "invalid input for tool %q: %s", name, result.Summary())
	}

	r.logger.Info("tool invocation",
		"tool", name,
		"session_id", call.SessionID,
		"has_input", len(input) > 0,
	)

	execCtx, cancel := context.WithTimeout(ctx, tool.Latency.Timeout())
	defer cancel()

	out, err := tool.Execute(execCtx, input, call)
	if err != nil {
		r.logger.Warn("tool execution failed", "tool", name, "session_id", call.SessionID, "error", err.Error())
		return nil, protocol.Errorf(protocol.CodeToolExecutionError, "tool %q execution failed", name).
			WithData(map[string]any{"originalError": err.Error()})
	}
	return out, nil
}

// ResourceRegistry holds readable resources. Same registration and lookup
// discipline as the tool registry.
type ResourceRegistry struct {
	mu        sync.RWMutex
	resources map[string]*Resource
	order     []string
	opts      Options
	logger    *slog.Logger
}

// NewResourceRegistry creates an empty resource registry.
func NewResourceRegistry(logger *slog.Logger, opts Options) *ResourceRegistry {
	return &ResourceRegistry{
		resources: make(map[string]*Resource),
		opts:      opts,
		logger:    logger.With("component", "resource-registry"),
	}
}

// Register stores a resource. Panics on empty name or nil getter; duplicate
// names overwrite with a warning unless StrictNames is set.
func (r *ResourceRegistry) Register(res *Resource) {
	if res.Name == "" {
		panic("capability: resource registered with empty name")
	}
	if res.Get == nil {
		panic(fmt.Sprintf("capability: resource %q registered with nil getter", res.Name))
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.resources[res.Name]; exists {
		if r.opts.StrictNames {
			panic(fmt.Sprintf("capability: duplicate resource name %q", res.Name))
		}
		r.logger.Warn("duplicate resource registration, overwriting", "resource", res.Name)
	} else {
		r.order = append(r.order, res.Name)
	}
	r.resources[res.Name] = res

	r.logger.Info("resource registered", "resource", res.Name)
}

// List returns resource summaries in registration order.
func (r *ResourceRegistry) List() []Summary {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Summary, 0, len(r.order))
	for _, name := range r.order {
		res := r.resources[name]
		out = append(out, Summary{Name: res.Name, Description: res.Description, Schema: res.FilterSchema})
	}
	return out
}

// Len returns the number of registered resources.
func (r *ResourceRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.resources)
}

// Invoke looks up a resource, validates the filter, and reads it under the
// latency-class deadline.
func (r *ResourceRegistry) Invoke(ctx context.Context, name string, filter map[string]any, call CallContext) (any, *protocol.Error) {
	r.mu.RLock()
	res, ok := r.resources[name]
	r.mu.RUnlock()

	if !ok {
		return nil, protocol.Errorf(protocol.CodeMethodNotFound, "unknown resource %q", name)
	}

	if result := schema.Validate(anyValue(filter), res.FilterSchema); !result.Valid {
		return nil, protocol.Errorf(protocol.CodeInvalidParams, "invalid filter for resource %q: %s", name, result.Summary())
	}

	r.logger.Info("resource read",
		"resource", name,
		"session_id", call.SessionID,
		"has_filter", len(filter) > 0,
	)

	getCtx, cancel := context.WithTimeout(ctx, res.Latency.Timeout())
	defer cancel()

	out, err := res.Get(getCtx, filter, call)
	if err != nil {
		r.logger.Warn("resource read failed", "resource", name, "session_id", call.SessionID, "error", err.Error())
		return nil, protocol.Errorf(protocol.CodeResourceExecutionError, "resource %q read failed", name).
			WithData(map[string]any{"originalError": err.Error()})
	}
	return out, nil
}

// anyValue normalizes a nil map to an empty object so schemas with no
// required properties accept an omitted payload.
func anyValue(m map[string]any) any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
