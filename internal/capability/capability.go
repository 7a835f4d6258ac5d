// ABOUTME: Tool and resource capability types plus the per-call context.
// ABOUTME: Latency classes map each capability to an execution deadline.

package capability

import (
	"context"
	"time"
)

// LatencyClass declares how long a capability is allowed to run. The registry
// derives a per-invocation deadline from it.
type LatencyClass string

const (
	LatencyInteractive LatencyClass = "interactive"
	LatencyStandard    LatencyClass = "standard"
	LatencySlow        LatencyClass = "slow"
)

// Timeout returns the execution deadline for the class. Unknown classes fall
// back to the standard deadline.
func (c LatencyClass) Timeout() time.Duration {
	switch c {
	case LatencyInteractive:
		return 10 * time.Second
	case LatencySlow:
		return 2 * time.Minute
	default:
		return 30 * time.Second
	}
}

// CallContext carries caller identity into a capability's execute function.
type CallContext struct {
	SessionID   string
	PrincipalID string
}

// Tool is an invocable capability with a validated input payload.
type Tool struct {
	Name            string
	Description     string
	ParameterSchema map[string]any
	Latency         LatencyClass
	Execute         func(ctx context.Context, input map[string]any, call CallContext) (any, error)
}

// Resource is a readable capability with an optional filter payload.
type Resource struct {
	Name         string
	Description  string
	FilterSchema map[string]any
	Latency      LatencyClass
	Get          func(ctx context.Context, filter map[string]any, call CallContext) (any, error)
}

// Summary is the listing shape returned from initialize for both kinds.
type Summary struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Schema      map[string]any `json:"schema,omitempty"`
}
