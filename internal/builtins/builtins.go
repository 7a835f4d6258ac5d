// ABOUTME: Registration of the builtin calling and credit capabilities.
// ABOUTME: The catalog decides which builtins exist and what they cost.

package builtins

import (
	"log/slog"

	"github.com/kestrelops/dialgate/internal/capability"
	"github.com/kestrelops/dialgate/internal/catalog"
	"github.com/kestrelops/dialgate/internal/mirror"
	"github.com/kestrelops/dialgate/internal/store"
	"github.com/kestrelops/dialgate/internal/voice"
)

// Deps carries the collaborators the builtin capabilities execute against.
type Deps struct {
	Store   *store.SQLiteStore
	Dialer  voice.Dialer
	Mirror  *mirror.Mirror
	Catalog *catalog.Catalog
	Logger  *slog.Logger
}

// Register wires every catalog-enabled builtin into the registries.
func Register(tools *capability.ToolRegistry, resources *capability.ResourceRegistry, deps Deps) {
	h := &handlers{deps: deps, logger: deps.Logger.With("component", "builtins")}

	if entry := deps.Catalog.Tool("call.place"); entry.Enabled {
		tools.Register(h.placeCallTool(entry))
	}
	if entry := deps.Catalog.Tool("call.end"); entry.Enabled {
		tools.Register(h.endCallTool(entry))
	}
	if entry := deps.Catalog.Tool("credits.grant"); entry.Enabled {
		tools.Register(h.grantCreditsTool(entry))
	}
	if entry := deps.Catalog.Resource("calls.list"); entry.Enabled {
		resources.Register(h.listCallsResource())
	}
	if entry := deps.Catalog.Resource("credits.balance"); entry.Enabled {
		resources.Register(h.balanceResource())
	}
}

type handlers struct {
	deps   Deps
	logger *slog.Logger
}

// latencyFor applies a catalog override on top of the declared class.
func latencyFor(entry catalog.Entry, fallback capability.LatencyClass) capability.LatencyClass {
	if entry.LatencyClass != "" {
		return capability.LatencyClass(entry.LatencyClass)
	}
	return fallback
}
