// ABOUTME: TOML capability catalog controlling which builtins are enabled and their pricing.
// ABOUTME: A missing file yields the default catalog with everything enabled.

package catalog

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// Entry configures one builtin capability.
type Entry struct {
	Enabled bool `toml:"enabled"`
	// Cost is the credit debit per invocation; zero means free.
	Cost int64 `toml:"cost"`
	// LatencyClass overrides the capability's declared class when set.
	LatencyClass string `toml:"latency_class"`
}

// Catalog maps capability names to their configuration.
type Catalog struct {
	Tools     map[string]Entry `toml:"tools"`
	Resources map[string]Entry `toml:"resources"`
}

// Default returns the catalog used when no file is present: every builtin
// enabled, calls priced, reads free.
func Default() *Catalog {
	return &Catalog{
		Tools: map[string]Entry{
			"call.place":    {Enabled: true, Cost: 10},
			"call.end":      {Enabled: true},
			"credits.grant": {Enabled: true},
		},
		Resources: map[string]Entry{
			"calls.list":      {Enabled: true},
			"credits.balance": {Enabled: true},
		},
	}
}

// Load reads a catalog file. A missing path returns Default(); a malformed
// file is an error, not a silent fallback.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, fmt.Errorf("reading catalog: %w", err)
	}

	var c Catalog
	if err := toml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parsing catalog: %w", err)
	}
	if c.Tools == nil {
		c.Tools = map[string]Entry{}
	}
	if c.Resources == nil {
		c.Resources = map[string]Entry{}
	}
	return &c, nil
}

// Tool returns the entry for a tool name. Unlisted tools are disabled, so a
// catalog file is an allowlist.
func (c *Catalog) Tool(name string) Entry {
	return c.Tools[name]
}

// Resource returns the entry for a resource name.
func (c *Catalog) Resource(name string) Entry {
	return c.Resources[name]
}
