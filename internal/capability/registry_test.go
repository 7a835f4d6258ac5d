// ABOUTME: Tests for tool and resource registries covering registration and invoke.
// ABOUTME: Exercises duplicate handling, validation failures, and error shaping.

package capability

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/kestrelops/dialgate/internal/protocol"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func echoTool(name string) *Tool {
	return &Tool{
		Name:        name,
		Description: "echoes its input",
		ParameterSchema: map[string]any{
			"type":     "object",
			"required": []any{"message"},
			"properties": map[string]any{
				"message": map[string]any{"type": "string"},
			},
		},
		Latency: LatencyInteractive,
		Execute: func(ctx context.Context, input map[string]any, call CallContext) (any, error) {
			return input["message"], nil
		},
	}
}

func TestToolRegistryRegister(t *testing.T) {
	t.Run("empty name panics", func(t *testing.T) {
		defer func() {
			if recover() == nil {
				t.Error("expected panic for empty name")
			}
		}()
		NewToolRegistry(testLogger(), Options{}).Register(&Tool{Execute: echoTool("x").Execute})
	})

	t.Run("nil execute panics", func(t *testing.T) {
		defer func() {
			if recover() == nil {
				t.Error("expected panic for nil execute")
			}
		}()
		NewToolRegistry(testLogger(), Options{}).Register(&Tool{Name: "broken"})
	})

	t.Run("duplicate overwrites by default", func(t *testing.T) {
		reg := NewToolRegistry(testLogger(), Options{})
		reg.Register(echoTool("dup"))

		replacement := echoTool("dup")
		replacement.Execute = func(ctx context.Context, input map[string]any, call CallContext) (any, error) {
			return "second", nil
		}
		reg.Register(replacement)

		if reg.Len() != 1 {
			t.Fatalf("Len = %d, want 1", reg.Len())
		}
		out, perr := reg.Invoke(context.Background(), "dup", map[string]any{"message": "hi"}, CallContext{})
		if perr != nil {
			t.Fatalf("Invoke failed: %v", perr)
		}
		if out != "second" {
			t.Errorf("expected the later registration to win, got %v", out)
		}
	})

	t.Run("duplicate panics under strict names", func(t *testing.T) {
		reg := NewToolRegistry(testLogger(), Options{StrictNames: true})
		reg.Register(echoTool("dup"))
		defer func() {
			if recover() == nil {
				t.Error("expected panic for duplicate under StrictNames")
			}
		}()
		reg.Register(echoTool("dup"))
	})
}

func TestToolRegistryListOrder(t *testing.T) {
	reg := NewToolRegistry(testLogger(), Options{})
	names := []string{"zeta", "alpha", "mid"}
	for _, n := range names {
		reg.Register(echoTool(n))
	}
	// Re-registering must not change position.
	reg.Register(echoTool("zeta"))

	list := reg.List()
	if len(list) != 3 {
		t.Fatalf("List returned %d entries, want 3", len(list))
	}
	for i, n := range names {
		if list[i].Name != n {
			t.Errorf("List[%d] = %q, want %q", i, list[i].Name, n)
		}
	}
}

func TestToolRegistryInvoke(t *testing.T) {
	reg := NewToolRegistry(testLogger(), Options{})
	reg.Register(echoTool("echo"))
	reg.Register(&Tool{
		Name:    "failing",
		Latency: LatencyInteractive,
		Execute: func(ctx context.Context, input map[string]any, call CallContext) (any, error) {
			return nil, errors.New("backend exploded: secret detail")
		},
	})

	t.Run("success", func(t *testing.T) {
		out, perr := reg.Invoke(context.Background(), "echo", map[string]any{"message": "hi"}, CallContext{SessionID: "s1"})
		if perr != nil {
			t.Fatalf("Invoke failed: %v", perr)
		}
		if out != "hi" {
			t.Errorf("out = %v, want hi", out)
		}
	})

	t.Run("unknown tool", func(t *testing.T) {
		_, perr := reg.Invoke(context.Background(), "nope", nil, CallContext{})
		if perr == nil || perr.Code != protocol.CodeMethodNotFound {
			t.Fatalf("expected MethodNotFound, got %v", perr)
		}
		if !strings.Contains(perr.Message, "nope") {
			t.Errorf("message should name the tool, got %q", perr.Message)
		}
	})

	t.Run("schema violation", func(t *testing.T) {
		_, perr := reg.Invoke(context.Background(), "echo", map[string]any{"message": 42}, CallContext{})
		if perr == nil || perr.Code != protocol.CodeInvalidParams {
			t.Fatalf("expected InvalidParams, got %v", perr)
		}
	})

	t.Run("execution failure hides original message", func(t *testing.T) {
		_, perr := reg.Invoke(context.Background(), "failing", nil, CallContext{})
		if perr == nil || perr.Code != protocol.CodeToolExecutionError {
			t.Fatalf("expected ToolExecutionError, got %v", perr)
		}
		if strings.Contains(perr.Message, "secret detail") {
			t.Errorf("primary message leaked the original error: %q", perr.Message)
		}
		data, ok := perr.Data.(map[string]any)
		if !ok {
			t.Fatalf("expected structured data, got %T", perr.Data)
		}
		if !strings.Contains(fmt.Sprint(data["originalError"]), "backend exploded") {
			t.Errorf("data.originalError should carry the original message, got %v", data["originalError"])
		}
	})

	t.Run("execution failure is logged with the error message", func(t *testing.T) {
		var buf bytes.Buffer
		logged := NewToolRegistry(slog.New(slog.NewTextHandler(&buf, nil)), Options{})
		logged.Register(&Tool{
			Name:    "failing",
			Latency: LatencyInteractive,
			Execute: func(ctx context.Context, input map[string]any, call CallContext) (any, error) {
				return nil, errors.New("backend exploded")
			},
		})
		logged.Invoke(context.Background(), "failing", nil, CallContext{SessionID: "s1"})
		if !strings.Contains(buf.String(), "backend exploded") {
			t.Errorf("failure log should carry the error message, got %q", buf.String())
		}
	})

	t.Run("execute sees the call context", func(t *testing.T) {
		var seen CallContext
		reg.Register(&Tool{
			Name:    "observer",
			Latency: LatencyStandard,
			Execute: func(ctx context.Context, input map[string]any, call CallContext) (any, error) {
				seen = call
				return nil, nil
			},
		})
		_, perr := reg.Invoke(context.Background(), "observer", nil, CallContext{SessionID: "s9", PrincipalID: "p3"})
		if perr != nil {
			t.Fatalf("Invoke failed: %v", perr)
		}
		if seen.SessionID != "s9" || seen.PrincipalID != "p3" {
			t.Errorf("call context not propagated: %+v", seen)
		}
	})

	t.Run("latency class sets a deadline", func(t *testing.T) {
		reg.Register(&Tool{
			Name:    "deadline-check",
			Latency: LatencyInteractive,
			Execute: func(ctx context.Context, input map[string]any, call CallContext) (any, error) {
				deadline, ok := ctx.Deadline()
				if !ok {
					return nil, errors.New("no deadline set")
				}
				if until := time.Until(deadline); until > 10*time.Second {
					return nil, fmt.Errorf("deadline too far out: %v", until)
				}
				return "ok", nil
			},
		})
		_, perr := reg.Invoke(context.Background(), "deadline-check", nil, CallContext{})
		if perr != nil {
			t.Fatalf("Invoke failed: %v", perr)
		}
	})
}

func TestResourceRegistry(t *testing.T) {
	reg := NewResourceRegistry(testLogger(), Options{})
	reg.Register(&Resource{
		Name:        "items.list",
		Description: "lists items",
		FilterSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"limit": map[string]any{"type": "integer", "minimum": float64(1)},
			},
			"additionalProperties": false,
		},
		Get: func(ctx context.Context, filter map[string]any, call CallContext) (any, error) {
			return []string{"a", "b"}, nil
		},
	})
	reg.Register(&Resource{
		Name: "broken",
		Get: func(ctx context.Context, filter map[string]any, call CallContext) (any, error) {
			return nil, errors.New("disk on fire")
		},
	})

	t.Run("success with empty filter", func(t *testing.T) {
		out, perr := reg.Invoke(context.Background(), "items.list", nil, CallContext{})
		if perr != nil {
			t.Fatalf("Invoke failed: %v", perr)
		}
		if items, ok := out.([]string); !ok || len(items) != 2 {
			t.Errorf("unexpected result: %v", out)
		}
	})

	t.Run("filter violation", func(t *testing.T) {
		_, perr := reg.Invoke(context.Background(), "items.list", map[string]any{"limit": float64(0)}, CallContext{})
		if perr == nil || perr.Code != protocol.CodeInvalidParams {
			t.Fatalf("expected InvalidParams, got %v", perr)
		}
	})

	t.Run("unknown resource", func(t *testing.T) {
		_, perr := reg.Invoke(context.Background(), "missing", nil, CallContext{})
		if perr == nil || perr.Code != protocol.CodeMethodNotFound {
			t.Fatalf("expected MethodNotFound, got %v", perr)
		}
	})

	t.Run("read failure maps to resource execution error", func(t *testing.T) {
		_, perr := reg.Invoke(context.Background(), "broken", nil, CallContext{})
		if perr == nil || perr.Code != protocol.CodeResourceExecutionError {
			t.Fatalf("expected ResourceExecutionError, got %v", perr)
		}
		if strings.Contains(perr.Message, "disk on fire") {
			t.Errorf("primary message leaked the original error: %q", perr.Message)
		}
	})
}

func TestLatencyClassTimeout(t *testing.T) {
	tests := []struct {
		class LatencyClass
		want  time.Duration
	}{
		{LatencyInteractive, 10 * time.Second},
		{LatencyStandard, 30 * time.Second},
		{LatencySlow, 2 * time.Minute},
		{LatencyClass("unknown"), 30 * time.Second},
		{LatencyClass(""), 30 * time.Second},
	}
	for _, tt := range tests {
		t.Run(string(tt.class), func(t *testing.T) {
			if got := tt.class.Timeout(); got != tt.want {
				t.Errorf("Timeout() = %v, want %v", got, tt.want)
			}
		})
	}
}
