// ABOUTME: Tests for the builtin capabilities against a real in-memory store.
// ABOUTME: Uses the recording fake dialer; no network involved.

package builtins

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrelops/dialgate/internal/capability"
	"github.com/kestrelops/dialgate/internal/catalog"
	"github.com/kestrelops/dialgate/internal/store"
	"github.com/kestrelops/dialgate/internal/voice"
)

type fixture struct {
	tools     *capability.ToolRegistry
	resources *capability.ResourceRegistry
	store     *store.SQLiteStore
	dialer    *voice.FakeDialer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	s, err := store.NewSQLiteStore(":memory:", logger)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	f := &fixture{
		tools:     capability.NewToolRegistry(logger, capability.Options{}),
		resources: capability.NewResourceRegistry(logger, capability.Options{}),
		store:     s,
		dialer:    voice.NewFakeDialer(),
	}
	Register(f.tools, f.resources, Deps{
		Store:   s,
		Dialer:  f.dialer,
		Catalog: catalog.Default(),
		Logger:  logger,
	})

	ctx := context.Background()
	require.NoError(t, s.CreatePrincipal(ctx, "alice", "admin", nil))
	require.NoError(t, s.CreatePrincipal(ctx, "bob", "caller", nil))
	require.NoError(t, s.Grant(ctx, "bob", 100, "test funding"))
	return f
}

func callCtx(principal string) capability.CallContext {
	return capability.CallContext{SessionID: "s1", PrincipalID: principal}
}

func TestRegisterHonorsCatalog(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s, err := store.NewSQLiteStore(":memory:", logger)
	require.NoError(t, err)
	defer s.Close()

	tools := capability.NewToolRegistry(logger, capability.Options{})
	resources := capability.NewResourceRegistry(logger, capability.Options{})
	Register(tools, resources, Deps{
		Store:  s,
		Dialer: voice.NewFakeDialer(),
		Catalog: &catalog.Catalog{
			Tools:     map[string]catalog.Entry{"call.place": {Enabled: true}},
			Resources: map[string]catalog.Entry{},
		},
		Logger: logger,
	})

	assert.Equal(t, 1, tools.Len())
	assert.Equal(t, 0, resources.Len())
}

func TestPlaceCall(t *testing.T) {
	t.Run("happy path debits and dials", func(t *testing.T) {
		f := newFixture(t)
		ctx := context.Background()

		result, perr := f.tools.Invoke(ctx, "call.place",
			map[string]any{"destination": "+15550001111"}, callCtx("bob"))
		require.Nil(t, perr)

		out := result.(map[string]any)
		callID := out["callId"].(string)
		assert.Equal(t, store.CallStatusActive, out["status"])

		require.Len(t, f.dialer.Placed, 1)
		assert.Equal(t, "+15550001111", f.dialer.Placed[0].Destination)

		balance, err := f.store.Balance(ctx, "bob")
		require.NoError(t, err)
		assert.Equal(t, int64(90), balance, "default catalog prices call.place at 10")

		record, err := f.store.GetCall(ctx, callID)
		require.NoError(t, err)
		assert.Equal(t, store.CallStatusActive, record.Status)
		assert.NotEmpty(t, record.ExternalCallID)
	})

	t.Run("insufficient credits", func(t *testing.T) {
		f := newFixture(t)
		ctx := context.Background()
		require.NoError(t, f.store.CreatePrincipal(ctx, "pauper", "caller", nil))

		_, perr := f.tools.Invoke(ctx, "call.place",
			map[string]any{"destination": "+15550001111"}, callCtx("pauper"))
		require.NotNil(t, perr)
		assert.Empty(t, f.dialer.Placed, "no call is placed when the debit fails")
	})

	t.Run("dialer failure marks call failed", func(t *testing.T) {
		f := newFixture(t)
		ctx := context.Background()
		f.dialer.FailNext = true

		_, perr := f.tools.Invoke(ctx, "call.place",
			map[string]any{"destination": "+15550001111"}, callCtx("bob"))
		require.NotNil(t, perr)

		calls, err := f.store.ListCalls(ctx, "bob", store.CallStatusFailed, 10)
		require.NoError(t, err)
		assert.Len(t, calls, 1)
	})

	t.Run("bad destination rejected by schema", func(t *testing.T) {
		f := newFixture(t)

		for _, dest := range []string{"5550001111", "+", "+1555txt1111", ""} {
			_, perr := f.tools.Invoke(context.Background(), "call.place",
				map[string]any{"destination": dest}, callCtx("bob"))
			require.NotNil(t, perr, "destination %q should fail validation", dest)
		}
		assert.Empty(t, f.dialer.Placed)
	})

	t.Run("anonymous caller rejected", func(t *testing.T) {
		f := newFixture(t)
		_, perr := f.tools.Invoke(context.Background(), "call.place",
			map[string]any{"destination": "+15550001111"}, capability.CallContext{SessionID: "s1"})
		require.NotNil(t, perr)
	})
}

func TestEndCall(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	result, perr := f.tools.Invoke(ctx, "call.place",
		map[string]any{"destination": "+15550001111"}, callCtx("bob"))
	require.Nil(t, perr)
	callID := result.(map[string]any)["callId"].(string)

	t.Run("owner can end", func(t *testing.T) {
		result, perr := f.tools.Invoke(ctx, "call.end",
			map[string]any{"callId": callID}, callCtx("bob"))
		require.Nil(t, perr)
		assert.Equal(t, store.CallStatusEnded, result.(map[string]any)["status"])
		assert.Len(t, f.dialer.Ended, 1)
	})

	t.Run("ending twice is idempotent", func(t *testing.T) {
		_, perr := f.tools.Invoke(ctx, "call.end",
			map[string]any{"callId": callID}, callCtx("bob"))
		require.Nil(t, perr)
		assert.Len(t, f.dialer.Ended, 1, "provider is not asked twice")
	})

	t.Run("non-owner rejected", func(t *testing.T) {
		_, perr := f.tools.Invoke(ctx, "call.end",
			map[string]any{"callId": callID}, callCtx("alice"))
		require.NotNil(t, perr)
		data := perr.Data.(map[string]any)
		assert.Contains(t, data["originalError"], "another principal")
	})

	t.Run("unknown call", func(t *testing.T) {
		_, perr := f.tools.Invoke(ctx, "call.end",
			map[string]any{"callId": "no-such-call"}, callCtx("bob"))
		require.NotNil(t, perr)
	})
}

func TestGrantCredits(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	t.Run("admin grants", func(t *testing.T) {
		result, perr := f.tools.Invoke(ctx, "credits.grant",
			map[string]any{"principalId": "bob", "amount": float64(50)}, callCtx("alice"))
		require.Nil(t, perr)
		assert.Equal(t, int64(150), result.(map[string]any)["balance"])
	})

	t.Run("non-admin rejected", func(t *testing.T) {
		_, perr := f.tools.Invoke(ctx, "credits.grant",
			map[string]any{"principalId": "bob", "amount": float64(50)}, callCtx("bob"))
		require.NotNil(t, perr)
		data := perr.Data.(map[string]any)
		assert.Contains(t, data["originalError"], "admin")
	})

	t.Run("unknown grantee rejected", func(t *testing.T) {
		_, perr := f.tools.Invoke(ctx, "credits.grant",
			map[string]any{"principalId": "nobody", "amount": float64(5)}, callCtx("alice"))
		require.NotNil(t, perr)
	})

	t.Run("non-positive amount rejected by schema", func(t *testing.T) {
		_, perr := f.tools.Invoke(ctx, "credits.grant",
			map[string]any{"principalId": "bob", "amount": float64(0)}, callCtx("alice"))
		require.NotNil(t, perr)
	})
}

func TestBalanceResource(t *testing.T) {
	f := newFixture(t)

	result, perr := f.resources.Invoke(context.Background(), "credits.balance", nil, callCtx("bob"))
	require.Nil(t, perr)
	assert.Equal(t, int64(100), result.(map[string]any)["balance"])

	_, perr = f.resources.Invoke(context.Background(), "credits.balance", nil, capability.CallContext{})
	require.NotNil(t, perr)
}

func TestListCallsResource(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, dest := range []string{"+15550001111", "+15550002222"} {
		_, perr := f.tools.Invoke(ctx, "call.place",
			map[string]any{"destination": dest}, callCtx("bob"))
		require.Nil(t, perr)
	}

	t.Run("lists own calls", func(t *testing.T) {
		result, perr := f.resources.Invoke(ctx, "calls.list", nil, callCtx("bob"))
		require.Nil(t, perr)
		out := result.(map[string]any)
		assert.Equal(t, 2, out["count"])
	})

	t.Run("status filter", func(t *testing.T) {
		result, perr := f.resources.Invoke(ctx, "calls.list",
			map[string]any{"status": "ended"}, callCtx("bob"))
		require.Nil(t, perr)
		assert.Equal(t, 0, result.(map[string]any)["count"])
	})

	t.Run("other principal sees nothing", func(t *testing.T) {
		result, perr := f.resources.Invoke(ctx, "calls.list", nil, callCtx("alice"))
		require.Nil(t, perr)
		assert.Equal(t, 0, result.(map[string]any)["count"])
	})

	t.Run("bad filter rejected", func(t *testing.T) {
		_, perr := f.resources.Invoke(ctx, "calls.list",
			map[string]any{"status": "bogus"}, callCtx("bob"))
		require.NotNil(t, perr)
	})
}

func TestSchemasValidateAgainstRealInput(t *testing.T) {
	// The reflected schemas must round-trip through the validator's keyword
	// subset; a regression here silently disables validation.
	schema := mustSchema(&placeCallInput{})
	props, ok := schema["properties"].(map[string]any)
	require.True(t, ok, "schema should inline properties: %v", schema)
	_, ok = props["destination"]
	assert.True(t, ok)

	req, ok := schema["required"].([]any)
	require.True(t, ok)
	assert.Contains(t, req, "destination")
}
