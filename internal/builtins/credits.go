// ABOUTME: Builtin credit capabilities: credits.grant and credits.balance.
// ABOUTME: Granting is restricted to admin principals via the directory.

package builtins

import (
	"context"
	"errors"

	"github.com/kestrelops/dialgate/internal/capability"
	"github.com/kestrelops/dialgate/internal/catalog"
)

// ErrAdminRequired indicates the capability needs the admin role.
var ErrAdminRequired = errors.New("admin role required")

type grantCreditsInput struct {
	PrincipalID string `json:"principalId" jsonschema:"required,minLength=1,description=Principal receiving the credits"`
	Amount      int64  `json:"amount" jsonschema:"required,minimum=1"`
	Reason      string `json:"reason,omitempty" jsonschema:"maxLength=200"`
}

func (h *handlers) grantCreditsTool(entry catalog.Entry) *capability.Tool {
	return &capability.Tool{
		Name:            "credits.grant",
		Description:     "Grants credits to a principal. Admin only.",
		ParameterSchema: mustSchema(&grantCreditsInput{}),
		Latency:         latencyFor(entry, capability.LatencyInteractive),
		Execute: func(ctx context.Context, input map[string]any, call capability.CallContext) (any, error) {
			if call.PrincipalID == "" {
				return nil, ErrNotAuthenticated
			}
			actor, err := h.deps.Store.GetPrincipal(ctx, call.PrincipalID)
			if err != nil {
				return nil, err
			}
			if actor.Role != "admin" {
				return nil, ErrAdminRequired
			}

			var params grantCreditsInput
			if err := decodeInput(input, &params); err != nil {
				return nil, err
			}
			reason := params.Reason
			if reason == "" {
				reason = "admin grant"
			}

			// The grantee must exist; a typo'd id should not mint a ledger row.
			if _, err := h.deps.Store.GetPrincipal(ctx, params.PrincipalID); err != nil {
				return nil, err
			}
			if err := h.deps.Store.Grant(ctx, params.PrincipalID, params.Amount, reason); err != nil {
				return nil, err
			}

			balance, err := h.deps.Store.Balance(ctx, params.PrincipalID)
			if err != nil {
				return nil, err
			}
			h.mirrorEvent("credits.granted", map[string]any{
				"principalId": params.PrincipalID,
				"amount":      params.Amount,
				"grantedBy":   call.PrincipalID,
			})
			return map[string]any{"principalId": params.PrincipalID, "balance": balance}, nil
		},
	}
}

type balanceFilter struct{}

func (h *handlers) balanceResource() *capability.Resource {
	return &capability.Resource{
		Name:         "credits.balance",
		Description:  "Returns the caller's current credit balance.",
		FilterSchema: mustSchema(&balanceFilter{}),
		Latency:      capability.LatencyInteractive,
		Get: func(ctx context.Context, filter map[string]any, call capability.CallContext) (any, error) {
			if call.PrincipalID == "" {
				return nil, ErrNotAuthenticated
			}
			balance, err := h.deps.Store.Balance(ctx, call.PrincipalID)
			if err != nil {
				return nil, err
			}
			return map[string]any{"principalId": call.PrincipalID, "balance": balance}, nil
		},
	}
}
