// ABOUTME: Builtin calling capabilities: call.place, call.end, and calls.list.
// ABOUTME: Placing a call debits credits first; the mirror records every transition.

package builtins

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kestrelops/dialgate/internal/capability"
	"github.com/kestrelops/dialgate/internal/catalog"
	"github.com/kestrelops/dialgate/internal/mirror"
	"github.com/kestrelops/dialgate/internal/store"
	"github.com/kestrelops/dialgate/internal/voice"
)

// ErrNotAuthenticated indicates the capability needs a principal and none was present.
var ErrNotAuthenticated = errors.New("authentication required")

// ErrNotCallOwner indicates the principal does not own the referenced call.
var ErrNotCallOwner = errors.New("call belongs to another principal")

type placeCallInput struct {
	Destination string `json:"destination" jsonschema:"required,pattern=^\\+[0-9]+$,minLength=8,maxLength=16,description=E.164 destination number"`
	CallerID    string `json:"callerId,omitempty" jsonschema:"description=Presented caller id"`
}

func (h *handlers) placeCallTool(entry catalog.Entry) *capability.Tool {
	return &capability.Tool{
		Name:            "call.place",
		Description:     "Places an outbound call to an E.164 destination.",
		ParameterSchema: mustSchema(&placeCallInput{}),
		Latency:         latencyFor(entry, capability.LatencyStandard),
		Execute: func(ctx context.Context, input map[string]any, call capability.CallContext) (any, error) {
			if call.PrincipalID == "" {
				return nil, ErrNotAuthenticated
			}
			var params placeCallInput
			if err := decodeInput(input, &params); err != nil {
				return nil, err
			}

			if entry.Cost > 0 {
				if err := h.deps.Store.Debit(ctx, call.PrincipalID, entry.Cost, "call.place"); err != nil {
					return nil, err
				}
			}

			callID := uuid.New().String()
			record := &store.Call{
				CallID:      callID,
				PrincipalID: call.PrincipalID,
				SessionID:   call.SessionID,
				Destination: params.Destination,
			}
			if err := h.deps.Store.CreateCall(ctx, record); err != nil {
				return nil, err
			}

			externalID, err := h.deps.Dialer.PlaceCall(ctx, voice.CallRequest{
				Destination: params.Destination,
				CallerID:    params.CallerID,
				Metadata:    map[string]string{"callId": callID},
			})
			if err != nil {
				// The record stays as an audit trail of the failed attempt.
				if uerr := h.deps.Store.UpdateCallStatus(ctx, callID, store.CallStatusFailed, ""); uerr != nil {
					h.logger.Warn("marking failed call", "call_id", callID, "error", uerr)
				}
				h.mirrorEvent("call.failed", map[string]any{"callId": callID})
				return nil, fmt.Errorf("placing call: %w", err)
			}

			if err := h.deps.Store.UpdateCallStatus(ctx, callID, store.CallStatusActive, externalID); err != nil {
				return nil, err
			}
			h.mirrorEvent("call.placed", map[string]any{"callId": callID, "principalId": call.PrincipalID})

			return map[string]any{"callId": callID, "status": store.CallStatusActive}, nil
		},
	}
}

type endCallInput struct {
	CallID string `json:"callId" jsonschema:"required,description=Id returned by call.place"`
}

func (h *handlers) endCallTool(entry catalog.Entry) *capability.Tool {
	return &capability.Tool{
		Name:            "call.end",
		Description:     "Ends an active call previously placed with call.place.",
		ParameterSchema: mustSchema(&endCallInput{}),
		Latency:         latencyFor(entry, capability.LatencyInteractive),
		Execute: func(ctx context.Context, input map[string]any, call capability.CallContext) (any, error) {
			if call.PrincipalID == "" {
				return nil, ErrNotAuthenticated
			}
			var params endCallInput
			if err := decodeInput(input, &params); err != nil {
				return nil, err
			}

			record, err := h.deps.Store.GetCall(ctx, params.CallID)
			if err != nil {
				return nil, err
			}
			if record.PrincipalID != call.PrincipalID {
				return nil, ErrNotCallOwner
			}
			if record.Status == store.CallStatusEnded {
				// Hanging up twice is fine.
				return map[string]any{"callId": record.CallID, "status": record.Status}, nil
			}

			if record.ExternalCallID != "" {
				if err := h.deps.Dialer.EndCall(ctx, record.ExternalCallID); err != nil {
					return nil, fmt.Errorf("ending call: %w", err)
				}
			}
			if err := h.deps.Store.UpdateCallStatus(ctx, record.CallID, store.CallStatusEnded, ""); err != nil {
				return nil, err
			}
			h.mirrorEvent("call.ended", map[string]any{"callId": record.CallID})

			return map[string]any{"callId": record.CallID, "status": store.CallStatusEnded}, nil
		},
	}
}

type listCallsFilter struct {
	Status string `json:"status,omitempty" jsonschema:"enum=placing,enum=active,enum=ended,enum=failed"`
	Limit  int    `json:"limit,omitempty" jsonschema:"minimum=1,maximum=200"`
}

func (h *handlers) listCallsResource() *capability.Resource {
	return &capability.Resource{
		Name:         "calls.list",
		Description:  "Lists the caller's calls, newest first.",
		FilterSchema: mustSchema(&listCallsFilter{}),
		Latency:      capability.LatencyInteractive,
		Get: func(ctx context.Context, filter map[string]any, call capability.CallContext) (any, error) {
			if call.PrincipalID == "" {
				return nil, ErrNotAuthenticated
			}
			var params listCallsFilter
			if err := decodeInput(filter, &params); err != nil {
				return nil, err
			}

			calls, err := h.deps.Store.ListCalls(ctx, call.PrincipalID, params.Status, params.Limit)
			if err != nil {
				return nil, err
			}

			out := make([]map[string]any, len(calls))
			for i, c := range calls {
				entry := map[string]any{
					"callId":      c.CallID,
					"destination": c.Destination,
					"status":      c.Status,
					"createdAt":   c.CreatedAt.Format(time.RFC3339),
				}
				if c.EndedAt != nil {
					entry["endedAt"] = c.EndedAt.Format(time.RFC3339)
				}
				out[i] = entry
			}
			return map[string]any{"calls": out, "count": len(out)}, nil
		},
	}
}

func (h *handlers) mirrorEvent(kind string, payload map[string]any) {
	if h.deps.Mirror == nil {
		return
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		h.logger.Warn("encoding mirror event", "kind", kind, "error", err)
		return
	}
	h.deps.Mirror.Append(mirror.Record{Kind: kind, Payload: string(raw)})
}
