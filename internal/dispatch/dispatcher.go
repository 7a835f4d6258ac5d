// ABOUTME: Request dispatcher routing envelope methods through a lookup table.
// ABOUTME: Owns the per-request flow: validate, route, execute, respond.

package dispatch

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/kestrelops/dialgate/internal/capability"
	"github.com/kestrelops/dialgate/internal/protocol"
	"github.com/kestrelops/dialgate/internal/session"
)

// SessionPolicy controls session-state enforcement. RequireInitialize is the
// production default; turning it off lets capability calls through without a
// prior initialize, which is a local-debugging convenience and nothing more.
type SessionPolicy struct {
	RequireInitialize bool
}

// ServerInfo is the static identity advertised from initialize.
type ServerInfo struct {
	Name    string
	Version string
}

// Meta is what a transport adapter knows about a request beyond its bytes:
// the session id it arrived under, the authenticated principal if any, and a
// hook to attach to sessions minted during this request.
type Meta struct {
	SessionID   string
	PrincipalID string
	// OnEvict is attached to any session this request creates, so the
	// stream transport can close the bound connection when the session goes.
	OnEvict func()
}

type handlerFunc func(ctx context.Context, req *protocol.Request, meta Meta) (any, *protocol.Error)

// Dispatcher validates envelopes and routes them to method handlers. It is
// constructed once and shared by every transport; all state lives in the
// session manager and the registries.
type Dispatcher struct {
	sessions  *session.Manager
	tools     *capability.ToolRegistry
	resources *capability.ResourceRegistry
	policy    SessionPolicy
	info      ServerInfo
	logger    *slog.Logger
	handlers  map[protocol.Method]handlerFunc
}

// New builds a dispatcher. The handler table is fixed here; adding a method
// means adding a constant and an entry, nothing else.
func New(sessions *session.Manager, tools *capability.ToolRegistry, resources *capability.ResourceRegistry, policy SessionPolicy, info ServerInfo, logger *slog.Logger) *Dispatcher {
	d := &Dispatcher{
		sessions:  sessions,
		tools:     tools,
		resources: resources,
		policy:    policy,
		info:      info,
		logger:    logger.With("component", "dispatcher"),
	}
	d.handlers = map[protocol.Method]handlerFunc{
		protocol.MethodInitialize:   d.handleInitialize,
		protocol.MethodPing:         d.handlePing,
		protocol.MethodToolsExecute: d.handleToolsExecute,
		protocol.MethodResourcesGet: d.handleResourcesGet,
		protocol.MethodShutdown:     d.handleShutdown,
	}
	return d
}

// Dispatch runs one request through the full flow and returns the response
// envelope, or nil for notifications. Panics in handlers become
// InternalError; nothing ever escapes to the transport.
func (d *Dispatcher) Dispatch(ctx context.Context, req *protocol.Request, meta Meta) (resp *protocol.Response) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("handler panic recovered", "method", req.Method, "session_id", meta.SessionID, "panic", r)
			resp = d.respond(req, nil, protocol.NewError(protocol.CodeInternalError, "internal server error"))
		}
	}()

	if req.V != protocol.Version {
		return d.respond(req, nil, protocol.Errorf(protocol.CodeInvalidRequest, "unsupported protocol version %q", req.V))
	}
	if req.Method == "" {
		return d.respond(req, nil, protocol.NewError(protocol.CodeInvalidRequest, "missing method"))
	}

	handler, ok := d.handlers[protocol.Method(req.Method)]
	if !ok {
		return d.respond(req, nil, protocol.Errorf(protocol.CodeMethodNotFound, "unknown method %q", req.Method))
	}

	// Any request on a live session counts as activity.
	if meta.SessionID != "" {
		d.sessions.Touch(meta.SessionID)
	}

	d.logger.Debug("dispatching request", "method", req.Method, "session_id", meta.SessionID, "request_id", req.ID.String())

	result, perr := handler(ctx, req, meta)
	return d.respond(req, result, perr)
}

// respond wraps a handler outcome into an envelope, or swallows it for
// notifications.
func (d *Dispatcher) respond(req *protocol.Request, result any, perr *protocol.Error) *protocol.Response {
	if req.IsNotification() {
		if perr != nil {
			d.logger.Debug("error on notification dropped", "method", req.Method, "code", int(perr.Code))
		}
		return nil
	}
	if perr != nil {
		return protocol.NewErrorResponse(req.ID, perr)
	}
	resp, err := protocol.NewResultResponse(req.ID, result)
	if err != nil {
		d.logger.Error("result marshaling failed", "method", req.Method, "error", err)
		return protocol.NewErrorResponse(req.ID, protocol.NewError(protocol.CodeInternalError, "internal server error"))
	}
	return resp
}

type initializeParams struct {
	ClientInfo   session.ClientInfo `json:"clientInfo"`
	Capabilities map[string]any     `json:"capabilities"`
}

// InitializeResult is the payload returned from a successful initialize.
type InitializeResult struct {
	ServerInfo struct {
		Name    string `json:"name"`
		Version string `json:"version"`
	} `json:"serverInfo"`
	ProtocolVersion string               `json:"protocolVersion"`
	Tools           []capability.Summary `json:"tools"`
	Resources       []capability.Summary `json:"resources"`
	SessionID       string               `json:"sessionId"`
}

func (d *Dispatcher) handleInitialize(ctx context.Context, req *protocol.Request, meta Meta) (any, *protocol.Error) {
	var params initializeParams
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return nil, protocol.NewError(protocol.CodeInvalidParams, "initialize params must be an object")
		}
	}

	// Re-initializing an existing id overwrites the record wholesale. The
	// manager applies the whole update under its lock so a concurrent
	// capability call never observes a half-written session.
	sessionID := d.sessions.Initialize(meta.SessionID, params.ClientInfo, params.Capabilities, meta.PrincipalID, meta.OnEvict)

	d.logger.Info("session initialized",
		"session_id", sessionID,
		"client_name", params.ClientInfo.Name,
		"client_version", params.ClientInfo.Version,
	)

	result := InitializeResult{
		ProtocolVersion: protocol.Version,
		Tools:           d.tools.List(),
		Resources:       d.resources.List(),
		SessionID:       sessionID,
	}
	result.ServerInfo.Name = d.info.Name
	result.ServerInfo.Version = d.info.Version
	return result, nil
}

func (d *Dispatcher) handlePing(ctx context.Context, req *protocol.Request, meta Meta) (any, *protocol.Error) {
	return map[string]any{"timestamp": time.Now().UTC().Format(time.RFC3339Nano)}, nil
}

type executeParams struct {
	Name  string         `json:"name"`
	Input map[string]any `json:"input"`
}

func (d *Dispatcher) handleToolsExecute(ctx context.Context, req *protocol.Request, meta Meta) (any, *protocol.Error) {
	call, perr := d.capabilityCall(meta)
	if perr != nil {
		return nil, perr
	}

	var params executeParams
	if err := json.Unmarshal(req.Params, &params); err != nil || params.Name == "" {
		return nil, protocol.NewError(protocol.CodeInvalidParams, "tools/execute requires a tool name")
	}

	result, perr := d.tools.Invoke(ctx, params.Name, params.Input, call)
	if perr != nil {
		return nil, perr
	}
	return map[string]any{"output": result}, nil
}

type getParams struct {
	Name   string         `json:"name"`
	Filter map[string]any `json:"filter"`
}

func (d *Dispatcher) handleResourcesGet(ctx context.Context, req *protocol.Request, meta Meta) (any, *protocol.Error) {
	call, perr := d.capabilityCall(meta)
	if perr != nil {
		return nil, perr
	}

	var params getParams
	if err := json.Unmarshal(req.Params, &params); err != nil || params.Name == "" {
		return nil, protocol.NewError(protocol.CodeInvalidParams, "resources/get requires a resource name")
	}

	result, perr := d.resources.Invoke(ctx, params.Name, params.Filter, call)
	if perr != nil {
		return nil, perr
	}
	return map[string]any{"data": result}, nil
}

func (d *Dispatcher) handleShutdown(ctx context.Context, req *protocol.Request, meta Meta) (any, *protocol.Error) {
	// Deleting an absent session is fine, which makes shutdown idempotent.
	if meta.SessionID != "" {
		d.sessions.Delete(meta.SessionID)
	}
	return map[string]any{"ok": true}, nil
}

// capabilityCall checks session state for tools/execute and resources/get
// and builds the call context handed to the capability.
func (d *Dispatcher) capabilityCall(meta Meta) (capability.CallContext, *protocol.Error) {
	call := capability.CallContext{SessionID: meta.SessionID, PrincipalID: meta.PrincipalID}

	if !d.policy.RequireInitialize {
		return call, nil
	}

	principalID, ok := d.sessions.IsInitialized(meta.SessionID)
	if !ok {
		return capability.CallContext{}, protocol.NewError(protocol.CodeSessionNotInitialized, "session not initialized")
	}
	if call.PrincipalID == "" {
		call.PrincipalID = principalID
	}
	return call, nil
}
