// ABOUTME: HTTP request/response transport for the rpc envelope protocol.
// ABOUTME: Carries the session id in the Dialgate-Session-Id header both ways.

package httpapi

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"sync"

	"github.com/google/uuid"

	"github.com/kestrelops/dialgate/internal/auth"
	"github.com/kestrelops/dialgate/internal/dispatch"
	"github.com/kestrelops/dialgate/internal/protocol"
)

// SessionHeader carries the session id in both directions.
const SessionHeader = "Dialgate-Session-Id"

// maxBodySize caps request bodies at 1MB.
const maxBodySize = 1 << 20

// Handler serves the protocol over plain request/response HTTP. Each request
// is independent; a stateless caller persists the session id it gets back in
// the response header.
type Handler struct {
	dispatcher *dispatch.Dispatcher
	logger     *slog.Logger

	// initMu serializes initialize/shutdown per session id so concurrent
	// state-mutating requests on the same session apply in arrival order.
	initMu keyedMutex
}

// NewHandler creates the HTTP transport handler.
func NewHandler(dispatcher *dispatch.Dispatcher, logger *slog.Logger) *Handler {
	return &Handler{
		dispatcher: dispatcher,
		logger:     logger.With("component", "http-transport"),
	}
}

// ServeHTTP handles POST /v1/rpc.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		h.writeError(w, "", nil, protocol.NewError(protocol.CodeParseError, "failed to read request body"))
		return
	}

	var req protocol.Request
	if err := json.Unmarshal(body, &req); err != nil {
		// A decode failure still yields a well-formed envelope; the id is
		// null because none could be recovered.
		h.writeError(w, r.Header.Get(SessionHeader), nil, protocol.NewError(protocol.CodeParseError, "invalid JSON in request body"))
		return
	}

	sessionID := r.Header.Get(SessionHeader)
	if sessionID == "" {
		sessionID = uuid.New().String()
	}

	meta := dispatch.Meta{SessionID: sessionID}
	if principal := auth.FromContext(r.Context()); principal != nil {
		meta.PrincipalID = principal.ID
	}

	method := protocol.Method(req.Method)
	if method == protocol.MethodInitialize || method == protocol.MethodShutdown {
		unlock := h.initMu.lock(sessionID)
		defer unlock()
	}

	resp := h.dispatcher.Dispatch(r.Context(), &req, meta)

	w.Header().Set(SessionHeader, sessionID)
	if resp == nil {
		// Notification: acknowledged, nothing to say.
		w.WriteHeader(http.StatusAccepted)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.logger.Error("writing response failed", "session_id", sessionID, "error", err)
	}
}

// AuthMiddleware authenticates the bearer credential and attaches the
// principal to the request context. Failures are rendered as protocol
// Unauthorized envelopes, not bare HTTP errors, so clients see one error
// shape on this endpoint.
func AuthMiddleware(authenticator *auth.Authenticator, logger *slog.Logger) func(http.Handler) http.Handler {
	logger = logger.With("component", "http-transport")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, errMsg := auth.ExtractBearerToken(r.Header.Get("Authorization"))
			if errMsg != "" {
				writeUnauthorized(w, logger, errMsg)
				return
			}

			principal, err := authenticator.Authenticate(r.Context(), token)
			if err != nil {
				writeUnauthorized(w, logger, "invalid credentials")
				return
			}

			next.ServeHTTP(w, r.WithContext(auth.WithAuth(r.Context(), principal)))
		})
	}
}

func writeUnauthorized(w http.ResponseWriter, logger *slog.Logger, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	resp := protocol.NewErrorResponse(nil, protocol.NewError(protocol.CodeUnauthorized, message))
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		logger.Error("writing unauthorized response failed", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, sessionID string, id *protocol.RequestID, perr *protocol.Error) {
	if sessionID != "" {
		w.Header().Set(SessionHeader, sessionID)
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(protocol.NewErrorResponse(id, perr)); err != nil {
		h.logger.Error("writing error response failed", "error", err)
	}
}

// keyedMutex hands out one mutex per key. Entries are reference-counted and
// removed once the last holder releases, so idle session ids cost nothing.
type keyedMutex struct {
	mu      sync.Mutex
	entries map[string]*keyedEntry
}

type keyedEntry struct {
	mu   sync.Mutex
	refs int
}

func (k *keyedMutex) lock(key string) (unlock func()) {
	k.mu.Lock()
	if k.entries == nil {
		k.entries = make(map[string]*keyedEntry)
	}
	e, ok := k.entries[key]
	if !ok {
		e = &keyedEntry{}
		k.entries[key] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		k.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(k.entries, key)
		}
		k.mu.Unlock()
	}
}
