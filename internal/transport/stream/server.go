// ABOUTME: Persistent-connection transport speaking newline-delimited JSON over TCP.
// ABOUTME: One session per connection, serialized writes, concurrent request handling.

package stream

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"sync"

	"github.com/google/uuid"

	"github.com/kestrelops/dialgate/internal/auth"
	"github.com/kestrelops/dialgate/internal/dispatch"
	"github.com/kestrelops/dialgate/internal/protocol"
	"github.com/kestrelops/dialgate/internal/session"
)

// maxLineSize caps a single inbound message at 1MB.
const maxLineSize = 1 << 20

// Server accepts persistent connections and binds one session to each for
// its lifetime. The session id never travels on the wire; the connection is
// the session.
type Server struct {
	dispatcher *dispatch.Dispatcher
	sessions   *session.Manager
	logger     *slog.Logger

	auth        *auth.Authenticator
	requireAuth bool
}

// NewServer creates the stream transport.
func NewServer(dispatcher *dispatch.Dispatcher, sessions *session.Manager, logger *slog.Logger) *Server {
	return &Server{
		dispatcher: dispatcher,
		sessions:   sessions,
		logger:     logger.With("component", "stream-transport"),
	}
}

// EnableAuth turns on initialize-time credential checks. There is no header
// to carry a bearer token on this transport, so the credential rides inside
// the initialize params and binds the principal to the connection.
func (s *Server) EnableAuth(a *auth.Authenticator, required bool) {
	s.auth = a
	s.requireAuth = required
}

// Serve accepts connections until ctx is canceled or the listener fails.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	s.logger.Info("stream transport listening", "addr", ln.Addr().String())

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		go s.HandleConn(ctx, conn)
	}
}

// HandleConn runs one connection to completion. Exported so tests can drive
// it directly over a net.Pipe.
func (s *Server) HandleConn(ctx context.Context, conn net.Conn) {
	sessionID := uuid.New().String()

	// Eviction (reaper or shutdown) closes the connection, which in turn
	// unblocks the read loop below.
	var closeOnce sync.Once
	closeConn := func() { closeOnce.Do(func() { conn.Close() }) }

	s.sessions.Create(sessionID)
	s.sessions.SetOnEvict(sessionID, closeConn)

	s.logger.Info("connection opened", "session_id", sessionID, "remote", conn.RemoteAddr().String())

	// All responses funnel through one writer goroutine so concurrent
	// handlers never interleave bytes on the wire.
	out := make(chan *protocol.Response, 16)
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		enc := json.NewEncoder(conn)
		for resp := range out {
			if err := enc.Encode(resp); err != nil {
				s.logger.Debug("write failed, dropping connection", "session_id", sessionID, "error", err)
				closeConn()
				// Keep receiving until the channel closes so in-flight
				// handlers never block on a dead writer.
				for range out {
				}
				return
			}
		}
	}()

	// principalID is owned by this read loop; handler goroutines only ever
	// see it through the Meta copy built for their request.
	principalID := ""

	var handlers sync.WaitGroup
	reader := bufio.NewReaderSize(conn, 64*1024)

	for {
		line, err := readLine(reader)
		if err != nil {
			if !errors.Is(err, io.EOF) && ctx.Err() == nil {
				s.logger.Debug("read ended", "session_id", sessionID, "error", err)
			}
			break
		}
		if len(line) == 0 {
			continue
		}

		var req protocol.Request
		if err := json.Unmarshal(line, &req); err != nil {
			// A bad message never tears the connection down.
			out <- protocol.NewErrorResponse(nil, protocol.NewError(protocol.CodeParseError, "invalid JSON message"))
			continue
		}

		meta := dispatch.Meta{SessionID: sessionID, PrincipalID: principalID, OnEvict: closeConn}

		method := protocol.Method(req.Method)
		if method == protocol.MethodInitialize || method == protocol.MethodShutdown {
			if method == protocol.MethodInitialize && s.auth != nil {
				pid, perr := s.authenticateInit(ctx, req.Params)
				if perr != nil {
					if !req.IsNotification() {
						out <- protocol.NewErrorResponse(req.ID, perr)
					}
					continue
				}
				principalID = pid
				meta.PrincipalID = pid
			}
			// State-mutating methods apply in arrival order.
			if resp := s.dispatcher.Dispatch(ctx, &req, meta); resp != nil {
				out <- resp
			}
			continue
		}

		handlers.Add(1)
		go func(req protocol.Request, meta dispatch.Meta) {
			defer handlers.Done()
			if resp := s.dispatcher.Dispatch(ctx, &req, meta); resp != nil {
				out <- resp
			}
		}(req, meta)
	}

	handlers.Wait()
	close(out)
	<-writerDone

	// Session goes with the connection, no idle wait. Clear the hook first
	// so Delete does not call back into closeConn needlessly.
	s.sessions.SetOnEvict(sessionID, nil)
	s.sessions.Delete(sessionID)
	closeConn()

	s.logger.Info("connection closed", "session_id", sessionID)
}

// authenticateInit resolves the credential carried in initialize params to a
// principal id. An absent credential is only an error when auth is required.
func (s *Server) authenticateInit(ctx context.Context, params json.RawMessage) (string, *protocol.Error) {
	var p struct {
		Credential string `json:"credential"`
	}
	if len(params) > 0 {
		if err := json.Unmarshal(params, &p); err != nil {
			return "", protocol.NewError(protocol.CodeInvalidParams, "initialize params must be an object")
		}
	}
	if p.Credential == "" {
		if s.requireAuth {
			return "", protocol.NewError(protocol.CodeUnauthorized, "credential required")
		}
		return "", nil
	}

	principal, err := s.auth.Authenticate(ctx, p.Credential)
	if err != nil {
		return "", protocol.NewError(protocol.CodeUnauthorized, "invalid credentials")
	}
	return principal.ID, nil
}

// readLine reads one newline-terminated message. A final unterminated line
// before EOF still counts as a message. The size cap is enforced while
// accumulating, so a newline-free sender cannot grow memory past the limit.
func readLine(r *bufio.Reader) ([]byte, error) {
	var line []byte
	for {
		chunk, err := r.ReadSlice('\n')
		line = append(line, chunk...)
		if len(line) > maxLineSize {
			return nil, errors.New("message exceeds size limit")
		}
		switch {
		case err == nil:
			return trimNewline(line), nil
		case errors.Is(err, bufio.ErrBufferFull):
			// Keep accumulating the partial line.
		case errors.Is(err, io.EOF) && len(line) > 0:
			return trimNewline(line), nil
		default:
			return nil, err
		}
	}
}

func trimNewline(line []byte) []byte {
	for len(line) > 0 && (line[len(line)-1] == '\n' || line[len(line)-1] == '\r') {
		line = line[:len(line)-1]
	}
	return line
}
