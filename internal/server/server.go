// ABOUTME: Server orchestrator that wires the store, registries, and transports.
// ABOUTME: Owns the lifecycle: background workers, listeners, graceful shutdown.

package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/kestrelops/dialgate/internal/auth"
	"github.com/kestrelops/dialgate/internal/builtins"
	"github.com/kestrelops/dialgate/internal/capability"
	"github.com/kestrelops/dialgate/internal/catalog"
	"github.com/kestrelops/dialgate/internal/config"
	"github.com/kestrelops/dialgate/internal/dispatch"
	"github.com/kestrelops/dialgate/internal/mirror"
	"github.com/kestrelops/dialgate/internal/session"
	"github.com/kestrelops/dialgate/internal/store"
	"github.com/kestrelops/dialgate/internal/transport/httpapi"
	"github.com/kestrelops/dialgate/internal/transport/stream"
	"github.com/kestrelops/dialgate/internal/voice"
)

// Server orchestrates the dialgate components: one store, one session
// manager, one dispatcher, and up to two transports sharing them.
type Server struct {
	config     *config.Config
	store      *store.SQLiteStore
	sessions   *session.Manager
	dispatcher *dispatch.Dispatcher
	mirror     *mirror.Mirror
	httpServer *http.Server
	streamSrv  *stream.Server
	logger     *slog.Logger
}

// newDialer picks the voice provider client from config.
func newDialer(cfg *config.Config, logger *slog.Logger) voice.Dialer {
	if cfg.Voice.UseFake {
		logger.Warn("using fake voice dialer - no real calls will be placed")
		return voice.NewFakeDialer()
	}
	return voice.NewHTTPDialer(cfg.Voice.BaseURL, cfg.Voice.APIKey, logger)
}

// newMirror builds the mirror worker with the configured sink.
func newMirror(cfg *config.Config, s *store.SQLiteStore, logger *slog.Logger) *mirror.Mirror {
	var sink mirror.Sink
	switch cfg.Mirror.Sink {
	case "csv":
		sink = mirror.NewCSVSink(cfg.Mirror.CSVPath)
	default:
		sink = mirror.NewOutboxSink(s)
	}
	return mirror.New(sink, logger)
}

// newAuthenticator builds the shared authenticator, or nil when auth is off.
func newAuthenticator(cfg *config.Config, s *store.SQLiteStore, logger *slog.Logger) *auth.Authenticator {
	if !cfg.Auth.Enabled {
		logger.Warn("auth disabled - all callers are anonymous")
		return nil
	}
	verifier := auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret), cfg.Auth.Issuer)
	logger.Info("bearer auth enabled")
	return auth.NewAuthenticator(verifier, s)
}

// New creates a Server from configuration. Version is the build version
// advertised from initialize.
func New(cfg *config.Config, version string, logger *slog.Logger) (*Server, error) {
	s, err := store.NewSQLiteStore(cfg.Database.Path, logger)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	cat, err := catalog.Load(cfg.Catalog.Path)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("loading catalog: %w", err)
	}

	m := newMirror(cfg, s, logger)

	opts := capability.Options{StrictNames: cfg.Server.StrictNames}
	tools := capability.NewToolRegistry(logger, opts)
	resources := capability.NewResourceRegistry(logger, opts)
	builtins.Register(tools, resources, builtins.Deps{
		Store:   s,
		Dialer:  newDialer(cfg, logger),
		Mirror:  m,
		Catalog: cat,
		Logger:  logger,
	})

	sessions := session.NewManager(session.Config{
		ReapInterval:  cfg.Sessions.ReapInterval,
		IdleThreshold: cfg.Sessions.IdleThreshold,
	}, logger)

	dispatcher := dispatch.New(sessions, tools, resources,
		dispatch.SessionPolicy{RequireInitialize: cfg.Server.RequireInitializeOrDefault()},
		dispatch.ServerInfo{Name: "dialgate", Version: version},
		logger,
	)

	authenticator := newAuthenticator(cfg, s, logger)

	streamSrv := stream.NewServer(dispatcher, sessions, logger)
	if authenticator != nil {
		streamSrv.EnableAuth(authenticator, true)
	}

	srv := &Server{
		config:     cfg,
		store:      s,
		sessions:   sessions,
		dispatcher: dispatcher,
		mirror:     m,
		streamSrv:  streamSrv,
		logger:     logger.With("component", "server"),
	}

	var rpc http.Handler = httpapi.NewHandler(dispatcher, logger)
	if authenticator != nil {
		rpc = httpapi.AuthMiddleware(authenticator, logger)(rpc)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", srv.handleHealth)
	mux.Handle("/v1/rpc", rpc)

	srv.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return srv, nil
}

// HTTPHandler returns the full HTTP handler, including health and rpc
// routes. Exposed for tests driving the server through httptest.
func (s *Server) HTTPHandler() http.Handler {
	return s.httpServer.Handler
}

// Run starts the transports and background workers and blocks until ctx is
// canceled or a server fails. Returns nil on graceful shutdown.
func (s *Server) Run(ctx context.Context) error {
	workerCtx, cancelWorkers := context.WithCancel(context.Background())

	var workers sync.WaitGroup
	workers.Add(2)
	go func() {
		defer workers.Done()
		s.mirror.Run(workerCtx)
	}()
	go func() {
		defer workers.Done()
		s.sessions.Run(workerCtx)
	}()

	errCh := make(chan error, 2)

	if s.config.Server.HTTPAddr != "" {
		ln, err := net.Listen("tcp", s.config.Server.HTTPAddr)
		if err != nil {
			cancelWorkers()
			workers.Wait()
			return fmt.Errorf("listening on http address: %w", err)
		}
		go func() {
			s.logger.Info("http transport listening", "addr", ln.Addr().String())
			if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("http server: %w", err)
			}
		}()
	}

	if s.config.Server.StreamAddr != "" {
		ln, err := net.Listen("tcp", s.config.Server.StreamAddr)
		if err != nil {
			cancelWorkers()
			workers.Wait()
			return fmt.Errorf("listening on stream address: %w", err)
		}
		go func() {
			if err := s.streamSrv.Serve(ctx, ln); err != nil {
				errCh <- fmt.Errorf("stream server: %w", err)
			}
		}()
	}

	var serverErr error
	select {
	case <-ctx.Done():
		s.logger.Info("context canceled, initiating shutdown")
	case serverErr = <-errCh:
		s.logger.Error("server error", "error", serverErr)
	}

	shutdownErr := s.shutdown(cancelWorkers, &workers)
	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// shutdown stops the HTTP server, drains the workers, and closes the store.
// Uses a fresh context because the run context is already canceled.
func (s *Server) shutdown(cancelWorkers context.CancelFunc, workers *sync.WaitGroup) error {
	s.logger.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var errs []error
	if err := s.httpServer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}

	// Workers stop after the transports so late requests still mirror.
	cancelWorkers()
	workers.Wait()

	if err := s.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("store close: %w", err))
	}

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}
	return nil
}

// handleHealth returns 200 OK while the server is alive.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}
