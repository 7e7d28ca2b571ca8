// Package api provides the HTTP REST surface for opschat.
//
// Endpoints:
//
//	POST   /api/chat                     - route one message through the orchestrator
//	GET    /api/sessions/{id}            - session introspection
//	GET    /api/sessions/{id}/stats      - derived session statistics
//	DELETE /api/cache                    - administrative cache invalidation
//	GET    /health                       - liveness probe
//	GET    /ready                        - readiness probe (cache + model)
//
// File structure:
//   - server.go: server setup and lifecycle
//   - middleware.go: recovery and request logging
//   - chat.go: chat endpoint
//   - session.go: session introspection endpoints
//   - admin.go: cache invalidation endpoint
//   - health.go: probes
//   - response.go: JSON helpers
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/opschat/opschat/internal/log"
)

const (
	// DefaultAddr is the default listen address.
	DefaultAddr = "127.0.0.1:3500"

	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout = 10 * time.Second

	// ReadHeaderTimeout guards against slow-header clients.
	ReadHeaderTimeout = 10 * time.Second

	// ReadTimeout bounds reading the entire request.
	ReadTimeout = 30 * time.Second

	// WriteTimeout bounds writing the response.
	WriteTimeout = 60 * time.Second

	// IdleTimeout bounds keep-alive waits.
	IdleTimeout = 120 * time.Second
)

// Server is the HTTP server for the opschat API.
type Server struct {
	mux    *http.ServeMux
	logger log.Logger

	health  *HealthHandler
	chat    *ChatHandler
	session *SessionHandler
	admin   *AdminHandler
}

// NewServer creates a server with all routes registered.
func NewServer(chat chatService, sessions sessionReader, admin cacheAdmin, cacheProbe readinessProber, modelProbe healthChecker, logger log.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		mux:     mux,
		logger:  logger,
		health:  NewHealthHandler(cacheProbe, modelProbe, logger),
		chat:    NewChatHandler(chat, logger),
		session: NewSessionHandler(sessions, logger),
		admin:   NewAdminHandler(admin, logger),
	}

	s.health.RegisterRoutes(mux)
	s.chat.RegisterRoutes(mux)
	s.session.RegisterRoutes(mux)
	s.admin.RegisterRoutes(mux)

	return s
}

// Handler returns the handler with middleware applied.
// Order: recovery → logging → mux.
func (s *Server) Handler() http.Handler {
	return chain(s.mux, recoveryMiddleware(s.logger), loggingMiddleware(s.logger))
}

// Run starts the server and blocks until the context is cancelled, then
// shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	if addr == "" {
		addr = DefaultAddr
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: ReadHeaderTimeout,
		ReadTimeout:       ReadTimeout,
		WriteTimeout:      WriteTimeout,
		IdleTimeout:       IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}
