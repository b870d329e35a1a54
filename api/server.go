package api

import (
	"context"
	"net/http"
	"time"
)

// Server represents the HTTP server for the runtime sidecar API.
type Server struct {
	store      *RunStore
	httpServer *http.Server
	handlers   *Handlers
}

// NewServer creates a new Server instance. stateHome roots every run's
// durable state/logs/workspaces (§6.1).
func NewServer(addr, stateHome string) *Server {
	store := NewRunStore()
	handlers := NewHandlers(store, stateHome)

	mux := http.NewServeMux()

	// Register routes using Go 1.22+ method routing
	mux.HandleFunc("POST /api/v1/runs", handlers.HandleStartRun)
	mux.HandleFunc("GET /api/v1/runs/{id}", handlers.HandleGetStatus)
	mux.HandleFunc("POST /api/v1/runs/{id}/abort", handlers.HandleAbort)
	mux.HandleFunc("POST /api/v1/runs/{id}/tasks", handlers.HandleEnqueueTask)

	return &Server{
		store:    store,
		handlers: handlers,
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
	}
}

// Start starts the HTTP server.
// Blocks until the server is stopped or an error occurs.
func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server: cancels every active run,
// waits for them to reach a terminal state, then stops accepting HTTP
// connections.
func (s *Server) Shutdown(ctx context.Context) error {
	s.store.CancelAll()

	waitDone := make(chan struct{})
	go func() {
		s.store.WaitAll()
		close(waitDone)
	}()

	select {
	case <-waitDone:
	case <-ctx.Done():
	}

	return s.httpServer.Shutdown(ctx)
}

// Store returns the RunStore for testing purposes.
func (s *Server) Store() *RunStore {
	return s.store
}

// Handlers returns the Handlers for testing purposes.
func (s *Server) Handlers() *Handlers {
	return s.handlers
}
