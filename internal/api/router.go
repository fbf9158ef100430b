// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package api wires the session surface's HTTP routes, WebSocket
// endpoint, and middleware chain onto a gorilla/mux router.
package api

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/openui/orchestrator/internal/api/handlers"
	"github.com/openui/orchestrator/internal/api/middleware"
	"github.com/openui/orchestrator/internal/session"
	"github.com/openui/orchestrator/internal/startqueue"
)

// ServerConfig holds configuration for the API server.
type ServerConfig struct {
	Host  string
	Port  int
	Token string // optional bearer token, OPENUI_TOKEN
}

// Dependencies holds every handler dependency.
type Dependencies struct {
	Manager *session.Manager
	Queue   *startqueue.Queue
}

// NewRouter builds the full route table over deps.
func NewRouter(deps Dependencies, token string) *mux.Router {
	r := mux.NewRouter()

	r.Use(middleware.Logging)
	r.Use(middleware.Recovery)
	r.Use(middleware.CORS)
	r.Use(middleware.Auth(token))

	sessionHandler := handlers.NewSessionHandler(deps.Manager)
	hookHandler := handlers.NewHookHandler(deps.Manager)
	stateHandler := handlers.NewStateHandler(deps.Manager, deps.Queue)
	wsHandler := handlers.NewWebSocketHandler(deps.Manager)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/sessions", sessionHandler.List).Methods("GET")
	api.HandleFunc("/sessions", sessionHandler.Create).Methods("POST")
	api.HandleFunc("/sessions/{id}/restart", sessionHandler.Restart).Methods("POST")
	api.HandleFunc("/sessions/{id}/fork", sessionHandler.Fork).Methods("POST")
	api.HandleFunc("/sessions/{id}", sessionHandler.Patch).Methods("PATCH")
	api.HandleFunc("/sessions/{id}/archive", sessionHandler.Archive).Methods("PATCH")
	api.HandleFunc("/sessions/{id}", sessionHandler.Delete).Methods("DELETE")
	api.HandleFunc("/sessions/{id}/tail", sessionHandler.Tail).Methods("GET")
	api.HandleFunc("/sessions/{id}/input", sessionHandler.Input).Methods("POST")
	api.HandleFunc("/status-update", hookHandler.StatusUpdate).Methods("POST")
	api.HandleFunc("/state/positions", stateHandler.SavePositions).Methods("POST")
	api.HandleFunc("/auto-resume/progress", stateHandler.AutoResumeProgress).Methods("GET")

	r.Handle("/ws", wsHandler).Methods("GET")

	return r
}

// Server wraps the router with graceful start/stop.
type Server struct {
	router *mux.Router
	cfg    ServerConfig
	server *http.Server
}

// NewServer creates a new API server.
func NewServer(cfg ServerConfig, deps Dependencies) *Server {
	return &Server{
		router: NewRouter(deps, cfg.Token),
		cfg:    cfg,
	}
}

// Router returns the underlying router, mostly for tests.
func (s *Server) Router() *mux.Router {
	return s.router
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	addr := s.cfg.Host + ":" + strconv.Itoa(s.cfg.Port)
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.router,
	}
	log.Printf("API server listening on http://%s", addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	log.Println("Shutting down API server...")

	shutdownCtx := ctx
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		shutdownCtx, cancel = context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
	}

	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
