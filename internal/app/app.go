// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package app wires the orchestrator's components together: config,
// persistence, worktree registry, start queue, and session manager,
// fronted by the API server. It owns the process lifecycle: boot,
// restore, auto-resume, and graceful shutdown.
package app

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/openui/orchestrator/internal/api"
	"github.com/openui/orchestrator/internal/config"
	"github.com/openui/orchestrator/internal/persistence"
	"github.com/openui/orchestrator/internal/session"
	"github.com/openui/orchestrator/internal/startqueue"
	"github.com/openui/orchestrator/internal/worktree"
)

// App is the main application container.
type App struct {
	mu sync.RWMutex

	configPath string
	version    string
	config     *config.Config

	store     *persistence.Store
	worktrees *worktree.Registry
	queue     *startqueue.Queue
	manager   *session.Manager
	apiServer *api.Server

	decayCancel context.CancelFunc

	done     chan struct{}
	stopOnce sync.Once
}

// Options holds configuration options for the app.
type Options struct {
	ConfigPath string
	Host       string
	Port       int
	Debug      bool
	Version    string
}

// New creates a new App instance, loading configuration but not yet
// starting anything.
func New(opts Options) (*App, error) {
	app := &App{
		configPath: opts.ConfigPath,
		version:    opts.Version,
		done:       make(chan struct{}),
	}

	loader := config.NewLoader()
	cfg, err := loader.LoadWithDefaults(context.Background(), opts.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := config.NewValidator().Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	if opts.Host != "" {
		cfg.Server.Host = opts.Host
	}
	if opts.Port > 0 {
		cfg.Server.Port = opts.Port
	}
	if cfg.DataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolve home directory: %w", err)
		}
		cfg.DataDir = filepath.Join(home, ".openui")
	}

	app.config = cfg
	return app, nil
}

// Initialize constructs the persistence, worktree, queue, and session
// layers from the loaded config.
func (app *App) Initialize(ctx context.Context) error {
	store, err := persistence.NewStore(app.config.DataDir)
	if err != nil {
		return fmt.Errorf("open persistence store: %w", err)
	}
	app.store = store

	registryPath := app.config.Worktree.RegistryPath
	if registryPath == "" {
		registryPath = filepath.Join(app.config.DataDir, "worktrees.json")
	}
	registry, err := worktree.NewRegistry(registryPath, worktree.NewRealGitExecutor())
	if err != nil {
		return fmt.Errorf("open worktree registry: %w", err)
	}
	app.worktrees = registry

	queue := startqueue.New(startqueue.Config{
		StartupTimeout:  time.Duration(app.config.StartQueue.StartupTimeoutMs) * time.Millisecond,
		PostSignalDelay: time.Duration(app.config.StartQueue.PostSignalDelayMs) * time.Millisecond,
	})
	app.queue = queue

	app.manager = session.NewManager(session.Options{
		Store:          store,
		Worktrees:      registry,
		Queue:          queue,
		Catalog:        app.config.Agents,
		PluginDir:      app.config.PluginDir,
		HasIsaac:       app.config.HasIsaac,
		TicketTemplate: app.config.TicketURLTemplate,
	})
	app.manager.OnBroadcast(func(sessionID string, msg session.OutMessage) {
		app.manager.BroadcastToSession(sessionID, msg)
	})
	queue.SetAuthBroadcast(
		func(sessionID, url string) {
			app.manager.BroadcastToSession(sessionID, session.OutMessage{Type: "status", Status: "waiting_input", Data: url})
		},
		func(sessionID string) {},
	)

	if err := app.manager.RestoreSessions(ctx); err != nil {
		return fmt.Errorf("restore sessions: %w", err)
	}

	app.apiServer = api.NewServer(api.ServerConfig{
		Host:  app.config.Server.Host,
		Port:  app.config.Server.Port,
		Token: os.Getenv("OPENUI_TOKEN"),
	}, api.Dependencies{Manager: app.manager, Queue: queue})

	return nil
}

// Start begins serving and kicks off the decay loop and auto-resume.
func (app *App) Start(ctx context.Context) error {
	decayCtx, cancel := context.WithCancel(ctx)
	app.decayCancel = cancel
	go app.manager.StartDecayLoop(decayCtx)

	go app.manager.AutoResumeSessions(ctx)

	go func() {
		log.Printf("Starting API server on %s:%d", app.config.Server.Host, app.config.Server.Port)
		if err := app.apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("API server error: %v", err)
		}
	}()

	return nil
}

// Run starts the app and blocks until shutdown.
func (app *App) Run(ctx context.Context) error {
	if err := app.Initialize(ctx); err != nil {
		return err
	}
	if err := app.Start(ctx); err != nil {
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Printf("Received signal %v, shutting down...", sig)
	case <-ctx.Done():
		log.Printf("Context cancelled, shutting down...")
	case <-app.done:
		log.Printf("Shutdown requested...")
	}

	return app.Shutdown(context.Background())
}

// Shutdown gracefully shuts down all components.
func (app *App) Shutdown(ctx context.Context) error {
	app.mu.Lock()
	defer app.mu.Unlock()

	log.Println("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if app.decayCancel != nil {
		app.decayCancel()
	}

	if app.apiServer != nil {
		if err := app.apiServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("Error shutting down API server: %v", err)
		}
	}

	app.stopOnce.Do(func() { close(app.done) })
	return nil
}
