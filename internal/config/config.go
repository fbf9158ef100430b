// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package config loads the HJSON configuration file: the agent
// catalog, the ticket-URL template, worktree pool tuning, and the
// start-queue timeouts (each overridable by an OPENUI_* env var).
package config

import "github.com/openui/orchestrator/internal/agent"

// ServerConfig configures the HTTP/WebSocket listener.
type ServerConfig struct {
	Host string `json:"host" hjson:"host"`
	Port int    `json:"port" hjson:"port"`
}

// WorktreeConfig holds the worktree pool settings. RegistryPath sets
// where the registry file lives. MaxAvailablePerRepo is defaulted and
// validated but not passed to the registry, whose pruning bound is the
// fixed worktree.MaxAvailablePerRepo constant.
type WorktreeConfig struct {
	MaxAvailablePerRepo int    `json:"max_available_per_repo,omitempty" hjson:"max_available_per_repo,omitempty"`
	RegistryPath        string `json:"registry_path,omitempty" hjson:"registry_path,omitempty"`
}

// StartQueueConfig mirrors the §6.4 environment variables as config
// fallbacks; an env var always overrides its config counterpart.
type StartQueueConfig struct {
	StartupTimeoutMs   int `json:"startup_timeout_ms,omitempty" hjson:"startup_timeout_ms,omitempty"`
	PostSignalDelayMs  int `json:"post_signal_delay_ms,omitempty" hjson:"post_signal_delay_ms,omitempty"`
}

// Config is the root configuration document.
type Config struct {
	Server     ServerConfig     `json:"server" hjson:"server"`
	Agents     []agent.Agent    `json:"agents" hjson:"agents"`
	Worktree   WorktreeConfig   `json:"worktree" hjson:"worktree"`
	StartQueue StartQueueConfig `json:"start_queue" hjson:"start_queue"`

	TicketURLTemplate string `json:"ticket_url_template,omitempty" hjson:"ticket_url_template,omitempty"`
	PluginDir         string `json:"plugin_dir,omitempty" hjson:"plugin_dir,omitempty"`
	DataDir           string `json:"data_dir,omitempty" hjson:"data_dir,omitempty"`
	HasIsaac          bool   `json:"has_isaac,omitempty" hjson:"has_isaac,omitempty"`
}

const defaultTicketTemplate = "Working on {{title}} ({{id}}): {{url}}"

func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "127.0.0.1"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 4317
	}
	if cfg.Worktree.MaxAvailablePerRepo == 0 {
		cfg.Worktree.MaxAvailablePerRepo = 5
	}
	if cfg.StartQueue.StartupTimeoutMs == 0 {
		cfg.StartQueue.StartupTimeoutMs = 30000
	}
	if cfg.StartQueue.PostSignalDelayMs == 0 {
		cfg.StartQueue.PostSignalDelayMs = 2000
	}
	if cfg.TicketURLTemplate == "" {
		cfg.TicketURLTemplate = defaultTicketTemplate
	}
	if len(cfg.Agents) == 0 {
		cfg.Agents = []agent.Agent{
			{ID: "claude", Name: "Claude Code", Command: "claude --dangerously-skip-permissions"},
		}
	}
}
