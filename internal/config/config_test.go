// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/openui/orchestrator/internal/agent"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadWithDefaults_EmptyPath(t *testing.T) {
	cfg, err := NewLoader().LoadWithDefaults(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, 4317, cfg.Server.Port)
	assert.Equal(t, 5, cfg.Worktree.MaxAvailablePerRepo)
	require.Len(t, cfg.Agents, 1)
	assert.Equal(t, "claude", cfg.Agents[0].ID)
}

func TestLoad_ParsesHjson(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "openui.hjson")
	content := `{
  server: { port: 9090 }
  agents: [
    { id: claude, name: "Claude Code", command: "claude --dangerously-skip-permissions" }
  ]
}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := NewLoader().Load(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)
	require.Len(t, cfg.Agents, 1)
	assert.Equal(t, "claude", cfg.Agents[0].ID)
}

func TestLoadWithDefaults_EnvOverride(t *testing.T) {
	t.Setenv("OPENUI_STARTUP_TIMEOUT_MS", "5000")
	cfg, err := NewLoader().LoadWithDefaults(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, 5000, cfg.StartQueue.StartupTimeoutMs)
}

func TestValidate_RejectsDuplicateAgentIDs(t *testing.T) {
	cfg := &Config{
		Server: ServerConfig{Port: 4317},
		Agents: []agent.Agent{
			{ID: "claude", Command: "claude"},
			{ID: "claude", Command: "claude --other"},
		},
	}
	err := NewValidator().Validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate agent id")
}

func TestValidate_RejectsEmptyAgents(t *testing.T) {
	cfg := &Config{Server: ServerConfig{Port: 4317}}
	err := NewValidator().Validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least one agent")
}

func TestValidate_AcceptsValidConfig(t *testing.T) {
	cfg := &Config{
		Server: ServerConfig{Port: 4317},
		Agents: []agent.Agent{{ID: "claude", Command: "claude"}},
	}
	assert.NoError(t, NewValidator().Validate(cfg))
}
