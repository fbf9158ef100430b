// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_AppliesHostPortOverrides(t *testing.T) {
	a, err := New(Options{Host: "0.0.0.0", Port: 9999, Version: "test"})
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0", a.config.Server.Host)
	assert.Equal(t, 9999, a.config.Server.Port)
}

func TestNew_DefaultsDataDirUnderHome(t *testing.T) {
	a, err := New(Options{Version: "test"})
	require.NoError(t, err)

	home, err := os.UserHomeDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".openui"), a.config.DataDir)
}

func TestNew_RejectsInvalidConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "openui.hjson")
	content := `{
  agents: [
    { id: claude, command: "claude" }
    { id: claude, command: "claude --other" }
  ]
}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	_, err := New(Options{ConfigPath: path, Version: "test"})
	require.Error(t, err)
}
