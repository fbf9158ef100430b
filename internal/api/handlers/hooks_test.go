// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/openui/orchestrator/internal/persistence"
	"github.com/openui/orchestrator/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHooks_StatusUpdate_RejectsMissingStatus(t *testing.T) {
	store, err := persistence.NewStore(t.TempDir())
	require.NoError(t, err)
	h := NewHookHandler(session.NewManager(session.Options{Store: store}))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/status-update", strings.NewReader(`{"hookEvent":"PreToolUse"}`))
	h.StatusUpdate(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	var resp Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrInvalidArgument, resp.Error.Code)
}

func TestHooks_StatusUpdate_RejectsMalformedBody(t *testing.T) {
	store, err := persistence.NewStore(t.TempDir())
	require.NoError(t, err)
	h := NewHookHandler(session.NewManager(session.Options{Store: store}))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/status-update", strings.NewReader(`{not json`))
	h.StatusUpdate(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHooks_StatusUpdate_UpdatesMatchingSession(t *testing.T) {
	store, err := persistence.NewStore(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, store.SaveState([]persistence.PersistedNode{{
		SessionID: "s1", NodeID: "s1", AgentID: "claude", Command: "claude", Cwd: t.TempDir(),
	}}, nil))

	mgr := session.NewManager(session.Options{Store: store})
	require.NoError(t, mgr.RestoreSessions(context.Background()))
	h := NewHookHandler(mgr)

	body := `{"status":"pre_tool","openuiSessionId":"s1","hookEvent":"PreToolUse","toolName":"Bash"}`
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/status-update", strings.NewReader(body))
	h.StatusUpdate(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	s, ok := mgr.GetSession("s1")
	require.True(t, ok)
	assert.Equal(t, "Bash", s.Snapshot().CurrentTool)
}

// TestHooks_StatusUpdate_UnmatchedSessionStillReturnsOK reflects that
// hook delivery is fire-and-forget from the plugin's perspective: an
// event for a session the manager no longer knows about is not an
// error.
func TestHooks_StatusUpdate_UnmatchedSessionStillReturnsOK(t *testing.T) {
	store, err := persistence.NewStore(t.TempDir())
	require.NoError(t, err)
	h := NewHookHandler(session.NewManager(session.Options{Store: store}))

	body := `{"status":"busy","openuiSessionId":"missing","hookEvent":"PreToolUse"}`
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/status-update", strings.NewReader(body))
	h.StatusUpdate(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}
