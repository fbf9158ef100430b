// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/openui/orchestrator/internal/persistence"
	"github.com/openui/orchestrator/internal/session"
	"github.com/openui/orchestrator/internal/startqueue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestState_SavePositions_RejectsMalformedBody(t *testing.T) {
	store, err := persistence.NewStore(t.TempDir())
	require.NoError(t, err)
	h := NewStateHandler(session.NewManager(session.Options{Store: store}), nil)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/state/positions", strings.NewReader(`{not json`))
	h.SavePositions(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestState_SavePositions_UpdatesLiveSession(t *testing.T) {
	store, err := persistence.NewStore(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, store.SaveState([]persistence.PersistedNode{{
		SessionID: "s1", NodeID: "s1", AgentID: "shell", Command: "bash", Cwd: t.TempDir(),
	}}, nil))

	mgr := session.NewManager(session.Options{Store: store})
	require.NoError(t, mgr.RestoreSessions(context.Background()))
	h := NewStateHandler(mgr, nil)

	body := `{"positions":{"s1":{"x":12.5,"y":7,"canvasId":"default"}}}`
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/state/positions", strings.NewReader(body))
	h.SavePositions(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	s, ok := mgr.GetSession("s1")
	require.True(t, ok)
	pos := s.Snapshot().Position
	assert.Equal(t, 12.5, pos.X)
	assert.Equal(t, 7.0, pos.Y)
}

func TestState_AutoResumeProgress_NilQueueReturnsZeroValue(t *testing.T) {
	store, err := persistence.NewStore(t.TempDir())
	require.NoError(t, err)
	h := NewStateHandler(session.NewManager(session.Options{Store: store}), nil)

	w := httptest.NewRecorder()
	h.AutoResumeProgress(w, httptest.NewRequest(http.MethodGet, "/api/auto-resume/progress", nil))

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestState_AutoResumeProgress_DelegatesToQueue(t *testing.T) {
	store, err := persistence.NewStore(t.TempDir())
	require.NoError(t, err)
	q := startqueue.New(startqueue.Config{})
	h := NewStateHandler(session.NewManager(session.Options{Store: store}), q)

	w := httptest.NewRecorder()
	h.AutoResumeProgress(w, httptest.NewRequest(http.MethodGet, "/api/auto-resume/progress", nil))

	assert.Equal(t, http.StatusOK, w.Code)
}
