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

	"github.com/gorilla/mux"
	"github.com/openui/orchestrator/internal/persistence"
	"github.com/openui/orchestrator/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newRestoredManager seeds a store with one non-archived node and
// restores it, producing a live, PTY-less session without spawning a
// real process.
func newRestoredManager(t *testing.T, node persistence.PersistedNode) *session.Manager {
	t.Helper()
	store, err := persistence.NewStore(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, store.SaveState([]persistence.PersistedNode{node}, nil))

	mgr := session.NewManager(session.Options{Store: store})
	require.NoError(t, mgr.RestoreSessions(context.Background()))
	return mgr
}

func withID(r *http.Request, id string) *http.Request {
	return mux.SetURLVars(r, map[string]string{"id": id})
}

func TestSessions_List_Empty(t *testing.T) {
	store, err := persistence.NewStore(t.TempDir())
	require.NoError(t, err)
	h := NewSessionHandler(session.NewManager(session.Options{Store: store}))

	w := httptest.NewRecorder()
	h.List(w, httptest.NewRequest(http.MethodGet, "/api/sessions", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	var resp Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Nil(t, resp.Error)
}

func TestSessions_Create_RejectsMissingFields(t *testing.T) {
	store, err := persistence.NewStore(t.TempDir())
	require.NoError(t, err)
	h := NewSessionHandler(session.NewManager(session.Options{Store: store}))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/sessions", strings.NewReader(`{"agentId":""}`))
	h.Create(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	var resp Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrInvalidArgument, resp.Error.Code)
}

func TestSessions_Create_RejectsMalformedBody(t *testing.T) {
	store, err := persistence.NewStore(t.TempDir())
	require.NoError(t, err)
	h := NewSessionHandler(session.NewManager(session.Options{Store: store}))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/sessions", strings.NewReader(`{not json`))
	h.Create(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSessions_Restart_NotFound(t *testing.T) {
	store, err := persistence.NewStore(t.TempDir())
	require.NoError(t, err)
	h := NewSessionHandler(session.NewManager(session.Options{Store: store}))

	w := httptest.NewRecorder()
	req := withID(httptest.NewRequest(http.MethodPost, "/api/sessions/missing/restart", nil), "missing")
	h.Restart(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSessions_Fork_RejectsNonClaudeSession(t *testing.T) {
	mgr := newRestoredManager(t, persistence.PersistedNode{
		SessionID: "s1", NodeID: "s1", AgentID: "shell", Command: "bash", Cwd: t.TempDir(),
	})
	h := NewSessionHandler(mgr)

	w := httptest.NewRecorder()
	req := withID(httptest.NewRequest(http.MethodPost, "/api/sessions/s1/fork", nil), "s1")
	h.Fork(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	var resp Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrInvalidArgument, resp.Error.Code)
}

func TestSessions_Patch_UpdatesCustomName(t *testing.T) {
	mgr := newRestoredManager(t, persistence.PersistedNode{
		SessionID: "s1", NodeID: "s1", AgentID: "shell", Command: "bash", Cwd: t.TempDir(),
	})
	h := NewSessionHandler(mgr)

	w := httptest.NewRecorder()
	req := withID(httptest.NewRequest(http.MethodPatch, "/api/sessions/s1", strings.NewReader(`{"customName":"renamed"}`)), "s1")
	h.Patch(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	s, ok := mgr.GetSession("s1")
	require.True(t, ok)
	assert.Equal(t, "renamed", s.Snapshot().CustomName)
}

func TestSessions_Archive_RoundTrips(t *testing.T) {
	mgr := newRestoredManager(t, persistence.PersistedNode{
		SessionID: "s1", NodeID: "s1", AgentID: "shell", Command: "bash", Cwd: t.TempDir(),
	})
	h := NewSessionHandler(mgr)

	w := httptest.NewRecorder()
	req := withID(httptest.NewRequest(http.MethodPatch, "/api/sessions/s1/archive", strings.NewReader(`{"archived":true}`)), "s1")
	h.Archive(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	_, ok := mgr.GetSession("s1")
	assert.False(t, ok)

	archived := mgr.ListArchived()
	require.Len(t, archived, 1)
	assert.Equal(t, "s1", archived[0].SessionID)
}

func TestSessions_Tail_NotFound(t *testing.T) {
	store, err := persistence.NewStore(t.TempDir())
	require.NoError(t, err)
	h := NewSessionHandler(session.NewManager(session.Options{Store: store}))

	w := httptest.NewRecorder()
	req := withID(httptest.NewRequest(http.MethodGet, "/api/sessions/missing/tail", nil), "missing")
	h.Tail(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSessions_Tail_RejectsNegativeBytes(t *testing.T) {
	mgr := newRestoredManager(t, persistence.PersistedNode{
		SessionID: "s1", NodeID: "s1", AgentID: "shell", Command: "bash", Cwd: t.TempDir(),
	})
	h := NewSessionHandler(mgr)

	w := httptest.NewRecorder()
	req := withID(httptest.NewRequest(http.MethodGet, "/api/sessions/s1/tail?bytes=-1", nil), "s1")
	h.Tail(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSessions_Input_RejectsOversizedPayload(t *testing.T) {
	mgr := newRestoredManager(t, persistence.PersistedNode{
		SessionID: "s1", NodeID: "s1", AgentID: "shell", Command: "bash", Cwd: t.TempDir(),
	})
	h := NewSessionHandler(mgr)

	oversized := strings.Repeat("a", maxInputBytes+1)
	body, err := json.Marshal(map[string]string{"data": oversized})
	require.NoError(t, err)

	w := httptest.NewRecorder()
	req := withID(httptest.NewRequest(http.MethodPost, "/api/sessions/s1/input", strings.NewReader(string(body))), "s1")
	h.Input(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSessions_Input_NoPTYReturnsConflict(t *testing.T) {
	mgr := newRestoredManager(t, persistence.PersistedNode{
		SessionID: "s1", NodeID: "s1", AgentID: "shell", Command: "bash", Cwd: t.TempDir(),
	})
	h := NewSessionHandler(mgr)

	body, err := json.Marshal(map[string]string{"data": "hello"})
	require.NoError(t, err)

	w := httptest.NewRecorder()
	req := withID(httptest.NewRequest(http.MethodPost, "/api/sessions/s1/input", strings.NewReader(string(body))), "s1")
	h.Input(w, req)

	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestSessions_Delete_RemovesLiveSession(t *testing.T) {
	mgr := newRestoredManager(t, persistence.PersistedNode{
		SessionID: "s1", NodeID: "s1", AgentID: "shell", Command: "bash", Cwd: t.TempDir(),
	})
	h := NewSessionHandler(mgr)

	w := httptest.NewRecorder()
	req := withID(httptest.NewRequest(http.MethodDelete, "/api/sessions/s1", nil), "s1")
	h.Delete(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	_, ok := mgr.GetSession("s1")
	assert.False(t, ok)
}

func TestStripCarriageReturns_CollapsesProgressRedraw(t *testing.T) {
	assert.Equal(t, "done", stripCarriageReturns("loading...\rdone      "))
}

func TestDjb2_Deterministic(t *testing.T) {
	assert.Equal(t, djb2("hello"), djb2("hello"))
	assert.NotEqual(t, djb2("hello"), djb2("world"))
}
