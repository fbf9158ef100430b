// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package handlers implements the HTTP/WebSocket surface over the
// session lifecycle manager: the /sessions CRUD and lifecycle routes,
// the plugin status webhook, canvas position persistence, and the
// start-queue progress poll.
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/openui/orchestrator/internal/session"
)

const maxInputBytes = 4096

// SessionHandler serves the /sessions surface.
type SessionHandler struct {
	mgr *session.Manager
}

// NewSessionHandler creates a new session handler.
func NewSessionHandler(mgr *session.Manager) *SessionHandler {
	return &SessionHandler{mgr: mgr}
}

// createSessionRequest mirrors §6.1's POST /sessions body.
type createSessionRequest struct {
	AgentID        string `json:"agentId"`
	AgentName      string `json:"agentName"`
	Command        string `json:"command"`
	Cwd            string `json:"cwd"`
	NodeID         string `json:"nodeId"`
	CanvasID       string `json:"canvasId"`
	CustomName     string `json:"customName"`
	CustomColor    string `json:"customColor"`
	TicketID       string `json:"ticketId"`
	TicketTitle    string `json:"ticketTitle"`
	TicketURL      string `json:"ticketUrl"`
	BranchName     string `json:"branchName"`
	BaseBranch     string `json:"baseBranch"`
	CreateWorktree bool   `json:"createWorktreeFlag"`
	SparseCheckout bool   `json:"sparseCheckout"`
	SparseRelDir   string `json:"sparseRelDir"`
	GitRoot        string `json:"gitRoot"`
}

// List returns every live session, or only the archived ones when
// ?archived=true is given.
func (h *SessionHandler) List(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("archived") == "true" {
		WriteJSON(w, http.StatusOK, h.mgr.ListArchived())
		return
	}
	WriteJSON(w, http.StatusOK, h.mgr.ListSessions())
}

// Create starts a new session per the PTY lifecycle decision tree.
func (h *SessionHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteTaxonomyError(w, ErrInvalidArgument, "malformed request body")
		return
	}
	if req.AgentID == "" || req.Command == "" {
		WriteTaxonomyError(w, ErrInvalidArgument, "agentId and command are required")
		return
	}

	s, err := h.mgr.CreateSession(r.Context(), session.CreateParams{
		AgentID: req.AgentID, AgentName: req.AgentName, Command: req.Command, Cwd: req.Cwd,
		NodeID: req.NodeID, CanvasID: req.CanvasID, CustomName: req.CustomName, CustomColor: req.CustomColor,
		TicketID: req.TicketID, TicketTitle: req.TicketTitle, TicketURL: req.TicketURL,
		BranchName: req.BranchName, BaseBranch: req.BaseBranch, CreateWorktree: req.CreateWorktree,
		SparseCheckout: req.SparseCheckout, SparseRelDir: req.SparseRelDir, GitRoot: req.GitRoot,
	})
	if err != nil {
		WriteTaxonomyError(w, ErrUpstream, err.Error())
		return
	}

	snap := s.Snapshot()
	WriteJSON(w, http.StatusCreated, map[string]interface{}{
		"sessionId": snap.SessionID, "nodeId": snap.NodeID, "cwd": snap.Cwd, "gitBranch": snap.GitBranch,
	})
}

// Restart respawns a PTY for an existing session.
func (h *SessionHandler) Restart(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	s, err := h.mgr.Restart(r.Context(), id)
	if err != nil {
		writeSessionErr(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, s.Snapshot())
}

// Fork creates a sibling session resuming the parent's agent-native
// conversation.
func (h *SessionHandler) Fork(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	s, err := h.mgr.Fork(r.Context(), id)
	if err != nil {
		writeSessionErr(w, err)
		return
	}
	WriteJSON(w, http.StatusCreated, s.Snapshot())
}

type patchRequest struct {
	CustomName  *string `json:"customName"`
	CustomColor *string `json:"customColor"`
	Icon        *string `json:"icon"`
	Notes       *string `json:"notes"`
}

// Patch updates free-form session metadata.
func (h *SessionHandler) Patch(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var req patchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteTaxonomyError(w, ErrInvalidArgument, "malformed request body")
		return
	}
	if err := h.mgr.Patch(id, req.CustomName, req.CustomColor, req.Icon, req.Notes); err != nil {
		writeSessionErr(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{"ok": true})
}

// Archive toggles a session between live and archived.
func (h *SessionHandler) Archive(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var req struct {
		Archived bool `json:"archived"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteTaxonomyError(w, ErrInvalidArgument, "malformed request body")
		return
	}

	if req.Archived {
		if err := h.mgr.Archive(id); err != nil {
			writeSessionErr(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, map[string]interface{}{"ok": true})
		return
	}

	s, err := h.mgr.Unarchive(r.Context(), id)
	if err != nil {
		writeSessionErr(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, s.Snapshot())
}

// Delete removes a session from the live map and persisted nodes.
func (h *SessionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := h.mgr.Delete(id); err != nil {
		writeSessionErr(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{"ok": true})
}

// Tail returns the last N bytes of a session's output buffer, with an
// optional ANSI carriage-return collapse.
func (h *SessionHandler) Tail(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	bytesN := 65536
	if raw := r.URL.Query().Get("bytes"); raw != "" {
		n, err := parseNonNegativeInt(raw)
		if err != nil {
			WriteTaxonomyError(w, ErrInvalidArgument, "bytes must be a non-negative integer")
			return
		}
		bytesN = n
	}
	if bytesN > 65536 {
		bytesN = 65536
	}

	full, ok := h.mgr.Tail(id, bytesN)
	if !ok {
		WriteTaxonomyError(w, ErrNotFound, "session not found")
		return
	}

	if r.URL.Query().Get("strip") == "1" {
		full = stripCarriageReturns(full)
	}

	s, _ := h.mgr.GetSession(id)
	var status, tool string
	var toolInput interface{}
	if s != nil {
		snap := s.Snapshot()
		status, tool, toolInput = string(snap.Status), snap.CurrentTool, snap.ToolInput
	}

	// The tail body is written as-is, not wrapped in the response envelope.
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"tail": full, "tail_hash": djb2(full), "bytes": len(full),
		"status": status, "currentTool": tool, "toolInput": toolInput,
	})
}

// Input writes client-originated data to a session's PTY.
func (h *SessionHandler) Input(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var req struct {
		Data string `json:"data"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteTaxonomyError(w, ErrInvalidArgument, "malformed request body")
		return
	}
	if len(req.Data) > maxInputBytes {
		WriteTaxonomyError(w, ErrInvalidArgument, fmt.Sprintf("input exceeds %d bytes", maxInputBytes))
		return
	}
	if err := h.mgr.SendInput(id, req.Data); err != nil {
		writeSessionErr(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{"ok": true})
}

func writeSessionErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, session.ErrNotFound):
		WriteTaxonomyError(w, ErrNotFound, err.Error())
	case errors.Is(err, session.ErrConflict):
		WriteTaxonomyError(w, ErrConflict, err.Error())
	case errors.Is(err, session.ErrInvalidArgument):
		WriteTaxonomyError(w, ErrInvalidArgument, err.Error())
	case errors.Is(err, session.ErrNoPTY):
		WriteTaxonomyError(w, ErrConflict, err.Error())
	default:
		WriteTaxonomyError(w, ErrUpstream, err.Error())
	}
}

func parseNonNegativeInt(s string) (int, error) {
	var n int
	if _, err := fmt.Sscanf(s, "%d", &n); err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, fmt.Errorf("negative value")
	}
	return n, nil
}

// stripCarriageReturns collapses each '\r'-delimited segment within a
// line down to its last segment, mimicking how a real terminal
// redraws progress indicators in place.
func stripCarriageReturns(s string) string {
	lines := splitLines(s)
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		segs := splitOn(line, '\r')
		out = append(out, strings.TrimRight(segs[len(segs)-1], " "))
	}
	return joinLines(out)
}

func splitLines(s string) []string {
	var lines []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			lines = append(lines, s[start:i])
			start = i + 1
		}
	}
	lines = append(lines, s[start:])
	return lines
}

func joinLines(lines []string) string {
	out := ""
	for i, l := range lines {
		if i > 0 {
			out += "\n"
		}
		out += l
	}
	return out
}

func splitOn(s string, sep byte) []string {
	var parts []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == sep {
			parts = append(parts, s[start:i])
			start = i + 1
		}
	}
	parts = append(parts, s[start:])
	return parts
}

// djb2 is a cheap non-cryptographic hash used so pollers can diff
// tail responses without re-sending the whole body.
func djb2(s string) uint32 {
	var h uint32 = 5381
	for i := 0; i < len(s); i++ {
		h = ((h << 5) + h) + uint32(s[i])
	}
	return h
}
