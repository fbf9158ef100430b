// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/openui/orchestrator/internal/session"
)

// HookHandler serves the plugin's /status-update webhook.
type HookHandler struct {
	mgr *session.Manager
}

// NewHookHandler creates a new hook handler.
func NewHookHandler(mgr *session.Manager) *HookHandler {
	return &HookHandler{mgr: mgr}
}

// StatusUpdate ingests one Plugin Status State Machine event.
func (h *HookHandler) StatusUpdate(w http.ResponseWriter, r *http.Request) {
	var p session.HookPayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		WriteTaxonomyError(w, ErrInvalidArgument, "malformed request body")
		return
	}

	if err := h.mgr.HandleHookEvent(p); err != nil {
		WriteTaxonomyError(w, ErrInvalidArgument, err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{"ok": true})
}
