// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/openui/orchestrator/internal/session"
	"github.com/openui/orchestrator/internal/startqueue"
)

// StateHandler serves canvas-position persistence and start-queue
// progress polling.
type StateHandler struct {
	mgr   *session.Manager
	queue *startqueue.Queue
}

// NewStateHandler creates a new state handler.
func NewStateHandler(mgr *session.Manager, queue *startqueue.Queue) *StateHandler {
	return &StateHandler{mgr: mgr, queue: queue}
}

type positionEntry struct {
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	CanvasID string  `json:"canvasId,omitempty"`
}

// SavePositions applies POST /state/positions.
func (h *StateHandler) SavePositions(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Positions map[string]positionEntry `json:"positions"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteTaxonomyError(w, ErrInvalidArgument, "malformed request body")
		return
	}

	updates := make(map[string]session.PositionUpdate, len(req.Positions))
	for nodeID, p := range req.Positions {
		updates[nodeID] = session.PositionUpdate{X: p.X, Y: p.Y, CanvasID: p.CanvasID}
	}
	if err := h.mgr.SavePositions(updates); err != nil {
		WriteTaxonomyError(w, ErrUpstream, err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{"ok": true})
}

// AutoResumeProgress serves GET /auto-resume/progress.
func (h *StateHandler) AutoResumeProgress(w http.ResponseWriter, r *http.Request) {
	if h.queue == nil {
		WriteJSON(w, http.StatusOK, startqueue.Progress{})
		return
	}
	WriteJSON(w, http.StatusOK, h.queue.GetProgress())
}
