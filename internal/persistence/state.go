// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package persistence holds the atomic JSON snapshot of every node and
// canvas, plus the flat per-session output-buffer files.
package persistence

import "time"

// Position is a canvas-local coordinate.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// PersistedNode is the flat on-disk projection of a session: every
// field required to rehydrate it minus the PTY and subscriber set.
type PersistedNode struct {
	SessionID string `json:"sessionId"`
	NodeID    string `json:"nodeId"`
	AgentID   string `json:"agentId"`
	AgentName string `json:"agentName"`
	CanvasID  string `json:"canvasId"`

	Command        string `json:"command"`
	Cwd            string `json:"cwd"`
	OriginalCwd    string `json:"originalCwd,omitempty"`
	WorktreePath   string `json:"worktreePath,omitempty"`
	SparseCheckout bool   `json:"sparseCheckout,omitempty"`

	GitBranch string `json:"gitBranch,omitempty"`

	ClaudeSessionID string `json:"claudeSessionId,omitempty"`

	CustomName  string   `json:"customName,omitempty"`
	CustomColor string   `json:"customColor,omitempty"`
	Icon        string   `json:"icon,omitempty"`
	Notes       string   `json:"notes,omitempty"`
	Position    Position `json:"position"`

	TicketID    string `json:"ticketId,omitempty"`
	TicketTitle string `json:"ticketTitle,omitempty"`
	TicketURL   string `json:"ticketUrl,omitempty"`

	Status      string `json:"status"`
	IsRestored  bool   `json:"isRestored,omitempty"`
	AutoResumed bool   `json:"autoResumed,omitempty"`
	Archived    bool   `json:"archived"`

	CreatedAt time.Time `json:"createdAt"`
}

// Canvas groups nodes for display; opaque beyond "sessions reference a
// canvasId" to the lifecycle core.
type Canvas struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Color     string    `json:"color,omitempty"`
	Order     int       `json:"order"`
	CreatedAt time.Time `json:"createdAt"`
	IsDefault bool      `json:"isDefault,omitempty"`
}

// DefaultCanvasID is the canvas orphaned nodes are reassigned to.
const DefaultCanvasID = "default"

// State is the single JSON object persisted to disk.
type State struct {
	Nodes      []PersistedNode          `json:"nodes"`
	Canvases   []Canvas                 `json:"canvases"`
	Categories []map[string]interface{} `json:"categories,omitempty"`
}

func defaultCanvas() Canvas {
	return Canvas{ID: DefaultCanvasID, Name: "Default", Order: 0, CreatedAt: time.Now(), IsDefault: true}
}
