// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package agent holds the agent catalog and the pure command-rewriting
// helpers the session lifecycle manager applies to a session's stored
// command on create/restart/fork.
package agent

// Agent is an immutable catalog entry.
type Agent struct {
	ID          string `json:"id" hjson:"id"`
	Name        string `json:"name" hjson:"name"`
	Command     string `json:"command" hjson:"command"`
	Description string `json:"description,omitempty" hjson:"description,omitempty"`
	Color       string `json:"color,omitempty" hjson:"color,omitempty"`
	Icon        string `json:"icon,omitempty" hjson:"icon,omitempty"`
}

// ClaudeAgentID is the agent id command-rewriting treats specially.
const ClaudeAgentID = "claude"

// ByID looks up an entry from a catalog slice.
func ByID(catalog []Agent, id string) (Agent, bool) {
	for _, a := range catalog {
		if a.ID == id {
			return a, true
		}
	}
	return Agent{}, false
}
