// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"log"
	"time"

	"github.com/openui/orchestrator/internal/pluginstatus"
)

// HookPayload is the plugin webhook's incoming JSON body.
type HookPayload struct {
	Status          string      `json:"status"`
	OpenUISessionID string      `json:"openuiSessionId,omitempty"`
	ClaudeSessionID string      `json:"claudeSessionId,omitempty"`
	Cwd             string      `json:"cwd,omitempty"`
	HookEvent       string      `json:"hookEvent"`
	ToolName        string      `json:"toolName,omitempty"`
	ToolInput       interface{} `json:"toolInput,omitempty"`
	StopReason      string      `json:"stopReason,omitempty"`
}

// ErrMissingStatus is returned when the plugin payload omits status.
var ErrMissingStatus = errInvalid("status is required")

type errInvalid string

func (e errInvalid) Error() string { return string(e) }

// HandleHookEvent implements the Plugin Status State Machine's session
// lookup and dispatch: prefer openuiSessionId, else the first session
// whose claudeSessionId matches. An unmatched session logs a warning
// and returns nil (hooks are fire-and-forget from the plugin's
// perspective; callers still translate that into HTTP 200).
func (m *Manager) HandleHookEvent(p HookPayload) error {
	if p.Status == "" {
		return ErrMissingStatus
	}

	s := m.findHookSession(p)
	if s == nil {
		log.Printf("session: hook event %q for unknown session (openui=%q claude=%q)", p.HookEvent, p.OpenUISessionID, p.ClaudeSessionID)
		return nil
	}

	s.mu.Lock()
	if p.ClaudeSessionID != "" && s.ClaudeSessionID == "" {
		s.ClaudeSessionID = p.ClaudeSessionID // learned once, never overwritten (invariant 5)
	}
	if p.Cwd != "" && p.Cwd != s.Cwd {
		s.Cwd = p.Cwd
	}
	view := &pluginstatus.SessionView{
		Status: s.Status, CurrentTool: s.CurrentTool, ToolInput: s.ToolInput,
		PreToolTime: s.PreToolTime, NeedsInputSince: s.NeedsInputSince, LastInputTime: s.LastInputTime,
		LongRunningTool: s.LongRunningTool, PluginReportedStatus: s.PluginReportedStatus,
		LastPluginStatusTime: s.LastPluginStatusTime, LastHookEvent: s.LastHookEvent,
	}
	timers := s.timers
	s.mu.Unlock()

	cb := pluginstatus.Callbacks{
		OnPermissionTimeout: func() { m.firePermissionTimeout(s) },
		OnLongRunningTimeout: func() { m.fireLongRunningTimeout(s) },
	}

	pluginstatus.Apply(view, pluginstatus.HookEvent{
		Status: p.Status, OpenUISessionID: p.OpenUISessionID, ClaudeSessionID: p.ClaudeSessionID,
		Cwd: p.Cwd, HookEvent: p.HookEvent, ToolName: p.ToolName, ToolInput: p.ToolInput,
		StopReason: p.StopReason,
	}, timers, cb, time.Now())

	s.mu.Lock()
	s.Status = view.Status
	s.CurrentTool = view.CurrentTool
	s.ToolInput = view.ToolInput
	s.PreToolTime = view.PreToolTime
	s.NeedsInputSince = view.NeedsInputSince
	s.LongRunningTool = view.LongRunningTool
	s.PluginReportedStatus = view.PluginReportedStatus
	s.LastPluginStatusTime = view.LastPluginStatusTime
	s.LastHookEvent = view.LastHookEvent
	sessionID := s.SessionID
	branch := s.GitBranch
	s.mu.Unlock()

	if p.HookEvent == "SessionStart" && p.OpenUISessionID != "" && m.queue != nil {
		m.queue.SignalReady(p.OpenUISessionID)
	}

	m.BroadcastToSession(sessionID, OutMessage{
		Type: "status", Status: string(view.Status), IsRestored: false,
		CurrentTool: view.CurrentTool, HookEvent: p.HookEvent, GitBranch: branch,
		LongRunningTool: view.LongRunningTool,
	})

	go m.RefreshGitBranch(context.Background(), sessionID)

	return nil
}

// firePermissionTimeout is armed by the state machine's pre_tool case and
// fires 2.5s later on its own goroutine unless a later hook event
// (permission_request, post_tool, an AskUserQuestion pre_tool,
// UserPromptSubmit or Stop) cancelled it first. It re-checks PreToolTime against the live
// session rather than trusting the timer fired at all: Timer.Stop() does
// not guarantee a racing callback is suppressed, so a cancelled timeout
// that still fires must be a no-op against a session that already moved on.
func (m *Manager) firePermissionTimeout(s *Session) {
	s.mu.Lock()
	if s.PreToolTime.IsZero() {
		s.mu.Unlock()
		return
	}
	s.Status = StatusWaitingInput
	s.NeedsInputSince = time.Now()
	sessionID := s.SessionID
	currentTool := s.CurrentTool
	branch := s.GitBranch
	s.mu.Unlock()

	m.BroadcastToSession(sessionID, OutMessage{
		Type: "status", Status: string(StatusWaitingInput), IsRestored: false,
		CurrentTool: currentTool, HookEvent: "permission_timeout", GitBranch: branch,
	})
}

// fireLongRunningTimeout is armed by the state machine's pre_tool case and
// fires 5min later unless a post_tool, UserPromptSubmit or Stop event
// cancelled it first.
func (m *Manager) fireLongRunningTimeout(s *Session) {
	s.mu.Lock()
	if s.PreToolTime.IsZero() {
		s.mu.Unlock()
		return
	}
	s.LongRunningTool = true
	sessionID := s.SessionID
	status := s.Status
	currentTool := s.CurrentTool
	branch := s.GitBranch
	s.mu.Unlock()

	m.BroadcastToSession(sessionID, OutMessage{
		Type: "status", Status: string(status), IsRestored: false,
		CurrentTool: currentTool, HookEvent: "long_running_timeout", GitBranch: branch,
		LongRunningTool: true,
	})
}

func (m *Manager) findHookSession(p HookPayload) *Session {
	if p.OpenUISessionID != "" {
		if s, ok := m.GetSession(p.OpenUISessionID); ok {
			return s
		}
	}
	if p.ClaudeSessionID == "" {
		return nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, s := range m.sessions {
		s.mu.Lock()
		match := s.ClaudeSessionID == p.ClaudeSessionID
		s.mu.Unlock()
		if match {
			return s
		}
	}
	return nil
}
