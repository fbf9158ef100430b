// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package pluginstatus converts a stream of plugin hook events
// (pre_tool/post_tool/permission_request/UserPromptSubmit/Stop, ...)
// into a coherent per-session status, protecting against races
// between parallel subagents and late-arriving events.
package pluginstatus

import "time"

// Status is the session's observable state.
type Status string

const (
	StatusIdle          Status = "idle"
	StatusRunning       Status = "running"
	StatusWaitingInput  Status = "waiting_input"
	StatusToolCalling   Status = "tool_calling"
	StatusDisconnected  Status = "disconnected"
	StatusError         Status = "error"
	StatusSettingUp     Status = "setting_up"
)

// HookEvent is the plugin's incoming webhook payload.
type HookEvent struct {
	Status          string
	OpenUISessionID string
	ClaudeSessionID string
	Cwd             string
	HookEvent       string
	ToolName        string
	ToolInput       interface{}
	StopReason      string
}

// SessionView is the subset of session state the state machine reads
// and writes. The session lifecycle manager copies these fields out of
// its Session before Apply and back afterwards, so pluginstatus never
// imports session
// (avoiding a cycle) and can be unit tested against a plain struct.
type SessionView struct {
	Status              Status
	CurrentTool         string
	ToolInput           interface{}
	PreToolTime         time.Time
	NeedsInputSince      time.Time
	LastInputTime        time.Time
	LongRunningTool      bool
	PluginReportedStatus bool
	LastPluginStatusTime time.Time
	LastHookEvent        string
}

// Timers abstracts the scheduled-callback handles the state machine
// owns per session; a real implementation backs these with
// time.AfterFunc, a test can use a fake clock.
type Timers interface {
	CancelPermissionTimeout()
	SchedulePermissionTimeout(d time.Duration, fire func())
	CancelLongRunningTimeout()
	ScheduleLongRunningTimeout(d time.Duration, fire func())
}

// Callbacks are invoked from a timer goroutine, after Apply has
// already returned and its SessionView has gone out of scope. They
// are owned by the caller (the session lifecycle manager), which
// knows how to reach back into the live session under its own lock
// and broadcast the result — pluginstatus has no access to either.
type Callbacks struct {
	// OnPermissionTimeout fires PermissionTimeout after a blocking
	// pre_tool event, unless cancelled first by permission_request,
	// post_tool, an AskUserQuestion pre_tool, UserPromptSubmit or Stop.
	OnPermissionTimeout func()
	// OnLongRunningTimeout fires LongRunningTimeout after a pre_tool
	// event, unless cancelled first by post_tool, UserPromptSubmit or
	// Stop.
	OnLongRunningTimeout func()
}

const (
	PermissionTimeout  = 2500 * time.Millisecond
	LongRunningTimeout = 5 * time.Minute
)

// nonBlockingPreToolTools are exempt from the permission timeout: they
// are expected to sit in pre_tool for a while without indicating a
// stuck permission prompt.
var nonBlockingPreToolTools = map[string]bool{
	"Bash":       true,
	"Task":       true,
	"TaskOutput": true,
}

// Apply derives the effective status for one incoming hook event
// against the current view, applies the idle-lock and waiting-input
// protection rules, and mutates view in place. cb is armed onto
// timers for any newly-scheduled permission/long-running timeout; its
// callbacks must not reference view, since view is a per-call snapshot
// that the caller copies back into the live session and discards
// before a 2.5s/5min timer has any chance to fire.
func Apply(view *SessionView, ev HookEvent, timers Timers, cb Callbacks, now time.Time) {
	effective := deriveEffective(view, ev, timers, cb, now)
	effective = applyProtections(view, ev, effective, now)

	view.Status = effective
	view.PluginReportedStatus = true
	view.LastPluginStatusTime = now
	view.LastHookEvent = ev.HookEvent
}

func deriveEffective(view *SessionView, ev HookEvent, timers Timers, cb Callbacks, now time.Time) Status {
	switch {
	case ev.Status == "permission_request":
		view.NeedsInputSince = now
		view.PreToolTime = time.Time{}
		timers.CancelPermissionTimeout()
		return StatusWaitingInput

	case ev.Status == "pre_tool" && ev.ToolName == "AskUserQuestion":
		view.NeedsInputSince = now
		view.CurrentTool = ev.ToolName
		view.ToolInput = ev.ToolInput
		timers.CancelPermissionTimeout()
		return StatusWaitingInput

	case ev.Status == "pre_tool":
		view.CurrentTool = ev.ToolName
		view.PreToolTime = now
		if !nonBlockingPreToolTools[ev.ToolName] && cb.OnPermissionTimeout != nil {
			timers.SchedulePermissionTimeout(PermissionTimeout, cb.OnPermissionTimeout)
		}
		if cb.OnLongRunningTimeout != nil {
			timers.ScheduleLongRunningTimeout(LongRunningTimeout, cb.OnLongRunningTimeout)
		}
		return StatusRunning

	case ev.Status == "post_tool":
		view.ToolInput = nil
		view.PreToolTime = time.Time{}
		view.LongRunningTool = false
		timers.CancelPermissionTimeout()
		timers.CancelLongRunningTimeout()
		if ev.ToolName == "AskUserQuestion" {
			view.NeedsInputSince = time.Time{}
		}
		if view.Status == StatusIdle {
			return StatusIdle
		}
		return StatusRunning

	case ev.HookEvent == "UserPromptSubmit" || ev.HookEvent == "Stop":
		view.NeedsInputSince = time.Time{}
		view.PreToolTime = time.Time{}
		timers.CancelPermissionTimeout()
		timers.CancelLongRunningTimeout()
		if ev.Status != "tool_calling" && ev.Status != "running" {
			view.CurrentTool = ""
		}
		return Status(ev.Status)

	default:
		return Status(ev.Status)
	}
}

// applyProtections implements the idle-lock and waiting-input-lock
// rules, each a last-word override on top of the table-derived status.
func applyProtections(view *SessionView, ev HookEvent, effective Status, now time.Time) Status {
	// Idle lock: a late SubagentStop (or any non-UserPromptSubmit
	// "running") must not unstick an idle session.
	if view.Status == StatusIdle && effective == StatusRunning && ev.HookEvent != "UserPromptSubmit" {
		return StatusIdle
	}

	// Waiting-input lock: once needsInputSince is set, a "running"
	// event from a parallel subagent does not downgrade visible
	// status, unless the user has since responded via terminal input.
	if !view.NeedsInputSince.IsZero() && effective == StatusRunning {
		if view.LastInputTime.After(view.NeedsInputSince) {
			view.NeedsInputSince = time.Time{}
		} else {
			return StatusWaitingInput
		}
	}

	return effective
}
