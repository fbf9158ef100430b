// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package pluginstatus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// fakeTimers records scheduled callbacks without ever firing them,
// letting tests assert purely on Apply's synchronous status decision.
type fakeTimers struct {
	permissionCancelled  bool
	longRunningCancelled bool
}

func (f *fakeTimers) CancelPermissionTimeout()                              { f.permissionCancelled = true }
func (f *fakeTimers) SchedulePermissionTimeout(d time.Duration, fire func())  {}
func (f *fakeTimers) CancelLongRunningTimeout()                             { f.longRunningCancelled = true }
func (f *fakeTimers) ScheduleLongRunningTimeout(d time.Duration, fire func()) {}

// scriptedTimers captures the armed fire funcs instead of discarding them,
// letting a test invoke a timeout synchronously to prove Apply actually
// wires the caller's callbacks onto the timer rather than dropping them.
type scriptedTimers struct {
	armedPermission  func()
	armedLongRunning func()
}

func (s *scriptedTimers) CancelPermissionTimeout()  { s.armedPermission = nil }
func (s *scriptedTimers) SchedulePermissionTimeout(d time.Duration, fire func()) {
	s.armedPermission = fire
}
func (s *scriptedTimers) CancelLongRunningTimeout() { s.armedLongRunning = nil }
func (s *scriptedTimers) ScheduleLongRunningTimeout(d time.Duration, fire func()) {
	s.armedLongRunning = fire
}

func TestApply_WaitingInputLock(t *testing.T) {
	now := time.Now()
	view := &SessionView{
		Status:          StatusRunning,
		NeedsInputSince: now.Add(-50 * time.Millisecond),
		LastInputTime:   now.Add(-100 * time.Millisecond),
	}
	Apply(view, HookEvent{Status: "pre_tool", ToolName: "Read"}, &fakeTimers{}, Callbacks{}, now)
	assert.Equal(t, StatusWaitingInput, view.Status)
}

func TestApply_WaitingInputLock_ClearedByFreshInput(t *testing.T) {
	now := time.Now()
	view := &SessionView{
		Status:          StatusRunning,
		NeedsInputSince: now.Add(-100 * time.Millisecond),
		LastInputTime:   now.Add(-50 * time.Millisecond),
	}
	Apply(view, HookEvent{Status: "pre_tool", ToolName: "Read"}, &fakeTimers{}, Callbacks{}, now)
	assert.Equal(t, StatusRunning, view.Status)
	assert.True(t, view.NeedsInputSince.IsZero())
}

func TestApply_IdleLock(t *testing.T) {
	now := time.Now()
	view := &SessionView{Status: StatusIdle}
	Apply(view, HookEvent{Status: "running", HookEvent: "SubagentStop"}, &fakeTimers{}, Callbacks{}, now)
	assert.Equal(t, StatusIdle, view.Status)

	Apply(view, HookEvent{Status: "running", HookEvent: "UserPromptSubmit"}, &fakeTimers{}, Callbacks{}, now)
	assert.Equal(t, StatusRunning, view.Status)
}

func TestApply_PermissionRequest(t *testing.T) {
	now := time.Now()
	view := &SessionView{Status: StatusRunning}
	timers := &fakeTimers{}
	Apply(view, HookEvent{Status: "permission_request"}, timers, Callbacks{}, now)
	assert.Equal(t, StatusWaitingInput, view.Status)
	assert.True(t, timers.permissionCancelled)
	assert.Equal(t, now, view.NeedsInputSince)
}

func TestApply_PostToolClearsToolState(t *testing.T) {
	now := time.Now()
	view := &SessionView{Status: StatusRunning, CurrentTool: "Read", ToolInput: "x"}
	Apply(view, HookEvent{Status: "post_tool", ToolName: "Read"}, &fakeTimers{}, Callbacks{}, now)
	assert.Equal(t, StatusRunning, view.Status)
	assert.Nil(t, view.ToolInput)
	assert.Equal(t, "Read", view.CurrentTool) // currentTool is retained
}

func TestApply_AskUserQuestionPreTool(t *testing.T) {
	now := time.Now()
	view := &SessionView{Status: StatusRunning}
	Apply(view, HookEvent{Status: "pre_tool", ToolName: "AskUserQuestion"}, &fakeTimers{}, Callbacks{}, now)
	assert.Equal(t, StatusWaitingInput, view.Status)
	assert.Equal(t, now, view.NeedsInputSince)
}

func TestApply_PreToolArmsPermissionAndLongRunningCallbacks(t *testing.T) {
	now := time.Now()
	view := &SessionView{Status: StatusRunning}
	timers := &scriptedTimers{}
	var permissionFired, longRunningFired bool
	cb := Callbacks{
		OnPermissionTimeout:  func() { permissionFired = true },
		OnLongRunningTimeout: func() { longRunningFired = true },
	}
	Apply(view, HookEvent{Status: "pre_tool", ToolName: "Read"}, timers, cb, now)

	assert.NotNil(t, timers.armedPermission)
	assert.NotNil(t, timers.armedLongRunning)

	timers.armedPermission()
	timers.armedLongRunning()
	assert.True(t, permissionFired)
	assert.True(t, longRunningFired)
}

func TestApply_PreToolSkipsPermissionCallbackForNonBlockingTool(t *testing.T) {
	now := time.Now()
	view := &SessionView{Status: StatusRunning}
	timers := &scriptedTimers{}
	cb := Callbacks{
		OnPermissionTimeout:  func() { t.Fatal("must not be armed for Bash") },
		OnLongRunningTimeout: func() {},
	}
	Apply(view, HookEvent{Status: "pre_tool", ToolName: "Bash"}, timers, cb, now)
	assert.Nil(t, timers.armedPermission)
	assert.NotNil(t, timers.armedLongRunning)
}
