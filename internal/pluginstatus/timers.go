// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package pluginstatus

import (
	"sync"
	"time"
)

// RealTimers backs Timers with time.AfterFunc, matching the design
// notes' guidance to model timers as opaque cancellation handles owned
// by the state machine rather than fields stored on the session
// record itself.
type RealTimers struct {
	mu                 sync.Mutex
	permissionTimer    *time.Timer
	longRunningTimer   *time.Timer
}

// NewRealTimers returns a ready-to-use Timers.
func NewRealTimers() *RealTimers {
	return &RealTimers{}
}

func (t *RealTimers) CancelPermissionTimeout() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.permissionTimer != nil {
		t.permissionTimer.Stop()
		t.permissionTimer = nil
	}
}

func (t *RealTimers) SchedulePermissionTimeout(d time.Duration, fire func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.permissionTimer != nil {
		t.permissionTimer.Stop()
	}
	t.permissionTimer = time.AfterFunc(d, fire)
}

func (t *RealTimers) CancelLongRunningTimeout() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.longRunningTimer != nil {
		t.longRunningTimer.Stop()
		t.longRunningTimer = nil
	}
}

func (t *RealTimers) ScheduleLongRunningTimeout(d time.Duration, fire func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.longRunningTimer != nil {
		t.longRunningTimer.Stop()
	}
	t.longRunningTimer = time.AfterFunc(d, fire)
}
