// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package session implements the Session Lifecycle Manager: the
// session map, PTY spawn/broadcast/kill, and every "change this
// session's shape" operation (restart, fork, archive, delete,
// restore-on-boot).
package session

import (
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/openui/orchestrator/internal/persistence"
	"github.com/openui/orchestrator/internal/pluginstatus"
)

// Status mirrors pluginstatus.Status so callers outside the state
// machine don't need to import it just to read a session's status.
type Status = pluginstatus.Status

const (
	StatusIdle         = pluginstatus.StatusIdle
	StatusRunning      = pluginstatus.StatusRunning
	StatusWaitingInput = pluginstatus.StatusWaitingInput
	StatusToolCalling  = pluginstatus.StatusToolCalling
	StatusDisconnected = pluginstatus.StatusDisconnected
	StatusError        = pluginstatus.StatusError
	StatusSettingUp    = pluginstatus.StatusSettingUp
)

// OutMessage is a server-to-client broadcast, JSON-encoded once per
// send and fanned out to every live subscriber.
type OutMessage struct {
	Type     string      `json:"type"`
	Data     string      `json:"data,omitempty"`
	Status   string      `json:"status,omitempty"`
	CurrentTool string   `json:"currentTool,omitempty"`
	HookEvent   string   `json:"hookEvent,omitempty"`
	GitBranch   string   `json:"gitBranch,omitempty"`
	LongRunningTool bool `json:"longRunningTool,omitempty"`
	IsRestored      bool `json:"isRestored,omitempty"`
	Progress        int  `json:"progress,omitempty"`
	Phase           string `json:"phase,omitempty"`
	Error           string `json:"error,omitempty"`
	Cols            int  `json:"cols,omitempty"`
	Rows            int  `json:"rows,omitempty"`
}

// Subscriber receives a session's fanned-out messages. The lifecycle
// manager only ever sends on this channel from BroadcastToSession, which
// copies the subscriber list under the manager lock and then sends
// without blocking after releasing it. The manager never closes the
// channel, so Unsubscribe is safe to call concurrently with a send.
type Subscriber chan OutMessage

// Session is the central entity. All field access outside of the
// Session's own methods must go through Manager, which guards each
// session with its own mutex (never a global one, per the design
// notes: two concurrent creates for different sessions must not
// serialize against each other).
type Session struct {
	mu sync.Mutex

	SessionID string
	NodeID    string
	AgentID   string
	AgentName string
	CanvasID  string

	ptmx  *os.File
	cmd   *exec.Cmd
	cancel func()

	CreatedAt   time.Time
	Status      Status
	IsRestored  bool
	AutoResumed bool
	Archived    bool

	Command        string
	Cwd            string
	OriginalCwd    string
	WorktreePath   string
	SparseCheckout bool

	GitBranch       string
	lastBranchCheck time.Time

	ClaudeSessionID string // learned once, never overwritten (invariant 5)

	CustomName  string
	CustomColor string
	Icon        string
	Notes       string
	Position    persistence.Position

	TicketID    string
	TicketTitle string
	TicketURL   string

	outputBuffer []string // bounded to persistence.MaxBufferChunks

	LastOutputTime   time.Time
	LastInputTime    time.Time
	recentOutputSize int

	CurrentTool          string
	ToolInput            interface{}
	PreToolTime          time.Time
	NeedsInputSince      time.Time
	LongRunningTool      bool
	PluginReportedStatus bool
	LastPluginStatusTime time.Time
	LastHookEvent        string

	timers *pluginstatus.RealTimers

	subscribers map[Subscriber]struct{}

	// processGen increments on every PTY (re)spawn; goroutines reading
	// from a prior PTY check this to avoid racing a newer process's
	// output into a stale subscriber fan-out.
	processGen int

	setupPending bool
	setupError   string
}

// HasPTY reports whether the session currently owns a live PTY.
func (s *Session) HasPTY() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ptmx != nil
}

// Snapshot is an immutable read of a session's externally visible
// fields, safe to hold without the session lock.
type Snapshot struct {
	SessionID       string
	NodeID          string
	AgentID         string
	AgentName       string
	CanvasID        string
	CreatedAt       time.Time
	Status          Status
	IsRestored      bool
	AutoResumed     bool
	Archived        bool
	Command         string
	Cwd             string
	OriginalCwd     string
	WorktreePath    string
	SparseCheckout  bool
	GitBranch       string
	ClaudeSessionID string
	CustomName      string
	CustomColor     string
	Icon            string
	Notes           string
	Position        persistence.Position
	TicketID        string
	TicketTitle     string
	TicketURL       string
	HasPTY          bool
	CurrentTool     string
	ToolInput       interface{}
	LongRunningTool bool
}

// Snapshot takes the session lock and returns a copy of every
// externally visible field.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		SessionID: s.SessionID, NodeID: s.NodeID, AgentID: s.AgentID, AgentName: s.AgentName,
		CanvasID: s.CanvasID, CreatedAt: s.CreatedAt, Status: s.Status, IsRestored: s.IsRestored,
		AutoResumed: s.AutoResumed, Archived: s.Archived, Command: s.Command, Cwd: s.Cwd,
		OriginalCwd: s.OriginalCwd, WorktreePath: s.WorktreePath, SparseCheckout: s.SparseCheckout,
		GitBranch: s.GitBranch, ClaudeSessionID: s.ClaudeSessionID, CustomName: s.CustomName,
		CustomColor: s.CustomColor, Icon: s.Icon, Notes: s.Notes, Position: s.Position,
		TicketID: s.TicketID, TicketTitle: s.TicketTitle, TicketURL: s.TicketURL,
		HasPTY: s.ptmx != nil, CurrentTool: s.CurrentTool, ToolInput: s.ToolInput,
		LongRunningTool: s.LongRunningTool,
	}
}

// ToPersisted projects the session to its on-disk shape.
func (s *Session) ToPersisted() persistence.PersistedNode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return persistence.PersistedNode{
		SessionID: s.SessionID, NodeID: s.NodeID, AgentID: s.AgentID, AgentName: s.AgentName,
		CanvasID: s.CanvasID, Command: s.Command, Cwd: s.Cwd, OriginalCwd: s.OriginalCwd,
		WorktreePath: s.WorktreePath, SparseCheckout: s.SparseCheckout, GitBranch: s.GitBranch,
		ClaudeSessionID: s.ClaudeSessionID, CustomName: s.CustomName, CustomColor: s.CustomColor,
		Icon: s.Icon, Notes: s.Notes, Position: s.Position, TicketID: s.TicketID,
		TicketTitle: s.TicketTitle, TicketURL: s.TicketURL, Status: string(s.Status),
		IsRestored: s.IsRestored, AutoResumed: s.AutoResumed, Archived: s.Archived,
		CreatedAt: s.CreatedAt,
	}
}
