// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/openui/orchestrator/internal/agent"
	"github.com/openui/orchestrator/internal/gitutil"
	"github.com/openui/orchestrator/internal/persistence"
	"github.com/openui/orchestrator/internal/pluginstatus"
	"github.com/openui/orchestrator/internal/startqueue"
	"github.com/openui/orchestrator/internal/worktree"
)

// WorktreeRegistry is the subset of *worktree.Registry the lifecycle
// manager needs, kept as an interface for test doubles.
type WorktreeRegistry interface {
	Claim(gitRoot, sessionID string) (string, bool)
	AssignBranch(ctx context.Context, worktreePath, branchName, baseBranch, gitRoot string) worktree.AssignResult
	CreateFresh(ctx context.Context, params worktree.CreateFreshParams) (string, error)
	CreateSparse(ctx context.Context, params worktree.CreateSparseParams) (string, error)
	Release(path string)
}

// Manager owns the live session map plus the process-wide store,
// worktree registry, and start queue it orchestrates across.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	store     *persistence.Store
	worktrees WorktreeRegistry
	queue     *startqueue.Queue

	catalog     []agent.Agent
	pluginDir   string
	hasIsaac    bool
	ticketTpl   string

	canvases []persistence.Canvas

	onBroadcast func(sessionID string, msg OutMessage)
}

// Options configures a new Manager.
type Options struct {
	Store       *persistence.Store
	Worktrees   WorktreeRegistry
	Queue       *startqueue.Queue
	Catalog     []agent.Agent
	PluginDir   string
	HasIsaac    bool
	TicketTemplate string
}

// NewManager wires a Manager from its dependencies. It does not load
// persisted state; call RestoreSessions for that.
func NewManager(opts Options) *Manager {
	return &Manager{
		sessions:  map[string]*Session{},
		store:     opts.Store,
		worktrees: opts.Worktrees,
		queue:     opts.Queue,
		catalog:   opts.Catalog,
		pluginDir: opts.PluginDir,
		hasIsaac:  opts.HasIsaac,
		ticketTpl: opts.TicketTemplate,
		canvases:  []persistence.Canvas{{ID: persistence.DefaultCanvasID, Name: "Default", IsDefault: true, CreatedAt: time.Now()}},
	}
}

// OnBroadcast registers the callback that broadcast hands each message
// to; the app wires it to BroadcastToSession, which fans the message
// out to the session's subscriber channels. With no callback set,
// broadcast drops the message.
func (m *Manager) OnBroadcast(fn func(sessionID string, msg OutMessage)) {
	m.onBroadcast = fn
}

func (m *Manager) broadcast(sessionID string, msg OutMessage) {
	if m.onBroadcast != nil {
		m.onBroadcast(sessionID, msg)
	}
}

// GetSession returns the live session, or (nil, false) if it does not
// exist or has been archived/deleted.
func (m *Manager) GetSession(id string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	return s, ok
}

// ListSessions returns a snapshot of every live session.
func (m *Manager) ListSessions() []Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Snapshot, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s.Snapshot())
	}
	return out
}

// ListArchived returns archived nodes directly from the persistence
// store (they have no live Session representation, per invariant 1).
func (m *Manager) ListArchived() []persistence.PersistedNode {
	st := m.store.LoadState()
	out := make([]persistence.PersistedNode, 0)
	for _, n := range st.Nodes {
		if n.Archived {
			out = append(out, n)
		}
	}
	return out
}

// persist writes the current live map to disk, plus any extra nodes
// (e.g. one just archived and already removed from the live map) that
// must also be present in this snapshot.
func (m *Manager) persist(extra ...persistence.PersistedNode) {
	nodes := make([]persistence.PersistedNode, 0, len(extra))
	nodes = append(nodes, extra...)
	m.mu.RLock()
	for _, s := range m.sessions {
		nodes = append(nodes, s.ToPersisted())
	}
	canvases := m.canvases
	m.mu.RUnlock()

	if err := m.store.SaveState(nodes, canvases); err != nil {
		log.Printf("session: persist failed: %v", err)
	}
}

// PositionUpdate is one entry of the /state/positions request body.
type PositionUpdate struct {
	X        float64
	Y        float64
	CanvasID string
}

// SavePositions applies a batch of canvas-position updates. Live
// sessions are updated in memory (so the next persist reflects them);
// archived nodes are patched directly on disk.
func (m *Manager) SavePositions(positions map[string]PositionUpdate) error {
	remaining := make(map[string]PositionUpdate, len(positions))
	for k, v := range positions {
		remaining[k] = v
	}

	m.mu.RLock()
	live := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		live = append(live, s)
	}
	m.mu.RUnlock()

	touched := false
	for _, s := range live {
		s.mu.Lock()
		upd, ok := remaining[s.NodeID]
		if ok {
			s.Position = persistence.Position{X: upd.X, Y: upd.Y}
			if upd.CanvasID != "" {
				s.CanvasID = upd.CanvasID
			}
			touched = true
		}
		s.mu.Unlock()
		if ok {
			delete(remaining, s.NodeID)
		}
	}
	if touched {
		m.persist()
	}

	if len(remaining) == 0 {
		return nil
	}
	diskPositions := make(map[string]struct {
		X        float64
		Y        float64
		CanvasID string
	}, len(remaining))
	for k, v := range remaining {
		diskPositions[k] = struct {
			X        float64
			Y        float64
			CanvasID string
		}{X: v.X, Y: v.Y, CanvasID: v.CanvasID}
	}
	return m.store.SavePositions(diskPositions)
}

// CreateParams is the input to CreateSession, mirroring the HTTP
// POST /sessions body.
type CreateParams struct {
	AgentID         string
	AgentName       string
	Command         string
	Cwd             string
	NodeID          string
	CanvasID        string
	CustomName      string
	CustomColor     string
	TicketID        string
	TicketTitle     string
	TicketURL       string
	BranchName      string
	BaseBranch      string
	CreateWorktree  bool
	SparseCheckout  bool
	GitRoot         string // required when CreateWorktree is set
	SparseRelDir    string
}

// CreateSession implements the branching decision tree of the PTY
// lifecycle (sparse fast path, pool claim, background fresh create),
// spawns the PTY once a working directory is settled, and persists the
// new node.
func (m *Manager) CreateSession(ctx context.Context, p CreateParams) (*Session, error) {
	sessionID := uuid.New().String()
	nodeID := p.NodeID
	if nodeID == "" {
		nodeID = sessionID
	}
	canvasID := p.CanvasID
	if canvasID == "" {
		canvasID = persistence.DefaultCanvasID
	}

	s := &Session{
		SessionID: sessionID, NodeID: nodeID, AgentID: p.AgentID, AgentName: p.AgentName,
		CanvasID: canvasID, CreatedAt: time.Now(), Command: p.Command, Cwd: p.Cwd,
		CustomName: p.CustomName, CustomColor: p.CustomColor,
		TicketID: p.TicketID, TicketTitle: p.TicketTitle, TicketURL: p.TicketURL,
		SparseCheckout: p.SparseCheckout,
		subscribers:    map[Subscriber]struct{}{},
		timers:         pluginstatus.NewRealTimers(),
		Status:         StatusIdle,
	}

	cwd, setupPending, setupErr := m.resolveWorkdir(ctx, s, p)
	s.Cwd = cwd
	if setupErr != nil {
		return nil, setupErr
	}

	if mainWt, err := gitutil.GetMainWorktree(ctx, cwd); err == nil && mainWt != cwd {
		s.OriginalCwd = mainWt
	}
	if branch, err := gitutil.CurrentBranch(ctx, cwd); err == nil {
		s.GitBranch = branch
		s.lastBranchCheck = time.Now()
	}

	if setupPending {
		s.setupPending = true
		s.Status = StatusSettingUp
	}

	m.mu.Lock()
	m.sessions[sessionID] = s
	m.mu.Unlock()
	m.persist()

	rewritten := agent.InjectPluginDir(s.Command, s.AgentID, m.pluginDir)

	if setupPending {
		go m.finishBackgroundSetup(s, p, rewritten)
	} else {
		m.spawnAndPrime(s, rewritten)
	}

	return s, nil
}

// resolveWorkdir implements step 1 of createSession's branching tree.
// It returns the directory the PTY should start in, whether setup
// (background worktree creation) is still pending, and a hard error
// for cases the caller cannot recover from.
func (m *Manager) resolveWorkdir(ctx context.Context, s *Session, p CreateParams) (cwd string, pending bool, err error) {
	if p.SparseCheckout && p.BranchName != "" && m.worktrees != nil {
		path, serr := m.worktrees.CreateSparse(ctx, worktree.CreateSparseParams{
			GitRoot: p.GitRoot, SessionID: s.SessionID, Branch: p.BranchName,
			BaseBranch: p.BaseBranch, RelDir: p.SparseRelDir,
		})
		if serr == nil {
			s.WorktreePath = path
			return path, false, nil
		}
		log.Printf("session: sparse checkout failed, falling back to full: %v", serr)
	}

	if !p.CreateWorktree {
		return p.Cwd, false, nil
	}
	if m.worktrees == nil {
		return "", false, fmt.Errorf("session: worktree creation requested but no registry configured")
	}

	if claimed, ok := m.worktrees.Claim(p.GitRoot, s.SessionID); ok {
		res := m.worktrees.AssignBranch(ctx, claimed, p.BranchName, p.BaseBranch, p.GitRoot)
		if res.Success {
			s.WorktreePath = claimed
			s.GitBranch = res.BranchName
			return claimed, false, nil
		}
		log.Printf("session: claimed worktree branch assignment failed, falling back to fresh: %s", res.Error)
		m.worktrees.Release(claimed)
	}

	return p.Cwd, true, nil
}

func (m *Manager) finishBackgroundSetup(s *Session, p CreateParams, rewritten string) {
	ctx := context.Background()
	path, err := m.worktrees.CreateFresh(ctx, worktree.CreateFreshParams{
		GitRoot: p.GitRoot, SessionID: s.SessionID, BaseBranch: p.BaseBranch,
		OnProgress: func(progress int, phase string) {
			m.broadcast(s.SessionID, OutMessage{Type: "setup_progress", Progress: progress, Phase: phase})
		},
	})

	s.mu.Lock()
	s.setupPending = false
	if err != nil {
		s.Status = StatusError
		s.setupError = err.Error()
		s.mu.Unlock()
		m.broadcast(s.SessionID, OutMessage{Type: "setup_complete", Error: err.Error()})
		m.persist()
		return
	}
	s.WorktreePath = path
	s.Cwd = path
	s.Status = StatusIdle
	s.mu.Unlock()

	if res := m.worktrees.AssignBranch(ctx, path, p.BranchName, p.BaseBranch, p.GitRoot); res.Success {
		s.mu.Lock()
		s.GitBranch = res.BranchName
		s.mu.Unlock()
	}

	m.broadcast(s.SessionID, OutMessage{Type: "setup_complete"})
	m.spawnAndPrime(s, rewritten)
	m.persist()
}
