// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"log"
	"os"
	"strings"
	"sync"

	"github.com/openui/orchestrator/internal/agent"
	"github.com/openui/orchestrator/internal/persistence"
	"github.com/openui/orchestrator/internal/pluginstatus"
	"golang.org/x/sync/errgroup"
)

// RestoreSessions loads every non-archived persisted node and
// materializes it as a disconnected, PTY-less session. Validation of
// each node's worktree path runs concurrently, bounded by an errgroup,
// since it is pure I/O (os.Stat) with no shared mutable state across
// nodes.
func (m *Manager) RestoreSessions(ctx context.Context) error {
	st := m.store.LoadState()
	m.canvases = st.Canvases

	var mu sync.Mutex
	restored := make([]*Session, 0, len(st.Nodes))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for _, n := range st.Nodes {
		n := n
		if n.Archived {
			continue
		}
		g.Go(func() error {
			s := m.materialize(gctx, n)
			mu.Lock()
			restored = append(restored, s)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	m.mu.Lock()
	for _, s := range restored {
		m.sessions[s.SessionID] = s
	}
	m.mu.Unlock()

	return nil
}

// materialize builds a disconnected Session from a persisted node,
// falling back to originalCwd/cwd if the recorded worktree path no
// longer exists on disk, and migrating the legacy "llm agent claude"
// command prefix to "isaac claude" in place when isaac is present.
func (m *Manager) materialize(ctx context.Context, n persistence.PersistedNode) *Session {
	cwd := n.Cwd
	if n.WorktreePath != "" {
		if _, err := os.Stat(n.WorktreePath); err != nil {
			if n.OriginalCwd != "" {
				cwd = n.OriginalCwd
			}
			log.Printf("session %s: worktree path %s missing, falling back to %s", n.SessionID, n.WorktreePath, cwd)
		}
	}

	command := n.Command
	if m.hasIsaac && strings.Contains(command, "llm agent claude") {
		command = strings.ReplaceAll(command, "llm agent claude", "isaac claude")
		log.Printf("session %s: migrated legacy command prefix", n.SessionID)
	}

	return &Session{
		SessionID: n.SessionID, NodeID: n.NodeID, AgentID: n.AgentID, AgentName: n.AgentName,
		CanvasID: n.CanvasID, CreatedAt: n.CreatedAt, Command: command, Cwd: cwd,
		OriginalCwd: n.OriginalCwd, WorktreePath: n.WorktreePath, SparseCheckout: n.SparseCheckout,
		GitBranch: n.GitBranch, ClaudeSessionID: n.ClaudeSessionID, CustomName: n.CustomName,
		CustomColor: n.CustomColor, Icon: n.Icon, Notes: n.Notes, Position: n.Position,
		TicketID: n.TicketID, TicketTitle: n.TicketTitle, TicketURL: n.TicketURL,
		Status: StatusDisconnected, IsRestored: true,
		outputBuffer: splitBuffer(m.store.LoadBuffer(n.SessionID)),
		subscribers:  map[Subscriber]struct{}{},
		timers:       pluginstatus.NewRealTimers(),
	}
}

func splitBuffer(s string) []string {
	if s == "" {
		return nil
	}
	return []string{s}
}

// materializeAndStart is the shared tail of Unarchive: materialize
// the node, publish it to the live map, then start it the same way
// AutoResumeSessions does for one session.
func (m *Manager) materializeAndStart(ctx context.Context, n persistence.PersistedNode, viaQueue bool) (*Session, error) {
	n.Archived = false
	s := m.materialize(ctx, n)

	m.mu.Lock()
	m.sessions[s.SessionID] = s
	m.mu.Unlock()
	m.persist()

	m.startOne(ctx, s)
	return s, nil
}

// AutoResumeSessions enqueues every restored Claude session into the
// start queue (so OAuth contention is serialized) and starts
// non-Claude sessions immediately.
func (m *Manager) AutoResumeSessions(ctx context.Context) {
	m.mu.RLock()
	toStart := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		if s.IsRestored {
			toStart = append(toStart, s)
		}
	}
	m.mu.RUnlock()

	for _, s := range toStart {
		m.startOne(ctx, s)
	}
}

func (m *Manager) startOne(ctx context.Context, s *Session) {
	s.mu.Lock()
	cmd := agent.BuildRestartCommand(s.Command, s.AgentID, s.ClaudeSessionID, m.hasIsaac)
	s.Command = cmd
	agentID := s.AgentID
	s.AutoResumed = true
	s.mu.Unlock()
	rewritten := agent.InjectPluginDir(cmd, agentID, m.pluginDir)

	if agentID != agent.ClaudeAgentID || m.queue == nil {
		m.spawnAndPrime(s, rewritten)
		return
	}

	m.queue.Enqueue(s.SessionID, func(ctx context.Context) error {
		m.spawnAndPrime(s, rewritten)
		return nil
	}, func() []string {
		s.mu.Lock()
		defer s.mu.Unlock()
		return append([]string{}, s.outputBuffer...)
	})
}
