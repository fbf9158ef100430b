// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/openui/orchestrator/internal/agent"
	"github.com/openui/orchestrator/internal/gitutil"
	"github.com/openui/orchestrator/internal/persistence"
)

// StartDecayLoop runs until ctx is cancelled, decaying every live
// session's recentOutputSize pressure metric every 500ms (PTY
// lifecycle step 6).
func (m *Manager) StartDecayLoop(ctx context.Context) {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.mu.RLock()
			sessions := make([]*Session, 0, len(m.sessions))
			for _, s := range m.sessions {
				sessions = append(sessions, s)
			}
			m.mu.RUnlock()
			for _, s := range sessions {
				decayOutputPressure(s)
			}
		}
	}
}

// Subscribe registers a new listener for a session's broadcasts.
func (m *Manager) Subscribe(sessionID string) (Subscriber, bool) {
	s, ok := m.GetSession(sessionID)
	if !ok {
		return nil, false
	}
	ch := make(Subscriber, 64)
	s.mu.Lock()
	s.subscribers[ch] = struct{}{}
	s.mu.Unlock()
	return ch, true
}

// Unsubscribe removes a listener. Safe to call more than once.
func (m *Manager) Unsubscribe(sessionID string, ch Subscriber) {
	s, ok := m.GetSession(sessionID)
	if !ok {
		return
	}
	s.mu.Lock()
	delete(s.subscribers, ch)
	s.mu.Unlock()
}

// BroadcastToSession fans msg out to every live subscriber. Sends are
// best-effort: a full subscriber channel (a slow or dead reader) is
// dropped rather than blocking the PTY reader.
func (m *Manager) BroadcastToSession(sessionID string, msg OutMessage) {
	s, ok := m.GetSession(sessionID)
	if !ok {
		return
	}
	s.mu.Lock()
	subs := make([]Subscriber, 0, len(s.subscribers))
	for ch := range s.subscribers {
		subs = append(subs, ch)
	}
	s.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- msg:
		default:
			m.Unsubscribe(sessionID, ch)
		}
	}
}

// Tail returns the last n bytes of the session's output buffer.
func (m *Manager) Tail(sessionID string, n int) (string, bool) {
	s, ok := m.GetSession(sessionID)
	if !ok {
		return "", false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	full := ""
	for _, c := range s.outputBuffer {
		full += c
	}
	if n == 0 {
		return "", true
	}
	if n < 0 || n >= len(full) {
		return full, true
	}
	return full[len(full)-n:], true
}

// SendInput writes client-originated input to a session's PTY.
func (m *Manager) SendInput(sessionID, data string) error {
	s, ok := m.GetSession(sessionID)
	if !ok {
		return ErrNotFound
	}
	s.mu.Lock()
	hasPTY := s.ptmx != nil
	s.mu.Unlock()
	if !hasPTY {
		return ErrNoPTY
	}
	m.WriteStdinRaw(sessionID, data)
	return nil
}

// Archive drops a session from the live map (killing its PTY) and
// marks the persisted node archived, releasing any claimed worktree.
func (m *Manager) Archive(sessionID string) error {
	m.mu.Lock()
	s, ok := m.sessions[sessionID]
	if !ok {
		m.mu.Unlock()
		return ErrNotFound
	}
	delete(m.sessions, sessionID)
	m.mu.Unlock()

	s.mu.Lock()
	killPTY(s)
	s.Archived = true
	s.Status = StatusDisconnected
	wtPath := s.WorktreePath
	chunks := append([]string{}, s.outputBuffer...)
	s.mu.Unlock()

	if wtPath != "" && m.worktrees != nil {
		m.worktrees.Release(wtPath)
	}
	if err := m.store.SaveBuffer(sessionID, chunks); err != nil {
		log.Printf("session %s: save buffer on archive failed: %v", sessionID, err)
	}

	// The session is no longer in the live map, so the normal persist()
	// pass would otherwise drop it (the store's archived-node
	// preservation only carries forward nodes that were already
	// marked archived in the *previous* snapshot). Pass it explicitly.
	archivedNode := s.ToPersisted()
	archivedNode.Archived = true
	m.persist(archivedNode)
	return nil
}

// Unarchive rehydrates a session from its persisted node and restarts it.
func (m *Manager) Unarchive(ctx context.Context, sessionID string) (*Session, error) {
	st := m.store.LoadState()
	var found *persistence.PersistedNode
	for i := range st.Nodes {
		if st.Nodes[i].SessionID == sessionID && st.Nodes[i].Archived {
			found = &st.Nodes[i]
			break
		}
	}
	if found == nil {
		return nil, ErrNotFound
	}
	return m.materializeAndStart(ctx, *found, true)
}

// Restart respawns a PTY for an existing session (live-but-
// disconnected, or archived), rebuilding the command with any stale
// --resume flag replaced.
func (m *Manager) Restart(ctx context.Context, sessionID string) (*Session, error) {
	if s, ok := m.GetSession(sessionID); ok {
		if s.HasPTY() {
			return nil, ErrConflict
		}
		s.mu.Lock()
		cmd := agent.BuildRestartCommand(s.Command, s.AgentID, s.ClaudeSessionID, m.hasIsaac)
		s.Command = cmd
		s.Status = StatusIdle
		s.mu.Unlock()
		rewritten := agent.InjectPluginDir(cmd, s.AgentID, m.pluginDir)
		m.spawnAndPrime(s, rewritten)
		m.persist()
		return s, nil
	}
	return m.Unarchive(ctx, sessionID)
}

// Fork spawns a new session that resumes the parent's agent-native
// conversation via --resume <parent.claudeSessionId> --fork-session.
// The parent must be a Claude session with a valid claudeSessionId.
func (m *Manager) Fork(ctx context.Context, parentID string) (*Session, error) {
	parent, ok := m.GetSession(parentID)
	if !ok {
		return nil, ErrNotFound
	}
	parent.mu.Lock()
	agentID := parent.AgentID
	claudeSID := parent.ClaudeSessionID
	baseCmd := parent.Command
	cwd := parent.Cwd
	parent.mu.Unlock()

	if agentID != agent.ClaudeAgentID {
		return nil, ErrInvalidArgument
	}
	if _, err := uuid.Parse(claudeSID); err != nil {
		return nil, ErrInvalidArgument
	}

	cmd := agent.BuildRestartCommand(baseCmd, agentID, claudeSID, m.hasIsaac) + " --fork-session"

	return m.CreateSession(ctx, CreateParams{
		AgentID: agentID, AgentName: parent.AgentName, Command: cmd, Cwd: cwd,
	})
}

// Delete kills the PTY (if any) and removes the session from both the
// live map and the persisted node list.
func (m *Manager) Delete(sessionID string) error {
	m.mu.Lock()
	s, ok := m.sessions[sessionID]
	if ok {
		delete(m.sessions, sessionID)
	}
	m.mu.Unlock()

	if !ok {
		// Might be archived-only; remove it from the persisted set directly.
		return m.deleteArchived(sessionID)
	}

	s.mu.Lock()
	killPTY(s)
	wtPath := s.WorktreePath
	s.mu.Unlock()
	if wtPath != "" && m.worktrees != nil {
		m.worktrees.Release(wtPath)
	}
	m.store.DeleteBuffer(sessionID)
	m.persist()
	return nil
}

func (m *Manager) deleteArchived(sessionID string) error {
	st := m.store.LoadState()
	found := false
	var removed persistence.PersistedNode
	nodes := st.Nodes[:0]
	for _, n := range st.Nodes {
		if n.SessionID == sessionID {
			found = true
			removed = n
			continue
		}
		nodes = append(nodes, n)
	}
	if !found {
		return ErrNotFound
	}
	m.store.DeleteBuffer(sessionID)
	// SaveState carries forward archived nodes of the previous snapshot
	// that are missing from the list it is given, so the node is first
	// written back as not archived and then left out.
	removed.Archived = false
	if err := m.store.SaveState(append(nodes, removed), st.Canvases); err != nil {
		return err
	}
	return m.store.SaveState(nodes, st.Canvases)
}

// Patch updates a session's free-form UI metadata.
func (m *Manager) Patch(sessionID string, customName, customColor, icon, notes *string) error {
	s, ok := m.GetSession(sessionID)
	if !ok {
		return ErrNotFound
	}
	s.mu.Lock()
	if customName != nil {
		s.CustomName = *customName
	}
	if customColor != nil {
		s.CustomColor = *customColor
	}
	if icon != nil {
		s.Icon = *icon
	}
	if notes != nil {
		s.Notes = *notes
	}
	s.mu.Unlock()
	m.persist()
	return nil
}

// RefreshGitBranch re-polls `git branch` for a session. It throttles
// itself: a call within 5s of the last successful poll returns without
// running git.
func (m *Manager) RefreshGitBranch(ctx context.Context, sessionID string) {
	s, ok := m.GetSession(sessionID)
	if !ok {
		return
	}
	s.mu.Lock()
	cwd := s.Cwd
	last := s.lastBranchCheck
	s.mu.Unlock()
	if time.Since(last) < 5*time.Second {
		return
	}
	branch, err := gitutil.CurrentBranch(ctx, cwd)
	if err != nil {
		return
	}
	s.mu.Lock()
	s.GitBranch = branch
	s.lastBranchCheck = time.Now()
	s.mu.Unlock()
}

var (
	ErrNotFound        = fmt.Errorf("session: not found")
	ErrConflict        = fmt.Errorf("session: pty already running")
	ErrNoPTY           = fmt.Errorf("session: no pty attached")
	ErrInvalidArgument = fmt.Errorf("session: invalid argument")
)
