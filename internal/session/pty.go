// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"fmt"
	"log"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/creack/pty"
	"github.com/openui/orchestrator/internal/persistence"
)

const (
	ptyRows = 30
	ptyCols = 120
)

// spawnAndPrime spawns the PTY for an idle session, wires its I/O
// loop, then writes the rewritten command and, for a ticket session,
// the rendered ticket message after staggered delays. For a sparse
// checkout it waits a further 1.7s and writes an empty string; no hint
// text is sent.
func (m *Manager) spawnAndPrime(s *Session, rewrittenCommand string) {
	if err := m.spawnPTY(s); err != nil {
		s.mu.Lock()
		s.Status = StatusError
		s.setupError = err.Error()
		s.mu.Unlock()
		log.Printf("session %s: pty spawn failed: %v", s.SessionID, err)
		return
	}

	go func() {
		time.Sleep(300 * time.Millisecond)
		m.WriteStdinRaw(s.SessionID, rewrittenCommand+"\r")

		if s.SparseCheckout {
			time.Sleep(1700 * time.Millisecond)
			m.WriteStdinRaw(s.SessionID, "")
		}

		if s.TicketURL != "" {
			delay := 2 * time.Second
			if s.SparseCheckout {
				delay = 4 * time.Second
			}
			time.Sleep(delay)
			msg := renderTicketTemplate(m.ticketTpl, s.TicketID, s.TicketTitle, s.TicketURL)
			m.WriteStdinRaw(s.SessionID, msg+"\r")
		}
	}()
}

func renderTicketTemplate(tpl, id, title, url string) string {
	r := strings.NewReplacer("{{id}}", id, "{{title}}", title, "{{url}}", url)
	return r.Replace(tpl)
}

// spawnPTY starts `bash` under a PTY for cwd, wiring env vars the spec
// requires and stripping the ones that would prevent a nested Claude
// run, then starts the per-PTY read loop.
func (m *Manager) spawnPTY(s *Session) error {
	s.mu.Lock()
	cwd := s.Cwd
	sparse := s.SparseCheckout
	s.processGen++
	gen := s.processGen
	s.mu.Unlock()

	cmd := exec.Command("bash")
	cmd.Dir = cwd
	cmd.Env = buildChildEnv(s.SessionID, sparse)

	ptmx, err := pty.Start(cmd)
	if err != nil {
		return fmt.Errorf("session: pty.Start: %w", err)
	}
	if err := pty.Setsize(ptmx, &pty.Winsize{Rows: ptyRows, Cols: ptyCols}); err != nil {
		log.Printf("session %s: initial Setsize failed: %v", s.SessionID, err)
	}

	s.mu.Lock()
	s.ptmx = ptmx
	s.cmd = cmd
	s.cancel = func() { _ = cmd.Process.Kill() }
	if s.Status == StatusSettingUp || s.Status == StatusDisconnected {
		s.Status = StatusIdle
	}
	s.mu.Unlock()

	go m.readLoop(s, ptmx, gen)
	return nil
}

func buildChildEnv(sessionID string, sparse bool) []string {
	env := os.Environ()
	filtered := env[:0]
	for _, e := range env {
		if strings.HasPrefix(e, "CLAUDECODE=") || strings.HasPrefix(e, "CLAUDE_CODE_ENTRYPOINT=") {
			continue
		}
		filtered = append(filtered, e)
	}
	filtered = append(filtered, "TERM=xterm-256color", "OPENUI_SESSION_ID="+sessionID)
	if sparse {
		filtered = append(filtered, "OPENUI_SPARSE_CHECKOUT=1")
	}
	return filtered
}

// readLoop fans PTY bytes out to subscribers and appends them to the
// bounded output buffer. gen pins this goroutine to the PTY generation
// it was spawned for; if the session has since been respawned, a
// lingering read from the old fd is dropped rather than corrupting the
// new generation's buffer.
func (m *Manager) readLoop(s *Session, ptmx *os.File, gen int) {
	buf := make([]byte, 4096)
	for {
		n, err := ptmx.Read(buf)
		if n > 0 {
			chunk := strings.ToValidUTF8(string(buf[:n]), "")
			s.mu.Lock()
			if s.processGen != gen {
				s.mu.Unlock()
				return
			}
			s.outputBuffer = persistence.TrimChunks(append(s.outputBuffer, chunk))
			s.LastOutputTime = time.Now()
			s.recentOutputSize += len(chunk)
			s.mu.Unlock()

			m.broadcast(s.SessionID, OutMessage{Type: "output", Data: chunk})
		}
		if err != nil {
			s.mu.Lock()
			stale := s.processGen != gen
			if !stale {
				s.ptmx = nil
			}
			s.mu.Unlock()
			if !stale {
				log.Printf("session %s: pty closed: %v", s.SessionID, err)
			}
			return
		}
	}
}

// WriteStdinRaw writes a raw string to the session's PTY, a no-op if
// no PTY is currently attached.
func (m *Manager) WriteStdinRaw(sessionID, data string) {
	s, ok := m.GetSession(sessionID)
	if !ok {
		return
	}
	s.mu.Lock()
	ptmx := s.ptmx
	if ptmx != nil {
		s.LastInputTime = time.Now()
	}
	s.mu.Unlock()
	if ptmx == nil {
		return
	}
	if _, err := ptmx.WriteString(data); err != nil {
		log.Printf("session %s: pty write failed: %v", sessionID, err)
	}
}

// Resize changes the PTY's dimensions, a no-op if no PTY is attached.
func (m *Manager) Resize(sessionID string, cols, rows int) error {
	s, ok := m.GetSession(sessionID)
	if !ok {
		return fmt.Errorf("session: %s not found", sessionID)
	}
	s.mu.Lock()
	ptmx := s.ptmx
	s.mu.Unlock()
	if ptmx == nil {
		return nil
	}
	return pty.Setsize(ptmx, &pty.Winsize{Rows: uint16(rows), Cols: uint16(cols)})
}

// killPTY terminates a session's process and drops its fd; it is the
// caller's job to update Status/Archived/etc. under the session lock.
func killPTY(s *Session) {
	if s.cancel != nil {
		s.cancel()
	}
	s.ptmx = nil
	s.cmd = nil
	s.cancel = nil
}

// decayOutputPressure is invoked on a 500ms ticker by the manager's
// background loop (see lifecycle.go) to bleed off the recentOutputSize
// pressure metric.
func decayOutputPressure(s *Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.recentOutputSize > 0 {
		s.recentOutputSize -= 50
		if s.recentOutputSize < 0 {
			s.recentOutputSize = 0
		}
	}
}
