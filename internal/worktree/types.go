// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package worktree implements the process-wide pool of reusable git
// worktrees keyed by mother repo, used to cut session startup time by
// reusing an already-checked-out worktree instead of cloning one fresh
// for every session.
package worktree

import (
	"context"
	"path/filepath"
	"time"
)

// WorktreeInfo describes one entry returned by `git worktree list`.
type WorktreeInfo struct {
	Path     string
	Commit   string
	Branch   string
	Detached bool
	IsBare   bool
	Dirty    bool
	Ahead    int
	Behind   int
}

// Name returns the directory name of the worktree.
func (w *WorktreeInfo) Name() string {
	return filepath.Base(w.Path)
}

// GitStatus represents the status of a git working directory.
type GitStatus struct {
	Clean     bool
	Modified  []string
	Added     []string
	Deleted   []string
	Renamed   []string
	Untracked []string
}

// HasChanges returns true if there are any changes in the working directory.
func (s *GitStatus) HasChanges() bool {
	if s.Clean {
		return false
	}
	return len(s.Modified) > 0 || len(s.Added) > 0 ||
		len(s.Deleted) > 0 || len(s.Renamed) > 0 ||
		len(s.Untracked) > 0
}

// BranchInfo contains information about the current branch.
type BranchInfo struct {
	Name     string
	Detached bool
	Commit   string
}

// GitExecutor is the interface for the read-only git queries
// (worktree list, status, branch info) that RealGitExecutor runs. The
// Registry holds one, but its own git commands go through the
// subprocess primitives in internal/gitutil (those are shared with the
// session lifecycle manager to avoid a cyclic import).
type GitExecutor interface {
	WorktreeList(ctx context.Context, dir string) ([]WorktreeInfo, error)
	Status(ctx context.Context, path string) (GitStatus, error)
	BranchInfo(ctx context.Context, path string) (BranchInfo, error)
}

// EntryStatus is the claimed/available state of a registry entry.
type EntryStatus string

const (
	StatusClaimed   EntryStatus = "claimed"
	StatusAvailable EntryStatus = "available"
)

// Entry is one pooled worktree.
type Entry struct {
	Path       string      `json:"path"`
	GitRoot    string      `json:"gitRoot"`
	Branch     string      `json:"branch,omitempty"`
	Status     EntryStatus `json:"status"`
	SessionID  string      `json:"sessionId,omitempty"`
	CreatedAt  time.Time   `json:"createdAt"`
	ReleasedAt *time.Time  `json:"releasedAt,omitempty"`
}

// Stats summarizes the registry's contents.
type Stats struct {
	Total     int            `json:"total"`
	Available int            `json:"available"`
	Claimed   int            `json:"claimed"`
	PerRepo   map[string]int `json:"perRepo"`
}

// AssignResult is what assignBranch returns.
type AssignResult struct {
	Success    bool
	BranchName string
	Error      string
}

// ProgressFunc receives progress updates during createFresh: progress
// runs from 5 to 95 while the worktree is built and ends with 100 when
// it is done; phase is a short human label.
type ProgressFunc func(progress int, phase string)

// MaxAvailablePerRepo bounds how many available worktrees may sit idle
// per mother repo (invariant 8).
const MaxAvailablePerRepo = 5
