// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package gitutil holds the git subprocess primitives shared by the
// worktree registry and the session lifecycle manager. It exists as a
// leaf module specifically to avoid a cyclic import: the registry needs
// "resolve the base ref" and the lifecycle manager needs "what mother
// repo is this worktree a child of", and neither package may import the
// other.
package gitutil

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"time"
)

// DefaultTimeout bounds every git subprocess call so a hung remote
// fetch cannot stall session creation.
const DefaultTimeout = 15 * time.Second

// Run executes `git <args...>` in dir with an external timeout,
// returning its stdout. stderr is captured and folded into the
// error on failure.
func Run(ctx context.Context, dir string, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, DefaultTimeout)
	defer cancel()

	full := append([]string{}, args...)
	if dir != "" {
		full = append([]string{"-C", dir}, full...)
	}

	cmd := exec.CommandContext(ctx, "git", full...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("git %s: %w: %s", strings.Join(args, " "), err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}

// GetGitRoot returns the top-level directory of the repository that
// path belongs to, which for a linked worktree is the worktree's own
// path, not the mother repo. Use GetMainWorktree to find the mother.
func GetGitRoot(ctx context.Context, path string) (string, error) {
	out, err := Run(ctx, path, "rev-parse", "--show-toplevel")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// GetMainWorktree returns the path of the main (mother repo) worktree
// for the repository containing path, by asking for the porcelain
// worktree list and taking its first entry.
func GetMainWorktree(ctx context.Context, path string) (string, error) {
	out, err := Run(ctx, path, "worktree", "list", "--porcelain")
	if err != nil {
		return "", err
	}
	for _, line := range strings.Split(out, "\n") {
		if strings.HasPrefix(line, "worktree ") {
			return strings.TrimPrefix(line, "worktree "), nil
		}
	}
	return "", fmt.Errorf("gitutil: no worktree entries found for %s", path)
}

// ResolveBaseRef implements the base-ref probing order the worktree
// registry's assignBranch uses: origin/<baseBranch> after a fetch,
// then the symbolic ref target of origin/HEAD, then the bare local
// branch name. It returns the ref string to pass to `checkout -b`.
func ResolveBaseRef(ctx context.Context, gitRoot, baseBranch string) (string, error) {
	if baseBranch == "" {
		baseBranch = "main"
	}

	if _, err := Run(ctx, gitRoot, "fetch", "origin", baseBranch); err == nil {
		ref := "origin/" + baseBranch
		if _, verr := Run(ctx, gitRoot, "rev-parse", "--verify", ref); verr == nil {
			return ref, nil
		}
	}

	if out, err := Run(ctx, gitRoot, "symbolic-ref", "refs/remotes/origin/HEAD"); err == nil {
		ref := strings.TrimSpace(out)
		parts := strings.Split(ref, "/")
		if len(parts) > 0 {
			candidate := "origin/" + parts[len(parts)-1]
			if _, verr := Run(ctx, gitRoot, "rev-parse", "--verify", candidate); verr == nil {
				return candidate, nil
			}
		}
	}

	if _, err := Run(ctx, gitRoot, "rev-parse", "--verify", baseBranch); err == nil {
		return baseBranch, nil
	}

	return "", fmt.Errorf("gitutil: could not resolve base ref %q in %s", baseBranch, gitRoot)
}

// CurrentBranch returns the checked-out branch name, or "" for a
// detached HEAD.
func CurrentBranch(ctx context.Context, path string) (string, error) {
	out, err := Run(ctx, path, "branch", "--show-current")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// WorktreeAdd runs `git worktree add` with the given extra args
// (e.g. "--no-checkout", "--detach", "-b", branch) against targetPath.
func WorktreeAdd(ctx context.Context, gitRoot, targetPath string, extra ...string) error {
	args := append([]string{"worktree", "add"}, extra...)
	args = append(args, targetPath)
	_, err := Run(ctx, gitRoot, args...)
	return err
}

// WorktreeRemove force-removes a linked worktree.
func WorktreeRemove(ctx context.Context, gitRoot, targetPath string) error {
	_, err := Run(ctx, gitRoot, "worktree", "remove", "--force", targetPath)
	return err
}

// WorktreePrune runs `git worktree prune` to drop stale administrative
// entries after worktree directories are removed from disk directly.
func WorktreePrune(ctx context.Context, gitRoot string) error {
	_, err := Run(ctx, gitRoot, "worktree", "prune")
	return err
}

// StreamingCommand prepares a git command whose stderr the caller can
// read incrementally (e.g. to parse `checkout --progress` percentages)
// rather than waiting for exit. The caller must Start and Wait it.
func StreamingCommand(ctx context.Context, dir string, args ...string) (*exec.Cmd, io.ReadCloser, error) {
	full := append([]string{"-C", dir}, args...)
	cmd := exec.CommandContext(ctx, "git", full...)
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, nil, fmt.Errorf("git %s: stderr pipe: %w", strings.Join(args, " "), err)
	}
	return cmd, stderr, nil
}
