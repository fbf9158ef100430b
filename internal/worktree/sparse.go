// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package worktree

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/openui/orchestrator/internal/gitutil"
)

// CreateSparseParams configures a cone-mode sparse-checkout worktree.
type CreateSparseParams struct {
	GitRoot    string
	SessionID  string
	Branch     string
	BaseBranch string
	RelDir     string // the subtree to materialize, relative to the repo root
}

// CreateSparse is the sparse-checkout fast path: `worktree add
// --no-checkout -b <branch> <path> <baseRef>`, then `sparse-checkout
// set --cone <relDir>`, then `checkout`. If relDir does not exist on
// baseBranch, the partial worktree is removed and the caller should
// fall back to a full checkout.
func (r *Registry) CreateSparse(ctx context.Context, params CreateSparseParams) (string, error) {
	baseRef, err := gitutil.ResolveBaseRef(ctx, params.GitRoot, params.BaseBranch)
	if err != nil {
		return "", fmt.Errorf("worktree: resolve base ref: %w", err)
	}

	dirName := fmt.Sprintf("session-%s-sparse", params.SessionID)
	target := filepath.Join(filepath.Dir(params.GitRoot), ".openui-worktrees", dirName)
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return "", fmt.Errorf("worktree: mkdir parent: %w", err)
	}

	if err := gitutil.WorktreeAdd(ctx, params.GitRoot, target, "--no-checkout", "-b", params.Branch, baseRef); err != nil {
		return "", fmt.Errorf("worktree: add -b: %w", err)
	}

	if _, err := gitutil.Run(ctx, target, "sparse-checkout", "set", "--cone", params.RelDir); err != nil {
		_ = os.RemoveAll(target)
		_, _ = gitutil.Run(ctx, params.GitRoot, "worktree", "prune")
		return "", fmt.Errorf("worktree: sparse-checkout set: %w", err)
	}

	if _, err := gitutil.Run(ctx, target, "checkout"); err != nil {
		_ = os.RemoveAll(target)
		_, _ = gitutil.Run(ctx, params.GitRoot, "worktree", "prune")
		return "", fmt.Errorf("worktree: checkout: %w", err)
	}

	subPath := filepath.Join(target, params.RelDir)
	if _, err := os.Stat(subPath); err != nil {
		_ = os.RemoveAll(target)
		_, _ = gitutil.Run(ctx, params.GitRoot, "worktree", "prune")
		return "", fmt.Errorf("worktree: %s does not exist on %s: %w", params.RelDir, baseRef, err)
	}

	r.Register(target, params.GitRoot, params.SessionID, params.Branch)
	return subPath, nil
}
