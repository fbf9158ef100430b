// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package worktree

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/openui/orchestrator/internal/gitutil"
)

// Registry is the process-wide pool of claimed/available worktrees.
// The on-disk JSON file is the source of truth; every mutation is an
// atomic write-then-rename, matching the persistence layer's idiom.
// In-memory state is a cache rebuilt from that file on NewRegistry and
// kept consistent under mu for the registry's lifetime.
type Registry struct {
	mu       sync.Mutex
	path     string
	entries  map[string]*Entry // keyed by Path
	git      GitExecutor
	createMu sync.Map // per-gitRoot mutex, serializes concurrent createFresh
}

// NewRegistry loads (or bootstraps) the registry file at path.
func NewRegistry(path string, git GitExecutor) (*Registry, error) {
	r := &Registry{path: path, entries: map[string]*Entry{}, git: git}
	if err := r.load(); err != nil {
		return nil, err
	}
	return r, nil
}

type onDisk struct {
	Worktrees []Entry `json:"worktrees"`
}

func (r *Registry) load() error {
	b, err := os.ReadFile(r.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("worktree: read registry: %w", err)
	}
	var d onDisk
	if err := json.Unmarshal(b, &d); err != nil {
		log.Printf("worktree: registry file corrupt, bootstrapping empty: %v", err)
		return nil
	}
	for i := range d.Worktrees {
		e := d.Worktrees[i]
		r.entries[e.Path] = &e
	}
	return nil
}

// saveLocked must be called with mu held.
func (r *Registry) saveLocked() error {
	d := onDisk{Worktrees: make([]Entry, 0, len(r.entries))}
	for _, e := range r.entries {
		d.Worktrees = append(d.Worktrees, *e)
	}
	sort.Slice(d.Worktrees, func(i, j int) bool { return d.Worktrees[i].Path < d.Worktrees[j].Path })

	b, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return fmt.Errorf("worktree: marshal registry: %w", err)
	}
	tmp := r.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return fmt.Errorf("worktree: write registry tmp: %w", err)
	}
	return os.Rename(tmp, r.path)
}

// Claim finds an available entry for gitRoot, preferring the most
// recently released one, validates its .git file still exists on
// disk, and marks it claimed. Stale entries (missing .git) are
// dropped as they're encountered. Returns ("", false) on a miss.
func (r *Registry) Claim(gitRoot, sessionID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var candidates []*Entry
	for _, e := range r.entries {
		if e.GitRoot == gitRoot && e.Status == StatusAvailable {
			candidates = append(candidates, e)
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		ti, tj := time.Time{}, time.Time{}
		if candidates[i].ReleasedAt != nil {
			ti = *candidates[i].ReleasedAt
		}
		if candidates[j].ReleasedAt != nil {
			tj = *candidates[j].ReleasedAt
		}
		return ti.After(tj)
	})

	for _, e := range candidates {
		if _, err := os.Stat(filepath.Join(e.Path, ".git")); err != nil {
			delete(r.entries, e.Path)
			continue
		}
		e.Status = StatusClaimed
		e.SessionID = sessionID
		e.ReleasedAt = nil
		if err := r.saveLocked(); err != nil {
			log.Printf("worktree: save after claim failed: %v", err)
		}
		return e.Path, true
	}

	_ = r.saveLocked() // persist any stale-entry removals even on a miss
	return "", false
}

// AssignBranch resolves the base ref (origin/<baseBranch>, then
// origin/HEAD's symbolic target, then the bare local branch name),
// detaches HEAD, force-deletes any existing local branch of the
// target name, then checks out a fresh branch from the resolved base.
func (r *Registry) AssignBranch(ctx context.Context, worktreePath, branchName, baseBranch, gitRoot string) AssignResult {
	baseRef, err := gitutil.ResolveBaseRef(ctx, gitRoot, baseBranch)
	if err != nil {
		return AssignResult{Error: err.Error()}
	}

	if _, err := gitutil.Run(ctx, worktreePath, "checkout", "--detach"); err != nil {
		return AssignResult{Error: err.Error()}
	}

	_, _ = gitutil.Run(ctx, worktreePath, "branch", "-D", branchName) // best-effort; branch may not exist

	if _, err := gitutil.Run(ctx, worktreePath, "checkout", "-b", branchName, baseRef); err != nil {
		return AssignResult{Error: err.Error()}
	}

	return AssignResult{Success: true, BranchName: branchName}
}

// Register marks a fresh worktree (created outside the pool, e.g. by
// createFresh) as claimed. A duplicate registration of an already
// tracked path is a no-op.
func (r *Registry) Register(path, gitRoot, sessionID, branch string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[path]; exists {
		return
	}
	r.entries[path] = &Entry{
		Path:      path,
		GitRoot:   gitRoot,
		Branch:    branch,
		Status:    StatusClaimed,
		SessionID: sessionID,
		CreatedAt: time.Now(),
	}
	if err := r.saveLocked(); err != nil {
		log.Printf("worktree: save after register failed: %v", err)
	}
}

// Release marks path available and triggers a prune of its gitRoot.
func (r *Registry) Release(path string) {
	r.mu.Lock()
	e, ok := r.entries[path]
	if !ok {
		r.mu.Unlock()
		return
	}
	now := time.Now()
	e.Status = StatusAvailable
	e.SessionID = ""
	e.ReleasedAt = &now
	gitRoot := e.GitRoot
	if err := r.saveLocked(); err != nil {
		log.Printf("worktree: save after release failed: %v", err)
	}
	r.mu.Unlock()

	r.Prune(context.Background(), gitRoot)
}

// Prune deletes the oldest available worktrees for gitRoot beyond
// MaxAvailablePerRepo, removing their directories and running
// `git worktree prune` (invariant 8).
func (r *Registry) Prune(ctx context.Context, gitRoot string) {
	r.mu.Lock()
	var available []*Entry
	for _, e := range r.entries {
		if e.GitRoot == gitRoot && e.Status == StatusAvailable {
			available = append(available, e)
		}
	}
	if len(available) <= MaxAvailablePerRepo {
		r.mu.Unlock()
		return
	}
	sort.Slice(available, func(i, j int) bool {
		ti, tj := time.Time{}, time.Time{}
		if available[i].ReleasedAt != nil {
			ti = *available[i].ReleasedAt
		}
		if available[j].ReleasedAt != nil {
			tj = *available[j].ReleasedAt
		}
		return ti.Before(tj)
	})
	toRemove := available[:len(available)-MaxAvailablePerRepo]
	paths := make([]string, 0, len(toRemove))
	for _, e := range toRemove {
		paths = append(paths, e.Path)
		delete(r.entries, e.Path)
	}
	if err := r.saveLocked(); err != nil {
		log.Printf("worktree: save after prune failed: %v", err)
	}
	r.mu.Unlock()

	for _, p := range paths {
		if err := os.RemoveAll(p); err != nil {
			log.Printf("worktree: prune remove %s: %v", p, err)
		}
	}
	if err := gitutil.WorktreePrune(ctx, gitRoot); err != nil {
		log.Printf("worktree: git worktree prune for %s: %v", gitRoot, err)
	}
}

// Unregister removes an entry from the registry without touching disk.
func (r *Registry) Unregister(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, path)
	if err := r.saveLocked(); err != nil {
		log.Printf("worktree: save after unregister failed: %v", err)
	}
}

// GetStats returns total/available/claimed counts, plus per-repo totals.
func (r *Registry) GetStats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()

	st := Stats{PerRepo: map[string]int{}}
	for _, e := range r.entries {
		st.Total++
		if e.Status == StatusAvailable {
			st.Available++
		} else {
			st.Claimed++
		}
		st.PerRepo[e.GitRoot]++
	}
	return st
}

// createLock returns (and lazily creates) the per-gitRoot mutex used
// to serialize concurrent CreateFresh calls for the same repo; each
// call still runs its own git subprocess chain.
func (r *Registry) createLock(gitRoot string) *sync.Mutex {
	v, _ := r.createMu.LoadOrStore(gitRoot, &sync.Mutex{})
	return v.(*sync.Mutex)
}

// CreateFreshParams configures a fast-path worktree creation.
type CreateFreshParams struct {
	GitRoot    string
	SessionID  string
	BaseBranch string
	OnProgress ProgressFunc
}

// CreateFresh runs the two-phase fast path: an instant detached
// `worktree add --no-checkout`, then a streaming `checkout` whose
// stderr progress percentages are remapped into [10, 95] and reported
// via params.OnProgress. On checkout failure the directory is removed
// and `git worktree prune` is run.
func (r *Registry) CreateFresh(ctx context.Context, params CreateFreshParams) (string, error) {
	lock := r.createLock(params.GitRoot)
	lock.Lock()
	defer lock.Unlock()

	report := func(p int, phase string) {
		if params.OnProgress != nil {
			params.OnProgress(p, phase)
		}
	}

	dirName := fmt.Sprintf("session-%s", params.SessionID)
	target := filepath.Join(filepath.Dir(params.GitRoot), ".openui-worktrees", dirName)
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return "", fmt.Errorf("worktree: mkdir parent: %w", err)
	}

	report(5, "adding worktree")
	if err := gitutil.WorktreeAdd(ctx, params.GitRoot, target, "--no-checkout", "--detach", "HEAD"); err != nil {
		return "", fmt.Errorf("worktree: add --no-checkout: %w", err)
	}

	report(10, "checking out")
	if err := r.streamingCheckout(ctx, target, report); err != nil {
		_ = os.RemoveAll(target)
		_ = gitutil.WorktreePrune(ctx, params.GitRoot)
		return "", fmt.Errorf("worktree: checkout: %w", err)
	}

	report(95, "finishing")
	r.Register(target, params.GitRoot, params.SessionID, "")
	report(100, "done")
	return target, nil
}

// streamingCheckout runs `git checkout --progress HEAD` and parses its
// stderr for "NN%" tokens, remapping them from the checkout's own
// [0,100] range into the overall [10, 95] progress window.
func (r *Registry) streamingCheckout(ctx context.Context, worktreePath string, report ProgressFunc) error {
	cmd, stderr, err := gitutil.StreamingCommand(ctx, worktreePath, "checkout", "--progress", "HEAD")
	if err != nil {
		return err
	}
	if err := cmd.Start(); err != nil {
		return err
	}

	buf := make([]byte, 256)
	var partial string
	for {
		n, rerr := stderr.Read(buf)
		if n > 0 {
			partial += string(buf[:n])
			for {
				idx := strings.IndexByte(partial, '%')
				if idx < 0 {
					break
				}
				start := idx
				for start > 0 && (partial[start-1] >= '0' && partial[start-1] <= '9') {
					start--
				}
				if start < idx {
					if pct, perr := strconv.Atoi(partial[start:idx]); perr == nil {
						remapped := 10 + (pct * 85 / 100)
						report(remapped, "checking out")
					}
				}
				partial = partial[idx+1:]
			}
		}
		if rerr != nil {
			break
		}
	}
	return cmd.Wait()
}
