// Package worktree maps tasks to isolated, branch-scoped working
// directories inside the project repository.
package worktree

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/taskdeck/taskdeck/internal/domain"
)

// bootstrapIgnore is the fixed list of generated directories excluded from
// the bootstrap commit of a freshly initialized repository.
var bootstrapIgnore = []string{
	domain.WorktreeDirName,
	domain.DataDirName,
	"node_modules",
	"dist",
	"target",
}

// legacyWorktreeDir is where older versions kept worktrees. It is removed
// on sight so stale checkouts do not accumulate.
var legacyWorktreeDir = filepath.Join(domain.DataDirName, "worktrees")

// Manager implements domain.WorktreeManager on top of a domain.Git client.
type Manager struct {
	git       domain.Git
	clock     domain.Clock
	configDir string // project-local agent config dir copied into new worktrees
}

// NewManager creates a new worktree manager.
// configDir is the name of a project-local configuration directory that is
// copied into each new worktree so the agent sees the same local config.
func NewManager(git domain.Git, clock domain.Clock, configDir string) *Manager {
	return &Manager{
		git:       git,
		clock:     clock,
		configDir: configDir,
	}
}

// Ensure Manager implements domain.WorktreeManager.
var _ domain.WorktreeManager = (*Manager)(nil)

// Create creates (or idempotently returns) the worktree for a task.
// Returns (nil, nil) when projectPath is not version-controlled; the caller
// treats that as a non-fatal "no worktree" outcome.
func (m *Manager) Create(projectPath, taskID, baseBranch string) (*domain.Worktree, error) {
	if !m.git.IsRepository(projectPath) {
		return nil, nil
	}

	// A worktree needs at least one commit to branch from.
	hasCommits, err := m.git.HasCommits(projectPath)
	if err != nil {
		return nil, fmt.Errorf("check commits: %w", err)
	}
	if !hasCommits {
		if err := m.git.InitialCommit(projectPath, bootstrapIgnore); err != nil {
			return nil, fmt.Errorf("bootstrap commit: %w", err)
		}
	}

	branch := domain.BranchName(taskID)
	path := domain.WorktreePath(projectPath, taskID)

	// Idempotent: an existing directory is the existing worktree.
	if _, statErr := os.Stat(path); statErr == nil {
		return &domain.Worktree{
			Path:      path,
			Branch:    branch,
			CreatedAt: m.clock.Now(),
		}, nil
	}

	branchExists, err := m.git.BranchExists(projectPath, branch)
	if err != nil {
		return nil, fmt.Errorf("check branch: %w", err)
	}

	if branchExists {
		// Branch survived a previous worktree; attach to it.
		err = m.git.WorktreeAdd(projectPath, path, branch, "", false)
	} else {
		base, resolveErr := m.resolveBaseBranch(projectPath, baseBranch)
		if resolveErr != nil {
			return nil, resolveErr
		}
		err = m.git.WorktreeAdd(projectPath, path, branch, base, true)
	}
	if err != nil {
		return nil, err
	}

	m.copyConfigDir(projectPath, path)
	m.removeLegacyDir(projectPath)

	return &domain.Worktree{
		Path:      path,
		Branch:    branch,
		CreatedAt: m.clock.Now(),
	}, nil
}

// resolveBaseBranch picks the branch new worktrees fork from.
// Priority: explicit arg, current branch, remote default, main, master,
// then the detached-HEAD sentinel.
func (m *Manager) resolveBaseBranch(projectPath, explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}

	if current, err := m.git.CurrentBranch(projectPath); err == nil && current != "" && current != "HEAD" {
		return current, nil
	}

	if remote, err := m.git.RemoteDefaultBranch(projectPath); err == nil && remote != "" {
		return remote, nil
	}

	for _, candidate := range []string{"main", "master"} {
		exists, err := m.git.BranchExists(projectPath, candidate)
		if err != nil {
			return "", fmt.Errorf("check base branch: %w", err)
		}
		if exists {
			return candidate, nil
		}
	}

	return "HEAD", nil
}

// Remove force-removes the worktree registration and directory.
// Conversation history is stored outside the worktree and survives removal.
func (m *Manager) Remove(projectPath, worktreePath string) error {
	return m.git.WorktreeRemove(projectPath, worktreePath)
}

// Merge folds the task branch into targetBranch.
//
// The sequence is strictly ordered: commit leftovers, ahead-check, checkout,
// merge, verify, remove. The worktree is removed only after the merged
// branch is independently verified as an ancestor of the target's HEAD.
func (m *Manager) Merge(projectPath, worktreePath, branch, targetBranch string) domain.MergeResult {
	// Commit whatever the agent left uncommitted; nothing to commit is fine.
	dirty, err := m.git.HasUncommittedChanges(worktreePath)
	if err != nil {
		return domain.MergeResult{Message: fmt.Sprintf("check worktree state: %v", err)}
	}
	if dirty {
		if err := m.git.CommitAll(worktreePath, "chore: commit remaining work for "+branch); err != nil {
			return domain.MergeResult{Message: fmt.Sprintf("commit worktree changes: %v", err)}
		}
	}

	ahead, err := m.git.CommitsAhead(projectPath, branch, targetBranch)
	if err != nil {
		return domain.MergeResult{Message: fmt.Sprintf("compare branches: %v", err)}
	}
	if ahead == 0 {
		return domain.MergeResult{Message: fmt.Sprintf("%v: branch has no commits ahead of %s", domain.ErrNothingToMerge, targetBranch)}
	}

	if err := m.git.Checkout(projectPath, targetBranch); err != nil {
		return domain.MergeResult{Message: fmt.Sprintf("checkout %s: %v", targetBranch, err)}
	}

	if err := m.git.Merge(projectPath, branch, "Merge "+branch+" into "+targetBranch); err != nil {
		if errors.Is(err, domain.ErrMergeConflict) {
			// Leave the repository clean; the worktree stays for manual resolution.
			_ = m.git.AbortMerge(projectPath)
			return domain.MergeResult{
				Conflict: true,
				Message:  fmt.Sprintf("%v: resolve manually in the worktree and retry", domain.ErrMergeConflict),
			}
		}
		return domain.MergeResult{Message: fmt.Sprintf("merge: %v", err)}
	}

	// Guard against "merge reported success but state is wrong": only a
	// verified ancestor relationship permits worktree removal.
	verified, err := m.git.IsAncestor(projectPath, branch)
	if err != nil || !verified {
		return domain.MergeResult{Message: fmt.Sprintf("%v: worktree preserved", domain.ErrMergeNotVerified)}
	}

	if err := m.git.WorktreeRemove(projectPath, worktreePath); err != nil {
		return domain.MergeResult{
			Success: true,
			Message: fmt.Sprintf("merged, but worktree removal failed: %v", err),
		}
	}

	// Branch deletion is best-effort; the merge already landed.
	_ = m.git.DeleteBranch(projectPath, branch, true)

	return domain.MergeResult{Success: true, Message: "merged " + branch + " into " + targetBranch}
}

// Cleanup prunes stale worktree registrations left by externally-deleted
// directories.
func (m *Manager) Cleanup(projectPath string) error {
	return m.git.WorktreePrune(projectPath)
}

// copyConfigDir copies the project-local agent configuration directory into
// a new worktree, if present. Failures are ignored; the worktree is usable
// without it.
func (m *Manager) copyConfigDir(projectPath, worktreePath string) {
	if m.configDir == "" {
		return
	}
	src := filepath.Join(projectPath, m.configDir)
	info, err := os.Stat(src)
	if err != nil || !info.IsDir() {
		return
	}
	_ = copyDir(src, filepath.Join(worktreePath, m.configDir))
}

// removeLegacyDir deletes the worktree directory layout used by older
// versions.
func (m *Manager) removeLegacyDir(projectPath string) {
	legacy := filepath.Join(projectPath, legacyWorktreeDir)
	if _, err := os.Stat(legacy); err == nil {
		_ = os.RemoveAll(legacy)
	}
}

func copyDir(src, dst string) error {
	return filepath.Walk(src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if info.IsDir() {
			return os.MkdirAll(target, info.Mode())
		}
		return copyFile(path, target, info.Mode())
	})
}

func copyFile(src, dst string, mode os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, mode)
	if err != nil {
		return err
	}
	defer func() { _ = out.Close() }()

	_, err = io.Copy(out, in)
	return err
}
