// Package git provides version-control operations via the git CLI,
// with go-git for repository inspection.
package git

import (
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"

	"github.com/taskdeck/taskdeck/internal/domain"
)

// Client implements domain.Git.
type Client struct{}

// NewClient creates a new git client.
func NewClient() *Client {
	return &Client{}
}

// Ensure Client implements domain.Git.
var _ domain.Git = (*Client)(nil)

// IsRepository reports whether dir is inside a git repository.
func (c *Client) IsRepository(dir string) bool {
	_, err := gogit.PlainOpenWithOptions(dir, &gogit.PlainOpenOptions{DetectDotGit: true})
	return err == nil
}

// HasCommits reports whether the repository has at least one commit.
func (c *Client) HasCommits(dir string) (bool, error) {
	cmd := exec.Command("git", "rev-parse", "--quiet", "--verify", "HEAD")
	cmd.Dir = dir
	err := cmd.Run()
	if err == nil {
		return true, nil
	}
	if exitErr, ok := err.(*exec.ExitError); ok && exitErr.ExitCode() == 1 {
		return false, nil
	}
	return false, fmt.Errorf("check HEAD: %w", err)
}

// InitialCommit creates a bootstrap commit, staging everything except the
// ignore list.
func (c *Client) InitialCommit(dir string, ignore []string) error {
	args := []string{"add", "-A", "--", "."}
	for _, dirName := range ignore {
		args = append(args, ":(exclude)"+dirName)
	}
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("stage initial commit: %w: %s", err, string(out))
	}

	cmd = exec.Command("git", "commit", "--allow-empty", "-m", "initial commit")
	cmd.Dir = dir
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("create initial commit: %w: %s", err, string(out))
	}
	return nil
}

// CurrentBranch returns the checked-out branch name.
func (c *Client) CurrentBranch(dir string) (string, error) {
	cmd := exec.Command("git", "rev-parse", "--abbrev-ref", "HEAD")
	cmd.Dir = dir
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("get current branch: %w", err)
	}
	return strings.TrimSpace(string(out)), nil
}

// RemoteDefaultBranch returns the default branch of origin, if known.
func (c *Client) RemoteDefaultBranch(dir string) (string, error) {
	cmd := exec.Command("git", "symbolic-ref", "--short", "refs/remotes/origin/HEAD")
	cmd.Dir = dir
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("get remote default branch: %w", err)
	}
	ref := strings.TrimSpace(string(out))
	return strings.TrimPrefix(ref, "origin/"), nil
}

// BranchExists checks if a local branch exists.
func (c *Client) BranchExists(dir, branch string) (bool, error) {
	//nolint:gosec // branch name is used as argument, not shell command
	cmd := exec.Command("git", "show-ref", "--verify", "--quiet", "refs/heads/"+branch)
	cmd.Dir = dir
	err := cmd.Run()
	if err == nil {
		return true, nil
	}
	if exitErr, ok := err.(*exec.ExitError); ok && exitErr.ExitCode() == 1 {
		return false, nil
	}
	return false, fmt.Errorf("check branch existence: %w", err)
}

// HasUncommittedChanges checks for staged or unstaged changes in dir.
func (c *Client) HasUncommittedChanges(dir string) (bool, error) {
	cmd := exec.Command("git", "status", "--porcelain")
	cmd.Dir = dir
	out, err := cmd.Output()
	if err != nil {
		return false, fmt.Errorf("check uncommitted changes: %w", err)
	}
	return len(out) > 0, nil
}

// CommitAll stages and commits everything in dir.
func (c *Client) CommitAll(dir, message string) error {
	cmd := exec.Command("git", "add", "-A")
	cmd.Dir = dir
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("stage changes: %w: %s", err, string(out))
	}

	cmd = exec.Command("git", "commit", "-m", message)
	cmd.Dir = dir
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("commit changes: %w: %s", err, string(out))
	}
	return nil
}

// CommitsAhead returns how many commits branch has over target.
func (c *Client) CommitsAhead(dir, branch, target string) (int, error) {
	//nolint:gosec // revision range is an argument, not a shell command
	cmd := exec.Command("git", "rev-list", "--count", target+".."+branch)
	cmd.Dir = dir
	out, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("count commits ahead: %w", err)
	}
	n, err := strconv.Atoi(strings.TrimSpace(string(out)))
	if err != nil {
		return 0, fmt.Errorf("parse rev-list count: %w", err)
	}
	return n, nil
}

// Checkout switches dir to the given branch.
func (c *Client) Checkout(dir, branch string) error {
	cmd := exec.Command("git", "checkout", branch)
	cmd.Dir = dir
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("checkout %s: %w: %s", branch, err, string(out))
	}
	return nil
}

// Merge performs a non-fast-forward merge of branch with the message.
// Returns domain.ErrMergeConflict when the merge stops on conflicts.
func (c *Client) Merge(dir, branch, message string) error {
	cmd := exec.Command("git", "merge", "--no-ff", "-m", message, branch)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	if err != nil {
		outStr := string(out)
		if strings.Contains(outStr, "CONFLICT") || strings.Contains(outStr, "Automatic merge failed") {
			return domain.ErrMergeConflict
		}
		return fmt.Errorf("merge %s: %w: %s", branch, err, outStr)
	}
	return nil
}

// AbortMerge aborts an in-progress merge, leaving the repository clean.
func (c *Client) AbortMerge(dir string) error {
	cmd := exec.Command("git", "merge", "--abort")
	cmd.Dir = dir
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("abort merge: %w: %s", err, string(out))
	}
	return nil
}

// IsAncestor reports whether branch is an ancestor of HEAD in dir.
// The check runs through go-git so it does not depend on the state of the
// working tree.
func (c *Client) IsAncestor(dir, branch string) (bool, error) {
	repo, err := gogit.PlainOpenWithOptions(dir, &gogit.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return false, fmt.Errorf("open repository: %w", err)
	}

	branchRef, err := repo.Reference(plumbing.NewBranchReferenceName(branch), true)
	if err != nil {
		return false, fmt.Errorf("resolve branch %s: %w", branch, err)
	}
	headRef, err := repo.Head()
	if err != nil {
		return false, fmt.Errorf("resolve HEAD: %w", err)
	}

	branchCommit, err := repo.CommitObject(branchRef.Hash())
	if err != nil {
		return false, fmt.Errorf("read branch commit: %w", err)
	}
	headCommit, err := repo.CommitObject(headRef.Hash())
	if err != nil {
		return false, fmt.Errorf("read HEAD commit: %w", err)
	}

	ok, err := branchCommit.IsAncestor(headCommit)
	if err != nil {
		return false, fmt.Errorf("ancestor check: %w", err)
	}
	return ok, nil
}

// DeleteBranch deletes a local branch.
func (c *Client) DeleteBranch(dir, branch string, force bool) error {
	flag := "-d"
	if force {
		flag = "-D"
	}
	cmd := exec.Command("git", "branch", flag, branch)
	cmd.Dir = dir
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("delete branch %s: %w: %s", branch, err, string(out))
	}
	return nil
}

// WorktreeAdd registers a worktree at path.
func (c *Client) WorktreeAdd(dir, path, branch, baseBranch string, newBranch bool) error {
	var args []string
	if newBranch {
		args = []string{"worktree", "add", "-b", branch, path, baseBranch}
	} else {
		args = []string{"worktree", "add", path, branch}
	}
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	if err != nil {
		outStr := string(out)
		// Stale registration from an externally-deleted directory: prune and retry.
		if strings.Contains(outStr, "already registered") {
			if pruneErr := c.WorktreePrune(dir); pruneErr != nil {
				return pruneErr
			}
			cmd = exec.Command("git", args...)
			cmd.Dir = dir
			if out, err = cmd.CombinedOutput(); err != nil {
				return fmt.Errorf("add worktree after prune: %w: %s", err, string(out))
			}
			return nil
		}
		return fmt.Errorf("add worktree: %w: %s", err, outStr)
	}
	return nil
}

// WorktreeRemove force-removes a worktree registration.
func (c *Client) WorktreeRemove(dir, path string) error {
	cmd := exec.Command("git", "worktree", "remove", "--force", path)
	cmd.Dir = dir
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("remove worktree: %w: %s", err, string(out))
	}
	return nil
}

// WorktreePrune removes stale worktree registrations.
func (c *Client) WorktreePrune(dir string) error {
	cmd := exec.Command("git", "worktree", "prune")
	cmd.Dir = dir
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("prune worktrees: %w: %s", err, string(out))
	}
	return nil
}
