package domain

import (
	"path/filepath"
)

// DataDirName is the project-local directory that owns board data,
// conversation logs, artifacts, and logs.
const DataDirName = ".taskdeck"

// WorktreeDirName is the directory under the project root that holds
// per-task worktrees.
const WorktreeDirName = ".worktrees"

// branchPrefix is the deterministic branch naming scheme for task worktrees.
const branchPrefix = "task/"

// BranchName returns the branch name for a task's worktree.
func BranchName(taskID string) string {
	return branchPrefix + taskID
}

// WorktreePath returns the worktree directory for a task.
func WorktreePath(projectPath, taskID string) string {
	return filepath.Join(projectPath, WorktreeDirName, taskID)
}

// DataDir returns the project-local data directory.
func DataDir(projectPath string) string {
	return filepath.Join(projectPath, DataDirName)
}

// BoardPath returns the per-project board file (lanes and tasks).
func BoardPath(projectPath string) string {
	return filepath.Join(DataDir(projectPath), "board.json")
}

// ConversationPath returns the conversation log file for a task.
// Conversation logs live outside the worktree so they survive its removal.
func ConversationPath(projectPath, taskID string) string {
	return filepath.Join(DataDir(projectPath), "conversations", taskID+".json")
}

// DesignPath returns the generated design artifact path for a task,
// relative to the project root.
func DesignPath(taskID string) string {
	return filepath.Join(DataDirName, "designs", taskID+".md")
}

// PlanPath returns the generated plan artifact path for a task,
// relative to the project root.
func PlanPath(taskID string) string {
	return filepath.Join(DataDirName, "plans", taskID+".md")
}

// LogsDir returns the log directory for a project.
func LogsDir(projectPath string) string {
	return filepath.Join(DataDir(projectPath), "logs")
}
