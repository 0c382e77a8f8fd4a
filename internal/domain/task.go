// Package domain contains core business entities and interfaces.
package domain

import "time"

// Task represents one card on the board.
// Fields are ordered to minimize memory padding.
type Task struct {
	CreatedAt        time.Time         `json:"createdAt"`
	UpdatedAt        time.Time         `json:"updatedAt"`
	Worktree         *Worktree         `json:"worktree,omitempty"`
	StructuredOutput *StructuredOutput `json:"structuredOutput,omitempty"`
	ID               string            `json:"id"`
	Title            string            `json:"title"`
	Description      string            `json:"description,omitempty"`
	Prompt           string            `json:"prompt,omitempty"`
	LaneID           LaneID            `json:"laneId"`
	Status           Status            `json:"status"`
	CreatedBy        string            `json:"createdBy,omitempty"` // "user" or "agent"
	SessionID        string            `json:"sessionId,omitempty"` // external resumable session id
	DesignPath       string            `json:"designPath,omitempty"`
	PlanPath         string            `json:"planPath,omitempty"`
	Order            int               `json:"order"`
}

// HasWorktree returns true if the task has a live (non-removed) worktree.
func (t *Task) HasWorktree() bool {
	return t.Worktree != nil && t.Worktree.RemovedAt == nil
}

// IsRunning returns true if the task's agent is currently working.
func (t *Task) IsRunning() bool {
	return t.Status == StatusRunning
}

// Worktree describes the isolated working directory attached to a task.
// Removed worktrees are tombstoned via RemovedAt, never forgotten.
type Worktree struct {
	CreatedAt time.Time  `json:"createdAt"`
	RemovedAt *time.Time `json:"removedAt,omitempty"`
	Path      string     `json:"path"`
	Branch    string     `json:"branch"`
}

// StructuredOutput is a schema-validated payload produced by an agent run.
// Type is derived from the lane the run executed in.
type StructuredOutput struct {
	Timestamp     time.Time      `json:"timestamp"`
	Data          map[string]any `json:"data"`
	Type          string         `json:"type"`
	SchemaVersion int            `json:"schemaVersion"`
}

// Project is a registered repository directory that owns a board.
type Project struct {
	CreatedAt time.Time `json:"createdAt"`
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Path      string    `json:"path"`
}
