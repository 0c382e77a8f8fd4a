package usecase

import (
	"context"
	"fmt"

	"github.com/taskdeck/taskdeck/internal/domain"
)

// DeleteTaskInput contains the parameters for deleting a task.
type DeleteTaskInput struct {
	ProjectPath string
	TaskID      string
}

// DeleteTaskOutput contains the result of deleting a task.
type DeleteTaskOutput struct{}

// SessionStopper is the slice of the session manager deletion needs.
type SessionStopper interface {
	Stop(taskID string) error
}

// DeleteTask is the use case for deleting a task and its belongings.
type DeleteTask struct {
	tasks     domain.TaskRepository
	worktrees domain.WorktreeManager
	conv      domain.ConversationStore
	artifacts domain.ArtifactStore
	sessions  SessionStopper
	logger    domain.Logger
}

// NewDeleteTask creates a new DeleteTask use case.
func NewDeleteTask(
	tasks domain.TaskRepository,
	worktrees domain.WorktreeManager,
	conv domain.ConversationStore,
	artifacts domain.ArtifactStore,
	sessions SessionStopper,
	logger domain.Logger,
) *DeleteTask {
	return &DeleteTask{
		tasks:     tasks,
		worktrees: worktrees,
		conv:      conv,
		artifacts: artifacts,
		sessions:  sessions,
		logger:    logger,
	}
}

// Execute deletes a task. The worktree, the conversation log, and any
// generated artifacts are removed best-effort and independently: each
// failure is logged, none blocks the others or the record deletion.
func (uc *DeleteTask) Execute(_ context.Context, in DeleteTaskInput) (*DeleteTaskOutput, error) {
	task, err := getTask(uc.tasks, in.ProjectPath, in.TaskID)
	if err != nil {
		return nil, err
	}

	if uc.sessions != nil {
		if err := uc.sessions.Stop(task.ID); err != nil {
			uc.logger.Warn(task.ID, "session", fmt.Sprintf("stop on delete: %v", err))
		}
	}

	if task.HasWorktree() {
		if err := uc.worktrees.Remove(in.ProjectPath, task.Worktree.Path); err != nil {
			uc.logger.Warn(task.ID, "worktree", fmt.Sprintf("remove on delete: %v", err))
		}
	}

	if err := uc.conv.Delete(in.ProjectPath, task.ID); err != nil {
		uc.logger.Warn(task.ID, "conversation", fmt.Sprintf("delete log: %v", err))
	}

	if err := uc.artifacts.Delete(in.ProjectPath, task.ID); err != nil {
		uc.logger.Warn(task.ID, "artifacts", fmt.Sprintf("delete artifacts: %v", err))
	}

	err = uc.tasks.Mutate(in.ProjectPath, func(board *domain.Board) error {
		lane := task.LaneID
		if current, ok := board.Tasks[in.TaskID]; ok {
			lane = current.LaneID
		}
		delete(board.Tasks, in.TaskID)
		renumberLane(board, lane)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("delete task: %w", err)
	}

	uc.logger.Info(task.ID, "task", fmt.Sprintf("deleted: %q", task.Title))
	return &DeleteTaskOutput{}, nil
}
