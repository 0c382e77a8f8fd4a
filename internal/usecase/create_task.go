package usecase

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/taskdeck/taskdeck/internal/domain"
)

// CreateTaskInput contains the parameters for creating a new task.
// Fields are ordered to minimize memory padding.
type CreateTaskInput struct {
	ProjectPath string
	Title       string // required
	Description string
	Prompt      string
	LaneID      domain.LaneID // empty = design
	CreatedBy   string        // "user" or "agent"
	BaseBranch  string        // base branch for an immediate worktree
}

// CreateTaskOutput contains the result of creating a new task.
type CreateTaskOutput struct {
	Task *domain.Task
}

// CreateTask is the use case for creating a new task.
type CreateTask struct {
	tasks     domain.TaskRepository
	worktrees domain.WorktreeManager
	clock     domain.Clock
	logger    domain.Logger
}

// NewCreateTask creates a new CreateTask use case.
func NewCreateTask(tasks domain.TaskRepository, worktrees domain.WorktreeManager, clock domain.Clock, logger domain.Logger) *CreateTask {
	return &CreateTask{
		tasks:     tasks,
		worktrees: worktrees,
		clock:     clock,
		logger:    logger,
	}
}

// Execute creates a new task. Creating a task directly in a worktree
// lane attempts worktree creation, but a failure there is swallowed:
// the task is created without a worktree and the failure is logged.
func (uc *CreateTask) Execute(_ context.Context, in CreateTaskInput) (*CreateTaskOutput, error) {
	if in.Title == "" {
		return nil, domain.ErrEmptyTitle
	}

	lane := in.LaneID
	if lane == "" {
		lane = domain.LaneDesign
	}
	if !lane.IsValid() {
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidLane, lane)
	}

	createdBy := in.CreatedBy
	if createdBy == "" {
		createdBy = "user"
	}

	now := uc.clock.Now()
	task := &domain.Task{
		ID:          uuid.NewString(),
		Title:       in.Title,
		Description: in.Description,
		Prompt:      in.Prompt,
		LaneID:      lane,
		Status:      domain.StatusIdle,
		CreatedBy:   createdBy,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if lane.NeedsWorktree() {
		wt, err := uc.worktrees.Create(in.ProjectPath, task.ID, in.BaseBranch)
		if err != nil {
			uc.logger.Warn(task.ID, "worktree", fmt.Sprintf("create failed, task continues without worktree: %v", err))
		} else {
			task.Worktree = wt
		}
	}

	err := uc.tasks.Mutate(in.ProjectPath, func(board *domain.Board) error {
		task.Order = len(board.TasksInLane(lane))
		board.Tasks[task.ID] = task
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("save task: %w", err)
	}

	uc.logger.Info(task.ID, "task", fmt.Sprintf("created in %s: %q", lane, in.Title))
	return &CreateTaskOutput{Task: task}, nil
}
