package usecase

import (
	"context"
	"fmt"

	"github.com/taskdeck/taskdeck/internal/domain"
)

// MoveTaskInput contains the parameters for moving a task to a lane.
type MoveTaskInput struct {
	ProjectPath string
	TaskID      string
	ToLane      domain.LaneID
	BaseBranch  string // base branch used if the move creates a worktree
}

// MoveTaskOutput contains the result of moving a task.
type MoveTaskOutput struct {
	Task  *domain.Task
	Merge *domain.MergeResult // set when the move triggered a merge
}

// MoveTask is the use case for lane changes and their side effects.
type MoveTask struct {
	tasks     domain.TaskRepository
	worktrees domain.WorktreeManager
	git       domain.Git
	bus       domain.EventBus
	clock     domain.Clock
	logger    domain.Logger
}

// NewMoveTask creates a new MoveTask use case.
func NewMoveTask(tasks domain.TaskRepository, worktrees domain.WorktreeManager, git domain.Git, bus domain.EventBus, clock domain.Clock, logger domain.Logger) *MoveTask {
	return &MoveTask{
		tasks:     tasks,
		worktrees: worktrees,
		git:       git,
		bus:       bus,
		clock:     clock,
		logger:    logger,
	}
}

// Execute moves a task to a lane. Any lane move is accepted; only the
// side effects differ:
//   - first move into develop or test creates the task's worktree, and a
//     creation failure rejects the move
//   - pending-merge to archived runs the merge flow, and only a verified
//     merge tombstones the worktree and marks the task completed
func (uc *MoveTask) Execute(_ context.Context, in MoveTaskInput) (*MoveTaskOutput, error) {
	if !in.ToLane.IsValid() {
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidLane, in.ToLane)
	}

	task, err := getTask(uc.tasks, in.ProjectPath, in.TaskID)
	if err != nil {
		return nil, err
	}
	if task.LaneID == in.ToLane {
		return &MoveTaskOutput{Task: task}, nil
	}

	var wt *domain.Worktree
	if in.ToLane.NeedsWorktree() && !task.HasWorktree() {
		wt, err = uc.worktrees.Create(in.ProjectPath, task.ID, in.BaseBranch)
		if err != nil {
			return nil, fmt.Errorf("create worktree: %w", err)
		}
		// wt stays nil for non-git projects; the move still succeeds.
	}

	var merge *domain.MergeResult
	mergedStatus := task.Status
	var tombstone bool
	if in.ToLane == domain.LaneArchived && task.LaneID == domain.LanePendingMerge && task.HasWorktree() {
		target := uc.targetBranch(in.ProjectPath, in.BaseBranch)
		result := uc.worktrees.Merge(in.ProjectPath, task.Worktree.Path, task.Worktree.Branch, target)
		merge = &result
		if !result.Success {
			uc.logger.Warn(task.ID, "worktree", "merge failed: "+result.Message)
			return &MoveTaskOutput{Task: task, Merge: merge}, fmt.Errorf("merge %s: %s", task.Worktree.Branch, result.Message)
		}
		tombstone = true
		mergedStatus = domain.StatusCompleted
		uc.logger.Info(task.ID, "worktree", "merged: "+result.Message)
	}

	fromLane := task.LaneID
	err = uc.tasks.Mutate(in.ProjectPath, func(board *domain.Board) error {
		current := board.Tasks[in.TaskID]
		if current == nil {
			return domain.ErrTaskNotFound
		}
		current.LaneID = in.ToLane
		current.Order = len(board.TasksInLane(in.ToLane)) - 1
		current.UpdatedAt = uc.clock.Now()
		if wt != nil {
			current.Worktree = wt
		}
		if tombstone && current.Worktree != nil {
			now := uc.clock.Now()
			current.Worktree.RemovedAt = &now
		}
		current.Status = mergedStatus
		renumberLane(board, fromLane)
		renumberLane(board, in.ToLane)
		task = current
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("save task: %w", err)
	}

	publishStatus(uc.bus, task.ID, task.Status, in.ToLane)
	uc.logger.Info(task.ID, "task", fmt.Sprintf("moved %s -> %s", fromLane, in.ToLane))
	return &MoveTaskOutput{Task: task, Merge: merge}, nil
}

// targetBranch resolves the branch a merge folds into: the explicit
// configuration, then the main working copy's current branch, then main.
func (uc *MoveTask) targetBranch(projectPath, explicit string) string {
	if explicit != "" {
		return explicit
	}
	if current, err := uc.git.CurrentBranch(projectPath); err == nil && current != "" && current != "HEAD" {
		return current
	}
	return "main"
}
