package usecase

import (
	"context"
	"fmt"

	"github.com/taskdeck/taskdeck/internal/domain"
	"github.com/taskdeck/taskdeck/internal/session"
)

// StopRunInput contains the parameters for stopping a task's session.
type StopRunInput struct {
	ProjectPath string
	TaskID      string
}

// StopRunOutput contains the result of stopping a run.
type StopRunOutput struct{}

// StopRun closes a task's live session. The output buffer is kept.
type StopRun struct {
	tasks    domain.TaskRepository
	sessions *session.Manager
	bus      domain.EventBus
	clock    domain.Clock
	logger   domain.Logger
}

// NewStopRun creates a new StopRun use case.
func NewStopRun(tasks domain.TaskRepository, sessions *session.Manager, bus domain.EventBus, clock domain.Clock, logger domain.Logger) *StopRun {
	return &StopRun{
		tasks:    tasks,
		sessions: sessions,
		bus:      bus,
		clock:    clock,
		logger:   logger,
	}
}

// Execute stops the task's session and returns its status to idle.
// Stopping a task without a live session only normalizes the status.
func (uc *StopRun) Execute(_ context.Context, in StopRunInput) (*StopRunOutput, error) {
	task, err := getTask(uc.tasks, in.ProjectPath, in.TaskID)
	if err != nil {
		return nil, err
	}

	if err := uc.sessions.Stop(task.ID); err != nil {
		uc.logger.Warn(task.ID, "session", fmt.Sprintf("stop: %v", err))
	}

	if task.Status == domain.StatusRunning {
		err = uc.tasks.Mutate(in.ProjectPath, func(board *domain.Board) error {
			if current, ok := board.Tasks[in.TaskID]; ok && current.Status == domain.StatusRunning {
				current.Status = domain.StatusIdle
				current.UpdatedAt = uc.clock.Now()
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("save task: %w", err)
		}
	}

	publishStatus(uc.bus, task.ID, domain.StatusIdle, "")
	uc.logger.Info(task.ID, "session", "stopped")
	return &StopRunOutput{}, nil
}
