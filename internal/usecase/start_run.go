package usecase

import (
	"context"
	"fmt"

	"github.com/taskdeck/taskdeck/internal/domain"
	"github.com/taskdeck/taskdeck/internal/session"
)

// StartRunInput contains the parameters for a terminal-style task run.
type StartRunInput struct {
	ProjectPath string
	TaskID      string
}

// StartRunOutput contains the started (or resumed) session identity.
type StartRunOutput struct {
	SessionID string
	Started   bool // false when an existing live session was resumed
}

// StartRun executes a task's prompt to completion, streaming raw output
// events. Conversation-mode runs are DesignRun and ExecuteRun.
type StartRun struct {
	tasks    domain.TaskRepository
	sessions *session.Manager
	complete *CompleteRun
	bus      domain.EventBus
	clock    domain.Clock
	logger   domain.Logger
}

// NewStartRun creates a new StartRun use case.
func NewStartRun(tasks domain.TaskRepository, sessions *session.Manager, complete *CompleteRun, bus domain.EventBus, clock domain.Clock, logger domain.Logger) *StartRun {
	return &StartRun{
		tasks:    tasks,
		sessions: sessions,
		complete: complete,
		bus:      bus,
		clock:    clock,
		logger:   logger,
	}
}

// Execute starts the task's agent session. Starting a task whose
// session is already live returns the existing session ID without
// opening a second stream.
func (uc *StartRun) Execute(ctx context.Context, in StartRunInput) (*StartRunOutput, error) {
	task, err := getTask(uc.tasks, in.ProjectPath, in.TaskID)
	if err != nil {
		return nil, err
	}

	if uc.sessions.Running(task.ID) {
		return &StartRunOutput{SessionID: uc.sessions.SessionID(task.ID)}, nil
	}

	prompt := task.Prompt
	if prompt == "" {
		prompt = task.Description
	}
	if prompt == "" {
		return nil, domain.ErrNoPrompt
	}

	if err := uc.setStatus(in.ProjectPath, task.ID, domain.StatusRunning); err != nil {
		return nil, err
	}
	publishStatus(uc.bus, task.ID, domain.StatusRunning, "")

	workingDir := in.ProjectPath
	if task.HasWorktree() {
		workingDir = task.Worktree.Path
	}

	sessionID, started, err := uc.sessions.Start(ctx, session.StartOptions{
		ProjectPath:     in.ProjectPath,
		TaskID:          task.ID,
		WorkingDir:      workingDir,
		Prompt:          prompt,
		ResumeSessionID: task.SessionID,
		Sink:            uc.sink(in.ProjectPath, task.ID),
	})
	if err != nil {
		// No partial session is left registered; surface the failure.
		if stErr := uc.setStatus(in.ProjectPath, task.ID, domain.StatusFailed); stErr != nil {
			uc.logger.Error(task.ID, "run", fmt.Sprintf("mark failed: %v", stErr))
		}
		publishStatus(uc.bus, task.ID, domain.StatusFailed, "")
		return nil, fmt.Errorf("start session: %w", err)
	}

	if sessionID != "" {
		if err := uc.tasks.Mutate(in.ProjectPath, func(board *domain.Board) error {
			if current, ok := board.Tasks[task.ID]; ok {
				current.SessionID = sessionID
			}
			return nil
		}); err != nil {
			uc.logger.Warn(task.ID, "run", fmt.Sprintf("record session id: %v", err))
		}
	}

	uc.bus.Publish(domain.Event{Type: domain.EventSessionStart, TaskID: task.ID, SessionID: sessionID})
	return &StartRunOutput{SessionID: sessionID, Started: started}, nil
}

// sink forwards stream events to the bus and applies the terminal
// result to the board.
func (uc *StartRun) sink(projectPath, taskID string) session.Sink {
	return func(ev domain.AgentEvent) {
		switch ev.Type {
		case domain.AgentEventText:
			uc.bus.Publish(domain.Event{Type: domain.EventOutput, TaskID: taskID, Output: ev.Text})
		case domain.AgentEventToolCallStart:
			if ev.ToolCall != nil {
				uc.bus.Publish(domain.Event{Type: domain.EventOutput, TaskID: taskID, Output: "\n[tool] " + ev.ToolCall.Name + "\n"})
			}
		case domain.AgentEventResult:
			res := ev.Result
			if res == nil {
				res = &domain.AgentResult{}
			}
			_, err := uc.complete.Execute(context.Background(), CompleteRunInput{
				ProjectPath: projectPath,
				TaskID:      taskID,
				Failed:      res.IsError,
				ErrMessage:  res.ErrMessage,
				Structured:  res.Structured,
			})
			if err != nil {
				uc.logger.Error(taskID, "run", fmt.Sprintf("apply completion: %v", err))
			}
		}
	}
}

func (uc *StartRun) setStatus(projectPath, taskID string, status domain.Status) error {
	return uc.tasks.Mutate(projectPath, func(board *domain.Board) error {
		current, ok := board.Tasks[taskID]
		if !ok {
			return domain.ErrTaskNotFound
		}
		if current.Status != status && !current.Status.CanTransitionTo(status) {
			return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidStatus, current.Status, status)
		}
		current.Status = status
		current.UpdatedAt = uc.clock.Now()
		return nil
	})
}
