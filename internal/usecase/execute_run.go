package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/taskdeck/taskdeck/internal/domain"
	"github.com/taskdeck/taskdeck/internal/session"
	"github.com/taskdeck/taskdeck/internal/stream"
)

// ExecuteRunInput contains the parameters for an execute run.
type ExecuteRunInput struct {
	ProjectPath string
	TaskID      string
}

// ExecuteRunOutput contains the started session identity.
type ExecuteRunOutput struct {
	SessionID string
}

// ExecuteRun drives an implementation turn against the task's design:
// the agent works inside the task worktree and reports a structured
// summary, which completion folds into the board.
type ExecuteRun struct {
	tasks     domain.TaskRepository
	sessions  *session.Manager
	artifacts domain.ArtifactStore
	relay     *stream.Relay
	complete  *CompleteRun
	bus       domain.EventBus
	clock     domain.Clock
	logger    domain.Logger
}

// NewExecuteRun creates a new ExecuteRun use case.
func NewExecuteRun(tasks domain.TaskRepository, sessions *session.Manager, artifacts domain.ArtifactStore, relay *stream.Relay, complete *CompleteRun, bus domain.EventBus, clock domain.Clock, logger domain.Logger) *ExecuteRun {
	return &ExecuteRun{
		tasks:     tasks,
		sessions:  sessions,
		artifacts: artifacts,
		relay:     relay,
		complete:  complete,
		bus:       bus,
		clock:     clock,
		logger:    logger,
	}
}

// Execute starts an execute run. The design artifact is the primary
// instruction source; tasks without one fall back to their prompt.
func (uc *ExecuteRun) Execute(ctx context.Context, in ExecuteRunInput) (*ExecuteRunOutput, error) {
	task, err := getTask(uc.tasks, in.ProjectPath, in.TaskID)
	if err != nil {
		return nil, err
	}
	if uc.sessions.Running(task.ID) {
		return nil, domain.ErrSessionRunning
	}

	content, err := uc.artifacts.ReadDesign(in.ProjectPath, task.ID)
	if err != nil {
		if !errors.Is(err, domain.ErrNoDesign) {
			return nil, err
		}
		content = task.Prompt
	}
	if content == "" {
		return nil, domain.ErrNoDesign
	}

	prompt := executePrompt(task, content)
	if err := uc.relay.RecordUser(in.ProjectPath, task.ID, prompt, "execute"); err != nil {
		return nil, fmt.Errorf("persist user message: %w", err)
	}

	if err := uc.setStatus(in.ProjectPath, task.ID, domain.StatusRunning); err != nil {
		return nil, err
	}
	publishStatus(uc.bus, task.ID, domain.StatusRunning, "")

	workingDir := in.ProjectPath
	if task.HasWorktree() {
		workingDir = task.Worktree.Path
	}

	turn := uc.relay.NewTurn(in.ProjectPath, task.ID)

	sessionID, _, err := uc.sessions.Start(ctx, session.StartOptions{
		ProjectPath:     in.ProjectPath,
		TaskID:          task.ID,
		WorkingDir:      workingDir,
		Prompt:          prompt,
		OutputSchema:    executeOutputSchema(),
		ResumeSessionID: task.SessionID,
		Sink: func(ev domain.AgentEvent) {
			turn.Handle(ev)
			if ev.Type == domain.AgentEventResult {
				uc.finish(in, ev.Result, turn)
			}
		},
	})
	if err != nil {
		turn.Fail(err.Error())
		if stErr := uc.setStatus(in.ProjectPath, task.ID, domain.StatusFailed); stErr != nil {
			uc.logger.Error(task.ID, "execute", fmt.Sprintf("mark failed: %v", stErr))
		}
		publishStatus(uc.bus, task.ID, domain.StatusFailed, "")
		return nil, fmt.Errorf("start session: %w", err)
	}

	uc.recordSessionID(in.ProjectPath, task.ID, sessionID)
	uc.bus.Publish(domain.Event{Type: domain.EventSessionStart, TaskID: task.ID, SessionID: sessionID})
	return &ExecuteRunOutput{SessionID: sessionID}, nil
}

// finish folds the run's terminal result into the board via CompleteRun
// and closes the conversation turn.
func (uc *ExecuteRun) finish(in ExecuteRunInput, res *domain.AgentResult, turn *stream.Turn) {
	if res == nil {
		res = &domain.AgentResult{}
	}

	out, err := uc.complete.Execute(context.Background(), CompleteRunInput{
		ProjectPath: in.ProjectPath,
		TaskID:      in.TaskID,
		Failed:      res.IsError,
		ErrMessage:  res.ErrMessage,
		Structured:  res.Structured,
	})
	if err != nil {
		uc.logger.Error(in.TaskID, "execute", fmt.Sprintf("apply completion: %v", err))
		return
	}

	if !res.IsError {
		turn.CompleteExecute(out.Task.StructuredOutput)
	}
}

func (uc *ExecuteRun) setStatus(projectPath, taskID string, status domain.Status) error {
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

func (uc *ExecuteRun) recordSessionID(projectPath, taskID, sessionID string) {
	if sessionID == "" {
		return
	}
	err := uc.tasks.Mutate(projectPath, func(board *domain.Board) error {
		if current, ok := board.Tasks[taskID]; ok {
			current.SessionID = sessionID
		}
		return nil
	})
	if err != nil {
		uc.logger.Warn(taskID, "execute", fmt.Sprintf("record session id: %v", err))
	}
}

// executePrompt renders the instruction turn for an execute run.
func executePrompt(task *domain.Task, design string) string {
	var b strings.Builder
	b.WriteString("Implement the following task.\n\n")
	b.WriteString("Task: " + task.Title + "\n")
	if task.Description != "" {
		b.WriteString("\nDescription:\n" + task.Description + "\n")
	}
	b.WriteString("\nDesign:\n" + design + "\n")
	b.WriteString("\nWork in the current directory and commit your changes. " +
		"Finish with a JSON summary matching the requested schema in a ```json fence.")
	return b.String()
}

// executeOutputSchema describes the structured summary an execute run
// reports when it finishes.
func executeOutputSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"summary": map[string]any{
				"type":        "string",
				"description": "One-paragraph summary of what was done",
			},
			"filesChanged": map[string]any{
				"type":  "array",
				"items": map[string]any{"type": "string"},
			},
			"testsRun": map[string]any{
				"type":        "boolean",
				"description": "Whether the test suite was run",
			},
			"notes": map[string]any{
				"type":        "string",
				"description": "Follow-ups or caveats, if any",
			},
		},
		"required": []any{"summary"},
	}
}
