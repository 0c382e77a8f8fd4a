package usecase

import (
	"context"
	"fmt"
	"strings"

	"github.com/taskdeck/taskdeck/internal/domain"
	"github.com/taskdeck/taskdeck/internal/session"
	"github.com/taskdeck/taskdeck/internal/stream"
)

// DesignRunInput contains the parameters for a design run.
type DesignRunInput struct {
	ProjectPath string
	TaskID      string
	BaseBranch  string // base branch used when the follow-up move creates a worktree
}

// DesignRunOutput contains the started session identity.
type DesignRunOutput struct {
	SessionID string
}

// DesignRun drives a design-lane conversation turn: the agent drafts a
// design document, which is saved as the task's design artifact. A
// successful run advances the task from design to develop.
type DesignRun struct {
	tasks     domain.TaskRepository
	sessions  *session.Manager
	artifacts domain.ArtifactStore
	relay     *stream.Relay
	move      *MoveTask
	bus       domain.EventBus
	clock     domain.Clock
	logger    domain.Logger
}

// NewDesignRun creates a new DesignRun use case.
func NewDesignRun(tasks domain.TaskRepository, sessions *session.Manager, artifacts domain.ArtifactStore, relay *stream.Relay, move *MoveTask, bus domain.EventBus, clock domain.Clock, logger domain.Logger) *DesignRun {
	return &DesignRun{
		tasks:     tasks,
		sessions:  sessions,
		artifacts: artifacts,
		relay:     relay,
		move:      move,
		bus:       bus,
		clock:     clock,
		logger:    logger,
	}
}

// Execute starts a design run. A task with a live session cannot start
// another conversation turn.
func (uc *DesignRun) Execute(ctx context.Context, in DesignRunInput) (*DesignRunOutput, error) {
	task, err := getTask(uc.tasks, in.ProjectPath, in.TaskID)
	if err != nil {
		return nil, err
	}
	if uc.sessions.Running(task.ID) {
		return nil, domain.ErrSessionRunning
	}
	if task.Title == "" && task.Description == "" && task.Prompt == "" {
		return nil, domain.ErrNoPrompt
	}

	prompt := designPrompt(task)
	if err := uc.relay.RecordUser(in.ProjectPath, task.ID, prompt, "design"); err != nil {
		return nil, fmt.Errorf("persist user message: %w", err)
	}

	if err := uc.setStatus(in.ProjectPath, task.ID, domain.StatusRunning); err != nil {
		return nil, err
	}
	publishStatus(uc.bus, task.ID, domain.StatusRunning, "")

	turn := uc.relay.NewTurn(in.ProjectPath, task.ID)
	var body strings.Builder

	sessionID, _, err := uc.sessions.Start(ctx, session.StartOptions{
		ProjectPath:     in.ProjectPath,
		TaskID:          task.ID,
		WorkingDir:      in.ProjectPath,
		Prompt:          prompt,
		ResumeSessionID: task.SessionID,
		Sink: func(ev domain.AgentEvent) {
			if ev.Type == domain.AgentEventText {
				body.WriteString(ev.Text)
			}
			turn.Handle(ev)
			if ev.Type == domain.AgentEventResult {
				uc.finish(in, task.Title, body.String(), ev.Result, turn)
			}
		},
	})
	if err != nil {
		turn.Fail(err.Error())
		if stErr := uc.setStatus(in.ProjectPath, task.ID, domain.StatusFailed); stErr != nil {
			uc.logger.Error(task.ID, "design", fmt.Sprintf("mark failed: %v", stErr))
		}
		publishStatus(uc.bus, task.ID, domain.StatusFailed, "")
		return nil, fmt.Errorf("start session: %w", err)
	}

	uc.recordSessionID(in.ProjectPath, task.ID, sessionID)
	uc.bus.Publish(domain.Event{Type: domain.EventSessionStart, TaskID: task.ID, SessionID: sessionID})
	return &DesignRunOutput{SessionID: sessionID}, nil
}

// finish applies the design run's terminal result: on success the
// accumulated text becomes the design artifact and the task advances to
// develop; on error the turn has already been aborted by Handle.
func (uc *DesignRun) finish(in DesignRunInput, title, body string, res *domain.AgentResult, turn *stream.Turn) {
	if res != nil && res.IsError {
		if err := uc.setStatus(in.ProjectPath, in.TaskID, domain.StatusFailed); err != nil {
			uc.logger.Error(in.TaskID, "design", fmt.Sprintf("mark failed: %v", err))
		}
		publishStatus(uc.bus, in.TaskID, domain.StatusFailed, "")
		uc.bus.Publish(domain.Event{Type: domain.EventError, TaskID: in.TaskID, Message: res.ErrMessage})
		return
	}

	designPath, err := uc.artifacts.WriteDesign(in.ProjectPath, in.TaskID, title, body)
	if err != nil {
		uc.logger.Error(in.TaskID, "design", fmt.Sprintf("write artifact: %v", err))
		turn.Fail("failed to save design: " + err.Error())
		return
	}

	err = uc.tasks.Mutate(in.ProjectPath, func(board *domain.Board) error {
		current, ok := board.Tasks[in.TaskID]
		if !ok {
			return domain.ErrTaskNotFound
		}
		current.DesignPath = designPath
		current.Status = domain.StatusIdle
		current.UpdatedAt = uc.clock.Now()
		return nil
	})
	if err != nil {
		uc.logger.Error(in.TaskID, "design", fmt.Sprintf("save design path: %v", err))
		turn.Fail("failed to record design: " + err.Error())
		return
	}

	if _, err := uc.move.Execute(context.Background(), MoveTaskInput{
		ProjectPath: in.ProjectPath,
		TaskID:      in.TaskID,
		ToLane:      domain.LaneDevelop,
		BaseBranch:  in.BaseBranch,
	}); err != nil {
		// The artifact is saved; the task just stays in design.
		uc.logger.Warn(in.TaskID, "design", fmt.Sprintf("advance to develop: %v", err))
	}

	turn.CompleteDesign(designPath)
	uc.logger.Info(in.TaskID, "design", "design saved: "+designPath)
}

func (uc *DesignRun) setStatus(projectPath, taskID string, status domain.Status) error {
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

func (uc *DesignRun) recordSessionID(projectPath, taskID, sessionID string) {
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
		uc.logger.Warn(taskID, "design", fmt.Sprintf("record session id: %v", err))
	}
}

// designPrompt renders the instruction turn for a design run.
func designPrompt(task *domain.Task) string {
	var b strings.Builder
	b.WriteString("Draft a design document for the following task.\n\n")
	b.WriteString("Task: " + task.Title + "\n")
	if task.Description != "" {
		b.WriteString("\nDescription:\n" + task.Description + "\n")
	}
	if task.Prompt != "" {
		b.WriteString("\nAdditional instructions:\n" + task.Prompt + "\n")
	}
	b.WriteString("\nRespond with the design document in markdown. Cover the approach, " +
		"the affected components, and any open risks. Do not modify files.")
	return b.String()
}
