package usecase

import (
	"context"
	"fmt"

	"github.com/taskdeck/taskdeck/internal/domain"
	"github.com/taskdeck/taskdeck/internal/session"
	"github.com/taskdeck/taskdeck/internal/stream"
)

// SendInputInput contains a user turn for a running session.
type SendInputInput struct {
	ProjectPath string
	TaskID      string
	Text        string
	Command     string // slash command metadata, if the turn came from one
}

// SendInputOutput contains the result of sending input.
type SendInputOutput struct{}

// SendInput forwards user text into a task's live session, persisting
// it to the conversation log first.
type SendInput struct {
	tasks    domain.TaskRepository
	sessions *session.Manager
	relay    *stream.Relay
}

// NewSendInput creates a new SendInput use case.
func NewSendInput(tasks domain.TaskRepository, sessions *session.Manager, relay *stream.Relay) *SendInput {
	return &SendInput{tasks: tasks, sessions: sessions, relay: relay}
}

// Execute enqueues a user turn. The message is persisted before the
// runtime sees it, so history survives even if the send fails.
func (uc *SendInput) Execute(ctx context.Context, in SendInputInput) (*SendInputOutput, error) {
	task, err := getTask(uc.tasks, in.ProjectPath, in.TaskID)
	if err != nil {
		return nil, err
	}

	if err := uc.relay.RecordUser(in.ProjectPath, task.ID, in.Text, in.Command); err != nil {
		return nil, fmt.Errorf("persist user message: %w", err)
	}

	if err := uc.sessions.Send(ctx, task.ID, in.Text); err != nil {
		return nil, err
	}
	return &SendInputOutput{}, nil
}
