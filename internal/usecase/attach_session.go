package usecase

import (
	"context"
	"fmt"

	"github.com/taskdeck/taskdeck/internal/domain"
	"github.com/taskdeck/taskdeck/internal/session"
)

// AttachSessionInput contains the parameters for attaching to a task.
type AttachSessionInput struct {
	ProjectPath string
	TaskID      string
}

// AttachSessionOutput carries the replayable state a late client needs.
type AttachSessionOutput struct {
	SessionID      string
	BufferedOutput string
	Conversation   []domain.ConversationMessage
}

// AttachSession returns the replayable state of a task's session: the
// terminal-style output buffer plus the persisted conversation log. A
// late-attaching client cannot recover missed live frames, so it replays
// from these instead and only then follows the live feed.
type AttachSession struct {
	tasks    domain.TaskRepository
	sessions *session.Manager
	conv     domain.ConversationStore
}

// NewAttachSession creates a new AttachSession use case.
func NewAttachSession(tasks domain.TaskRepository, sessions *session.Manager, conv domain.ConversationStore) *AttachSession {
	return &AttachSession{tasks: tasks, sessions: sessions, conv: conv}
}

// Execute attaches to a task's session. A task mid-initialization
// returns an empty buffer; a task that never had a session is an error.
func (uc *AttachSession) Execute(_ context.Context, in AttachSessionInput) (*AttachSessionOutput, error) {
	task, err := getTask(uc.tasks, in.ProjectPath, in.TaskID)
	if err != nil {
		return nil, err
	}

	output, ok := uc.sessions.Output(task.ID)
	if !ok {
		return nil, domain.ErrNoSession
	}

	log, err := uc.conv.Load(in.ProjectPath, task.ID)
	if err != nil {
		return nil, fmt.Errorf("load conversation: %w", err)
	}

	sessionID := uc.sessions.SessionID(task.ID)
	if sessionID == "" {
		sessionID = task.SessionID
	}
	return &AttachSessionOutput{
		SessionID:      sessionID,
		BufferedOutput: output,
		Conversation:   log.Messages,
	}, nil
}
