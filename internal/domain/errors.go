package domain

import "errors"

// Domain errors.
var (
	ErrProjectNotFound    = errors.New("project not found")
	ErrTaskNotFound       = errors.New("task not found")
	ErrInvalidLane        = errors.New("invalid lane")
	ErrInvalidStatus      = errors.New("invalid status")
	ErrTaskRunning        = errors.New("task is running")
	ErrSessionRunning     = errors.New("session already running")
	ErrNoSession          = errors.New("no session for task")
	ErrNoPrompt           = errors.New("task has no prompt")
	ErrNoDesign           = errors.New("task has no design to execute")
	ErrNothingToMerge     = errors.New("nothing to merge")
	ErrMergeConflict      = errors.New("merge conflict")
	ErrMergeNotVerified   = errors.New("merge could not be verified")
	ErrEmptyTitle         = errors.New("title cannot be empty")
	ErrConversationClosed = errors.New("conversation stream closed")
)
