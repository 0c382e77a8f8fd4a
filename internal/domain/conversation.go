package domain

import "time"

// MessageRole discriminates the conversation message union.
type MessageRole string

// Conversation message roles.
const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
	RoleSystem    MessageRole = "system"
)

// StreamState tracks an assistant message across a streamed turn.
type StreamState string

// Assistant message streaming states.
const (
	StreamStreaming StreamState = "streaming"
	StreamComplete  StreamState = "complete"
	StreamError     StreamState = "error"
)

// Severity classifies system messages.
type Severity string

// System message severities.
const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// ToolCallStatus tracks a single tool invocation.
type ToolCallStatus string

// Tool call statuses.
const (
	ToolCallPending ToolCallStatus = "pending"
	ToolCallSuccess ToolCallStatus = "success"
	ToolCallError   ToolCallStatus = "error"
)

// ToolCall records one tool invocation attached to an assistant message.
type ToolCall struct {
	Name   string         `json:"name"`
	Input  string         `json:"input,omitempty"`
	Output string         `json:"output,omitempty"`
	Status ToolCallStatus `json:"status"`
}

// ConversationMessage is a discriminated union over the message roles.
// Role selects which optional fields are meaningful:
//   - user: Content, Command
//   - assistant: Content, Thinking, ToolCall, GroupID, Stream
//   - system: Content, Severity
//
// Messages are append-only and ordered by arrival.
type ConversationMessage struct {
	Timestamp time.Time   `json:"timestamp"`
	ToolCall  *ToolCall   `json:"toolCall,omitempty"`
	ID        string      `json:"id"`
	Role      MessageRole `json:"role"`
	Content   string      `json:"content"`
	Command   string      `json:"command,omitempty"`
	Thinking  string      `json:"thinking,omitempty"`
	GroupID   string      `json:"groupId,omitempty"`
	Stream    StreamState `json:"stream,omitempty"`
	Severity  Severity    `json:"severity,omitempty"`
}

// ConversationLog is the durable, ordered record of all messages for one task.
type ConversationLog struct {
	CreatedAt time.Time             `json:"createdAt"`
	UpdatedAt time.Time             `json:"updatedAt"`
	Messages  []ConversationMessage `json:"messages"`
}

// Find returns a pointer to the message with the given ID, or nil.
func (l *ConversationLog) Find(id string) *ConversationMessage {
	for i := range l.Messages {
		if l.Messages[i].ID == id {
			return &l.Messages[i]
		}
	}
	return nil
}
