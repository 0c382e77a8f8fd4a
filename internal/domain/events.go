package domain

// EventType discriminates events published on the in-process bus.
type EventType string

// Bus event types. Each event carries a task ID and is filtered by the
// gateway to the clients attached to that task.
const (
	EventOutput           EventType = "output"
	EventLog              EventType = "log"
	EventError            EventType = "error"
	EventStatusUpdate     EventType = "statusUpdate"
	EventSessionStart     EventType = "sessionStart"
	EventStructuredOutput EventType = "structuredOutput"
	EventConversation     EventType = "conversation"
)

// Event is the tagged union published on the bus.
// Type selects which payload fields are meaningful:
//   - output: Output
//   - log, error: Message
//   - statusUpdate: Status, MoveTo (optional lane advance)
//   - sessionStart: SessionID
//   - structuredOutput: Structured
//   - conversation: Frame
type Event struct {
	Structured *StructuredOutput
	Frame      *ConversationFrame
	TaskID     string
	Type       EventType
	Output     string
	Message    string
	Status     Status
	MoveTo     LaneID
	SessionID  string
}

// FrameType discriminates conversation protocol frames.
type FrameType string

// Conversation protocol frame types.
const (
	FrameChunkStart      FrameType = "chunk_start"
	FrameChunk           FrameType = "chunk"
	FrameChunkEnd        FrameType = "chunk_end"
	FrameThinking        FrameType = "thinking"
	FrameToolCallStart   FrameType = "tool_call_start"
	FrameToolCallOutput  FrameType = "tool_call_output"
	FrameToolCallEnd     FrameType = "tool_call_end"
	FrameError           FrameType = "error"
	FrameDesignComplete  FrameType = "design_complete"
	FrameExecuteComplete FrameType = "execute_complete"
)

// ConversationFrame is one live protocol frame for a streamed turn.
// The persistence layer writes the corresponding message before (or
// atomically with) the frame being published.
type ConversationFrame struct {
	ToolCall         *ToolCall         `json:"toolCall,omitempty"`
	StructuredOutput *StructuredOutput `json:"structuredOutput,omitempty"`
	Type             FrameType         `json:"type"`
	MessageID        string            `json:"messageId,omitempty"`
	GroupID          string            `json:"groupId,omitempty"`
	Content          string            `json:"content,omitempty"`
	Error            string            `json:"error,omitempty"`
	DesignPath       string            `json:"designPath,omitempty"`
}
