package domain

// AgentEventType discriminates events arriving from the agent runtime.
// The external stream's vocabulary is converted into this closed union at
// the runtime boundary and never propagated further into the system.
type AgentEventType string

// Agent runtime event types.
const (
	AgentEventSession       AgentEventType = "session"         // carries the external session id
	AgentEventText          AgentEventType = "text"            // assistant text delta
	AgentEventThinking      AgentEventType = "thinking"        // reasoning-trace delta
	AgentEventToolCallStart AgentEventType = "tool_call_start" // tool invocation opened
	AgentEventToolCallEnd   AgentEventType = "tool_call_end"   // tool invocation resolved
	AgentEventResult        AgentEventType = "result"          // terminal event for the run
)

// AgentToolCall carries tool invocation details from the runtime.
type AgentToolCall struct {
	ID     string
	Name   string
	Input  string
	Output string
	Failed bool
}

// AgentResult is the terminal payload of a run.
type AgentResult struct {
	Structured *StructuredOutput // schema-validated payload, if the run produced one
	ErrMessage string            // non-empty when IsError
	IsError    bool
}

// AgentEvent is one event from the external agent stream.
// Type selects which payload fields are meaningful.
type AgentEvent struct {
	ToolCall  *AgentToolCall
	Result    *AgentResult
	Type      AgentEventType
	SessionID string
	Text      string
}
