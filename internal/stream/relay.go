// Package stream turns agent events into the conversation protocol:
// every frame's message state is persisted to the conversation log
// before the frame is published on the bus, so a client that reloads
// mid-turn never sees a frame whose message it cannot find.
package stream

import (
	"github.com/google/uuid"

	"github.com/taskdeck/taskdeck/internal/domain"
)

// Relay builds per-turn frame emitters bound to one conversation log.
type Relay struct {
	conv   domain.ConversationStore
	bus    domain.EventBus
	clock  domain.Clock
	logger domain.Logger
}

// NewRelay creates a new Relay.
func NewRelay(conv domain.ConversationStore, bus domain.EventBus, clock domain.Clock, logger domain.Logger) *Relay {
	return &Relay{conv: conv, bus: bus, clock: clock, logger: logger}
}

// Turn tracks one streamed assistant turn for a task. Handle is called
// from a single consume goroutine, in event order.
// Fields are ordered to minimize memory padding.
type Turn struct {
	relay       *Relay
	toolMsgs    map[string]string
	projectPath string
	taskID      string
	groupID     string
	textMsgID   string
	started     bool
	finished    bool
}

// NewTurn starts tracking a streamed turn.
func (r *Relay) NewTurn(projectPath, taskID string) *Turn {
	return &Turn{
		relay:       r,
		projectPath: projectPath,
		taskID:      taskID,
		groupID:     uuid.NewString(),
		toolMsgs:    make(map[string]string),
	}
}

// RecordUser persists a user message. Command is kept separately from
// the rendered content so history replays can distinguish slash
// commands from plain prompts.
func (r *Relay) RecordUser(projectPath, taskID, content, command string) error {
	return r.conv.Append(projectPath, taskID, domain.ConversationMessage{
		ID:        uuid.NewString(),
		Role:      domain.RoleUser,
		Content:   content,
		Command:   command,
		Timestamp: r.clock.Now(),
	})
}

// RecordSystem persists a system message and returns its ID.
func (r *Relay) RecordSystem(projectPath, taskID, content string, severity domain.Severity) (string, error) {
	id := uuid.NewString()
	err := r.conv.Append(projectPath, taskID, domain.ConversationMessage{
		ID:        id,
		Role:      domain.RoleSystem,
		Content:   content,
		Severity:  severity,
		Timestamp: r.clock.Now(),
	})
	return id, err
}

// Handle converts one agent event into persisted state plus a frame.
// Unknown or post-completion events are dropped.
func (t *Turn) Handle(ev domain.AgentEvent) {
	if t.finished {
		return
	}
	switch ev.Type {
	case domain.AgentEventText:
		t.handleText(ev.Text)
	case domain.AgentEventThinking:
		t.handleThinking(ev.Text)
	case domain.AgentEventToolCallStart:
		t.handleToolStart(ev.ToolCall)
	case domain.AgentEventToolCallEnd:
		t.handleToolEnd(ev.ToolCall)
	case domain.AgentEventResult:
		t.handleResult(ev.Result)
	case domain.AgentEventSession:
		// Session identity is handled by the session manager.
	}
}

func (t *Turn) handleText(delta string) {
	first := t.textMsgID == ""
	if first {
		t.textMsgID = uuid.NewString()
		err := t.relay.conv.Append(t.projectPath, t.taskID, domain.ConversationMessage{
			ID:        t.textMsgID,
			Role:      domain.RoleAssistant,
			GroupID:   t.groupID,
			Stream:    domain.StreamStreaming,
			Timestamp: t.relay.clock.Now(),
		})
		if err != nil {
			t.warn("persist chunk_start", err)
			return
		}
	}

	if err := t.update(t.textMsgID, func(msg *domain.ConversationMessage) {
		msg.Content += delta
	}); err != nil {
		t.warn("persist chunk", err)
		return
	}

	if first {
		t.publish(domain.ConversationFrame{
			Type:      domain.FrameChunkStart,
			MessageID: t.textMsgID,
			GroupID:   t.groupID,
		})
	}
	t.publish(domain.ConversationFrame{
		Type:      domain.FrameChunk,
		MessageID: t.textMsgID,
		GroupID:   t.groupID,
		Content:   delta,
	})
	t.started = true
}

func (t *Turn) handleThinking(delta string) {
	if t.textMsgID == "" {
		// Thinking can precede the first text chunk; anchor it to the
		// message the chunks will use.
		t.textMsgID = uuid.NewString()
		err := t.relay.conv.Append(t.projectPath, t.taskID, domain.ConversationMessage{
			ID:        t.textMsgID,
			Role:      domain.RoleAssistant,
			GroupID:   t.groupID,
			Stream:    domain.StreamStreaming,
			Timestamp: t.relay.clock.Now(),
		})
		if err != nil {
			t.warn("persist thinking", err)
			return
		}
		t.publish(domain.ConversationFrame{
			Type:      domain.FrameChunkStart,
			MessageID: t.textMsgID,
			GroupID:   t.groupID,
		})
	}

	if err := t.update(t.textMsgID, func(msg *domain.ConversationMessage) {
		msg.Thinking += delta
	}); err != nil {
		t.warn("persist thinking", err)
		return
	}
	t.publish(domain.ConversationFrame{
		Type:      domain.FrameThinking,
		MessageID: t.textMsgID,
		GroupID:   t.groupID,
		Content:   delta,
	})
}

func (t *Turn) handleToolStart(tc *domain.AgentToolCall) {
	if tc == nil {
		return
	}
	msgID := uuid.NewString()
	t.toolMsgs[tc.ID] = msgID

	call := &domain.ToolCall{Name: tc.Name, Input: tc.Input, Status: domain.ToolCallPending}
	err := t.relay.conv.Append(t.projectPath, t.taskID, domain.ConversationMessage{
		ID:        msgID,
		Role:      domain.RoleAssistant,
		GroupID:   t.groupID,
		ToolCall:  call,
		Timestamp: t.relay.clock.Now(),
	})
	if err != nil {
		t.warn("persist tool_call_start", err)
		return
	}
	t.publish(domain.ConversationFrame{
		Type:      domain.FrameToolCallStart,
		MessageID: msgID,
		GroupID:   t.groupID,
		ToolCall:  call,
	})
}

func (t *Turn) handleToolEnd(tc *domain.AgentToolCall) {
	if tc == nil {
		return
	}
	msgID, ok := t.toolMsgs[tc.ID]
	if !ok {
		// End without a start; record it as a complete call.
		t.handleToolStart(tc)
		msgID = t.toolMsgs[tc.ID]
	}

	status := domain.ToolCallSuccess
	if tc.Failed {
		status = domain.ToolCallError
	}
	var final *domain.ToolCall
	err := t.update(msgID, func(msg *domain.ConversationMessage) {
		if msg.ToolCall == nil {
			msg.ToolCall = &domain.ToolCall{Name: tc.Name}
		}
		msg.ToolCall.Output = tc.Output
		msg.ToolCall.Status = status
		final = msg.ToolCall
	})
	if err != nil {
		t.warn("persist tool_call_end", err)
		return
	}

	if tc.Output != "" {
		t.publish(domain.ConversationFrame{
			Type:      domain.FrameToolCallOutput,
			MessageID: msgID,
			GroupID:   t.groupID,
			Content:   tc.Output,
		})
	}
	t.publish(domain.ConversationFrame{
		Type:      domain.FrameToolCallEnd,
		MessageID: msgID,
		GroupID:   t.groupID,
		ToolCall:  final,
	})
}

func (t *Turn) handleResult(res *domain.AgentResult) {
	if res == nil {
		res = &domain.AgentResult{}
	}
	if res.IsError {
		t.Fail(res.ErrMessage)
		return
	}

	t.finished = true
	if t.textMsgID == "" {
		// No streamed content means no open turn to close.
		return
	}
	if err := t.update(t.textMsgID, func(msg *domain.ConversationMessage) {
		msg.Stream = domain.StreamComplete
	}); err != nil {
		t.warn("persist chunk_end", err)
		return
	}
	t.publish(domain.ConversationFrame{
		Type:      domain.FrameChunkEnd,
		MessageID: t.textMsgID,
		GroupID:   t.groupID,
	})
}

// Fail aborts the turn: the in-flight message is marked errored and an
// error frame is published.
func (t *Turn) Fail(message string) {
	if t.finished {
		return
	}
	t.finished = true

	if t.textMsgID != "" {
		if err := t.update(t.textMsgID, func(msg *domain.ConversationMessage) {
			msg.Stream = domain.StreamError
		}); err != nil {
			t.warn("persist error", err)
		}
	}
	if _, err := t.relay.RecordSystem(t.projectPath, t.taskID, message, domain.SeverityError); err != nil {
		t.warn("persist error", err)
	}
	t.publish(domain.ConversationFrame{
		Type:      domain.FrameError,
		MessageID: t.textMsgID,
		GroupID:   t.groupID,
		Error:     message,
	})
}

// CompleteDesign records the trailing system message for a finished
// design run and publishes the design_complete frame.
func (t *Turn) CompleteDesign(designPath string) {
	msgID, err := t.relay.RecordSystem(t.projectPath, t.taskID, "design saved: "+designPath, domain.SeverityInfo)
	if err != nil {
		t.warn("persist design_complete", err)
		return
	}
	t.publish(domain.ConversationFrame{
		Type:       domain.FrameDesignComplete,
		MessageID:  msgID,
		GroupID:    t.groupID,
		DesignPath: designPath,
	})
}

// CompleteExecute records the trailing system message for a finished
// execute run and publishes the execute_complete frame.
func (t *Turn) CompleteExecute(structured *domain.StructuredOutput) {
	msgID, err := t.relay.RecordSystem(t.projectPath, t.taskID, "execution finished", domain.SeverityInfo)
	if err != nil {
		t.warn("persist execute_complete", err)
		return
	}
	t.publish(domain.ConversationFrame{
		Type:             domain.FrameExecuteComplete,
		MessageID:        msgID,
		GroupID:          t.groupID,
		StructuredOutput: structured,
	})
}

// Finished reports whether the turn has reached a terminal frame.
func (t *Turn) Finished() bool {
	return t.finished
}

func (t *Turn) update(msgID string, fn func(*domain.ConversationMessage)) error {
	return t.relay.conv.Mutate(t.projectPath, t.taskID, func(log *domain.ConversationLog) error {
		msg := log.Find(msgID)
		if msg == nil {
			return domain.ErrConversationClosed
		}
		fn(msg)
		return nil
	})
}

func (t *Turn) publish(frame domain.ConversationFrame) {
	f := frame
	t.relay.bus.Publish(domain.Event{
		Type:   domain.EventConversation,
		TaskID: t.taskID,
		Frame:  &f,
	})
}

func (t *Turn) warn(stage string, err error) {
	t.relay.logger.Warn(t.taskID, "stream", stage+": "+err.Error())
}
