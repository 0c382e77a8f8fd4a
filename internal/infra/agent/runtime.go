// Package agent adapts the external ACP agent process to the
// domain.AgentRuntime port. One Open call spawns one agent process and
// speaks the Agent Client Protocol over its stdio; session updates are
// converted into the domain's closed event vocabulary at this boundary.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"

	acpsdk "github.com/coder/acp-go-sdk"

	"github.com/taskdeck/taskdeck/internal/domain"
)

// Runtime implements domain.AgentRuntime by spawning the configured
// agent command per stream.
type Runtime struct {
	logger  domain.Logger
	command string
	args    []string
}

// NewRuntime creates a new Runtime.
func NewRuntime(command string, args []string, logger domain.Logger) *Runtime {
	return &Runtime{
		command: command,
		args:    args,
		logger:  logger,
	}
}

// Ensure Runtime implements domain.AgentRuntime.
var _ domain.AgentRuntime = (*Runtime)(nil)

// Open spawns the agent process, initializes the protocol, creates a
// session, and sends the initial prompt. The returned stream's event
// channel closes when the run terminates.
func (r *Runtime) Open(ctx context.Context, opts domain.OpenStreamOptions) (domain.AgentStream, error) {
	streamCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))

	// #nosec G204 - command comes from trusted configuration
	cmd := exec.CommandContext(streamCtx, r.command, r.args...)
	cmd.Dir = opts.WorkingDir
	cmd.Stderr = os.Stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("create stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("create stdout pipe: %w", err)
	}

	if startErr := cmd.Start(); startErr != nil {
		cancel()
		return nil, fmt.Errorf("start agent process: %w", startErr)
	}

	s := &stream{
		events:  make(chan domain.AgentEvent, 64),
		prompts: make(chan string, 8),
		cancel:  cancel,
		schema:  opts.OutputSchema,
		logger:  r.logger,
	}

	conn := acpsdk.NewClientSideConnection(s, stdin, stdout)
	s.conn = conn

	if _, initErr := conn.Initialize(ctx, acpsdk.InitializeRequest{
		ProtocolVersion: acpsdk.ProtocolVersionNumber,
		ClientCapabilities: acpsdk.ClientCapabilities{
			Fs:       acpsdk.FileSystemCapability{ReadTextFile: false, WriteTextFile: false},
			Terminal: false,
		},
	}); initErr != nil {
		cancel()
		return nil, fmt.Errorf("acp initialize: %w", initErr)
	}

	session, err := conn.NewSession(ctx, acpsdk.NewSessionRequest{
		Cwd:        opts.WorkingDir,
		McpServers: []acpsdk.McpServer{},
	})
	if err != nil {
		cancel()
		return nil, fmt.Errorf("acp new session: %w", err)
	}
	s.sessionID = session.SessionId

	if opts.ResumeSessionID != "" {
		r.logger.Debug("", "agent", "previous session "+opts.ResumeSessionID+" replaced by "+string(session.SessionId))
	}

	s.emit(domain.AgentEvent{Type: domain.AgentEventSession, SessionID: string(session.SessionId)})

	procErrCh := make(chan error, 1)
	go func() { procErrCh <- cmd.Wait() }()

	go s.run(streamCtx, opts.Prompt, procErrCh)

	return s, nil
}

// stream is one live agent run. It implements both domain.AgentStream
// toward the core and acpsdk.Client toward the agent process.
// Fields are ordered to minimize memory padding.
type stream struct {
	conn      *acpsdk.ClientSideConnection
	logger    domain.Logger
	schema    map[string]any
	events    chan domain.AgentEvent
	prompts   chan string
	cancel    context.CancelFunc
	sessionID acpsdk.SessionId
	textBuf   strings.Builder
	mu        sync.Mutex
	// notifyMu serializes inbound session notifications: the SDK dispatches
	// each one on its own goroutine, and textBuf accumulation needs arrival
	// order.
	notifyMu sync.Mutex
	closed   bool
	done     bool
}

var (
	_ domain.AgentStream = (*stream)(nil)
	_ acpsdk.Client      = (*stream)(nil)
)

// Events returns the stream's event channel.
func (s *stream) Events() <-chan domain.AgentEvent {
	return s.events
}

// Send enqueues a user turn into the stream.
func (s *stream) Send(ctx context.Context, text string) error {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return domain.ErrConversationClosed
	}
	select {
	case s.prompts <- text:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close cancels the in-flight turn and tears down the agent process.
// Safe to call more than once.
func (s *stream) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	_ = s.conn.Cancel(context.Background(), acpsdk.CancelNotification{SessionId: s.sessionID})
	s.cancel()
	return nil
}

// run owns the connection: it sends the initial prompt, then serves
// follow-up turns until the stream is closed or the process exits.
func (s *stream) run(ctx context.Context, initialPrompt string, procErrCh <-chan error) {
	defer func() {
		s.cancel()
		s.finish()
	}()

	if initialPrompt != "" {
		if done := s.turn(ctx, initialPrompt); done {
			return
		}
	}

	for {
		select {
		case text := <-s.prompts:
			if done := s.turn(ctx, text); done {
				return
			}
		case err := <-procErrCh:
			if err != nil && ctx.Err() == nil {
				s.emit(domain.AgentEvent{
					Type:   domain.AgentEventResult,
					Result: &domain.AgentResult{IsError: true, ErrMessage: "agent process exited: " + err.Error()},
				})
			}
			return
		case <-s.conn.Done():
			return
		case <-ctx.Done():
			return
		}
	}
}

// turn runs one prompt to completion and emits the terminal result
// event. Returns true when the stream should end.
func (s *stream) turn(ctx context.Context, text string) bool {
	s.notifyMu.Lock()
	s.textBuf.Reset()
	s.notifyMu.Unlock()

	resp, err := s.conn.Prompt(ctx, acpsdk.PromptRequest{
		SessionId: s.sessionID,
		Prompt:    []acpsdk.ContentBlock{acpsdk.TextBlock(text)},
	})
	if err != nil {
		if ctx.Err() != nil {
			return true
		}
		s.emit(domain.AgentEvent{
			Type:   domain.AgentEventResult,
			Result: &domain.AgentResult{IsError: true, ErrMessage: err.Error()},
		})
		return true
	}

	result := &domain.AgentResult{}
	if resp.StopReason != acpsdk.StopReasonEndTurn {
		result.IsError = true
		result.ErrMessage = "agent stopped: " + string(resp.StopReason)
	} else if s.schema != nil {
		s.notifyMu.Lock()
		body := s.textBuf.String()
		s.notifyMu.Unlock()
		result.Structured = extractStructured(body)
	}
	s.emit(domain.AgentEvent{Type: domain.AgentEventResult, Result: result})
	return false
}

func (s *stream) emit(ev domain.AgentEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return
	}
	select {
	case s.events <- ev:
	default:
		// Consumer gone or hopelessly behind; drop rather than wedge
		// the protocol connection.
		s.logger.Warn("", "agent", "dropped agent event: "+string(ev.Type))
	}
}

func (s *stream) finish() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return
	}
	s.done = true
	s.closed = true
	close(s.events)
}

// toolCallPayload is the wire shape shared by tool_call and
// tool_call_update notifications.
type toolCallPayload struct {
	ToolCallID string `json:"toolCallId"`
	Title      string `json:"title"`
	Kind       string `json:"kind"`
	Status     string `json:"status"`
	RawInput   any    `json:"rawInput"`
	RawOutput  any    `json:"rawOutput"`
}

func decodeToolCall(v any) (toolCallPayload, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return toolCallPayload{}, err
	}
	var p toolCallPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return toolCallPayload{}, err
	}
	return p, nil
}

func compactJSON(v any) string {
	if v == nil {
		return ""
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(raw)
}

// SessionUpdate converts protocol notifications into domain events.
// The SDK invokes it from a fresh goroutine per notification; notifyMu
// keeps handling in arrival order and guards textBuf.
func (s *stream) SessionUpdate(_ context.Context, params acpsdk.SessionNotification) error {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	update := params.Update
	switch {
	case update.AgentMessageChunk != nil:
		if update.AgentMessageChunk.Content.Text != nil {
			text := update.AgentMessageChunk.Content.Text.Text
			s.textBuf.WriteString(text)
			s.emit(domain.AgentEvent{Type: domain.AgentEventText, Text: text})
		}
	case update.AgentThoughtChunk != nil:
		if update.AgentThoughtChunk.Content.Text != nil {
			s.emit(domain.AgentEvent{Type: domain.AgentEventThinking, Text: update.AgentThoughtChunk.Content.Text.Text})
		}
	case update.ToolCall != nil:
		p, err := decodeToolCall(update.ToolCall)
		if err != nil {
			s.logger.Warn("", "agent", "decode tool_call: "+err.Error())
			return nil
		}
		s.emit(domain.AgentEvent{
			Type: domain.AgentEventToolCallStart,
			ToolCall: &domain.AgentToolCall{
				ID:    p.ToolCallID,
				Name:  p.Title,
				Input: compactJSON(p.RawInput),
			},
		})
	case update.ToolCallUpdate != nil:
		p, err := decodeToolCall(update.ToolCallUpdate)
		if err != nil {
			s.logger.Warn("", "agent", "decode tool_call_update: "+err.Error())
			return nil
		}
		if p.Status != "completed" && p.Status != "failed" {
			return nil
		}
		s.emit(domain.AgentEvent{
			Type: domain.AgentEventToolCallEnd,
			ToolCall: &domain.AgentToolCall{
				ID:     p.ToolCallID,
				Name:   p.Title,
				Output: compactJSON(p.RawOutput),
				Failed: p.Status == "failed",
			},
		})
	}
	return nil
}

// RequestPermission auto-approves: sessions run headless inside task
// worktrees, so the first allow-kind option is selected. Without one
// the request is cancelled.
func (s *stream) RequestPermission(_ context.Context, params acpsdk.RequestPermissionRequest) (acpsdk.RequestPermissionResponse, error) {
	for _, opt := range params.Options {
		kind := string(opt.Kind)
		if kind == "allow_once" || kind == "allow_always" {
			return acpsdk.RequestPermissionResponse{
				Outcome: acpsdk.RequestPermissionOutcome{
					Selected: &acpsdk.RequestPermissionOutcomeSelected{
						OptionId: opt.OptionId,
						Outcome:  "selected",
					},
				},
			}, nil
		}
	}
	return acpsdk.RequestPermissionResponse{
		Outcome: acpsdk.RequestPermissionOutcome{
			Cancelled: &acpsdk.RequestPermissionOutcomeCancelled{Outcome: "cancelled"},
		},
	}, nil
}

func (s *stream) WriteTextFile(_ context.Context, _ acpsdk.WriteTextFileRequest) (acpsdk.WriteTextFileResponse, error) {
	return acpsdk.WriteTextFileResponse{}, acpsdk.NewMethodNotFound(acpsdk.ClientMethodFsWriteTextFile)
}

func (s *stream) ReadTextFile(_ context.Context, _ acpsdk.ReadTextFileRequest) (acpsdk.ReadTextFileResponse, error) {
	return acpsdk.ReadTextFileResponse{}, acpsdk.NewMethodNotFound(acpsdk.ClientMethodFsReadTextFile)
}

func (s *stream) CreateTerminal(_ context.Context, _ acpsdk.CreateTerminalRequest) (acpsdk.CreateTerminalResponse, error) {
	return acpsdk.CreateTerminalResponse{}, acpsdk.NewMethodNotFound(acpsdk.ClientMethodTerminalCreate)
}

func (s *stream) TerminalOutput(_ context.Context, _ acpsdk.TerminalOutputRequest) (acpsdk.TerminalOutputResponse, error) {
	return acpsdk.TerminalOutputResponse{}, acpsdk.NewMethodNotFound(acpsdk.ClientMethodTerminalOutput)
}

func (s *stream) ReleaseTerminal(_ context.Context, _ acpsdk.ReleaseTerminalRequest) (acpsdk.ReleaseTerminalResponse, error) {
	return acpsdk.ReleaseTerminalResponse{}, acpsdk.NewMethodNotFound(acpsdk.ClientMethodTerminalRelease)
}

func (s *stream) WaitForTerminalExit(_ context.Context, _ acpsdk.WaitForTerminalExitRequest) (acpsdk.WaitForTerminalExitResponse, error) {
	return acpsdk.WaitForTerminalExitResponse{}, acpsdk.NewMethodNotFound(acpsdk.ClientMethodTerminalWaitForExit)
}

func (s *stream) KillTerminalCommand(_ context.Context, _ acpsdk.KillTerminalCommandRequest) (acpsdk.KillTerminalCommandResponse, error) {
	return acpsdk.KillTerminalCommandResponse{}, acpsdk.NewMethodNotFound(acpsdk.ClientMethodTerminalKill)
}
