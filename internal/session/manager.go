// Package session tracks live agent sessions, one per task. The manager
// owns each session's consume loop and keeps the accumulated output
// buffer readable after the session finishes, so late attachers can
// replay what they missed.
package session

import (
	"context"
	"strings"
	"sync"

	"github.com/taskdeck/taskdeck/internal/domain"
)

// Sink receives every event of a session's stream, in arrival order,
// from the session's consume goroutine.
type Sink func(ev domain.AgentEvent)

// StartOptions configures a session start.
type StartOptions struct {
	Sink            Sink
	OnClosed        func()
	OutputSchema    map[string]any
	ProjectPath     string
	TaskID          string
	WorkingDir      string
	Prompt          string
	ResumeSessionID string
}

// Session is one live or finished agent session.
// Fields are ordered to minimize memory padding.
type Session struct {
	stream    domain.AgentStream
	buf       strings.Builder
	TaskID    string
	SessionID string
	mu        sync.Mutex
	running   bool
}

// Manager implements the session table.
type Manager struct {
	runtime      domain.AgentRuntime
	logger       domain.Logger
	sessions     map[string]*Session
	initializing map[string]struct{}
	mu           sync.Mutex
}

// NewManager creates a new Manager.
func NewManager(runtime domain.AgentRuntime, logger domain.Logger) *Manager {
	return &Manager{
		runtime:      runtime,
		logger:       logger,
		sessions:     make(map[string]*Session),
		initializing: make(map[string]struct{}),
	}
}

// Start opens an agent session for a task. Starting a task whose session
// is already live is a no-op returning the existing session ID. A start
// racing another start of the same task yields to the first caller.
func (m *Manager) Start(ctx context.Context, opts StartOptions) (sessionID string, started bool, err error) {
	m.mu.Lock()
	if existing, ok := m.sessions[opts.TaskID]; ok && existing.Running() {
		m.mu.Unlock()
		return existing.SessionID, false, nil
	}
	if _, busy := m.initializing[opts.TaskID]; busy {
		m.mu.Unlock()
		return "", false, nil
	}
	m.initializing[opts.TaskID] = struct{}{}
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		delete(m.initializing, opts.TaskID)
		m.mu.Unlock()
	}()

	stream, err := m.runtime.Open(ctx, domain.OpenStreamOptions{
		WorkingDir:      opts.WorkingDir,
		Prompt:          opts.Prompt,
		OutputSchema:    opts.OutputSchema,
		ResumeSessionID: opts.ResumeSessionID,
	})
	if err != nil {
		return "", false, err
	}

	sess := &Session{
		TaskID:  opts.TaskID,
		stream:  stream,
		running: true,
	}

	// The runtime's first event carries the external session ID.
	if ev, ok := <-stream.Events(); ok && ev.Type == domain.AgentEventSession {
		sess.SessionID = ev.SessionID
	}

	m.mu.Lock()
	m.sessions[opts.TaskID] = sess
	m.mu.Unlock()

	go m.consume(sess, opts)

	m.logger.Info(opts.TaskID, "session", "session started: "+sess.SessionID)
	return sess.SessionID, true, nil
}

// consume drains the stream into the session buffer and the sink. The
// buffer outlives the stream.
func (m *Manager) consume(sess *Session, opts StartOptions) {
	for ev := range sess.stream.Events() {
		if line := bufferLine(ev); line != "" {
			sess.mu.Lock()
			sess.buf.WriteString(line)
			sess.mu.Unlock()
		}
		if opts.Sink != nil {
			opts.Sink(ev)
		}
	}

	sess.mu.Lock()
	sess.running = false
	sess.mu.Unlock()

	m.logger.Info(sess.TaskID, "session", "session ended: "+sess.SessionID)
	if opts.OnClosed != nil {
		opts.OnClosed()
	}
}

// Running reports whether a task has a live session.
func (m *Manager) Running(taskID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, busy := m.initializing[taskID]; busy {
		return true
	}
	sess, ok := m.sessions[taskID]
	return ok && sess.Running()
}

// SessionID returns the external session ID for a task, if any.
func (m *Manager) SessionID(taskID string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if sess, ok := m.sessions[taskID]; ok {
		return sess.SessionID
	}
	return ""
}

// Output returns the accumulated output for a task. The second return
// is false only when no session was ever started for the task. A task
// mid-initialization reports ("", true).
func (m *Manager) Output(taskID string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if sess, ok := m.sessions[taskID]; ok {
		return sess.Output(), true
	}
	if _, busy := m.initializing[taskID]; busy {
		return "", true
	}
	return "", false
}

// Send forwards user input into the task's live session.
func (m *Manager) Send(ctx context.Context, taskID, text string) error {
	m.mu.Lock()
	sess, ok := m.sessions[taskID]
	m.mu.Unlock()
	if !ok || !sess.Running() {
		return domain.ErrNoSession
	}
	return sess.stream.Send(ctx, text)
}

// Stop tears down the task's live session. The output buffer is kept.
// Stopping a task without a live session is a no-op.
func (m *Manager) Stop(taskID string) error {
	m.mu.Lock()
	sess, ok := m.sessions[taskID]
	m.mu.Unlock()
	if !ok || !sess.Running() {
		return nil
	}
	m.logger.Info(taskID, "session", "stopping session")
	return sess.stream.Close()
}

// StopAll tears down every live session. Used on daemon shutdown.
func (m *Manager) StopAll() {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, sess := range m.sessions {
		sessions = append(sessions, sess)
	}
	m.mu.Unlock()

	for _, sess := range sessions {
		if sess.Running() {
			_ = sess.stream.Close()
		}
	}
}

// bufferLine renders an event for the terminal-style replay buffer.
// Text passes through; tool events become marker lines; everything else
// is invisible to the buffer.
func bufferLine(ev domain.AgentEvent) string {
	switch ev.Type {
	case domain.AgentEventText:
		return ev.Text
	case domain.AgentEventToolCallStart:
		if ev.ToolCall != nil {
			return "\n[tool] " + ev.ToolCall.Name + "\n"
		}
	case domain.AgentEventToolCallEnd:
		if ev.ToolCall != nil && ev.ToolCall.Failed {
			return "[tool failed] " + ev.ToolCall.Name + "\n"
		}
	}
	return ""
}

// Running reports whether the session's stream is still live.
func (s *Session) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Output returns the accumulated text output.
func (s *Session) Output() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.String()
}
