// Package gateway is the websocket delivery surface: one bidirectional
// socket per client, inbound JSON commands dispatched to the use cases,
// outbound bus events filtered by the client's attached task set.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/taskdeck/taskdeck/internal/domain"
	"github.com/taskdeck/taskdeck/internal/usecase"
)

const sendBuffer = 256

// Operations groups the use cases the gateway dispatches to.
type Operations struct {
	Start   *usecase.StartRun
	Stop    *usecase.StopRun
	Attach  *usecase.AttachSession
	Input   *usecase.SendInput
	Design  *usecase.DesignRun
	Execute *usecase.ExecuteRun

	// BaseBranch is the configured base branch for worktrees created when
	// a finished design run advances the task into develop.
	BaseBranch string
}

// Server upgrades HTTP requests to websocket clients.
type Server struct {
	projects domain.ProjectRepository
	bus      domain.EventBus
	logger   domain.Logger
	ops      Operations
	upgrader websocket.Upgrader
}

// NewServer creates a new gateway server.
func NewServer(projects domain.ProjectRepository, bus domain.EventBus, ops Operations, logger domain.Logger) *Server {
	return &Server{
		projects: projects,
		bus:      bus,
		logger:   logger,
		ops:      ops,
		upgrader: websocket.Upgrader{
			// The daemon binds to loopback; clients are local.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// ServeHTTP upgrades the request and runs the client until it disconnects.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("", "gateway", "upgrade: "+err.Error())
		return
	}

	c := &client{
		server:   s,
		conn:     conn,
		send:     make(chan []byte, sendBuffer),
		attached: make(map[string]string),
	}

	events, unsubscribe := s.bus.Subscribe()
	done := make(chan struct{})
	go c.writeLoop(done)
	go c.forwardEvents(events)

	c.readLoop(r.Context())

	unsubscribe()
	close(done)
	_ = conn.Close()
}

// command is the inbound JSON envelope.
type command struct {
	Type      string `json:"type"`
	TaskID    string `json:"taskId"`
	ProjectID string `json:"projectId"`
	Data      string `json:"data"`
	Content   string `json:"content"`
}

// frame is the outbound JSON envelope. Type selects which fields are set.
type frame struct {
	ToolCall         *domain.ToolCall         `json:"toolCall,omitempty"`
	StructuredOutput *domain.StructuredOutput `json:"structuredOutput,omitempty"`
	Output           *domain.StructuredOutput `json:"output,omitempty"`
	ExitCode         *int                     `json:"exitCode,omitempty"`
	Type             string                   `json:"type"`
	TaskID           string                   `json:"taskId,omitempty"`
	SessionID        string                   `json:"sessionId,omitempty"`
	BufferedOutput   string                   `json:"bufferedOutput,omitempty"`
	Data             string                   `json:"data,omitempty"`
	Status           string                   `json:"status,omitempty"`
	LaneID           string                   `json:"laneId,omitempty"`
	MessageID        string                   `json:"messageId,omitempty"`
	GroupID          string                   `json:"groupId,omitempty"`
	Content          string                   `json:"content,omitempty"`
	Error            string                   `json:"error,omitempty"`
	DesignPath       string                   `json:"designPath,omitempty"`
}

// client is one connected websocket peer.
// attached maps task IDs to the project path they were bound with.
type client struct {
	server   *Server
	conn     *websocket.Conn
	send     chan []byte
	attached map[string]string
	mu       sync.Mutex
}

func (c *client) readLoop(ctx context.Context) {
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var cmd command
		if err := json.Unmarshal(raw, &cmd); err != nil {
			c.sendError("", "malformed command: "+err.Error())
			continue
		}
		c.dispatch(ctx, cmd)
	}
}

func (c *client) dispatch(ctx context.Context, cmd command) {
	switch cmd.Type {
	case "execute":
		c.handleExecute(ctx, cmd)
	case "attach":
		c.handleAttach(ctx, cmd)
	case "input":
		c.handleInput(ctx, cmd.TaskID, cmd.Data)
	case "stop":
		c.handleStop(ctx, cmd)
	case "resize":
		// Terminal geometry has no meaning against this runtime.
	case "conversation.user_input":
		c.handleInput(ctx, cmd.TaskID, cmd.Content)
	case "conversation.design_start":
		c.handleDesignStart(ctx, cmd)
	case "conversation.execute_start":
		c.handleExecuteStart(ctx, cmd)
	default:
		c.sendError(cmd.TaskID, fmt.Sprintf("unknown command type %q", cmd.Type))
	}
}

func (c *client) handleExecute(ctx context.Context, cmd command) {
	path, ok := c.bindTask(cmd.TaskID, cmd.ProjectID)
	if !ok {
		return
	}
	out, err := c.server.ops.Start.Execute(ctx, usecase.StartRunInput{ProjectPath: path, TaskID: cmd.TaskID})
	if err != nil {
		c.sendError(cmd.TaskID, err.Error())
		return
	}
	c.sendFrame(frame{Type: "started", TaskID: cmd.TaskID, SessionID: out.SessionID})
}

func (c *client) handleAttach(ctx context.Context, cmd command) {
	path, ok := c.bindTask(cmd.TaskID, cmd.ProjectID)
	if !ok {
		return
	}
	out, err := c.server.ops.Attach.Execute(ctx, usecase.AttachSessionInput{ProjectPath: path, TaskID: cmd.TaskID})
	if err != nil {
		c.sendError(cmd.TaskID, err.Error())
		return
	}
	c.sendFrame(frame{
		Type:           "attached",
		TaskID:         cmd.TaskID,
		SessionID:      out.SessionID,
		BufferedOutput: out.BufferedOutput,
	})
}

func (c *client) handleInput(ctx context.Context, taskID, text string) {
	path, ok := c.boundPath(taskID)
	if !ok {
		c.sendError(taskID, "task not attached")
		return
	}
	_, err := c.server.ops.Input.Execute(ctx, usecase.SendInputInput{ProjectPath: path, TaskID: taskID, Text: text})
	if err != nil {
		c.sendError(taskID, err.Error())
	}
}

func (c *client) handleStop(ctx context.Context, cmd command) {
	path, ok := c.boundPath(cmd.TaskID)
	if !ok {
		path, ok = c.bindTask(cmd.TaskID, cmd.ProjectID)
		if !ok {
			return
		}
	}
	if _, err := c.server.ops.Stop.Execute(ctx, usecase.StopRunInput{ProjectPath: path, TaskID: cmd.TaskID}); err != nil {
		c.sendError(cmd.TaskID, err.Error())
	}
}

func (c *client) handleDesignStart(ctx context.Context, cmd command) {
	path, ok := c.bindTask(cmd.TaskID, cmd.ProjectID)
	if !ok {
		return
	}
	out, err := c.server.ops.Design.Execute(ctx, usecase.DesignRunInput{
		ProjectPath: path,
		TaskID:      cmd.TaskID,
		BaseBranch:  c.server.ops.BaseBranch,
	})
	if err != nil {
		c.sendError(cmd.TaskID, err.Error())
		return
	}
	c.sendFrame(frame{Type: "started", TaskID: cmd.TaskID, SessionID: out.SessionID})
}

func (c *client) handleExecuteStart(ctx context.Context, cmd command) {
	path, ok := c.bindTask(cmd.TaskID, cmd.ProjectID)
	if !ok {
		return
	}
	out, err := c.server.ops.Execute.Execute(ctx, usecase.ExecuteRunInput{ProjectPath: path, TaskID: cmd.TaskID})
	if err != nil {
		c.sendError(cmd.TaskID, err.Error())
		return
	}
	c.sendFrame(frame{Type: "started", TaskID: cmd.TaskID, SessionID: out.SessionID})
}

// bindTask resolves the project and attaches the task to this client.
// Further events for the task will be forwarded until disconnect.
func (c *client) bindTask(taskID, projectID string) (string, bool) {
	if taskID == "" {
		c.sendError("", "taskId is required")
		return "", false
	}
	project, err := c.server.projects.Get(projectID)
	if err != nil {
		c.sendError(taskID, "resolve project: "+err.Error())
		return "", false
	}
	if project == nil {
		c.sendError(taskID, fmt.Sprintf("%v: %s", domain.ErrProjectNotFound, projectID))
		return "", false
	}
	c.mu.Lock()
	c.attached[taskID] = project.Path
	c.mu.Unlock()
	return project.Path, true
}

func (c *client) boundPath(taskID string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	path, ok := c.attached[taskID]
	return path, ok
}

// forwardEvents relays bus events for attached tasks until the
// subscription channel closes.
func (c *client) forwardEvents(events <-chan domain.Event) {
	for ev := range events {
		if _, ok := c.boundPath(ev.TaskID); !ok {
			continue
		}
		for _, f := range translate(ev) {
			c.sendFrame(f)
		}
	}
}

// translate converts one bus event into outbound frames.
func translate(ev domain.Event) []frame {
	switch ev.Type {
	case domain.EventOutput:
		return []frame{{Type: "output", TaskID: ev.TaskID, Data: ev.Output}}
	case domain.EventLog:
		return []frame{{Type: "log", TaskID: ev.TaskID, Content: ev.Message}}
	case domain.EventError:
		return []frame{{Type: "error", TaskID: ev.TaskID, Error: ev.Message}}
	case domain.EventSessionStart:
		return []frame{{Type: "started", TaskID: ev.TaskID, SessionID: ev.SessionID}}
	case domain.EventStructuredOutput:
		return []frame{{Type: "structured-output", TaskID: ev.TaskID, Output: ev.Structured}}
	case domain.EventStatusUpdate:
		out := []frame{{
			Type:   "task_status",
			TaskID: ev.TaskID,
			Status: string(ev.Status),
			LaneID: string(ev.MoveTo),
		}}
		// Terminal-style clients also expect a process-exit marker.
		switch ev.Status {
		case domain.StatusCompleted:
			code := 0
			out = append(out, frame{Type: "exit", TaskID: ev.TaskID, ExitCode: &code})
		case domain.StatusFailed:
			code := 1
			out = append(out, frame{Type: "exit", TaskID: ev.TaskID, ExitCode: &code})
		}
		return out
	case domain.EventConversation:
		if ev.Frame == nil {
			return nil
		}
		return []frame{{
			Type:             "conversation." + string(ev.Frame.Type),
			TaskID:           ev.TaskID,
			MessageID:        ev.Frame.MessageID,
			GroupID:          ev.Frame.GroupID,
			Content:          ev.Frame.Content,
			ToolCall:         ev.Frame.ToolCall,
			Error:            ev.Frame.Error,
			DesignPath:       ev.Frame.DesignPath,
			StructuredOutput: ev.Frame.StructuredOutput,
		}}
	}
	return nil
}

func (c *client) sendError(taskID, msg string) {
	c.sendFrame(frame{Type: "error", TaskID: taskID, Error: msg})
}

// sendFrame enqueues a frame; a client that cannot keep up drops frames
// rather than blocking the producer.
func (c *client) sendFrame(f frame) {
	raw, err := json.Marshal(f)
	if err != nil {
		c.server.logger.Warn(f.TaskID, "gateway", "marshal frame: "+err.Error())
		return
	}
	select {
	case c.send <- raw:
	default:
		c.server.logger.Warn(f.TaskID, "gateway", "client send buffer full, dropping "+f.Type)
	}
}

func (c *client) writeLoop(done <-chan struct{}) {
	for {
		select {
		case raw := <-c.send:
			if err := c.conn.WriteMessage(websocket.TextMessage, raw); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}
