package gateway

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskdeck/taskdeck/internal/bus"
	"github.com/taskdeck/taskdeck/internal/domain"
	"github.com/taskdeck/taskdeck/internal/session"
	"github.com/taskdeck/taskdeck/internal/stream"
	"github.com/taskdeck/taskdeck/internal/testutil"
	"github.com/taskdeck/taskdeck/internal/usecase"
)

type stubProjects struct {
	projects map[string]*domain.Project
}

func (s *stubProjects) Get(id string) (*domain.Project, error) { return s.projects[id], nil }

func (s *stubProjects) List() ([]*domain.Project, error) { return nil, nil }

func (s *stubProjects) Save(*domain.Project) error { return nil }

func (s *stubProjects) Delete(string) error { return nil }

type fixture struct {
	repo    *testutil.MockTaskRepository
	runtime *testutil.FakeRuntime
	server  *Server
}

func newFixture(t *testing.T, runtime *testutil.FakeRuntime) *fixture {
	t.Helper()
	repo := testutil.NewMockTaskRepository()
	conv := testutil.NewMockConversationStore()
	art := testutil.NewMockArtifactStore()
	wt := &testutil.MockWorktreeManager{}
	clock := &testutil.MockClock{}
	logger := testutil.NopLogger{}
	eventBus := bus.New()

	mgr := session.NewManager(runtime, logger)
	relay := stream.NewRelay(conv, eventBus, clock, logger)
	complete := usecase.NewCompleteRun(repo, eventBus, clock, logger)
	move := usecase.NewMoveTask(repo, wt, &testutil.MockGit{}, eventBus, clock, logger)

	ops := Operations{
		Start:   usecase.NewStartRun(repo, mgr, complete, eventBus, clock, logger),
		Stop:    usecase.NewStopRun(repo, mgr, eventBus, clock, logger),
		Attach:  usecase.NewAttachSession(repo, mgr, conv),
		Input:   usecase.NewSendInput(repo, mgr, relay),
		Design:  usecase.NewDesignRun(repo, mgr, art, relay, move, eventBus, clock, logger),
		Execute: usecase.NewExecuteRun(repo, mgr, art, relay, complete, eventBus, clock, logger),
	}

	projects := &stubProjects{projects: map[string]*domain.Project{
		"proj-1": {ID: "proj-1", Name: "demo", Path: "/p"},
	}}
	return &fixture{
		repo:    repo,
		runtime: runtime,
		server:  NewServer(projects, eventBus, ops, logger),
	}
}

func dial(t *testing.T, s *Server) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(s)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, cmd map[string]any) {
	t.Helper()
	raw, err := json.Marshal(cmd)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, raw))
}

func readFrame(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	var f map[string]any
	require.NoError(t, json.Unmarshal(raw, &f))
	return f
}

// readUntil reads frames until one matches the wanted type, failing the
// test if it never arrives.
func readUntil(t *testing.T, conn *websocket.Conn, wantType string) map[string]any {
	t.Helper()
	for i := 0; i < 50; i++ {
		f := readFrame(t, conn)
		if f["type"] == wantType {
			return f
		}
	}
	t.Fatalf("frame %q never arrived", wantType)
	return nil
}

func scriptedStream(sessionID string) *testutil.FakeStream {
	s := testutil.NewFakeStream()
	s.Emit(domain.AgentEvent{Type: domain.AgentEventSession, SessionID: sessionID})
	return s
}

func TestGateway_ExecuteStreamsOutput(t *testing.T) {
	fake := scriptedStream("sess-1")
	f := newFixture(t, &testutil.FakeRuntime{Streams: []*testutil.FakeStream{fake}})
	f.repo.Tasks["t1"] = &domain.Task{ID: "t1", Title: "x", LaneID: domain.LaneDevelop, Status: domain.StatusIdle, Prompt: "go"}

	conn := dial(t, f.server)
	send(t, conn, map[string]any{"type": "execute", "taskId": "t1", "projectId": "proj-1"})

	started := readUntil(t, conn, "started")
	assert.Equal(t, "sess-1", started["sessionId"])

	fake.Emit(domain.AgentEvent{Type: domain.AgentEventText, Text: "hello from agent\n"})

	out := readUntil(t, conn, "output")
	assert.Equal(t, "t1", out["taskId"])
	assert.Equal(t, "hello from agent\n", out["data"])

	fake.Emit(domain.AgentEvent{Type: domain.AgentEventResult, Result: &domain.AgentResult{}})
	fake.Finish()

	status := readUntil(t, conn, "task_status")
	assert.Equal(t, "completed", status["status"])
	assert.Equal(t, "test", status["laneId"], "completed develop run advances to test")

	exit := readUntil(t, conn, "exit")
	assert.Equal(t, float64(0), exit["exitCode"])
}

func TestGateway_AttachReplaysBuffer(t *testing.T) {
	fake := scriptedStream("sess-1")
	f := newFixture(t, &testutil.FakeRuntime{Streams: []*testutil.FakeStream{fake}})
	f.repo.Tasks["t1"] = &domain.Task{ID: "t1", Title: "x", LaneID: domain.LaneDevelop, Status: domain.StatusIdle, Prompt: "go"}

	conn := dial(t, f.server)
	send(t, conn, map[string]any{"type": "execute", "taskId": "t1", "projectId": "proj-1"})
	readUntil(t, conn, "started")

	fake.Emit(domain.AgentEvent{Type: domain.AgentEventText, Text: "early output\n"})
	readUntil(t, conn, "output")

	// A second client attaching late replays what it missed.
	late := dial(t, f.server)
	send(t, late, map[string]any{"type": "attach", "taskId": "t1", "projectId": "proj-1"})

	attached := readUntil(t, late, "attached")
	assert.Equal(t, "sess-1", attached["sessionId"])
	assert.Equal(t, "early output\n", attached["bufferedOutput"])
}

func TestGateway_EventsFilteredByAttachment(t *testing.T) {
	fake := scriptedStream("sess-1")
	f := newFixture(t, &testutil.FakeRuntime{Streams: []*testutil.FakeStream{fake}})
	f.repo.Tasks["t1"] = &domain.Task{ID: "t1", Title: "x", LaneID: domain.LaneDevelop, Status: domain.StatusIdle, Prompt: "go"}
	f.repo.Tasks["t2"] = &domain.Task{ID: "t2", Title: "y", LaneID: domain.LaneDevelop, Status: domain.StatusIdle, Prompt: "go"}

	watcher := dial(t, f.server)
	send(t, watcher, map[string]any{"type": "attach", "taskId": "t2", "projectId": "proj-1"})
	readUntil(t, watcher, "error") // t2 has no session yet

	runner := dial(t, f.server)
	send(t, runner, map[string]any{"type": "execute", "taskId": "t1", "projectId": "proj-1"})
	readUntil(t, runner, "started")
	fake.Emit(domain.AgentEvent{Type: domain.AgentEventText, Text: "t1 output"})
	readUntil(t, runner, "output")

	// The watcher never attached to t1, so nothing arrives for it.
	require.NoError(t, watcher.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
	_, _, err := watcher.ReadMessage()
	assert.Error(t, err, "watcher must not receive frames for unattached tasks")
}

func TestGateway_InputForwardsToSession(t *testing.T) {
	fake := scriptedStream("sess-1")
	f := newFixture(t, &testutil.FakeRuntime{Streams: []*testutil.FakeStream{fake}})
	f.repo.Tasks["t1"] = &domain.Task{ID: "t1", Title: "x", LaneID: domain.LaneDevelop, Status: domain.StatusIdle, Prompt: "go"}

	conn := dial(t, f.server)
	send(t, conn, map[string]any{"type": "execute", "taskId": "t1", "projectId": "proj-1"})
	readUntil(t, conn, "started")

	send(t, conn, map[string]any{"type": "input", "taskId": "t1", "data": "try again"})
	require.Eventually(t, func() bool {
		return len(fake.Sent) == 1 && fake.Sent[0] == "try again"
	}, time.Second, 5*time.Millisecond)
}

func TestGateway_StopReturnsTaskToIdle(t *testing.T) {
	fake := scriptedStream("sess-1")
	f := newFixture(t, &testutil.FakeRuntime{Streams: []*testutil.FakeStream{fake}})
	f.repo.Tasks["t1"] = &domain.Task{ID: "t1", Title: "x", LaneID: domain.LaneDevelop, Status: domain.StatusIdle, Prompt: "go"}

	conn := dial(t, f.server)
	send(t, conn, map[string]any{"type": "execute", "taskId": "t1", "projectId": "proj-1"})
	readUntil(t, conn, "started")

	send(t, conn, map[string]any{"type": "stop", "taskId": "t1"})
	status := readUntil(t, conn, "task_status")
	assert.Equal(t, "idle", status["status"])
	assert.True(t, fake.Closed())
}

func TestGateway_DesignStartEmitsConversationFrames(t *testing.T) {
	fake := scriptedStream("sess-1")
	f := newFixture(t, &testutil.FakeRuntime{Streams: []*testutil.FakeStream{fake}})
	f.repo.Tasks["t1"] = &domain.Task{ID: "t1", Title: "Add login", LaneID: domain.LaneDesign, Status: domain.StatusIdle}

	conn := dial(t, f.server)
	send(t, conn, map[string]any{"type": "conversation.design_start", "taskId": "t1", "projectId": "proj-1"})
	readUntil(t, conn, "started")

	fake.Emit(domain.AgentEvent{Type: domain.AgentEventText, Text: "## Design\n"})
	fake.Emit(domain.AgentEvent{Type: domain.AgentEventResult, Result: &domain.AgentResult{}})
	fake.Finish()

	readUntil(t, conn, "conversation.chunk_start")
	chunk := readUntil(t, conn, "conversation.chunk")
	assert.Equal(t, "## Design\n", chunk["content"])
	readUntil(t, conn, "conversation.chunk_end")

	complete := readUntil(t, conn, "conversation.design_complete")
	assert.Equal(t, domain.DesignPath("t1"), complete["designPath"])
}

func TestGateway_UnknownProject(t *testing.T) {
	f := newFixture(t, &testutil.FakeRuntime{})
	conn := dial(t, f.server)

	send(t, conn, map[string]any{"type": "execute", "taskId": "t1", "projectId": "ghost"})
	errFrame := readUntil(t, conn, "error")
	assert.Contains(t, errFrame["error"], "project not found")
}

func TestGateway_ResizeIsAccepted(t *testing.T) {
	f := newFixture(t, &testutil.FakeRuntime{})
	conn := dial(t, f.server)

	send(t, conn, map[string]any{"type": "resize", "cols": 120, "rows": 40})
	send(t, conn, map[string]any{"type": "nonsense"})
	errFrame := readUntil(t, conn, "error")
	assert.Contains(t, errFrame["error"], "unknown command")
}
