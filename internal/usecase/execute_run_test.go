package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskdeck/taskdeck/internal/domain"
	"github.com/taskdeck/taskdeck/internal/session"
	"github.com/taskdeck/taskdeck/internal/stream"
	"github.com/taskdeck/taskdeck/internal/testutil"
)

type executeFixture struct {
	repo *testutil.MockTaskRepository
	mgr  *session.Manager
	conv *testutil.MockConversationStore
	art  *testutil.MockArtifactStore
	bus  *testutil.CollectBus
	uc   *ExecuteRun
}

func newExecuteFixture(runtime *testutil.FakeRuntime) *executeFixture {
	repo := testutil.NewMockTaskRepository()
	conv := testutil.NewMockConversationStore()
	art := testutil.NewMockArtifactStore()
	bus := &testutil.CollectBus{}
	clock := &testutil.MockClock{}
	mgr := session.NewManager(runtime, testutil.NopLogger{})
	relay := stream.NewRelay(conv, bus, clock, testutil.NopLogger{})
	complete := NewCompleteRun(repo, bus, clock, testutil.NopLogger{})
	return &executeFixture{
		repo: repo,
		mgr:  mgr,
		conv: conv,
		art:  art,
		bus:  bus,
		uc:   NewExecuteRun(repo, mgr, art, relay, complete, bus, clock, testutil.NopLogger{}),
	}
}

func TestExecuteRun_FullFlow(t *testing.T) {
	fake := scriptedStream("sess-1")
	f := newExecuteFixture(&testutil.FakeRuntime{Streams: []*testutil.FakeStream{fake}})
	seedTask(f.repo, &domain.Task{
		ID:       "t1",
		Title:    "Add login",
		LaneID:   domain.LaneDevelop,
		Worktree: &domain.Worktree{Path: "/p/.taskdeck/worktrees/t1", Branch: "task/t1", CreatedAt: time.Now()},
	})
	f.art.Designs["t1"] = "## Design\nUse the oauth2 package."

	out, err := f.uc.Execute(context.Background(), ExecuteRunInput{ProjectPath: "/p", TaskID: "t1"})
	require.NoError(t, err)
	assert.Equal(t, "sess-1", out.SessionID)

	fake.Emit(domain.AgentEvent{Type: domain.AgentEventText, Text: "implementing...\n"})
	fake.Emit(domain.AgentEvent{
		Type: domain.AgentEventResult,
		Result: &domain.AgentResult{
			Structured: &domain.StructuredOutput{Data: map[string]any{"summary": "login added"}},
		},
	})
	fake.Finish()

	require.Eventually(t, func() bool {
		return f.repo.Tasks["t1"].Status == domain.StatusCompleted
	}, time.Second, 5*time.Millisecond)

	task := f.repo.Tasks["t1"]
	assert.Equal(t, domain.LaneTest, task.LaneID, "completed develop run advances to test")
	require.NotNil(t, task.StructuredOutput)
	assert.Equal(t, "implementation", task.StructuredOutput.Type)
	assert.Equal(t, "login added", task.StructuredOutput.Data["summary"])

	frames := f.bus.ByType(domain.EventConversation)
	require.NotEmpty(t, frames)
	final := frames[len(frames)-1].Frame
	assert.Equal(t, domain.FrameExecuteComplete, final.Type)
	require.NotNil(t, final.StructuredOutput)
	assert.Equal(t, "login added", final.StructuredOutput.Data["summary"])
}

func TestExecuteRun_RecordsUserPromptWithDesign(t *testing.T) {
	fake := scriptedStream("sess-1")
	f := newExecuteFixture(&testutil.FakeRuntime{Streams: []*testutil.FakeStream{fake}})
	seedTask(f.repo, &domain.Task{ID: "t1", Title: "Add login", LaneID: domain.LaneDevelop})
	f.art.Designs["t1"] = "the design body"

	_, err := f.uc.Execute(context.Background(), ExecuteRunInput{ProjectPath: "/p", TaskID: "t1"})
	require.NoError(t, err)

	log := f.conv.Logs["t1"]
	require.NotNil(t, log)
	require.NotEmpty(t, log.Messages)
	assert.Equal(t, "execute", log.Messages[0].Command)
	assert.Contains(t, log.Messages[0].Content, "the design body")
}

func TestExecuteRun_PromptFallbackWithoutDesign(t *testing.T) {
	fake := scriptedStream("sess-1")
	f := newExecuteFixture(&testutil.FakeRuntime{Streams: []*testutil.FakeStream{fake}})
	seedTask(f.repo, &domain.Task{ID: "t1", Title: "Add login", LaneID: domain.LaneDevelop, Prompt: "just wing it"})

	_, err := f.uc.Execute(context.Background(), ExecuteRunInput{ProjectPath: "/p", TaskID: "t1"})
	require.NoError(t, err)

	log := f.conv.Logs["t1"]
	require.NotEmpty(t, log.Messages)
	assert.Contains(t, log.Messages[0].Content, "just wing it")
}

func TestExecuteRun_NoDesignNoPrompt(t *testing.T) {
	f := newExecuteFixture(&testutil.FakeRuntime{})
	seedTask(f.repo, &domain.Task{ID: "t1", Title: "Add login", LaneID: domain.LaneDevelop})

	_, err := f.uc.Execute(context.Background(), ExecuteRunInput{ProjectPath: "/p", TaskID: "t1"})
	assert.ErrorIs(t, err, domain.ErrNoDesign)
}

func TestExecuteRun_FailedRunStaysPut(t *testing.T) {
	fake := scriptedStream("sess-1")
	f := newExecuteFixture(&testutil.FakeRuntime{Streams: []*testutil.FakeStream{fake}})
	seedTask(f.repo, &domain.Task{ID: "t1", Title: "Add login", LaneID: domain.LaneDevelop})
	f.art.Designs["t1"] = "design"

	_, err := f.uc.Execute(context.Background(), ExecuteRunInput{ProjectPath: "/p", TaskID: "t1"})
	require.NoError(t, err)

	fake.Emit(domain.AgentEvent{Type: domain.AgentEventResult, Result: &domain.AgentResult{IsError: true, ErrMessage: "compile error"}})
	fake.Finish()

	require.Eventually(t, func() bool {
		return f.repo.Tasks["t1"].Status == domain.StatusFailed
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, domain.LaneDevelop, f.repo.Tasks["t1"].LaneID)

	frames := f.bus.ByType(domain.EventConversation)
	require.NotEmpty(t, frames)
	assert.Equal(t, domain.FrameError, frames[len(frames)-1].Frame.Type)
}

func TestExecuteRun_RejectsWhileSessionLive(t *testing.T) {
	fake := scriptedStream("sess-1")
	f := newExecuteFixture(&testutil.FakeRuntime{Streams: []*testutil.FakeStream{fake}})
	seedTask(f.repo, &domain.Task{ID: "t1", Title: "Add login", LaneID: domain.LaneDevelop, Prompt: "go"})

	_, _, err := f.mgr.Start(context.Background(), session.StartOptions{TaskID: "t1", Prompt: "go"})
	require.NoError(t, err)

	_, err = f.uc.Execute(context.Background(), ExecuteRunInput{ProjectPath: "/p", TaskID: "t1"})
	assert.ErrorIs(t, err, domain.ErrSessionRunning)
}
