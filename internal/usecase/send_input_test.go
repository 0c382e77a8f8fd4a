package usecase

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskdeck/taskdeck/internal/domain"
	"github.com/taskdeck/taskdeck/internal/session"
	"github.com/taskdeck/taskdeck/internal/stream"
	"github.com/taskdeck/taskdeck/internal/testutil"
)

func newSendInput(repo *testutil.MockTaskRepository, mgr *session.Manager, conv *testutil.MockConversationStore) *SendInput {
	relay := stream.NewRelay(conv, &testutil.CollectBus{}, &testutil.MockClock{}, testutil.NopLogger{})
	return NewSendInput(repo, mgr, relay)
}

func TestSendInput_PersistsThenForwards(t *testing.T) {
	repo := testutil.NewMockTaskRepository()
	seedTask(repo, &domain.Task{ID: "t1", Title: "x", LaneID: domain.LaneDevelop})
	fake := scriptedStream("sess-1")
	runtime := &testutil.FakeRuntime{Streams: []*testutil.FakeStream{fake}}
	mgr := session.NewManager(runtime, testutil.NopLogger{})
	_, _, err := mgr.Start(context.Background(), session.StartOptions{TaskID: "t1", Prompt: "go"})
	require.NoError(t, err)

	conv := testutil.NewMockConversationStore()
	uc := newSendInput(repo, mgr, conv)

	_, err = uc.Execute(context.Background(), SendInputInput{ProjectPath: "/p", TaskID: "t1", Text: "also add tests"})
	require.NoError(t, err)

	assert.Equal(t, []string{"also add tests"}, fake.Sent)

	log := conv.Logs["t1"]
	require.NotNil(t, log)
	require.Len(t, log.Messages, 1)
	assert.Equal(t, domain.RoleUser, log.Messages[0].Role)
	assert.Equal(t, "also add tests", log.Messages[0].Content)
}

func TestSendInput_NoSessionStillPersistsMessage(t *testing.T) {
	repo := testutil.NewMockTaskRepository()
	seedTask(repo, &domain.Task{ID: "t1", Title: "x", LaneID: domain.LaneDevelop})
	mgr := session.NewManager(&testutil.FakeRuntime{}, testutil.NopLogger{})
	conv := testutil.NewMockConversationStore()
	uc := newSendInput(repo, mgr, conv)

	_, err := uc.Execute(context.Background(), SendInputInput{ProjectPath: "/p", TaskID: "t1", Text: "hello?"})
	require.ErrorIs(t, err, domain.ErrNoSession)

	log := conv.Logs["t1"]
	require.NotNil(t, log)
	assert.Len(t, log.Messages, 1, "history keeps the message even when delivery fails")
}

func TestSendInput_UnknownTask(t *testing.T) {
	mgr := session.NewManager(&testutil.FakeRuntime{}, testutil.NopLogger{})
	uc := newSendInput(testutil.NewMockTaskRepository(), mgr, testutil.NewMockConversationStore())

	_, err := uc.Execute(context.Background(), SendInputInput{ProjectPath: "/p", TaskID: "ghost", Text: "x"})
	assert.ErrorIs(t, err, domain.ErrTaskNotFound)
}
