package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskdeck/taskdeck/internal/domain"
	"github.com/taskdeck/taskdeck/internal/testutil"
)

func newMoveTask(repo *testutil.MockTaskRepository, wt *testutil.MockWorktreeManager, bus *testutil.CollectBus) *MoveTask {
	return NewMoveTask(repo, wt, &testutil.MockGit{}, bus, &testutil.MockClock{}, testutil.NopLogger{})
}

func seedTask(repo *testutil.MockTaskRepository, task *domain.Task) *domain.Task {
	if task.Status == "" {
		task.Status = domain.StatusIdle
	}
	repo.Tasks[task.ID] = task
	return task
}

func TestMoveTask_FirstMoveToDevelopCreatesWorktree(t *testing.T) {
	repo := testutil.NewMockTaskRepository()
	seedTask(repo, &domain.Task{ID: "t1", Title: "x", LaneID: domain.LaneDesign})
	wt := &testutil.MockWorktreeManager{}
	uc := newMoveTask(repo, wt, &testutil.CollectBus{})

	out, err := uc.Execute(context.Background(), MoveTaskInput{ProjectPath: "/p", TaskID: "t1", ToLane: domain.LaneDevelop})
	require.NoError(t, err)

	assert.Equal(t, 1, wt.CreateCalls)
	assert.Equal(t, domain.LaneDevelop, out.Task.LaneID)
	require.NotNil(t, out.Task.Worktree)

	// A later move between worktree lanes must not create a second one.
	_, err = uc.Execute(context.Background(), MoveTaskInput{ProjectPath: "/p", TaskID: "t1", ToLane: domain.LaneTest})
	require.NoError(t, err)
	assert.Equal(t, 1, wt.CreateCalls)
}

func TestMoveTask_WorktreeFailureRejectsMove(t *testing.T) {
	repo := testutil.NewMockTaskRepository()
	seedTask(repo, &domain.Task{ID: "t1", Title: "x", LaneID: domain.LaneDesign})
	wt := &testutil.MockWorktreeManager{
		CreateFn: func(string, string, string) (*domain.Worktree, error) {
			return nil, errors.New("branch exists")
		},
	}
	uc := newMoveTask(repo, wt, &testutil.CollectBus{})

	_, err := uc.Execute(context.Background(), MoveTaskInput{ProjectPath: "/p", TaskID: "t1", ToLane: domain.LaneDevelop})
	require.Error(t, err)
	assert.Equal(t, domain.LaneDesign, repo.Tasks["t1"].LaneID, "failed move must leave the task in place")
}

func TestMoveTask_NonGitProjectMovesWithoutWorktree(t *testing.T) {
	repo := testutil.NewMockTaskRepository()
	seedTask(repo, &domain.Task{ID: "t1", Title: "x", LaneID: domain.LaneDesign})
	wt := &testutil.MockWorktreeManager{
		CreateFn: func(string, string, string) (*domain.Worktree, error) {
			return nil, nil
		},
	}
	uc := newMoveTask(repo, wt, &testutil.CollectBus{})

	out, err := uc.Execute(context.Background(), MoveTaskInput{ProjectPath: "/p", TaskID: "t1", ToLane: domain.LaneDevelop})
	require.NoError(t, err)
	assert.Equal(t, domain.LaneDevelop, out.Task.LaneID)
	assert.Nil(t, out.Task.Worktree)
}

func TestMoveTask_SameLaneIsNoOp(t *testing.T) {
	repo := testutil.NewMockTaskRepository()
	seedTask(repo, &domain.Task{ID: "t1", Title: "x", LaneID: domain.LaneDesign})
	wt := &testutil.MockWorktreeManager{}
	bus := &testutil.CollectBus{}
	uc := newMoveTask(repo, wt, bus)

	_, err := uc.Execute(context.Background(), MoveTaskInput{ProjectPath: "/p", TaskID: "t1", ToLane: domain.LaneDesign})
	require.NoError(t, err)
	assert.Equal(t, 0, wt.CreateCalls)
	assert.Empty(t, bus.Snapshot())
}

func TestMoveTask_ArchiveMergesAndTombstonesWorktree(t *testing.T) {
	repo := testutil.NewMockTaskRepository()
	seedTask(repo, &domain.Task{
		ID:       "t1",
		Title:    "x",
		LaneID:   domain.LanePendingMerge,
		Worktree: &domain.Worktree{Path: "/p/.taskdeck/worktrees/t1", Branch: "task/t1", CreatedAt: time.Now()},
	})
	wt := &testutil.MockWorktreeManager{MergeResult: domain.MergeResult{Success: true, Message: "merged 3 commits"}}
	bus := &testutil.CollectBus{}
	uc := newMoveTask(repo, wt, bus)

	out, err := uc.Execute(context.Background(), MoveTaskInput{ProjectPath: "/p", TaskID: "t1", ToLane: domain.LaneArchived})
	require.NoError(t, err)

	assert.Equal(t, 1, wt.MergeCalls)
	require.NotNil(t, out.Merge)
	assert.True(t, out.Merge.Success)
	assert.Equal(t, domain.LaneArchived, out.Task.LaneID)
	assert.Equal(t, domain.StatusCompleted, out.Task.Status)
	require.NotNil(t, out.Task.Worktree.RemovedAt, "merged worktree must be tombstoned")
	assert.False(t, out.Task.HasWorktree())
}

func TestMoveTask_FailedMergeKeepsTaskInPendingMerge(t *testing.T) {
	repo := testutil.NewMockTaskRepository()
	seedTask(repo, &domain.Task{
		ID:       "t1",
		Title:    "x",
		LaneID:   domain.LanePendingMerge,
		Worktree: &domain.Worktree{Path: "/p/.taskdeck/worktrees/t1", Branch: "task/t1", CreatedAt: time.Now()},
	})
	wt := &testutil.MockWorktreeManager{MergeResult: domain.MergeResult{Conflict: true, Message: "conflict in main.go"}}
	uc := newMoveTask(repo, wt, &testutil.CollectBus{})

	out, err := uc.Execute(context.Background(), MoveTaskInput{ProjectPath: "/p", TaskID: "t1", ToLane: domain.LaneArchived})
	require.Error(t, err)

	require.NotNil(t, out)
	require.NotNil(t, out.Merge)
	assert.True(t, out.Merge.Conflict)
	assert.Equal(t, domain.LanePendingMerge, repo.Tasks["t1"].LaneID)
	assert.Nil(t, repo.Tasks["t1"].Worktree.RemovedAt, "worktree survives a failed merge")
}

func TestMoveTask_DeprecateSkipsMerge(t *testing.T) {
	repo := testutil.NewMockTaskRepository()
	seedTask(repo, &domain.Task{
		ID:       "t1",
		Title:    "x",
		LaneID:   domain.LanePendingMerge,
		Worktree: &domain.Worktree{Path: "/p/.taskdeck/worktrees/t1", Branch: "task/t1", CreatedAt: time.Now()},
	})
	wt := &testutil.MockWorktreeManager{}
	uc := newMoveTask(repo, wt, &testutil.CollectBus{})

	out, err := uc.Execute(context.Background(), MoveTaskInput{ProjectPath: "/p", TaskID: "t1", ToLane: domain.LaneDeprecated})
	require.NoError(t, err)
	assert.Equal(t, 0, wt.MergeCalls)
	assert.Equal(t, domain.LaneDeprecated, out.Task.LaneID)
	assert.Nil(t, out.Task.Worktree.RemovedAt)
}

func TestMoveTask_PublishesStatusWithLane(t *testing.T) {
	repo := testutil.NewMockTaskRepository()
	seedTask(repo, &domain.Task{ID: "t1", Title: "x", LaneID: domain.LaneDesign})
	bus := &testutil.CollectBus{}
	uc := newMoveTask(repo, &testutil.MockWorktreeManager{}, bus)

	_, err := uc.Execute(context.Background(), MoveTaskInput{ProjectPath: "/p", TaskID: "t1", ToLane: domain.LaneDevelop})
	require.NoError(t, err)

	updates := bus.ByType(domain.EventStatusUpdate)
	require.Len(t, updates, 1)
	assert.Equal(t, "t1", updates[0].TaskID)
	assert.Equal(t, domain.LaneDevelop, updates[0].MoveTo)
}

func TestMoveTask_UnknownTask(t *testing.T) {
	uc := newMoveTask(testutil.NewMockTaskRepository(), &testutil.MockWorktreeManager{}, &testutil.CollectBus{})

	_, err := uc.Execute(context.Background(), MoveTaskInput{ProjectPath: "/p", TaskID: "nope", ToLane: domain.LaneDevelop})
	assert.ErrorIs(t, err, domain.ErrTaskNotFound)
}
