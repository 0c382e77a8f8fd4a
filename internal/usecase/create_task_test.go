package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskdeck/taskdeck/internal/domain"
	"github.com/taskdeck/taskdeck/internal/testutil"
)

func newCreateTask(repo *testutil.MockTaskRepository, wt *testutil.MockWorktreeManager) *CreateTask {
	return NewCreateTask(repo, wt, &testutil.MockClock{}, testutil.NopLogger{})
}

func TestCreateTask_DefaultsToDesignLane(t *testing.T) {
	repo := testutil.NewMockTaskRepository()
	uc := newCreateTask(repo, &testutil.MockWorktreeManager{})

	out, err := uc.Execute(context.Background(), CreateTaskInput{ProjectPath: "/p", Title: "add login"})
	require.NoError(t, err)

	assert.Equal(t, domain.LaneDesign, out.Task.LaneID)
	assert.Equal(t, domain.StatusIdle, out.Task.Status)
	assert.Equal(t, "user", out.Task.CreatedBy)
	assert.NotEmpty(t, out.Task.ID)
	assert.NotNil(t, repo.Tasks[out.Task.ID])
}

func TestCreateTask_OrderAppendsWithinLane(t *testing.T) {
	repo := testutil.NewMockTaskRepository()
	uc := newCreateTask(repo, &testutil.MockWorktreeManager{})

	first, err := uc.Execute(context.Background(), CreateTaskInput{ProjectPath: "/p", Title: "one"})
	require.NoError(t, err)
	second, err := uc.Execute(context.Background(), CreateTaskInput{ProjectPath: "/p", Title: "two"})
	require.NoError(t, err)

	assert.Equal(t, 0, first.Task.Order)
	assert.Equal(t, 1, second.Task.Order)
}

func TestCreateTask_EmptyTitle(t *testing.T) {
	uc := newCreateTask(testutil.NewMockTaskRepository(), &testutil.MockWorktreeManager{})

	_, err := uc.Execute(context.Background(), CreateTaskInput{ProjectPath: "/p"})
	assert.ErrorIs(t, err, domain.ErrEmptyTitle)
}

func TestCreateTask_InvalidLane(t *testing.T) {
	uc := newCreateTask(testutil.NewMockTaskRepository(), &testutil.MockWorktreeManager{})

	_, err := uc.Execute(context.Background(), CreateTaskInput{ProjectPath: "/p", Title: "x", LaneID: "backlog"})
	assert.ErrorIs(t, err, domain.ErrInvalidLane)
}

func TestCreateTask_WorktreeLaneCreatesWorktree(t *testing.T) {
	repo := testutil.NewMockTaskRepository()
	wt := &testutil.MockWorktreeManager{}
	uc := newCreateTask(repo, wt)

	out, err := uc.Execute(context.Background(), CreateTaskInput{ProjectPath: "/p", Title: "x", LaneID: domain.LaneDevelop})
	require.NoError(t, err)

	assert.Equal(t, 1, wt.CreateCalls)
	require.NotNil(t, out.Task.Worktree)
	assert.Equal(t, domain.BranchName(out.Task.ID), out.Task.Worktree.Branch)
}

func TestCreateTask_WorktreeFailureDoesNotBlockCreation(t *testing.T) {
	repo := testutil.NewMockTaskRepository()
	wt := &testutil.MockWorktreeManager{
		CreateFn: func(string, string, string) (*domain.Worktree, error) {
			return nil, errors.New("disk full")
		},
	}
	uc := newCreateTask(repo, wt)

	out, err := uc.Execute(context.Background(), CreateTaskInput{ProjectPath: "/p", Title: "x", LaneID: domain.LaneDevelop})
	require.NoError(t, err)

	assert.Nil(t, out.Task.Worktree)
	assert.NotNil(t, repo.Tasks[out.Task.ID], "task must exist despite worktree failure")
}
