package domain

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBranchName(t *testing.T) {
	assert.Equal(t, "task/abc-123", BranchName("abc-123"))
}

func TestWorktreePath(t *testing.T) {
	got := WorktreePath("/proj", "t1")
	assert.Equal(t, filepath.Join("/proj", ".worktrees", "t1"), got)
}

func TestArtifactPaths(t *testing.T) {
	assert.Equal(t, filepath.Join(".taskdeck", "designs", "t1.md"), DesignPath("t1"))
	assert.Equal(t, filepath.Join(".taskdeck", "plans", "t1.md"), PlanPath("t1"))
}

func TestBoard_TasksInLane(t *testing.T) {
	board := &Board{
		Lanes: DefaultLanes(),
		Tasks: map[string]*Task{
			"a": {ID: "a", LaneID: LaneDevelop, Order: 1},
			"b": {ID: "b", LaneID: LaneDevelop, Order: 0},
			"c": {ID: "c", LaneID: LaneDesign, Order: 0},
		},
	}

	got := board.TasksInLane(LaneDevelop)
	assert.Len(t, got, 2)
	assert.Equal(t, "b", got[0].ID)
	assert.Equal(t, "a", got[1].ID)
}
