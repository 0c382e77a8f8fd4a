package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatus_CanTransitionTo(t *testing.T) {
	tests := []struct {
		name string
		from Status
		to   Status
		want bool
	}{
		{"idle to running", StatusIdle, StatusRunning, true},
		{"idle to completed", StatusIdle, StatusCompleted, false},
		{"running to completed", StatusRunning, StatusCompleted, true},
		{"running to failed", StatusRunning, StatusFailed, true},
		{"running to idle (stop)", StatusRunning, StatusIdle, true},
		{"completed to idle", StatusCompleted, StatusIdle, true},
		{"failed to running (retry)", StatusFailed, StatusRunning, true},
		{"completed to failed", StatusCompleted, StatusFailed, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.from.CanTransitionTo(tt.to))
		})
	}
}

func TestStatus_IsValid(t *testing.T) {
	assert.True(t, StatusIdle.IsValid())
	assert.True(t, StatusRunning.IsValid())
	assert.False(t, Status("paused").IsValid())
}

func TestLaneID_NextOnComplete(t *testing.T) {
	next, ok := LaneDevelop.NextOnComplete()
	assert.True(t, ok)
	assert.Equal(t, LaneTest, next)

	next, ok = LaneTest.NextOnComplete()
	assert.True(t, ok)
	assert.Equal(t, LanePendingMerge, next)

	// Other lanes do not auto-advance on a bare completed signal.
	for _, lane := range []LaneID{LaneDesign, LanePendingMerge, LaneArchived, LaneDeprecated} {
		_, ok := lane.NextOnComplete()
		assert.False(t, ok, "lane %s should not auto-advance", lane)
	}
}

func TestLaneID_NeedsWorktree(t *testing.T) {
	assert.True(t, LaneDevelop.NeedsWorktree())
	assert.True(t, LaneTest.NeedsWorktree())
	assert.False(t, LaneDesign.NeedsWorktree())
	assert.False(t, LaneArchived.NeedsWorktree())
}
