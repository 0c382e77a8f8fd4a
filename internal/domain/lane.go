package domain

// LaneID identifies a fixed board lane.
type LaneID string

// The lane set is closed; lanes are configuration, not runtime data.
const (
	LaneDesign       LaneID = "design"
	LaneDevelop      LaneID = "develop"
	LaneTest         LaneID = "test"
	LanePendingMerge LaneID = "pending-merge"
	LaneArchived     LaneID = "archived"
	LaneDeprecated   LaneID = "deprecated"
)

// Lane is an ordered, named bucket on the board.
type Lane struct {
	ID    LaneID `json:"id"`
	Title string `json:"title"`
	Order int    `json:"order"`
}

// DefaultLanes returns the fixed lane configuration in board order.
func DefaultLanes() []Lane {
	return []Lane{
		{ID: LaneDesign, Title: "Design", Order: 0},
		{ID: LaneDevelop, Title: "Develop", Order: 1},
		{ID: LaneTest, Title: "Test", Order: 2},
		{ID: LanePendingMerge, Title: "Pending Merge", Order: 3},
		{ID: LaneArchived, Title: "Archived", Order: 4},
		{ID: LaneDeprecated, Title: "Deprecated", Order: 5},
	}
}

// IsValid returns true if the lane is a member of the closed lane set.
func (l LaneID) IsValid() bool {
	switch l {
	case LaneDesign, LaneDevelop, LaneTest, LanePendingMerge, LaneArchived, LaneDeprecated:
		return true
	default:
		return false
	}
}

// NeedsWorktree returns true if moving a task into this lane should
// create an isolated worktree when none exists yet.
func (l LaneID) NeedsWorktree() bool {
	return l == LaneDevelop || l == LaneTest
}

// NextOnComplete returns the lane a bare "completed" signal advances to,
// and false when the lane does not auto-advance.
func (l LaneID) NextOnComplete() (LaneID, bool) {
	switch l {
	case LaneDevelop:
		return LaneTest, true
	case LaneTest:
		return LanePendingMerge, true
	default:
		return "", false
	}
}
