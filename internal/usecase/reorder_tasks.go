package usecase

import (
	"context"
	"fmt"
	"slices"

	"github.com/taskdeck/taskdeck/internal/domain"
)

// Placement is one task's requested board position.
type Placement struct {
	TaskID string
	LaneID domain.LaneID
	Order  int
}

// ReorderTasksInput contains a batch of board position changes.
type ReorderTasksInput struct {
	ProjectPath string
	Placements  []Placement
}

// ReorderTasksOutput contains the result of a batch reorder.
type ReorderTasksOutput struct{}

// ReorderTasks is the use case for batch reorder/move operations.
type ReorderTasks struct {
	tasks  domain.TaskRepository
	logger domain.Logger
}

// NewReorderTasks creates a new ReorderTasks use case.
func NewReorderTasks(tasks domain.TaskRepository, logger domain.Logger) *ReorderTasks {
	return &ReorderTasks{tasks: tasks, logger: logger}
}

// Execute applies a batch of placements atomically. A placement that
// moves a running task to a different lane rejects the whole batch and
// leaves every order unchanged. Orders in every touched lane are
// re-derived as a dense 0..n-1 sequence.
func (uc *ReorderTasks) Execute(_ context.Context, in ReorderTasksInput) (*ReorderTasksOutput, error) {
	err := uc.tasks.Mutate(in.ProjectPath, func(board *domain.Board) error {
		moved := make(map[string]Placement, len(in.Placements))
		touched := make(map[domain.LaneID]struct{})

		for _, p := range in.Placements {
			if !p.LaneID.IsValid() {
				return fmt.Errorf("%w: %q", domain.ErrInvalidLane, p.LaneID)
			}
			task, ok := board.Tasks[p.TaskID]
			if !ok {
				return fmt.Errorf("%w: %s", domain.ErrTaskNotFound, p.TaskID)
			}
			if task.IsRunning() && task.LaneID != p.LaneID {
				return fmt.Errorf("%w: cannot move %q out of %s", domain.ErrTaskRunning, task.Title, task.LaneID)
			}
			moved[p.TaskID] = p
			touched[task.LaneID] = struct{}{}
			touched[p.LaneID] = struct{}{}
		}

		lanes := make([]domain.LaneID, 0, len(touched))
		for lane := range touched {
			lanes = append(lanes, lane)
		}
		slices.Sort(lanes)

		for _, p := range in.Placements {
			board.Tasks[p.TaskID].LaneID = p.LaneID
		}

		for _, lane := range lanes {
			// Stationary siblings keep their relative order; moved tasks
			// are inserted at their requested index.
			var stay, incoming []*domain.Task
			for _, task := range board.TasksInLane(lane) {
				if _, ok := moved[task.ID]; ok {
					incoming = append(incoming, task)
				} else {
					stay = append(stay, task)
				}
			}
			slices.SortFunc(incoming, func(a, b *domain.Task) int {
				return moved[a.ID].Order - moved[b.ID].Order
			})
			for _, task := range incoming {
				at := min(max(moved[task.ID].Order, 0), len(stay))
				stay = slices.Insert(stay, at, task)
			}
			for i, task := range stay {
				task.Order = i
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	uc.logger.Debug("", "task", fmt.Sprintf("reordered %d placements", len(in.Placements)))
	return &ReorderTasksOutput{}, nil
}
