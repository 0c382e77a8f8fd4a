// Package usecase contains application use cases. Each operation is one
// file with an Input/Output pair and an Execute method.
package usecase

import (
	"fmt"

	"github.com/taskdeck/taskdeck/internal/domain"
)

// getTask loads a task or returns domain.ErrTaskNotFound.
func getTask(tasks domain.TaskRepository, projectPath, taskID string) (*domain.Task, error) {
	task, err := tasks.Get(projectPath, taskID)
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	if task == nil {
		return nil, domain.ErrTaskNotFound
	}
	return task, nil
}

// renumberLane rewrites a lane's task orders as a dense 0..n-1 sequence,
// preserving the current relative order.
func renumberLane(board *domain.Board, lane domain.LaneID) {
	for i, task := range board.TasksInLane(lane) {
		task.Order = i
	}
}

// publishStatus emits a statusUpdate event, optionally carrying a lane
// advance for the client to apply.
func publishStatus(bus domain.EventBus, taskID string, status domain.Status, moveTo domain.LaneID) {
	bus.Publish(domain.Event{
		Type:   domain.EventStatusUpdate,
		TaskID: taskID,
		Status: status,
		MoveTo: moveTo,
	})
}

// outputTypeForLane derives the structured-output type tag from the lane
// an agent run executed in.
func outputTypeForLane(lane domain.LaneID) string {
	switch lane {
	case domain.LaneDesign:
		return "design"
	case domain.LaneTest:
		return "test-report"
	default:
		return "implementation"
	}
}
