package usecase

import (
	"context"
	"fmt"

	"github.com/taskdeck/taskdeck/internal/domain"
)

// CompleteRunInput carries a run's terminal signal into the board.
// Fields are ordered to minimize memory padding.
type CompleteRunInput struct {
	Structured  *domain.StructuredOutput // optional schema-validated payload
	ProjectPath string
	TaskID      string
	MoveTo      domain.LaneID // explicit lane target; empty applies the implicit advance
	Failed      bool
	ErrMessage  string
}

// CompleteRunOutput contains the applied status and lane.
type CompleteRunOutput struct {
	Task    *domain.Task
	MovedTo domain.LaneID // empty when no lane change happened
}

// CompleteRun applies an agent run's completion signal to the task.
type CompleteRun struct {
	tasks  domain.TaskRepository
	bus    domain.EventBus
	clock  domain.Clock
	logger domain.Logger
}

// NewCompleteRun creates a new CompleteRun use case.
func NewCompleteRun(tasks domain.TaskRepository, bus domain.EventBus, clock domain.Clock, logger domain.Logger) *CompleteRun {
	return &CompleteRun{tasks: tasks, bus: bus, clock: clock, logger: logger}
}

// Execute records a run's outcome. A successful completion with no
// explicit target applies the implicit lane advance (develop to test,
// test to pending-merge); other lanes do not auto-advance. A failed run
// marks the task failed and never moves it.
func (uc *CompleteRun) Execute(_ context.Context, in CompleteRunInput) (*CompleteRunOutput, error) {
	var task *domain.Task
	var movedTo domain.LaneID

	err := uc.tasks.Mutate(in.ProjectPath, func(board *domain.Board) error {
		current, ok := board.Tasks[in.TaskID]
		if !ok {
			return domain.ErrTaskNotFound
		}

		status := domain.StatusCompleted
		if in.Failed {
			status = domain.StatusFailed
		}
		if !current.Status.CanTransitionTo(status) && current.Status != status {
			return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidStatus, current.Status, status)
		}

		if !in.Failed {
			ranIn := current.LaneID
			target := in.MoveTo
			if target == "" {
				if next, ok := current.LaneID.NextOnComplete(); ok {
					target = next
				}
			}
			if target != "" && target != current.LaneID {
				current.LaneID = target
				current.Order = len(board.TasksInLane(target)) - 1
				renumberLane(board, ranIn)
				renumberLane(board, target)
				movedTo = target
			}
			if in.Structured != nil {
				out := *in.Structured
				if out.Type == "" {
					out.Type = outputTypeForLane(ranIn)
				}
				if out.SchemaVersion == 0 {
					out.SchemaVersion = 1
				}
				out.Timestamp = uc.clock.Now()
				current.StructuredOutput = &out
			}
		}

		current.Status = status
		current.UpdatedAt = uc.clock.Now()
		task = current
		return nil
	})
	if err != nil {
		return nil, err
	}

	publishStatus(uc.bus, task.ID, task.Status, movedTo)
	if task.StructuredOutput != nil && !in.Failed && in.Structured != nil {
		uc.bus.Publish(domain.Event{
			Type:       domain.EventStructuredOutput,
			TaskID:     task.ID,
			Structured: task.StructuredOutput,
		})
	}
	if in.Failed {
		uc.bus.Publish(domain.Event{Type: domain.EventError, TaskID: task.ID, Message: in.ErrMessage})
		uc.logger.Error(task.ID, "run", "run failed: "+in.ErrMessage)
	} else {
		uc.logger.Info(task.ID, "run", "run completed")
	}

	return &CompleteRunOutput{Task: task, MovedTo: movedTo}, nil
}
