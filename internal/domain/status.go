package domain

// Status represents the execution state of a task, independent of its lane.
type Status string

const (
	StatusIdle      Status = "idle"      // No agent activity
	StatusRunning   Status = "running"   // Agent session consuming events
	StatusCompleted Status = "completed" // Last run finished successfully
	StatusFailed    Status = "failed"    // Last run ended in an error
)

// transitions defines the allowed status transitions.
// Flow: idle → running → {completed, failed} → idle
// A stop from running returns to idle; retries resume into running.
var transitions = map[Status][]Status{
	StatusIdle:      {StatusRunning},
	StatusRunning:   {StatusCompleted, StatusFailed, StatusIdle},
	StatusCompleted: {StatusIdle, StatusRunning},
	StatusFailed:    {StatusIdle, StatusRunning},
}

// CanTransitionTo returns true if the status can move to target.
func (s Status) CanTransitionTo(target Status) bool {
	for _, t := range transitions[s] {
		if t == target {
			return true
		}
	}
	return false
}

// IsValid returns true if the status is a known value.
func (s Status) IsValid() bool {
	switch s {
	case StatusIdle, StatusRunning, StatusCompleted, StatusFailed:
		return true
	default:
		return false
	}
}

// Display returns a human-readable representation of the status.
func (s Status) Display() string {
	switch s {
	case StatusIdle:
		return "Idle"
	case StatusRunning:
		return "Running"
	case StatusCompleted:
		return "Completed"
	case StatusFailed:
		return "Failed"
	default:
		return string(s)
	}
}
