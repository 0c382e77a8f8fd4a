package domain

import (
	"context"
	"slices"
	"strings"
	"time"
)

// Board is the persisted per-project record: fixed lanes plus tasks.
type Board struct {
	UpdatedAt time.Time        `json:"updatedAt"`
	Tasks     map[string]*Task `json:"tasks"`
	Lanes     []Lane           `json:"lanes"`
}

// TasksInLane returns the tasks in a lane sorted by board order.
func (b *Board) TasksInLane(lane LaneID) []*Task {
	var out []*Task
	for _, t := range b.Tasks {
		if t.LaneID == lane {
			out = append(out, t)
		}
	}
	slices.SortFunc(out, func(a, b *Task) int {
		if a.Order != b.Order {
			return a.Order - b.Order
		}
		return strings.Compare(a.ID, b.ID)
	})
	return out
}

// ProjectRepository manages the project registry.
type ProjectRepository interface {
	// Get retrieves a project by ID. Returns nil if not found.
	Get(id string) (*Project, error)

	// List returns all registered projects.
	List() ([]*Project, error)

	// Save creates or updates a project.
	Save(project *Project) error

	// Delete removes a project from the registry.
	Delete(id string) error
}

// TaskRepository manages per-project board persistence.
// Mutations run as read-modify-write cycles under an exclusive lock so
// concurrent writers cannot clobber each other's changes.
type TaskRepository interface {
	// Board returns a snapshot of the project's board, initializing the
	// default lanes on first access.
	Board(projectPath string) (*Board, error)

	// Get retrieves a task. Returns nil if not found.
	Get(projectPath, taskID string) (*Task, error)

	// Save creates or updates a single task.
	Save(projectPath string, task *Task) error

	// Delete removes a task record.
	Delete(projectPath, taskID string) error

	// Mutate applies fn to the board atomically. The board passed to fn is
	// the current on-disk state; it is written back only if fn returns nil.
	Mutate(projectPath string, fn func(*Board) error) error
}

// ConversationStore persists per-task conversation logs.
// Mutations run as read-modify-write cycles under an exclusive lock so a
// live turn's chunk writes cannot race a user-input append on the same log.
type ConversationStore interface {
	// Load returns the log for a task, or an empty log if none exists.
	Load(projectPath, taskID string) (*ConversationLog, error)

	// Append adds one message to the log.
	Append(projectPath, taskID string, msg ConversationMessage) error

	// Mutate applies fn to the log atomically. The log passed to fn is the
	// current on-disk state; it is written back only if fn returns nil.
	Mutate(projectPath, taskID string, fn func(*ConversationLog) error) error

	// Delete removes the log file.
	Delete(projectPath, taskID string) error
}

// ArtifactStore persists generated design/plan documents.
type ArtifactStore interface {
	// WriteDesign writes the design artifact and returns its project-relative path.
	WriteDesign(projectPath, taskID, title, content string) (string, error)

	// WritePlan writes the plan artifact and returns its project-relative path.
	WritePlan(projectPath, taskID, title, content string) (string, error)

	// ReadDesign returns the design artifact body (without frontmatter).
	ReadDesign(projectPath, taskID string) (string, error)

	// Delete removes any artifacts generated for the task.
	Delete(projectPath, taskID string) error
}

// MergeResult reports the outcome of folding a task branch back into the
// target branch.
type MergeResult struct {
	Message  string
	Success  bool
	Conflict bool
}

// WorktreeManager maps one task to one isolated, branch-scoped working
// directory inside the project repository.
type WorktreeManager interface {
	// Create creates (or idempotently returns) the worktree for a task.
	// Returns (nil, nil) when projectPath is not version-controlled.
	Create(projectPath, taskID, baseBranch string) (*Worktree, error)

	// Remove force-removes the worktree registration and directory.
	// Conversation history lives outside the worktree and is not touched.
	Remove(projectPath, worktreePath string) error

	// Merge folds the task branch into targetBranch. The worktree is removed
	// only after the merge is verified as an ancestor of the target's HEAD.
	Merge(projectPath, worktreePath, branch, targetBranch string) MergeResult

	// Cleanup prunes stale worktree registrations.
	Cleanup(projectPath string) error
}

// Git provides the version-control operations the worktree manager composes.
type Git interface {
	// IsRepository reports whether dir is inside a git repository.
	IsRepository(dir string) bool

	// HasCommits reports whether the repository has at least one commit.
	HasCommits(dir string) (bool, error)

	// InitialCommit creates a bootstrap commit, staging everything except
	// the ignore list.
	InitialCommit(dir string, ignore []string) error

	// CurrentBranch returns the checked-out branch name.
	CurrentBranch(dir string) (string, error)

	// RemoteDefaultBranch returns the default branch of origin, if known.
	RemoteDefaultBranch(dir string) (string, error)

	// BranchExists checks if a local branch exists.
	BranchExists(dir, branch string) (bool, error)

	// HasUncommittedChanges checks for staged or unstaged changes in dir.
	HasUncommittedChanges(dir string) (bool, error)

	// CommitAll stages and commits everything in dir.
	CommitAll(dir, message string) error

	// CommitsAhead returns how many commits branch has over target.
	CommitsAhead(dir, branch, target string) (int, error)

	// Checkout switches dir to the given branch.
	Checkout(dir, branch string) error

	// Merge performs a non-fast-forward merge of branch with the message.
	Merge(dir, branch, message string) error

	// AbortMerge aborts an in-progress merge, leaving the repository clean.
	AbortMerge(dir string) error

	// IsAncestor reports whether branch is an ancestor of HEAD in dir.
	IsAncestor(dir, branch string) (bool, error)

	// DeleteBranch deletes a local branch.
	DeleteBranch(dir, branch string, force bool) error

	// WorktreeAdd registers a worktree at path. When newBranch is true the
	// branch is created from baseBranch as part of the same command.
	WorktreeAdd(dir, path, branch, baseBranch string, newBranch bool) error

	// WorktreeRemove force-removes a worktree registration.
	WorktreeRemove(dir, path string) error

	// WorktreePrune removes stale worktree registrations.
	WorktreePrune(dir string) error
}

// OpenStreamOptions configures an agent stream.
type OpenStreamOptions struct {
	OutputSchema    map[string]any
	WorkingDir      string
	Prompt          string
	ResumeSessionID string
}

// AgentStream is one live bidirectional event stream against the external
// agent runtime.
type AgentStream interface {
	// Events returns the stream's event channel. The channel is closed when
	// the stream terminates.
	Events() <-chan AgentEvent

	// Send enqueues a user turn into the stream.
	Send(ctx context.Context, text string) error

	// Close tears down the stream. Safe to call more than once.
	Close() error
}

// AgentRuntime opens event streams against the external agent process.
type AgentRuntime interface {
	Open(ctx context.Context, opts OpenStreamOptions) (AgentStream, error)
}

// EventBus is the in-process publish/subscribe channel between the core and
// the gateway, keyed by task ID.
type EventBus interface {
	// Publish delivers an event to all current subscribers.
	Publish(event Event)

	// Subscribe returns a channel of events and an unsubscribe func.
	Subscribe() (<-chan Event, func())
}

// Logger writes categorized log lines, optionally scoped to a task.
type Logger interface {
	Debug(taskID, category, msg string)
	Info(taskID, category, msg string)
	Warn(taskID, category, msg string)
	Error(taskID, category, msg string)
}

// Clock provides time operations for testability.
type Clock interface {
	// Now returns the current time.
	Now() time.Time
}

// RealClock implements Clock using the system clock.
type RealClock struct{}

// Now returns the current time.
func (RealClock) Now() time.Time {
	return time.Now()
}
