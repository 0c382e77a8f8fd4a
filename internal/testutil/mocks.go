// Package testutil provides shared test utilities and mock implementations.
package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/taskdeck/taskdeck/internal/domain"
)

// MockClock is a test double for domain.Clock.
type MockClock struct {
	NowTime time.Time
}

// Now returns the configured time.
func (m *MockClock) Now() time.Time {
	if m.NowTime.IsZero() {
		return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	}
	return m.NowTime
}

// NopLogger is a domain.Logger that discards everything.
type NopLogger struct{}

func (NopLogger) Debug(string, string, string) {}
func (NopLogger) Info(string, string, string)  {}
func (NopLogger) Warn(string, string, string)  {}
func (NopLogger) Error(string, string, string) {}

// MockTaskRepository is a test double for domain.TaskRepository.
// All projects share one in-memory board.
type MockTaskRepository struct {
	Tasks    map[string]*domain.Task
	Lanes    []domain.Lane
	SaveErr  error
	GetErr   error
	mu       sync.Mutex
}

// NewMockTaskRepository creates a new MockTaskRepository.
func NewMockTaskRepository() *MockTaskRepository {
	return &MockTaskRepository{
		Tasks: make(map[string]*domain.Task),
		Lanes: domain.DefaultLanes(),
	}
}

// Board returns the in-memory board.
func (m *MockTaskRepository) Board(string) (*domain.Board, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return &domain.Board{Lanes: m.Lanes, Tasks: m.Tasks}, nil
}

// Get retrieves a task by ID.
func (m *MockTaskRepository) Get(_, taskID string) (*domain.Task, error) {
	if m.GetErr != nil {
		return nil, m.GetErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Tasks[taskID], nil
}

// Save creates or updates a task.
func (m *MockTaskRepository) Save(_ string, task *domain.Task) error {
	if m.SaveErr != nil {
		return m.SaveErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Tasks[task.ID] = task
	return nil
}

// Delete removes a task record.
func (m *MockTaskRepository) Delete(_, taskID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.Tasks, taskID)
	return nil
}

// Mutate applies fn to the in-memory board.
func (m *MockTaskRepository) Mutate(_ string, fn func(*domain.Board) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fn(&domain.Board{Lanes: m.Lanes, Tasks: m.Tasks})
}

// MockConversationStore is a test double for domain.ConversationStore.
type MockConversationStore struct {
	Logs      map[string]*domain.ConversationLog
	SaveErr   error
	Deleted   []string
	DeleteErr error
	mu        sync.Mutex
}

// NewMockConversationStore creates a new MockConversationStore.
func NewMockConversationStore() *MockConversationStore {
	return &MockConversationStore{Logs: make(map[string]*domain.ConversationLog)}
}

// Load returns the log for a task, or an empty log.
func (m *MockConversationStore) Load(_, taskID string) (*domain.ConversationLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if log, ok := m.Logs[taskID]; ok {
		return log, nil
	}
	return &domain.ConversationLog{}, nil
}

// Append adds one message to the log.
func (m *MockConversationStore) Append(_, taskID string, msg domain.ConversationMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	log, ok := m.Logs[taskID]
	if !ok {
		log = &domain.ConversationLog{}
		m.Logs[taskID] = log
	}
	log.Messages = append(log.Messages, msg)
	return nil
}

// Mutate applies fn to the in-memory log. SaveErr fails the write-back
// after fn runs, matching the real store's write failure mode.
func (m *MockConversationStore) Mutate(_, taskID string, fn func(*domain.ConversationLog) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	log, ok := m.Logs[taskID]
	if !ok {
		log = &domain.ConversationLog{}
	}
	if err := fn(log); err != nil {
		return err
	}
	if m.SaveErr != nil {
		return m.SaveErr
	}
	m.Logs[taskID] = log
	return nil
}

// Delete removes the log.
func (m *MockConversationStore) Delete(_, taskID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Deleted = append(m.Deleted, taskID)
	if m.DeleteErr != nil {
		return m.DeleteErr
	}
	delete(m.Logs, taskID)
	return nil
}

// MockArtifactStore is a test double for domain.ArtifactStore.
type MockArtifactStore struct {
	Designs   map[string]string
	Plans     map[string]string
	Deleted   []string
	WriteErr  error
	DeleteErr error
}

// NewMockArtifactStore creates a new MockArtifactStore.
func NewMockArtifactStore() *MockArtifactStore {
	return &MockArtifactStore{
		Designs: make(map[string]string),
		Plans:   make(map[string]string),
	}
}

// WriteDesign records the design content.
func (m *MockArtifactStore) WriteDesign(_, taskID, _, content string) (string, error) {
	if m.WriteErr != nil {
		return "", m.WriteErr
	}
	m.Designs[taskID] = content
	return domain.DesignPath(taskID), nil
}

// WritePlan records the plan content.
func (m *MockArtifactStore) WritePlan(_, taskID, _, content string) (string, error) {
	if m.WriteErr != nil {
		return "", m.WriteErr
	}
	m.Plans[taskID] = content
	return domain.PlanPath(taskID), nil
}

// ReadDesign returns the recorded design content.
func (m *MockArtifactStore) ReadDesign(_, taskID string) (string, error) {
	content, ok := m.Designs[taskID]
	if !ok {
		return "", domain.ErrNoDesign
	}
	return content, nil
}

// Delete records the deletion.
func (m *MockArtifactStore) Delete(_, taskID string) error {
	m.Deleted = append(m.Deleted, taskID)
	if m.DeleteErr != nil {
		return m.DeleteErr
	}
	delete(m.Designs, taskID)
	delete(m.Plans, taskID)
	return nil
}

// MockWorktreeManager is a test double for domain.WorktreeManager.
type MockWorktreeManager struct {
	CreateFn     func(projectPath, taskID, baseBranch string) (*domain.Worktree, error)
	MergeResult  domain.MergeResult
	RemoveErr    error
	CreateCalls  int
	RemoveCalls  int
	MergeCalls   int
	CleanupCalls int
}

// Create delegates to CreateFn or returns a default worktree.
func (m *MockWorktreeManager) Create(projectPath, taskID, baseBranch string) (*domain.Worktree, error) {
	m.CreateCalls++
	if m.CreateFn != nil {
		return m.CreateFn(projectPath, taskID, baseBranch)
	}
	return &domain.Worktree{
		Path:      domain.WorktreePath(projectPath, taskID),
		Branch:    domain.BranchName(taskID),
		CreatedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}, nil
}

// Remove records the call.
func (m *MockWorktreeManager) Remove(string, string) error {
	m.RemoveCalls++
	return m.RemoveErr
}

// Merge returns the configured result.
func (m *MockWorktreeManager) Merge(string, string, string, string) domain.MergeResult {
	m.MergeCalls++
	return m.MergeResult
}

// Cleanup records the call.
func (m *MockWorktreeManager) Cleanup(string) error {
	m.CleanupCalls++
	return nil
}

// MockGit is a test double for domain.Git. Zero value behaves like a
// repository on branch main with commits and a clean tree.
type MockGit struct {
	CurrentBranchVal string
	CurrentBranchErr error
	NotRepo          bool
}

func (m *MockGit) IsRepository(string) bool { return !m.NotRepo }

func (m *MockGit) HasCommits(string) (bool, error) { return true, nil }

func (m *MockGit) InitialCommit(string, []string) error { return nil }

// CurrentBranch returns the configured branch, defaulting to main.
func (m *MockGit) CurrentBranch(string) (string, error) {
	if m.CurrentBranchErr != nil {
		return "", m.CurrentBranchErr
	}
	if m.CurrentBranchVal == "" {
		return "main", nil
	}
	return m.CurrentBranchVal, nil
}

func (m *MockGit) RemoteDefaultBranch(string) (string, error) { return "main", nil }

func (m *MockGit) BranchExists(string, string) (bool, error) { return false, nil }

func (m *MockGit) HasUncommittedChanges(string) (bool, error) { return false, nil }

func (m *MockGit) CommitAll(string, string) error { return nil }

func (m *MockGit) CommitsAhead(string, string, string) (int, error) { return 0, nil }

func (m *MockGit) Checkout(string, string) error { return nil }

func (m *MockGit) Merge(string, string, string) error { return nil }

func (m *MockGit) AbortMerge(string) error { return nil }

func (m *MockGit) IsAncestor(string, string) (bool, error) { return true, nil }

func (m *MockGit) DeleteBranch(string, string, bool) error { return nil }

func (m *MockGit) WorktreeAdd(string, string, string, string, bool) error { return nil }

func (m *MockGit) WorktreeRemove(string, string) error { return nil }

func (m *MockGit) WorktreePrune(string) error { return nil }

// FakeStream is a scriptable domain.AgentStream.
type FakeStream struct {
	ch      chan domain.AgentEvent
	Sent    []string
	mu      sync.Mutex
	closed  bool
	SendErr error
}

// NewFakeStream creates a FakeStream with a buffered event channel.
func NewFakeStream() *FakeStream {
	return &FakeStream{ch: make(chan domain.AgentEvent, 64)}
}

// Emit pushes an event into the stream.
func (f *FakeStream) Emit(ev domain.AgentEvent) {
	f.ch <- ev
}

// Finish closes the event channel, ending the stream.
func (f *FakeStream) Finish() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		close(f.ch)
	}
}

// Events returns the event channel.
func (f *FakeStream) Events() <-chan domain.AgentEvent {
	return f.ch
}

// Send records the text.
func (f *FakeStream) Send(_ context.Context, text string) error {
	if f.SendErr != nil {
		return f.SendErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Sent = append(f.Sent, text)
	return nil
}

// Close ends the stream.
func (f *FakeStream) Close() error {
	f.Finish()
	return nil
}

// Closed reports whether the stream was closed.
func (f *FakeStream) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// FakeRuntime is a scriptable domain.AgentRuntime.
type FakeRuntime struct {
	Streams   []*FakeStream
	OpenErr   error
	OpenCalls int
	mu        sync.Mutex
}

// Open returns the next scripted stream, or a fresh one.
func (f *FakeRuntime) Open(_ context.Context, _ domain.OpenStreamOptions) (domain.AgentStream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.OpenCalls++
	if f.OpenErr != nil {
		return nil, f.OpenErr
	}
	if len(f.Streams) >= f.OpenCalls {
		return f.Streams[f.OpenCalls-1], nil
	}
	s := NewFakeStream()
	f.Streams = append(f.Streams, s)
	return s, nil
}

// CollectBus drains a bus subscription into a slice until the done func is
// called. Events are recorded in arrival order.
type CollectBus struct {
	Events []domain.Event
	mu     sync.Mutex
}

// Publish records the event.
func (c *CollectBus) Publish(event domain.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Events = append(c.Events, event)
}

// Subscribe is not supported on CollectBus.
func (c *CollectBus) Subscribe() (<-chan domain.Event, func()) {
	ch := make(chan domain.Event)
	close(ch)
	return ch, func() {}
}

// Snapshot returns a copy of the recorded events.
func (c *CollectBus) Snapshot() []domain.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]domain.Event(nil), c.Events...)
}

// ByType filters recorded events by type.
func (c *CollectBus) ByType(t domain.EventType) []domain.Event {
	var out []domain.Event
	for _, ev := range c.Snapshot() {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}
