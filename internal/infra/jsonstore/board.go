// Package jsonstore provides flock-guarded JSON file persistence for the
// project registry and per-project boards. Every mutation is a
// read-modify-write cycle under an exclusive lock, so concurrent writers
// cannot clobber each other's unrelated changes.
package jsonstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"syscall"

	"github.com/taskdeck/taskdeck/internal/domain"
)

// BoardStore implements domain.TaskRepository using one JSON file per
// project at <project>/.taskdeck/board.json.
type BoardStore struct {
	clock domain.Clock
}

// NewBoardStore creates a new BoardStore.
func NewBoardStore(clock domain.Clock) *BoardStore {
	return &BoardStore{clock: clock}
}

// Ensure BoardStore implements domain.TaskRepository.
var _ domain.TaskRepository = (*BoardStore)(nil)

// Board returns a snapshot of the project's board, initializing the default
// lanes on first access.
func (s *BoardStore) Board(projectPath string) (*domain.Board, error) {
	var snapshot *domain.Board
	err := withLock(domain.BoardPath(projectPath), syscall.LOCK_SH, func(path string) error {
		board, err := readBoard(path)
		if err != nil {
			return err
		}
		snapshot = board
		return nil
	})
	return snapshot, err
}

// Get retrieves a task. Returns nil if not found.
func (s *BoardStore) Get(projectPath, taskID string) (*domain.Task, error) {
	board, err := s.Board(projectPath)
	if err != nil {
		return nil, err
	}
	return board.Tasks[taskID], nil
}

// Save creates or updates a single task.
func (s *BoardStore) Save(projectPath string, task *domain.Task) error {
	return s.Mutate(projectPath, func(board *domain.Board) error {
		board.Tasks[task.ID] = task
		return nil
	})
}

// Delete removes a task record.
func (s *BoardStore) Delete(projectPath, taskID string) error {
	return s.Mutate(projectPath, func(board *domain.Board) error {
		delete(board.Tasks, taskID)
		return nil
	})
}

// Mutate applies fn to the board atomically: the current on-disk state is
// read under an exclusive lock, fn mutates it, and the result is written
// back via temp-file rename only if fn returns nil.
func (s *BoardStore) Mutate(projectPath string, fn func(*domain.Board) error) error {
	return withLock(domain.BoardPath(projectPath), syscall.LOCK_EX, func(path string) error {
		board, err := readBoard(path)
		if err != nil {
			return err
		}
		if err := fn(board); err != nil {
			return err
		}
		board.UpdatedAt = s.clock.Now()
		return writeJSON(path, board)
	})
}

// readBoard loads the board file, returning an initialized board with the
// fixed lane set when the file does not exist yet.
func readBoard(path string) (*domain.Board, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &domain.Board{
				Lanes: domain.DefaultLanes(),
				Tasks: make(map[string]*domain.Task),
			}, nil
		}
		return nil, fmt.Errorf("read board file: %w", err)
	}

	var board domain.Board
	if err := json.Unmarshal(content, &board); err != nil {
		return nil, fmt.Errorf("parse board file: %w", err)
	}
	if board.Tasks == nil {
		board.Tasks = make(map[string]*domain.Task)
	}
	if len(board.Lanes) == 0 {
		board.Lanes = domain.DefaultLanes()
	}
	return &board, nil
}

// withLock runs fn while holding a flock on <path>.lock.
func withLock(path string, lockType int, fn func(path string) error) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create store directory: %w", err)
	}

	lock, err := os.OpenFile(path+".lock", os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return fmt.Errorf("open lock file: %w", err)
	}
	defer func() { _ = lock.Close() }()

	if err := syscall.Flock(int(lock.Fd()), lockType); err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	defer func() { _ = syscall.Flock(int(lock.Fd()), syscall.LOCK_UN) }()

	return fn(path)
}

// writeJSON writes content to a temp file and renames it into place.
func writeJSON(path string, v any) error {
	content, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal store data: %w", err)
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, content, 0o600); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}
