// Package convstore persists per-task conversation logs as JSON files
// under <project>/.taskdeck/conversations/. Logs live outside the task's
// worktree so they survive worktree removal.
package convstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"syscall"

	"github.com/taskdeck/taskdeck/internal/domain"
)

// Store implements domain.ConversationStore.
type Store struct {
	clock domain.Clock
}

// New creates a new conversation store.
func New(clock domain.Clock) *Store {
	return &Store{clock: clock}
}

// Ensure Store implements domain.ConversationStore.
var _ domain.ConversationStore = (*Store)(nil)

// Load returns the log for a task, or an empty log if none exists.
func (s *Store) Load(projectPath, taskID string) (*domain.ConversationLog, error) {
	path := domain.ConversationPath(projectPath, taskID)

	var log *domain.ConversationLog
	err := withLock(path, syscall.LOCK_SH, func() error {
		var readErr error
		log, readErr = readLog(path)
		return readErr
	})
	if err != nil {
		return nil, err
	}
	return log, nil
}

// Append adds one message to the log. Messages are append-only and keep
// arrival order.
func (s *Store) Append(projectPath, taskID string, msg domain.ConversationMessage) error {
	return s.Mutate(projectPath, taskID, func(log *domain.ConversationLog) error {
		log.Messages = append(log.Messages, msg)
		return nil
	})
}

// Mutate applies fn to the log atomically: the exclusive lock is held
// across the whole read-modify-write cycle, so a live turn's chunk
// persistence and a user-input append on the same log cannot drop each
// other's messages.
func (s *Store) Mutate(projectPath, taskID string, fn func(*domain.ConversationLog) error) error {
	path := domain.ConversationPath(projectPath, taskID)
	return withLock(path, syscall.LOCK_EX, func() error {
		log, err := readLog(path)
		if err != nil {
			return err
		}
		if err := fn(log); err != nil {
			return err
		}
		now := s.clock.Now()
		if log.CreatedAt.IsZero() {
			log.CreatedAt = now
		}
		log.UpdatedAt = now
		return writeAtomic(path, log)
	})
}

// Delete removes the log file. Missing files are not an error.
func (s *Store) Delete(projectPath, taskID string) error {
	path := domain.ConversationPath(projectPath, taskID)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete conversation log: %w", err)
	}
	_ = os.Remove(path + ".lock")
	return nil
}

// readLog loads the log file, returning an empty log when the file does
// not exist yet. Callers must hold the lock.
func readLog(path string) (*domain.ConversationLog, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &domain.ConversationLog{}, nil
		}
		return nil, fmt.Errorf("read conversation log: %w", err)
	}

	var log domain.ConversationLog
	if err := json.Unmarshal(content, &log); err != nil {
		return nil, fmt.Errorf("parse conversation log: %w", err)
	}
	return &log, nil
}

func withLock(path string, lockType int, fn func() error) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("create conversations directory: %w", err)
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

	return fn()
}

func writeAtomic(path string, v any) error {
	content, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal conversation log: %w", err)
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
