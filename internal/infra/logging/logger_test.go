package logging

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"unknown", slog.LevelInfo}, // default
		{"", slog.LevelInfo},        // default
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := ParseLevel(tt.input)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestLogger_Info(t *testing.T) {
	logsDir := t.TempDir()
	logger := New(logsDir, slog.LevelInfo)
	defer func() { _ = logger.Close() }()

	logger.Info("a1b2", "session", "test message")

	content, err := os.ReadFile(filepath.Join(logsDir, "taskdeck.log"))
	require.NoError(t, err)
	assert.Contains(t, string(content), "[INFO]")
	assert.Contains(t, string(content), "[task-a1b2]")
	assert.Contains(t, string(content), "[session]")
	assert.Contains(t, string(content), "test message")

	taskContent, err := os.ReadFile(filepath.Join(logsDir, "task-a1b2.log"))
	require.NoError(t, err)
	assert.Contains(t, string(taskContent), "test message")
}

func TestLogger_GlobalLogOnly(t *testing.T) {
	logsDir := t.TempDir()
	logger := New(logsDir, slog.LevelInfo)
	defer func() { _ = logger.Close() }()

	logger.Info("", "system", "global message")

	content, err := os.ReadFile(filepath.Join(logsDir, "taskdeck.log"))
	require.NoError(t, err)
	assert.Contains(t, string(content), "[global]")
	assert.Contains(t, string(content), "global message")

	// No task log file for empty taskID
	_, err = os.Stat(filepath.Join(logsDir, "task-.log"))
	assert.True(t, os.IsNotExist(err))
}

func TestLogger_LevelFiltering(t *testing.T) {
	logsDir := t.TempDir()
	logger := New(logsDir, slog.LevelWarn) // Only warn and above
	defer func() { _ = logger.Close() }()

	logger.Debug("t1", "session", "debug message")
	logger.Info("t1", "session", "info message")
	logger.Warn("t1", "session", "warn message")
	logger.Error("t1", "session", "error message")

	content, err := os.ReadFile(filepath.Join(logsDir, "taskdeck.log"))
	require.NoError(t, err)
	assert.NotContains(t, string(content), "debug message")
	assert.NotContains(t, string(content), "info message")
	assert.Contains(t, string(content), "warn message")
	assert.Contains(t, string(content), "error message")
}

func TestLogger_DisabledWhenEmptyDir(t *testing.T) {
	logger := New("", slog.LevelInfo)
	defer func() { _ = logger.Close() }()

	// Should not panic
	logger.Info("t1", "session", "test message")
	logger.Error("t1", "session", "error message")
}

func TestLogger_LogFormat(t *testing.T) {
	logsDir := t.TempDir()
	logger := New(logsDir, slog.LevelInfo)
	defer func() { _ = logger.Close() }()

	logger.Info("f00d", "usecase", `task created: "my task"`)

	content, err := os.ReadFile(filepath.Join(logsDir, "taskdeck.log"))
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(content)), "\n")
	require.Len(t, lines, 1)

	// Format: [timestamp] [INFO] [task-f00d] [usecase] message
	line := lines[0]
	assert.Contains(t, line, "[INFO]")
	assert.Contains(t, line, "[task-f00d]")
	assert.Contains(t, line, "[usecase]")
	assert.Contains(t, line, `task created: "my task"`)
}

func TestLogger_MultipleTaskFiles(t *testing.T) {
	logsDir := t.TempDir()
	logger := New(logsDir, slog.LevelInfo)
	defer func() { _ = logger.Close() }()

	logger.Info("a", "session", "message for task a")
	logger.Info("b", "session", "message for task b")
	logger.Info("a", "session", "another message for task a")

	globalContent, err := os.ReadFile(filepath.Join(logsDir, "taskdeck.log"))
	require.NoError(t, err)
	assert.Contains(t, string(globalContent), "message for task a")
	assert.Contains(t, string(globalContent), "message for task b")

	taskA, err := os.ReadFile(filepath.Join(logsDir, "task-a.log"))
	require.NoError(t, err)
	assert.Contains(t, string(taskA), "message for task a")
	assert.Contains(t, string(taskA), "another message for task a")
	assert.NotContains(t, string(taskA), "message for task b")

	taskB, err := os.ReadFile(filepath.Join(logsDir, "task-b.log"))
	require.NoError(t, err)
	assert.Contains(t, string(taskB), "message for task b")
	assert.NotContains(t, string(taskB), "message for task a")
}

func TestLogger_CreatesLogsDir(t *testing.T) {
	logsDir := filepath.Join(t.TempDir(), "nested", "logs")

	logger := New(logsDir, slog.LevelInfo)
	defer func() { _ = logger.Close() }()
	logger.Info("t1", "session", "test message")

	stat, err := os.Stat(logsDir)
	require.NoError(t, err)
	assert.True(t, stat.IsDir())
}
