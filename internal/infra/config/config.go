// Package config provides configuration loading for taskdeck.
// Configuration is merged from three layers: built-in defaults, the
// global file (~/.config/taskdeck/config.toml), and the per-project
// file (<project>/.taskdeck/config.toml). Later layers take precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"

	"github.com/taskdeck/taskdeck/internal/domain"
)

// ConfigFileName is the file name used at every layer.
const ConfigFileName = "config.toml"

// Config is the merged taskdeck configuration.
type Config struct {
	Server ServerConfig `toml:"server"`
	Agent  AgentConfig  `toml:"agent"`
	Git    GitConfig    `toml:"git"`
	Log    LogConfig    `toml:"log"`
}

// ServerConfig configures the gateway listener.
type ServerConfig struct {
	// Listen is the address the websocket gateway binds to.
	Listen string `toml:"listen"`
}

// AgentConfig configures the external agent runtime.
type AgentConfig struct {
	// Command is the agent binary spoken to over ACP on stdio.
	Command string `toml:"command"`

	// Args are extra arguments passed to the agent command.
	Args []string `toml:"args"`

	// ConfigDir is a project-relative directory copied into each new
	// worktree so agent settings follow the task.
	ConfigDir string `toml:"config_dir"`
}

// GitConfig configures worktree creation.
type GitConfig struct {
	// BaseBranch overrides base branch detection for new worktrees.
	BaseBranch string `toml:"base_branch"`
}

// LogConfig configures file logging.
type LogConfig struct {
	Level string `toml:"level"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{Listen: "127.0.0.1:8920"},
		Agent:  AgentConfig{Command: "claude-code-acp"},
		Log:    LogConfig{Level: "info"},
	}
}

// Loader loads configuration from TOML files.
type Loader struct {
	projectPath   string
	globalConfDir string
}

// NewLoader creates a new Loader for a project.
func NewLoader(projectPath string) *Loader {
	return &Loader{
		projectPath:   projectPath,
		globalConfDir: defaultGlobalConfigDir(),
	}
}

// NewLoaderWithGlobalDir creates a new Loader with a custom global config
// directory. This is useful for testing.
func NewLoaderWithGlobalDir(projectPath, globalConfDir string) *Loader {
	return &Loader{
		projectPath:   projectPath,
		globalConfDir: globalConfDir,
	}
}

// defaultGlobalConfigDir returns the default global config directory.
func defaultGlobalConfigDir() string {
	configHome := os.Getenv("XDG_CONFIG_HOME")
	if configHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		configHome = filepath.Join(home, ".config")
	}
	return filepath.Join(configHome, "taskdeck")
}

// Load returns the merged configuration (defaults <- global <- project).
func (l *Loader) Load() (*Config, error) {
	base := Default()

	if l.globalConfDir != "" {
		global, err := loadFile(filepath.Join(l.globalConfDir, ConfigFileName))
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
		if global != nil {
			base = merge(base, global)
		}
	}

	if l.projectPath != "" {
		project, err := loadFile(filepath.Join(domain.DataDir(l.projectPath), ConfigFileName))
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
		if project != nil {
			base = merge(base, project)
		}
	}

	return base, nil
}

// loadFile loads a configuration layer from a file.
func loadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &cfg, nil
}

// merge overlays override onto base, field by field. Empty override
// fields keep the base value.
func merge(base, override *Config) *Config {
	result := *base

	if override.Server.Listen != "" {
		result.Server.Listen = override.Server.Listen
	}
	if override.Agent.Command != "" {
		result.Agent.Command = override.Agent.Command
	}
	if len(override.Agent.Args) > 0 {
		result.Agent.Args = override.Agent.Args
	}
	if override.Agent.ConfigDir != "" {
		result.Agent.ConfigDir = override.Agent.ConfigDir
	}
	if override.Git.BaseBranch != "" {
		result.Git.BaseBranch = override.Git.BaseBranch
	}
	if override.Log.Level != "" {
		result.Log.Level = override.Log.Level
	}

	return &result
}
