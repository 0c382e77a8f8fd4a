// Package app provides the dependency injection container for the application.
package app

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/taskdeck/taskdeck/internal/bus"
	"github.com/taskdeck/taskdeck/internal/domain"
	"github.com/taskdeck/taskdeck/internal/gateway"
	"github.com/taskdeck/taskdeck/internal/infra/agent"
	"github.com/taskdeck/taskdeck/internal/infra/artifacts"
	"github.com/taskdeck/taskdeck/internal/infra/config"
	"github.com/taskdeck/taskdeck/internal/infra/convstore"
	"github.com/taskdeck/taskdeck/internal/infra/git"
	"github.com/taskdeck/taskdeck/internal/infra/jsonstore"
	"github.com/taskdeck/taskdeck/internal/infra/logging"
	"github.com/taskdeck/taskdeck/internal/infra/worktree"
	"github.com/taskdeck/taskdeck/internal/session"
	"github.com/taskdeck/taskdeck/internal/stream"
	"github.com/taskdeck/taskdeck/internal/usecase"
)

// Paths holds the daemon-level filesystem locations.
type Paths struct {
	HomeDir      string // ~/.taskdeck
	RegistryPath string // ~/.taskdeck/projects.json
	LogsDir      string // ~/.taskdeck/logs
}

// newPaths derives the daemon paths from the user home directory.
func newPaths() (Paths, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return Paths{}, fmt.Errorf("resolve home directory: %w", err)
	}
	dir := filepath.Join(home, domain.DataDirName)
	return Paths{
		HomeDir:      dir,
		RegistryPath: filepath.Join(dir, "projects.json"),
		LogsDir:      filepath.Join(dir, "logs"),
	}, nil
}

// Container holds all port implementations and provides factory methods
// for use cases.
type Container struct {
	// Ports (interfaces bound to implementations)
	Projects      domain.ProjectRepository
	Tasks         domain.TaskRepository
	Conversations domain.ConversationStore
	Artifacts     domain.ArtifactStore
	Worktrees     domain.WorktreeManager
	Git           domain.Git
	Clock         domain.Clock
	Runtime       domain.AgentRuntime

	// Shared services
	Bus      *bus.Bus
	Sessions *session.Manager
	Relay    *stream.Relay
	Logger   *logging.Logger

	// Configuration
	Config *config.Config
	Paths  Paths
}

// New creates a Container for the daemon. dir is the working directory
// the process was started from; a project config there overlays the
// global one.
func New(dir string) (*Container, error) {
	paths, err := newPaths()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(paths.HomeDir, 0o750); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	cfg, err := config.NewLoader(dir).Load()
	if err != nil {
		return nil, err
	}

	logger := logging.New(paths.LogsDir, logging.ParseLevel(cfg.Log.Level))
	clock := domain.RealClock{}
	gitClient := git.NewClient()
	eventBus := bus.New()

	conversations := convstore.New(clock)
	runtime := agent.NewRuntime(cfg.Agent.Command, cfg.Agent.Args, logger)

	c := &Container{
		Projects:      jsonstore.NewProjectStore(paths.RegistryPath),
		Tasks:         jsonstore.NewBoardStore(clock),
		Conversations: conversations,
		Artifacts:     artifacts.New(clock),
		Worktrees:     worktree.NewManager(gitClient, clock, cfg.Agent.ConfigDir),
		Git:           gitClient,
		Clock:         clock,
		Runtime:       runtime,
		Bus:           eventBus,
		Sessions:      session.NewManager(runtime, logger),
		Relay:         stream.NewRelay(conversations, eventBus, clock, logger),
		Logger:        logger,
		Config:        cfg,
		Paths:         paths,
	}
	return c, nil
}

// Close stops every live session and releases the log files.
func (c *Container) Close() error {
	c.Sessions.StopAll()
	return c.Logger.Close()
}

// UseCase factory methods

// CreateTaskUseCase returns a new CreateTask use case.
func (c *Container) CreateTaskUseCase() *usecase.CreateTask {
	return usecase.NewCreateTask(c.Tasks, c.Worktrees, c.Clock, c.Logger)
}

// MoveTaskUseCase returns a new MoveTask use case.
func (c *Container) MoveTaskUseCase() *usecase.MoveTask {
	return usecase.NewMoveTask(c.Tasks, c.Worktrees, c.Git, c.Bus, c.Clock, c.Logger)
}

// ReorderTasksUseCase returns a new ReorderTasks use case.
func (c *Container) ReorderTasksUseCase() *usecase.ReorderTasks {
	return usecase.NewReorderTasks(c.Tasks, c.Logger)
}

// DeleteTaskUseCase returns a new DeleteTask use case.
func (c *Container) DeleteTaskUseCase() *usecase.DeleteTask {
	return usecase.NewDeleteTask(c.Tasks, c.Worktrees, c.Conversations, c.Artifacts, c.Sessions, c.Logger)
}

// CompleteRunUseCase returns a new CompleteRun use case.
func (c *Container) CompleteRunUseCase() *usecase.CompleteRun {
	return usecase.NewCompleteRun(c.Tasks, c.Bus, c.Clock, c.Logger)
}

// StartRunUseCase returns a new StartRun use case.
func (c *Container) StartRunUseCase() *usecase.StartRun {
	return usecase.NewStartRun(c.Tasks, c.Sessions, c.CompleteRunUseCase(), c.Bus, c.Clock, c.Logger)
}

// StopRunUseCase returns a new StopRun use case.
func (c *Container) StopRunUseCase() *usecase.StopRun {
	return usecase.NewStopRun(c.Tasks, c.Sessions, c.Bus, c.Clock, c.Logger)
}

// AttachSessionUseCase returns a new AttachSession use case.
func (c *Container) AttachSessionUseCase() *usecase.AttachSession {
	return usecase.NewAttachSession(c.Tasks, c.Sessions, c.Conversations)
}

// SendInputUseCase returns a new SendInput use case.
func (c *Container) SendInputUseCase() *usecase.SendInput {
	return usecase.NewSendInput(c.Tasks, c.Sessions, c.Relay)
}

// DesignRunUseCase returns a new DesignRun use case.
func (c *Container) DesignRunUseCase() *usecase.DesignRun {
	return usecase.NewDesignRun(c.Tasks, c.Sessions, c.Artifacts, c.Relay, c.MoveTaskUseCase(), c.Bus, c.Clock, c.Logger)
}

// ExecuteRunUseCase returns a new ExecuteRun use case.
func (c *Container) ExecuteRunUseCase() *usecase.ExecuteRun {
	return usecase.NewExecuteRun(c.Tasks, c.Sessions, c.Artifacts, c.Relay, c.CompleteRunUseCase(), c.Bus, c.Clock, c.Logger)
}

// GatewayServer returns the websocket gateway wired to the use cases.
func (c *Container) GatewayServer() *gateway.Server {
	return gateway.NewServer(c.Projects, c.Bus, gateway.Operations{
		Start:   c.StartRunUseCase(),
		Stop:    c.StopRunUseCase(),
		Attach:  c.AttachSessionUseCase(),
		Input:   c.SendInputUseCase(),
		Design:  c.DesignRunUseCase(),
		Execute: c.ExecuteRunUseCase(),

		BaseBranch: c.Config.Git.BaseBranch,
	}, c.Logger)
}
