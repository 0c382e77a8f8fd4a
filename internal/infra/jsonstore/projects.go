package jsonstore

import (
	"encoding/json"
	"fmt"
	"os"
	"slices"
	"strings"
	"syscall"

	"github.com/taskdeck/taskdeck/internal/domain"
)

// registryData is the on-disk shape of the project registry.
type registryData struct {
	Projects map[string]*domain.Project `json:"projects"`
}

// ProjectStore implements domain.ProjectRepository using a single JSON
// registry file (typically ~/.taskdeck/projects.json).
type ProjectStore struct {
	path string
}

// NewProjectStore creates a new ProjectStore for the given registry path.
func NewProjectStore(path string) *ProjectStore {
	return &ProjectStore{path: path}
}

// Ensure ProjectStore implements domain.ProjectRepository.
var _ domain.ProjectRepository = (*ProjectStore)(nil)

// Get retrieves a project by ID. Returns nil if not found.
func (s *ProjectStore) Get(id string) (*domain.Project, error) {
	var project *domain.Project
	err := withLock(s.path, syscall.LOCK_SH, func(path string) error {
		data, err := readRegistry(path)
		if err != nil {
			return err
		}
		project = data.Projects[id]
		return nil
	})
	return project, err
}

// List returns all registered projects sorted by name.
func (s *ProjectStore) List() ([]*domain.Project, error) {
	var projects []*domain.Project
	err := withLock(s.path, syscall.LOCK_SH, func(path string) error {
		data, err := readRegistry(path)
		if err != nil {
			return err
		}
		for _, p := range data.Projects {
			projects = append(projects, p)
		}
		return nil
	})
	slices.SortFunc(projects, func(a, b *domain.Project) int {
		return strings.Compare(a.Name, b.Name)
	})
	return projects, err
}

// Save creates or updates a project.
func (s *ProjectStore) Save(project *domain.Project) error {
	return withLock(s.path, syscall.LOCK_EX, func(path string) error {
		data, err := readRegistry(path)
		if err != nil {
			return err
		}
		data.Projects[project.ID] = project
		return writeJSON(path, data)
	})
}

// Delete removes a project from the registry.
func (s *ProjectStore) Delete(id string) error {
	return withLock(s.path, syscall.LOCK_EX, func(path string) error {
		data, err := readRegistry(path)
		if err != nil {
			return err
		}
		delete(data.Projects, id)
		return writeJSON(path, data)
	})
}

func readRegistry(path string) (*registryData, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &registryData{Projects: make(map[string]*domain.Project)}, nil
		}
		return nil, fmt.Errorf("read project registry: %w", err)
	}

	var data registryData
	if err := json.Unmarshal(content, &data); err != nil {
		return nil, fmt.Errorf("parse project registry: %w", err)
	}
	if data.Projects == nil {
		data.Projects = make(map[string]*domain.Project)
	}
	return &data, nil
}
