// Package artifacts persists generated design and plan documents as
// markdown files with a YAML frontmatter header.
package artifacts

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/taskdeck/taskdeck/internal/domain"
)

const frontmatterDelim = "---\n"

// frontmatter is the metadata header written above each artifact body.
type frontmatter struct {
	Title   string    `yaml:"title"`
	Task    string    `yaml:"task"`
	Created time.Time `yaml:"created"`
}

// Store implements domain.ArtifactStore.
type Store struct {
	clock domain.Clock
}

// New creates a new artifact store.
func New(clock domain.Clock) *Store {
	return &Store{clock: clock}
}

// Ensure Store implements domain.ArtifactStore.
var _ domain.ArtifactStore = (*Store)(nil)

// WriteDesign writes the design artifact and returns its project-relative path.
func (s *Store) WriteDesign(projectPath, taskID, title, content string) (string, error) {
	rel := domain.DesignPath(taskID)
	if err := s.write(filepath.Join(projectPath, rel), taskID, title, content); err != nil {
		return "", err
	}
	return rel, nil
}

// WritePlan writes the plan artifact and returns its project-relative path.
func (s *Store) WritePlan(projectPath, taskID, title, content string) (string, error) {
	rel := domain.PlanPath(taskID)
	if err := s.write(filepath.Join(projectPath, rel), taskID, title, content); err != nil {
		return "", err
	}
	return rel, nil
}

// ReadDesign returns the design artifact body with the frontmatter stripped.
func (s *Store) ReadDesign(projectPath, taskID string) (string, error) {
	path := filepath.Join(projectPath, domain.DesignPath(taskID))
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", domain.ErrNoDesign
		}
		return "", fmt.Errorf("read design artifact: %w", err)
	}
	_, body := splitFrontmatter(string(raw))
	return body, nil
}

// Delete removes any artifacts generated for the task. Missing files are
// not an error.
func (s *Store) Delete(projectPath, taskID string) error {
	for _, rel := range []string{domain.DesignPath(taskID), domain.PlanPath(taskID)} {
		if err := os.Remove(filepath.Join(projectPath, rel)); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("delete artifact: %w", err)
		}
	}
	return nil
}

func (s *Store) write(path, taskID, title, content string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("create artifact directory: %w", err)
	}

	meta, err := yaml.Marshal(frontmatter{
		Title:   title,
		Task:    taskID,
		Created: s.clock.Now(),
	})
	if err != nil {
		return fmt.Errorf("marshal artifact frontmatter: %w", err)
	}

	var buf bytes.Buffer
	buf.WriteString(frontmatterDelim)
	buf.Write(meta)
	buf.WriteString(frontmatterDelim)
	buf.WriteString("\n")
	buf.WriteString(content)
	if !strings.HasSuffix(content, "\n") {
		buf.WriteString("\n")
	}

	if err := os.WriteFile(path, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("write artifact: %w", err)
	}
	return nil
}

// splitFrontmatter separates the YAML header from the body. Documents
// without a header are returned whole.
func splitFrontmatter(raw string) (header, body string) {
	if !strings.HasPrefix(raw, frontmatterDelim) {
		return "", raw
	}
	rest := raw[len(frontmatterDelim):]
	idx := strings.Index(rest, frontmatterDelim)
	if idx < 0 {
		return "", raw
	}
	header = rest[:idx]
	body = strings.TrimPrefix(rest[idx+len(frontmatterDelim):], "\n")
	return header, body
}
