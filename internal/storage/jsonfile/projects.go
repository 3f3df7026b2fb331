// Package jsonfile stores projects as JSON documents in a local directory.
package jsonfile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/illmade-knight/trackcam/pkg/project"
)

const recentFile = "recent.json"

// ProjectsStore keeps one <id>.json file per project plus a recent.json index.
type ProjectsStore struct {
	mu  sync.Mutex
	dir string
}

// NewProjectsStore returns a store rooted at dir. The directory is created on
// first write.
func NewProjectsStore(dir string) *ProjectsStore {
	return &ProjectsStore{dir: dir}
}

func (s *ProjectsStore) path(id uuid.UUID) string {
	return filepath.Join(s.dir, id.String()+".json")
}

// Save writes p and moves it to the front of the recent list.
func (s *ProjectsStore) Save(ctx context.Context, p project.Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := writeJSON(s.path(p.ID), p); err != nil {
		return fmt.Errorf("failed to save project %s: %w", p.ID, err)
	}
	return s.pushRecent(p.ID)
}

// Get reads a project by ID.
func (s *ProjectsStore) Get(ctx context.Context, id uuid.UUID) (project.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var p project.Project
	found, err := readJSON(s.path(id), &p)
	if err != nil {
		return project.Project{}, fmt.Errorf("failed to load project %s: %w", id, err)
	}
	if !found {
		return project.Project{}, fmt.Errorf("%w: %s", project.ErrNotFound, id)
	}
	if p.VideoMetadata == nil {
		p.VideoMetadata = map[string]project.VideoEdit{}
	}
	return p, nil
}

// Delete removes a project file. The recent list is cleaned lazily by ListRecent.
func (s *ProjectsStore) Delete(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := os.Remove(s.path(id))
	if errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: %s", project.ErrNotFound, id)
	}
	if err != nil {
		return fmt.Errorf("failed to delete project %s: %w", id, err)
	}
	return nil
}

// Touch stamps LastOpenedAt and moves the project to the front of the recent list.
func (s *ProjectsStore) Touch(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var p project.Project
	found, err := readJSON(s.path(id), &p)
	if err != nil {
		return fmt.Errorf("failed to load project %s: %w", id, err)
	}
	if !found {
		return fmt.Errorf("%w: %s", project.ErrNotFound, id)
	}
	p.LastOpenedAt = time.Now().UTC()
	if err := writeJSON(s.path(id), p); err != nil {
		return fmt.Errorf("failed to save project %s: %w", id, err)
	}
	return s.pushRecent(id)
}

// ListRecent returns recently opened projects whose files still exist.
func (s *ProjectsStore) ListRecent(ctx context.Context, limit int) ([]project.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if limit <= 0 || limit > project.MaxRecent {
		limit = project.MaxRecent
	}
	ids, err := s.recent()
	if err != nil {
		return nil, err
	}
	var out []project.Project
	for _, id := range ids {
		var p project.Project
		found, err := readJSON(s.path(id), &p)
		if err != nil {
			return nil, fmt.Errorf("failed to load project %s: %w", id, err)
		}
		if !found {
			continue
		}
		out = append(out, p)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *ProjectsStore) recent() ([]uuid.UUID, error) {
	var ids []uuid.UUID
	if _, err := readJSON(filepath.Join(s.dir, recentFile), &ids); err != nil {
		return nil, fmt.Errorf("failed to read recent projects: %w", err)
	}
	return ids, nil
}

func (s *ProjectsStore) pushRecent(id uuid.UUID) error {
	ids, err := s.recent()
	if err != nil {
		return err
	}
	if err := writeJSON(filepath.Join(s.dir, recentFile), project.PushRecent(ids, id)); err != nil {
		return fmt.Errorf("failed to write recent projects: %w", err)
	}
	return nil
}

// readJSON decodes path into v. A missing or empty file reports found=false.
func readJSON(path string, v any) (bool, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read: %w", err)
	}
	if len(data) == 0 {
		return false, nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("decode: %w", err)
	}
	return true, nil
}

// writeJSON writes v to path through a temporary file and a rename.
func writeJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("open tmp: %w", err)
	}
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		f.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("encode: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("close tmp: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("rename tmp: %w", err)
	}
	return nil
}
