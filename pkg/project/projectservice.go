package project

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/illmade-knight/trackcam/pkg/geo"
	"github.com/illmade-knight/trackcam/pkg/videosync"
)

// Service provides the business logic for managing projects.
type Service struct {
	store Store
	now   func() time.Time
}

// NewService creates a project service over store.
func NewService(store Store) *Service {
	return &Service{store: store, now: func() time.Time { return time.Now().UTC() }}
}

// GetStore returns the underlying store.
func (s *Service) GetStore() Store {
	return s.store
}

// Save records req and the edits found in locations. A zero id creates a new
// project; otherwise the existing one is overwritten.
func (s *Service) Save(ctx context.Context, id uuid.UUID, name string, req videosync.Request, locations []geo.VideoLocation) (Project, error) {
	now := s.now()
	p := Project{
		ID:                  id,
		Name:                name,
		TrackPath:           req.TrackPath,
		VideoFolder:         req.VideoFolder,
		ForceTimestampSync:  req.ForceTimestampSync,
		CameraFilter:        req.CameraFilter,
		LocalTimezone:       req.LocalTimezone,
		ManualOffsetSeconds: req.ManualOffsetSeconds,
		VideoMetadata:       Collect(locations),
		UpdatedAt:           now,
		LastOpenedAt:        now,
	}
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.Name == "" {
		p.Name = filepath.Base(req.VideoFolder)
	}
	if err := s.store.Save(ctx, p); err != nil {
		return Project{}, fmt.Errorf("failed to save project: %w", err)
	}
	return p, nil
}

// Open marks a project as recently opened and returns it as stored after the
// touch.
func (s *Service) Open(ctx context.Context, id uuid.UUID) (Project, error) {
	if err := s.store.Touch(ctx, id); err != nil {
		if errors.Is(err, ErrNotFound) {
			return Project{}, err
		}
		return Project{}, fmt.Errorf("failed to update recent projects: %w", err)
	}
	return s.store.Get(ctx, id)
}

// Recent lists recently opened projects.
func (s *Service) Recent(ctx context.Context) ([]Project, error) {
	return s.store.ListRecent(ctx, MaxRecent)
}

// Delete removes a project.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	return s.store.Delete(ctx, id)
}
