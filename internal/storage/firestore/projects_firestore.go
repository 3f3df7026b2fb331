// Package firestore provides persistent storage implementations using Google Cloud Firestore.
package firestore

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/google/uuid"
	"github.com/illmade-knight/trackcam/pkg/camera"
	"github.com/illmade-knight/trackcam/pkg/project"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// videoEditDocument flattens one VideoMetadata entry. Video paths contain
// dots and slashes, so they are stored as values rather than map keys.
type videoEditDocument struct {
	VideoPath   string `firestore:"videoPath"`
	CustomName  string `firestore:"customName,omitempty"`
	CustomNote  string `firestore:"customNote,omitempty"`
	MarkerColor string `firestore:"markerColor,omitempty"`
	MarkerIcon  string `firestore:"markerIcon,omitempty"`
}

type projectDocument struct {
	Name                string              `firestore:"name"`
	TrackPath           string              `firestore:"trackPath,omitempty"`
	VideoFolder         string              `firestore:"videoFolder"`
	ForceTimestampSync  bool                `firestore:"forceTimestampSync"`
	CameraFilter        string              `firestore:"cameraFilter,omitempty"`
	LocalTimezone       string              `firestore:"localTimezone,omitempty"`
	ManualOffsetSeconds float64             `firestore:"manualOffsetSeconds"`
	Edits               []videoEditDocument `firestore:"edits"`
	UpdatedAt           time.Time           `firestore:"updatedAt"`
	LastOpened          time.Time           `firestore:"lastOpened"`
}

// ProjectsStore is a concrete implementation of the project.Store interface using Firestore.
// The recent list is a query on lastOpened, so deleted projects drop out of it.
type ProjectsStore struct {
	client     *firestore.Client
	collection *firestore.CollectionRef
	now        func() time.Time
}

// NewProjectsStore creates a new Firestore-backed store for projects.
func NewProjectsStore(client *firestore.Client) *ProjectsStore {
	return &ProjectsStore{
		client:     client,
		collection: client.Collection("projects"),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func toProjectDocument(p project.Project) projectDocument {
	edits := make([]videoEditDocument, 0, len(p.VideoMetadata))
	for path, e := range p.VideoMetadata {
		edits = append(edits, videoEditDocument{
			VideoPath:   path,
			CustomName:  e.CustomName,
			CustomNote:  e.CustomNote,
			MarkerColor: e.MarkerColor,
			MarkerIcon:  e.MarkerIcon,
		})
	}
	return projectDocument{
		Name:                p.Name,
		TrackPath:           p.TrackPath,
		VideoFolder:         p.VideoFolder,
		ForceTimestampSync:  p.ForceTimestampSync,
		CameraFilter:        string(p.CameraFilter),
		LocalTimezone:       p.LocalTimezone,
		ManualOffsetSeconds: p.ManualOffsetSeconds,
		Edits:               edits,
		UpdatedAt:           p.UpdatedAt,
		LastOpened:          p.LastOpenedAt,
	}
}

func toProject(id uuid.UUID, doc projectDocument) project.Project {
	edits := make(map[string]project.VideoEdit, len(doc.Edits))
	for _, e := range doc.Edits {
		edits[e.VideoPath] = project.VideoEdit{
			CustomName:  e.CustomName,
			CustomNote:  e.CustomNote,
			MarkerColor: e.MarkerColor,
			MarkerIcon:  e.MarkerIcon,
		}
	}
	return project.Project{
		ID:                  id,
		Name:                doc.Name,
		TrackPath:           doc.TrackPath,
		VideoFolder:         doc.VideoFolder,
		ForceTimestampSync:  doc.ForceTimestampSync,
		CameraFilter:        camera.Profile(doc.CameraFilter),
		LocalTimezone:       doc.LocalTimezone,
		ManualOffsetSeconds: doc.ManualOffsetSeconds,
		VideoMetadata:       edits,
		UpdatedAt:           doc.UpdatedAt,
		LastOpenedAt:        doc.LastOpened,
	}
}

// Save writes a project, stamping it as the most recently opened.
func (s *ProjectsStore) Save(ctx context.Context, p project.Project) error {
	doc := toProjectDocument(p)
	doc.LastOpened = s.now()
	_, err := s.collection.Doc(p.ID.String()).Set(ctx, doc)
	if err != nil {
		return fmt.Errorf("failed to save project %s: %w", p.ID, err)
	}
	return nil
}

// Get retrieves a project by ID.
func (s *ProjectsStore) Get(ctx context.Context, id uuid.UUID) (project.Project, error) {
	snap, err := s.collection.Doc(id.String()).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return project.Project{}, fmt.Errorf("%w: %s", project.ErrNotFound, id)
		}
		return project.Project{}, err
	}
	var doc projectDocument
	if err := snap.DataTo(&doc); err != nil {
		return project.Project{}, err
	}
	return toProject(id, doc), nil
}

// Delete removes a project. Deleting an unknown ID reports ErrNotFound.
func (s *ProjectsStore) Delete(ctx context.Context, id uuid.UUID) error {
	ref := s.collection.Doc(id.String())
	_, err := ref.Delete(ctx, firestore.Exists)
	if status.Code(err) == codes.NotFound {
		return fmt.Errorf("%w: %s", project.ErrNotFound, id)
	}
	return err
}

// Touch updates lastOpened so the project heads the recent list.
func (s *ProjectsStore) Touch(ctx context.Context, id uuid.UUID) error {
	_, err := s.collection.Doc(id.String()).Update(ctx, []firestore.Update{
		{Path: "lastOpened", Value: s.now()},
	})
	if status.Code(err) == codes.NotFound {
		return fmt.Errorf("%w: %s", project.ErrNotFound, id)
	}
	return err
}

// ListRecent returns projects ordered by lastOpened, newest first.
func (s *ProjectsStore) ListRecent(ctx context.Context, limit int) ([]project.Project, error) {
	if limit <= 0 || limit > project.MaxRecent {
		limit = project.MaxRecent
	}
	iter := s.collection.OrderBy("lastOpened", firestore.Desc).Limit(limit).Documents(ctx)
	return processProjectIterator(iter)
}

// processProjectIterator is a helper to drain results from a Firestore iterator.
func processProjectIterator(iter *firestore.DocumentIterator) ([]project.Project, error) {
	defer iter.Stop()
	var results []project.Project
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, err
		}
		var doc projectDocument
		if err := snap.DataTo(&doc); err != nil {
			return nil, err
		}
		id, err := uuid.Parse(snap.Ref.ID)
		if err != nil {
			return nil, err
		}
		results = append(results, toProject(id, doc))
	}
	return results, nil
}
