package project

import (
	"context"
	"errors"
	"slices"

	"github.com/google/uuid"
)

// MaxRecent is the length of the recent-projects list.
const MaxRecent = 10

// ErrNotFound is returned for an unknown project ID.
var ErrNotFound = errors.New("project not found")

// Store is the interface for saving and loading projects.
type Store interface {
	Save(ctx context.Context, p Project) error
	Get(ctx context.Context, id uuid.UUID) (Project, error)
	Delete(ctx context.Context, id uuid.UUID) error
	// Touch marks a project as just opened.
	Touch(ctx context.Context, id uuid.UUID) error
	// ListRecent returns up to limit projects, most recently opened first.
	ListRecent(ctx context.Context, limit int) ([]Project, error)
}

// PushRecent moves id to the front of ids, dropping duplicates and anything
// past MaxRecent.
func PushRecent(ids []uuid.UUID, id uuid.UUID) []uuid.UUID {
	out := make([]uuid.UUID, 0, MaxRecent)
	out = append(out, id)
	for _, existing := range ids {
		if existing == id || slices.Contains(out, existing) {
			continue
		}
		if len(out) == MaxRecent {
			break
		}
		out = append(out, existing)
	}
	return out
}
