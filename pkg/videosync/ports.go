package videosync

import (
	"context"
	"time"

	"github.com/illmade-knight/trackcam/pkg/geo"
)

// MetadataAdapter reads what a video knows about itself. Implementations run
// external tools and may be slow; the engine caches their answers.
type MetadataAdapter interface {
	// CreationTime returns nil when no creation time can be established.
	CreationTime(ctx context.Context, path string) (*time.Time, error)
	// DurationSeconds returns nil when the duration is unknown or not positive.
	DurationSeconds(ctx context.Context, path string) (*float64, error)
	// EmbeddedGPS returns found=false when the video has no telemetry track,
	// and found=true with possibly no points when it has one.
	EmbeddedGPS(ctx context.Context, path string) (points []geo.GeoPoint, found bool, err error)
}

// TrackLoader parses a track file.
type TrackLoader interface {
	Parse(path string) (*geo.Track, error)
}

// Catalog lists the videos of a folder in a deterministic order.
type Catalog interface {
	ListVideos(folder string, exts []string) ([]string, error)
}

// FileStat reports file modification times.
type FileStat interface {
	MtimeUTC(path string) (time.Time, error)
}

// Phase is a stage of a run.
type Phase string

const (
	PhaseLoadTrack    Phase = "load_track"
	PhaseListVideos   Phase = "list_videos"
	PhaseProcessVideo Phase = "process_video"
	PhaseDone         Phase = "done"
)

// Event is one progress notification. Current and Total are only set for
// PhaseProcessVideo; Current counts completed videos.
type Event struct {
	RunID   string `json:"run_id"`
	Phase   Phase  `json:"phase"`
	Current int    `json:"current,omitempty"`
	Total   int    `json:"total,omitempty"`
	Path    string `json:"path,omitempty"`
}

// ProgressReporter receives the events of a run in order. Calls are never
// concurrent.
type ProgressReporter interface {
	Report(Event)
}

// ReporterFunc adapts a function to ProgressReporter.
type ReporterFunc func(Event)

// Report implements ProgressReporter.
func (f ReporterFunc) Report(e Event) { f(e) }
