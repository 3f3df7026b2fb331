package videosync

import (
	"context"
	"fmt"
	"time"

	"github.com/illmade-knight/go-dataflow/pkg/cache"
	"github.com/illmade-knight/trackcam/pkg/camera"
	"github.com/illmade-knight/trackcam/pkg/geo"
)

// LookupField names one question asked of a video.
type LookupField string

const (
	LookupCreation LookupField = "creation"
	LookupDuration LookupField = "duration"
	LookupGPS      LookupField = "gps"
)

// Lookup keys one answer. Answers from different strategies never share a key.
type Lookup struct {
	Strategy camera.Strategy
	Field    LookupField
	Path     string
}

// String is the key under which shared caches store the answer.
func (k Lookup) String() string {
	return fmt.Sprintf("trackcam:probe:%s:%s:%s", k.Strategy, k.Field, k.Path)
}

// Answer is what a MetadataAdapter said for one Lookup. Only the fields of
// the looked-up LookupField are set.
type Answer struct {
	CreationTime    *time.Time     `json:"creation_time,omitempty"`
	DurationSeconds *float64       `json:"duration_seconds,omitempty"`
	GPSFound        bool           `json:"gps_found,omitempty"`
	GPSPoints       []geo.GeoPoint `json:"gps_points,omitempty"`
}

// Lookups answers lookups; the engine's in-memory cache sits in front of one.
type Lookups = cache.Fetcher[Lookup, Answer]

// AdapterSource answers lookups by asking the metadata adapter registered for
// the key's strategy. It is the bottom of every lookup cache chain.
type AdapterSource struct {
	adapters map[camera.Strategy]MetadataAdapter
}

// NewAdapterSource creates a source over adapters.
func NewAdapterSource(adapters map[camera.Strategy]MetadataAdapter) *AdapterSource {
	return &AdapterSource{adapters: adapters}
}

// Fetch runs the adapter call that key names.
func (s *AdapterSource) Fetch(ctx context.Context, key Lookup) (Answer, error) {
	adapter, ok := s.adapters[key.Strategy]
	if !ok || adapter == nil {
		return Answer{}, fmt.Errorf("no metadata reader for strategy %q", key.Strategy)
	}
	switch key.Field {
	case LookupCreation:
		t, err := adapter.CreationTime(ctx, key.Path)
		return Answer{CreationTime: t}, err
	case LookupDuration:
		d, err := adapter.DurationSeconds(ctx, key.Path)
		return Answer{DurationSeconds: d}, err
	case LookupGPS:
		points, found, err := adapter.EmbeddedGPS(ctx, key.Path)
		return Answer{GPSFound: found, GPSPoints: points}, err
	default:
		return Answer{}, fmt.Errorf("unknown lookup field %q", key.Field)
	}
}

// Close is a no-op; adapters own no connections.
func (s *AdapterSource) Close() error {
	return nil
}
