// Package geo holds the geo-temporal value types shared by the track parser,
// the telemetry extractor and the synchronization engine.
package geo

import (
	"encoding/json"
	"slices"
	"time"
)

// Default marker styling for a VideoLocation that the user never edited.
const (
	DefaultMarkerColor = "#3388ff"
	DefaultMarkerIcon  = "circle"
)

// LocationSource explains why a video was placed where it was.
type LocationSource string

const (
	SourceEmbeddedGPS LocationSource = "embedded_gps" // Samples from the video's own telemetry.
	SourceTrackSync   LocationSource = "track_sync"   // Interpolated from the wrist-device track.
	SourceUnknown     LocationSource = "unknown"
)

// Label returns a human-readable name for the source.
func (s LocationSource) Label() string {
	switch s {
	case SourceEmbeddedGPS:
		return "Embedded GPS"
	case SourceTrackSync:
		return "Track sync"
	default:
		return "Unknown"
	}
}

// GeoPoint is a single geo-temporal sample. A zero Timestamp means the sample
// carries no time.
type GeoPoint struct {
	Latitude  float64   `json:"lat"`
	Longitude float64   `json:"lon"`
	Elevation float64   `json:"elevation_m"`
	Timestamp time.Time `json:"timestamp,omitzero"`
	Speed     float64   `json:"speed_mps"`
}

// HasTimestamp reports whether the point carries a time.
func (p GeoPoint) HasTimestamp() bool {
	return !p.Timestamp.IsZero()
}

// IsValid reports whether the coordinates are in range and not the (0,0) null island.
func (p GeoPoint) IsValid() bool {
	return (p.Latitude != 0 || p.Longitude != 0) &&
		p.Latitude >= -90 && p.Latitude <= 90 &&
		p.Longitude >= -180 && p.Longitude <= 180
}

// Track is an ordered sequence of points. Point order is taken as
// chronological order; it is never re-sorted.
//
// StartTime and EndTime are cached from the first and last point when the track
// is built and are never recomputed, so a Track must be treated as immutable.
type Track struct {
	name      string
	points    []GeoPoint
	startTime time.Time
	endTime   time.Time
}

// NewTrack builds a track over a private copy of points.
func NewTrack(name string, points []GeoPoint) *Track {
	t := &Track{
		name:   name,
		points: slices.Clone(points),
	}
	if len(t.points) > 0 {
		t.startTime = t.points[0].Timestamp
		t.endTime = t.points[len(t.points)-1].Timestamp
	}
	return t
}

// Name returns the track name, usually the source file's base name.
func (t *Track) Name() string { return t.name }

// Len returns the number of points.
func (t *Track) Len() int {
	if t == nil {
		return 0
	}
	return len(t.points)
}

// IsEmpty reports whether the track has no points. A nil track is also empty.
func (t *Track) IsEmpty() bool { return t.Len() == 0 }

// Points returns a copy of the track points.
func (t *Track) Points() []GeoPoint {
	if t == nil {
		return nil
	}
	return slices.Clone(t.points)
}

// StartTime returns the cached timestamp of the first point.
func (t *Track) StartTime() (time.Time, bool) {
	if t == nil || t.startTime.IsZero() {
		return time.Time{}, false
	}
	return t.startTime, true
}

// EndTime returns the cached timestamp of the last point.
func (t *Track) EndTime() (time.Time, bool) {
	if t == nil || t.endTime.IsZero() {
		return time.Time{}, false
	}
	return t.endTime, true
}

// Bounds returns (minLat, minLon, maxLat, maxLon) over valid points, or all
// zeros when there are none.
func (t *Track) Bounds() (minLat, minLon, maxLat, maxLon float64) {
	first := true
	for _, p := range t.Points() {
		if !p.IsValid() {
			continue
		}
		if first {
			minLat, maxLat = p.Latitude, p.Latitude
			minLon, maxLon = p.Longitude, p.Longitude
			first = false
			continue
		}
		minLat = min(minLat, p.Latitude)
		maxLat = max(maxLat, p.Latitude)
		minLon = min(minLon, p.Longitude)
		maxLon = max(maxLon, p.Longitude)
	}
	return minLat, minLon, maxLat, maxLon
}

// Center returns the midpoint of Bounds.
func (t *Track) Center() (lat, lon float64) {
	minLat, minLon, maxLat, maxLon := t.Bounds()
	return (minLat + maxLat) / 2, (minLon + maxLon) / 2
}

// LengthKm returns the great-circle length of the track.
func (t *Track) LengthKm() float64 {
	if t.Len() < 2 {
		return 0
	}
	total := 0.0
	for i := 1; i < len(t.points); i++ {
		total += DistanceKm(t.points[i-1], t.points[i])
	}
	return total
}

type trackJSON struct {
	Name      string     `json:"name"`
	StartTime *time.Time `json:"start_time,omitempty"`
	EndTime   *time.Time `json:"end_time,omitempty"`
	Points    []GeoPoint `json:"points"`
}

// MarshalJSON exposes the otherwise private track fields.
func (t *Track) MarshalJSON() ([]byte, error) {
	doc := trackJSON{Name: t.name, Points: t.points}
	if start, ok := t.StartTime(); ok {
		doc.StartTime = &start
	}
	if end, ok := t.EndTime(); ok {
		doc.EndTime = &end
	}
	if doc.Points == nil {
		doc.Points = []GeoPoint{}
	}
	return json.Marshal(doc)
}

// VideoLocation is the engine's verdict for one video plus the user-editable
// presentation fields.
type VideoLocation struct {
	VideoPath       string         `json:"video_path"`
	VideoName       string         `json:"video_name"`
	Position        *GeoPoint      `json:"position,omitempty"`
	Source          LocationSource `json:"source"`
	CreationTime    *time.Time     `json:"creation_time,omitempty"`
	DurationSeconds *float64       `json:"duration_seconds,omitempty"`
	TrackPoints     []GeoPoint     `json:"track_points,omitempty"`

	// Editable by the user, never written by the engine.
	CustomName  string `json:"custom_name,omitempty"`
	CustomNote  string `json:"custom_note,omitempty"`
	MarkerColor string `json:"marker_color"`
	MarkerIcon  string `json:"marker_icon"`
}

// NewVideoLocation returns an unlocated result with default marker styling.
func NewVideoLocation(path, name string) VideoLocation {
	return VideoLocation{
		VideoPath:   path,
		VideoName:   name,
		Source:      SourceUnknown,
		MarkerColor: DefaultMarkerColor,
		MarkerIcon:  DefaultMarkerIcon,
	}
}

// IsLocated reports whether the video has a valid position.
func (v VideoLocation) IsLocated() bool {
	return v.Position != nil && v.Position.IsValid()
}

// DisplayName prefers the user's custom name over the file name.
func (v VideoLocation) DisplayName() string {
	if v.CustomName != "" {
		return v.CustomName
	}
	return v.VideoName
}
