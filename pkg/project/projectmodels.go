// Package project persists the inputs of a synchronization and the user's
// edits to its results, so a later session can rerun it and get the same
// annotated map back.
package project

import (
	"time"

	"github.com/google/uuid"
	"github.com/illmade-knight/trackcam/pkg/camera"
	"github.com/illmade-knight/trackcam/pkg/geo"
	"github.com/illmade-knight/trackcam/pkg/videosync"
)

// VideoEdit holds the user-editable fields of one video's result.
type VideoEdit struct {
	CustomName  string `json:"custom_name,omitempty"`
	CustomNote  string `json:"custom_note,omitempty"`
	MarkerColor string `json:"marker_color,omitempty"`
	MarkerIcon  string `json:"marker_icon,omitempty"`
}

// IsEdited reports whether any field differs from a fresh result.
func (e VideoEdit) IsEdited() bool {
	return e.CustomName != "" ||
		e.CustomNote != "" ||
		(e.MarkerColor != "" && e.MarkerColor != geo.DefaultMarkerColor) ||
		(e.MarkerIcon != "" && e.MarkerIcon != geo.DefaultMarkerIcon)
}

// Project is the saved state of a session.
type Project struct {
	ID                  uuid.UUID            `json:"id"`
	Name                string               `json:"name"`
	TrackPath           string               `json:"track_path,omitempty"`
	VideoFolder         string               `json:"video_folder"`
	ForceTimestampSync  bool                 `json:"force_timestamp_sync"`
	CameraFilter        camera.Profile       `json:"camera_filter,omitempty"`
	LocalTimezone       string               `json:"local_timezone,omitempty"`
	ManualOffsetSeconds float64              `json:"manual_offset_seconds,omitempty"`
	VideoMetadata       map[string]VideoEdit `json:"video_metadata"`
	UpdatedAt           time.Time            `json:"updated_at"`
	LastOpenedAt        time.Time            `json:"last_opened_at"`
}

// Request returns the run request the project describes.
func (p Project) Request() videosync.Request {
	return videosync.Request{
		TrackPath:           p.TrackPath,
		VideoFolder:         p.VideoFolder,
		ForceTimestampSync:  p.ForceTimestampSync,
		CameraFilter:        p.CameraFilter,
		LocalTimezone:       p.LocalTimezone,
		ManualOffsetSeconds: p.ManualOffsetSeconds,
	}
}

// Collect extracts the edits from a set of results, keyed by video path.
// Untouched results are left out.
func Collect(locations []geo.VideoLocation) map[string]VideoEdit {
	edits := make(map[string]VideoEdit)
	for _, loc := range locations {
		edit := VideoEdit{
			CustomName:  loc.CustomName,
			CustomNote:  loc.CustomNote,
			MarkerColor: loc.MarkerColor,
			MarkerIcon:  loc.MarkerIcon,
		}
		if edit.IsEdited() {
			edits[loc.VideoPath] = edit
		}
	}
	return edits
}

// Apply copies saved edits onto fresh results. Only the user-editable fields
// change; an empty color or icon keeps the result's own.
func Apply(locations []geo.VideoLocation, edits map[string]VideoEdit) []geo.VideoLocation {
	out := make([]geo.VideoLocation, len(locations))
	copy(out, locations)
	for i := range out {
		edit, ok := edits[out[i].VideoPath]
		if !ok {
			continue
		}
		out[i].CustomName = edit.CustomName
		out[i].CustomNote = edit.CustomNote
		if edit.MarkerColor != "" {
			out[i].MarkerColor = edit.MarkerColor
		}
		if edit.MarkerIcon != "" {
			out[i].MarkerIcon = edit.MarkerIcon
		}
	}
	return out
}
