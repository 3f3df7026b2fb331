// Package export renders a synchronization result as GeoJSON for map overlays.
package export

import (
	"time"

	"github.com/illmade-knight/trackcam/pkg/geo"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// Feature kinds, stored in the "kind" property.
const (
	KindTrack   = "track"
	KindVideo   = "video"
	KindSegment = "segment"
)

func lineString(points []geo.GeoPoint) orb.LineString {
	ls := make(orb.LineString, 0, len(points))
	for _, p := range points {
		ls = append(ls, orb.Point{p.Longitude, p.Latitude})
	}
	return ls
}

// FeatureCollection builds the overlay: the track as one LineString, a Point
// per located video and a LineString per video segment of two or more points.
// Unlocated videos are left out.
func FeatureCollection(track *geo.Track, locations []geo.VideoLocation) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()

	if track != nil && track.Len() >= 2 {
		f := geojson.NewFeature(lineString(track.Points()))
		f.Properties["kind"] = KindTrack
		f.Properties["name"] = track.Name()
		f.Properties["length_km"] = track.LengthKm()
		fc.Append(f)
	}

	for _, loc := range locations {
		if !loc.IsLocated() {
			continue
		}
		f := geojson.NewFeature(orb.Point{loc.Position.Longitude, loc.Position.Latitude})
		f.Properties["kind"] = KindVideo
		setVideoProperties(f.Properties, loc)
		fc.Append(f)

		if len(loc.TrackPoints) >= 2 {
			seg := geojson.NewFeature(lineString(loc.TrackPoints))
			seg.Properties["kind"] = KindSegment
			seg.Properties["video_path"] = loc.VideoPath
			seg.Properties["color"] = loc.MarkerColor
			fc.Append(seg)
		}
	}
	return fc
}

func setVideoProperties(props geojson.Properties, loc geo.VideoLocation) {
	props["video_path"] = loc.VideoPath
	props["name"] = loc.DisplayName()
	props["video_name"] = loc.VideoName
	props["source"] = string(loc.Source)
	props["color"] = loc.MarkerColor
	props["icon"] = loc.MarkerIcon
	if loc.CustomName != "" {
		props["custom_name"] = loc.CustomName
	}
	if loc.CustomNote != "" {
		props["note"] = loc.CustomNote
	}
	if loc.CreationTime != nil {
		props["creation_time"] = loc.CreationTime.UTC().Format(time.RFC3339)
	}
	if loc.DurationSeconds != nil {
		props["duration_seconds"] = *loc.DurationSeconds
	}
}

// Marshal returns the overlay encoded as GeoJSON.
func Marshal(track *geo.Track, locations []geo.VideoLocation) ([]byte, error) {
	return FeatureCollection(track, locations).MarshalJSON()
}
