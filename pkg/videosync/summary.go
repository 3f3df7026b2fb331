package videosync

import (
	"github.com/illmade-knight/trackcam/pkg/geo"
	"github.com/rs/zerolog"
)

// Summary counts the outcome of a run.
type Summary struct {
	Videos      int `json:"videos"`
	Located     int `json:"located"`
	EmbeddedGPS int `json:"embedded_gps"`
	TrackSync   int `json:"track_sync"`
	NotLocated  int `json:"not_located"`
	TrackPoints int `json:"track_points"`
}

// Summarize counts locations by source.
func Summarize(locations []geo.VideoLocation, track *geo.Track) Summary {
	s := Summary{Videos: len(locations), TrackPoints: track.Len()}
	for _, loc := range locations {
		if !loc.IsLocated() {
			s.NotLocated++
			continue
		}
		s.Located++
		switch loc.Source {
		case geo.SourceEmbeddedGPS:
			s.EmbeddedGPS++
		case geo.SourceTrackSync:
			s.TrackSync++
		}
	}
	return s
}

// Log writes the summary at info level.
func (s Summary) Log(logger zerolog.Logger) {
	logger.Info().
		Int("videos", s.Videos).
		Int("located", s.Located).
		Int("embedded_gps", s.EmbeddedGPS).
		Int("track_sync", s.TrackSync).
		Int("not_located", s.NotLocated).
		Int("track_points", s.TrackPoints).
		Msg("Synchronization finished")
}
