// Package trackparse turns a wrist-device GPS recording into a geo.Track.
//
// The binary decoding itself sits behind RecordDecoder so the parser can run
// (and be tested) without a concrete decoder; a Parser built without one
// reports ErrDecoderUnavailable and callers carry on without a track.
package trackparse

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/illmade-knight/trackcam/pkg/geo"
	"github.com/rs/zerolog"
)

var (
	// ErrNotFound is returned when the track file does not exist.
	ErrNotFound = errors.New("track file not found")
	// ErrDecoderUnavailable is returned when no record decoder is configured.
	ErrDecoderUnavailable = errors.New("track decoder unavailable")
	// ErrEmptyTrack signals a readable file with no usable position. It is a
	// soft condition: the returned track is nil and the caller proceeds
	// without one.
	ErrEmptyTrack = errors.New("track contains no valid points")
)

// Record holds the fields of one decoded "record" message that the parser
// uses. Nil pointers mark fields absent from the message.
type Record struct {
	Timestamp        time.Time
	PositionLat      *int32 // semicircles
	PositionLong     *int32 // semicircles
	Altitude         *float64
	EnhancedAltitude *float64
	Speed            *float64
	EnhancedSpeed    *float64
}

// RecordDecoder decodes the record messages of a recording, in file order.
type RecordDecoder interface {
	DecodeRecords(r io.Reader) ([]Record, error)
}

// Parser reads track files through a RecordDecoder.
type Parser struct {
	decoder RecordDecoder
	logger  zerolog.Logger
}

// NewParser creates a parser. decoder may be nil.
func NewParser(decoder RecordDecoder, logger zerolog.Logger) *Parser {
	return &Parser{
		decoder: decoder,
		logger:  logger.With().Str("component", "trackparse").Logger(),
	}
}

// Parse decodes the file at path into a Track named after the file.
func (p *Parser) Parse(path string) (*geo.Track, error) {
	if p.decoder == nil {
		return nil, ErrDecoderUnavailable
	}

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("failed to open track file: %w", err)
	}
	defer f.Close()

	records, err := p.decoder.DecodeRecords(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode track file %s: %w", path, err)
	}

	track, err := BuildTrack(filepath.Base(path), records)
	if err != nil {
		p.logger.Warn().Str("path", path).Int("records", len(records)).Msg("No GPS point found in track file")
		return nil, err
	}

	start, _ := track.StartTime()
	end, _ := track.EndTime()
	p.logger.Info().
		Str("path", path).
		Int("points", track.Len()).
		Time("start", start).
		Time("end", end).
		Msg("Track parsed")
	return track, nil
}

// BuildTrack keeps the records that carry a valid position, in order.
func BuildTrack(name string, records []Record) (*geo.Track, error) {
	points := make([]geo.GeoPoint, 0, len(records))
	for _, rec := range records {
		point, ok := PointFromRecord(rec)
		if !ok || !point.IsValid() {
			continue
		}
		points = append(points, point)
	}
	if len(points) == 0 {
		return nil, ErrEmptyTrack
	}
	return geo.NewTrack(name, points), nil
}

// PointFromRecord converts a record to a point. Records missing either
// coordinate are dropped. Enhanced altitude and speed win over the plain
// fields when both are present.
func PointFromRecord(rec Record) (geo.GeoPoint, bool) {
	if rec.PositionLat == nil || rec.PositionLong == nil {
		return geo.GeoPoint{}, false
	}

	point := geo.GeoPoint{
		Latitude:  geo.SemicirclesToDegrees(*rec.PositionLat),
		Longitude: geo.SemicirclesToDegrees(*rec.PositionLong),
	}
	if !rec.Timestamp.IsZero() {
		point.Timestamp = rec.Timestamp.UTC()
	}

	switch {
	case rec.EnhancedAltitude != nil:
		point.Elevation = *rec.EnhancedAltitude
	case rec.Altitude != nil:
		point.Elevation = *rec.Altitude
	}
	switch {
	case rec.EnhancedSpeed != nil:
		point.Speed = *rec.EnhancedSpeed
	case rec.Speed != nil:
		point.Speed = *rec.Speed
	}
	return point, true
}
