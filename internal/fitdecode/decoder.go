// Package fitdecode adapts the Garmin FIT decoder to trackparse.RecordDecoder.
package fitdecode

import (
	"fmt"
	"io"
	"time"

	"github.com/illmade-knight/trackcam/pkg/trackparse"
	"github.com/tormoder/fit"
)

// FIT invalid sentinels and scaling for the record fields we read.
const (
	invalidUint16 = 0xFFFF
	invalidUint32 = 0xFFFFFFFF

	altitudeScale  = 5.0
	altitudeOffset = 500.0
	speedScale     = 1000.0
)

// fitEpoch is the FIT time origin; a timestamp equal to it was never set.
var fitEpoch = time.Date(1989, time.December, 31, 0, 0, 0, 0, time.UTC)

// Decoder decodes activity and course files.
type Decoder struct{}

// New returns a FIT record decoder.
func New() *Decoder {
	return &Decoder{}
}

// DecodeRecords returns the record messages of an activity or course file.
func (d *Decoder) DecodeRecords(r io.Reader) ([]trackparse.Record, error) {
	file, err := fit.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("failed to decode fit data: %w", err)
	}

	var msgs []*fit.RecordMsg
	if activity, err := file.Activity(); err == nil {
		msgs = activity.Records
	} else if course, cerr := file.Course(); cerr == nil {
		msgs = course.Records
	} else {
		return nil, fmt.Errorf("fit file holds no record messages: %w", err)
	}

	records := make([]trackparse.Record, 0, len(msgs))
	for _, msg := range msgs {
		if msg == nil {
			continue
		}
		records = append(records, FromRecordMsg(msg))
	}
	return records, nil
}

// FromRecordMsg maps a decoded record message, leaving invalid fields nil.
func FromRecordMsg(msg *fit.RecordMsg) trackparse.Record {
	var rec trackparse.Record

	if !msg.Timestamp.IsZero() && !msg.Timestamp.Equal(fitEpoch) {
		rec.Timestamp = msg.Timestamp.UTC()
	}
	if !msg.PositionLat.Invalid() {
		v := msg.PositionLat.Semicircles()
		rec.PositionLat = &v
	}
	if !msg.PositionLong.Invalid() {
		v := msg.PositionLong.Semicircles()
		rec.PositionLong = &v
	}
	if msg.Altitude != invalidUint16 {
		v := float64(msg.Altitude)/altitudeScale - altitudeOffset
		rec.Altitude = &v
	}
	if msg.EnhancedAltitude != invalidUint32 {
		v := float64(msg.EnhancedAltitude)/altitudeScale - altitudeOffset
		rec.EnhancedAltitude = &v
	}
	if msg.Speed != invalidUint16 {
		v := float64(msg.Speed) / speedScale
		rec.Speed = &v
	}
	if msg.EnhancedSpeed != invalidUint32 {
		v := float64(msg.EnhancedSpeed) / speedScale
		rec.EnhancedSpeed = &v
	}
	return rec
}
