package videosync

import (
	"time"

	"github.com/illmade-knight/trackcam/pkg/geo"
)

// ClockOffsets are tried in order against the track's time range.
var ClockOffsets = []time.Duration{0, -time.Hour, time.Hour, -2 * time.Hour, 2 * time.Hour}

// MaxMtimeGap is the largest distance from the file's modification time a
// timezone-corrected creation time may keep.
const MaxMtimeGap = 2 * time.Hour

// ClockFix names the correction applied to a creation time.
type ClockFix string

const (
	ClockUnchanged   ClockFix = "none"
	ClockTrackOffset ClockFix = "track_offset"
	ClockTimezone    ClockFix = "timezone"
)

// ClockCorrection is the outcome of correcting one creation time.
type ClockCorrection struct {
	Time   time.Time
	Fix    ClockFix
	Offset time.Duration
}

// CorrectClock fixes whole-hour camera clock errors. With a track, the first
// offset that lands the time inside the track wins. Otherwise the time's wall
// clock is read in local and the result is kept only if it moves closer to
// the file modification time, and stays within MaxMtimeGap of it.
func CorrectClock(t time.Time, track *geo.Track, tolerance time.Duration, mtime *time.Time, local *time.Location) ClockCorrection {
	if !track.IsEmpty() {
		for _, offset := range ClockOffsets {
			if shifted := t.Add(offset); track.IsTimeInTrack(shifted, tolerance) {
				fix := ClockTrackOffset
				if offset == 0 {
					fix = ClockUnchanged
				}
				return ClockCorrection{Time: shifted, Fix: fix, Offset: offset}
			}
		}
	}

	if mtime == nil || local == nil {
		return ClockCorrection{Time: t, Fix: ClockUnchanged}
	}

	corrected := asWallClock(t, local).UTC()
	diffOriginal := absDuration(mtime.Sub(t))
	diffCorrected := absDuration(mtime.Sub(corrected))
	if diffCorrected < diffOriginal && diffCorrected < MaxMtimeGap {
		return ClockCorrection{Time: corrected, Fix: ClockTimezone, Offset: corrected.Sub(t)}
	}
	return ClockCorrection{Time: t, Fix: ClockUnchanged}
}

// asWallClock keeps the date and clock reading of t and attaches loc.
func asWallClock(t time.Time, loc *time.Location) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), loc)
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
