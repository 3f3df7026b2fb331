package geo

import "time"

// Defaults used by the synchronization engine when querying a track.
const (
	DefaultTimeTolerance    = 300 * time.Second
	DefaultNearestTolerance = 2 * time.Hour
)

// HourOffsets are the whole-hour shifts tried when a target time falls outside
// the track, in priority order. They recover cameras whose clock is off by a
// DST or timezone step.
var HourOffsets = []time.Duration{0, time.Hour, -time.Hour, 2 * time.Hour, -2 * time.Hour}

// MatchTier records which pass of PositionAtTime produced a position.
type MatchTier string

const (
	TierExact   MatchTier = "exact"
	TierOffset  MatchTier = "offset"
	TierNearest MatchTier = "nearest"
)

// Match is a position found on a track together with how it was found.
type Match struct {
	Point GeoPoint
	Tier  MatchTier
	// Offset is the shift added to the target for TierOffset matches.
	Offset time.Duration
	// Gap is the distance in time to the chosen point for TierNearest matches.
	Gap time.Duration
}

// IsTimeInTrack reports whether t lies within [start-tolerance, end+tolerance].
// It is false for a nil track or one without cached bounds.
func (t *Track) IsTimeInTrack(at time.Time, tolerance time.Duration) bool {
	start, okStart := t.StartTime()
	end, okEnd := t.EndTime()
	if !okStart || !okEnd {
		return false
	}
	return !at.Before(start.Add(-tolerance)) && !at.After(end.Add(tolerance))
}

// PositionAtTime locates target on the track in three passes: a bracketing
// interpolation, the same search shifted by each of HourOffsets, then the
// nearest timestamped point if it is no further than nearestTolerance away.
func (t *Track) PositionAtTime(target time.Time, nearestTolerance time.Duration) (Match, bool) {
	if t.IsEmpty() {
		return Match{}, false
	}
	if p, ok := t.bracket(target); ok {
		return Match{Point: p, Tier: TierExact}, true
	}

	for _, offset := range HourOffsets {
		if p, ok := t.bracket(target.Add(offset)); ok {
			tier := TierOffset
			if offset == 0 {
				tier = TierExact
			}
			return Match{Point: p, Tier: tier, Offset: offset}, true
		}
	}

	nearest, gap, ok := t.nearest(target)
	if ok && gap <= nearestTolerance {
		return Match{Point: nearest, Tier: TierNearest, Gap: gap}, true
	}
	return Match{}, false
}

// bracket interpolates between the first pair of timestamped neighbours that
// surrounds target.
func (t *Track) bracket(target time.Time) (GeoPoint, bool) {
	points := t.points
	if first := points[0]; first.HasTimestamp() && target.Before(first.Timestamp) {
		return GeoPoint{}, false
	}
	if last := points[len(points)-1]; last.HasTimestamp() && target.After(last.Timestamp) {
		return GeoPoint{}, false
	}

	for i := 0; i+1 < len(points); i++ {
		p1, p2 := points[i], points[i+1]
		if !p1.HasTimestamp() || !p2.HasTimestamp() {
			continue
		}
		if !target.Before(p1.Timestamp) && !target.After(p2.Timestamp) {
			return interpolate(p1, p2, target), true
		}
	}
	return GeoPoint{}, false
}

func (t *Track) nearest(target time.Time) (GeoPoint, time.Duration, bool) {
	var best GeoPoint
	var bestGap time.Duration
	found := false
	for _, p := range t.points {
		if !p.HasTimestamp() {
			continue
		}
		gap := p.Timestamp.Sub(target).Abs()
		if !found || gap < bestGap {
			best, bestGap, found = p, gap, true
		}
	}
	return best, bestGap, found
}

// interpolate blends p1 and p2 linearly at target. Equal timestamps return p1 as-is.
func interpolate(p1, p2 GeoPoint, target time.Time) GeoPoint {
	total := p2.Timestamp.Sub(p1.Timestamp)
	if total == 0 || target.Equal(p1.Timestamp) {
		return p1
	}
	if target.Equal(p2.Timestamp) {
		return p2
	}
	ratio := float64(target.Sub(p1.Timestamp)) / float64(total)
	lerp := func(a, b float64) float64 { return a + (b-a)*ratio }

	return GeoPoint{
		Latitude:  lerp(p1.Latitude, p2.Latitude),
		Longitude: lerp(p1.Longitude, p2.Longitude),
		Elevation: lerp(p1.Elevation, p2.Elevation),
		Speed:     lerp(p1.Speed, p2.Speed),
		Timestamp: target,
	}
}

// Segment returns the part of the track covering [start, start+duration]: the
// interpolated start, every point strictly inside the window and the
// interpolated end. A non-positive duration yields the start position only.
// A boundary that cannot be bracketed is left out.
func (t *Track) Segment(start time.Time, duration time.Duration) []GeoPoint {
	if t.IsEmpty() {
		return nil
	}
	end := start.Add(duration)

	var segment []GeoPoint
	if p, ok := t.bracket(start); ok {
		segment = append(segment, p)
	}
	if duration <= 0 {
		return segment
	}
	for _, p := range t.points {
		if !p.HasTimestamp() {
			continue
		}
		if p.Timestamp.After(start) && p.Timestamp.Before(end) {
			segment = append(segment, p)
		}
	}
	if p, ok := t.bracket(end); ok {
		segment = append(segment, p)
	}
	return segment
}
