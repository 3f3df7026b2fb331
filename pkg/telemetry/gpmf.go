package telemetry

import (
	"encoding/binary"
	"strings"
	"time"

	"github.com/illmade-knight/trackcam/pkg/geo"
)

const (
	// MaxDOP is the dilution-of-precision ceiling (raw units) above which
	// samples are dropped.
	MaxDOP = 2000
	// GPS5SampleRate is the rate assumed when spreading a GPS5 batch over time.
	GPS5SampleRate = 18.0

	scaleFields   = 9
	gps5Fields    = 5
	gps9Record    = 7*4 + 2*2
	gpsTimeLayout = "060102150405"
)

var gps9Epoch = time.Date(2000, time.January, 1, 0, 0, 0, 0, time.UTC)

// Stats counts what happened to the samples of one stream.
type Stats struct {
	Items     int `json:"items"`
	Malformed int `json:"malformed"`
	Accepted  int `json:"accepted"`
	NoFix     int `json:"no_fix"`
	HighDOP   int `json:"high_dop"`
	NullPos   int `json:"null_position"`
}

// Result is the outcome of decoding one metadata stream.
type Result struct {
	Points []geo.GeoPoint
	Stats  Stats
}

// decoderState is the interpretation context carried from item to item.
// Scale, fix, precision and time items change how later samples are read.
type decoderState struct {
	scale   [scaleFields]float64
	fix     float64
	dop     float64
	gpsTime time.Time
}

func newDecoderState() decoderState {
	s := decoderState{}
	for i := range s.scale {
		s.scale[i] = 1
	}
	return s
}

// Decode extracts every qualifying GPS sample from a metadata stream, in
// encounter order.
func Decode(data []byte) Result {
	var res Result
	state := newDecoderState()

	visited, malformed := walk(data, func(item Item) error {
		next, points, err := state.apply(item, &res.Stats)
		if err != nil {
			return err
		}
		state = next
		res.Points = append(res.Points, points...)
		return nil
	})

	res.Stats.Items = visited
	res.Stats.Malformed = malformed
	res.Stats.Accepted = len(res.Points)
	return res
}

// Extract is Decode without the statistics.
func Extract(data []byte) []geo.GeoPoint {
	return Decode(data).Points
}

// apply folds one item into the state and returns any samples it produced.
func (s decoderState) apply(item Item, stats *Stats) (decoderState, []geo.GeoPoint, error) {
	if item.IsContainer() {
		return s, nil, nil
	}
	switch item.FourCC {
	case "SCAL":
		return s.withScale(item)
	case "GPSU":
		return s.withTime(item), nil, nil
	case "GPSF":
		v, err := readNumber(item.Type, item.Payload)
		if err != nil {
			return s, nil, err
		}
		s.fix = v
		return s, nil, nil
	case "GPSP":
		v, err := readNumber(item.Type, item.Payload)
		if err != nil {
			return s, nil, err
		}
		s.dop = v
		return s, nil, nil
	case "GPS5":
		return s, s.gps5(item, stats), nil
	case "GPS9":
		return s, s.gps9(item, stats), nil
	}
	return s, nil, nil
}

func (s decoderState) withScale(item Item) (decoderState, []geo.GeoPoint, error) {
	if len(item.Payload) == 0 {
		return s, nil, nil
	}
	if item.Repeat == 1 {
		v, err := readNumber(item.Type, item.Payload)
		if err != nil {
			return s, nil, err
		}
		for i := range s.scale {
			s.scale[i] = v
		}
		return s, nil, nil
	}

	values, err := readNumbers(item.Type, item.Payload, int(item.Repeat))
	if err != nil {
		return s, nil, err
	}
	for i := range s.scale {
		s.scale[i] = 1
		if i < len(values) {
			s.scale[i] = values[i]
		}
	}
	return s, nil, nil
}

// withTime reads a yymmddHHMMSS.ffffff UTC stamp; an unreadable stamp keeps
// the previous one.
func (s decoderState) withTime(item Item) decoderState {
	if len(item.Payload) == 0 {
		return s
	}
	raw := strings.TrimRight(string(item.Payload), "\x00 ")
	t, err := time.ParseInLocation(gpsTimeLayout, raw, time.UTC)
	if err != nil {
		return s
	}
	s.gpsTime = t
	return s
}

// scaled divides a raw field by its declared scale; a zero scale leaves it raw.
func (s decoderState) scaled(field int, raw float64) float64 {
	if s.scale[field] == 0 {
		return raw
	}
	return raw / s.scale[field]
}

func (s decoderState) gps5(item Item, stats *Stats) []geo.GeoPoint {
	width, err := typeWidth(item.Type)
	if err != nil || len(item.Payload) == 0 {
		return nil
	}
	// Some firmware declares a per-field size with the repeat counting
	// scalars, so a sample spans at least five fields.
	stride := max(int(item.Size), gps5Fields*width)
	samples := len(item.Payload) / stride
	if s.fix == 0 {
		stats.NoFix += samples
		return nil
	}
	if s.dop > MaxDOP {
		stats.HighDOP += samples
		return nil
	}

	var points []geo.GeoPoint
	for r := 0; r < samples; r++ {
		from := r * stride
		raw, err := readNumbers(item.Type, item.Payload[from:], gps5Fields)
		if err != nil {
			continue
		}

		p := geo.GeoPoint{
			Latitude:  s.scaled(0, raw[0]),
			Longitude: s.scaled(1, raw[1]),
			Elevation: s.scaled(2, raw[2]),
			Speed:     s.scaled(3, raw[3]),
		}
		if p.Latitude == 0 && p.Longitude == 0 {
			stats.NullPos++
			continue
		}
		if !s.gpsTime.IsZero() {
			p.Timestamp = s.gpsTime
			if samples > 1 {
				p.Timestamp = s.gpsTime.Add(time.Duration(float64(r) / GPS5SampleRate * float64(time.Second)))
			}
		}
		if p.IsValid() {
			points = append(points, p)
		}
	}
	return points
}

func (s decoderState) gps9(item Item, stats *Stats) []geo.GeoPoint {
	var points []geo.GeoPoint
	for r := 0; r < int(item.Repeat); r++ {
		from := r * gps9Record
		if from+gps9Record > len(item.Payload) {
			break
		}
		rec := item.Payload[from : from+gps9Record]

		var ints [7]float64
		for i := range ints {
			ints[i] = float64(int32(binary.BigEndian.Uint32(rec[i*4:])))
		}
		dop := float64(binary.BigEndian.Uint16(rec[28:]))
		fix := binary.BigEndian.Uint16(rec[30:])

		if fix == 0 {
			stats.NoFix++
			continue
		}
		if dop > MaxDOP {
			stats.HighDOP++
			continue
		}

		p := geo.GeoPoint{
			Latitude:  s.scaled(0, ints[0]),
			Longitude: s.scaled(1, ints[1]),
			Elevation: s.scaled(2, ints[2]),
			Speed:     s.scaled(3, ints[3]),
		}
		if p.Latitude == 0 && p.Longitude == 0 {
			stats.NullPos++
			continue
		}
		days := s.scaled(5, ints[5])
		secs := s.scaled(6, ints[6])
		p.Timestamp = gps9Epoch.Add(time.Duration((days*86400 + secs) * float64(time.Second)))

		if p.IsValid() {
			points = append(points, p)
		}
	}
	return points
}
