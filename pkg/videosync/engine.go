// Package videosync decides where each video of a folder was filmed, from the
// camera's own telemetry when it has any and otherwise by matching the
// video's corrected creation time against a separately recorded track.
package videosync

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/illmade-knight/go-dataflow/pkg/cache"
	"github.com/illmade-knight/trackcam/pkg/camera"
	"github.com/illmade-knight/trackcam/pkg/geo"
	"github.com/illmade-knight/trackcam/pkg/trackparse"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// ErrFolderNotFound is returned when the video folder does not exist.
var ErrFolderNotFound = errors.New("video folder not found")

// DefaultTimezone is assumed for camera clocks when a request names none.
const DefaultTimezone = "Europe/Paris"

// Request describes one synchronization run.
type Request struct {
	// TrackPath is optional; without it videos can only be located by their
	// own telemetry.
	TrackPath           string         `json:"track_path,omitempty"`
	VideoFolder         string         `json:"video_folder"`
	Extensions          []string       `json:"extensions,omitempty"`
	ForceTimestampSync  bool           `json:"force_timestamp_sync"`
	CameraFilter        camera.Profile `json:"camera_filter"`
	LocalTimezone       string         `json:"local_timezone,omitempty"`
	ManualOffsetSeconds float64        `json:"manual_offset_seconds"`
}

// Diagnostic explains how one video's result was reached.
type Diagnostic struct {
	VideoPath   string        `json:"video_path"`
	Clock       ClockFix      `json:"clock_fix"`
	ClockOffset time.Duration `json:"-"`
	MatchTier   geo.MatchTier `json:"match_tier,omitempty"`
	MatchOffset time.Duration `json:"-"`
	Error       string        `json:"error,omitempty"`

	ClockOffsetSeconds float64 `json:"clock_offset_seconds"`
	MatchOffsetSeconds float64 `json:"match_offset_seconds,omitempty"`
}

// Result is the outcome of a run. Locations follow the catalog order.
type Result struct {
	RunID        string              `json:"run_id"`
	Track        *geo.Track          `json:"track,omitempty"`
	TrackWarning string              `json:"track_warning,omitempty"`
	Locations    []geo.VideoLocation `json:"locations"`
	Diagnostics  []Diagnostic        `json:"diagnostics"`
	Summary      Summary             `json:"summary"`
}

// Config tunes an Engine.
type Config struct {
	// Workers bounds how many videos are processed at once; values below 1
	// mean one.
	Workers          int
	TimeTolerance    time.Duration
	NearestTolerance time.Duration
	// Lookups answers what the in-memory cache misses. Nil asks the
	// adapters directly.
	Lookups Lookups
}

func (c Config) withDefaults() Config {
	if c.Workers < 1 {
		c.Workers = 1
	}
	if c.TimeTolerance <= 0 {
		c.TimeTolerance = geo.DefaultTimeTolerance
	}
	if c.NearestTolerance <= 0 {
		c.NearestTolerance = geo.DefaultNearestTolerance
	}
	return c
}

// Engine runs synchronizations. It owns a lookup cache so that repeated runs
// over the same folder do not probe the same files again.
type Engine struct {
	cfg      Config
	tracks   TrackLoader
	catalog  Catalog
	files    FileStat
	adapters map[camera.Strategy]MetadataAdapter
	source   Lookups
	logger   zerolog.Logger

	mu       sync.Mutex
	strategy camera.Strategy
	lookups  *cache.InMemoryCache[Lookup, Answer]
}

// NewEngine creates an engine. tracks may be nil, in which case every run is
// without a track. adapters maps each camera strategy to its reader.
func NewEngine(
	cfg Config,
	tracks TrackLoader,
	catalog Catalog,
	files FileStat,
	adapters map[camera.Strategy]MetadataAdapter,
	logger zerolog.Logger,
) *Engine {
	source := cfg.Lookups
	if source == nil {
		source = NewAdapterSource(adapters)
	}
	return &Engine{
		cfg:      cfg.withDefaults(),
		tracks:   tracks,
		catalog:  catalog,
		files:    files,
		adapters: adapters,
		source:   source,
		logger:   logger.With().Str("component", "videosync").Logger(),
		strategy: camera.Auto.Strategy(),
		lookups:  cache.NewInMemoryCache[Lookup, Answer](source),
	}
}

// SetCameraFilter switches the lookup cache to the strategy of profile,
// dropping cached answers if the strategy changes.
func (e *Engine) SetCameraFilter(profile camera.Profile) {
	e.cacheFor(profile.Strategy())
}

// ResetCache drops every cached lookup.
func (e *Engine) ResetCache() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.lookups = cache.NewInMemoryCache[Lookup, Answer](e.source)
}

func (e *Engine) cacheFor(strategy camera.Strategy) *cache.InMemoryCache[Lookup, Answer] {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.strategy != strategy {
		e.logger.Debug().Str("strategy", string(strategy)).Msg("Camera strategy changed, dropping lookup cache")
		e.strategy = strategy
		e.lookups = cache.NewInMemoryCache[Lookup, Answer](e.source)
	}
	return e.lookups
}

// run is the state shared by the videos of one Run.
type run struct {
	id       string
	req      Request
	force    bool
	track    *geo.Track
	local    *time.Location
	strategy camera.Strategy
	cache    *cache.InMemoryCache[Lookup, Answer]
	reporter ProgressReporter
}

func (r *run) report(ev Event) {
	if r.reporter == nil {
		return
	}
	ev.RunID = r.id
	r.reporter.Report(ev)
}

// Run processes every video of req.VideoFolder. Hard input errors (missing
// track file, missing folder, unknown timezone) end the run; failures on a
// single video only degrade that video's result. If ctx is cancelled the
// videos finished so far are returned along with ctx's error.
func (e *Engine) Run(ctx context.Context, req Request, reporter ProgressReporter) (*Result, error) {
	r, err := e.prepare(req, reporter)
	if err != nil {
		return nil, err
	}
	logger := e.logger.With().Str("run_id", r.id).Logger()
	res := &Result{RunID: r.id}

	if req.TrackPath != "" {
		r.report(Event{Phase: PhaseLoadTrack, Path: req.TrackPath})
		track, warning, err := e.loadTrack(req.TrackPath)
		if err != nil {
			return nil, err
		}
		r.track, res.Track, res.TrackWarning = track, track, warning
	}

	r.report(Event{Phase: PhaseListVideos, Path: req.VideoFolder})
	paths, err := e.catalog.ListVideos(req.VideoFolder, req.Extensions)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrFolderNotFound, req.VideoFolder)
		}
		return nil, fmt.Errorf("failed to list videos: %w", err)
	}
	logger.Info().
		Int("videos", len(paths)).
		Bool("track_loaded", !r.track.IsEmpty()).
		Bool("force_timestamp_sync", r.force).
		Str("camera", string(req.CameraFilter)).
		Msg("Starting synchronization")

	locations := make([]geo.VideoLocation, len(paths))
	diagnostics := make([]Diagnostic, len(paths))
	done := make([]bool, len(paths))

	var (
		completed atomic.Int64
		progress  sync.Mutex
	)
	g := new(errgroup.Group)
	g.SetLimit(e.cfg.Workers)
	for i, path := range paths {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			locations[i], diagnostics[i] = e.locate(ctx, r, path)
			done[i] = true

			progress.Lock()
			r.report(Event{Phase: PhaseProcessVideo, Current: int(completed.Add(1)), Total: len(paths), Path: path})
			progress.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	for i := range paths {
		if done[i] {
			res.Locations = append(res.Locations, locations[i])
			res.Diagnostics = append(res.Diagnostics, diagnostics[i])
		}
	}
	res.Summary = Summarize(res.Locations, r.track)

	if err := ctx.Err(); err != nil {
		logger.Warn().Int("processed", len(res.Locations)).Int("videos", len(paths)).Msg("Synchronization cancelled")
		return res, fmt.Errorf("synchronization cancelled: %w", err)
	}

	r.report(Event{Phase: PhaseDone})
	res.Summary.Log(logger)
	return res, nil
}

func (e *Engine) prepare(req Request, reporter ProgressReporter) (*run, error) {
	profile := req.CameraFilter
	if profile == "" {
		profile = camera.Auto
	}
	if adapter, ok := e.adapters[profile.Strategy()]; !ok || adapter == nil {
		return nil, fmt.Errorf("no metadata reader for camera %q", profile)
	}

	tz := req.LocalTimezone
	if tz == "" {
		tz = DefaultTimezone
	}
	local, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("invalid local timezone %q: %w", tz, err)
	}

	req.CameraFilter = profile
	return &run{
		id:       uuid.NewString(),
		req:      req,
		force:    req.ForceTimestampSync || profile.NoGPS(),
		local:    local,
		strategy: profile.Strategy(),
		cache:    e.cacheFor(profile.Strategy()),
		reporter: reporter,
	}, nil
}

// loadTrack returns a nil track without error when the run can go on
// without one; the warning says why.
func (e *Engine) loadTrack(path string) (*geo.Track, string, error) {
	if e.tracks == nil {
		return nil, trackparse.ErrDecoderUnavailable.Error(), nil
	}
	track, err := e.tracks.Parse(path)
	switch {
	case err == nil:
		start, _ := track.StartTime()
		end, _ := track.EndTime()
		e.logger.Info().
			Str("track", track.Name()).
			Int("points", track.Len()).
			Time("start", start).
			Time("end", end).
			Msg("Track loaded")
		return track, "", nil
	case errors.Is(err, trackparse.ErrEmptyTrack), errors.Is(err, trackparse.ErrDecoderUnavailable):
		e.logger.Warn().Err(err).Str("track", path).Msg("Continuing without track")
		return nil, err.Error(), nil
	default:
		return nil, "", fmt.Errorf("failed to load track: %w", err)
	}
}

// locate resolves one video. It never fails: adapter errors and panics are
// logged and leave whatever was learned before them in the result.
func (e *Engine) locate(ctx context.Context, r *run, path string) (loc geo.VideoLocation, diag Diagnostic) {
	logger := e.logger.With().Str("run_id", r.id).Str("video", filepath.Base(path)).Logger()
	loc = geo.NewVideoLocation(path, filepath.Base(path))
	diag = Diagnostic{VideoPath: path, Clock: ClockUnchanged}

	defer func() {
		if p := recover(); p != nil {
			logger.Error().Interface("panic", p).Msg("Video processing panicked, leaving it unlocated")
			loc.Source, loc.Position, loc.TrackPoints = geo.SourceUnknown, nil, nil
			diag.Error = fmt.Sprint(p)
		}
	}()

	// creation time, manual offset, clock correction
	if created := e.creationTime(ctx, r, path, &diag, logger); created != nil {
		t := *created
		if r.req.ManualOffsetSeconds != 0 {
			t = t.Add(time.Duration(r.req.ManualOffsetSeconds * float64(time.Second)))
		}
		var mtime *time.Time
		if !trackCovers(r.track, t, e.cfg.TimeTolerance) {
			mtime = e.mtime(path, logger)
		}
		fix := CorrectClock(t, r.track, e.cfg.TimeTolerance, mtime, r.local)
		if fix.Fix != ClockUnchanged {
			logger.Info().
				Str("fix", string(fix.Fix)).
				Dur("offset", fix.Offset).
				Time("from", t).
				Time("to", fix.Time).
				Msg("Corrected camera clock")
		}
		diag.Clock, diag.ClockOffset, diag.ClockOffsetSeconds = fix.Fix, fix.Offset, fix.Offset.Seconds()
		corrected := fix.Time
		loc.CreationTime = &corrected
	}

	loc.DurationSeconds = e.duration(ctx, r, path, &diag, logger)

	if !r.force {
		if points := e.embeddedGPS(ctx, r, path, &diag, logger); len(points) > 0 {
			first := points[0]
			loc.Position = &first
			loc.Source = geo.SourceEmbeddedGPS
			loc.TrackPoints = points
			logger.Info().Str("source", string(loc.Source)).Int("points", len(points)).Msg("Located from embedded GPS")
			return loc, diag
		}
	}

	switch {
	case r.track.IsEmpty():
		logger.Info().Msg("No embedded GPS and no track loaded")
	case loc.CreationTime == nil:
		logger.Info().Msg("No creation time, cannot sync with track")
	default:
		utc := loc.CreationTime.UTC()
		match, ok := r.track.PositionAtTime(utc, e.cfg.NearestTolerance)
		if !ok {
			logger.Info().Time("creation_time", utc).Msg("Creation time outside track")
			break
		}
		point := match.Point
		loc.Position = &point
		loc.Source = geo.SourceTrackSync
		loc.TrackPoints = segmentFor(r.track, match, utc, loc.DurationSeconds)
		diag.MatchTier, diag.MatchOffset, diag.MatchOffsetSeconds = match.Tier, match.Offset, match.Offset.Seconds()
		logger.Info().
			Str("source", string(loc.Source)).
			Str("tier", string(match.Tier)).
			Dur("offset_applied", match.Offset).
			Msg("Located from track")
	}
	return loc, diag
}

// trackCovers reports whether some clock offset lands t in the track, in
// which case the modification time is never consulted.
func trackCovers(track *geo.Track, t time.Time, tolerance time.Duration) bool {
	for _, offset := range ClockOffsets {
		if track.IsTimeInTrack(t.Add(offset), tolerance) {
			return true
		}
	}
	return false
}

// segmentFor returns the stretch of track the video covers. A nearest-point
// match has no stretch, only the point.
func segmentFor(track *geo.Track, match geo.Match, utc time.Time, durationSeconds *float64) []geo.GeoPoint {
	if match.Tier == geo.TierNearest {
		return []geo.GeoPoint{match.Point}
	}
	var d time.Duration
	if durationSeconds != nil {
		d = time.Duration(*durationSeconds * float64(time.Second))
	}
	segment := track.Segment(utc.Add(match.Offset), d)
	if len(segment) == 0 {
		return []geo.GeoPoint{match.Point}
	}
	return segment
}

func (e *Engine) lookup(ctx context.Context, r *run, field LookupField, path string, diag *Diagnostic, logger zerolog.Logger) (Answer, bool) {
	ans, err := r.cache.Fetch(ctx, Lookup{Strategy: r.strategy, Field: field, Path: path})
	if err != nil {
		logger.Warn().Err(err).Str("lookup", string(field)).Msg("Failed to read video metadata")
		diag.Error = err.Error()
		return Answer{}, false
	}
	return ans, true
}

func (e *Engine) creationTime(ctx context.Context, r *run, path string, diag *Diagnostic, logger zerolog.Logger) *time.Time {
	ans, _ := e.lookup(ctx, r, LookupCreation, path, diag, logger)
	return ans.CreationTime
}

func (e *Engine) duration(ctx context.Context, r *run, path string, diag *Diagnostic, logger zerolog.Logger) *float64 {
	ans, _ := e.lookup(ctx, r, LookupDuration, path, diag, logger)
	return ans.DurationSeconds
}

func (e *Engine) embeddedGPS(ctx context.Context, r *run, path string, diag *Diagnostic, logger zerolog.Logger) []geo.GeoPoint {
	ans, ok := e.lookup(ctx, r, LookupGPS, path, diag, logger)
	if ok && ans.GPSFound && len(ans.GPSPoints) == 0 {
		logger.Debug().Msg("Telemetry stream holds no usable GPS sample")
	}
	return ans.GPSPoints
}

func (e *Engine) mtime(path string, logger zerolog.Logger) *time.Time {
	if e.files == nil {
		return nil
	}
	t, err := e.files.MtimeUTC(path)
	if err != nil {
		logger.Debug().Err(err).Msg("No modification time for clock check")
		return nil
	}
	return &t
}
