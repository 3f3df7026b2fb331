package videosync_test

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/illmade-knight/trackcam/pkg/camera"
	"github.com/illmade-knight/trackcam/pkg/geo"
	"github.com/illmade-knight/trackcam/pkg/trackparse"
	"github.com/illmade-knight/trackcam/pkg/videosync"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockAdapter struct {
	CreationTimeFunc    func(ctx context.Context, path string) (*time.Time, error)
	DurationSecondsFunc func(ctx context.Context, path string) (*float64, error)
	EmbeddedGPSFunc     func(ctx context.Context, path string) ([]geo.GeoPoint, bool, error)

	creationCalls atomic.Int64
	gpsCalls      atomic.Int64
}

func (m *mockAdapter) CreationTime(ctx context.Context, path string) (*time.Time, error) {
	m.creationCalls.Add(1)
	if m.CreationTimeFunc == nil {
		return nil, nil
	}
	return m.CreationTimeFunc(ctx, path)
}

func (m *mockAdapter) DurationSeconds(ctx context.Context, path string) (*float64, error) {
	if m.DurationSecondsFunc == nil {
		return nil, nil
	}
	return m.DurationSecondsFunc(ctx, path)
}

func (m *mockAdapter) EmbeddedGPS(ctx context.Context, path string) ([]geo.GeoPoint, bool, error) {
	m.gpsCalls.Add(1)
	if m.EmbeddedGPSFunc == nil {
		return nil, false, nil
	}
	return m.EmbeddedGPSFunc(ctx, path)
}

type mockLoader struct {
	ParseFunc func(path string) (*geo.Track, error)
}

func (m *mockLoader) Parse(path string) (*geo.Track, error) { return m.ParseFunc(path) }

type mockCatalog struct {
	ListVideosFunc func(folder string, exts []string) ([]string, error)
}

func (m *mockCatalog) ListVideos(folder string, exts []string) ([]string, error) {
	return m.ListVideosFunc(folder, exts)
}

func videos(names ...string) *mockCatalog {
	return &mockCatalog{ListVideosFunc: func(folder string, _ []string) ([]string, error) {
		paths := make([]string, len(names))
		for i, n := range names {
			paths[i] = filepath.Join(folder, n)
		}
		return paths, nil
	}}
}

func loads(track *geo.Track) *mockLoader {
	return &mockLoader{ParseFunc: func(string) (*geo.Track, error) { return track, nil }}
}

func createdAt(t time.Time) func(context.Context, string) (*time.Time, error) {
	return func(context.Context, string) (*time.Time, error) { return &t, nil }
}

func lasting(seconds float64) func(context.Context, string) (*float64, error) {
	return func(context.Context, string) (*float64, error) { return &seconds, nil }
}

func embedded(points ...geo.GeoPoint) func(context.Context, string) ([]geo.GeoPoint, bool, error) {
	return func(context.Context, string) ([]geo.GeoPoint, bool, error) { return points, true, nil }
}

type recorder struct {
	mu     sync.Mutex
	events []videosync.Event
}

func (r *recorder) Report(e videosync.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func newEngine(adapter *mockAdapter, loader videosync.TrackLoader, catalog videosync.Catalog) *videosync.Engine {
	return videosync.NewEngine(
		videosync.Config{},
		loader,
		catalog,
		nil,
		map[camera.Strategy]videosync.MetadataAdapter{
			camera.StrategyGoPro:   adapter,
			camera.StrategyGeneric: adapter,
		},
		zerolog.Nop(),
	)
}

var baseRequest = videosync.Request{
	TrackPath:     "/tracks/ride.fit",
	VideoFolder:   "/videos",
	CameraFilter:  camera.Auto,
	LocalTimezone: "UTC",
}

func TestEngine_EndToEndTrackSync(t *testing.T) {
	// Arrange
	adapter := &mockAdapter{
		CreationTimeFunc:    createdAt(utc(9, 5)),
		DurationSecondsFunc: lasting(120),
	}
	engine := newEngine(adapter, loads(morningTrack()), videos("GX010001.MP4"))

	// Act
	res, err := engine.Run(context.Background(), baseRequest, nil)

	// Assert
	require.NoError(t, err)
	require.Len(t, res.Locations, 1)
	loc := res.Locations[0]
	assert.Equal(t, geo.SourceTrackSync, loc.Source)
	require.NotNil(t, loc.Position)
	assert.InDelta(t, 48.05, loc.Position.Latitude, 1e-9)
	assert.InDelta(t, 2.05, loc.Position.Longitude, 1e-9)
	require.NotNil(t, loc.CreationTime)
	assert.True(t, loc.CreationTime.Equal(utc(9, 5)))
	require.NotNil(t, loc.DurationSeconds)
	assert.Equal(t, 120.0, *loc.DurationSeconds)

	require.Len(t, loc.TrackPoints, 2)
	assert.InDelta(t, 48.05, loc.TrackPoints[0].Latitude, 1e-9)
	assert.InDelta(t, 48.07, loc.TrackPoints[1].Latitude, 1e-9)

	assert.Equal(t, "GX010001.MP4", loc.VideoName)
	assert.Equal(t, geo.DefaultMarkerColor, loc.MarkerColor)
	assert.Equal(t, geo.TierExact, res.Diagnostics[0].MatchTier)
	assert.Equal(t, videosync.Summary{Videos: 1, Located: 1, TrackSync: 1, TrackPoints: 2}, res.Summary)
	assert.NotEmpty(t, res.RunID)
}

func TestEngine_SourcePrecedence(t *testing.T) {
	onboard := geo.GeoPoint{Latitude: 45.9, Longitude: 6.8, Timestamp: utc(9, 5)}

	t.Run("embedded GPS wins over a loaded track", func(t *testing.T) {
		adapter := &mockAdapter{
			CreationTimeFunc: createdAt(utc(9, 5)),
			EmbeddedGPSFunc:  embedded(onboard, geo.GeoPoint{Latitude: 45.91, Longitude: 6.81}),
		}
		engine := newEngine(adapter, loads(morningTrack()), videos("GX010001.MP4"))

		res, err := engine.Run(context.Background(), baseRequest, nil)

		require.NoError(t, err)
		loc := res.Locations[0]
		assert.Equal(t, geo.SourceEmbeddedGPS, loc.Source)
		assert.Equal(t, onboard, *loc.Position)
		assert.Len(t, loc.TrackPoints, 2)
	})

	t.Run("forced timestamp sync never uses embedded GPS", func(t *testing.T) {
		adapter := &mockAdapter{
			CreationTimeFunc: createdAt(utc(9, 5)),
			EmbeddedGPSFunc:  embedded(onboard),
		}
		engine := newEngine(adapter, loads(morningTrack()), videos("GX010001.MP4"))
		req := baseRequest
		req.ForceTimestampSync = true

		res, err := engine.Run(context.Background(), req, nil)

		require.NoError(t, err)
		assert.Equal(t, geo.SourceTrackSync, res.Locations[0].Source)
		assert.Zero(t, adapter.gpsCalls.Load())
	})

	t.Run("forced without a usable track is unknown", func(t *testing.T) {
		adapter := &mockAdapter{
			CreationTimeFunc: createdAt(utc(18, 0)),
			EmbeddedGPSFunc:  embedded(onboard),
		}
		engine := newEngine(adapter, loads(morningTrack()), videos("GX010001.MP4"))
		req := baseRequest
		req.ForceTimestampSync = true

		res, err := engine.Run(context.Background(), req, nil)

		require.NoError(t, err)
		assert.Equal(t, geo.SourceUnknown, res.Locations[0].Source)
		assert.Nil(t, res.Locations[0].Position)
	})

	t.Run("a camera without GPS forces timestamp sync", func(t *testing.T) {
		gopro := &mockAdapter{EmbeddedGPSFunc: embedded(onboard)}
		generic := &mockAdapter{CreationTimeFunc: createdAt(utc(9, 5))}
		engine := videosync.NewEngine(videosync.Config{}, loads(morningTrack()), videos("GX010001.MP4"), nil,
			map[camera.Strategy]videosync.MetadataAdapter{
				camera.StrategyGoPro:   gopro,
				camera.StrategyGeneric: generic,
			}, zerolog.Nop())
		req := baseRequest
		req.CameraFilter = camera.Hero12

		res, err := engine.Run(context.Background(), req, nil)

		require.NoError(t, err)
		assert.Equal(t, geo.SourceTrackSync, res.Locations[0].Source)
		assert.Zero(t, gopro.creationCalls.Load())
		assert.Zero(t, generic.gpsCalls.Load())
	})

	t.Run("no embedded GPS and no track", func(t *testing.T) {
		adapter := &mockAdapter{CreationTimeFunc: createdAt(utc(9, 5))}
		engine := newEngine(adapter, nil, videos("GX010001.MP4"))
		req := baseRequest
		req.TrackPath = ""

		res, err := engine.Run(context.Background(), req, nil)

		require.NoError(t, err)
		assert.Equal(t, geo.SourceUnknown, res.Locations[0].Source)
		assert.Equal(t, 1, res.Summary.NotLocated)
	})
}

func TestEngine_ClockHandling(t *testing.T) {
	t.Run("manual offset applies before the track lookup", func(t *testing.T) {
		adapter := &mockAdapter{CreationTimeFunc: createdAt(utc(7, 35))}
		engine := newEngine(adapter, loads(morningTrack()), videos("a.mp4"))
		req := baseRequest
		req.ManualOffsetSeconds = 5400

		res, err := engine.Run(context.Background(), req, nil)

		require.NoError(t, err)
		loc := res.Locations[0]
		require.NotNil(t, loc.CreationTime)
		assert.True(t, loc.CreationTime.Equal(utc(9, 5)))
		assert.InDelta(t, 48.05, loc.Position.Latitude, 1e-9)
	})

	t.Run("camera clock an hour fast", func(t *testing.T) {
		adapter := &mockAdapter{CreationTimeFunc: createdAt(utc(10, 5))}
		engine := newEngine(adapter, loads(morningTrack()), videos("a.mp4"))

		res, err := engine.Run(context.Background(), baseRequest, nil)

		require.NoError(t, err)
		loc := res.Locations[0]
		assert.True(t, loc.CreationTime.Equal(utc(9, 5)))
		assert.Equal(t, geo.SourceTrackSync, loc.Source)
		assert.Equal(t, videosync.ClockTrackOffset, res.Diagnostics[0].Clock)
		assert.Equal(t, -3600.0, res.Diagnostics[0].ClockOffsetSeconds)
	})
}

func TestEngine_PerVideoFailuresDegrade(t *testing.T) {
	// Arrange
	adapter := &mockAdapter{
		CreationTimeFunc: func(_ context.Context, path string) (*time.Time, error) {
			switch filepath.Base(path) {
			case "broken.mp4":
				return nil, errors.New("ffprobe crashed")
			case "cursed.mp4":
				panic("corrupt atom")
			}
			t := utc(9, 5)
			return &t, nil
		},
		DurationSecondsFunc: lasting(30),
	}
	engine := newEngine(adapter, loads(morningTrack()), videos("broken.mp4", "cursed.mp4", "good.mp4"))

	// Act
	res, err := engine.Run(context.Background(), baseRequest, nil)

	// Assert
	require.NoError(t, err)
	require.Len(t, res.Locations, 3)

	broken := res.Locations[0]
	assert.Equal(t, geo.SourceUnknown, broken.Source)
	assert.Nil(t, broken.CreationTime)
	require.NotNil(t, broken.DurationSeconds)
	assert.Equal(t, 30.0, *broken.DurationSeconds)
	assert.Contains(t, res.Diagnostics[0].Error, "ffprobe crashed")

	assert.Equal(t, geo.SourceUnknown, res.Locations[1].Source)
	assert.Contains(t, res.Diagnostics[1].Error, "corrupt atom")

	assert.Equal(t, geo.SourceTrackSync, res.Locations[2].Source)
	assert.Equal(t, 1, res.Summary.Located)
	assert.Equal(t, 2, res.Summary.NotLocated)
}

func TestEngine_InputErrors(t *testing.T) {
	adapter := &mockAdapter{}

	t.Run("missing folder", func(t *testing.T) {
		catalog := &mockCatalog{ListVideosFunc: func(string, []string) ([]string, error) {
			return nil, fmt.Errorf("failed to list: %w", fs.ErrNotExist)
		}}
		engine := newEngine(adapter, loads(morningTrack()), catalog)

		_, err := engine.Run(context.Background(), baseRequest, nil)

		assert.ErrorIs(t, err, videosync.ErrFolderNotFound)
	})

	t.Run("missing track file", func(t *testing.T) {
		loader := &mockLoader{ParseFunc: func(path string) (*geo.Track, error) {
			return nil, fmt.Errorf("%w: %s", trackparse.ErrNotFound, path)
		}}
		engine := newEngine(adapter, loader, videos("a.mp4"))

		_, err := engine.Run(context.Background(), baseRequest, nil)

		assert.ErrorIs(t, err, trackparse.ErrNotFound)
	})

	t.Run("empty track is not fatal", func(t *testing.T) {
		loader := &mockLoader{ParseFunc: func(string) (*geo.Track, error) { return nil, trackparse.ErrEmptyTrack }}
		engine := newEngine(adapter, loader, videos("a.mp4"))

		res, err := engine.Run(context.Background(), baseRequest, nil)

		require.NoError(t, err)
		assert.Nil(t, res.Track)
		assert.NotEmpty(t, res.TrackWarning)
		assert.Len(t, res.Locations, 1)
	})

	t.Run("no track decoder is not fatal", func(t *testing.T) {
		engine := newEngine(adapter, nil, videos("a.mp4"))

		res, err := engine.Run(context.Background(), baseRequest, nil)

		require.NoError(t, err)
		assert.Equal(t, trackparse.ErrDecoderUnavailable.Error(), res.TrackWarning)
	})

	t.Run("unknown timezone", func(t *testing.T) {
		engine := newEngine(adapter, loads(morningTrack()), videos("a.mp4"))
		req := baseRequest
		req.LocalTimezone = "Mars/Olympus_Mons"

		_, err := engine.Run(context.Background(), req, nil)

		assert.Error(t, err)
	})

	t.Run("empty folder", func(t *testing.T) {
		engine := newEngine(adapter, loads(morningTrack()), videos())

		res, err := engine.Run(context.Background(), baseRequest, nil)

		require.NoError(t, err)
		assert.Empty(t, res.Locations)
	})
}

func TestEngine_LookupCache(t *testing.T) {
	t.Run("second run reuses lookups", func(t *testing.T) {
		adapter := &mockAdapter{CreationTimeFunc: createdAt(utc(9, 5))}
		engine := newEngine(adapter, loads(morningTrack()), videos("a.mp4", "b.mp4"))

		_, err := engine.Run(context.Background(), baseRequest, nil)
		require.NoError(t, err)
		_, err = engine.Run(context.Background(), baseRequest, nil)
		require.NoError(t, err)

		assert.Equal(t, int64(2), adapter.creationCalls.Load())
		assert.Equal(t, int64(2), adapter.gpsCalls.Load())
	})

	t.Run("changing strategy drops the cache", func(t *testing.T) {
		adapter := &mockAdapter{CreationTimeFunc: createdAt(utc(9, 5))}
		engine := newEngine(adapter, loads(morningTrack()), videos("a.mp4"))

		_, err := engine.Run(context.Background(), baseRequest, nil)
		require.NoError(t, err)
		engine.SetCameraFilter(camera.DJI)
		req := baseRequest
		req.CameraFilter = camera.DJI
		_, err = engine.Run(context.Background(), req, nil)
		require.NoError(t, err)

		assert.Equal(t, int64(2), adapter.creationCalls.Load())
	})

	t.Run("same strategy keeps the cache", func(t *testing.T) {
		adapter := &mockAdapter{CreationTimeFunc: createdAt(utc(9, 5))}
		engine := newEngine(adapter, loads(morningTrack()), videos("a.mp4"))

		_, err := engine.Run(context.Background(), baseRequest, nil)
		require.NoError(t, err)
		req := baseRequest
		req.CameraFilter = camera.Hero9Minus
		_, err = engine.Run(context.Background(), req, nil)
		require.NoError(t, err)

		assert.Equal(t, int64(1), adapter.creationCalls.Load())
	})

	t.Run("reset drops the cache", func(t *testing.T) {
		adapter := &mockAdapter{CreationTimeFunc: createdAt(utc(9, 5))}
		engine := newEngine(adapter, loads(morningTrack()), videos("a.mp4"))

		_, err := engine.Run(context.Background(), baseRequest, nil)
		require.NoError(t, err)
		engine.ResetCache()
		_, err = engine.Run(context.Background(), baseRequest, nil)
		require.NoError(t, err)

		assert.Equal(t, int64(2), adapter.creationCalls.Load())
	})

	t.Run("failed lookups are retried", func(t *testing.T) {
		var calls atomic.Int64
		adapter := &mockAdapter{CreationTimeFunc: func(context.Context, string) (*time.Time, error) {
			if calls.Add(1) == 1 {
				return nil, errors.New("timeout")
			}
			t := utc(9, 5)
			return &t, nil
		}}
		engine := newEngine(adapter, loads(morningTrack()), videos("a.mp4"))

		first, err := engine.Run(context.Background(), baseRequest, nil)
		require.NoError(t, err)
		second, err := engine.Run(context.Background(), baseRequest, nil)
		require.NoError(t, err)

		assert.Equal(t, geo.SourceUnknown, first.Locations[0].Source)
		assert.Equal(t, geo.SourceTrackSync, second.Locations[0].Source)
	})
}

func TestEngine_ParallelRunKeepsOrderAndProgress(t *testing.T) {
	// Arrange
	names := make([]string, 20)
	for i := range names {
		names[i] = fmt.Sprintf("GX01%04d.MP4", i)
	}
	adapter := &mockAdapter{
		CreationTimeFunc: func(_ context.Context, path string) (*time.Time, error) {
			time.Sleep(time.Millisecond)
			var i int
			_, _ = fmt.Sscanf(filepath.Base(path), "GX01%04d.MP4", &i)
			t := utc(9, 0).Add(time.Duration(i) * 30 * time.Second)
			return &t, nil
		},
	}
	engine := videosync.NewEngine(videosync.Config{Workers: 4}, loads(morningTrack()), videos(names...), nil,
		map[camera.Strategy]videosync.MetadataAdapter{camera.StrategyGoPro: adapter}, zerolog.Nop())
	rec := &recorder{}

	// Act
	res, err := engine.Run(context.Background(), baseRequest, rec)

	// Assert
	require.NoError(t, err)
	require.Len(t, res.Locations, len(names))
	for i, loc := range res.Locations {
		assert.Equal(t, names[i], loc.VideoName)
		assert.InDelta(t, 48.0+0.1*float64(i)/20, loc.Position.Latitude, 1e-9)
	}

	require.Len(t, rec.events, len(names)+3)
	assert.Equal(t, videosync.PhaseLoadTrack, rec.events[0].Phase)
	assert.Equal(t, videosync.PhaseListVideos, rec.events[1].Phase)
	for i, ev := range rec.events[2 : len(rec.events)-1] {
		assert.Equal(t, videosync.PhaseProcessVideo, ev.Phase)
		assert.Equal(t, i+1, ev.Current)
		assert.Equal(t, len(names), ev.Total)
		assert.Equal(t, res.RunID, ev.RunID)
	}
	assert.Equal(t, videosync.PhaseDone, rec.events[len(rec.events)-1].Phase)
}

func TestEngine_Cancellation(t *testing.T) {
	// Arrange
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	adapter := &mockAdapter{CreationTimeFunc: createdAt(utc(9, 5))}
	engine := newEngine(adapter, loads(morningTrack()), videos("a.mp4", "b.mp4", "c.mp4"))
	reporter := videosync.ReporterFunc(func(e videosync.Event) {
		if e.Phase == videosync.PhaseProcessVideo && e.Current == 1 {
			cancel()
		}
	})

	// Act
	res, err := engine.Run(ctx, baseRequest, reporter)

	// Assert
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, res)
	require.Len(t, res.Locations, 1)
	assert.Equal(t, "a.mp4", res.Locations[0].VideoName)
}
