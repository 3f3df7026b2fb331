package app_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/illmade-knight/trackcam/app"
	"github.com/illmade-knight/trackcam/pkg/camera"
	"github.com/illmade-knight/trackcam/pkg/geo"
	"github.com/illmade-knight/trackcam/pkg/project"
	"github.com/illmade-knight/trackcam/pkg/videosync"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Mock Dependencies ---

type mockEngine struct {
	RunFunc      func(ctx context.Context, req videosync.Request, reporter videosync.ProgressReporter) (*videosync.Result, error)
	filters      []camera.Profile
	lastRequests []videosync.Request
}

func (m *mockEngine) Run(ctx context.Context, req videosync.Request, reporter videosync.ProgressReporter) (*videosync.Result, error) {
	m.lastRequests = append(m.lastRequests, req)
	return m.RunFunc(ctx, req, reporter)
}

func (m *mockEngine) SetCameraFilter(profile camera.Profile) {
	m.filters = append(m.filters, profile)
}

// freshResult returns a new result each call, as the engine would.
func freshResult(paths ...string) func(context.Context, videosync.Request, videosync.ProgressReporter) (*videosync.Result, error) {
	return func(context.Context, videosync.Request, videosync.ProgressReporter) (*videosync.Result, error) {
		res := &videosync.Result{RunID: "run"}
		for _, p := range paths {
			loc := geo.NewVideoLocation(p, p)
			loc.Position = &geo.GeoPoint{Latitude: 48, Longitude: 2}
			loc.Source = geo.SourceTrackSync
			res.Locations = append(res.Locations, loc)
		}
		res.Summary = videosync.Summarize(res.Locations, nil)
		return res, nil
	}
}

func newApp(engine *mockEngine) *app.App {
	return app.New(engine, project.NewService(project.NewInMemoryStore()), zerolog.Nop())
}

// --- Test Suite ---

func TestApp_Synchronize(t *testing.T) {
	ctx := context.Background()
	req := videosync.Request{VideoFolder: "/v", CameraFilter: camera.DJI}

	t.Run("sets camera filter and keeps the result", func(t *testing.T) {
		engine := &mockEngine{RunFunc: freshResult("/v/a.mp4")}
		a := newApp(engine)

		res, err := a.Synchronize(ctx, req, nil)

		require.NoError(t, err)
		assert.Equal(t, []camera.Profile{camera.DJI}, engine.filters)
		assert.Same(t, res, a.Result())
	})

	t.Run("edits carry over to a rerun", func(t *testing.T) {
		// Arrange
		a := newApp(&mockEngine{RunFunc: freshResult("/v/a.mp4", "/v/b.mp4")})
		_, err := a.Synchronize(ctx, req, nil)
		require.NoError(t, err)
		_, err = a.EditVideo("/v/a.mp4", project.VideoEdit{CustomName: "Summit", MarkerColor: "#ff0000"})
		require.NoError(t, err)

		// Act
		res, err := a.Synchronize(ctx, req, nil)

		// Assert
		require.NoError(t, err)
		assert.Equal(t, "Summit", res.Locations[0].CustomName)
		assert.Equal(t, "#ff0000", res.Locations[0].MarkerColor)
		assert.Equal(t, geo.DefaultMarkerColor, res.Locations[1].MarkerColor)
	})

	t.Run("hard error keeps the previous result", func(t *testing.T) {
		engine := &mockEngine{RunFunc: freshResult("/v/a.mp4")}
		a := newApp(engine)
		first, err := a.Synchronize(ctx, req, nil)
		require.NoError(t, err)
		engine.RunFunc = func(context.Context, videosync.Request, videosync.ProgressReporter) (*videosync.Result, error) {
			return nil, videosync.ErrFolderNotFound
		}

		_, err = a.Synchronize(ctx, req, nil)

		assert.ErrorIs(t, err, videosync.ErrFolderNotFound)
		assert.Same(t, first, a.Result())
	})

	t.Run("partial result on cancel is kept", func(t *testing.T) {
		engine := &mockEngine{RunFunc: func(ctx context.Context, req videosync.Request, r videosync.ProgressReporter) (*videosync.Result, error) {
			res, _ := freshResult("/v/a.mp4")(ctx, req, r)
			return res, context.Canceled
		}}
		a := newApp(engine)

		res, err := a.Synchronize(ctx, req, nil)

		assert.ErrorIs(t, err, context.Canceled)
		require.NotNil(t, res)
		assert.Same(t, res, a.Result())
	})
}

func TestApp_EditVideo(t *testing.T) {
	ctx := context.Background()

	t.Run("before any run", func(t *testing.T) {
		_, err := newApp(&mockEngine{}).EditVideo("/v/a.mp4", project.VideoEdit{})

		assert.ErrorIs(t, err, app.ErrNoRun)
	})

	t.Run("unknown video", func(t *testing.T) {
		a := newApp(&mockEngine{RunFunc: freshResult("/v/a.mp4")})
		_, err := a.Synchronize(ctx, videosync.Request{VideoFolder: "/v"}, nil)
		require.NoError(t, err)

		_, err = a.EditVideo("/v/zzz.mp4", project.VideoEdit{CustomName: "x"})

		assert.ErrorIs(t, err, app.ErrUnknownVideo)
	})
}

func TestApp_Projects(t *testing.T) {
	ctx := context.Background()
	req := videosync.Request{TrackPath: "/t/ride.fit", VideoFolder: "/v/ride", CameraFilter: camera.Hero10Plus, ManualOffsetSeconds: 60}

	t.Run("save requires a run", func(t *testing.T) {
		_, err := newApp(&mockEngine{}).SaveProject(ctx, "x")

		assert.ErrorIs(t, err, app.ErrNoRun)
	})

	t.Run("save then open in a new session restores edits", func(t *testing.T) {
		// Arrange
		svc := project.NewService(project.NewInMemoryStore())
		first := app.New(&mockEngine{RunFunc: freshResult("/v/ride/a.mp4")}, svc, zerolog.Nop())
		_, err := first.Synchronize(ctx, req, nil)
		require.NoError(t, err)
		_, err = first.EditVideo("/v/ride/a.mp4", project.VideoEdit{CustomNote: "lunch stop", MarkerIcon: "star"})
		require.NoError(t, err)
		saved, err := first.SaveProject(ctx, "")
		require.NoError(t, err)

		engine := &mockEngine{RunFunc: freshResult("/v/ride/a.mp4")}
		second := app.New(engine, svc, zerolog.Nop())

		// Act
		res, err := second.OpenProject(ctx, saved.ID, nil)

		// Assert
		require.NoError(t, err)
		require.Len(t, engine.lastRequests, 1)
		assert.Equal(t, req, engine.lastRequests[0])
		assert.Equal(t, "lunch stop", res.Locations[0].CustomNote)
		assert.Equal(t, "star", res.Locations[0].MarkerIcon)

		recent, err := second.RecentProjects(ctx)
		require.NoError(t, err)
		require.Len(t, recent, 1)
		assert.Equal(t, "ride", recent[0].Name)
	})

	t.Run("second save overwrites the same project", func(t *testing.T) {
		a := newApp(&mockEngine{RunFunc: freshResult("/v/ride/a.mp4")})
		_, err := a.Synchronize(ctx, req, nil)
		require.NoError(t, err)

		p1, err := a.SaveProject(ctx, "one")
		require.NoError(t, err)
		p2, err := a.SaveProject(ctx, "two")
		require.NoError(t, err)

		assert.Equal(t, p1.ID, p2.ID)
	})

	t.Run("open unknown project", func(t *testing.T) {
		_, err := newApp(&mockEngine{}).OpenProject(ctx, uuid.New(), nil)

		assert.ErrorIs(t, err, project.ErrNotFound)
	})

	t.Run("open propagates engine errors", func(t *testing.T) {
		svc := project.NewService(project.NewInMemoryStore())
		saved, err := svc.Save(ctx, uuid.Nil, "p", req, nil)
		require.NoError(t, err)
		boom := errors.New("boom")
		a := app.New(&mockEngine{RunFunc: func(context.Context, videosync.Request, videosync.ProgressReporter) (*videosync.Result, error) {
			return nil, boom
		}}, svc, zerolog.Nop())

		_, err = a.OpenProject(ctx, saved.ID, nil)

		assert.ErrorIs(t, err, boom)
	})
}
