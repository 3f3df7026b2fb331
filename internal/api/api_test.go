package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/illmade-knight/trackcam/internal/api"
	"github.com/illmade-knight/trackcam/pkg/camera"
	"github.com/illmade-knight/trackcam/pkg/geo"
	"github.com/illmade-knight/trackcam/pkg/videosync"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockRunner struct {
	RunFunc func(ctx context.Context, req videosync.Request, reporter videosync.ProgressReporter) (*videosync.Result, error)
}

func (m *mockRunner) Run(ctx context.Context, req videosync.Request, reporter videosync.ProgressReporter) (*videosync.Result, error) {
	return m.RunFunc(ctx, req, reporter)
}

func quickRun(ctx context.Context, req videosync.Request, reporter videosync.ProgressReporter) (*videosync.Result, error) {
	reporter.Report(videosync.Event{Phase: videosync.PhaseProcessVideo, Current: 1, Total: 1, Path: "/v/a.mp4"})
	loc := geo.NewVideoLocation("/v/a.mp4", "a.mp4")
	loc.Position = &geo.GeoPoint{Latitude: 48, Longitude: 2}
	loc.Source = geo.SourceEmbeddedGPS
	res := &videosync.Result{RunID: "engine-run", Locations: []geo.VideoLocation{loc}}
	res.Summary = videosync.Summarize(res.Locations, nil)
	return res, nil
}

// blockingRun waits for cancellation.
func blockingRun(ctx context.Context, _ videosync.Request, _ videosync.ProgressReporter) (*videosync.Result, error) {
	<-ctx.Done()
	return &videosync.Result{}, ctx.Err()
}

func newServer(t *testing.T, runner api.Runner) *api.Server {
	t.Helper()
	hub := api.NewHub(nil, zerolog.Nop())
	runs := api.NewRegistry(runner, hub, zerolog.Nop())
	t.Cleanup(runs.Shutdown)
	return api.NewServer(runs, hub, zerolog.Nop())
}

func postRun(t *testing.T, s *api.Server, body string) *http.Response {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/runs/", bytes.NewReader([]byte(body)))
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.App.Test(req)
	require.NoError(t, err)
	return resp
}

func decode(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func TestServer_Static(t *testing.T) {
	s := newServer(t, &mockRunner{RunFunc: quickRun})

	t.Run("health", func(t *testing.T) {
		resp, err := s.App.Test(httptest.NewRequest(http.MethodGet, "/health", nil))
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("cameras", func(t *testing.T) {
		resp, err := s.App.Test(httptest.NewRequest(http.MethodGet, "/cameras", nil))
		require.NoError(t, err)

		var cameras []map[string]any
		decode(t, resp, &cameras)
		require.Len(t, cameras, len(camera.All()))
		assert.Equal(t, "auto", cameras[0]["id"])
	})

	t.Run("websocket route needs an upgrade", func(t *testing.T) {
		resp, err := s.App.Test(httptest.NewRequest(http.MethodGet, "/ws/runs/x", nil))
		require.NoError(t, err)
		assert.Equal(t, http.StatusUpgradeRequired, resp.StatusCode)
	})
}

func TestServer_StartRun(t *testing.T) {
	t.Run("rejects bad input", func(t *testing.T) {
		s := newServer(t, &mockRunner{RunFunc: quickRun})
		for name, body := range map[string]string{
			"malformed":      "{",
			"missing folder": `{"track_path":"/t.fit"}`,
			"unknown camera": `{"video_folder":"/v","camera_filter":"nokia"}`,
		} {
			t.Run(name, func(t *testing.T) {
				resp := postRun(t, s, body)
				assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			})
		}
	})

	t.Run("completed run exposes result and geojson", func(t *testing.T) {
		// Arrange
		var got videosync.Request
		s := newServer(t, &mockRunner{RunFunc: func(ctx context.Context, req videosync.Request, r videosync.ProgressReporter) (*videosync.Result, error) {
			got = req
			return quickRun(ctx, req, r)
		}})

		// Act
		resp := postRun(t, s, `{"video_folder":"/v","camera_filter":"DJI (track sync)","manual_offset_seconds":30}`)
		require.Equal(t, http.StatusAccepted, resp.StatusCode)
		var started map[string]string
		decode(t, resp, &started)
		id := started["run_id"]
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_, err := s.Runs.Wait(ctx, id)
		require.NoError(t, err)

		// Assert
		assert.Equal(t, camera.DJI, got.CameraFilter)
		assert.Equal(t, 30.0, got.ManualOffsetSeconds)

		resp, err = s.App.Test(httptest.NewRequest(http.MethodGet, "/runs/"+id, nil))
		require.NoError(t, err)
		var view api.RunView
		decode(t, resp, &view)
		assert.Equal(t, api.StatusDone, view.Status)
		require.NotNil(t, view.Result)
		assert.Equal(t, 1, view.Result.Summary.EmbeddedGPS)
		require.NotNil(t, view.Progress)
		assert.Equal(t, 1, view.Progress.Current)

		resp, err = s.App.Test(httptest.NewRequest(http.MethodGet, "/runs/"+id+"/geojson", nil))
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "application/geo+json", resp.Header.Get("Content-Type"))
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		assert.Contains(t, string(body), "FeatureCollection")
	})

	t.Run("one run at a time and cancel", func(t *testing.T) {
		// Arrange
		s := newServer(t, &mockRunner{RunFunc: blockingRun})
		resp := postRun(t, s, `{"video_folder":"/v"}`)
		require.Equal(t, http.StatusAccepted, resp.StatusCode)
		var started map[string]string
		decode(t, resp, &started)
		id := started["run_id"]

		// Act & Assert: busy
		resp = postRun(t, s, `{"video_folder":"/v"}`)
		assert.Equal(t, http.StatusConflict, resp.StatusCode)

		resp, err := s.App.Test(httptest.NewRequest(http.MethodGet, "/runs/"+id+"/geojson", nil))
		require.NoError(t, err)
		assert.Equal(t, http.StatusConflict, resp.StatusCode)

		// Act & Assert: cancel
		resp, err = s.App.Test(httptest.NewRequest(http.MethodDelete, "/runs/"+id, nil))
		require.NoError(t, err)
		assert.Equal(t, http.StatusAccepted, resp.StatusCode)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		view, err := s.Runs.Wait(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, api.StatusCancelled, view.Status)

		resp = postRun(t, s, `{"video_folder":"/v"}`)
		assert.Equal(t, http.StatusAccepted, resp.StatusCode, "registry is free again")
	})

	t.Run("unknown run", func(t *testing.T) {
		s := newServer(t, &mockRunner{RunFunc: quickRun})

		for _, method := range []string{http.MethodGet, http.MethodDelete} {
			resp, err := s.App.Test(httptest.NewRequest(method, "/runs/nope", nil))
			require.NoError(t, err)
			assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		}
	})
}

func TestRegistry_StreamsProgress(t *testing.T) {
	// Arrange
	hub := api.NewHub(nil, zerolog.Nop())
	release := make(chan struct{})
	runs := api.NewRegistry(&mockRunner{RunFunc: func(ctx context.Context, req videosync.Request, r videosync.ProgressReporter) (*videosync.Result, error) {
		<-release
		return quickRun(ctx, req, r)
	}}, hub, zerolog.Nop())
	t.Cleanup(runs.Shutdown)

	// Act
	id, err := runs.Start(videosync.Request{VideoFolder: "/v"})
	require.NoError(t, err)
	client := hub.Register(id)
	defer hub.Unregister(client)
	close(release)

	// Assert
	var progress videosync.Event
	require.NoError(t, json.Unmarshal(receive(t, client), &progress))
	assert.Equal(t, videosync.PhaseProcessVideo, progress.Phase)

	var final api.StatusMessage
	require.NoError(t, json.Unmarshal(receive(t, client), &final))
	assert.Equal(t, api.StatusDone, final.Status)
	assert.Equal(t, id, final.RunID)
}

func receive(t *testing.T, client *api.Client) []byte {
	t.Helper()
	select {
	case msg := <-client.Send:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for message")
		return nil
	}
}

func TestHub(t *testing.T) {
	t.Run("local delivery", func(t *testing.T) {
		hub := api.NewHub(nil, zerolog.Nop())
		defer hub.Close()
		client := hub.Register("run-1")
		other := hub.Register("run-2")
		defer hub.Unregister(client)
		defer hub.Unregister(other)

		hub.Broadcast("run-1", []byte("hello"))

		assert.Equal(t, "hello", string(receive(t, client)))
		assert.Empty(t, other.Send)
	})

	t.Run("unregister twice is safe", func(t *testing.T) {
		hub := api.NewHub(nil, zerolog.Nop())
		client := hub.Register("run-1")

		hub.Unregister(client)
		hub.Unregister(client)

		_, open := <-client.Send
		assert.False(t, open)
	})

	t.Run("delivery through redis", func(t *testing.T) {
		// Arrange
		mr := miniredis.RunT(t)
		rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		defer rdb.Close()
		publisher := api.NewHub(rdb, zerolog.Nop())
		defer publisher.Close()
		subscriber := api.NewHub(rdb, zerolog.Nop())
		defer subscriber.Close()
		client := subscriber.Register("run-1")
		defer subscriber.Unregister(client)

		// Act
		publisher.Broadcast("run-1", []byte("via redis"))

		// Assert
		assert.Equal(t, "via redis", string(receive(t, client)))
	})
}
