// Package api exposes synchronization runs over HTTP, with live progress on a
// websocket.
package api

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"github.com/illmade-knight/trackcam/internal/export"
	"github.com/illmade-knight/trackcam/pkg/camera"
	"github.com/illmade-knight/trackcam/pkg/videosync"
	"github.com/rs/zerolog"
)

type Server struct {
	App    *fiber.App
	Runs   *Registry
	Hub    *Hub
	logger zerolog.Logger
}

// NewServer wires the routes over runs and hub.
func NewServer(runs *Registry, hub *Hub, logger zerolog.Logger) *Server {
	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	app.Use(recover.New())

	s := &Server{
		App:    app,
		Runs:   runs,
		Hub:    hub,
		logger: logger.With().Str("component", "api").Logger(),
	}
	registerRoutes(s)
	return s
}

func registerRoutes(s *Server) {
	s.App.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	s.App.Get("/cameras", s.listCameras)

	runs := s.App.Group("/runs")
	runs.Post("/", s.startRun)
	runs.Get("/:id", s.getRun)
	runs.Delete("/:id", s.cancelRun)
	runs.Get("/:id/geojson", s.runGeoJSON)

	s.App.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	s.App.Get("/ws/runs/:id", websocket.New(s.streamRun))
}

type cameraView struct {
	ID       string `json:"id"`
	Label    string `json:"label"`
	Strategy string `json:"strategy"`
	NoGPS    bool   `json:"no_gps"`
}

func (s *Server) listCameras(c *fiber.Ctx) error {
	var out []cameraView
	for _, p := range camera.All() {
		out = append(out, cameraView{ID: string(p), Label: p.Label(), Strategy: string(p.Strategy()), NoGPS: p.NoGPS()})
	}
	return c.JSON(out)
}

// runRequest mirrors videosync.Request but accepts camera labels as well as IDs.
type runRequest struct {
	TrackPath           string   `json:"track_path"`
	VideoFolder         string   `json:"video_folder"`
	Extensions          []string `json:"extensions"`
	ForceTimestampSync  bool     `json:"force_timestamp_sync"`
	CameraFilter        string   `json:"camera_filter"`
	LocalTimezone       string   `json:"local_timezone"`
	ManualOffsetSeconds float64  `json:"manual_offset_seconds"`
}

func (s *Server) startRun(c *fiber.Ctx) error {
	var body runRequest
	if err := c.BodyParser(&body); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if strings.TrimSpace(body.VideoFolder) == "" {
		return fiber.NewError(fiber.StatusBadRequest, "video_folder is required")
	}
	profile, err := camera.Parse(body.CameraFilter)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	id, err := s.Runs.Start(videosync.Request{
		TrackPath:           body.TrackPath,
		VideoFolder:         body.VideoFolder,
		Extensions:          body.Extensions,
		ForceTimestampSync:  body.ForceTimestampSync,
		CameraFilter:        profile,
		LocalTimezone:       body.LocalTimezone,
		ManualOffsetSeconds: body.ManualOffsetSeconds,
	})
	if errors.Is(err, ErrBusy) {
		return fiber.NewError(fiber.StatusConflict, err.Error())
	}
	if err != nil {
		return err
	}
	s.logger.Info().Str("run_id", id).Str("folder", body.VideoFolder).Msg("Run started")
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"run_id": id})
}

func (s *Server) getRun(c *fiber.Ctx) error {
	view, err := s.Runs.Get(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	}
	return c.JSON(view)
}

func (s *Server) cancelRun(c *fiber.Ctx) error {
	if err := s.Runs.Cancel(c.Params("id")); err != nil {
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	}
	return c.SendStatus(fiber.StatusAccepted)
}

func (s *Server) runGeoJSON(c *fiber.Ctx) error {
	view, err := s.Runs.Get(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	}
	if view.Result == nil {
		return fiber.NewError(fiber.StatusConflict, "run has no result yet")
	}
	data, err := export.Marshal(view.Result.Track, view.Result.Locations)
	if err != nil {
		return err
	}
	c.Set(fiber.HeaderContentType, "application/geo+json")
	return c.Send(data)
}

func (s *Server) streamRun(c *websocket.Conn) {
	client := s.Hub.Register(c.Params("id"))
	defer s.Hub.Unregister(client)

	done := make(chan struct{})
	go func() {
		for msg := range client.Send {
			if err := c.WriteMessage(websocket.TextMessage, msg); err != nil {
				break
			}
		}
		close(done)
	}()

	for {
		if _, _, err := c.ReadMessage(); err != nil {
			break
		}
	}
	s.Hub.Unregister(client)
	<-done
}
