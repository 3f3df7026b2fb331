// Package app provides the central orchestrator for a trackcam session: it runs
// synchronizations, keeps the latest result with the user's edits, and saves and
// reopens projects.
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/illmade-knight/trackcam/pkg/camera"
	"github.com/illmade-knight/trackcam/pkg/geo"
	"github.com/illmade-knight/trackcam/pkg/project"
	"github.com/illmade-knight/trackcam/pkg/videosync"
	"github.com/rs/zerolog"
)

var (
	// ErrNoRun is returned when an operation needs a synchronization result
	// and none has been produced yet.
	ErrNoRun = errors.New("no synchronization has been run")
	// ErrUnknownVideo is returned when editing a video not in the current result.
	ErrUnknownVideo = errors.New("video is not part of the current result")
)

// Synchronizer defines the engine operations the app drives.
type Synchronizer interface {
	Run(ctx context.Context, req videosync.Request, reporter videosync.ProgressReporter) (*videosync.Result, error)
	SetCameraFilter(profile camera.Profile)
}

// App is the central application struct. It holds the engine, the project
// service and the state of the current session.
type App struct {
	Engine     Synchronizer
	ProjectSvc *project.Service
	Logger     zerolog.Logger

	mu        sync.Mutex
	projectID uuid.UUID
	request   *videosync.Request
	result    *videosync.Result
}

// New creates a new, fully initialized App.
func New(engine Synchronizer, projectSvc *project.Service, logger zerolog.Logger) *App {
	return &App{
		Engine:     engine,
		ProjectSvc: projectSvc,
		Logger:     logger.With().Str("component", "app").Logger(),
	}
}

// SetCameraFilter forwards a camera choice to the engine.
func (a *App) SetCameraFilter(profile camera.Profile) {
	a.Engine.SetCameraFilter(profile)
}

// Synchronize runs req and makes its result current. Edits made to videos of
// the previous result are carried over to the same videos in the new one.
func (a *App) Synchronize(ctx context.Context, req videosync.Request, reporter videosync.ProgressReporter) (*videosync.Result, error) {
	a.mu.Lock()
	var edits map[string]project.VideoEdit
	if a.result != nil {
		edits = project.Collect(a.result.Locations)
	}
	a.mu.Unlock()
	return a.synchronize(ctx, req, reporter, edits)
}

func (a *App) synchronize(ctx context.Context, req videosync.Request, reporter videosync.ProgressReporter, edits map[string]project.VideoEdit) (*videosync.Result, error) {
	a.Engine.SetCameraFilter(req.CameraFilter)
	res, err := a.Engine.Run(ctx, req, reporter)
	if res == nil {
		return nil, err
	}
	res.Locations = project.Apply(res.Locations, edits)

	a.mu.Lock()
	a.request = &req
	a.result = res
	a.mu.Unlock()

	a.Logger.Info().
		Str("run_id", res.RunID).
		Int("located", res.Summary.Located).
		Int("videos", res.Summary.Videos).
		Int("edits_applied", len(edits)).
		Msg("Synchronization finished")
	return res, err
}

// Result returns the current result, or nil before the first run.
func (a *App) Result() *videosync.Result {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.result
}

// EditVideo sets the user-editable fields of one video in the current result.
func (a *App) EditVideo(videoPath string, edit project.VideoEdit) (geo.VideoLocation, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.result == nil {
		return geo.VideoLocation{}, ErrNoRun
	}
	for i, loc := range a.result.Locations {
		if loc.VideoPath != videoPath {
			continue
		}
		applied := project.Apply([]geo.VideoLocation{loc}, map[string]project.VideoEdit{videoPath: edit})
		a.result.Locations[i] = applied[0]
		return applied[0], nil
	}
	return geo.VideoLocation{}, fmt.Errorf("%w: %s", ErrUnknownVideo, videoPath)
}

// SaveProject stores the current request and edits. The first save creates
// a project; later ones overwrite it.
func (a *App) SaveProject(ctx context.Context, name string) (project.Project, error) {
	a.mu.Lock()
	if a.request == nil {
		a.mu.Unlock()
		return project.Project{}, ErrNoRun
	}
	id, req := a.projectID, *a.request
	locations := append([]geo.VideoLocation(nil), a.result.Locations...)
	a.mu.Unlock()

	p, err := a.ProjectSvc.Save(ctx, id, name, req, locations)
	if err != nil {
		return project.Project{}, err
	}

	a.mu.Lock()
	a.projectID = p.ID
	a.mu.Unlock()
	a.Logger.Info().Stringer("project_id", p.ID).Int("edits", len(p.VideoMetadata)).Msg("Project saved")
	return p, nil
}

// OpenProject loads a project, reruns its synchronization and restores the
// saved edits onto the fresh result.
func (a *App) OpenProject(ctx context.Context, id uuid.UUID, reporter videosync.ProgressReporter) (*videosync.Result, error) {
	p, err := a.ProjectSvc.Open(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to open project: %w", err)
	}
	a.Logger.Info().Stringer("project_id", p.ID).Str("name", p.Name).Msg("Opening project")

	res, err := a.synchronize(ctx, p.Request(), reporter, p.VideoMetadata)
	if res != nil {
		a.mu.Lock()
		a.projectID = p.ID
		a.mu.Unlock()
	}
	return res, err
}

// RecentProjects lists recently opened projects.
func (a *App) RecentProjects(ctx context.Context) ([]project.Project, error) {
	return a.ProjectSvc.Recent(ctx)
}
