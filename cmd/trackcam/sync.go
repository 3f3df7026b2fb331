package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/illmade-knight/trackcam/app"
	"github.com/illmade-knight/trackcam/internal/export"
	"github.com/illmade-knight/trackcam/pkg/camera"
	"github.com/illmade-knight/trackcam/pkg/project"
	"github.com/illmade-knight/trackcam/pkg/videosync"
	"github.com/rs/zerolog"
)

func runSync(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	var (
		common      commonFlags
		req         videosync.Request
		cameraName  string
		extensions  string
		workers     int
		asJSON      bool
		geojsonPath string
		saveAs      string
		openID      string
	)
	fs := flag.NewFlagSet("sync", flag.ContinueOnError)
	fs.SetOutput(stderr)
	common.register(fs)
	fs.StringVar(&req.TrackPath, "track", "", "GPS track file (.fit), optional")
	fs.StringVar(&req.VideoFolder, "videos", "", "folder containing the videos")
	fs.StringVar(&cameraName, "camera", "auto", "camera profile: "+profileIDs())
	fs.StringVar(&extensions, "ext", "", "comma-separated video extensions (default .mp4,.MP4)")
	fs.BoolVar(&req.ForceTimestampSync, "force-timestamp", false, "ignore embedded GPS and sync every video on the track")
	fs.StringVar(&req.LocalTimezone, "tz", "", "timezone the camera clock was set in (default from config)")
	fs.Float64Var(&req.ManualOffsetSeconds, "offset", 0, "seconds added to every creation time")
	fs.IntVar(&workers, "workers", 0, "videos processed at once (default from config)")
	fs.BoolVar(&asJSON, "json", false, "print the full result as JSON")
	fs.StringVar(&geojsonPath, "geojson", "", "write the map overlay to this file")
	fs.StringVar(&saveAs, "save", "", "save the run as a project with this name")
	fs.StringVar(&openID, "project", "", "rerun a saved project by ID, restoring its edits")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() > 0 && req.VideoFolder == "" {
		req.VideoFolder = fs.Arg(0)
	}
	if req.VideoFolder == "" && openID == "" {
		return fmt.Errorf("%w: -videos or -project is required", errUsage)
	}

	profile, err := camera.Parse(cameraName)
	if err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	req.CameraFilter = profile
	if extensions != "" {
		req.Extensions = strings.Split(extensions, ",")
	}

	cfg, logger, err := common.load(stderr)
	if err != nil {
		return err
	}
	if workers > 0 {
		cfg.Workers = workers
	}
	if req.LocalTimezone == "" {
		req.LocalTimezone = cfg.LocalTimezone
	}

	c := buildComponents(ctx, cfg, logger)
	defer c.Close()
	if err := c.openProjects(ctx, cfg, logger); err != nil {
		return err
	}
	session := app.New(c.Engine, project.NewService(c.Projects), logger)

	reporter := progressLogger(logger)
	var res *videosync.Result
	if openID != "" {
		id, err := uuid.Parse(openID)
		if err != nil {
			return fmt.Errorf("%w: invalid project id: %v", errUsage, err)
		}
		res, err = session.OpenProject(ctx, id, reporter)
		if res == nil {
			return err
		}
		if err != nil {
			logger.Warn().Err(err).Msg("Printing partial result")
		}
	} else {
		res, err = session.Synchronize(ctx, req, reporter)
		if res == nil {
			return err
		}
		if err != nil {
			logger.Warn().Err(err).Msg("Printing partial result")
		}
	}

	if geojsonPath != "" {
		data, err := export.Marshal(res.Track, res.Locations)
		if err != nil {
			return fmt.Errorf("failed to encode geojson: %w", err)
		}
		if err := os.WriteFile(geojsonPath, data, 0o644); err != nil {
			return fmt.Errorf("failed to write geojson: %w", err)
		}
	}
	if saveAs != "" {
		p, err := session.SaveProject(ctx, saveAs)
		if err != nil {
			return err
		}
		fmt.Fprintf(stderr, "saved project %s (%s)\n", p.Name, p.ID)
	}

	if asJSON {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}
	return printResult(stdout, res)
}

func profileIDs() string {
	ids := make([]string, 0, len(camera.All()))
	for _, p := range camera.All() {
		ids = append(ids, string(p))
	}
	return strings.Join(ids, ", ")
}

func progressLogger(logger zerolog.Logger) videosync.ProgressReporter {
	return videosync.ReporterFunc(func(ev videosync.Event) {
		if ev.Phase != videosync.PhaseProcessVideo {
			return
		}
		logger.Debug().Int("current", ev.Current).Int("total", ev.Total).Str("video", ev.Path).Msg("Progress")
	})
}

// printResult writes one line per video and the summary.
func printResult(w io.Writer, res *videosync.Result) error {
	if res.TrackWarning != "" {
		fmt.Fprintf(w, "track: %s\n\n", res.TrackWarning)
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "VIDEO\tSOURCE\tLAT\tLON\tCREATED\tNOTE")
	for _, loc := range res.Locations {
		lat, lon := "-", "-"
		if loc.IsLocated() {
			lat = fmt.Sprintf("%.6f", loc.Position.Latitude)
			lon = fmt.Sprintf("%.6f", loc.Position.Longitude)
		}
		created := "-"
		if loc.CreationTime != nil {
			created = loc.CreationTime.UTC().Format(time.RFC3339)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", loc.DisplayName(), loc.Source.Label(), lat, lon, created, loc.CustomNote)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	s := res.Summary
	_, err := fmt.Fprintf(w, "\n%d videos: %d located (%d embedded GPS, %d track sync), %d not located; %d track points\n",
		s.Videos, s.Located, s.EmbeddedGPS, s.TrackSync, s.NotLocated, s.TrackPoints)
	return err
}
