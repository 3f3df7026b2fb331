package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"time"

	"github.com/illmade-knight/trackcam/pkg/camera"
	"github.com/illmade-knight/trackcam/pkg/geo"
	"github.com/illmade-knight/trackcam/pkg/videosync"
)

func runInspect(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	var (
		common     commonFlags
		cameraName string
	)
	fs := flag.NewFlagSet("inspect", flag.ContinueOnError)
	fs.SetOutput(stderr)
	common.register(fs)
	fs.StringVar(&cameraName, "camera", "auto", "camera profile: "+profileIDs())
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("%w: inspect takes exactly one video path", errUsage)
	}
	path := fs.Arg(0)
	profile, err := camera.Parse(cameraName)
	if err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}

	cfg, logger, err := common.load(stderr)
	if err != nil {
		return err
	}
	c := buildComponents(ctx, cfg, logger)
	defer c.Close()

	var video videoInspector
	if profile.Strategy() == camera.StrategyGoPro {
		video = c.GoPro
	}
	printInspection(ctx, stdout, c.GoPro, video, path, profile)
	return nil
}

// videoInspector is the telemetry side of a GoPro probe.
type videoInspector interface {
	DetectModel(ctx context.Context, path string) (string, error)
	HasTelemetry(ctx context.Context, path string) (bool, error)
	EmbeddedGPS(ctx context.Context, path string) ([]geo.GeoPoint, bool, error)
}

// printInspection writes what tags says about path and, when video is set,
// what its telemetry track holds. The GPS stream is only extracted when a
// telemetry track exists.
func printInspection(ctx context.Context, w io.Writer, tags videosync.MetadataAdapter, video videoInspector, path string, profile camera.Profile) {
	fmt.Fprintf(w, "file:      %s\n", path)
	fmt.Fprintf(w, "profile:   %s\n", profile.Label())

	created, err := tags.CreationTime(ctx, path)
	switch {
	case err != nil:
		fmt.Fprintf(w, "created:   error: %v\n", err)
	case created == nil:
		fmt.Fprintln(w, "created:   unknown")
	default:
		fmt.Fprintf(w, "created:   %s\n", created.UTC().Format(time.RFC3339))
	}

	duration, err := tags.DurationSeconds(ctx, path)
	switch {
	case err != nil:
		fmt.Fprintf(w, "duration:  error: %v\n", err)
	case duration == nil:
		fmt.Fprintln(w, "duration:  unknown")
	default:
		fmt.Fprintf(w, "duration:  %.1fs\n", *duration)
	}

	if video == nil {
		return
	}
	model, err := video.DetectModel(ctx, path)
	if err != nil {
		fmt.Fprintf(w, "model:     error: %v\n", err)
	} else {
		fmt.Fprintf(w, "model:     %s\n", model)
	}

	telemetry, err := video.HasTelemetry(ctx, path)
	switch {
	case err != nil:
		fmt.Fprintf(w, "telemetry: error: %v\n", err)
		return
	case !telemetry:
		fmt.Fprintln(w, "telemetry: no")
		return
	}
	fmt.Fprintln(w, "telemetry: yes")

	points, _, err := video.EmbeddedGPS(ctx, path)
	if err != nil {
		fmt.Fprintf(w, "gps:       error: %v\n", err)
		return
	}
	fmt.Fprintf(w, "gps:       %d samples\n", len(points))
	if len(points) > 0 {
		p := points[0]
		fmt.Fprintf(w, "first fix: %.6f, %.6f at %s\n", p.Latitude, p.Longitude, p.Timestamp.UTC().Format(time.RFC3339))
	}
}
