package probe

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/illmade-knight/trackcam/pkg/geo"
	"github.com/illmade-knight/trackcam/pkg/telemetry"
	"github.com/rs/zerolog"
)

const (
	gpmfCodecTag = "gpmd"
	// UnknownModel is reported for GoPro files whose tags name no model.
	UnknownModel = "GoPro (unknown model)"
)

// GoPro reads container tags and decodes the GPMF telemetry track.
type GoPro struct {
	inspector
}

// NewGoPro creates the GoPro strategy.
func NewGoPro(cfg Config, runner CommandRunner, files ModTimer, logger zerolog.Logger) *GoPro {
	return &GoPro{newInspector(cfg, runner, files,
		logger.With().Str("component", "probe").Str("strategy", "gopro").Logger())}
}

// EmbeddedGPS returns the decoded samples of the telemetry track. found is
// false when the file has no such track; a track holding no usable sample
// gives found true and no points.
func (g *GoPro) EmbeddedGPS(ctx context.Context, path string) (points []geo.GeoPoint, found bool, err error) {
	index, err := g.metadataStream(ctx, path)
	if err != nil {
		return nil, false, err
	}
	if index < 0 {
		g.logger.Debug().Str("video", path).Msg("No telemetry stream")
		return nil, false, nil
	}

	raw, err := g.runner.Run(ctx, g.cfg.FFmpegPath,
		"-y", "-v", "quiet",
		"-i", path,
		"-codec", "copy",
		"-map", "0:"+strconv.Itoa(index),
		"-f", "rawvideo",
		"-",
	)
	if err != nil {
		return nil, true, fmt.Errorf("failed to extract telemetry stream %d of %s: %w", index, path, err)
	}

	res := telemetry.Decode(raw)
	g.logger.Debug().
		Str("video", path).
		Int("bytes", len(raw)).
		Int("items", res.Stats.Items).
		Int("malformed", res.Stats.Malformed).
		Int("points", len(res.Points)).
		Msg("Decoded telemetry stream")
	return res.Points, true, nil
}

// HasTelemetry reports whether the video carries a telemetry track.
func (g *GoPro) HasTelemetry(ctx context.Context, path string) (bool, error) {
	index, err := g.metadataStream(ctx, path)
	return index >= 0, err
}

// metadataStream returns the index of the GPMF stream or -1.
func (g *GoPro) metadataStream(ctx context.Context, path string) (int, error) {
	doc, err := g.probe(ctx, path)
	if err != nil {
		return -1, err
	}
	for _, s := range doc.Streams {
		if s.CodecTagString == gpmfCodecTag {
			return s.Index, nil
		}
	}
	return -1, nil
}

// DetectModel names the camera from the container model/firmware tags, then
// from the data stream handler name.
func (g *GoPro) DetectModel(ctx context.Context, path string) (string, error) {
	out, err := g.runner.Run(ctx, g.cfg.FFprobePath,
		"-v", "quiet",
		"-show_entries", "format_tags=model:format_tags=firmware",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)
	if err != nil {
		return "", fmt.Errorf("failed to read model tags of %s: %w", path, err)
	}
	if line, ok := heroLine(out); ok {
		return line, nil
	}

	out, err = g.runner.Run(ctx, g.cfg.FFprobePath,
		"-v", "quiet",
		"-show_streams", "-select_streams", "d",
		"-show_entries", "stream_tags=handler_name",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)
	if err != nil {
		return "", fmt.Errorf("failed to read handler names of %s: %w", path, err)
	}
	if line, ok := heroLine(out); ok {
		return line, nil
	}
	return UnknownModel, nil
}

func heroLine(out []byte) (string, bool) {
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if strings.Contains(strings.ToUpper(line), "HERO") {
			return line, true
		}
	}
	return "", false
}
