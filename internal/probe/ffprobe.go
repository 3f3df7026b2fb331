package probe

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/illmade-knight/go-dataflow/pkg/cache"
	"github.com/rs/zerolog"
)

// ffprobeOutput is the JSON document printed by
// `ffprobe -print_format json -show_format -show_streams`.
type ffprobeOutput struct {
	Format  ffprobeFormat   `json:"format"`
	Streams []ffprobeStream `json:"streams"`
}

type ffprobeFormat struct {
	Filename   string            `json:"filename"`
	Duration   string            `json:"duration"`
	FormatName string            `json:"format_name"`
	Tags       map[string]string `json:"tags"`
}

type ffprobeStream struct {
	Index          int               `json:"index"`
	CodecName      string            `json:"codec_name"`
	CodecType      string            `json:"codec_type"`
	CodecTagString string            `json:"codec_tag_string"`
	Tags           map[string]string `json:"tags"`
}

// ModTimer reports a file's last-modified time in UTC.
type ModTimer interface {
	MtimeUTC(path string) (time.Time, error)
}

// Config locates the tools.
type Config struct {
	FFprobePath string
	FFmpegPath  string
}

func (c Config) withDefaults() Config {
	if c.FFprobePath == "" {
		c.FFprobePath = "ffprobe"
	}
	if c.FFmpegPath == "" {
		c.FFmpegPath = "ffmpeg"
	}
	return c
}

// documentCacheSize bounds how many parsed ffprobe documents an inspector keeps.
const documentCacheSize = 256

// inspector holds what both strategies share: container probing, creation
// time and duration. Each file is probed once; the parsed document serves
// every later question about it.
type inspector struct {
	cfg    Config
	runner CommandRunner
	files  ModTimer
	docs   *cache.InMemoryLRUCache[string, *ffprobeOutput]
	logger zerolog.Logger
}

func newInspector(cfg Config, runner CommandRunner, files ModTimer, logger zerolog.Logger) inspector {
	cfg = cfg.withDefaults()
	// documentCacheSize is positive, so construction cannot fail.
	docs, _ := cache.NewInMemoryLRUCache[string, *ffprobeOutput](documentCacheSize, documents{cfg: cfg, runner: runner})
	return inspector{cfg: cfg, runner: runner, files: files, docs: docs, logger: logger}
}

func (in *inspector) probe(ctx context.Context, path string) (*ffprobeOutput, error) {
	return in.docs.Fetch(ctx, path)
}

// documents runs ffprobe on a cache miss. Failures are not cached.
type documents struct {
	cfg    Config
	runner CommandRunner
}

func (d documents) Fetch(ctx context.Context, path string) (*ffprobeOutput, error) {
	out, err := d.runner.Run(ctx, d.cfg.FFprobePath,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to probe %s: %w", path, err)
	}
	var doc ffprobeOutput
	if err := json.Unmarshal(out, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse ffprobe output for %s: %w", path, err)
	}
	return &doc, nil
}

func (d documents) Close() error { return nil }

// CreationTime reads the container creation_time tag, then the first video
// stream's, then falls back to the file's modification time.
func (in *inspector) CreationTime(ctx context.Context, path string) (*time.Time, error) {
	doc, err := in.probe(ctx, path)
	if err != nil {
		in.logger.Warn().Err(err).Str("video", path).Msg("Probe failed, using file modification time")
		return in.mtime(path)
	}

	raw := doc.Format.Tags["creation_time"]
	if raw == "" {
		for _, s := range doc.Streams {
			if s.CodecType == "video" {
				raw = s.Tags["creation_time"]
				break
			}
		}
	}
	if raw == "" {
		in.logger.Debug().Str("video", path).Msg("No creation_time tag, using file modification time")
		return in.mtime(path)
	}

	t, err := ParseCreationTime(raw)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (in *inspector) mtime(path string) (*time.Time, error) {
	if in.files == nil {
		return nil, nil
	}
	t, err := in.files.MtimeUTC(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read modification time of %s: %w", path, err)
	}
	return &t, nil
}

// DurationSeconds returns nil when the container reports no positive duration.
func (in *inspector) DurationSeconds(ctx context.Context, path string) (*float64, error) {
	doc, err := in.probe(ctx, path)
	if err != nil {
		return nil, err
	}
	raw := strings.TrimSpace(doc.Format.Duration)
	if raw == "" {
		return nil, nil
	}
	d, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, fmt.Errorf("failed to parse duration %q: %w", raw, err)
	}
	if d <= 0 {
		return nil, nil
	}
	return &d, nil
}

var creationLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
}

// ParseCreationTime parses an ISO 8601 container timestamp. Values without a
// zone are read as UTC.
func ParseCreationTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range creationLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised creation time %q", s)
}
