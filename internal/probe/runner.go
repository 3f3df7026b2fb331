// Package probe reads creation time, duration and embedded telemetry from
// video files by running ffprobe and ffmpeg.
package probe

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

var (
	// ErrToolUnavailable is returned when ffprobe or ffmpeg cannot be started.
	ErrToolUnavailable = errors.New("media tool unavailable")
	// ErrNoMetadataStream is returned when a video has no telemetry track.
	ErrNoMetadataStream = errors.New("no telemetry stream in video")
)

// DefaultTimeout bounds a single tool invocation.
const DefaultTimeout = 30 * time.Second

// CommandRunner runs an external tool and returns its standard output.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecRunner runs commands as child processes. A process still running when
// the timeout expires or ctx is cancelled is killed.
type ExecRunner struct {
	timeout time.Duration
}

// NewExecRunner creates a runner; a non-positive timeout uses DefaultTimeout.
func NewExecRunner(timeout time.Duration) *ExecRunner {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &ExecRunner{timeout: timeout}
}

// Run executes name with args.
func (r *ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrToolUnavailable, name)
		}
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%s did not finish within %s: %w", name, r.timeout, ctx.Err())
		}
		msg := strings.TrimSpace(stderr.String())
		if len(msg) > 200 {
			msg = msg[:200]
		}
		return stdout.Bytes(), fmt.Errorf("%s failed: %w (%s)", name, err, msg)
	}
	return stdout.Bytes(), nil
}
