// Command trackcam places action-camera videos on a map, from their embedded
// GPS telemetry or by matching their timestamps against a GPS track.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	_ "time/tzdata"

	"github.com/illmade-knight/trackcam/internal/config"
	"github.com/rs/zerolog"
)

const usage = `usage: trackcam <command> [flags]

commands:
  sync     locate the videos of a folder and print the result
  serve    run the HTTP API
  inspect  show what trackcam reads from one video

run "trackcam <command> -h" for the flags of a command`

// commonFlags are accepted by every command.
type commonFlags struct {
	configPath string
	logJSON    bool
	logLevel   string
}

func (c *commonFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&c.configPath, "config", "", "config file (yaml or json)")
	fs.BoolVar(&c.logJSON, "log-json", false, "log as JSON instead of console text")
	fs.StringVar(&c.logLevel, "log-level", "", "log level, overrides config")
}

// load reads the config and builds the logger.
func (c *commonFlags) load(stderr io.Writer) (config.Config, zerolog.Logger, error) {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return config.Config{}, zerolog.Nop(), err
	}
	if c.logLevel != "" {
		cfg.LogLevel = c.logLevel
	}
	return cfg, newLogger(stderr, c.logJSON, cfg.LogLevel), nil
}

func newLogger(w io.Writer, asJSON bool, level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	if !asJSON {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05"}
	}
	return zerolog.New(w).Level(lvl).With().Timestamp().Logger()
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(stderr, usage)
		return 2
	}

	var err error
	switch args[0] {
	case "sync":
		err = runSync(ctx, args[1:], stdout, stderr)
	case "serve":
		err = runServe(ctx, args[1:], stderr)
	case "inspect":
		err = runInspect(ctx, args[1:], stdout, stderr)
	case "-h", "-help", "--help", "help":
		fmt.Fprintln(stdout, usage)
		return 0
	default:
		fmt.Fprintf(stderr, "unknown command %q\n\n%s\n", args[0], usage)
		return 2
	}

	switch {
	case err == nil:
		return 0
	case errors.Is(err, flag.ErrHelp):
		return 0
	case errors.Is(err, errUsage):
		fmt.Fprintln(stderr, err)
		return 2
	default:
		fmt.Fprintln(stderr, "trackcam:", err)
		return 1
	}
}

var errUsage = errors.New("invalid arguments")
