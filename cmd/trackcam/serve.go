package main

import (
	"context"
	"flag"
	"io"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/illmade-knight/trackcam/internal/api"
)

type listenFunc func(app *fiber.App, addr string) error

var defaultListen listenFunc = func(app *fiber.App, addr string) error {
	return app.Listen(addr)
}

func runServe(ctx context.Context, args []string, stderr io.Writer) error {
	var (
		common commonFlags
		addr   string
	)
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(stderr)
	common.register(fs)
	fs.StringVar(&addr, "addr", "", "listen address (default from config)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, logger, err := common.load(stderr)
	if err != nil {
		return err
	}
	if addr != "" {
		cfg.HTTPAddr = addr
	}

	c := buildComponents(ctx, cfg, logger)
	defer c.Close()

	hub := api.NewHub(c.Redis, logger)
	defer hub.Close()
	runs := api.NewRegistry(c.Engine, hub, logger)
	srv := api.NewServer(runs, hub, logger)
	return serve(ctx, srv, runs, cfg.HTTPAddr, defaultListen)
}

// serve blocks until ctx is done or the listener fails, then shuts down.
func serve(ctx context.Context, srv *api.Server, runs *api.Registry, addr string, listen listenFunc) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- listen(srv.App, addr)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			runs.Shutdown()
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	runs.Shutdown()
	return srv.App.ShutdownWithContext(shutdownCtx)
}
