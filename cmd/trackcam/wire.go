package main

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	"github.com/illmade-knight/trackcam/internal/catalog"
	"github.com/illmade-knight/trackcam/internal/config"
	"github.com/illmade-knight/trackcam/internal/fitdecode"
	"github.com/illmade-knight/trackcam/internal/probe"
	"github.com/illmade-knight/trackcam/internal/probecache"
	firestorestorage "github.com/illmade-knight/trackcam/internal/storage/firestore"
	"github.com/illmade-knight/trackcam/internal/storage/jsonfile"
	"github.com/illmade-knight/trackcam/pkg/camera"
	"github.com/illmade-knight/trackcam/pkg/project"
	"github.com/illmade-knight/trackcam/pkg/trackparse"
	"github.com/illmade-knight/trackcam/pkg/videosync"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// components is everything a command may need, assembled from config.
type components struct {
	Engine   *videosync.Engine
	GoPro    *probe.GoPro
	Generic  *probe.Generic
	Projects project.Store
	Redis    *redis.Client

	closers []func() error
}

func (c *components) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		_ = c.closers[i]()
	}
}

func buildComponents(ctx context.Context, cfg config.Config, logger zerolog.Logger) *components {
	c := &components{}

	files := catalog.New()
	runner := probe.NewExecRunner(cfg.ProbeTimeout)
	probeCfg := probe.Config{FFprobePath: cfg.FFprobePath, FFmpegPath: cfg.FFmpegPath}
	c.GoPro = probe.NewGoPro(probeCfg, runner, files, logger)
	c.Generic = probe.NewGeneric(probeCfg, runner, files, logger)

	adapters := map[camera.Strategy]videosync.MetadataAdapter{
		camera.StrategyGoPro:   c.GoPro,
		camera.StrategyGeneric: c.Generic,
	}
	engineCfg := videosync.Config{Workers: cfg.Workers}
	if cfg.RedisAddr != "" {
		shared, err := probecache.New(ctx, probecache.Config{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			TTL:      cfg.RedisTTL,
		}, videosync.NewAdapterSource(adapters), logger)
		if err != nil {
			logger.Warn().Err(err).Str("redis_addr", cfg.RedisAddr).Msg("Redis unavailable, probe results cached in memory only")
		} else {
			c.closers = append(c.closers, shared.Close)
			engineCfg.Lookups = shared
			logger.Info().Str("redis_addr", cfg.RedisAddr).Msg("Probe results cached in Redis")
		}

		c.Redis = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		c.closers = append(c.closers, c.Redis.Close)
	}

	tracks := trackparse.NewParser(fitdecode.New(), logger)
	c.Engine = videosync.NewEngine(engineCfg, tracks, files, files, adapters, logger)
	return c
}

// openProjects attaches the configured project store.
func (c *components) openProjects(ctx context.Context, cfg config.Config, logger zerolog.Logger) error {
	switch cfg.ProjectBackend {
	case config.BackendFirestore:
		client, err := firestore.NewClient(ctx, cfg.GCPProjectID)
		if err != nil {
			return fmt.Errorf("failed to create Firestore client: %w", err)
		}
		c.closers = append(c.closers, client.Close)
		c.Projects = firestorestorage.NewProjectsStore(client)
		logger.Info().Str("gcp_project_id", cfg.GCPProjectID).Msg("Projects stored in Firestore")
	default:
		c.Projects = jsonfile.NewProjectsStore(cfg.ProjectDir)
		logger.Debug().Str("project_dir", cfg.ProjectDir).Msg("Projects stored as JSON files")
	}
	return nil
}
