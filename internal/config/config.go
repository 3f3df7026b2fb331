// Package config loads trackcam settings from defaults, an optional config
// file and TRACKCAM_* environment variables, in increasing priority.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Project store backends.
const (
	BackendFile      = "file"
	BackendFirestore = "firestore"
)

type Config struct {
	LocalTimezone string        `mapstructure:"local_timezone"`
	FFprobePath   string        `mapstructure:"ffprobe_path"`
	FFmpegPath    string        `mapstructure:"ffmpeg_path"`
	ProbeTimeout  time.Duration `mapstructure:"probe_timeout"`
	Workers       int           `mapstructure:"workers"`

	RedisAddr     string        `mapstructure:"redis_addr"`
	RedisPassword string        `mapstructure:"redis_password"`
	RedisTTL      time.Duration `mapstructure:"redis_ttl"`

	ProjectBackend string `mapstructure:"project_backend"`
	ProjectDir     string `mapstructure:"project_dir"`
	GCPProjectID   string `mapstructure:"gcp_project_id"`

	HTTPAddr string `mapstructure:"http_addr"`
	LogLevel string `mapstructure:"log_level"`
}

var keys = []string{
	"local_timezone", "ffprobe_path", "ffmpeg_path", "probe_timeout", "workers",
	"redis_addr", "redis_password", "redis_ttl",
	"project_backend", "project_dir", "gcp_project_id",
	"http_addr", "log_level",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("local_timezone", "Europe/Paris")
	v.SetDefault("ffprobe_path", "ffprobe")
	v.SetDefault("ffmpeg_path", "ffmpeg")
	v.SetDefault("probe_timeout", 30*time.Second)
	v.SetDefault("workers", 1)
	v.SetDefault("redis_addr", "")
	v.SetDefault("redis_password", "")
	v.SetDefault("redis_ttl", 7*24*time.Hour)
	v.SetDefault("project_backend", BackendFile)
	v.SetDefault("project_dir", "projects")
	v.SetDefault("gcp_project_id", "")
	v.SetDefault("http_addr", ":8080")
	v.SetDefault("log_level", "info")
}

// Load reads the configuration. An empty path skips the config file.
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("TRACKCAM")
	v.AutomaticEnv()
	// Unmarshal only sees env values for keys viper already knows about.
	for _, k := range keys {
		if err := v.BindEnv(k); err != nil {
			return Config{}, fmt.Errorf("failed to bind %s: %w", k, err)
		}
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to decode config: %w", err)
	}
	return cfg, cfg.Validate()
}

// Validate checks values that would otherwise fail deep inside a run.
func (c Config) Validate() error {
	var errs []error
	if c.Workers < 1 {
		errs = append(errs, fmt.Errorf("workers must be at least 1, got %d", c.Workers))
	}
	if c.ProbeTimeout <= 0 {
		errs = append(errs, errors.New("probe_timeout must be positive"))
	}
	switch c.ProjectBackend {
	case BackendFile:
	case BackendFirestore:
		if c.GCPProjectID == "" {
			errs = append(errs, errors.New("gcp_project_id is required for the firestore backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown project_backend %q", c.ProjectBackend))
	}
	return errors.Join(errs...)
}
