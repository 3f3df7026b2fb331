// Package probecache keeps probe results in Redis so that repeated runs over
// the same footage, from any process, skip the external tools.
package probecache

import (
	"context"
	"errors"
	"time"

	"github.com/illmade-knight/go-dataflow/pkg/cache"
	"github.com/illmade-knight/trackcam/pkg/videosync"
	"github.com/rs/zerolog"
)

// DefaultTTL applies when the configured TTL is not positive.
const DefaultTTL = 7 * 24 * time.Hour

// Config locates the Redis server.
type Config struct {
	Addr     string
	Password string
	TTL      time.Duration
}

// Shared is a videosync.Lookups backed by Redis. Answers are stored under
// videosync.Lookup keys, so two strategies never share an entry. Redis
// failures are logged and the lookup goes to the source; source errors are
// never cached.
type Shared struct {
	redis  *cache.RedisCache[videosync.Lookup, videosync.Answer]
	source videosync.Lookups
	logger zerolog.Logger
}

// New connects to Redis and puts it in front of source.
func New(ctx context.Context, cfg Config, source videosync.Lookups, logger zerolog.Logger) (*Shared, error) {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	logger = logger.With().Str("component", "probecache").Logger()
	rc, err := cache.NewRedisCache[videosync.Lookup, videosync.Answer](ctx, &cache.RedisConfig{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		CacheTTL: cfg.TTL,
	}, logger, marked{source})
	if err != nil {
		return nil, err
	}
	return &Shared{redis: rc, source: source, logger: logger}, nil
}

// Fetch implements videosync.Lookups.
func (s *Shared) Fetch(ctx context.Context, key videosync.Lookup) (videosync.Answer, error) {
	ans, err := s.redis.Fetch(ctx, key)
	if err == nil {
		return ans, nil
	}
	var se *sourceError
	if errors.As(err, &se) {
		return videosync.Answer{}, se.err
	}
	s.logger.Warn().Err(err).Stringer("key", key).Msg("Cache read failed, asking the source")
	return s.source.Fetch(ctx, key)
}

// Close closes the Redis connection.
func (s *Shared) Close() error {
	return s.redis.Close()
}

// sourceError tells a source failure apart from a Redis failure.
type sourceError struct{ err error }

func (e *sourceError) Error() string { return e.err.Error() }
func (e *sourceError) Unwrap() error { return e.err }

// marked wraps source errors so Shared can tell them from Redis errors.
type marked struct {
	source videosync.Lookups
}

func (m marked) Fetch(ctx context.Context, key videosync.Lookup) (videosync.Answer, error) {
	ans, err := m.source.Fetch(ctx, key)
	if err != nil {
		return videosync.Answer{}, &sourceError{err: err}
	}
	return ans, nil
}

func (m marked) Close() error { return m.source.Close() }
