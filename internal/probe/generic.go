package probe

import (
	"context"

	"github.com/illmade-knight/trackcam/pkg/geo"
	"github.com/rs/zerolog"
)

// Generic reads container tags only. Videos probed this way are located by
// track sync.
type Generic struct {
	inspector
}

// NewGeneric creates the tag-only strategy.
func NewGeneric(cfg Config, runner CommandRunner, files ModTimer, logger zerolog.Logger) *Generic {
	return &Generic{newInspector(cfg, runner, files,
		logger.With().Str("component", "probe").Str("strategy", "generic").Logger())}
}

// EmbeddedGPS always reports that no telemetry track was looked for.
func (g *Generic) EmbeddedGPS(_ context.Context, _ string) ([]geo.GeoPoint, bool, error) {
	return nil, false, nil
}
