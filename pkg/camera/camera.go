// Package camera holds the closed list of camera profiles a sync run can be
// filtered to. A profile decides which metadata strategy reads the videos
// and whether embedded GPS can be expected at all.
package camera

import (
	"fmt"
	"strings"
)

// Strategy names a family of metadata readers.
type Strategy string

const (
	// StrategyGoPro reads the GPMF telemetry track as well as container tags.
	StrategyGoPro Strategy = "gopro"
	// StrategyGeneric reads container tags only.
	StrategyGeneric Strategy = "generic"
)

// Profile is a camera filter value.
type Profile string

const (
	Auto       Profile = "auto"
	Hero10Plus Profile = "hero10plus"
	Hero9Minus Profile = "hero9minus"
	Hero12     Profile = "hero12"
	DJI        Profile = "dji"
	Insta360   Profile = "insta360"
)

type profileInfo struct {
	label    string
	strategy Strategy
	noGPS    bool
}

var profiles = map[Profile]profileInfo{
	Auto:       {label: "Auto (detect)", strategy: StrategyGoPro},
	Hero10Plus: {label: "Hero 10 or later (GPS)", strategy: StrategyGoPro},
	Hero9Minus: {label: "Hero 9 or earlier (GPS)", strategy: StrategyGoPro},
	Hero12:     {label: "Hero 12 (no GPS)", strategy: StrategyGeneric, noGPS: true},
	DJI:        {label: "DJI (track sync)", strategy: StrategyGeneric},
	Insta360:   {label: "Insta360 (track sync)", strategy: StrategyGeneric},
}

// All lists every profile in display order.
func All() []Profile {
	return []Profile{Auto, Hero10Plus, Hero9Minus, Hero12, DJI, Insta360}
}

// Parse resolves a profile from its identifier or display label, ignoring
// case. The empty string is Auto.
func Parse(s string) (Profile, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Auto, nil
	}
	for _, p := range All() {
		if strings.EqualFold(s, string(p)) || strings.EqualFold(s, profiles[p].label) {
			return p, nil
		}
	}
	return "", fmt.Errorf("unknown camera profile %q", s)
}

// Label is the human-readable name.
func (p Profile) Label() string {
	if info, ok := profiles[p]; ok {
		return info.label
	}
	return string(p)
}

// Strategy returns the metadata strategy; unknown profiles fall back to the
// GoPro reader as Auto does.
func (p Profile) Strategy() Strategy {
	if info, ok := profiles[p]; ok {
		return info.strategy
	}
	return StrategyGoPro
}

// NoGPS reports whether the camera never records embedded GPS, which forces
// timestamp sync for its videos.
func (p Profile) NoGPS() bool {
	return profiles[p].noGPS
}
